package room

import "time"

// EventType is the outbound frame type.
type EventType string

const (
	EventInit        EventType = "init"
	EventJoin        EventType = "join"
	EventChat        EventType = "chat"
	EventStateUpdate EventType = "state_update"
	EventSystem      EventType = "system"
	EventNarrative   EventType = "n1x_response"
	EventSync        EventType = "sync"
)

// Audience selects who receives an event.
type Audience int

const (
	// Everyone is every live occupant.
	Everyone Audience = iota
	// Others is everyone except Target.
	Others
	// Only is Target alone.
	Only
)

// Modes announced when occupancy crosses two.
const (
	ModeMesh = "mesh"
	ModeSolo = "solo"
)

// Event is one outbound message produced by a state transition.
type Event struct {
	Type     EventType
	Audience Audience
	Target   string

	Handle     string
	Text       string
	Mode       string
	Transition *Transition
	Message    *Message
	Key        *F010Event
	Snapshot   *Snapshot
	Welcome    *Welcome
	Sync       *Sync
	At         time.Time
}

// Delivers reports whether handle receives e.
func (e Event) Delivers(handle string) bool {
	switch e.Audience {
	case Others:
		return handle != e.Target
	case Only:
		return handle == e.Target
	default:
		return true
	}
}

// Transition is one forward daemon crossing.
type Transition struct {
	From DaemonState
	To   DaemonState
}

// OccupantView is an occupant as shown to clients.
type OccupantView struct {
	Handle         string `json:"handle"`
	Trust          int    `json:"trust"`
	EffectiveTrust int    `json:"effective_trust"`
}

// Snapshot is the broadcast projection of room state.
type Snapshot struct {
	Trust     int            `json:"room_trust"`
	Daemon    DaemonState    `json:"daemon_state"`
	Activity  int            `json:"activity_score"`
	Fragments []string       `json:"collective_fragments"`
	Occupants []OccupantView `json:"occupants"`
}

// Welcome is returned to a joining client.
type Welcome struct {
	Handle         string    `json:"handle"`
	EffectiveTrust int       `json:"effective_trust"`
	Fragments      []string  `json:"fragments"`
	Keys           []string  `json:"keys,omitempty"`
	History        []Message `json:"history"`
	Snapshot
}

// Sync is handed to a departing client for merging into local progression.
type Sync struct {
	Handle         string   `json:"handle"`
	EffectiveTrust int      `json:"effective_trust"`
	Fragments      []string `json:"fragments"`
	Keys           []string `json:"keys,omitempty"`
}

// Outcome is the result of applying one inbound event.
type Outcome struct {
	Events []Event
	// Changed is set when durable fields moved and the room should be persisted.
	Changed bool
	// Addressed is set for chat that names the narrative bot.
	Addressed bool
	// Issued is the key issued by this event, if any.
	Issued *F010Event
	// IssuanceSkipped is set when exposure was reached with no witnesses.
	IssuanceSkipped bool
	Welcome         *Welcome
	Sync            *Sync
}

func (o *Outcome) emit(e Event) {
	o.Events = append(o.Events, e)
}
