package server

import (
	"time"

	"github.com/louisbranch/n1x/internal/services/n1x/room"
)

// Inbound intents.
const (
	intentJoin     = "join"
	intentChat     = "chat"
	intentFragment = "fragment"
	intentLeave    = "leave"
)

// inFrame is a client intent.
type inFrame struct {
	Type      string   `json:"type"`
	Room      string   `json:"room,omitempty"`
	Handle    string   `json:"handle,omitempty"`
	Trust     float64  `json:"trust,omitempty"`
	Fragments []string `json:"fragments,omitempty"`
	Text      string   `json:"text,omitempty"`
	Fragment  string   `json:"fragment,omitempty"`
}

// Frame is a server broadcast. Fields are flat; which ones are set depends
// on Type. The terminal client decodes the same shape.
type Frame struct {
	Type      string         `json:"type"`
	Room      string         `json:"room,omitempty"`
	Handle    string         `json:"handle,omitempty"`
	Text      string         `json:"text,omitempty"`
	Mode      string         `json:"mode,omitempty"`
	Seq       int64          `json:"seq,omitempty"`
	From      string         `json:"from,omitempty"`
	To        string         `json:"to,omitempty"`
	Key       string         `json:"key,omitempty"`
	Witnesses []string       `json:"witnesses,omitempty"`
	Effective *int           `json:"effective_trust,omitempty"`
	Fragments []string       `json:"fragments,omitempty"`
	Keys      []string       `json:"keys,omitempty"`
	History   []room.Message `json:"history,omitempty"`
	*room.Snapshot
	TS int64 `json:"ts"`
}

func frameFor(roomID string, e room.Event) Frame {
	f := Frame{
		Type:   string(e.Type),
		Room:   roomID,
		Handle: e.Handle,
		Text:   e.Text,
		Mode:   e.Mode,
		TS:     millis(e.At),
	}
	if e.Message != nil {
		f.Seq = e.Message.Seq
	}
	if e.Transition != nil {
		f.From = e.Transition.From.String()
		f.To = e.Transition.To.String()
	}
	if e.Key != nil {
		f.Key = e.Key.Key
		f.Witnesses = e.Key.Witnesses
	}
	if e.Snapshot != nil {
		f.Snapshot = e.Snapshot
	}
	if w := e.Welcome; w != nil {
		effective := w.EffectiveTrust
		f.Effective = &effective
		f.Fragments = w.Fragments
		f.Keys = w.Keys
		f.History = w.History
		snapshot := w.Snapshot
		f.Snapshot = &snapshot
	}
	if s := e.Sync; s != nil {
		effective := s.EffectiveTrust
		f.Effective = &effective
		f.Fragments = s.Fragments
		f.Keys = s.Keys
	}
	return f
}

func millis(at time.Time) int64 {
	if at.IsZero() {
		at = time.Now()
	}
	return at.UnixMilli()
}
