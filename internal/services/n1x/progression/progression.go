// Package progression models a player's locally persisted trust progression
// and the merge rules that reconcile it with a room's authoritative view.
package progression

import (
	"sort"
	"strings"
	"time"

	"github.com/louisbranch/n1x/internal/platform/id"
	"github.com/louisbranch/n1x/internal/services/n1x/fragment"
)

// MaxTrust is the highest trust level.
const MaxTrust = 5

// Progression is the per-player state owned by one client.
type Progression struct {
	Trust            int       `json:"trust"`
	Fragments        []string  `json:"fragments"`
	SessionCount     int       `json:"session_count"`
	LastContactAt    time.Time `json:"last_contact_at"`
	IdentityID       string    `json:"identity_id"`
	GhostUnlocked    bool      `json:"ghost_unlocked"`
	ManifestComplete bool      `json:"manifest_complete"`

	// Level3ReachedAt and Level3Session gate the 3 -> 4 transition.
	Level3ReachedAt time.Time `json:"level3_reached_at,omitempty"`
	Level3Session   int       `json:"level3_session,omitempty"`
	// PendingToken is the plaintext behind the encoded token handed out at level 2.
	PendingToken string `json:"pending_token,omitempty"`
}

// Defaults returns a fresh record with a newly generated identity.
func Defaults(now time.Time) Progression {
	return Progression{
		Fragments:     []string{},
		LastContactAt: now.UTC(),
		IdentityID:    id.MustNewID(),
	}
}

// ClampTrust forces a trust value into [0, MaxTrust].
func ClampTrust(level int) int {
	switch {
	case level < 0:
		return 0
	case level > MaxTrust:
		return MaxTrust
	default:
		return level
	}
}

// HasFragment reports whether the fragment was collected.
func (p Progression) HasFragment(fragmentID string) bool {
	for _, existing := range p.Fragments {
		if existing == fragmentID {
			return true
		}
	}
	return false
}

// FragmentSet returns the collected fragments as a set.
func (p Progression) FragmentSet() map[string]struct{} {
	set := make(map[string]struct{}, len(p.Fragments))
	for _, f := range p.Fragments {
		set[f] = struct{}{}
	}
	return set
}

// AddFragment records a fragment and rederives the manifest flag. It reports
// whether the fragment was new.
func (p *Progression) AddFragment(fragmentID string) bool {
	fragmentID = strings.TrimSpace(fragmentID)
	if fragmentID == "" || p.HasFragment(fragmentID) {
		return false
	}
	p.Fragments = normalizeFragments(append(p.Fragments, fragmentID))
	p.rederive()
	return true
}

// RaiseTrust moves trust up to level; lower values are ignored. It reports
// whether trust changed.
func (p *Progression) RaiseTrust(level int, now time.Time) bool {
	level = ClampTrust(level)
	if level <= p.Trust {
		return false
	}
	p.Trust = level
	if level >= 3 && p.Level3ReachedAt.IsZero() {
		p.Level3ReachedAt = now.UTC()
		p.Level3Session = p.SessionCount
	}
	p.rederive()
	return true
}

// BeginSession counts a new session and touches the contact time.
func (p *Progression) BeginSession(now time.Time) {
	p.SessionCount++
	p.Touch(now)
}

// Touch records activity.
func (p *Progression) Touch(now time.Time) {
	if now.After(p.LastContactAt) {
		p.LastContactAt = now.UTC()
	}
}

// ManifestThreshold is the fragment count that completes the manifest for a
// given fragment set: the solo count, or one more once the multiplayer
// fragment is part of the set.
func ManifestThreshold(fragments []string) int {
	for _, f := range fragments {
		if f == fragment.Multiplayer {
			return fragment.SoloCount + 1
		}
	}
	return fragment.SoloCount
}

func (p *Progression) rederive() {
	p.Trust = ClampTrust(p.Trust)
	p.ManifestComplete = len(p.Fragments) >= ManifestThreshold(p.Fragments)
	if p.Trust >= MaxTrust {
		p.GhostUnlocked = true
	}
}

func normalizeFragments(in []string) []string {
	set := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, f := range in {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, ok := set[f]; ok {
			continue
		}
		set[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
