package progression

import "time"

// Merge reconciles two progression snapshots. Levels take the max, sets take
// the union and flags are OR-ed; ManifestComplete is always rederived from the
// merged fragments. Merge is commutative and idempotent.
func Merge(a, b Progression) Progression {
	out := Progression{
		Trust:           ClampTrust(max(a.Trust, b.Trust)),
		Fragments:       normalizeFragments(append(append([]string{}, a.Fragments...), b.Fragments...)),
		SessionCount:    max(a.SessionCount, b.SessionCount),
		LastContactAt:   laterOf(a.LastContactAt, b.LastContactAt),
		IdentityID:      pickString(a.IdentityID, b.IdentityID),
		GhostUnlocked:   a.GhostUnlocked || b.GhostUnlocked,
		Level3ReachedAt: earlierNonZero(a.Level3ReachedAt, b.Level3ReachedAt),
		Level3Session:   minNonZero(a.Level3Session, b.Level3Session),
		PendingToken:    pickString(a.PendingToken, b.PendingToken),
	}
	out.rederive()
	return out
}

// Snapshot is the merge-ready view a room hands back on init and sync.
type Snapshot struct {
	Trust     int
	Fragments []string
}

// MergeSnapshot folds a room snapshot into a local record. Room snapshots
// carry no identity or session data, so only trust and fragments move.
func MergeSnapshot(local Progression, snap Snapshot) Progression {
	return Merge(local, Progression{Trust: snap.Trust, Fragments: snap.Fragments})
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlierNonZero(a, b time.Time) time.Time {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case a.Before(b):
		return a
	default:
		return b
	}
}

func minNonZero(a, b int) int {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	default:
		return min(a, b)
	}
}

// pickString keeps a non-empty value; two different values resolve to the
// lexically smaller one so the result is order independent.
func pickString(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	case a < b:
		return a
	default:
		return b
	}
}
