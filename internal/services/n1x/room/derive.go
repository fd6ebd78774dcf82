package room

import (
	"github.com/louisbranch/n1x/internal/services/n1x/fragment"
	"github.com/louisbranch/n1x/internal/services/n1x/progression"
)

// Thresholds.
const (
	AwareActivity    = 50
	ActiveActivity   = 150
	ActiveTrust      = 2
	ExposedFragments = fragment.SoloCount + 1
)

// trustActivity[i] is the activity needed for room trust i+1.
var trustActivity = [progression.MaxTrust]int{30, 100, 250, 500, 1000}

// Derived holds the fields recomputed after every mutating event.
type Derived struct {
	Trust  int
	Daemon DaemonState
}

// DeriveRoomFields computes room trust and daemon state from cumulative
// activity and the collective fragment set. Room trust never drops below
// currentTrust, and the daemon state is a function of inputs that only grow.
func DeriveRoomFields(activity int, fragments []string, currentTrust int) Derived {
	count := len(knownFragments(fragments))

	trust := 0
	if count >= ExposedFragments {
		trust = progression.MaxTrust
	} else {
		for level, threshold := range trustActivity {
			if activity >= threshold {
				trust = level + 1
			}
		}
	}
	trust = max(trust, progression.ClampTrust(currentTrust))

	daemon := Dormant
	switch {
	case count >= ExposedFragments || trust >= progression.MaxTrust:
		daemon = Exposed
	case activity >= ActiveActivity || trust >= ActiveTrust:
		daemon = Active
	case activity >= AwareActivity:
		daemon = Aware
	}
	return Derived{Trust: trust, Daemon: daemon}
}
