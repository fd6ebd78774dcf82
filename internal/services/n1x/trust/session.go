package trust

import (
	"time"

	"github.com/louisbranch/n1x/internal/services/n1x/progression"
)

// ReturnWindow is how long after reaching level 3 a player advances without
// starting a new session.
const ReturnWindow = 24 * time.Hour

// Advance reports one level change and why it happened.
type Advance struct {
	From   int
	To     int
	Reason string
}

// Session applies the solo advancement rules to one player session. Each
// observation advances at most one level and never lowers trust.
type Session struct {
	degraded bool
}

// Begin starts a session on p: it counts the session and applies the 3 -> 4
// return gate.
func (s *Session) Begin(p *progression.Progression, now time.Time) *Advance {
	s.degraded = false
	p.BeginSession(now)
	return s.checkReturnGate(p, now)
}

// Degraded reports whether a failed test has reduced this session to level 0
// behaviour.
func (s *Session) Degraded() bool {
	return s.degraded
}

// EffectiveLevel is the level used to build the narrator policy this session.
// Stored trust is untouched by degradation.
func (s *Session) EffectiveLevel(p progression.Progression) int {
	if s.degraded {
		return 0
	}
	return p.Trust
}

// Policy builds the narrator policy for the current session state.
func (s *Session) Policy(p progression.Progression) Policy {
	return Build(s.EffectiveLevel(p), p.Fragments)
}

// ObserveInput applies rules detectable from player text: lore terms (0 -> 1),
// the decoded token (2 -> 3) and the return gate (3 -> 4).
func (s *Session) ObserveInput(p *progression.Progression, input string, now time.Time) *Advance {
	p.Touch(now)
	switch p.Trust {
	case 0:
		if ContainsLore(input) {
			return raise(p, 1, "lore term", now)
		}
	case 2:
		if p.PendingToken != "" && containsToken(input, p.PendingToken) {
			adv := raise(p, 3, "token decoded", now)
			p.PendingToken = ""
			return adv
		}
	case 3:
		return s.checkReturnGate(p, now)
	}
	return nil
}

// ObserveOutput parses narrator sentinels, applies the matching rule and
// returns the text to show.
func (s *Session) ObserveOutput(p *progression.Progression, output string, now time.Time) (string, *Advance) {
	clean, signals := ParseSignals(output)
	var adv *Advance
	for _, signal := range signals {
		if adv != nil {
			break
		}
		switch signal.Kind {
		case SignalTestPass:
			if p.Trust == 1 && !s.degraded {
				adv = raise(p, 2, "test passed", now)
			}
		case SignalTestFail:
			if p.Trust == 1 {
				s.degraded = true
			}
		case SignalToken:
			if p.Trust == 2 && p.PendingToken == "" {
				p.PendingToken = signal.Arg
			}
		case SignalTokenDecoded:
			if p.Trust == 2 {
				adv = raise(p, 3, "token decoded", now)
				p.PendingToken = ""
			}
		case SignalManifest:
			if p.Trust == 4 {
				adv = raise(p, 5, "manifest", now)
			}
		}
	}
	return clean, adv
}

func (s *Session) checkReturnGate(p *progression.Progression, now time.Time) *Advance {
	if p.Trust != 3 {
		return nil
	}
	if p.Level3ReachedAt.IsZero() {
		// Level 3 arrived through a room merge; start the clock now.
		p.Level3ReachedAt = now.UTC()
		p.Level3Session = p.SessionCount
		return nil
	}
	returned := p.SessionCount > p.Level3Session
	elapsed := now.Sub(p.Level3ReachedAt) >= ReturnWindow
	if returned || elapsed {
		return raise(p, 4, "returned", now)
	}
	return nil
}

func raise(p *progression.Progression, to int, reason string, now time.Time) *Advance {
	from := p.Trust
	if !p.RaiseTrust(to, now) {
		return nil
	}
	return &Advance{From: from, To: p.Trust, Reason: reason}
}

func containsToken(input, token string) bool {
	for _, word := range tokenize(input) {
		if word == token {
			return true
		}
	}
	return false
}
