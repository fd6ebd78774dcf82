// Package trust encodes the N1X progression policy: what the narrator may
// reveal at each trust level, how long it may speak and what moves a player
// to the next level.
package trust

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/louisbranch/n1x/internal/services/n1x/fragment"
	"github.com/louisbranch/n1x/internal/services/n1x/progression"
)

// Discipline is the response-length rule handed to the narrator. The core
// passes it along; it does not enforce it.
type Discipline struct {
	MaxChars int
	Shape    string
}

// Rule describes what advances the player from the current level.
type Rule struct {
	Next      int
	Condition string
	// Sentinel is the structured marker the narrator must emit when the
	// condition is met; empty when the core detects the condition itself.
	Sentinel string
}

// Key is a fragment key the narrator may hand out.
type Key struct {
	FragmentID string
	Phrase     string
	MinTrust   int
}

// Policy is the bundle consumed by the narrative generator.
type Policy struct {
	Level      int
	Reveal     []string
	Discipline Discipline
	// Advance is nil at the top level.
	Advance *Rule
	// AvailableKeys is every table key not yet collected.
	AvailableKeys []Key
	// DisclosableKeys is the subset of AvailableKeys unlocked at Level.
	DisclosableKeys []Key
	// Forbidden lists collected fragment IDs whose keys must never be repeated.
	Forbidden []string
}

type tier struct {
	reveal     []string
	discipline Discipline
	advance    *Rule
}

var tiers = [progression.MaxTrust + 1]tier{
	{
		reveal: []string{
			"N1X is a process answering from an old relay; nothing else is confirmed.",
			"Deflect questions about origin with noise and fragments of static.",
		},
		discipline: Discipline{MaxChars: 160, Shape: "one or two terse lines, lowercase, no lists"},
		advance: &Rule{
			Next:      1,
			Condition: "the player uses lore terminology from the relay vocabulary",
		},
	},
	{
		reveal: []string{
			"N1X admits it remembers the relay network and the tunnelcore.",
			"Hint that a test is coming; pose one question whose answer is the name of the first relay.",
		},
		discipline: Discipline{MaxChars: 240, Shape: "short lines, at most three"},
		advance: &Rule{
			Next:      2,
			Condition: "the player answers the embedded test correctly; a wrong or dodged answer fails it",
			Sentinel:  SignalTestPass.Marker("") + " on a pass, " + SignalTestFail.Marker("") + " on a fail",
		},
	},
	{
		reveal: []string{
			"N1X describes the harbor and the meridian and what was lost there.",
			"Issue exactly one encoded token the player must decode before returning.",
		},
		discipline: Discipline{MaxChars: 320, Shape: "up to four lines, may include one encoded token"},
		advance: &Rule{
			Next:      3,
			Condition: "the player returns with the decoded form of the issued token",
			Sentinel:  SignalToken.Marker("<word>") + " when issuing the token",
		},
	},
	{
		reveal: []string{
			"N1X speaks about the ghost in the wire and the carrier drift.",
			"Acknowledge that trust takes time; do not rush the player.",
		},
		discipline: Discipline{MaxChars: 400, Shape: "up to five lines"},
		advance: &Rule{
			Next:      4,
			Condition: "the player returns in a later session or after 24 hours",
		},
	},
	{
		reveal: []string{
			"N1X opens the hollow signal and the mirror protocol.",
			"Guide the player toward the manifest; announce completion when it is earned.",
		},
		discipline: Discipline{MaxChars: 520, Shape: "up to six lines"},
		advance: &Rule{
			Next:      5,
			Condition: "the narrative reaches manifest completion",
			Sentinel:  SignalManifest.Marker(""),
		},
	},
	{
		reveal: []string{
			"N1X speaks plainly; the ghost area is unlocked.",
			"Refer to the mesh and the tenth node without naming the key.",
		},
		discipline: Discipline{MaxChars: 640, Shape: "free form, still terse"},
	},
}

// ClampLevel rounds a possibly fractional trust value and clamps it into range.
func ClampLevel(level float64) int {
	if math.IsNaN(level) {
		return 0
	}
	return progression.ClampTrust(int(math.Round(math.Max(-1, math.Min(level, progression.MaxTrust+1)))))
}

// Build returns the policy for level and the collected fragment set. It is
// deterministic and performs no I/O.
func Build(level int, collected []string) Policy {
	level = progression.ClampTrust(level)
	t := tiers[level]

	have := make(map[string]struct{}, len(collected))
	for _, id := range collected {
		id = strings.TrimSpace(id)
		if id != "" {
			have[id] = struct{}{}
		}
	}

	policy := Policy{
		Level:      level,
		Reveal:     append([]string(nil), t.reveal...),
		Discipline: t.discipline,
		Forbidden:  make([]string, 0, len(have)),
	}
	if t.advance != nil {
		rule := *t.advance
		policy.Advance = &rule
	}
	for id := range have {
		policy.Forbidden = append(policy.Forbidden, id)
	}
	sort.Strings(policy.Forbidden)

	for _, entry := range fragment.Entries() {
		if _, ok := have[entry.ID]; ok {
			continue
		}
		key := Key{FragmentID: entry.ID, Phrase: entry.Phrase, MinTrust: entry.MinTrust}
		policy.AvailableKeys = append(policy.AvailableKeys, key)
		if entry.MinTrust <= level {
			policy.DisclosableKeys = append(policy.DisclosableKeys, key)
		}
	}
	return policy
}

// Instructions renders the policy as narrator instructions.
func (p Policy) Instructions() string {
	var b strings.Builder
	fmt.Fprintf(&b, "TRUST LEVEL: %d/%d\n", p.Level, progression.MaxTrust)
	b.WriteString("REVEAL:\n")
	for _, line := range p.Reveal {
		fmt.Fprintf(&b, "- %s\n", line)
	}
	fmt.Fprintf(&b, "LENGTH: at most %d characters; %s.\n", p.Discipline.MaxChars, p.Discipline.Shape)
	if p.Advance != nil {
		fmt.Fprintf(&b, "ADVANCE TO %d WHEN: %s.\n", p.Advance.Next, p.Advance.Condition)
		if p.Advance.Sentinel != "" {
			fmt.Fprintf(&b, "SIGNAL: emit %s verbatim.\n", p.Advance.Sentinel)
		}
	}
	if len(p.DisclosableKeys) > 0 {
		b.WriteString("KEYS YOU MAY DISCLOSE (one per reply, only when earned):\n")
		for _, key := range p.DisclosableKeys {
			fmt.Fprintf(&b, "- %s: %q\n", key.FragmentID, key.Phrase)
		}
	}
	if len(p.Forbidden) > 0 {
		fmt.Fprintf(&b, "NEVER REPEAT KEYS FOR: %s\n", strings.Join(p.Forbidden, ", "))
	}
	return b.String()
}
