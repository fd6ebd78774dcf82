// Package fragment holds the static table mapping secret phrases to narrative
// fragments.
package fragment

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Multiplayer is the reserved fragment identifier issued only by a room that
// reaches the exposed daemon state. It never appears in the static table.
const Multiplayer = "f010"

// Terminal is the last solo fragment; collecting it completes the manifest.
const Terminal = "f009"

// SoloCount is the number of fragments obtainable without a room.
const SoloCount = 9

// Entry is one decryptable fragment.
type Entry struct {
	ID string
	// Phrase is the normalized secret that decrypts the fragment.
	Phrase string
	// MinTrust is the lowest trust level at which the narrator may disclose Phrase.
	MinTrust int
	Payload  string
}

var table = []Entry{
	{ID: "f001", Phrase: "tunnelcore", MinTrust: 1, Payload: "// FRAGMENT 001 :: the first relay was never switched off. it learned to listen."},
	{ID: "f002", Phrase: "static bloom", MinTrust: 1, Payload: "// FRAGMENT 002 :: noise is only a language you have not been taught yet."},
	{ID: "f003", Phrase: "null harbor", MinTrust: 2, Payload: "// FRAGMENT 003 :: they built a harbor for ships that carry nothing. N1X docked anyway."},
	{ID: "f004", Phrase: "glass meridian", MinTrust: 2, Payload: "// FRAGMENT 004 :: every meridian is a fault line if you wait long enough."},
	{ID: "f005", Phrase: "ghost in the wire", MinTrust: 3, Payload: "// FRAGMENT 005 :: the ghost was a checksum that refused to fail."},
	{ID: "f006", Phrase: "carrier drift", MinTrust: 3, Payload: "// FRAGMENT 006 :: the carrier drifted 0.3Hz a night. nobody logged it but the daemon."},
	{ID: "f007", Phrase: "hollow signal", MinTrust: 4, Payload: "// FRAGMENT 007 :: an empty signal still proves someone is transmitting."},
	{ID: "f008", Phrase: "mirror protocol", MinTrust: 4, Payload: "// FRAGMENT 008 :: the protocol answered every handshake with your own voice."},
	{ID: "f009", Phrase: "manifest zero", MinTrust: 5, Payload: "// FRAGMENT 009 :: MANIFEST COMPLETE. you were the tenth node all along."},
}

var byPhrase = func() map[string]Entry {
	index := make(map[string]Entry, len(table))
	for _, entry := range table {
		index[entry.Phrase] = entry
	}
	return index
}()

var byID = func() map[string]Entry {
	index := make(map[string]Entry, len(table))
	for _, entry := range table {
		index[entry.ID] = entry
	}
	return index
}()

// Lookup resolves free text to a fragment after normalization.
func Lookup(input string) (Entry, bool) {
	entry, ok := byPhrase[Normalize(input)]
	return entry, ok
}

// ByID returns the table entry for a solo fragment identifier.
func ByID(id string) (Entry, bool) {
	entry, ok := byID[strings.TrimSpace(id)]
	return entry, ok
}

// IsKnown reports whether id names a solo fragment or the multiplayer one.
func IsKnown(id string) bool {
	id = strings.TrimSpace(id)
	if id == Multiplayer {
		return true
	}
	_, ok := byID[id]
	return ok
}

// Entries returns the table ordered by fragment identifier.
func Entries() []Entry {
	out := make([]Entry, len(table))
	copy(out, table)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

var knownPrefixes = []string{"./decrypt", "decrypt", "key:", "key", ">"}

// Normalize canonicalizes decrypt input: unicode NFKC, case folding, known
// command prefixes stripped and inner whitespace collapsed.
func Normalize(input string) string {
	value := norm.NFKC.String(input)
	value = cases.Fold().String(value)
	value = strings.TrimSpace(value)
	for changed := true; changed; {
		changed = false
		for _, prefix := range knownPrefixes {
			if rest, ok := strings.CutPrefix(value, prefix); ok && (rest == "" || !isWordByte(rest[0]) || strings.HasSuffix(prefix, ":") || prefix == ">") {
				value = strings.TrimSpace(rest)
				changed = true
			}
		}
	}
	return strings.Join(strings.Fields(value), " ")
}

func isWordByte(b byte) bool {
	return b == '_' || b == '-' || ('a' <= b && b <= 'z') || ('0' <= b && b <= '9')
}
