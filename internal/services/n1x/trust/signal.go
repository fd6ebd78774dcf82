package trust

import (
	"encoding/base64"
	"regexp"
	"strings"
)

// Kind names a structured event the narrator signals in its output.
type Kind string

const (
	SignalTestPass     Kind = "test-pass"
	SignalTestFail     Kind = "test-fail"
	SignalToken        Kind = "token"
	SignalTokenDecoded Kind = "token-decoded"
	SignalManifest     Kind = "manifest"
)

// Marker renders the sentinel for k, e.g. "[[n1x:token=orbit]]".
func (k Kind) Marker(arg string) string {
	if arg == "" {
		return "[[n1x:" + string(k) + "]]"
	}
	return "[[n1x:" + string(k) + "=" + arg + "]]"
}

// Signal is one parsed sentinel.
type Signal struct {
	Kind Kind
	Arg  string
}

var sentinelPattern = regexp.MustCompile(`\[\[n1x:([a-z-]+)(?:=([^\]\s]+))?\]\]`)

// ParseSignals extracts sentinels from narrator output and returns the text
// shown to players. Token sentinels are replaced by the encoded token; all
// other sentinels, known or not, are removed.
func ParseSignals(output string) (string, []Signal) {
	var signals []Signal
	clean := sentinelPattern.ReplaceAllStringFunc(output, func(match string) string {
		parts := sentinelPattern.FindStringSubmatch(match)
		kind := Kind(parts[1])
		arg := strings.ToLower(strings.TrimSpace(parts[2]))
		switch kind {
		case SignalTestPass, SignalTestFail, SignalTokenDecoded, SignalManifest:
			signals = append(signals, Signal{Kind: kind})
			return ""
		case SignalToken:
			if words := tokenize(arg); len(words) != 1 || words[0] != arg {
				return ""
			}
			signals = append(signals, Signal{Kind: kind, Arg: arg})
			return EncodeToken(arg)
		default:
			return ""
		}
	})
	return strings.TrimSpace(collapseSpaces(clean)), signals
}

// EncodeToken is the encoding players must reverse to pass level 2.
func EncodeToken(word string) string {
	return base64.StdEncoding.EncodeToString([]byte(strings.ToLower(strings.TrimSpace(word))))
}

func collapseSpaces(value string) string {
	lines := strings.Split(value, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.Join(lines, "\n")
}
