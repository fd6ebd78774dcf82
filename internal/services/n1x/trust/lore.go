package trust

import (
	"strings"
	"unicode"
)

// LoreTerms is the fixed vocabulary that advances a player from 0 to 1.
var LoreTerms = []string{
	"n1x",
	"daemon",
	"tunnelcore",
	"relay",
	"ghost in the wire",
	"carrier drift",
	"null harbor",
	"static bloom",
	"mesh",
}

// ContainsLore reports whether text uses any lore term as whole words.
func ContainsLore(text string) bool {
	words := tokenize(text)
	if len(words) == 0 {
		return false
	}
	for _, term := range LoreTerms {
		if containsSequence(words, strings.Fields(term)) {
			return true
		}
	}
	return false
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsSequence(words, seq []string) bool {
	if len(seq) == 0 || len(seq) > len(words) {
		return false
	}
	for i := 0; i+len(seq) <= len(words); i++ {
		match := true
		for j := range seq {
			if words[i+j] != seq[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
