// Package dialogue selects the scripted patient line to speak in reply to a
// student utterance during a simulated OSCE encounter.
//
// Every reply leaving this package is either a line an admin authored after an
// "Assistant:" marker in the station script, a canonicalized near-match of one,
// or a designated fallback. Generated text is never returned as-is.
package dialogue

import (
	"strings"
	"unicode"
)

// Normalize lower-cases s, drops everything except ASCII letters, digits,
// whitespace and '?', then collapses whitespace runs to a single space.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range strings.ToLower(s) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '?':
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			pendingSpace = true
		}
	}
	return b.String()
}

// Tokenize splits the normalized form of s on whitespace.
func Tokenize(s string) []string {
	return strings.Fields(Normalize(s))
}

// Jaccard returns |A∩B| / |A∪B| over the token sets of a and b, or 0 when
// either side has no tokens.
func Jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	tokens := Tokenize(s)
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}

// containsAny reports whether normalized text contains any of the phrases,
// each normalized the same way before comparison.
func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		p = Normalize(p)
		if p != "" && strings.Contains(text, p) {
			return true
		}
	}
	return false
}
