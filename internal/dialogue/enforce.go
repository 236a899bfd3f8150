package dialogue

import "strings"

// EnforcementOutcome records how the enforcement filter treated a candidate.
type EnforcementOutcome string

const (
	// EnforcementExact means the candidate was verbatim an allowed line.
	EnforcementExact EnforcementOutcome = "exact"
	// EnforcementCanonical means the candidate was swapped for the allowed
	// line it normalizes to or nearly matches.
	EnforcementCanonical EnforcementOutcome = "canonical"
	// EnforcementFallback means the candidate was discarded.
	EnforcementFallback EnforcementOutcome = "fallback"
)

var confirmCandidates = []string{"ok", "Ok", "okay", "Okay", "yes", "Yes"}

// Canonicalize maps candidate onto an allowed line of script: verbatim
// membership first, then normalized equality, then the best Jaccard match at
// or above threshold (first line wins ties).
func Canonicalize(candidate string, script *Script, threshold float64) (string, EnforcementOutcome, bool) {
	if script == nil || strings.TrimSpace(candidate) == "" {
		return "", "", false
	}
	if script.IsAllowed(candidate) {
		return candidate, EnforcementExact, true
	}
	trimmed := strings.TrimSpace(candidate)
	if script.IsAllowed(trimmed) {
		return trimmed, EnforcementExact, true
	}

	norm := Normalize(candidate)
	best := ""
	bestScore := -1.0
	for _, line := range script.allowed {
		if norm != "" && Normalize(line) == norm {
			return line, EnforcementCanonical, true
		}
		if score := Jaccard(candidate, line); score > bestScore {
			best, bestScore = line, score
		}
	}
	if best != "" && bestScore >= threshold {
		return best, EnforcementCanonical, true
	}
	return "", "", false
}

// Enforce returns candidate if it is an allowed line, its canonical allowed
// line when one is close enough, and fallback otherwise. The default
// canonicalization threshold applies.
func Enforce(candidate string, script *Script, fallback string) string {
	reply, _ := DefaultTuning().enforce(candidate, script, fallback)
	return reply
}

func (t Tuning) enforce(candidate string, script *Script, fallback string) (string, EnforcementOutcome) {
	if line, outcome, ok := Canonicalize(candidate, script, t.CanonicalThreshold); ok {
		return line, outcome
	}
	return fallback, EnforcementFallback
}

// PickConfirmReply returns the first of ok/Ok/okay/Okay/yes/Yes that the
// script allows. Bare "ok" is returned when none is scripted; confirmations
// are always safe to emit.
func PickConfirmReply(script *Script) string {
	for _, c := range confirmCandidates {
		if script.IsAllowed(c) {
			return c
		}
	}
	return "ok"
}
