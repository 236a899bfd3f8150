package dialogue

import (
	"strings"
)

const (
	userMarker      = "user:"
	assistantMarker = "assistant:"
)

// ScriptPair is one scripted exchange: the trigger a student might say and the
// reply the simulated patient must speak.
type ScriptPair struct {
	Trigger string `json:"trigger"`
	Reply   string `json:"reply"`
}

// Script is the parsed form of a station script blob. It is immutable once
// built and safe to share between goroutines.
type Script struct {
	raw        string
	pairs      []ScriptPair
	allowed    []string
	allowedSet map[string]struct{}

	unmatchedTriggers []string
	orphanReplies     []string
}

// ParseScript scans the User:/Assistant: micro-syntax in raw.
//
// A User: line followed by an Assistant: line (other non-marker lines in
// between are skipped) yields a pair, after which the pending trigger is
// cleared. Any User: line, blank or not, ends the pending trigger. Every
// non-empty Assistant: line is an allowed reply, paired or not.
func ParseScript(raw string) *Script {
	s := &Script{
		raw:        raw,
		allowedSet: make(map[string]struct{}),
	}
	if strings.TrimSpace(raw) == "" {
		return s
	}

	pending := ""
	hasPending := false
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if text, ok := cutMarker(line, userMarker); ok {
			if hasPending {
				s.unmatchedTriggers = append(s.unmatchedTriggers, pending)
			}
			// A blank User: line closes the previous trigger without opening one.
			pending, hasPending = text, text != ""
			continue
		}
		text, ok := cutMarker(line, assistantMarker)
		if !ok || text == "" {
			continue
		}
		s.addAllowed(text)
		if !hasPending {
			s.orphanReplies = append(s.orphanReplies, text)
			continue
		}
		s.pairs = append(s.pairs, ScriptPair{Trigger: pending, Reply: text})
		pending, hasPending = "", false
	}
	if hasPending {
		s.unmatchedTriggers = append(s.unmatchedTriggers, pending)
	}
	return s
}

func cutMarker(line, marker string) (string, bool) {
	if len(line) < len(marker) || !strings.EqualFold(line[:len(marker)], marker) {
		return "", false
	}
	return strings.TrimSpace(line[len(marker):]), true
}

func (s *Script) addAllowed(line string) {
	if _, ok := s.allowedSet[line]; ok {
		return
	}
	s.allowedSet[line] = struct{}{}
	s.allowed = append(s.allowed, line)
}

// ExtractPairs returns the ordered trigger/reply pairs found in raw.
func ExtractPairs(raw string) []ScriptPair {
	return ParseScript(raw).Pairs()
}

// ExtractAllowedReplies returns the set of every line following an
// Assistant: marker in raw.
func ExtractAllowedReplies(raw string) map[string]struct{} {
	s := ParseScript(raw)
	out := make(map[string]struct{}, len(s.allowedSet))
	for line := range s.allowedSet {
		out[line] = struct{}{}
	}
	return out
}

// Empty reports whether the script carried no non-blank text.
func (s *Script) Empty() bool {
	return s == nil || strings.TrimSpace(s.raw) == ""
}

// Raw returns the original script blob.
func (s *Script) Raw() string {
	if s == nil {
		return ""
	}
	return s.raw
}

// Pairs returns a copy of the parsed pairs in script order.
func (s *Script) Pairs() []ScriptPair {
	if s == nil {
		return nil
	}
	return append([]ScriptPair(nil), s.pairs...)
}

// AllowedReplies returns the distinct allowed lines in first-seen order.
func (s *Script) AllowedReplies() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.allowed...)
}

// IsAllowed reports whether line is verbatim an allowed reply.
func (s *Script) IsAllowed(line string) bool {
	if s == nil {
		return false
	}
	_, ok := s.allowedSet[line]
	return ok
}

// LintReport summarises how a script parsed, for station editors.
type LintReport struct {
	Pairs             []ScriptPair `json:"pairs"`
	AllowedReplyCount int          `json:"allowed_reply_count"`
	UnmatchedTriggers []string     `json:"unmatched_triggers,omitempty"`
	OrphanReplies     []string     `json:"orphan_replies,omitempty"`
	Empty             bool         `json:"empty"`
}

// Lint reports the parsed pairs together with triggers that never received a
// reply and replies that had no trigger.
func (s *Script) Lint() LintReport {
	if s == nil {
		return LintReport{Empty: true}
	}
	return LintReport{
		Pairs:             s.Pairs(),
		AllowedReplyCount: len(s.AllowedReplies()),
		UnmatchedTriggers: append([]string(nil), s.unmatchedTriggers...),
		OrphanReplies:     append([]string(nil), s.orphanReplies...),
		Empty:             s.Empty(),
	}
}
