package dialogue

import "strings"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one entry of the conversation so far.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HistoryLimits bounds the history handed to the selector.
type HistoryLimits struct {
	MaxTurns int
	MaxChars int
}

// DefaultHistoryLimits keeps the last 12 turns of at most 600 characters.
func DefaultHistoryLimits() HistoryLimits {
	return HistoryLimits{MaxTurns: 12, MaxChars: 600}
}

// SanitizeHistory drops turns with an unknown role or blank content,
// truncates content to limits.MaxChars runes and keeps the most recent
// limits.MaxTurns entries. Non-positive limits disable the respective cap.
func SanitizeHistory(turns []Turn, limits HistoryLimits) []Turn {
	out := make([]Turn, 0, len(turns))
	for _, t := range turns {
		role := strings.ToLower(strings.TrimSpace(t.Role))
		if role != RoleUser && role != RoleAssistant {
			continue
		}
		content := strings.TrimSpace(t.Content)
		if content == "" {
			continue
		}
		if limits.MaxChars > 0 {
			if runes := []rune(content); len(runes) > limits.MaxChars {
				content = string(runes[:limits.MaxChars])
			}
		}
		out = append(out, Turn{Role: role, Content: content})
	}
	if limits.MaxTurns > 0 && len(out) > limits.MaxTurns {
		out = out[len(out)-limits.MaxTurns:]
	}
	return out
}
