package dialogue

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const enforceScript = `User: How long has it been going on?
Assistant: I have had this headache for three days
User: Any allergies?
Assistant: No allergies that I know of.
User: Do you understand?
Assistant: Okay`

func TestEnforce(t *testing.T) {
	script := ParseScript(enforceScript)
	const fallback = "I'm not sure."

	tests := []struct {
		name      string
		candidate string
		want      string
	}{
		{"exact line", "Okay", "Okay"},
		{"surrounding whitespace", "  No allergies that I know of.\n", "No allergies that I know of."},
		{"normalized equality", "no allergies that i know of", "No allergies that I know of."},
		{"near miss above threshold", "I have had this headache for three days now", "I have had this headache for three days"},
		{"near miss below threshold", "I have had this headache for two days", fallback},
		{"invented content", "I also take warfarin and had a stroke last year.", fallback},
		{"empty", "", fallback},
		{"blank", "   ", fallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Enforce(tt.candidate, script, fallback))
		})
	}
}

func TestCanonicalize_Outcomes(t *testing.T) {
	script := ParseScript(enforceScript)

	line, outcome, ok := Canonicalize("Okay", script, 0.86)
	assert.True(t, ok)
	assert.Equal(t, "Okay", line)
	assert.Equal(t, EnforcementExact, outcome)

	line, outcome, ok = Canonicalize("okay!", script, 0.86)
	assert.True(t, ok)
	assert.Equal(t, "Okay", line)
	assert.Equal(t, EnforcementCanonical, outcome)

	_, _, ok = Canonicalize("something else entirely", script, 0.86)
	assert.False(t, ok)

	_, _, ok = Canonicalize("Okay", nil, 0.86)
	assert.False(t, ok)
}

func TestEnforce_NoAllowedLines(t *testing.T) {
	script := ParseScript("You are a patient. Answer briefly.")
	assert.Equal(t, "fallback", Enforce("Hello there", script, "fallback"))
}

// Every output of the filter must be an allowed line or the fallback,
// whatever the candidate looks like.
func TestEnforce_OnlyAllowedLinesOrFallback(t *testing.T) {
	script := ParseScript(enforceScript)
	const fallback = "FALLBACK"

	vocab := []string{"i", "have", "had", "this", "headache", "for", "three", "days",
		"no", "allergies", "that", "know", "of", "okay", "ok", "warfarin", "?", "!", ".", ""}
	vocab = append(vocab, script.AllowedReplies()...)

	rng := rand.New(rand.NewSource(20240611))
	for i := 0; i < 5000; i++ {
		var b strings.Builder
		n := rng.Intn(12)
		for j := 0; j < n; j++ {
			if rng.Intn(6) == 0 {
				b.WriteRune(rune(rng.Intn(0x2FF) + 1))
			} else {
				b.WriteString(vocab[rng.Intn(len(vocab))])
			}
			if rng.Intn(3) > 0 {
				b.WriteByte(' ')
			}
		}
		candidate := b.String()

		got := Enforce(candidate, script, fallback)
		if got != fallback && !script.IsAllowed(got) {
			t.Fatalf("candidate %q produced %q which is neither allowed nor the fallback", candidate, got)
		}
	}
}

func TestPickConfirmReply(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"lowercase ok first", "User: a\nAssistant: Okay\nUser: b\nAssistant: ok", "ok"},
		{"Okay over yes", "User: a\nAssistant: yes\nUser: b\nAssistant: Okay", "Okay"},
		{"Yes only", "User: a\nAssistant: Yes", "Yes"},
		{"none scripted", "User: a\nAssistant: Sure thing", "ok"},
		{"empty script", "", "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PickConfirmReply(ParseScript(tt.script)))
		})
	}
}
