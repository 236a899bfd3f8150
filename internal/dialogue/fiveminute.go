package dialogue

// FiveMinuteRules configures how a station answers the turn right after its
// scripted five-minute question. Every field is optional.
type FiveMinuteRules struct {
	CounterQuestionKeywords []string `json:"counter_question_keywords,omitempty"`
	CounterQuestionReply    string   `json:"counter_question_reply,omitempty"`
	EndConversationKeywords []string `json:"end_conversation_keywords,omitempty"`
	EndConversationReply    string   `json:"end_conversation_reply,omitempty"`
	DefaultReply            string   `json:"default_reply,omitempty"`
}

const (
	DefaultCounterQuestionReply = "I just want to know when I should expect to feel better."
	DefaultEndConversationReply = "No, that's all."
)

var (
	defaultCounterQuestionKeywords = []string{
		"what do you mean",
		"why are you asking",
		"why do you ask",
		"can you explain what you mean",
		"what does that mean",
		"what are you asking",
		"sorry what",
	}
	defaultEndConversationKeywords = []string{
		"any other questions",
		"anything else",
		"that's all",
		"is that everything",
		"no more questions",
	}
)

// DefaultFiveMinuteRules returns the built-in keyword buckets and replies.
// DefaultReply is left empty so the station's confirm reply is used.
func DefaultFiveMinuteRules() FiveMinuteRules {
	return FiveMinuteRules{
		CounterQuestionKeywords: append([]string(nil), defaultCounterQuestionKeywords...),
		CounterQuestionReply:    DefaultCounterQuestionReply,
		EndConversationKeywords: append([]string(nil), defaultEndConversationKeywords...),
		EndConversationReply:    DefaultEndConversationReply,
	}
}

// withDefaults fills absent fields from DefaultFiveMinuteRules.
func (r *FiveMinuteRules) withDefaults() FiveMinuteRules {
	out := DefaultFiveMinuteRules()
	if r == nil {
		return out
	}
	if len(r.CounterQuestionKeywords) > 0 {
		out.CounterQuestionKeywords = r.CounterQuestionKeywords
	}
	if r.CounterQuestionReply != "" {
		out.CounterQuestionReply = r.CounterQuestionReply
	}
	if len(r.EndConversationKeywords) > 0 {
		out.EndConversationKeywords = r.EndConversationKeywords
	}
	if r.EndConversationReply != "" {
		out.EndConversationReply = r.EndConversationReply
	}
	out.DefaultReply = r.DefaultReply
	return out
}

// justAskedFiveMinuteQuestion reports whether the latest assistant turn in
// history is the station's five-minute question.
func justAskedFiveMinuteQuestion(question string, history []Turn) bool {
	want := Normalize(question)
	if want == "" {
		return false
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleAssistant {
			return Normalize(history[i].Content) == want
		}
	}
	return false
}

// fiveMinuteReply picks the desired reply bucket for utterance and clamps it
// to the script's allowed lines. It returns the spoken line, the desired line
// offered to enforcement and the enforcement outcome. The bare confirm reply
// is not enforced, so its candidate and outcome are empty.
func (t Tuning) fiveMinuteReply(utterance string, rules *FiveMinuteRules, script *Script) (string, string, EnforcementOutcome) {
	r := rules.withDefaults()
	norm := Normalize(utterance)

	var desired string
	switch {
	case containsAny(norm, r.CounterQuestionKeywords):
		desired = r.CounterQuestionReply
	case containsAny(norm, r.EndConversationKeywords):
		desired = r.EndConversationReply
	case r.DefaultReply != "":
		desired = r.DefaultReply
	default:
		return PickConfirmReply(script), "", ""
	}

	if line, outcome, ok := Canonicalize(desired, script, t.CanonicalThreshold); ok {
		return line, desired, outcome
	}
	return PickConfirmReply(script), desired, EnforcementFallback
}
