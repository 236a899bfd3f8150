package dialogue

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// IntentLabel is the coarse dialogue act of a student utterance.
type IntentLabel string

const (
	IntentConfirm   IntentLabel = "confirm"
	IntentQuestion  IntentLabel = "question"
	IntentStatement IntentLabel = "statement"
)

// ParseIntentLabel maps a caller-supplied hint onto a label. Unknown or empty
// values report false.
func ParseIntentLabel(s string) (IntentLabel, bool) {
	switch IntentLabel(strings.ToLower(strings.TrimSpace(s))) {
	case IntentConfirm:
		return IntentConfirm, true
	case IntentQuestion:
		return IntentQuestion, true
	case IntentStatement:
		return IntentStatement, true
	}
	return "", false
}

// Intent is the classifier verdict. Respond is false when the patient should
// stay silent.
type Intent struct {
	Label   IntentLabel `json:"label"`
	Respond bool        `json:"respond"`
}

// DefaultTrailingConfirmMinLen is the shortest raw utterance for which a
// trailing "ok"/"okay" is read as a confirmation request. Tuned against
// speech-to-text output that drops terminal punctuation.
const DefaultTrailingConfirmMinLen = 18

var (
	defaultConfirmTokens = []string{"ok", "okay", "yes"}

	defaultConfirmPhrases = []string{
		"do you understand",
		"does that make sense",
		"make sense",
		"is that okay",
		"is that ok",
		"is that alright",
		"any questions",
		"sound good",
		"are you happy with that",
		"are you okay with that",
	}

	defaultQuestionPrefixes = []string{
		"what ", "why ", "how ", "when ", "where ", "which ", "who ",
		"do you ", "does ", "did ", "are you ", "is there ", "have you ", "can i ",
	}

	defaultQuestionPhrases = []string{
		"how can i help",
		"can you tell me",
		"could you tell me",
		"can you describe",
		"could you describe",
		"would you",
		"tell me about",
		"tell me more",
		"i was wondering",
	}

	trailingConfirmPattern = regexp.MustCompile(`\b(?:ok|okay)\s*$`)
)

// IntentClassifier labels utterances with lexical heuristics. The phrase
// lists and the trailing-confirm floor are empirically tuned; override them
// per deployment rather than editing the defaults.
type IntentClassifier struct {
	ConfirmTokens         []string
	ConfirmPhrases        []string
	QuestionPrefixes      []string
	QuestionPhrases       []string
	TrailingConfirmMinLen int
}

// NewIntentClassifier returns a classifier populated with the default lists.
func NewIntentClassifier() *IntentClassifier {
	return &IntentClassifier{
		ConfirmTokens:         append([]string(nil), defaultConfirmTokens...),
		ConfirmPhrases:        append([]string(nil), defaultConfirmPhrases...),
		QuestionPrefixes:      append([]string(nil), defaultQuestionPrefixes...),
		QuestionPhrases:       append([]string(nil), defaultQuestionPhrases...),
		TrailingConfirmMinLen: DefaultTrailingConfirmMinLen,
	}
}

var defaultClassifier = NewIntentClassifier()

// Classify labels u with the default classifier.
func Classify(u string) Intent {
	return defaultClassifier.Classify(u)
}

// Classify applies the rules in order; the first match wins.
//
//  1. bare confirm token ("ok", "okay", "yes")
//  2. explicit confirm phrase ("do you understand", ...)
//  3. long utterance trailing off with "ok"/"okay"
//  4. question mark or interrogative phrasing
//  5. statement
func (c *IntentClassifier) Classify(utterance string) Intent {
	norm := Normalize(utterance)

	for _, tok := range c.ConfirmTokens {
		if norm == Normalize(tok) {
			return Intent{Label: IntentConfirm, Respond: true}
		}
	}
	if containsAny(norm, c.ConfirmPhrases) {
		return Intent{Label: IntentConfirm, Respond: true}
	}
	if utf8.RuneCountInString(utterance) >= c.TrailingConfirmMinLen &&
		trailingConfirmPattern.MatchString(strings.ToLower(utterance)) {
		return Intent{Label: IntentConfirm, Respond: true}
	}
	if c.isQuestion(norm) {
		return Intent{Label: IntentQuestion, Respond: true}
	}
	return Intent{Label: IntentStatement, Respond: false}
}

func (c *IntentClassifier) isQuestion(norm string) bool {
	if strings.Contains(norm, "?") {
		return true
	}
	for _, prefix := range c.QuestionPrefixes {
		if strings.HasPrefix(norm, prefix) {
			return true
		}
	}
	return containsAny(norm, c.QuestionPhrases)
}
