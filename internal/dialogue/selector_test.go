package dialogue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/osce-practice-platform/internal/llm"
)

type stubLLMClient struct {
	response llm.Response
	err      error
	calls    int
	lastReq  llm.Request
}

func (s *stubLLMClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return llm.Response{}, s.err
	}
	return s.response, nil
}

const fiveMinuteScript = `User: Hi how are you
Assistant: Hi good
User: We have about five minutes left
Assistant: Is there anything you want to ask me?
User: why are you asking that
Assistant: Because I was worried.
User: is there anything you want to know
Assistant: I just want to know when I should expect to feel better.
User: we are finished
Assistant: No, that's all.
User: Do you understand?
Assistant: Okay`

const fiveMinuteQuestion = "Is there anything you want to ask me?"

func TestChooseScriptReply(t *testing.T) {
	script := ParseScript("User: Hi how are you\nAssistant: Hi good\nUser: Do you understand?\nAssistant: Okay")

	match, ok := ChooseScriptReply(script, "how are you doing")
	require.True(t, ok)
	assert.Equal(t, "Hi good", match.Pair.Reply)
	assert.GreaterOrEqual(t, match.Score, 0.42)

	_, ok = ChooseScriptReply(script, "completely unrelated gibberish xyz")
	assert.False(t, ok)

	_, ok = ChooseScriptReply(ParseScript(""), "hi")
	assert.False(t, ok)
}

func TestChooseScriptReply_FirstPairWinsTies(t *testing.T) {
	script := ParseScript("User: hello\nAssistant: First\nUser: hello\nAssistant: Second")
	match, ok := ChooseScriptReply(script, "hello")
	require.True(t, ok)
	assert.Equal(t, "First", match.Pair.Reply)
}

func TestTriggerScore_Bonuses(t *testing.T) {
	tuning := DefaultTuning()
	assert.InDelta(t, 1.35, tuning.triggerScore("any pain?", "any pain?"), 1e-9)
	assert.InDelta(t, 0.5+0.25, tuning.triggerScore("pain", "any pain"), 1e-9)
	assert.InDelta(t, 0.0, tuning.triggerScore("", "any pain"), 1e-9)
}

func TestSelect_EndToEnd(t *testing.T) {
	script := ParseScript("User: Hi\nAssistant: Hello\nUser: any questions\nAssistant: ok")
	sel := NewSelector(nil)

	res, err := sel.Select(context.Background(), Request{Script: script, Utterance: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Hello", res.ReplyText)
	assert.Equal(t, RouteFastScriptMatch, res.Route)
	require.NotNil(t, res.MatchScore)
	assert.InDelta(t, 1.25, *res.MatchScore, 1e-9)
	assert.Equal(t, EnforcementExact, res.Enforcement)

	res, err = sel.Select(context.Background(), Request{Script: script, Utterance: "okay", IntentHint: IntentConfirm})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.ReplyText)
	assert.Equal(t, RouteFastConfirm, res.Route)
	assert.Nil(t, res.MatchScore)
}

func TestSelect_MatchScoreRounded(t *testing.T) {
	script := ParseScript("User: Hi how are you\nAssistant: Hi good\nUser: one two three\nAssistant: Okay")
	res, err := NewSelector(nil).Select(context.Background(), Request{Script: script, Utterance: "how are you doing"})
	require.NoError(t, err)
	require.NotNil(t, res.MatchScore)
	assert.InDelta(t, 0.6, *res.MatchScore, 1e-9)

	res, err = NewSelector(nil).Select(context.Background(), Request{Script: script, Utterance: "one two three four five six"})
	require.NoError(t, err)
	require.NotNil(t, res.MatchScore)
	// 3/6 + 0.25 substring bonus
	assert.Equal(t, 0.75, *res.MatchScore)
}

func TestSelect_NoScriptFallback(t *testing.T) {
	sel := NewSelector(&stubLLMClient{response: llm.Response{Text: "anything"}})

	for _, raw := range []string{"", "   \n  "} {
		res, err := sel.Select(context.Background(), Request{Script: ParseScript(raw), Utterance: "hello", IntentHint: IntentConfirm})
		require.NoError(t, err)
		assert.Equal(t, "ok", res.ReplyText)
		assert.Equal(t, RouteNoScriptFallback, res.Route)

		res, err = sel.Select(context.Background(), Request{Script: ParseScript(raw), Utterance: "hello", IntentHint: IntentQuestion})
		require.NoError(t, err)
		assert.Equal(t, "I'm not sure.", res.ReplyText)
		assert.Equal(t, RouteNoScriptFallback, res.Route)
	}

	res, err := sel.Select(context.Background(), Request{Utterance: "hello"})
	require.NoError(t, err)
	assert.Equal(t, RouteNoScriptFallback, res.Route)
}

func TestSelect_FiveMinuteOverridesScriptMatch(t *testing.T) {
	script := ParseScript(fiveMinuteScript)
	sel := NewSelector(nil)

	plain, err := sel.Select(context.Background(), Request{Script: script, Utterance: "why are you asking that"})
	require.NoError(t, err)
	assert.Equal(t, "Because I was worried.", plain.ReplyText)

	res, err := sel.Select(context.Background(), Request{
		Script:             script,
		FiveMinuteQuestion: fiveMinuteQuestion,
		History: []Turn{
			{Role: RoleUser, Content: "We have about five minutes left"},
			{Role: RoleAssistant, Content: "is there anything you want to ask me?"},
		},
		Utterance: "why are you asking that",
	})
	require.NoError(t, err)
	assert.Equal(t, RouteFiveMinuteRule, res.Route)
	assert.Equal(t, "I just want to know when I should expect to feel better.", res.ReplyText)
}

func TestSelect_FiveMinuteBuckets(t *testing.T) {
	script := ParseScript(fiveMinuteScript)
	history := []Turn{{Role: RoleAssistant, Content: fiveMinuteQuestion}}

	tests := []struct {
		name          string
		rules         *FiveMinuteRules
		utterance     string
		want          string
		wantCandidate string
		wantOutcome   EnforcementOutcome
	}{
		{"end conversation", nil, "Is there anything else", "No, that's all.", "No, that's all.", EnforcementExact},
		{"default falls back to confirm", nil, "Alright then", "Okay", "", ""},
		{"configured default reply", &FiveMinuteRules{DefaultReply: "Hi good"}, "Alright then", "Hi good", "Hi good", EnforcementExact},
		{"custom keywords", &FiveMinuteRules{CounterQuestionKeywords: []string{"pardon"}}, "pardon me",
			"I just want to know when I should expect to feel better.", DefaultCounterQuestionReply, EnforcementExact},
		{"near miss reply canonicalized", &FiveMinuteRules{EndConversationReply: "no thats all"}, "anything else",
			"No, that's all.", "no thats all", EnforcementCanonical},
		{"unscripted reply clamped", &FiveMinuteRules{CounterQuestionReply: "My doctor told me to ask."}, "what do you mean",
			"Okay", "My doctor told me to ask.", EnforcementFallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewSelector(nil).Select(context.Background(), Request{
				Script:             script,
				FiveMinuteQuestion: fiveMinuteQuestion,
				FiveMinuteRules:    tt.rules,
				History:            history,
				Utterance:          tt.utterance,
			})
			require.NoError(t, err)
			assert.Equal(t, RouteFiveMinuteRule, res.Route)
			assert.Equal(t, tt.want, res.ReplyText)
			assert.Equal(t, tt.wantCandidate, res.Candidate)
			assert.Equal(t, tt.wantOutcome, res.Enforcement)
		})
	}
}

func TestSelect_FiveMinuteOnlyRightAfterQuestion(t *testing.T) {
	script := ParseScript(fiveMinuteScript)
	res, err := NewSelector(nil).Select(context.Background(), Request{
		Script:             script,
		FiveMinuteQuestion: fiveMinuteQuestion,
		History: []Turn{
			{Role: RoleAssistant, Content: fiveMinuteQuestion},
			{Role: RoleUser, Content: "hi how are you"},
			{Role: RoleAssistant, Content: "Hi good"},
		},
		Utterance: "why are you asking that",
	})
	require.NoError(t, err)
	assert.Equal(t, RouteFastScriptMatch, res.Route)
	assert.Equal(t, "Because I was worried.", res.ReplyText)
}

func TestSelect_ConfirmHintBeatsFiveMinuteRule(t *testing.T) {
	script := ParseScript(fiveMinuteScript)
	res, err := NewSelector(nil).Select(context.Background(), Request{
		Script:             script,
		FiveMinuteQuestion: fiveMinuteQuestion,
		History:            []Turn{{Role: RoleAssistant, Content: fiveMinuteQuestion}},
		Utterance:          "what do you mean",
		IntentHint:         IntentConfirm,
	})
	require.NoError(t, err)
	assert.Equal(t, RouteFastConfirm, res.Route)
	assert.Equal(t, "Okay", res.ReplyText)
}

func TestSelect_GenerativeExactLine(t *testing.T) {
	script := ParseScript(sampleScript)
	client := &stubLLMClient{response: llm.Response{Text: "Hi good"}}
	sel := NewSelector(client, WithModel("gpt-4o-mini"), WithMaxTokens(64))

	history := []Turn{
		{Role: RoleUser, Content: "Hi how are you"},
		{Role: RoleAssistant, Content: "Hi good"},
	}
	res, err := sel.Select(context.Background(), Request{
		Script:    script,
		History:   history,
		Utterance: "tell me about your allergies",
	})
	require.NoError(t, err)
	assert.Equal(t, RouteGenerative, res.Route)
	assert.Equal(t, "Hi good", res.ReplyText)
	assert.Equal(t, EnforcementExact, res.Enforcement)
	assert.Nil(t, res.MatchScore)

	require.Equal(t, 1, client.calls)
	req := client.lastReq
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.Equal(t, int32(64), req.MaxTokens)
	assert.Equal(t, []string{sampleScript}, req.System)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "Hi how are you"}, req.Messages[0])
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "Hi good"}, req.Messages[1])
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "tell me about your allergies"}, req.Messages[2])
}

func TestSelect_GenerativeOutputClamped(t *testing.T) {
	script := ParseScript(sampleScript)
	client := &stubLLMClient{response: llm.Response{Text: "Well, I also have chest pain and take aspirin daily."}}

	res, err := NewSelector(client).Select(context.Background(), Request{Script: script, Utterance: "tell me about your allergies"})
	require.NoError(t, err)
	assert.Equal(t, RouteGenerative, res.Route)
	assert.Equal(t, "I'm not sure.", res.ReplyText)
	assert.Equal(t, EnforcementFallback, res.Enforcement)
	assert.Equal(t, "Well, I also have chest pain and take aspirin daily.", res.Candidate)
}

func TestSelect_GenerativeNearMissCanonicalized(t *testing.T) {
	script := ParseScript(sampleScript)
	client := &stubLLMClient{response: llm.Response{Text: "hi, good!"}}

	res, err := NewSelector(client).Select(context.Background(), Request{Script: script, Utterance: "tell me about your allergies"})
	require.NoError(t, err)
	assert.Equal(t, "Hi good", res.ReplyText)
	assert.Equal(t, EnforcementCanonical, res.Enforcement)
}

func TestSelect_GenerativeFailurePropagates(t *testing.T) {
	upstream := errors.New("upstream 503")
	client := &stubLLMClient{err: upstream}

	_, err := NewSelector(client).Select(context.Background(), Request{Script: ParseScript(sampleScript), Utterance: "tell me about your allergies"})
	require.Error(t, err)
	assert.ErrorIs(t, err, upstream)
}

func TestSelect_EmptyCompletionUsesFallback(t *testing.T) {
	client := &stubLLMClient{err: llm.ErrEmptyCompletion}

	res, err := NewSelector(client).Select(context.Background(), Request{Script: ParseScript(sampleScript), Utterance: "tell me about your allergies"})
	require.NoError(t, err)
	assert.Equal(t, "I'm not sure.", res.ReplyText)
	assert.Equal(t, EnforcementFallback, res.Enforcement)
}

func TestSelect_NoGenerator(t *testing.T) {
	_, err := NewSelector(nil).Select(context.Background(), Request{Script: ParseScript(sampleScript), Utterance: "tell me about your allergies"})
	assert.ErrorIs(t, err, ErrGeneratorUnavailable)
}

func TestSelect_CustomTuning(t *testing.T) {
	tuning := DefaultTuning()
	tuning.ScriptMatchThreshold = 0.9
	tuning.UnsureReply = "Sorry?"
	client := &stubLLMClient{response: llm.Response{Text: "nothing scripted"}}

	res, err := NewSelector(client, WithTuning(tuning)).Select(context.Background(), Request{
		Script:    ParseScript(sampleScript),
		Utterance: "how are you doing",
	})
	require.NoError(t, err)
	assert.Equal(t, RouteGenerative, res.Route)
	assert.Equal(t, "Sorry?", res.ReplyText)
}
