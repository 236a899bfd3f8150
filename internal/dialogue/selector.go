package dialogue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/wolfman30/osce-practice-platform/internal/llm"
	"github.com/wolfman30/osce-practice-platform/pkg/logging"
)

// Route identifies which stage of the selector produced a reply.
type Route string

const (
	RouteNoScriptFallback Route = "NO_SCRIPT_FALLBACK"
	RouteFastConfirm      Route = "FAST_CONFIRM"
	RouteFiveMinuteRule   Route = "FIVE_MIN_FOLLOWUP_RULE"
	RouteFastScriptMatch  Route = "FAST_SCRIPT_MATCH"
	RouteGenerative       Route = "OPENAI"
)

// ErrGeneratorUnavailable is returned when no deterministic stage answered
// and the selector has no generative client configured.
var ErrGeneratorUnavailable = errors.New("dialogue: no generative client configured")

// Tuning holds the empirically chosen thresholds. They have not been
// calibrated against real transcription data; override per deployment.
type Tuning struct {
	ScriptMatchThreshold float64
	CanonicalThreshold   float64
	SubstringBonus       float64
	QuestionBonus        float64
	UnsureReply          string
}

func DefaultTuning() Tuning {
	return Tuning{
		ScriptMatchThreshold: 0.42,
		CanonicalThreshold:   0.86,
		SubstringBonus:       0.25,
		QuestionBonus:        0.10,
		UnsureReply:          "I'm not sure.",
	}
}

// ScriptMatch is the best-scoring pair for an utterance.
type ScriptMatch struct {
	Pair  ScriptPair
	Score float64
}

// ChooseScriptReply scores utterance against every trigger in script with the
// default tuning. ok is false when the best score is below threshold.
func ChooseScriptReply(script *Script, utterance string) (ScriptMatch, bool) {
	return DefaultTuning().ChooseScriptReply(script, utterance)
}

// ChooseScriptReply scores each pair as the Jaccard similarity of the
// normalized texts, plus SubstringBonus when one contains the other and
// QuestionBonus when both contain '?'. The first pair with the highest score
// wins.
func (t Tuning) ChooseScriptReply(script *Script, utterance string) (ScriptMatch, bool) {
	if script == nil || len(script.pairs) == 0 {
		return ScriptMatch{}, false
	}
	u := Normalize(utterance)

	best := ScriptMatch{Score: -1}
	for _, pair := range script.pairs {
		score := t.triggerScore(u, Normalize(pair.Trigger))
		if score > best.Score {
			best = ScriptMatch{Pair: pair, Score: score}
		}
	}
	if best.Score < t.ScriptMatchThreshold {
		return ScriptMatch{}, false
	}
	return best, true
}

func (t Tuning) triggerScore(u, trigger string) float64 {
	score := Jaccard(u, trigger)
	if u != "" && trigger != "" && (strings.Contains(u, trigger) || strings.Contains(trigger, u)) {
		score += t.SubstringBonus
	}
	if strings.Contains(u, "?") && strings.Contains(trigger, "?") {
		score += t.QuestionBonus
	}
	return score
}

// Request carries everything one selection needs. History is expected to be
// sanitized already (see SanitizeHistory).
type Request struct {
	Script             *Script
	FiveMinuteQuestion string
	FiveMinuteRules    *FiveMinuteRules
	History            []Turn
	Utterance          string
	IntentHint         IntentLabel
}

// Result is the reply chosen for a request.
type Result struct {
	ReplyText  string   `json:"reply"`
	Route      Route    `json:"route"`
	MatchScore *float64 `json:"match_score,omitempty"`

	// Candidate is the text offered to the enforcement filter, when one ran.
	Candidate      string             `json:"-"`
	Enforcement    EnforcementOutcome `json:"-"`
	GenerationTime time.Duration      `json:"-"`
}

// Selector runs the ordered strategy chain: no-script guard, fast confirm,
// five-minute rule, script match, then the generative client.
type Selector struct {
	client      llm.Client
	tuning      Tuning
	model       string
	maxTokens   int32
	temperature float32
	logger      *logging.Logger
	now         func() time.Time
}

// Option configures a Selector.
type Option func(*Selector)

func WithTuning(t Tuning) Option {
	return func(s *Selector) { s.tuning = t }
}

func WithModel(model string) Option {
	return func(s *Selector) { s.model = model }
}

func WithMaxTokens(n int32) Option {
	return func(s *Selector) { s.maxTokens = n }
}

func WithTemperature(temp float32) Option {
	return func(s *Selector) { s.temperature = temp }
}

func WithLogger(logger *logging.Logger) Option {
	return func(s *Selector) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSelector builds a selector. client may be nil, in which case requests
// that reach the generative stage fail with ErrGeneratorUnavailable.
func NewSelector(client llm.Client, opts ...Option) *Selector {
	s := &Selector{
		client:      client,
		tuning:      DefaultTuning(),
		maxTokens:   120,
		temperature: 0,
		logger:      logging.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tuning returns the thresholds in effect.
func (s *Selector) Tuning() Tuning {
	return s.tuning
}

type stage func(req Request) (Result, bool)

// Select picks the reply for req. Only the generative stage can fail; its
// output is always passed through the enforcement filter.
func (s *Selector) Select(ctx context.Context, req Request) (Result, error) {
	stages := []stage{
		s.noScriptStage,
		s.fastConfirmStage,
		s.fiveMinuteStage,
		s.scriptMatchStage,
	}
	for _, st := range stages {
		if res, ok := st(req); ok {
			s.logger.Debug("dialogue reply selected", "route", string(res.Route))
			return res, nil
		}
	}
	return s.generativeStage(ctx, req)
}

func (s *Selector) noScriptStage(req Request) (Result, bool) {
	if !req.Script.Empty() {
		return Result{}, false
	}
	reply := s.tuning.UnsureReply
	if req.IntentHint == IntentConfirm {
		reply = "ok"
	}
	return Result{ReplyText: reply, Route: RouteNoScriptFallback}, true
}

func (s *Selector) fastConfirmStage(req Request) (Result, bool) {
	if req.IntentHint != IntentConfirm {
		return Result{}, false
	}
	return Result{ReplyText: PickConfirmReply(req.Script), Route: RouteFastConfirm}, true
}

func (s *Selector) fiveMinuteStage(req Request) (Result, bool) {
	if strings.TrimSpace(req.FiveMinuteQuestion) == "" {
		return Result{}, false
	}
	if !justAskedFiveMinuteQuestion(req.FiveMinuteQuestion, req.History) {
		return Result{}, false
	}
	reply, candidate, outcome := s.tuning.fiveMinuteReply(req.Utterance, req.FiveMinuteRules, req.Script)
	return Result{
		ReplyText:   reply,
		Route:       RouteFiveMinuteRule,
		Candidate:   candidate,
		Enforcement: outcome,
	}, true
}

func (s *Selector) scriptMatchStage(req Request) (Result, bool) {
	match, ok := s.tuning.ChooseScriptReply(req.Script, req.Utterance)
	if !ok {
		return Result{}, false
	}
	reply, outcome := s.tuning.enforce(match.Pair.Reply, req.Script, s.tuning.UnsureReply)
	score := roundScore(match.Score)
	return Result{
		ReplyText:   reply,
		Route:       RouteFastScriptMatch,
		MatchScore:  &score,
		Candidate:   match.Pair.Reply,
		Enforcement: outcome,
	}, true
}

func (s *Selector) generativeStage(ctx context.Context, req Request) (Result, error) {
	if s.client == nil {
		return Result{}, ErrGeneratorUnavailable
	}

	start := s.now()
	resp, err := s.client.Complete(ctx, s.generativeRequest(req))
	elapsed := s.now().Sub(start)
	if err != nil && !errors.Is(err, llm.ErrEmptyCompletion) {
		return Result{}, fmt.Errorf("dialogue: generate reply: %w", err)
	}

	reply, outcome := s.tuning.enforce(resp.Text, req.Script, s.tuning.UnsureReply)
	if outcome != EnforcementExact {
		s.logger.Info("generative reply clamped to script",
			"outcome", string(outcome),
			"candidate_len", len(resp.Text),
		)
	}
	return Result{
		ReplyText:      reply,
		Route:          RouteGenerative,
		Candidate:      resp.Text,
		Enforcement:    outcome,
		GenerationTime: elapsed,
	}, nil
}

// generativeRequest lays out the script as the system instruction, then the
// history, then the new utterance.
func (s *Selector) generativeRequest(req Request) llm.Request {
	messages := make([]llm.Message, 0, len(req.History)+1)
	for _, turn := range req.History {
		switch turn.Role {
		case RoleUser:
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: turn.Content})
		case RoleAssistant:
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: turn.Content})
		}
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Utterance})

	return llm.Request{
		Model:       s.model,
		System:      []string{req.Script.Raw()},
		Messages:    messages,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	}
}

func roundScore(v float64) float64 {
	return math.Round(v*100) / 100
}
