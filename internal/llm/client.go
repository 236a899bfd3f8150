// Package llm adapts text-generation vendors to a single completion contract.
package llm

import (
	"context"
	"errors"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyCompletion is returned when a provider answers without any text.
var ErrEmptyCompletion = errors.New("llm: provider returned no text")

// Message is a provider-neutral chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// Request is a single completion call. System blocks precede Messages.
// A negative Temperature leaves the provider default in place.
type Request struct {
	Model       string
	System      []string
	Messages    []Message
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

type Response struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// Client produces one completion for an ordered message list.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// timeoutClient bounds every call with its own deadline.
type timeoutClient struct {
	next    Client
	timeout time.Duration
}

// WithTimeout wraps next so each Complete call runs under timeout.
// A non-positive timeout returns next unchanged.
func WithTimeout(next Client, timeout time.Duration) Client {
	if next == nil || timeout <= 0 {
		return next
	}
	return &timeoutClient{next: next, timeout: timeout}
}

func (c *timeoutClient) Complete(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.next.Complete(ctx, req)
}
