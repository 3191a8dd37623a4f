// Package llm defines the provider-agnostic interface for LLM interactions.
// Duka uses it for two narrow jobs: labelling an utterance with an intent
// and phrasing a reply from a finished trace.
package llm

import (
	"context"
	"strings"
)

// Provider is the abstraction over any LLM backend (OpenAI, Ollama, Anthropic).
type Provider interface {
	// SendMessage sends a conversation to the LLM and returns its response.
	SendMessage(ctx context.Context, req *Request) (*Response, error)
	// Name returns the provider identifier (e.g. "openai").
	Name() string
}

// Request represents a full conversation sent to the LLM.
type Request struct {
	SystemPrompt string
	Messages     []Message
	MaxTokens    int
	// Temperature is passed through as-is. Zero keeps output deterministic.
	Temperature float64
	// JSON asks the provider to constrain output to a JSON object where the
	// backend supports it.
	JSON bool
}

// Message is a single turn in the conversation.
type Message struct {
	Role    Role
	Content string
}

// Role identifies who sent a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Response is what the LLM returns.
type Response struct {
	Content    string
	Usage      Usage
	StopReason string // "end_turn", "max_tokens"
}

// Text returns the trimmed response content.
func (r *Response) Text() string {
	return strings.TrimSpace(r.Content)
}

// Usage tracks token consumption for cost accounting.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// UserPrompt builds a single-turn request.
func UserPrompt(system, prompt string, maxTokens int) *Request {
	return &Request{
		SystemPrompt: system,
		Messages:     []Message{{Role: RoleUser, Content: prompt}},
		MaxTokens:    maxTokens,
	}
}

// NormalizeStopReason maps backend finish reasons onto canonical values.
func NormalizeStopReason(reason string) string {
	switch reason {
	case "stop", "end_turn", "stop_sequence":
		return "end_turn"
	case "length", "max_tokens":
		return "max_tokens"
	default:
		return reason
	}
}
