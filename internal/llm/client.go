// Package llm defines the chat-model contract and its backends.
//
// Every backend turns an ordered conversation into one reply. The two
// Ollama-style backends speak plain JSON over HTTP. Gemini speaks the
// generateContent REST protocol. All three share one retry policy.
package llm

import (
	"context"
	"time"
)

// Role constants for messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to Complete.
type CompletionRequest struct {
	Model       string    `json:"model,omitempty"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"maxTokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	Content  string        `json:"content"`
	Model    string        `json:"model,omitempty"`
	Usage    Usage         `json:"usage"`
	Duration time.Duration `json:"duration,omitempty"`
	// Attempts counts HTTP attempts, including the successful one.
	Attempts int `json:"attempts,omitempty"`
}

// Usage tracks token consumption when the backend reports it.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Client is the interface every chat-model backend implements.
type Client interface {
	// Complete sends the conversation and returns the full reply.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Name returns the backend name (e.g. "ollama_local", "gemini").
	Name() string
}
