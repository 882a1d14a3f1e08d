package llm

import (
	"context"
	"sync"
)

// MockClient is a test double for Client.
type MockClient struct {
	ProviderName string
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

func (m *MockClient) Name() string { return m.ProviderName }

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &CompletionResponse{Content: "mock response"}, nil
}

// ScriptedClient replies with a fixed sequence of contents and records
// every request. Once the script runs out it repeats the last reply.
type ScriptedClient struct {
	mu       sync.Mutex
	replies  []string
	requests []CompletionRequest
}

// NewScriptedClient returns a client that answers with replies in order.
func NewScriptedClient(replies ...string) *ScriptedClient {
	return &ScriptedClient{replies: replies}
}

func (s *ScriptedClient) Name() string { return "scripted" }

func (s *ScriptedClient) Complete(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.requests)
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return &CompletionResponse{Content: "scripted response"}, nil
	}
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	return &CompletionResponse{Content: s.replies[idx], Attempts: 1}, nil
}

// Requests returns a copy of the requests seen so far.
func (s *ScriptedClient) Requests() []CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CompletionRequest(nil), s.requests...)
}
