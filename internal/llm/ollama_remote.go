package llm

import (
	"context"
	"time"
)

// RemoteOllamaClient talks to a text-generation service that takes
// {prompt, model} and answers {generated_text}.
type RemoteOllamaClient struct {
	gen *jsonGenerator
}

// NewRemoteOllamaClient creates a client for a remote generation service.
func NewRemoteOllamaClient(opts HTTPOptions) *RemoteOllamaClient {
	if opts.Endpoint == "" {
		opts.Endpoint = "http://localhost:8000/generate"
	}
	if opts.Model == "" {
		opts.Model = "gemma2:2b"
	}
	return &RemoteOllamaClient{gen: newJSONGenerator("ollama", opts)}
}

type remoteGenerateRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
}

// Complete flattens the conversation and posts it.
func (c *RemoteOllamaClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	model := c.gen.opts.Model
	if req.Model != "" {
		model = req.Model
	}

	text, attempts, err := c.gen.generate(ctx, remoteGenerateRequest{
		Prompt: FlattenPrompt(req),
		Model:  model,
	}, "generated_text")
	if err != nil {
		return nil, err
	}
	return &CompletionResponse{Content: text, Model: model, Duration: time.Since(start), Attempts: attempts}, nil
}

// Name returns the backend name.
func (c *RemoteOllamaClient) Name() string { return "ollama" }
