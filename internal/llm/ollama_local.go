package llm

import (
	"context"
	"time"
)

// LocalOllamaClient talks to the Ollama /api/generate endpoint.
type LocalOllamaClient struct {
	gen    *jsonGenerator
	numCtx int
}

// NewLocalOllamaClient creates a client for a local Ollama daemon. numCtx
// is sent as the context window size.
func NewLocalOllamaClient(opts HTTPOptions, numCtx int) *LocalOllamaClient {
	if opts.Endpoint == "" {
		opts.Endpoint = "http://localhost:11434/api/generate"
	}
	if opts.Model == "" {
		opts.Model = "gemma2:2b"
	}
	if numCtx == 0 {
		numCtx = 2048
	}
	return &LocalOllamaClient{gen: newJSONGenerator("ollama_local", opts), numCtx: numCtx}
}

type localGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	NumCtx int    `json:"num_ctx"`
}

// Complete flattens the conversation and posts it.
func (c *LocalOllamaClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	model := c.gen.opts.Model
	if req.Model != "" {
		model = req.Model
	}

	text, attempts, err := c.gen.generate(ctx, localGenerateRequest{
		Model:  model,
		Prompt: FlattenPrompt(req),
		Stream: false,
		NumCtx: c.numCtx,
	}, "response")
	if err != nil {
		return nil, err
	}

	c.gen.log.Debug().Str("model", model).Int("attempts", attempts).Dur("took", time.Since(start)).Msg("completion done")
	return &CompletionResponse{Content: text, Model: model, Duration: time.Since(start), Attempts: attempts}, nil
}

// Name returns the backend name.
func (c *LocalOllamaClient) Name() string { return "ollama_local" }
