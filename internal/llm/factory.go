package llm

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/soyeahso/delegent/internal/config"
	"github.com/soyeahso/delegent/internal/logging"
)

// Backend names a chat-model implementation selectable with --llm.
type Backend string

const (
	BackendOllamaLocal Backend = config.BackendOllamaLocal
	BackendOllama      Backend = config.BackendOllama
	BackendGemini      Backend = config.BackendGemini
)

// ParseBackend validates a backend name.
func ParseBackend(s string) (Backend, error) {
	if !slices.Contains(config.Backends, s) {
		return "", fmt.Errorf("unknown backend %q (want one of %v)", s, config.Backends)
	}
	return Backend(s), nil
}

// FactoryOption tweaks adapter construction.
type FactoryOption func(*factoryOptions)

type factoryOptions struct {
	httpClient *http.Client
}

// WithHTTPClient injects the base transport used by every backend.
func WithHTTPClient(c *http.Client) FactoryOption {
	return func(o *factoryOptions) { o.httpClient = c }
}

// New constructs the adapter for backend from cfg. It is the only place
// the backend choice has an effect.
func New(ctx context.Context, backend Backend, cfg config.LLMConfig, log *logging.Logger, opts ...FactoryOption) (Client, error) {
	var fo factoryOptions
	for _, o := range opts {
		o(&fo)
	}

	retry := RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Delay:       cfg.Retry.Delay,
		Retryable:   DefaultRetryable,
	}

	switch backend {
	case BackendOllamaLocal:
		c := cfg.OllamaLocal
		return NewLocalOllamaClient(HTTPOptions{
			Endpoint:   c.Endpoint,
			Model:      c.Model,
			Timeout:    c.Timeout,
			Retry:      retry,
			HTTPClient: fo.httpClient,
			Log:        log,
		}, c.NumCtx), nil
	case BackendOllama:
		c := cfg.OllamaRemote
		return NewRemoteOllamaClient(HTTPOptions{
			Endpoint:   c.Endpoint,
			Model:      c.Model,
			Timeout:    c.Timeout,
			Retry:      retry,
			HTTPClient: fo.httpClient,
			Log:        log,
		}), nil
	case BackendGemini:
		c := cfg.Gemini
		return NewGeminiClient(ctx, GeminiOptions{
			APIKey:      c.APIKey,
			Model:       c.Model,
			Endpoint:    c.Endpoint,
			Temperature: c.Temperature,
			Timeout:     c.Timeout,
			Retry:       retry,
			HTTPClient:  fo.httpClient,
			Log:         log,
		})
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}
