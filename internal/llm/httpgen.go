package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/soyeahso/delegent/internal/logging"
)

const maxResponseBytes = 8 << 20

// HTTPOptions configures an Ollama-style JSON backend.
type HTTPOptions struct {
	Endpoint string
	Model    string
	// Timeout bounds each attempt.
	Timeout time.Duration
	Retry   RetryPolicy
	// HTTPClient replaces the default client; its Timeout is left alone.
	HTTPClient *http.Client
	Log        *logging.Logger
}

// jsonGenerator posts one JSON body and extracts a single string field
// from the JSON reply.
type jsonGenerator struct {
	backend string
	opts    HTTPOptions
	client  *http.Client
	log     *logging.Logger
}

func newJSONGenerator(backend string, opts HTTPOptions) *jsonGenerator {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	log := opts.Log
	if log == nil {
		log = logging.Nop()
	}
	return &jsonGenerator{backend: backend, opts: opts, client: hc, log: log.Sub("llm." + backend)}
}

// generate sends body and returns the string stored under field.
func (g *jsonGenerator) generate(ctx context.Context, body any, field string) (string, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, g.opts.Endpoint, payload)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var attempts int
	rc := g.opts.Retry.newRetryClient(g.client, g.backend, g.log, &attempts)

	resp, err := rc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", attempts, fmt.Errorf("%s: %w", g.backend, ctx.Err())
		}
		return "", attempts, &TransportError{Backend: g.backend, Attempts: attempts, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", attempts, &TransportError{Backend: g.backend, Attempts: attempts, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode >= 400 {
		if retryableStatus(resp.StatusCode) {
			return "", attempts, &TransportError{
				Backend:    g.backend,
				Attempts:   attempts,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("%s", snippet(data)),
			}
		}
		return "", attempts, &ProtocolError{
			Backend: g.backend,
			Message: fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, snippet(data)),
		}
	}

	text, err := extractField(data, field)
	if err != nil {
		return "", attempts, &ProtocolError{Backend: g.backend, Field: field, Message: err.Error()}
	}
	return text, attempts, nil
}

func extractField(data []byte, field string) (string, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("response is not a JSON object: %s", snippet(data))
	}
	raw, ok := payload[field]
	if !ok {
		return "", fmt.Errorf("missing field")
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", fmt.Errorf("field is not a string")
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("field is empty")
	}
	return text, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
