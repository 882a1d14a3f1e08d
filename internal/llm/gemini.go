package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"

	"github.com/soyeahso/delegent/internal/logging"
)

const (
	geminiScope           = "https://www.googleapis.com/auth/generative-language"
	defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/"
)

// GeminiOptions configures the hosted Gemini backend.
type GeminiOptions struct {
	APIKey      string
	Model       string
	Endpoint    string // override for the service base URL
	Temperature float64
	Timeout     time.Duration
	Retry       RetryPolicy
	// HTTPClient is the base transport. With default credentials it is
	// wrapped by an oauth2 transport.
	HTTPClient *http.Client
	Log        *logging.Logger
}

// GeminiClient calls generateContent on the Generative Language REST API.
type GeminiClient struct {
	client   *http.Client
	endpoint string
	apiKey   string
	model    string
	temp     float64
	retry    RetryPolicy
	log      *logging.Logger
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      *geminiContent `json:"content"`
		FinishReason string         `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// NewGeminiClient builds the client. Without an API key it falls back to
// application default credentials.
func NewGeminiClient(ctx context.Context, opts GeminiOptions) (*GeminiClient, error) {
	if opts.Model == "" {
		opts.Model = "gemini-2.0-flash-lite"
	}
	if opts.Endpoint == "" {
		opts.Endpoint = defaultGeminiEndpoint
	}
	if opts.Log == nil {
		opts.Log = logging.Nop()
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	if opts.APIKey == "" {
		ts, err := google.DefaultTokenSource(ctx, geminiScope)
		if err != nil {
			return nil, fmt.Errorf("gemini: no API key configured (set GOOGLE_API_KEY) and no default credentials: %w", err)
		}
		base := hc
		hc = oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), ts)
		hc.Timeout = base.Timeout
	}

	return &GeminiClient{
		client:   hc,
		endpoint: strings.TrimSuffix(opts.Endpoint, "/"),
		apiKey:   opts.APIKey,
		model:    opts.Model,
		temp:     opts.Temperature,
		retry:    opts.Retry,
		log:      opts.Log.Sub("llm.gemini"),
	}, nil
}

// Complete maps the conversation onto Gemini contents. The system prompt
// travels as the system instruction.
func (g *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	model := g.model
	if req.Model != "" {
		model = req.Model
	}

	temp := g.temp
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	body := geminiRequest{
		Contents:         toGeminiContents(req.Messages),
		GenerationConfig: geminiGenerationConfig{Temperature: &temp, MaxOutputTokens: req.MaxTokens},
	}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := g.endpoint + "/v1beta/models/" + url.PathEscape(model) + ":generateContent"
	hreq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		hreq.Header.Set("x-goog-api-key", g.apiKey)
	}

	var attempts int
	rc := g.retry.newRetryClient(g.client, "gemini", g.log, &attempts)

	resp, err := rc.Do(hreq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("gemini: %w", ctx.Err())
		}
		return nil, &TransportError{Backend: "gemini", Attempts: attempts, Err: err}
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		return nil, classifyGeminiError(err, attempts)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Backend: "gemini", Attempts: attempts, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	var gresp geminiResponse
	if err := json.Unmarshal(data, &gresp); err != nil {
		return nil, &ProtocolError{Backend: "gemini", Message: "response is not JSON: " + snippet(data)}
	}

	text, err := geminiText(&gresp)
	if err != nil {
		return nil, err
	}

	out := &CompletionResponse{Content: text, Model: model, Duration: time.Since(start), Attempts: attempts}
	if u := gresp.UsageMetadata; u != nil {
		out.Usage = Usage{InputTokens: u.PromptTokenCount, OutputTokens: u.CandidatesTokenCount}
	}
	g.log.Debug().Str("model", model).Dur("took", out.Duration).Int("outputTokens", out.Usage.OutputTokens).Msg("completion done")
	return out, nil
}

// Name returns the backend name.
func (g *GeminiClient) Name() string { return "gemini" }

func toGeminiContents(msgs []Message) []geminiContent {
	var out []geminiContent
	for _, m := range msgs {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		text := m.Content
		if m.Role == RoleSystem {
			text = "System: " + text
		}
		// Gemini expects alternating roles; fold consecutive turns together.
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, geminiPart{Text: text})
			continue
		}
		out = append(out, geminiContent{Role: role, Parts: []geminiPart{{Text: text}}})
	}
	return out
}

func geminiText(resp *geminiResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", &ProtocolError{Backend: "gemini", Message: "prompt blocked: " + resp.PromptFeedback.BlockReason}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", &ProtocolError{Backend: "gemini", Field: "candidates", Message: "no candidate content"}
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		reason := resp.Candidates[0].FinishReason
		return "", &ProtocolError{Backend: "gemini", Field: "text", Message: "empty candidate (finish reason " + reason + ")"}
	}
	return text, nil
}

// classifyGeminiError maps a googleapi status error onto the shared error
// kinds. Retryable statuses stay transport failures.
func classifyGeminiError(err error, attempts int) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return &TransportError{Backend: "gemini", Attempts: attempts, Err: err}
	}
	msg := gerr.Message
	if msg == "" {
		msg = snippet([]byte(gerr.Body))
	}
	if retryableStatus(gerr.Code) {
		return &TransportError{Backend: "gemini", Attempts: attempts, StatusCode: gerr.Code, Err: errors.New(msg)}
	}
	return &ProtocolError{Backend: "gemini", Message: fmt.Sprintf("status %d: %s", gerr.Code, msg)}
}
