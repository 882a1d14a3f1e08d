package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/soyeahso/delegent/internal/llm"
	"github.com/soyeahso/delegent/internal/logging"
	"github.com/soyeahso/delegent/internal/tools"
)

// Planner decides the next step of the reasoning loop: either tool calls
// or a final answer.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (*Plan, error)
}

// PlannerFunc adapts a function to Planner.
type PlannerFunc func(ctx context.Context, req PlanRequest) (*Plan, error)

func (f PlannerFunc) Plan(ctx context.Context, req PlanRequest) (*Plan, error) { return f(ctx, req) }

// PlanRequest is everything the planner sees on one round.
type PlanRequest struct {
	Query   string
	History []llm.Message
	Tools   []tools.Definition
	Rounds  []Round
}

// Plan is the planner's decision. Either Calls is non-empty or Answer is
// the final answer.
type Plan struct {
	Calls  []ToolCall
	Answer string
	Raw    string
}

// ToolCall is a single requested tool invocation.
type ToolCall struct {
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input"`
}

// Round records the calls of one iteration and what they returned.
type Round struct {
	Raw          string
	Observations []Observation
}

// Observation is the text result of one tool call. Err is set when the
// tool failed and Output holds the "Error: ..." text.
type Observation struct {
	Tool   string
	Input  json.RawMessage
	Output string
	Err    error
}

// ModelPlanner drives a chat model with the fenced tool_call protocol.
type ModelPlanner struct {
	client  llm.Client
	prompt  string
	compact bool
	// window caps the history messages sent; 0 sends all of them.
	window         int
	maxObservation int
	temperature    *float64
	now            func() time.Time
	log            *logging.Logger
}

// PlannerOption configures a ModelPlanner.
type PlannerOption func(*ModelPlanner)

// WithHistoryWindow keeps only the last n history messages.
func WithHistoryWindow(n int) PlannerOption {
	return func(p *ModelPlanner) { p.window = n }
}

// WithTemperature overrides the backend's sampling temperature.
func WithTemperature(t float64) PlannerOption {
	return func(p *ModelPlanner) { p.temperature = &t }
}

// WithPlannerLog sets the logger.
func WithPlannerLog(log *logging.Logger) PlannerOption {
	return func(p *ModelPlanner) { p.log = log }
}

// NewHostedPlanner plans with the full prompt and the full history.
func NewHostedPlanner(client llm.Client, prompt string, opts ...PlannerOption) *ModelPlanner {
	p := &ModelPlanner{client: client, prompt: prompt, now: time.Now, log: logging.Nop()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// NewLocalPlanner plans for small local models: a compact prompt, a
// bounded history window, clipped observations and lenient parsing of
// the reply.
func NewLocalPlanner(client llm.Client, prompt string, opts ...PlannerOption) *ModelPlanner {
	p := &ModelPlanner{
		client:         client,
		prompt:         prompt,
		compact:        true,
		window:         6,
		maxObservation: 600,
		now:            time.Now,
		log:            logging.Nop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Plan sends the conversation so far and parses the reply.
func (p *ModelPlanner) Plan(ctx context.Context, req PlanRequest) (*Plan, error) {
	system := BuildSystemPrompt(PromptConfig{
		Instructions: p.prompt,
		Tools:        req.Tools,
		Compact:      p.compact,
		Now:          p.now(),
	})

	resp, err := p.client.Complete(ctx, llm.CompletionRequest{
		System:      system,
		Messages:    p.messages(req),
		Temperature: p.temperature,
	})
	if err != nil {
		return nil, err
	}

	calls := parseToolCalls(resp.Content)
	if len(calls) == 0 && p.compact {
		calls = parseLenient(resp.Content)
		if answer, ok := lenientFinalAnswer(resp.Content); ok && len(calls) == 0 {
			return &Plan{Answer: answer, Raw: resp.Content}, nil
		}
	}
	p.log.Debug().Int("calls", len(calls)).Int("attempts", resp.Attempts).Msg("plan received")
	if len(calls) > 0 {
		return &Plan{Calls: calls, Raw: resp.Content}, nil
	}
	return &Plan{Answer: cleanAnswer(resp.Content), Raw: resp.Content}, nil
}

func (p *ModelPlanner) messages(req PlanRequest) []llm.Message {
	history := req.History
	if p.window > 0 && len(history) > p.window {
		history = history[len(history)-p.window:]
	}
	msgs := make([]llm.Message, 0, len(history)+1+2*len(req.Rounds))
	msgs = append(msgs, history...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: req.Query})
	for _, r := range req.Rounds {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleAssistant, Content: r.Raw},
			llm.Message{Role: llm.RoleUser, Content: formatObservations(r.Observations, p.maxObservation)},
		)
	}
	return msgs
}

// formatObservations renders tool results for the model.
func formatObservations(obs []Observation, limit int) string {
	var b strings.Builder
	b.WriteString("Tool execution results:\n\n")
	for _, o := range obs {
		fmt.Fprintf(&b, "### %s\n", o.Tool)
		out := o.Output
		if limit > 0 && len([]rune(out)) > limit {
			out = string([]rune(out)[:limit]) + "..."
		}
		b.WriteString(out)
		b.WriteString("\n\n")
	}
	b.WriteString("Use these results to answer, or call another tool if you still need one.")
	return b.String()
}

// toolCallRe matches ```tool_call {...} ``` blocks in model output.
var toolCallRe = regexp.MustCompile("(?s)```tool_call\\s*(\\{.*?\\})\\s*```")

// anyFenceRe matches fenced blocks of any language, for lenient parsing.
var anyFenceRe = regexp.MustCompile("(?s)```[a-zA-Z_]*\\s*(\\{.*?\\})\\s*```")

var finalAnswerRe = regexp.MustCompile(`(?is)^\s*(?:final answer|answer)\s*:\s*`)

// parseToolCalls extracts tool_call blocks from model text.
func parseToolCalls(text string) []ToolCall {
	var calls []ToolCall
	for _, m := range toolCallRe.FindAllStringSubmatch(text, -1) {
		if tc, ok := decodeCall(m[1]); ok {
			calls = append(calls, tc)
		}
	}
	return calls
}

// looseCall accepts both {"tool","input"} and the
// {"action","action_input"} shape small models are often tuned on.
type looseCall struct {
	Tool        string          `json:"tool"`
	Input       json.RawMessage `json:"input"`
	Action      string          `json:"action"`
	ActionInput json.RawMessage `json:"action_input"`
}

func decodeCall(s string) (ToolCall, bool) {
	var lc looseCall
	if err := json.Unmarshal([]byte(s), &lc); err != nil {
		return ToolCall{}, false
	}
	if lc.Tool == "" && lc.Action != "" && !isFinalAction(lc.Action) {
		lc.Tool, lc.Input = lc.Action, lc.ActionInput
	}
	if lc.Tool == "" {
		return ToolCall{}, false
	}
	return ToolCall{Tool: lc.Tool, Input: lc.Input}, true
}

func isFinalAction(action string) bool {
	return strings.EqualFold(strings.TrimSpace(action), "final answer")
}

// parseLenient accepts calls in any fence, or a bare JSON object.
func parseLenient(text string) []ToolCall {
	var calls []ToolCall
	for _, m := range anyFenceRe.FindAllStringSubmatch(text, -1) {
		if tc, ok := decodeCall(m[1]); ok {
			calls = append(calls, tc)
		}
	}
	if len(calls) > 0 {
		return calls
	}

	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			continue
		}
		if tc, ok := decodeCall(string(raw)); ok {
			calls = append(calls, tc)
			i += int(dec.InputOffset()) - 1
		}
	}
	return calls
}

// lenientFinalAnswer reads {"action": "Final Answer", "action_input": ...}.
func lenientFinalAnswer(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	var lc looseCall
	if err := json.NewDecoder(strings.NewReader(text[start:])).Decode(&lc); err != nil || !isFinalAction(lc.Action) {
		return "", false
	}
	var s string
	if json.Unmarshal(lc.ActionInput, &s) == nil {
		return strings.TrimSpace(s), true
	}
	return strings.TrimSpace(string(lc.ActionInput)), true
}

// cleanAnswer strips protocol leftovers from a final answer.
func cleanAnswer(text string) string {
	cleaned := toolCallRe.ReplaceAllString(text, "")
	cleaned = finalAnswerRe.ReplaceAllString(strings.TrimSpace(cleaned), "")
	return strings.TrimSpace(cleaned)
}
