package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/delegent/internal/config"
	"github.com/soyeahso/delegent/internal/llm"
	"github.com/soyeahso/delegent/internal/logging"
	"github.com/soyeahso/delegent/internal/memory"
	"github.com/soyeahso/delegent/internal/tools"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func toolCall(tool, input string) string {
	return fmt.Sprintf("I'll use %s.\n```tool_call\n{\"tool\": %q, \"input\": %s}\n```", tool, tool, input)
}

func testTools(t *testing.T) *tools.Registry {
	t.Helper()
	fixed := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	reg, err := tools.NewRegistry(
		tools.Calculator(),
		tools.Clock(&tools.Env{Now: func() time.Time { return fixed }}),
		tools.Sentiment(),
	)
	require.NoError(t, err)
	return reg
}

type stepLog struct {
	mu    sync.Mutex
	steps []Step
}

func (l *stepLog) observe(s Step) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, s)
}

func (l *stepLog) toolCalls(tool string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, s := range l.steps {
		if s.Tool == tool {
			n++
		}
	}
	return n
}

type memReader []memory.Turn

func (m memReader) Turns(context.Context) ([]memory.Turn, error) { return m, nil }

// --- Structured agent tests ---

func TestStructuredAgentUsesCalculator(t *testing.T) {
	client := llm.NewScriptedClient(
		toolCall("calculator", `{"expression": "2+2"}`),
		"2 + 2 = 4",
	)
	var steps stepLog
	agent := NewStructuredAgent(NewHostedPlanner(client, StructuredInstructions), testTools(t),
		Options{Observer: steps.observe, Log: silentLog()})

	answer, err := agent.Run(context.Background(), "what is 2+2")
	require.NoError(t, err)
	assert.Contains(t, answer, "4")
	assert.Equal(t, 1, steps.toolCalls("calculator"))

	reqs := client.Requests()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[0].System, "### calculator")
	assert.Equal(t, "what is 2+2", reqs[0].Messages[0].Content)

	second := reqs[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, llm.RoleAssistant, second[1].Role)
	assert.Contains(t, second[2].Content, "### calculator\nResult: 4")
}

func TestStructuredAgentAnswersWithoutTools(t *testing.T) {
	client := llm.NewScriptedClient("Hello! How can I help you today?")
	var steps stepLog
	agent := NewStructuredAgent(NewHostedPlanner(client, StructuredInstructions), testTools(t),
		Options{Observer: steps.observe})

	answer, err := agent.Run(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I help you today?", answer)
	require.Len(t, steps.steps, 1)
	assert.True(t, steps.steps[0].Final())
	assert.Len(t, client.Requests(), 1)
}

func TestStructuredAgentMultipleCallsInOneRound(t *testing.T) {
	client := llm.NewScriptedClient(
		toolCall("calculator", `{"expression": "6*7"}`)+"\n"+toolCall("get_current_time", `{"timezone": "UTC"}`),
		"42, and it is 09:30 UTC.",
	)
	var steps stepLog
	agent := NewStructuredAgent(NewHostedPlanner(client, StructuredInstructions), testTools(t),
		Options{Observer: steps.observe})

	_, err := agent.Run(context.Background(), "6*7 and the time")
	require.NoError(t, err)

	require.Len(t, steps.steps, 3)
	assert.Equal(t, "calculator", steps.steps[0].Tool)
	assert.Equal(t, "get_current_time", steps.steps[1].Tool)
	assert.Equal(t, "Current UTC time: 2026-10-17 09:30:00", steps.steps[1].Output)
	assert.Equal(t, 1, steps.steps[1].Iteration)
}

// --- Executor tests ---

func TestIterationLimit(t *testing.T) {
	calls := 0
	planner := PlannerFunc(func(ctx context.Context, req PlanRequest) (*Plan, error) {
		calls++
		assert.Len(t, req.Rounds, calls-1)
		return &Plan{Calls: []ToolCall{{Tool: "calculator", Input: json.RawMessage(`{"expression":"1+1"}`)}}}, nil
	})
	agent := NewStructuredAgent(planner, testTools(t), Options{MaxIterations: 3})

	answer, err := agent.Run(context.Background(), "loop forever")
	assert.ErrorIs(t, err, ErrIterationLimit)
	assert.Empty(t, answer)
	assert.Equal(t, 3, calls)
}

func TestDefaultIterationLimit(t *testing.T) {
	calls := 0
	planner := PlannerFunc(func(context.Context, PlanRequest) (*Plan, error) {
		calls++
		return &Plan{Calls: []ToolCall{{Tool: "calculator", Input: json.RawMessage(`"1"`)}}}, nil
	})
	_, err := NewStructuredAgent(planner, testTools(t), Options{}).Run(context.Background(), "q")
	assert.ErrorIs(t, err, ErrIterationLimit)
	assert.Equal(t, DefaultMaxIterations, calls)
}

func TestToolErrorsAreObserved(t *testing.T) {
	var seen []string
	planner := PlannerFunc(func(_ context.Context, req PlanRequest) (*Plan, error) {
		if len(req.Rounds) == 0 {
			return &Plan{Calls: []ToolCall{
				{Tool: "teleport", Input: json.RawMessage(`{}`)},
				{Tool: "calculator", Input: json.RawMessage(`{"expression":"1/0"}`)},
				{Tool: "calculator", Input: json.RawMessage(`{"formula":"1"}`)},
			}}, nil
		}
		for _, o := range req.Rounds[0].Observations {
			seen = append(seen, o.Output)
		}
		return &Plan{Answer: "could not compute"}, nil
	})

	answer, err := NewStructuredAgent(planner, testTools(t), Options{}).Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "could not compute", answer)
	require.Len(t, seen, 3)
	assert.True(t, strings.HasPrefix(seen[0], "Error: invalid input for teleport: unknown tool"), seen[0])
	assert.Equal(t, "Error: calculator failed: division by zero", seen[1])
	assert.Contains(t, seen[2], "Error: invalid input for calculator: formula")
}

func TestToolErrorAbortPolicy(t *testing.T) {
	planner := PlannerFunc(func(context.Context, PlanRequest) (*Plan, error) {
		return &Plan{Calls: []ToolCall{{Tool: "calculator", Input: json.RawMessage(`{"expression":"1/0"}`)}}}, nil
	})
	_, err := NewStructuredAgent(planner, testTools(t), Options{ToolErrors: AbortOnToolError}).Run(context.Background(), "q")

	var te *tools.ToolExecutionError
	assert.ErrorAs(t, err, &te)
}

func TestPlannerErrorFailsRun(t *testing.T) {
	client := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, &llm.TransportError{Backend: "mock", Attempts: 3, Err: errors.New("connection refused")}
		},
	}
	_, err := NewStructuredAgent(NewHostedPlanner(client, StructuredInstructions), testTools(t), Options{}).
		Run(context.Background(), "q")
	assert.True(t, llm.IsModelError(err))
	assert.Contains(t, err.Error(), "structured planning")
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := llm.NewScriptedClient("never")
	_, err := NewStructuredAgent(NewHostedPlanner(client, ""), testTools(t), Options{}).Run(ctx, "q")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, client.Requests())
}

// --- Central agent tests ---

func TestCentralDelegatesToHelperOnce(t *testing.T) {
	structuredClient := llm.NewScriptedClient(
		toolCall("calculator", `{"expression": "2+2"}`),
		"4",
	)
	centralClient := llm.NewScriptedClient(
		toolCall("Helper", `{"query": "what is 2+2"}`),
		"2 + 2 is 4.",
	)
	var steps stepLog
	opts := Options{Observer: steps.observe, Log: silentLog()}
	structured := NewStructuredAgent(NewHostedPlanner(structuredClient, StructuredInstructions), testTools(t), opts)
	central, err := NewCentralAgent(NewHostedPlanner(centralClient, ConversationalInstructions), memReader(nil), NewHelperTool(structured), opts)
	require.NoError(t, err)

	answer, err := central.Run(context.Background(), "what is 2+2")
	require.NoError(t, err)
	assert.Equal(t, "2 + 2 is 4.", answer)
	assert.Equal(t, 1, steps.toolCalls("Helper"))
	assert.Equal(t, 1, steps.toolCalls("calculator"))

	reqs := centralClient.Requests()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[0].System, "### Helper")
	assert.NotContains(t, reqs[0].System, "### calculator")
	assert.Contains(t, reqs[1].Messages[len(reqs[1].Messages)-1].Content, "### Helper\n4")
}

func TestCentralAnswersDirectly(t *testing.T) {
	centralClient := llm.NewScriptedClient("Hi there!")
	structuredClient := llm.NewScriptedClient("unused")
	structured := NewStructuredAgent(NewHostedPlanner(structuredClient, StructuredInstructions), testTools(t), Options{})
	central, err := NewCentralAgent(NewHostedPlanner(centralClient, ConversationalInstructions), nil, NewHelperTool(structured), Options{})
	require.NoError(t, err)

	answer, err := central.Run(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi there!", answer)
	assert.Empty(t, structuredClient.Requests())
}

func TestCentralSeesHistory(t *testing.T) {
	centralClient := llm.NewScriptedClient("You asked about 2+2.")
	history := memReader{memory.UserTurn("what is 2+2"), memory.AgentTurn("4")}
	structured := NewStructuredAgent(NewHostedPlanner(llm.NewScriptedClient(), ""), testTools(t), Options{})
	central, err := NewCentralAgent(NewHostedPlanner(centralClient, ConversationalInstructions), history, NewHelperTool(structured), Options{})
	require.NoError(t, err)

	_, err = central.Run(context.Background(), "what did I ask?")
	require.NoError(t, err)

	msgs := centralClient.Requests()[0].Messages
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleUser, Content: "what is 2+2"},
		{Role: llm.RoleAssistant, Content: "4"},
		{Role: llm.RoleUser, Content: "what did I ask?"},
	}, msgs)
}

func TestModelErrorInsideHelperAborts(t *testing.T) {
	failing := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, &llm.ProtocolError{Backend: "mock", Field: "response", Message: "missing field"}
		},
	}
	centralClient := llm.NewScriptedClient(toolCall("Helper", `"what time is it"`), "should not get here")
	structured := NewStructuredAgent(NewHostedPlanner(failing, StructuredInstructions), testTools(t), Options{})
	central, err := NewCentralAgent(NewHostedPlanner(centralClient, ConversationalInstructions), nil, NewHelperTool(structured), Options{})
	require.NoError(t, err)

	_, err = central.Run(context.Background(), "what time is it")
	var pe *llm.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Len(t, centralClient.Requests(), 1)
}

func TestHelperIterationLimitIsObserved(t *testing.T) {
	looping := PlannerFunc(func(context.Context, PlanRequest) (*Plan, error) {
		return &Plan{Calls: []ToolCall{{Tool: "calculator", Input: json.RawMessage(`"1"`)}}}, nil
	})
	var observed string
	central := PlannerFunc(func(_ context.Context, req PlanRequest) (*Plan, error) {
		if len(req.Rounds) == 0 {
			return &Plan{Calls: []ToolCall{{Tool: "Helper", Input: json.RawMessage(`{"query":"x"}`)}}}, nil
		}
		observed = req.Rounds[0].Observations[0].Output
		return &Plan{Answer: "sorry"}, nil
	})
	structured := NewStructuredAgent(looping, testTools(t), Options{MaxIterations: 2})
	agent, err := NewCentralAgent(central, nil, NewHelperTool(structured), Options{})
	require.NoError(t, err)

	answer, err := agent.Run(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "sorry", answer)
	assert.Contains(t, observed, "iteration limit")
}

func TestHelperDefinition(t *testing.T) {
	def := NewHelperTool(nil).Definition()
	assert.Equal(t, "Helper", def.Name)
	assert.Equal(t, HelperDescription, def.Description)
	f, ok := def.Field("query")
	require.True(t, ok)
	assert.True(t, f.Required)
}

// --- Planner tests ---

func TestParseToolCalls(t *testing.T) {
	text := "Let me check.\n```tool_call\n{\"tool\": \"calculator\", \"input\": {\"expression\": \"(1+2)*3\"}}\n```\nand\n```tool_call\n{\"tool\": \"get_current_time\"}\n```"
	calls := parseToolCalls(text)
	require.Len(t, calls, 2)
	assert.Equal(t, "calculator", calls[0].Tool)
	assert.JSONEq(t, `{"expression": "(1+2)*3"}`, string(calls[0].Input))
	assert.Equal(t, "get_current_time", calls[1].Tool)
	assert.Empty(t, calls[1].Input)

	assert.Empty(t, parseToolCalls("```tool_call\n{not json}\n```"))
	assert.Empty(t, parseToolCalls(`{"tool": "calculator"}`), "bare objects need the lenient parser")
}

func TestParseLenient(t *testing.T) {
	tests := []struct {
		name string
		text string
		tool string
	}{
		{"json fence", "```json\n{\"tool\": \"calculator\", \"input\": {\"expression\": \"1\"}}\n```", "calculator"},
		{"bare object", `Sure: {"tool": "get_weather", "input": {"city": "Oslo"}} done`, "get_weather"},
		{"action shape", `{"action": "wiki_summary", "action_input": {"query": "Go"}}`, "wiki_summary"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := parseLenient(tt.text)
			require.Len(t, calls, 1)
			assert.Equal(t, tt.tool, calls[0].Tool)
		})
	}
	assert.Empty(t, parseLenient(`{"action": "Final Answer", "action_input": "4"}`))
}

func TestLocalPlanner(t *testing.T) {
	client := llm.NewScriptedClient(`{"tool": "calculator", "input": "2+2"}`)
	p := NewLocalPlanner(client, StructuredInstructions, WithHistoryWindow(2))

	history := []llm.Message{
		{Role: llm.RoleUser, Content: "1"}, {Role: llm.RoleAssistant, Content: "2"},
		{Role: llm.RoleUser, Content: "3"}, {Role: llm.RoleAssistant, Content: "4"},
	}
	plan, err := p.Plan(context.Background(), PlanRequest{
		Query:   "what is 2+2",
		History: history,
		Tools:   testTools(t).Definitions(),
	})
	require.NoError(t, err)
	require.Len(t, plan.Calls, 1)
	assert.Equal(t, "calculator", plan.Calls[0].Tool)

	req := client.Requests()[0]
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "3", req.Messages[0].Content)
	assert.Contains(t, req.System, "- calculator(expression string): ")
	assert.NotContains(t, req.System, "Input schema")
}

func TestLocalPlannerFinalAnswerAction(t *testing.T) {
	client := llm.NewScriptedClient("```json\n{\"action\": \"Final Answer\", \"action_input\": \"It is 4.\"}\n```")
	plan, err := NewLocalPlanner(client, "").Plan(context.Background(), PlanRequest{Query: "2+2"})
	require.NoError(t, err)
	assert.Empty(t, plan.Calls)
	assert.Equal(t, "It is 4.", plan.Answer)
}

func TestHostedPlannerIsStrict(t *testing.T) {
	client := llm.NewScriptedClient(`Here is JSON: {"tool": "calculator", "input": "1"}`)
	plan, err := NewHostedPlanner(client, "").Plan(context.Background(), PlanRequest{Query: "show json"})
	require.NoError(t, err)
	assert.Empty(t, plan.Calls)
	assert.Equal(t, `Here is JSON: {"tool": "calculator", "input": "1"}`, plan.Answer)
}

func TestCleanAnswer(t *testing.T) {
	assert.Equal(t, "4", cleanAnswer("Final Answer: 4"))
	assert.Equal(t, "It is sunny.", cleanAnswer("  It is sunny.\n"))
	assert.Equal(t, "Answer in text", cleanAnswer("Answer in text"))
}

func TestFormatObservationsClips(t *testing.T) {
	out := formatObservations([]Observation{{Tool: "fetch_url_content", Output: strings.Repeat("x", 50)}}, 10)
	assert.Contains(t, out, "### fetch_url_content\nxxxxxxxxxx...\n")
}

// --- Prompt tests ---

func TestBuildSystemPrompt(t *testing.T) {
	prompt := BuildSystemPrompt(PromptConfig{
		Instructions: StructuredInstructions,
		Tools:        testTools(t).Definitions(),
		Now:          time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC),
	})
	assert.True(t, strings.HasPrefix(prompt, "Current date: 2026-10-17\n"))
	assert.Contains(t, prompt, "```tool_call")
	assert.Contains(t, prompt, "### calculator\n")
	assert.Contains(t, prompt, `Input schema: {"type":"object"`)
}

func TestBuildSystemPromptNoTools(t *testing.T) {
	prompt := BuildSystemPrompt(PromptConfig{Instructions: "Be brief."})
	assert.Equal(t, "Be brief.\n", prompt)
}

// --- Build tests ---

func TestBuildGraph(t *testing.T) {
	for _, planner := range []string{config.PlannerLocal, config.PlannerHosted} {
		cfg := config.Defaults().Agent
		cfg.Planner = planner
		client := llm.NewScriptedClient("Hello.")
		g, err := Build(client, testTools(t), memReader(nil), cfg, nil, silentLog())
		require.NoError(t, err)

		answer, err := g.Central.Run(context.Background(), "hi")
		require.NoError(t, err)
		assert.Equal(t, "Hello.", answer)

		system := client.Requests()[0].System
		if planner == config.PlannerLocal {
			assert.Contains(t, system, "- Helper(query string): ")
		} else {
			assert.Contains(t, system, "### Helper\n")
		}
	}
}

// recordingClient keeps every request before passing it on.
type recordingClient struct {
	llm.Client
	mu   sync.Mutex
	reqs []llm.CompletionRequest
}

func (c *recordingClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.mu.Lock()
	c.reqs = append(c.reqs, req)
	c.mu.Unlock()
	return c.Client.Complete(ctx, req)
}

func TestBuildIgnoresBackend(t *testing.T) {
	// One reply body that all three wire formats can read.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"Hello.","generated_text":"Hello.",
			"candidates":[{"content":{"role":"model","parts":[{"text":"Hello."}]}}]}`))
	}))
	t.Cleanup(ts.Close)

	llmCfg := config.Defaults().LLM
	llmCfg.OllamaLocal.Endpoint = ts.URL
	llmCfg.OllamaRemote.Endpoint = ts.URL
	llmCfg.Gemini.Endpoint = ts.URL
	llmCfg.Gemini.APIKey = "k"

	history := memReader([]memory.Turn{memory.UserTurn("earlier"), memory.AgentTurn("noted")})

	for _, planner := range []string{config.PlannerHosted, config.PlannerLocal} {
		t.Run(planner, func(t *testing.T) {
			cfg := config.Defaults().Agent
			cfg.Planner = planner

			var recorded [][]llm.CompletionRequest
			for _, backend := range []llm.Backend{llm.BackendOllamaLocal, llm.BackendOllama, llm.BackendGemini} {
				inner, err := llm.New(context.Background(), backend, llmCfg, silentLog())
				require.NoError(t, err)
				client := &recordingClient{Client: inner}

				g, err := Build(client, testTools(t), history, cfg, nil, silentLog())
				require.NoError(t, err)
				answer, err := g.Central.Run(context.Background(), "hi")
				require.NoError(t, err, backend)
				assert.Equal(t, "Hello.", answer)

				assert.Equal(t, testTools(t).Names(), g.Structured.exec.Tools.Names())
				recorded = append(recorded, client.reqs)
			}

			require.Len(t, recorded[0], 1)
			assert.Equal(t, recorded[0], recorded[1], "ollama_local vs ollama")
			assert.Equal(t, recorded[0], recorded[2], "ollama_local vs gemini")
		})
	}
}

func TestContextObserver(t *testing.T) {
	client := llm.NewScriptedClient(toolCall("calculator", `"2+2"`), "4")
	var own, extra stepLog
	agent := NewStructuredAgent(NewHostedPlanner(client, ""), testTools(t), Options{Observer: own.observe})

	_, err := agent.Run(WithObserver(context.Background(), extra.observe), "2+2")
	require.NoError(t, err)
	assert.Len(t, own.steps, 2)
	assert.Equal(t, own.steps, extra.steps)
}
