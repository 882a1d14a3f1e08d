// Package agent runs the two-level reasoning loop: a central
// conversational agent that can delegate to a structured tool agent
// through its single Helper tool.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/delegent/internal/llm"
	"github.com/soyeahso/delegent/internal/logging"
	"github.com/soyeahso/delegent/internal/tools"
)

// DefaultMaxIterations bounds the planner calls of one run.
const DefaultMaxIterations = 5

// ErrIterationLimit is returned when the planner still wants tools after
// the last allowed iteration.
var ErrIterationLimit = errors.New("agent stopped: iteration limit reached")

// ToolErrorPolicy says what a failed tool call does to the run.
type ToolErrorPolicy string

const (
	// ObserveToolErrors feeds "Error: ..." back to the planner.
	ObserveToolErrors ToolErrorPolicy = "observe"
	// AbortOnToolError fails the run on the first tool error.
	AbortOnToolError ToolErrorPolicy = "abort"
)

// Step is one observable event of a run: a tool call with its
// observation, or the final answer (Tool is empty).
type Step struct {
	Agent     string          `json:"agent"`
	Iteration int             `json:"iteration"`
	Tool      string          `json:"tool,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Output    string          `json:"output,omitempty"`
	Err       error           `json:"-"`
	Answer    string          `json:"answer,omitempty"`
}

// Final reports whether the step carries the final answer.
func (s Step) Final() bool { return s.Tool == "" }

// Observer receives steps as they happen. It may be called from several
// goroutines when agents run concurrently.
type Observer func(Step)

type observerKey struct{}

// WithObserver attaches an extra Observer to ctx. Executors running under
// ctx report to it in addition to their own Observer.
func WithObserver(ctx context.Context, obs Observer) context.Context {
	return context.WithValue(ctx, observerKey{}, obs)
}

func observerFrom(ctx context.Context) Observer {
	obs, _ := ctx.Value(observerKey{}).(Observer)
	return obs
}

// Result is the outcome of a run.
type Result struct {
	Answer     string        `json:"answer"`
	Steps      []Step        `json:"steps"`
	Iterations int           `json:"iterations"`
	Duration   time.Duration `json:"duration"`
}

// Executor is the reasoning loop shared by both agents.
type Executor struct {
	Name          string
	Planner       Planner
	Tools         *tools.Registry
	MaxIterations int
	ToolErrors    ToolErrorPolicy
	Observer      Observer
	Log           *logging.Logger
}

func (e *Executor) maxIterations() int {
	if e.MaxIterations > 0 {
		return e.MaxIterations
	}
	return DefaultMaxIterations
}

func (e *Executor) logger() *logging.Logger {
	if e.Log != nil {
		return e.Log
	}
	return logging.Nop()
}

// Run plans, calls tools and observes until the planner answers or the
// iteration limit is hit.
func (e *Executor) Run(ctx context.Context, query string, history []llm.Message) (*Result, error) {
	start := time.Now()
	log := e.logger()
	res := &Result{}
	var rounds []Round
	defs := e.Tools.Definitions()

	log.Debug().Str("agent", e.Name).Int("historyLen", len(history)).Msg("processing query")

	for i := 1; i <= e.maxIterations(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Iterations = i

		plan, err := e.Planner.Plan(ctx, PlanRequest{Query: query, History: history, Tools: defs, Rounds: rounds})
		if err != nil {
			return nil, fmt.Errorf("%s planning: %w", e.Name, err)
		}

		if len(plan.Calls) == 0 {
			res.Answer = plan.Answer
			res.Duration = time.Since(start)
			e.emit(ctx, res, Step{Agent: e.Name, Iteration: i, Answer: plan.Answer})
			log.Debug().Str("agent", e.Name).Int("iterations", i).Dur("duration", res.Duration).Msg("answer generated")
			return res, nil
		}

		log.Debug().Str("agent", e.Name).Int("toolCalls", len(plan.Calls)).Msg("executing tool calls")
		round := Round{Raw: plan.Raw}
		for _, call := range plan.Calls {
			obs, err := e.invoke(ctx, call)
			if err != nil {
				return nil, err
			}
			round.Observations = append(round.Observations, obs)
			e.emit(ctx, res, Step{
				Agent:     e.Name,
				Iteration: i,
				Tool:      obs.Tool,
				Input:     obs.Input,
				Output:    obs.Output,
				Err:       obs.Err,
			})
		}
		rounds = append(rounds, round)
	}

	log.Warn().Str("agent", e.Name).Int("limit", e.maxIterations()).Msg("iteration limit reached")
	return nil, fmt.Errorf("%w (%d)", ErrIterationLimit, e.maxIterations())
}

// invoke runs one call. A returned error fails the run; tool failures
// under the observe policy come back as an Observation instead.
func (e *Executor) invoke(ctx context.Context, call ToolCall) (Observation, error) {
	obs := Observation{Tool: call.Tool, Input: call.Input}
	e.logger().Debug().Str("agent", e.Name).Str("tool", call.Tool).RawJSON("input", rawOrNull(call.Input)).Msg("executing tool")

	out, err := e.Tools.Invoke(ctx, call.Tool, call.Input)
	if err == nil {
		obs.Output = out
		return obs, nil
	}

	switch {
	case ctx.Err() != nil:
		return obs, ctx.Err()
	case llm.IsModelError(err):
		return obs, err
	case e.ToolErrors == AbortOnToolError:
		return obs, fmt.Errorf("%s: %w", e.Name, err)
	}

	e.logger().Debug().Str("tool", call.Tool).Err(err).Msg("tool error observed")
	obs.Err = err
	obs.Output = "Error: " + err.Error()
	return obs, nil
}

func (e *Executor) emit(ctx context.Context, res *Result, s Step) {
	res.Steps = append(res.Steps, s)
	if e.Observer != nil {
		e.Observer(s)
	}
	if obs := observerFrom(ctx); obs != nil {
		obs(s)
	}
}

func rawOrNull(raw json.RawMessage) []byte {
	if len(raw) == 0 || !json.Valid(raw) {
		return []byte("null")
	}
	return raw
}
