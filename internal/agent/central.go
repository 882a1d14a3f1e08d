package agent

import (
	"context"
	"fmt"

	"github.com/soyeahso/delegent/internal/llm"
	"github.com/soyeahso/delegent/internal/memory"
	"github.com/soyeahso/delegent/internal/tools"
)

// CentralAgent is the conversational front agent. It reads the
// conversation log but never writes to it; the caller appends the turns
// once an answer exists.
type CentralAgent struct {
	exec   *Executor
	memory memory.Reader
}

// NewCentralAgent creates the central agent with Helper as its only tool.
func NewCentralAgent(planner Planner, mem memory.Reader, helper tools.Tool, opts Options) (*CentralAgent, error) {
	reg, err := tools.NewRegistry(helper)
	if err != nil {
		return nil, fmt.Errorf("central agent tools: %w", err)
	}
	return &CentralAgent{exec: opts.executor("central", planner, reg), memory: mem}, nil
}

// Run answers query in the context of the conversation so far.
func (a *CentralAgent) Run(ctx context.Context, query string) (string, error) {
	res, err := a.RunResult(ctx, query)
	if err != nil {
		return "", err
	}
	return res.Answer, nil
}

// RunResult is Run with the full step record.
func (a *CentralAgent) RunResult(ctx context.Context, query string) (*Result, error) {
	var history []llm.Message
	if a.memory != nil {
		turns, err := a.memory.Turns(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading memory: %w", err)
		}
		history = HistoryMessages(turns)
	}
	return a.exec.Run(ctx, query, history)
}

// HistoryMessages converts log turns into chat messages.
func HistoryMessages(turns []memory.Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		role := llm.RoleUser
		if t.Role == memory.RoleAgent {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Content})
	}
	return msgs
}
