package agent

import (
	"github.com/soyeahso/delegent/internal/config"
	"github.com/soyeahso/delegent/internal/llm"
	"github.com/soyeahso/delegent/internal/logging"
	"github.com/soyeahso/delegent/internal/memory"
	"github.com/soyeahso/delegent/internal/tools"
)

// Graph wires the agents around one model client.
type Graph struct {
	Structured *StructuredAgent
	Central    *CentralAgent
}

// Build assembles the structured agent, Helper and the central agent.
// cfg.Planner selects the planner variant; the client is never inspected.
func Build(client llm.Client, reg *tools.Registry, mem memory.Reader, cfg config.AgentConfig, obs Observer, log *logging.Logger) (*Graph, error) {
	opts := Options{
		MaxIterations: cfg.MaxIterations,
		ToolErrors:    ToolErrorPolicy(cfg.ToolErrors),
		Observer:      obs,
		Log:           log,
	}

	planner := func(prompt string) Planner {
		plog := WithPlannerLog(logOrNop(log).Sub("planner"))
		if cfg.Planner == config.PlannerLocal {
			return NewLocalPlanner(client, prompt, plog, WithHistoryWindow(cfg.LocalHistoryTurns))
		}
		return NewHostedPlanner(client, prompt, plog, WithHistoryWindow(cfg.HistoryTurns))
	}

	structured := NewStructuredAgent(planner(StructuredInstructions), reg, opts)
	central, err := NewCentralAgent(planner(ConversationalInstructions), mem, NewHelperTool(structured), opts)
	if err != nil {
		return nil, err
	}
	return &Graph{Structured: structured, Central: central}, nil
}

func logOrNop(log *logging.Logger) *logging.Logger {
	if log == nil {
		return logging.Nop()
	}
	return log
}
