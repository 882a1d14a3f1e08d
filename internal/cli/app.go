package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/delegent/internal/agent"
	"github.com/soyeahso/delegent/internal/config"
	"github.com/soyeahso/delegent/internal/llm"
	"github.com/soyeahso/delegent/internal/memory"
	"github.com/soyeahso/delegent/internal/tools"
)

// app is the wired agent graph for one process.
type app struct {
	memory memory.Store
	graph  *agent.Graph
}

// newApp validates the loaded config, opens memory and builds the agents
// for backend.
func newApp(ctx context.Context, backend llm.Backend, obs agent.Observer) (*app, error) {
	cfg.LLM.Backend = string(backend)
	if err := validateConfig(); err != nil {
		return nil, err
	}
	if err := paths.EnsureDirs(); err != nil {
		return nil, err
	}

	mem, err := memory.Open(cfg.Memory, cfg.MemoryPath(paths), log)
	if err != nil {
		return nil, err
	}

	reg, err := tools.NewBuiltinRegistry(tools.NewEnv(cfg.Tools, log))
	if err != nil {
		mem.Close()
		return nil, err
	}

	client, err := llm.New(ctx, backend, cfg.LLM, log)
	if err != nil {
		mem.Close()
		return nil, err
	}

	graph, err := agent.Build(client, reg, mem, cfg.Agent, obs, log)
	if err != nil {
		mem.Close()
		return nil, err
	}

	log.Debug().
		Str("backend", string(backend)).
		Str("planner", cfg.Agent.Planner).
		Int("tools", reg.Len()).
		Str("memory", cfg.MemoryPath(paths)).
		Msg("agents ready")

	return &app{memory: mem, graph: graph}, nil
}

func (a *app) Close() error {
	return a.memory.Close()
}

// validateConfig logs every issue and fails when there are any.
func validateConfig() error {
	issues := config.Validate(&cfg)
	if len(issues) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(issues))
	for _, issue := range issues {
		log.Error().Str("path", issue.Path).Msg(issue.Message)
		msgs = append(msgs, issue.String())
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(msgs, "; "))
}
