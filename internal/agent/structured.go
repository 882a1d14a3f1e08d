package agent

import (
	"context"

	"github.com/soyeahso/delegent/internal/logging"
	"github.com/soyeahso/delegent/internal/tools"
)

// Options are the loop settings shared by both agents.
type Options struct {
	MaxIterations int
	ToolErrors    ToolErrorPolicy
	Observer      Observer
	Log           *logging.Logger
}

func (o Options) executor(name string, planner Planner, reg *tools.Registry) *Executor {
	log := o.Log
	if log == nil {
		log = logging.Nop()
	}
	policy := o.ToolErrors
	if policy == "" {
		policy = ObserveToolErrors
	}
	return &Executor{
		Name:          name,
		Planner:       planner,
		Tools:         reg,
		MaxIterations: o.MaxIterations,
		ToolErrors:    policy,
		Observer:      o.Observer,
		Log:           log.Sub("agent." + name),
	}
}

// StructuredAgent answers a single query with the full tool registry. It
// keeps no memory between calls.
type StructuredAgent struct {
	exec *Executor
}

// NewStructuredAgent creates a structured agent over reg.
func NewStructuredAgent(planner Planner, reg *tools.Registry, opts Options) *StructuredAgent {
	return &StructuredAgent{exec: opts.executor("structured", planner, reg)}
}

// Run answers query.
func (a *StructuredAgent) Run(ctx context.Context, query string) (string, error) {
	res, err := a.exec.Run(ctx, query, nil)
	if err != nil {
		return "", err
	}
	return res.Answer, nil
}

// HelperDescription is what the central agent is told about Helper.
const HelperDescription = "Use this tool if you can't answer the query yourself. For example, if the query requires " +
	"structured processing like math, web access, or external tools. Pass the full user query as the input."

// HelperInput is the input of the Helper tool.
type HelperInput struct {
	Query string `json:"query"`
}

func (in HelperInput) Validate() error {
	if in.Query == "" {
		return &tools.ValidationError{Field: "query", Message: "must not be empty"}
	}
	return nil
}

// NewHelperTool wraps the structured agent as the central agent's only tool.
func NewHelperTool(structured *StructuredAgent) tools.Tool {
	return tools.New(tools.Definition{
		Name:        "Helper",
		Description: HelperDescription,
		Fields: []tools.Field{
			{Name: "query", Type: tools.String, Description: "the full user query", Required: true},
		},
	}, func(ctx context.Context, in HelperInput) (string, error) {
		return structured.Run(ctx, in.Query)
	})
}
