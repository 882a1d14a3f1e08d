// Package mcpserver exposes the tool registry as an MCP stdio server.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdlog "log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/soyeahso/delegent/internal/logging"
	"github.com/soyeahso/delegent/internal/tools"
)

// Name is the server name announced to MCP clients.
const Name = "delegent-tools"

// New builds an MCP server with one MCP tool per registry tool.
func New(reg *tools.Registry, version string, log *logging.Logger) *server.MCPServer {
	log = log.Sub("mcp")
	s := server.NewMCPServer(Name, version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	for _, def := range reg.Definitions() {
		s.AddTool(toMCPTool(def), handler(reg, def.Name, log))
	}
	return s
}

// Serve speaks MCP over in/out until ctx is cancelled or in is closed.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer, log *logging.Logger) error {
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(stdlog.New(log.Sub("mcp").Zerolog(), "", 0))
	if err := stdio.Listen(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func toMCPTool(def tools.Definition) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(def.Description)}
	for _, f := range def.Fields {
		props := []mcp.PropertyOption{mcp.Description(f.Description)}
		if f.Required {
			props = append(props, mcp.Required())
		}
		switch f.Type {
		case tools.Number:
			if d, ok := toFloat(f.Default); ok {
				props = append(props, mcp.DefaultNumber(d))
			}
			opts = append(opts, mcp.WithNumber(f.Name, props...))
		case tools.Boolean:
			if d, ok := f.Default.(bool); ok {
				props = append(props, mcp.DefaultBool(d))
			}
			opts = append(opts, mcp.WithBoolean(f.Name, props...))
		default:
			if d, ok := f.Default.(string); ok {
				props = append(props, mcp.DefaultString(d))
			}
			opts = append(opts, mcp.WithString(f.Name, props...))
		}
	}
	return mcp.NewTool(def.Name, opts...)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// handler routes a call through Registry.Invoke. Tool failures are
// reported as MCP tool errors so the client model can see them.
func handler(reg *tools.Registry, name string, log *logging.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		raw, err := json.Marshal(args)
		if err != nil {
			return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
		}

		out, err := reg.Invoke(ctx, name, raw)
		if err != nil {
			log.Debug().Str("tool", name).Err(err).Msg("tool call failed")
			return mcp.NewToolResultError(err.Error()), nil
		}
		log.Debug().Str("tool", name).Int("bytes", len(out)).Msg("tool call done")
		return mcp.NewToolResultText(out), nil
	}
}
