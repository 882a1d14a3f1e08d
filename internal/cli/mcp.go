package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soyeahso/delegent/internal/mcpserver"
	"github.com/soyeahso/delegent/internal/tools"
	"github.com/soyeahso/delegent/internal/version"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Expose the tools as an MCP server on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := tools.NewBuiltinRegistry(tools.NewEnv(cfg.Tools, log))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info().Int("tools", reg.Len()).Msg("serving MCP on stdio")
			s := mcpserver.New(reg, version.Version, log)
			return mcpserver.Serve(ctx, s, cmd.InOrStdin(), cmd.OutOrStdout(), log)
		},
	}
}
