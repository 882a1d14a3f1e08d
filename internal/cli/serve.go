package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tillberg/autorestart"

	"github.com/soyeahso/delegent/internal/config"
	"github.com/soyeahso/delegent/internal/llm"
	"github.com/soyeahso/delegent/internal/logging"
	"github.com/soyeahso/delegent/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		addr    string
		backend string
		watch   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve queries over HTTP and WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if logLevel == "" && os.Getenv("DELEGENT_LOG_LEVEL") == "" {
				log = logging.New(nil, "info")
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("llm") {
				cfg.LLM.Backend = backend
			}
			b, err := llm.ParseBackend(cfg.LLM.Backend)
			if err != nil {
				return err
			}

			if watch {
				go autorestart.RestartOnChange()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, b, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.New(cfg.Server, string(b), a.graph.Central, a.memory, log)
			if err := srv.Start(ctx); err != nil {
				return fmt.Errorf("server: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default 127.0.0.1:8420)")
	cmd.Flags().StringVar(&backend, "llm", config.BackendGemini, "chat model backend ("+strings.Join(config.Backends, ", ")+")")
	cmd.Flags().BoolVar(&watch, "watch", false, "restart when the binary is rebuilt")
	return cmd
}
