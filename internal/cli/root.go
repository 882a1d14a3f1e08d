package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soyeahso/delegent/internal/agent"
	"github.com/soyeahso/delegent/internal/config"
	"github.com/soyeahso/delegent/internal/llm"
	"github.com/soyeahso/delegent/internal/logging"
	"github.com/soyeahso/delegent/internal/memory"
)

var (
	cfgFile    string
	logLevel   string
	memoryPath string

	// loaded in PersistentPreRunE
	paths config.Paths
	cfg   config.Config
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	var (
		backend string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "delegent [flags] query...",
		Short: "Delegent: a conversational agent that delegates to a tool agent",
		Long: "Delegent answers a query with a conversational agent that remembers the session\n" +
			"and hands structured work (math, time, weather, web) to a tool-using helper agent.",
		Args: cobra.MinimumNArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			cfg, err = config.Load(paths.Config)
			if err != nil {
				return err
			}
			if memoryPath != "" {
				cfg.Memory.Path = memoryPath
			}
			level := cfg.Logging.Level
			if logLevel != "" {
				level = logLevel
			}
			if !logging.ValidLevel(level) {
				return fmt.Errorf("invalid log level %q", level)
			}
			log = logging.New(nil, level)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("llm") {
				cfg.LLM.Backend = backend
			}
			b, err := llm.ParseBackend(cfg.LLM.Backend)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var obs agent.Observer
			if verbose {
				obs = newStepPrinter(cmd.OutOrStdout()).Print
			}
			a, err := newApp(ctx, b, obs)
			if err != nil {
				return err
			}
			defer a.Close()

			query := strings.Join(args, " ")
			answer, err := a.graph.Central.Run(ctx, query)
			if err != nil {
				return err
			}
			if err := a.memory.Append(ctx, memory.UserTurn(query), memory.AgentTurn(answer)); err != nil {
				return fmt.Errorf("recording turns: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\nAgent Response:\n%s\n", answer)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringVar(&backend, "llm", config.BackendGemini, "chat model backend ("+strings.Join(config.Backends, ", ")+")")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "print the agents' reasoning steps")

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.delegent/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, silent)")
	cmd.PersistentFlags().StringVar(&memoryPath, "memory", "", "conversation log path (default ~/.delegent/memory/session.jsonl)")

	// Query words may start with any subcommand name; see queryArgs.
	cmd.CompletionOptions.DisableDefaultCmd = true
	help := newHelpCmd()
	cmd.SetHelpCommand(help)
	cmd.AddCommand(help)

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newModelsCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMCPCmd())

	return cmd
}

// Execute runs the root command. Errors are printed to stderr.
func Execute() error {
	args := queryArgs(os.Args[1:])
	cmd := newRootCmd()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}
