package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// queryArgs rewrites args so that a query whose first word happens to name
// a subcommand still reaches the root command. A subcommand keeps its args
// when it accepts the words that follow it; otherwise the flags are kept
// and the words are passed to the root after "--".
func queryArgs(args []string) []string {
	trial := newRootCmd()
	sub, rest, err := trial.Find(args)
	if err != nil || sub == trial {
		return args
	}
	if err := sub.ParseFlags(rest); err == nil {
		words := sub.Flags().Args()
		if sub.Runnable() && sub.ValidateArgs(words) == nil {
			return args
		}
		if !sub.Runnable() && len(words) == 0 {
			return args
		}
	}

	root := newRootCmd()
	fs := pflag.NewFlagSet(root.Name(), pflag.ContinueOnError)
	fs.AddFlagSet(root.Flags())
	fs.AddFlagSet(root.PersistentFlags())
	if err := fs.Parse(args); err != nil || fs.ArgsLenAtDash() >= 0 {
		return args
	}

	var out []string
	fs.Visit(func(f *pflag.Flag) {
		out = append(out, "--"+f.Name+"="+f.Value.String())
	})
	out = append(out, "--")
	return append(out, fs.Args()...)
}

// newHelpCmd replaces cobra's default help command. It is hidden and takes
// no words, so "help me ..." is answered as a query.
func newHelpCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "help",
		Short:  "Help about delegent",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Root().Help()
		},
	}
}
