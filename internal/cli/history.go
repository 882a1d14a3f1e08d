package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/soyeahso/delegent/internal/memory"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the stored conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			mem, err := memory.Open(cfg.Memory, cfg.MemoryPath(paths), log)
			if err != nil {
				return err
			}
			defer mem.Close()

			turns, err := mem.Turns(cmd.Context())
			if err != nil {
				return err
			}
			if limit > 0 {
				turns = memory.Last(turns, limit)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if turns == nil {
					turns = []memory.Turn{}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(turns)
			}

			if len(turns) == 0 {
				fmt.Fprintln(out, "No conversation history.")
				return nil
			}
			for _, t := range turns {
				fmt.Fprintf(out, "[%s] %s: %s\n", humanize.Time(t.CreatedAt), t.Role, oneLine(t.Content))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "show only the last N turns (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the turns as JSON")
	return cmd
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
