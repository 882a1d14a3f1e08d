package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/soyeahso/delegent/internal/llm"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models pulled on the local Ollama daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			local := cfg.LLM.OllamaLocal
			models, err := llm.ListOllamaModels(cmd.Context(), local.Endpoint, nil)
			if err != nil {
				return fmt.Errorf("listing models at %s: %w", local.Endpoint, err)
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "\tNAME\tSIZE\tPARAMS\tMODIFIED")
			for _, m := range models {
				mark := ""
				if llm.HasModel([]llm.LocalModel{m}, local.Model) {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					mark, m.Name, humanize.Bytes(uint64(m.Size)), m.ParameterSize, humanize.Time(m.ModifiedAt))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if !llm.HasModel(models, local.Model) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: configured model %q is not pulled; run `ollama pull %s`\n", local.Model, local.Model)
			}
			return nil
		},
	}
}
