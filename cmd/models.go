package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/finetune-cli/pkg/finetune"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Check the training service key by listing available models",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("models"); err != nil {
			return err
		}
		return listModels(cmd.Context(), newTrainingClient(cfg, false, logger), os.Stdout)
	},
}

func listModels(ctx context.Context, client finetune.Client, out io.Writer) error {
	models, err := client.ListModels(ctx)
	if err != nil {
		return eris.Wrap(err, "models: list")
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })

	_, _ = fmt.Fprintf(out, "API key valid: %d models available\n\n", len(models))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tOWNED_BY\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t--------\t-------")
	for _, m := range models {
		created := ""
		if m.Created > 0 {
			created = time.Unix(m.Created, 0).UTC().Format("2006-01-02")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", m.ID, m.OwnedBy, created)
	}
	return w.Flush()
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
