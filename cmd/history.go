package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/finetune-cli/internal/registry"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded training submissions, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("history"); err != nil {
			return err
		}

		records, err := registry.New(cfg.Training.RegistryPath).Load()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(os.Stderr, "No training submissions found.")
			return nil
		}
		if historyLimit > 0 && len(records) > historyLimit {
			records = records[:historyLimit]
		}

		formatHistory(os.Stdout, records)
		return nil
	},
}

func formatHistory(out io.Writer, records []registry.Record) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tJOB\tMODEL\tSTATUS\tTOKENS\tCOST\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t---\t-----\t------\t------\t----\t-------")

	for _, r := range records {
		status := r.Status
		if r.Simulated {
			status += " (sim)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t$%.4f\t%s\n",
			truncateID(r.ID),
			r.JobID,
			r.Model,
			status,
			r.TrainedTokens,
			r.CostUSD,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID shortens a UUID to its first 8 characters.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "max number of submissions to display (0 = all)")
	rootCmd.AddCommand(historyCmd)
}
