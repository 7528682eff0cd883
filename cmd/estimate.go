package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/finetune-cli/internal/cost"
	"github.com/sells-group/finetune-cli/internal/monitoring"
)

var (
	estimateModel   string
	estimateEpochs  int
	estimatePricing string
	estimateList    bool
)

var estimateCmd = &cobra.Command{
	Use:   "estimate [corpus.jsonl]",
	Short: "Estimate training tokens and cost of a corpus",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("estimate"); err != nil {
			return err
		}

		calc, err := newCalculator(cfg, estimatePricing)
		if err != nil {
			return err
		}
		if estimateList {
			formatPrices(os.Stdout, calc)
			return nil
		}

		model := estimateModel
		if model == "" {
			model = cfg.Training.Model
		}
		epochs := estimateEpochs
		if epochs <= 0 {
			epochs = cfg.Training.Epochs
		}

		est, err := cost.NewEstimator(calc, logger).EstimateDetailed(corpusArg(args), model, epochs)
		if err != nil {
			return err
		}

		metrics := monitoring.NewMetrics()
		metrics.SetCorpusLines(est.Lines)
		metrics.SetEstimate(est.Model, est.TrainingTokens, est.Cost)
		writeMetrics(metrics, cfg.Metrics.Textfile, logger)

		formatEstimate(os.Stdout, est)
		return nil
	},
}

func formatEstimate(out io.Writer, est *cost.Estimate) {
	_, _ = fmt.Fprintf(out, "Model:            %s\n", est.Model)
	_, _ = fmt.Fprintf(out, "Lines:            %d\n", est.Lines)

	roles := make([]string, 0, len(est.ByRole))
	for r := range est.ByRole {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	for _, r := range roles {
		_, _ = fmt.Fprintf(out, "  %-15s %.1f tokens\n", r+":", est.ByRole[r])
	}

	_, _ = fmt.Fprintf(out, "Tokens per epoch: %.1f\n", est.TotalTokens)
	_, _ = fmt.Fprintf(out, "Epochs:           %d\n", est.Epochs)
	_, _ = fmt.Fprintf(out, "Training tokens:  %.1f\n", est.TrainingTokens)
	_, _ = fmt.Fprintf(out, "Estimated cost:   $%.4f\n", est.Cost)
}

func formatPrices(out io.Writer, calc *cost.Calculator) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "MODEL\tUSD/1M TOKENS\tDESCRIPTION")
	_, _ = fmt.Fprintln(w, "-----\t-------------\t-----------")
	for _, m := range calc.TrainingModels() {
		r, _ := calc.TrainingRate(m)
		_, _ = fmt.Fprintf(w, "%s\t%.2f\t%s\n", m, r.PerMTok, r.Description)
	}
	_ = w.Flush()
}

func init() {
	estimateCmd.Flags().StringVar(&estimateModel, "model", "", "base model to price (default: training.model)")
	estimateCmd.Flags().IntVar(&estimateEpochs, "epochs", 0, "training epochs (default: training.epochs)")
	estimateCmd.Flags().StringVar(&estimatePricing, "pricing", "", "pricing YAML file overlaid on the configured prices")
	estimateCmd.Flags().BoolVar(&estimateList, "list-models", false, "print the known training prices and exit")
	rootCmd.AddCommand(estimateCmd)
}
