package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/finetune-cli/internal/evaluate"
	"github.com/sells-group/finetune-cli/pkg/anthropic"
)

var (
	evaluateModel   string
	evaluateLimit   int
	evaluatePricing string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [corpus.jsonl]",
	Short: "Measure how often a base Claude model reproduces the corpus answers",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("evaluate"); err != nil {
			return err
		}

		calc, err := newCalculator(cfg, evaluatePricing)
		if err != nil {
			return err
		}
		model := evaluateModel
		if model == "" {
			model = cfg.Anthropic.Model
		}

		ev := evaluate.NewEvaluator(anthropic.NewClient(cfg.Anthropic.Key), calc, model, cfg.Anthropic.MaxTokens, logger)
		res, err := ev.Evaluate(cmd.Context(), corpusArg(args), evaluateLimit)
		if res != nil {
			fmt.Fprint(os.Stdout, evaluate.FormatResult(res))
		}
		return err
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateModel, "model", "", "Claude model (default: anthropic.model)")
	evaluateCmd.Flags().IntVar(&evaluateLimit, "limit", 0, "evaluate at most this many records (0 = all)")
	evaluateCmd.Flags().StringVar(&evaluatePricing, "pricing", "", "pricing YAML file overlaid on the configured prices")
	rootCmd.AddCommand(evaluateCmd)
}
