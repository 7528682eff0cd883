package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/finetune-cli/internal/config"
	"github.com/sells-group/finetune-cli/internal/monitoring"
	"github.com/sells-group/finetune-cli/internal/pipeline"
)

var (
	prepareDir          string
	prepareSource       string
	prepareSheet        string
	prepareOutput       string
	prepareOutputMode   string
	prepareOutputDir    string
	prepareOnUnverified string
)

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Build the JSONL corpus from document/spreadsheet pairs",
	Long: "Pairs every <base>.pdf (or .txt) in --dir with <base>.xlsx, cuts each document at its cutoff marker and " +
		"writes one training record per pair. --source and --sheet process a single pair instead.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		applyPrepareFlags(cmd, cfg)
		if err := cfg.Validate("prepare"); err != nil {
			return err
		}

		pairs, single, err := selectPairs(prepareDir, prepareSource, prepareSheet, logger)
		if err != nil {
			return err
		}

		metrics := monitoring.NewMetrics()
		_, err = prepare(cmd.Context(), cfg, pairs, single, metrics, os.Stdin, os.Stderr, os.Stdout)
		writeMetrics(metrics, cfg.Metrics.Textfile, logger)
		return err
	},
}

// applyPrepareFlags lets explicit flags override the loaded config.
func applyPrepareFlags(cmd *cobra.Command, c *config.Config) {
	if cmd.Flags().Changed("output-mode") {
		c.Training.OutputMode = prepareOutputMode
	}
	if cmd.Flags().Changed("on-unverified") {
		c.Training.OnUnverified = prepareOnUnverified
	}
}

// selectPairs returns the single pair named by source/sheet, or every pair
// discovered in dir.
func selectPairs(dir, source, sheetPath string, log *zap.Logger) (pairs []pipeline.Pair, single bool, err error) {
	if source != "" || sheetPath != "" {
		if source == "" || sheetPath == "" {
			return nil, false, eris.New("prepare: --source and --sheet must be given together")
		}
		return []pipeline.Pair{pipeline.NewPair(source, sheetPath)}, true, nil
	}

	pairs, orphans, err := pipeline.Discover(dir)
	if err != nil {
		return nil, false, err
	}
	for _, o := range orphans {
		log.Warn("prepare: source without spreadsheet", zap.String("source", o))
	}
	if len(pairs) == 0 {
		return nil, false, eris.Errorf("prepare: no document/spreadsheet pairs in %s", dir)
	}
	log.Info("prepare: pairs discovered", zap.String("dir", dir), zap.Int("pairs", len(pairs)))
	return pairs, false, nil
}

// prepare runs the pipeline over pairs and prints the batch report. In
// single-pair mode the pair's own failure is returned.
func prepare(
	ctx context.Context,
	c *config.Config,
	pairs []pipeline.Pair,
	single bool,
	metrics *monitoring.Metrics,
	in io.Reader,
	prompts io.Writer,
	out io.Writer,
) (*pipeline.Report, error) {
	esc, err := newEscalator(c.Training.OnUnverified, in, prompts, logger)
	if err != nil {
		return nil, err
	}
	p, err := newPipeline(c, esc, metrics, logger)
	if err != nil {
		return nil, err
	}

	report, err := p.Run(ctx, pairs, pipeline.Options{
		Mode:      pipeline.OutputMode(c.Training.OutputMode),
		Output:    prepareOutput,
		OutputDir: prepareOutputDir,
	})
	if report != nil {
		fmt.Fprint(out, pipeline.FormatReport(report))
	}
	if single && report != nil && len(report.Failures) == 1 {
		return report, report.Failures[0].Err
	}
	return report, err
}

func init() {
	prepareCmd.Flags().StringVar(&prepareDir, "dir", ".", "directory of <base>.pdf/.txt and <base>.xlsx pairs")
	prepareCmd.Flags().StringVar(&prepareSource, "source", "", "single-pair mode: source document (.pdf or .txt)")
	prepareCmd.Flags().StringVar(&prepareSheet, "sheet", "", "single-pair mode: spreadsheet (.xlsx)")
	prepareCmd.Flags().StringVarP(&prepareOutput, "output", "o", "training_data.jsonl", "corpus file in combined mode")
	prepareCmd.Flags().StringVar(&prepareOutputMode, "output-mode", "combined", "combined or per-pair")
	prepareCmd.Flags().StringVar(&prepareOutputDir, "output-dir", "", "per-pair mode: directory for <base>.jsonl files (default: next to each source)")
	prepareCmd.Flags().StringVar(&prepareOnUnverified, "on-unverified", "prompt", "unverified marker handling: prompt, no-cutoff or abort")
	rootCmd.AddCommand(prepareCmd)
}
