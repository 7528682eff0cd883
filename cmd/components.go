package main

import (
	"io"

	"go.uber.org/zap"

	"github.com/sells-group/finetune-cli/internal/config"
	"github.com/sells-group/finetune-cli/internal/corpus"
	"github.com/sells-group/finetune-cli/internal/cost"
	"github.com/sells-group/finetune-cli/internal/cutoff"
	"github.com/sells-group/finetune-cli/internal/monitoring"
	"github.com/sells-group/finetune-cli/internal/ocr"
	"github.com/sells-group/finetune-cli/internal/pipeline"
	"github.com/sells-group/finetune-cli/internal/resilience"
	"github.com/sells-group/finetune-cli/internal/sheet"
	"github.com/sells-group/finetune-cli/pkg/finetune"
)

// newCalculator layers the configured training prices and an optional
// pricing file over the built-in rates.
func newCalculator(c *config.Config, pricingPath string) (*cost.Calculator, error) {
	rates := cost.DefaultRates()
	for model, tp := range c.Pricing.PriceTable() {
		rates.Training[model] = cost.TrainingRate{PerMTok: tp.TrainingPerMTok, Description: tp.Description}
	}
	if pricingPath != "" {
		var err error
		rates, err = cost.LoadRates(pricingPath, rates)
		if err != nil {
			return nil, err
		}
	}
	return cost.NewCalculator(rates), nil
}

// newEscalator builds the resolver port named by training.on_unverified.
// "prompt" asks on in/out; the other values settle every case unattended.
func newEscalator(mode string, in io.Reader, out io.Writer, log *zap.Logger) (cutoff.Escalator, error) {
	if mode == "prompt" {
		return cutoff.NewInteractive(cutoff.NewLinePrompter(in, out), log), nil
	}
	action, err := cutoff.ParsePolicyAction(mode)
	if err != nil {
		return nil, err
	}
	return cutoff.NewPolicy(action, log), nil
}

// newPipeline wires the per-pair components from config.
func newPipeline(c *config.Config, esc cutoff.Escalator, metrics *monitoring.Metrics, log *zap.Logger) (*pipeline.Pipeline, error) {
	docs, err := ocr.NewExtractor(c.Document, log)
	if err != nil {
		return nil, err
	}

	schema := sheet.Schema{
		MarkerLabel:       c.Schema.MarkerLabel,
		DescriptionColumn: c.Schema.DescriptionColumn,
		AmountColumn:      c.Schema.AmountColumn,
	}
	keys := corpus.Keys{Info: c.Schema.InfoKey, Transactions: c.Schema.TransactionsKey}

	return pipeline.New(
		docs,
		ocr.LoadOptions{NormalizeUnicode: c.Document.NormalizeUnicode},
		sheet.NewExtractor(schema, log),
		cutoff.NewResolver(esc, log),
		corpus.NewAssembler(c.Training.SystemPrompt, keys, corpus.NewWriter(log), log),
		metrics,
		log,
	), nil
}

// newTrainingClient returns the simulator or the HTTP client.
func newTrainingClient(c *config.Config, simulate bool, log *zap.Logger) finetune.Client {
	if simulate {
		return finetune.NewSimulator()
	}
	return finetune.NewClient(c.Provider.Key,
		finetune.WithBaseURL(c.Provider.BaseURL),
		finetune.WithRateLimit(c.Provider.RequestsPerSecond),
		finetune.WithRetry(resilience.FromConfig(c.Provider.Retry)),
		finetune.WithLogger(log),
	)
}

// writeMetrics exports metrics when a textfile path is configured.
func writeMetrics(m *monitoring.Metrics, path string, log *zap.Logger) {
	if err := m.WriteTextfile(path); err != nil {
		log.Warn("metrics export failed", zap.String("path", path), zap.Error(err))
	}
}
