// Package pipeline turns document/spreadsheet pairs into corpus records.
package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/finetune-cli/internal/corpus"
	"github.com/sells-group/finetune-cli/internal/cutoff"
	"github.com/sells-group/finetune-cli/internal/monitoring"
	"github.com/sells-group/finetune-cli/internal/ocr"
	"github.com/sells-group/finetune-cli/internal/sheet"
)

var (
	// ErrAborted is returned when cutoff resolution chose to abort a pair.
	ErrAborted = eris.New("pair aborted")
	// ErrExtractionEmpty is returned when a pair yields no text or no
	// transaction rows.
	ErrExtractionEmpty = eris.New("extraction empty")
	// ErrNoSamples is returned when a batch produced no records.
	ErrNoSamples = eris.New("no successful samples")
)

// OutputMode selects where records are written.
type OutputMode string

const (
	// OutputCombined writes every record to one corpus file.
	OutputCombined OutputMode = "combined"
	// OutputPerPair writes each record to <base>.jsonl.
	OutputPerPair OutputMode = "per-pair"
)

// Options configures a batch run.
type Options struct {
	Mode OutputMode
	// Output is the corpus path in combined mode.
	Output string
	// OutputDir holds per-pair files; empty means next to each source.
	OutputDir string
}

// Pipeline runs the per-pair flow: marker lookup, document load, cutoff
// resolution, truncation, table extraction and record assembly.
type Pipeline struct {
	docs      ocr.Extractor
	loadOpts  ocr.LoadOptions
	sheets    *sheet.Extractor
	resolver  *cutoff.Resolver
	assembler *corpus.Assembler
	metrics   *monitoring.Metrics
	log       *zap.Logger
}

// New creates a Pipeline. metrics may be nil.
func New(
	docs ocr.Extractor,
	loadOpts ocr.LoadOptions,
	sheets *sheet.Extractor,
	resolver *cutoff.Resolver,
	assembler *corpus.Assembler,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *Pipeline {
	return &Pipeline{
		docs:      docs,
		loadOpts:  loadOpts,
		sheets:    sheets,
		resolver:  resolver,
		assembler: assembler,
		metrics:   metrics,
		log:       log,
	}
}

// ProcessPair converts one pair into a record written to out. Abort yields
// ErrAborted; empty text or an empty transactions table yields
// ErrExtractionEmpty; a corpus that fails validation after the write yields
// an error wrapping corpus.ErrCorpusIntegrity.
func (p *Pipeline) ProcessPair(ctx context.Context, pair Pair, out string, mode corpus.Mode) (corpus.Stats, error) {
	log := p.log.With(zap.String("pair", pair.Base))

	candidate := cutoff.AbsentCandidate()
	marker, ok, err := p.sheets.Marker(pair.Sheet)
	switch {
	case err != nil:
		candidate = cutoff.ReadErrorCandidate(err)
	case ok:
		candidate = cutoff.PresentCandidate(marker)
	}

	var text string
	if candidate.Kind != cutoff.ReadError {
		doc, err := ocr.Load(ctx, p.docs, pair.Source, p.loadOpts, log)
		if err != nil {
			return corpus.Stats{}, err
		}
		text = doc.Text
	}

	decision, err := p.resolver.Resolve(ctx, text, candidate)
	if err != nil {
		return corpus.Stats{}, err
	}
	if decision.Kind == cutoff.Abort {
		if candidate.Err != nil {
			return corpus.Stats{}, eris.Wrapf(ErrAborted, "pipeline: %s: %v", pair.Base, candidate.Err)
		}
		return corpus.Stats{}, eris.Wrapf(ErrAborted, "pipeline: %s", pair.Base)
	}
	text = cutoff.Truncate(text, decision)

	tables, err := p.sheets.Extract(pair.Sheet)
	if err != nil {
		return corpus.Stats{}, err
	}

	if text == "" || tables.TransactionRows() == 0 {
		return corpus.Stats{}, eris.Wrapf(ErrExtractionEmpty,
			"pipeline: %s: %d text chars, %d transaction rows",
			pair.Base, len([]rune(text)), tables.TransactionRows())
	}

	stats, err := p.assembler.Assemble(out, text, tables, mode)
	if err != nil {
		return corpus.Stats{}, err
	}

	log.Info("pipeline: record written",
		zap.String("output", out),
		zap.String("cutoff", decision.Kind.String()),
		zap.Int("user_chars", stats.UserChars),
		zap.Int("info_rows", stats.InfoRows),
		zap.Int("transaction_rows", stats.TransactionRows),
	)
	return stats, nil
}

// Run processes pairs in order. Per-pair failures are recorded in the
// report and the batch continues; a corpus integrity failure or a failed
// escalation stops the batch. A batch without any record returns
// ErrNoSamples.
func (p *Pipeline) Run(ctx context.Context, pairs []Pair, opts Options) (*Report, error) {
	report := &Report{Pairs: len(pairs)}
	wroteCombined := false

	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return report, eris.Wrap(err, "pipeline: batch cancelled")
		}

		out, mode := p.target(pair, opts, wroteCombined)

		start := time.Now()
		stats, err := p.ProcessPair(ctx, pair, out, mode)
		elapsed := time.Since(start)

		if err != nil {
			kind, fatal := Classify(err)
			p.metrics.ObservePair(string(kind), elapsed)
			report.Failures = append(report.Failures, Failure{Pair: pair, Kind: kind, Err: err})
			if fatal {
				p.log.Error("pipeline: batch halted", zap.String("pair", pair.Base), zap.Error(err))
				return report, err
			}
			p.log.Warn("pipeline: pair skipped",
				zap.String("pair", pair.Base),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
			continue
		}

		p.metrics.ObservePair(monitoring.OutcomeSuccess, elapsed)
		p.metrics.AddSample(stats.UserChars, stats.InfoRows, stats.TransactionRows)

		report.Successful++
		report.UserChars += stats.UserChars
		report.InfoRows += stats.InfoRows
		report.TransactionRows += stats.TransactionRows
		if opts.Mode == OutputPerPair || !wroteCombined {
			report.Outputs = append(report.Outputs, out)
		}
		if opts.Mode != OutputPerPair {
			wroteCombined = true
		}
	}

	if opts.Mode != OutputPerPair && wroteCombined {
		p.metrics.SetCorpusLines(report.Successful)
	}

	p.log.Info("pipeline: batch complete",
		zap.Int("pairs", report.Pairs),
		zap.Int("successful", report.Successful),
		zap.Int("failed", len(report.Failures)),
		zap.Int("user_chars", report.UserChars),
		zap.Int("info_rows", report.InfoRows),
		zap.Int("transaction_rows", report.TransactionRows),
	)

	if report.Successful == 0 {
		return report, ErrNoSamples
	}
	return report, nil
}

func (p *Pipeline) target(pair Pair, opts Options, wroteCombined bool) (string, corpus.Mode) {
	if opts.Mode == OutputPerPair {
		dir := opts.OutputDir
		if dir == "" {
			dir = filepath.Dir(pair.Source)
		}
		return filepath.Join(dir, pair.Base+".jsonl"), corpus.ModeOverwrite
	}
	if wroteCombined {
		return opts.Output, corpus.ModeAppend
	}
	return opts.Output, corpus.ModeOverwrite
}

// Classify maps a pair error to its failure kind and reports whether it
// must stop the batch.
func Classify(err error) (kind FailureKind, fatal bool) {
	switch {
	case errors.Is(err, corpus.ErrCorpusIntegrity):
		return FailureCorpusIntegrity, true
	case errors.Is(err, ErrAborted):
		return FailureAborted, false
	case errors.Is(err, ErrExtractionEmpty):
		return FailureExtractionEmpty, false
	case errors.Is(err, ocr.ErrUnreadableSource),
		errors.Is(err, sheet.ErrUnreadable),
		errors.Is(err, sheet.ErrExtraction):
		return FailureUnreadableSource, false
	default:
		return FailureFatal, true
	}
}
