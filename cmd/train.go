package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/finetune-cli/internal/config"
	"github.com/sells-group/finetune-cli/internal/corpus"
	"github.com/sells-group/finetune-cli/internal/cost"
	"github.com/sells-group/finetune-cli/internal/monitoring"
	"github.com/sells-group/finetune-cli/internal/pipeline"
	"github.com/sells-group/finetune-cli/internal/registry"
	"github.com/sells-group/finetune-cli/pkg/finetune"
)

var (
	trainDir      string
	trainModel    string
	trainEpochs   int
	trainPricing  string
	trainSuffix   string
	trainSimulate bool
	trainPoll     bool
)

var trainCmd = &cobra.Command{
	Use:   "train [corpus.jsonl]",
	Short: "Submit a corpus for fine-tuning and record the job",
	Long: "Validates the corpus, estimates its cost and submits a fine-tuning job (simulated unless training.simulate " +
		"is false). With --dir the corpus is prepared first; a batch without successful pairs is not submitted.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if cmd.Flags().Changed("simulate") {
			cfg.Training.Simulate = trainSimulate
		}
		if cmd.Flags().Changed("poll") {
			cfg.Training.Poll = trainPoll
		}
		if err := cfg.Validate("train"); err != nil {
			return err
		}

		path := corpusArg(args)
		if trainDir != "" {
			metrics := monitoring.NewMetrics()
			err := prepareForTraining(ctx, cfg, trainDir, path, metrics, os.Stdin, os.Stderr, os.Stdout)
			writeMetrics(metrics, cfg.Metrics.Textfile, logger)
			if err != nil {
				return err
			}
		}

		calc, err := newCalculator(cfg, trainPricing)
		if err != nil {
			return err
		}
		epochs := trainEpochs
		if epochs <= 0 {
			epochs = cfg.Training.Epochs
		}

		t := &trainer{
			client:   newTrainingClient(cfg, cfg.Training.Simulate, logger),
			registry: registry.New(cfg.Training.RegistryPath),
			calc:     calc,
			log:      logger,
		}
		rec, err := t.submit(ctx, trainRequest{
			Corpus:       path,
			Model:        trainModel,
			DefaultModel: cfg.Training.Model,
			Epochs:       epochs,
			Suffix:       trainSuffix,
			Simulated:    cfg.Training.Simulate,
			Poll:         cfg.Training.Poll,
		})
		if rec.ID != "" {
			formatTrainResult(os.Stdout, rec)
		}
		return err
	},
}

// prepareForTraining builds the corpus at path from the pairs in dir. The
// submission uploads a single file, so the batch is always written in
// combined mode.
func prepareForTraining(
	ctx context.Context,
	c *config.Config,
	dir, path string,
	metrics *monitoring.Metrics,
	in io.Reader,
	prompts io.Writer,
	out io.Writer,
) error {
	pairs, _, err := selectPairs(dir, "", "", logger)
	if err != nil {
		return err
	}

	combined := *c
	if combined.Training.OutputMode != string(pipeline.OutputCombined) {
		logger.Warn("train: using combined output for submission",
			zap.String("output_mode", combined.Training.OutputMode),
			zap.String("corpus", path),
		)
		combined.Training.OutputMode = string(pipeline.OutputCombined)
	}

	prevOut := prepareOutput
	prepareOutput = path
	defer func() { prepareOutput = prevOut }()

	if _, err := prepare(ctx, &combined, pairs, false, metrics, in, prompts, out); err != nil {
		return eris.Wrap(err, "train: prepare corpus")
	}
	return nil
}

// trainRequest describes one submission.
type trainRequest struct {
	Corpus       string
	Model        string
	DefaultModel string
	Epochs       int
	Suffix       string
	Simulated    bool
	Poll         bool
	PollOptions  []finetune.PollOption
}

// trainer submits corpora and keeps the registry current.
type trainer struct {
	client   finetune.Client
	registry *registry.Registry
	calc     *cost.Calculator
	log      *zap.Logger
}

// submit validates the corpus, estimates it, uploads it, creates the job and
// records it. With Poll the record is updated once the job finishes. The
// returned record has an ID once it has been written to the registry.
func (t *trainer) submit(ctx context.Context, req trainRequest) (registry.Record, error) {
	lines, err := corpus.Validate(req.Corpus)
	if err != nil {
		return registry.Record{}, err
	}
	if lines == 0 {
		return registry.Record{}, eris.Wrapf(pipeline.ErrNoSamples, "train: %s is empty", req.Corpus)
	}

	model := t.resolveModel(req.Model, req.DefaultModel)
	est, err := cost.NewEstimator(t.calc, t.log).EstimateDetailed(req.Corpus, model, req.Epochs)
	if err != nil {
		return registry.Record{}, err
	}
	t.log.Info("train: corpus estimated",
		zap.String("model", model),
		zap.Int("lines", est.Lines),
		zap.Float64("training_tokens", est.TrainingTokens),
		zap.Float64("estimated_cost_usd", est.Cost),
	)

	file, err := t.client.UploadFile(ctx, req.Corpus)
	if err != nil {
		return registry.Record{}, eris.Wrap(err, "train: upload corpus")
	}
	job, err := t.client.CreateJob(ctx, finetune.CreateJobRequest{
		TrainingFile:    file.ID,
		Model:           model,
		Hyperparameters: finetune.Hyperparameters{NEpochs: req.Epochs},
		Suffix:          req.Suffix,
	})
	if err != nil {
		return registry.Record{}, eris.Wrap(err, "train: create job")
	}

	rec := registry.Record{
		JobID:           job.ID,
		Model:           model,
		Corpus:          req.Corpus,
		Epochs:          req.Epochs,
		EstimatedTokens: est.TrainingTokens,
		CostUSD:         est.Cost,
		Simulated:       req.Simulated,
	}
	t.applyJob(&rec, job)

	rec, err = t.registry.Add(rec)
	if err != nil {
		return registry.Record{}, err
	}
	t.log.Info("train: job submitted",
		zap.String("job_id", job.ID),
		zap.String("status", job.Status),
		zap.Bool("simulated", req.Simulated),
	)

	if !req.Poll || job.Terminal() {
		return rec, nil
	}

	opts := append([]finetune.PollOption{
		finetune.WithStatusCallback(func(j *finetune.Job) {
			t.log.Info("train: job in progress", zap.String("job_id", j.ID), zap.String("status", j.Status))
		}),
	}, req.PollOptions...)
	final, pollErr := finetune.PollJob(ctx, t.client, job.ID, opts...)
	if final != nil {
		t.applyJob(&rec, final)
		if err := t.registry.Update(rec); err != nil {
			return rec, err
		}
	}
	return rec, pollErr
}

// resolveModel falls back to the default model when the requested one has
// no training price.
func (t *trainer) resolveModel(requested, fallback string) string {
	if requested == "" {
		return fallback
	}
	if !t.calc.HasTrainingRate(requested) {
		t.log.Warn("train: unknown model, using default",
			zap.String("requested", requested),
			zap.String("model", fallback),
		)
		return fallback
	}
	return requested
}

// applyJob copies the job state onto rec. Once tokens are known the cost is
// recomputed from them.
func (t *trainer) applyJob(rec *registry.Record, job *finetune.Job) {
	rec.Status = job.Status
	rec.FineTunedModel = job.FineTunedModel
	if job.FinishedAt > 0 {
		ts := time.Unix(job.FinishedAt, 0).UTC()
		rec.FinishedAt = &ts
	}

	if job.TrainedTokens > 0 {
		rec.TrainedTokens = job.TrainedTokens
		if c, ok := t.calc.Training(rec.Model, float64(job.TrainedTokens)); ok {
			rec.CostUSD = c
		}
	}

	rate, _ := t.calc.TrainingRate(rec.Model)
	switch {
	case job.Error != nil && job.Error.Message != "":
		rec.Explanation = job.Error.Message
	case rec.TrainedTokens > 0:
		rec.Explanation = fmt.Sprintf("%d trained tokens at $%.2f per 1M tokens", rec.TrainedTokens, rate.PerMTok)
	default:
		rec.Explanation = fmt.Sprintf("estimated %.0f training tokens at $%.2f per 1M tokens", rec.EstimatedTokens, rate.PerMTok)
	}
}

func formatTrainResult(out io.Writer, rec registry.Record) {
	_, _ = fmt.Fprintf(out, "Job:       %s\n", rec.JobID)
	_, _ = fmt.Fprintf(out, "Model:     %s\n", rec.Model)
	if rec.FineTunedModel != "" {
		_, _ = fmt.Fprintf(out, "Fine-tuned: %s\n", rec.FineTunedModel)
	}
	_, _ = fmt.Fprintf(out, "Status:    %s\n", rec.Status)
	if rec.Simulated {
		_, _ = fmt.Fprintln(out, "Simulated: yes")
	}
	_, _ = fmt.Fprintf(out, "Cost:      $%.4f (%s)\n", rec.CostUSD, rec.Explanation)
}

func init() {
	trainCmd.Flags().StringVar(&trainDir, "dir", "", "prepare the corpus from this directory of pairs first")
	trainCmd.Flags().StringVar(&trainModel, "model", "", "base model (default: training.model)")
	trainCmd.Flags().IntVar(&trainEpochs, "epochs", 0, "training epochs (default: training.epochs)")
	trainCmd.Flags().StringVar(&trainPricing, "pricing", "", "pricing YAML file overlaid on the configured prices")
	trainCmd.Flags().StringVar(&trainSuffix, "suffix", "", "suffix for the fine-tuned model name")
	trainCmd.Flags().BoolVar(&trainSimulate, "simulate", true, "simulate training without calling the service")
	trainCmd.Flags().BoolVar(&trainPoll, "poll", false, "wait for the job to finish")
	rootCmd.AddCommand(trainCmd)
}
