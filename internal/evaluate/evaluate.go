// Package evaluate measures how well a base Claude model reproduces the
// assistant answers of a corpus without fine-tuning.
package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/finetune-cli/internal/corpus"
	"github.com/sells-group/finetune-cli/internal/cost"
	"github.com/sells-group/finetune-cli/pkg/anthropic"
)

// Outcome is the result of one record.
type Outcome string

// Record outcomes.
const (
	OutcomeMatch    Outcome = "match"
	OutcomeMismatch Outcome = "mismatch"
	OutcomeNoJSON   Outcome = "no_json"
	OutcomeError    Outcome = "error"
)

// Sample is the evaluation of one corpus line.
type Sample struct {
	Line         int
	Outcome      Outcome
	InputTokens  int64
	OutputTokens int64
	Err          error
}

// Result summarizes an evaluation run.
type Result struct {
	Model        string
	Samples      []Sample
	Matched      int
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
}

// Evaluated is the number of records sent to the model.
func (r *Result) Evaluated() int { return len(r.Samples) }

// MatchRate is the share of evaluated records whose answer matched exactly.
func (r *Result) MatchRate() float64 {
	if len(r.Samples) == 0 {
		return 0
	}
	return float64(r.Matched) / float64(len(r.Samples))
}

// Count returns the number of samples with the given outcome.
func (r *Result) Count(o Outcome) int {
	n := 0
	for _, s := range r.Samples {
		if s.Outcome == o {
			n++
		}
	}
	return n
}

// Evaluator sends corpus records to a Claude model and compares answers.
type Evaluator struct {
	ai        anthropic.Client
	calc      *cost.Calculator
	model     string
	maxTokens int64
	log       *zap.Logger
}

// NewEvaluator creates an evaluator for the given model.
func NewEvaluator(ai anthropic.Client, calc *cost.Calculator, model string, maxTokens int, log *zap.Logger) *Evaluator {
	return &Evaluator{
		ai:        ai,
		calc:      calc,
		model:     model,
		maxTokens: int64(maxTokens),
		log:       log.With(zap.String("model", model)),
	}
}

// Evaluate reads the corpus at path and evaluates up to limit records
// (all when limit <= 0). A request failure is recorded on its sample and
// does not stop the run; context cancellation does.
func (e *Evaluator) Evaluate(ctx context.Context, path string, limit int) (*Result, error) {
	records, err := corpus.Read(path)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	res := &Result{Model: e.model}
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "evaluate: cancelled")
		}

		s := e.evaluateRecord(ctx, rec)
		s.Line = i + 1
		if s.Err != nil {
			e.log.Warn("evaluation request failed", zap.Int("line", s.Line), zap.Error(s.Err))
		}

		res.Samples = append(res.Samples, s)
		res.InputTokens += s.InputTokens
		res.OutputTokens += s.OutputTokens
		if s.Outcome == OutcomeMatch {
			res.Matched++
		}
	}

	res.CostUSD = e.calc.Claude(e.model, int(res.InputTokens), int(res.OutputTokens))
	e.log.Info("evaluation complete",
		zap.Int("evaluated", res.Evaluated()),
		zap.Int("matched", res.Matched),
		zap.Int64("input_tokens", res.InputTokens),
		zap.Int64("output_tokens", res.OutputTokens),
		zap.Float64("estimated_cost_usd", res.CostUSD),
	)
	return res, nil
}

func (e *Evaluator) evaluateRecord(ctx context.Context, rec corpus.Record) Sample {
	system, _ := rec.Message(corpus.RoleSystem)
	user, _ := rec.Message(corpus.RoleUser)
	want, _ := rec.Message(corpus.RoleAssistant)

	req := anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		Messages:  []anthropic.Message{{Role: corpus.RoleUser, Content: user.Content}},
	}
	if system.Content != "" {
		req.System = anthropic.CachedSystem(system.Content)
	}

	resp, err := e.ai.CreateMessage(ctx, req)
	if err != nil {
		return Sample{Outcome: OutcomeError, Err: eris.Wrap(err, "evaluate: claude request")}
	}

	s := Sample{
		InputTokens:  resp.Usage.InputTokens + resp.Usage.CacheCreationInputTokens + resp.Usage.CacheReadInputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	got, ok := extractJSON(resp.Text())
	if !ok {
		s.Outcome = OutcomeNoJSON
		return s
	}
	if SameJSON(got, want.Content) {
		s.Outcome = OutcomeMatch
	} else {
		s.Outcome = OutcomeMismatch
	}
	return s
}

// extractJSON returns the outermost {...} span of text.
func extractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// SameJSON reports whether a and b decode to equal JSON values. Object key
// order and whitespace are ignored; everything else must match.
func SameJSON(a, b string) bool {
	var va, vb any
	if err := json.Unmarshal([]byte(a), &va); err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(b), &vb); err != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}

// FormatResult renders the result as markdown.
func FormatResult(r *Result) string {
	var b strings.Builder
	b.WriteString("# Baseline Evaluation\n\n")
	fmt.Fprintf(&b, "- Model: %s\n", r.Model)
	fmt.Fprintf(&b, "- Evaluated: %d\n", r.Evaluated())
	fmt.Fprintf(&b, "- Exact matches: %d (%.1f%%)\n", r.Matched, r.MatchRate()*100)
	fmt.Fprintf(&b, "- Mismatches: %d\n", r.Count(OutcomeMismatch))
	fmt.Fprintf(&b, "- No JSON: %d\n", r.Count(OutcomeNoJSON))
	fmt.Fprintf(&b, "- Errors: %d\n", r.Count(OutcomeError))
	fmt.Fprintf(&b, "- Tokens: %d in / %d out\n", r.InputTokens, r.OutputTokens)
	fmt.Fprintf(&b, "- Estimated cost: $%.4f\n", r.CostUSD)
	return b.String()
}
