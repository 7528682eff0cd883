package cost

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sells-group/finetune-cli/internal/corpus"
)

// AssistantWeight scales assistant messages for the structural overhead of
// their JSON answers.
const AssistantWeight = 1.2

// EstimateText approximates the token count of one message's content: per
// whitespace-separated word, a third of its length in characters, plus 0.5
// if it contains a decimal digit, plus 0.5 if it contains any character that
// is neither a letter nor a number.
func EstimateText(content string) float64 {
	var tokens float64
	for _, word := range strings.Fields(content) {
		tokens += float64(utf8.RuneCountInString(word)) / 3
		if strings.IndexFunc(word, unicode.IsDigit) >= 0 {
			tokens += 0.5
		}
		if strings.IndexFunc(word, isSymbol) >= 0 {
			tokens += 0.5
		}
	}
	return tokens
}

func isSymbol(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsNumber(r)
}

// EstimateMessage applies the role weight to a message's token estimate.
func EstimateMessage(m corpus.Message) float64 {
	tokens := EstimateText(m.Content)
	if m.Role == corpus.RoleAssistant {
		tokens *= AssistantWeight
	}
	return tokens
}

// Estimate is the detailed result of a corpus estimation.
type Estimate struct {
	Model          string
	Epochs         int
	Lines          int
	ByRole         map[string]float64
	TotalTokens    float64
	TrainingTokens float64
	Cost           float64
}

// Estimator approximates training token counts and cost of a corpus.
type Estimator struct {
	calc *Calculator
	log  *zap.Logger
}

// NewEstimator creates an Estimator.
func NewEstimator(calc *Calculator, log *zap.Logger) *Estimator {
	return &Estimator{calc: calc, log: log}
}

// Estimate returns the approximate token total of the corpus at path and the
// cost of training model on it for epochs. Any failure is logged and yields
// (0, 0).
func (e *Estimator) Estimate(path, model string, epochs int) (totalTokens, cost float64) {
	est, err := e.EstimateDetailed(path, model, epochs)
	if err != nil {
		return 0, 0
	}
	return est.TotalTokens, est.Cost
}

// EstimateDetailed is Estimate with a per-role breakdown. The error is
// informational; it has already been logged.
func (e *Estimator) EstimateDetailed(path, model string, epochs int) (*Estimate, error) {
	records, err := corpus.Read(path)
	if err != nil {
		e.log.Error("cost: cannot read corpus", zap.String("path", path), zap.Error(err))
		return nil, err
	}

	est := EstimateRecords(records)
	est.Model = model
	est.Epochs = epochs
	est.TrainingTokens = est.TotalTokens * float64(epochs)

	c, ok := e.calc.Training(model, est.TrainingTokens)
	if !ok {
		err := errUnknownModel(model)
		e.log.Error("cost: no training price for model", zap.String("model", model))
		return nil, err
	}
	est.Cost = c

	e.log.Info("cost: corpus estimated",
		zap.String("path", path),
		zap.String("model", model),
		zap.Int("lines", est.Lines),
		zap.Float64("total_tokens", est.TotalTokens),
		zap.Float64("training_tokens", est.TrainingTokens),
		zap.Float64("cost_usd", est.Cost),
	)
	return est, nil
}

// EstimateRecords sums message estimates over records in order.
func EstimateRecords(records []corpus.Record) *Estimate {
	est := &Estimate{ByRole: make(map[string]float64), Lines: len(records)}
	for _, rec := range records {
		for _, m := range rec.Messages {
			tokens := EstimateMessage(m)
			est.ByRole[m.Role] += tokens
			est.TotalTokens += tokens
		}
	}
	return est
}
