package cost

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Rates holds per-model pricing configuration.
type Rates struct {
	Training  map[string]TrainingRate `yaml:"training" mapstructure:"training"`
	Anthropic map[string]ModelRate    `yaml:"anthropic" mapstructure:"anthropic"`
}

// TrainingRate is the fine-tuning price of one model (USD per million
// training tokens).
type TrainingRate struct {
	PerMTok     float64 `yaml:"training_per_mtok" mapstructure:"training_per_mtok"`
	Description string  `yaml:"description" mapstructure:"description"`
}

// ModelRate holds per-model inference token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Calculator computes costs for training and inference usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Training returns the cost of training tokens on model. ok is false for a
// model without a price.
func (c *Calculator) Training(model string, trainingTokens float64) (cost float64, ok bool) {
	rate, ok := c.rates.Training[model]
	if !ok {
		return 0, false
	}
	return (rate.PerMTok / 1_000_000) * trainingTokens, true
}

// HasTrainingRate reports whether model has a training price.
func (c *Calculator) HasTrainingRate(model string) bool {
	_, ok := c.rates.Training[model]
	return ok
}

// TrainingModels returns the priced models in name order.
func (c *Calculator) TrainingModels() []string {
	models := make([]string, 0, len(c.rates.Training))
	for m := range c.rates.Training {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// TrainingRate returns the price entry of model.
func (c *Calculator) TrainingRate(model string) (TrainingRate, bool) {
	r, ok := c.rates.Training[model]
	return r, ok
}

// Claude computes the cost for a Claude API call.
func (c *Calculator) Claude(model string, input, output int) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}
	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	return inCost + outCost
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Training: map[string]TrainingRate{
			"gpt-4o-2024-08-06":      {PerMTok: 25.0, Description: "GPT-4o"},
			"gpt-4o-mini-2024-07-18": {PerMTok: 3.0, Description: "GPT-4o mini"},
			"gpt-3.5-turbo":          {PerMTok: 8.0, Description: "GPT-3.5 Turbo"},
		},
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 1.00, Output: 5.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
		},
	}
}

// pricingFile is the layout of a standalone pricing YAML file.
type pricingFile struct {
	Training []struct {
		Model           string  `yaml:"model"`
		TrainingPerMTok float64 `yaml:"training_per_mtok"`
		Description     string  `yaml:"description"`
	} `yaml:"training"`
	Anthropic map[string]ModelRate `yaml:"anthropic"`
}

// LoadRates reads a pricing YAML file and overlays it on base. Models in the
// file replace entries of the same name.
func LoadRates(path string, base Rates) (Rates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rates{}, eris.Wrapf(err, "cost: read pricing file %s", path)
	}

	var pf pricingFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return Rates{}, eris.Wrapf(err, "cost: parse pricing file %s", path)
	}

	out := Rates{
		Training:  make(map[string]TrainingRate, len(base.Training)+len(pf.Training)),
		Anthropic: make(map[string]ModelRate, len(base.Anthropic)+len(pf.Anthropic)),
	}
	for k, v := range base.Training {
		out.Training[k] = v
	}
	for k, v := range base.Anthropic {
		out.Anthropic[k] = v
	}
	for _, t := range pf.Training {
		if t.Model == "" {
			return Rates{}, eris.Errorf("cost: pricing file %s: training entry without model", path)
		}
		out.Training[t.Model] = TrainingRate{PerMTok: t.TrainingPerMTok, Description: t.Description}
	}
	for k, v := range pf.Anthropic {
		out.Anthropic[k] = v
	}
	return out, nil
}
