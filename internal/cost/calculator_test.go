package cost

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRates() Rates {
	return Rates{
		Training: map[string]TrainingRate{
			"mini":  {PerMTok: 3.0, Description: "small"},
			"large": {PerMTok: 25.0, Description: "large"},
		},
		Anthropic: map[string]ModelRate{
			"haiku":  {Input: 0.80, Output: 4.00},
			"sonnet": {Input: 3.00, Output: 15.00},
		},
	}
}

func TestTraining(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name   string
		model  string
		tokens float64
		want   float64
		ok     bool
	}{
		{name: "one million on mini", model: "mini", tokens: 1_000_000, want: 3.0, ok: true},
		{name: "simulated usage on large", model: "large", tokens: 10_000, want: 0.25, ok: true},
		{name: "zero tokens", model: "mini", tokens: 0, want: 0, ok: true},
		{name: "unknown model", model: "nope", tokens: 1000, want: 0, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := calc.Training(tt.model, tt.tokens)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestTraining_OperationOrder(t *testing.T) {
	calc := NewCalculator(testRates())
	got, _ := calc.Training("mini", 12345.678)
	assert.Equal(t, (3.0/1_000_000)*12345.678, got)
}

func TestClaude(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	assert.InDelta(t, 0.80+0.40, calc.Claude("haiku", 1_000_000, 100_000), 1e-9)
	assert.InDelta(t, 0.30+0.15, calc.Claude("sonnet", 100_000, 10_000), 1e-9)
	assert.Zero(t, calc.Claude("unknown", 1_000_000, 1_000_000))
}

func TestTrainingModels(t *testing.T) {
	calc := NewCalculator(testRates())
	assert.Equal(t, []string{"large", "mini"}, calc.TrainingModels())
	assert.True(t, calc.HasTrainingRate("mini"))
	assert.False(t, calc.HasTrainingRate("gpt-5"))

	r, ok := calc.TrainingRate("large")
	require.True(t, ok)
	assert.Equal(t, "large", r.Description)
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	rates := DefaultRates()

	require.Len(t, rates.Training, 3)
	assert.Equal(t, 25.0, rates.Training["gpt-4o-2024-08-06"].PerMTok)
	assert.Equal(t, 3.0, rates.Training["gpt-4o-mini-2024-07-18"].PerMTok)
	assert.Equal(t, 8.0, rates.Training["gpt-3.5-turbo"].PerMTok)

	for name, rate := range rates.Anthropic {
		assert.Greater(t, rate.Output, rate.Input, "model %s output should cost more than input", name)
	}
}

func TestLoadRates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	content := `
training:
  - model: mini
    training_per_mtok: 2.5
    description: discounted
  - model: custom-ft
    training_per_mtok: 1.0
anthropic:
  opus:
    input: 15
    output: 75
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rates, err := LoadRates(path, testRates())
	require.NoError(t, err)
	assert.Equal(t, TrainingRate{PerMTok: 2.5, Description: "discounted"}, rates.Training["mini"])
	assert.Equal(t, 1.0, rates.Training["custom-ft"].PerMTok)
	assert.Equal(t, 25.0, rates.Training["large"].PerMTok)
	assert.Equal(t, 75.0, rates.Anthropic["opus"].Output)
	assert.Equal(t, 4.0, rates.Anthropic["haiku"].Output)

	// base is not modified
	assert.Equal(t, 3.0, testRates().Training["mini"].PerMTok)
}

func TestLoadRates_Errors(t *testing.T) {
	_, err := LoadRates(filepath.Join(t.TempDir(), "missing.yaml"), testRates())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read pricing file")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("training: [unclosed"), 0o644))
	_, err = LoadRates(bad, testRates())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse pricing file")

	noModel := filepath.Join(t.TempDir(), "nomodel.yaml")
	require.NoError(t, os.WriteFile(noModel, []byte("training:\n  - training_per_mtok: 1\n"), 0o644))
	_, err = LoadRates(noModel, testRates())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without model")
}
