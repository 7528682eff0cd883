package cost

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/finetune-cli/internal/corpus"
)

func TestEstimateText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
	}{
		{"letters digits and symbol", "abc123!", 7.0/3 + 0.5 + 0.5},
		{"letters only", "abc", 1},
		{"digits only", "2024", 4.0/3 + 0.5},
		{"symbol only", "-", 1.0/3 + 0.5},
		{"decimal amount", "-3.50", 5.0/3 + 0.5 + 0.5},
		{"multiple words and whitespace", "  ab\tcd\n\nef ", 2.0/3 + 2.0/3 + 2.0/3},
		{"non-ascii letters count as characters", "İşlem", 5.0 / 3},
		{"empty", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, EstimateText(tt.in), 1e-12)
		})
	}
}

func TestEstimateText_Example(t *testing.T) {
	assert.InDelta(t, 3.833, EstimateText("abc123!"), 0.001)
}

func TestEstimateMessage_AssistantWeight(t *testing.T) {
	user := EstimateMessage(corpus.Message{Role: corpus.RoleUser, Content: "abc def"})
	assistant := EstimateMessage(corpus.Message{Role: corpus.RoleAssistant, Content: "abc def"})
	assert.InDelta(t, 2.0, user, 1e-12)
	assert.InDelta(t, 2.0*1.2, assistant, 1e-12)
}

func writeCorpus(t *testing.T, records ...corpus.Record) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	w := corpus.NewWriter(zap.NewNop())
	for i, rec := range records {
		mode := corpus.ModeAppend
		if i == 0 {
			mode = corpus.ModeOverwrite
		}
		require.NoError(t, w.Write(path, rec, mode))
	}
	return path
}

func record(system, user, assistant string) corpus.Record {
	return corpus.Record{Messages: []corpus.Message{
		{Role: corpus.RoleSystem, Content: system},
		{Role: corpus.RoleUser, Content: user},
		{Role: corpus.RoleAssistant, Content: assistant},
	}}
}

func TestEstimator_Estimate(t *testing.T) {
	path := writeCorpus(t,
		record("abc", "abc123!", "abc"),
		record("abc", "abc", "abcdef"),
	)
	est := NewEstimator(NewCalculator(testRates()), zap.NewNop())

	total, c := est.Estimate(path, "mini", 3)

	line1 := 1.0 + (7.0/3 + 0.5 + 0.5) + 1.0*1.2
	line2 := 1.0 + 1.0 + 2.0*1.2
	assert.InDelta(t, line1+line2, total, 1e-9)
	assert.InDelta(t, (3.0/1_000_000)*(total*3), c, 1e-15)
}

func TestEstimator_IsPure(t *testing.T) {
	path := writeCorpus(t, record("sys prompt", "Coffee -3.50 2024-01-31", `{"Info":[],"Transactions":[]}`))
	est := NewEstimator(NewCalculator(testRates()), zap.NewNop())

	t1, c1 := est.Estimate(path, "large", 2)
	t2, c2 := est.Estimate(path, "large", 2)
	assert.Equal(t, t1, t2)
	assert.Equal(t, c1, c2)
	assert.Greater(t, t1, 0.0)
}

func TestEstimator_Detailed(t *testing.T) {
	path := writeCorpus(t, record("abc", "abc def", "abc"))
	est := NewEstimator(NewCalculator(testRates()), zap.NewNop())

	d, err := est.EstimateDetailed(path, "mini", 4)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Lines)
	assert.Equal(t, 4, d.Epochs)
	assert.InDelta(t, 1.0, d.ByRole[corpus.RoleSystem], 1e-12)
	assert.InDelta(t, 2.0, d.ByRole[corpus.RoleUser], 1e-12)
	assert.InDelta(t, 1.2, d.ByRole[corpus.RoleAssistant], 1e-12)
	assert.InDelta(t, 4.2, d.TotalTokens, 1e-12)
	assert.InDelta(t, 16.8, d.TrainingTokens, 1e-12)
}

func TestEstimator_FailuresReturnZero(t *testing.T) {
	est := NewEstimator(NewCalculator(testRates()), zap.NewNop())

	total, c := est.Estimate(filepath.Join(t.TempDir(), "missing.jsonl"), "mini", 3)
	assert.Zero(t, total)
	assert.Zero(t, c)

	bad := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(bad, []byte("{not json\n"), 0o644))
	total, c = est.Estimate(bad, "mini", 3)
	assert.Zero(t, total)
	assert.Zero(t, c)

	good := writeCorpus(t, record("a", "b", "c"))
	total, c = est.Estimate(good, "unknown-model", 3)
	assert.Zero(t, total)
	assert.Zero(t, c)

	_, err := est.EstimateDetailed(good, "unknown-model", 3)
	assert.ErrorIs(t, err, ErrUnknownModel)
}
