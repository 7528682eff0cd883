package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/finetune-cli/internal/corpus"
	"github.com/sells-group/finetune-cli/internal/cutoff"
	"github.com/sells-group/finetune-cli/internal/monitoring"
)

const statementText = "ACME BANK\nCoffee -3.50\nSalary 2500\nPage 1 of 1\nCONFIDENTIAL TOTALS"

var txRows = [][]string{
	{"2024-01-31", "Coffee", "-3.50"},
	{"2024-02-01", "Salary", "2500"},
}

func TestRun_EndToEnd_OneUnreadableSpreadsheet(t *testing.T) {
	dir := t.TempDir()

	writeSource(t, dir, "a_good", statementText)
	writeWorkbook(t, dir, "a_good", "Page 1 of 1", txRows)

	writeSource(t, dir, "b_broken", statementText)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_broken.xlsx"), []byte("not a workbook"), 0o644))

	pairs, orphans, err := Discover(dir)
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Empty(t, orphans)

	out := filepath.Join(t.TempDir(), "corpus.jsonl")
	p := newTestPipeline(t, cutoff.NewPolicy(cutoff.PolicyAbort, zap.NewNop()), nil)

	report, err := p.Run(context.Background(), pairs, Options{Mode: OutputCombined, Output: out})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Pairs)
	assert.Equal(t, 1, report.Successful)
	assert.Equal(t, 2, report.TransactionRows)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "b_broken", report.Failures[0].Pair.Base)
	assert.Equal(t, FailureAborted, report.Failures[0].Kind)
	assert.Equal(t, []string{out}, report.Outputs)

	n, err := corpus.Validate(out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	records, err := corpus.Read(out)
	require.NoError(t, err)
	require.Len(t, records, 1)
	user, _ := records[0].Message(corpus.RoleUser)
	assert.Equal(t, "ACME BANK\nCoffee -3.50\nSalary 2500", user.Content)
	assert.NotContains(t, user.Content, "CONFIDENTIAL")
	assert.Equal(t, len([]rune(user.Content)), report.UserChars)
}

func TestRun_CombinedOverwritesThenAppends(t *testing.T) {
	dir := t.TempDir()
	for _, base := range []string{"s1", "s2", "s3"} {
		writeSource(t, dir, base, statementText)
		writeWorkbook(t, dir, base, "Page 1 of 1", txRows)
	}
	out := filepath.Join(t.TempDir(), "corpus.jsonl")
	require.NoError(t, os.WriteFile(out, []byte("old line\nold line\n"), 0o644))

	pairs, _, err := Discover(dir)
	require.NoError(t, err)

	metrics := monitoring.NewMetrics()
	p := newTestPipeline(t, nil, metrics)
	report, err := p.Run(context.Background(), pairs, Options{Mode: OutputCombined, Output: out})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Successful)

	n, err := corpus.Validate(out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Contains(t, FormatReport(report), "- Successful: 3")
	gathered, err := testutil.GatherAndCount(metrics.Registry(), "finetune_pairs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, gathered)
}

func TestRun_PerPairOutputs(t *testing.T) {
	dir := t.TempDir()
	for _, base := range []string{"s1", "s2"} {
		writeSource(t, dir, base, statementText)
		writeWorkbook(t, dir, base, "Page 1 of 1", txRows)
	}
	outDir := t.TempDir()

	pairs, _, err := Discover(dir)
	require.NoError(t, err)

	p := newTestPipeline(t, nil, nil)
	report, err := p.Run(context.Background(), pairs, Options{Mode: OutputPerPair, OutputDir: outDir})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(outDir, "s1.jsonl"),
		filepath.Join(outDir, "s2.jsonl"),
	}, report.Outputs)

	for _, o := range report.Outputs {
		n, err := corpus.Validate(o)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
}

func TestRun_NoSamples(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "empty", statementText)
	writeWorkbook(t, dir, "empty", "Page 1 of 1", nil)

	pairs, _, err := Discover(dir)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "corpus.jsonl")
	report, err := newTestPipeline(t, nil, nil).Run(context.Background(), pairs, Options{Mode: OutputCombined, Output: out})
	require.ErrorIs(t, err, ErrNoSamples)
	assert.Zero(t, report.Successful)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, FailureExtractionEmpty, report.Failures[0].Kind)
	assert.NoFileExists(t, out)
}

func TestProcessPair_MarkerAbsentUsesFullText(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "s", "  padded statement text \n")
	xl := writeWorkbook(t, dir, "s", "", txRows)
	out := filepath.Join(dir, "out.jsonl")

	stats, err := newTestPipeline(t, nil, nil).ProcessPair(context.Background(), NewPair(src, xl), out, corpus.ModeOverwrite)
	require.NoError(t, err)
	assert.Equal(t, len([]rune("  padded statement text \n")), stats.UserChars)
	assert.Zero(t, stats.InfoRows)

	records, err := corpus.Read(out)
	require.NoError(t, err)
	user, _ := records[0].Message(corpus.RoleUser)
	assert.Equal(t, "  padded statement text \n", user.Content)
}

func TestProcessPair_UnverifiedMarkerEscalates(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "s", statementText)
	xl := writeWorkbook(t, dir, "s", "Sayfa 1/1", txRows)
	out := filepath.Join(dir, "out.jsonl")

	prompter := cutoff.NewScriptedPrompter("1", "CONFIDENTIAL")
	p := newTestPipeline(t, cutoff.NewInteractive(prompter, zap.NewNop()), nil)

	_, err := p.ProcessPair(context.Background(), NewPair(src, xl), out, corpus.ModeOverwrite)
	require.NoError(t, err)

	records, err := corpus.Read(out)
	require.NoError(t, err)
	user, _ := records[0].Message(corpus.RoleUser)
	assert.Equal(t, "ACME BANK\nCoffee -3.50\nSalary 2500\nPage 1 of 1", user.Content)
}

func TestProcessPair_AbortReturnsError(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "s", statementText)
	xl := writeWorkbook(t, dir, "s", "missing marker", txRows)
	out := filepath.Join(dir, "out.jsonl")

	p := newTestPipeline(t, cutoff.NewInteractive(cutoff.NewScriptedPrompter("3"), zap.NewNop()), nil)
	_, err := p.ProcessPair(context.Background(), NewPair(src, xl), out, corpus.ModeOverwrite)
	require.ErrorIs(t, err, ErrAborted)
	assert.NoFileExists(t, out)
}

func TestProcessPair_UnreadableDocument(t *testing.T) {
	dir := t.TempDir()
	xl := writeWorkbook(t, dir, "s", "Page 1 of 1", txRows)

	p := newTestPipeline(t, nil, nil)
	_, err := p.ProcessPair(context.Background(), NewPair(filepath.Join(dir, "s.pdf"), xl), filepath.Join(dir, "o.jsonl"), corpus.ModeOverwrite)
	require.Error(t, err)
	kind, fatal := Classify(err)
	assert.Equal(t, FailureUnreadableSource, kind)
	assert.False(t, fatal)
}

func TestProcessPair_CutoffAtStartIsEmpty(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "s", "Page 1 of 1 and the rest")
	xl := writeWorkbook(t, dir, "s", "Page 1 of 1", txRows)

	_, err := newTestPipeline(t, nil, nil).ProcessPair(context.Background(), NewPair(src, xl), filepath.Join(dir, "o.jsonl"), corpus.ModeOverwrite)
	require.ErrorIs(t, err, ErrExtractionEmpty)
}

func TestRun_IntegrityErrorHaltsBatch(t *testing.T) {
	dir := t.TempDir()
	for _, base := range []string{"s1", "s2", "s3"} {
		writeSource(t, dir, base, statementText)
		writeWorkbook(t, dir, base, "Page 1 of 1", txRows)
	}
	pairs, _, err := Discover(dir)
	require.NoError(t, err)

	// The second write finds a foreign invalid line already in the corpus.
	out := filepath.Join(t.TempDir(), "corpus.jsonl")
	log := zap.NewNop()
	p := newTestPipeline(t, nil, nil)
	p.assembler = corpus.NewAssembler("sys", corpus.Keys{Info: "Info", Transactions: "Transactions"},
		&corruptingWriter{inner: corpus.NewWriter(log), corruptAfter: 1, path: out}, log)

	report, err := p.Run(context.Background(), pairs, Options{Mode: OutputCombined, Output: out})
	require.Error(t, err)
	assert.ErrorIs(t, err, corpus.ErrCorpusIntegrity)
	assert.Equal(t, 1, report.Successful)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, FailureCorpusIntegrity, report.Failures[0].Kind)
	assert.Equal(t, "s2", report.Failures[0].Pair.Base)
}

// corruptingWriter injects an invalid line before the write that follows
// corruptAfter successful writes.
type corruptingWriter struct {
	inner        corpus.RecordWriter
	corruptAfter int
	writes       int
	path         string
}

func (w *corruptingWriter) Write(path string, rec corpus.Record, mode corpus.Mode) error {
	if w.writes == w.corruptAfter {
		f, err := os.OpenFile(w.path, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		_, _ = f.WriteString(`{"messages":[{"role":"user"}]}` + "\n")
		_ = f.Close()
	}
	w.writes++
	return w.inner.Write(path, rec, mode)
}

func TestRun_EscalationInputExhaustedHaltsBatch(t *testing.T) {
	dir := t.TempDir()
	for _, base := range []string{"s1", "s2"} {
		writeSource(t, dir, base, statementText)
		writeWorkbook(t, dir, base, "unverifiable", txRows)
	}
	pairs, _, err := Discover(dir)
	require.NoError(t, err)

	p := newTestPipeline(t, cutoff.NewInteractive(cutoff.NewScriptedPrompter(), zap.NewNop()), nil)
	report, err := p.Run(context.Background(), pairs, Options{Mode: OutputCombined, Output: filepath.Join(t.TempDir(), "c.jsonl")})
	require.ErrorIs(t, err, cutoff.ErrInputExhausted)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, FailureFatal, report.Failures[0].Kind)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPipeline(t, nil, nil).Run(ctx, []Pair{{Base: "x"}}, Options{Mode: OutputCombined, Output: "unused"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err   error
		kind  FailureKind
		fatal bool
	}{
		{ErrAborted, FailureAborted, false},
		{ErrExtractionEmpty, FailureExtractionEmpty, false},
		{&corpus.IntegrityError{Line: 1, Reason: "x"}, FailureCorpusIntegrity, true},
		{errors.New("boom"), FailureFatal, true},
	}
	for _, tt := range tests {
		kind, fatal := Classify(tt.err)
		assert.Equal(t, tt.kind, kind, tt.err.Error())
		assert.Equal(t, tt.fatal, fatal, tt.err.Error())
	}
}

func TestFormatReport(t *testing.T) {
	r := &Report{
		Pairs:           3,
		Successful:      1,
		UserChars:       120,
		InfoRows:        2,
		TransactionRows: 14,
		Outputs:         []string{"corpus.jsonl"},
		Failures: []Failure{
			{Pair: Pair{Base: "b"}, Kind: FailureAborted, Err: ErrAborted},
			{Pair: Pair{Base: "c"}, Kind: FailureUnreadableSource, Err: errors.New("bad zip")},
		},
	}
	out := FormatReport(r)
	assert.Contains(t, out, "- Pairs: 3")
	assert.Contains(t, out, "- Total text size: 120 characters")
	assert.Contains(t, out, "- Transaction rows: 14")
	assert.Contains(t, out, "- aborted: 1")
	assert.Contains(t, out, "- c (unreadable_source): bad zip")
	assert.True(t, strings.Index(out, "aborted: 1") < strings.Index(out, "unreadable_source: 1"))
}
