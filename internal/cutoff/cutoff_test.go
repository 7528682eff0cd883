package cutoff

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const statement = "ACME BANK\nAccount 123\nCoffee -3.50\nPage 2 of 2\nTotals 100.00"

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		text string
		d    Decision
		want string
	}{
		{"prefix before marker", "  header\nbody\nMARK tail", UseCutoffDecision("MARK"), "header\nbody"},
		{"first occurrence wins", "a MARK b MARK c", UseCutoffDecision("MARK"), "a"},
		{"marker at start", "MARK rest", UseCutoffDecision("MARK"), ""},
		{"no cutoff keeps text verbatim", "  padded text \n", NoCutoffDecision(), "  padded text \n"},
		{"abort keeps text", "text", AbortDecision(), "text"},
		{"unicode", "Hesap Özeti\nİşlemler Sayfa 2", UseCutoffDecision("Sayfa 2"), "Hesap Özeti\nİşlemler"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truncate(tt.text, tt.d))
		})
	}
}

func TestTruncate_ResultIsPrefix(t *testing.T) {
	got := Truncate(statement, UseCutoffDecision("Page 2 of 2"))
	assert.True(t, strings.HasPrefix(statement, got))
	assert.NotContains(t, got, "Page 2 of 2")
	assert.NotContains(t, got, "Totals")
}

func TestVerify(t *testing.T) {
	assert.True(t, Verify(statement, "Page 2 of 2"))
	assert.False(t, Verify(statement, "page 2 of 2"))
	assert.False(t, Verify(statement, ""))
}

func TestResolver_Absent(t *testing.T) {
	r := NewResolver(nil, zap.NewNop())
	d, err := r.Resolve(context.Background(), statement, AbsentCandidate())
	require.NoError(t, err)
	assert.Equal(t, NoCutoff, d.Kind)
	assert.Equal(t, statement, Truncate(statement, d))
}

func TestResolver_ReadErrorAborts(t *testing.T) {
	r := NewResolver(NewInteractive(NewScriptedPrompter(), zap.NewNop()), zap.NewNop())
	d, err := r.Resolve(context.Background(), statement, ReadErrorCandidate(errors.New("corrupt")))
	require.NoError(t, err)
	assert.Equal(t, Abort, d.Kind)
}

func TestResolver_PresentAndVerified(t *testing.T) {
	p := NewScriptedPrompter()
	r := NewResolver(NewInteractive(p, zap.NewNop()), zap.NewNop())

	d, err := r.Resolve(context.Background(), statement, PresentCandidate("Page 2 of 2"))
	require.NoError(t, err)
	assert.Equal(t, UseCutoffDecision("Page 2 of 2"), d)
	assert.Empty(t, p.Questions, "verified marker must not escalate")
}

func TestResolver_UnverifiedAlternateThenVerified(t *testing.T) {
	p := NewScriptedPrompter("1", "Page 9", "1", "Totals")
	r := NewResolver(NewInteractive(p, zap.NewNop()), zap.NewNop())

	d, err := r.Resolve(context.Background(), statement, PresentCandidate("Sayfa 2"))
	require.NoError(t, err)
	assert.Equal(t, UseCutoffDecision("Totals"), d)
	assert.Len(t, p.Questions, 4)
	require.Len(t, p.Warnings, 2)
	assert.Contains(t, p.Warnings[1], `"Page 9"`)
}

func TestResolver_UnverifiedProceedWithoutCutoff(t *testing.T) {
	p := NewScriptedPrompter("2")
	r := NewResolver(NewInteractive(p, zap.NewNop()), zap.NewNop())

	d, err := r.Resolve(context.Background(), statement, PresentCandidate("missing"))
	require.NoError(t, err)
	assert.Equal(t, NoCutoff, d.Kind)
}

func TestResolver_UnverifiedAbort(t *testing.T) {
	p := NewScriptedPrompter("3")
	r := NewResolver(NewInteractive(p, zap.NewNop()), zap.NewNop())

	d, err := r.Resolve(context.Background(), statement, PresentCandidate("missing"))
	require.NoError(t, err)
	assert.Equal(t, Abort, d.Kind)
}

func TestInteractive_InvalidChoiceReprompts(t *testing.T) {
	p := NewScriptedPrompter("4", "yes", "", " 2 ")
	e := NewInteractive(p, zap.NewNop())

	d, err := e.Resolve(context.Background(), PresentCandidate("missing"), statement)
	require.NoError(t, err)
	assert.Equal(t, NoCutoff, d.Kind)
	assert.Len(t, p.Questions, 4)
	// One warning for the unverified marker, one per rejected answer.
	assert.Len(t, p.Warnings, 4)
}

func TestInteractive_EmptyAlternateRejected(t *testing.T) {
	p := NewScriptedPrompter("1", "", "3")
	e := NewInteractive(p, zap.NewNop())

	d, err := e.Resolve(context.Background(), PresentCandidate("missing"), statement)
	require.NoError(t, err)
	assert.Equal(t, Abort, d.Kind)
}

func TestInteractive_InputExhaustedIsError(t *testing.T) {
	p := NewScriptedPrompter("1", "still missing")
	e := NewInteractive(p, zap.NewNop())

	d, err := e.Resolve(context.Background(), PresentCandidate("missing"), statement)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInputExhausted)
	assert.Equal(t, Abort, d.Kind)
}

func TestResolver_EscalationErrorIsWrapped(t *testing.T) {
	r := NewResolver(NewInteractive(NewScriptedPrompter(), zap.NewNop()), zap.NewNop())

	d, err := r.Resolve(context.Background(), statement, PresentCandidate("missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInputExhausted)
	assert.Contains(t, err.Error(), "cutoff: escalate")
	assert.Equal(t, Abort, d.Kind)
}

type lyingEscalator struct{}

func (lyingEscalator) Resolve(context.Context, Candidate, string) (Decision, error) {
	return UseCutoffDecision("not in text"), nil
}

func TestResolver_RejectsUnverifiedEscalationResult(t *testing.T) {
	r := NewResolver(lyingEscalator{}, zap.NewNop())

	d, err := r.Resolve(context.Background(), statement, PresentCandidate("missing"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unverified marker")
	assert.Equal(t, Abort, d.Kind)
}

func TestResolver_NilEscalatorAborts(t *testing.T) {
	r := NewResolver(nil, zap.NewNop())

	d, err := r.Resolve(context.Background(), statement, PresentCandidate("missing"))
	require.NoError(t, err)
	assert.Equal(t, Abort, d.Kind)
}

func TestPolicy(t *testing.T) {
	d, err := NewPolicy(PolicyNoCutoff, zap.NewNop()).Resolve(context.Background(), PresentCandidate("x"), statement)
	require.NoError(t, err)
	assert.Equal(t, NoCutoff, d.Kind)

	d, err = NewPolicy(PolicyAbort, zap.NewNop()).Resolve(context.Background(), PresentCandidate("x"), statement)
	require.NoError(t, err)
	assert.Equal(t, Abort, d.Kind)
}

func TestParsePolicyAction(t *testing.T) {
	a, err := ParsePolicyAction("no-cutoff")
	require.NoError(t, err)
	assert.Equal(t, PolicyNoCutoff, a)

	a, err = ParsePolicyAction("abort")
	require.NoError(t, err)
	assert.Equal(t, PolicyAbort, a)

	_, err = ParsePolicyAction("prompt")
	assert.Error(t, err)
}

func TestLinePrompter(t *testing.T) {
	var out bytes.Buffer
	p := NewLinePrompter(strings.NewReader("1\r\nPage 2 of 2\n"), &out)
	e := NewInteractive(p, zap.NewNop())

	d, err := e.Resolve(context.Background(), PresentCandidate("missing"), statement)
	require.NoError(t, err)
	assert.Equal(t, UseCutoffDecision("Page 2 of 2"), d)
	assert.Contains(t, out.String(), "enter an alternate marker")
	assert.Contains(t, out.String(), "Alternate marker: ")
	assert.Contains(t, out.String(), `"missing"`)
}

func TestLinePrompter_LastLineWithoutNewline(t *testing.T) {
	p := NewLinePrompter(strings.NewReader("3"), &bytes.Buffer{})
	answer, err := p.Ask(context.Background(), "? ")
	require.NoError(t, err)
	assert.Equal(t, "3", answer)

	_, err = p.Ask(context.Background(), "? ")
	assert.ErrorIs(t, err, ErrInputExhausted)
}

func TestPrompters_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLinePrompter(strings.NewReader("1\n"), &bytes.Buffer{}).Ask(ctx, "? ")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = NewScriptedPrompter("1").Ask(ctx, "? ")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKindStrings(t *testing.T) {
	assert.Equal(t, "present", Present.String())
	assert.Equal(t, "read_error", ReadError.String())
	assert.Equal(t, "use_cutoff", UseCutoff.String())
	assert.Equal(t, "abort", Abort.String())
}
