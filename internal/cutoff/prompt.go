package cutoff

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/rotisserie/eris"
)

// ErrInputExhausted is returned when the operator's input ends before a
// decision was made.
var ErrInputExhausted = eris.New("cutoff: input exhausted")

// Prompter exchanges lines with an operator.
type Prompter interface {
	// Ask shows question and returns the answer without its line ending.
	Ask(ctx context.Context, question string) (string, error)
	// Warn shows a message that needs no answer.
	Warn(message string)
}

// LinePrompter reads answers line by line from r and writes prompts to w.
type LinePrompter struct {
	in  *bufio.Reader
	out io.Writer

	question *color.Color
	warning  *color.Color
}

// NewLinePrompter creates a LinePrompter, typically over os.Stdin/os.Stderr.
func NewLinePrompter(r io.Reader, w io.Writer) *LinePrompter {
	return &LinePrompter{
		in:       bufio.NewReader(r),
		out:      w,
		question: color.New(color.FgCyan, color.Bold),
		warning:  color.New(color.FgYellow),
	}
}

// Ask implements Prompter.
func (p *LinePrompter) Ask(ctx context.Context, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "cutoff: prompt cancelled")
	}

	p.question.Fprint(p.out, question) //nolint:errcheck

	line, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return trimEOL(line), nil
		}
		if errors.Is(err, io.EOF) {
			return "", ErrInputExhausted
		}
		return "", eris.Wrap(err, "cutoff: read answer")
	}
	return trimEOL(line), nil
}

// Warn implements Prompter.
func (p *LinePrompter) Warn(message string) {
	p.warning.Fprintln(p.out, message) //nolint:errcheck
}

func trimEOL(s string) string {
	return strings.TrimRight(s, "\r\n")
}

// ScriptedPrompter replays fixed answers. It records every question and
// warning it was shown.
type ScriptedPrompter struct {
	mu        sync.Mutex
	answers   []string
	Questions []string
	Warnings  []string
}

// NewScriptedPrompter creates a ScriptedPrompter that answers in order.
func NewScriptedPrompter(answers ...string) *ScriptedPrompter {
	return &ScriptedPrompter{answers: answers}
}

// Ask implements Prompter.
func (p *ScriptedPrompter) Ask(ctx context.Context, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "cutoff: prompt cancelled")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.Questions = append(p.Questions, question)
	if len(p.answers) == 0 {
		return "", ErrInputExhausted
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	return answer, nil
}

// Warn implements Prompter.
func (p *ScriptedPrompter) Warn(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Warnings = append(p.Warnings, message)
}
