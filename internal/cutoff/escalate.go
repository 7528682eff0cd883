package cutoff

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	choiceAlternate = "1"
	choiceNoCutoff  = "2"
	choiceAbort     = "3"
)

// Interactive asks an operator how to handle an unverified marker. The
// operator may supply alternate markers until one verifies, proceed without a
// cutoff, or abort the pair.
type Interactive struct {
	prompter Prompter
	log      *zap.Logger
}

// NewInteractive creates an Interactive escalator.
func NewInteractive(p Prompter, log *zap.Logger) *Interactive {
	return &Interactive{prompter: p, log: log}
}

// Resolve implements Escalator.
func (e *Interactive) Resolve(ctx context.Context, c Candidate, text string) (Decision, error) {
	e.prompter.Warn(fmt.Sprintf("Cutoff marker %q was not found in the document text.", c.Marker))

	menu := strings.Join([]string{
		"How should this document be handled?",
		"  1) enter an alternate marker",
		"  2) proceed without a cutoff",
		"  3) abort this pair",
		"Choice [1-3]: ",
	}, "\n")

	for {
		answer, err := e.prompter.Ask(ctx, menu)
		if err != nil {
			return AbortDecision(), err
		}

		switch strings.TrimSpace(answer) {
		case choiceAlternate:
			alt, err := e.prompter.Ask(ctx, "Alternate marker: ")
			if err != nil {
				return AbortDecision(), err
			}
			if alt == "" {
				e.prompter.Warn("An empty marker cannot be verified.")
				continue
			}
			if Verify(text, alt) {
				e.log.Info("cutoff: alternate marker verified", zap.String("marker", alt))
				return UseCutoffDecision(alt), nil
			}
			e.log.Warn("cutoff: alternate marker not found", zap.String("marker", alt))
			e.prompter.Warn(fmt.Sprintf("Marker %q was not found either.", alt))

		case choiceNoCutoff:
			return NoCutoffDecision(), nil

		case choiceAbort:
			return AbortDecision(), nil

		default:
			e.prompter.Warn(fmt.Sprintf("Invalid choice %q, enter 1, 2 or 3.", answer))
		}
	}
}

// PolicyAction is the fixed outcome of a Policy escalator.
type PolicyAction string

const (
	PolicyNoCutoff PolicyAction = "no-cutoff"
	PolicyAbort    PolicyAction = "abort"
)

// ParsePolicyAction validates a configured policy name.
func ParsePolicyAction(s string) (PolicyAction, error) {
	switch a := PolicyAction(s); a {
	case PolicyNoCutoff, PolicyAbort:
		return a, nil
	default:
		return "", eris.Errorf("cutoff: unknown policy %q", s)
	}
}

// Policy settles every unverified marker the same way, for unattended runs.
type Policy struct {
	action PolicyAction
	log    *zap.Logger
}

// NewPolicy creates a Policy escalator.
func NewPolicy(action PolicyAction, log *zap.Logger) *Policy {
	return &Policy{action: action, log: log}
}

// Resolve implements Escalator.
func (p *Policy) Resolve(_ context.Context, c Candidate, _ string) (Decision, error) {
	p.log.Warn("cutoff: unverified marker settled by policy",
		zap.String("marker", c.Marker),
		zap.String("policy", string(p.action)),
	)
	if p.action == PolicyNoCutoff {
		return NoCutoffDecision(), nil
	}
	return AbortDecision(), nil
}
