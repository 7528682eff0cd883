// Package cutoff decides where a source document's text must be cut so that
// a training example never contains the answer it is supposed to produce.
package cutoff

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CandidateKind says what the spreadsheet reported for the cutoff marker.
type CandidateKind int

const (
	Absent CandidateKind = iota
	Present
	ReadError
)

func (k CandidateKind) String() string {
	switch k {
	case Absent:
		return "absent"
	case Present:
		return "present"
	case ReadError:
		return "read_error"
	default:
		return "unknown"
	}
}

// Candidate is the unverified cutoff marker taken from a spreadsheet.
type Candidate struct {
	Kind   CandidateKind
	Marker string
	Err    error
}

// AbsentCandidate reports that the spreadsheet carries no marker.
func AbsentCandidate() Candidate { return Candidate{Kind: Absent} }

// PresentCandidate wraps a marker read from the spreadsheet.
func PresentCandidate(marker string) Candidate {
	return Candidate{Kind: Present, Marker: marker}
}

// ReadErrorCandidate reports that the spreadsheet could not be read.
func ReadErrorCandidate(err error) Candidate {
	return Candidate{Kind: ReadError, Err: err}
}

// DecisionKind is the outcome of cutoff resolution.
type DecisionKind int

const (
	NoCutoff DecisionKind = iota
	UseCutoff
	Abort
)

func (k DecisionKind) String() string {
	switch k {
	case NoCutoff:
		return "no_cutoff"
	case UseCutoff:
		return "use_cutoff"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// Decision tells the pipeline how to treat a document. Marker is set only for
// UseCutoff and is guaranteed to occur in the document text.
type Decision struct {
	Kind   DecisionKind
	Marker string
}

// NoCutoffDecision keeps the full text.
func NoCutoffDecision() Decision { return Decision{Kind: NoCutoff} }

// UseCutoffDecision truncates at marker.
func UseCutoffDecision(marker string) Decision {
	return Decision{Kind: UseCutoff, Marker: marker}
}

// AbortDecision skips the pair.
func AbortDecision() Decision { return Decision{Kind: Abort} }

// Escalator settles a present marker that was not found in the text.
type Escalator interface {
	Resolve(ctx context.Context, candidate Candidate, text string) (Decision, error)
}

// Resolver runs the cutoff state machine for one document.
type Resolver struct {
	escalator Escalator
	log       *zap.Logger
}

// NewResolver creates a Resolver. A nil escalator aborts every unverified
// marker.
func NewResolver(escalator Escalator, log *zap.Logger) *Resolver {
	if escalator == nil {
		escalator = NewPolicy(PolicyAbort, log)
	}
	return &Resolver{escalator: escalator, log: log}
}

// Resolve decides how to cut text given the spreadsheet's candidate marker.
func (r *Resolver) Resolve(ctx context.Context, text string, c Candidate) (Decision, error) {
	switch c.Kind {
	case Absent:
		r.log.Warn("cutoff: no marker in spreadsheet, using full text")
		return NoCutoffDecision(), nil

	case ReadError:
		r.log.Error("cutoff: spreadsheet unreadable, aborting pair", zap.Error(c.Err))
		return AbortDecision(), nil

	case Present:
		if Verify(text, c.Marker) {
			return UseCutoffDecision(c.Marker), nil
		}
		r.log.Warn("cutoff: marker not found in document text", zap.String("marker", c.Marker))

		d, err := r.escalator.Resolve(ctx, c, text)
		if err != nil {
			return AbortDecision(), eris.Wrap(err, "cutoff: escalate")
		}
		if d.Kind == UseCutoff && !Verify(text, d.Marker) {
			return AbortDecision(), eris.Errorf("cutoff: escalation returned unverified marker %q", d.Marker)
		}
		r.log.Info("cutoff: escalation resolved",
			zap.String("decision", d.Kind.String()),
			zap.String("marker", d.Marker),
		)
		return d, nil

	default:
		return AbortDecision(), eris.Errorf("cutoff: unknown candidate kind %d", c.Kind)
	}
}

// Verify reports whether marker occurs verbatim in text. An empty marker
// never verifies.
func Verify(text, marker string) bool {
	return marker != "" && strings.Contains(text, marker)
}

// Truncate applies a decision to text. UseCutoff keeps the prefix before the
// first occurrence of the marker with surrounding whitespace trimmed; NoCutoff
// returns text unchanged.
func Truncate(text string, d Decision) string {
	if d.Kind != UseCutoff || d.Marker == "" {
		return text
	}
	idx := strings.Index(text, d.Marker)
	if idx < 0 {
		return text
	}
	return strings.TrimSpace(text[:idx])
}
