package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// FailureKind classifies why a pair produced no record.
type FailureKind string

const (
	FailureUnreadableSource FailureKind = "unreadable_source"
	FailureAborted          FailureKind = "aborted"
	FailureExtractionEmpty  FailureKind = "extraction_empty"
	FailureCorpusIntegrity  FailureKind = "corpus_integrity"
	FailureFatal            FailureKind = "fatal"
)

// Failure records one pair that produced no record.
type Failure struct {
	Pair Pair
	Kind FailureKind
	Err  error
}

// Report aggregates a batch run.
type Report struct {
	Pairs           int
	Successful      int
	UserChars       int
	InfoRows        int
	TransactionRows int
	Failures        []Failure
	// Outputs lists the corpus files written, once each.
	Outputs []string
}

// FailuresByKind counts failures per kind.
func (r *Report) FailuresByKind() map[FailureKind]int {
	out := make(map[FailureKind]int)
	for _, f := range r.Failures {
		out[f.Kind]++
	}
	return out
}

// FormatReport renders a human-readable batch summary.
func FormatReport(r *Report) string {
	var b strings.Builder

	b.WriteString("# Corpus Preparation Report\n\n")

	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- Pairs: %d\n", r.Pairs)
	fmt.Fprintf(&b, "- Successful: %d\n", r.Successful)
	fmt.Fprintf(&b, "- Failed: %d\n", len(r.Failures))
	fmt.Fprintf(&b, "- Total text size: %d characters\n", r.UserChars)
	fmt.Fprintf(&b, "- Info rows: %d\n", r.InfoRows)
	fmt.Fprintf(&b, "- Transaction rows: %d\n\n", r.TransactionRows)

	if len(r.Outputs) > 0 {
		b.WriteString("## Outputs\n")
		for _, o := range r.Outputs {
			fmt.Fprintf(&b, "- %s\n", o)
		}
		b.WriteString("\n")
	}

	if len(r.Failures) > 0 {
		b.WriteString("## Failures\n")
		byKind := r.FailuresByKind()
		kinds := make([]string, 0, len(byKind))
		for k := range byKind {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(&b, "- %s: %d\n", k, byKind[FailureKind(k)])
		}
		b.WriteString("\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "- %s (%s): %v\n", f.Pair.Base, f.Kind, f.Err)
		}
	}

	return b.String()
}
