package corpus

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"
)

// ErrCorpusIntegrity marks a corpus file containing a line that does not
// match the record schema.
var ErrCorpusIntegrity = eris.New("corpus integrity violated")

// IntegrityError identifies the first invalid line of a corpus.
type IntegrityError struct {
	Path   string
	Line   int // 1-based
	Reason string
}

func (e *IntegrityError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("corpus: line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("corpus: %s line %d: %s", e.Path, e.Line, e.Reason)
}

// Unwrap lets errors.Is match ErrCorpusIntegrity.
func (e *IntegrityError) Unwrap() error { return ErrCorpusIntegrity }

var recordSchema = map[string]any{
	"type":     "object",
	"required": []any{"messages"},
	"properties": map[string]any{
		"messages": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"role", "content"},
				"properties": map[string]any{
					"role":    map[string]any{"type": "string"},
					"content": map[string]any{"type": "string"},
				},
			},
		},
	},
}

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(recordSchema))
})

// Validate checks every line of the corpus at path and returns the number of
// valid lines. The first invalid line yields an *IntegrityError.
func Validate(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, eris.Wrapf(err, "corpus: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	n, err := ValidateReader(f)
	var ie *IntegrityError
	if errors.As(err, &ie) {
		ie.Path = path
	}
	return n, err
}

// ValidateReader checks every line read from r.
func ValidateReader(r io.Reader) (int, error) {
	schema, err := compiledSchema()
	if err != nil {
		return 0, eris.Wrap(err, "corpus: compile record schema")
	}

	n := 0
	err = eachLine(r, func(lineNo int, line []byte) error {
		if reason := checkLine(schema, line); reason != "" {
			return &IntegrityError{Line: lineNo, Reason: reason}
		}
		n++
		return nil
	})
	return n, err
}

func checkLine(schema *gojsonschema.Schema, line []byte) string {
	if len(bytes.TrimSpace(line)) == 0 {
		return "empty line"
	}
	// The schema loader stops after the first value; a line must hold exactly one.
	if !json.Valid(line) {
		return "invalid JSON"
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(line))
	if err != nil {
		return "invalid JSON: " + err.Error()
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return strings.Join(errs, "; ")
	}
	return ""
}

// Read decodes every record of the corpus at path.
func Read(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "corpus: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var records []Record
	err = eachLine(f, func(lineNo int, line []byte) error {
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return &IntegrityError{Path: path, Line: lineNo, Reason: "invalid JSON: " + err.Error()}
		}
		records = append(records, rec)
		return nil
	})
	return records, err
}

// eachLine calls fn for every newline-terminated line of r. A final newline
// does not start an extra empty line.
func eachLine(r io.Reader, fn func(lineNo int, line []byte) error) error {
	br := bufio.NewReader(r)
	for lineNo := 1; ; lineNo++ {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			if ferr := fn(lineNo, bytes.TrimRight(line, "\r\n")); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "corpus: read line")
		}
	}
}
