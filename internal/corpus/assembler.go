package corpus

import (
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sells-group/finetune-cli/internal/sheet"
)

// Stats describes one assembled record.
type Stats struct {
	UserChars       int
	InfoRows        int
	TransactionRows int
}

// Assembler turns truncated text and extracted tables into corpus lines.
type Assembler struct {
	systemPrompt string
	keys         Keys
	writer       RecordWriter
	log          *zap.Logger
}

// NewAssembler creates an Assembler.
func NewAssembler(systemPrompt string, keys Keys, writer RecordWriter, log *zap.Logger) *Assembler {
	return &Assembler{systemPrompt: systemPrompt, keys: keys, writer: writer, log: log}
}

// Assemble builds a record, writes it to path and validates the file. Nil
// tables mean extraction already failed upstream: nothing is written and the
// zero Stats is returned.
func (a *Assembler) Assemble(path, text string, tables *sheet.Tables, mode Mode) (Stats, error) {
	if tables == nil {
		a.log.Warn("corpus: no tables, record skipped", zap.String("path", path))
		return Stats{}, nil
	}

	rec, err := Build(a.systemPrompt, text, tables, a.keys)
	if err != nil {
		return Stats{}, err
	}
	if err := a.writer.Write(path, rec, mode); err != nil {
		return Stats{}, err
	}

	return Stats{
		UserChars:       utf8.RuneCountInString(text),
		InfoRows:        tables.InfoRows(),
		TransactionRows: tables.TransactionRows(),
	}, nil
}
