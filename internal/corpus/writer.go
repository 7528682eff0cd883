package corpus

import (
	"os"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Mode selects how a record is written to a corpus file.
type Mode int

const (
	// ModeOverwrite starts a fresh corpus containing only the record.
	ModeOverwrite Mode = iota
	// ModeAppend adds the record to an existing corpus.
	ModeAppend
)

func (m Mode) String() string {
	if m == ModeAppend {
		return "append"
	}
	return "overwrite"
}

// Writer writes records and re-validates the whole file after each write.
// A Writer is not safe for concurrent use; see LockedWriter.
type Writer struct {
	log *zap.Logger
}

// NewWriter creates a Writer.
func NewWriter(log *zap.Logger) *Writer {
	return &Writer{log: log}
}

// Write stores rec at path. If the file no longer validates afterwards the
// returned error is an *IntegrityError; the file is left as written.
func (w *Writer) Write(path string, rec Record, mode Mode) error {
	line, err := encodeLine(rec)
	if err != nil {
		return err
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if mode == ModeAppend {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}

	if err := writeFile(path, flags, line); err != nil {
		return err
	}

	lines, err := Validate(path)
	if err != nil {
		w.log.Error("corpus: integrity check failed", zap.String("path", path), zap.Error(err))
		return err
	}

	w.log.Debug("corpus: record written",
		zap.String("path", path),
		zap.String("mode", mode.String()),
		zap.Int("lines", lines),
	)
	return nil
}

func writeFile(path string, flags int, data []byte) (err error) {
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return eris.Wrapf(err, "corpus: open %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = eris.Wrapf(cerr, "corpus: close %s", path)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return eris.Wrapf(err, "corpus: write %s", path)
	}
	return nil
}

// RecordWriter is implemented by Writer and LockedWriter.
type RecordWriter interface {
	Write(path string, rec Record, mode Mode) error
}

// LockedWriter serializes writes from multiple producers.
type LockedWriter struct {
	mu sync.Mutex
	w  RecordWriter
}

// NewLockedWriter wraps w with a mutex.
func NewLockedWriter(w RecordWriter) *LockedWriter {
	return &LockedWriter{w: w}
}

// Write implements RecordWriter.
func (l *LockedWriter) Write(path string, rec Record, mode Mode) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(path, rec, mode)
}
