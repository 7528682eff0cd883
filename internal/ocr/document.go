package ocr

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// ErrUnreadableSource marks a document that could not be opened or parsed.
var ErrUnreadableSource = eris.New("unreadable source")

// Document is the extracted text of one source document.
type Document struct {
	Path  string
	Pages []string
	Text  string
}

// Len returns the length of the document text in characters.
func (d *Document) Len() int {
	return utf8.RuneCountInString(d.Text)
}

// LoadOptions configures Load.
type LoadOptions struct {
	// NormalizeUnicode applies NFC so text agrees with spreadsheet strings
	// regardless of how the extractor composed accented characters.
	NormalizeUnicode bool
}

// Load extracts a document's pages and joins them in order. On failure the
// returned Document is empty (zero length) and the error wraps
// ErrUnreadableSource.
func Load(ctx context.Context, ex Extractor, path string, opts LoadOptions, log *zap.Logger) (*Document, error) {
	doc := &Document{Path: path}

	pages, err := ex.ExtractPages(ctx, path)
	if err != nil {
		log.Error("ocr: document unreadable", zap.String("path", path), zap.Error(err))
		return doc, eris.Wrapf(ErrUnreadableSource, "ocr: load %s: %v", path, err)
	}

	if opts.NormalizeUnicode {
		for i, p := range pages {
			pages[i] = norm.NFC.String(p)
		}
	}

	doc.Pages = pages
	doc.Text = strings.Join(pages, "")

	log.Debug("ocr: document loaded",
		zap.String("path", path),
		zap.Int("pages", len(pages)),
		zap.Int("chars", doc.Len()),
	)
	return doc, nil
}
