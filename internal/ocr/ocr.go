package ocr

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/finetune-cli/internal/config"
)

// Extractor extracts the ordered page texts of a source document.
type Extractor interface {
	ExtractPages(ctx context.Context, path string) ([]string, error)
}

// NewExtractor creates the PDF Extractor named by the config, routed so that
// already-extracted .txt sources are read as plain text.
func NewExtractor(cfg config.DocumentConfig, log *zap.Logger) (Extractor, error) {
	var pdf Extractor
	switch cfg.Provider {
	case "local", "":
		p := NewPdfToText(cfg.PdfToTextPath)
		p.layout = cfg.Layout
		pdf = p
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		pdf = NewMistralOCR(cfg.MistralKey, cfg.MistralModel, WithMistralLogger(log))
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
	return NewRouter(pdf), nil
}

// Router dispatches on file extension: .txt goes to PlainText, everything
// else to the PDF extractor.
type Router struct {
	pdf  Extractor
	text Extractor
}

// NewRouter creates a Router around the given PDF extractor.
func NewRouter(pdf Extractor) *Router {
	return &Router{pdf: pdf, text: PlainText{}}
}

// ExtractPages implements Extractor.
func (r *Router) ExtractPages(ctx context.Context, path string) ([]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		return r.text.ExtractPages(ctx, path)
	}
	return r.pdf.ExtractPages(ctx, path)
}

// splitPages splits extracted text on form feeds. pdftotext terminates every
// page with one, so a trailing empty segment is dropped.
func splitPages(s string) []string {
	pages := strings.Split(s, "\f")
	if len(pages) > 1 && pages[len(pages)-1] == "" {
		pages = pages[:len(pages)-1]
	}
	return pages
}
