package ocr

import (
	"context"
	"os"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// PlainText reads sources whose text was extracted upstream. Form feeds, if
// present, separate pages.
type PlainText struct{}

// ExtractPages implements Extractor.
func (PlainText) ExtractPages(_ context.Context, path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ocr: read text %s", path)
	}
	if !utf8.Valid(data) {
		return nil, eris.Errorf("ocr: %s is not valid UTF-8", path)
	}
	return splitPages(string(data)), nil
}
