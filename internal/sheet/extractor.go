package sheet

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrExtraction marks a spreadsheet whose tables could not be extracted.
var ErrExtraction = eris.New("table extraction failed")

// Extractor reads ground-truth workbooks from disk.
type Extractor struct {
	schema Schema
	log    *zap.Logger
}

// NewExtractor creates an Extractor for the given schema.
func NewExtractor(schema Schema, log *zap.Logger) *Extractor {
	return &Extractor{schema: schema, log: log}
}

// Marker returns the cutoff marker recorded in the workbook at path. A
// workbook without the label (or with an empty value next to it) yields
// ok=false. Read failures wrap ErrUnreadable.
func (e *Extractor) Marker(path string) (marker string, ok bool, err error) {
	sheets, err := ReadWorkbook(path)
	if err != nil {
		return "", false, err
	}

	marker, ok = FindMarker(sheets, e.schema.MarkerLabel)
	if !ok {
		e.log.Warn("sheet: marker label not found",
			zap.String("path", path),
			zap.String("label", e.schema.MarkerLabel),
		)
	}
	return marker, ok, nil
}

// Extract reads the info and transactions tables from the workbook at path.
// On failure it logs and returns empty tables with an error wrapping
// ErrExtraction.
func (e *Extractor) Extract(path string) (*Tables, error) {
	sheets, err := ReadWorkbook(path)
	if err != nil {
		e.log.Error("sheet: extraction failed", zap.String("path", path), zap.Error(err))
		return &Tables{Info: []Row{}, Transactions: []Row{}}, eris.Wrapf(ErrExtraction, "sheet: extract %s: %v", path, err)
	}

	t := Extract(sheets, e.schema)
	if t.InfoSheet == "" {
		e.log.Warn("sheet: no info sheet", zap.String("path", path))
	}
	if t.TransactionsSheet == "" {
		e.log.Warn("sheet: no transactions sheet",
			zap.String("path", path),
			zap.String("description_column", e.schema.DescriptionColumn),
			zap.String("amount_column", e.schema.AmountColumn),
		)
	}

	e.log.Debug("sheet: tables extracted",
		zap.String("path", path),
		zap.String("info_sheet", t.InfoSheet),
		zap.Int("info_rows", t.InfoRows()),
		zap.String("transactions_sheet", t.TransactionsSheet),
		zap.Int("transaction_rows", t.TransactionRows()),
	)
	return t, nil
}
