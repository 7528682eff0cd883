package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/finetune-cli/internal/corpus"
	"github.com/sells-group/finetune-cli/internal/cutoff"
	"github.com/sells-group/finetune-cli/internal/monitoring"
	"github.com/sells-group/finetune-cli/internal/ocr"
	"github.com/sells-group/finetune-cli/internal/sheet"
)

var testSchema = sheet.Schema{
	MarkerLabel:       "Cutoff Marker:",
	DescriptionColumn: "Description",
	AmountColumn:      "Amount",
}

// noPDF fails every PDF so tests only exercise .txt sources.
type noPDF struct{}

func (noPDF) ExtractPages(context.Context, string) ([]string, error) {
	return nil, os.ErrNotExist
}

func writeSource(t *testing.T, dir, base, text string) string {
	t.Helper()
	path := filepath.Join(dir, base+".txt")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

// writeWorkbook creates <base>.xlsx with an info sheet (holding marker when
// non-empty) and a transactions sheet with the given rows.
func writeWorkbook(t *testing.T, dir, base, marker string, tx [][]string) string {
	t.Helper()
	f := xlsx.NewFile()

	info, err := f.AddSheet("Info")
	require.NoError(t, err)
	addRow(info, "Field", "Value")
	addRow(info, "Customer", "ACME")
	if marker != "" {
		addRow(info, "Cutoff Marker:", marker)
	}

	ledger, err := f.AddSheet("Ledger")
	require.NoError(t, err)
	addRow(ledger, "Date", "Description", "Amount")
	for _, r := range tx {
		addRow(ledger, r...)
	}

	path := filepath.Join(dir, base+".xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func addRow(s *xlsx.Sheet, values ...string) {
	row := s.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func newTestPipeline(t *testing.T, escalator cutoff.Escalator, metrics *monitoring.Metrics) *Pipeline {
	t.Helper()
	log := zap.NewNop()
	return New(
		ocr.NewRouter(noPDF{}),
		ocr.LoadOptions{NormalizeUnicode: true},
		sheet.NewExtractor(testSchema, log),
		cutoff.NewResolver(escalator, log),
		corpus.NewAssembler("You convert statements to JSON.",
			corpus.Keys{Info: "Info", Transactions: "Transactions"},
			corpus.NewWriter(log), log),
		metrics,
		log,
	)
}
