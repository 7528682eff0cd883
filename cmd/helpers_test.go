package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/finetune-cli/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Document: config.DocumentConfig{Provider: "local", PdfToTextPath: "pdftotext", NormalizeUnicode: true},
		Schema: config.SchemaConfig{
			MarkerLabel:       "Cutoff Marker:",
			DescriptionColumn: "Description",
			AmountColumn:      "Amount",
			InfoKey:           "Info",
			TransactionsKey:   "Transactions",
		},
		Training: config.TrainingConfig{
			SystemPrompt: config.DefaultSystemPrompt,
			Epochs:       3,
			Model:        "gpt-4o-mini-2024-07-18",
			Simulate:     true,
			RegistryPath: filepath.Join(t.TempDir(), "model_registry.json"),
			OutputMode:   "combined",
			OnUnverified: "abort",
		},
	}
}

func writeSource(t *testing.T, dir, base, text string) string {
	t.Helper()
	path := filepath.Join(dir, base+".txt")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

// writeWorkbook creates <base>.xlsx with an info sheet holding marker and a
// transactions sheet with one row per amount.
func writeWorkbook(t *testing.T, dir, base, marker string, amounts ...string) string {
	t.Helper()
	f := xlsx.NewFile()

	info, err := f.AddSheet("Summary")
	require.NoError(t, err)
	addRow(info, "Field", "Value")
	addRow(info, "Account", "TR00 0001")
	if marker != "" {
		addRow(info, "Cutoff Marker:", marker)
	}

	ledger, err := f.AddSheet("Movements")
	require.NoError(t, err)
	addRow(ledger, "Date", "Description", "Amount")
	for _, a := range amounts {
		addRow(ledger, "2024-01-02", "Payment", a)
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

// setPrepareOutput points the prepare output flags at test paths for the
// duration of a test.
func setPrepareOutput(t *testing.T, output, outputDir string) {
	t.Helper()
	prevOut, prevDir := prepareOutput, prepareOutputDir
	prepareOutput, prepareOutputDir = output, outputDir
	t.Cleanup(func() { prepareOutput, prepareOutputDir = prevOut, prevDir })
}
