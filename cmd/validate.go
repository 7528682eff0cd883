package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/finetune-cli/internal/corpus"
)

var validateCmd = &cobra.Command{
	Use:   "validate [corpus.jsonl]",
	Short: "Check that every corpus line is a well-formed training record",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("validate"); err != nil {
			return err
		}
		return validateCorpus(corpusArg(args), os.Stdout)
	},
}

func validateCorpus(path string, out io.Writer) error {
	n, err := corpus.Validate(path)
	if err != nil {
		logger.Error("corpus invalid", zap.String("path", path), zap.Int("valid_lines", n), zap.Error(err))
		return err
	}
	fmt.Fprintf(out, "%s: %d valid lines\n", path, n)
	return nil
}

// corpusArg returns the corpus path argument or the default corpus name.
func corpusArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "training_data.jsonl"
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
