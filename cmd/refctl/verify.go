package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/helixir/reference-service/internal/citation"
)

var (
	verifyOut          string
	verifyReportPath   string
	verifyReportFormat string
)

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringVarP(&verifyOut, "out", "o", "", "Annotated output path (default <file>.annotated<ext>)")
	verifyCmd.Flags().StringVar(&verifyReportPath, "report", "", "Report path (default <file>.citations.md or .json)")
	verifyCmd.Flags().StringVar(&verifyReportFormat, "format", citation.FormatMarkdown, "Report format: markdown or json")
}

var verifyCmd = &cobra.Command{
	Use:   "verify <file>",
	Short: "Check every inline citation in a manuscript",
	Long: `Parse MLA-style inline citations from a manuscript, look each one up in the
bibliographic sources, and write an annotated copy plus a report.

Citations that need review are marked inline with [VERIFY:work],
[VERIFY:page-range] or [VERIFY:page-unconfirmable]. Use "-" to read from
stdin, in which case the annotated text goes to stdout.

Examples:
  refctl verify draft.md
  refctl verify draft.md --format json --report checks.json
  cat draft.md | refctl verify - > annotated.md`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	path := args[0]
	text, err := readInput(path)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.Engine == nil {
		return errors.New("citation verification needs crossref or openalex enabled")
	}

	annotated, report, err := a.Engine.Verify(ctx, text)
	if err != nil {
		return err
	}

	if path == "-" {
		if _, err := io.WriteString(os.Stdout, annotated); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, report.Summary())
		return nil
	}

	outPath := verifyOut
	if outPath == "" {
		ext := filepath.Ext(path)
		outPath = strings.TrimSuffix(path, ext) + ".annotated" + ext
	}
	if err := os.WriteFile(outPath, []byte(annotated), 0o644); err != nil {
		return fmt.Errorf("writing annotated text: %w", err)
	}

	reportPath := verifyReportPath
	if reportPath == "" {
		ext := ".md"
		if verifyReportFormat == citation.FormatJSON {
			ext = ".json"
		}
		reportPath = strings.TrimSuffix(path, filepath.Ext(path)) + ".citations" + ext
	}
	f, err := os.Create(reportPath)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	if err := citation.WriteReport(f, report, verifyReportFormat); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if humanOutput {
		fmt.Println(report.Summary())
		fmt.Printf("annotated: %s\nreport:    %s\n", outPath, reportPath)
		return nil
	}
	return outputJSON(map[string]interface{}{
		"summary":   report.Summary(),
		"annotated": outPath,
		"report":    reportPath,
		"total":     report.Total,
		"verified":  report.Verified,
	})
}

func readInput(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading manuscript: %w", err)
	}
	return string(data), nil
}
