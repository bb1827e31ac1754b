package citation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/helixir/reference-service/internal/domain"
)

// Report output formats.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// WriteReport renders a verification report as Markdown or JSON.
func WriteReport(w io.Writer, report *domain.VerificationReport, format string) error {
	if report == nil {
		report = &domain.VerificationReport{}
	}
	switch strings.ToLower(format) {
	case "", FormatMarkdown, "md":
		_, err := io.WriteString(w, report.Markdown())
		return err
	case FormatJSON:
		if report.Results == nil {
			report.Results = []domain.VerificationResult{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encoding verification report: %w", err)
		}
		return nil
	default:
		return domain.NewValidationError("format", fmt.Sprintf("unsupported report format %q", format))
	}
}
