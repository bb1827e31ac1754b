package citation

import (
	"sort"

	"github.com/helixir/reference-service/internal/domain"
)

// Markers inserted after citations that need review.
const (
	MarkerWork              = "[VERIFY:work]"
	MarkerPageRange         = "[VERIFY:page-range]"
	MarkerPageUnconfirmable = "[VERIFY:page-unconfirmable]"
)

// Marker returns the annotation marker for a status, or "" for verified results.
func Marker(s domain.VerificationStatus) string {
	switch s {
	case domain.VerificationNotFound, domain.VerificationTitleMismatch:
		return MarkerWork
	case domain.VerificationPageOutOfRange:
		return MarkerPageRange
	case domain.VerificationUnverifiableType:
		return MarkerPageUnconfirmable
	default:
		return ""
	}
}

// Annotate inserts a marker after every citation that needs review and builds
// the report over all results in document order. Results may come in any
// order; markers are inserted from the end of the text backwards so earlier
// offsets stay valid. Results whose span does not fit text are reported but
// not annotated.
func Annotate(text string, results []domain.VerificationResult) (string, *domain.VerificationReport) {
	ordered := make([]domain.VerificationResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Citation.Start < ordered[j].Citation.Start
	})

	report := &domain.VerificationReport{Results: make([]domain.VerificationResult, 0, len(ordered))}
	for _, r := range ordered {
		report.Add(r)
	}

	annotated := text
	for i := len(ordered) - 1; i >= 0; i-- {
		r := ordered[i]
		marker := Marker(r.Status)
		start, end := r.Citation.Start, r.Citation.End
		if marker == "" || start < 0 || end <= start || end > len(text) || text[start:end] != r.Citation.Raw {
			continue
		}
		annotated = annotated[:end] + " " + marker + annotated[end:]
	}
	return annotated, report
}
