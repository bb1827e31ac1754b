package domain

import (
	"fmt"
	"strings"
)

// CitationKind tags which pattern rule produced a ParsedCitation.
type CitationKind string

const (
	CitationKindSecondary             CitationKind = "secondary"
	CitationKindAuthorTitlePage       CitationKind = "author_title_page"
	CitationKindAuthorQuotedTitlePage CitationKind = "author_quoted_title_page"
	CitationKindAuthorPage            CitationKind = "author_page"
	CitationKindTitleOnly             CitationKind = "title_only"
)

// ParsedCitation is one inline citation occurrence in a manuscript.
// Start and End are byte offsets into the source text; Raw == text[Start:End].
type ParsedCitation struct {
	Start  int          `json:"start"`
	End    int          `json:"end"`
	Raw    string       `json:"raw"`
	Kind   CitationKind `json:"kind"`
	Author string       `json:"author,omitempty"`
	Title  string       `json:"title,omitempty"`
	Pages  string       `json:"pages,omitempty"`
}

// CitedPages returns the page range cited, if any.
func (c ParsedCitation) CitedPages() (PageRange, bool) {
	if c.Pages == "" {
		return PageRange{}, false
	}
	return ParsePageRange(c.Pages)
}

// Overlaps reports whether the two spans share at least one byte.
func (c ParsedCitation) Overlaps(start, end int) bool {
	return c.Start < end && start < c.End
}

// VerificationStatus is the outcome of checking a citation against bibliographic data.
type VerificationStatus string

const (
	VerificationVerified         VerificationStatus = "verified"
	VerificationTitleMismatch    VerificationStatus = "title_mismatch"
	VerificationPageOutOfRange   VerificationStatus = "page_out_of_range"
	VerificationUnverifiableType VerificationStatus = "unverifiable_type"
	VerificationNotFound         VerificationStatus = "not_found"
)

// NeedsReview reports whether the result should be flagged in the manuscript.
func (s VerificationStatus) NeedsReview() bool {
	return s != VerificationVerified
}

// VerifiedWork is the bibliographic record a citation was matched to.
type VerifiedWork struct {
	Title    string     `json:"title"`
	Authors  []string   `json:"authors,omitempty"`
	Year     int        `json:"year,omitempty"`
	Venue    string     `json:"venue,omitempty"`
	DOI      string     `json:"doi,omitempty"`
	WorkType string     `json:"type,omitempty"`
	Pages    PageRange  `json:"pages"`
	Source   SourceType `json:"source"`
}

// WorkFromCandidate converts a search hit into a verified-work record.
func WorkFromCandidate(c CandidateMatch) *VerifiedWork {
	return &VerifiedWork{
		Title:    c.Title,
		Authors:  c.Authors,
		Year:     c.Year,
		Venue:    c.Venue,
		DOI:      c.DOI,
		WorkType: c.WorkType,
		Pages:    c.Pages,
		Source:   c.Source,
	}
}

// VerificationResult is the outcome for one ParsedCitation.
type VerificationResult struct {
	Citation ParsedCitation     `json:"citation"`
	Work     *VerifiedWork      `json:"work,omitempty"`
	Status   VerificationStatus `json:"status"`
	Reason   string             `json:"reason"`
}

// VerificationReport lists every verification result with aggregate counts.
type VerificationReport struct {
	Total            int                  `json:"total"`
	Verified         int                  `json:"verified"`
	TitleMismatch    int                  `json:"title_mismatch"`
	PageOutOfRange   int                  `json:"page_out_of_range"`
	UnverifiableType int                  `json:"unverifiable_type"`
	NotFound         int                  `json:"not_found"`
	Results          []VerificationResult `json:"results"`
}

// Add records one result and updates the counts.
func (r *VerificationReport) Add(res VerificationResult) {
	r.Results = append(r.Results, res)
	r.Total++
	switch res.Status {
	case VerificationVerified:
		r.Verified++
	case VerificationTitleMismatch:
		r.TitleMismatch++
	case VerificationPageOutOfRange:
		r.PageOutOfRange++
	case VerificationUnverifiableType:
		r.UnverifiableType++
	case VerificationNotFound:
		r.NotFound++
	}
}

// Flagged returns the number of results that need human review.
func (r *VerificationReport) Flagged() int {
	return r.Total - r.Verified
}

// Summary returns a one-line human-readable summary.
func (r *VerificationReport) Summary() string {
	if r.Total == 0 {
		return "No citations found to verify."
	}
	pct := float64(r.Verified) / float64(r.Total) * 100
	return fmt.Sprintf(
		"Verified %d/%d citations (%.0f%%). Not found: %d. Title mismatch: %d. Page out of range: %d. Page unverifiable: %d.",
		r.Verified, r.Total, pct, r.NotFound, r.TitleMismatch, r.PageOutOfRange, r.UnverifiableType,
	)
}

// Markdown renders the report with a table of flagged citations followed by
// a table of verified ones.
func (r *VerificationReport) Markdown() string {
	var b strings.Builder
	b.WriteString("# Citation Verification Report\n\n")
	fmt.Fprintf(&b, "**Total citations**: %d\n", r.Total)
	fmt.Fprintf(&b, "**Verified**: %d\n", r.Verified)
	fmt.Fprintf(&b, "**Work not found**: %d\n", r.NotFound)
	fmt.Fprintf(&b, "**Title mismatch**: %d\n", r.TitleMismatch)
	fmt.Fprintf(&b, "**Page out of range**: %d\n", r.PageOutOfRange)
	fmt.Fprintf(&b, "**Page unverifiable**: %d\n\n", r.UnverifiableType)

	if r.Flagged() == 0 {
		if r.Total > 0 {
			b.WriteString("All citations verified successfully.\n")
		}
		return b.String()
	}

	b.WriteString("## Issues\n\n")
	b.WriteString("| Citation | Status | Notes |\n")
	b.WriteString("|----------|--------|-------|\n")
	for _, res := range r.Results {
		if !res.Status.NeedsReview() {
			continue
		}
		fmt.Fprintf(&b, "| `%s` | %s | %s |\n",
			escapeCell(res.Citation.Raw),
			strings.ReplaceAll(string(res.Status), "_", " "),
			escapeCell(res.Reason))
	}

	if r.Verified > 0 {
		b.WriteString("\n## Verified\n\n")
		b.WriteString("| Citation | Matched Work | DOI |\n")
		b.WriteString("|----------|--------------|-----|\n")
		for _, res := range r.Results {
			if res.Status.NeedsReview() {
				continue
			}
			title, doi := "", ""
			if res.Work != nil {
				title, doi = res.Work.Title, res.Work.DOI
			}
			fmt.Fprintf(&b, "| `%s` | %s | %s |\n", escapeCell(res.Citation.Raw), escapeCell(title), doi)
		}
	}
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}
