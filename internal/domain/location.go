package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// ResolvedLocation is one candidate full-text location found by the OA resolver.
// It only lives for the duration of a resolution call; the winning URL is
// written back to Paper.PDFURL.
type ResolvedLocation struct {
	Source   SourceType `json:"source"`
	URL      string     `json:"url"`
	Strategy string     `json:"strategy"`
	Note     string     `json:"note,omitempty"`
}

// CandidateMatch is a bibliographic search hit returned by a title search.
type CandidateMatch struct {
	Title    string     `json:"title"`
	Authors  []string   `json:"authors,omitempty"`
	Year     int        `json:"year,omitempty"`
	Venue    string     `json:"venue,omitempty"`
	DOI      string     `json:"doi,omitempty"`
	WorkType string     `json:"type,omitempty"`
	Pages    PageRange  `json:"pages"`
	URL      string     `json:"url,omitempty"`
	Source   SourceType `json:"source"`
	// Score is the relevance score reported by the source, when it has one.
	Score float64 `json:"score,omitempty"`
}

// PageRange is an inclusive page interval. A zero value means unknown.
type PageRange struct {
	First int `json:"first,omitempty"`
	Last  int `json:"last,omitempty"`
}

var pageRangePattern = regexp.MustCompile(`^\s*(\d{1,6})\s*(?:[-\x{2013}\x{2014}]+\s*(\d{1,6}))?\s*$`)

// ParsePageRange parses "12", "12-34" and "12–34" forms.
// Ranges written in abbreviated form ("123-9") are expanded ("123-129").
func ParsePageRange(s string) (PageRange, bool) {
	m := pageRangePattern.FindStringSubmatch(s)
	if m == nil {
		return PageRange{}, false
	}
	first, err := strconv.Atoi(m[1])
	if err != nil {
		return PageRange{}, false
	}
	if m[2] == "" {
		return PageRange{First: first, Last: first}, true
	}
	last, err := strconv.Atoi(m[2])
	if err != nil {
		return PageRange{}, false
	}
	if last < first && len(m[2]) < len(m[1]) {
		prefix := m[1][:len(m[1])-len(m[2])]
		if expanded, err := strconv.Atoi(prefix + m[2]); err == nil {
			last = expanded
		}
	}
	if last < first {
		return PageRange{}, false
	}
	return PageRange{First: first, Last: last}, true
}

// IsKnown reports whether the range carries usable bounds.
func (r PageRange) IsKnown() bool {
	return r.First > 0 && r.Last >= r.First
}

// Contains reports whether every page of other falls inside r.
func (r PageRange) Contains(other PageRange) bool {
	return r.IsKnown() && other.First >= r.First && other.Last <= r.Last
}

// String renders the range as "first-last" or a single page.
func (r PageRange) String() string {
	if !r.IsKnown() {
		return ""
	}
	if r.First == r.Last {
		return strconv.Itoa(r.First)
	}
	return strconv.Itoa(r.First) + "-" + strconv.Itoa(r.Last)
}

// bookTypes are work types that have no article page range to check against.
var bookTypes = map[string]bool{
	"book":           true,
	"monograph":      true,
	"book-chapter":   true,
	"edited-book":    true,
	"reference-book": true,
	"book-section":   true,
	"book-part":      true,
	"book-set":       true,
}

// IsBookType reports whether a CrossRef/OpenAlex work type denotes a book.
func IsBookType(workType string) bool {
	return bookTypes[strings.ToLower(strings.TrimSpace(workType))]
}
