package dedup

import (
	"strconv"
	"sync"

	"github.com/helixir/reference-service/internal/domain"
)

// TitleYearKey builds the secondary dedup key used when a paper has no DOI.
func TitleYearKey(title string, year int) string {
	norm := NormalizeTitle(title)
	if norm == "" {
		return ""
	}
	return norm + "|" + strconv.Itoa(year)
}

// Checker merges search results from several sources into a list of distinct
// works. Papers are deduplicated by DOI first, then by normalized title and year.
// It is safe for concurrent use.
type Checker struct {
	mu      sync.Mutex
	byDOI   map[string]*domain.Paper
	byTitle map[string]*domain.Paper
	papers  []*domain.Paper
}

// NewChecker creates an empty Checker.
func NewChecker() *Checker {
	return &Checker{
		byDOI:   make(map[string]*domain.Paper),
		byTitle: make(map[string]*domain.Paper),
	}
}

// Add records p and reports whether it was new. When p duplicates a paper
// already seen, the missing identifiers and metadata of the kept paper are
// filled in from p and the kept paper is returned.
func (c *Checker) Add(p *domain.Paper) (*domain.Paper, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doi := p.DOI()
	key := TitleYearKey(p.Title, p.PublicationYear)

	var existing *domain.Paper
	if doi != "" {
		existing = c.byDOI[doi]
	}
	if existing == nil && key != "" {
		if cand, ok := c.byTitle[key]; ok {
			candDOI := cand.DOI()
			if doi == "" || candDOI == "" || candDOI == doi {
				existing = cand
			}
		}
	}

	if existing != nil {
		mergeInto(existing, p)
		c.index(existing)
		return existing, false
	}

	c.papers = append(c.papers, p)
	c.index(p)
	return p, true
}

// Papers returns the distinct papers in insertion order.
func (c *Checker) Papers() []*domain.Paper {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*domain.Paper, len(c.papers))
	copy(out, c.papers)
	return out
}

// Len returns the number of distinct papers.
func (c *Checker) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.papers)
}

func (c *Checker) index(p *domain.Paper) {
	if doi := p.DOI(); doi != "" {
		c.byDOI[doi] = p
	}
	if key := TitleYearKey(p.Title, p.PublicationYear); key != "" {
		if _, ok := c.byTitle[key]; !ok {
			c.byTitle[key] = p
		}
	}
}

// mergeInto copies fields that dst lacks from src. Identifiers are only filled
// in when absent.
func mergeInto(dst, src *domain.Paper) {
	dst.MergeIdentifiers(src.Identifiers)
	if dst.Abstract == "" {
		dst.Abstract = src.Abstract
	}
	if len(dst.Authors) == 0 {
		dst.Authors = src.Authors
	}
	if dst.PublicationYear == 0 {
		dst.PublicationYear = src.PublicationYear
	}
	if dst.Venue == "" {
		dst.Venue = src.Venue
	}
	if dst.PDFURL == "" {
		dst.PDFURL = src.PDFURL
	}
	if dst.Pages == "" {
		dst.Pages = src.Pages
	}
	if src.CitationCount > dst.CitationCount {
		dst.CitationCount = src.CitationCount
	}
	dst.OpenAccess = dst.OpenAccess || src.OpenAccess
}
