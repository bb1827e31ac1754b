package papersources

import (
	"context"
	"time"

	"github.com/helixir/reference-service/internal/domain"
)

// SearchParams defines the parameters for a metadata search.
type SearchParams struct {
	// Query is the free-text search query (required).
	Query string

	// MaxResults limits the number of papers returned.
	// A value of 0 uses the source's default limit.
	MaxResults int

	// YearFrom and YearTo restrict publication years when non-zero.
	YearFrom int
	YearTo   int

	// OpenAccessOnly filters results to open access papers where supported.
	OpenAccessOnly bool
}

// SearchResult contains the results from a paper source search.
type SearchResult struct {
	// Papers holds the returned papers, newly built with status metadata_only.
	Papers []*domain.Paper

	// TotalResults is the source's estimate of the total number of matches.
	TotalResults int

	// Source identifies which paper source provided these results.
	Source domain.SourceType

	// SearchDuration is the time taken to execute the search.
	SearchDuration time.Duration
}

// PaperSource is a metadata source searched by the acquisition pipeline.
type PaperSource interface {
	// Search queries the source for papers matching params.
	// Implementations respect context cancellation and map results to domain.Paper.
	Search(ctx context.Context, params SearchParams) (*SearchResult, error)

	// SourceType returns the type identifier for this source.
	SourceType() domain.SourceType

	// Name returns a human-readable name used in logs and metrics.
	Name() string

	// IsEnabled returns whether this source is configured for use.
	IsEnabled() bool
}

// WorkQuery describes a bibliographic lookup for citation verification.
type WorkQuery struct {
	Author string
	Title  string
	Rows   int
}

// Text joins the non-empty parts of the query into one search string.
func (q WorkQuery) Text() string {
	switch {
	case q.Author != "" && q.Title != "":
		return q.Author + " " + q.Title
	case q.Title != "":
		return q.Title
	default:
		return q.Author
	}
}

// WorkSearcher finds candidate works for a citation.
// Implementations return an empty slice rather than an error when nothing matches.
type WorkSearcher interface {
	SearchWorks(ctx context.Context, query WorkQuery) ([]domain.CandidateMatch, error)
	Name() string
}
