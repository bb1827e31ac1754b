package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/reference-service/internal/domain"
	"github.com/helixir/reference-service/internal/papersources"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 15 * time.Second

	// DefaultMaxResults is the default maximum results per search.
	DefaultMaxResults = 20

	// verificationRows is the number of candidates fetched per citation lookup.
	verificationRows = 5
)

// Config holds configuration for the OpenAlex client.
type Config struct {
	// BaseURL is the OpenAlex API base URL.
	BaseURL string

	// Email is the contact email for the polite pool.
	Email string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxResults is the maximum results per search request (API maximum 200).
	MaxResults int

	// Enabled indicates whether this source is enabled for searches.
	Enabled bool
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client searches OpenAlex works.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var (
	_ papersources.PaperSource  = (*Client)(nil)
	_ papersources.WorkSearcher = (*Client)(nil)
)

// New creates a new OpenAlex client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	ua := papersources.DefaultUserAgent
	if cfg.Email != "" {
		ua += " (mailto:" + cfg.Email + ")"
	}

	return NewWithHTTPClient(cfg, papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Name:      "openalex",
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		UserAgent: ua,
	}))
}

// NewWithHTTPClient creates a new OpenAlex client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeOpenAlex
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return "OpenAlex"
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Search queries OpenAlex for papers matching the given parameters.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) (*papersources.SearchResult, error) {
	startTime := time.Now()

	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}

	var filters []string
	if params.YearFrom > 0 {
		filters = append(filters, fmt.Sprintf("from_publication_date:%d-01-01", params.YearFrom))
	}
	if params.YearTo > 0 {
		filters = append(filters, fmt.Sprintf("to_publication_date:%d-12-31", params.YearTo))
	}
	if params.OpenAccessOnly {
		filters = append(filters, "is_oa:true")
	}

	resp, err := c.searchWorks(ctx, params.Query, maxResults, filters)
	if err != nil {
		return nil, err
	}

	papers := make([]*domain.Paper, 0, len(resp.Results))
	for i := range resp.Results {
		if paper := workToPaper(&resp.Results[i]); paper != nil {
			papers = append(papers, paper)
		}
	}

	return &papersources.SearchResult{
		Papers:         papers,
		TotalResults:   resp.Meta.Count,
		Source:         domain.SourceTypeOpenAlex,
		SearchDuration: time.Since(startTime),
	}, nil
}

// SearchWorks looks up candidate works for a citation.
func (c *Client) SearchWorks(ctx context.Context, query papersources.WorkQuery) ([]domain.CandidateMatch, error) {
	rows := query.Rows
	if rows <= 0 {
		rows = verificationRows
	}

	resp, err := c.searchWorks(ctx, query.Text(), rows, nil)
	if err != nil {
		return nil, err
	}

	matches := make([]domain.CandidateMatch, 0, len(resp.Results))
	for i := range resp.Results {
		matches = append(matches, workToCandidate(&resp.Results[i]))
	}
	return matches, nil
}

func (c *Client) searchWorks(ctx context.Context, search string, perPage int, filters []string) (*SearchResponse, error) {
	if strings.TrimSpace(search) == "" {
		return nil, domain.NewValidationError("query", "search query is required")
	}
	if perPage > 200 {
		perPage = 200
	}

	searchURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	searchURL.Path = "/works"

	query := url.Values{}
	query.Set("search", search)
	query.Set("per_page", strconv.Itoa(perPage))
	if len(filters) > 0 {
		query.Set("filter", strings.Join(filters, ","))
	}
	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}
	searchURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError("OpenAlex", resp.StatusCode, string(body), nil)
	}

	// Limit body to 10MB to prevent resource exhaustion.
	var searchResp SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &searchResp, nil
}

func workTitle(work *Work) string {
	title := work.DisplayName
	if title == "" {
		title = work.Title
	}
	return papersources.CleanTitle(title)
}

func workVenue(work *Work) string {
	if work.PrimaryLocation != nil && work.PrimaryLocation.Source != nil {
		return work.PrimaryLocation.Source.DisplayName
	}
	return ""
}

func workPages(work *Work) domain.PageRange {
	first, err := strconv.Atoi(strings.TrimSpace(work.Biblio.FirstPage))
	if err != nil {
		return domain.PageRange{}
	}
	last, err := strconv.Atoi(strings.TrimSpace(work.Biblio.LastPage))
	if err != nil {
		last = first
	}
	r := domain.PageRange{First: first, Last: last}
	if !r.IsKnown() {
		return domain.PageRange{}
	}
	return r
}

// workToPaper converts an OpenAlex Work to a domain Paper.
// Works without any identifier are skipped.
func workToPaper(work *Work) *domain.Paper {
	paper := &domain.Paper{
		Title:           workTitle(work),
		Abstract:        reconstructAbstract(work.AbstractInvertedIndex),
		PublicationYear: work.PublicationYear,
		Venue:           workVenue(work),
		Pages:           workPages(work).String(),
		WorkType:        work.Type,
		CitationCount:   work.CitedByCount,
		Source:          domain.SourceTypeOpenAlex,
		Status:          domain.StatusMetadataOnly,
	}

	doi := work.DOI
	if doi == "" {
		doi = work.IDs.DOI
	}
	paper.SetIdentifierIfAbsent(domain.IdentifierTypeDOI, doi)
	paper.SetIdentifierIfAbsent(domain.IdentifierTypeArXivID, domain.ArXivIDFromDOI(doi))
	paper.SetIdentifierIfAbsent(domain.IdentifierTypePubMedID, work.IDs.PMID)
	paper.SetIdentifierIfAbsent(domain.IdentifierTypePMCID, strings.TrimPrefix(work.IDs.PMCID, "https://www.ncbi.nlm.nih.gov/pmc/articles/"))
	openAlexID := work.ID
	if openAlexID == "" {
		openAlexID = work.IDs.OpenAlex
	}
	paper.SetIdentifierIfAbsent(domain.IdentifierTypeOpenAlexID, openAlexID)

	if !paper.HasIdentifier() || paper.Title == "" {
		return nil
	}

	for _, authorship := range work.Authorships {
		author := domain.Author{
			Name:  authorship.Author.DisplayName,
			ORCID: strings.TrimPrefix(authorship.Author.Orcid, "https://orcid.org/"),
		}
		if len(authorship.Institutions) > 0 {
			author.Affiliation = authorship.Institutions[0].DisplayName
		}
		paper.Authors = append(paper.Authors, author)
	}

	if work.OpenAccess != nil {
		paper.OpenAccess = work.OpenAccess.IsOA
	}
	// Only direct PDF links count as a known full-text URL; oa_url may be a landing page.
	switch {
	case work.BestOALocation != nil && work.BestOALocation.PDFURL != "":
		paper.PDFURL = work.BestOALocation.PDFURL
	case work.PrimaryLocation != nil && work.PrimaryLocation.PDFURL != "":
		paper.PDFURL = work.PrimaryLocation.PDFURL
	}

	return paper
}

func workToCandidate(work *Work) domain.CandidateMatch {
	authors := make([]string, 0, len(work.Authorships))
	for _, a := range work.Authorships {
		if a.Author.DisplayName != "" {
			authors = append(authors, a.Author.DisplayName)
		}
	}
	return domain.CandidateMatch{
		Title:    workTitle(work),
		Authors:  authors,
		Year:     work.PublicationYear,
		Venue:    workVenue(work),
		DOI:      domain.NormalizeDOI(work.DOI),
		WorkType: work.Type,
		Pages:    workPages(work),
		URL:      work.ID,
		Source:   domain.SourceTypeOpenAlex,
	}
}

// reconstructAbstract rebuilds the abstract text from OpenAlex's inverted index.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	const maxAbstractWords = 100_000
	total := 0
	for _, positions := range invertedIndex {
		total += len(positions)
	}
	if total > maxAbstractWords {
		return ""
	}

	pairs := make([]posWord, 0, total)
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}
