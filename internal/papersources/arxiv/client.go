// Package arxiv builds arXiv PDF locations and searches the arXiv Atom API.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/reference-service/internal/domain"
	"github.com/helixir/reference-service/internal/papersources"
)

const (
	// DefaultBaseURL is the default arXiv API base URL.
	DefaultBaseURL = "https://export.arxiv.org/api"

	// DefaultPDFBaseURL is where arXiv serves e-print PDFs.
	DefaultPDFBaseURL = "https://arxiv.org/pdf"

	// DefaultRateLimit follows arXiv's request of one call every three seconds.
	DefaultRateLimit = 0.34

	DefaultBurstSize  = 1
	DefaultTimeout    = 15 * time.Second
	DefaultMaxResults = 20

	sourceName = "arXiv"
)

var entryIDPattern = regexp.MustCompile(`arxiv\.org/abs/(.+?)(?:v\d+)?$`)

// Config holds configuration for the arXiv client.
type Config struct {
	BaseURL    string
	PDFBaseURL string
	Timeout    time.Duration
	RateLimit  float64
	BurstSize  int
	MaxResults int

	// Enabled controls whether arXiv takes part in metadata search.
	// PDF location building works regardless.
	Enabled bool
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.PDFBaseURL == "" {
		c.PDFBaseURL = DefaultPDFBaseURL
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

// Client talks to arXiv.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var _ papersources.PaperSource = (*Client)(nil)

// New creates a new arXiv client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		config: cfg,
		httpClient: papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Name:      "arxiv",
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			BurstSize: cfg.BurstSize,
		}),
	}
}

// NewWithHTTPClient creates a new arXiv client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient}
}

// PDFURL returns the canonical PDF location for an arXiv identifier.
// It accepts bare ids, abs/pdf URLs and "arXiv:" prefixed forms.
func (c *Client) PDFURL(id string) string {
	id = domain.NormalizeArXivID(id)
	if id == "" {
		return ""
	}
	return strings.TrimRight(c.config.PDFBaseURL, "/") + "/" + id + ".pdf"
}

// PDFLocation derives an arXiv PDF location for a paper, from its arXiv id
// or from an arXiv-minted DOI. Returns nil when the paper is not on arXiv.
func (c *Client) PDFLocation(p *domain.Paper) *domain.ResolvedLocation {
	id := p.Identifier(domain.IdentifierTypeArXivID)
	note := "arxiv id"
	if id == "" {
		id = domain.ArXivIDFromDOI(p.DOI())
		note = "arxiv doi"
	}
	if id == "" {
		return nil
	}
	return &domain.ResolvedLocation{
		Source:   domain.SourceTypeArXiv,
		URL:      c.PDFURL(id),
		Strategy: "arxiv",
		Note:     note,
	}
}

// Search queries arXiv for e-prints matching the given parameters.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) (*papersources.SearchResult, error) {
	start := time.Now()

	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
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
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	var feed Feed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	papers := make([]*domain.Paper, 0, len(feed.Entries))
	for i := range feed.Entries {
		if paper := c.entryToPaper(&feed.Entries[i], params); paper != nil {
			papers = append(papers, paper)
		}
	}

	return &papersources.SearchResult{
		Papers:         papers,
		TotalResults:   feed.TotalResults,
		Source:         domain.SourceTypeArXiv,
		SearchDuration: time.Since(start),
	}, nil
}

func (c *Client) SourceType() domain.SourceType { return domain.SourceTypeArXiv }

func (c *Client) Name() string { return sourceName }

func (c *Client) IsEnabled() bool { return c.config.Enabled }

func (c *Client) buildSearchURL(params papersources.SearchParams) (string, error) {
	if params.Query == "" {
		return "", domain.NewValidationError("query", "search query is required")
	}
	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/query"

	limit := params.MaxResults
	if limit <= 0 {
		limit = c.config.MaxResults
	}

	q := url.Values{}
	q.Set("search_query", "all:"+params.Query)
	q.Set("max_results", strconv.Itoa(limit))
	q.Set("sortBy", "relevance")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// entryToPaper converts an Atom entry into a paper. Entries outside the
// requested year window are dropped here since the API cannot filter by year
// together with a relevance sort.
func (c *Client) entryToPaper(entry *Entry, params papersources.SearchParams) *domain.Paper {
	m := entryIDPattern.FindStringSubmatch(strings.TrimSpace(entry.ID))
	if m == nil {
		return nil
	}
	title := papersources.CleanTitle(entry.Title)
	if title == "" {
		return nil
	}

	var year int
	if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
		year = t.Year()
	}
	if year > 0 && ((params.YearFrom > 0 && year < params.YearFrom) || (params.YearTo > 0 && year > params.YearTo)) {
		return nil
	}

	paper := &domain.Paper{
		Title:           title,
		Abstract:        strings.Join(strings.Fields(entry.Summary), " "),
		PublicationYear: year,
		Venue:           strings.TrimSpace(entry.JournalRef),
		OpenAccess:      true,
		Source:          domain.SourceTypeArXiv,
		Status:          domain.StatusMetadataOnly,
	}
	paper.SetIdentifierIfAbsent(domain.IdentifierTypeDOI, entry.DOI)
	paper.SetIdentifierIfAbsent(domain.IdentifierTypeArXivID, m[1])

	for _, a := range entry.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			paper.Authors = append(paper.Authors, domain.Author{Name: name, Affiliation: strings.TrimSpace(a.Affiliation)})
		}
	}
	for _, link := range entry.Links {
		if link.Title == "pdf" || link.Type == "application/pdf" {
			paper.PDFURL = link.Href
			break
		}
	}
	if paper.PDFURL == "" {
		paper.PDFURL = c.PDFURL(m[1])
	}
	return paper
}
