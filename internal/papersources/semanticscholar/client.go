package semanticscholar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/helixir/reference-service/internal/domain"
	"github.com/helixir/reference-service/internal/papersources"
)

const (
	// DefaultBaseURL is the default base URL for the Semantic Scholar Graph API.
	DefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

	// DefaultRateLimit is the default rate limit. Unauthenticated clients
	// share a small pool, so the default is conservative.
	DefaultRateLimit = 1.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 15 * time.Second

	// DefaultMaxResults is the default maximum number of results per request.
	DefaultMaxResults = 20

	sourceName   = "Semantic Scholar"
	apiKeyHeader = "x-api-key"
	paperFields  = "paperId,externalIds,title,abstract,year,venue,journal,authors,citationCount,isOpenAccess,openAccessPdf"
)

// Config holds the configuration for the Semantic Scholar client.
type Config struct {
	// BaseURL is the API base URL. Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the optional API key for higher rate limits.
	APIKey string

	// Timeout is the HTTP request timeout. Defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// RateLimit is the maximum requests per second. Defaults to DefaultRateLimit if zero.
	RateLimit float64

	// BurstSize is the maximum burst size. Defaults to DefaultBurstSize if zero.
	BurstSize int

	// MaxResults is the maximum results per request. Defaults to DefaultMaxResults if zero.
	MaxResults int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// Client is a Semantic Scholar API client.
type Client struct {
	httpClient *papersources.HTTPClient
	config     Config
}

var _ papersources.PaperSource = (*Client)(nil)

// NewClient creates a new Semantic Scholar client with the given configuration.
// If httpClient is nil, a new one is created from the configuration.
func NewClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = DefaultBurstSize
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = DefaultMaxResults
	}

	if httpClient == nil {
		httpClient = papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Name:         "semantic_scholar",
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
			BurstSize:    cfg.BurstSize,
			APIKey:       cfg.APIKey,
			APIKeyHeader: apiKeyHeader,
		})
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
	}
}

// Search queries Semantic Scholar for papers matching the given parameters.
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

	if err := c.handleErrorResponse(resp); err != nil {
		return nil, err
	}

	var searchResp SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	papers := make([]*domain.Paper, 0, len(searchResp.Data))
	for _, result := range searchResp.Data {
		if paper := convertToPaper(result); paper != nil {
			papers = append(papers, paper)
		}
	}

	return &papersources.SearchResult{
		Papers:         papers,
		TotalResults:   searchResp.Total,
		Source:         domain.SourceTypeSemanticScholar,
		SearchDuration: time.Since(start),
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeSemanticScholar
}

// Name returns the human-readable name.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

func (c *Client) buildSearchURL(params papersources.SearchParams) (string, error) {
	if params.Query == "" {
		return "", domain.NewValidationError("query", "search query is required")
	}

	searchURL, err := url.Parse(c.config.BaseURL + "/paper/search")
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	limit := params.MaxResults
	if limit <= 0 {
		limit = c.config.MaxResults
	}
	if limit > 100 {
		limit = 100
	}

	q := url.Values{}
	q.Set("query", params.Query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("fields", paperFields)
	if params.YearFrom > 0 || params.YearTo > 0 {
		from, to := "", ""
		if params.YearFrom > 0 {
			from = strconv.Itoa(params.YearFrom)
		}
		if params.YearTo > 0 {
			to = strconv.Itoa(params.YearTo)
		}
		q.Set("year", from+"-"+to)
	}
	if params.OpenAccessOnly {
		q.Set("openAccessPdf", "")
	}

	searchURL.RawQuery = q.Encode()
	return searchURL.String(), nil
}

// handleErrorResponse converts a non-2xx response into an ExternalAPIError.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, "failed to read error response", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), domain.ErrRateLimited)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		message := errResp.Error
		if message == "" {
			message = errResp.Message
		}
		if message != "" {
			return domain.NewExternalAPIError(sourceName, resp.StatusCode, message, nil)
		}
	}
	return domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
}

// convertToPaper converts a single API paper result to a domain paper.
func convertToPaper(result PaperResult) *domain.Paper {
	paper := &domain.Paper{
		Title:           papersources.CleanTitle(result.Title),
		Abstract:        result.Abstract,
		PublicationYear: result.Year,
		Venue:           result.Venue,
		CitationCount:   result.CitationCount,
		OpenAccess:      result.IsOpenAccess,
		Source:          domain.SourceTypeSemanticScholar,
		Status:          domain.StatusMetadataOnly,
	}
	if result.Journal != nil {
		if result.Journal.Name != "" {
			paper.Venue = result.Journal.Name
		}
		paper.Pages = result.Journal.Pages
	}
	if ids := result.ExternalIDs; ids != nil {
		paper.SetIdentifierIfAbsent(domain.IdentifierTypeDOI, ids.DOI)
		paper.SetIdentifierIfAbsent(domain.IdentifierTypeArXivID, ids.ArXiv)
		paper.SetIdentifierIfAbsent(domain.IdentifierTypePubMedID, ids.PubMed)
		paper.SetIdentifierIfAbsent(domain.IdentifierTypePMCID, ids.PubMedCentral)
	}
	paper.SetIdentifierIfAbsent(domain.IdentifierTypeSemanticScholarID, result.PaperID)

	if paper.Title == "" || !paper.HasIdentifier() {
		return nil
	}

	for _, a := range result.Authors {
		if a.Name != "" {
			paper.Authors = append(paper.Authors, domain.Author{Name: a.Name})
		}
	}
	if result.OpenAccessPDF != nil {
		paper.PDFURL = result.OpenAccessPDF.URL
	}
	return paper
}
