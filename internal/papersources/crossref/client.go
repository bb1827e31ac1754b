// Package crossref provides a client for the CrossRef REST API.
//
// CrossRef serves two roles: it is one of the metadata sources of the
// acquisition search stage, and it is the primary bibliographic search used
// to verify citations (query.bibliographic).
package crossref

import (
	"context"
	"encoding/json"
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
	DefaultBaseURL    = "https://api.crossref.org"
	DefaultRateLimit  = 10.0
	DefaultBurstSize  = 5
	DefaultTimeout    = 15 * time.Second
	DefaultMaxResults = 20

	// DefaultVerifyRows is the number of candidates fetched per citation lookup.
	DefaultVerifyRows = 5

	sourceName = "CrossRef"
)

// Config holds configuration for the CrossRef client.
type Config struct {
	BaseURL string

	// Mailto routes requests to CrossRef's polite pool.
	Mailto string

	Timeout    time.Duration
	RateLimit  float64
	BurstSize  int
	MaxResults int
	Enabled    bool

	// DisableKeywordFilter keeps results whose title shares no query keyword.
	DisableKeywordFilter bool
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

// Client is a CrossRef API client.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var (
	_ papersources.PaperSource  = (*Client)(nil)
	_ papersources.WorkSearcher = (*Client)(nil)
)

// New creates a new CrossRef client.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	ua := papersources.DefaultUserAgent
	if cfg.Mailto != "" {
		ua += " (mailto:" + cfg.Mailto + ")"
	}
	return &Client{
		config: cfg,
		httpClient: papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Name:      "crossref",
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			BurstSize: cfg.BurstSize,
			UserAgent: ua,
		}),
	}
}

// NewWithHTTPClient creates a new CrossRef client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient}
}

// Search runs a bibliographic query for the acquisition search stage.
// CrossRef ranking is loose, so items whose title shares no keyword with the
// query are dropped.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) (*papersources.SearchResult, error) {
	if params.Query == "" {
		return nil, domain.NewValidationError("query", "search query is required")
	}
	start := time.Now()

	rows := params.MaxResults
	if rows <= 0 {
		rows = c.config.MaxResults
	}
	if rows > 50 {
		rows = 50
	}

	q := url.Values{}
	q.Set("query.bibliographic", params.Query)
	q.Set("rows", strconv.Itoa(rows))
	var filters []string
	if params.YearFrom > 0 {
		filters = append(filters, fmt.Sprintf("from-pub-date:%d", params.YearFrom))
	}
	if params.YearTo > 0 {
		filters = append(filters, fmt.Sprintf("until-pub-date:%d", params.YearTo))
	}
	if len(filters) > 0 {
		q.Set("filter", strings.Join(filters, ","))
	}

	result, err := c.works(ctx, q)
	if err != nil {
		return nil, err
	}

	var keywords []string
	if !c.config.DisableKeywordFilter {
		keywords = Keywords(params.Query)
	}
	papers := make([]*domain.Paper, 0, len(result.Items))
	for i := range result.Items {
		w := &result.Items[i]
		title := workTitle(w)
		if !hasKeyword(title, keywords) {
			continue
		}
		if p := workToPaper(w); p != nil {
			papers = append(papers, p)
		}
	}

	return &papersources.SearchResult{
		Papers:         papers,
		TotalResults:   result.TotalResults,
		Source:         domain.SourceTypeCrossRef,
		SearchDuration: time.Since(start),
	}, nil
}

// SearchWorks returns bibliographic candidates for a citation lookup.
func (c *Client) SearchWorks(ctx context.Context, query papersources.WorkQuery) ([]domain.CandidateMatch, error) {
	text := query.Text()
	if text == "" {
		return nil, nil
	}
	rows := query.Rows
	if rows <= 0 {
		rows = DefaultVerifyRows
	}

	q := url.Values{}
	q.Set("query.bibliographic", text)
	if query.Author != "" {
		q.Set("query.author", query.Author)
	}
	q.Set("rows", strconv.Itoa(rows))

	result, err := c.works(ctx, q)
	if err != nil {
		return nil, err
	}

	matches := make([]domain.CandidateMatch, 0, len(result.Items))
	for i := range result.Items {
		if m, ok := workToCandidate(&result.Items[i]); ok {
			matches = append(matches, m)
		}
	}
	return matches, nil
}

func (c *Client) SourceType() domain.SourceType { return domain.SourceTypeCrossRef }

func (c *Client) Name() string { return sourceName }

func (c *Client) IsEnabled() bool { return c.config.Enabled }

func (c *Client) works(ctx context.Context, q url.Values) (*worksResult, error) {
	if c.config.Mailto != "" {
		q.Set("mailto", c.config.Mailto)
	}
	u := strings.TrimRight(c.config.BaseURL, "/") + "/works?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
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
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), domain.ErrRateLimited)
		}
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	var wr worksResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&wr); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &wr.Message, nil
}

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields("a an the of in on at to for and or but is are was were by with from as it " +
		"its this that these those be been has have had do does did not no") {
		stopwords[w] = struct{}{}
	}
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// Keywords returns the lowercase query tokens that carry topical signal:
// stopwords and tokens of two characters or fewer are dropped.
func Keywords(query string) []string {
	var out []string
	for _, tok := range nonWord.Split(strings.ToLower(query), -1) {
		if len([]rune(tok)) <= 2 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func hasKeyword(title string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(title)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func workTitle(w *Work) string {
	if len(w.Title) == 0 {
		return ""
	}
	return papersources.CleanTitle(w.Title[0])
}

func workYear(w *Work) int {
	for _, d := range []*DateParts{w.PublishedPrint, w.PublishedOnline, w.Issued, w.Created} {
		if y := d.year(); y > 0 {
			return y
		}
	}
	return 0
}

func authorName(a Author) string {
	switch {
	case a.Given != "" && a.Family != "":
		return a.Given + " " + a.Family
	case a.Family != "":
		return a.Family
	case a.Given != "":
		return a.Given
	default:
		return a.Name
	}
}

func pdfLink(w *Work) string {
	for _, l := range w.Link {
		if strings.Contains(strings.ToLower(l.ContentType), "pdf") {
			return l.URL
		}
	}
	return ""
}

func workToPaper(w *Work) *domain.Paper {
	title := workTitle(w)
	if title == "" {
		return nil
	}
	p := &domain.Paper{
		Title:           title,
		Abstract:        papersources.CleanTitle(w.Abstract),
		PublicationYear: workYear(w),
		Pages:           w.Page,
		WorkType:        w.Type,
		PDFURL:          pdfLink(w),
		CitationCount:   w.ReferencedBy,
		Source:          domain.SourceTypeCrossRef,
		Status:          domain.StatusMetadataOnly,
	}
	if len(w.ContainerTitle) > 0 {
		p.Venue = w.ContainerTitle[0]
	}
	if !p.SetIdentifierIfAbsent(domain.IdentifierTypeDOI, w.DOI) {
		return nil
	}
	p.SetIdentifierIfAbsent(domain.IdentifierTypeArXivID, domain.ArXivIDFromDOI(w.DOI))
	for _, a := range w.Author {
		name := authorName(a)
		if name == "" {
			continue
		}
		author := domain.Author{Name: name, ORCID: a.ORCID}
		if len(a.Affiliation) > 0 {
			author.Affiliation = a.Affiliation[0].Name
		}
		p.Authors = append(p.Authors, author)
	}
	return p
}

func workToCandidate(w *Work) (domain.CandidateMatch, bool) {
	title := workTitle(w)
	if title == "" {
		return domain.CandidateMatch{}, false
	}
	m := domain.CandidateMatch{
		Title:    title,
		Year:     workYear(w),
		DOI:      domain.NormalizeDOI(w.DOI),
		WorkType: w.Type,
		URL:      w.URL,
		Source:   domain.SourceTypeCrossRef,
		Score:    w.Score,
	}
	if len(w.ContainerTitle) > 0 {
		m.Venue = w.ContainerTitle[0]
	}
	if pr, ok := domain.ParsePageRange(w.Page); ok {
		m.Pages = pr
	}
	for _, a := range w.Author {
		if name := authorName(a); name != "" {
			m.Authors = append(m.Authors, name)
		}
	}
	return m, true
}
