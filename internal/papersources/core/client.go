// Package core searches the CORE v3 aggregator of repository full texts.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/reference-service/internal/domain"
	"github.com/helixir/reference-service/internal/papersources"
)

const (
	DefaultBaseURL   = "https://api.core.ac.uk/v3"
	DefaultRateLimit = 5.0
	DefaultBurstSize = 2
	DefaultTimeout   = 15 * time.Second

	// DefaultTitleRows is the number of works fetched by a title search.
	DefaultTitleRows = 5

	sourceName = "CORE"
)

// Config holds configuration for the CORE client.
type Config struct {
	BaseURL string

	// APIKey is sent as a bearer token. CORE is disabled without one.
	APIKey string

	Timeout   time.Duration
	RateLimit float64
	BurstSize int
	Enabled   bool
}

// Work is one CORE search hit.
type Work struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	DOI           string `json:"doi"`
	DownloadURL   string `json:"downloadUrl"`
	YearPublished int    `json:"yearPublished"`
}

type searchResponse struct {
	TotalHits int    `json:"totalHits"`
	Results   []Work `json:"results"`
}

// Client is a CORE API client.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

// New creates a CORE client.
func New(cfg Config) *Client {
	return NewWithHTTPClient(cfg, nil)
}

// NewWithHTTPClient creates a CORE client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
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
	if httpClient == nil {
		httpClient = papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Name:         "core",
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
			BurstSize:    cfg.BurstSize,
			APIKey:       cfg.APIKey,
			APIKeyHeader: "Authorization",
			APIKeyPrefix: "Bearer ",
		})
	}
	return &Client{config: cfg, httpClient: httpClient}
}

// Name returns the human-readable name.
func (c *Client) Name() string { return sourceName }

// IsEnabled reports whether the client is enabled and has an API key.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled && c.config.APIKey != ""
}

// SearchByDOI returns the first work CORE holds for doi, or nil.
func (c *Client) SearchByDOI(ctx context.Context, doi string) (*Work, error) {
	doi = domain.NormalizeDOI(doi)
	if doi == "" {
		return nil, nil
	}
	works, err := c.search(ctx, fmt.Sprintf("doi:%q", doi), 1)
	if err != nil || len(works) == 0 {
		return nil, err
	}
	return &works[0], nil
}

// SearchByTitle returns up to DefaultTitleRows works whose title matches the
// phrase. Only works with a download URL are returned.
func (c *Client) SearchByTitle(ctx context.Context, title string) ([]Work, error) {
	title = strings.Join(strings.Fields(strings.ReplaceAll(title, `"`, " ")), " ")
	if title == "" {
		return nil, nil
	}
	works, err := c.search(ctx, fmt.Sprintf("title:%q", title), DefaultTitleRows)
	if err != nil {
		return nil, err
	}
	out := works[:0]
	for _, w := range works {
		if w.DownloadURL != "" {
			out = append(out, w)
		}
	}
	return out, nil
}

func (c *Client) search(ctx context.Context, q string, limit int) ([]Work, error) {
	params := url.Values{}
	params.Set("q", q)
	params.Set("limit", strconv.Itoa(limit))
	u := strings.TrimRight(c.config.BaseURL, "/") + "/search/works?" + params.Encode()

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
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	var sr searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return sr.Results, nil
}
