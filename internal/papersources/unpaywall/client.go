// Package unpaywall looks up open access locations for a DOI using the
// Unpaywall v2 API.
package unpaywall

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/helixir/reference-service/internal/domain"
	"github.com/helixir/reference-service/internal/papersources"
)

const (
	DefaultBaseURL   = "https://api.unpaywall.org/v2"
	DefaultRateLimit = 10.0
	DefaultBurstSize = 5
	DefaultTimeout   = 15 * time.Second

	sourceName = "Unpaywall"
)

// Config holds configuration for the Unpaywall client.
type Config struct {
	BaseURL string

	// Email is required by Unpaywall on every request.
	Email string

	Timeout   time.Duration
	RateLimit float64
	BurstSize int
	Enabled   bool
}

// Record is the subset of an Unpaywall DOI object used for resolution.
type Record struct {
	DOI            string       `json:"doi"`
	IsOA           bool         `json:"is_oa"`
	Title          string       `json:"title"`
	BestOALocation *OALocation  `json:"best_oa_location"`
	OALocations    []OALocation `json:"oa_locations"`
}

// OALocation is one open access copy of a work.
type OALocation struct {
	URL       string `json:"url"`
	URLForPDF string `json:"url_for_pdf"`
	HostType  string `json:"host_type"`
	Version   string `json:"version"`
	License   string `json:"license"`
	IsBest    bool   `json:"is_best"`
}

// BestPDFURL returns best_oa_location.url_for_pdf, or "".
func (r *Record) BestPDFURL() string {
	if r == nil || r.BestOALocation == nil {
		return ""
	}
	return r.BestOALocation.URLForPDF
}

// PDFURLs returns every distinct url_for_pdf in oa_locations, in order.
func (r *Record) PDFURLs() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(r.OALocations))
	var urls []string
	for _, loc := range r.OALocations {
		if loc.URLForPDF == "" {
			continue
		}
		if _, ok := seen[loc.URLForPDF]; ok {
			continue
		}
		seen[loc.URLForPDF] = struct{}{}
		urls = append(urls, loc.URLForPDF)
	}
	return urls
}

// Client is an Unpaywall API client.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

// New creates an Unpaywall client. An enabled client without an email is a
// configuration error.
func New(cfg Config) (*Client, error) {
	return NewWithHTTPClient(cfg, nil)
}

// NewWithHTTPClient creates an Unpaywall client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) (*Client, error) {
	if cfg.Enabled && strings.TrimSpace(cfg.Email) == "" {
		return nil, domain.NewConfigError("sources.unpaywall.email", "unpaywall requires a contact email")
	}
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
			Name:      "unpaywall",
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			BurstSize: cfg.BurstSize,
		})
	}
	return &Client{config: cfg, httpClient: httpClient}, nil
}

// Name returns the human-readable name.
func (c *Client) Name() string { return sourceName }

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool { return c.config.Enabled }

// Lookup fetches the Unpaywall record for doi. A DOI unknown to Unpaywall
// returns (nil, nil).
func (c *Client) Lookup(ctx context.Context, doi string) (*Record, error) {
	doi = domain.NormalizeDOI(doi)
	if doi == "" {
		return nil, domain.NewValidationError("doi", "doi is required")
	}

	u, err := url.Parse(strings.TrimRight(c.config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	u.Path += "/" + doi
	u.RawQuery = url.Values{"email": {c.config.Email}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	var rec Record
	if err := json.NewDecoder(io.LimitReader(resp.Body, 5<<20)).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &rec, nil
}
