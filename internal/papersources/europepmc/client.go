// Package europepmc finds PubMed Central full texts through the Europe PMC
// REST search service.
package europepmc

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
	DefaultBaseURL   = "https://www.ebi.ac.uk/europepmc/webservices/rest"
	DefaultRenderURL = "https://europepmc.org/backend/ptpmcrender.fcgi"
	DefaultRateLimit = 10.0
	DefaultBurstSize = 5
	DefaultTimeout   = 15 * time.Second

	sourceName = "Europe PMC"
)

// Config holds configuration for the Europe PMC client.
type Config struct {
	BaseURL   string
	RenderURL string
	Timeout   time.Duration
	RateLimit float64
	BurstSize int
	Enabled   bool
}

type searchResponse struct {
	HitCount   int `json:"hitCount"`
	ResultList struct {
		Result []Result `json:"result"`
	} `json:"resultList"`
}

// Result is one Europe PMC search hit.
type Result struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	PMID   string `json:"pmid"`
	PMCID  string `json:"pmcid"`
	DOI    string `json:"doi"`
	Title  string `json:"title"`
}

// Client is a Europe PMC client.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

// New creates a Europe PMC client.
func New(cfg Config) *Client {
	return NewWithHTTPClient(cfg, nil)
}

// NewWithHTTPClient creates a Europe PMC client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RenderURL == "" {
		cfg.RenderURL = DefaultRenderURL
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
			Name:      "europepmc",
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			BurstSize: cfg.BurstSize,
		})
	}
	return &Client{config: cfg, httpClient: httpClient}
}

func (c *Client) Name() string { return sourceName }

func (c *Client) IsEnabled() bool { return c.config.Enabled }

// FindPMCID looks the paper up by DOI, or by PMID when it has no DOI, and
// returns the PubMed Central id of the first hit. "" means no PMC copy.
func (c *Client) FindPMCID(ctx context.Context, doi, pmid string) (string, error) {
	var query string
	switch {
	case doi != "":
		query = "DOI:" + domain.NormalizeDOI(doi)
	case pmid != "":
		query = "EXT_ID:" + strings.TrimSpace(pmid)
	default:
		return "", nil
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("format", "json")
	params.Set("resultType", "core")
	params.Set("pageSize", "1")
	u := strings.TrimRight(c.config.BaseURL, "/") + "/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return "", domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	var sr searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 5<<20)).Decode(&sr); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(sr.ResultList.Result) == 0 {
		return "", nil
	}
	return domain.NormalizeIdentifier(domain.IdentifierTypePMCID, sr.ResultList.Result[0].PMCID), nil
}

// PDFURL builds the render URL for a PMC id.
func (c *Client) PDFURL(pmcid string) string {
	pmcid = domain.NormalizeIdentifier(domain.IdentifierTypePMCID, pmcid)
	if pmcid == "" {
		return ""
	}
	return c.config.RenderURL + "?" + url.Values{"accid": {pmcid}, "blobtype": {"pdf"}}.Encode()
}
