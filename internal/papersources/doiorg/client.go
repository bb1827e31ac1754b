// Package doiorg negotiates full-text locations directly with the DOI resolver.
package doiorg

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/helixir/reference-service/internal/domain"
	"github.com/helixir/reference-service/internal/papersources"
)

const (
	DefaultResolverURL = "https://doi.org"
	DefaultRateLimit   = 5.0
	DefaultBurstSize   = 2
	DefaultTimeout     = 15 * time.Second

	// maxLandingPageBytes bounds how much of a landing page is parsed.
	maxLandingPageBytes = 2 << 20

	sourceName = "doi.org"
)

// Config holds configuration for the DOI negotiation client.
type Config struct {
	ResolverURL string
	Timeout     time.Duration
	RateLimit   float64
	BurstSize   int
	Enabled     bool

	// Mailto is appended to the User-Agent so publishers can reach us.
	Mailto string
}

// Client resolves a DOI to a PDF location.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

// New creates a DOI negotiation client.
func New(cfg Config) *Client {
	return NewWithHTTPClient(cfg, nil)
}

// NewWithHTTPClient creates a DOI negotiation client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	if cfg.ResolverURL == "" {
		cfg.ResolverURL = DefaultResolverURL
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
		ua := papersources.DefaultUserAgent
		if cfg.Mailto != "" {
			ua += " (mailto:" + cfg.Mailto + ")"
		}
		httpClient = papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Name:      "doi",
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			BurstSize: cfg.BurstSize,
			UserAgent: ua,
		})
	}
	return &Client{config: cfg, httpClient: httpClient}
}

func (c *Client) Name() string { return sourceName }

func (c *Client) IsEnabled() bool { return c.config.Enabled }

// ResolvePDF asks the resolver for a PDF representation of doi. When the
// redirect chain ends in a PDF its final URL is returned. When it ends in an
// HTML landing page the page's citation_pdf_url meta tag is used instead.
// "" means no PDF was offered.
func (c *Client) ResolvePDF(ctx context.Context, doi string) (string, error) {
	doi = domain.NormalizeDOI(doi)
	if doi == "" {
		return "", nil
	}
	target := strings.TrimRight(c.config.ResolverURL, "/") + "/" + doi

	resp, err := c.request(ctx, http.MethodHead, target)
	if err != nil {
		return "", err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil
	}

	final := resp.Request.URL
	switch mediaType(resp) {
	case "application/pdf":
		return final.String(), nil
	case "text/html", "application/xhtml+xml":
		return c.landingPagePDF(ctx, final)
	default:
		return "", nil
	}
}

// LandingURL follows the resolver's redirect chain for doi and returns the
// publisher URL it ends at. "" means the DOI did not resolve.
func (c *Client) LandingURL(ctx context.Context, doi string) (string, error) {
	doi = domain.NormalizeDOI(doi)
	if doi == "" {
		return "", nil
	}
	target := strings.TrimRight(c.config.ResolverURL, "/") + "/" + doi

	resp, err := c.request(ctx, http.MethodHead, target)
	if err != nil {
		return "", err
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return "", nil
	}
	return resp.Request.URL.String(), nil
}

func (c *Client) request(ctx context.Context, method, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/pdf")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	return resp, nil
}

func (c *Client) landingPagePDF(ctx context.Context, page *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page.String(), nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil
	}

	href, err := CitationPDFURL(io.LimitReader(resp.Body, maxLandingPageBytes))
	if err != nil || href == "" {
		return "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", nil
	}
	return resp.Request.URL.ResolveReference(ref).String(), nil
}

// CitationPDFURL returns the content of the first
// <meta name="citation_pdf_url"> tag in an HTML document.
func CitationPDFURL(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return "", nil
			}
			return "", fmt.Errorf("parsing landing page: %w", z.Err())
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data == "body" {
				return "", nil
			}
			if tok.Data != "meta" {
				continue
			}
			var name, content string
			for _, a := range tok.Attr {
				switch strings.ToLower(a.Key) {
				case "name":
					name = strings.ToLower(a.Val)
				case "content":
					content = strings.TrimSpace(a.Val)
				}
			}
			if name == "citation_pdf_url" && content != "" {
				return content, nil
			}
		}
	}
}

func mediaType(resp *http.Response) string {
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}
