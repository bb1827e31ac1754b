package acquisition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/reference-service/internal/config"
	"github.com/helixir/reference-service/internal/domain"
	"github.com/helixir/reference-service/internal/papersources"
	"github.com/helixir/reference-service/internal/pdf"
)

var (
	// ErrNotProxied is returned when a paper's publisher is not routed through the proxy.
	ErrNotProxied = errors.New("acquisition: publisher not routed through proxy")
	// ErrProxyLogin is returned when the proxy rejects the configured credentials.
	ErrProxyLogin = errors.New("acquisition: proxy login failed")
)

// ProxyRewriter turns publisher URLs into institutional proxy URLs.
//
// Query mode produces {base}/login?url={escaped url}. Prefix mode rewrites the
// host, e.g. www.jstor.org becomes www-jstor-org.proxy.example.edu.
type ProxyRewriter struct {
	base    *url.URL
	mode    string
	domains []string
}

// NewProxyRewriter creates a rewriter from the proxy configuration.
func NewProxyRewriter(cfg config.ProxyConfig) (*ProxyRewriter, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, domain.NewConfigError("acquisition.proxy.base_url", fmt.Sprintf("invalid proxy url %q", cfg.BaseURL))
	}

	mode := cfg.Type
	if mode == "" {
		mode = config.ProxyTypeQuery
	}
	if mode != config.ProxyTypeQuery && mode != config.ProxyTypePrefix {
		return nil, domain.NewConfigError("acquisition.proxy.type", fmt.Sprintf("unknown proxy type %q", cfg.Type))
	}

	domains := make([]string, 0, len(cfg.Domains))
	for _, d := range cfg.Domains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			domains = append(domains, d)
		}
	}
	return &ProxyRewriter{base: base, mode: mode, domains: domains}, nil
}

// NeedsProxy reports whether raw points at a configured publisher domain or
// one of its subdomains. With no domains configured every URL is proxied.
func (r *ProxyRewriter) NeedsProxy(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return false
	}
	if len(r.domains) == 0 {
		return true
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range r.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Rewrite returns the proxy URL for raw.
func (r *ProxyRewriter) Rewrite(raw string) (string, error) {
	target, err := url.Parse(raw)
	if err != nil || target.Hostname() == "" {
		return "", fmt.Errorf("invalid url %q", raw)
	}

	if r.mode == config.ProxyTypeQuery {
		return r.base.String() + "/login?url=" + url.QueryEscape(raw), nil
	}

	host := strings.ReplaceAll(target.Hostname(), ".", "-") + "." + r.base.Hostname()
	if port := r.base.Port(); port != "" {
		host += ":" + port
	}
	out := *target
	out.Host = host
	if out.Scheme == "" {
		out.Scheme = "https"
	}
	return out.String(), nil
}

// LoginURL is where the session posts its credentials.
func (r *ProxyRewriter) LoginURL() string {
	return r.base.String() + "/login"
}

// LandingResolver finds the publisher page a DOI resolves to.
// *doiorg.Client satisfies it.
type LandingResolver interface {
	LandingURL(ctx context.Context, doi string) (string, error)
}

// SingleDownloader downloads one paper from candidate URLs.
// *pdf.Downloader satisfies it.
type SingleDownloader interface {
	Download(ctx context.Context, urls []string, dest string) (*pdf.Result, error)
}

// ProxySession downloads papers through an authenticated institutional proxy.
// The session cookie lives in the jar shared by the login client and the
// downloader. Login happens once, on first use.
type ProxySession struct {
	rewriter   *ProxyRewriter
	username   string
	password   string
	http       *papersources.HTTPClient
	landing    LandingResolver
	downloader SingleDownloader
	logger     zerolog.Logger

	mu       sync.Mutex
	loggedIn bool
	loginErr error
}

// ProxyOption configures a ProxySession.
type ProxyOption func(*ProxySession)

// WithProxyLogger sets the logger.
func WithProxyLogger(l zerolog.Logger) ProxyOption {
	return func(s *ProxySession) { s.logger = l.With().Str("component", "proxy-session").Logger() }
}

// NewProxySession creates a session. jar must be the cookie jar the downloader
// was built with, so the login cookie is sent with every download.
func NewProxySession(cfg config.ProxyConfig, landing LandingResolver, downloader SingleDownloader, jar http.CookieJar, opts ...ProxyOption) (*ProxySession, error) {
	rewriter, err := NewProxyRewriter(cfg)
	if err != nil {
		return nil, err
	}
	if downloader == nil {
		return nil, domain.NewConfigError("acquisition.proxy", "downloader is required")
	}
	if cfg.Username != "" && cfg.Password == "" {
		return nil, domain.NewConfigError("acquisition.proxy", "proxy username requires a password")
	}

	s := &ProxySession{
		rewriter:   rewriter,
		username:   cfg.Username,
		password:   cfg.Password,
		landing:    landing,
		downloader: downloader,
		logger:     zerolog.Nop(),
		http: papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Name:        "proxy",
			Timeout:     30 * time.Second,
			RateLimit:   2,
			BurstSize:   1,
			MaxAttempts: 1,
			Jar:         jar,
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Fetch resolves the paper's DOI to its publisher page and downloads it
// through the proxy. Papers without a DOI or whose publisher is not proxied
// return ErrNotProxied.
func (s *ProxySession) Fetch(ctx context.Context, p *domain.Paper, dest string) (*pdf.Result, error) {
	doi := p.DOI()
	if doi == "" {
		return nil, ErrNotProxied
	}

	publisher := ""
	if s.landing != nil {
		landing, err := s.landing.LandingURL(ctx, doi)
		if err != nil {
			s.logger.Debug().Err(err).Str("doi", doi).Msg("doi landing lookup failed")
		}
		publisher = landing
	}
	if publisher == "" {
		publisher = "https://doi.org/" + doi
	}
	if !s.rewriter.NeedsProxy(publisher) {
		return nil, ErrNotProxied
	}

	if err := s.login(ctx); err != nil {
		return nil, err
	}

	target, err := s.rewriter.Rewrite(publisher)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("doi", doi).Str("url", target).Msg("downloading through proxy")
	return s.downloader.Download(ctx, []string{target}, dest)
}

// login posts the credentials once per session. A failed login is sticky so
// that a bad password does not hit the proxy for every paper.
func (s *ProxySession) login(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loggedIn {
		return nil
	}
	if s.loginErr != nil {
		return s.loginErr
	}
	if s.username == "" {
		// IP-authenticated proxy.
		s.loggedIn = true
		return nil
	}

	form := url.Values{"user": {s.username}, "pass": {s.password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.rewriter.LoginURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		// Transport failures are not sticky.
		return fmt.Errorf("%w: %v", ErrProxyLogin, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	lower := strings.ToLower(string(body))
	if resp.StatusCode >= http.StatusBadRequest || (strings.Contains(lower, "invalid") && strings.Contains(lower, "login")) {
		s.loginErr = fmt.Errorf("%w: status %d", ErrProxyLogin, resp.StatusCode)
		s.logger.Error().Int("status", resp.StatusCode).Msg("proxy rejected credentials")
		return s.loginErr
	}

	s.loggedIn = true
	s.logger.Info().Msg("proxy login succeeded")
	return nil
}
