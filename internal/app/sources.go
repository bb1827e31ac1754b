package app

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/reference-service/internal/config"
	"github.com/helixir/reference-service/internal/dedup"
	"github.com/helixir/reference-service/internal/oa"
	"github.com/helixir/reference-service/internal/papersources"
	"github.com/helixir/reference-service/internal/papersources/arxiv"
	"github.com/helixir/reference-service/internal/papersources/core"
	"github.com/helixir/reference-service/internal/papersources/crossref"
	"github.com/helixir/reference-service/internal/papersources/doiorg"
	"github.com/helixir/reference-service/internal/papersources/europepmc"
	"github.com/helixir/reference-service/internal/papersources/openalex"
	"github.com/helixir/reference-service/internal/papersources/semanticscholar"
	"github.com/helixir/reference-service/internal/papersources/unpaywall"
)

// Sources holds every external client built from the sources section.
type Sources struct {
	SemanticScholar *semanticscholar.Client
	OpenAlex        *openalex.Client
	CrossRef        *crossref.Client
	Unpaywall       *unpaywall.Client
	CORE            *core.Client
	EuropePMC       *europepmc.Client
	ArXiv           *arxiv.Client
	DOI             *doiorg.Client
}

// clientFactory builds the retrying HTTP client for each source with the
// shared retry policy and request metrics.
type clientFactory struct {
	retry    config.HTTPClientConfig
	observer papersources.RequestObserver
}

func (f clientFactory) build(name string, src config.SourceConfig, rate float64, burst int, mutate func(*papersources.HTTPClientConfig)) *papersources.HTTPClient {
	if src.RateLimit > 0 {
		rate = src.RateLimit
	}
	cfg := papersources.HTTPClientConfig{
		Name:          name,
		Timeout:       src.Timeout,
		RateLimit:     rate,
		BurstSize:     burst,
		MaxAttempts:   f.retry.MaxAttempts,
		RetryDelay:    f.retry.RetryDelay,
		MaxRetryDelay: f.retry.MaxRetryDelay,
		Observer:      f.observer,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return papersources.NewHTTPClient(cfg)
}

func withMailto(mailto string) func(*papersources.HTTPClientConfig) {
	return func(c *papersources.HTTPClientConfig) {
		if mailto != "" {
			c.UserAgent = papersources.DefaultUserAgent + " (mailto:" + mailto + ")"
		}
	}
}

// NewSources builds the source clients. Unpaywall is the only source whose
// configuration can be rejected: it needs a contact email when enabled.
func NewSources(cfg *config.Config, observer papersources.RequestObserver) (*Sources, error) {
	sc := cfg.Sources
	f := clientFactory{retry: cfg.HTTPClient, observer: observer}

	s := &Sources{}

	s.SemanticScholar = semanticscholar.NewClient(semanticscholar.Config{
		BaseURL:    sc.SemanticScholar.BaseURL,
		APIKey:     sc.SemanticScholar.APIKey,
		Timeout:    sc.SemanticScholar.Timeout,
		RateLimit:  sc.SemanticScholar.RateLimit,
		MaxResults: sc.SemanticScholar.MaxResults,
		Enabled:    sc.SemanticScholar.Enabled,
	}, f.build("semantic_scholar", sc.SemanticScholar, semanticscholar.DefaultRateLimit, semanticscholar.DefaultBurstSize,
		func(c *papersources.HTTPClientConfig) {
			c.APIKey = sc.SemanticScholar.APIKey
			c.APIKeyHeader = "x-api-key"
		}))

	openalexMail := sc.ContactEmail(sc.OpenAlex)
	s.OpenAlex = openalex.NewWithHTTPClient(openalex.Config{
		BaseURL:    sc.OpenAlex.BaseURL,
		Email:      openalexMail,
		Timeout:    sc.OpenAlex.Timeout,
		MaxResults: sc.OpenAlex.MaxResults,
		Enabled:    sc.OpenAlex.Enabled,
	}, f.build("openalex", sc.OpenAlex, openalex.DefaultRateLimit, openalex.DefaultBurstSize, withMailto(openalexMail)))

	crossrefMail := sc.ContactEmail(sc.CrossRef)
	s.CrossRef = crossref.NewWithHTTPClient(crossref.Config{
		BaseURL:              sc.CrossRef.BaseURL,
		Mailto:               crossrefMail,
		Timeout:              sc.CrossRef.Timeout,
		MaxResults:           sc.CrossRef.MaxResults,
		Enabled:              sc.CrossRef.Enabled,
		DisableKeywordFilter: !cfg.Acquisition.KeywordFilter,
	}, f.build("crossref", sc.CrossRef, crossref.DefaultRateLimit, crossref.DefaultBurstSize, withMailto(crossrefMail)))

	up, err := unpaywall.NewWithHTTPClient(unpaywall.Config{
		BaseURL: sc.Unpaywall.BaseURL,
		Email:   sc.ContactEmail(sc.Unpaywall),
		Timeout: sc.Unpaywall.Timeout,
		Enabled: sc.Unpaywall.Enabled,
	}, f.build("unpaywall", sc.Unpaywall, unpaywall.DefaultRateLimit, unpaywall.DefaultBurstSize, nil))
	if err != nil {
		return nil, err
	}
	s.Unpaywall = up

	s.CORE = core.NewWithHTTPClient(core.Config{
		BaseURL: sc.CORE.BaseURL,
		APIKey:  sc.CORE.APIKey,
		Timeout: sc.CORE.Timeout,
		Enabled: sc.CORE.Enabled,
	}, f.build("core", sc.CORE, core.DefaultRateLimit, core.DefaultBurstSize, func(c *papersources.HTTPClientConfig) {
		c.APIKey = sc.CORE.APIKey
		c.APIKeyHeader = "Authorization"
		c.APIKeyPrefix = "Bearer "
	}))

	s.EuropePMC = europepmc.NewWithHTTPClient(europepmc.Config{
		BaseURL: sc.EuropePMC.BaseURL,
		Timeout: sc.EuropePMC.Timeout,
		Enabled: sc.EuropePMC.Enabled,
	}, f.build("europepmc", sc.EuropePMC, europepmc.DefaultRateLimit, europepmc.DefaultBurstSize, nil))

	s.ArXiv = arxiv.NewWithHTTPClient(arxiv.Config{
		BaseURL:    sc.ArXiv.BaseURL,
		Timeout:    sc.ArXiv.Timeout,
		MaxResults: sc.ArXiv.MaxResults,
		Enabled:    sc.ArXiv.Enabled,
	}, f.build("arxiv", sc.ArXiv, arxiv.DefaultRateLimit, arxiv.DefaultBurstSize, nil))

	doiMail := sc.ContactEmail(sc.DOI)
	s.DOI = doiorg.NewWithHTTPClient(doiorg.Config{
		ResolverURL: sc.DOI.BaseURL,
		Timeout:     sc.DOI.Timeout,
		RateLimit:   sc.DOI.RateLimit,
		Enabled:     sc.DOI.Enabled,
		Mailto:      doiMail,
	}, f.build("doi", sc.DOI, doiorg.DefaultRateLimit, doiorg.DefaultBurstSize, withMailto(doiMail)))

	return s, nil
}

// Registry registers the enabled metadata search sources. timeout bounds each
// source's search.
func (s *Sources) Registry(timeout time.Duration, logger zerolog.Logger) *papersources.Registry {
	registry := papersources.NewRegistry(papersources.WithSourceTimeout(timeout))
	for _, src := range []papersources.PaperSource{s.SemanticScholar, s.OpenAlex, s.CrossRef, s.ArXiv} {
		if !src.IsEnabled() {
			continue
		}
		registry.Register(src)
		logger.Info().Str("source", src.Name()).Msg("registered paper source")
	}
	return registry
}

// Strategies builds the OA cascade from the enabled clients.
func (s *Sources) Strategies(threshold float64, logger zerolog.Logger) []oa.Strategy {
	src := oa.Sources{
		ArXiv:        s.ArXiv,
		TitleMatcher: dedup.NewTitleMatcher(threshold),
		Logger:       logger,
	}
	if s.Unpaywall.IsEnabled() {
		src.Unpaywall = s.Unpaywall
	}
	if s.CORE.IsEnabled() {
		src.CORE = s.CORE
	}
	if s.EuropePMC.IsEnabled() {
		src.EuropePMC = s.EuropePMC
	}
	if s.DOI.IsEnabled() {
		src.DOI = s.DOI
	}
	return oa.DefaultStrategies(src)
}

// WorkSearchers returns the citation verification sources in fallback order.
func (s *Sources) WorkSearchers() []papersources.WorkSearcher {
	var out []papersources.WorkSearcher
	if s.CrossRef.IsEnabled() {
		out = append(out, s.CrossRef)
	}
	if s.OpenAlex.IsEnabled() {
		out = append(out, s.OpenAlex)
	}
	return out
}
