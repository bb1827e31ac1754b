package oa

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/helixir/reference-service/internal/dedup"
	"github.com/helixir/reference-service/internal/domain"
	"github.com/helixir/reference-service/internal/papersources/core"
	"github.com/helixir/reference-service/internal/papersources/unpaywall"
)

// Strategy names, in default cascade order.
const (
	StrategyUnpaywallBest = "unpaywall_best"
	StrategyUnpaywallAny  = "unpaywall_locations"
	StrategyCORE          = "core"
	StrategyArXiv         = "arxiv"
	StrategyEuropePMC     = "europepmc"
	StrategyDOI           = "doi_negotiation"
)

// UnpaywallLookup is satisfied by unpaywall.Client.
type UnpaywallLookup interface {
	Lookup(ctx context.Context, doi string) (*unpaywall.Record, error)
}

// CORESearcher is satisfied by core.Client.
type CORESearcher interface {
	SearchByDOI(ctx context.Context, doi string) (*core.Work, error)
	SearchByTitle(ctx context.Context, title string) ([]core.Work, error)
}

// ArXivLocator is satisfied by arxiv.Client.
type ArXivLocator interface {
	PDFLocation(p *domain.Paper) *domain.ResolvedLocation
}

// PMCFinder is satisfied by europepmc.Client.
type PMCFinder interface {
	FindPMCID(ctx context.Context, doi, pmid string) (string, error)
	PDFURL(pmcid string) string
}

// DOINegotiator is satisfied by doiorg.Client.
type DOINegotiator interface {
	ResolvePDF(ctx context.Context, doi string) (string, error)
}

// Sources bundles the clients used by DefaultStrategies. Nil members are skipped.
type Sources struct {
	Unpaywall UnpaywallLookup
	CORE      CORESearcher
	ArXiv     ArXivLocator
	EuropePMC PMCFinder
	DOI       DOINegotiator

	// TitleMatcher decides whether a CORE title hit is the same work.
	TitleMatcher dedup.TitleMatcher

	Logger zerolog.Logger
}

// DefaultStrategies builds the cascade: Unpaywall best location, Unpaywall
// locations, CORE, arXiv, Europe PMC, DOI negotiation.
func DefaultStrategies(src Sources) []Strategy {
	var out []Strategy
	if src.Unpaywall != nil {
		best, locations := UnpaywallStrategies(src.Unpaywall, src.Logger)
		out = append(out, best, locations)
	}
	if src.CORE != nil {
		out = append(out, COREStrategy(src.CORE, src.TitleMatcher, src.Logger))
	}
	if src.ArXiv != nil {
		out = append(out, ArXivStrategy(src.ArXiv))
	}
	if src.EuropePMC != nil {
		out = append(out, EuropePMCStrategy(src.EuropePMC, src.Logger))
	}
	if src.DOI != nil {
		out = append(out, DOIStrategy(src.DOI, src.Logger))
	}
	return out
}

// UnpaywallStrategies returns the best-location and any-location strategies.
// They share one lookup per DOI: the first strategy leaves the record behind
// for the second when it does not win.
func UnpaywallStrategies(client UnpaywallLookup, logger zerolog.Logger) (best, locations Strategy) {
	var pending sync.Map // doi -> *unpaywall.Record

	lookup := func(ctx context.Context, doi string) *unpaywall.Record {
		rec, err := client.Lookup(ctx, doi)
		if err != nil {
			logger.Warn().Err(err).Str("doi", doi).Msg("unpaywall lookup failed")
			return nil
		}
		return rec
	}

	best = Strategy{
		Name: StrategyUnpaywallBest,
		Resolve: func(ctx context.Context, p *domain.Paper) *domain.ResolvedLocation {
			doi := p.DOI()
			if doi == "" {
				return nil
			}
			rec := lookup(ctx, doi)
			if u := rec.BestPDFURL(); u != "" {
				return &domain.ResolvedLocation{Source: domain.SourceTypeUnpaywall, URL: u, Note: "best_oa_location"}
			}
			pending.Store(doi, rec)
			return nil
		},
	}

	locations = Strategy{
		Name: StrategyUnpaywallAny,
		Resolve: func(ctx context.Context, p *domain.Paper) *domain.ResolvedLocation {
			doi := p.DOI()
			if doi == "" {
				return nil
			}
			var rec *unpaywall.Record
			if v, ok := pending.LoadAndDelete(doi); ok {
				rec = v.(*unpaywall.Record)
			} else {
				rec = lookup(ctx, doi)
			}
			urls := rec.PDFURLs()
			if len(urls) == 0 {
				return nil
			}
			return &domain.ResolvedLocation{Source: domain.SourceTypeUnpaywall, URL: urls[0], Note: "oa_locations"}
		},
	}
	return best, locations
}

// COREStrategy searches CORE by DOI and then by title. Title hits must reach
// the matcher's Jaccard threshold; weaker hits are rejected.
func COREStrategy(client CORESearcher, matcher dedup.TitleMatcher, logger zerolog.Logger) Strategy {
	return Strategy{
		Name: StrategyCORE,
		Resolve: func(ctx context.Context, p *domain.Paper) *domain.ResolvedLocation {
			if doi := p.DOI(); doi != "" {
				work, err := client.SearchByDOI(ctx, doi)
				if err != nil {
					logger.Warn().Err(err).Str("doi", doi).Msg("core doi search failed")
				} else if work != nil && work.DownloadURL != "" {
					return &domain.ResolvedLocation{Source: domain.SourceTypeCORE, URL: work.DownloadURL, Note: "doi"}
				}
			}

			if p.Title == "" {
				return nil
			}
			works, err := client.SearchByTitle(ctx, p.Title)
			if err != nil {
				logger.Warn().Err(err).Str("title", p.Title).Msg("core title search failed")
				return nil
			}
			for _, w := range works {
				if w.DownloadURL != "" && matcher.SameWork(p.Title, w.Title) {
					return &domain.ResolvedLocation{Source: domain.SourceTypeCORE, URL: w.DownloadURL, Note: "title match"}
				}
			}
			return nil
		},
	}
}

// ArXivStrategy builds the arXiv PDF URL from identifiers. No request is made.
func ArXivStrategy(locator ArXivLocator) Strategy {
	return Strategy{
		Name: StrategyArXiv,
		Resolve: func(_ context.Context, p *domain.Paper) *domain.ResolvedLocation {
			return locator.PDFLocation(p)
		},
	}
}

// EuropePMCStrategy maps a DOI or PMID to a PMC id and builds its render URL.
// A PMC id already on the paper skips the lookup.
func EuropePMCStrategy(finder PMCFinder, logger zerolog.Logger) Strategy {
	return Strategy{
		Name: StrategyEuropePMC,
		Resolve: func(ctx context.Context, p *domain.Paper) *domain.ResolvedLocation {
			pmcid := p.Identifier(domain.IdentifierTypePMCID)
			note := "pmcid"
			if pmcid == "" {
				doi, pmid := p.DOI(), p.Identifier(domain.IdentifierTypePubMedID)
				if doi == "" && pmid == "" {
					return nil
				}
				var err error
				pmcid, err = finder.FindPMCID(ctx, doi, pmid)
				if err != nil {
					logger.Warn().Err(err).Str("doi", doi).Str("pmid", pmid).Msg("europe pmc lookup failed")
					return nil
				}
				note = "search"
			}
			if pmcid == "" {
				return nil
			}
			return &domain.ResolvedLocation{Source: domain.SourceTypeEuropePMC, URL: finder.PDFURL(pmcid), Note: note}
		},
	}
}

// DOIStrategy asks the DOI resolver for a PDF representation.
func DOIStrategy(negotiator DOINegotiator, logger zerolog.Logger) Strategy {
	return Strategy{
		Name: StrategyDOI,
		Resolve: func(ctx context.Context, p *domain.Paper) *domain.ResolvedLocation {
			doi := p.DOI()
			if doi == "" {
				return nil
			}
			u, err := negotiator.ResolvePDF(ctx, doi)
			if err != nil {
				logger.Warn().Err(err).Str("doi", doi).Msg("doi negotiation failed")
				return nil
			}
			if u == "" {
				return nil
			}
			return &domain.ResolvedLocation{Source: domain.SourceTypeDOI, URL: u, Note: "content negotiation"}
		},
	}
}
