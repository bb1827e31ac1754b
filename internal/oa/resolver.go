// Package oa finds open access full-text locations for papers.
//
// A Resolver walks an ordered list of strategies and stops at the first one
// that yields a valid location. Strategies never fail: a source that errors,
// times out or has nothing returns nil and the cascade moves on.
package oa

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/reference-service/internal/domain"
)

// DefaultConcurrency bounds ResolveMany.
const DefaultConcurrency = 3

// Strategy is one step of the resolution cascade.
type Strategy struct {
	Name    string
	Resolve func(ctx context.Context, p *domain.Paper) *domain.ResolvedLocation
}

// Observer receives one observation per strategy attempt.
type Observer interface {
	ObserveResolution(strategy, outcome string)
}

// Resolver runs strategies in order for one paper. It is safe for concurrent use.
type Resolver struct {
	strategies  []Strategy
	logger      zerolog.Logger
	observer    Observer
	concurrency int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Resolver) { r.logger = l.With().Str("component", "oa-resolver").Logger() }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(r *Resolver) { r.observer = o }
}

// WithConcurrency sets the number of papers ResolveMany resolves at once.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewResolver creates a resolver that tries strategies in the given order.
func NewResolver(strategies []Strategy, opts ...Option) *Resolver {
	r := &Resolver{
		strategies:  strategies,
		logger:      zerolog.Nop(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Strategies returns the strategy names in cascade order.
func (r *Resolver) Strategies() []string {
	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.Name
	}
	return names
}

// Resolve returns the first valid location found for p, or nil when every
// strategy comes up empty. Later strategies are never consulted once one wins.
func (r *Resolver) Resolve(ctx context.Context, p *domain.Paper) *domain.ResolvedLocation {
	logger := r.logger.With().Str("paper", paperKey(p)).Logger()

	for _, s := range r.strategies {
		if ctx.Err() != nil {
			return nil
		}
		loc := s.Resolve(ctx, p)
		if loc == nil {
			r.observe(s.Name, "miss")
			continue
		}
		if !validLocation(loc.URL) {
			logger.Debug().Str("strategy", s.Name).Str("url", loc.URL).Msg("discarding invalid location")
			r.observe(s.Name, "invalid")
			continue
		}
		if loc.Strategy == "" {
			loc.Strategy = s.Name
		}
		r.observe(s.Name, "hit")
		logger.Info().Str("strategy", s.Name).Str("url", loc.URL).Msg("resolved open access location")
		return loc
	}

	logger.Debug().Msg("no open access location found")
	return nil
}

// ResolveMany resolves papers concurrently, at most the configured number at
// a time. The result maps paperKey to location and only holds hits.
func (r *Resolver) ResolveMany(ctx context.Context, papers []*domain.Paper) map[string]*domain.ResolvedLocation {
	var (
		mu  sync.Mutex
		out = make(map[string]*domain.ResolvedLocation, len(papers))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, p := range papers {
		g.Go(func() error {
			if loc := r.Resolve(gctx, p); loc != nil {
				mu.Lock()
				out[paperKey(p)] = loc
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (r *Resolver) observe(strategy, outcome string) {
	if r.observer != nil {
		r.observer.ObserveResolution(strategy, outcome)
	}
}

// PaperKey identifies a paper in ResolveMany results: its id once stored,
// otherwise its canonical id.
func PaperKey(p *domain.Paper) string { return paperKey(p) }

func paperKey(p *domain.Paper) string {
	if p.ID != uuid.Nil {
		return p.ID.String()
	}
	return p.CanonicalID
}

func validLocation(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
