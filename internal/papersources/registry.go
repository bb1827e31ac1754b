package papersources

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/helixir/reference-service/internal/domain"
)

// SourceResult is one source's answer to SearchAll. Exactly one of Result
// and Error is set.
type SourceResult struct {
	Source domain.SourceType
	Result *SearchResult
	Error  error
}

// Registry holds the metadata sources a run searches. Register and the
// search methods may be called concurrently.
type Registry struct {
	mu      sync.RWMutex
	sources map[domain.SourceType]PaperSource

	sourceTimeout time.Duration
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithSourceTimeout bounds each source's search in SearchAll, so one slow
// source cannot hold up the merge. Zero means only the caller's context applies.
func WithSourceTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.sourceTimeout = d }
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{sources: make(map[domain.SourceType]PaperSource)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds source, replacing a source of the same type.
func (r *Registry) Register(source PaperSource) {
	r.mu.Lock()
	r.sources[source.SourceType()] = source
	r.mu.Unlock()
}

// Get returns the source of the given type, or nil.
func (r *Registry) Get(sourceType domain.SourceType) PaperSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[sourceType]
}

// EnabledSources lists enabled sources ordered by type. The fixed order keeps
// merge results stable between runs.
func (r *Registry) EnabledSources() []PaperSource {
	r.mu.RLock()
	out := make([]PaperSource, 0, len(r.sources))
	for _, s := range r.sources {
		if s.IsEnabled() {
			out = append(out, s)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SourceType() < out[j].SourceType() })
	return out
}

// SearchAll queries every enabled source concurrently and returns one result
// per source in EnabledSources order. A failing source does not cancel the
// others; callers decide what a failure means.
func (r *Registry) SearchAll(ctx context.Context, params SearchParams) []SourceResult {
	sources := r.EnabledSources()
	if len(sources) == 0 {
		return nil
	}

	results := make([]SourceResult, len(sources))
	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			sctx := ctx
			if r.sourceTimeout > 0 {
				var cancel context.CancelFunc
				sctx, cancel = context.WithTimeout(ctx, r.sourceTimeout)
				defer cancel()
			}

			res, err := src.Search(sctx, params)
			results[i] = SourceResult{Source: src.SourceType(), Result: res, Error: err}
			if err == nil && res == nil {
				results[i].Result = &SearchResult{Source: src.SourceType()}
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
