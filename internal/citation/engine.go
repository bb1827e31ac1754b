package citation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/reference-service/internal/dedup"
	"github.com/helixir/reference-service/internal/domain"
	"github.com/helixir/reference-service/internal/events"
	"github.com/helixir/reference-service/internal/observability"
	"github.com/helixir/reference-service/internal/papersources"
)

const (
	defaultConcurrency   = 5
	defaultContextWindow = 500
	defaultSearchRows    = 5
)

// Observer receives verification observations.
type Observer interface {
	ObserveVerification(status string)
	ObserveCacheHit()
}

// Config holds engine configuration. Zero values select the defaults.
type Config struct {
	// Concurrency bounds the number of citation groups searched at once. Default: 5.
	Concurrency int
	// ContextWindow is how many bytes before a citation are scanned for a
	// title when the citation names none. Default: 500. Negative disables it.
	ContextWindow int
	// TitleSimilarityThreshold is the Jaccard acceptance threshold. Default: 0.8.
	TitleSimilarityThreshold float64
	// SearchRows is the number of candidates requested per search. Default: 5.
	SearchRows int
}

// Engine verifies parsed citations against bibliographic search sources.
// Sources are tried in order; a source that fails or returns nothing usable
// falls through to the next one.
type Engine struct {
	cfg       Config
	searchers []papersources.WorkSearcher
	matcher   dedup.TitleMatcher
	cache     Cache
	logger    zerolog.Logger
	observer  Observer
	publisher events.Publisher
	emitter   *events.Emitter
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache sets a cache shared by every run of the engine, e.g. a BoltCache.
// Without it each VerifyAll call starts from an empty MemoryCache.
func WithCache(c Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l.With().Str("component", "citation-verifier").Logger() }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithPublisher publishes a verification.completed event after each Verify call.
func WithPublisher(p events.Publisher, emitter *events.Emitter) Option {
	return func(e *Engine) {
		e.publisher = p
		if emitter != nil {
			e.emitter = emitter
		}
	}
}

// NewEngine creates an engine over the given sources, most authoritative first.
func NewEngine(cfg Config, searchers []papersources.WorkSearcher, opts ...Option) (*Engine, error) {
	if len(searchers) == 0 {
		return nil, domain.NewConfigError("verification", "at least one work search source is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.ContextWindow == 0 {
		cfg.ContextWindow = defaultContextWindow
	}
	if cfg.SearchRows <= 0 {
		cfg.SearchRows = defaultSearchRows
	}

	e := &Engine{
		cfg:       cfg,
		searchers: searchers,
		matcher:   dedup.NewTitleMatcher(cfg.TitleSimilarityThreshold),
		logger:    zerolog.Nop(),
		publisher: events.NopPublisher{},
		emitter:   events.NewEmitter(events.EmitterConfig{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Verify parses text, verifies every citation and returns the annotated text
// with its report. Unverifiable citations are part of the report, not errors;
// only cancellation is returned as an error.
func (e *Engine) Verify(ctx context.Context, text string) (string, *domain.VerificationReport, error) {
	runID := uuid.New()
	ctx = observability.WithRunID(ctx, runID.String())
	logger := observability.LoggerFromContext(ctx, e.logger)

	citations := Parse(text)
	logger.Info().Int("citations", len(citations)).Msg("verifying citations")

	results, err := e.VerifyAll(ctx, text, citations)
	if err != nil {
		return "", nil, err
	}

	annotated, report := Annotate(text, results)
	logger.Info().
		Int("total", report.Total).
		Int("verified", report.Verified).
		Int("flagged", report.Flagged()).
		Msg("verification completed")

	ev, err := e.emitter.VerificationCompleted(domain.VerificationCompletedPayload{
		RunID:            runID,
		Total:            report.Total,
		Verified:         report.Verified,
		TitleMismatch:    report.TitleMismatch,
		PageOutOfRange:   report.PageOutOfRange,
		UnverifiableType: report.UnverifiableType,
		NotFound:         report.NotFound,
	})
	if err == nil {
		err = e.publisher.Publish(ctx, ev)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("failed to publish verification event")
	}
	return annotated, report, nil
}

// VerifyAll verifies citations found in text and returns one result per
// citation, in input order. Citations are grouped by author surname, or by
// title when they name no author; groups are searched concurrently and the
// members of a group sequentially, so repeated citations of one work hit the
// cache.
func (e *Engine) VerifyAll(ctx context.Context, text string, citations []domain.ParsedCitation) ([]domain.VerificationResult, error) {
	results := make([]domain.VerificationResult, len(citations))
	cache := e.cache
	if cache == nil {
		cache = NewMemoryCache()
	}

	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for _, members := range groupCitations(citations) {
		g.Go(func() error {
			e.verifyGroup(ctx, cache, text, citations, members, results)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("verification cancelled: %w", err)
	}
	for _, r := range results {
		if e.observer != nil {
			e.observer.ObserveVerification(string(r.Status))
		}
	}
	return results, nil
}

// groupCitations returns citation indexes grouped by lowercased author, or by
// normalized title for title-only citations, in order of first appearance.
func groupCitations(citations []domain.ParsedCitation) [][]int {
	index := make(map[string]int)
	var groups [][]int
	for i, c := range citations {
		key := "author:" + strings.ToLower(c.Author)
		if c.Author == "" {
			key = "title:" + dedup.NormalizeTitle(c.Title)
		}
		g, ok := index[key]
		if !ok {
			g = len(groups)
			index[key] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}

func (e *Engine) verifyGroup(ctx context.Context, cache Cache, text string, citations []domain.ParsedCitation, members []int, results []domain.VerificationResult) {
	lookups := make([]Lookup, len(members))
	titles := make([]string, len(members))
	var (
		groupMatch *Lookup
		finder     *titleFinder
	)

	for j, i := range members {
		c := citations[i]
		title := c.Title
		if title == "" && c.Author != "" && e.cfg.ContextWindow >= 0 {
			// Members of a group share one author, so its patterns are built once.
			if finder == nil {
				finder = newTitleFinder(c.Author)
			}
			title = finder.find(text, c.Start, e.cfg.ContextWindow)
		}
		titles[j] = title
		lookups[j] = e.lookup(ctx, cache, c.Author, title)
		if groupMatch == nil && lookups[j].Work != nil && !lookups[j].TitleMismatch {
			groupMatch = &lookups[j]
		}
	}

	for j, i := range members {
		c := citations[i]
		l := lookups[j]
		// A citation with no title of its own refers to the work its author
		// group already resolved.
		if l.Work == nil && c.Title == "" && groupMatch != nil {
			l = *groupMatch
		}
		results[i] = e.judge(c, l, titles[j])
	}
}

// lookup finds the work for an (author, title) pair, consulting the cache
// first. Source failures are treated as empty answers.
func (e *Engine) lookup(ctx context.Context, cache Cache, author, title string) Lookup {
	if author == "" && title == "" {
		return Lookup{}
	}
	key := CacheKey(author, title)
	if l, ok, err := cache.Get(key); err != nil {
		e.logger.Warn().Err(err).Str("key", key).Msg("verification cache read failed")
	} else if ok {
		if e.observer != nil {
			e.observer.ObserveCacheHit()
		}
		return l
	}

	query := papersources.WorkQuery{Author: author, Title: title, Rows: e.cfg.SearchRows}
	var (
		result   Lookup
		answered bool
	)
	for _, s := range e.searchers {
		if ctx.Err() != nil {
			return Lookup{}
		}
		candidates, err := s.SearchWorks(ctx, query)
		if err != nil {
			log := observability.WithSource(e.logger, s.Name())
			log.Debug().Err(err).Str("query", query.Text()).Msg("work search failed")
			continue
		}
		answered = true
		l := e.match(candidates, author, title)
		if l.Found() {
			result = l
			break
		}
		if l.Work != nil && result.Work == nil {
			result = l
		}
	}

	if answered && ctx.Err() == nil {
		if err := cache.Put(key, result); err != nil {
			e.logger.Warn().Err(err).Str("key", key).Msg("verification cache write failed")
		}
	}
	return result
}

var matchRank = map[dedup.MatchKind]int{
	dedup.MatchExact:     3,
	dedup.MatchSubstring: 2,
	dedup.MatchJaccard:   1,
}

// match picks the best candidate: the strongest title match when a title is
// known, otherwise the first candidate by the cited author. A candidate by the
// author whose title does not match is returned as a title mismatch.
func (e *Engine) match(candidates []domain.CandidateMatch, author, title string) Lookup {
	if title != "" {
		best, bestRank := -1, 0
		for i, c := range candidates {
			if r := matchRank[e.matcher.Match(title, c.Title)]; r > bestRank {
				best, bestRank = i, r
			}
		}
		if best >= 0 {
			return Lookup{Work: domain.WorkFromCandidate(candidates[best])}
		}
	}
	if author == "" {
		return Lookup{}
	}
	for _, c := range candidates {
		if dedup.AuthorMatches(author, c.Authors) {
			return Lookup{Work: domain.WorkFromCandidate(c), TitleMismatch: title != ""}
		}
	}
	return Lookup{}
}

// judge applies the page policy to a looked-up work.
func (e *Engine) judge(c domain.ParsedCitation, l Lookup, title string) domain.VerificationResult {
	res := domain.VerificationResult{Citation: c, Work: l.Work}

	if l.Work == nil {
		res.Status = domain.VerificationNotFound
		res.Reason = fmt.Sprintf("no matching work found for %s", describe(c.Author, title))
		return res
	}
	// A title recovered from context is a guess; an author match is enough.
	if l.TitleMismatch && c.Title != "" {
		res.Status = domain.VerificationTitleMismatch
		res.Reason = fmt.Sprintf("no work titled %q found; closest work by %s is %q", c.Title, c.Author, l.Work.Title)
		return res
	}

	if c.Pages == "" {
		res.Status = domain.VerificationVerified
		res.Reason = "work found, no page to verify"
		return res
	}
	if domain.IsBookType(l.Work.WorkType) {
		res.Status = domain.VerificationUnverifiableType
		res.Reason = fmt.Sprintf("matched work is a %s; its page numbers cannot be checked against metadata", l.Work.WorkType)
		return res
	}
	if !l.Work.Pages.IsKnown() {
		res.Status = domain.VerificationUnverifiableType
		res.Reason = "matched work has no page range in its metadata"
		return res
	}
	cited, ok := c.CitedPages()
	if !ok {
		res.Status = domain.VerificationUnverifiableType
		res.Reason = fmt.Sprintf("cannot parse cited pages %q", c.Pages)
		return res
	}
	if l.Work.Pages.Contains(cited) {
		res.Status = domain.VerificationVerified
		res.Reason = fmt.Sprintf("page %s within %s", cited, l.Work.Pages)
		return res
	}
	res.Status = domain.VerificationPageOutOfRange
	res.Reason = fmt.Sprintf("page %s outside %s", cited, l.Work.Pages)
	return res
}

func describe(author, title string) string {
	switch {
	case author != "" && title != "":
		return fmt.Sprintf("%s / %q", author, title)
	case title != "":
		return fmt.Sprintf("%q", title)
	default:
		return author
	}
}

// titleFinder recovers titles attributed to one author from the text before a
// citation: "Author's *Title*", "Author, *Title*" or "*Title* ... Author".
type titleFinder struct {
	patterns []*regexp.Regexp
}

func newTitleFinder(author string) *titleFinder {
	a := regexp.QuoteMeta(author)
	return &titleFinder{patterns: []*regexp.Regexp{
		regexp.MustCompile(`(?i)` + a + `(?:'s|s'|\x{2019}s)?,?\s+(?:` + italicTitle + `|` + quotedTitle + `)`),
		regexp.MustCompile(`(?i)` + italicTitle + `[^*]{0,100}` + a),
	}}
}

// contextTitle scans up to window bytes before pos for a title attributed to
// author. The mention closest to the citation wins.
func contextTitle(text, author string, pos, window int) string {
	if window < 0 || pos <= 0 {
		return ""
	}
	return newTitleFinder(author).find(text, pos, window)
}

func (f *titleFinder) find(text string, pos, window int) string {
	if window < 0 || pos <= 0 {
		return ""
	}
	start := max(0, pos-window)
	for start < pos && !utf8.RuneStart(text[start]) {
		start++
	}
	before := text[start:pos]

	best, bestEnd := "", -1
	for _, re := range f.patterns {
		for _, m := range re.FindAllStringSubmatchIndex(before, -1) {
			if m[1] <= bestEnd {
				continue
			}
			for g := 1; 2*g+1 < len(m); g++ {
				if m[2*g] >= 0 {
					best, bestEnd = strings.TrimSpace(before[m[2*g]:m[2*g+1]]), m[1]
					break
				}
			}
		}
	}
	return best
}
