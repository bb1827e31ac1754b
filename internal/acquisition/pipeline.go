package acquisition

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/reference-service/internal/dedup"
	"github.com/helixir/reference-service/internal/domain"
	"github.com/helixir/reference-service/internal/events"
	"github.com/helixir/reference-service/internal/oa"
	"github.com/helixir/reference-service/internal/observability"
	"github.com/helixir/reference-service/internal/papersources"
	"github.com/helixir/reference-service/internal/pdf"
	"github.com/helixir/reference-service/internal/repository"
)

// Pipeline stages that can yield a full text.
const (
	StageDirect = "direct"
	StageOA     = "oa"
	StageProxy  = "proxy"
)

// Wishlist reasons.
const (
	ReasonNoLocation     = "no open access location found"
	ReasonDownloadFailed = "download failed"
	ReasonStoreFailed    = "store failed"
)

// Searcher defines the interface for searching paper sources.
// *papersources.Registry satisfies it.
type Searcher interface {
	SearchAll(ctx context.Context, params papersources.SearchParams) []papersources.SourceResult
}

// Resolver finds open access locations for a batch of papers, keyed by oa.PaperKey.
type Resolver interface {
	ResolveMany(ctx context.Context, papers []*domain.Paper) map[string]*domain.ResolvedLocation
}

// Downloader fetches and validates PDFs for a batch of jobs.
type Downloader interface {
	DownloadMany(ctx context.Context, jobs []pdf.Job) []pdf.Outcome
}

// ProxyFetcher downloads one paper through an institutional proxy.
// ErrNotProxied means the paper's publisher is not routed through the proxy.
type ProxyFetcher interface {
	Fetch(ctx context.Context, p *domain.Paper, dest string) (*pdf.Result, error)
}

// Indexer adds a downloaded paper to the full-text index.
type Indexer interface {
	Index(ctx context.Context, p *domain.Paper) error
}

// Mirror copies a downloaded PDF to remote storage and returns its location.
type Mirror interface {
	Upload(ctx context.Context, p *domain.Paper) (string, error)
}

// Observer receives run and per-paper observations.
type Observer interface {
	ObserveRun()
	ObservePaperAcquired(stage string)
}

// DOIExtractor reads a DOI from the first pages of a PDF. "" means none found.
type DOIExtractor func(path string) (string, error)

// Config holds pipeline configuration.
type Config struct {
	// DownloadDir is where validated PDFs are written. Required.
	DownloadDir string
	// MaxResultsPerSource is used when a request sets no limit. Default: 20.
	MaxResultsPerSource int
	// ExtractDOI fills a missing DOI from downloaded PDFs.
	ExtractDOI bool
}

// Deps groups the collaborators of a Pipeline. Search, Proxy, Indexer, Mirror
// and Publisher are optional.
type Deps struct {
	Search     Searcher
	Store      repository.PaperRepository
	Resolver   Resolver
	Downloader Downloader
	Proxy      ProxyFetcher
	Indexer    Indexer
	Mirror     Mirror
	Publisher  events.Publisher
	Emitter    *events.Emitter
}

// Request is the input of one run. At least one of Query and Papers is required.
type Request struct {
	Query      string
	MaxResults int
	YearFrom   int
	YearTo     int
	// Papers are acquired in addition to the search results.
	Papers []*domain.Paper
}

// Validate checks the request.
func (r Request) Validate() error {
	if r.Query == "" && len(r.Papers) == 0 {
		return domain.NewValidationError("query", "a query or at least one paper is required")
	}
	if r.MaxResults < 0 {
		return domain.NewValidationError("max_results", "must be non-negative")
	}
	if r.YearFrom > 0 && r.YearTo > 0 && r.YearFrom > r.YearTo {
		return domain.NewValidationError("year_from", "must not be after year_to")
	}
	return nil
}

// Pipeline orchestrates search, dedup, resolution and download.
// It is safe for concurrent use; concurrent runs over overlapping papers rely
// on the store serializing writes per paper.
type Pipeline struct {
	cfg        Config
	deps       Deps
	logger     zerolog.Logger
	observer   Observer
	extractDOI DOIExtractor
	now        func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = l.With().Str("component", "acquisition").Logger() }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithDOIExtractor replaces pdf.ExtractDOI.
func WithDOIExtractor(fn DOIExtractor) Option {
	return func(p *Pipeline) { p.extractDOI = fn }
}

// NewPipeline validates the configuration and creates the download directory.
// A missing collaborator or an unwritable directory is a configuration error.
func NewPipeline(cfg Config, deps Deps, opts ...Option) (*Pipeline, error) {
	if cfg.DownloadDir == "" {
		return nil, domain.NewConfigError("acquisition.download_dir", "download directory is required")
	}
	if deps.Store == nil || deps.Resolver == nil || deps.Downloader == nil {
		return nil, domain.NewConfigError("acquisition", "store, resolver and downloader are required")
	}
	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return nil, domain.NewConfigError("acquisition.download_dir", err.Error())
	}
	if cfg.MaxResultsPerSource <= 0 {
		cfg.MaxResultsPerSource = 20
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	if deps.Emitter == nil {
		deps.Emitter = events.NewEmitter(events.EmitterConfig{})
	}

	p := &Pipeline{
		cfg:        cfg,
		deps:       deps,
		logger:     zerolog.Nop(),
		extractDOI: pdf.ExtractDOI,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// run carries the mutable state of one Run call.
type run struct {
	report  *domain.AcquisitionReport
	logger  zerolog.Logger
	reasons map[uuid.UUID]string
}

func (r *run) fail(p *domain.Paper, reason string) {
	r.reasons[p.ID] = reason
}

// Run executes every stage and returns the report. Partial failure is the
// normal case: the report is always complete unless req is invalid or ctx is
// cancelled, in which case the partial report is returned with the error.
func (p *Pipeline) Run(ctx context.Context, req Request) (*domain.AcquisitionReport, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Query != "" && p.deps.Search == nil {
		return nil, domain.NewValidationError("query", "no search sources configured")
	}

	report := &domain.AcquisitionReport{
		RunID:     uuid.New(),
		Query:     req.Query,
		Wishlist:  []domain.WishlistEntry{},
		StartedAt: p.now().UTC(),
	}
	ctx = observability.WithRunID(ctx, report.RunID.String())
	r := &run{
		report:  report,
		logger:  observability.LoggerFromContext(ctx, p.logger),
		reasons: make(map[uuid.UUID]string),
	}
	r.logger.Info().Str("query", req.Query).Int("papers", len(req.Papers)).Msg("acquisition run started")

	candidates := p.search(ctx, r, req)
	report.Found = len(candidates)

	pending := p.store(ctx, r, candidates)
	pending = p.downloadDirect(ctx, r, pending)
	pending = p.resolveOpenAccess(ctx, r, pending)
	pending = p.downloadViaProxy(ctx, r, pending)

	for _, paper := range pending {
		reason, ok := r.reasons[paper.ID]
		if !ok {
			reason = ReasonNoLocation
		} else {
			report.Failed++
		}
		report.Wishlist = append(report.Wishlist, domain.NewWishlistEntry(paper, reason))
	}
	report.FinishedAt = p.now().UTC()

	if p.observer != nil {
		p.observer.ObserveRun()
	}
	r.logger.Info().
		Int("found", report.Found).
		Int("new", report.NewPapers).
		Int("downloaded", report.Downloaded).
		Int("oa_resolved", report.OAResolved).
		Int("proxy_downloaded", report.ProxyDownloaded).
		Int("wishlist", len(report.Wishlist)).
		Dur("duration", report.Duration()).
		Msg("acquisition run finished")

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("acquisition run %s interrupted: %w", report.RunID, err)
	}

	if ev, err := p.deps.Emitter.AcquisitionCompleted(report); err != nil {
		r.logger.Error().Err(err).Msg("failed to build acquisition.completed event")
	} else {
		p.publish(ctx, r, ev)
	}
	return report, nil
}

// search runs stage 1 up to dedup: every enabled source is searched and the
// results are merged with the explicit papers of the request.
func (p *Pipeline) search(ctx context.Context, r *run, req Request) []*domain.Paper {
	checker := dedup.NewChecker()
	for _, paper := range req.Papers {
		if paper != nil {
			checker.Add(paper.Clone())
		}
	}
	if req.Query == "" {
		return checker.Papers()
	}

	maxResults := req.MaxResults
	if maxResults == 0 {
		maxResults = p.cfg.MaxResultsPerSource
	}
	results := p.deps.Search.SearchAll(ctx, papersources.SearchParams{
		Query:      req.Query,
		MaxResults: maxResults,
		YearFrom:   req.YearFrom,
		YearTo:     req.YearTo,
	})
	for _, sr := range results {
		if sr.Error != nil {
			r.logger.Warn().Err(sr.Error).Str("source", string(sr.Source)).Msg("source search failed")
			continue
		}
		if sr.Result == nil {
			continue
		}
		r.logger.Debug().
			Str("source", string(sr.Source)).
			Int("papers", len(sr.Result.Papers)).
			Dur("duration", sr.Result.SearchDuration).
			Msg("source search completed")
		for _, paper := range sr.Result.Papers {
			if paper != nil {
				checker.Add(paper)
			}
		}
	}
	return checker.Papers()
}

// store finishes stage 1: each candidate is matched against the store or
// inserted as metadata_only. Papers that already have a full text are dropped.
func (p *Pipeline) store(ctx context.Context, r *run, candidates []*domain.Paper) []*domain.Paper {
	pending := make([]*domain.Paper, 0, len(candidates))
	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		stored, created, err := repository.Store(ctx, p.deps.Store, c)
		if err != nil {
			r.report.Failed++
			r.logger.Error().Err(err).Str("title", c.Title).Msg("failed to store paper")
			continue
		}
		if created {
			r.report.NewPapers++
		} else {
			r.report.AlreadyKnown++
		}
		if stored.Status.HasFullText() {
			r.report.AlreadyAcquired++
			continue
		}

		pdfURL := stored.PDFURL
		if pdfURL == "" {
			pdfURL = c.PDFURL
		}
		if pdfURL != "" && stored.Status.Rank() < domain.StatusPDFURLKnown.Rank() {
			updated, err := p.deps.Store.RecordAcquisition(ctx, stored.ID, repository.AcquisitionUpdate{
				PDFURL: pdfURL,
				Status: domain.StatusPDFURLKnown,
			})
			if err != nil {
				r.logger.Warn().Err(err).Str("paper_id", stored.ID.String()).Msg("failed to record pdf url")
			} else {
				stored = updated
			}
		}
		pending = append(pending, stored)
	}
	return pending
}

// downloadDirect runs stage 2 for papers whose metadata already has a PDF URL.
func (p *Pipeline) downloadDirect(ctx context.Context, r *run, pending []*domain.Paper) []*domain.Paper {
	var jobs []pdf.Job
	for _, paper := range pending {
		if paper.PDFURL != "" {
			jobs = append(jobs, p.job(paper, paper.PDFURL))
		}
	}
	return p.download(ctx, r, pending, jobs, StageDirect)
}

// resolveOpenAccess runs stage 3: the OA cascade, then a download of each hit.
func (p *Pipeline) resolveOpenAccess(ctx context.Context, r *run, pending []*domain.Paper) []*domain.Paper {
	if len(pending) == 0 || ctx.Err() != nil {
		return pending
	}

	locations := p.deps.Resolver.ResolveMany(ctx, pending)
	var jobs []pdf.Job
	for i, paper := range pending {
		loc := locations[oa.PaperKey(paper)]
		if loc == nil {
			continue
		}
		if loc.URL == paper.PDFURL {
			// Already tried by the direct stage.
			continue
		}
		updated, err := p.deps.Store.RecordAcquisition(ctx, paper.ID, repository.AcquisitionUpdate{
			PDFURL: loc.URL,
			Status: domain.StatusPDFURLKnown,
		})
		if err != nil {
			r.logger.Warn().Err(err).Str("paper_id", paper.ID.String()).Msg("failed to record resolved location")
		} else {
			pending[i] = updated
		}
		r.logger.Debug().
			Str("paper_id", paper.ID.String()).
			Str("strategy", loc.Strategy).
			Str("url", loc.URL).
			Msg("open access location resolved")
		jobs = append(jobs, p.job(pending[i], loc.URL))
	}
	return p.download(ctx, r, pending, jobs, StageOA)
}

// downloadViaProxy runs stage 4 for papers with a DOI, one at a time.
func (p *Pipeline) downloadViaProxy(ctx context.Context, r *run, pending []*domain.Paper) []*domain.Paper {
	if p.deps.Proxy == nil {
		return pending
	}
	remaining := make([]*domain.Paper, 0, len(pending))
	for _, paper := range pending {
		if ctx.Err() != nil || paper.DOI() == "" {
			remaining = append(remaining, paper)
			continue
		}
		res, err := p.deps.Proxy.Fetch(ctx, paper, pdf.PathFor(p.cfg.DownloadDir, paper))
		if err != nil {
			if !errors.Is(err, ErrNotProxied) {
				r.fail(paper, ReasonDownloadFailed+": "+err.Error())
				r.logger.Debug().Err(err).Str("paper_id", paper.ID.String()).Msg("proxy download failed")
			}
			remaining = append(remaining, paper)
			continue
		}
		if !p.acquired(ctx, r, paper, res, StageProxy) {
			remaining = append(remaining, paper)
		}
	}
	return remaining
}

// download runs jobs and returns the papers of pending that are still missing a PDF.
func (p *Pipeline) download(ctx context.Context, r *run, pending []*domain.Paper, jobs []pdf.Job, stage string) []*domain.Paper {
	if len(jobs) == 0 || ctx.Err() != nil {
		return pending
	}

	byKey := make(map[string]*domain.Paper, len(pending))
	for _, paper := range pending {
		byKey[paper.ID.String()] = paper
	}

	done := make(map[uuid.UUID]bool, len(jobs))
	for _, out := range p.deps.Downloader.DownloadMany(ctx, jobs) {
		paper := byKey[out.Key]
		if paper == nil {
			continue
		}
		if out.Err != nil {
			r.fail(paper, ReasonDownloadFailed+": "+out.Err.Error())
			r.logger.Debug().Err(out.Err).Str("paper_id", out.Key).Str("stage", stage).Msg("download failed")
			continue
		}
		if p.acquired(ctx, r, paper, out.Result, stage) {
			done[paper.ID] = true
		}
	}

	remaining := make([]*domain.Paper, 0, len(pending)-len(done))
	for _, paper := range pending {
		if !done[paper.ID] {
			remaining = append(remaining, paper)
		}
	}
	return remaining
}

// acquired records a validated download and runs the follow-up steps:
// DOI extraction, mirroring, indexing and the paper_acquired event. It reports
// whether the download was recorded.
func (p *Pipeline) acquired(ctx context.Context, r *run, paper *domain.Paper, res *pdf.Result, stage string) bool {
	logger := observability.WithPaper(r.logger, paper).With().Str("stage", stage).Logger()

	updated, err := p.deps.Store.RecordAcquisition(ctx, paper.ID, repository.AcquisitionUpdate{
		PDFURL:      res.URL,
		LocalPath:   res.Path,
		ContentHash: res.ContentHash,
		Status:      domain.StatusDownloaded,
	})
	if err != nil {
		r.fail(paper, ReasonStoreFailed+": "+err.Error())
		logger.Error().Err(err).Msg("failed to record download")
		return false
	}
	paper = updated
	delete(r.reasons, paper.ID)

	r.report.Downloaded++
	switch stage {
	case StageDirect:
		r.report.DirectDownloaded++
	case StageOA:
		r.report.OAResolved++
	case StageProxy:
		r.report.ProxyDownloaded++
	}
	if p.observer != nil {
		p.observer.ObservePaperAcquired(stage)
	}

	if p.cfg.ExtractDOI && paper.DOI() == "" {
		p.fillDOI(ctx, logger, paper)
	}

	if p.deps.Mirror != nil {
		if location, err := p.deps.Mirror.Upload(ctx, paper); err != nil {
			logger.Warn().Err(err).Msg("failed to mirror pdf")
		} else {
			logger.Debug().Str("location", location).Msg("pdf mirrored")
		}
	}

	if p.deps.Indexer != nil {
		if err := p.deps.Indexer.Index(ctx, paper); err != nil {
			logger.Warn().Err(err).Msg("failed to index paper")
		} else if indexed, err := p.deps.Store.RecordAcquisition(ctx, paper.ID, repository.AcquisitionUpdate{Status: domain.StatusIndexed}); err != nil {
			logger.Warn().Err(err).Msg("failed to record indexed status")
		} else {
			paper = indexed
			r.report.Indexed++
		}
	}

	ev, err := p.deps.Emitter.PaperAcquired(domain.PaperAcquiredPayload{
		PaperID:     paper.ID,
		CanonicalID: paper.CanonicalID,
		Title:       paper.Title,
		DOI:         paper.DOI(),
		Stage:       stage,
		PDFURL:      paper.PDFURL,
		LocalPath:   paper.LocalPath,
		ContentHash: paper.ContentHash,
		Status:      paper.Status,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to build paper_acquired event")
		return true
	}
	p.publish(ctx, r, ev)
	logger.Info().Str("path", paper.LocalPath).Msg("paper acquired")
	return true
}

// fillDOI reads a DOI from the PDF and stores it only if the paper has none.
func (p *Pipeline) fillDOI(ctx context.Context, logger zerolog.Logger, paper *domain.Paper) {
	doi, err := p.extractDOI(paper.LocalPath)
	if err != nil {
		logger.Debug().Err(err).Msg("doi extraction failed")
		return
	}
	if doi == "" {
		return
	}
	added, err := p.deps.Store.SetIdentifierIfAbsent(ctx, paper.ID, domain.IdentifierTypeDOI, doi, "pdf")
	if err != nil {
		// Another paper may already own this DOI.
		logger.Warn().Err(err).Str("doi", doi).Msg("failed to store extracted doi")
		return
	}
	if added {
		paper.SetIdentifierIfAbsent(domain.IdentifierTypeDOI, doi)
		logger.Debug().Str("doi", doi).Msg("doi extracted from pdf")
	}
}

func (p *Pipeline) publish(ctx context.Context, r *run, ev *domain.Event) {
	if err := p.deps.Publisher.Publish(ctx, ev); err != nil {
		r.logger.Warn().Err(err).Str("event_type", ev.EventType).Msg("failed to publish event")
	}
}

func (p *Pipeline) job(paper *domain.Paper, urls ...string) pdf.Job {
	return pdf.Job{
		Key:  paper.ID.String(),
		URLs: urls,
		Dest: pdf.PathFor(p.cfg.DownloadDir, paper),
	}
}
