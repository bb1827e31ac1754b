// Package pdf downloads and validates full-text PDFs.
package pdf

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/reference-service/internal/domain"
	"github.com/helixir/reference-service/internal/papersources"
)

// Sentinel errors for PDF download operations.
var (
	// ErrNotPDF is returned when the payload does not start with the PDF signature.
	ErrNotPDF = domain.ErrNotPDF
	// ErrTooLarge is returned when the file exceeds the maximum allowed size.
	ErrTooLarge = errors.New("pdf: file exceeds maximum size")
	// ErrTooSmall is returned when the payload is below the minimum plausible size.
	ErrTooSmall = errors.New("pdf: file below minimum size")
	// ErrDownloadFailed is returned when no candidate URL produced a valid PDF.
	ErrDownloadFailed = errors.New("pdf: download failed")
	// ErrSSRF is returned when the URL resolves to a private/internal network address.
	ErrSSRF = errors.New("pdf: request to private network denied")
)

var pdfMagic = []byte("%PDF")

const (
	DefaultTimeout     = 60 * time.Second
	DefaultMinSize     = 10 << 10
	DefaultMaxSize     = 50 << 20
	DefaultConcurrency = 3
	DefaultUserAgent   = "Mozilla/5.0 (compatible; Helixir-ReferenceService/1.0; +https://helixir.io/bot)"
)

// Reason classifies why one candidate URL failed.
type Reason string

const (
	ReasonTimeout     Reason = "timeout"
	ReasonContentType Reason = "wrong_content_type"
	ReasonTooSmall    Reason = "too_small"
	ReasonTooLarge    Reason = "too_large"
	ReasonStatus      Reason = "http_status"
	ReasonNetwork     Reason = "network"
	ReasonBlocked     Reason = "blocked"
	ReasonCorrupt     Reason = "corrupt"
)

// Attempt records one failed candidate URL.
type Attempt struct {
	URL        string `json:"url"`
	Reason     Reason `json:"reason"`
	StatusCode int    `json:"status_code,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// Failure is returned when every candidate URL failed. It lists each attempt
// in the order tried.
type Failure struct {
	Attempts []Attempt
}

func (f *Failure) Error() string {
	if len(f.Attempts) == 0 {
		return "pdf: no candidate urls"
	}
	parts := make([]string, len(f.Attempts))
	for i, a := range f.Attempts {
		parts[i] = a.URL + ": " + string(a.Reason)
		if a.Detail != "" {
			parts[i] += " (" + a.Detail + ")"
		}
	}
	return "pdf: all candidates failed: " + strings.Join(parts, "; ")
}

func (f *Failure) Unwrap() error { return ErrDownloadFailed }

// Result describes a validated PDF on disk.
type Result struct {
	URL         string
	Path        string
	ContentHash string
	SizeBytes   int64
	PageCount   int
	// Reused is set when a valid file was already present at the destination.
	Reused bool
}

// Observer receives one observation per download attempt.
type Observer interface {
	ObserveDownload(outcome string, bytes int64)
}

// Config holds downloader configuration.
type Config struct {
	// Timeout bounds each candidate URL. Default: 60 seconds.
	Timeout time.Duration
	// MinSize is the smallest plausible PDF in bytes. Default: 10 KiB.
	MinSize int64
	// MaxSize is the maximum file size in bytes. Default: 50 MiB.
	MaxSize int64
	// Concurrency bounds DownloadMany. Default: 3.
	Concurrency int
	UserAgent   string
	// Jar carries session cookies for authenticated downloads.
	Jar http.CookieJar
	// Inspector, when set, requires the payload to parse as a PDF.
	Inspector *Inspector
	// AllowPrivateNetworks disables SSRF private-IP checks. Tests only.
	AllowPrivateNetworks bool
	// RequestObserver receives per-request metrics from the HTTP client.
	RequestObserver papersources.RequestObserver
}

// Downloader fetches PDFs from candidate URLs. It is safe for concurrent use.
type Downloader struct {
	http     *papersources.HTTPClient
	cfg      Config
	logger   zerolog.Logger
	observer Observer
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Downloader) { d.logger = l.With().Str("component", "pdf-downloader").Logger() }
}

// WithObserver sets the download metrics observer.
func WithObserver(o Observer) Option {
	return func(d *Downloader) { d.observer = o }
}

// NewDownloader creates a new Downloader with the given configuration.
func NewDownloader(cfg Config, opts ...Option) *Downloader {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MinSize == 0 {
		cfg.MinSize = DefaultMinSize
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	d := &Downloader{
		cfg:    cfg,
		logger: zerolog.Nop(),
		http: papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Name:          "pdf",
			Timeout:       cfg.Timeout,
			RateLimit:     20,
			BurstSize:     cfg.Concurrency,
			UserAgent:     cfg.UserAgent,
			CheckRedirect: redirectGuard(cfg.AllowPrivateNetworks),
			Jar:           cfg.Jar,
			Observer:      cfg.RequestObserver,
		}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// MinSize returns the configured minimum PDF size.
func (d *Downloader) MinSize() int64 { return d.cfg.MinSize }

// Download tries urls in order and writes the first valid PDF to dest.
// Attempts are strictly sequential. When dest already holds a valid PDF it is
// reused without any request. When every URL fails the error is a *Failure.
func (d *Downloader) Download(ctx context.Context, urls []string, dest string) (*Result, error) {
	if res, ok := d.existing(dest); ok {
		d.logger.Debug().Str("path", dest).Msg("pdf already present")
		return res, nil
	}

	failure := &Failure{}
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		if ctx.Err() != nil {
			failure.Attempts = append(failure.Attempts, Attempt{URL: u, Reason: ReasonTimeout, Detail: ctx.Err().Error()})
			break
		}

		content, pages, attempt := d.fetch(ctx, u)
		if attempt != nil {
			d.observe(string(attempt.Reason), 0)
			d.logger.Debug().Str("url", u).Str("reason", string(attempt.Reason)).Str("detail", attempt.Detail).Msg("candidate rejected")
			failure.Attempts = append(failure.Attempts, *attempt)
			continue
		}

		if err := writeFile(dest, content); err != nil {
			return nil, fmt.Errorf("writing %s: %w", dest, err)
		}
		d.observe("ok", int64(len(content)))
		hash := sha256.Sum256(content)
		d.logger.Info().Str("url", u).Str("path", dest).Int("bytes", len(content)).Msg("downloaded pdf")
		return &Result{
			URL:         u,
			Path:        dest,
			ContentHash: hex.EncodeToString(hash[:]),
			SizeBytes:   int64(len(content)),
			PageCount:   pages,
		}, nil
	}
	return nil, failure
}

// Job is one paper's download request for DownloadMany.
type Job struct {
	Key  string
	URLs []string
	Dest string
}

// Outcome is the result of one Job. Exactly one of Result and Err is set.
type Outcome struct {
	Key    string
	Result *Result
	Err    error
}

// DownloadMany runs jobs concurrently, at most Config.Concurrency at a time.
// Outcomes are returned in job order.
func (d *Downloader) DownloadMany(ctx context.Context, jobs []Job) []Outcome {
	out := make([]Outcome, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			res, err := d.Download(gctx, job.URLs, job.Dest)
			out[i] = Outcome{Key: job.Key, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (d *Downloader) fetch(ctx context.Context, rawURL string) ([]byte, int, *Attempt) {
	fail := func(reason Reason, status int, detail string) ([]byte, int, *Attempt) {
		return nil, 0, &Attempt{URL: rawURL, Reason: reason, StatusCode: status, Detail: detail}
	}

	if !d.cfg.AllowPrivateNetworks {
		if err := validateURLNotPrivate(rawURL); err != nil {
			if errors.Is(err, ErrSSRF) {
				return fail(ReasonBlocked, 0, err.Error())
			}
			return fail(ReasonNetwork, 0, err.Error())
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fail(ReasonNetwork, 0, err.Error())
	}
	req.Header.Set("Accept", "application/pdf,*/*;q=0.8")

	resp, err := d.http.Do(req)
	if err != nil {
		if papersources.IsTimeout(err) {
			return fail(ReasonTimeout, 0, err.Error())
		}
		if errors.Is(err, ErrSSRF) {
			return fail(ReasonBlocked, 0, err.Error())
		}
		return fail(ReasonNetwork, 0, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fail(ReasonStatus, resp.StatusCode, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}
	if resp.ContentLength > d.cfg.MaxSize {
		return fail(ReasonTooLarge, resp.StatusCode, fmt.Sprintf("content-length %d", resp.ContentLength))
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, d.cfg.MaxSize+1))
	if err != nil {
		if papersources.IsTimeout(err) {
			return fail(ReasonTimeout, resp.StatusCode, err.Error())
		}
		return fail(ReasonNetwork, resp.StatusCode, err.Error())
	}
	if int64(len(content)) > d.cfg.MaxSize {
		return fail(ReasonTooLarge, resp.StatusCode, fmt.Sprintf("exceeded %d bytes", d.cfg.MaxSize))
	}
	if !bytes.HasPrefix(content, pdfMagic) {
		return fail(ReasonContentType, resp.StatusCode, fmt.Sprintf("Content-Type is %q", resp.Header.Get("Content-Type")))
	}
	if int64(len(content)) < d.cfg.MinSize {
		return fail(ReasonTooSmall, resp.StatusCode, fmt.Sprintf("%d bytes", len(content)))
	}

	pages := 0
	if d.cfg.Inspector != nil {
		pages, err = d.cfg.Inspector.PageCount(content)
		if err != nil {
			return fail(ReasonCorrupt, resp.StatusCode, err.Error())
		}
	}
	return content, pages, nil
}

// existing returns a Result for a valid PDF already stored at dest.
func (d *Downloader) existing(dest string) (*Result, bool) {
	f, err := os.Open(dest)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() < d.cfg.MinSize || info.Size() > d.cfg.MaxSize {
		return nil, false
	}
	head := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(f, head); err != nil || !bytes.Equal(head, pdfMagic) {
		return nil, false
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, false
	}
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, false
	}
	return &Result{
		Path:        dest,
		ContentHash: hex.EncodeToString(h.Sum(nil)),
		SizeBytes:   info.Size(),
		Reused:      true,
	}, true
}

// writeFile writes content through a temp file and renames it into place so
// a reader never sees a partial PDF.
func writeFile(dest string, content []byte) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(dest)+".*.part")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

func (d *Downloader) observe(outcome string, n int64) {
	if d.observer != nil {
		d.observer.ObserveDownload(outcome, n)
	}
}
