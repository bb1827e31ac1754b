package pdf

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/reference-service/internal/domain"
)

const testMinSize = 64

// samplePDF returns PDF-signed bytes comfortably above testMinSize.
func samplePDF() []byte {
	return append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), 200)...)
}

func testDownloader(cfg Config) *Downloader {
	cfg.AllowPrivateNetworks = true
	if cfg.MinSize == 0 {
		cfg.MinSize = testMinSize
	}
	return NewDownloader(cfg)
}

func serve(t *testing.T, h http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv.URL
}

func servePDF(t *testing.T, content []byte) string {
	return serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(content)
	})
}

type countingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *countingObserver) ObserveDownload(outcome string, _ int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func TestNewDownloader_Defaults(t *testing.T) {
	d := NewDownloader(Config{})

	assert.Equal(t, int64(DefaultMaxSize), d.cfg.MaxSize)
	assert.Equal(t, int64(DefaultMinSize), d.MinSize())
	assert.Equal(t, DefaultTimeout, d.cfg.Timeout)
	assert.Equal(t, DefaultConcurrency, d.cfg.Concurrency)
	assert.Equal(t, DefaultUserAgent, d.cfg.UserAgent)
}

func TestDownload_Success(t *testing.T) {
	content := samplePDF()
	url := servePDF(t, content)
	dest := filepath.Join(t.TempDir(), "papers", "a.pdf")

	obs := &countingObserver{}
	d := NewDownloader(Config{AllowPrivateNetworks: true, MinSize: testMinSize}, WithObserver(obs))
	res, err := d.Download(context.Background(), []string{url}, dest)
	require.NoError(t, err)

	sum := sha256.Sum256(content)
	assert.Equal(t, url, res.URL)
	assert.Equal(t, dest, res.Path)
	assert.Equal(t, hex.EncodeToString(sum[:]), res.ContentHash)
	assert.Equal(t, int64(len(content)), res.SizeBytes)
	assert.False(t, res.Reused)
	assert.Equal(t, []string{"ok"}, obs.outcomes)

	onDisk, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, onDisk)
}

func TestDownload_FallsBackInOrder(t *testing.T) {
	var order []string
	var mu sync.Mutex
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	html := serve(t, func(w http.ResponseWriter, r *http.Request) {
		record("html")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write(bytes.Repeat([]byte("<html>login</html>"), 20))
	})
	tiny := serve(t, func(w http.ResponseWriter, r *http.Request) {
		record("tiny")
		_, _ = w.Write([]byte("%PDF-1.4 tiny"))
	})
	missing := serve(t, func(w http.ResponseWriter, r *http.Request) {
		record("missing")
		w.WriteHeader(http.StatusNotFound)
	})
	good := serve(t, func(w http.ResponseWriter, r *http.Request) {
		record("good")
		_, _ = w.Write(samplePDF())
	})
	never := serve(t, func(w http.ResponseWriter, r *http.Request) {
		record("never")
		_, _ = w.Write(samplePDF())
	})

	res, err := testDownloader(Config{}).Download(context.Background(),
		[]string{html, tiny, missing, good, never}, filepath.Join(t.TempDir(), "x.pdf"))
	require.NoError(t, err)
	assert.Equal(t, good, res.URL)
	assert.Equal(t, []string{"html", "tiny", "missing", "good"}, order)
}

func TestDownload_FailureReasons(t *testing.T) {
	html := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write(bytes.Repeat([]byte("<p>paywall</p>"), 50))
	})
	tiny := servePDF(t, []byte("%PDF-1.4"))
	forbidden := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	huge := servePDF(t, append([]byte("%PDF"), bytes.Repeat([]byte("y"), 2000)...))
	slow := serve(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})

	d := testDownloader(Config{MaxSize: 1000, Timeout: 100 * time.Millisecond})
	dest := filepath.Join(t.TempDir(), "x.pdf")
	res, err := d.Download(context.Background(), []string{html, tiny, forbidden, huge, slow}, dest)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrDownloadFailed)

	var failure *Failure
	require.True(t, errors.As(err, &failure))
	require.Len(t, failure.Attempts, 5)
	assert.Equal(t, ReasonContentType, failure.Attempts[0].Reason)
	assert.Contains(t, failure.Attempts[0].Detail, "text/html")
	assert.Equal(t, ReasonTooSmall, failure.Attempts[1].Reason)
	assert.Equal(t, ReasonStatus, failure.Attempts[2].Reason)
	assert.Equal(t, http.StatusForbidden, failure.Attempts[2].StatusCode)
	assert.Equal(t, ReasonTooLarge, failure.Attempts[3].Reason)
	assert.Equal(t, ReasonTimeout, failure.Attempts[4].Reason)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "nothing written on failure")
}

func TestDownload_ReusesExistingFile(t *testing.T) {
	var hits atomic.Int32
	url := serve(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(samplePDF())
	})
	dest := filepath.Join(t.TempDir(), "x.pdf")
	require.NoError(t, os.WriteFile(dest, samplePDF(), 0o644))

	res, err := testDownloader(Config{}).Download(context.Background(), []string{url}, dest)
	require.NoError(t, err)
	assert.True(t, res.Reused)
	assert.Zero(t, hits.Load())
}

func TestDownload_ReplacesInvalidExistingFile(t *testing.T) {
	url := servePDF(t, samplePDF())
	dest := filepath.Join(t.TempDir(), "x.pdf")
	require.NoError(t, os.WriteFile(dest, []byte("<html>"), 0o644))

	res, err := testDownloader(Config{}).Download(context.Background(), []string{url}, dest)
	require.NoError(t, err)
	assert.False(t, res.Reused)
}

func TestDownload_BlocksPrivateNetworks(t *testing.T) {
	url := servePDF(t, samplePDF())
	d := NewDownloader(Config{MinSize: testMinSize})

	_, err := d.Download(context.Background(), []string{url, "file:///etc/passwd"}, filepath.Join(t.TempDir(), "x.pdf"))
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	require.Len(t, failure.Attempts, 2)
	assert.Equal(t, ReasonBlocked, failure.Attempts[0].Reason)
	assert.Equal(t, ReasonBlocked, failure.Attempts[1].Reason)
}

func TestDownload_NoCandidates(t *testing.T) {
	_, err := testDownloader(Config{}).Download(context.Background(), []string{"", "  "}, filepath.Join(t.TempDir(), "x.pdf"))
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Empty(t, failure.Attempts)
}

func TestDownload_UserAgent(t *testing.T) {
	var got string
	url := serve(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		_, _ = w.Write(samplePDF())
	})

	_, err := testDownloader(Config{UserAgent: "CustomBot/3.0"}).Download(context.Background(), []string{url}, filepath.Join(t.TempDir(), "x.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "CustomBot/3.0", got)
}

func TestDownloadMany_BoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	url := serve(t, func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
		_, _ = w.Write(samplePDF())
	})

	dir := t.TempDir()
	jobs := make([]Job, 8)
	for i := range jobs {
		key := uuid.NewString()
		jobs[i] = Job{Key: key, URLs: []string{url + "/" + key}, Dest: filepath.Join(dir, key+".pdf")}
	}

	out := testDownloader(Config{Concurrency: 2}).DownloadMany(context.Background(), jobs)
	require.Len(t, out, 8)
	for i, o := range out {
		assert.Equal(t, jobs[i].Key, o.Key)
		assert.NoError(t, o.Err)
		require.NotNil(t, o.Result)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestSafeFilename(t *testing.T) {
	withDOI := &domain.Paper{}
	withDOI.SetIdentifierIfAbsent(domain.IdentifierTypeDOI, "10.1000/ABC(2020)<1>")
	assert.Equal(t, "10.1000_abc_2020__1_-dc716288", SafeFilename(withDOI))

	id := uuid.New()
	assert.Equal(t, id.String(), SafeFilename(&domain.Paper{ID: id}))

	assert.Equal(t, "arxiv_2301.00001-4090484a", SafeFilename(&domain.Paper{CanonicalID: "arxiv:2301.00001"}))
	assert.Equal(t, "A_Title_With_Spaces-77687fb3", SafeFilename(&domain.Paper{Title: "A Title/With Spaces"}))
	assert.Equal(t, "Plain_Title", SafeFilename(&domain.Paper{Title: "Plain_Title"}))

	assert.Equal(t, filepath.Join("dir", "10.1000_abc_2020__1_-dc716288.pdf"), PathFor("dir", withDOI))
}

func TestSafeFilename_DistinctDOIsDoNotCollide(t *testing.T) {
	a, b := &domain.Paper{}, &domain.Paper{}
	a.SetIdentifierIfAbsent(domain.IdentifierTypeDOI, "10.1/a(b)")
	b.SetIdentifierIfAbsent(domain.IdentifierTypeDOI, "10.1/a_b_")

	assert.Equal(t, "10.1_a_b_-26370dd4", SafeFilename(a))
	assert.Equal(t, "10.1_a_b_-0e374942", SafeFilename(b))
	assert.NotEqual(t, PathFor("dir", a), PathFor("dir", b))
}

func TestFindDOI(t *testing.T) {
	assert.Equal(t, "10.1086/448619", FindDOI("Critical Inquiry. doi: 10.1086/448619."))
	assert.Equal(t, "10.1371/journal.pone.0001234", FindDOI("see https://doi.org/10.1371/journal.pone.0001234)"))
	assert.Empty(t, FindDOI("no identifier here, 10.12 only"))
}

func TestIsPrivateIP(t *testing.T) {
	for _, ip := range []string{"127.0.0.1", "10.1.2.3", "172.16.0.1", "192.168.1.1", "169.254.1.1", "::1", "fd00::1", "0.0.0.0"} {
		assert.True(t, isPrivateIP(parseIP(t, ip)), ip)
	}
	for _, ip := range []string{"8.8.8.8", "1.1.1.1", "2606:4700::1111"} {
		assert.False(t, isPrivateIP(parseIP(t, ip)), ip)
	}
}

func parseIP(t *testing.T, s string) net.IP {
	t.Helper()
	ip := net.ParseIP(s)
	require.NotNil(t, ip)
	return ip
}
