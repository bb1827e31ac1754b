package doiorg

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/reference-service/internal/papersources"
)

func newClient(baseURL string) *Client {
	return NewWithHTTPClient(Config{ResolverURL: baseURL, Enabled: true},
		papersources.NewHTTPClient(papersources.HTTPClientConfig{RateLimit: 100, BurstSize: 10, RetryDelay: time.Millisecond}))
}

func TestClient_ResolvePDF_DirectPDF(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/10.1000/xyz", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		assert.Equal(t, "application/pdf", r.Header.Get("Accept"))
		http.Redirect(w, r, "/files/xyz.pdf", http.StatusFound)
	})
	mux.HandleFunc("/files/xyz.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got, err := newClient(srv.URL).ResolvePDF(context.Background(), "doi:10.1000/XYZ")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/files/xyz.pdf", got)
}

func TestClient_ResolvePDF_LandingPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/10.1000/abc", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/article/abc", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/article/abc", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.Method == http.MethodHead {
			return
		}
		w.Write([]byte(`<html><head>
			<meta name="citation_title" content="ABC">
			<meta name="citation_pdf_url" content="/article/abc.pdf">
		</head><body></body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got, err := newClient(srv.URL).ResolvePDF(context.Background(), "10.1000/abc")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/article/abc.pdf", got)
}

func TestClient_ResolvePDF_NothingOffered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
	}))
	defer srv.Close()

	got, err := newClient(srv.URL).ResolvePDF(context.Background(), "10.1000/json")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCitationPDFURL(t *testing.T) {
	got, err := CitationPDFURL(strings.NewReader(`<head><META NAME="Citation_PDF_URL" CONTENT=" https://x.org/a.pdf "/></head>`))
	require.NoError(t, err)
	assert.Equal(t, "https://x.org/a.pdf", got)

	got, err = CitationPDFURL(strings.NewReader(`<head></head><body><meta name="citation_pdf_url" content="late.pdf"></body>`))
	require.NoError(t, err)
	assert.Empty(t, got, "meta tags after <body> are ignored")
}

func TestClient_LandingURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/10.1000/landing", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/article/landing", http.StatusFound)
	})
	mux.HandleFunc("/article/landing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newClient(srv.URL)

	got, err := c.LandingURL(context.Background(), "10.1000/landing")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/article/landing", got)

	got, err = c.LandingURL(context.Background(), "10.1000/missing")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = c.LandingURL(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, got)
}
