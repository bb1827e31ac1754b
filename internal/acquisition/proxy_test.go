package acquisition

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/reference-service/internal/config"
	"github.com/helixir/reference-service/internal/domain"
	"github.com/helixir/reference-service/internal/pdf"
)

func TestProxyRewriter_Rewrite(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ProxyConfig
		in   string
		want string
	}{
		{
			name: "query mode escapes the target",
			cfg:  config.ProxyConfig{BaseURL: "https://ezproxy.example.edu/", Type: config.ProxyTypeQuery},
			in:   "https://www.jstor.org/stable/123?seq=1",
			want: "https://ezproxy.example.edu/login?url=https%3A%2F%2Fwww.jstor.org%2Fstable%2F123%3Fseq%3D1",
		},
		{
			name: "empty type defaults to query mode",
			cfg:  config.ProxyConfig{BaseURL: "https://ezproxy.example.edu"},
			in:   "https://muse.jhu.edu/article/1",
			want: "https://ezproxy.example.edu/login?url=https%3A%2F%2Fmuse.jhu.edu%2Farticle%2F1",
		},
		{
			name: "prefix mode dashes the host",
			cfg:  config.ProxyConfig{BaseURL: "https://proxy.uni.edu", Type: config.ProxyTypePrefix},
			in:   "https://www.jstor.org/stable/pdf/123.pdf?x=1#p2",
			want: "https://www-jstor-org.proxy.uni.edu/stable/pdf/123.pdf?x=1#p2",
		},
		{
			name: "prefix mode keeps the proxy port",
			cfg:  config.ProxyConfig{BaseURL: "https://proxy.uni.edu:2443", Type: config.ProxyTypePrefix},
			in:   "https://link.springer.com/content/pdf/10.1007/x.pdf",
			want: "https://link-springer-com.proxy.uni.edu:2443/content/pdf/10.1007/x.pdf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewProxyRewriter(tt.cfg)
			require.NoError(t, err)
			got, err := r.Rewrite(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProxyRewriter_NeedsProxy(t *testing.T) {
	r, err := NewProxyRewriter(config.ProxyConfig{
		BaseURL: "https://ezproxy.example.edu",
		Domains: []string{"jstor.org", " Wiley.com "},
	})
	require.NoError(t, err)

	assert.True(t, r.NeedsProxy("https://www.jstor.org/stable/1"))
	assert.True(t, r.NeedsProxy("https://jstor.org/stable/1"))
	assert.True(t, r.NeedsProxy("https://onlinelibrary.wiley.com/doi/pdf/1"))
	assert.False(t, r.NeedsProxy("https://notjstor.org/stable/1"))
	assert.False(t, r.NeedsProxy("https://arxiv.org/pdf/1"))
	assert.False(t, r.NeedsProxy("not a url"))

	all, err := NewProxyRewriter(config.ProxyConfig{BaseURL: "https://ezproxy.example.edu"})
	require.NoError(t, err)
	assert.True(t, all.NeedsProxy("https://arxiv.org/pdf/1"), "no domains means everything is proxied")
}

func TestNewProxyRewriter_Invalid(t *testing.T) {
	_, err := NewProxyRewriter(config.ProxyConfig{BaseURL: ""})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = NewProxyRewriter(config.ProxyConfig{BaseURL: "https://p.example.edu", Type: "socks"})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

type staticLanding struct {
	url string
	err error
}

func (s staticLanding) LandingURL(context.Context, string) (string, error) { return s.url, s.err }

type recordingDownloader struct {
	urls []string
	res  *pdf.Result
	err  error
}

func (d *recordingDownloader) Download(_ context.Context, urls []string, dest string) (*pdf.Result, error) {
	d.urls = append(d.urls, urls...)
	if d.err != nil {
		return nil, d.err
	}
	res := *d.res
	res.Path = dest
	return &res, nil
}

func TestProxySession_Fetch(t *testing.T) {
	var logins atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/login", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "jdoe", r.PostForm.Get("user"))
		assert.Equal(t, "secret", r.PostForm.Get("pass"))
		logins.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "ezproxy", Value: "session", Path: "/"})
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	dl := &recordingDownloader{res: &pdf.Result{URL: "x", ContentHash: "abc"}}
	s, err := NewProxySession(config.ProxyConfig{
		Enabled:  true,
		BaseURL:  srv.URL,
		Username: "jdoe",
		Password: "secret",
		Domains:  []string{"jstor.org"},
	}, staticLanding{url: "https://www.jstor.org/stable/42"}, dl, jar)
	require.NoError(t, err)

	p := &domain.Paper{Identifiers: domain.Identifiers{domain.IdentifierTypeDOI: "10.2307/42"}}
	res, err := s.Fetch(context.Background(), p, "/tmp/x.pdf")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.pdf", res.Path)
	require.Len(t, dl.urls, 1)
	assert.Equal(t, srv.URL+"/login?url=https%3A%2F%2Fwww.jstor.org%2Fstable%2F42", dl.urls[0])

	_, err = s.Fetch(context.Background(), p, "/tmp/y.pdf")
	require.NoError(t, err)
	assert.Equal(t, int32(1), logins.Load(), "login happens once per session")
}

func TestProxySession_NotProxied(t *testing.T) {
	dl := &recordingDownloader{res: &pdf.Result{}}
	s, err := NewProxySession(config.ProxyConfig{
		BaseURL: "https://ezproxy.example.edu",
		Domains: []string{"jstor.org"},
	}, staticLanding{url: "https://arxiv.org/abs/1"}, dl, nil)
	require.NoError(t, err)

	_, err = s.Fetch(context.Background(), &domain.Paper{Identifiers: domain.Identifiers{domain.IdentifierTypeDOI: "10.1/x"}}, "x.pdf")
	assert.ErrorIs(t, err, ErrNotProxied)

	_, err = s.Fetch(context.Background(), &domain.Paper{Title: "No DOI"}, "x.pdf")
	assert.ErrorIs(t, err, ErrNotProxied)

	// Failed landing lookups fall back to doi.org, which is not a listed publisher.
	s.landing = staticLanding{err: errors.New("timeout")}
	_, err = s.Fetch(context.Background(), &domain.Paper{Identifiers: domain.Identifiers{domain.IdentifierTypeDOI: "10.1/x"}}, "x.pdf")
	assert.ErrorIs(t, err, ErrNotProxied)
	assert.Empty(t, dl.urls)
}

func TestProxySession_LoginRejected(t *testing.T) {
	var logins atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		_, _ = w.Write([]byte("<html>Invalid login, please try again</html>"))
	}))
	defer srv.Close()

	dl := &recordingDownloader{res: &pdf.Result{}}
	s, err := NewProxySession(config.ProxyConfig{
		BaseURL:  srv.URL,
		Username: "jdoe",
		Password: "wrong",
	}, staticLanding{url: "https://www.jstor.org/stable/1"}, dl, nil)
	require.NoError(t, err)

	p := &domain.Paper{Identifiers: domain.Identifiers{domain.IdentifierTypeDOI: "10.2307/1"}}
	_, err = s.Fetch(context.Background(), p, "x.pdf")
	assert.ErrorIs(t, err, ErrProxyLogin)
	_, err = s.Fetch(context.Background(), p, "x.pdf")
	assert.ErrorIs(t, err, ErrProxyLogin)

	assert.Equal(t, int32(1), logins.Load(), "rejected credentials are not retried")
	assert.Empty(t, dl.urls)
}

func TestNewProxySession_RequiresPassword(t *testing.T) {
	_, err := NewProxySession(config.ProxyConfig{BaseURL: "https://p.example.edu", Username: "jdoe"},
		nil, &recordingDownloader{}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
