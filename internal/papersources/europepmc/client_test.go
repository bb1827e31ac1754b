package europepmc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/reference-service/internal/papersources"
)

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewWithHTTPClient(Config{BaseURL: srv.URL, Enabled: true},
		papersources.NewHTTPClient(papersources.HTTPClientConfig{RateLimit: 100, BurstSize: 10, RetryDelay: time.Millisecond}))
}

func TestClient_FindPMCID(t *testing.T) {
	tests := []struct {
		name      string
		doi       string
		pmid      string
		wantQuery string
		body      string
		want      string
	}{
		{
			name:      "by doi",
			doi:       "10.1371/journal.pone.0001",
			wantQuery: "DOI:10.1371/journal.pone.0001",
			body:      `{"hitCount":1,"resultList":{"result":[{"pmcid":"PMC123456"}]}}`,
			want:      "PMC123456",
		},
		{
			name:      "by pmid when doi missing",
			pmid:      "31415926",
			wantQuery: "EXT_ID:31415926",
			body:      `{"hitCount":1,"resultList":{"result":[{"pmid":"31415926"}]}}`,
			want:      "",
		},
		{
			name:      "no hits",
			doi:       "10.1000/none",
			wantQuery: "DOI:10.1000/none",
			body:      `{"hitCount":0,"resultList":{"result":[]}}`,
			want:      "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/search", r.URL.Path)
				assert.Equal(t, tt.wantQuery, r.URL.Query().Get("query"))
				assert.Equal(t, "json", r.URL.Query().Get("format"))
				w.Write([]byte(tt.body))
			})
			got, err := c.FindPMCID(context.Background(), tt.doi, tt.pmid)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_FindPMCID_NoIdentifiers(t *testing.T) {
	c := New(Config{})
	got, err := c.FindPMCID(context.Background(), "", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClient_PDFURL(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, "https://europepmc.org/backend/ptpmcrender.fcgi?accid=PMC123456&blobtype=pdf", c.PDFURL("123456"))
	assert.Empty(t, c.PDFURL(""))
}
