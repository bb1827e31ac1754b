package openalex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/reference-service/internal/domain"
	"github.com/helixir/reference-service/internal/papersources"
)

// newTestClient creates a client configured for testing with the given server URL.
func newTestClient(serverURL string, enabled bool) *Client {
	cfg := Config{
		BaseURL:    serverURL,
		Email:      "test@example.com",
		Timeout:    5 * time.Second,
		MaxResults: 25,
		Enabled:    enabled,
	}

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:    cfg.Timeout,
		RateLimit:  100,
		BurstSize:  100,
		RetryDelay: 10 * time.Millisecond,
		UserAgent:  "TestClient/1.0",
	})

	return NewWithHTTPClient(cfg, httpClient)
}

func sampleSearchResponse() SearchResponse {
	return SearchResponse{
		Meta: Meta{Count: 2, Page: 1, PerPage: 25},
		Results: []Work{
			{
				ID:              "https://openalex.org/W2741809807",
				DOI:             "https://doi.org/10.1038/NATURE12373",
				DisplayName:     "CRISPR-Cas Systems for <i>Editing</i> Genomes",
				PublicationYear: 2014,
				Type:            "article",
				CitedByCount:    5000,
				OpenAccess:      &OpenAccess{IsOA: true, OAURL: "https://europepmc.org/articles/pmc4022601"},
				BestOALocation:  &Location{PDFURL: "https://europepmc.org/articles/pmc4022601?pdf=render"},
				Authorships: []Authorship{
					{
						Author:       AuthorInfo{DisplayName: "John Smith", Orcid: "https://orcid.org/0000-0001-2345-6789"},
						Institutions: []Institution{{DisplayName: "MIT"}},
					},
					{Author: AuthorInfo{DisplayName: "Jane Doe"}},
				},
				PrimaryLocation: &Location{Source: &Source{DisplayName: "Nature Biotechnology"}},
				IDs: IDs{
					OpenAlex: "https://openalex.org/W2741809807",
					PMID:     "https://pubmed.ncbi.nlm.nih.gov/24906146",
					PMCID:    "https://www.ncbi.nlm.nih.gov/pmc/articles/4022601",
				},
				Biblio: Biblio{FirstPage: "262", LastPage: "278"},
				AbstractInvertedIndex: map[string][]int{
					"CRISPR": {0}, "edits": {1}, "genomes.": {2},
				},
			},
			{
				// No identifiers at all: dropped.
				DisplayName: "Orphan work",
			},
		},
	}
}

func TestClient_Search(t *testing.T) {
	t.Run("maps works to papers", func(t *testing.T) {
		var gotQuery map[string][]string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/works", r.URL.Path)
			gotQuery = r.URL.Query()
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(sampleSearchResponse())
		}))
		defer server.Close()

		client := newTestClient(server.URL, true)
		result, err := client.Search(context.Background(), papersources.SearchParams{
			Query:      "crispr",
			MaxResults: 10,
			YearFrom:   2010,
		})
		require.NoError(t, err)

		assert.Equal(t, "crispr", gotQuery["search"][0])
		assert.Equal(t, "10", gotQuery["per_page"][0])
		assert.Equal(t, "test@example.com", gotQuery["mailto"][0])
		assert.Equal(t, "from_publication_date:2010-01-01", gotQuery["filter"][0])

		require.Len(t, result.Papers, 1)
		p := result.Papers[0]
		assert.Equal(t, "CRISPR-Cas Systems for Editing Genomes", p.Title)
		assert.Equal(t, "10.1038/nature12373", p.DOI())
		assert.Equal(t, "doi:10.1038/nature12373", p.CanonicalID)
		assert.Equal(t, "24906146", p.Identifier(domain.IdentifierTypePubMedID))
		assert.Equal(t, "PMC4022601", p.Identifier(domain.IdentifierTypePMCID))
		assert.Equal(t, "W2741809807", p.Identifier(domain.IdentifierTypeOpenAlexID))
		assert.Equal(t, "https://europepmc.org/articles/pmc4022601?pdf=render", p.PDFURL)
		assert.Equal(t, "CRISPR edits genomes.", p.Abstract)
		assert.Equal(t, "262-278", p.Pages)
		assert.Equal(t, domain.StatusMetadataOnly, p.Status)
		require.Len(t, p.Authors, 2)
		assert.Equal(t, "MIT", p.Authors[0].Affiliation)
		assert.Equal(t, "0000-0001-2345-6789", p.Authors[0].ORCID)
		assert.Equal(t, 2, result.TotalResults)
	})

	t.Run("returns external API error on non-200", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"bad filter"}`))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL, true).Search(context.Background(), papersources.SearchParams{Query: "x"})
		require.Error(t, err)
		var apiErr *domain.ExternalAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	})

	t.Run("rejects empty query", func(t *testing.T) {
		_, err := newTestClient("http://unused", true).Search(context.Background(), papersources.SearchParams{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestClient_SearchWorks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Felstiner Paul Celan", r.URL.Query().Get("search"))
		assert.Equal(t, "5", r.URL.Query().Get("per_page"))
		json.NewEncoder(w).Encode(SearchResponse{Results: []Work{{
			ID:              "https://openalex.org/W1",
			DisplayName:     "Paul Celan: Poet, Survivor, Jew",
			PublicationYear: 1995,
			Type:            "book",
			Authorships:     []Authorship{{Author: AuthorInfo{DisplayName: "John Felstiner"}}},
		}}})
	}))
	defer server.Close()

	matches, err := newTestClient(server.URL, true).SearchWorks(context.Background(), papersources.WorkQuery{
		Author: "Felstiner",
		Title:  "Paul Celan",
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "book", matches[0].WorkType)
	assert.Equal(t, []string{"John Felstiner"}, matches[0].Authors)
	assert.False(t, matches[0].Pages.IsKnown())
	assert.Equal(t, domain.SourceTypeOpenAlex, matches[0].Source)
}

func TestClient_Metadata(t *testing.T) {
	c := New(Config{Enabled: true})
	assert.Equal(t, domain.SourceTypeOpenAlex, c.SourceType())
	assert.Equal(t, "OpenAlex", c.Name())
	assert.True(t, c.IsEnabled())
	assert.Equal(t, DefaultBaseURL, c.config.BaseURL)
}

func TestReconstructAbstract(t *testing.T) {
	assert.Equal(t, "", reconstructAbstract(nil))
	assert.Equal(t, "a b a", reconstructAbstract(map[string][]int{"a": {0, 2}, "b": {1}}))
}
