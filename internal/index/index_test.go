package index

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/reference-service/internal/domain"
)

func paper(title, doi, path string) *domain.Paper {
	return &domain.Paper{
		ID:              uuid.New(),
		Title:           title,
		Authors:         []domain.Author{{Name: "John Felstiner"}},
		PublicationYear: 1995,
		Venue:           "Yale University Press",
		LocalPath:       path,
		Identifiers:     domain.Identifiers{domain.IdentifierTypeDOI: doi},
		Status:          domain.StatusDownloaded,
	}
}

func TestBleveIndex_IndexAndSearch(t *testing.T) {
	var extracted []string
	idx, err := NewMemory(
		WithMaxPages(2),
		WithTextExtractor(func(path string, maxPages int) (string, error) {
			assert.Equal(t, 2, maxPages)
			extracted = append(extracted, path)
			if path == "/pdfs/celan.pdf" {
				return "Breath turn: the meridian speech and the poetics of witness.", nil
			}
			return "", nil
		}),
	)
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	celan := paper("Paul Celan: Poet, Survivor, Jew", "10.1000/celan", "/pdfs/celan.pdf")
	sov := paper("Sovereignties in Question", "10.1000/sovereignty", "/pdfs/sov.pdf")
	require.NoError(t, idx.Index(ctx, celan))
	require.NoError(t, idx.Index(ctx, sov))
	assert.Equal(t, []string{"/pdfs/celan.pdf", "/pdfs/sov.pdf"}, extracted)

	n, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	hits, total, err := idx.Search(ctx, "sovereignties", 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)
	require.Len(t, hits, 1)
	assert.Equal(t, sov.ID.String(), hits[0].PaperID)
	assert.Equal(t, "Sovereignties in Question", hits[0].Title)

	// Extracted text is searchable.
	hits, _, err = idx.Search(ctx, "meridian", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, celan.ID.String(), hits[0].PaperID)

	// So is the DOI, case-insensitively.
	hits, _, err = idx.Search(ctx, "10.1000/CELAN", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, celan.ID.String(), hits[0].PaperID)

	hits, total, err = idx.Search(ctx, "felstiner", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), total)
	assert.Len(t, hits, 1, "limit caps the page size")
}

func TestBleveIndex_ReindexReplaces(t *testing.T) {
	idx, err := NewMemory(WithTextExtractor(func(string, int) (string, error) { return "", nil }))
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	p := paper("Old Title", "10.1000/x", "")
	require.NoError(t, idx.Index(ctx, p))
	p.Title = "Atemwende"
	require.NoError(t, idx.Index(ctx, p))

	n, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	hits, _, err := idx.Search(ctx, "atemwende", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	require.NoError(t, idx.Delete(p.ID.String()))
	n, err = idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
}

func TestBleveIndex_ExtractionFailureIndexesMetadata(t *testing.T) {
	idx, err := NewMemory(WithTextExtractor(func(string, int) (string, error) {
		return "", errors.New("malformed xref table")
	}))
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	p := paper("Demeure: Fiction and Testimony", "10.1000/demeure", "/pdfs/broken.pdf")
	require.NoError(t, idx.Index(ctx, p))

	hits, _, err := idx.Search(ctx, "testimony", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestBleveIndex_Validation(t *testing.T) {
	idx, err := NewMemory()
	require.NoError(t, err)
	defer idx.Close()

	err = idx.Index(context.Background(), &domain.Paper{Title: "no id"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, _, err = idx.Search(context.Background(), "  ", 10)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, idx.Index(ctx, paper("x", "10.1/x", "")), context.Canceled)
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "papers.bleve")
	noText := WithTextExtractor(func(string, int) (string, error) { return "", nil })

	idx, err := Open(path, noText)
	require.NoError(t, err)
	p := paper("Paul Celan: Poet, Survivor, Jew", "10.1000/celan", "")
	require.NoError(t, idx.Index(context.Background(), p))
	require.NoError(t, idx.Close())

	idx, err = Open(path, noText)
	require.NoError(t, err)
	defer idx.Close()

	hits, _, err := idx.Search(context.Background(), "celan", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, p.ID.String(), hits[0].PaperID)

	_, err = Open("")
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
