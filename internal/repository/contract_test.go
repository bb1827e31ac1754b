package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/reference-service/internal/domain"
)

func newTestPaper(title string, ids domain.Identifiers) *domain.Paper {
	return &domain.Paper{
		Title:           title,
		Authors:         []domain.Author{{Name: "Jane Smith"}, {Name: "Wei Chen"}},
		PublicationYear: 2021,
		Venue:           "Journal of Tests",
		Identifiers:     ids,
		Source:          domain.SourceTypeOpenAlex,
		Status:          domain.StatusMetadataOnly,
	}
}

// runPaperRepositoryContract exercises the behavior every PaperRepository
// implementation must share. newRepo must return an empty store.
func runPaperRepositoryContract(t *testing.T, newRepo func(t *testing.T) PaperRepository) {
	ctx := context.Background()

	t.Run("create assigns id and canonical id", func(t *testing.T) {
		repo := newRepo(t)

		created, err := repo.Create(ctx, newTestPaper("Attention Is All You Need", domain.Identifiers{
			domain.IdentifierTypeDOI:     "https://doi.org/10.5555/ABC.123",
			domain.IdentifierTypeArXivID: "arXiv:1706.03762v5",
		}))
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, created.ID)
		assert.Equal(t, "doi:10.5555/abc.123", created.CanonicalID)
		assert.Equal(t, domain.StatusMetadataOnly, created.Status)
		assert.False(t, created.CreatedAt.IsZero())

		got, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Attention Is All You Need", got.Title)
		assert.Equal(t, "10.5555/abc.123", got.DOI())
		assert.Equal(t, "1706.03762v5", got.Identifier(domain.IdentifierTypeArXivID))
		assert.Equal(t, []string{"Jane Smith", "Wei Chen"}, got.AuthorNames())
		assert.Equal(t, domain.SourceTypeOpenAlex, got.Source)
	})

	t.Run("create rejects an identifier owned by another paper", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.Create(ctx, newTestPaper("First", domain.Identifiers{domain.IdentifierTypeDOI: "10.1/x"}))
		require.NoError(t, err)

		second := newTestPaper("Second", domain.Identifiers{
			domain.IdentifierTypePubMedID: "999",
			domain.IdentifierTypeDOI:      "10.1/X",
		})
		_, err = repo.Create(ctx, second)
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)

		_, err = repo.FindByIdentifier(ctx, domain.IdentifierTypePubMedID, "999")
		assert.ErrorIs(t, err, domain.ErrNotFound, "failed create must not leave identifiers behind")
	})

	t.Run("create requires a title or identifier", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Create(ctx, &domain.Paper{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("get missing paper", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("find by identifier normalizes the lookup value", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.Create(ctx, newTestPaper("Normalized", domain.Identifiers{domain.IdentifierTypeDOI: "10.1000/xyz"}))
		require.NoError(t, err)

		got, err := repo.FindByIdentifier(ctx, domain.IdentifierTypeDOI, "DOI:10.1000/XYZ")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)

		_, err = repo.FindByIdentifier(ctx, domain.IdentifierTypeDOI, "10.1000/other")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("find by title key", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.Create(ctx, newTestPaper("Deep Residual Learning", nil))
		require.NoError(t, err)
		assert.Empty(t, created.CanonicalID)

		got, err := repo.FindByTitleKey(ctx, TitleKey(newTestPaper("deep residual learning!", nil)))
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)

		_, err = repo.FindByTitleKey(ctx, "deep residual learning|1999")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("set identifier if absent never overwrites", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.Create(ctx, newTestPaper("Monotonic", domain.Identifiers{domain.IdentifierTypeDOI: "10.1/keep"}))
		require.NoError(t, err)

		ok, err := repo.SetIdentifierIfAbsent(ctx, created.ID, domain.IdentifierTypeDOI, "10.1/other", domain.SourceTypeCrossRef)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = repo.SetIdentifierIfAbsent(ctx, created.ID, domain.IdentifierTypePMCID, "123456", domain.SourceTypeEuropePMC)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "10.1/keep", got.DOI())
		assert.Equal(t, "PMC123456", got.Identifier(domain.IdentifierTypePMCID))
		assert.Equal(t, "doi:10.1/keep", got.CanonicalID)
	})

	t.Run("set identifier fills a missing canonical id", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.Create(ctx, newTestPaper("Title Only", nil))
		require.NoError(t, err)

		ok, err := repo.SetIdentifierIfAbsent(ctx, created.ID, domain.IdentifierTypeDOI, "10.9/filled", domain.SourceTypeManual)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "doi:10.9/filled", got.CanonicalID)
	})

	t.Run("set identifier refuses a value owned by another paper", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Create(ctx, newTestPaper("Owner", domain.Identifiers{domain.IdentifierTypeDOI: "10.1/owned"}))
		require.NoError(t, err)
		other, err := repo.Create(ctx, newTestPaper("Other", nil))
		require.NoError(t, err)

		ok, err := repo.SetIdentifierIfAbsent(ctx, other.ID, domain.IdentifierTypeDOI, "10.1/owned", domain.SourceTypeManual)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("set identifier on a missing paper", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.SetIdentifierIfAbsent(ctx, uuid.New(), domain.IdentifierTypeDOI, "10.1/x", domain.SourceTypeManual)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("record acquisition never regresses status", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.Create(ctx, newTestPaper("Lifecycle", domain.Identifiers{domain.IdentifierTypeDOI: "10.1/life"}))
		require.NoError(t, err)

		got, err := repo.RecordAcquisition(ctx, created.ID, AcquisitionUpdate{
			PDFURL:      "https://example.org/a.pdf",
			LocalPath:   "/tmp/a.pdf",
			ContentHash: "abc",
			Status:      domain.StatusDownloaded,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusDownloaded, got.Status)

		got, err = repo.RecordAcquisition(ctx, created.ID, AcquisitionUpdate{
			PDFURL: "https://example.org/b.pdf",
			Status: domain.StatusPDFURLKnown,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusDownloaded, got.Status)
		assert.Equal(t, "https://example.org/b.pdf", got.PDFURL)
		assert.Equal(t, "/tmp/a.pdf", got.LocalPath, "empty fields keep the stored value")
		assert.Equal(t, "abc", got.ContentHash)

		got, err = repo.RecordAcquisition(ctx, created.ID, AcquisitionUpdate{Status: domain.StatusIndexed})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusIndexed, got.Status)

		_, err = repo.RecordAcquisition(ctx, uuid.New(), AcquisitionUpdate{Status: domain.StatusDownloaded})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("list filters and paginates", func(t *testing.T) {
		repo := newRepo(t)
		for i := 0; i < 5; i++ {
			p, err := repo.Create(ctx, newTestPaper(fmt.Sprintf("Paper %d", i), domain.Identifiers{
				domain.IdentifierTypeDOI: fmt.Sprintf("10.1/list.%d", i),
			}))
			require.NoError(t, err)
			if i < 2 {
				_, err = repo.RecordAcquisition(ctx, p.ID, AcquisitionUpdate{
					PDFURL:    "https://example.org/p.pdf",
					LocalPath: "/tmp/p.pdf",
					Status:    domain.StatusDownloaded,
				})
				require.NoError(t, err)
			}
		}

		all, total, err := repo.List(ctx, PaperFilter{})
		require.NoError(t, err)
		assert.EqualValues(t, 5, total)
		assert.Len(t, all, 5)

		wish, total, err := repo.List(ctx, WishlistFilter())
		require.NoError(t, err)
		assert.EqualValues(t, 3, total)
		for _, p := range wish {
			assert.False(t, p.Status.HasFullText())
		}

		hasPDF := true
		withPDF, _, err := repo.List(ctx, PaperFilter{HasPDF: &hasPDF})
		require.NoError(t, err)
		assert.Len(t, withPDF, 2)

		page, total, err := repo.List(ctx, PaperFilter{Limit: 2, Offset: 4})
		require.NoError(t, err)
		assert.EqualValues(t, 5, total)
		assert.Len(t, page, 1)

		_, _, err = repo.List(ctx, PaperFilter{Statuses: []domain.AcquisitionStatus{"lost"}})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("store is idempotent and merges identifiers", func(t *testing.T) {
		repo := newRepo(t)

		first, created, err := Store(ctx, repo, newTestPaper("Same Work", domain.Identifiers{domain.IdentifierTypeDOI: "10.1/same"}))
		require.NoError(t, err)
		assert.True(t, created)

		again, created, err := Store(ctx, repo, newTestPaper("Same Work", domain.Identifiers{
			domain.IdentifierTypeDOI:     "10.1/SAME",
			domain.IdentifierTypeArXivID: "2101.00001",
		}))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, "2101.00001", again.Identifier(domain.IdentifierTypeArXivID))

		_, total, err := repo.List(ctx, PaperFilter{})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
	})

	t.Run("store matches by title and year without a doi", func(t *testing.T) {
		repo := newRepo(t)

		first, _, err := Store(ctx, repo, newTestPaper("A Study of Things", nil))
		require.NoError(t, err)

		again, created, err := Store(ctx, repo, newTestPaper("A study of things.", domain.Identifiers{
			domain.IdentifierTypeSemanticScholarID: "s2-1",
		}))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, "s2-1", again.Identifier(domain.IdentifierTypeSemanticScholarID))
	})

	t.Run("store fills the doi of a title and year match", func(t *testing.T) {
		repo := newRepo(t)

		first, created, err := Store(ctx, repo, newTestPaper("The Meridian and the Poem", nil))
		require.NoError(t, err)
		require.True(t, created)

		again, created, err := Store(ctx, repo, newTestPaper("The Meridian and the Poem", domain.Identifiers{
			domain.IdentifierTypeDOI: "10.1000/meridian",
		}))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, "10.1000/meridian", again.DOI())

		_, total, err := repo.List(ctx, PaperFilter{})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
	})

	t.Run("store keeps same-titled works with different dois apart", func(t *testing.T) {
		repo := newRepo(t)

		first, _, err := Store(ctx, repo, newTestPaper("Editorial", domain.Identifiers{domain.IdentifierTypeDOI: "10.1/ed.1"}))
		require.NoError(t, err)

		second, created, err := Store(ctx, repo, newTestPaper("Editorial", domain.Identifiers{domain.IdentifierTypeDOI: "10.1/ed.2"}))
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEqual(t, first.ID, second.ID)
	})

	t.Run("concurrent store of one work creates one record", func(t *testing.T) {
		repo := newRepo(t)

		var wg sync.WaitGroup
		ids := make([]uuid.UUID, 8)
		errs := make([]error, 8)
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				p, _, err := Store(ctx, repo, newTestPaper("Race", domain.Identifiers{domain.IdentifierTypeDOI: "10.1/race"}))
				errs[i] = err
				if err == nil {
					ids[i] = p.ID
				}
			}(i)
		}
		wg.Wait()

		for i := range ids {
			require.NoError(t, errs[i])
			assert.Equal(t, ids[0], ids[i])
		}
		_, total, err := repo.List(ctx, PaperFilter{})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
	})
}
