package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/reference-service/internal/domain"
)

var pgPaperColumnNames = []string{
	"id", "canonical_id", "title", "abstract", "authors",
	"publication_year", "venue", "pages", "work_type",
	"pdf_url", "local_path", "content_hash", "open_access", "citation_count",
	"source", "status", "created_at", "updated_at",
	"identifiers",
}

func paperRows(t *testing.T, papers ...*domain.Paper) *pgxmock.Rows {
	t.Helper()
	rows := pgxmock.NewRows(pgPaperColumnNames)
	for _, p := range papers {
		authors, err := json.Marshal(p.Authors)
		require.NoError(t, err)
		ids, err := json.Marshal(p.Identifiers)
		require.NoError(t, err)
		rows.AddRow(
			p.ID, p.CanonicalID, p.Title, p.Abstract, authors,
			p.PublicationYear, p.Venue, p.Pages, p.WorkType,
			p.PDFURL, p.LocalPath, p.ContentHash, p.OpenAccess, p.CitationCount,
			string(p.Source), string(p.Status), p.CreatedAt, p.UpdatedAt,
			ids,
		)
	}
	return rows
}

func storedPaper() *domain.Paper {
	now := time.Now().UTC()
	p := newTestPaper("Stored Paper", domain.Identifiers{
		domain.IdentifierTypeDOI:      "10.1234/stored",
		domain.IdentifierTypePubMedID: "31415",
	})
	p.ID = uuid.New()
	p.CanonicalID = "doi:10.1234/stored"
	p.CreatedAt = now
	p.UpdatedAt = now
	return p
}

func TestNewPgPaperRepository(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgPaperRepository(mock)
	assert.NotNil(t, repo.db)
}

func TestPgPaperRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts paper and identifiers in a transaction", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		paper := newTestPaper("Graph Networks", domain.Identifiers{
			domain.IdentifierTypeArXivID: "arXiv:1806.01261",
			domain.IdentifierTypeDOI:     "10.5555/GN",
		})
		now := time.Now().UTC()

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO papers").
			WithArgs(
				pgxmock.AnyArg(), "doi:10.5555/gn", "Graph Networks", "graph networks|2021", "", pgxmock.AnyArg(),
				2021, "Journal of Tests", "", "",
				"", "", "", false, 0,
				"openalex", "metadata_only", pgxmock.AnyArg(),
			).
			WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mock.ExpectExec("INSERT INTO paper_identifiers").
			WithArgs(pgxmock.AnyArg(), "doi", "10.5555/gn", "openalex", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO paper_identifiers").
			WithArgs(pgxmock.AnyArg(), "arxiv_id", "1806.01261", "openalex", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		created, err := repo.Create(ctx, paper)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, created.ID)
		assert.Equal(t, "doi:10.5555/gn", created.CanonicalID)
		assert.Equal(t, now, created.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps unique violation on identifiers and rolls back", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)
		paper := newTestPaper("Dup", domain.Identifiers{domain.IdentifierTypePubMedID: "42"})
		now := time.Now().UTC()

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO papers").
			WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mock.ExpectExec("INSERT INTO paper_identifiers").
			WillReturnError(&pgconn.PgError{Code: "23505"})
		mock.ExpectRollback()

		_, err = repo.Create(ctx, paper)
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps unique violation on canonical id", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgPaperRepository(mock)

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO papers").
			WillReturnError(&pgconn.PgError{Code: "23505"})
		mock.ExpectRollback()

		_, err = repo.Create(ctx, newTestPaper("Dup", domain.Identifiers{domain.IdentifierTypeDOI: "10.1/dup"}))
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects nil paper without touching the database", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		_, err = NewPgPaperRepository(mock).Create(ctx, nil)
		var validationErr *domain.ValidationError
		require.True(t, errors.As(err, &validationErr))
		assert.Equal(t, "paper", validationErr.Field)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgPaperRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		p := storedPaper()
		mock.ExpectQuery(`FROM papers p WHERE p.id = \$1`).
			WithArgs(p.ID).
			WillReturnRows(paperRows(t, p))

		got, err := NewPgPaperRepository(mock).GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
		assert.Equal(t, "10.1234/stored", got.DOI())
		assert.Equal(t, "31415", got.Identifier(domain.IdentifierTypePubMedID))
		assert.Equal(t, domain.StatusMetadataOnly, got.Status)
		assert.Equal(t, domain.SourceTypeOpenAlex, got.Source)
		assert.Len(t, got.Authors, 2)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := uuid.New()
		mock.ExpectQuery(`FROM papers p WHERE p.id = \$1`).
			WithArgs(id).
			WillReturnError(pgx.ErrNoRows)

		_, err = NewPgPaperRepository(mock).GetByID(ctx, id)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("database error is wrapped", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`FROM papers p WHERE p.id = \$1`).
			WillReturnError(errors.New("connection reset"))

		_, err = NewPgPaperRepository(mock).GetByID(ctx, uuid.New())
		assert.ErrorContains(t, err, "failed to get paper by ID")
		assert.NotErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestPgPaperRepository_FindByIdentifier(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	p := storedPaper()
	mock.ExpectQuery("JOIN paper_identifiers").
		WithArgs("doi", "10.1234/stored").
		WillReturnRows(paperRows(t, p))
	mock.ExpectQuery("JOIN paper_identifiers").
		WithArgs("doi", "10.1234/missing").
		WillReturnError(pgx.ErrNoRows)

	repo := NewPgPaperRepository(mock)

	got, err := repo.FindByIdentifier(ctx, domain.IdentifierTypeDOI, "https://doi.org/10.1234/STORED")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = repo.FindByIdentifier(ctx, domain.IdentifierTypeDOI, "10.1234/missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.FindByIdentifier(ctx, domain.IdentifierTypeDOI, "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgPaperRepository_SetIdentifierIfAbsent(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	tests := []struct {
		name      string
		found     bool
		inserted  bool
		wantOK    bool
		wantError error
	}{
		{name: "stored", found: true, inserted: true, wantOK: true},
		{name: "scheme already set or value taken", found: true, inserted: false, wantOK: false},
		{name: "missing paper", found: false, inserted: false, wantError: domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectQuery("WITH ins AS").
				WithArgs(id, "pmcid", "PMC777", "europepmc", pgxmock.AnyArg(), "pmc:PMC777").
				WillReturnRows(pgxmock.NewRows([]string{"found", "inserted"}).AddRow(tt.found, tt.inserted))

			ok, err := NewPgPaperRepository(mock).SetIdentifierIfAbsent(ctx, id, domain.IdentifierTypePMCID, "777", domain.SourceTypeEuropePMC)
			if tt.wantError != nil {
				assert.ErrorIs(t, err, tt.wantError)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantOK, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}

	t.Run("unknown scheme", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		_, err = NewPgPaperRepository(mock).SetIdentifierIfAbsent(ctx, id, "isbn", "123", domain.SourceTypeManual)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestPgPaperRepository_RecordAcquisition(t *testing.T) {
	ctx := context.Background()

	t.Run("passes status for GREATEST comparison", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		p := storedPaper()
		p.Status = domain.StatusDownloaded
		p.LocalPath = "/data/pdfs/10.1234_stored.pdf"

		mock.ExpectQuery(`GREATEST\(p.status, \$5::acquisition_status\)`).
			WithArgs(p.ID, "https://example.org/s.pdf", p.LocalPath, "deadbeef", "downloaded", pgxmock.AnyArg()).
			WillReturnRows(paperRows(t, p))

		got, err := NewPgPaperRepository(mock).RecordAcquisition(ctx, p.ID, AcquisitionUpdate{
			PDFURL:      "https://example.org/s.pdf",
			LocalPath:   p.LocalPath,
			ContentHash: "deadbeef",
			Status:      domain.StatusDownloaded,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusDownloaded, got.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty status leaves status alone", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		p := storedPaper()
		mock.ExpectQuery("UPDATE papers p SET").
			WithArgs(p.ID, "https://example.org/x.pdf", "", "", nil, pgxmock.AnyArg()).
			WillReturnRows(paperRows(t, p))

		_, err = NewPgPaperRepository(mock).RecordAcquisition(ctx, p.ID, AcquisitionUpdate{PDFURL: "https://example.org/x.pdf"})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing paper", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("UPDATE papers p SET").WillReturnError(pgx.ErrNoRows)

		_, err = NewPgPaperRepository(mock).RecordAcquisition(ctx, uuid.New(), AcquisitionUpdate{Status: domain.StatusIndexed})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestPgPaperRepository_List(t *testing.T) {
	ctx := context.Background()

	t.Run("wishlist filter", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		a, b := storedPaper(), storedPaper()
		b.Status = domain.StatusPDFURLKnown

		statuses := []string{"metadata_only", "pdf_url_known"}
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM papers p WHERE p.status::text = ANY\(\$1\)`).
			WithArgs(statuses).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))
		mock.ExpectQuery(`LIMIT \$2 OFFSET \$3`).
			WithArgs(statuses, 1000, 0).
			WillReturnRows(paperRows(t, a, b))

		papers, total, err := NewPgPaperRepository(mock).List(ctx, WishlistFilter())
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		require.Len(t, papers, 2)
		assert.Equal(t, domain.StatusPDFURLKnown, papers[1].Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("source and pdf filters with defaults", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		source := domain.SourceTypeCrossRef
		hasPDF := true

		mock.ExpectQuery(`WHERE p.source = \$1 AND p.pdf_url <> ''`).
			WithArgs("crossref").
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
		mock.ExpectQuery(`LIMIT \$2 OFFSET \$3`).
			WithArgs("crossref", 100, 0).
			WillReturnRows(pgxmock.NewRows(pgPaperColumnNames))

		papers, total, err := NewPgPaperRepository(mock).List(ctx, PaperFilter{Source: &source, HasPDF: &hasPDF})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, papers)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPaperFilter_Validate(t *testing.T) {
	f := PaperFilter{Limit: 5000, Offset: -3}
	require.NoError(t, f.Validate())
	assert.Equal(t, maxFilterLimit, f.Limit)
	assert.Equal(t, 0, f.Offset)

	f = PaperFilter{}
	require.NoError(t, f.Validate())
	assert.Equal(t, defaultFilterLimit, f.Limit)
}
