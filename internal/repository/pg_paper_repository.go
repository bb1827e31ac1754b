package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/helixir/reference-service/internal/database"
	"github.com/helixir/reference-service/internal/domain"
)

// Compile-time interface verification.
var _ PaperRepository = (*PgPaperRepository)(nil)

// PostgreSQL error codes.
const (
	pgUniqueViolation = "23505"
)

const pgPaperColumns = `
	p.id, COALESCE(p.canonical_id, ''), p.title, p.abstract, p.authors,
	p.publication_year, p.venue, p.pages, p.work_type,
	p.pdf_url, p.local_path, p.content_hash, p.open_access, p.citation_count,
	p.source, p.status::text, p.created_at, p.updated_at,
	COALESCE((SELECT jsonb_object_agg(i.identifier_type, i.identifier_value)
		FROM paper_identifiers i WHERE i.paper_id = p.id), '{}'::jsonb)`

// PgPaperRepository is a PostgreSQL implementation of PaperRepository.
type PgPaperRepository struct {
	db     DBTX
	logger zerolog.Logger
}

// NewPgPaperRepository creates a new PostgreSQL paper repository.
func NewPgPaperRepository(db DBTX) *PgPaperRepository {
	return &PgPaperRepository{db: db, logger: zerolog.Nop()}
}

// WithLogger sets the logger used for transaction rollback failures.
func (r *PgPaperRepository) WithLogger(logger zerolog.Logger) *PgPaperRepository {
	r.logger = logger
	return r
}

// Create inserts a new paper and its identifiers in one transaction.
func (r *PgPaperRepository) Create(ctx context.Context, paper *domain.Paper) (*domain.Paper, error) {
	if err := preparePaper(paper); err != nil {
		return nil, err
	}

	authorsJSON, err := json.Marshal(paper.Authors)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal authors: %w", err)
	}

	now := time.Now().UTC()
	out := paper.Clone()

	err = database.RunInTx(ctx, r.db, r.logger, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO papers (
				id, canonical_id, title, title_key, abstract, authors,
				publication_year, venue, pages, work_type,
				pdf_url, local_path, content_hash, open_access, citation_count,
				source, status, created_at, updated_at
			) VALUES (
				$1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10,
				$11, $12, $13, $14, $15, $16, $17::acquisition_status, $18, $18
			)
			RETURNING created_at, updated_at`,
			paper.ID,
			paper.CanonicalID,
			paper.Title,
			TitleKey(paper),
			paper.Abstract,
			authorsJSON,
			paper.PublicationYear,
			paper.Venue,
			paper.Pages,
			paper.WorkType,
			paper.PDFURL,
			paper.LocalPath,
			paper.ContentHash,
			paper.OpenAccess,
			paper.CitationCount,
			string(paper.Source),
			string(paper.Status),
			now,
		).Scan(&out.CreatedAt, &out.UpdatedAt)
		if err != nil {
			if isPgUniqueViolation(err) {
				return domain.NewAlreadyExistsError("paper", paper.CanonicalID)
			}
			return fmt.Errorf("failed to insert paper: %w", err)
		}

		for _, scheme := range domain.IdentifierTypes() {
			value, ok := paper.Identifiers[scheme]
			if !ok {
				continue
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO paper_identifiers (paper_id, identifier_type, identifier_value, source_api, discovered_at)
				VALUES ($1, $2, $3, $4, $5)`,
				paper.ID, string(scheme), value, string(paper.Source), now)
			if err != nil {
				if isPgUniqueViolation(err) {
					return domain.NewAlreadyExistsError("identifier", fmt.Sprintf("%s:%s", scheme, value))
				}
				return fmt.Errorf("failed to insert identifier: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// GetByID retrieves a paper by its internal UUID.
func (r *PgPaperRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Paper, error) {
	row := r.db.QueryRow(ctx, `SELECT `+pgPaperColumns+` FROM papers p WHERE p.id = $1`, id)
	paper, err := scanPgPaper(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("paper", id.String())
		}
		return nil, fmt.Errorf("failed to get paper by ID: %w", err)
	}
	return paper, nil
}

// FindByIdentifier looks up a paper by one of its external identifiers.
func (r *PgPaperRepository) FindByIdentifier(ctx context.Context, idType domain.IdentifierType, value string) (*domain.Paper, error) {
	norm := domain.NormalizeIdentifier(idType, value)
	if norm == "" {
		return nil, domain.NewValidationError("value", "identifier value is required")
	}

	row := r.db.QueryRow(ctx, `
		SELECT `+pgPaperColumns+`
		FROM papers p
		JOIN paper_identifiers pi ON pi.paper_id = p.id
		WHERE pi.identifier_type = $1 AND pi.identifier_value = $2`,
		string(idType), norm)
	paper, err := scanPgPaper(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("paper", fmt.Sprintf("%s:%s", idType, norm))
		}
		return nil, fmt.Errorf("failed to find paper by identifier: %w", err)
	}
	return paper, nil
}

// FindByTitleKey looks up the oldest paper stored under a title+year key.
func (r *PgPaperRepository) FindByTitleKey(ctx context.Context, key string) (*domain.Paper, error) {
	if key == "" {
		return nil, domain.NewNotFoundError("paper", key)
	}

	row := r.db.QueryRow(ctx, `
		SELECT `+pgPaperColumns+`
		FROM papers p
		WHERE p.title_key = $1
		ORDER BY p.created_at ASC
		LIMIT 1`, key)
	paper, err := scanPgPaper(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("paper", key)
		}
		return nil, fmt.Errorf("failed to find paper by title: %w", err)
	}
	return paper, nil
}

// SetIdentifierIfAbsent fills in an identifier scheme the paper does not have
// yet. The insert, canonical id fill and existence check run as one statement.
func (r *PgPaperRepository) SetIdentifierIfAbsent(ctx context.Context, paperID uuid.UUID, idType domain.IdentifierType, value string, source domain.SourceType) (bool, error) {
	if !idType.IsValid() {
		return false, domain.NewValidationError("identifier", "unknown identifier scheme: "+string(idType))
	}
	norm := domain.NormalizeIdentifier(idType, value)
	if norm == "" {
		return false, nil
	}
	canonical := domain.GenerateCanonicalID(domain.Identifiers{idType: norm})

	query := `
		WITH ins AS (
			INSERT INTO paper_identifiers (paper_id, identifier_type, identifier_value, source_api, discovered_at)
			SELECT p.id, $2::identifier_type, $3::text, $4::text, $5::timestamptz
			FROM papers p WHERE p.id = $1
			ON CONFLICT DO NOTHING
			RETURNING paper_id
		), canon AS (
			UPDATE papers SET
				canonical_id = COALESCE(canonical_id,
					CASE WHEN NOT EXISTS (SELECT 1 FROM papers WHERE canonical_id = $6::text) THEN $6::text END),
				updated_at = $5::timestamptz
			WHERE id IN (SELECT paper_id FROM ins)
			RETURNING id
		)
		SELECT EXISTS (SELECT 1 FROM papers WHERE id = $1), EXISTS (SELECT 1 FROM ins)`

	var found, inserted bool
	err := r.db.QueryRow(ctx, query,
		paperID, string(idType), norm, string(source), time.Now().UTC(), canonical,
	).Scan(&found, &inserted)
	if err != nil {
		return false, fmt.Errorf("failed to set identifier: %w", err)
	}
	if !found {
		return false, domain.NewNotFoundError("paper", paperID.String())
	}
	return inserted, nil
}

// RecordAcquisition writes location fields and advances the status in one
// statement. The acquisition_status enum is declared in lifecycle order, so
// GREATEST never moves a paper backwards.
func (r *PgPaperRepository) RecordAcquisition(ctx context.Context, paperID uuid.UUID, update AcquisitionUpdate) (*domain.Paper, error) {
	var status any
	if update.Status.IsValid() {
		status = string(update.Status)
	}

	row := r.db.QueryRow(ctx, `
		UPDATE papers p SET
			pdf_url = COALESCE(NULLIF($2, ''), p.pdf_url),
			local_path = COALESCE(NULLIF($3, ''), p.local_path),
			content_hash = COALESCE(NULLIF($4, ''), p.content_hash),
			status = GREATEST(p.status, $5::acquisition_status),
			updated_at = $6
		WHERE p.id = $1
		RETURNING `+pgPaperColumns,
		paperID, update.PDFURL, update.LocalPath, update.ContentHash, status, time.Now().UTC(),
	)
	paper, err := scanPgPaper(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("paper", paperID.String())
		}
		return nil, fmt.Errorf("failed to record acquisition: %w", err)
	}
	return paper, nil
}

// List retrieves papers matching the filter criteria.
func (r *PgPaperRepository) List(ctx context.Context, filter PaperFilter) ([]*domain.Paper, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	var conditions []string
	var args []any
	argIndex := 1

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		conditions = append(conditions, fmt.Sprintf("p.status::text = ANY($%d)", argIndex))
		args = append(args, statuses)
		argIndex++
	}
	if filter.Source != nil {
		conditions = append(conditions, fmt.Sprintf("p.source = $%d", argIndex))
		args = append(args, string(*filter.Source))
		argIndex++
	}
	if filter.HasPDF != nil {
		if *filter.HasPDF {
			conditions = append(conditions, "p.pdf_url <> ''")
		} else {
			conditions = append(conditions, "p.pdf_url = ''")
		}
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var totalCount int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM papers p "+whereClause, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count papers: %w", err)
	}

	selectQuery := fmt.Sprintf(`
		SELECT %s
		FROM papers p
		%s
		ORDER BY p.created_at DESC, p.id
		LIMIT $%d OFFSET $%d`,
		pgPaperColumns, whereClause, argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list papers: %w", err)
	}
	defer rows.Close()

	papers := make([]*domain.Paper, 0, filter.Limit)
	for rows.Next() {
		paper, err := scanPgPaper(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan paper: %w", err)
		}
		papers = append(papers, paper)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating papers: %w", err)
	}

	return papers, totalCount, nil
}

// paperScanDest holds the destination pointers for scanning a paper row.
type paperScanDest struct {
	paper       domain.Paper
	authorsJSON []byte
	idsJSON     []byte
	source      string
	status      string
}

func (d *paperScanDest) destinations() []any {
	return []any{
		&d.paper.ID, &d.paper.CanonicalID, &d.paper.Title, &d.paper.Abstract, &d.authorsJSON,
		&d.paper.PublicationYear, &d.paper.Venue, &d.paper.Pages, &d.paper.WorkType,
		&d.paper.PDFURL, &d.paper.LocalPath, &d.paper.ContentHash, &d.paper.OpenAccess, &d.paper.CitationCount,
		&d.source, &d.status, &d.paper.CreatedAt, &d.paper.UpdatedAt,
		&d.idsJSON,
	}
}

func (d *paperScanDest) finish() (*domain.Paper, error) {
	if len(d.authorsJSON) > 0 {
		if err := json.Unmarshal(d.authorsJSON, &d.paper.Authors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal authors: %w", err)
		}
	}
	if len(d.idsJSON) > 0 {
		if err := json.Unmarshal(d.idsJSON, &d.paper.Identifiers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal identifiers: %w", err)
		}
	}
	d.paper.Source = domain.SourceType(d.source)
	d.paper.Status = domain.AcquisitionStatus(d.status)
	return &d.paper, nil
}

func scanPgPaper(row pgx.Row) (*domain.Paper, error) {
	var d paperScanDest
	if err := row.Scan(d.destinations()...); err != nil {
		return nil, err
	}
	return d.finish()
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
