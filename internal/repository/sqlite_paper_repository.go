package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/helixir/reference-service/internal/domain"
)

var _ PaperRepository = (*SQLitePaperRepository)(nil)

// sqliteTimeFormat sorts lexicographically for UTC timestamps.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z"

const sqlitePaperColumns = `
	p.id, COALESCE(p.canonical_id, ''), p.title, p.abstract, p.authors,
	p.publication_year, p.venue, p.pages, p.work_type,
	p.pdf_url, p.local_path, p.content_hash, p.open_access, p.citation_count,
	p.source, p.status, p.created_at, p.updated_at,
	COALESCE((SELECT json_group_object(i.identifier_type, i.identifier_value)
		FROM paper_identifiers i WHERE i.paper_id = p.id), '{}')`

// SQLitePaperRepository stores papers in an embedded SQLite database opened
// with database.OpenSQLite.
type SQLitePaperRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLitePaperRepository creates a repository over an open SQLite database.
func NewSQLitePaperRepository(db *sql.DB) *SQLitePaperRepository {
	return &SQLitePaperRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a new paper and its identifiers in one transaction.
func (r *SQLitePaperRepository) Create(ctx context.Context, paper *domain.Paper) (*domain.Paper, error) {
	if err := preparePaper(paper); err != nil {
		return nil, err
	}

	authorsJSON, err := json.Marshal(paper.Authors)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal authors: %w", err)
	}

	now := r.now()
	ts := now.Format(sqliteTimeFormat)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO papers (
			id, canonical_id, title, title_key, abstract, authors,
			publication_year, venue, pages, work_type,
			pdf_url, local_path, content_hash, open_access, citation_count,
			source, status, status_rank, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		paper.ID.String(),
		nullString(paper.CanonicalID),
		paper.Title,
		TitleKey(paper),
		paper.Abstract,
		string(authorsJSON),
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
		paper.Status.Rank(),
		ts,
		ts,
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, domain.NewAlreadyExistsError("paper", paper.CanonicalID)
		}
		return nil, fmt.Errorf("failed to insert paper: %w", err)
	}

	for scheme, value := range paper.Identifiers {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO paper_identifiers (paper_id, identifier_type, identifier_value, source_api, discovered_at)
			VALUES (?, ?, ?, ?, ?)`,
			paper.ID.String(), string(scheme), value, string(paper.Source), ts)
		if err != nil {
			if isSQLiteUniqueViolation(err) {
				return nil, domain.NewAlreadyExistsError("identifier", fmt.Sprintf("%s:%s", scheme, value))
			}
			return nil, fmt.Errorf("failed to insert identifier: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit paper: %w", err)
	}

	out := paper.Clone()
	out.CreatedAt = now
	out.UpdatedAt = now
	return out, nil
}

// GetByID retrieves a paper by its internal UUID.
func (r *SQLitePaperRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Paper, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sqlitePaperColumns+` FROM papers p WHERE p.id = ?`, id.String())
	paper, err := scanSQLitePaper(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("paper", id.String())
		}
		return nil, fmt.Errorf("failed to get paper: %w", err)
	}
	return paper, nil
}

// FindByIdentifier looks up a paper by one of its external identifiers.
func (r *SQLitePaperRepository) FindByIdentifier(ctx context.Context, idType domain.IdentifierType, value string) (*domain.Paper, error) {
	norm := domain.NormalizeIdentifier(idType, value)
	if norm == "" {
		return nil, domain.NewValidationError("value", "identifier value is required")
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT `+sqlitePaperColumns+`
		FROM papers p
		JOIN paper_identifiers pi ON pi.paper_id = p.id
		WHERE pi.identifier_type = ? AND pi.identifier_value = ?`,
		string(idType), norm)
	paper, err := scanSQLitePaper(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("paper", fmt.Sprintf("%s:%s", idType, norm))
		}
		return nil, fmt.Errorf("failed to find paper by identifier: %w", err)
	}
	return paper, nil
}

// FindByTitleKey looks up the oldest paper stored under a title+year key.
func (r *SQLitePaperRepository) FindByTitleKey(ctx context.Context, key string) (*domain.Paper, error) {
	if key == "" {
		return nil, domain.NewNotFoundError("paper", key)
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT `+sqlitePaperColumns+`
		FROM papers p
		WHERE p.title_key = ?
		ORDER BY p.created_at ASC
		LIMIT 1`, key)
	paper, err := scanSQLitePaper(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("paper", key)
		}
		return nil, fmt.Errorf("failed to find paper by title: %w", err)
	}
	return paper, nil
}

// SetIdentifierIfAbsent fills in an identifier scheme the paper does not have yet.
func (r *SQLitePaperRepository) SetIdentifierIfAbsent(ctx context.Context, paperID uuid.UUID, idType domain.IdentifierType, value string, source domain.SourceType) (bool, error) {
	if !idType.IsValid() {
		return false, domain.NewValidationError("identifier", "unknown identifier scheme: "+string(idType))
	}
	norm := domain.NormalizeIdentifier(idType, value)
	if norm == "" {
		return false, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM papers WHERE id = ?`, paperID.String()).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.NewNotFoundError("paper", paperID.String())
	}
	if err != nil {
		return false, fmt.Errorf("failed to check paper: %w", err)
	}

	ts := r.now().Format(sqliteTimeFormat)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO paper_identifiers (paper_id, identifier_type, identifier_value, source_api, discovered_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		paperID.String(), string(idType), norm, string(source), ts)
	if err != nil {
		return false, fmt.Errorf("failed to insert identifier: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	canonical := domain.GenerateCanonicalID(domain.Identifiers{idType: norm})
	_, err = tx.ExecContext(ctx, `
		UPDATE papers SET
			canonical_id = CASE
				WHEN canonical_id IS NULL AND NOT EXISTS (SELECT 1 FROM papers WHERE canonical_id = ?) THEN ?
				ELSE canonical_id
			END,
			updated_at = ?
		WHERE id = ?`,
		canonical, canonical, ts, paperID.String())
	if err != nil {
		return false, fmt.Errorf("failed to update canonical id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit identifier: %w", err)
	}
	return true, nil
}

// RecordAcquisition writes location fields and advances the status in one statement.
func (r *SQLitePaperRepository) RecordAcquisition(ctx context.Context, paperID uuid.UUID, update AcquisitionUpdate) (*domain.Paper, error) {
	rank := update.Status.Rank()
	res, err := r.db.ExecContext(ctx, `
		UPDATE papers SET
			pdf_url = COALESCE(NULLIF(?, ''), pdf_url),
			local_path = COALESCE(NULLIF(?, ''), local_path),
			content_hash = COALESCE(NULLIF(?, ''), content_hash),
			status = CASE WHEN ? > status_rank THEN ? ELSE status END,
			status_rank = MAX(status_rank, ?),
			updated_at = ?
		WHERE id = ?`,
		update.PDFURL,
		update.LocalPath,
		update.ContentHash,
		rank, string(update.Status),
		rank,
		r.now().Format(sqliteTimeFormat),
		paperID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record acquisition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return nil, domain.NewNotFoundError("paper", paperID.String())
	}
	return r.GetByID(ctx, paperID)
}

// List retrieves papers matching the filter, newest first.
func (r *SQLitePaperRepository) List(ctx context.Context, filter PaperFilter) ([]*domain.Paper, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	var conditions []string
	var args []any

	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(s))
		}
		conditions = append(conditions, "p.status IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.Source != nil {
		conditions = append(conditions, "p.source = ?")
		args = append(args, string(*filter.Source))
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

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM papers p "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count papers: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sqlitePaperColumns+` FROM papers p `+whereClause+`
		ORDER BY p.created_at DESC, p.id
		LIMIT ? OFFSET ?`,
		append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list papers: %w", err)
	}
	defer rows.Close()

	papers := make([]*domain.Paper, 0)
	for rows.Next() {
		paper, err := scanSQLitePaper(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan paper: %w", err)
		}
		papers = append(papers, paper)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating papers: %w", err)
	}

	return papers, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLitePaper(row rowScanner) (*domain.Paper, error) {
	var (
		p                    domain.Paper
		id                   string
		authorsJSON          string
		idsJSON              string
		source, status       string
		createdAt, updatedAt string
	)

	err := row.Scan(
		&id, &p.CanonicalID, &p.Title, &p.Abstract, &authorsJSON,
		&p.PublicationYear, &p.Venue, &p.Pages, &p.WorkType,
		&p.PDFURL, &p.LocalPath, &p.ContentHash, &p.OpenAccess, &p.CitationCount,
		&source, &status, &createdAt, &updatedAt,
		&idsJSON,
	)
	if err != nil {
		return nil, err
	}

	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid paper id %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(authorsJSON), &p.Authors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authors: %w", err)
	}
	if err := json.Unmarshal([]byte(idsJSON), &p.Identifiers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal identifiers: %w", err)
	}
	p.Source = domain.SourceType(source)
	p.Status = domain.AcquisitionStatus(status)
	if p.CreatedAt, err = time.Parse(sqliteTimeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(sqliteTimeFormat, updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updated_at: %w", err)
	}

	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isSQLiteUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
