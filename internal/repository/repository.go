// Package repository provides the identifier store for papers.
//
// # Overview
//
// PaperRepository persists papers together with their external identifiers and
// acquisition status. Three implementations are provided:
//
//   - MemoryPaperRepository: in-process store for tests and one-shot runs
//   - SQLitePaperRepository: embedded file store, the default for refctl
//   - PgPaperRepository: PostgreSQL store used by the server
//
// # Invariants
//
// Every implementation enforces the same two rules on writes:
//
//   - An identifier, once stored for a scheme, is never replaced. Later values
//     are only filled in when the scheme is absent.
//   - The acquisition status only moves forward through
//     metadata_only, pdf_url_known, downloaded, indexed.
//
// Writes to a single paper are serialized: the memory store locks the record,
// the SQL stores use single-statement updates with COALESCE, ON CONFLICT DO NOTHING
// and a status rank comparison.
//
// # Error Handling
//
//   - domain.ErrNotFound: the paper does not exist
//   - domain.ErrAlreadyExists: an identifier or canonical id belongs to another paper
//   - domain.ErrInvalidInput: invalid parameters
//
// # Usage Pattern
//
//	db, _ := database.New(ctx, cfg, logger)
//	papers := repository.NewPgPaperRepository(db)
//	existing, _ := repository.FindMatch(ctx, papers, candidate)
package repository

import (
	"context"
	"errors"

	"github.com/helixir/reference-service/internal/database"
	"github.com/helixir/reference-service/internal/dedup"
	"github.com/helixir/reference-service/internal/domain"
)

// DBTX is the PostgreSQL interface supporting pool, transaction and mock contexts.
//
//	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
//	    return repository.NewPgPaperRepository(tx).Create(ctx, paper)
//	})
type DBTX = database.DBTX

// Filter pagination defaults and limits.
const (
	defaultFilterLimit = 100
	maxFilterLimit     = 1000
)

// applyPaginationDefaults clamps limit to [1, maxFilterLimit] and offset to >= 0.
func applyPaginationDefaults(limit, offset *int) {
	if *limit <= 0 {
		*limit = defaultFilterLimit
	}
	if *limit > maxFilterLimit {
		*limit = maxFilterLimit
	}
	if *offset < 0 {
		*offset = 0
	}
}

// TitleKey returns the title+year dedup key stored with each paper.
func TitleKey(p *domain.Paper) string {
	return dedup.TitleYearKey(p.Title, p.PublicationYear)
}

// FindMatch looks up the stored paper that p duplicates. Identifiers are tried
// in canonical priority order, then the title+year key. A title+year hit is
// rejected when both papers carry different DOIs. It returns nil, nil when
// nothing matches.
func FindMatch(ctx context.Context, repo PaperRepository, p *domain.Paper) (*domain.Paper, error) {
	for _, scheme := range domain.IdentifierTypes() {
		value := p.Identifier(scheme)
		if value == "" {
			continue
		}
		found, err := repo.FindByIdentifier(ctx, scheme, value)
		if err == nil {
			return found, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	key := TitleKey(p)
	if key == "" {
		return nil, nil
	}
	found, err := repo.FindByTitleKey(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if doi := p.DOI(); doi != "" && found.DOI() != "" && found.DOI() != doi {
		return nil, nil
	}
	return found, nil
}

// Store inserts p unless a matching paper exists. When one does, the missing
// identifiers of the stored paper are filled in from p and the stored paper is
// returned with created false. A concurrent insert of the same work is resolved
// by retrying the lookup once.
func Store(ctx context.Context, repo PaperRepository, p *domain.Paper) (*domain.Paper, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := FindMatch(ctx, repo, p)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			merged, err := mergeIdentifiers(ctx, repo, existing, p)
			return merged, false, err
		}

		created, err := repo.Create(ctx, p)
		if err == nil {
			return created, true, nil
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return nil, false, err
		}
	}
	return nil, false, domain.NewAlreadyExistsError("paper", p.CanonicalID)
}

func mergeIdentifiers(ctx context.Context, repo PaperRepository, stored, incoming *domain.Paper) (*domain.Paper, error) {
	changed := false
	for _, scheme := range domain.IdentifierTypes() {
		value := incoming.Identifier(scheme)
		if value == "" || stored.Identifier(scheme) != "" {
			continue
		}
		ok, err := repo.SetIdentifierIfAbsent(ctx, stored.ID, scheme, value, incoming.Source)
		if err != nil {
			return nil, err
		}
		changed = changed || ok
	}
	if !changed {
		return stored, nil
	}
	return repo.GetByID(ctx, stored.ID)
}
