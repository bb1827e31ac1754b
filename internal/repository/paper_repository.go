package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/helixir/reference-service/internal/domain"
)

// PaperRepository is the identifier store for papers.
type PaperRepository interface {
	// Create inserts a new paper with its identifiers in metadata_only status
	// unless a later status is given. An ID is assigned when the paper has none.
	// Returns domain.ErrAlreadyExists if any identifier, or the canonical id,
	// already belongs to another paper. Nothing is written in that case.
	Create(ctx context.Context, paper *domain.Paper) (*domain.Paper, error)

	// GetByID retrieves a paper by its internal UUID.
	// Returns domain.ErrNotFound if no matching paper exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Paper, error)

	// FindByIdentifier looks up a paper by one of its external identifiers.
	// The value is normalized for the scheme before lookup.
	// Returns domain.ErrNotFound if no matching paper exists.
	FindByIdentifier(ctx context.Context, idType domain.IdentifierType, value string) (*domain.Paper, error)

	// FindByTitleKey looks up the oldest paper with the given title+year key.
	// Returns domain.ErrNotFound if no matching paper exists.
	FindByTitleKey(ctx context.Context, key string) (*domain.Paper, error)

	// SetIdentifierIfAbsent stores value under idType for the paper when the
	// paper has no value for that scheme and no other paper owns the value.
	// It reports whether the identifier was stored. The canonical id is filled
	// in when the paper had none.
	// Returns domain.ErrNotFound if the paper does not exist.
	SetIdentifierIfAbsent(ctx context.Context, paperID uuid.UUID, idType domain.IdentifierType, value string, source domain.SourceType) (bool, error)

	// RecordAcquisition writes the non-empty location fields of update and
	// advances the status when update.Status ranks higher than the stored one.
	// Returns the paper as stored after the update.
	// Returns domain.ErrNotFound if the paper does not exist.
	RecordAcquisition(ctx context.Context, paperID uuid.UUID, update AcquisitionUpdate) (*domain.Paper, error)

	// List retrieves papers matching the filter, newest first, with the total
	// count of matches regardless of limit and offset.
	List(ctx context.Context, filter PaperFilter) ([]*domain.Paper, int64, error)
}

// AcquisitionUpdate carries the outcome of an acquisition stage for one paper.
// Empty fields leave the stored value untouched.
type AcquisitionUpdate struct {
	PDFURL      string
	LocalPath   string
	ContentHash string
	Status      domain.AcquisitionStatus
}

// PaperFilter specifies criteria for listing papers.
type PaperFilter struct {
	// Statuses restricts results to papers in any of these statuses (optional).
	Statuses []domain.AcquisitionStatus

	// Source filters to papers first discovered by a specific source (optional).
	Source *domain.SourceType

	// HasPDF filters on whether a PDF URL is known (optional).
	HasPDF *bool

	// Limit specifies maximum number of results (default: 100, max: 1000).
	Limit int

	// Offset specifies the starting position for pagination.
	Offset int
}

// Validate checks the filter and applies pagination defaults.
func (f *PaperFilter) Validate() error {
	for _, s := range f.Statuses {
		if !s.IsValid() {
			return domain.NewValidationError("status", "unknown acquisition status: "+string(s))
		}
	}
	applyPaginationDefaults(&f.Limit, &f.Offset)
	return nil
}

// WishlistFilter selects papers known by metadata but not yet acquired as full text.
func WishlistFilter() PaperFilter {
	return PaperFilter{
		Statuses: []domain.AcquisitionStatus{domain.StatusMetadataOnly, domain.StatusPDFURLKnown},
		Limit:    maxFilterLimit,
	}
}

func (f *PaperFilter) matches(p *domain.Paper) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if p.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Source != nil && p.Source != *f.Source {
		return false
	}
	if f.HasPDF != nil && (p.PDFURL != "") != *f.HasPDF {
		return false
	}
	return true
}

// preparePaper validates a paper for insertion and fills derived fields.
func preparePaper(paper *domain.Paper) error {
	if paper == nil {
		return domain.NewValidationError("paper", "paper cannot be nil")
	}
	if paper.Title == "" && !paper.HasIdentifier() {
		return domain.NewValidationError("paper", "title or identifier is required")
	}
	if paper.ID == uuid.Nil {
		paper.ID = uuid.New()
	}
	normalized := make(domain.Identifiers, len(paper.Identifiers))
	for scheme, value := range paper.Identifiers {
		if !scheme.IsValid() {
			return domain.NewValidationError("identifier", "unknown identifier scheme: "+string(scheme))
		}
		if v := domain.NormalizeIdentifier(scheme, value); v != "" {
			normalized[scheme] = v
		}
	}
	paper.Identifiers = normalized
	if paper.CanonicalID == "" {
		paper.CanonicalID = domain.GenerateCanonicalID(normalized)
	}
	if !paper.Status.IsValid() {
		paper.Status = domain.StatusMetadataOnly
	}
	if paper.Authors == nil {
		paper.Authors = []domain.Author{}
	}
	return nil
}
