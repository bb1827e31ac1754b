package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/reference-service/internal/domain"
)

var _ PaperRepository = (*MemoryPaperRepository)(nil)

// MemoryPaperRepository keeps papers in process memory.
// Index updates take the repository lock; field updates to a paper take that
// paper's own lock, so writes to different papers do not contend.
type MemoryPaperRepository struct {
	mu        sync.RWMutex
	records   map[uuid.UUID]*memoryRecord
	byID      map[domain.IdentifierType]map[string]uuid.UUID
	byTitle   map[string]uuid.UUID
	canonical map[string]uuid.UUID
	now       func() time.Time
}

type memoryRecord struct {
	mu       sync.Mutex
	paper    *domain.Paper
	titleKey string
}

// NewMemoryPaperRepository creates an empty in-memory store.
func NewMemoryPaperRepository() *MemoryPaperRepository {
	return &MemoryPaperRepository{
		records:   make(map[uuid.UUID]*memoryRecord),
		byID:      make(map[domain.IdentifierType]map[string]uuid.UUID),
		byTitle:   make(map[string]uuid.UUID),
		canonical: make(map[string]uuid.UUID),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a new paper.
func (r *MemoryPaperRepository) Create(_ context.Context, paper *domain.Paper) (*domain.Paper, error) {
	if err := preparePaper(paper); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[paper.ID]; ok {
		return nil, domain.NewAlreadyExistsError("paper", paper.ID.String())
	}
	if paper.CanonicalID != "" {
		if _, ok := r.canonical[paper.CanonicalID]; ok {
			return nil, domain.NewAlreadyExistsError("paper", paper.CanonicalID)
		}
	}
	for scheme, value := range paper.Identifiers {
		if _, ok := r.byID[scheme][value]; ok {
			return nil, domain.NewAlreadyExistsError("identifier", fmt.Sprintf("%s:%s", scheme, value))
		}
	}

	now := r.now()
	stored := paper.Clone()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	rec := &memoryRecord{paper: stored, titleKey: TitleKey(stored)}

	r.records[stored.ID] = rec
	if stored.CanonicalID != "" {
		r.canonical[stored.CanonicalID] = stored.ID
	}
	for scheme, value := range stored.Identifiers {
		r.indexIdentifier(scheme, value, stored.ID)
	}
	if rec.titleKey != "" {
		if _, ok := r.byTitle[rec.titleKey]; !ok {
			r.byTitle[rec.titleKey] = stored.ID
		}
	}

	return stored.Clone(), nil
}

func (r *MemoryPaperRepository) indexIdentifier(scheme domain.IdentifierType, value string, id uuid.UUID) {
	m, ok := r.byID[scheme]
	if !ok {
		m = make(map[string]uuid.UUID)
		r.byID[scheme] = m
	}
	m[value] = id
}

// GetByID retrieves a paper by its internal UUID.
func (r *MemoryPaperRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Paper, error) {
	r.mu.RLock()
	rec, ok := r.records[id]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.NewNotFoundError("paper", id.String())
	}
	return rec.snapshot(), nil
}

// FindByIdentifier looks up a paper by one of its external identifiers.
func (r *MemoryPaperRepository) FindByIdentifier(ctx context.Context, idType domain.IdentifierType, value string) (*domain.Paper, error) {
	norm := domain.NormalizeIdentifier(idType, value)
	if norm == "" {
		return nil, domain.NewValidationError("value", "identifier value is required")
	}

	r.mu.RLock()
	id, ok := r.byID[idType][norm]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.NewNotFoundError("paper", fmt.Sprintf("%s:%s", idType, norm))
	}
	return r.GetByID(ctx, id)
}

// FindByTitleKey looks up the first paper stored under a title+year key.
func (r *MemoryPaperRepository) FindByTitleKey(ctx context.Context, key string) (*domain.Paper, error) {
	r.mu.RLock()
	id, ok := r.byTitle[key]
	r.mu.RUnlock()
	if !ok || key == "" {
		return nil, domain.NewNotFoundError("paper", key)
	}
	return r.GetByID(ctx, id)
}

// SetIdentifierIfAbsent fills in an identifier scheme the paper does not have yet.
func (r *MemoryPaperRepository) SetIdentifierIfAbsent(_ context.Context, paperID uuid.UUID, idType domain.IdentifierType, value string, _ domain.SourceType) (bool, error) {
	if !idType.IsValid() {
		return false, domain.NewValidationError("identifier", "unknown identifier scheme: "+string(idType))
	}
	norm := domain.NormalizeIdentifier(idType, value)
	if norm == "" {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[paperID]
	if !ok {
		return false, domain.NewNotFoundError("paper", paperID.String())
	}
	if _, taken := r.byID[idType][norm]; taken {
		return false, nil
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	hadCanonical := rec.paper.CanonicalID != ""
	if !rec.paper.SetIdentifierIfAbsent(idType, norm) {
		return false, nil
	}
	if !hadCanonical && rec.paper.CanonicalID != "" {
		if _, taken := r.canonical[rec.paper.CanonicalID]; taken {
			rec.paper.CanonicalID = ""
		} else {
			r.canonical[rec.paper.CanonicalID] = paperID
		}
	}
	rec.paper.UpdatedAt = r.now()
	r.indexIdentifier(idType, norm, paperID)
	return true, nil
}

// RecordAcquisition writes location fields and advances the status.
func (r *MemoryPaperRepository) RecordAcquisition(_ context.Context, paperID uuid.UUID, update AcquisitionUpdate) (*domain.Paper, error) {
	r.mu.RLock()
	rec, ok := r.records[paperID]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.NewNotFoundError("paper", paperID.String())
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	p := rec.paper
	if update.PDFURL != "" {
		p.PDFURL = update.PDFURL
	}
	if update.LocalPath != "" {
		p.LocalPath = update.LocalPath
	}
	if update.ContentHash != "" {
		p.ContentHash = update.ContentHash
	}
	p.AdvanceStatus(update.Status)
	p.UpdatedAt = r.now()

	return p.Clone(), nil
}

// List retrieves papers matching the filter, newest first.
func (r *MemoryPaperRepository) List(_ context.Context, filter PaperFilter) ([]*domain.Paper, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	r.mu.RLock()
	matched := make([]*domain.Paper, 0, len(r.records))
	for _, rec := range r.records {
		p := rec.snapshot()
		if filter.matches(p) {
			matched = append(matched, p)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if filter.Offset >= len(matched) {
		return []*domain.Paper{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], total, nil
}

// Len returns the number of stored papers.
func (r *MemoryPaperRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func (rec *memoryRecord) snapshot() *domain.Paper {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.paper.Clone()
}
