package httpserver

import (
	"time"

	"github.com/helixir/reference-service/internal/domain"
	"github.com/helixir/reference-service/internal/index"
)

type paperResponse struct {
	ID              string            `json:"id"`
	CanonicalID     string            `json:"canonical_id,omitempty"`
	Title           string            `json:"title"`
	Abstract        string            `json:"abstract,omitempty"`
	Authors         []authorResponse  `json:"authors,omitempty"`
	PublicationYear int               `json:"publication_year,omitempty"`
	Venue           string            `json:"venue,omitempty"`
	Pages           string            `json:"pages,omitempty"`
	WorkType        string            `json:"work_type,omitempty"`
	Identifiers     map[string]string `json:"identifiers,omitempty"`
	PdfURL          string            `json:"pdf_url,omitempty"`
	LocalPath       string            `json:"local_path,omitempty"`
	ContentHash     string            `json:"content_hash,omitempty"`
	OpenAccess      bool              `json:"open_access"`
	CitationCount   int               `json:"citation_count"`
	Source          string            `json:"source,omitempty"`
	Status          string            `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

type authorResponse struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
	ORCID       string `json:"orcid,omitempty"`
}

type listPapersResponse struct {
	Papers        []paperResponse `json:"papers"`
	NextPageToken string          `json:"next_page_token,omitempty"`
	TotalCount    int             `json:"total_count"`
}

type wishlistResponse struct {
	Papers     []domain.WishlistEntry `json:"papers"`
	TotalCount int                    `json:"total_count"`
}

type resolutionResponse struct {
	Found    bool                     `json:"found"`
	Location *domain.ResolvedLocation `json:"location,omitempty"`
	PaperID  string                   `json:"paper_id,omitempty"`
}

type verificationResponse struct {
	AnnotatedText string                     `json:"annotated_text"`
	Summary       string                     `json:"summary"`
	Report        *domain.VerificationReport `json:"report"`
}

type searchResponse struct {
	Hits       []index.Hit `json:"hits"`
	TotalCount uint64      `json:"total_count"`
}

func domainPaperToResponse(p *domain.Paper) paperResponse {
	authors := make([]authorResponse, len(p.Authors))
	for i, a := range p.Authors {
		authors[i] = authorResponse{
			Name:        a.Name,
			Affiliation: a.Affiliation,
			ORCID:       a.ORCID,
		}
	}
	var ids map[string]string
	if len(p.Identifiers) > 0 {
		ids = make(map[string]string, len(p.Identifiers))
		for scheme, value := range p.Identifiers {
			ids[string(scheme)] = value
		}
	}
	return paperResponse{
		ID:              p.ID.String(),
		CanonicalID:     p.CanonicalID,
		Title:           p.Title,
		Abstract:        p.Abstract,
		Authors:         authors,
		PublicationYear: p.PublicationYear,
		Venue:           p.Venue,
		Pages:           p.Pages,
		WorkType:        p.WorkType,
		Identifiers:     ids,
		PdfURL:          p.PDFURL,
		LocalPath:       p.LocalPath,
		ContentHash:     p.ContentHash,
		OpenAccess:      p.OpenAccess,
		CitationCount:   p.CitationCount,
		Source:          string(p.Source),
		Status:          string(p.Status),
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}
