package domain

import (
	"time"

	"github.com/google/uuid"
)

// WishlistEntry is a paper known by metadata whose full text could not be acquired.
type WishlistEntry struct {
	PaperID uuid.UUID         `json:"paper_id" yaml:"paper_id"`
	Title   string            `json:"title" yaml:"title"`
	Authors []string          `json:"authors,omitempty" yaml:"authors,omitempty"`
	Year    int               `json:"year,omitempty" yaml:"year,omitempty"`
	Venue   string            `json:"venue,omitempty" yaml:"venue,omitempty"`
	DOI     string            `json:"doi,omitempty" yaml:"doi,omitempty"`
	PDFURL  string            `json:"pdf_url,omitempty" yaml:"pdf_url,omitempty"`
	Status  AcquisitionStatus `json:"status" yaml:"status"`
	Reason  string            `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// NewWishlistEntry builds a wishlist entry from a paper.
func NewWishlistEntry(p *Paper, reason string) WishlistEntry {
	return WishlistEntry{
		PaperID: p.ID,
		Title:   p.Title,
		Authors: p.AuthorNames(),
		Year:    p.PublicationYear,
		Venue:   p.Venue,
		DOI:     p.DOI(),
		PDFURL:  p.PDFURL,
		Status:  p.Status,
		Reason:  reason,
	}
}

// AcquisitionReport summarizes one acquisition pipeline run.
type AcquisitionReport struct {
	RunID            uuid.UUID       `json:"run_id"`
	Query            string          `json:"query"`
	Found            int             `json:"found"`
	NewPapers        int             `json:"new_papers"`
	AlreadyKnown     int             `json:"already_known"`
	AlreadyAcquired  int             `json:"already_acquired"`
	Downloaded       int             `json:"downloaded"`
	DirectDownloaded int             `json:"direct_downloaded"`
	OAResolved       int             `json:"oa_resolved"`
	ProxyDownloaded  int             `json:"proxy_downloaded"`
	Indexed          int             `json:"indexed"`
	Failed           int             `json:"failed"`
	Wishlist         []WishlistEntry `json:"wishlist"`
	StartedAt        time.Time       `json:"started_at"`
	FinishedAt       time.Time       `json:"finished_at"`
}

// Duration returns how long the run took.
func (r *AcquisitionReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
