package acquisition

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/helixir/reference-service/internal/domain"
	"github.com/helixir/reference-service/internal/repository"
)

// Wishlist output formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// wishlistDocument is the exported wishlist file.
type wishlistDocument struct {
	GeneratedAt time.Time              `json:"generated_at" yaml:"generated_at"`
	Count       int                    `json:"count" yaml:"count"`
	Papers      []domain.WishlistEntry `json:"papers" yaml:"papers"`
}

// Wishlist lists every stored paper that still lacks a full text.
func Wishlist(ctx context.Context, store repository.PaperRepository) ([]domain.WishlistEntry, error) {
	papers, _, err := store.List(ctx, repository.WishlistFilter())
	if err != nil {
		return nil, fmt.Errorf("listing wishlist papers: %w", err)
	}
	entries := make([]domain.WishlistEntry, 0, len(papers))
	for _, p := range papers {
		reason := ReasonNoLocation
		if p.PDFURL != "" {
			reason = ReasonDownloadFailed
		}
		entries = append(entries, domain.NewWishlistEntry(p, reason))
	}
	return entries, nil
}

// WriteWishlist renders entries as YAML or JSON.
func WriteWishlist(w io.Writer, entries []domain.WishlistEntry, format string) error {
	if entries == nil {
		entries = []domain.WishlistEntry{}
	}
	doc := wishlistDocument{
		GeneratedAt: time.Now().UTC(),
		Count:       len(entries),
		Papers:      entries,
	}

	switch strings.ToLower(format) {
	case "", FormatYAML, "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding wishlist yaml: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding wishlist json: %w", err)
		}
		return nil
	default:
		return domain.NewValidationError("format", fmt.Sprintf("unsupported wishlist format %q", format))
	}
}
