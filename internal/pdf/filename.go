package pdf

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"

	"github.com/helixir/reference-service/internal/domain"
)

var unsafeChars = regexp.MustCompile(`[^\w\-.]`)

// SafeFilename derives a file name stem for a paper: its DOI, else its id,
// else its canonical id, else its title. Values that needed sanitizing carry
// a short hash of the raw value, so "10.1/a(b)" and "10.1/a_b_" do not share
// a file.
func SafeFilename(p *domain.Paper) string {
	switch {
	case p.DOI() != "":
		return stem(p.DOI(), p.DOI())
	case p.ID != uuid.Nil:
		return p.ID.String()
	case p.CanonicalID != "":
		return stem(p.CanonicalID, p.CanonicalID)
	default:
		title := []rune(p.Title)
		if len(title) > 60 {
			title = title[:60]
		}
		return stem(string(title), p.Title)
	}
}

// stem sanitizes s and, when that changed anything, appends the first eight
// hex digits of raw's SHA-256.
func stem(s, raw string) string {
	safe := unsafeChars.ReplaceAllString(s, "_")
	if safe == raw {
		return safe
	}
	sum := sha256.Sum256([]byte(raw))
	return safe + "-" + hex.EncodeToString(sum[:4])
}

// PathFor returns the destination of a paper's PDF under dir.
func PathFor(dir string, p *domain.Paper) string {
	return filepath.Join(dir, SafeFilename(p)+".pdf")
}
