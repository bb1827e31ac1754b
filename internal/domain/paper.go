package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AcquisitionStatus tracks how far a paper has progressed towards a local full text.
// These values must match the database enum acquisition_status.
type AcquisitionStatus string

const (
	StatusMetadataOnly AcquisitionStatus = "metadata_only"
	StatusPDFURLKnown  AcquisitionStatus = "pdf_url_known"
	StatusDownloaded   AcquisitionStatus = "downloaded"
	StatusIndexed      AcquisitionStatus = "indexed"
)

// Rank returns the position of the status in the acquisition lifecycle.
// Unknown statuses rank below metadata_only.
func (s AcquisitionStatus) Rank() int {
	switch s {
	case StatusMetadataOnly:
		return 1
	case StatusPDFURLKnown:
		return 2
	case StatusDownloaded:
		return 3
	case StatusIndexed:
		return 4
	default:
		return 0
	}
}

// IsValid reports whether s is one of the lifecycle statuses.
func (s AcquisitionStatus) IsValid() bool {
	return s.Rank() > 0
}

// HasFullText reports whether a validated local copy exists.
func (s AcquisitionStatus) HasFullText() bool {
	return s.Rank() >= StatusDownloaded.Rank()
}

// MaxStatus returns whichever status is further along the lifecycle.
func MaxStatus(a, b AcquisitionStatus) AcquisitionStatus {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Identifiers maps an identifier scheme to its normalized value.
type Identifiers map[IdentifierType]string

// GenerateCanonicalID generates a canonical identifier from paper identifiers.
// Priority order: DOI > arXiv > PubMed > PMC > Semantic Scholar > OpenAlex.
// Returns empty string if no identifiers are available.
func GenerateCanonicalID(ids Identifiers) string {
	for _, p := range canonicalPriority {
		if v := strings.TrimSpace(ids[p.scheme]); v != "" {
			return p.prefix + v
		}
	}
	return ""
}

// Author represents a paper author with optional affiliation and ORCID.
type Author struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
	ORCID       string `json:"orcid,omitempty"`
}

// String returns a formatted string representation of the author.
func (a Author) String() string {
	var sb strings.Builder
	sb.WriteString(a.Name)

	if a.Affiliation != "" {
		sb.WriteString(" (")
		sb.WriteString(a.Affiliation)
		sb.WriteString(")")
	}

	if a.ORCID != "" {
		sb.WriteString(" [")
		sb.WriteString(a.ORCID)
		sb.WriteString("]")
	}

	return sb.String()
}

// Surname returns the family name of the author.
// Handles both "Given Family" and "Family, Given" forms.
func (a Author) Surname() string {
	name := strings.TrimSpace(a.Name)
	if i := strings.Index(name, ","); i > 0 {
		return strings.TrimSpace(name[:i])
	}
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// Paper represents a bibliographic work known to the service.
type Paper struct {
	ID              uuid.UUID
	CanonicalID     string
	Title           string
	Abstract        string
	Authors         []Author
	PublicationYear int
	Venue           string
	Pages           string
	WorkType        string
	Identifiers     Identifiers
	PDFURL          string
	LocalPath       string
	ContentHash     string
	OpenAccess      bool
	CitationCount   int
	Source          SourceType
	Status          AcquisitionStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasIdentifier returns true if the paper has at least one identifier.
func (p *Paper) HasIdentifier() bool {
	return p.CanonicalID != "" || GenerateCanonicalID(p.Identifiers) != ""
}

// Identifier returns the value stored for scheme, or "" when absent.
func (p *Paper) Identifier(scheme IdentifierType) string {
	if p.Identifiers == nil {
		return ""
	}
	return p.Identifiers[scheme]
}

// DOI returns the normalized DOI, if known.
func (p *Paper) DOI() string {
	return p.Identifier(IdentifierTypeDOI)
}

// SetIdentifierIfAbsent records value under scheme only when no value is stored yet.
// It never replaces an existing value and reports whether the paper changed.
func (p *Paper) SetIdentifierIfAbsent(scheme IdentifierType, value string) bool {
	value = NormalizeIdentifier(scheme, value)
	if value == "" {
		return false
	}
	if p.Identifiers == nil {
		p.Identifiers = make(Identifiers)
	}
	if _, ok := p.Identifiers[scheme]; ok {
		return false
	}
	p.Identifiers[scheme] = value
	if p.CanonicalID == "" {
		p.CanonicalID = GenerateCanonicalID(p.Identifiers)
	}
	return true
}

// MergeIdentifiers fills every scheme in ids that p does not have yet.
func (p *Paper) MergeIdentifiers(ids Identifiers) int {
	added := 0
	for _, p2 := range canonicalPriority {
		if v, ok := ids[p2.scheme]; ok && p.SetIdentifierIfAbsent(p2.scheme, v) {
			added++
		}
	}
	return added
}

// AdvanceStatus moves the paper forward to s. It never moves backwards and
// reports whether the status changed.
func (p *Paper) AdvanceStatus(s AcquisitionStatus) bool {
	if s.Rank() <= p.Status.Rank() {
		return false
	}
	p.Status = s
	return true
}

// Clone returns a deep copy of p.
func (p *Paper) Clone() *Paper {
	if p == nil {
		return nil
	}
	c := *p
	if p.Authors != nil {
		c.Authors = append([]Author(nil), p.Authors...)
	}
	if p.Identifiers != nil {
		c.Identifiers = make(Identifiers, len(p.Identifiers))
		for k, v := range p.Identifiers {
			c.Identifiers[k] = v
		}
	}
	return &c
}

// AuthorNames returns the author names in order.
func (p *Paper) AuthorNames() []string {
	names := make([]string, len(p.Authors))
	for i, a := range p.Authors {
		names[i] = a.Name
	}
	return names
}

// FirstAuthorSurname returns the surname of the first author, if any.
func (p *Paper) FirstAuthorSurname() string {
	if len(p.Authors) == 0 {
		return ""
	}
	return p.Authors[0].Surname()
}

var (
	doiPrefixes = []string{
		"https://doi.org/",
		"http://doi.org/",
		"https://dx.doi.org/",
		"http://dx.doi.org/",
		"doi:",
	}
	arxivPrefixes = []string{
		"https://arxiv.org/abs/",
		"http://arxiv.org/abs/",
		"https://arxiv.org/pdf/",
		"arxiv:",
	}
	arxivDOIPattern = regexp.MustCompile(`(?i)^10\.48550/arxiv\.(.+)$`)
)

// NormalizeDOI strips resolver prefixes from a DOI and returns it lowercased.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	lower := strings.ToLower(doi)
	for _, prefix := range doiPrefixes {
		if strings.HasPrefix(lower, prefix) {
			lower = lower[len(prefix):]
			break
		}
	}
	return strings.TrimSpace(lower)
}

// NormalizeArXivID strips URL and scheme prefixes from an arXiv identifier.
func NormalizeArXivID(id string) string {
	id = strings.TrimSpace(id)
	lower := strings.ToLower(id)
	for _, prefix := range arxivPrefixes {
		if strings.HasPrefix(lower, prefix) {
			id = id[len(prefix):]
			break
		}
	}
	return strings.TrimSuffix(strings.TrimSpace(id), ".pdf")
}

// ArXivIDFromDOI extracts the arXiv identifier from an arXiv-minted DOI
// (10.48550/arXiv.XXXX). Returns "" for other DOIs.
func ArXivIDFromDOI(doi string) string {
	m := arxivDOIPattern.FindStringSubmatch(NormalizeDOI(doi))
	if m == nil {
		return ""
	}
	return m[1]
}

// NormalizeIdentifier normalizes value according to its scheme.
func NormalizeIdentifier(scheme IdentifierType, value string) string {
	switch scheme {
	case IdentifierTypeDOI:
		return NormalizeDOI(value)
	case IdentifierTypeArXivID:
		return NormalizeArXivID(value)
	case IdentifierTypePubMedID:
		return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(value), "https://pubmed.ncbi.nlm.nih.gov/"))
	case IdentifierTypePMCID:
		v := strings.ToUpper(strings.TrimSpace(value))
		if v != "" && !strings.HasPrefix(v, "PMC") {
			v = "PMC" + v
		}
		return v
	case IdentifierTypeOpenAlexID:
		return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(value), "https://openalex.org/"))
	default:
		return strings.TrimSpace(value)
	}
}
