// Package domain provides domain models and business logic for the reference acquisition
// and citation verification service.
package domain

// SourceType represents the external API that provided paper data or a full-text location.
// These values must match the database enum source_type.
type SourceType string

const (
	SourceTypeSemanticScholar SourceType = "semantic_scholar"
	SourceTypeOpenAlex        SourceType = "openalex"
	SourceTypeCrossRef        SourceType = "crossref"
	SourceTypeUnpaywall       SourceType = "unpaywall"
	SourceTypeCORE            SourceType = "core"
	SourceTypeEuropePMC       SourceType = "europepmc"
	SourceTypeArXiv           SourceType = "arxiv"
	SourceTypeDOI             SourceType = "doi"
	SourceTypeManual          SourceType = "manual"
)

// IdentifierType represents the scheme of an academic paper identifier.
// These values must match the database enum identifier_type.
type IdentifierType string

const (
	IdentifierTypeDOI               IdentifierType = "doi"
	IdentifierTypeArXivID           IdentifierType = "arxiv_id"
	IdentifierTypePubMedID          IdentifierType = "pubmed_id"
	IdentifierTypePMCID             IdentifierType = "pmcid"
	IdentifierTypeSemanticScholarID IdentifierType = "semantic_scholar_id"
	IdentifierTypeOpenAlexID        IdentifierType = "openalex_id"
)

// canonicalPriority lists identifier schemes in canonical-ID priority order.
var canonicalPriority = []struct {
	scheme IdentifierType
	prefix string
}{
	{IdentifierTypeDOI, "doi:"},
	{IdentifierTypeArXivID, "arxiv:"},
	{IdentifierTypePubMedID, "pubmed:"},
	{IdentifierTypePMCID, "pmc:"},
	{IdentifierTypeSemanticScholarID, "s2:"},
	{IdentifierTypeOpenAlexID, "openalex:"},
}

// IdentifierTypes returns every identifier scheme in canonical-ID priority order.
func IdentifierTypes() []IdentifierType {
	out := make([]IdentifierType, len(canonicalPriority))
	for i, p := range canonicalPriority {
		out[i] = p.scheme
	}
	return out
}

// IsValid reports whether t is a known identifier scheme.
func (t IdentifierType) IsValid() bool {
	for _, p := range canonicalPriority {
		if p.scheme == t {
			return true
		}
	}
	return false
}
