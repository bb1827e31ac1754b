// Package openalex searches the OpenAlex works API (https://docs.openalex.org/).
//
// The client serves as a metadata source for acquisition runs and as the
// fallback bibliographic search when verifying citations.
package openalex

// SearchResponse is the body of /works.
type SearchResponse struct {
	Meta    Meta   `json:"meta"`
	Results []Work `json:"results"`
}

type Meta struct {
	Count   int `json:"count"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// Work is an OpenAlex work. DOI and ID are full URLs
// (https://doi.org/..., https://openalex.org/W...).
type Work struct {
	ID              string       `json:"id"`
	DOI             string       `json:"doi"`
	Title           string       `json:"title"`
	DisplayName     string       `json:"display_name"`
	PublicationYear int          `json:"publication_year"`
	Type            string       `json:"type"`
	CitedByCount    int          `json:"cited_by_count"`
	OpenAccess      *OpenAccess  `json:"open_access"`
	Authorships     []Authorship `json:"authorships"`
	PrimaryLocation *Location    `json:"primary_location"`
	BestOALocation  *Location    `json:"best_oa_location"`
	IDs             IDs          `json:"ids"`
	Biblio          Biblio       `json:"biblio"`

	// AbstractInvertedIndex maps each word to its positions in the abstract.
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
}

// OpenAccess.OAURL is frequently a landing page rather than a PDF.
type OpenAccess struct {
	IsOA  bool   `json:"is_oa"`
	OAURL string `json:"oa_url"`
}

type Authorship struct {
	Author       AuthorInfo    `json:"author"`
	Institutions []Institution `json:"institutions"`
}

type AuthorInfo struct {
	DisplayName string `json:"display_name"`
	Orcid       string `json:"orcid"`
}

type Institution struct {
	DisplayName string `json:"display_name"`
}

// Location is one place a work is hosted. Source is nil for repositories
// OpenAlex could not attribute.
type Location struct {
	Source *Source `json:"source"`
	PDFURL string  `json:"pdf_url"`
}

type Source struct {
	DisplayName string `json:"display_name"`
}

type IDs struct {
	OpenAlex string `json:"openalex"`
	DOI      string `json:"doi"`
	PMID     string `json:"pmid"`
	PMCID    string `json:"pmcid"`
}

// Biblio page numbers are strings; some journals use roman numerals or
// article numbers.
type Biblio struct {
	FirstPage string `json:"first_page"`
	LastPage  string `json:"last_page"`
}
