// Package semanticscholar searches the Semantic Scholar Graph API
// (https://api.semanticscholar.org/api-docs/).
//
// Only the fields requested in searchFields are decoded. The externalIds
// block carries DOI, arXiv and PubMed identifiers, and openAccessPdf often
// points straight at a PDF.
package semanticscholar

// SearchResponse is the body of /paper/search.
type SearchResponse struct {
	Total  int           `json:"total"`
	Offset int           `json:"offset"`
	Data   []PaperResult `json:"data"`
}

// PaperResult is one search hit.
type PaperResult struct {
	PaperID       string         `json:"paperId"`
	Title         string         `json:"title"`
	Abstract      string         `json:"abstract"`
	Year          int            `json:"year"`
	Venue         string         `json:"venue"`
	Journal       *Journal       `json:"journal,omitempty"`
	Authors       []Author       `json:"authors"`
	CitationCount int            `json:"citationCount"`
	IsOpenAccess  bool           `json:"isOpenAccess"`
	OpenAccessPDF *OpenAccessPDF `json:"openAccessPdf,omitempty"`
	ExternalIDs   *ExternalIDs   `json:"externalIds,omitempty"`
}

// ExternalIDs keys are capitalized the way the API sends them.
type ExternalIDs struct {
	DOI    string `json:"DOI,omitempty"`
	ArXiv  string `json:"ArXiv,omitempty"`
	PubMed string `json:"PubMed,omitempty"`
	// PubMedCentral is digits only, without the PMC prefix.
	PubMedCentral string `json:"PubMedCentral,omitempty"`
}

// Journal.Pages is a range such as "1-15" and is often absent.
type Journal struct {
	Name  string `json:"name,omitempty"`
	Pages string `json:"pages,omitempty"`
}

type Author struct {
	Name string `json:"name"`
}

// OpenAccessPDF.URL may be empty even when the block is present.
type OpenAccessPDF struct {
	URL    string `json:"url,omitempty"`
	Status string `json:"status,omitempty"`
}

// ErrorResponse is the body of a failed request. Older endpoints use error,
// newer ones message.
type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}
