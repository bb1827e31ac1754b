package crossref

// worksResponse is the envelope returned by GET /works.
type worksResponse struct {
	Status  string      `json:"status"`
	Message worksResult `json:"message"`
}

type worksResult struct {
	TotalResults int    `json:"total-results"`
	Items        []Work `json:"items"`
}

// Work is a CrossRef work record. Only the fields used by the service are mapped.
type Work struct {
	DOI             string     `json:"DOI"`
	URL             string     `json:"URL"`
	Title           []string   `json:"title"`
	ContainerTitle  []string   `json:"container-title"`
	Type            string     `json:"type"`
	Page            string     `json:"page"`
	Abstract        string     `json:"abstract"`
	Author          []Author   `json:"author"`
	Link            []Link     `json:"link"`
	Score           float64    `json:"score"`
	ReferencedBy    int        `json:"is-referenced-by-count"`
	PublishedPrint  *DateParts `json:"published-print"`
	PublishedOnline *DateParts `json:"published-online"`
	Issued          *DateParts `json:"issued"`
	Created         *DateParts `json:"created"`
}

type Author struct {
	Given       string        `json:"given"`
	Family      string        `json:"family"`
	Name        string        `json:"name"`
	ORCID       string        `json:"ORCID"`
	Affiliation []Affiliation `json:"affiliation"`
}

type Affiliation struct {
	Name string `json:"name"`
}

type Link struct {
	URL         string `json:"URL"`
	ContentType string `json:"content-type"`
}

// DateParts holds CrossRef's nested [[year, month, day]] date form.
type DateParts struct {
	DateParts [][]int `json:"date-parts"`
}

func (d *DateParts) year() int {
	if d == nil || len(d.DateParts) == 0 || len(d.DateParts[0]) == 0 {
		return 0
	}
	return d.DateParts[0][0]
}
