package pdf

import (
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

var doiPattern = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)

// ExtractDOI searches the first three pages of a PDF for a DOI.
// "" with a nil error means none was found.
func ExtractDOI(path string) (string, error) {
	text, err := ExtractText(path, 3)
	if err != nil {
		return "", err
	}
	return FindDOI(text), nil
}

// ExtractText returns the plain text of the first maxPages pages.
// A non-positive maxPages reads every page. Unreadable pages are skipped.
func ExtractText(path string, maxPages int) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	n := r.NumPage()
	if maxPages <= 0 || maxPages > n {
		maxPages = n
	}

	var b strings.Builder
	for i := 1; i <= maxPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// FindDOI returns the first plausible DOI in text, trailing punctuation removed.
func FindDOI(text string) string {
	for _, m := range doiPattern.FindAllString(text, -1) {
		m = strings.TrimRight(m, ".,;:)")
		if len(m) < 10 {
			continue
		}
		slash := strings.Index(m, "/")
		if slash == -1 || slash >= len(m)-1 {
			continue
		}
		return m
	}
	return ""
}
