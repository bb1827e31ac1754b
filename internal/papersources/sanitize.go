package papersources

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var stripPolicy = bluemonday.StrictPolicy()

// CleanTitle strips markup from a title as returned by CrossRef or OpenAlex
// (JATS <i>, <sub>, <scp> and HTML entities) and collapses whitespace.
func CleanTitle(s string) string {
	if s == "" {
		return ""
	}
	s = stripPolicy.Sanitize(s)
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}
