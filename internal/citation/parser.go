package citation

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/helixir/reference-service/internal/domain"
)

// Pattern building blocks. Surnames start with a capital (Latin or Latin
// Extended) and may contain apostrophes and hyphens; Chinese names are one to
// four CJK characters.
const (
	latinAuthor   = `[A-Z\x{00C0}-\x{024F}][a-zA-Z\x{00C0}-\x{024F}'\x{2019}\-]+`
	chineseAuthor = `[\x{4e00}-\x{9fff}]{1,4}`
	author        = `(?:` + latinAuthor + `|` + chineseAuthor + `)`
	pages         = `\d{1,4}(?:\s*[-\x{2013}]\s*\d{1,4})?`
	italicTitle   = `\*([^*]+)\*`
	quotedTitle   = `["\x{201C}]([^"\x{201C}\x{201D}]+)["\x{201D}]`
)

// Years in this range are not read as bare page numbers.
const (
	minYear = 1800
	maxYear = 2099
)

// rule is one citation shape. Rules are evaluated in slice order and a span
// claimed by an earlier rule is never reported again by a later one.
type rule struct {
	kind    domain.CitationKind
	pattern *regexp.Regexp
	extract func(text string, m []int) (domain.ParsedCitation, bool)
}

// group returns submatch i of m, or "" when it did not participate.
func group(text string, m []int, i int) string {
	if 2*i+1 >= len(m) || m[2*i] < 0 {
		return ""
	}
	return strings.TrimSpace(text[m[2*i]:m[2*i+1]])
}

var rules = []rule{
	{
		// (qtd. in Smith, *Theory* 42) and (qtd. in Smith 42)
		kind:    domain.CitationKindSecondary,
		pattern: regexp.MustCompile(`\(\s*qtd\.\s+in\s+(` + author + `)(?:,\s*` + italicTitle + `)?\s+(` + pages + `)\s*\)`),
		extract: func(text string, m []int) (domain.ParsedCitation, bool) {
			return domain.ParsedCitation{
				Author: group(text, m, 1),
				Title:  group(text, m, 2),
				Pages:  group(text, m, 3),
			}, true
		},
	},
	{
		// Chicago: (quoted in Smith 1999, 42)
		kind:    domain.CitationKindSecondary,
		pattern: regexp.MustCompile(`\(\s*quoted\s+in\s+(` + author + `)(?:\s+\d{4})?\s*(?:,\s*)?(` + pages + `)?\s*\)`),
		extract: func(text string, m []int) (domain.ParsedCitation, bool) {
			return domain.ParsedCitation{
				Author: group(text, m, 1),
				Pages:  group(text, m, 2),
			}, true
		},
	},
	{
		// (Derrida, *Sovereignties* 42)
		kind:    domain.CitationKindAuthorTitlePage,
		pattern: regexp.MustCompile(`\(\s*(` + author + `),\s*` + italicTitle + `(?:\s+(` + pages + `))?\s*\)`),
		extract: func(text string, m []int) (domain.ParsedCitation, bool) {
			return domain.ParsedCitation{
				Author: group(text, m, 1),
				Title:  group(text, m, 2),
				Pages:  group(text, m, 3),
			}, true
		},
	},
	{
		// (Derrida, "Demeure" 78)
		kind:    domain.CitationKindAuthorQuotedTitlePage,
		pattern: regexp.MustCompile(`\(\s*(` + author + `),\s*` + quotedTitle + `(?:\s+(` + pages + `))?\s*\)`),
		extract: func(text string, m []int) (domain.ParsedCitation, bool) {
			return domain.ParsedCitation{
				Author: group(text, m, 1),
				Title:  group(text, m, 2),
				Pages:  group(text, m, 3),
			}, true
		},
	},
	{
		// (Felstiner 247), but not (Baudelaire 1857)
		kind:    domain.CitationKindAuthorPage,
		pattern: regexp.MustCompile(`\(\s*(` + author + `)\s+(` + pages + `)\s*\)`),
		extract: func(text string, m []int) (domain.ParsedCitation, bool) {
			p := group(text, m, 2)
			if looksLikeYear(p) {
				return domain.ParsedCitation{}, false
			}
			return domain.ParsedCitation{
				Author: group(text, m, 1),
				Pages:  p,
			}, true
		},
	},
	{
		// (*Atemwende* 78)
		kind:    domain.CitationKindTitleOnly,
		pattern: regexp.MustCompile(`\(\s*` + italicTitle + `\s+(` + pages + `)\s*\)`),
		extract: func(text string, m []int) (domain.ParsedCitation, bool) {
			return domain.ParsedCitation{
				Title: group(text, m, 1),
				Pages: group(text, m, 2),
			}, true
		},
	},
}

// looksLikeYear reports whether the first number of a page expression falls
// in the publication-year range.
func looksLikeYear(p string) bool {
	end := strings.IndexFunc(p, func(r rune) bool { return r < '0' || r > '9' })
	if end == -1 {
		end = len(p)
	}
	if end != 4 {
		return false
	}
	n, err := strconv.Atoi(p[:end])
	return err == nil && n >= minYear && n <= maxYear
}

// Parse finds MLA-style inline citations in text and returns them in document
// order. Offsets are byte offsets into text. Parse is deterministic and never
// returns overlapping spans.
func Parse(text string) []domain.ParsedCitation {
	var out []domain.ParsedCitation

	for _, r := range rules {
		for _, m := range r.pattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[0], m[1]
			if claimed(out, start, end) {
				continue
			}
			c, ok := r.extract(text, m)
			if !ok {
				continue
			}
			c.Start = start
			c.End = end
			c.Raw = text[start:end]
			c.Kind = r.kind
			out = append(out, c)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func claimed(found []domain.ParsedCitation, start, end int) bool {
	for _, c := range found {
		if c.Overlaps(start, end) {
			return true
		}
	}
	return false
}
