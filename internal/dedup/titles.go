package dedup

import (
	"strings"
	"unicode"
)

// DefaultTitleThreshold is the word-level Jaccard similarity at or above which
// two titles are considered the same work.
const DefaultTitleThreshold = 0.8

// MatchKind describes how two titles were found to match.
type MatchKind string

const (
	MatchNone      MatchKind = ""
	MatchExact     MatchKind = "exact"
	MatchSubstring MatchKind = "substring"
	MatchJaccard   MatchKind = "jaccard"
)

// TitleWords splits a title into its set of lowercased words. Punctuation
// surrounding a word is dropped so "Theory:" and "theory" compare equal.
func TitleWords(title string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(title)) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if w != "" {
			words[w] = struct{}{}
		}
	}
	return words
}

// JaccardSimilarity returns |A ∩ B| / |A ∪ B| over the word sets of two titles.
// Returns 0 when either title has no words.
func JaccardSimilarity(a, b string) float64 {
	setA := TitleWords(a)
	setB := TitleWords(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// NormalizeTitle lowercases a title, drops punctuation and collapses whitespace.
func NormalizeTitle(title string) string {
	var sb strings.Builder
	sb.Grow(len(title))
	prevSpace := true

	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_':
			if !prevSpace {
				sb.WriteByte(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimRight(sb.String(), " ")
}

// TitleMatcher compares titles using exact, substring and Jaccard checks in
// that order. The zero value uses DefaultTitleThreshold.
type TitleMatcher struct {
	Threshold float64
}

// NewTitleMatcher creates a matcher with the given threshold.
// A non-positive threshold selects the default.
func NewTitleMatcher(threshold float64) TitleMatcher {
	return TitleMatcher{Threshold: threshold}
}

func (m TitleMatcher) threshold() float64 {
	if m.Threshold <= 0 {
		return DefaultTitleThreshold
	}
	return m.Threshold
}

// Accepts reports whether a similarity score reaches the threshold.
func (m TitleMatcher) Accepts(similarity float64) bool {
	return similarity >= m.threshold()
}

// Match reports how query matches candidate, or MatchNone.
func (m TitleMatcher) Match(query, candidate string) MatchKind {
	q := NormalizeTitle(query)
	c := NormalizeTitle(candidate)
	if q == "" || c == "" {
		return MatchNone
	}
	if q == c {
		return MatchExact
	}
	if strings.Contains(c, q) || strings.Contains(q, c) {
		return MatchSubstring
	}
	if m.Accepts(JaccardSimilarity(query, candidate)) {
		return MatchJaccard
	}
	return MatchNone
}

// SameWork reports whether two titles meet the Jaccard threshold. Unlike Match
// it does not accept substring containment.
func (m TitleMatcher) SameWork(a, b string) bool {
	return m.Accepts(JaccardSimilarity(a, b))
}
