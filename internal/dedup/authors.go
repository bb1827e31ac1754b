// Package dedup provides utilities for detecting duplicate academic papers
// and matching cited works through fuzzy comparison of titles and author names.
package dedup

import (
	"strings"
	"unicode"

	"github.com/helixir/reference-service/internal/domain"
)

// AuthorOverlap computes a fuzzy overlap score between two author lists.
// Each author in the smaller list is paired with the most similar unmatched
// author in the larger list; the summed similarity is divided by the union count.
//
// Returns 0.0 if either list is empty, 1.0 for a perfect match.
func AuthorOverlap(a, b []domain.Author) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	normA := normalizeAuthors(a)
	normB := normalizeAuthors(b)
	if len(normA) > len(normB) {
		normA, normB = normB, normA
	}

	used := make([]bool, len(normB))
	totalScore := 0.0
	matchedPairs := 0

	for _, nameA := range normA {
		bestScore := 0.0
		bestIdx := -1
		for j, nameB := range normB {
			if used[j] {
				continue
			}
			if score := nameSimilarity(nameA, nameB); score > bestScore {
				bestScore = score
				bestIdx = j
			}
		}
		if bestIdx >= 0 {
			used[bestIdx] = true
			matchedPairs++
			totalScore += bestScore
		}
	}

	unionCount := len(normA) + len(normB) - matchedPairs
	if unionCount == 0 {
		return 0.0
	}
	return totalScore / float64(unionCount)
}

// AuthorMatches reports whether a cited author (usually a bare surname) refers
// to one of the work's authors. A match is either substring containment of the
// normalized names or an equal surname.
func AuthorMatches(cited string, authors []string) bool {
	want := NormalizeName(cited)
	if want == "" {
		return false
	}
	wantSurname := surname(want)

	for _, a := range authors {
		have := NormalizeName(a)
		if have == "" {
			continue
		}
		if strings.Contains(have, want) || strings.Contains(want, have) {
			return true
		}
		if surname(have) == wantSurname {
			return true
		}
	}
	return false
}

// NormalizeName normalizes an author name for comparison:
//   - Converts to lowercase
//   - Reorders "Last, First" to "First Last"
//   - Removes all non-letter, non-space characters
//   - Collapses whitespace
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}

	if idx := strings.Index(name, ","); idx >= 0 {
		last := strings.TrimSpace(name[:idx])
		first := strings.TrimSpace(name[idx+1:])
		if first != "" {
			name = first + " " + last
		} else {
			name = last
		}
	}

	var sb strings.Builder
	sb.Grow(len(name))
	prevSpace := false
	for _, r := range name {
		switch {
		case unicode.IsLetter(r):
			sb.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r):
			if !prevSpace && sb.Len() > 0 {
				sb.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	return strings.TrimRight(sb.String(), " ")
}

func surname(normalized string) string {
	parts := strings.Fields(normalized)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// nameSimilarity compares two normalized author names.
//
//   - Same last name, same given names: 1.0
//   - Same last name, one given name is a matching initial: 0.9
//   - Same last name, one side has no given name: 0.7
//   - Same last name, different given names: 0.3
//   - Different last names: 0.0
func nameSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}

	partsA := strings.Fields(a)
	partsB := strings.Fields(b)
	if partsA[len(partsA)-1] != partsB[len(partsB)-1] {
		return 0.0
	}

	firstA := partsA[:len(partsA)-1]
	firstB := partsB[:len(partsB)-1]
	if len(firstA) == 0 || len(firstB) == 0 {
		return 0.7
	}
	if strings.Join(firstA, " ") == strings.Join(firstB, " ") {
		return 1.0
	}
	if isInitialMatch(firstA[0], firstB[0]) {
		return 0.9
	}
	return 0.3
}

func isInitialMatch(a, b string) bool {
	if len(a) == 1 && len(b) > 1 && a[0] == b[0] {
		return true
	}
	return len(b) == 1 && len(a) > 1 && b[0] == a[0]
}

func normalizeAuthors(authors []domain.Author) []string {
	result := make([]string, len(authors))
	for i, a := range authors {
		result[i] = NormalizeName(a.Name)
	}
	return result
}
