package citation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/reference-service/internal/domain"
)

func TestParse_Patterns(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		kind   domain.CitationKind
		author string
		title  string
		pages  string
	}{
		{
			name:   "author and page",
			text:   "as the poem insists (Felstiner 247).",
			kind:   domain.CitationKindAuthorPage,
			author: "Felstiner",
			pages:  "247",
		},
		{
			name:   "author italic title page",
			text:   "sovereignty (Derrida, *Sovereignties in Question* 42) remains",
			kind:   domain.CitationKindAuthorTitlePage,
			author: "Derrida",
			title:  "Sovereignties in Question",
			pages:  "42",
		},
		{
			name:   "author italic title without page",
			text:   "(Derrida, *Demeure*)",
			kind:   domain.CitationKindAuthorTitlePage,
			author: "Derrida",
			title:  "Demeure",
		},
		{
			name:   "author quoted title page",
			text:   `testimony (Derrida, "Poetics and Politics of Witnessing" 78)`,
			kind:   domain.CitationKindAuthorQuotedTitlePage,
			author: "Derrida",
			title:  "Poetics and Politics of Witnessing",
			pages:  "78",
		},
		{
			name:   "curly quoted title",
			text:   "(Derrida, “Shibboleth” 12)",
			kind:   domain.CitationKindAuthorQuotedTitlePage,
			author: "Derrida",
			title:  "Shibboleth",
			pages:  "12",
		},
		{
			name:  "title only",
			text:  "the breath-turn (*Atemwende* 78)",
			kind:  domain.CitationKindTitleOnly,
			title: "Atemwende",
			pages: "78",
		},
		{
			name:   "secondary with title",
			text:   "(qtd. in Smith, *Theory* 42)",
			kind:   domain.CitationKindSecondary,
			author: "Smith",
			title:  "Theory",
			pages:  "42",
		},
		{
			name:   "secondary without title",
			text:   "(qtd. in Smith 42)",
			kind:   domain.CitationKindSecondary,
			author: "Smith",
			pages:  "42",
		},
		{
			name:   "chicago secondary",
			text:   "(quoted in Adorno 1955, 34)",
			kind:   domain.CitationKindSecondary,
			author: "Adorno",
			pages:  "34",
		},
		{
			name:   "en dash range",
			text:   "(Felstiner 12–14)",
			kind:   domain.CitationKindAuthorPage,
			author: "Felstiner",
			pages:  "12–14",
		},
		{
			name:   "hyphenated surname and range",
			text:   "(Lacoue-Labarthe 10-12)",
			kind:   domain.CitationKindAuthorPage,
			author: "Lacoue-Labarthe",
			pages:  "10-12",
		},
		{
			name:   "chinese author",
			text:   "正如所言 (鲁迅 45)",
			kind:   domain.CitationKindAuthorPage,
			author: "鲁迅",
			pages:  "45",
		},
		{
			name:   "accented surname",
			text:   "(Éluard 9)",
			kind:   domain.CitationKindAuthorPage,
			author: "Éluard",
			pages:  "9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.text)
			require.Len(t, got, 1)
			c := got[0]
			assert.Equal(t, tt.kind, c.Kind)
			assert.Equal(t, tt.author, c.Author)
			assert.Equal(t, tt.title, c.Title)
			assert.Equal(t, tt.pages, c.Pages)
			assert.Equal(t, tt.text[c.Start:c.End], c.Raw)
			assert.True(t, strings.HasPrefix(c.Raw, "("))
			assert.True(t, strings.HasSuffix(c.Raw, ")"))
		})
	}
}

func TestParse_YearIsNotAPage(t *testing.T) {
	assert.Empty(t, Parse("published in Paris (Baudelaire 1857)."))
	assert.Empty(t, Parse("(Baudelaire 1857-1861)"))
	assert.Empty(t, Parse("(Benjamin 2099)"))

	got := Parse("(Felstiner 247)")
	require.Len(t, got, 1)
	assert.Equal(t, domain.CitationKindAuthorPage, got[0].Kind)

	// Four-digit numbers outside the year range are pages.
	got = Parse("(Proust 1799) (Proust 2100)")
	require.Len(t, got, 2)
	assert.Equal(t, "1799", got[0].Pages)
	assert.Equal(t, "2100", got[1].Pages)
}

func TestParse_SecondaryTakesPriority(t *testing.T) {
	text := "(qtd. in Smith, *Theory* 42)"
	got := Parse(text)
	require.Len(t, got, 1)
	assert.Equal(t, domain.CitationKindSecondary, got[0].Kind)
	assert.Equal(t, 0, got[0].Start)
	assert.Equal(t, len(text), got[0].End)
}

func TestParse_DocumentOrderAndOffsets(t *testing.T) {
	text := "First (Felstiner 247). Then (qtd. in Smith, *Theory* 42). " +
		"Later (*Atemwende* 78) and (Derrida, \"Demeure\" 3). Not (Baudelaire 1857)."

	got := Parse(text)
	require.Len(t, got, 4)

	wantRaw := []string{
		"(Felstiner 247)",
		"(qtd. in Smith, *Theory* 42)",
		"(*Atemwende* 78)",
		`(Derrida, "Demeure" 3)`,
	}
	for i, c := range got {
		assert.Equal(t, wantRaw[i], c.Raw)
		assert.Equal(t, strings.Index(text, wantRaw[i]), c.Start)
		assert.Equal(t, c.Start+len(wantRaw[i]), c.End)
		if i > 0 {
			assert.Less(t, got[i-1].End, c.Start)
		}
	}
}

func TestParse_NoOverlaps(t *testing.T) {
	text := "(qtd. in Smith 42) (Smith 42) (Smith, *Theory* 1) (qtd. in Smith, *Theory* 1) (*Theory* 1)"
	got := Parse(text)
	require.Len(t, got, 5)
	for i := range got {
		for j := range got {
			if i != j {
				assert.False(t, got[i].Overlaps(got[j].Start, got[j].End), "%q overlaps %q", got[i].Raw, got[j].Raw)
			}
		}
	}
}

func TestParse_Deterministic(t *testing.T) {
	text := "(Felstiner 247) (qtd. in Smith, *Theory* 42) (*Atemwende* 78) (鲁迅 45) (quoted in Adorno 1955, 34)"
	first := Parse(text)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Parse(text))
	}
}

func TestParse_Ignores(t *testing.T) {
	for _, text := range []string{
		"",
		"no citations here",
		"(see above)",
		"(lowercase 12)",
		"(Felstiner)",
		"(12)",
	} {
		assert.Empty(t, Parse(text), text)
	}
}
