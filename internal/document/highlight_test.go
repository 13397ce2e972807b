package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildHighlights_Interleaves(t *testing.T) {
	text := "the cat sat on the mat"
	spans := BuildHighlights(text, "at", 9)

	want := []Span{
		{Kind: SpanPlain, Text: "the c", Offset: 0},
		{Kind: SpanMatch, Text: "at", Offset: 5},
		{Kind: SpanPlain, Text: " s", Offset: 7},
		{Kind: SpanMatch, Text: "at", Offset: 9, IsCurrent: true},
		{Kind: SpanPlain, Text: " on the m", Offset: 11},
		{Kind: SpanMatch, Text: "at", Offset: 20},
	}
	assert.Equal(t, want, spans)
	assert.Equal(t, 3, MatchCount(spans))
}

func TestBuildHighlights_ReassemblesText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		query string
	}{
		{"xml", `<page number="1"><p>Page one</p></page>`, "page"},
		{"regex metacharacters", "cost is $5.00 (approx.) [est]", "(approx.)"},
		{"unicode", "Größe und GRÖSSE", "größe"},
		{"no match", "nothing here", "zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spans := BuildHighlights(tt.text, tt.query, NoSelection)
			var sb strings.Builder
			for _, s := range spans {
				sb.WriteString(s.Text)
				assert.False(t, s.IsCurrent)
			}
			assert.Equal(t, tt.text, sb.String())
		})
	}
}

func TestBuildHighlights_LiteralQuery(t *testing.T) {
	spans := BuildHighlights("a.c abc a.c", "a.c", NoSelection)
	assert.Equal(t, 2, MatchCount(spans), "dot is matched literally")
}

func TestBuildHighlights_CaseInsensitive(t *testing.T) {
	spans := BuildHighlights("Cat CAT cat", "cAt", 4)
	require.Equal(t, 3, MatchCount(spans))

	var currents []string
	for _, s := range spans {
		if s.IsCurrent {
			currents = append(currents, s.Text)
		}
	}
	assert.Equal(t, []string{"CAT"}, currents)
}

func TestBuildHighlights_EmptyInputs(t *testing.T) {
	assert.Equal(t, []Span{{Kind: SpanPlain, Text: "abc"}}, BuildHighlights("abc", "", 0))
	assert.Equal(t, []Span{}, BuildHighlights("", "abc", 0))
}

func TestBuildHighlights_NonOverlapping(t *testing.T) {
	// search reports overlapping offsets, highlighting does not
	assert.Equal(t, []int{0, 1, 2}, Search("aaaa", "aa"))
	assert.Equal(t, 2, MatchCount(BuildHighlights("aaaa", "aa", NoSelection)))
}

func TestBuildHighlights_SentinelLikeContent(t *testing.T) {
	text := "###HIGHLIGHT_START### literal ###HIGHLIGHT_END###"
	spans := BuildHighlights(text, "literal", NoSelection)

	require.Len(t, spans, 3)
	assert.Equal(t, "###HIGHLIGHT_START### ", spans[0].Text)
	assert.Equal(t, "literal", spans[1].Text)
	assert.Equal(t, " ###HIGHLIGHT_END###", spans[2].Text)
}
