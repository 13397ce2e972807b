package document

import (
	"regexp"
	"unicode/utf8"
)

// SpanKind distinguishes plain text from a query match.
type SpanKind string

const (
	SpanPlain SpanKind = "plain"
	SpanMatch SpanKind = "match"
)

// Span is one run of highlighted output. Offset is the rune offset of the
// span's first character in the source text.
type Span struct {
	Kind      SpanKind `json:"kind"`
	Text      string   `json:"text"`
	Offset    int      `json:"offset"`
	IsCurrent bool     `json:"is_current,omitempty"`
}

// BuildHighlights splits text into plain and match spans for query. Matches
// are case-insensitive, literal and non-overlapping. The match starting at
// rune offset current is flagged IsCurrent; pass NoSelection for none.
//
// If building spans fails for any reason the whole text comes back as a
// single plain span.
func BuildHighlights(text, query string, current int) (spans []Span) {
	defer func() {
		if r := recover(); r != nil {
			spans = plainSpans(text)
		}
	}()

	if query == "" || text == "" {
		return plainSpans(text)
	}

	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(query))
	if err != nil {
		return plainSpans(text)
	}

	locs := re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return plainSpans(text)
	}

	spans = make([]Span, 0, 2*len(locs)+1)
	last := 0     // byte position
	lastRune := 0 // rune offset of last
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		if start == end {
			continue
		}
		startRune := lastRune + utf8.RuneCountInString(text[last:start])
		if start > last {
			spans = append(spans, Span{Kind: SpanPlain, Text: text[last:start], Offset: lastRune})
		}
		spans = append(spans, Span{
			Kind:      SpanMatch,
			Text:      text[start:end],
			Offset:    startRune,
			IsCurrent: current >= 0 && startRune == current,
		})
		last = end
		lastRune = startRune + utf8.RuneCountInString(text[start:end])
	}
	if last < len(text) {
		spans = append(spans, Span{Kind: SpanPlain, Text: text[last:], Offset: lastRune})
	}
	return spans
}

// MatchCount counts match spans.
func MatchCount(spans []Span) int {
	n := 0
	for _, s := range spans {
		if s.Kind == SpanMatch {
			n++
		}
	}
	return n
}

func plainSpans(text string) []Span {
	if text == "" {
		return []Span{}
	}
	return []Span{{Kind: SpanPlain, Text: text}}
}
