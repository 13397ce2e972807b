package document

import (
	"github.com/mattn/go-runewidth"
)

// Metrics describes how the viewer renders text. Text is laid out
// pre-wrap: explicit newlines break lines and long lines wrap at Columns.
type Metrics struct {
	LineHeight int // pixels per rendered line
	Columns    int // display columns before a line wraps
	TabWidth   int // columns per tab stop
	Margin     int // pixels of context kept above the target; zero keeps none
}

// DefaultMetrics matches the viewer's monospace <pre> block.
var DefaultMetrics = Metrics{
	LineHeight: 20,
	Columns:    120,
	TabWidth:   8,
	Margin:     100,
}

func (m Metrics) normalized() Metrics {
	if m.LineHeight <= 0 {
		m.LineHeight = DefaultMetrics.LineHeight
	}
	if m.Columns <= 0 {
		m.Columns = DefaultMetrics.Columns
	}
	if m.TabWidth <= 0 {
		m.TabWidth = DefaultMetrics.TabWidth
	}
	if m.Margin < 0 {
		m.Margin = 0
	}
	return m
}

// ScrollOffset estimates the vertical scroll position, in pixels, that
// brings the rune at offset into view. The prefix text[:offset] is measured
// as rendered lines, multiplied by the line height and reduced by the
// margin. The result is approximate and never negative.
func ScrollOffset(text string, offset int, m Metrics) int {
	m = m.normalized()
	lines := MeasureLines(prefixRunes(text, offset), m)
	pos := lines*m.LineHeight - m.Margin
	if pos < 0 {
		return 0
	}
	return pos
}

// MeasureLines returns how many rendered lines s occupies. An empty string
// occupies none.
func MeasureLines(s string, m Metrics) int {
	if s == "" {
		return 0
	}
	m = m.normalized()

	lines := 1
	col := 0
	for _, r := range s {
		switch r {
		case '\n':
			lines++
			col = 0
			continue
		case '\r':
			continue
		case '\t':
			w := m.TabWidth - col%m.TabWidth
			if col+w > m.Columns {
				lines++
				col = 0
				w = m.TabWidth
			}
			col += w
			continue
		}

		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		if col+w > m.Columns {
			lines++
			col = 0
		}
		col += w
	}
	return lines
}

func prefixRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
