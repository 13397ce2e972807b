package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/document"
)

var (
	matchColor   = color.New(color.Bold, color.FgYellow)
	currentColor = color.New(color.Bold, color.FgBlack, color.BgYellow)
)

// renderSpans prints highlighted text: matches in yellow, the current
// match inverted. Colors are dropped when stdout is not a terminal.
func renderSpans(w io.Writer, spans []document.Span) {
	for _, s := range spans {
		switch {
		case s.IsCurrent:
			currentColor.Fprint(w, s.Text)
		case s.Kind == document.SpanMatch:
			matchColor.Fprint(w, s.Text)
		default:
			fmt.Fprint(w, s.Text)
		}
	}
	fmt.Fprintln(w)
}
