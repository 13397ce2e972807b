package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/document"
)

func TestRenderSpans(t *testing.T) {
	spans := document.BuildHighlights("tax and more tax", "tax", 13)

	prev := color.NoColor
	t.Cleanup(func() { color.NoColor = prev })

	color.NoColor = true
	var plain bytes.Buffer
	renderSpans(&plain, spans)
	assert.Equal(t, "tax and more tax\n", plain.String())

	color.NoColor = false
	var colored bytes.Buffer
	renderSpans(&colored, spans)
	out := colored.String()
	assert.Equal(t, 1, strings.Count(out, "\x1b[1;33m"), "the other match is yellow")
	assert.Contains(t, out, "\x1b[1;30;43mtax", "current match is inverted")
}
