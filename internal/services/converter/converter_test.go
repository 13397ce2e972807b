package converter

import (
	"context"
	"encoding/xml"
	"io"
	"strings"
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/document"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/logging"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/models"
)

func body(y float64, text string) Line {
	return Line{Text: text, Cells: []string{text}, X: 72, Y: y, FontSize: 10}
}

func samplePages() []Page {
	return []Page{
		{Number: 1, Lines: []Line{
			{Text: "Quarterly Report", Cells: []string{"Quarterly Report"}, X: 72, Y: 760, FontSize: 18},
			body(730, "Revenue grew in every region"),
			body(718, "and costs fell."),
			body(680, "A second paragraph & more."),
		}},
		{Number: 2, Lines: []Line{
			body(760, "• first point"),
			body(748, "• second point"),
			{Text: "Region Q1 Q2", Cells: []string{"Region", "Q1", "Q2"}, X: 72, Y: 700, FontSize: 10},
			{Text: "North 10 12", Cells: []string{"North", "10", "12"}, X: 72, Y: 688, FontSize: 10},
		}, Images: 2},
		{Number: 3, Lines: []Line{body(760, "The end <really>")}},
	}
}

func wellFormed(t *testing.T, s string) {
	t.Helper()
	dec := xml.NewDecoder(strings.NewReader(s))
	for {
		_, err := dec.Token()
		if err == io.EOF {
			return
		}
		require.NoError(t, err, "document must be well-formed XML")
	}
}

func TestBuildDocument_PagesAreExtractable(t *testing.T) {
	for _, st := range []models.StructureType{models.StructureBasic, models.StructureEnhanced, models.StructureFull} {
		t.Run(string(st), func(t *testing.T) {
			doc, _ := BuildDocument(samplePages(), st, Metadata{Title: "Q3 <draft>"})
			wellFormed(t, doc)
			assert.Equal(t, 3, document.PageCount(doc))

			page2 := document.ExtractPage(doc, 2)
			wellFormed(t, page2)
			assert.Contains(t, page2, "second point")
			assert.NotContains(t, page2, "Quarterly")
			assert.NotContains(t, page2, "The end")
		})
	}
}

func TestBuildDocument_Enhanced(t *testing.T) {
	doc, stats := BuildDocument(samplePages(), models.StructureEnhanced, Metadata{})

	assert.Contains(t, doc, `<document structure="enhanced" pages="3">`)
	assert.Contains(t, doc, `<heading level="1">Quarterly Report</heading>`)
	assert.Contains(t, doc, "<paragraph>Revenue grew in every region and costs fell.</paragraph>")
	assert.Contains(t, doc, "<paragraph>A second paragraph &amp; more.</paragraph>")
	assert.Contains(t, doc, "<item>first point</item>")
	assert.Contains(t, doc, "&lt;really&gt;")
	assert.NotContains(t, doc, "<table>", "tables are only detected in full structure")
	assert.NotContains(t, doc, "<metadata>")

	assert.Equal(t, 1, stats.DetectedHeadings)
	assert.Equal(t, 1, stats.DetectedLists)
	assert.Zero(t, stats.DetectedTables)
	assert.Zero(t, stats.DetectedImages)
	assert.Equal(t, 30, stats.WordCount)
}

func TestBuildDocument_Full(t *testing.T) {
	doc, stats := BuildDocument(samplePages(), models.StructureFull, Metadata{Title: "Q3", Author: "Finance"})

	assert.Contains(t, doc, "<title>Q3</title>")
	assert.Contains(t, doc, "<author>Finance</author>")
	assert.Contains(t, doc, "<row><cell>Region</cell><cell>Q1</cell><cell>Q2</cell></row>")
	assert.Contains(t, doc, `<images count="2"/>`)
	assert.Equal(t, 1, stats.DetectedTables)
	assert.Equal(t, 2, stats.DetectedImages)
}

func TestBuildDocument_Basic(t *testing.T) {
	doc, stats := BuildDocument(samplePages(), models.StructureBasic, Metadata{})

	assert.Contains(t, doc, `<text x="72.0" y="760.0">Quarterly Report</text>`)
	assert.NotContains(t, doc, "<paragraph>")
	assert.Zero(t, stats.DetectedHeadings)
	assert.Positive(t, stats.CharacterCount)
}

func TestBuildDocument_NoPages(t *testing.T) {
	doc, stats := BuildDocument(nil, "", Metadata{})
	wellFormed(t, doc)
	assert.Contains(t, doc, `structure="enhanced" pages="0"`)
	assert.Zero(t, stats.WordCount)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		line  Line
		kind  blockKind
		level int
	}{
		{"bullet", body(0, "- item"), blockList, 0},
		{"numbered", body(0, "2) second"), blockList, 0},
		{"large font", Line{Text: "Intro", FontSize: 13}, blockHeading, 2},
		{"very large font", Line{Text: "Title", FontSize: 20}, blockHeading, 1},
		{"upper case", body(0, "TERMS AND CONDITIONS"), blockHeading, 2},
		{"short upper is not a heading", body(0, "OK"), blockParagraph, 0},
		{"body", body(0, "Just some text."), blockParagraph, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, level := classify(tt.line, 10)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.level, level)
		})
	}
}

func TestBuildLine(t *testing.T) {
	texts := pdf.TextHorizontal{
		{S: "W", X: 100, W: 6, FontSize: 10},
		{S: "He", X: 72, W: 10, FontSize: 10},
		{S: "llo", X: 82, W: 12, FontSize: 10},
		{S: "orld", X: 106, W: 16, FontSize: 10},
		{S: "42", X: 200, W: 10, FontSize: 12},
	}
	line, ok := buildLine(texts, 700)
	require.True(t, ok)
	assert.Equal(t, []string{"Hello World", "42"}, line.Cells)
	assert.Equal(t, "Hello World 42", line.Text)
	assert.Equal(t, 72.0, line.X)
	assert.Equal(t, 12.0, line.FontSize)

	_, ok = buildLine(nil, 0)
	assert.False(t, ok)
}

func TestValidatePDF(t *testing.T) {
	assert.True(t, ValidatePDF([]byte("%PDF-1.7\n...")))
	assert.False(t, ValidatePDF([]byte("%PD")))
	assert.False(t, ValidatePDF([]byte("<html>")))
}

func TestConvert_RejectsGarbage(t *testing.T) {
	c := New(logging.Discard())
	_, err := c.Convert(context.Background(), []byte("%PDF-1.4 not really"), models.StructureBasic)
	assert.Error(t, err)

	_, err = PageCount([]byte("%PDF-1.4 not really"))
	assert.Error(t, err)
}
