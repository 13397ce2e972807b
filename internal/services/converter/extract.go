package converter

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/sirupsen/logrus"
)

// Page is the positioned text of one PDF page.
type Page struct {
	Number int
	Lines  []Line
	Images int
}

// Line is one visual row of text. Cells holds the row split at wide
// horizontal gaps; a plain line has a single cell.
type Line struct {
	Text     string
	Cells    []string
	X, Y     float64
	FontSize float64
}

// Gaps between glyphs, in multiples of the font size.
const (
	wordGap = 0.15
	cellGap = 2.5
)

// extract reads every page. The pdf library panics on some malformed
// inputs, so a panic is turned into an error.
func extract(ctx context.Context, data []byte, logger *logrus.Logger) (pages []Page, meta Metadata, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to parse PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("failed to open PDF: %w", err)
	}

	meta = readMetadata(reader.Trailer().Key("Info"))

	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, Metadata{}, err
		}

		p := reader.Page(i)
		page := Page{Number: i}
		if !p.V.IsNull() {
			page.Lines = pageLines(p, logger.WithField("page", i))
			page.Images = countImages(p.Resources())
		}
		pages = append(pages, page)
	}

	return pages, meta, nil
}

func readMetadata(info pdf.Value) Metadata {
	if info.IsNull() {
		return Metadata{}
	}
	get := func(k string) string { return strings.TrimSpace(info.Key(k).Text()) }
	return Metadata{
		Title:    get("Title"),
		Author:   get("Author"),
		Subject:  get("Subject"),
		Creator:  get("Creator"),
		Producer: get("Producer"),
	}
}

// pageLines returns the page's rows top to bottom. When row extraction
// fails the plain text is used, one line per text line, without positions.
func pageLines(p pdf.Page, log *logrus.Entry) (lines []Line) {
	rows, err := safeRows(p)
	if err == nil {
		for _, row := range rows {
			if line, ok := buildLine(row.Content, float64(row.Position)); ok {
				lines = append(lines, line)
			}
		}
		sort.SliceStable(lines, func(i, j int) bool { return lines[i].Y > lines[j].Y })
		return lines
	}

	log.WithError(err).Warn("⚠️  Row extraction failed, falling back to plain text")
	text, err := p.GetPlainText(nil)
	if err != nil {
		log.WithError(err).Warn("⚠️  Page has no extractable text")
		return nil
	}
	for _, s := range strings.Split(text, "\n") {
		if s = strings.TrimSpace(s); s != "" {
			lines = append(lines, Line{Text: s, Cells: []string{s}})
		}
	}
	return lines
}

func safeRows(p pdf.Page) (rows pdf.Rows, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("row extraction panicked: %v", r)
		}
	}()
	return p.GetTextByRow()
}

// buildLine joins the glyph runs of a row, inserting spaces at word gaps
// and splitting cells at wide gaps.
func buildLine(texts pdf.TextHorizontal, y float64) (Line, bool) {
	if len(texts) == 0 {
		return Line{}, false
	}
	sorted := make([]pdf.Text, len(texts))
	copy(sorted, texts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	var cells []string
	var cur strings.Builder
	var size float64
	prevEnd := math.NaN()

	for _, t := range sorted {
		if t.FontSize > size {
			size = t.FontSize
		}
		if !math.IsNaN(prevEnd) {
			gap := t.X - prevEnd
			fs := t.FontSize
			if fs <= 0 {
				fs = 10
			}
			switch {
			case gap > fs*cellGap:
				if s := strings.TrimSpace(cur.String()); s != "" {
					cells = append(cells, s)
				}
				cur.Reset()
			case gap > fs*wordGap && !strings.HasSuffix(cur.String(), " ") && !strings.HasPrefix(t.S, " "):
				cur.WriteByte(' ')
			}
		}
		cur.WriteString(t.S)
		prevEnd = t.X + t.W
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		cells = append(cells, s)
	}
	if len(cells) == 0 {
		return Line{}, false
	}

	return Line{
		Text:     strings.Join(cells, " "),
		Cells:    cells,
		X:        sorted[0].X,
		Y:        y,
		FontSize: size,
	}, true
}

// countImages counts image XObjects in a page's resource dictionary.
func countImages(resources pdf.Value) int {
	xobjects := resources.Key("XObject")
	if xobjects.IsNull() {
		return 0
	}
	n := 0
	for _, name := range xobjects.Keys() {
		if xobjects.Key(name).Key("Subtype").Name() == "Image" {
			n++
		}
	}
	return n
}
