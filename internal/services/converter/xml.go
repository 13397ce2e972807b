package converter

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/document"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/models"
)

var listMarker = regexp.MustCompile(`^(?:[•◦▪‣∙·\-\*–]|\(?\d{1,3}[.)]|\(?[a-zA-Z][.)])\s+`)

// blockKind classifies a run of lines in the enhanced and full structures.
type blockKind int

const (
	blockParagraph blockKind = iota
	blockHeading
	blockList
	blockTable
)

type block struct {
	kind  blockKind
	level int // heading level
	lines []Line
}

// BuildDocument renders pages as XML. Every page is wrapped in exactly
// <page number="N"> ... </page> so page extraction can find it. The
// returned statistics have no processing time.
func BuildDocument(pages []Page, structure models.StructureType, meta Metadata) (string, models.Statistics) {
	if structure == "" {
		structure = models.DefaultStructureType
	}

	var stats models.Statistics
	var sb strings.Builder

	sb.WriteString(document.XMLDeclaration)
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "<document structure=%q pages=\"%d\">\n", structure, len(pages))

	if structure == models.StructureFull {
		writeMetadata(&sb, meta)
	}

	body := bodyFontSize(pages)

	for _, p := range pages {
		sb.WriteString(document.PageStartTag(p.Number))
		sb.WriteString("\n")

		for _, l := range p.Lines {
			stats.CharacterCount += utf8.RuneCountInString(l.Text)
			stats.WordCount += len(strings.Fields(l.Text))
		}

		if structure == models.StructureBasic {
			for _, l := range p.Lines {
				fmt.Fprintf(&sb, "  <text x=\"%.1f\" y=\"%.1f\">%s</text>\n", l.X, l.Y, escape(l.Text))
			}
		} else {
			for _, b := range groupBlocks(p.Lines, body, structure == models.StructureFull) {
				writeBlock(&sb, b, &stats)
			}
		}

		if structure == models.StructureFull && p.Images > 0 {
			stats.DetectedImages += p.Images
			fmt.Fprintf(&sb, "  <images count=\"%d\"/>\n", p.Images)
		}

		sb.WriteString("</page>\n")
	}

	sb.WriteString("</document>\n")
	return sb.String(), stats
}

func writeMetadata(sb *strings.Builder, m Metadata) {
	fields := []struct{ name, val string }{
		{"title", m.Title}, {"author", m.Author}, {"subject", m.Subject},
		{"creator", m.Creator}, {"producer", m.Producer},
	}
	sb.WriteString("<metadata>\n")
	for _, f := range fields {
		if f.val != "" {
			fmt.Fprintf(sb, "  <%s>%s</%s>\n", f.name, escape(f.val), f.name)
		}
	}
	sb.WriteString("</metadata>\n")
}

func writeBlock(sb *strings.Builder, b block, stats *models.Statistics) {
	switch b.kind {
	case blockHeading:
		stats.DetectedHeadings++
		fmt.Fprintf(sb, "  <heading level=\"%d\">%s</heading>\n", b.level, escape(joinLines(b.lines)))
	case blockList:
		stats.DetectedLists++
		sb.WriteString("  <list>\n")
		for _, l := range b.lines {
			item := listMarker.ReplaceAllString(l.Text, "")
			fmt.Fprintf(sb, "    <item>%s</item>\n", escape(item))
		}
		sb.WriteString("  </list>\n")
	case blockTable:
		stats.DetectedTables++
		sb.WriteString("  <table>\n")
		for _, l := range b.lines {
			sb.WriteString("    <row>")
			for _, c := range l.Cells {
				fmt.Fprintf(sb, "<cell>%s</cell>", escape(c))
			}
			sb.WriteString("</row>\n")
		}
		sb.WriteString("  </table>\n")
	default:
		fmt.Fprintf(sb, "  <paragraph>%s</paragraph>\n", escape(joinLines(b.lines)))
	}
}

// groupBlocks walks a page's lines top to bottom. Consecutive list items
// form one list, consecutive multi-cell rows form one table (tables only
// when detectTables is set), and body lines merge into a paragraph until a
// vertical gap breaks it.
func groupBlocks(lines []Line, body float64, detectTables bool) []block {
	var blocks []block
	var cur *block

	flush := func() {
		if cur != nil {
			blocks = append(blocks, *cur)
			cur = nil
		}
	}

	for i, l := range lines {
		kind, level := classify(l, body)
		if detectTables && len(l.Cells) >= 2 && (hasCells(lines, i-1) || hasCells(lines, i+1)) {
			kind = blockTable
		}

		if cur != nil && cur.kind == kind && kind != blockHeading {
			if kind != blockParagraph || !paragraphBreak(lines[i-1], l) {
				cur.lines = append(cur.lines, l)
				continue
			}
		}
		flush()
		cur = &block{kind: kind, level: level, lines: []Line{l}}
	}
	flush()
	return blocks
}

func hasCells(lines []Line, i int) bool {
	return i >= 0 && i < len(lines) && len(lines[i].Cells) >= 2
}

func classify(l Line, body float64) (blockKind, int) {
	if listMarker.MatchString(l.Text) {
		return blockList, 0
	}
	words := len(strings.Fields(l.Text))
	if body > 0 && l.FontSize >= body*1.2 && words <= 12 {
		if l.FontSize >= body*1.6 {
			return blockHeading, 1
		}
		return blockHeading, 2
	}
	if words <= 8 && isUpperHeading(l.Text) {
		return blockHeading, 2
	}
	return blockParagraph, 0
}

// isUpperHeading reports whether s has letters and all of them are upper case.
func isUpperHeading(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 3
}

// paragraphBreak reports a vertical gap between two lines wider than
// one and a half lines. Lines without positions never break.
func paragraphBreak(prev, next Line) bool {
	if prev.Y == 0 && next.Y == 0 {
		return false
	}
	size := prev.FontSize
	if size <= 0 {
		size = 10
	}
	return prev.Y-next.Y > size*1.8
}

// bodyFontSize is the most common font size across the document, which is
// taken to be running text. Zero when no line has a size.
func bodyFontSize(pages []Page) float64 {
	counts := make(map[float64]int)
	for _, p := range pages {
		for _, l := range p.Lines {
			if l.FontSize > 0 {
				counts[l.FontSize] += utf8.RuneCountInString(l.Text)
			}
		}
	}
	sizes := make([]float64, 0, len(counts))
	for s := range counts {
		sizes = append(sizes, s)
	}
	sort.Float64s(sizes)

	best, bestN := 0.0, 0
	for _, s := range sizes {
		if counts[s] > bestN {
			best, bestN = s, counts[s]
		}
	}
	return best
}

func joinLines(lines []Line) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.Text
	}
	return strings.Join(parts, " ")
}

func escape(s string) string {
	var sb strings.Builder
	_ = xml.EscapeText(&sb, []byte(s))
	return sb.String()
}
