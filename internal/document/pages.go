// Package document implements the paged XML document store: page
// extraction, plain-text search, search navigation, highlight spans and
// scroll positioning over a converted XML document.
//
// A converted document is one XML string that contains zero or more page
// segments delimited by the literal tags `<page number="N">` and `</page>`.
// Everything in this package is pure with respect to its inputs, except the
// navigation Cursor, which is explicit single-owner state.
package document

import (
	"strconv"
	"strings"
)

// XMLDeclaration is prepended to every standalone page document.
const XMLDeclaration = `<?xml version="1.0" encoding="UTF-8"?>`

const (
	pageStartPrefix = `<page number="`
	pageEndTag      = `</page>`
)

// PageStartTag returns the literal start tag for page n.
func PageStartTag(n int) string {
	return pageStartPrefix + strconv.Itoa(n) + `">`
}

// ExtractPage returns page n of doc as an independent XML document:
// declaration, a <document> root, and the page segment from its start tag
// through the following </page> inclusive.
//
// If the start tag or a closing tag after it cannot be found, doc is
// returned unchanged. ExtractPage does not range-check n; callers that know
// the page count should do that first.
func ExtractPage(doc string, n int) string {
	start := strings.Index(doc, PageStartTag(n))
	if start == -1 {
		return doc
	}

	rel := strings.Index(doc[start:], pageEndTag)
	if rel == -1 {
		return doc
	}
	end := start + rel + len(pageEndTag)

	var sb strings.Builder
	sb.Grow(len(XMLDeclaration) + (end - start) + 32)
	sb.WriteString(XMLDeclaration)
	sb.WriteString("\n<document>\n")
	sb.WriteString(doc[start:end])
	sb.WriteString("\n</document>")
	return sb.String()
}

// PageCount counts the page segments in doc. A document without page tags
// is a single implicit page, so the result is always at least 1.
func PageCount(doc string) int {
	n := strings.Count(doc, pageStartPrefix)
	if n < 1 {
		return 1
	}
	return n
}

// InRange reports whether n is a valid page number for a document with
// pageCount pages.
func InRange(n, pageCount int) bool {
	return n >= 1 && n <= pageCount
}

// View returns the text a viewer shows for the requested page. Pages outside
// [1, pageCount] (including 0, meaning "whole document") and single-page
// documents return doc itself.
func View(doc string, page, pageCount int) string {
	if pageCount <= 1 || !InRange(page, pageCount) {
		return doc
	}
	return ExtractPage(doc, page)
}
