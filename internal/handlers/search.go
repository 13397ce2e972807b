// search.go serves in-document search with highlight spans.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/document"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/models"
)

// SearchConversion finds case-insensitive literal matches of q in the
// conversion's XML, or in one page of it.
// GET /api/v1/conversions/:id/search?q=invoice&page=2&current=1
//
// current selects a match by index and wraps around, so a client can step
// through results by sending current+1 or current-1. Without it the first
// match is selected.
func (h *Handler) SearchConversion(c *gin.Context) {
	conv, ok := h.loadOwned(c)
	if !ok {
		return
	}

	total := fullPageCount(conv)
	page := requestedPage(c, total)
	query := c.Query("q")

	session := document.NewSession(document.View(conv.ConvertedXML, page, total), h.Opts.Metrics)
	session.SetQuery(query)

	cursor := session.Cursor()
	if n := cursor.Len(); n > 0 {
		if i, err := strconv.Atoi(c.Query("current")); err == nil {
			cursor.Select(((i % n) + n) % n)
		}
	}

	offsets := cursor.Results()

	c.JSON(http.StatusOK, models.SearchResponse{
		Query:        query,
		Page:         page,
		Offsets:      offsets,
		Count:        len(offsets),
		Current:      cursor.Index(),
		ScrollOffset: session.ScrollOffset(),
		Spans:        session.Highlights(),
	})
}
