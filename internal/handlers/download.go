// download.go serves converted documents as file downloads.
//
// Supported formats:
//   - xml  (default) the converted XML, whole document or one page
//   - json the conversion record with its XML and statistics
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/document"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/models"
)

// DownloadConversion sends the converted XML as an attachment.
// GET /api/v1/conversions/:id/download?page=N&format=xml|json
func (h *Handler) DownloadConversion(c *gin.Context) {
	format := c.DefaultQuery("format", "xml")
	if format != "xml" && format != "json" {
		respondError(c, http.StatusBadRequest, "invalid_format", "Supported formats: xml, json")
		return
	}

	conv, ok := h.loadOwned(c)
	if !ok {
		return
	}
	if conv.Status != models.StatusCompleted {
		respondError(c, http.StatusNotFound, "not_ready",
			"Conversion is not completed (status: "+string(conv.Status)+")")
		return
	}

	total := fullPageCount(conv)
	page := requestedPage(c, total)
	content := document.View(conv.ConvertedXML, page, total)
	name := downloadName(conv.Filename, page)

	switch format {
	case "xml":
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xml"`, name))
		c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(content))
	case "json":
		exportJSON(c, conv, content, page, name)
	}
}

// downloadName builds "converted-<name>[-pageN]" from the upload name.
func downloadName(filename string, page int) string {
	base := sanitizeFilename(strings.TrimSuffix(filename, filepath.Ext(filename)))
	if base == "" {
		base = "document"
	}
	name := "converted-" + base
	if page > 0 {
		name += fmt.Sprintf("-page%d", page)
	}
	return name
}

func exportJSON(c *gin.Context, conv *models.Conversion, content string, page int, name string) {
	exportData := map[string]interface{}{
		"id":             conv.ID,
		"filename":       conv.Filename,
		"structure_type": conv.StructureType,
		"page_count":     conv.PageCount,
		"statistics":     conv.Statistics(),
		"metadata":       conv.Metadata,
		"xml":            content,
		"created_at":     conv.CreatedAt,
	}
	if page > 0 {
		exportData["page"] = page
	}

	jsonBytes, err := json.MarshalIndent(exportData, "", "  ")
	if err != nil {
		respondError(c, http.StatusInternalServerError, "export_error", "Failed to generate JSON export")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.json"`, name))
	c.Data(http.StatusOK, "application/json; charset=utf-8", jsonBytes)
}

// sanitizeFilename removes characters that aren't safe in a
// Content-Disposition filename.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", "*", "-",
		"?", "-", "\"", "-", "<", "-", ">", "-",
		"|", "-", "\n", " ", "\r", "",
	)
	name = replacer.Replace(name)

	for strings.Contains(name, "  ") {
		name = strings.ReplaceAll(name, "  ", " ")
	}
	for strings.Contains(name, "--") {
		name = strings.ReplaceAll(name, "--", "-")
	}

	name = strings.TrimSpace(name)
	if len(name) > 100 {
		name = name[:100]
	}
	return name
}
