// conversions.go handles PDF upload and conversion record endpoints.
//
// POST   /api/v1/conversions        Upload a PDF and convert it
// GET    /api/v1/conversions        List the caller's conversions
// GET    /api/v1/conversions/:id    Get one conversion (optionally one page)
// DELETE /api/v1/conversions/:id    Delete a conversion
// GET    /api/v1/stats              Per-user summary
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/document"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/middleware"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/models"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/services/worker"
)

// SubmitConversion accepts a PDF upload and queues it for conversion.
// POST /api/v1/conversions
//
// If the job finishes within the configured sync wait the result is
// returned inline (200); otherwise the caller gets 202 and polls.
func (h *Handler) SubmitConversion(c *gin.Context) {
	userID := middleware.GetUserID(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.Opts.MaxUploadSize)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request",
			fmt.Sprintf("No PDF file provided. Upload a file with the field name 'file'. Max size: %dMB.", h.Opts.MaxUploadSize>>20))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".pdf" {
		respondError(c, http.StatusBadRequest, "invalid_file_type",
			fmt.Sprintf("Unsupported file format '%s'. Only .pdf files are accepted.", ext))
		return
	}

	structure, ok := models.ParseStructureType(c.PostForm("structure_type"))
	if !ok {
		respondError(c, http.StatusBadRequest, "invalid_structure_type",
			"structure_type must be one of: basic, enhanced, full")
		return
	}

	// The PDF reader needs random access, so the whole file is read.
	data, err := io.ReadAll(file)
	if err != nil {
		respondError(c, http.StatusBadRequest, "read_error", "Failed to read uploaded file")
		return
	}

	pageCount, err := h.Inspect(data)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_pdf", err.Error())
		return
	}

	conv := &models.Conversion{
		UserID:         userID,
		Filename:       header.Filename,
		StoredFilename: uuid.New().String() + ".pdf",
		FileSize:       int64(len(data)),
		StructureType:  structure,
		Status:         models.StatusPending,
		PageCount:      pageCount,
		Tags:           splitTags(c.PostForm("tags")),
	}

	ctx := c.Request.Context()
	if err := h.Store.CreateConversion(ctx, conv); err != nil {
		h.Logger.WithError(err).Error("❌ Failed to create conversion")
		respondError(c, http.StatusInternalServerError, "database_error", "Failed to create conversion record")
		return
	}

	err = h.Worker.Submit(worker.Job{
		ConversionID: conv.ID,
		UserID:       userID,
		Filename:     conv.Filename,
		Structure:    structure,
		Data:         data,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		conv.Status = models.StatusFailed
		conv.ErrorMessage = err.Error()
		if uerr := h.Store.UpdateConversion(ctx, conv); uerr != nil {
			h.Logger.WithError(uerr).Warn("⚠️  Failed to mark rejected conversion as failed")
		}
		if errors.Is(err, worker.ErrQueueFull) {
			respondError(c, http.StatusServiceUnavailable, "queue_full", "The conversion queue is full. Please try again later.")
		} else {
			respondError(c, http.StatusServiceUnavailable, "shutting_down", "The server is shutting down. Please try again later.")
		}
		return
	}

	h.Logger.WithFields(logrus.Fields{
		"conversion_id": conv.ID,
		"filename":      conv.Filename,
		"structure":     structure,
		"pages":         pageCount,
	}).Info("📥 Conversion queued")

	waitCtx, cancel := context.WithTimeout(ctx, h.Opts.SyncWait)
	defer cancel()
	if !h.Worker.Wait(waitCtx, conv.ID) {
		c.JSON(http.StatusAccepted, models.SubmitResponse{ConversionID: conv.ID, Status: models.StatusPending})
		return
	}

	done, err := h.Store.GetConversion(ctx, conv.ID)
	if err != nil {
		h.storeError(c, err, "conversion")
		return
	}

	switch done.Status {
	case models.StatusCompleted:
		c.JSON(http.StatusOK, models.ConvertResult{
			ConversionID: done.ID,
			XML:          done.ConvertedXML,
			PageCount:    done.PageCount,
			Statistics:   done.Statistics(),
		})
	case models.StatusFailed:
		respondError(c, http.StatusUnprocessableEntity, "conversion_failed", done.ErrorMessage)
	default:
		c.JSON(http.StatusAccepted, models.SubmitResponse{ConversionID: done.ID, Status: done.Status})
	}
}

func splitTags(s string) []string {
	tags := []string{}
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// ListConversions returns a paginated list of the caller's conversions.
// GET /api/v1/conversions?page=1&per_page=10&status=COMPLETED&search=report
func (h *Handler) ListConversions(c *gin.Context) {
	var params models.ConversionListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_params", err.Error())
		return
	}
	params.UserID = middleware.GetUserID(c)

	if params.Status != "" && !models.ValidStatus(params.Status) {
		respondError(c, http.StatusBadRequest, "invalid_params", "status must be one of: PENDING, PROCESSING, COMPLETED, FAILED")
		return
	}
	if params.StructureType != "" {
		if _, ok := models.ParseStructureType(params.StructureType); !ok {
			respondError(c, http.StatusBadRequest, "invalid_params", "structure_type must be one of: basic, enhanced, full")
			return
		}
	}
	if _, _, err := params.DateRange(); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_params", err.Error())
		return
	}
	params.Normalize()

	conversions, total, err := h.Store.ListConversions(c.Request.Context(), params)
	if err != nil {
		h.Logger.WithError(err).Error("❌ Failed to list conversions")
		respondError(c, http.StatusInternalServerError, "database_error", "Failed to list conversions")
		return
	}
	if conversions == nil {
		conversions = []models.Conversion{}
	}

	c.JSON(http.StatusOK, models.PaginatedResponse[models.Conversion]{
		Data:       conversions,
		Page:       params.Page,
		PerPage:    params.PerPage,
		TotalItems: total,
		TotalPages: int(math.Ceil(float64(total) / float64(params.PerPage))),
	})
}

// loadOwned fetches a conversion and hides other users' records behind 404.
func (h *Handler) loadOwned(c *gin.Context) (*models.Conversion, bool) {
	conv, err := h.Store.GetConversion(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.storeError(c, err, "conversion")
		return nil, false
	}
	if conv.UserID != middleware.GetUserID(c) {
		respondError(c, http.StatusNotFound, "not_found", "conversion not found")
		return nil, false
	}
	return conv, true
}

// fullPageCount prefers the stored count and falls back to counting page
// elements in the XML.
func fullPageCount(conv *models.Conversion) int {
	if conv.PageCount > 0 {
		return conv.PageCount
	}
	return document.PageCount(conv.ConvertedXML)
}

// requestedPage parses ?page. It returns 0 when the parameter is missing,
// unparsable, or outside [1, pageCount]; callers then use the full document.
func requestedPage(c *gin.Context, pageCount int) int {
	n, err := strconv.Atoi(c.Query("page"))
	if err != nil || pageCount <= 1 || !document.InRange(n, pageCount) {
		return 0
	}
	return n
}

// GetConversion returns a conversion with its XML.
// GET /api/v1/conversions/:id?page=2
func (h *Handler) GetConversion(c *gin.Context) {
	conv, ok := h.loadOwned(c)
	if !ok {
		return
	}

	total := fullPageCount(conv)
	page := requestedPage(c, total)

	c.JSON(http.StatusOK, models.ConversionResponse{
		Conversion: models.ConversionDetail{
			Conversion: *conv,
			XMLContent: document.View(conv.ConvertedXML, page, total),
		},
		FullPageCount: total,
		Page:          page,
		Statistics:    conv.Statistics(),
	})
}

// DeleteConversion removes one of the caller's conversions.
// DELETE /api/v1/conversions/:id
func (h *Handler) DeleteConversion(c *gin.Context) {
	conv, ok := h.loadOwned(c)
	if !ok {
		return
	}
	if err := h.Store.DeleteConversion(c.Request.Context(), conv.ID); err != nil {
		h.storeError(c, err, "conversion")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Conversion deleted"})
}

// GetStats summarizes the caller's conversions.
// GET /api/v1/stats
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.Store.ConversionStats(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.Logger.WithError(err).Error("❌ Failed to load stats")
		respondError(c, http.StatusInternalServerError, "database_error", "Failed to load stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}
