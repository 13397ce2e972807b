// Package handlers contains HTTP handler functions for the API.
//
// Handlers are methods on a Handler struct that holds the shared
// dependencies (store, worker pool, logger), injected once at startup.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/database"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/document"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/models"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/services/converter"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/services/worker"
)

// Version is reported by the health check.
var Version = "dev"

// Options tune request handling.
type Options struct {
	MaxUploadSize int64         // Largest accepted PDF in bytes
	SyncWait      time.Duration // How long a submit waits for an inline result
	Metrics       document.Metrics
}

// Handler holds shared dependencies for all HTTP handlers.
type Handler struct {
	Store  database.Store
	Worker *worker.Pool
	Logger *logrus.Logger
	Opts   Options

	// Inspect validates an upload and returns its page count.
	Inspect func(data []byte) (int, error)
}

// NewHandler creates a new handler with all dependencies.
func NewHandler(store database.Store, wp *worker.Pool, logger *logrus.Logger, opts Options) *Handler {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = 50 << 20
	}
	return &Handler{
		Store:   store,
		Worker:  wp,
		Logger:  logger,
		Opts:    opts,
		Inspect: inspectPDF,
	}
}

func inspectPDF(data []byte) (int, error) {
	if !converter.ValidatePDF(data) {
		return 0, errors.New("the uploaded file does not appear to be a valid PDF")
	}
	return converter.PageCount(data)
}

// HealthCheck returns the API health status.
// GET /api/v1/health
func (h *Handler) HealthCheck(c *gin.Context) {
	status := "ok"
	dbStatus := "healthy"
	if err := h.Store.HealthCheck(c.Request.Context()); err != nil {
		status = "degraded"
		dbStatus = "unhealthy: " + err.Error()
	}

	c.JSON(http.StatusOK, models.HealthResponse{
		Status:     status,
		Version:    Version,
		Database:   dbStatus,
		Workers:    h.Worker.WorkerCount(),
		QueueDepth: h.Worker.QueueSize(),
	})
}

// respondError writes the standard error body.
func respondError(c *gin.Context, code int, errCode, message string) {
	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   errCode,
		Message: message,
		Code:    code,
	})
}

// storeError maps a store error to 404 or 500, logging the latter.
func (h *Handler) storeError(c *gin.Context, err error, what string) {
	if errors.Is(err, database.ErrNotFound) {
		respondError(c, http.StatusNotFound, "not_found", what+" not found")
		return
	}
	h.Logger.WithError(err).WithField("path", c.FullPath()).Error("❌ Database error")
	respondError(c, http.StatusInternalServerError, "database_error", "Failed to load "+what)
}
