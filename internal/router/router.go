// Package router sets up all HTTP routes for the API.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/handlers"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/middleware"
)

// Options carries the settings the router needs beyond the handler.
type Options struct {
	JWTSecret      string
	AllowedOrigins []string
	RateLimiter    *middleware.RateLimiter
	Logger         *logrus.Logger
}

// Setup creates and configures the Gin router with all routes.
func Setup(h *handlers.Handler, opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(opts.AllowedOrigins))

	rateLimiter := opts.RateLimiter
	if rateLimiter == nil {
		rateLimiter = middleware.NewRateLimiter(0)
	}

	// --- Public Routes (no auth required) ---
	r.GET("/api/v1/health", h.HealthCheck)
	r.GET(handlers.DocsPath, h.ServeSwaggerUI)
	r.GET(handlers.OpenAPIPath, h.ServeOpenAPISpec)

	// --- Protected Routes ---
	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth(opts.JWTSecret))
	protected.Use(rateLimiter.RateLimit())
	{
		protected.POST("/conversions", h.SubmitConversion)
		protected.GET("/conversions", h.ListConversions)
		protected.GET("/conversions/:id", h.GetConversion)
		protected.GET("/conversions/:id/search", h.SearchConversion)
		protected.GET("/conversions/:id/download", h.DownloadConversion)
		protected.DELETE("/conversions/:id", h.DeleteConversion)

		protected.GET("/stats", h.GetStats)

		protected.POST("/webhooks", h.CreateWebhook)
		protected.GET("/webhooks", h.ListWebhooks)
		protected.GET("/webhooks/deliveries", h.ListWebhookDeliveries) // must be before :id
		protected.PATCH("/webhooks/:id", h.UpdateWebhook)
		protected.DELETE("/webhooks/:id", h.DeleteWebhook)
	}

	return r
}
