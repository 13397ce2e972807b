// Package main is the entry point for the PDF2XML API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/config"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/database"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/document"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/handlers"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/logging"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/middleware"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/router"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/services/converter"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/services/webhook"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/services/worker"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	// Step 1: Load Configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Infof("🚀 PDF2XML API %s starting...", Version)
	logger.Infof("📋 Config loaded: port=%s, workers=%d, gin_mode=%s", cfg.Port, cfg.WorkerCount, cfg.GinMode)
	gin.SetMode(cfg.GinMode)
	handlers.Version = Version

	// Step 2: Open the store
	ctx := context.Background()
	store, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("❌ Failed to open store")
	}
	defer store.Close()

	if db, ok := store.(*database.DB); ok {
		logger.Info("✅ Database connected")
		if cfg.RunMigrations {
			if err := db.RunMigrations(); err != nil {
				logger.WithError(err).Fatal("❌ Migration failed")
			}
		}
	} else {
		logger.Warn("⚠️  Using in-memory store; data is lost on restart")
	}

	// Step 3: Create Services
	conv := converter.New(logger)
	webhookService := webhook.New(store, logger)
	logger.Info("✅ Webhook notification service initialized")

	// Step 4: Create and Start Worker Pool
	wp := worker.NewPool(cfg.WorkerCount, cfg.JobQueueSize, store, conv, logger)
	wp.SetNotifier(webhookService)
	wp.Start()

	rateLimiter := middleware.NewRateLimiter(cfg.DefaultRateLimit)
	stopCleanup := make(chan struct{})
	go rateLimiter.RunCleanup(10*time.Minute, stopCleanup)

	// Step 5: Setup HTTP Router
	h := handlers.NewHandler(store, wp, logger, handlers.Options{
		MaxUploadSize: cfg.MaxUploadSize,
		SyncWait:      cfg.ConvertSyncWait,
		Metrics:       document.DefaultMetrics,
	})
	r := router.Setup(h, router.Options{
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimiter:    rateLimiter,
		Logger:         logger,
	})

	// Step 6: Start the HTTP Server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  60 * time.Second, // uploads can be large
		WriteTimeout: cfg.ConvertSyncWait + 60*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("🌐 Server listening on http://localhost:%s", cfg.Port)
		logger.Infof("📖 Health check: http://localhost:%s/api/v1/health", cfg.Port)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("❌ Server failed")
		}
	}()

	// Step 7: Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	logger.Infof("🛑 Received signal %v, shutting down gracefully...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("⚠️  Server forced to shutdown")
	}
	close(stopCleanup)

	webhookService.Shutdown()
	logger.Info("⏳ Webhook deliveries signaled to stop")
	wp.Stop()
	webhookService.Wait()

	logger.Info("👋 Server stopped. Goodbye!")
}
