package database

import (
	"context"
	"errors"
	"strings"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/models"
)

// ErrNotFound is returned (wrapped) when a record does not exist.
// Check it with errors.Is.
var ErrNotFound = errors.New("record not found")

// ConversionStore persists conversion records.
type ConversionStore interface {
	CreateConversion(ctx context.Context, c *models.Conversion) error
	GetConversion(ctx context.Context, id string) (*models.Conversion, error)
	UpdateConversion(ctx context.Context, c *models.Conversion) error
	DeleteConversion(ctx context.Context, id string) error
	ListConversions(ctx context.Context, params models.ConversionListParams) ([]models.Conversion, int, error)
	CountConversions(ctx context.Context, userID string) (int, error)
	ConversionStats(ctx context.Context, userID string) (*models.UserStats, error)
}

// WebhookStore persists webhook subscriptions and their deliveries.
type WebhookStore interface {
	CreateWebhook(ctx context.Context, w *models.Webhook) error
	GetWebhook(ctx context.Context, id string) (*models.Webhook, error)
	ListWebhooksByUser(ctx context.Context, userID string) ([]models.Webhook, error)
	UpdateWebhookActive(ctx context.Context, id string, active bool) error
	DeleteWebhook(ctx context.Context, id string) error
	GetActiveWebhooksForEvent(ctx context.Context, userID, event string) ([]models.Webhook, error)
	CreateWebhookDelivery(ctx context.Context, d *models.WebhookDelivery) error
	UpdateWebhookDelivery(ctx context.Context, d *models.WebhookDelivery) error
	ListDeliveriesByUser(ctx context.Context, userID string, limit int) ([]models.WebhookDelivery, error)
}

// Store is the single persistence handle the application is wired with.
// It is constructed once at startup and closed on shutdown.
type Store interface {
	ConversionStore
	WebhookStore
	HealthCheck(ctx context.Context) error
	Close() error
}

// Open selects a Store adapter from the database URL: "memory://" gives an
// in-process store, anything else is treated as a PostgreSQL DSN.
func Open(ctx context.Context, databaseURL string) (Store, error) {
	if strings.HasPrefix(databaseURL, "memory://") {
		return NewMemoryStore(), nil
	}
	return New(ctx, databaseURL)
}
