// webhooks.go handles webhook-related database operations.
package database

import (
	"context"
	"fmt"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/models"
)

const webhookColumns = `id, user_id, url, events, secret, active, created_at`

// CreateWebhook inserts a new webhook record.
func (db *DB) CreateWebhook(ctx context.Context, w *models.Webhook) error {
	query := `
		INSERT INTO webhooks (user_id, url, events, secret, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	// pq.StringArray implements driver.Valuer, so it binds as TEXT[]
	err := db.QueryRowContext(ctx, query,
		w.UserID, w.URL, w.Events, w.Secret, w.Active,
	).Scan(&w.ID, &w.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	return nil
}

// GetWebhook retrieves a single webhook by ID.
func (db *DB) GetWebhook(ctx context.Context, id string) (*models.Webhook, error) {
	var w models.Webhook
	err := db.GetContext(ctx, &w, `SELECT `+webhookColumns+` FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "webhook")
	}
	return &w, nil
}

// ListWebhooksByUser returns all webhooks owned by a user, newest first.
func (db *DB) ListWebhooksByUser(ctx context.Context, userID string) ([]models.Webhook, error) {
	webhooks := []models.Webhook{}
	err := db.SelectContext(ctx, &webhooks,
		`SELECT `+webhookColumns+` FROM webhooks WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	return webhooks, nil
}

// UpdateWebhookActive toggles a webhook's active state.
func (db *DB) UpdateWebhookActive(ctx context.Context, id string, active bool) error {
	result, err := db.ExecContext(ctx, `UPDATE webhooks SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update webhook: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("webhook: %w", ErrNotFound)
	}
	return nil
}

// DeleteWebhook removes a webhook by ID. Its deliveries cascade.
func (db *DB) DeleteWebhook(ctx context.Context, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("webhook: %w", ErrNotFound)
	}
	return nil
}

// GetActiveWebhooksForEvent returns a user's active webhooks that subscribe to event.
func (db *DB) GetActiveWebhooksForEvent(ctx context.Context, userID, event string) ([]models.Webhook, error) {
	var webhooks []models.Webhook
	err := db.SelectContext(ctx, &webhooks,
		`SELECT `+webhookColumns+` FROM webhooks
		 WHERE user_id = $1 AND active = true AND $2 = ANY(events)`, userID, event)
	if err != nil {
		return nil, fmt.Errorf("failed to get webhooks for event: %w", err)
	}
	return webhooks, nil
}

// CreateWebhookDelivery inserts a new webhook delivery record.
func (db *DB) CreateWebhookDelivery(ctx context.Context, d *models.WebhookDelivery) error {
	query := `
		INSERT INTO webhook_deliveries (webhook_id, event, payload, status, attempts, last_error, response_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	return db.QueryRowContext(ctx, query,
		d.WebhookID, d.Event, d.Payload, d.Status, d.Attempts, d.LastError, d.ResponseCode,
	).Scan(&d.ID, &d.CreatedAt)
}

// UpdateWebhookDelivery updates a delivery record after an attempt.
func (db *DB) UpdateWebhookDelivery(ctx context.Context, d *models.WebhookDelivery) error {
	query := `
		UPDATE webhook_deliveries
		SET status = $2, attempts = $3, last_error = $4, response_code = $5, delivered_at = $6
		WHERE id = $1`

	_, err := db.ExecContext(ctx, query,
		d.ID, d.Status, d.Attempts, d.LastError, d.ResponseCode, d.DeliveredAt,
	)
	return err
}

// ListDeliveriesByUser returns recent deliveries across all of a user's webhooks.
func (db *DB) ListDeliveriesByUser(ctx context.Context, userID string, limit int) ([]models.WebhookDelivery, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	deliveries := []models.WebhookDelivery{}
	err := db.SelectContext(ctx, &deliveries,
		`SELECT wd.* FROM webhook_deliveries wd
		 JOIN webhooks w ON w.id = wd.webhook_id
		 WHERE w.user_id = $1
		 ORDER BY wd.created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	return deliveries, nil
}
