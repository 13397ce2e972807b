// Package webhook sends signed notifications for conversion events.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sirupsen/logrus"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/database"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/models"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Webhook-Signature"

// Service handles webhook notification delivery.
type Service struct {
	store  database.WebhookStore
	client *http.Client
	logger *logrus.Logger

	attempts uint
	delay    time.Duration
	maxDelay time.Duration

	shutdownCh chan struct{} // Signals pending deliveries to stop
	once       sync.Once
	wg         sync.WaitGroup
}

// New creates a new webhook service.
func New(store database.WebhookStore, logger *logrus.Logger) *Service {
	return &Service{
		store:      store,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		attempts:   4,
		delay:      time.Second,
		maxDelay:   30 * time.Second,
		shutdownCh: make(chan struct{}),
	}
}

// Shutdown signals all pending webhook deliveries to stop.
// Call this during graceful server shutdown. Safe to call more than once.
func (s *Service) Shutdown() {
	s.once.Do(func() { close(s.shutdownCh) })
}

// Wait blocks until every in-flight delivery has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// GenerateSecret creates a random HMAC secret for a webhook.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// SignPayload creates an HMAC-SHA256 signature for a payload.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// NotifyEvent sends event to every active webhook of userID that
// subscribes to it. Delivery happens asynchronously with retries.
func (s *Service) NotifyEvent(ctx context.Context, userID, event string, data interface{}) {
	log := s.logger.WithFields(logrus.Fields{"event": event, "user_id": userID})

	webhooks, err := s.store.GetActiveWebhooksForEvent(ctx, userID, event)
	if err != nil {
		log.WithError(err).Warn("⚠️  Failed to get webhooks for event")
		return
	}
	if len(webhooks) == 0 {
		return
	}

	payloadJSON, err := json.Marshal(models.WebhookPayload{
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		log.WithError(err).Warn("⚠️  Failed to marshal webhook payload")
		return
	}

	for _, wh := range webhooks {
		s.wg.Add(1)
		go func(wh models.Webhook) {
			defer s.wg.Done()
			s.deliverWithRetry(wh, event, payloadJSON)
		}(wh)
	}
}

// deliverWithRetry attempts delivery with exponential backoff, recording
// every attempt. A shutdown signal aborts the remaining attempts.
func (s *Service) deliverWithRetry(wh models.Webhook, event string, payloadJSON []byte) {
	log := s.logger.WithFields(logrus.Fields{"event": event, "url": wh.URL, "webhook_id": wh.ID})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	go func() {
		select {
		case <-s.shutdownCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	delivery := &models.WebhookDelivery{
		WebhookID: wh.ID,
		Event:     event,
		Payload:   string(payloadJSON),
		Status:    "pending",
	}
	if err := s.store.CreateWebhookDelivery(ctx, delivery); err != nil {
		log.WithError(err).Warn("⚠️  Failed to create webhook delivery record")
		return
	}

	err := retry.Do(
		func() error {
			delivery.Attempts++
			statusCode, err := s.deliver(ctx, wh, payloadJSON)
			delivery.ResponseCode = statusCode
			if err != nil {
				return err
			}
			if statusCode < 200 || statusCode >= 300 {
				return fmt.Errorf("HTTP %d", statusCode)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.MaxDelay(s.maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			delivery.LastError = err.Error()
			s.updateDelivery(delivery, log)
			log.WithError(err).WithField("attempt", n+1).Warn("⚠️  Webhook delivery failed, retrying")
		}),
	)

	if err == nil {
		now := time.Now()
		delivery.Status = "success"
		delivery.DeliveredAt = &now
		delivery.LastError = ""
		s.updateDelivery(delivery, log)
		log.WithField("attempts", delivery.Attempts).Info("✅ Webhook delivered")
		return
	}

	delivery.Status = "failed"
	switch {
	case isShutdown(s.shutdownCh):
		delivery.LastError = "shutdown during delivery"
	case errors.Is(err, context.DeadlineExceeded):
		delivery.LastError = "delivery timeout"
	default:
		delivery.LastError = err.Error()
	}
	s.updateDelivery(delivery, log)
	log.WithField("reason", delivery.LastError).Error("❌ Webhook delivery failed permanently")
}

// updateDelivery persists delivery state. It uses its own context so the
// final record is written even after the delivery context is cancelled.
func (s *Service) updateDelivery(d *models.WebhookDelivery, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.UpdateWebhookDelivery(ctx, d); err != nil {
		log.WithError(err).Warn("⚠️  Failed to update delivery record")
	}
}

func isShutdown(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// deliver sends a single webhook HTTP request.
func (s *Service) deliver(ctx context.Context, wh models.Webhook, payloadJSON []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(payloadJSON))
	if err != nil {
		return 0, retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "PDF2XML-Webhook/1.0")

	// Sign with HMAC-SHA256 if secret is set
	if wh.Secret != "" {
		req.Header.Set(SignatureHeader, SignPayload(payloadJSON, wh.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}
