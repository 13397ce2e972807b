package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/models"
)

// MemoryStore is an in-process Store used for local runs and tests.
// Records are copied in and out so callers never share memory with it.
type MemoryStore struct {
	mu          sync.RWMutex
	conversions map[string]models.Conversion
	webhooks    map[string]models.Webhook
	deliveries  map[string]models.WebhookDelivery

	now func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversions: make(map[string]models.Conversion),
		webhooks:    make(map[string]models.Webhook),
		deliveries:  make(map[string]models.WebhookDelivery),
		now:         time.Now,
	}
}

func (s *MemoryStore) HealthCheck(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close() error { return nil }

// --- Conversions ---

func (s *MemoryStore) CreateConversion(ctx context.Context, c *models.Conversion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = uuid.New().String()
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt
	if c.Tags == nil {
		c.Tags = []string{}
	}
	if len(c.Metadata) == 0 {
		c.Metadata = []byte("{}")
	}
	s.conversions[c.ID] = cloneConversion(*c)
	return nil
}

func (s *MemoryStore) GetConversion(ctx context.Context, id string) (*models.Conversion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversions[id]
	if !ok {
		return nil, fmt.Errorf("conversion: %w", ErrNotFound)
	}
	c = cloneConversion(c)
	return &c, nil
}

func (s *MemoryStore) UpdateConversion(ctx context.Context, c *models.Conversion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.conversions[c.ID]
	if !ok {
		return fmt.Errorf("conversion: %w", ErrNotFound)
	}

	// Same columns as the SQL UPDATE; ownership and upload fields are immutable.
	existing.Status = c.Status
	existing.PageCount = c.PageCount
	existing.ConvertedXML = c.ConvertedXML
	existing.ApplyStatistics(c.Statistics())
	existing.ErrorMessage = c.ErrorMessage
	if len(c.Metadata) > 0 {
		existing.Metadata = append([]byte(nil), c.Metadata...)
	}
	existing.UpdatedAt = s.now()

	s.conversions[c.ID] = existing
	c.UpdatedAt = existing.UpdatedAt
	return nil
}

func (s *MemoryStore) DeleteConversion(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversions[id]; !ok {
		return fmt.Errorf("conversion: %w", ErrNotFound)
	}
	delete(s.conversions, id)
	return nil
}

func (s *MemoryStore) ListConversions(ctx context.Context, params models.ConversionListParams) ([]models.Conversion, int, error) {
	params.Normalize()
	from, to, err := params.DateRange()
	if err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	var matched []models.Conversion
	for _, c := range s.conversions {
		if matchesFilter(c, params, from, to) {
			matched = append(matched, c)
		}
	}
	s.mu.RUnlock()

	sortConversions(matched, params.SortBy, params.SortDir == "asc")

	total := len(matched)
	start := (params.Page - 1) * params.PerPage
	if start > total {
		start = total
	}
	end := start + params.PerPage
	if end > total {
		end = total
	}

	page := make([]models.Conversion, 0, end-start)
	for _, c := range matched[start:end] {
		c = cloneConversion(c)
		c.ConvertedXML = "" // list queries never carry the document
		page = append(page, c)
	}
	return page, total, nil
}

func (s *MemoryStore) CountConversions(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, c := range s.conversions {
		if c.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ConversionStats(ctx context.Context, userID string) (*models.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &models.UserStats{StructureTypeCounts: []models.StructureTypeCount{}}
	counts := make(map[models.StructureType]int)
	var latest *models.Conversion

	for _, c := range s.conversions {
		if c.UserID != userID {
			continue
		}
		stats.ConversionsCount++
		counts[c.StructureType]++
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = &c
		}
	}

	if latest != nil {
		stats.LatestConversion = &models.ConversionSummary{
			ID:        latest.ID,
			Filename:  latest.Filename,
			Status:    latest.Status,
			CreatedAt: latest.CreatedAt,
		}
	}
	for st, n := range counts {
		stats.StructureTypeCounts = append(stats.StructureTypeCounts, models.StructureTypeCount{StructureType: st, Count: n})
	}
	sort.Slice(stats.StructureTypeCounts, func(i, j int) bool {
		return stats.StructureTypeCounts[i].StructureType < stats.StructureTypeCounts[j].StructureType
	})
	return stats, nil
}

func matchesFilter(c models.Conversion, p models.ConversionListParams, from, to *time.Time) bool {
	switch {
	case p.UserID != "" && c.UserID != p.UserID:
		return false
	case p.Status != "" && string(c.Status) != p.Status:
		return false
	case p.StructureType != "" && string(c.StructureType) != p.StructureType:
		return false
	case p.Search != "" && !strings.Contains(strings.ToLower(c.Filename), strings.ToLower(p.Search)):
		return false
	case from != nil && c.CreatedAt.Before(*from):
		return false
	case to != nil && !c.CreatedAt.Before(*to):
		return false
	case p.HasTables && c.DetectedTables == 0:
		return false
	}
	return true
}

func sortConversions(cs []models.Conversion, by string, asc bool) {
	less := func(a, b models.Conversion) int {
		switch by {
		case "filename":
			return strings.Compare(a.Filename, b.Filename)
		case "page_count":
			return a.PageCount - b.PageCount
		case "file_size":
			return compareInt64(a.FileSize, b.FileSize)
		case "word_count":
			return a.WordCount - b.WordCount
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}
	sort.SliceStable(cs, func(i, j int) bool {
		d := less(cs[i], cs[j])
		if d == 0 {
			return cs[i].ID < cs[j].ID
		}
		if asc {
			return d < 0
		}
		return d > 0
	})
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cloneConversion(c models.Conversion) models.Conversion {
	c.Metadata = append([]byte(nil), c.Metadata...)
	c.Tags = append([]string{}, c.Tags...)
	return c
}

// --- Webhooks ---

func (s *MemoryStore) CreateWebhook(ctx context.Context, w *models.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w.ID = uuid.New().String()
	w.CreatedAt = s.now()
	stored := *w
	stored.Events = append([]string{}, w.Events...)
	s.webhooks[w.ID] = stored
	return nil
}

func (s *MemoryStore) GetWebhook(ctx context.Context, id string) (*models.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.webhooks[id]
	if !ok {
		return nil, fmt.Errorf("webhook: %w", ErrNotFound)
	}
	w.Events = append([]string{}, w.Events...)
	return &w, nil
}

func (s *MemoryStore) ListWebhooksByUser(ctx context.Context, userID string) ([]models.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	webhooks := []models.Webhook{}
	for _, w := range s.webhooks {
		if w.UserID == userID {
			w.Events = append([]string{}, w.Events...)
			webhooks = append(webhooks, w)
		}
	}
	sort.Slice(webhooks, func(i, j int) bool { return webhooks[i].CreatedAt.After(webhooks[j].CreatedAt) })
	return webhooks, nil
}

func (s *MemoryStore) UpdateWebhookActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.webhooks[id]
	if !ok {
		return fmt.Errorf("webhook: %w", ErrNotFound)
	}
	w.Active = active
	s.webhooks[id] = w
	return nil
}

func (s *MemoryStore) DeleteWebhook(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.webhooks[id]; !ok {
		return fmt.Errorf("webhook: %w", ErrNotFound)
	}
	delete(s.webhooks, id)
	for did, d := range s.deliveries {
		if d.WebhookID == id {
			delete(s.deliveries, did)
		}
	}
	return nil
}

func (s *MemoryStore) GetActiveWebhooksForEvent(ctx context.Context, userID, event string) ([]models.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var webhooks []models.Webhook
	for _, w := range s.webhooks {
		if w.UserID != userID || !w.Active {
			continue
		}
		for _, e := range w.Events {
			if e == event {
				webhooks = append(webhooks, w)
				break
			}
		}
	}
	return webhooks, nil
}

func (s *MemoryStore) CreateWebhookDelivery(ctx context.Context, d *models.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.ID = uuid.New().String()
	d.CreatedAt = s.now()
	s.deliveries[d.ID] = *d
	return nil
}

func (s *MemoryStore) UpdateWebhookDelivery(ctx context.Context, d *models.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.deliveries[d.ID]
	if !ok {
		return fmt.Errorf("webhook delivery: %w", ErrNotFound)
	}
	existing.Status = d.Status
	existing.Attempts = d.Attempts
	existing.LastError = d.LastError
	existing.ResponseCode = d.ResponseCode
	existing.DeliveredAt = d.DeliveredAt
	s.deliveries[d.ID] = existing
	return nil
}

func (s *MemoryStore) ListDeliveriesByUser(ctx context.Context, userID string, limit int) ([]models.WebhookDelivery, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	deliveries := []models.WebhookDelivery{}
	for _, d := range s.deliveries {
		if w, ok := s.webhooks[d.WebhookID]; ok && w.UserID == userID {
			deliveries = append(deliveries, d)
		}
	}
	sort.Slice(deliveries, func(i, j int) bool { return deliveries[i].CreatedAt.After(deliveries[j].CreatedAt) })
	if len(deliveries) > limit {
		deliveries = deliveries[:limit]
	}
	return deliveries, nil
}
