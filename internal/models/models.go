// Package models defines the data structures used throughout the application.
//
// Models are plain structs with JSON tags for the API and `db` tags for
// sqlx column mapping. The database package handles persistence.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/document"
)

// ConversionStatus represents the processing state of a conversion.
type ConversionStatus string

const (
	StatusPending    ConversionStatus = "PENDING"
	StatusProcessing ConversionStatus = "PROCESSING"
	StatusCompleted  ConversionStatus = "COMPLETED"
	StatusFailed     ConversionStatus = "FAILED"
)

// Terminal reports whether no further status changes will happen.
func (s ConversionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ValidStatus reports whether s is a known status.
func ValidStatus(s string) bool {
	switch ConversionStatus(s) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// StructureType is the conversion fidelity level the user picked.
type StructureType string

const (
	StructureBasic    StructureType = "basic"
	StructureEnhanced StructureType = "enhanced"
	StructureFull     StructureType = "full"
)

// DefaultStructureType is used when the upload does not specify one.
const DefaultStructureType = StructureEnhanced

// ParseStructureType validates a structure type string.
// An empty string means the default.
func ParseStructureType(s string) (StructureType, bool) {
	switch StructureType(s) {
	case "":
		return DefaultStructureType, true
	case StructureBasic, StructureEnhanced, StructureFull:
		return StructureType(s), true
	}
	return "", false
}

// Conversion is a persisted PDF-to-XML job and its result.
type Conversion struct {
	ID             string           `json:"id" db:"id"`
	UserID         string           `json:"user_id" db:"user_id"`
	Filename       string           `json:"filename" db:"filename"`               // Original upload name
	StoredFilename string           `json:"stored_filename" db:"stored_filename"` // uuid.pdf reference
	FileSize       int64            `json:"file_size" db:"file_size"`
	StructureType  StructureType    `json:"structure_type" db:"structure_type"`
	Status         ConversionStatus `json:"status" db:"status"`
	PageCount      int              `json:"page_count" db:"page_count"`
	ConvertedXML   string           `json:"-" db:"converted_xml"` // Served as xml_content by the detail endpoint

	WordCount        int   `json:"word_count" db:"word_count"`
	CharacterCount   int   `json:"character_count" db:"character_count"`
	DetectedTables   int   `json:"detected_tables" db:"detected_tables"`
	DetectedLists    int   `json:"detected_lists" db:"detected_lists"`
	DetectedHeadings int   `json:"detected_headings" db:"detected_headings"`
	DetectedImages   int   `json:"detected_images" db:"detected_images"`
	ProcessingTime   int64 `json:"processing_time" db:"processing_time"` // Milliseconds

	Metadata     json.RawMessage `json:"metadata" db:"metadata"` // JSONB
	Tags         pq.StringArray  `json:"tags" db:"tags"`
	ErrorMessage string          `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// Statistics is the derived summary of a converted document.
type Statistics struct {
	DetectedTables   int   `json:"detected_tables"`
	DetectedLists    int   `json:"detected_lists"`
	DetectedHeadings int   `json:"detected_headings"`
	DetectedImages   int   `json:"detected_images"`
	ProcessingTime   int64 `json:"processing_time"`
	CharacterCount   int   `json:"character_count"`
	WordCount        int   `json:"word_count"`
}

// Statistics extracts the statistics block of a conversion.
func (c *Conversion) Statistics() Statistics {
	return Statistics{
		DetectedTables:   c.DetectedTables,
		DetectedLists:    c.DetectedLists,
		DetectedHeadings: c.DetectedHeadings,
		DetectedImages:   c.DetectedImages,
		ProcessingTime:   c.ProcessingTime,
		CharacterCount:   c.CharacterCount,
		WordCount:        c.WordCount,
	}
}

// ApplyStatistics copies converter output onto the record.
func (c *Conversion) ApplyStatistics(s Statistics) {
	c.DetectedTables = s.DetectedTables
	c.DetectedLists = s.DetectedLists
	c.DetectedHeadings = s.DetectedHeadings
	c.DetectedImages = s.DetectedImages
	c.ProcessingTime = s.ProcessingTime
	c.CharacterCount = s.CharacterCount
	c.WordCount = s.WordCount
}

// Webhook is a user's subscription to conversion events.
type Webhook struct {
	ID        string         `json:"id" db:"id"`
	UserID    string         `json:"user_id" db:"user_id"`
	URL       string         `json:"url" db:"url"`
	Events    pq.StringArray `json:"events" db:"events"`
	Secret    string         `json:"secret,omitempty" db:"secret"`
	Active    bool           `json:"active" db:"active"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// Webhook event names.
const (
	EventConversionCompleted = "conversion.completed"
	EventConversionFailed    = "conversion.failed"
)

// ValidEvents lists the events a webhook can subscribe to.
var ValidEvents = map[string]bool{
	EventConversionCompleted: true,
	EventConversionFailed:    true,
}

// WebhookDelivery records one delivery attempt sequence.
type WebhookDelivery struct {
	ID           string     `json:"id" db:"id"`
	WebhookID    string     `json:"webhook_id" db:"webhook_id"`
	Event        string     `json:"event" db:"event"`
	Payload      string     `json:"payload" db:"payload"`
	Status       string     `json:"status" db:"status"` // "pending", "success", "failed"
	Attempts     int        `json:"attempts" db:"attempts"`
	LastError    string     `json:"last_error,omitempty" db:"last_error"`
	ResponseCode int        `json:"response_code,omitempty" db:"response_code"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty" db:"delivered_at"` // Pointer = nullable
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// WebhookPayload is the JSON body POSTed to subscribers.
type WebhookPayload struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// --- Request/Response DTOs ---

// ConversionListParams holds query parameters for listing conversions.
type ConversionListParams struct {
	Page          int    `form:"page"`           // 1-indexed
	PerPage       int    `form:"per_page"`       // Items per page
	Limit         int    `form:"limit"`          // Alias for per_page
	Search        string `form:"search"`         // Matches filename
	StructureType string `form:"structure_type"` // basic, enhanced, full
	Status        string `form:"status"`
	DateFrom      string `form:"date_from"` // ISO date
	DateTo        string `form:"date_to"`   // ISO date
	SortBy        string `form:"sort_by"`   // created_at, filename, page_count, file_size, word_count
	SortDir       string `form:"sort_dir"`  // asc, desc
	SortOrder     string `form:"sort_order"`
	HasTables     bool   `form:"has_tables"`

	UserID string `form:"-"` // Set from the authenticated user, never from the query
}

// Normalize applies defaults and aliases in place.
func (p *ConversionListParams) Normalize() {
	if p.PerPage == 0 && p.Limit > 0 {
		p.PerPage = p.Limit
	}
	if p.SortDir == "" {
		p.SortDir = p.SortOrder
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 || p.PerPage > 100 {
		p.PerPage = 10
	}
	if !ValidSortColumns[p.SortBy] {
		p.SortBy = "created_at"
	}
	if p.SortDir != "asc" && p.SortDir != "desc" {
		p.SortDir = "desc"
	}
}

// ValidSortColumns whitelists ORDER BY columns.
var ValidSortColumns = map[string]bool{
	"created_at": true, "filename": true, "page_count": true, "file_size": true, "word_count": true,
}

// SubmitResponse is returned by POST /conversions when the job is still running.
type SubmitResponse struct {
	ConversionID string           `json:"conversion_id"`
	Status       ConversionStatus `json:"status"`
}

// ConvertResult is returned by POST /conversions when the job finished in time.
type ConvertResult struct {
	ConversionID string     `json:"conversion_id"`
	XML          string     `json:"xml"`
	PageCount    int        `json:"page_count"`
	Statistics   Statistics `json:"statistics"`
}

// ConversionDetail is the conversion as served by the detail endpoint.
type ConversionDetail struct {
	Conversion
	XMLContent string `json:"xml_content"`
}

// ConversionResponse is returned by GET /conversions/:id.
type ConversionResponse struct {
	Conversion    ConversionDetail `json:"conversion"`
	FullPageCount int              `json:"full_page_count"`
	Page          int              `json:"page,omitempty"` // Set when a single page was extracted
	Statistics    Statistics       `json:"statistics"`
}

// SearchResponse is returned by GET /conversions/:id/search.
type SearchResponse struct {
	Query        string          `json:"query"`
	Page         int             `json:"page,omitempty"`
	Offsets      []int           `json:"offsets"`
	Count        int             `json:"count"`
	Current      int             `json:"current"` // Index into offsets, -1 when empty
	ScrollOffset int             `json:"scroll_offset"`
	Spans        []document.Span `json:"spans,omitempty"`
}

// StructureTypeCount is one row of the per-structure-type breakdown.
type StructureTypeCount struct {
	StructureType StructureType `json:"structure_type" db:"structure_type"`
	Count         int           `json:"count" db:"count"`
}

// ConversionSummary is the short form used by the stats endpoint.
type ConversionSummary struct {
	ID        string           `json:"id" db:"id"`
	Filename  string           `json:"filename" db:"filename"`
	Status    ConversionStatus `json:"status" db:"status"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// UserStats is returned by GET /stats.
type UserStats struct {
	ConversionsCount    int                  `json:"conversions_count"`
	LatestConversion    *ConversionSummary   `json:"latest_conversion"`
	StructureTypeCounts []StructureTypeCount `json:"structure_type_counts"`
}

// CreateWebhookRequest is the JSON body for POST /webhooks.
type CreateWebhookRequest struct {
	URL    string   `json:"url" binding:"required,url"`
	Events []string `json:"events" binding:"required,min=1"`
}

// UpdateWebhookRequest is the JSON body for PATCH /webhooks/:id.
type UpdateWebhookRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// PaginatedResponse wraps a list response with pagination metadata.
type PaginatedResponse[T any] struct {
	Data       []T `json:"data"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// ErrorResponse is a standard error format for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Database   string `json:"database"`
	Workers    int    `json:"workers"`
	QueueDepth int    `json:"queue_depth"`
}

// dateLayouts are accepted for date_from / date_to.
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// DateRange parses DateFrom and DateTo. A date-only DateTo covers the whole
// day, so the returned upper bound is exclusive.
func (p *ConversionListParams) DateRange() (from, to *time.Time, err error) {
	if p.DateFrom != "" {
		t, _, err := parseDate(p.DateFrom)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid date_from: %w", err)
		}
		from = &t
	}
	if p.DateTo != "" {
		t, dateOnly, err := parseDate(p.DateTo)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid date_to: %w", err)
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1)
		} else {
			t = t.Add(time.Nanosecond)
		}
		to = &t
	}
	return from, to, nil
}

func parseDate(s string) (time.Time, bool, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, layout == "2006-01-02", nil
		}
		lastErr = err
	}
	return time.Time{}, false, lastErr
}
