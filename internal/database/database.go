// Package database handles PostgreSQL connections and queries.
//
// We use the `sqlx` package which extends Go's standard `database/sql`
// with struct scanning. Queries are raw SQL. One *DB is created at startup
// and shared across the application; database/sql pools connections and is
// safe for concurrent use.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sirupsen/logrus"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/models"
)

// DB wraps the sqlx database connection with our application-specific methods.
// Embedding (*sqlx.DB) gives us all of sqlx's methods automatically.
type DB struct {
	*sqlx.DB
}

var _ Store = (*DB)(nil)

// New connects to PostgreSQL, retrying while the server comes up.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	var db *sqlx.DB
	err := retry.Do(
		func() error {
			var err error
			// sqlx.ConnectContext both opens the connection and pings the database
			db, err = sqlx.ConnectContext(ctx, "postgres", databaseURL)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logrus.WithError(err).WithField("attempt", n+1).Warn("⚠️  Database not reachable yet, retrying")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(2 * time.Minute)
	db.SetConnMaxIdleTime(30 * time.Second)

	return &DB{db}, nil
}

// HealthCheck verifies the database connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.PingContext(ctx)
}

// notFound wraps sql.ErrNoRows as ErrNotFound and leaves other errors alone.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

func metadataValue(m []byte) string {
	if len(m) == 0 {
		return "{}"
	}
	return string(m)
}

// --- Conversion Operations ---

// CreateConversion inserts a new conversion record and fills in its ID and timestamps.
func (db *DB) CreateConversion(ctx context.Context, c *models.Conversion) error {
	query := `
		INSERT INTO conversions (user_id, filename, stored_filename, file_size, structure_type, status,
			page_count, converted_xml, word_count, character_count, detected_tables, detected_lists,
			detected_headings, detected_images, processing_time, metadata, tags, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id, created_at, updated_at`

	if c.Tags == nil {
		c.Tags = []string{}
	}

	err := db.QueryRowContext(ctx, query,
		c.UserID, c.Filename, c.StoredFilename, c.FileSize, c.StructureType, c.Status,
		c.PageCount, c.ConvertedXML, c.WordCount, c.CharacterCount, c.DetectedTables, c.DetectedLists,
		c.DetectedHeadings, c.DetectedImages, c.ProcessingTime, metadataValue(c.Metadata), c.Tags, c.ErrorMessage,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create conversion: %w", err)
	}
	return nil
}

// GetConversion retrieves a single conversion by ID.
func (db *DB) GetConversion(ctx context.Context, id string) (*models.Conversion, error) {
	var c models.Conversion
	err := db.GetContext(ctx, &c, `SELECT * FROM conversions WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "conversion")
	}
	return &c, nil
}

// UpdateConversion writes the processing outcome of a conversion.
func (db *DB) UpdateConversion(ctx context.Context, c *models.Conversion) error {
	query := `
		UPDATE conversions
		SET status = $2, page_count = $3, converted_xml = $4, word_count = $5, character_count = $6,
			detected_tables = $7, detected_lists = $8, detected_headings = $9, detected_images = $10,
			processing_time = $11, metadata = $12, error_message = $13, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := db.QueryRowContext(ctx, query,
		c.ID, c.Status, c.PageCount, c.ConvertedXML, c.WordCount, c.CharacterCount,
		c.DetectedTables, c.DetectedLists, c.DetectedHeadings, c.DetectedImages,
		c.ProcessingTime, metadataValue(c.Metadata), c.ErrorMessage,
	).Scan(&c.UpdatedAt)
	if err != nil {
		return notFound(err, "conversion")
	}
	return nil
}

// DeleteConversion removes a conversion by ID.
func (db *DB) DeleteConversion(ctx context.Context, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM conversions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversion: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("conversion: %w", ErrNotFound)
	}
	return nil
}

// listColumns is everything except converted_xml, which can be megabytes.
const listColumns = `id, user_id, filename, stored_filename, file_size, structure_type, status, page_count,
	'' AS converted_xml, word_count, character_count, detected_tables, detected_lists, detected_headings,
	detected_images, processing_time, metadata, tags, error_message, created_at, updated_at`

// likeEscaper makes LIKE wildcards in user input match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// conversionFilter builds the WHERE clause for a list query. It returns the
// clause (possibly empty), its arguments, and the next free placeholder number.
func conversionFilter(params models.ConversionListParams) (string, []interface{}, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	add := func(cond string, arg interface{}) {
		conditions = append(conditions, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", argNum)))
		args = append(args, arg)
		argNum++
	}

	if params.UserID != "" {
		add("user_id = ?", params.UserID)
	}
	if params.Status != "" {
		add("status = ?", params.Status)
	}
	if params.StructureType != "" {
		add("structure_type = ?", params.StructureType)
	}
	if params.Search != "" {
		add(`filename ILIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(params.Search)+"%")
	}

	from, to, err := params.DateRange()
	if err != nil {
		return "", nil, 0, err
	}
	if from != nil {
		add("created_at >= ?", *from)
	}
	if to != nil {
		add("created_at < ?", *to)
	}

	if params.HasTables {
		conditions = append(conditions, "detected_tables > 0")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}
	return whereClause, args, argNum, nil
}

// ListConversions returns a page of conversions matching params and the
// total number of matching rows.
func (db *DB) ListConversions(ctx context.Context, params models.ConversionListParams) ([]models.Conversion, int, error) {
	params.Normalize()

	whereClause, args, argNum, err := conversionFilter(params)
	if err != nil {
		return nil, 0, err
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM conversions %s", whereClause)
	if err := db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count query failed: %w", err)
	}

	// SortBy and SortDir are whitelisted by Normalize
	offset := (params.Page - 1) * params.PerPage
	selectQuery := fmt.Sprintf(
		"SELECT %s FROM conversions %s ORDER BY %s %s, id LIMIT $%d OFFSET $%d",
		listColumns, whereClause, params.SortBy, params.SortDir, argNum, argNum+1,
	)
	args = append(args, params.PerPage, offset)

	var conversions []models.Conversion
	if err := db.SelectContext(ctx, &conversions, selectQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list query failed: %w", err)
	}

	return conversions, total, nil
}

// CountConversions counts a user's conversions.
func (db *DB) CountConversions(ctx context.Context, userID string) (int, error) {
	var n int
	if err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM conversions WHERE user_id = $1`, userID); err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}
	return n, nil
}

// ConversionStats summarizes a user's conversion history.
func (db *DB) ConversionStats(ctx context.Context, userID string) (*models.UserStats, error) {
	count, err := db.CountConversions(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &models.UserStats{ConversionsCount: count}

	var latest models.ConversionSummary
	err = db.GetContext(ctx, &latest,
		`SELECT id, filename, status, created_at FROM conversions
		 WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`, userID)
	switch {
	case err == nil:
		stats.LatestConversion = &latest
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("latest conversion query failed: %w", err)
	}

	err = db.SelectContext(ctx, &stats.StructureTypeCounts,
		`SELECT structure_type, COUNT(*) AS count FROM conversions
		 WHERE user_id = $1 GROUP BY structure_type ORDER BY structure_type`, userID)
	if err != nil {
		return nil, fmt.Errorf("structure type query failed: %w", err)
	}
	if stats.StructureTypeCounts == nil {
		stats.StructureTypeCounts = []models.StructureTypeCount{}
	}

	return stats, nil
}
