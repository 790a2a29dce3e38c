// Package sqlite provides a SQLite-backed implementation of the analysis log port.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // Import the driver anonymously

	"github.com/StarfishJ/SceneSound/internal/core/domain"
	"github.com/StarfishJ/SceneSound/internal/core/ports"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

// Adapter implements the analysis log port for SQLite
type Adapter struct {
	db *sql.DB
}

var _ ports.AnalysisLog = (*Adapter)(nil)

// NewAdapter creates a connection and runs the schema migration
func NewAdapter(storagePath string) (*Adapter, error) {
	db, err := sql.Open("sqlite3", storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	adapter := &Adapter{db: db}
	if err := adapter.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return adapter, nil
}

// Close ensures the DB connection is closed gracefully
func (a *Adapter) Close() error {
	return a.db.Close()
}

// Record appends rec. Missing ID and CreatedAt are filled in.
func (a *Adapter) Record(ctx context.Context, rec domain.AnalysisRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	scenes, err := encodeList(rec.Scenes)
	if err != nil {
		return fmt.Errorf("failed to encode scenes: %w", err)
	}
	styles, err := encodeList(rec.Styles)
	if err != nil {
		return fmt.Errorf("failed to encode styles: %w", err)
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO analyses (
			id, request_id, created_at, stage, status, scenes, styles,
			track_count, degraded, has_image, has_text, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.RequestID,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		string(rec.Stage),
		rec.Status,
		scenes,
		styles,
		rec.TrackCount,
		rec.Degraded,
		rec.HasImage,
		rec.HasText,
		rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (a *Adapter) Recent(ctx context.Context, limit int) ([]domain.AnalysisRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	limit = min(limit, maxRecentLimit)

	rows, err := a.db.QueryContext(ctx, `
		SELECT id, request_id, created_at, stage, status, scenes, styles,
			track_count, degraded, has_image, has_text, duration_ms
		FROM analyses
		ORDER BY rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	records := []domain.AnalysisRecord{}
	for rows.Next() {
		var (
			rec            domain.AnalysisRecord
			createdAt      string
			stage          string
			scenes, styles sql.NullString
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.RequestID,
			&createdAt,
			&stage,
			&rec.Status,
			&scenes,
			&styles,
			&rec.TrackCount,
			&rec.Degraded,
			&rec.HasImage,
			&rec.HasText,
			&rec.DurationMS,
		); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}

		rec.Stage = domain.Stage(stage)
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at of %s: %w", rec.ID, err)
		}
		if rec.Scenes, err = decodeList(scenes); err != nil {
			return nil, fmt.Errorf("failed to decode scenes of %s: %w", rec.ID, err)
		}
		if rec.Styles, err = decodeList(styles); err != nil {
			return nil, fmt.Errorf("failed to decode styles of %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analyses: %w", err)
	}

	return records, nil
}

func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeList(raw sql.NullString) ([]string, error) {
	values := []string{}
	if !raw.Valid || raw.String == "" {
		return values, nil
	}
	if err := json.Unmarshal([]byte(raw.String), &values); err != nil {
		return nil, err
	}
	return values, nil
}

func (a *Adapter) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		stage TEXT NOT NULL,
		status INTEGER NOT NULL,
		scenes TEXT,
		styles TEXT,
		track_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_analyses_request_id ON analyses(request_id);
	`
	if _, err := a.db.Exec(query); err != nil {
		return err
	}

	// Columns added after the first release of the schema.
	for _, column := range []string{
		"degraded INTEGER NOT NULL DEFAULT 0",
		"has_image INTEGER NOT NULL DEFAULT 0",
		"has_text INTEGER NOT NULL DEFAULT 0",
		"duration_ms INTEGER NOT NULL DEFAULT 0",
	} {
		if _, err := a.db.Exec("ALTER TABLE analyses ADD COLUMN " + column); err != nil {
			if !isDuplicateColumnError(err) {
				return err
			}
		}
	}

	return nil
}

func isDuplicateColumnError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}
