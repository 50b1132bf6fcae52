// Package store keeps analysis history in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/fencing-cv/server/models"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("analysis not found")

const schema = `
	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		pose_type TEXT NOT NULL,
		status TEXT NOT NULL,
		feedback TEXT NOT NULL,
		angles TEXT NOT NULL,
		facing TEXT NOT NULL DEFAULT '',
		image_hash TEXT NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		client_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at DESC);
`

type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens or creates the history database at path. Use ":memory:" for a
// throwaway store.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Info("History database initialized", zap.String("path", path))

	return &Store{db: db, logger: logger}, nil
}

// Save inserts record, assigning an ID and creation time when they are unset.
func (s *Store) Save(ctx context.Context, record *models.AnalysisRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	feedback, err := json.Marshal(nonNil(record.Feedback))
	if err != nil {
		return fmt.Errorf("failed to marshal feedback: %w", err)
	}
	angles, err := json.Marshal(record.Angles)
	if err != nil {
		return fmt.Errorf("failed to marshal angles: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analyses (id, pose_type, status, feedback, angles, facing, image_hash, width, height, client_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.PoseType, record.Status, string(feedback), string(angles),
		record.Facing, record.ImageHash, record.Width, record.Height, record.ClientID,
		record.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.AnalysisRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, pose_type, status, feedback, angles, facing, image_hash, width, height, client_id, created_at
		FROM analyses WHERE id = ?`, id)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis %s: %w", id, err)
	}
	return record, nil
}

// ListRecent returns up to limit records, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*models.AnalysisRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pose_type, status, feedback, angles, facing, image_hash, width, height, client_id, created_at
		FROM analyses ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	records := make([]*models.AnalysisRecord, 0, limit)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

func (s *Store) Summary(ctx context.Context) (*models.HistorySummary, error) {
	summary := &models.HistorySummary{
		ByStatus: make(map[string]int64),
		ByPose:   make(map[string]int64),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT pose_type, status, COUNT(*) FROM analyses GROUP BY pose_type, status`)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize analyses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var poseType, status string
		var count int64
		if err := rows.Scan(&poseType, &status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		summary.Total += count
		summary.ByStatus[status] += count
		summary.ByPose[poseType] += count
	}

	return summary, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.AnalysisRecord, error) {
	var (
		record           models.AnalysisRecord
		feedback, angles string
		createdAt        int64
	)

	err := row.Scan(&record.ID, &record.PoseType, &record.Status, &feedback, &angles,
		&record.Facing, &record.ImageHash, &record.Width, &record.Height, &record.ClientID, &createdAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(feedback), &record.Feedback); err != nil {
		return nil, fmt.Errorf("invalid feedback column: %w", err)
	}
	if err := json.Unmarshal([]byte(angles), &record.Angles); err != nil {
		return nil, fmt.Errorf("invalid angles column: %w", err)
	}
	record.CreatedAt = time.UnixMilli(createdAt).UTC()

	return &record, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
