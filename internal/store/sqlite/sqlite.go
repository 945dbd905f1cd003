// Package sqlite stores video assets in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/your-org/streamforge/internal/video"
)

//go:embed schema.sql
var schemaSQL string

// Store is a video.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open creates the parent directory if needed, connects and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Create(ctx context.Context, asset video.Asset, tags []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	createdAt := asset.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO videos (id, uploader_id, title, description, processing_status, video_url, views, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		asset.ID, asset.UploaderID, asset.Title, asset.Description,
		string(asset.Status), asset.SourceURL, asset.Views, createdAt.UnixMilli(),
	)
	var sqlErr *moderncsqlite.Error
	if errors.As(err, &sqlErr) && sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
		return video.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}

	for _, name := range video.NormalizeTags(tags) {
		var tagID int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO tags (name) VALUES (?)
			ON CONFLICT(name) DO UPDATE SET name = excluded.name
			RETURNING id`, name).Scan(&tagID)
		if err != nil {
			return fmt.Errorf("upsert tag %q: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO video_tags (video_id, tag_id) VALUES (?, ?)`, asset.ID, tagID); err != nil {
			return fmt.Errorf("link tag %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (video.Asset, error) {
	var (
		asset     video.Asset
		status    string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, uploader_id, title, description, processing_status, video_url, views, created_at
		FROM videos WHERE id = ?`, id).Scan(
		&asset.ID, &asset.UploaderID, &asset.Title, &asset.Description,
		&status, &asset.SourceURL, &asset.Views, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return video.Asset{}, video.ErrNotFound
	}
	if err != nil {
		return video.Asset{}, fmt.Errorf("select video: %w", err)
	}
	asset.Status = video.Status(status)
	asset.CreatedAt = time.UnixMilli(createdAt).UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name FROM tags t
		JOIN video_tags vt ON vt.tag_id = t.id
		WHERE vt.video_id = ?
		ORDER BY t.name`, id)
	if err != nil {
		return video.Asset{}, fmt.Errorf("select tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return video.Asset{}, fmt.Errorf("scan tag: %w", err)
		}
		asset.Tags = append(asset.Tags, name)
	}
	return asset, rows.Err()
}

func (s *Store) Complete(ctx context.Context, id, sourceURL string) error {
	return s.finish(ctx, id, video.StatusCompleted, sourceURL)
}

func (s *Store) Fail(ctx context.Context, id string) error {
	return s.finish(ctx, id, video.StatusFailed, "")
}

func (s *Store) finish(ctx context.Context, id string, status video.Status, sourceURL string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE videos SET processing_status = ?, video_url = ?
		WHERE id = ? AND processing_status = 'processing'`,
		string(status), sourceURL, id)
	if err != nil {
		return fmt.Errorf("update video status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM videos WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return video.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("select video: %w", err)
	}
	return video.ErrAlreadyTerminal
}

func (s *Store) Close() error {
	return s.db.Close()
}
