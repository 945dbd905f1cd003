// Package postgres stores video assets in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/streamforge/internal/video"
)

const uniqueViolation = "23505"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		uploader_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		processing_status TEXT NOT NULL DEFAULT 'processing'
			CHECK (processing_status IN ('processing', 'completed', 'failed')),
		video_url TEXT NOT NULL DEFAULT '',
		views BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS video_tags (
		video_id TEXT NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
		tag_id BIGINT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		PRIMARY KEY (video_id, tag_id)
	)`,
}

// Config tunes the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
	ApplicationName string
}

// Store is a video.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to PostgreSQL and makes sure the schema exists.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Create(ctx context.Context, asset video.Asset, tags []string) error {
	createdAt := asset.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO videos (id, uploader_id, title, description, processing_status, video_url, views, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			asset.ID, asset.UploaderID, asset.Title, asset.Description,
			string(asset.Status), asset.SourceURL, asset.Views, createdAt,
		)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return video.ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("insert video: %w", err)
		}
		for _, name := range video.NormalizeTags(tags) {
			var tagID int64
			err := tx.QueryRow(ctx, `
				INSERT INTO tags (name) VALUES ($1)
				ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
				RETURNING id`, name).Scan(&tagID)
			if err != nil {
				return fmt.Errorf("upsert tag %q: %w", name, err)
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO video_tags (video_id, tag_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING`, asset.ID, tagID); err != nil {
				return fmt.Errorf("link tag %q: %w", name, err)
			}
		}
		return nil
	})
}

func (s *Store) Get(ctx context.Context, id string) (video.Asset, error) {
	var (
		asset  video.Asset
		status string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, uploader_id, title, description, processing_status, video_url, views, created_at
		FROM videos WHERE id = $1`, id).Scan(
		&asset.ID, &asset.UploaderID, &asset.Title, &asset.Description,
		&status, &asset.SourceURL, &asset.Views, &asset.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return video.Asset{}, video.ErrNotFound
	}
	if err != nil {
		return video.Asset{}, fmt.Errorf("select video: %w", err)
	}
	asset.Status = video.Status(status)

	rows, err := s.pool.Query(ctx, `
		SELECT t.name FROM tags t
		JOIN video_tags vt ON vt.tag_id = t.id
		WHERE vt.video_id = $1
		ORDER BY t.name`, id)
	if err != nil {
		return video.Asset{}, fmt.Errorf("select tags: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return video.Asset{}, fmt.Errorf("collect tags: %w", err)
	}
	if len(names) > 0 {
		asset.Tags = names
	}
	return asset, nil
}

func (s *Store) Complete(ctx context.Context, id, sourceURL string) error {
	return s.finish(ctx, id, video.StatusCompleted, sourceURL)
}

func (s *Store) Fail(ctx context.Context, id string) error {
	return s.finish(ctx, id, video.StatusFailed, "")
}

func (s *Store) finish(ctx context.Context, id string, status video.Status, sourceURL string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE videos SET processing_status = $1, video_url = $2
		WHERE id = $3 AND processing_status = 'processing'`,
		string(status), sourceURL, id)
	if err != nil {
		return fmt.Errorf("update video status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM videos WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("select video: %w", err)
	}
	if !exists {
		return video.ErrNotFound
	}
	return video.ErrAlreadyTerminal
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
