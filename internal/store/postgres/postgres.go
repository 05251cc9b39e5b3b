// Package postgres stores saved memes in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/manash/memestudio/internal/store"
	"github.com/manash/memestudio/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS user_memes (
    id UUID PRIMARY KEY,
    user_id TEXT NOT NULL,
    meme_url TEXT NOT NULL,
    template_id TEXT,
    prompt_used TEXT,
    is_ai_generated BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_user_memes_user_created ON user_memes (user_id, created_at DESC);
`

var _ store.MemeStore = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL and makes sure the schema exists.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if _, err := pool.Exec(connectCtx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Create(ctx context.Context, in *models.NewGalleryEntry) (*models.GalleryEntry, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	entry := &models.GalleryEntry{
		ID:            uuid.New().String(),
		UserID:        in.UserID,
		ArtifactURL:   in.ArtifactURL,
		TemplateID:    in.TemplateID,
		PromptUsed:    in.PromptUsed,
		IsAIGenerated: in.IsAIGenerated,
	}

	err := s.pool.QueryRow(ctx, `
INSERT INTO user_memes (id, user_id, meme_url, template_id, prompt_used, is_ai_generated)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at;
`, entry.ID, entry.UserID, entry.ArtifactURL, nullable(entry.TemplateID), nullable(entry.PromptUsed), entry.IsAIGenerated).
		Scan(&entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert meme: %w", err)
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	return entry, nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]models.GalleryEntry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id::text, user_id, meme_url, template_id, prompt_used, is_ai_generated, created_at
FROM user_memes
WHERE user_id = $1
ORDER BY created_at DESC;
`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.GalleryEntry{}
	for rows.Next() {
		var e models.GalleryEntry
		var templateID, prompt *string
		if err := rows.Scan(&e.ID, &e.UserID, &e.ArtifactURL, &templateID, &prompt, &e.IsAIGenerated, &e.CreatedAt); err != nil {
			return nil, err
		}
		if templateID != nil {
			e.TemplateID = *templateID
		}
		if prompt != nil {
			e.PromptUsed = *prompt
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) Delete(ctx context.Context, id, userID string) error {
	if _, err := uuid.Parse(id); err != nil {
		return store.ErrNotFound
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM user_memes WHERE id = $1 AND user_id = $2;`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE user_memes;`)
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
