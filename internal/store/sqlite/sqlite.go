// Package sqlite stores saved memes in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/manash/memestudio/internal/store"
	"github.com/manash/memestudio/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS user_memes (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    meme_url TEXT NOT NULL,
    template_id TEXT,
    prompt_used TEXT,
    is_ai_generated INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_user_memes_user_created ON user_memes(user_id, created_at DESC);
`

// timeLayout is fixed width so created_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var _ store.MemeStore = (*Store)(nil)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// DefaultPath is where the database lives when no path is configured.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".memestudio", "memes.db"), nil
}

func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		dbPath = p
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
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
		CreatedAt:     s.now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_memes (id, user_id, meme_url, template_id, prompt_used, is_ai_generated, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.ArtifactURL, nullString(entry.TemplateID), nullString(entry.PromptUsed),
		entry.IsAIGenerated, entry.CreatedAt.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to insert meme: %w", err)
	}
	return entry, nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]models.GalleryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, meme_url, template_id, prompt_used, is_ai_generated, created_at
		 FROM user_memes WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.GalleryEntry{}
	for rows.Next() {
		var e models.GalleryEntry
		var templateID, prompt sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.UserID, &e.ArtifactURL, &templateID, &prompt, &e.IsAIGenerated, &createdAt); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
		}
		e.TemplateID = templateID.String
		e.PromptUsed = prompt.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_memes WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_memes`)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
