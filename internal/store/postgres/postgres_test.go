package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/manash/memestudio/internal/store"
	"github.com/manash/memestudio/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("MEMESTUDIO_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("MEMESTUDIO_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	s, err := Open(ctx, url)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	t.Cleanup(func() {
		s.Clear(context.Background())
		s.Close()
	})
	return s
}

// getEntry reads one row directly, bypassing the per-user listing.
func getEntry(ctx context.Context, s *Store, id string) (*models.GalleryEntry, error) {
	var e models.GalleryEntry
	var templateID, prompt *string
	err := s.pool.QueryRow(ctx, `
SELECT id::text, user_id, meme_url, template_id, prompt_used, is_ai_generated, created_at
FROM user_memes WHERE id = $1;
`, id).Scan(&e.ID, &e.UserID, &e.ArtifactURL, &templateID, &prompt, &e.IsAIGenerated, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if templateID != nil {
		e.TemplateID = *templateID
	}
	if prompt != nil {
		e.PromptUsed = *prompt
	}
	return &e, nil
}

func TestOpen_InvalidURL(t *testing.T) {
	if _, err := Open(context.Background(), "://not-a-url"); err == nil {
		t.Error("Open() error = nil for an invalid URL")
	}
}

func TestStore_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	first, err := s.Create(ctx, &models.NewGalleryEntry{UserID: "user_123", ArtifactURL: "https://x/a.png", TemplateID: "drake"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	second, err := s.Create(ctx, &models.NewGalleryEntry{UserID: "user_123", ArtifactURL: "data:image/png;base64,AA", PromptUsed: "p", IsAIGenerated: true})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	entries, err := s.ListByUser(ctx, "user_123")
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(entries) != 2 || entries[0].ID != second.ID || entries[1].ID != first.ID {
		t.Fatalf("ListByUser() = %+v", entries)
	}

	got, err := getEntry(ctx, s, first.ID)
	if err != nil {
		t.Fatalf("getEntry() error = %v", err)
	}
	if got.TemplateID != "drake" || got.PromptUsed != "" {
		t.Errorf("getEntry() = %+v", got)
	}

	if err := s.Delete(ctx, first.ID, "intruder"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Delete() by other user error = %v", err)
	}
	if err := s.Delete(ctx, first.ID, "user_123"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, "not-a-uuid", "user_123"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Delete(not-a-uuid) error = %v", err)
	}
	if _, err := getEntry(ctx, s, first.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("getEntry() after delete error = %v", err)
	}
}
