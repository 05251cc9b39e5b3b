// Package gallery keeps the session's view of a user's saved artifacts in
// step with the backing store.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/manash/memestudio/internal/service"
	"github.com/manash/memestudio/pkg/models"
)

// Store holds the latest snapshot of one user's gallery. The snapshot is only
// ever swapped for a new slice, never edited in place.
type Store struct {
	backend service.GalleryBackend
	logger  zerolog.Logger
	deletes singleflight.Group

	mu        sync.RWMutex
	userID    string
	entries   []models.GalleryEntry
	issued    uint64
	committed uint64
}

func New(backend service.GalleryBackend, logger zerolog.Logger) *Store {
	return &Store{
		backend: backend,
		logger:  logger,
	}
}

// Create persists artifact, adds the stored entry to the snapshot and then
// refreshes it so ordering follows the server. A failed refresh is logged and
// does not undo a successful create.
func (s *Store) Create(ctx context.Context, userID string, artifact models.Artifact, templateID string) (*models.GalleryEntry, error) {
	if templateID == "" {
		templateID = artifact.TemplateID
	}
	req := &models.NewGalleryEntry{
		UserID:        userID,
		ArtifactURL:   artifact.URL,
		TemplateID:    templateID,
		PromptUsed:    artifact.PromptUsed,
		IsAIGenerated: artifact.IsAIGenerated,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	created, err := s.backend.CreateGalleryEntry(ctx, req)
	if err != nil {
		return nil, persistenceError(err)
	}

	s.mu.Lock()
	if s.userID == userID {
		next := make([]models.GalleryEntry, 0, len(s.entries)+1)
		next = append(next, s.entries...)
		s.entries = append(next, *created)
	}
	s.mu.Unlock()

	s.logger.Info().Str("user_id", userID).Str("entry_id", created.ID).Bool("ai", created.IsAIGenerated).Msg("gallery entry created")

	if _, err := s.List(ctx, userID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("gallery refresh after create failed")
	}
	return created, nil
}

// List fetches the user's full gallery and replaces the snapshot with it.
// When calls overlap, a response never overwrites one from a later call.
func (s *Store) List(ctx context.Context, userID string) ([]models.GalleryEntry, error) {
	s.mu.Lock()
	s.issued++
	seq := s.issued
	s.mu.Unlock()

	entries, err := s.backend.ListGallery(ctx, userID)
	if err != nil {
		if !errors.Is(err, models.ErrFetch) {
			err = fmt.Errorf("%w: %w", models.ErrFetch, err)
		}
		return nil, err
	}

	snapshot := append([]models.GalleryEntry(nil), entries...)

	s.mu.Lock()
	if seq > s.committed {
		s.committed = seq
		s.userID = userID
		s.entries = snapshot
	}
	s.mu.Unlock()

	return append([]models.GalleryEntry(nil), snapshot...), nil
}

// Delete removes an entry. Concurrent deletes of the same entry share one
// remote call, and deleting an entry that is already gone succeeds.
func (s *Store) Delete(ctx context.Context, entryID, userID string) error {
	key := userID + "\x00" + entryID
	_, err, shared := s.deletes.Do(key, func() (any, error) {
		return nil, s.delete(ctx, entryID, userID)
	})
	if shared {
		s.logger.Debug().Str("entry_id", entryID).Msg("joined in-flight gallery delete")
	}
	return err
}

func (s *Store) delete(ctx context.Context, entryID, userID string) error {
	err := s.backend.DeleteGalleryEntry(ctx, entryID, userID)
	switch {
	case err == nil:
		s.logger.Info().Str("user_id", userID).Str("entry_id", entryID).Msg("gallery entry deleted")
	case errors.Is(err, service.ErrNotFound):
		s.logger.Debug().Str("entry_id", entryID).Msg("gallery entry already gone")
	default:
		return persistenceError(err)
	}

	s.mu.Lock()
	if s.userID == userID {
		next := make([]models.GalleryEntry, 0, len(s.entries))
		for _, e := range s.entries {
			if e.ID != entryID {
				next = append(next, e)
			}
		}
		s.entries = next
	}
	s.mu.Unlock()

	if _, err := s.List(ctx, userID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("gallery refresh after delete failed")
	}
	return nil
}

// Snapshot returns a copy of the most recent list.
func (s *Store) Snapshot() []models.GalleryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.GalleryEntry(nil), s.entries...)
}

func (s *Store) Find(entryID string) (models.GalleryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.ID == entryID {
			return e, true
		}
	}
	return models.GalleryEntry{}, false
}

func persistenceError(err error) error {
	if errors.Is(err, models.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %w", models.ErrPersistence, err)
}
