// Package store declares the durable storage the backend keeps saved memes in.
package store

import (
	"context"
	"errors"

	"github.com/manash/memestudio/pkg/models"
)

// ErrNotFound is returned by Delete when no entry with that id belongs to the
// user.
var ErrNotFound = errors.New("meme not found or doesn't belong to user")

type MemeStore interface {
	Create(ctx context.Context, entry *models.NewGalleryEntry) (*models.GalleryEntry, error)
	// ListByUser returns the user's entries, newest first.
	ListByUser(ctx context.Context, userID string) ([]models.GalleryEntry, error)
	Delete(ctx context.Context, id, userID string) error
	Clear(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
