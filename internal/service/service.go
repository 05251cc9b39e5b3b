// Package service declares the remote contracts the composition core consumes.
// Transport is left to implementations such as the httpapi client.
package service

import (
	"context"
	"errors"

	"github.com/manash/memestudio/pkg/models"
)

// ErrNotFound is returned when the remote side reports that an entity does
// not exist.
var ErrNotFound = errors.New("not found")

type TemplateSource interface {
	Templates(ctx context.Context) ([]models.Template, error)
}

// ManualInput is the payload for rendering text onto a template.
type ManualInput struct {
	TemplateID string
	TextBoxes  []models.TextBox
}

// AIInput is the payload for prompt-driven generation.
type AIInput struct {
	Prompt               string
	ReferenceImageBase64 string
	TemplateID           string
}

// Creator produces artifacts. Both methods return the artifact URL, which may
// be a remote URL or a data URI.
type Creator interface {
	CreateManual(ctx context.Context, userID string, in ManualInput) (string, error)
	CreateAI(ctx context.Context, userID string, in AIInput) (string, error)
}

type Uploader interface {
	UploadImage(ctx context.Context, filename string, data []byte, contentType string) (*models.EncodedImage, error)
}

type GalleryBackend interface {
	ListGallery(ctx context.Context, userID string) ([]models.GalleryEntry, error)
	CreateGalleryEntry(ctx context.Context, entry *models.NewGalleryEntry) (*models.GalleryEntry, error)
	DeleteGalleryEntry(ctx context.Context, entryID, userID string) error
}

// Backend is everything the interactive front end talks to.
type Backend interface {
	TemplateSource
	Creator
	Uploader
	GalleryBackend
}

type Config struct {
	BaseURL    string
	TimeoutSec int
	Verbose    bool
}
