// Package reference validates and encodes the optional reference image sent
// with AI generation requests.
package reference

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"

	"github.com/manash/memestudio/internal/service"
	"github.com/manash/memestudio/pkg/models"
)

// Encode validates data and returns its base64 form. The media type check
// runs before the size check, so a non-image always fails as unsupported.
// An empty declaredMIME is sniffed from the content.
func Encode(filename string, data []byte, declaredMIME string, maxSize int64) (*models.EncodedImage, error) {
	mimeType := normalizeMIME(declaredMIME)
	if mimeType == "" {
		mimeType = normalizeMIME(mimetype.Detect(data).String())
	}

	if err := check(mimeType, int64(len(data)), maxSize); err != nil {
		return nil, err
	}

	return &models.EncodedImage{
		Filename: filepath.Base(filename),
		MIMEType: mimeType,
		Base64:   base64.StdEncoding.EncodeToString(data),
		Size:     int64(len(data)),
	}, nil
}

func check(mimeType string, size, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = models.DefaultMaxReferenceSize
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return &models.ValidationError{
			Reason: models.ReasonUnsupportedMedia,
			Detail: fmt.Sprintf("%q is not an image", mimeType),
			Err:    models.ErrUnsupportedMedia,
		}
	}
	if size > maxSize {
		return &models.ValidationError{
			Reason: models.ReasonPayloadTooLarge,
			Detail: fmt.Sprintf("%s exceeds the %s limit", humanize.IBytes(uint64(size)), humanize.IBytes(uint64(maxSize))),
			Err:    models.ErrPayloadTooLarge,
		}
	}
	return nil
}

func normalizeMIME(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}

// Asset holds at most one attached reference image.
type Asset struct {
	maxSize int64
	current *models.EncodedImage
}

func New(maxSize int64) *Asset {
	if maxSize <= 0 {
		maxSize = models.DefaultMaxReferenceSize
	}
	return &Asset{maxSize: maxSize}
}

func (a *Asset) MaxSize() int64 {
	return a.maxSize
}

// Attach validates and encodes data, replacing any attached image. A failed
// attach leaves the previous image in place.
func (a *Asset) Attach(filename string, data []byte, declaredMIME string) (*models.EncodedImage, error) {
	img, err := Encode(filename, data, declaredMIME, a.maxSize)
	if err != nil {
		return nil, err
	}
	a.current = img
	return img, nil
}

// AttachFile sniffs the file's type and size before reading it, so oversized
// files are rejected without being loaded.
func (a *Asset) AttachFile(path string) (*models.EncodedImage, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := check(normalizeMIME(mt.String()), info.Size(), a.maxSize); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return a.Attach(path, data, mt.String())
}

// AttachVia validates locally, then hands the bytes to the backend's upload
// endpoint and keeps the encoding it returns.
func (a *Asset) AttachVia(ctx context.Context, up service.Uploader, filename string, data []byte, declaredMIME string) (*models.EncodedImage, error) {
	local, err := Encode(filename, data, declaredMIME, a.maxSize)
	if err != nil {
		return nil, err
	}

	remote, err := up.UploadImage(ctx, local.Filename, data, local.MIMEType)
	if err != nil {
		return nil, err
	}
	if remote.Base64 == "" {
		remote.Base64 = local.Base64
	}
	if remote.Size == 0 {
		remote.Size = local.Size
	}
	a.current = remote
	return remote, nil
}

// Detach clears the attached image. It is safe to call repeatedly.
func (a *Asset) Detach() {
	a.current = nil
}

func (a *Asset) Current() (*models.EncodedImage, bool) {
	return a.current, a.current != nil
}
