// Package image turns artifact URLs into bytes on disk.
package image

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/manash/memestudio/internal/security"
	"github.com/manash/memestudio/pkg/models"
)

const maxDownloadSize = 20 << 20

var (
	ErrNotImage    = errors.New("content is not an image")
	ErrBadDataURI  = errors.New("malformed data URI")
	ErrTooLarge    = errors.New("image exceeds download limit")
	ErrEmptySource = errors.New("artifact has no URL")
)

type Saver struct {
	httpClient *http.Client
	policy     security.URLPolicy
	baseDir    string
	now        func() time.Time
}

type Option func(*Saver)

// WithPolicy replaces the URL policy applied before downloads.
func WithPolicy(p security.URLPolicy) Option {
	return func(s *Saver) { s.policy = p }
}

// WithBaseDir resolves relative save paths against dir.
func WithBaseDir(dir string) Option {
	return func(s *Saver) { s.baseDir = dir }
}

func WithHTTPClient(c *http.Client) Option {
	return func(s *Saver) { s.httpClient = c }
}

func NewSaver(opts ...Option) *Saver {
	s := &Saver{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		policy: security.URLPolicy{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WriteArtifact stores the artifact's image at path, which must be relative.
// An empty path gets a generated name. It returns the path written.
func (s *Saver) WriteArtifact(ctx context.Context, artifact models.Artifact, path string) (string, error) {
	data, mtype, err := s.Fetch(ctx, artifact.URL)
	if err != nil {
		return "", err
	}

	if path == "" {
		path = GenerateFilename(artifact, mtype.Extension(), s.now())
	}
	if err := security.ValidateSavePath(path); err != nil {
		return "", fmt.Errorf("invalid save path: %w", err)
	}

	full := path
	if s.baseDir != "" {
		full = filepath.Join(s.baseDir, path)
	}
	if err := ensureDir(full); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return full, nil
}

// Fetch returns the image bytes behind an artifact URL together with the
// sniffed media type.
func (s *Saver) Fetch(ctx context.Context, rawURL string) ([]byte, *mimetype.MIME, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case rawURL == "":
		return nil, nil, ErrEmptySource
	case strings.HasPrefix(rawURL, "data:"):
		data, _, err = DecodeDataURI(rawURL)
	default:
		data, err = s.download(ctx, rawURL)
	}
	if err != nil {
		return nil, nil, err
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, nil, fmt.Errorf("%w: detected %s", ErrNotImage, mtype.String())
	}
	return data, mtype, nil
}

// DecodeDataURI decodes a base64 data URI and returns its bytes and declared
// media type.
func DecodeDataURI(uri string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, "", ErrBadDataURI
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrBadDataURI, err)
	}
	return data, strings.TrimSuffix(header, ";base64"), nil
}

// EncodeDataURI is the inverse of DecodeDataURI.
func EncodeDataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func (s *Saver) download(ctx context.Context, rawURL string) ([]byte, error) {
	if err := s.policy.Check(rawURL); err != nil {
		return nil, fmt.Errorf("refusing to download %s: %w", rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > maxDownloadSize {
		return nil, ErrTooLarge
	}
	return data, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

// GenerateFilename names an artifact after its template, or "ai-meme" for
// template-less generations, followed by a timestamp.
func GenerateFilename(artifact models.Artifact, ext string, t time.Time) string {
	stem := "meme"
	switch {
	case artifact.TemplateID != "":
		stem = security.SanitizeFilename(artifact.TemplateID)
	case artifact.IsAIGenerated:
		stem = "ai-meme"
	}
	if ext == "" {
		ext = "." + models.FormatPNG.String()
	}
	return fmt.Sprintf("%s-%s%s", stem, t.Format("20060102-150405"), ext)
}
