// Package httpapi implements the service contracts over the backend's JSON API.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/manash/memestudio/internal/service"
	"github.com/manash/memestudio/pkg/models"
)

const (
	defaultBaseURL = "http://localhost:8001"
	defaultTimeout = 120 * time.Second
	apiPrefix      = "/api"
)

var _ service.Backend = (*Client)(nil)

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
	verbose    bool
}

func New(cfg *service.Config, logger zerolog.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := defaultTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		verbose: cfg.Verbose,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Templates(ctx context.Context) ([]models.Template, error) {
	var templates []models.Template
	if err := c.doJSON(ctx, http.MethodGet, "/templates", nil, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

func (c *Client) CreateManual(ctx context.Context, userID string, in service.ManualInput) (string, error) {
	req := manualRequest{
		TemplateID: in.TemplateID,
		TextBoxes:  make([]textBoxPayload, 0, len(in.TextBoxes)),
		UserID:     userID,
	}
	for _, box := range in.TextBoxes {
		req.TextBoxes = append(req.TextBoxes, textBoxPayload{Text: box.Content})
	}

	var resp createResponse
	if err := c.doJSON(ctx, http.MethodPost, "/create-meme-manual", req, &resp); err != nil {
		return "", err
	}
	return resp.artifactURL("failed to create meme")
}

func (c *Client) CreateAI(ctx context.Context, userID string, in service.AIInput) (string, error) {
	req := aiRequest{
		Prompt:               in.Prompt,
		UserID:               userID,
		ReferenceImageBase64: in.ReferenceImageBase64,
		TemplateID:           in.TemplateID,
	}

	var resp createResponse
	if err := c.doJSON(ctx, http.MethodPost, "/create-meme-ai", req, &resp); err != nil {
		return "", err
	}
	return resp.artifactURL("AI generation failed")
}

func (c *Client) UploadImage(ctx context.Context, filename string, data []byte, contentType string) (*models.EncodedImage, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	status, respBody, err := c.do(ctx, http.MethodPost, "/upload-image", body, writer.FormDataContentType())
	if err != nil {
		return nil, err
	}
	if err := statusError(status, respBody); err != nil {
		return nil, err
	}

	var resp uploadResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", models.ErrFetch, err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: %s", models.ErrFetch, resp.message("upload failed"))
	}

	mimeType := resp.ContentType
	if mimeType == "" {
		mimeType = contentType
	}
	name := resp.Filename
	if name == "" {
		name = filename
	}
	return &models.EncodedImage{
		Filename: name,
		MIMEType: mimeType,
		Base64:   resp.Base64Data,
		Size:     int64(len(data)),
	}, nil
}

func (c *Client) ListGallery(ctx context.Context, userID string) ([]models.GalleryEntry, error) {
	var wire []galleryEntry
	if err := c.doJSON(ctx, http.MethodGet, "/user-memes/"+url.PathEscape(userID), nil, &wire); err != nil {
		return nil, err
	}

	entries := make([]models.GalleryEntry, 0, len(wire))
	for _, w := range wire {
		entries = append(entries, w.toModel())
	}
	return entries, nil
}

func (c *Client) CreateGalleryEntry(ctx context.Context, entry *models.NewGalleryEntry) (*models.GalleryEntry, error) {
	req := galleryCreateRequest{
		UserID:        entry.UserID,
		MemeURL:       entry.ArtifactURL,
		TemplateID:    optional(entry.TemplateID),
		PromptUsed:    optional(entry.PromptUsed),
		IsAIGenerated: entry.IsAIGenerated,
	}

	var resp galleryEntry
	if err := c.doJSON(ctx, http.MethodPost, "/user-memes", req, &resp); err != nil {
		return nil, err
	}
	if resp.Success != nil && !*resp.Success {
		return nil, fmt.Errorf("%w: %s", models.ErrPersistence, resp.message("failed to save meme"))
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("%w: response carried no entry id", models.ErrPersistence)
	}

	created := resp.toModel()
	return &created, nil
}

func (c *Client) DeleteGalleryEntry(ctx context.Context, entryID, userID string) error {
	path := "/user-memes/" + url.PathEscape(entryID) + "?user_id=" + url.QueryEscape(userID)

	var resp envelope
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", models.ErrPersistence, resp.message("failed to delete meme"))
	}
	return nil
}

// Health returns the backend's health document.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var doc map[string]any
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		jsonData, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
		contentType = "application/json"
	}

	status, respBody, err := c.do(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	if err := statusError(status, respBody); err != nil {
		return err
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: failed to parse response: %v", models.ErrFetch, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (int, []byte, error) {
	endpoint := c.baseURL + apiPrefix + path

	var reqBody []byte
	if body != nil && c.verbose {
		data, err := io.ReadAll(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to buffer request: %w", err)
		}
		reqBody = data
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")

	c.logRequest(method, endpoint, contentType, reqBody)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn().Err(err).Str("method", method).Str("url", endpoint).Msg("request failed")
		return 0, nil, fmt.Errorf("%w: failed to send request: %v", models.ErrFetch, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: failed to read response: %v", models.ErrFetch, err)
	}

	c.logResponse(method, endpoint, resp.StatusCode, time.Since(start), respBody)

	return resp.StatusCode, respBody, nil
}

// statusError maps a non-2xx response to ErrFetch, additionally marking 404s
// with service.ErrNotFound.
func statusError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	msg := remoteMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}

	if status == http.StatusNotFound {
		return fmt.Errorf("%w: %w: status %d: %s", models.ErrFetch, service.ErrNotFound, status, msg)
	}
	return fmt.Errorf("%w: status %d: %s", models.ErrFetch, status, msg)
}

func remoteMessage(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	return env.message("")
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
