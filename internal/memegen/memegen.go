// Package memegen talks to the memegen.link API, which both lists templates
// and renders text onto them through its URL scheme.
package memegen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/manash/memestudio/pkg/models"
)

const (
	DefaultBaseURL = "https://api.memegen.link"
	defaultTimeout = 10 * time.Second

	// memegen renders at its own size; these are the nominal dimensions
	// reported for every template.
	templateWidth  = 500
	templateHeight = 500
	defaultLines   = 2
	minLines       = 2
)

var ErrTemplateNotFound = errors.New("template not found")

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

func New(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type rawTemplate struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Lines   *int   `json:"lines"`
	Example struct {
		URL string `json:"url"`
	} `json:"example"`
}

// Templates lists every template memegen knows about, filling in defaults for
// missing names, preview URLs and line counts.
func (c *Client) Templates(ctx context.Context) ([]models.Template, error) {
	body, err := c.get(ctx, "/templates/")
	if err != nil {
		return nil, err
	}

	var raw []rawTemplate
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: failed to parse templates: %v", models.ErrFetch, err)
	}

	templates := make([]models.Template, 0, len(raw))
	for _, r := range raw {
		templates = append(templates, c.toTemplate(r))
	}
	c.logger.Debug().Int("count", len(templates)).Msg("fetched memegen templates")
	return templates, nil
}

// Template returns memegen's own document for one template.
func (c *Client) Template(ctx context.Context, id string) (json.RawMessage, error) {
	body, err := c.get(ctx, "/templates/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: invalid JSON for template %s", models.ErrFetch, id)
	}
	return body, nil
}

func (c *Client) toTemplate(r rawTemplate) models.Template {
	t := models.Template{
		ID:           r.ID,
		Name:         r.Name,
		SourceURL:    r.Example.URL,
		TextBoxCount: defaultLines,
		Width:        templateWidth,
		Height:       templateHeight,
	}
	if t.Name == "" {
		t.Name = titleCase(strings.ReplaceAll(r.ID, "_", " "))
	}
	if t.SourceURL == "" {
		t.SourceURL = fmt.Sprintf("%s/images/%s.png", c.baseURL, r.ID)
	}
	if r.Lines != nil {
		t.TextBoxCount = *r.Lines
	}
	return t
}

// MemeURL builds the render URL for templateID with one path segment per
// line. Blank lines render as empty, and at least two segments are always
// present.
func (c *Client) MemeURL(templateID string, lines []string) string {
	parts := make([]string, 0, max(len(lines), minLines))
	for _, line := range lines {
		parts = append(parts, EscapeLine(line))
	}
	for len(parts) < minLines {
		parts = append(parts, "_")
	}
	return fmt.Sprintf("%s/images/%s/%s.png", c.baseURL, templateID, strings.Join(parts, "/"))
}

var lineEscaper = strings.NewReplacer(
	" ", "_",
	"?", "~q",
	"#", "~h",
	"/", "~s",
)

// EscapeLine encodes one line of meme text in memegen's path syntax.
func EscapeLine(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	return lineEscaper.Replace(s)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", models.ErrFetch, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %w", models.ErrFetch, ErrTemplateNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: memegen returned status %d", models.ErrFetch, resp.StatusCode)
	}
	return body, nil
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
