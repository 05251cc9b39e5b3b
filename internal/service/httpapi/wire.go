package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/manash/memestudio/pkg/models"
)

// envelope is the common response frame. Detail carries framework-level
// errors and may be a string or a structured list.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Detail  json.RawMessage `json:"detail,omitempty"`
}

func (e envelope) message(fallback string) string {
	if e.Message != "" {
		return e.Message
	}
	if len(e.Detail) > 0 {
		var s string
		if err := json.Unmarshal(e.Detail, &s); err == nil && s != "" {
			return s
		}
		return string(bytes.TrimSpace(e.Detail))
	}
	return fallback
}

type textBoxPayload struct {
	Text string `json:"text"`
}

type manualRequest struct {
	TemplateID string           `json:"template_id"`
	TextBoxes  []textBoxPayload `json:"text_boxes"`
	UserID     string           `json:"user_id"`
}

type aiRequest struct {
	Prompt               string `json:"prompt"`
	UserID               string `json:"user_id"`
	ReferenceImageBase64 string `json:"reference_image_base64,omitempty"`
	TemplateID           string `json:"template_id,omitempty"`
}

type createResponse struct {
	envelope
	MemeURL    string `json:"meme_url"`
	MemeID     string `json:"meme_id,omitempty"`
	AIResponse string `json:"ai_response,omitempty"`
}

func (r createResponse) artifactURL(fallback string) (string, error) {
	if !r.Success {
		return "", fmt.Errorf("%w: %s", models.ErrCreation, r.message(fallback))
	}
	if r.MemeURL == "" {
		return "", fmt.Errorf("%w: response carried no meme url", models.ErrCreation)
	}
	return r.MemeURL, nil
}

type uploadResponse struct {
	envelope
	Base64Data  string `json:"base64_data"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

type galleryCreateRequest struct {
	UserID        string  `json:"user_id"`
	MemeURL       string  `json:"meme_url"`
	TemplateID    *string `json:"template_id"`
	PromptUsed    *string `json:"prompt_used,omitempty"`
	IsAIGenerated bool    `json:"is_ai_generated"`
}

// galleryEntry tolerates null optionals and timestamps without a zone, which
// some backends emit.
type galleryEntry struct {
	Success       *bool   `json:"success,omitempty"`
	Message       string  `json:"message,omitempty"`
	Detail        string  `json:"detail,omitempty"`
	ID            string  `json:"id"`
	UserID        string  `json:"user_id"`
	MemeURL       string  `json:"meme_url"`
	TemplateID    *string `json:"template_id"`
	PromptUsed    *string `json:"prompt_used"`
	CreatedAt     string  `json:"created_at"`
	IsAIGenerated bool    `json:"is_ai_generated"`
}

func (g galleryEntry) message(fallback string) string {
	switch {
	case g.Message != "":
		return g.Message
	case g.Detail != "":
		return g.Detail
	}
	return fallback
}

func (g galleryEntry) toModel() models.GalleryEntry {
	entry := models.GalleryEntry{
		ID:            g.ID,
		UserID:        g.UserID,
		ArtifactURL:   g.MemeURL,
		IsAIGenerated: g.IsAIGenerated,
		CreatedAt:     parseTimestamp(g.CreatedAt),
	}
	if g.TemplateID != nil {
		entry.TemplateID = *g.TemplateID
	}
	if g.PromptUsed != nil {
		entry.PromptUsed = *g.PromptUsed
	}
	return entry
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
