package models

import (
	"slices"
	"strings"
	"time"
)

type Pipeline string

const (
	PipelineNone   Pipeline = ""
	PipelineManual Pipeline = "manual"
	PipelineAI     Pipeline = "ai"
)

func (p Pipeline) String() string {
	if p == PipelineNone {
		return "none"
	}
	return string(p)
}

type OutputFormat string

const (
	FormatPNG  OutputFormat = "png"
	FormatJPEG OutputFormat = "jpeg"
	FormatWebP OutputFormat = "webp"
	FormatGIF  OutputFormat = "gif"
)

func ValidFormats() []OutputFormat {
	return []OutputFormat{FormatPNG, FormatJPEG, FormatWebP, FormatGIF}
}

func (f OutputFormat) IsValid() bool {
	return slices.Contains(ValidFormats(), f)
}

func (f OutputFormat) String() string {
	return string(f)
}

// Template is a base image plus the number of text regions it conventionally
// supports. Templates are immutable once fetched.
type Template struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	SourceURL    string `json:"url"`
	TextBoxCount int    `json:"box_count"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
}

func (t Template) Validate() error {
	switch {
	case strings.TrimSpace(t.ID) == "":
		return &ValidationError{Reason: "template-id", Detail: "template id is required"}
	case t.TextBoxCount < 0:
		return &ValidationError{Reason: "template-box-count", Detail: "box count must not be negative"}
	case t.Width <= 0 || t.Height <= 0:
		return &ValidationError{Reason: "template-dimensions", Detail: "width and height must be positive"}
	}
	return nil
}

// DefaultMaxReferenceSize is the upload limit for reference images.
const DefaultMaxReferenceSize int64 = 10 << 20

// EncodedImage is a reference image ready to be sent with a generation request.
type EncodedImage struct {
	Filename string
	MIMEType string
	Base64   string
	Size     int64
}

type GenerationRequest struct {
	Prompt         string
	ReferenceImage *EncodedImage
	TemplateID     string
}

func NewGenerationRequest(prompt string) *GenerationRequest {
	return &GenerationRequest{Prompt: prompt}
}

// TrimmedPrompt returns the prompt with surrounding whitespace removed.
func (r *GenerationRequest) TrimmedPrompt() string {
	return strings.TrimSpace(r.Prompt)
}

func (r *GenerationRequest) Validate() error {
	if r.TrimmedPrompt() == "" {
		return NewValidationError(ReasonEmptyPrompt)
	}
	if img := r.ReferenceImage; img != nil {
		if !strings.HasPrefix(img.MIMEType, "image/") {
			return &ValidationError{Reason: ReasonUnsupportedMedia, Detail: img.MIMEType, Err: ErrUnsupportedMedia}
		}
		if img.Size > DefaultMaxReferenceSize {
			return &ValidationError{Reason: ReasonPayloadTooLarge, Err: ErrPayloadTooLarge}
		}
	}
	return nil
}

// Artifact is an image produced by a creation pipeline before it is saved.
type Artifact struct {
	URL           string
	IsAIGenerated bool
	PromptUsed    string
	TemplateID    string
}

// IsDataURI reports whether the artifact is inlined rather than hosted.
func (a Artifact) IsDataURI() bool {
	return strings.HasPrefix(a.URL, "data:")
}

type GalleryEntry struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	ArtifactURL   string    `json:"meme_url"`
	TemplateID    string    `json:"template_id,omitempty"`
	PromptUsed    string    `json:"prompt_used,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	IsAIGenerated bool      `json:"is_ai_generated"`
}

// NewGalleryEntry describes an entry to be persisted. The store assigns ID
// and CreatedAt.
type NewGalleryEntry struct {
	UserID        string
	ArtifactURL   string
	TemplateID    string
	PromptUsed    string
	IsAIGenerated bool
}

func (e *NewGalleryEntry) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return &ValidationError{Reason: "user-id", Detail: "user id is required"}
	}
	if strings.TrimSpace(e.ArtifactURL) == "" {
		return &ValidationError{Reason: "artifact-url", Detail: "artifact url is required"}
	}
	return nil
}
