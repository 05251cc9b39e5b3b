package server

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/manash/memestudio/internal/image"
	"github.com/manash/memestudio/internal/imagegen"
	"github.com/manash/memestudio/internal/reference"
	"github.com/manash/memestudio/internal/security"
	"github.com/manash/memestudio/internal/store"
	"github.com/manash/memestudio/pkg/models"
)

const (
	rootMessage    = "Meme Studio API - template and AI meme creation"
	noImageMessage = "No image was generated. Try making your prompt more specific."

	// multipart framing on top of the file itself
	uploadOverhead  = 1 << 20
	multipartMemory = 32 << 20
)

type textBox struct {
	Text string `json:"text"`
}

type manualRequest struct {
	TemplateID string    `json:"template_id"`
	TextBoxes  []textBox `json:"text_boxes"`
	UserID     string    `json:"user_id"`
}

type aiRequest struct {
	Prompt               string `json:"prompt"`
	UserID               string `json:"user_id"`
	ReferenceImageBase64 string `json:"reference_image_base64,omitempty"`
	TemplateID           string `json:"template_id,omitempty"`
}

type saveRequest struct {
	UserID        string  `json:"user_id"`
	MemeURL       string  `json:"meme_url"`
	TemplateID    *string `json:"template_id"`
	PromptUsed    *string `json:"prompt_used"`
	IsAIGenerated bool    `json:"is_ai_generated"`
}

type createResponse struct {
	Success    bool   `json:"success"`
	MemeURL    string `json:"meme_url,omitempty"`
	AIResponse string `json:"ai_response,omitempty"`
	Message    string `json:"message"`
}

type uploadResponse struct {
	Success     bool   `json:"success"`
	Filename    string `json:"filename"`
	Base64Data  string `json:"base64_data"`
	ContentType string `json:"content_type"`
}

type resultResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.json(w, http.StatusOK, map[string]string{"message": rootMessage})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	storage := "connected"
	if err := s.memes.Ping(r.Context()); err != nil {
		s.logger.Error().Err(err).Msg("storage ping failed")
		status, code, storage = "unhealthy", http.StatusServiceUnavailable, "error"
	}

	ai := "disconnected"
	if s.generator != nil {
		ai = s.generator.Name()
	}

	s.json(w, code, map[string]any{
		"status":    status,
		"timestamp": s.now().UTC(),
		"services": map[string]string{
			"storage": storage,
			"ai":      ai,
		},
	})
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.templates.Templates(r.Context())
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, fmt.Sprintf("Failed to fetch templates: %v", err), err)
		return
	}
	s.json(w, http.StatusOK, templates)
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	doc, err := s.templates.Template(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		s.fail(w, r, http.StatusNotFound, fmt.Sprintf("Template not found: %v", err), err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (s *Server) handleCreateManual(w http.ResponseWriter, r *http.Request) {
	var req manualRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.TemplateID) == "" {
		s.fail(w, r, http.StatusBadRequest, "template_id is required", nil)
		return
	}

	lines := make([]string, len(req.TextBoxes))
	for i, box := range req.TextBoxes {
		lines[i] = box.Text
	}
	memeURL := s.templates.MemeURL(req.TemplateID, lines)

	s.logger.Info().
		Str("user_id", req.UserID).
		Str("template_id", req.TemplateID).
		Int("lines", len(lines)).
		Msg("manual meme created")
	s.json(w, http.StatusOK, createResponse{
		Success: true,
		MemeURL: memeURL,
		Message: "Meme created successfully using manual editing",
	})
}

func (s *Server) handleCreateAI(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		s.fail(w, r, http.StatusInternalServerError, "AI image generation client not initialized", nil)
		return
	}

	var req aiRequest
	if !s.decode(w, r, &req) {
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		s.fail(w, r, http.StatusBadRequest, "prompt is required", nil)
		return
	}

	genReq := &imagegen.Request{}
	if req.ReferenceImageBase64 != "" {
		data, err := decodeReference(req.ReferenceImageBase64)
		if err != nil {
			s.fail(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid image data: %v", err), err)
			return
		}
		img, err := reference.Encode("reference", data, "", s.maxUpload)
		if err != nil {
			s.failValidation(w, r, err)
			return
		}
		genReq.Reference = data
		genReq.ReferenceMIME = img.MIMEType
	}
	genReq.Prompt = imagegen.MemePrompt(prompt, genReq.Reference != nil)

	s.logger.Info().
		Str("user_id", req.UserID).
		Str("generator", s.generator.Name()).
		Bool("reference", genReq.Reference != nil).
		Msg("generating AI meme")

	res, err := s.generator.Generate(r.Context(), genReq)
	switch {
	case errors.Is(err, imagegen.ErrNoImage):
		s.json(w, http.StatusOK, createResponse{
			Success:    false,
			AIResponse: "No response from AI",
			Message:    noImageMessage,
		})
		return
	case errors.Is(err, imagegen.ErrQuotaExceeded):
		s.fail(w, r, http.StatusTooManyRequests, "API quota exceeded. Please try again later.", err)
		return
	case errors.Is(err, imagegen.ErrAPIKeyRequired):
		s.fail(w, r, http.StatusInternalServerError, "API key configuration error. Please check your image API key.", err)
		return
	case err != nil:
		s.fail(w, r, http.StatusInternalServerError, fmt.Sprintf("AI meme creation failed: %v", err), err)
		return
	}
	if len(res.Image) == 0 {
		s.json(w, http.StatusOK, createResponse{
			Success:    false,
			AIResponse: res.Text,
			Message:    noImageMessage,
		})
		return
	}

	mimeType := res.MIMEType
	if mimeType == "" {
		mimeType = "image/png"
	}
	s.json(w, http.StatusOK, createResponse{
		Success:    true,
		MemeURL:    image.EncodeDataURI(mimeType, res.Image),
		AIResponse: res.Text,
		Message:    "AI-enhanced meme created successfully",
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+uploadOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(w, r, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("File exceeds the %s limit", humanize.IBytes(uint64(s.maxUpload))), err)
			return
		}
		s.fail(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid upload: %v", err), err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, "file is required", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, fmt.Sprintf("Image upload failed: %v", err), err)
		return
	}

	img, err := reference.Encode(header.Filename, data, header.Header.Get("Content-Type"), s.maxUpload)
	if err != nil {
		s.failValidation(w, r, err)
		return
	}

	s.json(w, http.StatusOK, uploadResponse{
		Success:     true,
		Filename:    img.Filename,
		Base64Data:  img.Base64,
		ContentType: img.MIMEType,
	})
}

func (s *Server) handleListMemes(w http.ResponseWriter, r *http.Request) {
	entries, err := s.memes.ListByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, fmt.Sprintf("Failed to fetch user memes: %v", err), err)
		return
	}
	s.json(w, http.StatusOK, entries)
}

func (s *Server) handleSaveMeme(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := security.CheckArtifactReference(req.MemeURL); err != nil {
		s.fail(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid meme_url: %v", err), err)
		return
	}

	entry := &models.NewGalleryEntry{
		UserID:        req.UserID,
		ArtifactURL:   req.MemeURL,
		IsAIGenerated: req.IsAIGenerated,
	}
	if req.TemplateID != nil {
		entry.TemplateID = *req.TemplateID
	}
	if req.PromptUsed != nil {
		entry.PromptUsed = *req.PromptUsed
	}

	saved, err := s.memes.Create(r.Context(), entry)
	switch {
	case errors.Is(err, models.ErrValidation):
		s.failValidation(w, r, err)
		return
	case err != nil:
		s.fail(w, r, http.StatusInternalServerError, fmt.Sprintf("Failed to save meme: %v", err), err)
		return
	}

	s.logger.Info().
		Str("user_id", saved.UserID).
		Str("meme_id", saved.ID).
		Bool("ai", saved.IsAIGenerated).
		Msg("meme saved")
	s.json(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteMeme(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.fail(w, r, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	err := s.memes.Delete(r.Context(), chi.URLParam(r, "memeID"), userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.fail(w, r, http.StatusNotFound, "Meme not found or doesn't belong to user", err)
		return
	case err != nil:
		s.fail(w, r, http.StatusInternalServerError, fmt.Sprintf("Failed to delete meme: %v", err), err)
		return
	}
	s.json(w, http.StatusOK, resultResponse{Success: true, Message: "Meme deleted successfully"})
}

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		s.fail(w, r, http.StatusBadRequest, "Please confirm by setting confirm=true", nil)
		return
	}
	if err := s.memes.Clear(r.Context()); err != nil {
		s.fail(w, r, http.StatusInternalServerError, fmt.Sprintf("Failed to clear data: %v", err), err)
		return
	}
	s.logger.Warn().Msg("all user memes cleared")
	s.json(w, http.StatusOK, resultResponse{Success: true, Message: "All data cleared successfully"})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeJSON(r.Body, v); err != nil {
		s.fail(w, r, http.StatusUnprocessableEntity, fmt.Sprintf("Invalid request body: %v", err), err)
		return false
	}
	return true
}

// failValidation maps reference and entry validation errors onto status
// codes.
func (s *Server) failValidation(w http.ResponseWriter, r *http.Request, err error) {
	var verr *models.ValidationError
	detail := err.Error()
	if errors.As(err, &verr) && verr.Detail != "" {
		detail = verr.Detail
	}

	switch {
	case errors.Is(err, models.ErrUnsupportedMedia):
		s.fail(w, r, http.StatusBadRequest, "File must be an image", err)
	case errors.Is(err, models.ErrPayloadTooLarge):
		s.fail(w, r, http.StatusRequestEntityTooLarge, detail, err)
	default:
		s.fail(w, r, http.StatusBadRequest, detail, err)
	}
}

// decodeReference accepts bare base64 or a base64 data URI.
func decodeReference(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		data, _, err := image.DecodeDataURI(s)
		return data, err
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}
