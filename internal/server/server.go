// Package server is the reference backend for the meme studio: it serves the
// template catalog, builds manual memes, runs AI generation and keeps each
// user's gallery.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/manash/memestudio/internal/imagegen"
	"github.com/manash/memestudio/internal/store"
	"github.com/manash/memestudio/pkg/models"
)

// Templates is the template source the server proxies. memegen.Client
// implements it.
type Templates interface {
	Templates(ctx context.Context) ([]models.Template, error)
	Template(ctx context.Context, id string) (json.RawMessage, error)
	MemeURL(templateID string, lines []string) string
}

type Server struct {
	templates Templates
	memes     store.MemeStore
	generator imagegen.Generator
	logger    zerolog.Logger
	origins   []string
	maxUpload int64
	now       func() time.Time
}

type Option func(*Server)

// WithGenerator enables the AI endpoint. Without one it answers 500.
func WithGenerator(g imagegen.Generator) Option {
	return func(s *Server) { s.generator = g }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

func WithMaxUpload(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

func New(templates Templates, memes store.MemeStore, opts ...Option) *Server {
	s := &Server{
		templates: templates,
		memes:     memes,
		logger:    zerolog.Nop(),
		origins:   []string{"*"},
		maxUpload: models.DefaultMaxReferenceSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the API mounted under /api.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		requestLogger(s.logger),
		cors(s.origins),
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/", s.handleRoot)
		r.Get("/health", s.handleHealth)

		r.Get("/templates", s.handleTemplates)
		r.Get("/templates/{templateID}", s.handleTemplate)

		r.Post("/create-meme-manual", s.handleCreateManual)
		r.Post("/create-meme-ai", s.handleCreateAI)
		r.Post("/upload-image", s.handleUpload)

		r.Get("/user-memes/{userID}", s.handleListMemes)
		r.Post("/user-memes", s.handleSaveMeme)
		r.Delete("/user-memes/{memeID}", s.handleDeleteMeme)

		r.Delete("/clear-all-data", s.handleClearAll)
	})
	return r
}

func (s *Server) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// fail writes an error in the {"detail": "..."} shape clients expect.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, code int, detail string, err error) {
	ev := s.logger.Warn()
	if code >= http.StatusInternalServerError {
		ev = s.logger.Error()
	}
	ev.Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Int("status", code).
		Msg(detail)
	s.json(w, code, map[string]string{"detail": detail})
}
