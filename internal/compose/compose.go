// Package compose holds the editing session state machine. It sequences
// template selection, artifact creation and saving, and leaves rendering and
// persistence to the services it is given.
package compose

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/manash/memestudio/internal/overlay"
	"github.com/manash/memestudio/internal/service"
	"github.com/manash/memestudio/pkg/models"
)

// ErrDiscarded is returned by a submit whose result arrived after the session
// was reset or moved to another template.
var ErrDiscarded = errors.New("result discarded: session changed while request was in flight")

// State is where the session sits in the editing flow.
type State int

const (
	StateIdle State = iota
	StateTemplateSelected
	StateEditing
	StateArtifactReady
)

func (s State) String() string {
	switch s {
	case StateTemplateSelected:
		return "template-selected"
	case StateEditing:
		return "editing"
	case StateArtifactReady:
		return "artifact-ready"
	default:
		return "idle"
	}
}

// Saver persists artifacts. gallery.Store satisfies it.
type Saver interface {
	Create(ctx context.Context, userID string, artifact models.Artifact, templateID string) (*models.GalleryEntry, error)
}

// ArtifactWriter writes an artifact's bytes to a local path and returns the
// path written.
type ArtifactWriter interface {
	WriteArtifact(ctx context.Context, artifact models.Artifact, path string) (string, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithNotifier receives one Notice per submit or save outcome.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithWriter enables Download.
func WithWriter(w ArtifactWriter) Option {
	return func(o *Orchestrator) { o.writer = w }
}

// Orchestrator drives one user's editing session. It is safe for concurrent
// use; the lock is not held across calls to the creator or saver.
type Orchestrator struct {
	creator  service.Creator
	saver    Saver
	writer   ArtifactWriter
	notifier Notifier
	logger   zerolog.Logger

	mu         sync.Mutex
	state      State
	pipeline   models.Pipeline
	template   *models.Template
	artifact   *models.Artifact
	generation uint64
	submitting bool
	saving     bool
}

// New returns an idle orchestrator that creates artifacts through creator
// and persists them through saver.
func New(creator service.Creator, saver Saver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		creator: creator,
		saver:   saver,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Pipeline returns the active pipeline, or PipelineNone outside editing.
func (o *Orchestrator) Pipeline() models.Pipeline {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pipeline
}

// Template returns the selected template, if any.
func (o *Orchestrator) Template() (models.Template, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.template == nil {
		return models.Template{}, false
	}
	return *o.template, true
}

// Artifact returns the artifact produced by the last successful submit.
func (o *Orchestrator) Artifact() (models.Artifact, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.artifact == nil {
		return models.Artifact{}, false
	}
	return *o.artifact, true
}

// Describe renders the state with its pipeline, e.g. "editing(manual)".
func (o *Orchestrator) Describe() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.describe()
}

func (o *Orchestrator) describe() string {
	if o.state == StateEditing {
		return fmt.Sprintf("%s(%s)", o.state, o.pipeline)
	}
	return o.state.String()
}

// SelectTemplate makes t the active template from any state. Any artifact and
// pipeline from before are dropped.
func (o *Orchestrator) SelectTemplate(t models.Template) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.generation++
	o.template = &t
	o.artifact = nil
	o.pipeline = models.PipelineNone
	o.state = StateTemplateSelected

	o.logger.Debug().Str("template_id", t.ID).Msg("template selected")
}

// BeginManual switches to text overlay editing. It needs a selected template
// and fails with ErrBusy while a submit is in flight.
func (o *Orchestrator) BeginManual() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.template == nil {
		return models.NewPreconditionError(models.ReasonNoTemplate, o.describe())
	}
	return o.begin(models.PipelineManual)
}

// BeginAI switches to prompt-driven generation. A template is optional.
func (o *Orchestrator) BeginAI() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.begin(models.PipelineAI)
}

func (o *Orchestrator) begin(p models.Pipeline) error {
	if o.submitting {
		return models.ErrBusy
	}
	o.artifact = nil
	o.pipeline = p
	o.state = StateEditing
	return nil
}

// SubmitManual renders ov onto the selected template.
func (o *Orchestrator) SubmitManual(ctx context.Context, userID string, ov *overlay.Overlay) (models.Artifact, error) {
	return o.Submit(ctx, userID, ManualJob{Overlay: ov})
}

// SubmitAI generates an image from req. An empty prompt is rejected before
// any request is made.
func (o *Orchestrator) SubmitAI(ctx context.Context, userID string, req *models.GenerationRequest) (models.Artifact, error) {
	return o.Submit(ctx, userID, AIJob{Request: req})
}

// Submit runs job against the creation service. On success the session moves
// to artifact-ready; on any failure it stays in the editing state it was in.
func (o *Orchestrator) Submit(ctx context.Context, userID string, job Job) (models.Artifact, error) {
	artifact, err := o.submit(ctx, userID, job)
	if err != nil {
		o.notify(Notice{Kind: NoticeError, Op: "submit", Message: err.Error(), Err: err})
		return models.Artifact{}, err
	}
	msg := "Meme created"
	if artifact.IsAIGenerated {
		msg = "AI meme generated"
	}
	o.notify(Notice{Kind: NoticeSuccess, Op: "submit", Message: msg})
	return artifact, nil
}

func (o *Orchestrator) submit(ctx context.Context, userID string, job Job) (models.Artifact, error) {
	o.mu.Lock()
	if o.state != StateEditing || o.pipeline != job.Pipeline() {
		state := o.describe()
		o.mu.Unlock()
		return models.Artifact{}, models.NewPreconditionError(models.ReasonWrongState, state)
	}
	if job.Pipeline() == models.PipelineManual && o.template == nil {
		state := o.describe()
		o.mu.Unlock()
		return models.Artifact{}, models.NewPreconditionError(models.ReasonNoTemplate, state)
	}
	if o.submitting {
		o.mu.Unlock()
		return models.Artifact{}, models.ErrBusy
	}
	if err := job.validate(); err != nil {
		o.mu.Unlock()
		return models.Artifact{}, err
	}

	var tmpl *models.Template
	if o.template != nil {
		t := *o.template
		tmpl = &t
	}
	gen := o.generation
	o.submitting = true
	o.mu.Unlock()

	artifact, err := job.run(ctx, o.creator, userID, tmpl)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.submitting = false

	if err != nil {
		o.logger.Warn().Err(err).Str("pipeline", job.Pipeline().String()).Msg("artifact creation failed")
		if !errors.Is(err, models.ErrCreation) {
			err = fmt.Errorf("%w: %w", models.ErrCreation, err)
		}
		return models.Artifact{}, err
	}
	if gen != o.generation {
		o.logger.Debug().Str("pipeline", job.Pipeline().String()).Msg("dropping stale artifact")
		return models.Artifact{}, ErrDiscarded
	}

	o.artifact = &artifact
	o.state = StateArtifactReady
	o.logger.Info().Str("pipeline", job.Pipeline().String()).Str("template_id", artifact.TemplateID).Msg("artifact ready")
	return artifact, nil
}

// Save persists the current artifact. The state does not change, and on
// failure the artifact stays available for another attempt.
func (o *Orchestrator) Save(ctx context.Context, userID string) (*models.GalleryEntry, error) {
	entry, err := o.save(ctx, userID)
	if err != nil {
		o.notify(Notice{Kind: NoticeError, Op: "save", Message: err.Error(), Err: err})
		return nil, err
	}
	o.notify(Notice{Kind: NoticeSuccess, Op: "save", Message: "Meme saved to gallery"})
	return entry, nil
}

func (o *Orchestrator) save(ctx context.Context, userID string) (*models.GalleryEntry, error) {
	o.mu.Lock()
	if o.state != StateArtifactReady || o.artifact == nil {
		state := o.describe()
		o.mu.Unlock()
		return nil, models.NewPreconditionError(models.ReasonNoArtifact, state)
	}
	if o.saving {
		o.mu.Unlock()
		return nil, models.ErrBusy
	}
	artifact := *o.artifact
	templateID := artifact.TemplateID
	if templateID == "" && o.template != nil {
		templateID = o.template.ID
	}
	o.saving = true
	o.mu.Unlock()

	entry, err := o.saver.Create(ctx, userID, artifact, templateID)

	o.mu.Lock()
	o.saving = false
	o.mu.Unlock()

	if err != nil {
		if !errors.Is(err, models.ErrPersistence) && !errors.Is(err, models.ErrValidation) {
			err = fmt.Errorf("%w: %w", models.ErrPersistence, err)
		}
		return nil, err
	}
	return entry, nil
}

// Download writes the current artifact to path and returns the path written.
func (o *Orchestrator) Download(ctx context.Context, path string) (string, error) {
	if o.writer == nil {
		return "", errors.New("no artifact writer configured")
	}
	artifact, ok := o.Artifact()
	if !ok {
		return "", models.NewPreconditionError(models.ReasonNoArtifact, o.Describe())
	}
	return o.writer.WriteArtifact(ctx, artifact, path)
}

// Reset returns to idle from any state. Requests still in flight will not
// commit their results.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.generation++
	o.state = StateIdle
	o.pipeline = models.PipelineNone
	o.template = nil
	o.artifact = nil
}

func (o *Orchestrator) notify(n Notice) {
	if o.notifier != nil {
		o.notifier.Notify(n)
	}
}
