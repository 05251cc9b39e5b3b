package compose

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/manash/memestudio/internal/gallery"
	"github.com/manash/memestudio/internal/overlay"
	"github.com/manash/memestudio/internal/service"
	"github.com/manash/memestudio/pkg/models"
)

type fakeCreator struct {
	mu      sync.Mutex
	manual  []service.ManualInput
	ai      []service.AIInput
	url     string
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeCreator) wait(ctx context.Context) error {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *fakeCreator) CreateManual(ctx context.Context, userID string, in service.ManualInput) (string, error) {
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manual = append(f.manual, in)
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

func (f *fakeCreator) CreateAI(ctx context.Context, userID string, in service.AIInput) (string, error) {
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ai = append(f.ai, in)
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

// memGallery is an in-memory gallery backend.
type memGallery struct {
	mu        sync.Mutex
	entries   []models.GalleryEntry
	createErr error
	next      int

	// createStarted and createRelease hold CreateGalleryEntry open when set.
	createStarted chan struct{}
	createRelease chan struct{}
}

func (m *memGallery) ListGallery(ctx context.Context, userID string) ([]models.GalleryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GalleryEntry
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memGallery) CreateGalleryEntry(ctx context.Context, in *models.NewGalleryEntry) (*models.GalleryEntry, error) {
	if m.createStarted != nil {
		m.createStarted <- struct{}{}
	}
	if m.createRelease != nil {
		select {
		case <-m.createRelease:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.next++
	e := models.GalleryEntry{
		ID:            fmt.Sprintf("entry-%d", m.next),
		UserID:        in.UserID,
		ArtifactURL:   in.ArtifactURL,
		TemplateID:    in.TemplateID,
		PromptUsed:    in.PromptUsed,
		IsAIGenerated: in.IsAIGenerated,
		CreatedAt:     time.Now(),
	}
	m.entries = append(m.entries, e)
	return &e, nil
}

func (m *memGallery) DeleteGalleryEntry(ctx context.Context, entryID, userID string) error {
	return nil
}

type recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) count(kind NoticeKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.notices {
		if x.Kind == kind {
			n++
		}
	}
	return n
}

var drake = models.Template{ID: "drake", Name: "Drake Hotline Bling", TextBoxCount: 2, Width: 500, Height: 500}

func newTestOrchestrator(creator *fakeCreator, backend *memGallery, opts ...Option) (*Orchestrator, *gallery.Store) {
	store := gallery.New(backend, zerolog.Nop())
	return New(creator, store, opts...), store
}

func TestSelectTemplateDiscardsArtifact(t *testing.T) {
	creator := &fakeCreator{url: "https://memes.test/drake.png"}
	o, _ := newTestOrchestrator(creator, &memGallery{})
	ctx := context.Background()

	o.SelectTemplate(drake)
	if err := o.BeginManual(); err != nil {
		t.Fatalf("BeginManual() error = %v", err)
	}
	ov := overlay.New(2)
	_ = ov.UpdateBox(ov.Boxes()[0].ID, overlay.Text("top"))
	if _, err := o.SubmitManual(ctx, "user_123", ov); err != nil {
		t.Fatalf("SubmitManual() error = %v", err)
	}

	other := models.Template{ID: "doge", Name: "Doge", TextBoxCount: 2, Width: 500, Height: 500}
	o.SelectTemplate(other)

	got, ok := o.Template()
	if !ok || got.ID != "doge" {
		t.Errorf("Template() = %v, %v; want doge", got.ID, ok)
	}
	if _, ok := o.Artifact(); ok {
		t.Error("Artifact() should be cleared after selecting another template")
	}
	if o.State() != StateTemplateSelected {
		t.Errorf("State() = %v, want %v", o.State(), StateTemplateSelected)
	}
	if o.Pipeline() != models.PipelineNone {
		t.Errorf("Pipeline() = %v, want none", o.Pipeline())
	}
}

func TestBeginManualRequiresTemplate(t *testing.T) {
	o, _ := newTestOrchestrator(&fakeCreator{}, &memGallery{})

	err := o.BeginManual()
	if !errors.Is(err, models.ErrPrecondition) {
		t.Fatalf("BeginManual() error = %v, want ErrPrecondition", err)
	}
	if !models.IsPrecondition(err, models.ReasonNoTemplate) {
		t.Errorf("BeginManual() reason = %v, want %q", err, models.ReasonNoTemplate)
	}
	if o.State() != StateIdle {
		t.Errorf("State() = %v, want idle", o.State())
	}
}

func TestManualScenario(t *testing.T) {
	creator := &fakeCreator{url: "https://api.memegen.link/images/drake/when_you_see_a_bug/_.png"}
	o, _ := newTestOrchestrator(creator, &memGallery{})

	o.SelectTemplate(drake)
	if err := o.BeginManual(); err != nil {
		t.Fatalf("BeginManual() error = %v", err)
	}
	ov := overlay.New(drake.TextBoxCount)
	boxes := ov.Boxes()
	if err := ov.UpdateBox(boxes[0].ID, overlay.Text("when you see a bug")); err != nil {
		t.Fatal(err)
	}
	if err := ov.UpdateBox(boxes[1].ID, overlay.Text("")); err != nil {
		t.Fatal(err)
	}

	artifact, err := o.SubmitManual(context.Background(), "user_123", ov)
	if err != nil {
		t.Fatalf("SubmitManual() error = %v", err)
	}
	if o.State() != StateArtifactReady {
		t.Errorf("State() = %v, want %v", o.State(), StateArtifactReady)
	}
	if artifact.IsAIGenerated {
		t.Error("manual artifact should not be AI generated")
	}
	if artifact.TemplateID != "drake" {
		t.Errorf("TemplateID = %q, want drake", artifact.TemplateID)
	}
	if len(creator.manual) != 1 || creator.manual[0].TemplateID != "drake" || len(creator.manual[0].TextBoxes) != 2 {
		t.Errorf("creator received %+v", creator.manual)
	}
}

func TestSubmitManualEmptyOverlay(t *testing.T) {
	creator := &fakeCreator{url: "x"}
	o, _ := newTestOrchestrator(creator, &memGallery{})
	o.SelectTemplate(drake)
	_ = o.BeginManual()

	_, err := o.SubmitManual(context.Background(), "user_123", overlay.New(2))
	if !models.IsValidation(err, models.ReasonEmpty) {
		t.Fatalf("SubmitManual() error = %v, want empty validation", err)
	}
	if o.State() != StateEditing || o.Pipeline() != models.PipelineManual {
		t.Errorf("state = %s, want editing(manual)", o.Describe())
	}
	if len(creator.manual) != 0 {
		t.Error("validation failure must not reach the creator")
	}
}

func TestSubmitAIEmptyPrompt(t *testing.T) {
	creator := &fakeCreator{url: "data:image/png;base64,AAAA"}
	o, _ := newTestOrchestrator(creator, &memGallery{})

	if err := o.BeginAI(); err != nil {
		t.Fatalf("BeginAI() error = %v", err)
	}
	_, err := o.SubmitAI(context.Background(), "user_123", models.NewGenerationRequest("   "))
	if !errors.Is(err, models.ErrValidation) || !models.IsValidation(err, models.ReasonEmptyPrompt) {
		t.Fatalf("SubmitAI() error = %v, want empty-prompt validation", err)
	}
	if o.State() != StateEditing || o.Pipeline() != models.PipelineAI {
		t.Errorf("state = %s, want editing(ai)", o.Describe())
	}
}

func TestSubmitAI(t *testing.T) {
	creator := &fakeCreator{url: "data:image/png;base64,AAAA"}
	o, _ := newTestOrchestrator(creator, &memGallery{})
	o.SelectTemplate(drake)
	_ = o.BeginAI()

	req := models.NewGenerationRequest("  coffee addiction ")
	req.ReferenceImage = &models.EncodedImage{Filename: "ref.png", MIMEType: "image/png", Base64: "cmVm", Size: 3}

	artifact, err := o.SubmitAI(context.Background(), "user_123", req)
	if err != nil {
		t.Fatalf("SubmitAI() error = %v", err)
	}
	if !artifact.IsAIGenerated || artifact.PromptUsed != "coffee addiction" {
		t.Errorf("artifact = %+v", artifact)
	}
	if artifact.TemplateID != "drake" {
		t.Errorf("TemplateID = %q, want drake from the selected template", artifact.TemplateID)
	}
	got := creator.ai[0]
	if got.Prompt != "coffee addiction" || got.ReferenceImageBase64 != "cmVm" {
		t.Errorf("creator received %+v", got)
	}
}

func TestBeginAIWithoutTemplate(t *testing.T) {
	creator := &fakeCreator{url: "data:image/png;base64,AAAA"}
	o, _ := newTestOrchestrator(creator, &memGallery{})

	if err := o.BeginAI(); err != nil {
		t.Fatalf("BeginAI() error = %v", err)
	}
	artifact, err := o.SubmitAI(context.Background(), "user_123", models.NewGenerationRequest("monday mornings"))
	if err != nil {
		t.Fatalf("SubmitAI() error = %v", err)
	}
	if artifact.TemplateID != "" {
		t.Errorf("TemplateID = %q, want empty", artifact.TemplateID)
	}
}

func TestSubmitWrongPipeline(t *testing.T) {
	o, _ := newTestOrchestrator(&fakeCreator{url: "x"}, &memGallery{})
	o.SelectTemplate(drake)
	_ = o.BeginManual()

	_, err := o.SubmitAI(context.Background(), "user_123", models.NewGenerationRequest("hi"))
	if !models.IsPrecondition(err, models.ReasonWrongState) {
		t.Fatalf("SubmitAI() error = %v, want wrong-state", err)
	}
}

func TestSubmitCreationFailure(t *testing.T) {
	creator := &fakeCreator{err: fmt.Errorf("%w: status 500: upstream down", models.ErrFetch)}
	o, _ := newTestOrchestrator(creator, &memGallery{})
	o.SelectTemplate(drake)
	_ = o.BeginManual()
	ov := overlay.New(1)
	_ = ov.UpdateBox(ov.Boxes()[0].ID, overlay.Text("hello"))

	_, err := o.SubmitManual(context.Background(), "user_123", ov)
	if !errors.Is(err, models.ErrCreation) {
		t.Fatalf("SubmitManual() error = %v, want ErrCreation", err)
	}
	if !errors.Is(err, models.ErrFetch) {
		t.Errorf("SubmitManual() error = %v, should keep the upstream cause", err)
	}
	if o.State() != StateEditing || o.Pipeline() != models.PipelineManual {
		t.Errorf("state = %s, want editing(manual)", o.Describe())
	}
}

func readyOrchestrator(t *testing.T, backend *memGallery, opts ...Option) (*Orchestrator, *gallery.Store, models.Artifact) {
	t.Helper()
	creator := &fakeCreator{url: "https://api.memegen.link/images/drake/top/bottom.png"}
	o, store := newTestOrchestrator(creator, backend, opts...)
	o.SelectTemplate(drake)
	if err := o.BeginManual(); err != nil {
		t.Fatal(err)
	}
	ov := overlay.New(2)
	_ = ov.UpdateBox(ov.Boxes()[0].ID, overlay.Text("top"))
	artifact, err := o.SubmitManual(context.Background(), "user_123", ov)
	if err != nil {
		t.Fatal(err)
	}
	return o, store, artifact
}

func TestSaveThenList(t *testing.T) {
	backend := &memGallery{}
	o, store, artifact := readyOrchestrator(t, backend)
	ctx := context.Background()

	entry, err := o.Save(ctx, "user_123")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if entry.TemplateID != "drake" {
		t.Errorf("entry.TemplateID = %q, want drake", entry.TemplateID)
	}
	if o.State() != StateArtifactReady {
		t.Errorf("State() = %v, want artifact-ready after save", o.State())
	}

	entries, err := store.List(ctx, "user_123")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	found := false
	for _, e := range entries {
		if e.ArtifactURL == artifact.URL {
			found = true
		}
	}
	if !found {
		t.Errorf("List() = %+v, missing %s", entries, artifact.URL)
	}
}

func TestSaveFailureKeepsArtifact(t *testing.T) {
	backend := &memGallery{createErr: fmt.Errorf("%w: status 500: database unavailable", models.ErrFetch)}
	o, _, artifact := readyOrchestrator(t, backend)
	ctx := context.Background()

	_, err := o.Save(ctx, "user_123")
	if !errors.Is(err, models.ErrPersistence) {
		t.Fatalf("Save() error = %v, want ErrPersistence", err)
	}
	got, ok := o.Artifact()
	if !ok || got.URL != artifact.URL {
		t.Fatalf("Artifact() = %+v, %v; want retained artifact", got, ok)
	}

	backend.mu.Lock()
	backend.createErr = nil
	backend.mu.Unlock()

	if _, err := o.Save(ctx, "user_123"); err != nil {
		t.Fatalf("retry Save() error = %v", err)
	}
}

func TestSaveBusy(t *testing.T) {
	backend := &memGallery{
		createStarted: make(chan struct{}, 1),
		createRelease: make(chan struct{}),
	}
	o, _, artifact := readyOrchestrator(t, backend)
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() {
		_, err := o.Save(ctx, "user_123")
		errc <- err
	}()
	<-backend.createStarted

	if _, err := o.Save(ctx, "user_123"); !errors.Is(err, models.ErrBusy) {
		t.Errorf("concurrent Save() error = %v, want ErrBusy", err)
	}

	close(backend.createRelease)
	if err := <-errc; err != nil {
		t.Fatalf("first Save() error = %v", err)
	}
	if o.State() != StateArtifactReady {
		t.Errorf("State() = %v, want artifact-ready", o.State())
	}
	got, ok := o.Artifact()
	if !ok || got.URL != artifact.URL {
		t.Errorf("Artifact() = %+v, %v; want %s kept", got, ok, artifact.URL)
	}

	backend.mu.Lock()
	saved := len(backend.entries)
	backend.mu.Unlock()
	if saved != 1 {
		t.Errorf("backend entries = %d, want 1", saved)
	}
}

func TestSaveWithoutArtifact(t *testing.T) {
	o, _ := newTestOrchestrator(&fakeCreator{}, &memGallery{})
	o.SelectTemplate(drake)

	_, err := o.Save(context.Background(), "user_123")
	if !models.IsPrecondition(err, models.ReasonNoArtifact) {
		t.Fatalf("Save() error = %v, want no-artifact", err)
	}
}

func TestNotices(t *testing.T) {
	rec := &recorder{}
	backend := &memGallery{}
	o, _, _ := readyOrchestrator(t, backend, WithNotifier(rec))

	if _, err := o.Save(context.Background(), "user_123"); err != nil {
		t.Fatal(err)
	}
	if got := rec.count(NoticeSuccess); got != 2 {
		t.Errorf("success notices = %d, want 2", got)
	}

	backend.createErr = errors.New("boom")
	_, _ = o.Save(context.Background(), "user_123")
	if got := rec.count(NoticeError); got != 1 {
		t.Errorf("error notices = %d, want 1", got)
	}
}

func TestResetDropsInFlightResult(t *testing.T) {
	creator := &fakeCreator{
		url:     "data:image/png;base64,AAAA",
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	o, _ := newTestOrchestrator(creator, &memGallery{})
	_ = o.BeginAI()

	errc := make(chan error, 1)
	go func() {
		_, err := o.SubmitAI(context.Background(), "user_123", models.NewGenerationRequest("late"))
		errc <- err
	}()

	<-creator.started
	o.Reset()
	close(creator.release)

	if err := <-errc; !errors.Is(err, ErrDiscarded) {
		t.Fatalf("SubmitAI() error = %v, want ErrDiscarded", err)
	}
	if o.State() != StateIdle {
		t.Errorf("State() = %v, want idle", o.State())
	}
	if _, ok := o.Artifact(); ok {
		t.Error("stale artifact was committed after Reset")
	}
}

func TestSubmitBusy(t *testing.T) {
	creator := &fakeCreator{
		url:     "data:image/png;base64,AAAA",
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	o, _ := newTestOrchestrator(creator, &memGallery{})
	_ = o.BeginAI()

	errc := make(chan error, 1)
	go func() {
		_, err := o.SubmitAI(context.Background(), "user_123", models.NewGenerationRequest("first"))
		errc <- err
	}()
	<-creator.started

	if _, err := o.SubmitAI(context.Background(), "user_123", models.NewGenerationRequest("second")); !errors.Is(err, models.ErrBusy) {
		t.Errorf("concurrent SubmitAI() error = %v, want ErrBusy", err)
	}
	if err := o.BeginManual(); !errors.Is(err, models.ErrPrecondition) {
		t.Errorf("BeginManual() error = %v, want no-template precondition", err)
	}
	if err := o.BeginAI(); !errors.Is(err, models.ErrBusy) {
		t.Errorf("BeginAI() during submit error = %v, want ErrBusy", err)
	}

	close(creator.release)
	if err := <-errc; err != nil {
		t.Fatalf("first SubmitAI() error = %v", err)
	}
	if o.State() != StateArtifactReady {
		t.Errorf("State() = %v, want artifact-ready", o.State())
	}
}

type fakeWriter struct {
	got models.Artifact
}

func (w *fakeWriter) WriteArtifact(ctx context.Context, a models.Artifact, path string) (string, error) {
	w.got = a
	return path, nil
}

func TestDownload(t *testing.T) {
	w := &fakeWriter{}
	o, _ := newTestOrchestrator(&fakeCreator{}, &memGallery{}, WithWriter(w))

	if _, err := o.Download(context.Background(), "meme.png"); !models.IsPrecondition(err, models.ReasonNoArtifact) {
		t.Fatalf("Download() without artifact error = %v", err)
	}

	o2, _, artifact := readyOrchestrator(t, &memGallery{}, WithWriter(w))
	path, err := o2.Download(context.Background(), "meme.png")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if path != "meme.png" || w.got.URL != artifact.URL {
		t.Errorf("Download() wrote %+v to %s", w.got, path)
	}
}

func TestStateStrings(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateTemplateSelected, "template-selected"},
		{StateEditing, "editing"},
		{StateArtifactReady, "artifact-ready"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
