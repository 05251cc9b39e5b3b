package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/manash/memestudio/internal/imagegen"
	"github.com/manash/memestudio/internal/memegen"
	"github.com/manash/memestudio/internal/service"
	"github.com/manash/memestudio/internal/service/httpapi"
	"github.com/manash/memestudio/internal/store/sqlite"
	"github.com/manash/memestudio/pkg/models"
)

// 1x1 PNG
var pngBytes, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg==")

type fakeGenerator struct {
	mu     sync.Mutex
	got    *imagegen.Request
	result *imagegen.Result
	err    error
}

func (g *fakeGenerator) Name() string { return "fake/v1" }

func (g *fakeGenerator) Generate(ctx context.Context, req *imagegen.Request) (*imagegen.Result, error) {
	g.mu.Lock()
	g.got = req
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

func (g *fakeGenerator) request() *imagegen.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.got
}

func newMemegen(t *testing.T) *memegen.Client {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/templates/":
			fmt.Fprint(w, `[{"id":"drake","name":"Drakeposting","lines":2},{"id":"one_does_not"}]`)
		case "/templates/drake":
			fmt.Fprint(w, `{"id":"drake","name":"Drakeposting","lines":2}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(upstream.Close)
	return memegen.New(upstream.URL, time.Second, zerolog.Nop())
}

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, *sqlite.Store) {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "memes.db"))
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	srv := New(newMemegen(t), st, opts...)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts, st
}

func doJSON(t *testing.T, method, url string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	defer resp.Body.Close()

	var doc map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &doc); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, doc
}

func TestRoot(t *testing.T) {
	ts, _ := newTestServer(t)
	code, doc := doJSON(t, http.MethodGet, ts.URL+"/api/", nil)
	if code != http.StatusOK || doc["message"] != rootMessage {
		t.Errorf("GET /api/ = %d %v", code, doc)
	}
}

func TestTemplates(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/templates")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got []models.Template
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[1].Name != "One Does Not" || got[1].TextBoxCount != 2 {
		t.Errorf("defaults not applied: %+v", got[1])
	}
}

func TestTemplateDetail(t *testing.T) {
	ts, _ := newTestServer(t)

	code, doc := doJSON(t, http.MethodGet, ts.URL+"/api/templates/drake", nil)
	if code != http.StatusOK || doc["id"] != "drake" {
		t.Errorf("GET drake = %d %v", code, doc)
	}

	code, doc = doJSON(t, http.MethodGet, ts.URL+"/api/templates/nope", nil)
	if code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
	if d, _ := doc["detail"].(string); !strings.HasPrefix(d, "Template not found") {
		t.Errorf("detail = %q", d)
	}
}

func TestCreateManual(t *testing.T) {
	ts, _ := newTestServer(t)

	code, doc := doJSON(t, http.MethodPost, ts.URL+"/api/create-meme-manual", manualRequest{
		TemplateID: "drake",
		TextBoxes:  []textBox{{Text: "when you see a bug"}, {Text: ""}},
		UserID:     "user_123",
	})
	if code != http.StatusOK {
		t.Fatalf("status = %d, doc = %v", code, doc)
	}
	if doc["success"] != true {
		t.Errorf("success = %v", doc["success"])
	}
	url, _ := doc["meme_url"].(string)
	if !strings.HasSuffix(url, "/images/drake/when_you_see_a_bug/_.png") {
		t.Errorf("meme_url = %q", url)
	}

	code, _ = doJSON(t, http.MethodPost, ts.URL+"/api/create-meme-manual", manualRequest{UserID: "u"})
	if code != http.StatusBadRequest {
		t.Errorf("missing template: status = %d, want 400", code)
	}
}

func TestCreateAI(t *testing.T) {
	gen := &fakeGenerator{result: &imagegen.Result{Image: pngBytes, MIMEType: "image/png", Text: "here you go"}}
	ts, _ := newTestServer(t, WithGenerator(gen))

	code, doc := doJSON(t, http.MethodPost, ts.URL+"/api/create-meme-ai", aiRequest{
		Prompt:               "  cats judging code  ",
		UserID:               "user_123",
		ReferenceImageBase64: base64.StdEncoding.EncodeToString(pngBytes),
	})
	if code != http.StatusOK {
		t.Fatalf("status = %d, doc = %v", code, doc)
	}
	if doc["success"] != true || doc["ai_response"] != "here you go" {
		t.Errorf("doc = %v", doc)
	}
	if url, _ := doc["meme_url"].(string); !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("meme_url = %.40q", url)
	}

	got := gen.request()
	if got == nil {
		t.Fatal("generator not called")
	}
	if want := imagegen.MemePrompt("cats judging code", true); got.Prompt != want {
		t.Errorf("prompt = %q, want %q", got.Prompt, want)
	}
	if got.ReferenceMIME != "image/png" || !bytes.Equal(got.Reference, pngBytes) {
		t.Errorf("reference = %q (%d bytes)", got.ReferenceMIME, len(got.Reference))
	}
}

func TestCreateAI_Failures(t *testing.T) {
	tests := []struct {
		name       string
		gen        *fakeGenerator
		req        aiRequest
		wantStatus int
		wantText   string
	}{
		{
			name:       "no generator",
			req:        aiRequest{Prompt: "x"},
			wantStatus: http.StatusInternalServerError,
			wantText:   "not initialized",
		},
		{
			name:       "empty prompt",
			gen:        &fakeGenerator{},
			req:        aiRequest{Prompt: "   "},
			wantStatus: http.StatusBadRequest,
			wantText:   "prompt",
		},
		{
			name:       "quota",
			gen:        &fakeGenerator{err: fmt.Errorf("%w: slow down", imagegen.ErrQuotaExceeded)},
			req:        aiRequest{Prompt: "x"},
			wantStatus: http.StatusTooManyRequests,
			wantText:   "quota exceeded",
		},
		{
			name:       "no image",
			gen:        &fakeGenerator{err: imagegen.ErrNoImage},
			req:        aiRequest{Prompt: "x"},
			wantStatus: http.StatusOK,
			wantText:   noImageMessage,
		},
		{
			name:       "provider failure",
			gen:        &fakeGenerator{err: errors.New("boom")},
			req:        aiRequest{Prompt: "x"},
			wantStatus: http.StatusInternalServerError,
			wantText:   "boom",
		},
		{
			name:       "bad reference",
			gen:        &fakeGenerator{},
			req:        aiRequest{Prompt: "x", ReferenceImageBase64: "!!not base64!!"},
			wantStatus: http.StatusBadRequest,
			wantText:   "Invalid image data",
		},
		{
			name:       "non-image reference",
			gen:        &fakeGenerator{},
			req:        aiRequest{Prompt: "x", ReferenceImageBase64: base64.StdEncoding.EncodeToString([]byte("plain text"))},
			wantStatus: http.StatusBadRequest,
			wantText:   "File must be an image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.gen != nil {
				opts = append(opts, WithGenerator(tt.gen))
			}
			ts, _ := newTestServer(t, opts...)

			code, doc := doJSON(t, http.MethodPost, ts.URL+"/api/create-meme-ai", tt.req)
			if code != tt.wantStatus {
				t.Errorf("status = %d, want %d (%v)", code, tt.wantStatus, doc)
			}
			text, _ := doc["detail"].(string)
			if text == "" {
				text, _ = doc["message"].(string)
			}
			if !strings.Contains(text, tt.wantText) {
				t.Errorf("text = %q, want it to contain %q", text, tt.wantText)
			}
			if code == http.StatusOK && doc["success"] != false {
				t.Errorf("success = %v, want false", doc["success"])
			}
		})
	}
}

func upload(t *testing.T, url, filename, contentType string, data []byte) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	w.Close()

	resp, err := http.Post(url, w.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var doc map[string]any
	json.NewDecoder(resp.Body).Decode(&doc)
	return resp.StatusCode, doc
}

func TestUpload(t *testing.T) {
	ts, _ := newTestServer(t, WithMaxUpload(1024))

	code, doc := upload(t, ts.URL+"/api/upload-image", "pic.png", "image/png", pngBytes)
	if code != http.StatusOK {
		t.Fatalf("status = %d, doc = %v", code, doc)
	}
	if doc["filename"] != "pic.png" || doc["content_type"] != "image/png" {
		t.Errorf("doc = %v", doc)
	}
	if doc["base64_data"] != base64.StdEncoding.EncodeToString(pngBytes) {
		t.Errorf("base64_data mismatch")
	}

	code, doc = upload(t, ts.URL+"/api/upload-image", "notes.txt", "text/plain", []byte("hello"))
	if code != http.StatusBadRequest || doc["detail"] != "File must be an image" {
		t.Errorf("text upload = %d %v", code, doc)
	}

	code, _ = upload(t, ts.URL+"/api/upload-image", "big.png", "image/png", bytes.Repeat([]byte{0}, 2048))
	if code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized upload status = %d, want 413", code)
	}
}

func TestUserMemes(t *testing.T) {
	ts, _ := newTestServer(t)
	base := ts.URL + "/api/user-memes"

	tmpl := "drake"
	for i, u := range []string{"https://api.memegen.link/images/drake/a/b.png", "data:image/png;base64,AAAA"} {
		code, doc := doJSON(t, http.MethodPost, base, saveRequest{
			UserID:        "alice",
			MemeURL:       u,
			TemplateID:    &tmpl,
			IsAIGenerated: i == 1,
		})
		if code != http.StatusOK || doc["id"] == "" {
			t.Fatalf("save %d = %d %v", i, code, doc)
		}
	}

	resp, err := http.Get(base + "/alice")
	if err != nil {
		t.Fatal(err)
	}
	var list []models.GalleryEntry
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if !list[0].IsAIGenerated {
		t.Errorf("list not newest first: %+v", list)
	}

	code, doc := doJSON(t, http.MethodDelete, base+"/"+list[0].ID+"?user_id=bob", nil)
	if code != http.StatusNotFound || doc["detail"] != "Meme not found or doesn't belong to user" {
		t.Errorf("foreign delete = %d %v", code, doc)
	}

	code, doc = doJSON(t, http.MethodDelete, base+"/"+list[0].ID+"?user_id=alice", nil)
	if code != http.StatusOK || doc["success"] != true {
		t.Errorf("delete = %d %v", code, doc)
	}

	code, _ = doJSON(t, http.MethodDelete, base+"/"+list[0].ID, nil)
	if code != http.StatusBadRequest {
		t.Errorf("delete without user_id = %d, want 400", code)
	}

	code, _ = doJSON(t, http.MethodPost, base, saveRequest{UserID: "alice", MemeURL: "ftp://example.com/x.png"})
	if code != http.StatusBadRequest {
		t.Errorf("bad url save = %d, want 400", code)
	}
	code, _ = doJSON(t, http.MethodPost, base, saveRequest{MemeURL: "https://example.com/x.png"})
	if code != http.StatusBadRequest {
		t.Errorf("missing user save = %d, want 400", code)
	}
}

func TestHealth(t *testing.T) {
	ts, st := newTestServer(t, WithGenerator(&fakeGenerator{}))

	code, doc := doJSON(t, http.MethodGet, ts.URL+"/api/health", nil)
	if code != http.StatusOK || doc["status"] != "healthy" {
		t.Errorf("health = %d %v", code, doc)
	}
	services, _ := doc["services"].(map[string]any)
	if services["ai"] != "fake/v1" || services["storage"] != "connected" {
		t.Errorf("services = %v", services)
	}

	st.Close()
	code, doc = doJSON(t, http.MethodGet, ts.URL+"/api/health", nil)
	if code != http.StatusServiceUnavailable || doc["status"] != "unhealthy" {
		t.Errorf("health after close = %d %v", code, doc)
	}
}

func TestClearAll(t *testing.T) {
	ts, st := newTestServer(t)
	ctx := context.Background()
	if _, err := st.Create(ctx, &models.NewGalleryEntry{UserID: "u", ArtifactURL: "https://x.test/a.png"}); err != nil {
		t.Fatal(err)
	}

	code, doc := doJSON(t, http.MethodDelete, ts.URL+"/api/clear-all-data", nil)
	if code != http.StatusBadRequest || doc["detail"] != "Please confirm by setting confirm=true" {
		t.Errorf("unconfirmed clear = %d %v", code, doc)
	}

	code, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/clear-all-data?confirm=true", nil)
	if code != http.StatusOK {
		t.Errorf("clear = %d", code)
	}
	list, _ := st.ListByUser(ctx, "u")
	if len(list) != 0 {
		t.Errorf("entries left after clear: %d", len(list))
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    string
	}{
		{"wildcard", []string{"*"}, "http://app.test", "*"},
		{"listed", []string{"http://app.test"}, "http://app.test", "http://app.test"},
		{"unlisted", []string{"http://app.test"}, "http://evil.test", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := newTestServer(t, WithCORSOrigins(tt.origins))

			req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/templates", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", "GET")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()

			if resp.StatusCode != http.StatusNoContent {
				t.Errorf("preflight status = %d, want 204", resp.StatusCode)
			}
			if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestClientRoundTrip drives the server through the HTTP client the shell
// uses.
func TestClientRoundTrip(t *testing.T) {
	gen := &fakeGenerator{result: &imagegen.Result{Image: pngBytes, MIMEType: "image/png"}}
	ts, _ := newTestServer(t, WithGenerator(gen))
	client := httpapi.New(&service.Config{BaseURL: ts.URL, TimeoutSec: 5}, zerolog.Nop())
	ctx := context.Background()

	templates, err := client.Templates(ctx)
	if err != nil || len(templates) != 2 {
		t.Fatalf("Templates() = %d, %v", len(templates), err)
	}

	manualURL, err := client.CreateManual(ctx, "carol", service.ManualInput{
		TemplateID: "drake",
		TextBoxes:  []models.TextBox{{Content: "top"}, {Content: "bottom"}},
	})
	if err != nil {
		t.Fatalf("CreateManual() error = %v", err)
	}
	aiURL, err := client.CreateAI(ctx, "carol", service.AIInput{Prompt: "robots"})
	if err != nil {
		t.Fatalf("CreateAI() error = %v", err)
	}

	img, err := client.UploadImage(ctx, "ref.png", pngBytes, "image/png")
	if err != nil || img.MIMEType != "image/png" {
		t.Fatalf("UploadImage() = %+v, %v", img, err)
	}

	if _, err := client.CreateGalleryEntry(ctx, &models.NewGalleryEntry{
		UserID: "carol", ArtifactURL: manualURL, TemplateID: "drake",
	}); err != nil {
		t.Fatalf("CreateGalleryEntry(manual) error = %v", err)
	}
	saved, err := client.CreateGalleryEntry(ctx, &models.NewGalleryEntry{
		UserID: "carol", ArtifactURL: aiURL, PromptUsed: "robots", IsAIGenerated: true,
	})
	if err != nil {
		t.Fatalf("CreateGalleryEntry(ai) error = %v", err)
	}

	list, err := client.ListGallery(ctx, "carol")
	if err != nil || len(list) != 2 {
		t.Fatalf("ListGallery() = %d, %v", len(list), err)
	}
	if list[0].ID != saved.ID || list[0].PromptUsed != "robots" || list[1].TemplateID != "drake" {
		t.Errorf("ListGallery() = %+v", list)
	}

	if err := client.DeleteGalleryEntry(ctx, saved.ID, "carol"); err != nil {
		t.Fatalf("DeleteGalleryEntry() error = %v", err)
	}
	err = client.DeleteGalleryEntry(ctx, saved.ID, "carol")
	if !errors.Is(err, service.ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}

	if _, err := client.Health(ctx); err != nil {
		t.Errorf("Health() error = %v", err)
	}
}
