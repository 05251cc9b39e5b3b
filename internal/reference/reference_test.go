package reference

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/manash/memestudio/pkg/models"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func TestEncode(t *testing.T) {
	data := pngBytes(t)

	got, err := Encode("/tmp/uploads/cat.png", data, "image/png", 0)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if got.Filename != "cat.png" {
		t.Errorf("Filename = %q, want cat.png", got.Filename)
	}
	if got.MIMEType != "image/png" {
		t.Errorf("MIMEType = %q, want image/png", got.MIMEType)
	}
	if got.Size != int64(len(data)) {
		t.Errorf("Size = %d, want %d", got.Size, len(data))
	}
	decoded, err := base64.StdEncoding.DecodeString(got.Base64)
	if err != nil || !bytes.Equal(decoded, data) {
		t.Errorf("Base64 does not round-trip to input")
	}
}

func TestEncode_UnsupportedMedia(t *testing.T) {
	tests := []struct {
		name string
		size int
		mime string
	}{
		{"pdf small", 10, "application/pdf"},
		{"text tiny", 1, "text/plain"},
		{"video huge", int(models.DefaultMaxReferenceSize) + 100, "video/mp4"},
		{"empty declared text content", 5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := bytes.Repeat([]byte("a"), tt.size)
			_, err := Encode("file", data, tt.mime, 0)
			if !errors.Is(err, models.ErrUnsupportedMedia) {
				t.Errorf("Encode() error = %v, want ErrUnsupportedMedia", err)
			}
			if !errors.Is(err, models.ErrValidation) {
				t.Errorf("Encode() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestEncode_PayloadTooLarge(t *testing.T) {
	data := make([]byte, 11)
	_, err := Encode("big.png", data, "image/png", 10)
	if !errors.Is(err, models.ErrPayloadTooLarge) {
		t.Fatalf("Encode() error = %v, want ErrPayloadTooLarge", err)
	}
	if !models.IsValidation(err, models.ReasonPayloadTooLarge) {
		t.Errorf("Encode() error = %v, want reason payload-too-large", err)
	}

	if _, err := Encode("exact.png", make([]byte, 10), "image/png", 10); err != nil {
		t.Errorf("Encode() at limit error = %v, want nil", err)
	}
}

func TestEncode_SniffsWhenUndeclared(t *testing.T) {
	got, err := Encode("noext", pngBytes(t), "", 0)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if got.MIMEType != "image/png" {
		t.Errorf("MIMEType = %q, want image/png", got.MIMEType)
	}
}

func TestEncode_NormalizesDeclared(t *testing.T) {
	got, err := Encode("x.jpg", []byte{1, 2, 3}, " Image/JPEG; q=1 ", 0)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if got.MIMEType != "image/jpeg" {
		t.Errorf("MIMEType = %q, want image/jpeg", got.MIMEType)
	}
}

func TestAsset_AttachDetach(t *testing.T) {
	a := New(0)
	if a.MaxSize() != models.DefaultMaxReferenceSize {
		t.Errorf("MaxSize() = %d, want default", a.MaxSize())
	}
	if _, ok := a.Current(); ok {
		t.Error("Current() ok = true before Attach")
	}

	img, err := a.Attach("cat.png", pngBytes(t), "image/png")
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if cur, ok := a.Current(); !ok || cur != img {
		t.Error("Current() does not return attached image")
	}

	if _, err := a.Attach("doc.pdf", []byte("%PDF"), "application/pdf"); err == nil {
		t.Fatal("Attach(pdf) error = nil")
	}
	if cur, _ := a.Current(); cur != img {
		t.Error("failed Attach replaced the current image")
	}

	a.Detach()
	a.Detach()
	if _, ok := a.Current(); ok {
		t.Error("Current() ok = true after Detach")
	}
}

func TestAsset_AttachFile(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "ref.png")
	if err := os.WriteFile(imgPath, pngBytes(t), 0o644); err != nil {
		t.Fatal(err)
	}
	txtPath := filepath.Join(dir, "notes.png")
	if err := os.WriteFile(txtPath, []byte("just some text, not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := New(0)
	got, err := a.AttachFile(imgPath)
	if err != nil {
		t.Fatalf("AttachFile() error = %v", err)
	}
	if got.MIMEType != "image/png" || got.Filename != "ref.png" {
		t.Errorf("AttachFile() = %+v", got)
	}

	if _, err := a.AttachFile(txtPath); !errors.Is(err, models.ErrUnsupportedMedia) {
		t.Errorf("AttachFile(text) error = %v, want ErrUnsupportedMedia", err)
	}

	small := New(8)
	if _, err := small.AttachFile(imgPath); !errors.Is(err, models.ErrPayloadTooLarge) {
		t.Errorf("AttachFile() over limit error = %v, want ErrPayloadTooLarge", err)
	}

	if _, err := a.AttachFile(filepath.Join(dir, "missing.png")); err == nil {
		t.Error("AttachFile(missing) error = nil")
	}
}

type fakeUploader struct {
	calls int
	resp  *models.EncodedImage
	err   error
}

func (f *fakeUploader) UploadImage(_ context.Context, filename string, data []byte, contentType string) (*models.EncodedImage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func TestAsset_AttachVia(t *testing.T) {
	up := &fakeUploader{resp: &models.EncodedImage{Filename: "server.png", MIMEType: "image/png", Base64: "c2VydmVy"}}
	a := New(0)

	got, err := a.AttachVia(context.Background(), up, "cat.png", pngBytes(t), "image/png")
	if err != nil {
		t.Fatalf("AttachVia() error = %v", err)
	}
	if got.Base64 != "c2VydmVy" || got.Filename != "server.png" {
		t.Errorf("AttachVia() = %+v, want server encoding", got)
	}
	if got.Size == 0 {
		t.Error("AttachVia() Size = 0, want local size")
	}

	if _, err := a.AttachVia(context.Background(), up, "a.pdf", []byte("%PDF"), "application/pdf"); !errors.Is(err, models.ErrUnsupportedMedia) {
		t.Errorf("AttachVia(pdf) error = %v, want ErrUnsupportedMedia", err)
	}
	if up.calls != 1 {
		t.Errorf("uploader called %d times, want 1 (local validation first)", up.calls)
	}

	up.err = models.ErrFetch
	if _, err := a.AttachVia(context.Background(), up, "cat.png", pngBytes(t), "image/png"); !errors.Is(err, models.ErrFetch) {
		t.Errorf("AttachVia() error = %v, want ErrFetch", err)
	}
	if cur, _ := a.Current(); cur != got {
		t.Error("failed AttachVia replaced the current image")
	}
}
