// Package display previews artifacts inline in terminals that speak the kitty
// graphics protocol.
package display

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/term"

	"github.com/manash/memestudio/pkg/models"
)

// DefaultMaxWidth bounds the pixel width of previews.
const DefaultMaxWidth = 512

// Fetcher resolves an artifact URL to image bytes. image.Saver implements it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, *mimetype.MIME, error)
}

type Displayer struct {
	out      io.Writer
	fetcher  Fetcher
	maxWidth int
}

func New(out io.Writer, fetcher Fetcher) *Displayer {
	return &Displayer{
		out:      out,
		fetcher:  fetcher,
		maxWidth: DefaultMaxWidth,
	}
}

func (d *Displayer) SetMaxWidth(px int) {
	if px > 0 {
		d.maxWidth = px
	}
}

func (d *Displayer) ShowArtifact(ctx context.Context, a models.Artifact) error {
	return d.ShowURL(ctx, a.URL)
}

func (d *Displayer) ShowEntry(ctx context.Context, e models.GalleryEntry) error {
	return d.ShowURL(ctx, e.ArtifactURL)
}

// ShowURL fetches the image, scales it down to a preview and writes it to the
// terminal.
func (d *Displayer) ShowURL(ctx context.Context, rawURL string) error {
	data, _, err := d.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return err
	}

	thumb, err := Thumbnail(data, d.maxWidth)
	if err != nil {
		return err
	}

	enc := NewKittyEncoder(d.out)
	if err := enc.Encode(thumb); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}

	fmt.Fprintln(d.out)
	return nil
}

// Thumbnail decodes data in any supported format and re-encodes it as PNG no
// wider than maxWidth. Kitty's f=100 transmission only accepts PNG.
func Thumbnail(data []byte, maxWidth int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestSpeed)); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

// Available reports whether previews can be shown on w.
func Available(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false
	}
	return IsTerminalSupported()
}

func IsTerminalSupported() bool {
	termProgram := strings.ToLower(os.Getenv("TERM_PROGRAM"))
	for _, prog := range []string{"kitty", "ghostty", "iterm.app", "wezterm"} {
		if termProgram == prog {
			return true
		}
	}

	if os.Getenv("KITTY_WINDOW_ID") != "" || os.Getenv("ITERM_SESSION_ID") != "" {
		return true
	}

	t := strings.ToLower(os.Getenv("TERM"))
	return strings.Contains(t, "kitty") || strings.Contains(t, "ghostty")
}
