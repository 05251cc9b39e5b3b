package openai

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/manash/memestudio/internal/imagegen"
)

func (p *Provider) edit(ctx context.Context, prompt string, reference []byte, mimeType string) (*imagegen.Result, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if mimeType == "" {
		mimeType = "image/png"
	}
	ext := strings.TrimPrefix(mimeType, "image/")

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="reference.%s"`, ext))
	header.Set("Content-Type", mimeType)
	imagePart, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := imagePart.Write(reference); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}

	fields := [][2]string{
		{"prompt", prompt},
		{"model", p.model},
		{"n", "1"},
		{"size", defaultSize},
	}
	if strings.HasPrefix(p.model, "dall-e") {
		fields = append(fields, [2]string{"response_format", "b64_json"})
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f[0], err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	url := p.baseURL + "/images/edits"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	if p.verbose {
		p.logger.Debug().
			Str("url", url).
			Str("model", p.model).
			Str("prompt", prompt).
			Int("image_bytes", len(reference)).
			Msg("image edit request")
	}

	return p.send(ctx, httpReq)
}
