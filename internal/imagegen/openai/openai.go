// Package openai generates meme images with an OpenAI-compatible images API.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/manash/memestudio/internal/imagegen"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-image-1"
	defaultSize    = "1024x1024"
	defaultTimeout = 120 * time.Second
)

var _ imagegen.Generator = (*Provider)(nil)

type apiRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
	OutputFormat   string `json:"output_format,omitempty"`
}

type apiResponse struct {
	Created int64       `json:"created"`
	Data    []imageData `json:"data"`
	Error   *apiError   `json:"error,omitempty"`
}

type imageData struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

type Provider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     zerolog.Logger
	verbose    bool
}

func New(cfg *imagegen.Config, logger zerolog.Logger) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, imagegen.ErrAPIKeyRequired
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	timeout := defaultTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}

	return &Provider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		verbose: cfg.Verbose,
	}, nil
}

func (p *Provider) Name() string {
	return "openai/" + p.model
}

func (p *Provider) Model() string {
	return p.model
}

// Generate produces one image. With a reference image the edits endpoint is
// used, otherwise the generations endpoint.
func (p *Provider) Generate(ctx context.Context, req *imagegen.Request) (*imagegen.Result, error) {
	prompt := imagegen.MemePrompt(req.Prompt, len(req.Reference) > 0)
	if len(req.Reference) > 0 {
		return p.edit(ctx, prompt, req.Reference, req.ReferenceMIME)
	}
	return p.generate(ctx, prompt)
}

func (p *Provider) generate(ctx context.Context, prompt string) (*imagegen.Result, error) {
	apiReq := p.buildAPIRequest(prompt)

	jsonData, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.baseURL + "/images/generations"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	if p.verbose {
		p.logger.Debug().Str("url", url).RawJSON("body", jsonData).Msg("image generation request")
	}

	return p.send(ctx, httpReq)
}

func (p *Provider) buildAPIRequest(prompt string) *apiRequest {
	apiReq := &apiRequest{
		Model:  p.model,
		Prompt: prompt,
		N:      1,
		Size:   defaultSize,
	}
	switch {
	case strings.HasPrefix(p.model, "gpt-image"):
		apiReq.OutputFormat = "png"
	case strings.HasPrefix(p.model, "dall-e"):
		apiReq.ResponseFormat = "b64_json"
	}
	return apiReq
}

func (p *Provider) send(ctx context.Context, httpReq *http.Request) (*imagegen.Result, error) {
	start := time.Now()
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to send request: %v", imagegen.ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", imagegen.ErrGenerationFailed, err)
	}

	event := p.logger.Debug().Int("status", resp.StatusCode).Dur("elapsed", time.Since(start))
	if p.verbose {
		event = event.Str("body", truncateBase64(body))
	}
	event.Msg("image generation response")

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response (status %d): %v", imagegen.ErrGenerationFailed, resp.StatusCode, err)
	}

	if apiResp.Error != nil || resp.StatusCode != http.StatusOK {
		return nil, classify(resp.StatusCode, apiResp.Error)
	}

	return p.buildResult(ctx, apiResp)
}

func classify(status int, apiErr *apiError) error {
	msg := fmt.Sprintf("status %d", status)
	if apiErr != nil {
		msg = apiErr.Message
	}
	if status == http.StatusTooManyRequests || (apiErr != nil && (apiErr.Code == "insufficient_quota" || strings.Contains(strings.ToLower(apiErr.Message), "quota"))) {
		return fmt.Errorf("%w: %s", imagegen.ErrQuotaExceeded, msg)
	}
	return fmt.Errorf("%w: %s", imagegen.ErrGenerationFailed, msg)
}

func (p *Provider) buildResult(ctx context.Context, apiResp apiResponse) (*imagegen.Result, error) {
	if len(apiResp.Data) == 0 {
		return nil, imagegen.ErrNoImage
	}

	data := apiResp.Data[0]
	result := &imagegen.Result{
		MIMEType: "image/png",
		Text:     data.RevisedPrompt,
	}

	switch {
	case data.B64JSON != "":
		decoded, err := base64.StdEncoding.DecodeString(data.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decode image: %v", imagegen.ErrGenerationFailed, err)
		}
		result.Image = decoded
	case data.URL != "":
		downloaded, err := p.download(ctx, data.URL)
		if err != nil {
			return nil, err
		}
		result.Image = downloaded
	default:
		return nil, imagegen.ErrNoImage
	}
	return result, nil
}

func (p *Provider) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to download image: %v", imagegen.ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: download failed with status: %d", imagegen.ErrGenerationFailed, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// truncateBase64 shortens b64_json payloads so responses can be logged.
func truncateBase64(body []byte) string {
	var data apiResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return string(body)
	}
	for i := range data.Data {
		if b := data.Data[i].B64JSON; len(b) > 100 {
			data.Data[i].B64JSON = b[:100] + "... [truncated]"
		}
	}
	out, err := json.Marshal(data)
	if err != nil {
		return string(body)
	}
	return string(out)
}
