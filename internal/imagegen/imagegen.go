// Package imagegen defines the contract for prompt-driven image generation
// used by the backend's AI endpoint.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAPIKeyRequired   = errors.New("API key is required")
	ErrGenerationFailed = errors.New("image generation failed")
	ErrNoImage          = errors.New("no image was generated")
	ErrQuotaExceeded    = errors.New("API quota exceeded")
)

// Request asks for one image. Reference, when set, is an image the result
// should be based on.
type Request struct {
	Prompt        string
	Reference     []byte
	ReferenceMIME string
}

type Result struct {
	Image    []byte
	MIMEType string
	// Text is any commentary the provider returned alongside the image.
	Text string
}

type Generator interface {
	Name() string
	Generate(ctx context.Context, req *Request) (*Result, error)
}

type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	TimeoutSec int
	Verbose    bool
}

// MemePrompt wraps a user's concept in instructions that steer the model
// towards meme output.
func MemePrompt(concept string, withReference bool) string {
	concept = strings.TrimSpace(concept)
	if withReference {
		return fmt.Sprintf("Using the provided image as reference, create a funny meme based on: %s. Make it humorous and meme-worthy.", concept)
	}
	return fmt.Sprintf("Create a funny meme image with the following concept: %s. Make it humorous and visually appealing as a meme.", concept)
}
