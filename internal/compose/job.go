package compose

import (
	"context"

	"github.com/manash/memestudio/internal/overlay"
	"github.com/manash/memestudio/internal/service"
	"github.com/manash/memestudio/pkg/models"
)

// Job is one way of producing an artifact. The set of implementations is
// closed: ManualJob and AIJob.
type Job interface {
	Pipeline() models.Pipeline
	validate() error
	run(ctx context.Context, creator service.Creator, userID string, tmpl *models.Template) (models.Artifact, error)
}

// ManualJob renders the overlay's text onto the selected template.
type ManualJob struct {
	Overlay *overlay.Overlay
}

func (ManualJob) Pipeline() models.Pipeline { return models.PipelineManual }

func (j ManualJob) validate() error {
	if j.Overlay == nil {
		return models.NewValidationError(models.ReasonEmpty)
	}
	return j.Overlay.Validate()
}

func (j ManualJob) run(ctx context.Context, creator service.Creator, userID string, tmpl *models.Template) (models.Artifact, error) {
	url, err := creator.CreateManual(ctx, userID, service.ManualInput{
		TemplateID: tmpl.ID,
		TextBoxes:  j.Overlay.Boxes(),
	})
	if err != nil {
		return models.Artifact{}, err
	}
	return models.Artifact{
		URL:        url,
		TemplateID: tmpl.ID,
	}, nil
}

// AIJob asks the generation service for an image from a prompt and an
// optional reference image.
type AIJob struct {
	Request *models.GenerationRequest
}

func (AIJob) Pipeline() models.Pipeline { return models.PipelineAI }

func (j AIJob) validate() error {
	if j.Request == nil {
		return models.NewValidationError(models.ReasonEmptyPrompt)
	}
	return j.Request.Validate()
}

func (j AIJob) run(ctx context.Context, creator service.Creator, userID string, tmpl *models.Template) (models.Artifact, error) {
	prompt := j.Request.TrimmedPrompt()
	templateID := j.Request.TemplateID
	if templateID == "" && tmpl != nil {
		templateID = tmpl.ID
	}

	in := service.AIInput{
		Prompt:     prompt,
		TemplateID: templateID,
	}
	if ref := j.Request.ReferenceImage; ref != nil {
		in.ReferenceImageBase64 = ref.Base64
	}

	url, err := creator.CreateAI(ctx, userID, in)
	if err != nil {
		return models.Artifact{}, err
	}
	return models.Artifact{
		URL:           url,
		IsAIGenerated: true,
		PromptUsed:    prompt,
		TemplateID:    templateID,
	}, nil
}
