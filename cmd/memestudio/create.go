package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/manash/memestudio/internal/catalog"
	"github.com/manash/memestudio/internal/compose"
	"github.com/manash/memestudio/internal/config"
	"github.com/manash/memestudio/internal/gallery"
	"github.com/manash/memestudio/internal/overlay"
	"github.com/manash/memestudio/internal/reference"
	"github.com/manash/memestudio/internal/service"
	"github.com/manash/memestudio/pkg/models"
)

var (
	flagTemplate  string
	flagText      []string
	flagPrompt    string
	flagReference string
	flagSave      bool
	flagOutput    string
)

func newCreateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a single meme without the interactive shell",
	}

	manual := &cobra.Command{
		Use:   "manual",
		Short: "Overlay text on a template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()
			return runCreate(ctx, app, models.PipelineManual)
		},
	}
	manual.Flags().StringVarP(&flagTemplate, "template", "t", "", "template id")
	manual.Flags().StringArrayVar(&flagText, "text", nil, "text for the next box (repeatable)")
	_ = manual.MarkFlagRequired("template")

	ai := &cobra.Command{
		Use:   "ai",
		Short: "Generate a meme from a prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()
			return runCreate(ctx, app, models.PipelineAI)
		},
	}
	ai.Flags().StringVarP(&flagPrompt, "prompt", "p", "", "what the meme should be about")
	ai.Flags().StringVarP(&flagReference, "reference", "r", "", "reference image file")
	ai.Flags().StringVarP(&flagTemplate, "template", "t", "", "template id to record with the meme")
	_ = ai.MarkFlagRequired("prompt")

	for _, sub := range []*cobra.Command{manual, ai} {
		sub.Flags().BoolVar(&flagSave, "save", false, "save the meme to your gallery")
		sub.Flags().StringVarP(&flagOutput, "output", "o", "", "write the image to this relative path")
	}

	cmd.AddCommand(manual, ai)
	return cmd
}

func runCreate(ctx context.Context, app *App, pipeline models.Pipeline) error {
	cfg, err := loadConfig(app)
	if err != nil {
		return err
	}
	logger := cliLogger(app, cfg)
	backend := newBackend(app, cfg, logger)

	notifier := compose.NotifierFunc(func(n compose.Notice) {
		if n.Kind == compose.NoticeSuccess {
			fmt.Fprintf(app.Out, "✓ %s\n", n.Message)
		}
	})
	composer := compose.New(backend, gallery.New(backend, logger),
		compose.WithLogger(logger),
		compose.WithNotifier(notifier),
		compose.WithWriter(app.NewSaver()),
	)

	var artifact models.Artifact
	switch pipeline {
	case models.PipelineManual:
		artifact, err = createManual(ctx, app, cfg, backend, composer, logger)
	default:
		artifact, err = createAI(ctx, app, cfg, backend, composer, logger)
	}
	if err != nil {
		return err
	}

	if !artifact.IsDataURI() {
		fmt.Fprintf(app.Out, "URL: %s\n", artifact.URL)
	}

	if flagSave {
		entry, err := composer.Save(ctx, cfg.UserID)
		if err != nil {
			return err
		}
		fmt.Fprintf(app.Out, "Gallery entry: %s\n", entry.ID)
	}

	// inline images have nowhere else to go
	if flagOutput != "" || (artifact.IsDataURI() && !flagSave) {
		path, err := composer.Download(ctx, flagOutput)
		if err != nil {
			return err
		}
		fmt.Fprintf(app.Out, "Saved: %s\n", path)
	}
	return nil
}

func selectTemplate(ctx context.Context, backend service.Backend, composer *compose.Orchestrator, id string, logger zerolog.Logger) (models.Template, error) {
	cat := catalog.New(backend, logger)
	if _, err := cat.Load(ctx); err != nil {
		return models.Template{}, err
	}
	t, err := cat.Resolve(id)
	if err != nil {
		return models.Template{}, fmt.Errorf("%w: run 'memestudio templates' to list them", err)
	}
	composer.SelectTemplate(t)
	return t, nil
}

func createManual(ctx context.Context, app *App, cfg *config.Config, backend service.Backend, composer *compose.Orchestrator, logger zerolog.Logger) (models.Artifact, error) {
	t, err := selectTemplate(ctx, backend, composer, flagTemplate, logger)
	if err != nil {
		return models.Artifact{}, err
	}
	if err := composer.BeginManual(); err != nil {
		return models.Artifact{}, err
	}

	ov := overlay.New(max(len(flagText), t.TextBoxCount, 1))
	for i, box := range ov.Boxes() {
		if i >= len(flagText) {
			break
		}
		if err := ov.UpdateBox(box.ID, overlay.Text(flagText[i])); err != nil {
			return models.Artifact{}, err
		}
	}

	fmt.Fprintf(app.Out, "Creating meme from %s...\n", t.Name)
	return composer.SubmitManual(ctx, cfg.UserID, ov)
}

func createAI(ctx context.Context, app *App, cfg *config.Config, backend service.Backend, composer *compose.Orchestrator, logger zerolog.Logger) (models.Artifact, error) {
	if flagTemplate != "" {
		if _, err := selectTemplate(ctx, backend, composer, flagTemplate, logger); err != nil {
			return models.Artifact{}, err
		}
	}
	if err := composer.BeginAI(); err != nil {
		return models.Artifact{}, err
	}

	req := models.NewGenerationRequest(flagPrompt)
	if flagReference != "" {
		data, err := os.ReadFile(flagReference)
		if err != nil {
			return models.Artifact{}, fmt.Errorf("failed to read reference image: %w", err)
		}
		asset := reference.New(cfg.MaxUploadBytes)
		img, err := asset.AttachVia(ctx, backend, flagReference, data, "")
		if err != nil {
			return models.Artifact{}, err
		}
		req.ReferenceImage = img
	}

	fmt.Fprintln(app.Out, "Generating AI meme...")
	artifact, err := composer.SubmitAI(ctx, cfg.UserID, req)
	if errors.Is(err, models.ErrValidation) {
		return models.Artifact{}, fmt.Errorf("invalid request: %w", err)
	}
	return artifact, err
}
