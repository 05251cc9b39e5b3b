package main

import (
	"github.com/spf13/cobra"

	"github.com/manash/memestudio/internal/catalog"
	"github.com/manash/memestudio/internal/display"
	"github.com/manash/memestudio/internal/gallery"
	"github.com/manash/memestudio/internal/repl"
)

func newShellCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "shell",
		Aliases: []string{"i"},
		Short:   "Start the interactive meme editor",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd, app)
		},
	}
}

func runShell(cmd *cobra.Command, app *App) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	cfg, err := loadConfig(app)
	if err != nil {
		return err
	}
	logger := cliLogger(app, cfg)
	backend := newBackend(app, cfg, logger)
	saver := app.NewSaver()

	var displayer *display.Displayer
	if display.Available(app.Out) && display.IsTerminalSupported() {
		displayer = app.NewDisplayer(app.Out, saver)
	}

	r := repl.New(&repl.Config{
		In:        app.In,
		Out:       app.Out,
		Err:       app.Err,
		UserID:    cfg.UserID,
		Logger:    logger,
		Catalog:   catalog.New(backend, logger),
		Gallery:   gallery.New(backend, logger),
		Creator:   backend,
		Writer:    saver,
		Uploader:  backend,
		MaxUpload: cfg.MaxUploadBytes,
		Displayer: displayer,
	})
	return r.Run(ctx)
}
