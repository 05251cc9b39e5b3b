package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/manash/memestudio/internal/catalog"
	"github.com/manash/memestudio/internal/gallery"
)

func newTemplatesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "templates [term]",
		Short: "List meme templates, optionally filtered by name",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()
			return runTemplates(ctx, app, strings.Join(args, " "))
		},
	}
}

func runTemplates(ctx context.Context, app *App, term string) error {
	cfg, err := loadConfig(app)
	if err != nil {
		return err
	}
	logger := cliLogger(app, cfg)
	cat := catalog.New(newBackend(app, cfg, logger), logger)

	if _, err := cat.Load(ctx); err != nil {
		return err
	}
	for _, w := range cat.Warnings() {
		fmt.Fprintf(app.Err, "Warning: %s\n", w)
	}

	entries := cat.FilterEntries(term)
	if len(entries) == 0 {
		fmt.Fprintln(app.Out, "No templates found.")
		return nil
	}

	fmt.Fprintf(app.Out, "%-24s  %-5s  %s\n", "ID", "Boxes", "Name")
	fmt.Fprintln(app.Out, strings.Repeat("-", 60))
	for _, e := range entries {
		fmt.Fprintf(app.Out, "%-24s  %-5d  %s\n", e.Label(), e.Template.TextBoxCount, e.Template.Name)
	}
	fmt.Fprintf(app.Out, "\n%d template(s)\n", len(entries))
	return nil
}

func newGalleryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "List your saved memes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()
			return runGalleryList(ctx, app)
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete memes from your gallery",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()
			return runGalleryDelete(ctx, app, args)
		},
	}
	cmd.AddCommand(del)
	return cmd
}

func runGalleryList(ctx context.Context, app *App) error {
	cfg, err := loadConfig(app)
	if err != nil {
		return err
	}
	logger := cliLogger(app, cfg)
	store := gallery.New(newBackend(app, cfg, logger), logger)

	entries, err := store.List(ctx, cfg.UserID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(app.Out, "No saved memes for %s.\n", cfg.UserID)
		return nil
	}

	fmt.Fprintf(app.Out, "%-36s  %-6s  %-14s  %s\n", "ID", "Kind", "Created", "Template / Prompt")
	fmt.Fprintln(app.Out, strings.Repeat("-", 90))
	for _, e := range entries {
		kind, detail := "manual", e.TemplateID
		if e.IsAIGenerated {
			kind, detail = "ai", e.PromptUsed
		}
		fmt.Fprintf(app.Out, "%-36s  %-6s  %-14s  %s\n", e.ID, kind, humanize.Time(e.CreatedAt), detail)
	}
	fmt.Fprintf(app.Out, "\n%d meme(s)\n", len(entries))
	return nil
}

func runGalleryDelete(ctx context.Context, app *App, ids []string) error {
	cfg, err := loadConfig(app)
	if err != nil {
		return err
	}
	logger := cliLogger(app, cfg)
	store := gallery.New(newBackend(app, cfg, logger), logger)

	var errs []error
	for _, id := range ids {
		if err := store.Delete(ctx, id, cfg.UserID); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		fmt.Fprintf(app.Out, "Deleted: %s\n", id)
	}
	return errors.Join(errs...)
}

type healthChecker interface {
	Health(ctx context.Context) (map[string]any, error)
}

func newHealthCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()
			return runHealth(ctx, app)
		},
	}
}

func runHealth(ctx context.Context, app *App) error {
	cfg, err := loadConfig(app)
	if err != nil {
		return err
	}
	logger := cliLogger(app, cfg)
	hc, ok := newBackend(app, cfg, logger).(healthChecker)
	if !ok {
		return errors.New("backend does not report health")
	}

	doc, err := hc.Health(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Backend: %s\n", cfg.APIURL)
	fmt.Fprintf(app.Out, "Status:  %v\n", doc["status"])
	if services, ok := doc["services"].(map[string]any); ok {
		names := make([]string, 0, len(services))
		for name := range services {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(app.Out, "  %-8s %v\n", name+":", services[name])
		}
	}
	return nil
}
