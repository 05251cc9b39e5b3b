package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/manash/memestudio/internal/catalog"
	"github.com/manash/memestudio/internal/compose"
	"github.com/manash/memestudio/internal/display"
	"github.com/manash/memestudio/internal/gallery"
	"github.com/manash/memestudio/internal/overlay"
	"github.com/manash/memestudio/internal/reference"
	"github.com/manash/memestudio/internal/service"
)

type REPL struct {
	in        io.Reader
	out       io.Writer
	err       io.Writer
	userID    string
	logger    zerolog.Logger
	catalog   *catalog.Catalog
	gallery   *gallery.Store
	composer  *compose.Orchestrator
	reference *reference.Asset
	uploader  service.Uploader
	displayer *display.Displayer
	commands  map[string]Command
	running   bool

	// editing state owned by the shell
	overlay  *overlay.Overlay
	prompt   string
	listing  []catalog.Entry
	entryIDs []string
}

type Config struct {
	In     io.Reader
	Out    io.Writer
	Err    io.Writer
	UserID string
	Logger zerolog.Logger

	Catalog *catalog.Catalog
	Gallery *gallery.Store
	Creator service.Creator
	// Writer saves artifacts for the download command.
	Writer compose.ArtifactWriter
	// Uploader, when set, routes reference images through the backend.
	Uploader  service.Uploader
	MaxUpload int64
	// Displayer may be nil when the terminal cannot show images.
	Displayer *display.Displayer
}

func New(cfg *Config) *REPL {
	r := &REPL{
		in:        cfg.In,
		out:       cfg.Out,
		err:       cfg.Err,
		userID:    cfg.UserID,
		logger:    cfg.Logger,
		catalog:   cfg.Catalog,
		gallery:   cfg.Gallery,
		reference: reference.New(cfg.MaxUpload),
		uploader:  cfg.Uploader,
		displayer: cfg.Displayer,
		commands:  make(map[string]Command),
	}
	opts := []compose.Option{
		compose.WithNotifier(r),
		compose.WithLogger(cfg.Logger),
	}
	if cfg.Writer != nil {
		opts = append(opts, compose.WithWriter(cfg.Writer))
	}
	r.composer = compose.New(cfg.Creator, cfg.Gallery, opts...)
	r.registerCommands()
	return r
}

// Notify prints success notices. Failures reach the user through the
// command's returned error.
func (r *REPL) Notify(n compose.Notice) {
	if n.Kind == compose.NoticeSuccess {
		fmt.Fprintf(r.out, "✓ %s\n", n.Message)
		return
	}
	r.logger.Debug().Str("op", n.Op).Err(n.Err).Msg("operation failed")
}

// Bootstrap loads the template catalog and the user's gallery concurrently.
func (r *REPL) Bootstrap(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		if _, err := r.catalog.Load(ctx); err != nil {
			return fmt.Errorf("templates: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if _, err := r.gallery.List(ctx, r.userID); err != nil {
			return fmt.Errorf("gallery: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func (r *REPL) Run(ctx context.Context) error {
	r.running = true
	r.printWelcome()

	if err := r.Bootstrap(ctx); err != nil {
		fmt.Fprintf(r.err, "Warning: %v\n", err)
	} else {
		fmt.Fprintf(r.out, "%d templates, %d saved memes\n", len(r.catalog.Templates()), len(r.gallery.Snapshot()))
	}
	for _, w := range r.catalog.Warnings() {
		fmt.Fprintf(r.err, "Warning: %s\n", w)
	}

	scanner := bufio.NewScanner(r.in)
	for r.running {
		r.printPrompt()
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := r.execute(ctx, line); err != nil {
			fmt.Fprintf(r.err, "Error: %v\n", err)
		}
	}

	return scanner.Err()
}

func (r *REPL) execute(ctx context.Context, line string) error {
	parts := parseCommand(line)
	if len(parts) == 0 {
		return nil
	}

	cmdName := strings.ToLower(parts[0])
	args := parts[1:]

	cmd, ok := r.commands[cmdName]
	if !ok {
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmdName)
	}

	return cmd.Execute(ctx, r, args)
}

func (r *REPL) Stop() {
	r.running = false
}

func (r *REPL) printWelcome() {
	fmt.Fprintln(r.out, "memestudio interactive mode")
	fmt.Fprintln(r.out, "Type 'help' for available commands, 'quit' to exit.")
	fmt.Fprintln(r.out)
}

func (r *REPL) printPrompt() {
	if t, ok := r.composer.Template(); ok {
		fmt.Fprintf(r.out, "memestudio [%s] (%s)> ", t.ID, r.composer.Describe())
		return
	}
	fmt.Fprintf(r.out, "memestudio (%s)> ", r.composer.Describe())
}

func parseCommand(line string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)

	for _, ch := range line {
		switch {
		case ch == '"' || ch == '\'':
			if inQuotes && ch == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else if !inQuotes {
				inQuotes = true
				quoteChar = ch
			} else {
				current.WriteRune(ch)
			}
		case ch == ' ' && !inQuotes:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(ch)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
