package repl

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/manash/memestudio/internal/overlay"
	"github.com/manash/memestudio/pkg/models"
)

type Command interface {
	Name() string
	Aliases() []string
	Description() string
	Usage() string
	Execute(ctx context.Context, r *REPL, args []string) error
}

func allCommands() []Command {
	return []Command{
		&TemplatesCommand{},
		&RandomCommand{},
		&SelectCommand{},
		&ManualCommand{},
		&BoxesCommand{},
		&TextCommand{},
		&StyleCommand{},
		&AddBoxCommand{},
		&RemoveBoxCommand{},
		&AICommand{},
		&PromptCommand{},
		&SuggestCommand{},
		&AttachCommand{},
		&DetachCommand{},
		&SubmitCommand{},
		&SaveCommand{},
		&DownloadCommand{},
		&ShowCommand{},
		&GalleryCommand{},
		&DeleteCommand{},
		&ResetCommand{},
		&StatusCommand{},
		&HelpCommand{},
		&QuitCommand{},
	}
}

func (r *REPL) registerCommands() {
	for _, cmd := range allCommands() {
		r.commands[cmd.Name()] = cmd
		for _, alias := range cmd.Aliases() {
			r.commands[alias] = cmd
		}
	}
}

// TemplatesCommand lists or searches the template catalog
type TemplatesCommand struct{}

func (c *TemplatesCommand) Name() string      { return "templates" }
func (c *TemplatesCommand) Aliases() []string { return []string{"t", "search"} }
func (c *TemplatesCommand) Description() string {
	return "List templates, optionally filtered by name"
}
func (c *TemplatesCommand) Usage() string { return "templates [--refresh] [term]" }

func (c *TemplatesCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) > 0 && args[0] == "--refresh" {
		if _, err := r.catalog.Refresh(ctx); err != nil {
			return err
		}
		args = args[1:]
	} else if _, err := r.catalog.Load(ctx); err != nil {
		return err
	}

	term := strings.Join(args, " ")
	r.listing = r.catalog.FilterEntries(term)
	if len(r.listing) == 0 {
		if term == "" {
			fmt.Fprintln(r.out, "No templates available.")
		} else {
			fmt.Fprintf(r.out, "No templates match %q.\n", term)
		}
		return nil
	}

	fmt.Fprintf(r.out, "%-4s  %-24s  %-5s  %s\n", "#", "ID", "Boxes", "Name")
	fmt.Fprintln(r.out, strings.Repeat("-", 60))
	for i, e := range r.listing {
		fmt.Fprintf(r.out, "%-4d  %-24s  %-5d  %s\n", i+1, truncate(e.Label(), 24), e.Template.TextBoxCount, truncate(e.Template.Name, 30))
	}
	fmt.Fprintf(r.out, "\n%d template(s). Use 'select <#|id>' to pick one.\n", len(r.listing))
	return nil
}

// RandomCommand selects a random template
type RandomCommand struct{}

func (c *RandomCommand) Name() string        { return "random" }
func (c *RandomCommand) Aliases() []string   { return []string{"rand"} }
func (c *RandomCommand) Description() string { return "Select a random template" }
func (c *RandomCommand) Usage() string       { return "random" }

func (c *RandomCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	if _, err := r.catalog.Load(ctx); err != nil {
		return err
	}
	t, ok := r.catalog.PickRandom()
	if !ok {
		return errors.New("no templates available")
	}
	r.selectTemplate(ctx, t)
	return nil
}

// SelectCommand selects a template by listing number or id
type SelectCommand struct{}

func (c *SelectCommand) Name() string        { return "select" }
func (c *SelectCommand) Aliases() []string   { return []string{"use"} }
func (c *SelectCommand) Description() string { return "Select a template to edit" }
func (c *SelectCommand) Usage() string       { return "select <#|id>" }

func (c *SelectCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	if _, err := r.catalog.Load(ctx); err != nil {
		return err
	}

	t, err := r.resolveTemplate(args[0])
	if err != nil {
		return err
	}
	r.selectTemplate(ctx, t)
	return nil
}

func (r *REPL) resolveTemplate(arg string) (models.Template, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(r.listing) {
			return models.Template{}, fmt.Errorf("no template #%d in the last listing", n)
		}
		return r.listing[n-1].Template, nil
	}
	return r.catalog.Resolve(arg)
}

func (r *REPL) selectTemplate(ctx context.Context, t models.Template) {
	r.composer.SelectTemplate(t)
	r.overlay = nil

	fmt.Fprintf(r.out, "Selected %s (%s), %d text box(es)\n", t.Name, t.ID, t.TextBoxCount)
	r.preview(ctx, t.SourceURL)
	fmt.Fprintln(r.out, "Use 'manual' to add text or 'ai' to generate from a prompt.")
}

// ManualCommand starts the manual text overlay pipeline
type ManualCommand struct{}

func (c *ManualCommand) Name() string        { return "manual" }
func (c *ManualCommand) Aliases() []string   { return []string{"m"} }
func (c *ManualCommand) Description() string { return "Edit text boxes on the selected template" }
func (c *ManualCommand) Usage() string       { return "manual" }

func (c *ManualCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	if err := r.composer.BeginManual(); err != nil {
		return err
	}
	if r.overlay == nil {
		t, _ := r.composer.Template()
		r.overlay = overlay.New(max(t.TextBoxCount, 1))
	}
	fmt.Fprintln(r.out, "Manual editing. Set text with 'text <#> <content>', then 'submit'.")
	r.printBoxes()
	return nil
}

// AICommand starts the AI generation pipeline
type AICommand struct{}

func (c *AICommand) Name() string        { return "ai" }
func (c *AICommand) Aliases() []string   { return nil }
func (c *AICommand) Description() string { return "Generate a meme from a prompt" }
func (c *AICommand) Usage() string       { return "ai [prompt]" }

func (c *AICommand) Execute(_ context.Context, r *REPL, args []string) error {
	if err := r.composer.BeginAI(); err != nil {
		return err
	}
	if len(args) > 0 {
		r.prompt = strings.Join(args, " ")
	}
	fmt.Fprintln(r.out, "AI editing. Set a prompt with 'prompt <text>' (see 'suggest'), optionally 'attach <file>', then 'submit'.")
	if r.prompt != "" {
		fmt.Fprintf(r.out, "Prompt: %s\n", r.prompt)
	}
	return nil
}

// SubmitCommand creates the meme with the active pipeline
type SubmitCommand struct{}

func (c *SubmitCommand) Name() string        { return "submit" }
func (c *SubmitCommand) Aliases() []string   { return []string{"create", "go"} }
func (c *SubmitCommand) Description() string { return "Create the meme with the active pipeline" }
func (c *SubmitCommand) Usage() string       { return "submit" }

func (c *SubmitCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	var (
		artifact models.Artifact
		err      error
	)
	switch r.composer.Pipeline() {
	case models.PipelineManual:
		fmt.Fprintln(r.out, "Creating meme...")
		artifact, err = r.composer.SubmitManual(ctx, r.userID, r.overlay)
	case models.PipelineAI:
		req := models.NewGenerationRequest(r.prompt)
		if img, ok := r.reference.Current(); ok {
			req.ReferenceImage = img
		}
		fmt.Fprintln(r.out, "Generating AI meme...")
		artifact, err = r.composer.SubmitAI(ctx, r.userID, req)
	default:
		return errors.New("choose a pipeline first with 'manual' or 'ai'")
	}
	if err != nil {
		return err
	}

	r.preview(ctx, artifact.URL)
	if !artifact.IsDataURI() {
		fmt.Fprintf(r.out, "URL: %s\n", artifact.URL)
	}
	fmt.Fprintln(r.out, "Use 'save' to keep it in your gallery or 'download [path]' to write it to disk.")
	return nil
}

// SaveCommand saves the current meme to the gallery
type SaveCommand struct{}

func (c *SaveCommand) Name() string        { return "save" }
func (c *SaveCommand) Aliases() []string   { return []string{"s"} }
func (c *SaveCommand) Description() string { return "Save the current meme to your gallery" }
func (c *SaveCommand) Usage() string       { return "save" }

func (c *SaveCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	entry, err := r.composer.Save(ctx, r.userID)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Gallery entry %s (%d total)\n", entry.ID, len(r.gallery.Snapshot()))
	return nil
}

// DownloadCommand writes the current meme to disk
type DownloadCommand struct{}

func (c *DownloadCommand) Name() string        { return "download" }
func (c *DownloadCommand) Aliases() []string   { return []string{"dl"} }
func (c *DownloadCommand) Description() string { return "Write the current meme to a file" }
func (c *DownloadCommand) Usage() string       { return "download [path]" }

func (c *DownloadCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	written, err := r.composer.Download(ctx, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Saved: %s\n", written)
	return nil
}

// ShowCommand displays the current meme or a gallery entry
type ShowCommand struct{}

func (c *ShowCommand) Name() string        { return "show" }
func (c *ShowCommand) Aliases() []string   { return []string{"display", "view"} }
func (c *ShowCommand) Description() string { return "Display the current meme or a gallery entry" }
func (c *ShowCommand) Usage() string       { return "show [gallery #]" }

func (c *ShowCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) > 0 {
		entry, err := r.resolveEntry(args[0])
		if err != nil {
			return err
		}
		printEntry(r, 0, entry)
		r.preview(ctx, entry.ArtifactURL)
		return nil
	}

	artifact, ok := r.composer.Artifact()
	if !ok {
		return models.NewPreconditionError(models.ReasonNoArtifact, r.composer.Describe())
	}
	if artifact.IsDataURI() {
		fmt.Fprintln(r.out, "Current meme: inline image")
	} else {
		fmt.Fprintf(r.out, "Current meme: %s\n", artifact.URL)
	}
	r.preview(ctx, artifact.URL)
	return nil
}

// preview shows an image inline when the terminal supports it.
func (r *REPL) preview(ctx context.Context, url string) {
	if r.displayer == nil || url == "" {
		return
	}
	if err := r.displayer.ShowURL(ctx, url); err != nil {
		fmt.Fprintf(r.err, "Warning: failed to display: %v\n", err)
	}
}

// ResetCommand starts over
type ResetCommand struct{}

func (c *ResetCommand) Name() string        { return "reset" }
func (c *ResetCommand) Aliases() []string   { return []string{"new", "back"} }
func (c *ResetCommand) Description() string { return "Discard the current template and meme" }
func (c *ResetCommand) Usage() string       { return "reset" }

func (c *ResetCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	r.composer.Reset()
	r.overlay = nil
	r.prompt = ""
	r.reference.Detach()
	fmt.Fprintln(r.out, "Back to template selection.")
	return nil
}

// StatusCommand shows the editing session
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Aliases() []string   { return []string{"st"} }
func (c *StatusCommand) Description() string { return "Show the current editing session" }
func (c *StatusCommand) Usage() string       { return "status" }

func (c *StatusCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintf(r.out, "User:      %s\n", r.userID)
	fmt.Fprintf(r.out, "State:     %s\n", r.composer.Describe())
	if t, ok := r.composer.Template(); ok {
		fmt.Fprintf(r.out, "Template:  %s (%s)\n", t.Name, t.ID)
	}
	if r.overlay != nil {
		fmt.Fprintf(r.out, "Boxes:     %d\n", r.overlay.Len())
	}
	if r.prompt != "" {
		fmt.Fprintf(r.out, "Prompt:    %s\n", r.prompt)
	}
	if img, ok := r.reference.Current(); ok {
		fmt.Fprintf(r.out, "Reference: %s (%s)\n", img.Filename, img.MIMEType)
	}
	if a, ok := r.composer.Artifact(); ok {
		kind := "manual"
		if a.IsAIGenerated {
			kind = "ai"
		}
		fmt.Fprintf(r.out, "Meme:      ready (%s)\n", kind)
	}
	fmt.Fprintf(r.out, "Gallery:   %d saved\n", len(r.gallery.Snapshot()))
	return nil
}

// HelpCommand shows available commands
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Aliases() []string   { return []string{"?"} }
func (c *HelpCommand) Description() string { return "Show available commands" }
func (c *HelpCommand) Usage() string       { return "help" }

func (c *HelpCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, "Available commands:")
	fmt.Fprintln(r.out)

	for _, cmd := range allCommands() {
		aliases := ""
		if len(cmd.Aliases()) > 0 {
			aliases = fmt.Sprintf(" (%s)", strings.Join(cmd.Aliases(), ", "))
		}
		fmt.Fprintf(r.out, "  %-22s%s\n", cmd.Name()+aliases, cmd.Description())
		fmt.Fprintf(r.out, "                        Usage: %s\n", cmd.Usage())
	}

	return nil
}

// QuitCommand exits the REPL
type QuitCommand struct{}

func (c *QuitCommand) Name() string        { return "quit" }
func (c *QuitCommand) Aliases() []string   { return []string{"exit", "q"} }
func (c *QuitCommand) Description() string { return "Exit interactive mode" }
func (c *QuitCommand) Usage() string       { return "quit" }

func (c *QuitCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, "Goodbye!")
	r.Stop()
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
