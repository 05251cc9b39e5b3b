package repl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manash/memestudio/internal/overlay"
	"github.com/manash/memestudio/pkg/models"
)

var errNoOverlay = errors.New("no text boxes yet - use 'manual' first")

// promptSuggestions seed the AI pipeline for users without an idea.
var promptSuggestions = []string{
	"Make this meme about coding and debugging",
	"Create a funny meme about Monday mornings",
	"Transform this into a meme about coffee addiction",
	"Make a hilarious meme about work from home",
	"Create a meme about social media life",
	"Make this meme about weekend vs weekday energy",
	"Transform into a meme about trying to adult",
	"Create a funny meme about online shopping",
}

func (r *REPL) boxAt(arg string) (models.TextBox, error) {
	if r.overlay == nil {
		return models.TextBox{}, errNoOverlay
	}
	n, err := strconv.Atoi(arg)
	boxes := r.overlay.Boxes()
	if err != nil || n < 1 || n > len(boxes) {
		return models.TextBox{}, fmt.Errorf("no text box #%s (have %d)", arg, len(boxes))
	}
	return boxes[n-1], nil
}

func (r *REPL) printBoxes() {
	if r.overlay == nil || r.overlay.Len() == 0 {
		fmt.Fprintln(r.out, "No text boxes.")
		return
	}
	for i, b := range r.overlay.Boxes() {
		content := b.Content
		if strings.TrimSpace(content) == "" {
			content = "(empty)"
		}
		fmt.Fprintf(r.out, "  %d. %-30s  %dpt %s %s %s @ %.0f,%.0f\n",
			i+1, truncate(content, 30), b.FontSizePt, b.ColorHex, b.FontFamily, b.Alignment,
			b.Position.XPct, b.Position.YPct)
	}
}

// BoxesCommand lists the text boxes
type BoxesCommand struct{}

func (c *BoxesCommand) Name() string        { return "boxes" }
func (c *BoxesCommand) Aliases() []string   { return []string{"b"} }
func (c *BoxesCommand) Description() string { return "List the text boxes" }
func (c *BoxesCommand) Usage() string       { return "boxes" }

func (c *BoxesCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	if r.overlay == nil {
		return errNoOverlay
	}
	r.printBoxes()
	return nil
}

// TextCommand sets the content of a text box
type TextCommand struct{}

func (c *TextCommand) Name() string        { return "text" }
func (c *TextCommand) Aliases() []string   { return []string{"tx"} }
func (c *TextCommand) Description() string { return "Set the text of a box" }
func (c *TextCommand) Usage() string       { return "text <#> <content>" }

func (c *TextCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	box, err := r.boxAt(args[0])
	if err != nil {
		return err
	}
	if err := r.overlay.UpdateBox(box.ID, overlay.Text(strings.Join(args[1:], " "))); err != nil {
		return err
	}
	r.printBoxes()
	return nil
}

// StyleCommand changes one styling field of a text box
type StyleCommand struct{}

func (c *StyleCommand) Name() string      { return "style" }
func (c *StyleCommand) Aliases() []string { return nil }
func (c *StyleCommand) Description() string {
	return "Style a box: size, color, font, align or pos"
}
func (c *StyleCommand) Usage() string {
	return "style <#> size <12-72> | color <#RRGGBB> | font <name> | align <left|center|right> | pos <x> <y>"
}

func (c *StyleCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	box, err := r.boxAt(args[0])
	if err != nil {
		return err
	}

	patch, err := parseStyle(strings.ToLower(args[1]), args[2:])
	if err != nil {
		return err
	}
	if err := r.overlay.UpdateBox(box.ID, patch); err != nil {
		return err
	}
	r.printBoxes()
	return nil
}

func parseStyle(field string, values []string) (overlay.BoxPatch, error) {
	var patch overlay.BoxPatch
	switch field {
	case "size":
		n, err := strconv.Atoi(values[0])
		if err != nil {
			return patch, fmt.Errorf("invalid size: %s", values[0])
		}
		patch.FontSizePt = &n
	case "color", "colour":
		c := values[0]
		if !strings.HasPrefix(c, "#") {
			c = "#" + c
		}
		patch.ColorHex = &c
	case "font":
		f := models.FontFamily(strings.Join(values, " "))
		patch.FontFamily = &f
	case "align":
		a := models.Alignment(strings.ToLower(values[0]))
		patch.Alignment = &a
	case "pos", "position":
		if len(values) != 2 {
			return patch, errors.New("usage: pos <x> <y>")
		}
		x, errX := strconv.ParseFloat(values[0], 64)
		y, errY := strconv.ParseFloat(values[1], 64)
		if errX != nil || errY != nil {
			return patch, fmt.Errorf("invalid position: %s %s", values[0], values[1])
		}
		patch.Position = &models.Position{XPct: x, YPct: y}
	default:
		return patch, fmt.Errorf("unknown style field: %s", field)
	}
	return patch, nil
}

// AddBoxCommand appends a text box
type AddBoxCommand struct{}

func (c *AddBoxCommand) Name() string        { return "add" }
func (c *AddBoxCommand) Aliases() []string   { return nil }
func (c *AddBoxCommand) Description() string { return "Add a text box" }
func (c *AddBoxCommand) Usage() string       { return "add [content]" }

func (c *AddBoxCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if r.overlay == nil {
		return errNoOverlay
	}
	box := r.overlay.AddBox()
	if len(args) > 0 {
		if err := r.overlay.UpdateBox(box.ID, overlay.Text(strings.Join(args, " "))); err != nil {
			return err
		}
	}
	r.printBoxes()
	return nil
}

// RemoveBoxCommand removes a text box
type RemoveBoxCommand struct{}

func (c *RemoveBoxCommand) Name() string        { return "remove" }
func (c *RemoveBoxCommand) Aliases() []string   { return []string{"rm"} }
func (c *RemoveBoxCommand) Description() string { return "Remove a text box" }
func (c *RemoveBoxCommand) Usage() string       { return "remove <#>" }

func (c *RemoveBoxCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	box, err := r.boxAt(args[0])
	if err != nil {
		return err
	}
	r.overlay.RemoveBox(box.ID)
	r.printBoxes()
	return nil
}

// PromptCommand sets or shows the AI prompt
type PromptCommand struct{}

func (c *PromptCommand) Name() string        { return "prompt" }
func (c *PromptCommand) Aliases() []string   { return []string{"p"} }
func (c *PromptCommand) Description() string { return "Set or show the AI prompt" }
func (c *PromptCommand) Usage() string       { return "prompt [text]" }

func (c *PromptCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		if r.prompt == "" {
			fmt.Fprintln(r.out, "No prompt set.")
		} else {
			fmt.Fprintf(r.out, "Prompt: %s\n", r.prompt)
		}
		return nil
	}
	r.prompt = strings.Join(args, " ")
	fmt.Fprintf(r.out, "Prompt: %s\n", r.prompt)
	return nil
}

// SuggestCommand lists prompt ideas or applies one
type SuggestCommand struct{}

func (c *SuggestCommand) Name() string        { return "suggest" }
func (c *SuggestCommand) Aliases() []string   { return []string{"ideas"} }
func (c *SuggestCommand) Description() string { return "List prompt ideas, or use one" }
func (c *SuggestCommand) Usage() string       { return "suggest [#]" }

func (c *SuggestCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		for i, s := range promptSuggestions {
			fmt.Fprintf(r.out, "  %d. %s\n", i+1, s)
		}
		return nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(promptSuggestions) {
		return fmt.Errorf("pick a suggestion between 1 and %d", len(promptSuggestions))
	}
	r.prompt = promptSuggestions[n-1]
	fmt.Fprintf(r.out, "Prompt: %s\n", r.prompt)
	return nil
}

// AttachCommand attaches a reference image for AI generation
type AttachCommand struct{}

func (c *AttachCommand) Name() string        { return "attach" }
func (c *AttachCommand) Aliases() []string   { return []string{"ref"} }
func (c *AttachCommand) Description() string { return "Attach a reference image for AI generation" }
func (c *AttachCommand) Usage() string       { return "attach <file>" }

func (c *AttachCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	path := args[0]

	var (
		img *models.EncodedImage
		err error
	)
	if r.uploader != nil {
		var data []byte
		data, err = os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		img, err = r.reference.AttachVia(ctx, r.uploader, path, data, "")
	} else {
		img, err = r.reference.AttachFile(path)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Attached %s (%s, %d bytes)\n", img.Filename, img.MIMEType, img.Size)
	return nil
}

// DetachCommand removes the reference image
type DetachCommand struct{}

func (c *DetachCommand) Name() string        { return "detach" }
func (c *DetachCommand) Aliases() []string   { return nil }
func (c *DetachCommand) Description() string { return "Remove the reference image" }
func (c *DetachCommand) Usage() string       { return "detach" }

func (c *DetachCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	r.reference.Detach()
	fmt.Fprintln(r.out, "Reference image removed.")
	return nil
}
