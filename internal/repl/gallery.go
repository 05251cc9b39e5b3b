package repl

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/manash/memestudio/pkg/models"
)

// GalleryCommand lists the user's saved memes
type GalleryCommand struct{}

func (c *GalleryCommand) Name() string        { return "gallery" }
func (c *GalleryCommand) Aliases() []string   { return []string{"g", "memes"} }
func (c *GalleryCommand) Description() string { return "List your saved memes" }
func (c *GalleryCommand) Usage() string       { return "gallery [--refresh]" }

func (c *GalleryCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	entries := r.gallery.Snapshot()
	if (len(args) > 0 && args[0] == "--refresh") || len(entries) == 0 {
		var err error
		if entries, err = r.gallery.List(ctx, r.userID); err != nil {
			return err
		}
	}

	r.entryIDs = r.entryIDs[:0]
	if len(entries) == 0 {
		fmt.Fprintln(r.out, "Your gallery is empty. Create a meme and 'save' it.")
		return nil
	}

	for i, e := range entries {
		r.entryIDs = append(r.entryIDs, e.ID)
		printEntry(r, i+1, e)
	}
	return nil
}

func printEntry(r *REPL, n int, e models.GalleryEntry) {
	kind := "manual"
	detail := e.TemplateID
	if e.IsAIGenerated {
		kind = "ai"
		detail = e.PromptUsed
	}
	prefix := ""
	if n > 0 {
		prefix = fmt.Sprintf("%3d. ", n)
	}
	fmt.Fprintf(r.out, "%s%-6s  %-14s  %s\n", prefix, kind, humanize.Time(e.CreatedAt), truncate(detail, 40))
}

func (r *REPL) resolveEntry(arg string) (models.GalleryEntry, error) {
	id := arg
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(r.entryIDs) {
			return models.GalleryEntry{}, fmt.Errorf("no gallery entry #%d - run 'gallery' first", n)
		}
		id = r.entryIDs[n-1]
	}
	e, ok := r.gallery.Find(id)
	if !ok {
		return models.GalleryEntry{}, fmt.Errorf("no gallery entry %s", arg)
	}
	return e, nil
}

// DeleteCommand removes a saved meme
type DeleteCommand struct{}

func (c *DeleteCommand) Name() string        { return "delete" }
func (c *DeleteCommand) Aliases() []string   { return []string{"del"} }
func (c *DeleteCommand) Description() string { return "Delete a meme from your gallery" }
func (c *DeleteCommand) Usage() string       { return "delete <#|id>" }

func (c *DeleteCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	id := args[0]
	if e, err := r.resolveEntry(args[0]); err == nil {
		id = e.ID
	} else if _, numErr := strconv.Atoi(args[0]); numErr == nil {
		return err
	}

	if err := r.gallery.Delete(ctx, id, r.userID); err != nil {
		return err
	}
	r.entryIDs = r.entryIDs[:0]
	fmt.Fprintf(r.out, "Deleted. %d meme(s) left.\n", len(r.gallery.Snapshot()))
	return nil
}
