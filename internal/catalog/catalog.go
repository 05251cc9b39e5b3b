// Package catalog fetches and caches the meme templates available to a session.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/manash/memestudio/internal/service"
	"github.com/manash/memestudio/pkg/models"
)

// DataIntegrityWarning reports an upstream anomaly that does not stop the
// catalog from loading.
type DataIntegrityWarning struct {
	TemplateID string
	Indexes    []int
}

func (w DataIntegrityWarning) String() string {
	return fmt.Sprintf("duplicate template id %q at positions %v", w.TemplateID, w.Indexes)
}

// Entry pairs a template with a key that stays unique even when upstream ids
// repeat. Use Key for rendering and Template.ID for creation requests.
type Entry struct {
	Key      string
	Index    int
	Template models.Template
	// Shared is set when another entry carries the same Template.ID.
	Shared bool
}

// Label is what listings show for the entry: the id, or the render key when
// the id is shared.
func (e Entry) Label() string {
	if e.Shared {
		return e.Key
	}
	return e.Template.ID
}

func RenderKey(id string, index int) string {
	return id + "#" + strconv.Itoa(index)
}

var (
	ErrUnknownTemplate   = errors.New("unknown template")
	ErrAmbiguousTemplate = errors.New("ambiguous template id")
)

type Catalog struct {
	source service.TemplateSource
	logger zerolog.Logger
	intn   func(n int) int

	mu        sync.Mutex
	templates []models.Template
	warnings  []DataIntegrityWarning
	loaded    bool
	loading   bool
}

func New(source service.TemplateSource, logger zerolog.Logger) *Catalog {
	return &Catalog{
		source: source,
		logger: logger,
		intn:   rand.IntN,
	}
}

// Load returns the cached templates, fetching them on first use.
func (c *Catalog) Load(ctx context.Context) ([]models.Template, error) {
	c.mu.Lock()
	if c.loaded {
		templates := c.snapshotLocked()
		c.mu.Unlock()
		return templates, nil
	}
	c.mu.Unlock()

	return c.fetch(ctx)
}

// Refresh refetches the templates regardless of the cache.
func (c *Catalog) Refresh(ctx context.Context) ([]models.Template, error) {
	return c.fetch(ctx)
}

func (c *Catalog) fetch(ctx context.Context) ([]models.Template, error) {
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: template catalog is loading", models.ErrBusy)
	}
	c.loading = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.loading = false
		c.mu.Unlock()
	}()

	raw, err := c.source.Templates(ctx)
	if err != nil {
		if !errors.Is(err, models.ErrFetch) {
			err = fmt.Errorf("%w: %w", models.ErrFetch, err)
		}
		return nil, err
	}

	templates := make([]models.Template, 0, len(raw))
	for _, t := range raw {
		if err := t.Validate(); err != nil {
			c.logger.Warn().Err(err).Str("template_id", t.ID).Msg("skipping malformed template")
			continue
		}
		templates = append(templates, t)
	}

	warnings := findDuplicates(templates)
	for _, w := range warnings {
		c.logger.Warn().
			Str("template_id", w.TemplateID).
			Ints("positions", w.Indexes).
			Msg("duplicate template id in catalog")
	}

	c.mu.Lock()
	c.templates = templates
	c.warnings = warnings
	c.loaded = true
	out := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Debug().Int("count", len(out)).Int("duplicates", len(warnings)).Msg("template catalog loaded")
	return out, nil
}

func findDuplicates(templates []models.Template) []DataIntegrityWarning {
	positions := make(map[string][]int)
	var order []string
	for i, t := range templates {
		if _, seen := positions[t.ID]; !seen {
			order = append(order, t.ID)
		}
		positions[t.ID] = append(positions[t.ID], i)
	}

	var warnings []DataIntegrityWarning
	for _, id := range order {
		if idx := positions[id]; len(idx) > 1 {
			warnings = append(warnings, DataIntegrityWarning{TemplateID: id, Indexes: idx})
		}
	}
	return warnings
}

func (c *Catalog) IsLoaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

func (c *Catalog) Templates() []models.Template {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Catalog) Warnings() []DataIntegrityWarning {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]DataIntegrityWarning(nil), c.warnings...)
}

// Filter matches term case-insensitively against template names. An empty
// term returns every template.
func (c *Catalog) Filter(term string) []models.Template {
	entries := c.FilterEntries(term)
	if entries == nil {
		return nil
	}
	matched := make([]models.Template, 0, len(entries))
	for _, e := range entries {
		matched = append(matched, e.Template)
	}
	return matched
}

// FilterEntries is Filter keeping each template's render key.
func (c *Catalog) FilterEntries(term string) []Entry {
	all := c.Entries()
	if term == "" {
		return all
	}

	term = strings.ToLower(term)
	var matched []Entry
	for _, e := range all {
		if strings.Contains(strings.ToLower(e.Template.Name), term) {
			matched = append(matched, e)
		}
	}
	return matched
}

func (c *Catalog) PickRandom() (models.Template, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.templates) == 0 {
		return models.Template{}, false
	}
	return c.templates[c.intn(len(c.templates))], true
}

func (c *Catalog) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := make(map[string]int, len(c.templates))
	for _, t := range c.templates {
		count[t.ID]++
	}
	entries := make([]Entry, 0, len(c.templates))
	for i, t := range c.templates {
		entries = append(entries, Entry{Key: RenderKey(t.ID, i), Index: i, Template: t, Shared: count[t.ID] > 1})
	}
	return entries
}

// Lookup returns the first template carrying id.
func (c *Catalog) Lookup(id string) (models.Template, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range c.templates {
		if t.ID == id {
			return t, true
		}
	}
	return models.Template{}, false
}

// Resolve finds a template by render key ("id#index") or by id. An id shared
// by several templates fails with ErrAmbiguousTemplate naming their keys.
func (c *Catalog) Resolve(ref string) (models.Template, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, idx, ok := strings.Cut(ref, "#"); ok {
		i, err := strconv.Atoi(idx)
		if err == nil && i >= 0 && i < len(c.templates) && c.templates[i].ID == id {
			return c.templates[i], nil
		}
		return models.Template{}, fmt.Errorf("%w %q", ErrUnknownTemplate, ref)
	}

	var keys []string
	var found models.Template
	for i, t := range c.templates {
		if t.ID == ref {
			if keys == nil {
				found = t
			}
			keys = append(keys, RenderKey(t.ID, i))
		}
	}
	switch len(keys) {
	case 0:
		return models.Template{}, fmt.Errorf("%w %q", ErrUnknownTemplate, ref)
	case 1:
		return found, nil
	default:
		return models.Template{}, fmt.Errorf("%w %q: use one of %s", ErrAmbiguousTemplate, ref, strings.Join(keys, ", "))
	}
}

func (c *Catalog) snapshotLocked() []models.Template {
	return append([]models.Template(nil), c.templates...)
}
