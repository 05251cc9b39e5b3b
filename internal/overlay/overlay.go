// Package overlay holds the ordered text boxes of a manual composition.
// It performs no I/O.
package overlay

import (
	"strings"

	"github.com/google/uuid"

	"github.com/manash/memestudio/pkg/models"
)

// BoxPatch carries the fields to merge into a box. Nil fields are left as-is.
type BoxPatch struct {
	Content    *string
	FontSizePt *int
	ColorHex   *string
	FontFamily *models.FontFamily
	Alignment  *models.Alignment
	Position   *models.Position
}

// Text is shorthand for a patch that only changes the content.
func Text(s string) BoxPatch {
	return BoxPatch{Content: &s}
}

func (p BoxPatch) apply(b models.TextBox) models.TextBox {
	if p.Content != nil {
		b.Content = *p.Content
	}
	if p.FontSizePt != nil {
		b.FontSizePt = *p.FontSizePt
	}
	if p.ColorHex != nil {
		b.ColorHex = *p.ColorHex
	}
	if p.FontFamily != nil {
		b.FontFamily = *p.FontFamily
	}
	if p.Alignment != nil {
		b.Alignment = *p.Alignment
	}
	if p.Position != nil {
		b.Position = *p.Position
	}
	return b
}

type Overlay struct {
	boxes []models.TextBox
	newID func() string
}

// New returns an overlay seeded with n default boxes. With two or more boxes
// the first sits at the top (y=20) and the last at the bottom (y=80).
func New(n int) *Overlay {
	o := &Overlay{newID: uuid.NewString}
	for i := 0; i < n; i++ {
		o.AddBox()
		if n > 1 {
			o.boxes[i].Position.YPct = 20 + 60*float64(i)/float64(n-1)
		}
	}
	return o
}

// AddBox appends a default box with a fresh id and returns it.
func (o *Overlay) AddBox() models.TextBox {
	box := models.DefaultTextBox(o.newID())
	o.boxes = append(o.boxes, box)
	return box
}

// RemoveBox deletes the box with id. Unknown ids are ignored. Removing the
// last box is allowed; emptiness is only checked by Validate.
func (o *Overlay) RemoveBox(id string) {
	for i, b := range o.boxes {
		if b.ID == id {
			o.boxes = append(o.boxes[:i], o.boxes[i+1:]...)
			return
		}
	}
}

// UpdateBox merges patch into the box with id. Unknown ids are a silent
// no-op; a patch that would make the box invalid is rejected unchanged.
func (o *Overlay) UpdateBox(id string, patch BoxPatch) error {
	for i, b := range o.boxes {
		if b.ID != id {
			continue
		}
		updated := patch.apply(b)
		if err := updated.Validate(); err != nil {
			return err
		}
		o.boxes[i] = updated
		return nil
	}
	return nil
}

// Validate fails with reason "empty" when no box has visible content.
func (o *Overlay) Validate() error {
	for _, b := range o.boxes {
		if strings.TrimSpace(b.Content) != "" {
			return nil
		}
	}
	return models.NewValidationError(models.ReasonEmpty)
}

func (o *Overlay) Boxes() []models.TextBox {
	return append([]models.TextBox(nil), o.boxes...)
}

func (o *Overlay) Box(id string) (models.TextBox, bool) {
	for _, b := range o.boxes {
		if b.ID == id {
			return b, true
		}
	}
	return models.TextBox{}, false
}

func (o *Overlay) Len() int {
	return len(o.boxes)
}
