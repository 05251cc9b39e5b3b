package models

import (
	"fmt"
	"regexp"
	"slices"
)

const (
	MinFontSize     = 12
	MaxFontSize     = 72
	DefaultFontSize = 40
	DefaultColor    = "#FFFFFF"
)

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

type FontFamily string

const (
	FontImpact      FontFamily = "Impact"
	FontArial       FontFamily = "Arial"
	FontHelvetica   FontFamily = "Helvetica"
	FontTimesRoman  FontFamily = "Times New Roman"
	FontComicSansMS FontFamily = "Comic Sans MS"
)

func ValidFontFamilies() []FontFamily {
	return []FontFamily{FontImpact, FontArial, FontHelvetica, FontTimesRoman, FontComicSansMS}
}

func (f FontFamily) IsValid() bool {
	return slices.Contains(ValidFontFamilies(), f)
}

type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"
)

func ValidAlignments() []Alignment {
	return []Alignment{AlignLeft, AlignCenter, AlignRight}
}

func (a Alignment) IsValid() bool {
	return slices.Contains(ValidAlignments(), a)
}

// Position is expressed in percent of the template's width and height.
type Position struct {
	XPct float64
	YPct float64
}

func (p Position) IsValid() bool {
	return p.XPct >= 0 && p.XPct <= 100 && p.YPct >= 0 && p.YPct <= 100
}

type TextBox struct {
	ID         string
	Content    string
	FontSizePt int
	ColorHex   string
	FontFamily FontFamily
	Alignment  Alignment
	Position   Position
}

// DefaultTextBox returns a centered white Impact box.
func DefaultTextBox(id string) TextBox {
	return TextBox{
		ID:         id,
		FontSizePt: DefaultFontSize,
		ColorHex:   DefaultColor,
		FontFamily: FontImpact,
		Alignment:  AlignCenter,
		Position:   Position{XPct: 50, YPct: 50},
	}
}

func (b TextBox) Validate() error {
	if b.FontSizePt < MinFontSize || b.FontSizePt > MaxFontSize {
		return &ValidationError{Reason: "font-size", Detail: fmt.Sprintf("must be between %d and %d, got %d", MinFontSize, MaxFontSize, b.FontSizePt)}
	}
	if !hexColor.MatchString(b.ColorHex) {
		return &ValidationError{Reason: "color", Detail: fmt.Sprintf("%q is not #RRGGBB", b.ColorHex)}
	}
	if !b.FontFamily.IsValid() {
		return &ValidationError{Reason: "font-family", Detail: fmt.Sprintf("%q not in %v", b.FontFamily, ValidFontFamilies())}
	}
	if !b.Alignment.IsValid() {
		return &ValidationError{Reason: "alignment", Detail: fmt.Sprintf("%q not in %v", b.Alignment, ValidAlignments())}
	}
	if !b.Position.IsValid() {
		return &ValidationError{Reason: "position", Detail: "coordinates must be within 0-100"}
	}
	return nil
}
