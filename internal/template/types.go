// Package template models a render template: a canvas and a timeline of
// typed blocks.
package template

import (
	"fmt"
	"sort"
)

type Kind string

const (
	KindVideo Kind = "video"
	KindImage Kind = "image"
	KindText  Kind = "text"
	KindAudio Kind = "audio"
)

// Canvas is the output frame. Duration 0 means derived from the timeline.
type Canvas struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FPS        float64 `json:"fps"`
	Duration   float64 `json:"duration,omitempty"`
	Background string  `json:"background,omitempty"`
}

func (c Canvas) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("canvas size must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("canvas fps must be positive, got %v", c.FPS)
	}
	if c.Duration < 0 {
		return fmt.Errorf("canvas duration must not be negative, got %v", c.Duration)
	}
	return nil
}

// Meta holds the fields every block kind carries.
type Meta struct {
	ID       string
	Start    float64
	Duration float64
	Track    int
}

func (m Meta) End() float64 { return m.Start + m.Duration }

// Active reports whether the block takes part in composition.
func (m Meta) Active() bool { return m.Duration > 0 }

// Layout is the placement of a visual block. Width/Height 0 means unset.
type Layout struct {
	X          float64
	Y          float64
	Width      float64
	Height     float64
	Animations []Animation
}

// Captions configures burned-in subtitles for a block.
type Captions struct {
	Enabled bool
	Source  string
	StyleID string
}

// Block is implemented by VideoBlock, ImageBlock, TextBlock and AudioBlock.
type Block interface {
	Kind() Kind
	Timing() Meta
	block()
}

// Visual blocks are drawn onto the composite.
type Visual interface {
	Block
	Placement() Layout
}

// Sourced blocks reference media that must be resolved before planning.
type Sourced interface {
	Block
	SourceRef() string
}

// Captioned blocks may carry a subtitle track.
type Captioned interface {
	Block
	CaptionSettings() Captions
}

type VideoBlock struct {
	Meta
	Layout
	Source   string
	Captions Captions
}

type ImageBlock struct {
	Meta
	Layout
	Source   string
	Captions Captions
}

type TextBlock struct {
	Meta
	Layout
	Text       string
	FontSize   float64
	Color      string
	Background string
	Captions   Captions
}

type AudioBlock struct {
	Meta
	Source string
	Volume float64
}

func (VideoBlock) Kind() Kind { return KindVideo }
func (ImageBlock) Kind() Kind { return KindImage }
func (TextBlock) Kind() Kind  { return KindText }
func (AudioBlock) Kind() Kind { return KindAudio }

func (b VideoBlock) Timing() Meta { return b.Meta }
func (b ImageBlock) Timing() Meta { return b.Meta }
func (b TextBlock) Timing() Meta  { return b.Meta }
func (b AudioBlock) Timing() Meta { return b.Meta }

func (VideoBlock) block() {}
func (ImageBlock) block() {}
func (TextBlock) block()  {}
func (AudioBlock) block() {}

func (b VideoBlock) Placement() Layout { return b.Layout }
func (b ImageBlock) Placement() Layout { return b.Layout }
func (b TextBlock) Placement() Layout  { return b.Layout }

func (b VideoBlock) SourceRef() string { return b.Source }
func (b ImageBlock) SourceRef() string { return b.Source }
func (b AudioBlock) SourceRef() string { return b.Source }

func (b VideoBlock) CaptionSettings() Captions { return b.Captions }
func (b ImageBlock) CaptionSettings() Captions { return b.Captions }
func (b TextBlock) CaptionSettings() Captions  { return b.Captions }

const (
	DefaultFontSize = 48
	DefaultColor    = "#ffffff"
)

// Style returns the caption style a text block lends to linked media blocks.
func (b TextBlock) Style() TextStyle {
	style := TextStyle{FontSize: b.FontSize, Color: b.Color, Background: b.Background}
	if style.FontSize <= 0 {
		style.FontSize = DefaultFontSize
	}
	if style.Color == "" {
		style.Color = DefaultColor
	}
	return style
}

type TextStyle struct {
	FontSize   float64
	Color      string
	Background string
}

// Template is a canvas plus its timeline.
type Template struct {
	Canvas   Canvas
	Timeline []Block
}

// ActiveBlocks returns blocks with positive duration, stable-sorted by track.
func (t Template) ActiveBlocks() []Block {
	active := make([]Block, 0, len(t.Timeline))
	for _, b := range t.Timeline {
		if b.Timing().Active() {
			active = append(active, b)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Timing().Track < active[j].Timing().Track
	})
	return active
}

// TotalDuration is the canvas duration, or the latest block end with a 1s floor.
func (t Template) TotalDuration() float64 {
	if t.Canvas.Duration > 0 {
		return t.Canvas.Duration
	}
	total := 1.0
	for _, b := range t.ActiveBlocks() {
		total = max(total, b.Timing().End())
	}
	return total
}

// TextBlockByID finds the style block a caption references.
func (t Template) TextBlockByID(id string) (TextBlock, bool) {
	if id == "" {
		return TextBlock{}, false
	}
	for _, b := range t.Timeline {
		if tb, ok := b.(TextBlock); ok && tb.ID == id {
			return tb, true
		}
	}
	return TextBlock{}, false
}

// Asset is a caller-supplied media record addressable from placeholders.
type Asset struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

// Request is the body accepted by the render endpoint.
type Request struct {
	Template     Template          `json:"template"`
	Assets       []Asset           `json:"assets,omitempty"`
	Placeholders map[string]string `json:"placeholders,omitempty"`
	UserID       string            `json:"userId,omitempty"`
	TemplateID   string            `json:"templateId,omitempty"`
	ProjectID    string            `json:"projectId,omitempty"`
	Source       string            `json:"source,omitempty"`
}
