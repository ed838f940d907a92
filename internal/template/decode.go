package template

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MimeLyc/timeline-renderer/pkg/log"
	"gopkg.in/yaml.v3"
)

// wireBlock is the flat JSON shape produced by the editor.
type wireBlock struct {
	ID              string      `json:"id"`
	Type            Kind        `json:"type"`
	Start           float64     `json:"start"`
	Duration        float64     `json:"duration"`
	Track           int         `json:"track"`
	X               float64     `json:"x"`
	Y               float64     `json:"y"`
	Width           float64     `json:"width"`
	Height          float64     `json:"height"`
	Source          string      `json:"source"`
	Text            string      `json:"text"`
	FontSize        float64     `json:"fontSize"`
	Color           string      `json:"color"`
	BackgroundColor string      `json:"backgroundColor"`
	Volume          *float64    `json:"volume"`
	SubtitleEnabled bool        `json:"subtitleEnabled"`
	SubtitleSource  string      `json:"subtitleSource"`
	SubtitleStyleID string      `json:"subtitleStyleId"`
	Animations      []Animation `json:"animations"`
}

func (w wireBlock) toBlock() (Block, bool) {
	meta := Meta{ID: w.ID, Start: max(w.Start, 0), Duration: w.Duration, Track: w.Track}
	layout := Layout{X: w.X, Y: w.Y, Width: w.Width, Height: w.Height, Animations: w.Animations}
	captions := Captions{Enabled: w.SubtitleEnabled, Source: w.SubtitleSource, StyleID: w.SubtitleStyleID}

	switch Kind(strings.ToLower(string(w.Type))) {
	case KindVideo:
		return VideoBlock{Meta: meta, Layout: layout, Source: w.Source, Captions: captions}, true
	case KindImage:
		return ImageBlock{Meta: meta, Layout: layout, Source: w.Source, Captions: captions}, true
	case KindText:
		return TextBlock{
			Meta:       meta,
			Layout:     layout,
			Text:       w.Text,
			FontSize:   w.FontSize,
			Color:      w.Color,
			Background: w.BackgroundColor,
			Captions:   captions,
		}, true
	case KindAudio:
		volume := 1.0
		if w.Volume != nil {
			volume = *w.Volume
		}
		return AudioBlock{Meta: meta, Source: w.Source, Volume: volume}, true
	default:
		return nil, false
	}
}

func (t *Template) UnmarshalJSON(data []byte) error {
	var wire struct {
		Canvas   Canvas      `json:"canvas"`
		Timeline []wireBlock `json:"timeline"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	t.Canvas = wire.Canvas
	t.Timeline = make([]Block, 0, len(wire.Timeline))
	for i, w := range wire.Timeline {
		b, ok := w.toBlock()
		if !ok {
			log.Warn("skipping timeline entry %d (id=%q): unknown block type %q", i, w.ID, w.Type)
			continue
		}
		if w.Start < 0 {
			log.Warn("timeline entry %d (id=%q): negative start %g clamped to 0", i, w.ID, w.Start)
		}
		t.Timeline = append(t.Timeline, b)
	}
	return nil
}

// DecodeJSON parses a template document.
func DecodeJSON(data []byte) (Template, error) {
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return Template{}, fmt.Errorf("decode template: %w", err)
	}
	return t, nil
}

// DecodeYAML parses a template written in YAML using the same field names as JSON.
func DecodeYAML(data []byte) (Template, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Template{}, fmt.Errorf("decode template yaml: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return Template{}, fmt.Errorf("decode template yaml: %w", err)
	}
	return DecodeJSON(raw)
}
