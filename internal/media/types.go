// Package media drives the external encoder.
package media

import (
	"context"

	fg "github.com/MimeLyc/timeline-renderer/internal/filtergraph"
)

type Settings struct {
	Preset string
	CRF    int
}

const (
	DefaultPreset = "veryfast"
	DefaultCRF    = 23
)

func (s Settings) withDefaults() Settings {
	if s.Preset == "" {
		s.Preset = DefaultPreset
	}
	if s.CRF <= 0 {
		s.CRF = DefaultCRF
	}
	return s
}

type Hooks struct {
	OnStart    func()
	OnProgress func(seconds float64)
}

// Encoder renders a filter graph program into an output file.
type Encoder interface {
	Encode(ctx context.Context, prog *fg.Program, output string, settings Settings, hooks Hooks) error
}

// Prober reports the pixel size of a rendered file as "WxH".
type Prober interface {
	Resolution(ctx context.Context, path string) (string, error)
}
