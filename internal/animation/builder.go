// Package animation compiles block animations into positional offsets and
// per-block filter stages.
package animation

import (
	"math"
	"strings"

	"github.com/MimeLyc/timeline-renderer/internal/expr"
	"github.com/MimeLyc/timeline-renderer/internal/filtergraph"
	"github.com/MimeLyc/timeline-renderer/internal/template"
	"github.com/MimeLyc/timeline-renderer/pkg/log"
)

const (
	DefaultShakeStrength  = 10.0
	DefaultShakeFrequency = 10.0
	DefaultBounceStrength = 20.0
	DefaultBounceFreq     = 3.0
	DefaultPulseStrength  = 0.1
	DefaultPulseFrequency = 2.0
	MaxSlideDistance      = 300.0
)

// Result is the compiled form of a block's animation list.
//
// X and Y are offsets added to the block position. Pre holds stages applied
// to the block's own stream before it is overlaid. Post holds stages applied
// to the composite right after the block's overlay; none of the current
// animation types need one. Opacity is the combined fade factor; text blocks
// apply it directly since they have no stream of their own. Recenter is set
// when a pre stage changes the frame size.
type Result struct {
	X        expr.Expr
	Y        expr.Expr
	Opacity  expr.Expr
	Pre      []filtergraph.Filter
	Post     []filtergraph.Filter
	Recenter bool
}

// Build compiles the animations of b for a canvasW x canvasH output.
func Build(b template.Visual, canvasW, canvasH int) Result {
	meta := b.Timing()
	_, isText := b.(template.TextBlock)

	var xs, ys, fades []expr.Expr
	res := Result{}

	for _, a := range b.Placement().Animations {
		start, end := a.Window(meta.Start)
		w := expr.Window{Start: start, End: end}
		p := w.Progress()

		switch a.Type {
		case template.AnimShake:
			x, y := shake(a, w, p)
			xs = append(xs, x)
			ys = append(ys, y)

		case template.AnimSlideIn, template.AnimSlideOut:
			axis, sign := slideAxis(a.DirectionOr("left"))
			distance := MaxSlideDistance
			if axis == "x" {
				distance = math.Min(distance, float64(canvasW))
			} else {
				distance = math.Min(distance, float64(canvasH))
			}
			amount := expr.Sub(expr.Const(1), p)
			if a.Type == template.AnimSlideOut {
				amount = p
			}
			off := w.Gate(expr.Mul(expr.Const(sign*distance), amount), 0)
			if axis == "x" {
				xs = append(xs, off)
			} else {
				ys = append(ys, off)
			}

		case template.AnimBounce:
			ys = append(ys, bounce(a, w, p))

		case template.AnimFadeIn, template.AnimFadeOut:
			level := p
			if a.Type == template.AnimFadeOut {
				level = expr.Sub(expr.Const(1), p)
			}
			fade := w.Gate(level, 1)
			fades = append(fades, fade)
			if !isText {
				res.Pre = append(res.Pre, filtergraph.Opacity(fade))
			}

		case template.AnimScale, template.AnimPulse, template.AnimRotate:
			if isText {
				log.Warn("block %s: %s is not supported on text blocks, ignoring", meta.ID, a.Type)
				continue
			}
			res.Pre = append(res.Pre, transform(a, w, p))
			res.Recenter = true

		default:
			log.Warn("block %s: unknown animation type %q, ignoring", meta.ID, a.Type)
		}
	}

	res.X = expr.Add(xs...)
	res.Y = expr.Add(ys...)
	res.Opacity = expr.Mul(fades...)
	return res
}

func shake(a template.Animation, w expr.Window, p expr.Expr) (expr.Expr, expr.Expr) {
	strength := a.StrengthOr(DefaultShakeStrength)
	freq := a.FrequencyOr(DefaultShakeFrequency)
	local := expr.Sub(expr.T, expr.Const(w.Start))
	decay := expr.Sub(expr.Const(1), p)

	x := expr.Mul(expr.Const(strength), expr.Sin(expr.Mul(expr.Const(2*math.Pi*freq), local)), decay)
	y := expr.Mul(
		expr.Const(strength/2),
		expr.Sin(expr.Add(expr.Mul(expr.Const(math.Pi*freq), local), expr.Const(math.Pi/2))),
		decay,
	)
	return w.Gate(x, 0), w.Gate(y, 0)
}

func bounce(a template.Animation, w expr.Window, p expr.Expr) expr.Expr {
	strength := a.StrengthOr(DefaultBounceStrength)
	freq := a.FrequencyOr(DefaultBounceFreq)
	height := expr.Mul(
		expr.Abs(expr.Sin(expr.Mul(p, expr.Const(freq*math.Pi)))),
		expr.Const(strength),
		expr.Sub(expr.Const(1), p),
	)
	// screen y grows downward
	return w.Gate(expr.Mul(expr.Const(-1), height), 0)
}

func transform(a template.Animation, w expr.Window, p expr.Expr) filtergraph.Filter {
	if a.Type == template.AnimRotate {
		return filtergraph.Rotate(transformFactor(a, w, p))
	}
	return filtergraph.Zoom(transformFactor(a, w, p))
}

// transformFactor is the zoom factor (scale, pulse) or angle in radians (rotate).
func transformFactor(a template.Animation, w expr.Window, p expr.Expr) expr.Expr {
	switch a.Type {
	case template.AnimScale:
		s0, s1 := a.Scales()
		return w.Gate(expr.Add(expr.Const(s0), expr.Mul(expr.Const(s1-s0), p)), 1)
	case template.AnimPulse:
		strength := a.StrengthOr(DefaultPulseStrength)
		freq := a.FrequencyOr(DefaultPulseFrequency)
		wave := expr.Sin(expr.Mul(p, expr.Const(freq*2*math.Pi)))
		return w.Gate(expr.Add(expr.Const(1), expr.Mul(wave, expr.Const(strength))), 1)
	default:
		radians := a.Degrees() * math.Pi / 180 * rotationSign(a.DirectionOr("clockwise"))
		return w.Gate(expr.Mul(expr.Const(radians), p), 0)
	}
}

func slideAxis(direction string) (string, float64) {
	switch strings.ToLower(direction) {
	case "right":
		return "x", 1
	case "top", "up":
		return "y", -1
	case "bottom", "down":
		return "y", 1
	default:
		return "x", -1
	}
}

func rotationSign(direction string) float64 {
	switch strings.ToLower(direction) {
	case "counterclockwise", "counter-clockwise", "ccw", "anticlockwise", "left":
		return -1
	default:
		return 1
	}
}
