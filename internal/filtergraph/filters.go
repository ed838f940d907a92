package filtergraph

import (
	"fmt"

	"github.com/MimeLyc/timeline-renderer/internal/expr"
)

// Typed constructors for the filters the planner emits.

func Trim(duration float64) Filter {
	return NewFilter("trim", "start", "0", "duration", Num(duration))
}

// ShiftTo resets timestamps and moves the stream origin to start seconds.
func ShiftTo(start float64) Filter {
	start = max(start, 0)
	return NewFilter("setpts", "expr", fmt.Sprintf("PTS-STARTPTS+%s/TB", Num(start)))
}

func FPS(fps float64) Filter {
	return NewFilter("fps", "fps", Num(fps))
}

func Format(pixFmt string) Filter {
	return NewFilter("format", "pix_fmts", pixFmt)
}

// FitBox scales into w x h preserving aspect ratio.
func FitBox(w, h int) Filter {
	return NewFilter("scale",
		"w", fmt.Sprint(w),
		"h", fmt.Sprint(h),
		"force_original_aspect_ratio", "decrease")
}

// PadBox centers the frame on a transparent w x h box.
func PadBox(w, h int) Filter {
	return NewFilter("pad",
		"w", fmt.Sprint(w),
		"h", fmt.Sprint(h),
		"x", "(ow-iw)/2",
		"y", "(oh-ih)/2",
		"color", "black@0")
}

// Overlay places the second input at x/y, visible only inside window.
func Overlay(x, y expr.Expr, window expr.Window) Filter {
	return NewFilter("overlay",
		"x", expr.Render(x, "t"),
		"y", expr.Render(y, "t"),
		"eval", "frame",
		"enable", expr.Render(window.Active(), "t"))
}

// Zoom scales the frame per frame by factor.
func Zoom(factor expr.Expr) Filter {
	z := expr.Render(factor, "t")
	return NewFilter("scale",
		"w", fmt.Sprintf("iw*%s", z),
		"h", fmt.Sprintf("ih*%s", z),
		"eval", "frame")
}

// Rotate turns the frame by angle radians on an enlarged transparent canvas.
func Rotate(angle expr.Expr) Filter {
	return NewFilter("rotate",
		"a", expr.Render(angle, "t"),
		"c", "none",
		"ow", "hypot(iw,ih)",
		"oh", "hypot(iw,ih)")
}

// Opacity multiplies the alpha plane by factor; the stream must be RGBA.
func Opacity(factor expr.Expr) Filter {
	return NewFilter("geq",
		"r", "r(X,Y)",
		"g", "g(X,Y)",
		"b", "b(X,Y)",
		"a", fmt.Sprintf("alpha(X,Y)*%s", expr.Render(factor, "T")))
}

// Split fans one stream out to n pads.
func Split(n int) Filter {
	return NewFilter("split", "outputs", fmt.Sprint(n))
}

func Null() Filter {
	return Filter{Name: "null"}
}

// DrawText describes one burned-in text overlay.
type DrawText struct {
	Text       string
	FontFile   string
	FontSize   float64
	Color      string
	BoxColor   string
	X          expr.Expr
	Y          expr.Expr
	Alpha      expr.Expr
	Window     expr.Window
	BorderSize int
}

func (d DrawText) Filter() Filter {
	f := NewFilter("drawtext")
	if d.FontFile != "" {
		f = f.With("fontfile", d.FontFile)
	}
	f = f.With("text", d.Text).
		With("expansion", "none").
		With("fontsize", Num(d.FontSize)).
		With("fontcolor", d.Color).
		With("x", expr.Render(d.X, "t")).
		With("y", expr.Render(d.Y, "t"))
	if d.Alpha != nil && !expr.IsConst(d.Alpha, 1) {
		f = f.With("alpha", expr.Render(d.Alpha, "t"))
	}
	if d.BoxColor != "" {
		f = f.With("box", "1").
			With("boxcolor", d.BoxColor).
			With("boxborderw", fmt.Sprint(max(d.BorderSize, 0)))
	}
	return f.With("enable", expr.Render(d.Window.Active(), "t"))
}

// ColorSource is the lavfi description of an opaque base layer.
func ColorSource(color string, w, h int, fps, duration float64) string {
	return fmt.Sprintf("color=c=%s:s=%dx%d:r=%s:d=%s", color, w, h, Num(fps), Num(duration))
}

// Audio filters.

func ATrim(duration float64) Filter {
	return NewFilter("atrim", "start", "0", "duration", Num(duration))
}

func ASetPTS() Filter {
	return NewFilter("asetpts", "expr", "PTS-STARTPTS")
}

// ADelay delays every channel by start seconds.
func ADelay(start float64) Filter {
	return NewFilter("adelay", "delays", fmt.Sprintf("%d", int64(start*1000)), "all", "1")
}

func Volume(v float64) Filter {
	return NewFilter("volume", "volume", Num(v))
}

func AMix(n int) Filter {
	return NewFilter("amix", "inputs", fmt.Sprint(n), "duration", "longest", "normalize", "0")
}
