// Package planner turns a template with resolved sources into a filter graph.
package planner

import (
	"fmt"
	"math"
	"strings"

	"github.com/MimeLyc/timeline-renderer/internal/animation"
	"github.com/MimeLyc/timeline-renderer/internal/expr"
	fg "github.com/MimeLyc/timeline-renderer/internal/filtergraph"
	"github.com/MimeLyc/timeline-renderer/internal/subtitle"
	"github.com/MimeLyc/timeline-renderer/internal/template"
	"github.com/MimeLyc/timeline-renderer/pkg/log"
)

const (
	outputLabel fg.Label = "vout"
	audioLabel  fg.Label = "aout"

	// caption baseline sits this far above the bottom of the block box
	captionMargin = 0.1
)

// Sources holds everything resolved before planning.
type Sources struct {
	// Paths maps a block's source reference to a local file.
	Paths map[string]string
	// Texts maps a caption source reference to subtitle content.
	Texts map[string]string
}

type Options struct {
	FontFile    string
	FontFileCJK string
	MaxWords    int
	// Substitute expands placeholders in text block text.
	Substitute func(string) string
}

// Plan builds the program for tpl. Blocks whose source is missing from
// src.Paths are left out.
func Plan(tpl template.Template, src Sources, opts Options) (*fg.Program, error) {
	if err := tpl.Canvas.Validate(); err != nil {
		return nil, err
	}
	if opts.MaxWords <= 0 {
		opts.MaxWords = subtitle.DefaultMaxWords
	}
	if opts.Substitute == nil {
		opts.Substitute = func(s string) string { return s }
	}

	p := &planner{tpl: tpl, src: src, opts: opts, canvas: tpl.Canvas}
	prog := &fg.Program{Duration: tpl.TotalDuration(), FPS: tpl.Canvas.FPS}

	base := prog.AddInput(fg.Input{
		Path:  fg.ColorSource(engineColor(tpl.Canvas.Background, "black"), tpl.Canvas.Width, tpl.Canvas.Height, tpl.Canvas.FPS, prog.Duration),
		Lavfi: true,
	})

	blocks := tpl.ActiveBlocks()
	pads, splits := p.registerInputs(prog, blocks)
	for _, c := range splits {
		prog.AddChain(c)
	}

	// the composite label is threaded from one block to the next
	label := fg.VideoPad(base)
	var audio []fg.Label
	for i, b := range blocks {
		var st step
		if ab, isAudio := b.(template.AudioBlock); isAudio {
			st = p.audio(i, ab, pads[i])
			audio = append(audio, st.out...)
		} else {
			st = p.composite(label, i, b, pads[i])
			label = st.next
		}
		for _, c := range st.chains {
			prog.AddChain(c)
		}
	}

	if prog.Count("overlay")+prog.Count("drawtext") == 0 {
		prog.AddChain(fg.Chain{Inputs: []fg.Label{label}, Filters: []fg.Filter{fg.Null()}, Outputs: []fg.Label{outputLabel}})
	} else {
		prog.AddChain(fg.Chain{Inputs: []fg.Label{label}, Filters: []fg.Filter{fg.Format("yuv420p")}, Outputs: []fg.Label{outputLabel}})
	}
	prog.VideoOut = outputLabel

	switch len(audio) {
	case 0:
	case 1:
		prog.AudioOut = audio[0]
	default:
		prog.AddChain(fg.Chain{Inputs: audio, Filters: []fg.Filter{fg.AMix(len(audio))}, Outputs: []fg.Label{audioLabel}})
		prog.AudioOut = audioLabel
	}
	return prog, nil
}

type planner struct {
	tpl    template.Template
	src    Sources
	opts   Options
	canvas template.Canvas
}

// step is the output of folding one block into the composite.
type step struct {
	next   fg.Label
	chains []fg.Chain
	out    []fg.Label
}

type padKey struct {
	input int
	audio bool
}

// registerInputs adds one input per distinct resolved path in first-seen
// order and returns the pad each block reads from, keyed by block position.
// Inputs read by several blocks are fanned out with split.
func (p *planner) registerInputs(prog *fg.Program, blocks []template.Block) (map[int]fg.Label, []fg.Chain) {
	byPath := make(map[string]int)
	users := make(map[padKey][]int)
	var order []padKey

	for i, b := range blocks {
		sourced, ok := b.(template.Sourced)
		if !ok {
			continue
		}
		path, ok := p.src.Paths[sourced.SourceRef()]
		if !ok || path == "" {
			log.Warn("block %s: source %q unresolved, skipping", b.Timing().ID, sourced.SourceRef())
			continue
		}
		idx, seen := byPath[path]
		if !seen {
			_, isImage := b.(template.ImageBlock)
			idx = prog.AddInput(fg.Input{Path: path, Loop: isImage})
			byPath[path] = idx
		}
		_, isAudio := b.(template.AudioBlock)
		key := padKey{input: idx, audio: isAudio}
		if _, ok := users[key]; !ok {
			order = append(order, key)
		}
		users[key] = append(users[key], i)
	}

	pads := make(map[int]fg.Label)
	var splits []fg.Chain
	for _, key := range order {
		src := fg.VideoPad(key.input)
		splitter := fg.Split(len(users[key]))
		if key.audio {
			src = fg.AudioPad(key.input)
			splitter.Name = "asplit"
		}
		blockIdx := users[key]
		if len(blockIdx) == 1 {
			pads[blockIdx[0]] = src
			continue
		}
		outs := make([]fg.Label, len(blockIdx))
		for n, bi := range blockIdx {
			outs[n] = fg.Label(fmt.Sprintf("s%d%s%d", key.input, streamSuffix(key.audio), n))
			pads[bi] = outs[n]
		}
		splits = append(splits, fg.Chain{Inputs: []fg.Label{src}, Filters: []fg.Filter{splitter}, Outputs: outs})
	}
	return pads, splits
}

func streamSuffix(audio bool) string {
	if audio {
		return "a"
	}
	return "v"
}

// composite folds one visual block onto the running composite cur.
func (p *planner) composite(cur fg.Label, i int, b template.Block, pad fg.Label) step {
	switch blk := b.(type) {
	case template.TextBlock:
		return p.text(cur, i, blk)
	case template.VideoBlock:
		if pad == "" {
			return step{next: cur}
		}
		return p.media(cur, i, blk, blk.Captions, pad)
	case template.ImageBlock:
		if pad == "" {
			return step{next: cur}
		}
		return p.media(cur, i, blk, blk.Captions, pad)
	default:
		return step{next: cur}
	}
}

func (p *planner) media(cur fg.Label, i int, b template.Visual, captions template.Captions, pad fg.Label) step {
	meta := b.Timing()
	layout := b.Placement()
	w, h := p.box(layout)
	anim := animation.Build(b, p.canvas.Width, p.canvas.Height)

	filters := []fg.Filter{
		fg.Trim(meta.Duration),
		fg.ShiftTo(meta.Start),
		fg.FPS(p.canvas.FPS),
		fg.Format("rgba"),
		fg.FitBox(w, h),
		fg.PadBox(w, h),
	}
	filters = append(filters, anim.Pre...)

	stream := fg.Label(fmt.Sprintf("b%d", i))
	x := expr.Add(expr.Const(layout.X), anim.X)
	y := expr.Add(expr.Const(layout.Y), anim.Y)
	if anim.Recenter {
		x = expr.Add(x, expr.Div(expr.Sub(expr.Const(float64(w)), expr.Var("overlay_w")), expr.Const(2)))
		y = expr.Add(y, expr.Div(expr.Sub(expr.Const(float64(h)), expr.Var("overlay_h")), expr.Const(2)))
	}
	window := expr.Window{Start: meta.Start, End: meta.End()}

	next := fg.Label(fmt.Sprintf("v%d", i))
	chains := []fg.Chain{
		{Inputs: []fg.Label{pad}, Filters: filters, Outputs: []fg.Label{stream}},
		{Inputs: []fg.Label{cur, stream}, Filters: []fg.Filter{fg.Overlay(x, y, window)}, Outputs: []fg.Label{next}},
	}
	if len(anim.Post) > 0 {
		post := fg.Label(fmt.Sprintf("v%dp", i))
		chains = append(chains, fg.Chain{Inputs: []fg.Label{next}, Filters: anim.Post, Outputs: []fg.Label{post}})
		next = post
	}

	if !captions.Enabled {
		return step{next: next, chains: chains}
	}
	style := template.TextBlock{}.Style()
	if linked, ok := p.tpl.TextBlockByID(captions.StyleID); ok {
		style = linked.Style()
	}
	region := captionRegion{x: layout.X, y: layout.Y, w: float64(w), h: float64(h)}
	capStep := p.captions(next, i, meta, captions.Source, style, region)
	return step{next: capStep.next, chains: append(chains, capStep.chains...)}
}

func (p *planner) text(cur fg.Label, i int, b template.TextBlock) step {
	meta := b.Meta
	if b.Captions.Enabled {
		w, h := p.box(b.Layout)
		region := captionRegion{x: b.X, y: b.Y, w: float64(w), h: float64(h)}
		return p.captions(cur, i, meta, b.Captions.Source, b.Style(), region)
	}

	content := p.opts.Substitute(b.Text)
	if strings.TrimSpace(content) == "" {
		return step{next: cur}
	}

	anim := animation.Build(b, p.canvas.Width, p.canvas.Height)
	style := b.Style()
	x := expr.Const(b.X)
	if b.Width > 0 {
		x = expr.Add(x, expr.Div(expr.Sub(expr.Const(b.Width), expr.Var("text_w")), expr.Const(2)))
	}
	y := expr.Const(b.Y)
	if b.Height > 0 {
		y = expr.Add(y, expr.Div(expr.Sub(expr.Const(b.Height), expr.Var("text_h")), expr.Const(2)))
	}

	dt := fg.DrawText{
		Text:       content,
		FontFile:   p.font(content),
		FontSize:   style.FontSize,
		Color:      engineColor(style.Color, "white"),
		BoxColor:   engineColor(style.Background, ""),
		BorderSize: int(style.FontSize / 4),
		X:          expr.Add(x, anim.X),
		Y:          expr.Add(y, anim.Y),
		Alpha:      anim.Opacity,
		Window:     expr.Window{Start: meta.Start, End: meta.End()},
	}
	next := fg.Label(fmt.Sprintf("v%d", i))
	return step{next: next, chains: []fg.Chain{{Inputs: []fg.Label{cur}, Filters: []fg.Filter{dt.Filter()}, Outputs: []fg.Label{next}}}}
}

type captionRegion struct {
	x, y, w, h float64
}

// captions draws one text overlay per chunked cue, each chained onto the
// previous one.
func (p *planner) captions(cur fg.Label, i int, meta template.Meta, source string, style template.TextStyle, region captionRegion) step {
	content, ok := p.src.Texts[source]
	if !ok {
		return step{next: cur}
	}
	cues := subtitle.Chunk(subtitle.ParseCues(content), p.opts.MaxWords)
	if len(cues) == 0 {
		log.Warn("block %s: subtitle source has no usable cues", meta.ID)
		return step{next: cur}
	}
	font := p.font(subtitle.CueTexts(cues)...)

	x := expr.Add(expr.Const(region.x), expr.Div(expr.Sub(expr.Const(region.w), expr.Var("text_w")), expr.Const(2)))
	y := expr.Sub(expr.Const(region.y+region.h*(1-captionMargin)), expr.Var("text_h"))

	var chains []fg.Chain
	label := cur
	for n, cue := range cues {
		abs := cue.Shift(meta.Start)
		if abs.Start >= meta.End() {
			continue
		}
		abs.End = math.Min(abs.End, meta.End())

		dt := fg.DrawText{
			Text:       cue.Text,
			FontFile:   font,
			FontSize:   style.FontSize,
			Color:      engineColor(style.Color, "white"),
			BoxColor:   engineColor(style.Background, ""),
			BorderSize: int(style.FontSize / 4),
			X:          x,
			Y:          y,
			Window:     expr.Window{Start: abs.Start, End: abs.End},
		}
		next := fg.Label(fmt.Sprintf("c%d_%d", i, n))
		chains = append(chains, fg.Chain{Inputs: []fg.Label{label}, Filters: []fg.Filter{dt.Filter()}, Outputs: []fg.Label{next}})
		label = next
	}
	return step{next: label, chains: chains}
}

func (p *planner) audio(i int, b template.AudioBlock, pad fg.Label) step {
	if pad == "" {
		return step{}
	}
	filters := []fg.Filter{fg.ATrim(b.Duration), fg.ASetPTS()}
	if b.Start > 0 {
		filters = append(filters, fg.ADelay(b.Start))
	}
	if b.Volume != 1 {
		filters = append(filters, fg.Volume(b.Volume))
	}
	out := fg.Label(fmt.Sprintf("a%d", i))
	return step{
		chains: []fg.Chain{{Inputs: []fg.Label{pad}, Filters: filters, Outputs: []fg.Label{out}}},
		out:    []fg.Label{out},
	}
}

// box is the block's pixel size; unset dimensions take the canvas size.
func (p *planner) box(l template.Layout) (int, int) {
	w, h := p.canvas.Width, p.canvas.Height
	if l.Width > 0 {
		w = int(math.Round(l.Width))
	}
	if l.Height > 0 {
		h = int(math.Round(l.Height))
	}
	return w, h
}

func (p *planner) font(texts ...string) string {
	if p.opts.FontFileCJK != "" && subtitle.IsCJK(subtitle.DetectLanguage(texts...)) {
		return p.opts.FontFileCJK
	}
	return p.opts.FontFile
}

// engineColor converts #RRGGBB and #RRGGBBAA to the engine's notation.
// Other values (named colors, 0x forms) pass through.
func engineColor(c, fallback string) string {
	c = strings.TrimSpace(c)
	if c == "" || strings.EqualFold(c, "transparent") {
		return fallback
	}
	if !strings.HasPrefix(c, "#") {
		return c
	}
	hex := c[1:]
	switch len(hex) {
	case 3:
		return "0x" + string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	case 6:
		return "0x" + hex
	case 8:
		var alpha int
		if _, err := fmt.Sscanf(hex[6:], "%02x", &alpha); err != nil {
			return "0x" + hex[:6]
		}
		return fmt.Sprintf("0x%s@%s", hex[:6], fg.Num(math.Round(float64(alpha)/255*100)/100))
	default:
		return fallback
	}
}
