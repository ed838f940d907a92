package planner

import (
	"strings"
	"testing"

	fg "github.com/MimeLyc/timeline-renderer/internal/filtergraph"
	"github.com/MimeLyc/timeline-renderer/internal/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var portrait = template.Canvas{Width: 1080, Height: 1920, FPS: 30}

func image(id, src string, start, dur float64, track int) template.ImageBlock {
	return template.ImageBlock{Meta: template.Meta{ID: id, Start: start, Duration: dur, Track: track}, Source: src}
}

func TestPlan_SingleImage(t *testing.T) {
	tpl := template.Template{Canvas: portrait, Timeline: []template.Block{image("i1", "https://cdn.test/a.png", 0, 5, 0)}}

	prog, err := Plan(tpl, Sources{Paths: map[string]string{"https://cdn.test/a.png": "/tmp/a.png"}}, Options{})
	require.NoError(t, err)

	require.Len(t, prog.Inputs, 2)
	assert.True(t, prog.Inputs[0].Lavfi)
	assert.Equal(t, "/tmp/a.png", prog.Inputs[1].Path)
	assert.True(t, prog.Inputs[1].Loop)
	assert.Equal(t, 1, prog.Count("overlay"))
	assert.GreaterOrEqual(t, prog.Duration, 5.0)
	assert.Equal(t, fg.Label("vout"), prog.VideoOut)
	assert.Empty(t, prog.AudioOut)

	overlay := prog.Filters("overlay")[0]
	enable, _ := overlay.Get("enable")
	assert.Equal(t, "between(t,0,5)", enable)
}

func TestPlan_TrimAndShiftPrecedeScaling(t *testing.T) {
	tpl := template.Template{Canvas: portrait, Timeline: []template.Block{image("i1", "a", 2, 3, 0)}}

	prog, err := Plan(tpl, Sources{Paths: map[string]string{"a": "/tmp/a.png"}}, Options{})
	require.NoError(t, err)

	var names []string
	for _, f := range prog.Chains[0].Filters {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"trim", "setpts", "fps", "format", "scale", "pad"}, names)
	pts, _ := prog.Chains[0].Filters[1].Get("expr")
	assert.Equal(t, "PTS-STARTPTS+2/TB", pts)
}

func TestPlan_DeduplicatesInputsByResolvedPath(t *testing.T) {
	tpl := template.Template{Canvas: portrait, Timeline: []template.Block{
		image("a", "{{hero}}", 0, 2, 0),
		image("b", "https://cdn.test/hero.png", 2, 2, 0),
	}}
	paths := map[string]string{"{{hero}}": "/tmp/hero.png", "https://cdn.test/hero.png": "/tmp/hero.png"}

	prog, err := Plan(tpl, Sources{Paths: paths}, Options{})
	require.NoError(t, err)

	assert.Len(t, prog.Inputs, 2)
	assert.Equal(t, 2, prog.Count("overlay"))
	require.Equal(t, 1, prog.Count("split"))
	assert.Len(t, prog.Chains[0].Outputs, 2)
}

func TestPlan_SubtitleCuesOnTextBlock(t *testing.T) {
	vtt := "WEBVTT\n\n00:00.000 --> 00:02.000\nHello world foo bar"
	text := template.TextBlock{
		Meta:     template.Meta{ID: "t1", Start: 0, Duration: 2},
		Captions: template.Captions{Enabled: true, Source: "{{subs}}"},
	}
	tpl := template.Template{Canvas: portrait, Timeline: []template.Block{text}}

	prog, err := Plan(tpl, Sources{Texts: map[string]string{"{{subs}}": vtt}}, Options{})
	require.NoError(t, err)

	draws := prog.Filters("drawtext")
	require.Len(t, draws, 2)
	first, _ := draws[0].Get("text")
	second, _ := draws[1].Get("text")
	assert.Equal(t, "Hello world foo", first)
	assert.Equal(t, "bar", second)
	e0, _ := draws[0].Get("enable")
	e1, _ := draws[1].Get("enable")
	assert.Equal(t, "between(t,0,1)", e0)
	assert.Equal(t, "between(t,1,2)", e1)
}

func TestPlan_UnresolvedSourceIsOmitted(t *testing.T) {
	tpl := template.Template{Canvas: portrait, Timeline: []template.Block{
		template.VideoBlock{Meta: template.Meta{ID: "v", Duration: 4}, Source: "{{missing_key}}"},
		image("i", "b.png", 0, 4, 1),
	}}

	prog, err := Plan(tpl, Sources{Paths: map[string]string{"b.png": "/tmp/b.png"}}, Options{})
	require.NoError(t, err)

	assert.Len(t, prog.Inputs, 2)
	assert.Equal(t, "/tmp/b.png", prog.Inputs[1].Path)
	assert.Equal(t, 1, prog.Count("overlay"))
	assert.NotContains(t, prog.Serialize(), "missing_key")
}

func TestPlan_EmptyTimelinePassesThrough(t *testing.T) {
	prog, err := Plan(template.Template{Canvas: portrait}, Sources{}, Options{})
	require.NoError(t, err)

	assert.Len(t, prog.Inputs, 1)
	assert.Equal(t, 1, prog.Count("null"))
	assert.Equal(t, "[0:v]null[vout]", prog.Serialize())
	assert.Equal(t, 1.0, prog.Duration)
}

func TestPlan_InvalidCanvas(t *testing.T) {
	_, err := Plan(template.Template{Canvas: template.Canvas{Width: 100, Height: 100}}, Sources{}, Options{})
	assert.Error(t, err)
}

func TestPlan_StackingFollowsTrackOrder(t *testing.T) {
	tpl := template.Template{Canvas: portrait, Timeline: []template.Block{
		image("top", "top.png", 0, 3, 5),
		image("bottom", "bottom.png", 0, 3, 1),
		template.TextBlock{Meta: template.Meta{ID: "mid", Duration: 3, Track: 3}, Text: "title"},
	}}
	paths := map[string]string{"top.png": "/tmp/top.png", "bottom.png": "/tmp/bottom.png"}

	prog, err := Plan(tpl, Sources{Paths: paths}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "/tmp/bottom.png", prog.Inputs[1].Path)
	assert.Equal(t, "/tmp/top.png", prog.Inputs[2].Path)

	var order []string
	for _, c := range prog.Chains {
		for _, f := range c.Filters {
			if f.Name == "overlay" || f.Name == "drawtext" {
				order = append(order, f.Name)
			}
		}
	}
	assert.Equal(t, []string{"overlay", "drawtext", "overlay"}, order)
}

func TestPlan_IsDeterministic(t *testing.T) {
	tpl := template.Template{Canvas: portrait, Timeline: []template.Block{
		image("a", "a.png", 0, 3, 0),
		template.TextBlock{
			Meta:   template.Meta{ID: "t", Start: 1, Duration: 2, Track: 1},
			Layout: template.Layout{Animations: []template.Animation{{Type: template.AnimSlideIn, Duration: 1}}},
			Text:   "It's 10:30",
		},
	}}
	src := Sources{Paths: map[string]string{"a.png": "/tmp/a.png"}}

	first, err := Plan(tpl, src, Options{})
	require.NoError(t, err)
	second, err := Plan(tpl, src, Options{})
	require.NoError(t, err)

	assert.Equal(t, first.Serialize(), second.Serialize())
	assert.Contains(t, first.Serialize(), `text=It\\\'s 10\\:30`)
}

func TestPlan_MediaCaptionsInheritLinkedStyle(t *testing.T) {
	vtt := "WEBVTT\n\n00:00.000 --> 00:01.000\nhi\n\n00:01.000 --> 00:09.000\nlate cue"
	tpl := template.Template{Canvas: portrait, Timeline: []template.Block{
		template.VideoBlock{
			Meta:     template.Meta{ID: "v", Start: 10, Duration: 5},
			Source:   "clip",
			Captions: template.Captions{Enabled: true, Source: "subs", StyleID: "style"},
		},
		template.TextBlock{Meta: template.Meta{ID: "style"}, FontSize: 72, Color: "#00ff00", Background: "#00000080"},
	}}
	src := Sources{Paths: map[string]string{"clip": "/tmp/clip.mp4"}, Texts: map[string]string{"subs": vtt}}

	prog, err := Plan(tpl, src, Options{FontFile: "/fonts/a.ttf"})
	require.NoError(t, err)

	assert.False(t, prog.Inputs[1].Loop)
	draws := prog.Filters("drawtext")
	require.Len(t, draws, 2)
	size, _ := draws[0].Get("fontsize")
	color, _ := draws[0].Get("fontcolor")
	box, _ := draws[0].Get("boxcolor")
	font, _ := draws[0].Get("fontfile")
	assert.Equal(t, "72", size)
	assert.Equal(t, "0x00ff00", color)
	assert.Equal(t, "0x000000@0.5", box)
	assert.Equal(t, "/fonts/a.ttf", font)

	// cues are block-relative and clipped to the block window
	e0, _ := draws[0].Get("enable")
	e1, _ := draws[1].Get("enable")
	assert.Equal(t, "between(t,10,11)", e0)
	assert.Equal(t, "between(t,11,15)", e1)
}

func TestPlan_TextPlaceholdersAndAudioMix(t *testing.T) {
	tpl := template.Template{Canvas: portrait, Timeline: []template.Block{
		template.TextBlock{Meta: template.Meta{ID: "t", Duration: 3}, Text: "Hi {{name}}"},
		template.AudioBlock{Meta: template.Meta{ID: "m", Duration: 3}, Source: "music", Volume: 0.5},
		template.AudioBlock{Meta: template.Meta{ID: "vo", Start: 1, Duration: 2}, Source: "voice", Volume: 1},
	}}
	src := Sources{Paths: map[string]string{"music": "/tmp/m.mp3", "voice": "/tmp/v.mp3"}}
	opts := Options{Substitute: func(s string) string { return strings.ReplaceAll(s, "{{name}}", "Ada") }}

	prog, err := Plan(tpl, src, opts)
	require.NoError(t, err)

	text, _ := prog.Filters("drawtext")[0].Get("text")
	assert.Equal(t, "Hi Ada", text)
	assert.Equal(t, 1, prog.Count("amix"))
	assert.Equal(t, 1, prog.Count("adelay"))
	assert.Equal(t, 1, prog.Count("volume"))
	assert.Equal(t, fg.Label("aout"), prog.AudioOut)
	assert.Len(t, prog.Inputs, 3)
}

func TestPlan_RecentersTransformedBlocks(t *testing.T) {
	blk := image("a", "a.png", 0, 3, 0)
	blk.Layout = template.Layout{X: 10, Y: 20, Width: 400, Height: 300, Animations: []template.Animation{{Type: template.AnimScale, Duration: 1}}}
	tpl := template.Template{Canvas: portrait, Timeline: []template.Block{blk}}

	prog, err := Plan(tpl, Sources{Paths: map[string]string{"a.png": "/tmp/a.png"}}, Options{})
	require.NoError(t, err)

	x, _ := prog.Filters("overlay")[0].Get("x")
	assert.Equal(t, "(10+((400-overlay_w)/2))", x)
	w, _ := prog.Chains[0].Filters[4].Get("w")
	assert.Equal(t, "400", w)
}

func TestEngineColor(t *testing.T) {
	assert.Equal(t, "0xff0000", engineColor("#ff0000", "white"))
	assert.Equal(t, "0xffffff", engineColor("#fff", "white"))
	assert.Equal(t, "0x000000@0.5", engineColor("#00000080", ""))
	assert.Equal(t, "red", engineColor("red", "white"))
	assert.Equal(t, "white", engineColor("", "white"))
	assert.Equal(t, "", engineColor("transparent", ""))
}
