package filtergraph

import (
	"testing"

	"github.com/MimeLyc/timeline-renderer/internal/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeOption(t *testing.T) {
	assert.Equal(t, `It\'s 5\:00`, EscapeOption("It's 5:00"))
	assert.Equal(t, `a\\b`, EscapeOption(`a\b`))
}

func TestQuoteValue(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "rgba", want: "rgba"},
		{name: "expression", in: "if(between(t,0,1),1,0)", want: "'if(between(t,0,1),1,0)'"},
		{name: "colon", in: "5:00, go", want: `'5\:00, go'`},
		{name: "quote", in: "It's 5:00, ok", want: `It\\\'s 5\\:00\, ok`},
		{name: "brackets", in: "[x]", want: "'[x]'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QuoteValue(tt.in))
		})
	}
}

func TestShiftTo_NegativeStartClamped(t *testing.T) {
	got, ok := ShiftTo(-1).Get("expr")
	require.True(t, ok)
	assert.Equal(t, "PTS-STARTPTS+0/TB", got)
}

func TestSerialize(t *testing.T) {
	p := &Program{}
	require.Equal(t, 0, p.AddInput(Input{Path: ColorSource("black", 10, 20, 30, 5), Lavfi: true}))
	require.Equal(t, 1, p.AddInput(Input{Path: "/tmp/a.png", Loop: true}))

	p.AddChain(Chain{
		Inputs:  []Label{VideoPad(1)},
		Filters: []Filter{Trim(5), ShiftTo(1.5), Format("rgba")},
		Outputs: []Label{"b0"},
	})
	p.AddChain(Chain{
		Inputs:  []Label{VideoPad(0), "b0"},
		Filters: []Filter{Overlay(expr.Const(4), expr.Const(8), expr.Window{Start: 1.5, End: 6.5})},
		Outputs: []Label{"v0"},
	})

	want := "[1:v]trim=start=0:duration=5,setpts=expr=PTS-STARTPTS+1.5/TB,format=pix_fmts=rgba[b0];" +
		"[0:v][b0]overlay=x=4:y=8:eval=frame:enable='between(t,1.5,6.5)'[v0]"
	assert.Equal(t, want, p.Serialize())
	assert.Equal(t, 1, p.Count("overlay"))

	assert.Equal(t, []string{
		"-f", "lavfi", "-i", "color=c=black:s=10x20:r=30:d=5",
		"-loop", "1", "-i", "/tmp/a.png",
	}, p.InputArgs())
}

func TestDrawTextFilter(t *testing.T) {
	f := DrawText{
		Text:     "Hi: 'you'",
		FontSize: 48,
		Color:    "white",
		BoxColor: "0x000000@0.5",
		X:        expr.Const(10),
		Y:        expr.Const(20),
		Alpha:    expr.Const(1),
		Window:   expr.Window{Start: 0, End: 2},
	}.Filter()

	text, ok := f.Get("text")
	require.True(t, ok)
	assert.Equal(t, "Hi: 'you'", text)
	_, hasAlpha := f.Get("alpha")
	assert.False(t, hasAlpha)

	out := (&Program{Chains: []Chain{{Inputs: []Label{"v"}, Filters: []Filter{f}, Outputs: []Label{"o"}}}}).Serialize()
	assert.Contains(t, out, `text=Hi\\: \\\'you\\\'`)
	assert.Contains(t, out, `boxcolor=0x000000@0.5`)
}
