// Package filtergraph is a typed model of an ffmpeg filter_complex program.
// Serialize is the only place where quoting and escaping happen.
package filtergraph

import (
	"fmt"
	"strconv"
)

// Label names a stream pad, e.g. "0:v" or "b3".
type Label string

// Input is one engine input.
type Input struct {
	Path  string
	Loop  bool // still images: repeat the single frame indefinitely
	Lavfi bool // Path is a lavfi source description
}

// Args renders the input-side command-line flags.
func (in Input) Args() []string {
	var args []string
	if in.Lavfi {
		args = append(args, "-f", "lavfi")
	}
	if in.Loop {
		args = append(args, "-loop", "1")
	}
	return append(args, "-i", in.Path)
}

// Option is a single key=value filter option. Value is unescaped.
type Option struct {
	Key   string
	Value string
}

type Filter struct {
	Name    string
	Options []Option
}

// NewFilter builds a filter from alternating key/value pairs.
func NewFilter(name string, kv ...string) Filter {
	f := Filter{Name: name}
	for i := 0; i+1 < len(kv); i += 2 {
		f.Options = append(f.Options, Option{Key: kv[i], Value: kv[i+1]})
	}
	return f
}

// With returns a copy of f with an extra option.
func (f Filter) With(key, value string) Filter {
	opts := make([]Option, len(f.Options), len(f.Options)+1)
	copy(opts, f.Options)
	f.Options = append(opts, Option{Key: key, Value: value})
	return f
}

// Get returns the first value for key.
func (f Filter) Get(key string) (string, bool) {
	for _, o := range f.Options {
		if o.Key == key {
			return o.Value, true
		}
	}
	return "", false
}

// Chain is a linear run of filters from input pads to output pads.
type Chain struct {
	Inputs  []Label
	Filters []Filter
	Outputs []Label
}

// Program is the full filter graph plus the inputs it reads.
type Program struct {
	Inputs   []Input
	Chains   []Chain
	VideoOut Label
	AudioOut Label // empty when the output has no audio
	Duration float64
	FPS      float64
}

// AddInput registers in and returns its index.
func (p *Program) AddInput(in Input) int {
	p.Inputs = append(p.Inputs, in)
	return len(p.Inputs) - 1
}

func (p *Program) AddChain(c Chain) {
	p.Chains = append(p.Chains, c)
}

// Filters returns every filter with the given name in program order.
func (p *Program) Filters(name string) []Filter {
	var out []Filter
	for _, c := range p.Chains {
		for _, f := range c.Filters {
			if f.Name == name {
				out = append(out, f)
			}
		}
	}
	return out
}

// Count is len(Filters(name)).
func (p *Program) Count(name string) int {
	return len(p.Filters(name))
}

// InputArgs renders the -i flags for all inputs in registration order.
func (p *Program) InputArgs() []string {
	var args []string
	for _, in := range p.Inputs {
		args = append(args, in.Args()...)
	}
	return args
}

// VideoPad is the label of input idx's video stream.
func VideoPad(idx int) Label {
	return Label(fmt.Sprintf("%d:v", idx))
}

// AudioPad is the label of input idx's audio stream.
func AudioPad(idx int) Label {
	return Label(fmt.Sprintf("%d:a", idx))
}

// Num formats a number for option values.
func Num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
