package subtitle

// Cue is one timed caption. Start and End are in seconds.
type Cue struct {
	Start float64
	End   float64
	Text  string
}

func (c Cue) Duration() float64 {
	return c.End - c.Start
}

// Shift returns the cue moved by offset seconds.
func (c Cue) Shift(offset float64) Cue {
	return Cue{Start: c.Start + offset, End: c.End + offset, Text: c.Text}
}

// DefaultMaxWords is the word threshold above which a cue is split into bursts.
const DefaultMaxWords = 3
