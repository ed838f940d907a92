package subtitle

import "strings"

// Chunk splits every cue with more than maxWords words into
// ceil(words/maxWords) equal-duration slices covering the original range.
func Chunk(cues []Cue, maxWords int) []Cue {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}

	out := make([]Cue, 0, len(cues))
	for _, cue := range cues {
		words := strings.Fields(cue.Text)
		if len(words) <= maxWords {
			out = append(out, cue)
			continue
		}

		n := (len(words) + maxWords - 1) / maxWords
		step := cue.Duration() / float64(n)
		for i := 0; i < n; i++ {
			lo := i * maxWords
			hi := min(lo+maxWords, len(words))

			end := cue.Start + step*float64(i+1)
			if i == n-1 {
				end = cue.End
			}
			out = append(out, Cue{
				Start: cue.Start + step*float64(i),
				End:   end,
				Text:  strings.Join(words[lo:hi], " "),
			})
		}
	}
	return out
}
