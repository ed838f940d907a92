package subtitle

import (
	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// DetectLanguage returns the most frequent language across texts.
func DetectLanguage(texts ...string) language.Tag {
	counts := make(map[string]int)
	for _, text := range texts {
		if text == "" {
			continue
		}
		code := whatlanggo.DetectLang(text).Iso6391()
		if code == "" {
			continue
		}
		counts[code]++
	}

	var top string
	var topCount int
	for code, count := range counts {
		if count > topCount || (count == topCount && code < top) {
			top = code
			topCount = count
		}
	}
	if top == "" {
		return language.Und
	}
	return language.All.Make(top)
}

// IsCJK reports whether tag needs a CJK-capable font.
func IsCJK(tag language.Tag) bool {
	base, _ := tag.Base()
	switch base.String() {
	case "zh", "ja", "ko":
		return true
	}
	return false
}

// CueTexts collects cue texts for language detection.
func CueTexts(cues []Cue) []string {
	texts := make([]string, 0, len(cues))
	for _, c := range cues {
		texts = append(texts, c.Text)
	}
	return texts
}
