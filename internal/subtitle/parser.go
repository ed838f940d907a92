package subtitle

import (
	"encoding/json"
	"regexp"
	"strings"
)

const cueArrow = "-->"

var markupPattern = regexp.MustCompile(`<[^>]*>`)

// ParseCues reads WebVTT-style cue content. SRT input is accepted as well
// since only lines carrying the arrow separator start a cue.
func ParseCues(content string) []Cue {
	lines := strings.Split(normalizeNewlines(content), "\n")

	i := skipHeader(lines)
	var cues []Cue
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		i++
		if !strings.Contains(line, cueArrow) {
			continue
		}

		start, end := parseTiming(line)

		var body []string
		for i < len(lines) {
			text := strings.TrimSpace(lines[i])
			if text == "" {
				break
			}
			body = append(body, stripMarkup(text))
			i++
		}

		text := strings.Join(strings.Fields(strings.Join(body, " ")), " ")
		if text == "" || end <= start {
			continue
		}
		cues = append(cues, Cue{Start: start, End: end, Text: text})
	}
	return cues
}

// normalizeNewlines folds CRLF/CR into LF and undoes JSON string escaping
// when the content carries literal \n sequences but no real line breaks.
func normalizeNewlines(content string) string {
	content = strings.TrimPrefix(content, "\ufeff")
	if !strings.ContainsAny(content, "\r\n") && strings.Contains(content, `\n`) {
		content = strings.TrimPrefix(unescapeJSON(content), "\ufeff")
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	return strings.ReplaceAll(content, "\r", "\n")
}

func unescapeJSON(content string) string {
	var decoded string
	if err := json.Unmarshal([]byte(`"`+content+`"`), &decoded); err == nil {
		return decoded
	}
	return strings.NewReplacer(`\r\n`, "\n", `\n`, "\n", `\r`, "\n", `\t`, "\t", `\"`, `"`, `\\`, `\`,
		`\u003e`, ">", `\u003c`, "<", `\u0026`, "&",
	).Replace(content)
}

func skipHeader(lines []string) int {
	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i >= len(lines) || !strings.HasPrefix(strings.TrimSpace(lines[i]), "WEBVTT") {
		return i
	}
	for i < len(lines) && strings.TrimSpace(lines[i]) != "" {
		i++
	}
	return i
}

// parseTiming reads "start --> end [settings]".
func parseTiming(line string) (float64, float64) {
	left, right, _ := strings.Cut(line, cueArrow)
	fields := strings.Fields(right)
	endText := ""
	if len(fields) > 0 {
		endText = fields[0]
	}
	return ParseTimestamp(left), ParseTimestamp(endText)
}

func stripMarkup(text string) string {
	return strings.TrimSpace(markupPattern.ReplaceAllString(text, ""))
}
