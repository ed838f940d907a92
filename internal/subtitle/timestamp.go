package subtitle

import (
	"regexp"
	"strconv"
	"strings"
)

var timestampPattern = regexp.MustCompile(`^(?:(\d+):)?(\d{1,2}):(\d{1,2})[.,](\d{1,3})$`)

// ParseTimestamp converts HH:MM:SS.mmm or MM:SS.mmm into seconds.
// Any other shape yields 0. A comma is accepted as the fraction separator.
func ParseTimestamp(text string) float64 {
	m := timestampPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return 0
	}

	var hours int
	if m[1] != "" {
		hours, _ = strconv.Atoi(m[1])
	}
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	fraction, _ := strconv.ParseFloat("0."+m[4], 64)

	return float64(hours*3600+minutes*60+seconds) + fraction
}
