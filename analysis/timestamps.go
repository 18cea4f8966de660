package analysis

import (
	"regexp"
	"strings"
)

const (
	tsOpen  = "⟦"
	tsClose = "⟧"
)

var timestampPattern = regexp.MustCompile(strings.Join([]string{
	// 9:41, 12:05 PM, 7:30am
	`\b\d{1,2}:\d{2}(?:\s?[AaPp]\.?[Mm]\.?)?`,
	// numeric dates: 3/14/24, 2024-03-14, 14.03.2024
	`\b\d{1,4}[/.-]\d{1,2}[/.-]\d{2,4}\b`,
	// weekday names
	`(?i:\b(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b)`,
	`\b(?:Mon|Tue|Tues|Wed|Thu|Thur|Thurs|Fri|Sat|Sun)\b\.?,?\s+\d{1,2}`,
	// month names; ambiguous short forms need a day or year after them
	`(?i:\b(?:january|february|september|october|november|december)\b(?:\s+\d{1,2}(?:st|nd|rd|th)?)?(?:,?\s+\d{4})?)`,
	`\b(?:Jan|Feb|Mar|March|Apr|April|May|Jun|June|Jul|July|Aug|August|Sep|Sept|Oct|Nov|Dec)\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?\b`,
}, "|"))

// MarkTimestamps wraps date/time substrings in ⟦…⟧ so later whitespace normalization cannot destroy them.
// Already-marked spans are left alone.
func MarkTimestamps(text string) string {
	locs := timestampPattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + len(locs)*6)
	prev := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		if insideMarker(text, start) {
			continue
		}
		b.WriteString(text[prev:start])
		b.WriteString(tsOpen)
		b.WriteString(strings.TrimRight(text[start:end], " "))
		b.WriteString(tsClose)
		if trimmed := len(strings.TrimRight(text[start:end], " ")); start+trimmed < end {
			b.WriteString(text[start+trimmed : end])
		}
		prev = end
	}
	b.WriteString(text[prev:])
	return b.String()
}

func insideMarker(text string, pos int) bool {
	open := strings.LastIndex(text[:pos], tsOpen)
	if open == -1 {
		return false
	}
	close := strings.LastIndex(text[:pos], tsClose)
	return close < open
}

// stripMarkers removes the marker brackets but keeps their content.
func stripMarkers(s string) string {
	return strings.NewReplacer(tsOpen, "", tsClose, "").Replace(s)
}
