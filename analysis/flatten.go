package analysis

import (
	"regexp"
	"strings"
)

const speakerPrefix = "[SPEAKER: "

// Attribution records how a flattened line got its speaker.
type Attribution string

const (
	AttributedCanonical   Attribution = "canonical"
	AttributedLabel       Attribution = "label"
	AttributedColor       Attribution = "color"
	AttributedAlternation Attribution = "alternation"
)

// Line is one speaker-attributed utterance.
type Line struct {
	Speaker string
	Text    string
	By      Attribution
}

// Transcript is the flattened, grounding-source form of a payload.
type Transcript struct {
	Text  string
	Lines []Line

	// InferredLines counts lines attributed by alternation, the last-resort heuristic.
	InferredLines int
}

var canonicalLine = regexp.MustCompile(`^\[SPEAKER: ([^\]]+)\] ?(.*)$`)

// Flatten converts p into "[SPEAKER: Name] message" lines. It is deterministic and idempotent:
// flattening Transcript.Text again (as a paste) yields the same text.
func Flatten(p ConversationPayload) Transcript {
	names := p.Speakers.Names()
	var colors []colorMatcher
	if p.Source == SourceOCR {
		for _, key := range p.Speakers.colorKeys() {
			colors = append(colors, colorMatcher{key: key, re: colorKeyPattern(key)})
		}
	}

	var t Transcript
	prev := ""
	for _, raw := range strings.Split(strings.ReplaceAll(p.RawText, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		var l Line
		switch {
		case canonicalLine.MatchString(line):
			m := canonicalLine.FindStringSubmatch(line)
			l = Line{Speaker: m[1], Text: m[2], By: AttributedCanonical}
		default:
			if sp, msg, ok := matchLabel(line, p.Speakers); ok {
				l = Line{Speaker: sp, Text: msg, By: AttributedLabel}
			} else if sp, msg, ok := matchColor(line, colors, p.Speakers); ok {
				l = Line{Speaker: sp, Text: msg, By: AttributedColor}
			} else {
				l = Line{Speaker: alternate(prev, names), Text: line, By: AttributedAlternation}
				t.InferredLines++
			}
		}
		prev = l.Speaker
		t.Lines = append(t.Lines, l)
	}

	var b strings.Builder
	for i, l := range t.Lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(speakerPrefix)
		b.WriteString(l.Speaker)
		b.WriteString("] ")
		b.WriteString(l.Text)
	}
	t.Text = strings.TrimRight(b.String(), " ")
	return t
}

// matchLabel handles "<label>: <message>", keeping any leading timestamp markers with the message.
func matchLabel(line string, speakers SpeakerMap) (string, string, bool) {
	m := labelLine.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	label := strings.TrimSpace(m[2])
	msg := strings.TrimSpace(m[3])
	if msg == "" {
		return "", "", false
	}
	if markers := strings.TrimSpace(m[1]); markers != "" {
		msg = markers + " " + msg
	}
	if name, ok := speakers.Resolve(label); ok {
		return name, msg, true
	}
	return label, msg, true
}

// matchColor handles OCR lines with an embedded colour token such as "[blue] see you at 8".
func matchColor(line string, colors []colorMatcher, speakers SpeakerMap) (string, string, bool) {
	for _, c := range colors {
		loc := c.re.FindStringIndex(line)
		if loc == nil {
			continue
		}
		before := strings.TrimRight(line[:loc[0]], " ")
		after := strings.TrimLeft(line[loc[1]:], " ")
		msg := before + after
		if before != "" && after != "" {
			msg = before + " " + after
		}
		if msg == "" {
			continue
		}
		return speakers[c.key], msg, true
	}
	return "", "", false
}

type colorMatcher struct {
	key string
	re  *regexp.Regexp
}

func colorKeyPattern(key string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)[\[(]?\b` + regexp.QuoteMeta(key) + `\b[\])]?:?`)
}

// alternate picks the known speaker after prev, cycling; with no usable prev it picks the first.
func alternate(prev string, names []string) string {
	if len(names) == 0 {
		if prev != "" {
			return prev
		}
		return "Unknown"
	}
	for i, n := range names {
		if strings.EqualFold(n, prev) {
			return names[(i+1)%len(names)]
		}
	}
	return names[0]
}
