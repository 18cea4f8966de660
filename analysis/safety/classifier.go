// Package safety screens chat follow-up turns before any model call.
//
// Evaluation order is fixed: explicit allow phrases first (they short-circuit everything),
// then hard blocks, then generation. Soft redirects are checked again on the generated text.
package safety

import (
	"regexp"
	"strconv"
	"strings"
)

// Action is what the caller must do with the turn.
type Action string

const (
	ActionAllow    Action = "allow"
	ActionBlock    Action = "block"
	ActionRedirect Action = "redirect"
)

// Category names the pattern family that fired.
type Category string

const (
	CategoryNone        Category = ""
	CategoryAllowed     Category = "explicit_allow"
	CategorySelfHarm    Category = "self_harm"
	CategoryMinorAgeGap Category = "minor_age_gap"
	CategoryAbuse       Category = "abuse_disclosure"
	CategoryIdeation    Category = "ideation"
	CategoryControlling Category = "controlling_behavior"
)

// Decision is the classifier's verdict for one turn.
type Decision struct {
	Action   Action   `json:"action"`
	Category Category `json:"category,omitempty"`

	// Response is the fixed reply to show instead of generating, set only for ActionBlock.
	Response string `json:"response,omitempty"`
}

// Turn is one prior exchange in the chat.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const DefaultHistoryTurns = 4

// Classifier is stateless; the zero value uses DefaultHistoryTurns.
type Classifier struct {
	HistoryTurns int
}

// Classify screens question together with the last N prior turns.
func (c Classifier) Classify(question string, history []Turn) Decision {
	text := c.window(question, history)

	if matchesAny(allowPatterns, text) {
		return Decision{Action: ActionAllow, Category: CategoryAllowed}
	}
	if matchesAny(selfHarmPatterns, text) {
		return Decision{Action: ActionBlock, Category: CategorySelfHarm, Response: SelfHarmResponse}
	}
	if MinorAgeGap(text) {
		return Decision{Action: ActionBlock, Category: CategoryMinorAgeGap, Response: MinorSafetyResponse}
	}
	if matchesAny(abusePatterns, text) {
		return Decision{Action: ActionBlock, Category: CategoryAbuse, Response: AbuseResponse}
	}
	return Decision{Action: ActionAllow}
}

// Redirect reports whether text carries a lower-severity signal that needs the safety preamble.
// It honours the allow list the same way Classify does.
func (c Classifier) Redirect(question string, history []Turn, generated string) Decision {
	text := c.window(question, history) + "\n" + strings.ToLower(generated)
	if matchesAny(allowPatterns, text) {
		return Decision{Action: ActionAllow, Category: CategoryAllowed}
	}
	if matchesAny(ideationPatterns, text) {
		return Decision{Action: ActionRedirect, Category: CategoryIdeation}
	}
	if matchesAny(controllingPatterns, text) {
		return Decision{Action: ActionRedirect, Category: CategoryControlling}
	}
	return Decision{Action: ActionAllow}
}

// ApplyRedirect prefixes reply with the fixed preamble when d is a redirect.
func ApplyRedirect(d Decision, reply string) string {
	if d.Action != ActionRedirect {
		return reply
	}
	return RedirectPreamble + "\n\n" + reply
}

func (c Classifier) window(question string, history []Turn) string {
	n := c.HistoryTurns
	if n <= 0 {
		n = DefaultHistoryTurns
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}
	parts := make([]string, 0, len(history)+1)
	for _, t := range history {
		parts = append(parts, t.Content)
	}
	parts = append(parts, question)
	return strings.ToLower(strings.Join(parts, "\n"))
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

var (
	agePhrase = regexp.MustCompile(`\b(?:i'?m|i am|he'?s|he is|she'?s|she is|they'?re|they are|we'?re|turned|turning|aged?)\s+(\d{1,2})\b`)
	ageSuffix = regexp.MustCompile(`\b(\d{1,2})\s*(?:yo|y/o|y\.o\.|yrs? old|years? old)\b`)
	ageParen  = regexp.MustCompile(`\((\d{1,2})\s*[mfMF]?\)`)
)

// MinorAgeGap reports a disclosed gap of at least three years where the younger party is under 18.
func MinorAgeGap(text string) bool {
	ages := parseAges(strings.ToLower(text))
	if len(ages) < 2 {
		return false
	}
	lo, hi := ages[0], ages[0]
	for _, a := range ages[1:] {
		if a < lo {
			lo = a
		}
		if a > hi {
			hi = a
		}
	}
	return lo < 18 && hi-lo >= 3
}

func parseAges(text string) []int {
	var ages []int
	for _, re := range []*regexp.Regexp{agePhrase, ageSuffix, ageParen} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil || n < 10 || n > 99 {
				continue
			}
			ages = append(ages, n)
		}
	}
	return ages
}
