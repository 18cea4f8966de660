package analysis

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// PronounSet is the full set of forms a third-person pronoun needs.
type PronounSet struct {
	Subject    string `json:"subject"`
	Object     string `json:"object"`
	Possessive string `json:"possessive"`
	Absolute   string `json:"absolute"`
	Reflexive  string `json:"reflexive"`
}

var knownPronouns = map[string]PronounSet{
	"they": {Subject: "they", Object: "them", Possessive: "their", Absolute: "theirs", Reflexive: "themselves"},
	"she":  {Subject: "she", Object: "her", Possessive: "her", Absolute: "hers", Reflexive: "herself"},
	"he":   {Subject: "he", Object: "him", Possessive: "his", Absolute: "his", Reflexive: "himself"},
}

// ParsePronoun turns "she/her", "they", or "xe/xem/xyr" into a PronounSet. Empty input means they/them.
func ParsePronoun(s string) PronounSet {
	parts := strings.FieldsFunc(strings.ToLower(strings.TrimSpace(s)), func(r rune) bool {
		return r == '/' || r == ',' || r == ' '
	})
	if len(parts) == 0 {
		return knownPronouns["they"]
	}
	base := parts[0]
	if set, ok := knownPronouns[base]; ok {
		return set
	}
	if len(parts) >= 3 {
		return PronounSet{Subject: base, Object: parts[1], Possessive: parts[2], Absolute: parts[2], Reflexive: parts[1] + "self"}
	}
	return PronounSet{Subject: base, Object: base, Possessive: base + "'s", Absolute: base + "'s", Reflexive: base + "self"}
}

var gendered = regexp.MustCompile(`(?i)\b(he|him|his|himself|she|her|hers|herself)\b`)

// RewriteText replaces every masculine/feminine third-person pronoun in s with the matching form of set.
// "her" followed by a lowercase word is read as possessive unless the target is she; that is a heuristic.
func RewriteText(s string, set PronounSet) string {
	locs := gendered.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	prev := 0
	for _, loc := range locs {
		word := strings.ToLower(s[loc[0]:loc[1]])
		b.WriteString(s[prev:loc[0]])
		b.WriteString(replacementFor(word, s[loc[1]:], set))
		prev = loc[1]
	}
	b.WriteString(s[prev:])
	return b.String()
}

func replacementFor(word, rest string, set PronounSet) string {
	switch word {
	case "he", "she":
		return set.Subject
	case "him":
		return set.Object
	case "his":
		return set.Possessive
	case "hers":
		return set.Absolute
	case "himself", "herself":
		return set.Reflexive
	case "her":
		if set.Subject != "she" && followedByLowerWord(rest) {
			return set.Possessive
		}
		return set.Object
	}
	return word
}

func followedByLowerWord(rest string) bool {
	if len(rest) < 2 || rest[0] != ' ' {
		return false
	}
	c := rest[1]
	return c >= 'a' && c <= 'z'
}

// RewritePronouns decodes serialized model output, rewrites every string value and re-encodes it.
// Object keys are left alone. Output that does not round-trip is a RewriteCorruption.
func RewritePronouns(raw []byte, set PronounSet) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, wrapError(KindRewriteCorruption, err, "decode output for pronoun rewrite")
	}
	out, err := json.Marshal(rewriteValue(v, set))
	if err != nil {
		return nil, wrapError(KindRewriteCorruption, err, "encode rewritten output")
	}
	var check any
	if err := json.Unmarshal(out, &check); err != nil {
		return nil, wrapError(KindRewriteCorruption, err, "pronoun rewrite produced invalid JSON")
	}
	return out, nil
}

func rewriteValue(v any, set PronounSet) any {
	switch t := v.(type) {
	case string:
		return RewriteText(t, set)
	case []any:
		for i := range t {
			t[i] = rewriteValue(t[i], set)
		}
		return t
	case map[string]any:
		for k, item := range t {
			t[k] = rewriteValue(item, set)
		}
		return t
	}
	return v
}
