package analysis

import (
	"regexp"
	"sort"
	"strings"
)

const (
	slotUser  = "user"
	slotOther = "other"
)

// SpeakerMap maps a detection key (a colour, a detected label, or the user/other slot) to a display name.
type SpeakerMap map[string]string

// SpeakerHints carries what the caller knows about the participants.
type SpeakerHints struct {
	UserName  string `json:"user_name,omitempty"`
	OtherName string `json:"other_name,omitempty"`

	// ColorMapping is the user- or UI-supplied "blue = Alex, gray = Jordan" string.
	ColorMapping string `json:"color_mapping,omitempty"`

	// Override is a persisted speaker map from a prior correction. It wins over ColorMapping.
	Override SpeakerMap `json:"override,omitempty"`
}

var knownColors = map[string]struct{}{
	"blue": {}, "gray": {}, "grey": {}, "green": {}, "white": {}, "black": {}, "purple": {},
	"pink": {}, "red": {}, "orange": {}, "yellow": {}, "teal": {}, "brown": {}, "violet": {},
	"cyan": {}, "magenta": {}, "navy": {}, "silver": {}, "beige": {}, "lightblue": {}, "darkblue": {},
	"lightgray": {}, "darkgray": {}, "lightgrey": {}, "darkgrey": {},
}

// IsColor reports whether key names a chat-bubble colour.
func IsColor(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	k = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(k)
	_, ok := knownColors[k]
	return ok
}

var mappingSplit = regexp.MustCompile(`[,;\n]+`)

// ParseColorMapping parses "blue = Alex, gray: Jordan" into a SpeakerMap. Keys are lower-cased.
// Malformed entries are skipped.
func ParseColorMapping(s string) SpeakerMap {
	out := SpeakerMap{}
	for _, part := range mappingSplit.Split(s, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i := strings.IndexAny(part, "=:")
		if i <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(part[:i]))
		name := strings.TrimSpace(part[i+1:])
		if key == "" || name == "" {
			continue
		}
		out[key] = name
	}
	return out
}

// Clone returns an independent copy.
func (m SpeakerMap) Clone() SpeakerMap {
	out := make(SpeakerMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// HasName reports whether name is already a display value (case-insensitive).
func (m SpeakerMap) HasName(name string) bool {
	for _, v := range m {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

// Names returns the distinct display names: the user slot first, then the other slot, then the remaining keys sorted.
func (m SpeakerMap) Names() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if k != slotUser && k != slotOther {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	ordered := make([]string, 0, len(m))
	if _, ok := m[slotUser]; ok {
		ordered = append(ordered, slotUser)
	}
	if _, ok := m[slotOther]; ok {
		ordered = append(ordered, slotOther)
	}
	ordered = append(ordered, keys...)

	seen := make(map[string]struct{}, len(m))
	names := make([]string, 0, len(m))
	for _, k := range ordered {
		v := strings.TrimSpace(m[k])
		if v == "" {
			continue
		}
		lk := strings.ToLower(v)
		if _, ok := seen[lk]; ok {
			continue
		}
		seen[lk] = struct{}{}
		names = append(names, v)
	}
	return names
}

// Resolve matches label case-insensitively against keys and values and returns the display name.
func (m SpeakerMap) Resolve(label string) (string, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", false
	}
	if v, ok := m[strings.ToLower(label)]; ok && strings.TrimSpace(v) != "" {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, label) || strings.EqualFold(strings.TrimSpace(v), label) {
			return v, true
		}
	}
	return "", false
}

// colorKeys returns the colour keys of m, longest first so "lightblue" wins over "blue".
func (m SpeakerMap) colorKeys() []string {
	var keys []string
	for k := range m {
		if IsColor(k) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// BuildSpeakerMap starts from the override (or the parsed colour mapping) and reconciles the hint names.
// A hint that is not already a display value goes under the neutral user/other slot, never over a colour slot.
// Square brackets are dropped from display names so a name cannot close the "[SPEAKER: ...]" prefix.
func BuildSpeakerMap(h SpeakerHints) SpeakerMap {
	var m SpeakerMap
	if len(h.Override) > 0 {
		m = SpeakerMap{}
		for k, v := range h.Override {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				m[k] = v
			}
		}
	} else {
		m = ParseColorMapping(h.ColorMapping)
	}
	for k, v := range m {
		if name := displayName(v); name != "" {
			m[k] = name
		} else {
			delete(m, k)
		}
	}
	reconcileHint(m, slotUser, displayName(h.UserName))
	reconcileHint(m, slotOther, displayName(h.OtherName))
	return m
}

var bracketStripper = strings.NewReplacer("[", "", "]", "")

func displayName(s string) string {
	return strings.TrimSpace(bracketStripper.Replace(s))
}

func reconcileHint(m SpeakerMap, slot, name string) {
	name = strings.TrimSpace(name)
	if name == "" || m.HasName(name) {
		return
	}
	if _, taken := m[slot]; taken {
		return
	}
	m[slot] = name
}

// DistinctColors returns the unique colour keys in m plus colour tokens found in text, sorted.
func DistinctColors(m SpeakerMap, text string) []string {
	seen := map[string]struct{}{}
	for k := range m {
		if IsColor(k) {
			seen[strings.ToLower(k)] = struct{}{}
		}
	}
	for _, tok := range colorToken.FindAllStringSubmatch(text, -1) {
		if IsColor(tok[1]) {
			seen[strings.ToLower(tok[1])] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// colorToken matches bracketed bubble annotations such as "[blue]" or "(gray)" emitted by the OCR collaborator.
var colorToken = regexp.MustCompile(`[\[(]\s*([A-Za-z][A-Za-z -]{1,15}?)\s*[\])]`)
