package analysis

import (
	"strings"
	"unicode/utf8"
)

// GuardrailConfig holds the thresholds every payload must clear before a model call.
type GuardrailConfig struct {
	MinChars      int     `yaml:"min_chars"`
	MinSpeakers   int     `yaml:"min_speakers"`
	MinConfidence float64 `yaml:"min_confidence"`
	MinColors     int     `yaml:"min_colors"`
}

func DefaultGuardrails() GuardrailConfig {
	return GuardrailConfig{
		MinChars:      300,
		MinSpeakers:   2,
		MinConfidence: 0.80,
		MinColors:     2,
	}
}

func (c GuardrailConfig) withDefaults() GuardrailConfig {
	d := DefaultGuardrails()
	if c.MinChars <= 0 {
		c.MinChars = d.MinChars
	}
	if c.MinSpeakers <= 0 {
		c.MinSpeakers = d.MinSpeakers
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = d.MinConfidence
	}
	if c.MinColors <= 0 {
		c.MinColors = d.MinColors
	}
	return c
}

type guardrail func(c GuardrailConfig, p ConversationPayload) *Error

var guardrails = []guardrail{
	checkIdentity,
	checkSource,
	checkLength,
	checkSpeakers,
	checkConfidence,
	checkColors,
	checkManualConfirmation,
}

// Validate returns the first guardrail failure for p, or nil.
func Validate(p ConversationPayload) error {
	return GuardrailConfig{}.Validate(p)
}

func (c GuardrailConfig) Validate(p ConversationPayload) error {
	if errs := c.Check(p); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Check runs every guardrail unconditionally and returns all failures in check order.
func (c GuardrailConfig) Check(p ConversationPayload) []*Error {
	c = c.withDefaults()
	var out []*Error
	for _, g := range guardrails {
		if err := g(c, p); err != nil {
			out = append(out, err)
		}
	}
	return out
}

func checkIdentity(_ GuardrailConfig, p ConversationPayload) *Error {
	if strings.TrimSpace(p.ID) == "" {
		return newError(KindInvalidPayload, "payload id is empty")
	}
	return nil
}

func checkSource(_ GuardrailConfig, p ConversationPayload) *Error {
	if !p.Source.Valid() {
		return newError(KindInvalidPayload, "source %q is not one of ocr, paste", p.Source)
	}
	return nil
}

func checkLength(c GuardrailConfig, p ConversationPayload) *Error {
	n := utf8.RuneCountInString(strings.TrimSpace(p.RawText))
	if n < c.MinChars {
		return newError(KindTooShort, "transcript has %d characters, need at least %d", n, c.MinChars)
	}
	return nil
}

func checkSpeakers(c GuardrailConfig, p ConversationPayload) *Error {
	keys := 0
	for k := range p.Speakers {
		if strings.TrimSpace(k) != "" {
			keys++
		}
	}
	names := len(p.Speakers.Names())
	if keys < c.MinSpeakers || names < c.MinSpeakers {
		return newError(KindInsufficientSpeakers, "found %d speaker keys and %d distinct names, need at least %d of each", keys, names, c.MinSpeakers)
	}
	return nil
}

func checkConfidence(c GuardrailConfig, p ConversationPayload) *Error {
	if p.Source != SourceOCR {
		return nil
	}
	if p.OCRMeta == nil {
		return newError(KindLowConfidence, "ocr payload has no confidence metadata, need at least %.2f", c.MinConfidence)
	}
	if p.OCRMeta.Confidence < c.MinConfidence {
		return newError(KindLowConfidence, "ocr confidence %.2f is below %.2f", p.OCRMeta.Confidence, c.MinConfidence)
	}
	return nil
}

func checkColors(c GuardrailConfig, p ConversationPayload) *Error {
	if p.Source != SourceOCR || p.OCRMeta == nil {
		return nil
	}
	seen := map[string]struct{}{}
	for _, col := range p.OCRMeta.DetectedColors {
		if col = strings.ToLower(strings.TrimSpace(col)); col != "" {
			seen[col] = struct{}{}
		}
	}
	if len(seen) < c.MinColors {
		return newError(KindInsufficientColors, "detected %d unique bubble colors, need at least %d", len(seen), c.MinColors)
	}
	return nil
}

func checkManualConfirmation(_ GuardrailConfig, p ConversationPayload) *Error {
	if p.RequiresManualConfirmation {
		return newError(KindNeedsManualEdit, "speaker names need manual confirmation before analysis")
	}
	return nil
}
