package fileutils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoJSONObject is returned when the output contains no balanced {...} object to fall back to.
var ErrNoJSONObject = errors.New("no JSON object found in model output")

// DecodeModelJSON unmarshals JSON from a model response. It strips an optional ``` fence, tries the
// whole body, then falls back to the first balanced top-level object. There is no third attempt.
func DecodeModelJSON(outputText string, v any) error {
	s := StripCodeFence(strings.TrimSpace(outputText))
	if s == "" {
		return io.ErrUnexpectedEOF
	}

	// Fast path: valid JSON as-is.
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	sub, ok := FirstBalancedObject(s)
	if !ok {
		return fmt.Errorf("%w (len=%d)", ErrNoJSONObject, len(s))
	}
	if err := json.Unmarshal([]byte(sub), v); err != nil {
		return fmt.Errorf("failed to unmarshal extracted JSON (len=%d): %w", len(sub), err)
	}
	return nil
}

// StripCodeFence removes a surrounding ```json ... ``` wrapper if present.
func StripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl != -1 {
		// Drop the info string ("json", "JSON", ...).
		if !strings.ContainsAny(s[:nl], "{[") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// FirstBalancedObject returns the first {...} substring whose braces balance, ignoring braces inside strings.
func FirstBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	for start != -1 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(s); i++ {
			c := s[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next == -1 {
			break
		}
		start += next + 1
	}
	return "", false
}
