package analysis

import (
	"fmt"
	"strings"
)

// MinReceipts is the evidentiary floor: fewer well-formed quotes than this fails before grounding.
const MinReceipts = 2

var quoteStripper = strings.NewReplacer(
	`"`, "", "'", "", "`", "",
	"“", "", "”", "", "„", "", "‟", "",
	"‘", "", "’", "", "‚", "", "‛", "",
	"«", "", "»", "", "‹", "", "›", "",
	tsOpen, "", tsClose, "",
)

// NormalizeEvidence lower-cases s, strips quotation-mark variants and collapses whitespace.
func NormalizeEvidence(s string) string {
	s = quoteStripper.Replace(strings.ToLower(s))
	return strings.Join(strings.Fields(s), " ")
}

// GroundReceipts keeps only receipts whose normalized quote occurs in the normalized transcript.
// receipts is the raw decoded "receipts" array from the model.
func GroundReceipts(receipts []any, transcript string) ([]Receipt, error) {
	candidates := make([]Receipt, 0, len(receipts))
	for _, r := range receipts {
		obj, ok := r.(map[string]any)
		if !ok {
			continue
		}
		q, ok := obj["quote"].(string)
		if !ok || strings.TrimSpace(q) == "" {
			continue
		}
		candidates = append(candidates, Receipt{
			Quote:   strings.TrimSpace(q),
			Pattern: stringField(obj["pattern"]),
			Cost:    stringField(obj["cost"]),
		})
	}
	if len(candidates) < MinReceipts {
		return nil, newError(KindInsufficientEvidence, "model returned %d well-formed quotes, need at least %d", len(candidates), MinReceipts)
	}

	haystack := NormalizeEvidence(transcript)
	kept := make([]Receipt, 0, len(candidates))
	for _, c := range candidates {
		needle := NormalizeEvidence(c.Quote)
		if needle != "" && strings.Contains(haystack, needle) {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return nil, newError(KindNoGroundedEvidence, "none of %d quotes appear in the transcript", len(candidates))
	}
	return kept, nil
}

func stringField(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
