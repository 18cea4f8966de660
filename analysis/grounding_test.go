package analysis

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

const groundingTranscript = "[SPEAKER: Sam] omg I “totally” forgot, my phone   died ⟦7:30 PM⟧\n[SPEAKER: Alex] ok. you're always busy"

func TestGroundReceipts_DropsFabricated(t *testing.T) {
	t.Parallel()

	raw := []any{
		map[string]any{"quote": `  I "totally" forgot, my phone DIED `, "pattern": "Excuse", "cost": 3},
		map[string]any{"quote": "died 7:30 pm", "pattern": "Timing"},
		map[string]any{"quote": "youre always busy", "pattern": "Apostrophe"},
		map[string]any{"quote": "I never forget our dates", "pattern": "Invented"},
		"not an object",
		map[string]any{"quote": "   "},
		map[string]any{"pattern": "no quote"},
	}
	got, err := GroundReceipts(raw, groundingTranscript)
	if err != nil {
		t.Fatalf("GroundReceipts: %v", err)
	}
	want := []Receipt{
		{Quote: `I "totally" forgot, my phone DIED`, Pattern: "Excuse", Cost: "3"},
		{Quote: "died 7:30 pm", Pattern: "Timing"},
		{Quote: "youre always busy", Pattern: "Apostrophe"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("receipts mismatch (-want +got):\n%s", diff)
	}
}

func TestGroundReceipts_Failures(t *testing.T) {
	t.Parallel()

	_, err := GroundReceipts([]any{map[string]any{"quote": "my phone died"}, "junk"}, groundingTranscript)
	if KindOf(err) != KindInsufficientEvidence {
		t.Fatalf("err=%v, want InsufficientEvidence", err)
	}
	_, err = GroundReceipts(nil, groundingTranscript)
	if KindOf(err) != KindInsufficientEvidence {
		t.Fatalf("err=%v, want InsufficientEvidence", err)
	}
	_, err = GroundReceipts([]any{
		map[string]any{"quote": "we should move in together"},
		map[string]any{"quote": "I miss you"},
	}, groundingTranscript)
	if KindOf(err) != KindNoGroundedEvidence {
		t.Fatalf("err=%v, want NoGroundedEvidence", err)
	}
}

func TestNormalizeEvidence(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"  Hello\n\tWORLD ":       "hello world",
		"«Don’t» „go” ‘now’":      "dont go now",
		"at ⟦7:30 PM⟧ `sharp`":    "at 7:30 pm sharp",
		"'single' and \"double\"": "single and double",
		"‹a› ‚b‛ ‟c”":             "a b c",
		"":                        "",
	}
	for in, want := range cases {
		if got := NormalizeEvidence(in); got != want {
			t.Fatalf("NormalizeEvidence(%q)=%q, want %q", in, got, want)
		}
	}
}
