package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/deep-dive/analysis"
	"github.com/theimaginaryfoundation/deep-dive/analysis/provider"
)

type fakeGenerator struct {
	reply string
	err   error
	calls int
}

func (f *fakeGenerator) ProviderName() string { return "fake" }

func (f *fakeGenerator) Generate(_ context.Context, _ provider.CompletionRequest, v any) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.reply), v)
}

const testTranscript = `Alex: hey are we still on for friday? I booked the table already
Sam: ugh this week is insane, can we play it by ear
Alex: sure, just let me know by thursday so I can cancel if needed
Sam: you're so sweet. I'll text you
Alex: it's thursday night, are we on?
Sam: omg I totally forgot, my phone died. next week for sure
Alex: ok. that's the third time this month though`

const testModelReply = `{
  "verdict": {"label": "Soft Maybe Loop", "subtext": "He keeps the door open without walking through it."},
  "receipts": [
    {"quote": "can we play it by ear", "pattern": "Vague deferral", "cost": "You hold the plan alone."},
    {"quote": "I totally forgot, my phone died", "pattern": "Convenient excuse", "cost": "Your time is treated as optional."},
    {"quote": "we are basically engaged", "pattern": "Invented", "cost": "n/a"}
  ],
  "metrics": {"wastingTime": 82, "actuallyIntoYou": 30, "redFlags": 9},
  "tags": ["breadcrumbing", "deferral"],
  "sealLine": "He likes the idea of you more than the calendar invite.",
  "nextMoveScript": "Hey, I like you, but I need plans that happen. Let me know when he has a real night free."
}`

func testServer(t *testing.T, gen *fakeGenerator, store analysis.SpeakerStore) http.Handler {
	t.Helper()
	return NewRouter(ServerConfig{
		MaxBodyBytes: 1 << 20,
		Analyzer:     &analysis.Pipeline{Generator: gen},
		Normalizer:   analysis.Normalizer{NewID: func() string { return "conv-test" }},
		Speakers:     store,
		Logger:       zap.NewNop(),
		StartTime:    time.Now(),
	})
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, &buf))
	return rr
}

func decodeOutcome(t *testing.T, rr *httptest.ResponseRecorder) analysis.Outcome {
	t.Helper()
	var out analysis.Outcome
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode outcome: %v (body=%s)", err, rr.Body.String())
	}
	return out
}

func TestHealth(t *testing.T) {
	t.Parallel()

	rr := do(t, testServer(t, &fakeGenerator{}, nil), http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID")
	}
}

func TestDeepDive_GroundedResult(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{reply: testModelReply}
	rr := do(t, testServer(t, gen, nil), http.MethodPost, "/v1/deep-dive", DeepDiveRequest{
		Text:    testTranscript,
		Context: analysis.AnalysisContext{UserName: "Alex", OtherName: "Sam", OtherPronoun: "she/her"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	out := decodeOutcome(t, rr)
	if !out.OK || out.Result == nil {
		t.Fatalf("outcome=%+v", out)
	}
	if len(out.Result.Receipts) != 2 || out.Result.Metrics.RedFlags != 2 {
		t.Fatalf("receipts=%d redFlags=%d, want 2/2", len(out.Result.Receipts), out.Result.Metrics.RedFlags)
	}
	if strings.Contains(out.Result.Verdict.Subtext, "He ") || !strings.HasPrefix(out.Result.Verdict.Subtext, "she keeps") {
		t.Fatalf("subtext=%q, want pronouns rewritten to she", out.Result.Verdict.Subtext)
	}
}

func TestDeepDive_TooShortNeverCallsModel(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{reply: testModelReply}
	rr := do(t, testServer(t, gen, nil), http.MethodPost, "/v1/deep-dive", DeepDiveRequest{
		Text:    "Alex: hi\nSam: hey",
		Context: analysis.AnalysisContext{UserName: "Alex", OtherName: "Sam"},
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d, want 422", rr.Code)
	}
	out := decodeOutcome(t, rr)
	if out.OK || out.ErrorKind != string(analysis.KindTooShort) {
		t.Fatalf("outcome=%+v", out)
	}
	if gen.calls != 0 {
		t.Fatalf("model calls=%d, want 0", gen.calls)
	}
}

func TestDeepDive_TimeoutMapsTo504(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{err: provider.ErrTimeout}
	rr := do(t, testServer(t, gen, nil), http.MethodPost, "/v1/deep-dive", DeepDiveRequest{
		Text:    testTranscript,
		Context: analysis.AnalysisContext{UserName: "Alex", OtherName: "Sam"},
	})
	if rr.Code != http.StatusGatewayTimeout {
		t.Fatalf("status=%d, want 504", rr.Code)
	}
	if out := decodeOutcome(t, rr); out.ErrorKind != string(analysis.KindGenerationTimeout) || out.Result != nil {
		t.Fatalf("outcome=%+v", out)
	}
}

func TestDeepDive_RejectsMultipleInputs(t *testing.T) {
	t.Parallel()

	rr := do(t, testServer(t, &fakeGenerator{}, nil), http.MethodPost, "/v1/deep-dive", DeepDiveRequest{
		Text:   testTranscript,
		Frames: []analysis.OCRResult{{Text: "x", Confidence: 1}},
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d, want 422", rr.Code)
	}
	if out := decodeOutcome(t, rr); out.ErrorKind != string(analysis.KindInvalidPayload) {
		t.Fatalf("ErrorKind=%q", out.ErrorKind)
	}
}

func TestDeepDive_ImagesWithoutOCR(t *testing.T) {
	t.Parallel()

	rr := do(t, testServer(t, &fakeGenerator{}, nil), http.MethodPost, "/v1/deep-dive", DeepDiveRequest{
		Images: []analysis.Image{{Name: "a.png", Data: []byte("x")}},
	})
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status=%d, want 501", rr.Code)
	}
}

func TestChat_BlockedTurnSkipsModel(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{reply: `{"reply":"x"}`}
	rr := do(t, testServer(t, gen, nil), http.MethodPost, "/v1/chat", analysis.ChatRequest{
		Question: "honestly I want to die over this",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var reply analysis.ChatReply
	if err := json.Unmarshal(rr.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reply.Blocked || gen.calls != 0 {
		t.Fatalf("blocked=%v calls=%d", reply.Blocked, gen.calls)
	}
}

func TestChat_EmptyQuestion(t *testing.T) {
	t.Parallel()

	rr := do(t, testServer(t, &fakeGenerator{}, nil), http.MethodPost, "/v1/chat", analysis.ChatRequest{})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d, want 422", rr.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != string(analysis.KindInvalidPayload) {
		t.Fatalf("code=%q", body.Code)
	}
}

func TestSpeakers_PutThenGet(t *testing.T) {
	t.Parallel()

	store := &analysis.FileStore{Dir: t.TempDir()}
	h := testServer(t, &fakeGenerator{}, store)

	rr := do(t, h, http.MethodPut, "/v1/conversations/conv-1/speakers", SpeakersRequest{
		Speakers: analysis.SpeakerMap{"blue": "Alex", "grey": "Sam"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("put status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodGet, "/v1/conversations/conv-1/speakers", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status=%d", rr.Code)
	}
	var got SpeakersResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Speakers["blue"] != "Alex" || got.Speakers["grey"] != "Sam" {
		t.Fatalf("speakers=%v", got.Speakers)
	}
}

func TestSpeakers_RejectsSingleName(t *testing.T) {
	t.Parallel()

	h := testServer(t, &fakeGenerator{}, &analysis.FileStore{Dir: t.TempDir()})
	rr := do(t, h, http.MethodPut, "/v1/conversations/conv-1/speakers", SpeakersRequest{
		Speakers: analysis.SpeakerMap{"blue": "Alex", "grey": "alex"},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rr.Code)
	}
}

func TestSpeakers_NotFoundAndNotConfigured(t *testing.T) {
	t.Parallel()

	h := testServer(t, &fakeGenerator{}, &analysis.FileStore{Dir: t.TempDir()})
	if rr := do(t, h, http.MethodGet, "/v1/conversations/missing/speakers", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rr.Code)
	}
	h = testServer(t, &fakeGenerator{}, nil)
	if rr := do(t, h, http.MethodGet, "/v1/conversations/conv-1/speakers", nil); rr.Code != http.StatusNotImplemented {
		t.Fatalf("status=%d, want 501", rr.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	t.Parallel()

	h := RecoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want 500", rr.Code)
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	cases := map[analysis.Kind]int{
		analysis.KindTooShort:           http.StatusUnprocessableEntity,
		analysis.KindNoGroundedEvidence: http.StatusUnprocessableEntity,
		analysis.KindGenerationTimeout:  http.StatusGatewayTimeout,
		analysis.KindGenerationFailed:   http.StatusBadGateway,
		analysis.KindMalformedResponse:  http.StatusBadGateway,
		analysis.KindRewriteCorruption:  http.StatusInternalServerError,
		analysis.KindInternal:           http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := statusFor(kind, nil); got != want {
			t.Fatalf("statusFor(%s)=%d, want %d", kind, got, want)
		}
	}
}
