package analysis

import (
	"context"
	"strings"
	"testing"

	"github.com/theimaginaryfoundation/deep-dive/analysis/safety"
)

func TestChatTurn_BlockedSkipsModel(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{reply: `{"reply": "should never be used"}`}
	p := &Pipeline{Generator: gen}
	reply, err := p.ChatTurn(context.Background(), ChatRequest{Question: "I'm 15 and he's 22, should I text him?"})
	if err != nil {
		t.Fatalf("ChatTurn: %v", err)
	}
	if !reply.Blocked || reply.Category != safety.CategoryMinorAgeGap || reply.Reply != safety.MinorSafetyResponse {
		t.Fatalf("reply=%+v", reply)
	}
	if gen.calls != 0 {
		t.Fatalf("calls=%d, want 0", gen.calls)
	}
}

func TestChatTurn_AllowListReachesModel(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{reply: `{"reply": "  Going no contact is reasonable here.  "}`}
	reply, err := (&Pipeline{Generator: gen}).ChatTurn(context.Background(), ChatRequest{
		Question: "Should I just go no contact? I'm dead tired of this",
		Context:  testContext(),
	})
	if err != nil {
		t.Fatalf("ChatTurn: %v", err)
	}
	if reply.Blocked || reply.Redirected || reply.Reply != "Going no contact is reasonable here." {
		t.Fatalf("reply=%+v", reply)
	}
	if gen.calls != 1 || gen.last.SchemaName != "chat_reply" {
		t.Fatalf("calls=%d request=%+v", gen.calls, gen.last)
	}
	if !strings.Contains(gen.last.SystemPrompt, "about their situation with Sam") {
		t.Fatalf("system prompt=%q", gen.last.SystemPrompt)
	}
}

func TestChatTurn_RedirectAndPronouns(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{reply: `{"reply": "No. He crossed a line, and his excuse doesn't change that."}`}
	actx := testContext()
	actx.OtherPronoun = "they/them"
	reply, err := (&Pipeline{Generator: gen}).ChatTurn(context.Background(), ChatRequest{
		Question: "he went through my phone while I slept, is that normal?",
		Context:  actx,
	})
	if err != nil {
		t.Fatalf("ChatTurn: %v", err)
	}
	if !reply.Redirected || reply.Category != safety.CategoryControlling {
		t.Fatalf("reply=%+v, want controlling redirect", reply)
	}
	want := safety.RedirectPreamble + "\n\nNo. they crossed a line, and their excuse doesn't change that."
	if reply.Reply != want {
		t.Fatalf("reply=%q, want %q", reply.Reply, want)
	}
}

func TestChatTurn_Failures(t *testing.T) {
	t.Parallel()

	if _, err := (&Pipeline{Generator: &stubGenerator{}}).ChatTurn(context.Background(), ChatRequest{Question: "   "}); KindOf(err) != KindInvalidPayload {
		t.Fatalf("empty question err=%v, want InvalidPayload", err)
	}
	if _, err := (&Pipeline{Generator: &stubGenerator{reply: `{"reply": ""}`}}).ChatTurn(context.Background(), ChatRequest{Question: "why?"}); KindOf(err) != KindMalformedResponse {
		t.Fatalf("empty reply err=%v, want MalformedResponse", err)
	}
	if _, err := (&Pipeline{}).ChatTurn(context.Background(), ChatRequest{Question: "why?"}); KindOf(err) != KindGenerationFailed {
		t.Fatalf("no generator err=%v, want GenerationFailed", err)
	}
}

func TestChatUserContent(t *testing.T) {
	t.Parallel()

	history := []safety.Turn{
		{Role: "user", Content: "turn one"},
		{Role: "assistant", Content: "turn two"},
		{Role: "user", Content: "turn three\nsecond line"},
		{Role: "", Content: "turn four"},
	}
	got := chatUserContent("what now?", history, " Alex: hi\nSam: hey ", 2)
	want := "transcript:\nAlex: hi\nSam: hey\n\n" +
		"recent turns:\n" +
		"- user: turn three\\nsecond line\n" +
		"- user: turn four\n\n" +
		"question: what now?"
	if got != want {
		t.Fatalf("got=%q\nwant=%q", got, want)
	}

	if got := chatUserContent("q", nil, "", 0); got != "question: q" {
		t.Fatalf("bare content=%q", got)
	}

	long := strings.Repeat("x", maxChatTurnChars+50)
	got = chatUserContent("q", []safety.Turn{{Role: "user", Content: long}}, "", 0)
	if !strings.Contains(got, strings.Repeat("x", maxChatTurnChars)+"…") || strings.Contains(got, strings.Repeat("x", maxChatTurnChars+1)) {
		t.Fatalf("turn was not truncated")
	}
}
