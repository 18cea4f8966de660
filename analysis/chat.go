package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/deep-dive/analysis/fileutils"
	"github.com/theimaginaryfoundation/deep-dive/analysis/provider"
	"github.com/theimaginaryfoundation/deep-dive/analysis/safety"
)

const (
	maxChatTranscript = 6000
	maxChatTurnChars  = 600
)

// ChatRequest is one follow-up question about an analyzed conversation.
type ChatRequest struct {
	Question   string          `json:"question"`
	History    []safety.Turn   `json:"history,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
	Context    AnalysisContext `json:"context"`
}

// ChatReply is what the caller shows. Blocked replies are fixed text and no model was called.
type ChatReply struct {
	Reply      string          `json:"reply"`
	Blocked    bool            `json:"blocked,omitempty"`
	Redirected bool            `json:"redirected,omitempty"`
	Category   safety.Category `json:"category,omitempty"`
}

type chatOutput struct {
	Reply string `json:"reply"`
}

var chatSchema = provider.GenerateSchema[chatOutput]()

// ChatTurn screens the question, generates a reply and applies pronoun and redirect post-processing.
func (p *Pipeline) ChatTurn(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	q := strings.TrimSpace(req.Question)
	if q == "" {
		return nil, newError(KindInvalidPayload, "question is empty")
	}
	d := p.Classifier.Classify(q, req.History)
	if d.Action == safety.ActionBlock {
		p.logger().Info("chat turn blocked", zap.String("category", string(d.Category)))
		return &ChatReply{Reply: d.Response, Blocked: true, Category: d.Category}, nil
	}
	if p.Generator == nil {
		return nil, newError(KindGenerationFailed, "no provider configured")
	}

	creq := provider.CompletionRequest{
		SystemPrompt: RenderTemplate(chatSystemTemplate, PromptVars(req.Context)),
		UserContent:  chatUserContent(q, req.History, req.Transcript, p.Classifier.HistoryTurns),
		Temperature:  p.temperature(),
		MaxTokens:    p.maxTokens(),
		JSONMode:     true,
		SchemaName:   "chat_reply",
		Schema:       chatSchema,
	}
	var out chatOutput
	if err := p.Generator.Generate(ctx, creq, &out); err != nil {
		return nil, fromProvider(err)
	}
	if strings.TrimSpace(out.Reply) == "" {
		return nil, newError(KindMalformedResponse, "reply is empty")
	}

	reply, err := rewriteReply(out, ParsePronoun(req.Context.OtherPronoun))
	if err != nil {
		return nil, err
	}
	r := p.Classifier.Redirect(q, req.History, reply)
	return &ChatReply{
		Reply:      safety.ApplyRedirect(r, reply),
		Redirected: r.Action == safety.ActionRedirect,
		Category:   r.Category,
	}, nil
}

func chatUserContent(question string, history []safety.Turn, transcript string, turns int) string {
	if turns <= 0 {
		turns = safety.DefaultHistoryTurns
	}
	if len(history) > turns {
		history = history[len(history)-turns:]
	}
	var b strings.Builder
	if t := strings.TrimSpace(transcript); t != "" {
		b.WriteString("transcript:\n")
		b.WriteString(fileutils.Truncate(t, maxChatTranscript))
		b.WriteString("\n\n")
	}
	if len(history) > 0 {
		b.WriteString("recent turns:\n")
		for _, t := range history {
			content := fileutils.Truncate(fileutils.SanitizeNewlines(t.Content), maxChatTurnChars)
			fmt.Fprintf(&b, "- %s: %s\n", orDefault(t.Role, "user"), content)
		}
		b.WriteString("\n")
	}
	b.WriteString("question: ")
	b.WriteString(question)
	return b.String()
}

func rewriteReply(out chatOutput, set PronounSet) (string, error) {
	raw, err := json.Marshal(out)
	if err != nil {
		return "", wrapError(KindInternal, err, "encode reply")
	}
	rewritten, err := RewritePronouns(raw, set)
	if err != nil {
		return "", err
	}
	var back chatOutput
	if err := json.Unmarshal(rewritten, &back); err != nil {
		return "", wrapError(KindRewriteCorruption, err, "decode rewritten reply")
	}
	return strings.TrimSpace(back.Reply), nil
}
