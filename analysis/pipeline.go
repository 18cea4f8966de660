package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/deep-dive/analysis/provider"
	"github.com/theimaginaryfoundation/deep-dive/analysis/safety"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 1500
	maxTags            = 5
)

// Generator issues one structured completion. *provider.Orchestrator satisfies it.
type Generator interface {
	Generate(ctx context.Context, req provider.CompletionRequest, v any) error
	ProviderName() string
}

// Pipeline runs guardrails, flattening, generation, grounding and pronoun rewriting in that order.
type Pipeline struct {
	Generator  Generator
	Guardrails GuardrailConfig
	Classifier safety.Classifier
	Logger     *zap.Logger

	Temperature float64
	MaxTokens   int
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return zap.NewNop()
}

func (p *Pipeline) temperature() float64 {
	if p.Temperature > 0 {
		return p.Temperature
	}
	return defaultTemperature
}

func (p *Pipeline) maxTokens() int {
	if p.MaxTokens > 0 {
		return p.MaxTokens
	}
	return defaultMaxTokens
}

// deepDiveOutput is the shape requested from providers that support strict schemas.
type deepDiveOutput struct {
	Verdict        Verdict   `json:"verdict"`
	Receipts       []Receipt `json:"receipts"`
	Metrics        Metrics   `json:"metrics"`
	Tags           []string  `json:"tags"`
	SealLine       string    `json:"sealLine"`
	NextMoveScript string    `json:"nextMoveScript"`
}

var deepDiveSchema = provider.GenerateSchema[deepDiveOutput]()

// DeepDive analyzes payload. Either a fully grounded result or a typed *Error is returned, never both.
func (p *Pipeline) DeepDive(ctx context.Context, payload *ConversationPayload, actx AnalysisContext) (*DeepDiveResult, error) {
	if payload == nil {
		return nil, newError(KindInvalidPayload, "payload is missing")
	}
	if err := p.Guardrails.Validate(*payload); err != nil {
		return nil, err
	}
	if p.Generator == nil {
		return nil, newError(KindGenerationFailed, "no provider configured")
	}
	log := p.logger().With(zap.String("conversation_id", payload.ID), zap.String("provider", p.Generator.ProviderName()))

	tr := Flatten(*payload)
	if tr.InferredLines > 0 {
		log.Warn("speaker attribution fell back to alternation", zap.Int("inferred_lines", tr.InferredLines), zap.Int("lines", len(tr.Lines)))
	}

	req := provider.CompletionRequest{
		SystemPrompt: RenderTemplate(deepDiveSystemTemplate, PromptVars(actx)),
		UserContent:  "transcript:\n" + tr.Text,
		Temperature:  p.temperature(),
		MaxTokens:    p.maxTokens(),
		JSONMode:     true,
		SchemaName:   "deep_dive",
		Schema:       deepDiveSchema,
	}
	var raw map[string]any
	if err := p.Generator.Generate(ctx, req, &raw); err != nil {
		return nil, fromProvider(err)
	}

	receiptsRaw, err := requireShape(raw)
	if err != nil {
		return nil, err
	}
	receipts, err := GroundReceipts(receiptsRaw, tr.Text)
	if err != nil {
		log.Info("grounding rejected output", zap.String("kind", string(KindOf(err))), zap.Int("candidates", len(receiptsRaw)))
		return nil, err
	}

	res := buildResult(raw, receipts, actx.Mode)
	out, err := rewriteResult(res, ParsePronoun(actx.OtherPronoun))
	if err != nil {
		return nil, err
	}
	log.Info("deep dive complete",
		zap.Int("receipts", len(out.Receipts)),
		zap.Int("dropped_receipts", len(receiptsRaw)-len(out.Receipts)),
		zap.String("verdict", out.Verdict.Label))
	return out, nil
}

// fromProvider maps provider sentinels onto the orchestration kinds.
func fromProvider(err error) *Error {
	switch {
	case errors.Is(err, provider.ErrTimeout):
		return wrapError(KindGenerationTimeout, err, "generation timed out")
	case errors.Is(err, provider.ErrMalformed):
		return wrapError(KindMalformedResponse, err, "model output is not valid JSON")
	default:
		return wrapError(KindGenerationFailed, err, "generation failed")
	}
}

// requireShape checks the minimum fields and returns the raw receipts array.
func requireShape(raw map[string]any) ([]any, error) {
	if raw == nil {
		return nil, newError(KindMalformedResponse, "model output is not an object")
	}
	switch v := raw["verdict"].(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, newError(KindMalformedResponse, "verdict is empty")
		}
	case map[string]any:
	default:
		return nil, newError(KindMalformedResponse, "verdict is missing")
	}
	if _, ok := raw["metrics"].(map[string]any); !ok {
		return nil, newError(KindMalformedResponse, "metrics is missing")
	}
	receipts, ok := raw["receipts"].([]any)
	if !ok {
		return nil, newError(KindMalformedResponse, "receipts is missing or not a list")
	}
	return receipts, nil
}

func buildResult(raw map[string]any, receipts []Receipt, mode Mode) DeepDiveResult {
	res := DeepDiveResult{
		Verdict:  decodeVerdict(raw["verdict"]),
		Receipts: receipts,
		Tags:     decodeTags(raw["tags"]),
		SealLine: stringField(raw["sealLine"]),
	}
	m, _ := raw["metrics"].(map[string]any)
	res.Metrics = Metrics{
		WastingTime:     percent(m["wastingTime"]),
		ActuallyIntoYou: percent(m["actuallyIntoYou"]),
		RedFlags:        len(receipts),
	}
	if mode != ModeLite {
		if s, ok := raw["nextMoveScript"].(string); ok && strings.TrimSpace(s) != "" {
			s = strings.TrimSpace(s)
			res.NextMoveScript = &s
		}
	}
	return res
}

func decodeVerdict(v any) Verdict {
	switch t := v.(type) {
	case string:
		return Verdict{Label: strings.TrimSpace(t)}
	case map[string]any:
		out := Verdict{Label: stringField(t["label"]), Subtext: stringField(t["subtext"])}
		if out.Label == "" {
			out.Label = stringField(t["title"])
		}
		if out.Subtext == "" {
			out.Subtext = stringField(t["subtitle"])
		}
		return out
	}
	return Verdict{}
}

// decodeTags keeps at most maxTags unique labels. Fewer than three is accepted.
func decodeTags(v any) []string {
	list, _ := v.([]any)
	tags := make([]string, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, item := range list {
		s, ok := item.(string)
		s = strings.TrimSpace(s)
		if !ok || s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		tags = append(tags, s)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}

// percent accepts numbers or numeric strings and clamps to 0..100.
func percent(v any) int {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case json.Number:
		f, _ = t.Float64()
	case string:
		n, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(t), "%"), 64)
		if err != nil {
			return 0
		}
		f = n
	default:
		return 0
	}
	if math.IsNaN(f) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, f))))
}

// rewriteResult rewrites pronouns across the serialized result. Receipt quotes are restored afterwards
// so they stay verbatim against the transcript.
func rewriteResult(res DeepDiveResult, set PronounSet) (*DeepDiveResult, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, wrapError(KindInternal, err, "encode result")
	}
	rewritten, err := RewritePronouns(raw, set)
	if err != nil {
		return nil, err
	}
	var out DeepDiveResult
	if err := json.Unmarshal(rewritten, &out); err != nil {
		return nil, wrapError(KindRewriteCorruption, err, "decode rewritten result")
	}
	if len(out.Receipts) != len(res.Receipts) {
		return nil, newError(KindRewriteCorruption, "rewrite changed receipt count from %d to %d", len(res.Receipts), len(out.Receipts))
	}
	for i := range out.Receipts {
		out.Receipts[i].Quote = res.Receipts[i].Quote
	}
	out.Metrics.RedFlags = len(out.Receipts)
	if out.Tags == nil {
		out.Tags = []string{}
	}
	return &out, nil
}
