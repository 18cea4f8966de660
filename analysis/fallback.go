package analysis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/deep-dive/analysis/provider"
)

// Fallback runs a Pipeline against each usable credential in turn.
// Only orchestration failures move on to the next credential; everything else is final.
type Fallback struct {
	Base        Pipeline
	Rules       []provider.Rule
	Options     provider.Options
	Credentials []string
	Timeout     time.Duration
}

func (f *Fallback) rules() []provider.Rule {
	if len(f.Rules) > 0 {
		return f.Rules
	}
	return provider.DefaultRules
}

// DeepDive is Pipeline.DeepDive with provider fallback.
func (f *Fallback) DeepDive(ctx context.Context, payload *ConversationPayload, actx AnalysisContext) (*DeepDiveResult, error) {
	if payload == nil {
		return nil, newError(KindInvalidPayload, "payload is missing")
	}
	if err := f.Base.Guardrails.Validate(*payload); err != nil {
		return nil, err
	}
	var res *DeepDiveResult
	err := f.each(ctx, func(p *Pipeline) error {
		var err error
		res, err = p.DeepDive(ctx, payload, actx)
		return err
	})
	return res, err
}

// ChatTurn is Pipeline.ChatTurn with provider fallback.
func (f *Fallback) ChatTurn(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	var reply *ChatReply
	err := f.each(ctx, func(p *Pipeline) error {
		var err error
		reply, err = p.ChatTurn(ctx, req)
		return err
	})
	return reply, err
}

func (f *Fallback) each(ctx context.Context, run func(p *Pipeline) error) error {
	log := f.Base.logger()
	var last error
	tried := 0
	for _, cred := range f.Credentials {
		rule, ok := provider.Detect(f.rules(), cred)
		if !ok {
			continue
		}
		prov, err := rule.New(cred, f.Options)
		if err != nil {
			log.Warn("provider construction failed", zap.String("provider", rule.Name), zap.Error(err))
			last = wrapError(KindGenerationFailed, err, "build %s provider", rule.Name)
			continue
		}
		p := f.Base
		p.Generator = &provider.Orchestrator{Provider: prov, Timeout: f.Timeout, Logger: log}
		tried++
		err = run(&p)
		if err == nil {
			return nil
		}
		if !KindOf(err).IsOrchestration() || ctx.Err() != nil {
			return err
		}
		log.Warn("provider failed, trying next", zap.String("provider", rule.Name), zap.String("kind", string(KindOf(err))), zap.Error(err))
		last = err
	}
	if last != nil {
		return last
	}
	if tried == 0 {
		return wrapError(KindGenerationFailed, provider.ErrNoCredential, "no usable provider credential")
	}
	return newError(KindInternal, "no result")
}
