package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/deep-dive/analysis/fileutils"
)

// DefaultTimeout is the hard per-call bound on a completion.
const DefaultTimeout = 25 * time.Second

// Orchestrator issues a single time-bounded completion against one provider. It never retries.
type Orchestrator struct {
	Provider Provider
	Timeout  time.Duration
	Logger   *zap.Logger
}

func (o *Orchestrator) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return DefaultTimeout
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.NewNop()
}

// ProviderName returns the active provider's name, or "" when none is configured.
func (o *Orchestrator) ProviderName() string {
	if o == nil || o.Provider == nil {
		return ""
	}
	return o.Provider.Name()
}

type completion struct {
	text string
	err  error
}

// Complete returns the raw completion text. Deadline and cancellation always surface as ErrTimeout,
// even if the provider returned something at the same moment.
func (o *Orchestrator) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if o == nil || o.Provider == nil {
		return "", fmt.Errorf("%w: no provider configured", ErrGeneration)
	}
	name := o.Provider.Name()
	ctx, cancel := context.WithTimeout(ctx, o.timeout())
	defer cancel()

	start := time.Now()
	done := make(chan completion, 1)
	go func() {
		text, err := o.Provider.Complete(ctx, req)
		done <- completion{text: text, err: err}
	}()

	var res completion
	select {
	case <-ctx.Done():
		o.logger().Warn("completion aborted", zap.String("provider", name), zap.Duration("elapsed", time.Since(start)), zap.Error(ctx.Err()))
		return "", fmt.Errorf("%w: %s after %s: %w", ErrTimeout, name, time.Since(start).Round(time.Millisecond), ctx.Err())
	case res = <-done:
	}

	if ctx.Err() != nil || errors.Is(res.err, context.DeadlineExceeded) || errors.Is(res.err, context.Canceled) {
		return "", fmt.Errorf("%w: %s after %s", ErrTimeout, name, time.Since(start).Round(time.Millisecond))
	}
	if res.err != nil {
		o.logger().Warn("completion failed", zap.String("provider", name), zap.Bool("transient", IsTransient(res.err)), zap.Error(res.err))
		return "", fmt.Errorf("%w: %s: %w", ErrGeneration, name, res.err)
	}
	if strings.TrimSpace(res.text) == "" {
		return "", fmt.Errorf("%w: %s returned an empty completion", ErrGeneration, name)
	}
	o.logger().Debug("completion ok", zap.String("provider", name), zap.Duration("elapsed", time.Since(start)), zap.Int("chars", len(res.text)))
	return res.text, nil
}

// Generate completes req and decodes the reply into v.
func (o *Orchestrator) Generate(ctx context.Context, req CompletionRequest, v any) error {
	text, err := o.Complete(ctx, req)
	if err != nil {
		return err
	}
	if err := fileutils.DecodeModelJSON(text, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return nil
}
