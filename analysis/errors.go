package analysis

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the stable, machine-readable class of a pipeline failure.
type Kind string

const (
	// Guardrail stage. Surfaced before any network cost is incurred.
	KindInvalidPayload       Kind = "InvalidPayload"
	KindTooShort             Kind = "TooShort"
	KindInsufficientSpeakers Kind = "InsufficientSpeakers"
	KindLowConfidence        Kind = "LowConfidence"
	KindInsufficientColors   Kind = "InsufficientColors"
	KindNeedsManualEdit      Kind = "NeedsManualEdit"

	// Orchestration stage.
	KindGenerationTimeout Kind = "GenerationTimeout"
	KindGenerationFailed  Kind = "GenerationFailed"
	KindMalformedResponse Kind = "MalformedResponse"

	// Grounding stage.
	KindInsufficientEvidence Kind = "InsufficientEvidence"
	KindNoGroundedEvidence   Kind = "NoGroundedEvidence"

	// Post-processing stage.
	KindRewriteCorruption Kind = "RewriteCorruption"

	// KindInternal covers anything that is not part of the taxonomy above.
	KindInternal Kind = "Internal"
)

// Error is the single error type returned by every pipeline stage.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind so errors.Is(err, &Error{Kind: KindTooShort}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// ErrEmptyTranscript is returned by the normalizer when nothing is left after trimming.
var ErrEmptyTranscript = &Error{Kind: KindInvalidPayload, Message: "transcript is empty"}

// KindOf reports the pipeline kind carried by err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindGenerationTimeout
	}
	return KindInternal
}

// IsGuardrail reports whether the kind is raised before any model call.
func (k Kind) IsGuardrail() bool {
	switch k {
	case KindInvalidPayload, KindTooShort, KindInsufficientSpeakers, KindLowConfidence,
		KindInsufficientColors, KindNeedsManualEdit:
		return true
	}
	return false
}

// IsOrchestration reports whether a caller may retry the kind with a different provider.
func (k Kind) IsOrchestration() bool {
	switch k {
	case KindGenerationTimeout, KindGenerationFailed, KindMalformedResponse:
		return true
	}
	return false
}
