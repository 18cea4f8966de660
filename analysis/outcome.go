package analysis

import "errors"

const internalMessage = "Something went wrong on our side while preparing your analysis. Please try again."

// ToOutcome folds a pipeline return into the caller-facing contract.
// Post-processing and unknown failures are reported as Internal with a generic message.
func ToOutcome(res *DeepDiveResult, err error) Outcome {
	if err == nil && res != nil {
		return Outcome{OK: true, Result: res}
	}
	if err == nil {
		return Outcome{ErrorKind: string(KindInternal), Message: internalMessage}
	}
	kind := KindOf(err)
	switch kind {
	case KindRewriteCorruption, KindInternal:
		return Outcome{ErrorKind: string(KindInternal), Message: internalMessage}
	}
	msg := err.Error()
	var e *Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	return Outcome{ErrorKind: string(kind), Message: msg}
}
