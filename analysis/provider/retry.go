package provider

import (
	"errors"
	"strings"
)

// IsTransient reports whether err looks like a rate limit, a server-side failure or a timeout,
// i.e. something a caller could reasonably retry against the same or another provider.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	return isRateLimitError(err) || isServerError(err)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "resource_exhausted")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "529") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "server_error") ||
		strings.Contains(errStr, "overloaded")
}
