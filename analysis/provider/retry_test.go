package provider

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("POST /v1/responses: 429 Too Many Requests"), true},
		{errors.New("Error 503, Message: The model is overloaded"), true},
		{errors.New("RESOURCE_EXHAUSTED: quota"), true},
		{fmt.Errorf("%w: anthropic after 25s", ErrTimeout), true},
		{errors.New("401 Unauthorized: invalid x-api-key"), false},
		{errors.New("400 Bad Request"), false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Fatalf("IsTransient(%v)=%v, want %v", tc.err, got, tc.want)
		}
	}
}
