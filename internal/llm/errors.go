package llm

import (
	"errors"
	"fmt"
)

// RateLimitError is the retryable error class: the provider rejected the
// request due to throttling. All other provider errors are terminal.
type RateLimitError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited (%d): %s", e.Provider, e.StatusCode, e.Message)
}

// UnexpectedResponseError marks a response that could not be validated
// against the expected output schema. Never retried.
type UnexpectedResponseError struct {
	Provider string
	Reason   string
	Raw      string
}

func (e *UnexpectedResponseError) Error() string {
	raw := e.Raw
	if len(raw) > 200 {
		raw = raw[:197] + "..."
	}
	return fmt.Sprintf("%s unexpected response: %s: %q", e.Provider, e.Reason, raw)
}

// IsRateLimit reports whether err is (or wraps) a rate-limit error.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}
