package classifier

import "fmt"

// Error kinds.
const (
	KindInvalidInput = "invalid_input"
	KindTimeout      = "timeout"
	KindRateLimit    = "rate_limit"
	KindMalformed    = "malformed_response"
	KindUpstream     = "upstream"
)

// Error is the classification error taxonomy. Retryable errors are
// absorbed by the scheduler's backoff loop; terminal ones count toward
// the unmappable verdict.
type Error struct {
	Kind      string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classification %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("classification %s", e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a retryable classification error.
// Unknown errors are treated as retryable so a transient fault never
// burns the attempt budget by accident.
func IsRetryable(err error) bool {
	if cerr, ok := err.(*Error); ok {
		return cerr.Retryable
	}
	return true
}
