package ratelimiter

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownTier           = errors.New("unknown tier")
	ErrQuotaExceeded         = errors.New("quota exceeded")
	ErrDailyTrackingDisabled = errors.New("daily usage tracking is disabled")
	ErrStoreUnavailable      = errors.New("rate limit store unavailable")
	ErrEmptyKey              = errors.New("empty rate limit zone or key")
	ErrUsageRangeTooLarge    = errors.New("usage range too large")
	ErrInvalidConfig         = errors.New("invalid rate limiter configuration")
)

// QuotaExceededError is returned by CheckLimit when a window's post-increment
// count is above its ceiling.
type QuotaExceededError struct {
	Tier     string
	Window   Window
	Ceiling  int64
	Observed int64
	// Reset is when the offending window rolls over.
	Reset time.Time
	// RetryAfter is the time left until Reset, measured from the instant of the check.
	RetryAfter time.Duration
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("exceeded limit of %d/%s: %d", e.Ceiling, e.Window, e.Observed)
}

func (e *QuotaExceededError) Unwrap() error {
	return ErrQuotaExceeded
}

// StoreError wraps a transport or command failure from the backing store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStoreUnavailable, e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

func storeError(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// IsQuotaExceeded unpacks a *QuotaExceededError from err.
func IsQuotaExceeded(err error) (*QuotaExceededError, bool) {
	var qe *QuotaExceededError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}
