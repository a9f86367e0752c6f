package domain

import (
	"errors"
	"fmt"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// RateLimitError signals an HTTP 429 from a market-data provider. The
// adapter performs no retry itself; the orchestrator decides whether
// another provider still has quota.
type RateLimitError struct {
	Provider string
}

func (e *RateLimitError) Error() string {
	return e.Provider + ": rate limited"
}

func (e *RateLimitError) IsRetriable() bool {
	return true
}

// IsRateLimited reports whether err carries a provider rate limit.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// ValidationError rejects bad input before any I/O happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) IsRetriable() bool {
	return false
}

var (
	// ErrNotFound is returned when an entity id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTooFewSnapshots is returned when a comparison is requested
	// with fewer than two snapshot ids.
	ErrTooFewSnapshots = errors.New("at least two snapshots are required")
)
