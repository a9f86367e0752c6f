package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRateLimited(t *testing.T) {
	rl := &RateLimitError{Provider: "coingecko"}
	if !IsRateLimited(rl) {
		t.Error("expected rate limit error to be detected")
	}
	if !IsRateLimited(fmt.Errorf("search: %w", rl)) {
		t.Error("expected wrapped rate limit error to be detected")
	}
	if IsRateLimited(errors.New("boom")) {
		t.Error("generic error must not read as rate limited")
	}
	if IsRateLimited(nil) {
		t.Error("nil must not read as rate limited")
	}
}

func TestIsRetriable(t *testing.T) {
	if !IsRetriable(&RateLimitError{Provider: "coincap"}) {
		t.Error("rate limit should be retriable")
	}
	if IsRetriable(&ValidationError{Field: "amount", Reason: "must be positive"}) {
		t.Error("validation failures are not retriable")
	}
	if IsRetriable(errors.New("boom")) {
		t.Error("plain errors are not retriable")
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Field: "coin_id", Reason: "required"}
	want := "invalid coin_id: required"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
