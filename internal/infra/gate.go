package infra

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RequestGate enforces a minimum spacing between outbound requests to
// one provider. Each provider owns its own gate because quotas are
// independent; there is no process-wide limiter.
type RequestGate struct {
	limiter *rate.Limiter
}

// NewRequestGate creates a gate that admits one request per interval.
func NewRequestGate(minInterval time.Duration) *RequestGate {
	return &RequestGate{
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

// Wait blocks until the interval since the previous admitted request
// has elapsed, or ctx is done.
func (g *RequestGate) Wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}
