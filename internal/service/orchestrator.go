package service

import (
	"context"
	"log/slog"

	"coinfolio/internal/domain"
)

// Orchestrator walks a fixed priority-ordered list of market-data
// providers. Every capability call restarts the walk from the top:
// provider rate-limit windows are shorter than the spacing between
// user-triggered calls, so no breaker state is carried between calls.
//
// Results are never merged across providers; the first non-empty,
// non-rate-limited answer wins so two providers' numbers for the same
// coin never mix in one response.
type Orchestrator struct {
	providers []domain.MarketProvider
}

// NewOrchestrator creates an orchestrator trying providers in the
// given order.
func NewOrchestrator(providers ...domain.MarketProvider) *Orchestrator {
	return &Orchestrator{providers: providers}
}

// Search fans a coin search out across providers. The boolean reports
// whether any provider was rate limited and no usable result was
// found; it is false whenever a result is returned.
func (o *Orchestrator) Search(ctx context.Context, query string) ([]domain.CoinMatch, bool) {
	rateLimited := false
	for _, p := range o.providers {
		matches, err := p.Search(ctx, query)
		if err != nil {
			rateLimited = o.noteFailure(p, "search", err) || rateLimited
			continue
		}
		if len(matches) == 0 {
			continue
		}
		return matches, false
	}
	return nil, rateLimited
}

// LookupPrices resolves simple USD quotes for a set of coin ids.
func (o *Orchestrator) LookupPrices(ctx context.Context, ids []string) (map[string]domain.Quote, bool) {
	rateLimited := false
	for _, p := range o.providers {
		quotes, err := p.LookupPrices(ctx, ids)
		if err != nil {
			rateLimited = o.noteFailure(p, "lookup_prices", err) || rateLimited
			continue
		}
		if len(quotes) == 0 {
			continue
		}
		return quotes, false
	}
	return map[string]domain.Quote{}, rateLimited
}

// Markets resolves the richer market-snapshot shape for bulk refresh.
func (o *Orchestrator) Markets(ctx context.Context, ids []string) ([]domain.MarketCoin, bool) {
	rateLimited := false
	for _, p := range o.providers {
		coins, err := p.Markets(ctx, ids)
		if err != nil {
			rateLimited = o.noteFailure(p, "markets", err) || rateLimited
			continue
		}
		if len(coins) == 0 {
			continue
		}
		return coins, false
	}
	return nil, rateLimited
}

// noteFailure logs a provider failure and reports whether it was a
// rate limit. Any failure means "try the next provider"; only the
// rate-limit kind is surfaced to callers.
func (o *Orchestrator) noteFailure(p domain.MarketProvider, capability string, err error) bool {
	if domain.IsRateLimited(err) {
		slog.Warn("Provider rate limited, falling back",
			slog.String("provider", p.Name()),
			slog.String("capability", capability),
		)
		return true
	}
	slog.Warn("Provider call failed, falling back",
		slog.String("provider", p.Name()),
		slog.String("capability", capability),
		slog.Any("error", err),
	)
	return false
}
