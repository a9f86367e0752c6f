package domain

import "context"

// MarketProvider wraps one external market-data source. Implementations
// enforce their own minimum inter-request spacing and translate HTTP
// 429 into *RateLimitError; they never retry. Ids missing from a
// provider's index are simply absent from results, not an error.
type MarketProvider interface {
	Name() string
	Search(ctx context.Context, query string) ([]CoinMatch, error)
	LookupPrices(ctx context.Context, ids []string) (map[string]Quote, error)
	Markets(ctx context.Context, ids []string) ([]MarketCoin, error)
}
