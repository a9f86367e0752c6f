package domain

import "github.com/shopspring/decimal"

// CoinMatch is one search hit from a market-data provider.
type CoinMatch struct {
	CoinID   string `json:"coin_id"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url,omitempty"`
}

// Quote is a minimal price point from a simple price lookup.
type Quote struct {
	PriceUSD     *decimal.Decimal `json:"price_usd"`
	ChangePct24h *decimal.Decimal `json:"change_pct_24h,omitempty"`
	ImageURL     string           `json:"image_url,omitempty"`
}

// MarketCoin is the richer market-snapshot shape used for bulk
// refresh. Providers that don't report a field leave it nil.
type MarketCoin struct {
	CoinID       string           `json:"coin_id"`
	Symbol       string           `json:"symbol"`
	Name         string           `json:"name"`
	PriceUSD     *decimal.Decimal `json:"price_usd"`
	Change24h    *decimal.Decimal `json:"change_24h,omitempty"`
	ChangePct24h *decimal.Decimal `json:"change_pct_24h,omitempty"`
	ImageURL     string           `json:"image_url,omitempty"`
}
