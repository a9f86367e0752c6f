package service

import (
	"time"

	"coinfolio/internal/domain"

	"github.com/shopspring/decimal"
)

// ApplyMarket copies a bulk market point onto a holding and recomputes
// current_value = price * amount. A point without a price leaves the
// holding's stale price untouched: stale-but-present beats absent.
func ApplyMarket(h *domain.Holding, m domain.MarketCoin, now time.Time) {
	if m.PriceUSD == nil {
		return
	}
	price := *m.PriceUSD
	h.CurrentPrice = &price
	h.CurrentValue = price.Mul(h.Amount)
	h.PriceChange24h = copyDec(m.Change24h)
	h.PriceChangePct24h = copyDec(m.ChangePct24h)
	if m.ImageURL != "" {
		h.ImageURL = m.ImageURL
	}
	t := now
	h.LastUpdated = &t
}

// ApplyQuote copies a simple price lookup onto a holding. Same
// stale-price rule as ApplyMarket.
func ApplyQuote(h *domain.Holding, q domain.Quote, now time.Time) {
	if q.PriceUSD == nil {
		return
	}
	price := *q.PriceUSD
	h.CurrentPrice = &price
	h.CurrentValue = price.Mul(h.Amount)
	h.PriceChangePct24h = copyDec(q.ChangePct24h)
	if q.ImageURL != "" {
		h.ImageURL = q.ImageURL
	}
	t := now
	h.LastUpdated = &t
}

// RecomputeValue re-applies the value invariant after an amount edit.
// With no known price the stored value is meaningless and reads zero.
func RecomputeValue(h *domain.Holding) {
	if h.CurrentPrice == nil {
		h.CurrentValue = decimal.Zero
		return
	}
	h.CurrentValue = h.CurrentPrice.Mul(h.Amount)
}

// BlendCostBasis folds an additional buy into a weighted-average cost
// basis:
//
//	(existingAmount*existingAvg + addedAmount*addedPrice) / (existingAmount+addedAmount)
//
// When there is nothing to weigh against (zero existing amount, or a
// zero total) the added price stands alone.
func BlendCostBasis(existingAmount, existingAvg, addedAmount, addedPrice decimal.Decimal) decimal.Decimal {
	total := existingAmount.Add(addedAmount)
	if existingAmount.IsZero() || total.IsZero() {
		return addedPrice
	}
	return existingAmount.Mul(existingAvg).
		Add(addedAmount.Mul(addedPrice)).
		Div(total)
}

func copyDec(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
