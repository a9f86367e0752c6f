package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Portfolio groups a set of holdings and their daily snapshots.
// Deleting a portfolio cascades to both.
type Portfolio struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Holdings  []Holding  `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Snapshots []Snapshot `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// Holding is one lot of a coin inside a portfolio. The same coin may
// appear in several rows; the note field tells the lots apart.
type Holding struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	PortfolioID uint   `gorm:"index;not null" json:"portfolio_id"`
	CoinID      string `gorm:"size:100;not null" json:"coin_id"`
	Symbol      string `gorm:"size:20" json:"symbol"`
	Name        string `gorm:"size:100" json:"name"`

	Amount          decimal.Decimal  `json:"amount"`
	AverageBuyPrice *decimal.Decimal `json:"average_buy_price"`

	// Market fields, unknown until the first successful refresh.
	CurrentPrice      *decimal.Decimal `json:"current_price"`
	CurrentValue      decimal.Decimal  `json:"current_value"`
	PriceChange24h    *decimal.Decimal `json:"price_change_24h"`
	PriceChangePct24h *decimal.Decimal `json:"price_change_percentage_24h"`
	ImageURL          string           `gorm:"size:500" json:"image_url"`
	LastUpdated       *time.Time       `json:"last_updated"`

	DisplayOrder int       `gorm:"index" json:"display_order"`
	Note         string    `json:"note"`
	CreatedAt    time.Time `json:"created_at"`
}

// ProfitLoss returns the unrealized gain (current - avg buy) * amount.
// Zero unless average buy price, current price and amount are all
// known and positive.
func (h *Holding) ProfitLoss() decimal.Decimal {
	if h.AverageBuyPrice == nil || h.CurrentPrice == nil {
		return decimal.Zero
	}
	if !h.AverageBuyPrice.IsPositive() || !h.CurrentPrice.IsPositive() || !h.Amount.IsPositive() {
		return decimal.Zero
	}
	return h.CurrentPrice.Sub(*h.AverageBuyPrice).Mul(h.Amount)
}

// ProfitLossPct is relative to the average buy price, never to the
// current value, so a zero amount cannot divide by zero.
func (h *Holding) ProfitLossPct() decimal.Decimal {
	if h.AverageBuyPrice == nil || h.CurrentPrice == nil {
		return decimal.Zero
	}
	if !h.AverageBuyPrice.IsPositive() || !h.CurrentPrice.IsPositive() || !h.Amount.IsPositive() {
		return decimal.Zero
	}
	return h.CurrentPrice.Sub(*h.AverageBuyPrice).
		Div(*h.AverageBuyPrice).
		Mul(decimal.NewFromInt(100))
}

// Snapshot is an immutable point-in-time valuation of a portfolio.
// Exactly one row exists per (portfolio, calendar day); a second
// capture on the same day overwrites value, content and flags.
type Snapshot struct {
	ID          uint `gorm:"primaryKey" json:"id"`
	PortfolioID uint `gorm:"not null;uniqueIndex:idx_snapshots_portfolio_date" json:"portfolio_id"`
	// SnapshotDate is the calendar day in YYYY-MM-DD form. A string
	// keeps the unique index deterministic across drivers.
	SnapshotDate string          `gorm:"size:10;not null;uniqueIndex:idx_snapshots_portfolio_date" json:"snapshot_date"`
	TotalValue   decimal.Decimal `json:"total_value"`
	HoldingsData string          `gorm:"not null;default:'[]'" json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
	IsManual     bool            `json:"is_manual"`
}

// HoldingSnapshot is one holding's valuation captured by value inside
// a snapshot. The field set is a durable contract: comparison and
// export both depend on its stability.
type HoldingSnapshot struct {
	CoinID          string           `json:"coin_id"`
	Symbol          string           `json:"symbol"`
	Name            string           `json:"name"`
	Amount          decimal.Decimal  `json:"amount"`
	CurrentPrice    *decimal.Decimal `json:"current_price"`
	CurrentValue    decimal.Decimal  `json:"current_value"`
	AverageBuyPrice *decimal.Decimal `json:"average_buy_price"`
	ImageURL        string           `json:"image_url"`
	DisplayOrder    int              `json:"display_order"`
	Note            string           `json:"note"`
}

// Holdings decodes the captured holdings payload. A corrupt payload
// decodes to an empty list rather than failing the read path.
func (s *Snapshot) Holdings() []HoldingSnapshot {
	if s.HoldingsData == "" {
		return nil
	}
	var records []HoldingSnapshot
	if err := json.Unmarshal([]byte(s.HoldingsData), &records); err != nil {
		return nil
	}
	return records
}

// SetHoldings encodes the captured holdings payload.
func (s *Snapshot) SetHoldings(records []HoldingSnapshot) error {
	if records == nil {
		records = []HoldingSnapshot{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	s.HoldingsData = string(data)
	return nil
}
