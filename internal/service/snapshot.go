package service

import (
	"log/slog"
	"time"

	"coinfolio/internal/domain"
	"coinfolio/internal/infra/storage"

	"github.com/shopspring/decimal"
)

// Snapshots captures and compares daily portfolio valuations.
type Snapshots struct {
	store *storage.Storage
}

// NewSnapshots creates the snapshot service.
func NewSnapshots(store *storage.Storage) *Snapshots {
	return &Snapshots{store: store}
}

// Capture records (or same-day overwrites) today's snapshot for one
// portfolio. The calendar date is fixed once at call start so a
// capture spanning midnight still lands on a single day. Holding
// fields are copied by value: later edits to live holdings never
// alter the record.
func (s *Snapshots) Capture(portfolioID uint, isManual bool) (*domain.Snapshot, error) {
	now := time.Now().UTC()
	day := now.Format("2006-01-02")

	if _, err := s.store.GetPortfolio(portfolioID); err != nil {
		return nil, err
	}
	holdings, err := s.store.ListHoldings(portfolioID)
	if err != nil {
		return nil, err
	}

	records := make([]domain.HoldingSnapshot, 0, len(holdings))
	total := decimal.Zero
	for _, h := range holdings {
		records = append(records, domain.HoldingSnapshot{
			CoinID:          h.CoinID,
			Symbol:          h.Symbol,
			Name:            h.Name,
			Amount:          h.Amount,
			CurrentPrice:    copyDec(h.CurrentPrice),
			CurrentValue:    h.CurrentValue,
			AverageBuyPrice: copyDec(h.AverageBuyPrice),
			ImageURL:        h.ImageURL,
			DisplayOrder:    h.DisplayOrder,
			Note:            h.Note,
		})
		total = total.Add(h.CurrentValue)
	}

	snap := &domain.Snapshot{
		PortfolioID:  portfolioID,
		SnapshotDate: day,
		TotalValue:   total,
		CreatedAt:    now,
		IsManual:     isManual,
	}
	if err := snap.SetHoldings(records); err != nil {
		return nil, err
	}

	if err := s.store.UpsertSnapshot(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// CaptureAll snapshots every portfolio. One portfolio failing does not
// stop the others; idempotent under back-to-back invocation within a
// day thanks to the (portfolio, date) upsert.
func (s *Snapshots) CaptureAll(isManual bool) error {
	portfolios, err := s.store.ListPortfolios()
	if err != nil {
		return err
	}
	for _, p := range portfolios {
		if _, err := s.Capture(p.ID, isManual); err != nil {
			slog.Error("Snapshot capture failed",
				slog.Uint64("portfolio_id", uint64(p.ID)),
				slog.Any("error", err),
			)
		}
	}
	return nil
}

// List returns snapshots newest first; portfolioID 0 means all.
func (s *Snapshots) List(portfolioID uint) ([]domain.Snapshot, error) {
	return s.store.ListSnapshots(portfolioID)
}

// Get returns one snapshot.
func (s *Snapshots) Get(id uint) (*domain.Snapshot, error) {
	return s.store.GetSnapshot(id)
}

// Delete removes one snapshot.
func (s *Snapshots) Delete(id uint) error {
	return s.store.DeleteSnapshot(id)
}

// ValueChange is the delta between two date-adjacent snapshots in a
// comparison.
type ValueChange struct {
	FromDate         string          `json:"from_date"`
	ToDate           string          `json:"to_date"`
	ValueChange      decimal.Decimal `json:"value_change"`
	PercentageChange decimal.Decimal `json:"percentage_change"`
}

// Comparison pairs the ordered snapshots with their adjacent deltas.
type Comparison struct {
	Snapshots    []domain.Snapshot `json:"snapshots"`
	ValueChanges []ValueChange     `json:"value_changes"`
}

// Compare orders the requested snapshots by date ascending and emits
// a delta for each adjacent pair. Fewer than two ids is a usage error.
func (s *Snapshots) Compare(ids []uint) (*Comparison, error) {
	if len(ids) < 2 {
		return nil, domain.ErrTooFewSnapshots
	}

	snapshots, err := s.store.GetSnapshotsByIDs(ids)
	if err != nil {
		return nil, err
	}
	if len(snapshots) < 2 {
		return nil, domain.ErrTooFewSnapshots
	}

	result := &Comparison{
		Snapshots:    snapshots,
		ValueChanges: make([]ValueChange, 0, len(snapshots)-1),
	}
	for i := 1; i < len(snapshots); i++ {
		prev, curr := snapshots[i-1], snapshots[i]
		change := curr.TotalValue.Sub(prev.TotalValue)
		pct := decimal.Zero
		if !prev.TotalValue.IsZero() {
			pct = change.Div(prev.TotalValue).Mul(decimal.NewFromInt(100))
		}
		result.ValueChanges = append(result.ValueChanges, ValueChange{
			FromDate:         prev.SnapshotDate,
			ToDate:           curr.SnapshotDate,
			ValueChange:      change,
			PercentageChange: pct,
		})
	}
	return result, nil
}
