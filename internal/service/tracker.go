package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"coinfolio/internal/domain"
	"coinfolio/internal/infra"
	"coinfolio/internal/infra/storage"

	"github.com/shopspring/decimal"
)

// MarketSource is the provider fan-out the tracker consumes. The
// orchestrator implements it in production; tests plug in stubs. The
// boolean in each return is the combined "was rate limited with no
// usable result" flag.
type MarketSource interface {
	Search(ctx context.Context, query string) ([]domain.CoinMatch, bool)
	LookupPrices(ctx context.Context, ids []string) (map[string]domain.Quote, bool)
	Markets(ctx context.Context, ids []string) ([]domain.MarketCoin, bool)
}

// Tracker is the portfolio service: holding CRUD, reorder, cost-basis
// recording and the bulk price refresh.
type Tracker struct {
	store  *storage.Storage
	market MarketSource
	icons  *infra.IconCache // optional

	batchSize int

	// refreshMu serializes RefreshAllPrices so back-to-back triggers
	// (scheduler tick racing a manual refresh) cannot interleave.
	refreshMu sync.Mutex

	onRefresh func([]domain.Holding)
}

// NewTracker creates a tracker. icons may be nil to disable the local
// icon cache.
func NewTracker(store *storage.Storage, market MarketSource, icons *infra.IconCache, batchSize int) *Tracker {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Tracker{
		store:     store,
		market:    market,
		icons:     icons,
		batchSize: batchSize,
	}
}

// SetOnRefresh registers a callback invoked with the updated holdings
// after each successful refresh commit. Used for the WebSocket push.
func (t *Tracker) SetOnRefresh(fn func([]domain.Holding)) {
	t.onRefresh = fn
}

// ======================================================================================
// Portfolios
// ======================================================================================

// HoldingView is a holding plus its derived profit/loss fields.
type HoldingView struct {
	domain.Holding
	ProfitLoss    decimal.Decimal `json:"profit_loss"`
	ProfitLossPct decimal.Decimal `json:"profit_loss_percentage"`
}

// PortfolioView is a portfolio with holdings in display order,
// profit/loss precomputed and the total summed. Export and the API
// both consume this shape.
type PortfolioView struct {
	domain.Portfolio
	Holdings   []HoldingView   `json:"holdings"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// CreatePortfolio creates a portfolio; an empty name gets a default.
func (t *Tracker) CreatePortfolio(name, description string) (*domain.Portfolio, error) {
	if name == "" {
		name = "My Portfolio"
	}
	p := &domain.Portfolio{Name: name, Description: description}
	if err := t.store.CreatePortfolio(p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePortfolio patches name and/or description.
func (t *Tracker) UpdatePortfolio(id uint, name, description *string) (*domain.Portfolio, error) {
	p, err := t.store.GetPortfolio(id)
	if err != nil {
		return nil, err
	}
	if name != nil {
		p.Name = *name
	}
	if description != nil {
		p.Description = *description
	}
	if err := t.store.SavePortfolio(p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePortfolio removes a portfolio with its holdings and snapshots.
func (t *Tracker) DeletePortfolio(id uint) error {
	return t.store.DeletePortfolio(id)
}

// PortfolioView assembles the derived view for one portfolio.
func (t *Tracker) PortfolioView(id uint) (*PortfolioView, error) {
	p, err := t.store.GetPortfolio(id)
	if err != nil {
		return nil, err
	}
	return t.buildView(p)
}

// ListPortfolioViews assembles the derived view for every portfolio.
func (t *Tracker) ListPortfolioViews() ([]PortfolioView, error) {
	portfolios, err := t.store.ListPortfolios()
	if err != nil {
		return nil, err
	}
	views := make([]PortfolioView, 0, len(portfolios))
	for i := range portfolios {
		view, err := t.buildView(&portfolios[i])
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

func (t *Tracker) buildView(p *domain.Portfolio) (*PortfolioView, error) {
	holdings, err := t.store.ListHoldings(p.ID)
	if err != nil {
		return nil, err
	}

	view := &PortfolioView{
		Portfolio:  *p,
		Holdings:   make([]HoldingView, 0, len(holdings)),
		TotalValue: decimal.Zero,
	}
	for _, h := range holdings {
		view.Holdings = append(view.Holdings, HoldingView{
			Holding:       h,
			ProfitLoss:    h.ProfitLoss(),
			ProfitLossPct: h.ProfitLossPct(),
		})
		view.TotalValue = view.TotalValue.Add(h.CurrentValue)
	}
	return view, nil
}

// ======================================================================================
// Holdings
// ======================================================================================

// AddHoldingInput carries the user-supplied fields for a new lot.
type AddHoldingInput struct {
	CoinID          string
	Symbol          string
	Name            string
	Amount          decimal.Decimal
	AverageBuyPrice *decimal.Decimal
	ImageURL        string
	Note            string
}

// AddHolding inserts a new holding row. Adding a coin that is already
// in the portfolio creates another lot rather than merging; the note
// field tells lots apart. The initial price fetch is best effort: the
// returned flag reports a provider rate limit, never a failure.
func (t *Tracker) AddHolding(ctx context.Context, portfolioID uint, in AddHoldingInput) (*domain.Holding, bool, error) {
	if in.CoinID == "" {
		return nil, false, &domain.ValidationError{Field: "coin_id", Reason: "required"}
	}
	if in.Amount.IsNegative() {
		return nil, false, &domain.ValidationError{Field: "amount", Reason: "must not be negative"}
	}

	if _, err := t.store.GetPortfolio(portfolioID); err != nil {
		return nil, false, err
	}

	h := &domain.Holding{
		PortfolioID:     portfolioID,
		CoinID:          in.CoinID,
		Symbol:          in.Symbol,
		Name:            in.Name,
		Amount:          in.Amount,
		AverageBuyPrice: in.AverageBuyPrice,
		ImageURL:        in.ImageURL,
		Note:            in.Note,
	}
	if err := t.store.CreateHolding(h); err != nil {
		return nil, false, err
	}

	quotes, rateLimited := t.market.LookupPrices(ctx, []string{h.CoinID})
	if q, ok := quotes[h.CoinID]; ok {
		ApplyQuote(h, q, time.Now().UTC())
		t.localizeIcon(h)
		if err := t.store.SaveHolding(h); err != nil {
			return nil, rateLimited, err
		}
	}

	return h, rateLimited, nil
}

// UpdateHoldingInput patches a holding; nil fields are untouched.
type UpdateHoldingInput struct {
	Amount          *decimal.Decimal
	AverageBuyPrice *decimal.Decimal
	Note            *string
}

// UpdateHolding edits a holding and re-applies the value invariant.
func (t *Tracker) UpdateHolding(id uint, in UpdateHoldingInput) (*domain.Holding, error) {
	h, err := t.store.GetHolding(id)
	if err != nil {
		return nil, err
	}

	if in.Amount != nil {
		if in.Amount.IsNegative() {
			return nil, &domain.ValidationError{Field: "amount", Reason: "must not be negative"}
		}
		h.Amount = *in.Amount
	}
	if in.AverageBuyPrice != nil {
		h.AverageBuyPrice = in.AverageBuyPrice
	}
	if in.Note != nil {
		h.Note = *in.Note
	}

	if h.CurrentPrice != nil {
		RecomputeValue(h)
	}

	if err := t.store.SaveHolding(h); err != nil {
		return nil, err
	}
	return h, nil
}

// RecordBuy folds an additional purchase into an existing lot,
// blending the cost basis. This is the only path that blends; adding
// a holding never merges rows.
func (t *Tracker) RecordBuy(id uint, amount, price decimal.Decimal) (*domain.Holding, error) {
	if !amount.IsPositive() {
		return nil, &domain.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if price.IsNegative() {
		return nil, &domain.ValidationError{Field: "price", Reason: "must not be negative"}
	}

	h, err := t.store.GetHolding(id)
	if err != nil {
		return nil, err
	}

	existingAvg := decimal.Zero
	if h.AverageBuyPrice != nil {
		existingAvg = *h.AverageBuyPrice
	}
	blended := BlendCostBasis(h.Amount, existingAvg, amount, price)
	h.AverageBuyPrice = &blended
	h.Amount = h.Amount.Add(amount)
	RecomputeValue(h)

	if err := t.store.SaveHolding(h); err != nil {
		return nil, err
	}
	return h, nil
}

// DeleteHolding removes a holding.
func (t *Tracker) DeleteHolding(id uint) error {
	return t.store.DeleteHolding(id)
}

// MoveHolding swaps a holding with its neighbor in display order.
// Direction is "up" (towards the front) or "down". Moving an edge
// holding past the boundary is a no-op. Swapping with the same
// neighbor twice restores the original order.
func (t *Tracker) MoveHolding(id uint, direction string) error {
	if direction != "up" && direction != "down" {
		return &domain.ValidationError{Field: "direction", Reason: "must be \"up\" or \"down\""}
	}

	h, err := t.store.GetHolding(id)
	if err != nil {
		return err
	}
	siblings, err := t.store.ListHoldings(h.PortfolioID)
	if err != nil {
		return err
	}

	idx := -1
	for i := range siblings {
		if siblings[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return domain.ErrNotFound
	}

	var neighbor int
	if direction == "up" {
		neighbor = idx - 1
	} else {
		neighbor = idx + 1
	}
	if neighbor < 0 || neighbor >= len(siblings) {
		return nil
	}

	return t.store.SwapDisplayOrder(id, siblings[neighbor].ID)
}

// ======================================================================================
// Market
// ======================================================================================

// SearchCoins fans a search out to the providers. Queries shorter than
// two characters return nothing without touching the network.
func (t *Tracker) SearchCoins(ctx context.Context, query string) ([]domain.CoinMatch, bool) {
	if len(query) < 2 {
		return nil, false
	}
	return t.market.Search(ctx, query)
}

// RefreshAllPrices fetches market data for every distinct coin held
// anywhere and applies it to all holdings. All row updates commit in
// one transaction before the call returns, so a snapshot capture that
// follows in program order observes the refreshed values. Returns the
// number of updated holdings and the combined rate-limited flag.
//
// The call blocks on gated provider requests and can take several
// seconds; no storage lock is held across the network calls.
func (t *Tracker) RefreshAllPrices(ctx context.Context) (int, bool, error) {
	t.refreshMu.Lock()
	defer t.refreshMu.Unlock()

	holdings, err := t.store.ListAllHoldings()
	if err != nil {
		return 0, false, err
	}
	if len(holdings) == 0 {
		return 0, false, nil
	}

	ids := distinctCoinIDs(holdings)

	lookup := make(map[string]domain.MarketCoin, len(ids))
	rateLimited := false
	for start := 0; start < len(ids); start += t.batchSize {
		end := start + t.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		coins, rl := t.market.Markets(ctx, ids[start:end])
		rateLimited = rateLimited || rl
		for _, coin := range coins {
			lookup[coin.CoinID] = coin
		}
	}

	now := time.Now().UTC()
	updated := make([]domain.Holding, 0, len(holdings))
	for i := range holdings {
		coin, ok := lookup[holdings[i].CoinID]
		if !ok {
			continue
		}
		ApplyMarket(&holdings[i], coin, now)
		t.localizeIcon(&holdings[i])
		updated = append(updated, holdings[i])
	}

	if err := t.store.SaveHoldings(updated); err != nil {
		return 0, rateLimited, err
	}

	slog.Info("Price refresh completed",
		slog.Int("holdings", len(holdings)),
		slog.Int("updated", len(updated)),
		slog.Bool("rate_limited", rateLimited),
	)

	if len(updated) > 0 && t.onRefresh != nil {
		t.onRefresh(updated)
	}
	return len(updated), rateLimited, nil
}

// localizeIcon swaps a remote image URL for the cached local copy.
// Failures keep the remote URL; the icon cache is cosmetic.
func (t *Tracker) localizeIcon(h *domain.Holding) {
	if t.icons == nil || h.ImageURL == "" || strings.HasPrefix(h.ImageURL, "/icons/") {
		return
	}
	name, err := t.icons.Localize(h.CoinID, h.ImageURL)
	if err != nil {
		slog.Debug("Icon download failed", slog.String("coin", h.CoinID), slog.Any("error", err))
		return
	}
	h.ImageURL = "/icons/" + name
}

func distinctCoinIDs(holdings []domain.Holding) []string {
	seen := make(map[string]bool, len(holdings))
	ids := make([]string, 0, len(holdings))
	for _, h := range holdings {
		if h.CoinID == "" || seen[h.CoinID] {
			continue
		}
		seen[h.CoinID] = true
		ids = append(ids, h.CoinID)
	}
	return ids
}
