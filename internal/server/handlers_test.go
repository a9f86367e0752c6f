package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"coinfolio/internal/domain"
	"coinfolio/internal/infra/storage"
	"coinfolio/internal/service"

	"github.com/shopspring/decimal"
)

type fakeMarket struct {
	matches     []domain.CoinMatch
	quotes      map[string]domain.Quote
	coins       []domain.MarketCoin
	rateLimited bool
}

func (f *fakeMarket) Search(context.Context, string) ([]domain.CoinMatch, bool) {
	return f.matches, f.rateLimited
}

func (f *fakeMarket) LookupPrices(context.Context, []string) (map[string]domain.Quote, bool) {
	return f.quotes, f.rateLimited
}

func (f *fakeMarket) Markets(context.Context, []string) ([]domain.MarketCoin, bool) {
	return f.coins, f.rateLimited
}

func newTestServer(t *testing.T, market service.MarketSource) (*Server, *storage.Storage) {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	tracker := service.NewTracker(store, market, nil, 50)
	srv := New(Config{
		Port:      0,
		Tracker:   tracker,
		Snapshots: service.NewSnapshots(store),
	})
	return srv, store
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &fakeMarket{})
	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestPortfolioLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, &fakeMarket{})

	// Create
	rec := doJSON(t, srv, http.MethodPost, "/api/portfolios", map[string]string{"name": "Main"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}
	var created domain.Portfolio
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	// Read back as a view
	rec = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/portfolios/%d", created.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var view struct {
		Name       string          `json:"name"`
		Holdings   []any           `json:"holdings"`
		TotalValue decimal.Decimal `json:"total_value"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Name != "Main" || len(view.Holdings) != 0 {
		t.Errorf("view = %+v", view)
	}

	// Rename
	rec = doJSON(t, srv, http.MethodPut, fmt.Sprintf("/api/portfolios/%d", created.ID), map[string]string{"name": "Renamed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d", rec.Code)
	}

	// Delete
	rec = doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/portfolios/%d", created.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/portfolios/%d", created.ID), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestAddHoldingEndpoint(t *testing.T) {
	market := &fakeMarket{quotes: map[string]domain.Quote{
		"bitcoin": {PriceUSD: decPtr("60000")},
	}}
	srv, store := newTestServer(t, market)
	pid := seedPortfolio(t, store)

	rec := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/portfolios/%d/holdings", pid), map[string]any{
		"coin_id": "bitcoin",
		"symbol":  "BTC",
		"amount":  "0.5",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp struct {
		Success bool           `json:"success"`
		Holding domain.Holding `json:"holding"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success")
	}
	if resp.Holding.CurrentPrice == nil || !resp.Holding.CurrentPrice.Equal(decimal.NewFromInt(60000)) {
		t.Errorf("initial quote missing: %+v", resp.Holding)
	}

	// Validation surfaces as 400
	rec = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/portfolios/%d/holdings", pid), map[string]any{
		"amount": "1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing coin_id: status = %d", rec.Code)
	}
}

func TestSearchRateLimited(t *testing.T) {
	srv, _ := newTestServer(t, &fakeMarket{rateLimited: true})

	rec := doJSON(t, srv, http.MethodGet, "/api/coins/search?q=bitcoin", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["rate_limited"] != true {
		t.Errorf("body = %v", resp)
	}
}

func TestSearchShortQuery(t *testing.T) {
	srv, _ := newTestServer(t, &fakeMarket{rateLimited: true})

	// Short queries never reach the providers, so no 429 here
	rec := doJSON(t, srv, http.MethodGet, "/api/coins/search?q=b", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("body = %s, want []", rec.Body)
	}
}

func TestSnapshotCaptureAndCompare(t *testing.T) {
	market := &fakeMarket{coins: []domain.MarketCoin{
		{CoinID: "bitcoin", PriceUSD: decPtr("60000")},
	}}
	srv, store := newTestServer(t, market)
	pid := seedPortfolio(t, store)

	h := &domain.Holding{PortfolioID: pid, CoinID: "bitcoin", Amount: decimal.NewFromInt(1)}
	if err := store.CreateHolding(h); err != nil {
		t.Fatalf("CreateHolding failed: %v", err)
	}

	rec := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/portfolios/%d/snapshot", pid), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("capture status = %d, body %s", rec.Code, rec.Body)
	}
	var capResp struct {
		Snapshot struct {
			ID           uint                     `json:"id"`
			TotalValue   decimal.Decimal          `json:"total_value"`
			IsManual     bool                     `json:"is_manual"`
			HoldingsData []domain.HoldingSnapshot `json:"holdings_data"`
		} `json:"snapshot"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &capResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !capResp.Snapshot.TotalValue.Equal(decimal.NewFromInt(60000)) {
		t.Errorf("total = %s, refresh-then-capture expected 60000", capResp.Snapshot.TotalValue)
	}
	if !capResp.Snapshot.IsManual {
		t.Error("endpoint captures are manual")
	}
	if len(capResp.Snapshot.HoldingsData) != 1 {
		t.Errorf("holdings payload = %+v", capResp.Snapshot.HoldingsData)
	}

	// Comparing a single snapshot is a usage error
	rec = doJSON(t, srv, http.MethodPost, "/api/compare-snapshots", map[string]any{
		"snapshot_ids": []uint{capResp.Snapshot.ID},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("compare status = %d, want 400", rec.Code)
	}
}

func TestExportPortfolio(t *testing.T) {
	srv, store := newTestServer(t, &fakeMarket{})
	pid := seedPortfolio(t, store)

	rec := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/export/portfolio/%d", pid), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/csv" {
		t.Errorf("content type = %q", got)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(got, "attachment; filename=portfolio_") {
		t.Errorf("content disposition = %q", got)
	}
	if !strings.Contains(rec.Body.String(), "Portfolio:") {
		t.Errorf("unexpected body: %s", rec.Body)
	}
}

func TestRefreshPricesRateLimited(t *testing.T) {
	srv, store := newTestServer(t, &fakeMarket{rateLimited: true})
	pid := seedPortfolio(t, store)

	h := &domain.Holding{PortfolioID: pid, CoinID: "bitcoin", Amount: decimal.NewFromInt(1)}
	if err := store.CreateHolding(h); err != nil {
		t.Fatalf("CreateHolding failed: %v", err)
	}

	rec := doJSON(t, srv, http.MethodPost, "/api/refresh-prices", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429, body %s", rec.Code, rec.Body)
	}
}

func seedPortfolio(t *testing.T, store *storage.Storage) uint {
	t.Helper()
	p := &domain.Portfolio{Name: "Test"}
	if err := store.CreatePortfolio(p); err != nil {
		t.Fatalf("CreatePortfolio failed: %v", err)
	}
	return p.ID
}

func decPtr(s string) *decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return &d
}
