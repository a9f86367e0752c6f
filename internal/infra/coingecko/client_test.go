package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"coinfolio/internal/domain"

	"github.com/shopspring/decimal"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewWithBaseURL("", srv.URL, time.Millisecond)
}

func TestSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("query"); got != "bit" {
			t.Errorf("query = %q, want bit", got)
		}
		w.Write([]byte(`{"coins": [
			{"id": "bitcoin", "symbol": "btc", "name": "Bitcoin", "large": "https://img/large.png", "thumb": "https://img/thumb.png"},
			{"id": "bitcoin-cash", "symbol": "bch", "name": "Bitcoin Cash", "thumb": "https://img/bch.png"}
		]}`))
	})

	matches, err := c.Search(context.Background(), "bit")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Symbol != "BTC" {
		t.Errorf("symbol not uppercased: %s", matches[0].Symbol)
	}
	if matches[0].ImageURL != "https://img/large.png" {
		t.Errorf("large image preferred, got %s", matches[0].ImageURL)
	}
	if matches[1].ImageURL != "https://img/bch.png" {
		t.Errorf("thumb fallback, got %s", matches[1].ImageURL)
	}
}

func TestLookupPrices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/simple/price" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("ids"); got != "bitcoin,ethereum" {
			t.Errorf("ids = %q", got)
		}
		w.Write([]byte(`{
			"bitcoin": {"usd": 60000.5, "usd_24h_change": -1.25},
			"ethereum": {"usd": 3000}
		}`))
	})

	quotes, err := c.LookupPrices(context.Background(), []string{"bitcoin", "ethereum"})
	if err != nil {
		t.Fatalf("LookupPrices failed: %v", err)
	}
	btc := quotes["bitcoin"]
	if btc.PriceUSD == nil || !btc.PriceUSD.Equal(decimal.NewFromFloat(60000.5)) {
		t.Errorf("btc price = %v", btc.PriceUSD)
	}
	if btc.ChangePct24h == nil || !btc.ChangePct24h.Equal(decimal.NewFromFloat(-1.25)) {
		t.Errorf("btc change = %v", btc.ChangePct24h)
	}
	if quotes["ethereum"].ChangePct24h != nil {
		t.Errorf("missing change must stay nil, got %v", quotes["ethereum"].ChangePct24h)
	}
}

func TestMarkets(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/markets" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("vs_currency") != "usd" || q.Get("price_change_percentage") != "24h" {
			t.Errorf("unexpected params: %v", q)
		}
		w.Write([]byte(`[{
			"id": "bitcoin", "symbol": "btc", "name": "Bitcoin",
			"current_price": 60000, "price_change_24h": -1200,
			"price_change_percentage_24h": -1.96,
			"image": "https://img/btc.png"
		}]`))
	})

	coins, err := c.Markets(context.Background(), []string{"bitcoin"})
	if err != nil {
		t.Fatalf("Markets failed: %v", err)
	}
	if len(coins) != 1 {
		t.Fatalf("expected 1 coin, got %d", len(coins))
	}
	coin := coins[0]
	if coin.CoinID != "bitcoin" || coin.Symbol != "BTC" {
		t.Errorf("identity fields: %+v", coin)
	}
	if coin.Change24h == nil || !coin.Change24h.Equal(decimal.NewFromInt(-1200)) {
		t.Errorf("change 24h = %v", coin.Change24h)
	}
	if coin.ImageURL != "https://img/btc.png" {
		t.Errorf("image = %s", coin.ImageURL)
	}
}

func TestRateLimitResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Search(context.Background(), "bit")
	if !domain.IsRateLimited(err) {
		t.Errorf("expected rate limit error, got %v", err)
	}
}

func TestAPIKeyHeader(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-cg-demo-api-key")
		w.Write([]byte(`{"coins": []}`))
	}))
	defer srv.Close()

	c := NewWithBaseURL("demo-key", srv.URL, time.Millisecond)
	if _, err := c.Search(context.Background(), "bit"); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if gotKey != "demo-key" {
		t.Errorf("api key header = %q, want demo-key", gotKey)
	}
}

func TestEmptyIDs(t *testing.T) {
	c := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Error("no request expected for empty ids")
	})

	quotes, err := c.LookupPrices(context.Background(), nil)
	if err != nil || len(quotes) != 0 {
		t.Errorf("LookupPrices(nil) = %v, %v", quotes, err)
	}
	coins, err := c.Markets(context.Background(), nil)
	if err != nil || coins != nil {
		t.Errorf("Markets(nil) = %v, %v", coins, err)
	}
}
