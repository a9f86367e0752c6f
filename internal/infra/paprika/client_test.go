package paprika

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
	return NewWithBaseURL(srv.URL, time.Millisecond)
}

func TestSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("q") != "bit" || q.Get("c") != "currencies" {
			t.Errorf("unexpected params: %v", q)
		}
		w.Write([]byte(`{"currencies": [
			{"id": "btc-bitcoin", "name": "Bitcoin", "symbol": "btc"}
		]}`))
	})

	matches, err := c.Search(context.Background(), "bit")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].CoinID != "btc-bitcoin" || matches[0].Symbol != "BTC" {
		t.Errorf("match = %+v", matches[0])
	}
	if matches[0].ImageURL != "https://static.coinpaprika.com/coin/btc-bitcoin/logo.png" {
		t.Errorf("logo url = %s", matches[0].ImageURL)
	}
}

func TestLookupPricesSkipsUnknownIDs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tickers/btc-bitcoin":
			w.Write([]byte(`{
				"id": "btc-bitcoin", "name": "Bitcoin", "symbol": "BTC",
				"quotes": {"USD": {"price": 60000.5, "percent_change_24h": -1.96}}
			}`))
		case "/tickers/bitcoin":
			// Slug id from another provider's namespace
			w.WriteHeader(http.StatusNotFound)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	quotes, err := c.LookupPrices(context.Background(), []string{"btc-bitcoin", "bitcoin"})
	if err != nil {
		t.Fatalf("LookupPrices failed: %v", err)
	}
	if len(quotes) != 1 {
		t.Fatalf("expected unknown id to be skipped, got %d quotes", len(quotes))
	}
	q := quotes["btc-bitcoin"]
	if q.PriceUSD == nil || !q.PriceUSD.Equal(decimal.NewFromFloat(60000.5)) {
		t.Errorf("price = %v", q.PriceUSD)
	}
}

func TestMarkets(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("quotes") != "USD" {
			t.Errorf("quotes param missing: %v", r.URL.Query())
		}
		w.Write([]byte(`{
			"id": "eth-ethereum", "name": "Ethereum", "symbol": "eth",
			"quotes": {"USD": {"price": 3000, "percent_change_24h": 0.5}}
		}`))
	})

	coins, err := c.Markets(context.Background(), []string{"eth-ethereum"})
	if err != nil {
		t.Fatalf("Markets failed: %v", err)
	}
	if len(coins) != 1 {
		t.Fatalf("expected 1 coin, got %d", len(coins))
	}
	if coins[0].Symbol != "ETH" {
		t.Errorf("symbol not uppercased: %s", coins[0].Symbol)
	}
	if coins[0].PriceUSD == nil || !coins[0].PriceUSD.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("price = %v", coins[0].PriceUSD)
	}
}

func TestRateLimitResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.LookupPrices(context.Background(), []string{"btc-bitcoin"})
	if !domain.IsRateLimited(err) {
		t.Errorf("expected rate limit error, got %v", err)
	}
}
