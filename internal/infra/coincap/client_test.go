package coincap

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

func TestLookupPricesStringDecimals(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/assets" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("ids"); got != "bitcoin" {
			t.Errorf("ids = %q", got)
		}
		w.Write([]byte(`{"data": [{
			"id": "bitcoin", "symbol": "BTC", "name": "Bitcoin",
			"priceUsd": "60000.1234567890123456",
			"changePercent24Hr": "-1.9600000000000000"
		}]}`))
	})

	quotes, err := c.LookupPrices(context.Background(), []string{"bitcoin"})
	if err != nil {
		t.Fatalf("LookupPrices failed: %v", err)
	}
	q := quotes["bitcoin"]
	want, _ := decimal.NewFromString("60000.1234567890123456")
	if q.PriceUSD == nil || !q.PriceUSD.Equal(want) {
		t.Errorf("price lost precision: %v", q.PriceUSD)
	}
	if q.ImageURL != "https://assets.coincap.io/assets/icons/btc@2x.png" {
		t.Errorf("icon url = %s", q.ImageURL)
	}
}

func TestSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("search") != "bit" || q.Get("limit") != "20" {
			t.Errorf("unexpected params: %v", q)
		}
		w.Write([]byte(`{"data": [
			{"id": "bitcoin", "symbol": "BTC", "name": "Bitcoin", "priceUsd": "60000"}
		]}`))
	})

	matches, err := c.Search(context.Background(), "bit")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 1 || matches[0].CoinID != "bitcoin" {
		t.Fatalf("matches = %+v", matches)
	}
}

func TestMarketsLeavesAbsoluteChangeNil(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"data": [{
			"id": "bitcoin", "symbol": "BTC", "name": "Bitcoin",
			"priceUsd": "60000", "changePercent24Hr": "2.5"
		}]}`))
	})

	coins, err := c.Markets(context.Background(), []string{"bitcoin"})
	if err != nil {
		t.Fatalf("Markets failed: %v", err)
	}
	if coins[0].Change24h != nil {
		t.Errorf("coincap reports no absolute change, got %v", coins[0].Change24h)
	}
	if coins[0].ChangePct24h == nil || !coins[0].ChangePct24h.Equal(decimal.NewFromFloat(2.5)) {
		t.Errorf("percent change = %v", coins[0].ChangePct24h)
	}
}

func TestUnparsableNumbersSkipped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"data": [{
			"id": "weird", "symbol": "W", "name": "Weird",
			"priceUsd": "", "changePercent24Hr": "not-a-number"
		}]}`))
	})

	quotes, err := c.LookupPrices(context.Background(), []string{"weird"})
	if err != nil {
		t.Fatalf("LookupPrices failed: %v", err)
	}
	q := quotes["weird"]
	if q.PriceUSD != nil || q.ChangePct24h != nil {
		t.Errorf("bad numbers must decode to nil: %+v", q)
	}
}

func TestRateLimitResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Markets(context.Background(), []string{"bitcoin"})
	if !domain.IsRateLimited(err) {
		t.Errorf("expected rate limit error, got %v", err)
	}
}
