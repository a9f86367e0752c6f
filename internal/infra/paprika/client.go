// Package paprika wraps the public CoinPaprika REST API v1, the
// tertiary provider. Paprika uses its own id namespace
// ("btc-bitcoin"), so lookups with slug ids from another provider
// usually come back empty; the orchestrator treats that as "not
// indexed here" and moves on.
package paprika

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"coinfolio/internal/domain"
	"coinfolio/internal/infra"

	"github.com/shopspring/decimal"
)

const (
	defaultBaseURL     = "https://api.coinpaprika.com/v1"
	minRequestInterval = 500 * time.Millisecond
	maxSearchResults   = 20
)

// Client is a rate-limit-gated CoinPaprika API client.
type Client struct {
	baseURL    string
	gate       *infra.RequestGate
	httpClient *http.Client
}

// New creates a client for the public API.
func New() *Client {
	return NewWithBaseURL(defaultBaseURL, minRequestInterval)
}

// NewWithBaseURL creates a client against a custom endpoint.
func NewWithBaseURL(baseURL string, minInterval time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		gate:    infra.NewRequestGate(minInterval),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name implements domain.MarketProvider.
func (c *Client) Name() string { return "coinpaprika" }

// get performs one gated request. It reports found=false for 404 so
// per-id lookups can skip unknown ids without failing the batch.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) (found bool, err error) {
	if err := c.gate.Wait(ctx); err != nil {
		return false, err
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("User-Agent", infra.DefaultUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return false, nil
	case http.StatusTooManyRequests:
		return false, &domain.RateLimitError{Provider: c.Name()}
	default:
		return false, fmt.Errorf("coinpaprika: unexpected status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, err
	}
	return true, nil
}

type searchResponse struct {
	Currencies []struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Symbol string `json:"symbol"`
	} `json:"currencies"`
}

// Search implements domain.MarketProvider.
func (c *Client) Search(ctx context.Context, query string) ([]domain.CoinMatch, error) {
	params := url.Values{
		"q":     {query},
		"c":     {"currencies"},
		"limit": {fmt.Sprintf("%d", maxSearchResults)},
	}

	var body searchResponse
	if _, err := c.get(ctx, "/search", params, &body); err != nil {
		return nil, err
	}

	matches := make([]domain.CoinMatch, 0, len(body.Currencies))
	for _, cur := range body.Currencies {
		matches = append(matches, domain.CoinMatch{
			CoinID:   cur.ID,
			Symbol:   strings.ToUpper(cur.Symbol),
			Name:     cur.Name,
			ImageURL: fmt.Sprintf("https://static.coinpaprika.com/coin/%s/logo.png", cur.ID),
		})
	}
	return matches, nil
}

type tickerResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Quotes map[string]struct {
		Price           float64 `json:"price"`
		PercentChange24 float64 `json:"percent_change_24h"`
	} `json:"quotes"`
}

// ticker fetches a single coin's USD quote; found=false for ids
// Paprika does not index.
func (c *Client) ticker(ctx context.Context, id string) (*tickerResponse, bool, error) {
	var body tickerResponse
	found, err := c.get(ctx, "/tickers/"+url.PathEscape(id), url.Values{"quotes": {"USD"}}, &body)
	if err != nil || !found {
		return nil, false, err
	}
	return &body, true, nil
}

// LookupPrices implements domain.MarketProvider. Paprika has no batch
// ticker filter, so ids are fetched one by one through the gate.
func (c *Client) LookupPrices(ctx context.Context, ids []string) (map[string]domain.Quote, error) {
	quotes := make(map[string]domain.Quote, len(ids))
	for _, id := range ids {
		t, found, err := c.ticker(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		usd, ok := t.Quotes["USD"]
		if !ok {
			continue
		}
		price := decimal.NewFromFloat(usd.Price)
		pct := decimal.NewFromFloat(usd.PercentChange24)
		quotes[id] = domain.Quote{
			PriceUSD:     &price,
			ChangePct24h: &pct,
		}
	}
	return quotes, nil
}

// Markets implements domain.MarketProvider.
func (c *Client) Markets(ctx context.Context, ids []string) ([]domain.MarketCoin, error) {
	coins := make([]domain.MarketCoin, 0, len(ids))
	for _, id := range ids {
		t, found, err := c.ticker(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		usd, ok := t.Quotes["USD"]
		if !ok {
			continue
		}
		price := decimal.NewFromFloat(usd.Price)
		pct := decimal.NewFromFloat(usd.PercentChange24)
		coins = append(coins, domain.MarketCoin{
			CoinID:       t.ID,
			Symbol:       strings.ToUpper(t.Symbol),
			Name:         t.Name,
			PriceUSD:     &price,
			ChangePct24h: &pct,
			ImageURL:     fmt.Sprintf("https://static.coinpaprika.com/coin/%s/logo.png", t.ID),
		})
	}
	return coins, nil
}
