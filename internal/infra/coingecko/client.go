// Package coingecko wraps the public CoinGecko REST API v3.
//
// CoinGecko is the primary provider: it is the only one that reports
// the absolute 24h change and coin images in its markets endpoint, but
// its free tier is the most aggressively rate limited, hence the 2.5s
// request spacing.
package coingecko

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
	defaultBaseURL     = "https://api.coingecko.com/api/v3"
	minRequestInterval = 2500 * time.Millisecond
	maxSearchResults   = 20
)

// Client is a rate-limit-gated CoinGecko API client.
type Client struct {
	baseURL    string
	apiKey     string
	gate       *infra.RequestGate
	httpClient *http.Client
}

// New creates a client for the public API. The API key is optional;
// when set it is sent as the demo key header.
func New(apiKey string) *Client {
	return NewWithBaseURL(apiKey, defaultBaseURL, minRequestInterval)
}

// NewWithBaseURL creates a client against a custom endpoint, used for
// configuration overrides and tests.
func NewWithBaseURL(apiKey, baseURL string, minInterval time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		gate:    infra.NewRequestGate(minInterval),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name implements domain.MarketProvider.
func (c *Client) Name() string { return "coingecko" }

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.gate.Wait(ctx); err != nil {
		return err
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", infra.DefaultUserAgent)
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &domain.RateLimitError{Provider: c.Name()}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coingecko: unexpected status %d for %s", resp.StatusCode, path)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

type searchResponse struct {
	Coins []struct {
		ID     string `json:"id"`
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
		Large  string `json:"large"`
		Thumb  string `json:"thumb"`
	} `json:"coins"`
}

// Search implements domain.MarketProvider.
func (c *Client) Search(ctx context.Context, query string) ([]domain.CoinMatch, error) {
	params := url.Values{"query": {query}}

	var body searchResponse
	if err := c.get(ctx, "/search", params, &body); err != nil {
		return nil, err
	}

	matches := make([]domain.CoinMatch, 0, len(body.Coins))
	for _, coin := range body.Coins {
		if len(matches) >= maxSearchResults {
			break
		}
		image := coin.Large
		if image == "" {
			image = coin.Thumb
		}
		matches = append(matches, domain.CoinMatch{
			CoinID:   coin.ID,
			Symbol:   strings.ToUpper(coin.Symbol),
			Name:     coin.Name,
			ImageURL: image,
		})
	}
	return matches, nil
}

type simplePrice struct {
	USD          *float64 `json:"usd"`
	USD24hChange *float64 `json:"usd_24h_change"`
}

// LookupPrices implements domain.MarketProvider. Ids unknown to
// CoinGecko are absent from the result map.
func (c *Client) LookupPrices(ctx context.Context, ids []string) (map[string]domain.Quote, error) {
	if len(ids) == 0 {
		return map[string]domain.Quote{}, nil
	}

	params := url.Values{
		"ids":                 {strings.Join(ids, ",")},
		"vs_currencies":       {"usd"},
		"include_24hr_change": {"true"},
	}

	body := map[string]simplePrice{}
	if err := c.get(ctx, "/simple/price", params, &body); err != nil {
		return nil, err
	}

	quotes := make(map[string]domain.Quote, len(body))
	for id, p := range body {
		quotes[id] = domain.Quote{
			PriceUSD:     decFromFloat(p.USD),
			ChangePct24h: decFromFloat(p.USD24hChange),
		}
	}
	return quotes, nil
}

type marketRow struct {
	ID                       string   `json:"id"`
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	CurrentPrice             *float64 `json:"current_price"`
	PriceChange24h           *float64 `json:"price_change_24h"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
	Image                    string   `json:"image"`
}

// Markets implements domain.MarketProvider.
func (c *Client) Markets(ctx context.Context, ids []string) ([]domain.MarketCoin, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	params := url.Values{
		"vs_currency":             {"usd"},
		"ids":                     {strings.Join(ids, ",")},
		"order":                   {"market_cap_desc"},
		"per_page":                {"250"},
		"page":                    {"1"},
		"sparkline":               {"false"},
		"price_change_percentage": {"24h"},
	}

	var rows []marketRow
	if err := c.get(ctx, "/coins/markets", params, &rows); err != nil {
		return nil, err
	}

	coins := make([]domain.MarketCoin, 0, len(rows))
	for _, row := range rows {
		coins = append(coins, domain.MarketCoin{
			CoinID:       row.ID,
			Symbol:       strings.ToUpper(row.Symbol),
			Name:         row.Name,
			PriceUSD:     decFromFloat(row.CurrentPrice),
			Change24h:    decFromFloat(row.PriceChange24h),
			ChangePct24h: decFromFloat(row.PriceChangePercentage24h),
			ImageURL:     row.Image,
		})
	}
	return coins, nil
}

func decFromFloat(f *float64) *decimal.Decimal {
	if f == nil {
		return nil
	}
	d := decimal.NewFromFloat(*f)
	return &d
}
