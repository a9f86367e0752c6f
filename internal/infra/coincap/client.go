// Package coincap wraps the public CoinCap REST API v2. CoinCap shares
// CoinGecko's slug-style asset ids for most major coins, which makes
// it a usable fallback without an id translation table.
package coincap

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
	defaultBaseURL     = "https://api.coincap.io/v2"
	minRequestInterval = 1000 * time.Millisecond
	maxSearchResults   = 20
)

// Client is a rate-limit-gated CoinCap API client.
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
func (c *Client) Name() string { return "coincap" }

// asset is the CoinCap wire shape. All numbers arrive as strings.
type asset struct {
	ID                string `json:"id"`
	Symbol            string `json:"symbol"`
	Name              string `json:"name"`
	PriceUSD          string `json:"priceUsd"`
	ChangePercent24Hr string `json:"changePercent24Hr"`
}

type assetsResponse struct {
	Data []asset `json:"data"`
}

func (c *Client) getAssets(ctx context.Context, params url.Values) ([]asset, error) {
	if err := c.gate.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/assets"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", infra.DefaultUserAgent)
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &domain.RateLimitError{Provider: c.Name()}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coincap: unexpected status %d", resp.StatusCode)
	}

	var body assetsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// Search implements domain.MarketProvider.
func (c *Client) Search(ctx context.Context, query string) ([]domain.CoinMatch, error) {
	params := url.Values{
		"search": {query},
		"limit":  {fmt.Sprintf("%d", maxSearchResults)},
	}

	assets, err := c.getAssets(ctx, params)
	if err != nil {
		return nil, err
	}

	matches := make([]domain.CoinMatch, 0, len(assets))
	for _, a := range assets {
		matches = append(matches, domain.CoinMatch{
			CoinID:   a.ID,
			Symbol:   strings.ToUpper(a.Symbol),
			Name:     a.Name,
			ImageURL: iconURL(a.Symbol),
		})
	}
	return matches, nil
}

// LookupPrices implements domain.MarketProvider.
func (c *Client) LookupPrices(ctx context.Context, ids []string) (map[string]domain.Quote, error) {
	if len(ids) == 0 {
		return map[string]domain.Quote{}, nil
	}

	assets, err := c.getAssets(ctx, url.Values{"ids": {strings.Join(ids, ",")}})
	if err != nil {
		return nil, err
	}

	quotes := make(map[string]domain.Quote, len(assets))
	for _, a := range assets {
		quotes[a.ID] = domain.Quote{
			PriceUSD:     parseDec(a.PriceUSD),
			ChangePct24h: parseDec(a.ChangePercent24Hr),
			ImageURL:     iconURL(a.Symbol),
		}
	}
	return quotes, nil
}

// Markets implements domain.MarketProvider. CoinCap does not report
// the absolute 24h change, so Change24h stays nil.
func (c *Client) Markets(ctx context.Context, ids []string) ([]domain.MarketCoin, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	assets, err := c.getAssets(ctx, url.Values{"ids": {strings.Join(ids, ",")}})
	if err != nil {
		return nil, err
	}

	coins := make([]domain.MarketCoin, 0, len(assets))
	for _, a := range assets {
		coins = append(coins, domain.MarketCoin{
			CoinID:       a.ID,
			Symbol:       strings.ToUpper(a.Symbol),
			Name:         a.Name,
			PriceUSD:     parseDec(a.PriceUSD),
			ChangePct24h: parseDec(a.ChangePercent24Hr),
			ImageURL:     iconURL(a.Symbol),
		})
	}
	return coins, nil
}

func parseDec(s string) *decimal.Decimal {
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

func iconURL(symbol string) string {
	if symbol == "" {
		return ""
	}
	return fmt.Sprintf("https://assets.coincap.io/assets/icons/%s@2x.png", strings.ToLower(symbol))
}
