package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PriceFetcher resolves the latest price for a set of tickers.
type PriceFetcher interface {
	FetchPrices(ctx context.Context, tickers []string) (map[string]decimal.Decimal, error)
}

// QuoteClient calls the external price-quote service.
type QuoteClient struct {
	baseURL    string
	apiKey     string
	keyHeader  string
	httpClient *http.Client
}

var _ PriceFetcher = (*QuoteClient)(nil)

// NewQuoteClient creates a quote client. A zero timeout leaves the client without one.
func NewQuoteClient(baseURL, apiKey, keyHeader string, timeout time.Duration) *QuoteClient {
	return &QuoteClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		keyHeader:  keyHeader,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchPrices requests prices for tickers in one call.
// Any non-200 answer is an error; the body of a 200 answer maps ticker to price.
func (c *QuoteClient) FetchPrices(ctx context.Context, tickers []string) (map[string]decimal.Decimal, error) {
	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid quote url: %w", err)
	}
	query := endpoint.Query()
	query.Set("tickers", strings.Join(tickers, ","))
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.keyHeader != "" {
		req.Header.Set(c.keyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("quote API error (status %d): %s", resp.StatusCode, string(body))
	}

	var prices map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&prices); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if prices == nil {
		prices = map[string]decimal.Decimal{}
	}
	return prices, nil
}
