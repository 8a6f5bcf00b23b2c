package dydx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/avelichka/ladderd/internal/domain"
)

// IndexerClient is a client for the dYdX indexer REST API, used for
// market discovery and metadata.
type IndexerClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewIndexerClient creates a client for the given base URL, e.g.
// "https://indexer.dydx.trade".
func NewIndexerClient(baseURL string) *IndexerClient {
	return &IndexerClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetPerpetualMarkets fetches all perpetual markets from the indexer.
func (c *IndexerClient) GetPerpetualMarkets(ctx context.Context) ([]domain.Market, error) {
	body, err := c.doGet(ctx, "/v4/perpetualMarkets", nil)
	if err != nil {
		return nil, fmt.Errorf("dydx/indexer: get perpetual markets: %w", err)
	}

	var resp PerpetualMarketsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("dydx/indexer: parse perpetual markets: %w", err)
	}

	markets := make([]domain.Market, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		markets = append(markets, m.ToDomainMarket())
	}
	sort.Slice(markets, func(i, j int) bool {
		return markets[i].Ticker < markets[j].Ticker
	})

	return markets, nil
}

// GetMarket fetches a single perpetual market by ticker.
func (c *IndexerClient) GetMarket(ctx context.Context, ticker string) (*domain.Market, error) {
	params := url.Values{}
	params.Set("ticker", ticker)

	body, err := c.doGet(ctx, "/v4/perpetualMarkets", params)
	if err != nil {
		return nil, fmt.Errorf("dydx/indexer: get market %s: %w", ticker, err)
	}

	var resp PerpetualMarketsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("dydx/indexer: parse market %s: %w", ticker, err)
	}

	m, ok := resp.Markets[ticker]
	if !ok {
		return nil, fmt.Errorf("dydx/indexer: market %s: %w", ticker, domain.ErrNotFound)
	}

	market := m.ToDomainMarket()
	return &market, nil
}

// ListActiveTickers returns the tickers of all markets currently open
// for trading, sorted.
func (c *IndexerClient) ListActiveTickers(ctx context.Context) ([]string, error) {
	markets, err := c.GetPerpetualMarkets(ctx)
	if err != nil {
		return nil, err
	}

	tickers := make([]string, 0, len(markets))
	for _, m := range markets {
		if m.Status == domain.MarketStatusActive {
			tickers = append(tickers, m.Ticker)
		}
	}

	return tickers, nil
}

// doGet performs a GET request against the indexer and returns the
// response body.
func (c *IndexerClient) doGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkHTTPStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return body, nil
}

// checkHTTPStatus maps non-2xx responses to errors.
func checkHTTPStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, string(body))
	}

	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
}
