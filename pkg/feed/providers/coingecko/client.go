package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"chainfeed/pkg/feed"
)

const (
	defaultBaseURL     = "https://api.coingecko.com/api/v3"
	defaultHTTPTimeout = 10 * time.Second
	maxErrorBodyBytes  = 512
)

// Client wraps access to the CoinGecko REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a new Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the default API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithAPIKey sets the pro API key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// NewClient constructs a CoinGecko API client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

// MarketChartRange fetches daily price and volume points between from and to.
func (c *Client) MarketChartRange(ctx context.Context, coinID string, from, to time.Time) (*MarketChartResponse, error) {
	query := url.Values{}
	query.Set("vs_currency", "usd")
	query.Set("from", strconv.FormatInt(from.Unix(), 10))
	query.Set("to", strconv.FormatInt(to.Unix(), 10))
	endpoint := fmt.Sprintf("%s/coins/%s/market_chart/range?%s", c.baseURL, url.PathEscape(coinID), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("coingecko: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-pro-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coingecko: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coingecko: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &feed.ProviderError{
			Provider: feed.ProviderCoinGecko,
			Status:   resp.StatusCode,
			Body:     truncate(body, maxErrorBodyBytes),
			Class:    feed.ClassifyStatus(resp.StatusCode),
		}
	}

	var chart MarketChartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("coingecko: decode response: %w", err)
	}
	return &chart, nil
}

func truncate(body []byte, limit int) string {
	if len(body) > limit {
		body = body[:limit]
	}
	return string(body)
}
