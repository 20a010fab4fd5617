package geckoterminal

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
	defaultBaseURL     = "https://api.geckoterminal.com/api/v2"
	defaultHTTPTimeout = 10 * time.Second
	apiVersionHeader   = "application/json;version=20230302"
	maxErrorBodyBytes  = 512
)

// ohlcvResponse mirrors the pool OHLCV endpoint. Each list entry is
// [timestamp_s, open, high, low, close, volume_usd].
type ohlcvResponse struct {
	Data struct {
		Attributes struct {
			OhlcvList [][]float64 `json:"ohlcv_list"`
		} `json:"attributes"`
	} `json:"data"`
}

// Client wraps access to the GeckoTerminal REST API.
type Client struct {
	baseURL    string
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

// NewClient constructs a GeckoTerminal API client.
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

// DailyOHLCV fetches up to limit daily candles for a pool, ending strictly
// before the given boundary when it is non-zero.
func (c *Client) DailyOHLCV(ctx context.Context, network, pool string, before time.Time, limit int) ([][]float64, error) {
	query := url.Values{}
	query.Set("aggregate", "1")
	query.Set("limit", strconv.Itoa(limit))
	query.Set("currency", "usd")
	if !before.IsZero() {
		query.Set("before_timestamp", strconv.FormatInt(before.Unix(), 10))
	}
	endpoint := fmt.Sprintf("%s/networks/%s/pools/%s/ohlcv/day?%s",
		c.baseURL, url.PathEscape(network), url.PathEscape(pool), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("geckoterminal: build request: %w", err)
	}
	req.Header.Set("Accept", apiVersionHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geckoterminal: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("geckoterminal: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody := body
		if len(errBody) > maxErrorBodyBytes {
			errBody = errBody[:maxErrorBodyBytes]
		}
		return nil, &feed.ProviderError{
			Provider: feed.ProviderGeckoTerminal,
			Status:   resp.StatusCode,
			Body:     string(errBody),
			Class:    feed.ClassifyStatus(resp.StatusCode),
		}
	}

	var parsed ohlcvResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("geckoterminal: decode response: %w", err)
	}
	return parsed.Data.Attributes.OhlcvList, nil
}
