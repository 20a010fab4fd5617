package cryptocompare

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
	defaultBaseURL     = "https://min-api.cryptocompare.com"
	defaultHTTPTimeout = 10 * time.Second
	maxErrorBodyBytes  = 512
)

// HistodayCandle is one daily bar from /data/v2/histoday.
type HistodayCandle struct {
	Time     int64   `json:"time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	VolumeTo float64 `json:"volumeto"` // volume in the quote currency (USD)
}

// HistodayData carries the page body plus the range it covers.
type HistodayData struct {
	TimeFrom int64            `json:"TimeFrom"`
	TimeTo   int64            `json:"TimeTo"`
	Data     []HistodayCandle `json:"Data"`
}

// HistodayResponse is the envelope every CryptoCompare response uses.
type HistodayResponse struct {
	Response string       `json:"Response"`
	Message  string       `json:"Message"`
	Data     HistodayData `json:"Data"`
}

// Client wraps access to the CryptoCompare REST API.
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

// WithAPIKey sets the Apikey authorization header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// NewClient constructs a CryptoCompare API client.
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

// Histoday fetches up to limit daily bars ending at toTs (or "now" when toTs
// is zero).
func (c *Client) Histoday(ctx context.Context, symbol string, toTs int64, limit int) (*HistodayData, error) {
	query := url.Values{}
	query.Set("fsym", symbol)
	query.Set("tsym", "USD")
	query.Set("limit", strconv.Itoa(limit))
	if toTs > 0 {
		query.Set("toTs", strconv.FormatInt(toTs, 10))
	}
	endpoint := fmt.Sprintf("%s/data/v2/histoday?%s", c.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("cryptocompare: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Apikey "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cryptocompare: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cryptocompare: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody := body
		if len(errBody) > maxErrorBodyBytes {
			errBody = errBody[:maxErrorBodyBytes]
		}
		return nil, &feed.ProviderError{
			Provider: feed.ProviderCryptoCompare,
			Status:   resp.StatusCode,
			Body:     string(errBody),
			Class:    feed.ClassifyStatus(resp.StatusCode),
		}
	}

	var parsed HistodayResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("cryptocompare: decode response: %w", err)
	}
	// The API reports application errors inside a 200 envelope.
	if parsed.Response == "Error" {
		return nil, &feed.ProviderError{
			Provider: feed.ProviderCryptoCompare,
			Status:   resp.StatusCode,
			Body:     parsed.Message,
			Class:    feed.ClassFatal,
		}
	}
	return &parsed.Data, nil
}
