package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"chainfeed/pkg/feed"
)

const (
	defaultBaseURL     = "https://api.dexscreener.com/latest/dex"
	defaultHTTPTimeout = 10 * time.Second
	maxErrorBodyBytes  = 512
)

// tokenJSON is one side of a pair in the DexScreener schema.
type tokenJSON struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
}

// pairJSON is one pair/venue candidate. priceUsd arrives as a string.
type pairJSON struct {
	ChainID     string             `json:"chainId"`
	PairAddress string             `json:"pairAddress"`
	BaseToken   tokenJSON          `json:"baseToken"`
	QuoteToken  tokenJSON          `json:"quoteToken"`
	PriceUSD    string             `json:"priceUsd"`
	Volume      map[string]float64 `json:"volume"` // keys: m5, h1, h6, h24
}

// pairsResponse covers both the token endpoint (pairs) and the single-pair
// endpoint (pair).
type pairsResponse struct {
	Pairs []pairJSON `json:"pairs"`
	Pair  *pairJSON  `json:"pair"`
}

// Source queries DexScreener for the asset's pair candidates, trying the
// token endpoint first and the configured pair endpoint as a fallback. It
// feeds the hourly path's canonical quote selector.
type Source struct {
	name       string
	endpoints  []string
	httpClient *http.Client
}

// NewSource builds a quote source over an ordered endpoint list.
func NewSource(name string, endpoints []string, httpClient *http.Client) *Source {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Source{name: name, endpoints: endpoints, httpClient: httpClient}
}

func init() {
	feed.RegisterQuoteSource(feed.ProviderDexScreener, func(name string, cfg *feed.ProviderConfig, token feed.TokenConfig) (feed.QuoteSource, error) {
		if token.Address == "" {
			return nil, fmt.Errorf("dexscreener: token.address is required")
		}
		base := cfg.BaseURL
		if base == "" {
			base = defaultBaseURL
		}
		endpoints := []string{fmt.Sprintf("%s/tokens/%s", base, token.Address)}
		if token.Network != "" && token.PairAddress != "" {
			endpoints = append(endpoints, fmt.Sprintf("%s/pairs/%s/%s", base, token.Network, token.PairAddress))
		}
		endpoints = append(endpoints, cfg.FallbackURLs...)

		var hc *http.Client
		if cfg.HTTPTimeout > 0 {
			hc = &http.Client{Timeout: cfg.HTTPTimeout}
		}
		return NewSource(name, endpoints, hc), nil
	})
}

// Name implements feed.QuoteSource.
func (s *Source) Name() string { return s.name }

// FetchQuotes implements feed.QuoteSource. Endpoints are tried in order; the
// first one yielding candidates wins. When every endpoint fails the last
// error surfaces; when they all answer but none carries pairs, an empty slice
// is returned and the selector reports the missing quote.
func (s *Source) FetchQuotes(ctx context.Context) ([]feed.PairQuote, error) {
	var lastErr error
	answered := false
	for _, endpoint := range s.endpoints {
		quotes, err := s.fetch(ctx, endpoint)
		if err != nil {
			lastErr = err
			logx.WithContext(ctx).Errorf("dexscreener: endpoint %s failed: %v", endpoint, err)
			continue
		}
		answered = true
		if len(quotes) > 0 {
			return quotes, nil
		}
	}
	if !answered && lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

func (s *Source) fetch(ctx context.Context, endpoint string) ([]feed.PairQuote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dexscreener: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dexscreener: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dexscreener: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody := body
		if len(errBody) > maxErrorBodyBytes {
			errBody = errBody[:maxErrorBodyBytes]
		}
		return nil, &feed.ProviderError{
			Provider: feed.ProviderDexScreener,
			Status:   resp.StatusCode,
			Body:     string(errBody),
			Class:    feed.ClassifyStatus(resp.StatusCode),
		}
	}

	var parsed pairsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("dexscreener: decode response: %w", err)
	}
	pairs := parsed.Pairs
	if len(pairs) == 0 && parsed.Pair != nil {
		pairs = []pairJSON{*parsed.Pair}
	}

	quotes := make([]feed.PairQuote, 0, len(pairs))
	for _, pair := range pairs {
		price, err := strconv.ParseFloat(pair.PriceUSD, 64)
		if err != nil {
			// Leave the candidate in with a zero price; the selector
			// rejects it but still honors address precedence.
			price = 0
		}
		quote := feed.PairQuote{
			Provider:    feed.ProviderDexScreener,
			PairAddress: pair.PairAddress,
			ChainID:     pair.ChainID,
			BaseToken:   pair.BaseToken.Address,
			QuoteToken:  pair.QuoteToken.Address,
			PriceUSD:    price,
		}
		if v, ok := pair.Volume["h1"]; ok {
			vol := v
			quote.VolumeUSD1h = &vol
		}
		if v, ok := pair.Volume["h24"]; ok {
			vol := v
			quote.VolumeUSD24h = &vol
		}
		quotes = append(quotes, quote)
	}
	return quotes, nil
}
