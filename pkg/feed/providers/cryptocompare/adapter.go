package cryptocompare

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"chainfeed/pkg/feed"
)

const defaultPageLimit = 2000

// Adapter pages backward through CryptoCompare daily history using the toTs
// cursor. The API pads requests beyond a symbol's first listing with all-zero
// bars instead of erroring, so a page of nothing but zero closes marks the
// history boundary and terminates the run as a soft limit.
type Adapter struct {
	name   string
	client *Client
	symbol string
	limit  int
}

// NewAdapter builds a CryptoCompare backfill adapter for one symbol.
func NewAdapter(name, symbol string, limit int, client *Client) *Adapter {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	return &Adapter{name: name, client: client, symbol: symbol, limit: limit}
}

func init() {
	feed.RegisterAdapter(feed.ProviderCryptoCompare, func(name string, cfg *feed.ProviderConfig, token feed.TokenConfig) (feed.Adapter, error) {
		if token.Symbol == "" {
			return nil, fmt.Errorf("cryptocompare: token.symbol is required")
		}
		opts := []Option{WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		if cfg.HTTPTimeout > 0 {
			opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
		}
		return NewAdapter(name, token.Symbol, cfg.PageLimit, NewClient(opts...)), nil
	})
}

// Name implements feed.Adapter.
func (a *Adapter) Name() string { return a.name }

// FetchPage implements feed.Adapter.
func (a *Adapter) FetchPage(ctx context.Context, cursor *feed.Cursor) (feed.Page, error) {
	var toTs int64
	if cursor != nil && !cursor.Before.IsZero() {
		toTs = cursor.Before.Unix()
	}

	data, err := a.client.Histoday(ctx, a.symbol, toTs, a.limit)
	if err != nil {
		return feed.Page{}, err
	}
	if len(data.Data) == 0 {
		return feed.Page{Done: true}, nil
	}

	// Zero-close bars are the API's padding for days before the symbol
	// existed; they carry no observation.
	candles := make([]feed.Candle, 0, len(data.Data))
	for _, bar := range data.Data {
		if bar.Close <= 0 {
			continue
		}
		open, high, low, volume := bar.Open, bar.High, bar.Low, bar.VolumeTo
		candles = append(candles, feed.Candle{
			Timestamp: time.Unix(bar.Time, 0).UTC(),
			Price:     bar.Close,
			Open:      &open,
			High:      &high,
			Low:       &low,
			Volume:    &volume,
		})
	}
	if len(candles) == 0 {
		return feed.Page{Done: true, SoftLimited: true}, nil
	}

	return feed.Page{
		Candles: candles,
		Next:    &feed.Cursor{Before: time.Unix(data.TimeFrom-1, 0).UTC()},
	}, nil
}
