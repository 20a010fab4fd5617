package geckoterminal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"chainfeed/pkg/feed"
)

const defaultPageLimit = 1000

// Adapter pages backward through a pool's daily OHLCV history using the
// before_timestamp cursor. The free tier serves a bounded history window and
// answers 401 past it; that is a terminal soft limit, not a failure.
type Adapter struct {
	name    string
	client  *Client
	network string
	pool    string
	limit   int
}

// NewAdapter builds a GeckoTerminal backfill adapter for one pool.
func NewAdapter(name, network, pool string, limit int, client *Client) *Adapter {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	return &Adapter{name: name, client: client, network: network, pool: pool, limit: limit}
}

func init() {
	feed.RegisterAdapter(feed.ProviderGeckoTerminal, func(name string, cfg *feed.ProviderConfig, token feed.TokenConfig) (feed.Adapter, error) {
		if token.Network == "" || token.PairAddress == "" {
			return nil, fmt.Errorf("geckoterminal: token.network and token.pair_address are required")
		}
		opts := []Option{}
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		if cfg.HTTPTimeout > 0 {
			opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
		}
		return NewAdapter(name, token.Network, token.PairAddress, cfg.PageLimit, NewClient(opts...)), nil
	})
}

// Name implements feed.Adapter.
func (a *Adapter) Name() string { return a.name }

// FetchPage implements feed.Adapter. A short page means the provider has no
// further history, so it terminates the run.
func (a *Adapter) FetchPage(ctx context.Context, cursor *feed.Cursor) (feed.Page, error) {
	var before time.Time
	if cursor != nil {
		before = cursor.Before
	}

	rows, err := a.client.DailyOHLCV(ctx, a.network, a.pool, before, a.limit)
	if err != nil {
		var pe *feed.ProviderError
		if errors.As(err, &pe) && pe.Status == http.StatusUnauthorized {
			return feed.Page{Done: true, SoftLimited: true}, nil
		}
		return feed.Page{}, err
	}
	if len(rows) == 0 {
		return feed.Page{Done: true}, nil
	}

	candles := make([]feed.Candle, 0, len(rows))
	oldest := int64(0)
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		ts := int64(row[0])
		if oldest == 0 || ts < oldest {
			oldest = ts
		}
		open, high, low := row[1], row[2], row[3]
		volume := row[5]
		candles = append(candles, feed.Candle{
			Timestamp: time.Unix(ts, 0).UTC(),
			Price:     row[4],
			Open:      &open,
			High:      &high,
			Low:       &low,
			Volume:    &volume,
		})
	}

	page := feed.Page{Candles: candles}
	if len(rows) < a.limit {
		page.Done = true
		return page, nil
	}
	page.Next = &feed.Cursor{Before: time.Unix(oldest-1, 0).UTC()}
	return page, nil
}
