package coingecko

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"chainfeed/pkg/feed"
)

const windowDays = 90

// Adapter pages backward through CoinGecko daily history in fixed windows.
// On the public plan the API rejects requests beyond its historical window
// with 401; that rejection signals exhaustion, not a failure, so the adapter
// reports it as a terminal soft limit.
type Adapter struct {
	name   string
	client *Client
	coinID string
	window time.Duration
	nowFn  func() time.Time
}

// NewAdapter builds a CoinGecko backfill adapter for one coin id.
func NewAdapter(name, coinID string, client *Client) *Adapter {
	return &Adapter{
		name:   name,
		client: client,
		coinID: coinID,
		window: windowDays * 24 * time.Hour,
		nowFn:  time.Now,
	}
}

func init() {
	feed.RegisterAdapter(feed.ProviderCoinGecko, func(name string, cfg *feed.ProviderConfig, token feed.TokenConfig) (feed.Adapter, error) {
		if token.CoinID == "" {
			return nil, fmt.Errorf("coingecko: token.coin_id is required")
		}
		opts := []Option{WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		if cfg.HTTPTimeout > 0 {
			opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
		}
		return NewAdapter(name, token.CoinID, NewClient(opts...)), nil
	})
}

// Name implements feed.Adapter.
func (a *Adapter) Name() string { return a.name }

// FetchPage implements feed.Adapter. A nil cursor starts at "now"; each page
// covers one window ending at the cursor boundary.
func (a *Adapter) FetchPage(ctx context.Context, cursor *feed.Cursor) (feed.Page, error) {
	to := a.nowFn().UTC()
	if cursor != nil && !cursor.Before.IsZero() {
		to = cursor.Before
	}
	from := to.Add(-a.window)

	chart, err := a.client.MarketChartRange(ctx, a.coinID, from, to)
	if err != nil {
		var pe *feed.ProviderError
		if errors.As(err, &pe) && pe.Status == http.StatusUnauthorized {
			// History window exhausted for this plan.
			return feed.Page{Done: true, SoftLimited: true}, nil
		}
		return feed.Page{}, err
	}

	candles := zipChart(chart)
	if len(candles) == 0 {
		return feed.Page{Done: true}, nil
	}
	return feed.Page{
		Candles: candles,
		Next:    &feed.Cursor{Before: from},
	}, nil
}

// zipChart joins the price and volume series by timestamp into candles.
func zipChart(chart *MarketChartResponse) []feed.Candle {
	volumes := make(map[int64]float64, len(chart.TotalVolumes))
	for _, point := range chart.TotalVolumes {
		if len(point) < 2 {
			continue
		}
		volumes[int64(point[0])] = point[1]
	}

	candles := make([]feed.Candle, 0, len(chart.Prices))
	for _, point := range chart.Prices {
		if len(point) < 2 {
			continue
		}
		ms := int64(point[0])
		candle := feed.Candle{
			Timestamp: time.UnixMilli(ms).UTC(),
			Price:     point[1],
		}
		if vol, ok := volumes[ms]; ok {
			v := vol
			candle.Volume = &v
		}
		candles = append(candles, candle)
	}
	return candles
}
