package feed

import (
	"context"
	"time"
)

// Cursor marks a position in a provider's history. Cursors move away from
// "now" toward the past; a nil cursor asks the adapter for its first page.
type Cursor struct {
	Before time.Time
}

// Page is one adapter fetch result. Done marks terminal success: either the
// provider returned no further rows or it signalled a soft history limit.
type Page struct {
	Candles     []Candle
	Next        *Cursor
	Done        bool
	SoftLimited bool
}

// Adapter knows one provider's request shape, pagination cursor, and response
// schema. Adapters are stateless between calls aside from the cursor they are
// handed; transport retry belongs to the Pager, not the adapter.
type Adapter interface {
	Name() string
	FetchPage(ctx context.Context, cursor *Cursor) (Page, error)
}

// PairQuote is one pair/venue candidate returned by an aggregator query on the
// hourly path.
type PairQuote struct {
	Provider     string
	PairAddress  string
	ChainID      string
	BaseToken    string
	QuoteToken   string
	PriceUSD     float64
	VolumeUSD1h  *float64
	VolumeUSD24h *float64
}

// QuoteSource serves the hourly single-shot path. Implementations try their
// configured fallback endpoints internally and return every candidate found.
type QuoteSource interface {
	Name() string
	FetchQuotes(ctx context.Context) ([]PairQuote, error)
}
