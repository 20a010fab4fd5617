package feed

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Store collections holding the canonical documents.
const (
	DailyCollection  = "daily_prices"
	HourlyCollection = "hourly_prices"
)

// Names of the supported providers. Each daily provider owns exactly one
// namespace inside DailyRecord; adding a provider means adding a namespace
// struct and a case in applyNamespace.
const (
	ProviderCoinGecko     = "coingecko"
	ProviderGeckoTerminal = "geckoterminal"
	ProviderCryptoCompare = "cryptocompare"
	ProviderDexScreener   = "dexscreener"
)

// Candle is one OHLCV observation from one provider. Price is the closing
// (or only) price of the bucket; the remaining fields are optional because
// several providers report price/volume pairs without a full OHLC set.
type Candle struct {
	Timestamp time.Time
	Price     float64
	Open      *float64
	High      *float64
	Low       *float64
	Volume    *float64
}

// CoinGeckoDay holds the fields CoinGecko contributes to a day.
type CoinGeckoDay struct {
	PriceUSD  float64  `json:"priceUSD"`
	VolumeUSD *float64 `json:"volumeUSD,omitempty"`
}

// GeckoTerminalDay holds the fields GeckoTerminal contributes to a day.
type GeckoTerminalDay struct {
	PriceUSD  float64  `json:"priceUSD"`
	Open      *float64 `json:"open,omitempty"`
	High      *float64 `json:"high,omitempty"`
	Low       *float64 `json:"low,omitempty"`
	VolumeUSD *float64 `json:"volumeUSD,omitempty"`
}

// CryptoCompareDay holds the fields CryptoCompare contributes to a day.
type CryptoCompareDay struct {
	PriceUSD  float64  `json:"priceUSD"`
	Open      *float64 `json:"open,omitempty"`
	High      *float64 `json:"high,omitempty"`
	Low       *float64 `json:"low,omitempty"`
	VolumeUSD *float64 `json:"volumeUSD,omitempty"`
}

// DailyRecord is the canonical cross-provider document for one calendar day
// (UTC). Provider namespaces sit at the top level of the serialized document
// so that a shallow store merge can never clobber another provider's fields.
type DailyRecord struct {
	Day       string   `json:"day"`
	PriceUSD  *float64 `json:"priceUSD,omitempty"`
	VolumeUSD *float64 `json:"volumeUSD,omitempty"`
	Open      *float64 `json:"open,omitempty"`
	High      *float64 `json:"high,omitempty"`
	Low       *float64 `json:"low,omitempty"`
	Close     *float64 `json:"close,omitempty"`

	CoinGecko     *CoinGeckoDay     `json:"coingecko,omitempty"`
	GeckoTerminal *GeckoTerminalDay `json:"geckoterminal,omitempty"`
	CryptoCompare *CryptoCompareDay `json:"cryptocompare,omitempty"`

	Sources   []string `json:"sources,omitempty"`
	UpdatedAt int64    `json:"updatedAt"` // unix milliseconds
}

// HourlyRecord is the canonical document for one UTC hour. There is a single
// hourly ingestion path, so writes overwrite in place (last write wins).
type HourlyRecord struct {
	Hour        string   `json:"hour"`
	PriceUSD    float64  `json:"priceUSD"`
	VolumeUSD   *float64 `json:"volumeUSD,omitempty"`
	Provider    string   `json:"provider"`
	PairAddress string   `json:"pairAddress,omitempty"`
	UpdatedAt   int64    `json:"updatedAt"` // unix milliseconds
}

// DayKey returns the calendar-day identity for a timestamp.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// HourKey returns the hour identity for a timestamp.
func HourKey(t time.Time) string {
	return t.UTC().Format("2006-01-02-15")
}

// providerPrices collects the valid price field from every namespace present.
func (r *DailyRecord) providerPrices() []float64 {
	if r == nil {
		return nil
	}
	var prices []float64
	add := func(p float64) {
		if isValidPrice(p) {
			prices = append(prices, p)
		}
	}
	if r.CoinGecko != nil {
		add(r.CoinGecko.PriceUSD)
	}
	if r.GeckoTerminal != nil {
		add(r.GeckoTerminal.PriceUSD)
	}
	if r.CryptoCompare != nil {
		add(r.CryptoCompare.PriceUSD)
	}
	return prices
}

// Doc serializes a record into the shallow-merge document shape the store
// expects.
func (r *DailyRecord) Doc() (map[string]any, error) {
	return toDoc(r)
}

// Doc serializes the hourly record for the store.
func (r *HourlyRecord) Doc() (map[string]any, error) {
	return toDoc(r)
}

// DailyFromDoc parses a stored document back into a typed record.
func DailyFromDoc(doc map[string]any) (*DailyRecord, error) {
	if doc == nil {
		return nil, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("feed: encode stored day: %w", err)
	}
	var rec DailyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("feed: decode stored day: %w", err)
	}
	return &rec, nil
}

func toDoc(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("feed: encode record: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("feed: decode record: %w", err)
	}
	return doc, nil
}

func isValidPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

func floatPtr(v float64) *float64 { return &v }
