package feed

import (
	"sort"
	"time"
)

// ReconcileDaily merges a normalized observation into the persisted record for
// the same day. The provider's namespace is replaced wholesale (so replaying
// the same provider's history converges), every other namespace is left
// untouched, and the canonical fields are recomputed from whatever namespaces
// are present afterwards.
func ReconcileDaily(obs Observation, prev *DailyRecord, now time.Time) *DailyRecord {
	rec := cloneDaily(prev)
	fresh := rec == nil
	if fresh {
		rec = &DailyRecord{Day: obs.Day}
	}

	applyNamespace(rec, obs)

	// Canonical price: arithmetic mean of every provider price present.
	if prices := rec.providerPrices(); len(prices) > 0 {
		var sum float64
		for _, p := range prices {
			sum += p
		}
		rec.PriceUSD = floatPtr(sum / float64(len(prices)))
	} else {
		rec.PriceUSD = nil
	}

	incomingHigh := obs.Price
	if obs.High != nil && *obs.High > incomingHigh {
		incomingHigh = *obs.High
	}
	incomingLow := obs.Price
	if obs.Low != nil && *obs.Low < incomingLow {
		incomingLow = *obs.Low
	}

	if fresh {
		rec.Open = floatPtr(obs.Price)
		rec.Close = floatPtr(obs.Price)
		rec.High = floatPtr(incomingHigh)
		rec.Low = floatPtr(incomingLow)
	} else {
		if rec.Open == nil {
			rec.Open = floatPtr(obs.Price)
		}
		if rec.Close == nil {
			rec.Close = floatPtr(obs.Price)
		}
		if rec.High == nil || incomingHigh > *rec.High {
			rec.High = floatPtr(incomingHigh)
		}
		if rec.Low == nil || incomingLow < *rec.Low {
			rec.Low = floatPtr(incomingLow)
		}
	}

	rec.Sources = unionSources(rec.Sources, obs.Provider)
	rec.UpdatedAt = now.UTC().UnixMilli()
	return rec
}

// RollupHourly folds one canonical hourly quote into the day's aggregate.
// Volume is cumulative on this path only, so addVolume must be false when the
// same hour has already been rolled up (the caller checks the hourly key
// before asking for the addition).
func RollupHourly(q PairQuote, prev *DailyRecord, addVolume bool, now time.Time) *DailyRecord {
	rec := cloneDaily(prev)
	fresh := rec == nil
	if fresh {
		rec = &DailyRecord{Day: DayKey(now)}
	}

	price := q.PriceUSD
	if fresh {
		rec.Open = floatPtr(price)
		rec.High = floatPtr(price)
		rec.Low = floatPtr(price)
	} else {
		if rec.Open == nil {
			rec.Open = floatPtr(price)
		}
		if rec.High == nil || price > *rec.High {
			rec.High = floatPtr(price)
		}
		if rec.Low == nil || price < *rec.Low {
			rec.Low = floatPtr(price)
		}
	}
	rec.Close = floatPtr(price)

	// The hourly source contributes no daily namespace, so it only drives the
	// canonical price when no backfill provider has written one.
	if len(rec.providerPrices()) == 0 {
		rec.PriceUSD = floatPtr(price)
	}

	if addVolume && q.VolumeUSD1h != nil {
		total := *q.VolumeUSD1h
		if rec.VolumeUSD != nil {
			total += *rec.VolumeUSD
		}
		rec.VolumeUSD = floatPtr(total)
	}

	rec.Sources = unionSources(rec.Sources, q.Provider)
	rec.UpdatedAt = now.UTC().UnixMilli()
	return rec
}

// applyNamespace writes the observation under its provider's own namespace,
// fully replacing that namespace's prior content.
func applyNamespace(rec *DailyRecord, obs Observation) {
	switch obs.Provider {
	case ProviderCoinGecko:
		rec.CoinGecko = &CoinGeckoDay{
			PriceUSD:  obs.Price,
			VolumeUSD: obs.Volume,
		}
	case ProviderGeckoTerminal:
		rec.GeckoTerminal = &GeckoTerminalDay{
			PriceUSD:  obs.Price,
			Open:      obs.Open,
			High:      obs.High,
			Low:       obs.Low,
			VolumeUSD: obs.Volume,
		}
	case ProviderCryptoCompare:
		rec.CryptoCompare = &CryptoCompareDay{
			PriceUSD:  obs.Price,
			Open:      obs.Open,
			High:      obs.High,
			Low:       obs.Low,
			VolumeUSD: obs.Volume,
		}
	}
}

func cloneDaily(prev *DailyRecord) *DailyRecord {
	if prev == nil {
		return nil
	}
	rec := *prev
	rec.Sources = append([]string(nil), prev.Sources...)
	return &rec
}

func unionSources(sources []string, provider string) []string {
	for _, s := range sources {
		if s == provider {
			return sources
		}
	}
	sources = append(sources, provider)
	sort.Strings(sources)
	return sources
}
