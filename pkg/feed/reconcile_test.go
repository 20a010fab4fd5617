package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func TestReconcileDailyFreshRecord(t *testing.T) {
	obs := Observation{
		Provider: ProviderCoinGecko,
		Day:      "2025-06-14",
		Price:    11,
		Volume:   floatPtr(1_000),
	}

	rec := ReconcileDaily(obs, nil, testNow)

	require.Equal(t, "2025-06-14", rec.Day)
	require.NotNil(t, rec.PriceUSD)
	require.InDelta(t, 11, *rec.PriceUSD, 1e-9)
	require.NotNil(t, rec.CoinGecko)
	require.InDelta(t, 11, rec.CoinGecko.PriceUSD, 1e-9)
	require.Equal(t, []string{ProviderCoinGecko}, rec.Sources)
	require.Equal(t, testNow.UnixMilli(), rec.UpdatedAt)
	require.InDelta(t, 11, *rec.Open, 1e-9)
	require.InDelta(t, 11, *rec.Close, 1e-9)
}

func TestReconcileDailyMeanAcrossProviders(t *testing.T) {
	first := ReconcileDaily(Observation{
		Provider: ProviderCoinGecko,
		Day:      "2025-06-14",
		Price:    11,
	}, nil, testNow)

	second := ReconcileDaily(Observation{
		Provider: ProviderCryptoCompare,
		Day:      "2025-06-14",
		Price:    9,
	}, first, testNow)

	require.NotNil(t, second.PriceUSD)
	require.InDelta(t, 10.0, *second.PriceUSD, 1e-9)
	require.NotNil(t, second.CoinGecko)
	require.NotNil(t, second.CryptoCompare)
	require.Equal(t, []string{ProviderCoinGecko, ProviderCryptoCompare}, second.Sources)
}

func TestReconcileDailyPreservesOtherNamespaces(t *testing.T) {
	prev := &DailyRecord{
		Day: "2025-06-14",
		GeckoTerminal: &GeckoTerminalDay{
			PriceUSD:  10.5,
			VolumeUSD: floatPtr(500),
		},
		Sources: []string{ProviderGeckoTerminal},
	}

	rec := ReconcileDaily(Observation{
		Provider: ProviderCoinGecko,
		Day:      "2025-06-14",
		Price:    11.5,
	}, prev, testNow)

	require.NotNil(t, rec.GeckoTerminal)
	require.InDelta(t, 10.5, rec.GeckoTerminal.PriceUSD, 1e-9)
	require.NotNil(t, rec.GeckoTerminal.VolumeUSD)
	require.NotNil(t, rec.CoinGecko)
	require.InDelta(t, 11.0, *rec.PriceUSD, 1e-9)

	// prev must not be mutated
	require.Nil(t, prev.CoinGecko)
	require.Equal(t, []string{ProviderGeckoTerminal}, prev.Sources)
}

func TestReconcileDailyReplayConverges(t *testing.T) {
	obs := Observation{
		Provider: ProviderGeckoTerminal,
		Day:      "2025-06-14",
		Price:    10,
		High:     floatPtr(12),
		Low:      floatPtr(9),
		Volume:   floatPtr(100),
	}

	once := ReconcileDaily(obs, nil, testNow)
	twice := ReconcileDaily(obs, once, testNow)

	require.Equal(t, once, twice)
}

func TestReconcileDailyHighLowExtremes(t *testing.T) {
	rec := ReconcileDaily(Observation{
		Provider: ProviderCryptoCompare,
		Day:      "2025-06-14",
		Price:    120,
		High:     floatPtr(150),
		Low:      floatPtr(100),
	}, nil, testNow)

	require.InDelta(t, 150, *rec.High, 1e-9)
	require.InDelta(t, 100, *rec.Low, 1e-9)

	rec = ReconcileDaily(Observation{
		Provider: ProviderGeckoTerminal,
		Day:      "2025-06-14",
		Price:    50,
	}, rec, testNow)

	require.InDelta(t, 150, *rec.High, 1e-9)
	require.InDelta(t, 50, *rec.Low, 1e-9)
}

func TestReconcileDailySourcesOrderIndependent(t *testing.T) {
	cg := Observation{Provider: ProviderCoinGecko, Day: "2025-06-14", Price: 10}
	cc := Observation{Provider: ProviderCryptoCompare, Day: "2025-06-14", Price: 10}

	ab := ReconcileDaily(cc, ReconcileDaily(cg, nil, testNow), testNow)
	ba := ReconcileDaily(cg, ReconcileDaily(cc, nil, testNow), testNow)

	require.Equal(t, ab.Sources, ba.Sources)
	require.Equal(t, []string{ProviderCoinGecko, ProviderCryptoCompare}, ab.Sources)
}

func TestRollupHourlyFreshDay(t *testing.T) {
	q := PairQuote{
		Provider:    ProviderDexScreener,
		PriceUSD:    2.5,
		VolumeUSD1h: floatPtr(40),
	}

	rec := RollupHourly(q, nil, true, testNow)

	require.Equal(t, DayKey(testNow), rec.Day)
	require.NotNil(t, rec.PriceUSD)
	require.InDelta(t, 2.5, *rec.PriceUSD, 1e-9)
	require.InDelta(t, 40, *rec.VolumeUSD, 1e-9)
	require.InDelta(t, 2.5, *rec.Close, 1e-9)
	require.Equal(t, []string{ProviderDexScreener}, rec.Sources)
}

func TestRollupHourlyVolumeGuard(t *testing.T) {
	q := PairQuote{Provider: ProviderDexScreener, PriceUSD: 2.5, VolumeUSD1h: floatPtr(40)}

	first := RollupHourly(q, nil, true, testNow)
	// Re-run within the same hour: volume must not be added again.
	second := RollupHourly(q, first, false, testNow)

	require.InDelta(t, 40, *second.VolumeUSD, 1e-9)

	// Next hour adds its own contribution.
	third := RollupHourly(q, second, true, testNow.Add(time.Hour))
	require.InDelta(t, 80, *third.VolumeUSD, 1e-9)
}

func TestRollupHourlyDoesNotOverrideBackfillPrice(t *testing.T) {
	prev := ReconcileDaily(Observation{
		Provider: ProviderCoinGecko,
		Day:      DayKey(testNow),
		Price:    3.0,
	}, nil, testNow)

	rec := RollupHourly(PairQuote{Provider: ProviderDexScreener, PriceUSD: 2.0}, prev, true, testNow)

	// Backfill namespaces own the canonical price; the hourly quote only
	// moves close and the extremes.
	require.InDelta(t, 3.0, *rec.PriceUSD, 1e-9)
	require.InDelta(t, 2.0, *rec.Close, 1e-9)
	require.InDelta(t, 2.0, *rec.Low, 1e-9)
}
