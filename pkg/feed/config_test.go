package feed

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubAdapter struct{ name string }

func (a *stubAdapter) Name() string { return a.name }
func (a *stubAdapter) FetchPage(context.Context, *Cursor) (Page, error) {
	return Page{Done: true}, nil
}

type stubQuoteSource struct{ name string }

func (s *stubQuoteSource) Name() string { return s.name }
func (s *stubQuoteSource) FetchQuotes(context.Context) ([]PairQuote, error) {
	return nil, nil
}

func init() {
	RegisterAdapter("stub-backfill", func(name string, _ *ProviderConfig, _ TokenConfig) (Adapter, error) {
		return &stubAdapter{name: name}, nil
	})
	RegisterQuoteSource("stub-quote", func(name string, _ *ProviderConfig, _ TokenConfig) (QuoteSource, error) {
		return &stubQuoteSource{name: name}, nil
	})
}

const configYAML = `
token:
  symbol: WETH
  address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
  pair_address: "0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640"
  network: ethereum
  coin_id: weth

ingest:
  safety_cap: 5000
  batch_size: 300
  max_retries: 2
  page_delay: 100ms

hourly: quotes

providers:
  daily:
    type: stub-backfill
    api_key: "${FEED_TEST_API_KEY}"
    page_limit: 500
    http_timeout: 15s
  quotes:
    type: stub-quote
`

func TestLoadConfigFromReader(t *testing.T) {
	t.Setenv("FEED_TEST_API_KEY", "secret-key")

	cfg, err := LoadConfigFromReader(strings.NewReader(configYAML))
	require.NoError(t, err)

	require.Equal(t, "WETH", cfg.Token.Symbol)
	require.Equal(t, "ethereum", cfg.Token.Network)
	require.Equal(t, 5000, cfg.Ingest.SafetyCap)
	require.Equal(t, 300, cfg.Ingest.BatchSize)
	require.Equal(t, 100*time.Millisecond, cfg.Ingest.PageDelay)
	require.Equal(t, "quotes", cfg.Hourly)

	daily := cfg.Providers["daily"]
	require.NotNil(t, daily)
	require.Equal(t, "secret-key", daily.APIKey)
	require.Equal(t, 500, daily.PageLimit)
	require.Equal(t, 15*time.Second, daily.HTTPTimeout)
}

func TestConfigProviderNamesSorted(t *testing.T) {
	cfg := &Config{Providers: map[string]*ProviderConfig{
		"zeta":  {Type: "stub-backfill"},
		"alpha": {Type: "stub-backfill"},
		"mid":   {Type: "stub-quote"},
	}}
	require.Equal(t, []string{"alpha", "mid", "zeta"}, cfg.ProviderNames())
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no providers",
			yaml: "token:\n  address: \"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2\"\n",
			want: "providers cannot be empty",
		},
		{
			name: "missing address",
			yaml: "providers:\n  a:\n    type: stub-backfill\n",
			want: "token.address is required",
		},
		{
			name: "bad hex address",
			yaml: "token:\n  address: \"0x1234\"\nproviders:\n  a:\n    type: stub-backfill\n",
			want: "not a valid hex address",
		},
		{
			name: "unknown provider type",
			yaml: "token:\n  address: \"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2\"\nproviders:\n  a:\n    type: nope\n",
			want: "unsupported type",
		},
		{
			name: "hourly not defined",
			yaml: "token:\n  address: \"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2\"\nhourly: ghost\nproviders:\n  a:\n    type: stub-backfill\n",
			want: "hourly provider \"ghost\" not defined",
		},
		{
			name: "hourly not a quote source",
			yaml: "token:\n  address: \"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2\"\nhourly: a\nproviders:\n  a:\n    type: stub-backfill\n",
			want: "is not a quote source",
		},
		{
			name: "bad page delay",
			yaml: "token:\n  address: \"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2\"\ningest:\n  page_delay: soon\nproviders:\n  a:\n    type: stub-backfill\n",
			want: "invalid page_delay",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfigFromReader(strings.NewReader(tc.yaml))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestBuildAdaptersExcludesHourly(t *testing.T) {
	t.Setenv("FEED_TEST_API_KEY", "k")

	cfg, err := LoadConfigFromReader(strings.NewReader(configYAML))
	require.NoError(t, err)

	adapters, err := cfg.BuildAdapters()
	require.NoError(t, err)
	require.Len(t, adapters, 1)
	require.Contains(t, adapters, "daily")

	src, err := cfg.BuildQuoteSource()
	require.NoError(t, err)
	require.Equal(t, "quotes", src.Name())
}

func TestBuildQuoteSourceUnconfigured(t *testing.T) {
	cfg := &Config{}
	src, err := cfg.BuildQuoteSource()
	require.NoError(t, err)
	require.Nil(t, src)
}
