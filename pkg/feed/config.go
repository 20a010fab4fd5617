package feed

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Config describes the asset under ingestion and the set of data providers
// available to the pipeline.
type Config struct {
	Token     TokenConfig                `yaml:"token"`
	Ingest    IngestConfig               `yaml:"ingest"`
	Hourly    string                     `yaml:"hourly"` // quote source name for the hourly path
	Providers map[string]*ProviderConfig `yaml:"providers"`
}

// TokenConfig pins the single asset this deployment tracks.
type TokenConfig struct {
	Symbol      string `yaml:"symbol"`
	Address     string `yaml:"address"`
	PairAddress string `yaml:"pair_address"`
	Network     string `yaml:"network"` // chain/network slug, e.g. "ethereum"
	CoinID      string `yaml:"coin_id"` // CoinGecko coin id
}

// IngestConfig bounds one ingestion run. All values are immutable for the
// duration of a run.
type IngestConfig struct {
	SafetyCap    int           `yaml:"safety_cap"`
	BatchSize    int           `yaml:"batch_size"`
	MaxRetries   int           `yaml:"max_retries"`
	PageDelayRaw string        `yaml:"page_delay"`
	PageDelay    time.Duration `yaml:"-"`
}

// ProviderConfig represents configuration for a single data provider.
type ProviderConfig struct {
	Type string `yaml:"type"`

	BaseURL      string   `yaml:"base_url"`
	FallbackURLs []string `yaml:"fallback_urls"`
	APIKey       string   `yaml:"api_key"`
	PageLimit    int      `yaml:"page_limit"`

	HTTPTimeoutRaw string        `yaml:"http_timeout"`
	HTTPTimeout    time.Duration `yaml:"-"`
}

// AdapterBuilder constructs a backfill adapter from configuration.
type AdapterBuilder func(name string, cfg *ProviderConfig, token TokenConfig) (Adapter, error)

// QuoteBuilder constructs an hourly quote source from configuration.
type QuoteBuilder func(name string, cfg *ProviderConfig, token TokenConfig) (QuoteSource, error)

var (
	registryMu      sync.RWMutex
	adapterRegistry = make(map[string]AdapterBuilder)
	quoteRegistry   = make(map[string]QuoteBuilder)
)

// RegisterAdapter registers a backfill adapter constructor.
func RegisterAdapter(typeName string, builder AdapterBuilder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	adapterRegistry[normalizeType(typeName)] = builder
}

// RegisterQuoteSource registers an hourly quote source constructor.
func RegisterQuoteSource(typeName string, builder QuoteBuilder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	quoteRegistry[normalizeType(typeName)] = builder
}

func lookupAdapterBuilder(typeName string) (AdapterBuilder, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	builder, ok := adapterRegistry[normalizeType(typeName)]
	return builder, ok
}

func lookupQuoteBuilder(typeName string) (QuoteBuilder, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	builder, ok := quoteRegistry[normalizeType(typeName)]
	return builder, ok
}

func normalizeType(typeName string) string {
	return strings.ToLower(strings.TrimSpace(typeName))
}

// LoadConfig reads feed configuration from disk.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feed config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read feed config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal feed config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalise() error {
	if c.Providers == nil {
		c.Providers = make(map[string]*ProviderConfig)
	}
	c.Token.expandEnv()
	c.Hourly = strings.TrimSpace(os.ExpandEnv(c.Hourly))
	if err := c.Ingest.parseDurations(); err != nil {
		return err
	}
	for name, provider := range c.Providers {
		if provider == nil {
			provider = &ProviderConfig{}
			c.Providers[name] = provider
		}
		provider.expandEnv()
		if err := provider.parseDurations(name); err != nil {
			return err
		}
	}
	return nil
}

func (t *TokenConfig) expandEnv() {
	t.Symbol = strings.TrimSpace(os.ExpandEnv(t.Symbol))
	t.Address = strings.TrimSpace(os.ExpandEnv(t.Address))
	t.PairAddress = strings.TrimSpace(os.ExpandEnv(t.PairAddress))
	t.Network = strings.TrimSpace(os.ExpandEnv(t.Network))
	t.CoinID = strings.TrimSpace(os.ExpandEnv(t.CoinID))
}

func (p *ProviderConfig) expandEnv() {
	p.Type = strings.TrimSpace(os.ExpandEnv(p.Type))
	p.BaseURL = strings.TrimSpace(os.ExpandEnv(p.BaseURL))
	p.APIKey = strings.TrimSpace(os.ExpandEnv(p.APIKey))
	p.HTTPTimeoutRaw = strings.TrimSpace(os.ExpandEnv(p.HTTPTimeoutRaw))
	for i, u := range p.FallbackURLs {
		p.FallbackURLs[i] = strings.TrimSpace(os.ExpandEnv(u))
	}
}

func (i *IngestConfig) parseDurations() error {
	raw := strings.TrimSpace(os.ExpandEnv(i.PageDelayRaw))
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("feed config: invalid page_delay %q: %w", raw, err)
	}
	if d < 0 {
		return fmt.Errorf("feed config: page_delay must not be negative, got %s", d)
	}
	i.PageDelay = d
	return nil
}

func (p *ProviderConfig) parseDurations(name string) error {
	if p.HTTPTimeoutRaw == "" {
		return nil
	}
	d, err := time.ParseDuration(p.HTTPTimeoutRaw)
	if err != nil {
		return fmt.Errorf("feed provider %s: invalid http_timeout %q: %w", name, p.HTTPTimeoutRaw, err)
	}
	if d <= 0 {
		return fmt.Errorf("feed provider %s: http_timeout must be positive, got %s", name, d)
	}
	p.HTTPTimeout = d
	return nil
}

// Validate ensures the configuration is structurally sound.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("feed config: providers cannot be empty")
	}
	if c.Token.Address == "" {
		return fmt.Errorf("feed config: token.address is required")
	}
	if strings.HasPrefix(c.Token.Address, "0x") && !common.IsHexAddress(c.Token.Address) {
		return fmt.Errorf("feed config: token.address %q is not a valid hex address", c.Token.Address)
	}
	if strings.HasPrefix(c.Token.PairAddress, "0x") && !common.IsHexAddress(c.Token.PairAddress) {
		return fmt.Errorf("feed config: pair_address %q is not a valid hex address", c.Token.PairAddress)
	}
	if c.Hourly != "" {
		provider, ok := c.Providers[c.Hourly]
		if !ok {
			return fmt.Errorf("feed config: hourly provider %q not defined", c.Hourly)
		}
		if _, ok := lookupQuoteBuilder(provider.Type); !ok {
			return fmt.Errorf("feed config: hourly provider %q type %q is not a quote source", c.Hourly, provider.Type)
		}
	}
	for name, provider := range c.Providers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("feed config: provider name cannot be empty")
		}
		if err := provider.validate(name); err != nil {
			return err
		}
	}
	return nil
}

func (p *ProviderConfig) validate(name string) error {
	if p == nil {
		return fmt.Errorf("feed config: provider %s is nil", name)
	}
	if strings.TrimSpace(p.Type) == "" {
		return fmt.Errorf("feed config: provider %s must specify type", name)
	}
	_, isAdapter := lookupAdapterBuilder(p.Type)
	_, isQuote := lookupQuoteBuilder(p.Type)
	if !isAdapter && !isQuote {
		return fmt.Errorf("feed config: provider %s has unsupported type %q", name, p.Type)
	}
	if p.PageLimit < 0 {
		return fmt.Errorf("feed config: provider %s page_limit must not be negative", name)
	}
	return nil
}

// ProviderNames returns the configured provider names in sorted order.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildAdapters instantiates every configured backfill adapter. The hourly
// quote source, when configured, is excluded; BuildQuoteSource constructs it.
func (c *Config) BuildAdapters() (map[string]Adapter, error) {
	result := make(map[string]Adapter, len(c.Providers))
	for name, providerCfg := range c.Providers {
		if name == c.Hourly {
			continue
		}
		builder, ok := lookupAdapterBuilder(providerCfg.Type)
		if !ok {
			return nil, fmt.Errorf("feed provider %s: type %q is not a backfill adapter", name, providerCfg.Type)
		}
		adapter, err := builder(name, providerCfg, c.Token)
		if err != nil {
			return nil, fmt.Errorf("feed provider %s: %w", name, err)
		}
		result[name] = adapter
	}
	return result, nil
}

// BuildQuoteSource instantiates the hourly quote source, or nil when the
// hourly path is not configured.
func (c *Config) BuildQuoteSource() (QuoteSource, error) {
	if c.Hourly == "" {
		return nil, nil
	}
	providerCfg := c.Providers[c.Hourly]
	builder, ok := lookupQuoteBuilder(providerCfg.Type)
	if !ok {
		return nil, fmt.Errorf("feed provider %s: type %q is not a quote source", c.Hourly, providerCfg.Type)
	}
	source, err := builder(c.Hourly, providerCfg, c.Token)
	if err != nil {
		return nil, fmt.Errorf("feed provider %s: %w", c.Hourly, err)
	}
	return source, nil
}
