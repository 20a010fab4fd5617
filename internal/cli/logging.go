package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"chainfeed/internal/config"
)

// ConfigSummaryLines returns human readable lines describing the loaded
// ingestion config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	lines := []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("Postgres: %s", presence(cfg.Postgres.DSN != "")),
		fmt.Sprintf("Redis: %s", presence(strings.TrimSpace(cfg.Redis.Host) != "")),
		fmt.Sprintf("Checkpoint dir: %s", cfg.CheckpointDir),
		fmt.Sprintf("Cache TTL: %ds", cfg.CacheTTL),
	}

	if feedCfg := cfg.FeedConfig(); feedCfg != nil {
		lines = append(lines,
			fmt.Sprintf("Feed config: %s", cfg.FeedFile()),
			fmt.Sprintf("Token: %s (%s)", feedCfg.Token.Symbol, feedCfg.Token.Address),
			fmt.Sprintf("Network: %s", feedCfg.Token.Network),
			fmt.Sprintf("Providers: %s", strings.Join(feedCfg.ProviderNames(), ", ")),
		)
		if feedCfg.Hourly != "" {
			lines = append(lines, fmt.Sprintf("Hourly source: %s", feedCfg.Hourly))
		}
	} else {
		lines = append(lines, "Feed config: not configured")
	}

	return lines
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}
