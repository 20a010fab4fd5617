package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"chainfeed/internal/checkpoint"
	"chainfeed/internal/cli"
	"chainfeed/internal/config"
	"chainfeed/internal/store"
	"chainfeed/pkg/feed"

	// Import for side-effects: registers data providers
	_ "chainfeed/pkg/feed/providers/coingecko"
	_ "chainfeed/pkg/feed/providers/cryptocompare"
	_ "chainfeed/pkg/feed/providers/dexscreener"
	_ "chainfeed/pkg/feed/providers/geckoterminal"
)

var (
	configFile = flag.String("f", "etc/chainfeed.yaml", "config file path")
	mode       = flag.String("mode", "all", "run mode: backfill | hourly | all")
	dryRun     = flag.Bool("dry-run", false, "run against an in-memory store, writing nothing")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("[main] Starting ingest (mode=%s)...", *mode)

	switch *mode {
	case "backfill", "hourly", "all":
	default:
		log.Fatalf("[main] Unknown mode %q, expected backfill | hourly | all", *mode)
	}

	appCfg := config.MustLoad(*configFile)

	log.Printf("[main] Configuration loaded:")
	for _, line := range cli.ConfigSummaryLines(appCfg) {
		log.Printf("  - %s", line)
	}

	feedCfg := appCfg.FeedConfig()
	if feedCfg == nil {
		log.Fatalf("[main] Feed config is required; set Feed.File in %s", *configFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, cleanup := buildStore(ctx, appCfg)
	defer cleanup()

	deps := feed.Deps{
		Store:       st,
		Checkpoints: checkpoint.NewManager(appCfg.CheckpointDir),
	}
	if !*dryRun {
		if cache := store.NewRedisPriceCache(appCfg.Redis, time.Duration(appCfg.CacheTTL)*time.Second); cache != nil {
			deps.Cache = cache
		}
	}

	failed := false
	if *mode == "backfill" || *mode == "all" {
		if !runBackfill(ctx, deps, feedCfg) {
			failed = true
		}
	}
	if *mode == "hourly" || *mode == "all" {
		if !runHourly(ctx, deps, feedCfg) {
			failed = true
		}
	}

	if failed {
		log.Printf("[main] Ingest finished with errors")
		os.Exit(1)
	}
	log.Printf("[main] Ingest finished")
}

// buildStore picks the document store: in-memory for dry runs or when no DSN
// is configured, Postgres otherwise.
func buildStore(ctx context.Context, appCfg *config.Config) (store.Store, func()) {
	if *dryRun || appCfg.Postgres.DSN == "" {
		if !*dryRun {
			log.Printf("[main] No Postgres DSN configured, using in-memory store")
		}
		return store.NewMemory(), func() {}
	}

	pg, err := store.NewPostgres(ctx, appCfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("[main] Failed to connect to Postgres: %v", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		log.Fatalf("[main] Failed to ensure schema: %v", err)
	}
	return pg, pg.Close
}

// runBackfill pages every configured provider backward concurrently. Returns
// false when any provider run failed.
func runBackfill(ctx context.Context, deps feed.Deps, feedCfg *feed.Config) bool {
	adapters, err := feedCfg.BuildAdapters()
	if err != nil {
		log.Printf("[backfill] Failed to build adapters: %v", err)
		return false
	}
	if len(adapters) == 0 {
		log.Printf("[backfill] No backfill providers configured, skipping")
		return true
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		summaries []feed.Summary
		failed    bool
	)
	for name, adapter := range adapters {
		wg.Add(1)
		go func(name string, adapter feed.Adapter) {
			defer wg.Done()
			summary, err := feed.Backfill(ctx, deps, adapter, feedCfg.Ingest)
			mu.Lock()
			defer mu.Unlock()
			summaries = append(summaries, summary)
			if err != nil {
				failed = true
				log.Printf("[backfill.%s] [ERROR] %v", name, err)
				return
			}
			log.Printf("[backfill.%s] [OK] %s", name, summary)
		}(name, adapter)
	}
	wg.Wait()

	log.Printf("[backfill] Run summary:")
	for _, summary := range summaries {
		log.Printf("  - %s", summary)
	}
	return !failed
}

// runHourly executes one pass of the hourly quote path. Returns false on
// failure, true when the path is unconfigured or succeeded.
func runHourly(ctx context.Context, deps feed.Deps, feedCfg *feed.Config) bool {
	src, err := feedCfg.BuildQuoteSource()
	if err != nil {
		log.Printf("[hourly] Failed to build quote source: %v", err)
		return false
	}
	if src == nil {
		log.Printf("[hourly] No hourly quote source configured, skipping")
		return true
	}

	sel := feed.SelectorConfig{
		PairAddress:  feedCfg.Token.PairAddress,
		TokenAddress: feedCfg.Token.Address,
		ChainID:      feedCfg.Token.Network,
	}
	summary, err := feed.IngestHourly(ctx, deps, src, sel, feedCfg.Token.Symbol)
	if err != nil {
		log.Printf("[hourly.%s] [ERROR] %v", src.Name(), err)
		return false
	}
	log.Printf("[hourly.%s] [OK] %s", src.Name(), summary)
	return true
}
