package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"chainfeed/internal/checkpoint"
	"chainfeed/internal/store"
)

// StatusCompleted is the terminal state of the single-shot hourly path.
const StatusCompleted RunStatus = "completed"

// PriceCache mirrors the latest canonical price to a hot cache. Optional.
type PriceCache interface {
	RecordLatest(ctx context.Context, provider, symbol string, price float64, ts time.Time)
}

// Deps bundles the external collaborators a pipeline run needs. Store is
// required; the rest are optional.
type Deps struct {
	Store       store.Store
	Checkpoints *checkpoint.Manager
	Cache       PriceCache
	Now         func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Summary is the outcome one run reports to its caller.
type Summary struct {
	Provider       string
	Status         RunStatus
	Pages          int
	RowsFetched    int
	RecordsWritten int
	Skipped        int
}

func (s Summary) String() string {
	return fmt.Sprintf("%s: %s pages=%d rows=%d written=%d skipped=%d",
		s.Provider, s.Status, s.Pages, s.RowsFetched, s.RecordsWritten, s.Skipped)
}

// Backfill pages backward through one provider's history and reconciles every
// candle into the daily collection. The run is sequential per provider:
// page-fetch, normalize, reconcile, buffer, flush. Malformed candles are
// dropped and logged; store or fatal provider errors abort the run, leaving
// previously flushed batches intact.
func Backfill(ctx context.Context, deps Deps, adapter Adapter, cfg IngestConfig) (Summary, error) {
	summary := Summary{Provider: adapter.Name(), Status: StatusFailed}

	committer, err := NewCommitter(deps.Store, DailyCollection, cfg.BatchSize)
	if err != nil {
		return summary, err
	}

	var start *Cursor
	if deps.Checkpoints != nil {
		if state := deps.Checkpoints.Load(adapter.Name()); state != nil {
			start = &Cursor{Before: state.Cursor()}
			logx.Infof("feed: %s resuming from checkpoint cursor=%s rows=%d",
				adapter.Name(), state.Cursor().Format(time.RFC3339), state.Rows)
		}
	}

	// resumeCursor trails the last fully handled page so a checkpoint never
	// skips rows that were still buffered when it was written.
	var resumeCursor *Cursor
	if deps.Checkpoints != nil {
		committer.OnFlush(func(written int) {
			if resumeCursor == nil {
				return
			}
			state := checkpoint.State{
				Provider:     adapter.Name(),
				CursorBefore: resumeCursor.Before.Unix(),
				Rows:         written,
			}
			if err := deps.Checkpoints.Save(state); err != nil {
				logx.Errorf("feed: %s checkpoint save failed: %v", adapter.Name(), err)
			}
		})
	}

	handle := func(page Page) error {
		for _, candle := range page.Candles {
			obs, err := NormalizeDaily(adapter.Name(), candle)
			if err != nil {
				var malformed *MalformedRecordError
				if errors.As(err, &malformed) {
					summary.Skipped++
					logx.Infof("feed: dropping candle: %v", err)
					continue
				}
				return err
			}

			// Reconciliation runs inside the batch commit, against the stored
			// document as of commit time and under the store's own locking, so
			// a provider running concurrently on the same day cannot shadow
			// this one's namespace or its canonical fields.
			apply := func(prev map[string]any) (map[string]any, error) {
				prevRec, err := DailyFromDoc(prev)
				if err != nil {
					return nil, err
				}
				return ReconcileDaily(obs, prevRec, deps.now()).Doc()
			}
			if err := committer.Add(ctx, obs.Day, apply); err != nil {
				return err
			}
		}
		resumeCursor = page.Next
		return nil
	}

	pager := NewPager(adapter, PagerConfig{
		SafetyCap:  cfg.SafetyCap,
		MaxRetries: cfg.MaxRetries,
		PageDelay:  cfg.PageDelay,
	})
	result, err := pager.Run(ctx, start, handle)
	summary.Status = result.Status
	summary.Pages = result.Pages
	summary.RowsFetched = result.Rows
	summary.RecordsWritten = committer.Written()
	if err != nil {
		// Abort without flushing the in-flight buffer; committed batches
		// stay valid and a re-run re-derives them.
		return summary, err
	}

	// The final flush still runs after a graceful cancellation stop, so the
	// rows handled before the signal are not lost.
	if err := committer.Flush(context.WithoutCancel(ctx)); err != nil {
		summary.Status = StatusFailed
		summary.RecordsWritten = committer.Written()
		return summary, err
	}
	summary.RecordsWritten = committer.Written()

	if deps.Checkpoints != nil {
		if err := deps.Checkpoints.Clear(adapter.Name()); err != nil {
			logx.Errorf("feed: %s checkpoint clear failed: %v", adapter.Name(), err)
		}
	}
	logx.Infof("feed: backfill %s", summary)
	return summary, nil
}

// IngestHourly runs the single-shot hourly path: query the aggregator, select
// the canonical quote, write the hour's record, and fold it into the day's
// aggregate. Volume is added to the daily aggregate only the first time an
// hour is seen, so re-running within the same hour cannot double-count.
func IngestHourly(ctx context.Context, deps Deps, src QuoteSource, sel SelectorConfig, symbol string) (Summary, error) {
	summary := Summary{Provider: src.Name(), Status: StatusFailed}

	quotes, err := src.FetchQuotes(ctx)
	if err != nil {
		return summary, fmt.Errorf("%s: fetch quotes: %w", src.Name(), err)
	}
	quote, err := SelectQuote(sel, quotes)
	if err != nil {
		return summary, err
	}

	now := deps.now().UTC()
	hourKey := HourKey(now)
	dayKey := DayKey(now)

	_, hourSeen, err := deps.Store.Get(ctx, HourlyCollection, hourKey)
	if err != nil {
		return summary, &StoreWriteError{Collection: HourlyCollection, Writes: 0, Err: err}
	}

	hourly := HourlyRecord{
		Hour:        hourKey,
		PriceUSD:    quote.PriceUSD,
		VolumeUSD:   quote.VolumeUSD1h,
		Provider:    quote.Provider,
		PairAddress: quote.PairAddress,
		UpdatedAt:   now.UnixMilli(),
	}
	hourlyDoc, err := hourly.Doc()
	if err != nil {
		return summary, err
	}
	if err := deps.Store.SetMerge(ctx, HourlyCollection, hourKey, hourlyDoc); err != nil {
		return summary, &StoreWriteError{Collection: HourlyCollection, Writes: 1, Err: err}
	}
	summary.RecordsWritten++

	// The fold into the daily aggregate runs inside the commit so a backfill
	// touching the same day concurrently cannot be shadowed.
	rollup := store.Write{Key: dayKey, Apply: func(prev map[string]any) (map[string]any, error) {
		prevRec, err := DailyFromDoc(prev)
		if err != nil {
			return nil, err
		}
		return RollupHourly(*quote, prevRec, !hourSeen, now).Doc()
	}}
	if err := deps.Store.BatchCommit(ctx, DailyCollection, []store.Write{rollup}); err != nil {
		return summary, &StoreWriteError{Collection: DailyCollection, Writes: 1, Err: err}
	}
	summary.RecordsWritten++

	if deps.Cache != nil {
		deps.Cache.RecordLatest(ctx, quote.Provider, symbol, quote.PriceUSD, now)
	}

	summary.Status = StatusCompleted
	logx.Infof("feed: hourly %s pair=%s price=%.8f", summary, quote.PairAddress, quote.PriceUSD)
	return summary, nil
}
