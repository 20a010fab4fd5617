package feed

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

// RunStatus is the terminal state of one pagination run. Every status except
// StatusFailed is a successful outcome; partial history is success, not
// failure.
type RunStatus string

const (
	StatusRunning          RunStatus = "running"
	StatusStoppedEmpty     RunStatus = "stopped_empty"
	StatusStoppedCap       RunStatus = "stopped_cap"
	StatusStoppedSoftLimit RunStatus = "stopped_soft_limit"
	StatusFailed           RunStatus = "failed"
)

const (
	defaultSafetyCap      = 20000
	defaultMaxRetries     = 3
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 15 * time.Second
	defaultBackoffFactor  = 2.0
	defaultPageDelay      = 250 * time.Millisecond
)

// PagerConfig bounds one pagination run.
type PagerConfig struct {
	SafetyCap      int           // hard ceiling on total rows fetched
	MaxRetries     int           // retry budget per page for transient errors
	InitialBackoff time.Duration // first retry delay
	MaxBackoff     time.Duration // backoff ceiling
	Multiplier     float64       // backoff growth factor
	PageDelay      time.Duration // fixed delay between successful pages
}

func (c PagerConfig) withDefaults() PagerConfig {
	if c.SafetyCap <= 0 {
		c.SafetyCap = defaultSafetyCap
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.Multiplier <= 1 {
		c.Multiplier = defaultBackoffFactor
	}
	if c.PageDelay <= 0 {
		c.PageDelay = defaultPageDelay
	}
	return c
}

// PagerResult summarizes a finished run.
type PagerResult struct {
	Status     RunStatus
	Pages      int
	Rows       int
	LastCursor *Cursor
}

// Pager drives an adapter's pagination loop: one page at a time, retry with
// exponential backoff on transient errors, a fixed delay between pages, and a
// safety cap on total rows so a misbehaving provider cannot run unbounded.
type Pager struct {
	adapter Adapter
	cfg     PagerConfig
}

// NewPager wires a pager over an adapter.
func NewPager(adapter Adapter, cfg PagerConfig) *Pager {
	return &Pager{adapter: adapter, cfg: cfg.withDefaults()}
}

// Run pages from start until the adapter reports done, the safety cap is
// reached, or a non-recoverable error occurs. handle is invoked once per
// non-empty page; a handle error aborts the run.
func (p *Pager) Run(ctx context.Context, start *Cursor, handle func(Page) error) (PagerResult, error) {
	result := PagerResult{Status: StatusRunning, LastCursor: start}
	cursor := start

	for {
		// Context cancellation between pages is a graceful stop: everything
		// handled so far stays flushed by the caller.
		if ctx.Err() != nil {
			result.Status = StatusStoppedCap
			return result, nil
		}

		page, err := p.fetchWithRetry(ctx, cursor)
		if err != nil {
			// A run context canceled mid-fetch or mid-backoff is the same
			// graceful stop as cancellation between pages.
			if ctx.Err() != nil {
				result.Status = StatusStoppedCap
				return result, nil
			}
			result.Status = StatusFailed
			return result, fmt.Errorf("%s: page %d: %w", p.adapter.Name(), result.Pages+1, err)
		}
		result.Pages++
		result.Rows += len(page.Candles)

		if len(page.Candles) > 0 {
			if err := handle(page); err != nil {
				result.Status = StatusFailed
				return result, err
			}
		}

		if page.Done {
			if page.SoftLimited {
				result.Status = StatusStoppedSoftLimit
			} else {
				result.Status = StatusStoppedEmpty
			}
			return result, nil
		}
		if result.Rows >= p.cfg.SafetyCap {
			logx.Infof("feed: %s capped at %d rows", p.adapter.Name(), result.Rows)
			result.Status = StatusStoppedCap
			return result, nil
		}
		if page.Next == nil {
			// Adapter claims more pages but offers no cursor; stop rather
			// than refetch the same window forever.
			result.Status = StatusStoppedEmpty
			return result, nil
		}
		cursor = page.Next
		result.LastCursor = cursor

		if p.cfg.PageDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(p.cfg.PageDelay):
			}
		}
	}
}

// fetchWithRetry retries the same cursor on transient failures with
// exponential backoff; fatal failures surface immediately.
func (p *Pager) fetchWithRetry(ctx context.Context, cursor *Cursor) (Page, error) {
	backoff := p.cfg.InitialBackoff
	var attempt int
	for {
		page, err := p.adapter.FetchPage(ctx, cursor)
		if err == nil {
			return page, nil
		}
		if classify(err) != ClassTransient || attempt >= p.cfg.MaxRetries {
			return Page{}, err
		}
		attempt++
		logx.Infof("feed: %s transient error, retry %d/%d in %s: %v",
			p.adapter.Name(), attempt, p.cfg.MaxRetries, backoff, err)

		select {
		case <-ctx.Done():
			return Page{}, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(math.Min(
			float64(p.cfg.MaxBackoff),
			float64(backoff)*p.cfg.Multiplier,
		))
	}
}
