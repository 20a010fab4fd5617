package feed

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type step struct {
	page Page
	err  error
}

// scriptedAdapter replays a fixed sequence of pages and errors.
type scriptedAdapter struct {
	name    string
	steps   []step
	calls   int
	cursors []*Cursor
}

func (a *scriptedAdapter) Name() string { return a.name }

func (a *scriptedAdapter) FetchPage(_ context.Context, cursor *Cursor) (Page, error) {
	a.cursors = append(a.cursors, cursor)
	if a.calls >= len(a.steps) {
		return Page{Done: true}, nil
	}
	s := a.steps[a.calls]
	a.calls++
	return s.page, s.err
}

func candlesFor(n int, day time.Time) []Candle {
	out := make([]Candle, n)
	for i := range out {
		out[i] = Candle{Timestamp: day.Add(-time.Duration(i) * 24 * time.Hour), Price: 1}
	}
	return out
}

func fastPager(a Adapter, cfg PagerConfig) *Pager {
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	cfg.PageDelay = time.Millisecond
	return NewPager(a, cfg)
}

func TestPagerConfigDefaultsUnsetPageDelay(t *testing.T) {
	cfg := PagerConfig{}.withDefaults()
	require.Equal(t, defaultPageDelay, cfg.PageDelay)

	cfg = PagerConfig{PageDelay: time.Second}.withDefaults()
	require.Equal(t, time.Second, cfg.PageDelay)
}

func TestPagerRunsToEmpty(t *testing.T) {
	day := time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)
	adapter := &scriptedAdapter{name: "scripted", steps: []step{
		{page: Page{Candles: candlesFor(1000, day), Next: &Cursor{Before: day}}},
		{page: Page{Candles: candlesFor(1000, day), Next: &Cursor{Before: day}}},
		{page: Page{Candles: candlesFor(400, day), Done: true}},
	}}

	var handled int
	pager := fastPager(adapter, PagerConfig{SafetyCap: 20000})
	result, err := pager.Run(context.Background(), nil, func(p Page) error {
		handled += len(p.Candles)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, StatusStoppedEmpty, result.Status)
	require.Equal(t, 3, result.Pages)
	require.Equal(t, 2400, result.Rows)
	require.Equal(t, 2400, handled)
}

func TestPagerStopsAtSafetyCap(t *testing.T) {
	day := time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)
	adapter := &scriptedAdapter{name: "scripted", steps: []step{
		{page: Page{Candles: candlesFor(1000, day), Next: &Cursor{Before: day}}},
		{page: Page{Candles: candlesFor(1000, day), Next: &Cursor{Before: day}}},
		{page: Page{Candles: candlesFor(1000, day), Next: &Cursor{Before: day}}},
	}}

	pager := fastPager(adapter, PagerConfig{SafetyCap: 2000})
	result, err := pager.Run(context.Background(), nil, func(Page) error { return nil })
	require.NoError(t, err)
	require.Equal(t, StatusStoppedCap, result.Status)
	require.Equal(t, 2000, result.Rows)
	// The cap must not trigger an extra fetch beyond the capping page.
	require.Equal(t, 2, adapter.calls)
}

func TestPagerFirstPageSoftLimit(t *testing.T) {
	adapter := &scriptedAdapter{name: "scripted", steps: []step{
		{page: Page{Done: true, SoftLimited: true}},
	}}

	pager := fastPager(adapter, PagerConfig{})
	result, err := pager.Run(context.Background(), nil, func(Page) error {
		t.Fatal("handle must not run for an empty page")
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, StatusStoppedSoftLimit, result.Status)
	require.Equal(t, 0, result.Rows)
}

func TestPagerRetriesTransientErrors(t *testing.T) {
	day := time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)
	transient := &ProviderError{Provider: "scripted", Status: http.StatusTooManyRequests, Class: ClassTransient}
	adapter := &scriptedAdapter{name: "scripted", steps: []step{
		{err: transient},
		{err: transient},
		{page: Page{Candles: candlesFor(5, day), Done: true}},
	}}

	pager := fastPager(adapter, PagerConfig{MaxRetries: 3})
	result, err := pager.Run(context.Background(), nil, func(Page) error { return nil })
	require.NoError(t, err)
	require.Equal(t, StatusStoppedEmpty, result.Status)
	require.Equal(t, 5, result.Rows)
	require.Equal(t, 3, adapter.calls)
}

func TestPagerFatalErrorAborts(t *testing.T) {
	fatal := &ProviderError{Provider: "scripted", Status: http.StatusBadRequest, Class: ClassFatal}
	adapter := &scriptedAdapter{name: "scripted", steps: []step{{err: fatal}}}

	pager := fastPager(adapter, PagerConfig{MaxRetries: 3})
	result, err := pager.Run(context.Background(), nil, func(Page) error { return nil })
	require.Error(t, err)
	require.Equal(t, StatusFailed, result.Status)
	require.Equal(t, 1, adapter.calls)
}

func TestPagerExhaustsRetryBudget(t *testing.T) {
	transient := &ProviderError{Provider: "scripted", Status: http.StatusBadGateway, Class: ClassTransient}
	adapter := &scriptedAdapter{name: "scripted", steps: []step{
		{err: transient}, {err: transient}, {err: transient},
	}}

	pager := fastPager(adapter, PagerConfig{MaxRetries: 2})
	result, err := pager.Run(context.Background(), nil, func(Page) error { return nil })
	require.Error(t, err)
	require.Equal(t, StatusFailed, result.Status)
	require.Equal(t, 3, adapter.calls)
}

func TestPagerCancelledContextStopsGracefully(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	adapter := &scriptedAdapter{name: "scripted"}
	pager := fastPager(adapter, PagerConfig{})
	result, err := pager.Run(ctx, nil, func(Page) error { return nil })
	require.NoError(t, err)
	require.Equal(t, StatusStoppedCap, result.Status)
	require.Equal(t, 0, adapter.calls)
}

// cancellingAdapter cancels the run context from inside the fetch, the way a
// shutdown signal lands while a request is in flight.
type cancellingAdapter struct {
	cancel context.CancelFunc
	err    error
	calls  int
}

func (a *cancellingAdapter) Name() string { return "scripted" }

func (a *cancellingAdapter) FetchPage(context.Context, *Cursor) (Page, error) {
	a.calls++
	a.cancel()
	return Page{}, a.err
}

func TestPagerCancellationMidFetchStopsGracefully(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	adapter := &cancellingAdapter{
		cancel: cancel,
		err:    &url.Error{Op: "Get", URL: "https://api.example.com", Err: context.Canceled},
	}

	pager := fastPager(adapter, PagerConfig{MaxRetries: 3})
	result, err := pager.Run(ctx, nil, func(Page) error { return nil })
	require.NoError(t, err)
	require.Equal(t, StatusStoppedCap, result.Status)
	require.Equal(t, 1, adapter.calls)
}

func TestPagerCancellationMidBackoffStopsGracefully(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	adapter := &cancellingAdapter{
		cancel: cancel,
		err:    &ProviderError{Provider: "scripted", Status: http.StatusBadGateway, Class: ClassTransient},
	}

	pager := fastPager(adapter, PagerConfig{MaxRetries: 3})
	result, err := pager.Run(ctx, nil, func(Page) error { return nil })
	require.NoError(t, err)
	require.Equal(t, StatusStoppedCap, result.Status)
	// The canceled context preempts the retry budget.
	require.Equal(t, 1, adapter.calls)
}

func TestPagerHandsStartCursorToAdapter(t *testing.T) {
	adapter := &scriptedAdapter{name: "scripted", steps: []step{
		{page: Page{Done: true}},
	}}
	start := &Cursor{Before: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}

	pager := fastPager(adapter, PagerConfig{})
	_, err := pager.Run(context.Background(), start, func(Page) error { return nil })
	require.NoError(t, err)
	require.Len(t, adapter.cursors, 1)
	require.Equal(t, start, adapter.cursors[0])
}
