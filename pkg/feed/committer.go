package feed

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/logx"

	"chainfeed/internal/store"
)

const defaultBatchSize = 450

// Committer buffers keyed document transforms and flushes them to the store in chunks
// strictly below the store's per-batch write ceiling, leaving headroom for the
// store's own bookkeeping. Each flush is an independent transaction: a failed
// flush never corrupts previously committed ones.
type Committer struct {
	store      store.Store
	collection string
	threshold  int
	buf        []store.Write
	written    int
	onFlush    func(written int)
}

// NewCommitter builds a committer flushing every threshold documents. A
// threshold outside (0, MaxBatchWrites) is rejected.
func NewCommitter(st store.Store, collection string, threshold int) (*Committer, error) {
	if threshold == 0 {
		threshold = defaultBatchSize
	}
	if threshold < 0 || threshold >= store.MaxBatchWrites {
		return nil, fmt.Errorf("feed: batch threshold %d must be in (0, %d)", threshold, store.MaxBatchWrites)
	}
	return &Committer{store: st, collection: collection, threshold: threshold}, nil
}

// OnFlush registers a hook invoked after every successful flush with the
// cumulative written count. Used for checkpointing.
func (c *Committer) OnFlush(fn func(written int)) {
	c.onFlush = fn
}

// Add buffers one keyed transform, flushing when the buffer reaches the
// threshold. The same key may be added repeatedly; later adds supersede
// earlier buffered ones rather than occupying an extra batch slot.
func (c *Committer) Add(ctx context.Context, key string, apply store.Apply) error {
	for i := range c.buf {
		if c.buf[i].Key == key {
			c.buf[i].Apply = apply
			return nil
		}
	}
	c.buf = append(c.buf, store.Write{Key: key, Apply: apply})
	if len(c.buf) >= c.threshold {
		return c.Flush(ctx)
	}
	return nil
}

// Flush commits whatever is buffered, including a final partial chunk at run
// end. A flush failure leaves the buffer intact so the caller can abort.
func (c *Committer) Flush(ctx context.Context) error {
	if len(c.buf) == 0 {
		return nil
	}
	n := len(c.buf)
	if err := c.store.BatchCommit(ctx, c.collection, c.buf); err != nil {
		return &StoreWriteError{Collection: c.collection, Writes: n, Err: err}
	}
	c.written += n
	c.buf = c.buf[:0]
	logx.Infof("feed: committed %d docs to %s (%d total)", n, c.collection, c.written)
	if c.onFlush != nil {
		c.onFlush(c.written)
	}
	return nil
}

// Written reports how many documents reached the store so far.
func (c *Committer) Written() int { return c.written }

// Pending reports how many documents are buffered but not yet committed.
func (c *Committer) Pending() int { return len(c.buf) }
