package store

import (
	"context"
	"fmt"
)

// MaxBatchWrites is the store-imposed hard ceiling on writes per batch
// commit. Callers must buffer strictly below it.
const MaxBatchWrites = 500

// Apply transforms the stored document for one key. It receives the current
// document (nil when absent) and returns the full replacement.
type Apply func(prev map[string]any) (map[string]any, error)

// Write is one keyed document transform destined for a batch commit.
type Write struct {
	Key   string
	Apply Apply
}

// Store is the document persistence capability: point reads, shallow-merge
// writes, and atomic batched read-transform-write commits. Merge is shallow
// by contract; callers namespace their documents when they need deep-merge
// semantics.
type Store interface {
	// Get returns the stored document, reporting absence via the bool.
	Get(ctx context.Context, collection, key string) (map[string]any, bool, error)
	// SetMerge shallow-merges doc into the existing document, creating it if
	// absent.
	SetMerge(ctx context.Context, collection, key string, doc map[string]any) error
	// BatchCommit applies every write as one atomic unit. Each write's Apply
	// runs against the stored document as of commit time, under the store's
	// own locking, so concurrent writers on the same key cannot lose updates.
	BatchCommit(ctx context.Context, collection string, writes []Write) error
}

// ErrTooManyWrites rejects a batch above the store ceiling.
type ErrTooManyWrites struct {
	Writes int
}

func (e *ErrTooManyWrites) Error() string {
	return fmt.Sprintf("store: batch of %d exceeds ceiling of %d writes", e.Writes, MaxBatchWrites)
}
