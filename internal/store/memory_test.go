package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetMergeIsShallow(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	require.NoError(t, st.SetMerge(ctx, "daily_prices", "2025-06-14", map[string]any{
		"coingecko": map[string]any{"priceUSD": 10.0},
		"priceUSD":  10.0,
	}))
	require.NoError(t, st.SetMerge(ctx, "daily_prices", "2025-06-14", map[string]any{
		"cryptocompare": map[string]any{"priceUSD": 12.0},
		"priceUSD":      11.0,
	}))

	doc, ok, err := st.Get(ctx, "daily_prices", "2025-06-14")
	require.NoError(t, err)
	require.True(t, ok)
	// Top-level keys from the first write survive the second merge.
	require.Contains(t, doc, "coingecko")
	require.Contains(t, doc, "cryptocompare")
	require.Equal(t, 11.0, doc["priceUSD"])
}

func TestMemoryStoreGetAbsent(t *testing.T) {
	st := NewMemory()
	doc, ok, err := st.Get(context.Background(), "daily_prices", "nope")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, doc)
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	require.NoError(t, st.SetMerge(ctx, "c", "k", map[string]any{"v": 1}))

	doc, _, err := st.Get(ctx, "c", "k")
	require.NoError(t, err)
	doc["v"] = 99

	again, _, err := st.Get(ctx, "c", "k")
	require.NoError(t, err)
	require.Equal(t, 1, again["v"])
}

func TestMemoryStoreBatchCommit(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	writes := make([]Write, 0, MaxBatchWrites)
	for i := 0; i < MaxBatchWrites; i++ {
		n := i
		writes = append(writes, Write{Key: fmt.Sprintf("k%d", i), Apply: func(map[string]any) (map[string]any, error) {
			return map[string]any{"n": n}, nil
		}})
	}
	require.NoError(t, st.BatchCommit(ctx, "c", writes))
	require.Equal(t, MaxBatchWrites, st.Len("c"))
}

func TestMemoryStoreBatchCommitSeesCurrentDocument(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	require.NoError(t, st.SetMerge(ctx, "daily_prices", "2025-06-14", map[string]any{
		"coingecko": map[string]any{"priceUSD": 11.0},
	}))

	// The transform runs against whatever is stored at commit time, so a
	// writer that landed after this batch was assembled is still visible.
	write := Write{Key: "2025-06-14", Apply: func(prev map[string]any) (map[string]any, error) {
		require.Contains(t, prev, "coingecko")
		prev["cryptocompare"] = map[string]any{"priceUSD": 9.0}
		return prev, nil
	}}
	require.NoError(t, st.BatchCommit(ctx, "daily_prices", []Write{write}))

	doc, ok, err := st.Get(ctx, "daily_prices", "2025-06-14")
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, doc, "coingecko")
	require.Contains(t, doc, "cryptocompare")
}

func TestMemoryStoreBatchCommitFailedTransformAppliesNothing(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	writes := []Write{
		{Key: "a", Apply: func(map[string]any) (map[string]any, error) {
			return map[string]any{"v": 1}, nil
		}},
		{Key: "b", Apply: func(map[string]any) (map[string]any, error) {
			return nil, fmt.Errorf("transform refused")
		}},
	}
	require.Error(t, st.BatchCommit(ctx, "c", writes))
	require.Equal(t, 0, st.Len("c"))
}

func TestMemoryStoreBatchCommitCeiling(t *testing.T) {
	st := NewMemory()
	writes := make([]Write, MaxBatchWrites+1)
	for i := range writes {
		writes[i] = Write{Key: fmt.Sprintf("k%d", i)}
	}

	err := st.BatchCommit(context.Background(), "c", writes)
	var tooMany *ErrTooManyWrites
	require.ErrorAs(t, err, &tooMany)
	require.Equal(t, MaxBatchWrites+1, tooMany.Writes)
}
