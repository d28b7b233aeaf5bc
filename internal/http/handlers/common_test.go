package handlers

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyReserveGrantsKeyOnce(t *testing.T) {
	store := newIdempotencyStore(time.Hour)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := store.Reserve("deck-1", 42); ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, granted)

	entry, ok := store.Reserve("deck-1", 42)
	require.False(t, ok)
	assert.Empty(t, entry.JobID, "pending reservation carries no job yet")

	store.Complete("deck-1", "job-1")
	entry, ok = store.Reserve("deck-1", 42)
	require.False(t, ok)
	assert.Equal(t, "job-1", entry.JobID)
}

func TestIdempotencyReleaseOnlyMatchingJob(t *testing.T) {
	store := newIdempotencyStore(time.Hour)
	_, ok := store.Reserve("deck-1", 1)
	require.True(t, ok)
	store.Complete("deck-1", "job-1")

	store.Release("deck-1", "")
	_, ok = store.Reserve("deck-1", 1)
	assert.False(t, ok, "completed key survives a pending release")

	store.Release("deck-1", "job-1")
	_, ok = store.Reserve("deck-1", 1)
	assert.True(t, ok)
}

func TestIdempotencyReserveAfterExpiry(t *testing.T) {
	store := newIdempotencyStore(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	_, ok := store.Reserve("deck-1", 1)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = store.Reserve("deck-1", 2)
	assert.True(t, ok)
}
