package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_ServesFreshValue(t *testing.T) {
	c := New(time.Minute)
	var loads atomic.Int32
	load := func(context.Context) (int, error) {
		loads.Add(1)
		return 42, nil
	}

	for range 3 {
		v, err := FetchAs(context.Background(), c, "answer", load)
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	}
	assert.Equal(t, int32(1), loads.Load())
}

func TestFetch_SharesInFlightRead(t *testing.T) {
	c := New(0)
	started := make(chan struct{})
	release := make(chan struct{})
	var loads atomic.Int32

	load := func(context.Context) (any, error) {
		loads.Add(1)
		close(started)
		<-release
		return "value", nil
	}

	var wg sync.WaitGroup
	results := make([]any, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = c.Fetch(context.Background(), "k", load)
	}()
	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = c.Fetch(context.Background(), "k", load)
	}()

	// Give the second reader time to park on the in-flight read.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	assert.Equal(t, []any{"value", "value"}, results)
}

func TestCancel_DiscardsInFlightRead(t *testing.T) {
	c := New(0)
	started := make(chan struct{})
	errs := make(chan error, 1)

	go func() {
		_, err := c.Fetch(context.Background(), "solution:5", func(ctx context.Context) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})
		errs <- err
	}()
	<-started

	require.NoError(t, c.Cancel(context.Background(), "solution:5"))
	c.Set("solution:5", "optimistic")

	assert.ErrorIs(t, <-errs, ErrCanceled)
	v, ok := c.Get("solution:5")
	require.True(t, ok)
	assert.Equal(t, "optimistic", v)
}

func TestFetch_SlowReadNeverClobbersNewerWrite(t *testing.T) {
	c := New(0)
	started := make(chan struct{})
	release := make(chan struct{})
	results := make(chan any, 1)

	go func() {
		// This loader ignores cancellation, like a response already on the wire.
		v, err := c.Fetch(context.Background(), "solution:5", func(context.Context) (any, error) {
			close(started)
			<-release
			return "stale", nil
		})
		assert.NoError(t, err)
		results <- v
	}()
	<-started

	c.Set("solution:5", "optimistic")
	close(release)

	assert.Equal(t, "optimistic", <-results)
	v, _ := c.Get("solution:5")
	assert.Equal(t, "optimistic", v)
}

func TestSnapshotRestore(t *testing.T) {
	c := New(0)
	c.Set("solution:1", "before")

	snap := c.Snapshot("solution:1", "solutions:9")
	assert.True(t, snap.Has("solution:1"))
	assert.False(t, snap.Has("solutions:9"))

	c.Set("solution:1", "after")
	c.Set("solutions:9", "page")
	c.Restore(snap)

	v, ok := c.Get("solution:1")
	require.True(t, ok)
	assert.Equal(t, "before", v)

	_, ok = c.Get("solutions:9")
	assert.False(t, ok, "keys that were empty are emptied again")
}

func TestInvalidate_ForcesReload(t *testing.T) {
	c := New(0)
	var loads atomic.Int32
	load := func(context.Context) (int, error) {
		return int(loads.Add(1)), nil
	}

	v, err := FetchAs(context.Background(), c, "solutions:3", load)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	c.Invalidate("solutions:")

	stale, ok := GetAs[int](c, "solutions:3")
	require.True(t, ok, "stale values stay readable")
	assert.Equal(t, 1, stale)

	v, err = FetchAs(context.Background(), c, "solutions:3", load)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestMarkStale_ExactKeysOnly(t *testing.T) {
	c := New(0)
	c.Set("solution:5", 5)
	c.Set("solution:50", 50)

	c.MarkStale("solution:5", "solution:missing")

	var loads atomic.Int32
	load := func(context.Context) (int, error) { return int(loads.Add(1)), nil }

	v, err := FetchAs(context.Background(), c, "solution:50", load)
	require.NoError(t, err)
	assert.Equal(t, 50, v)

	v, err = FetchAs(context.Background(), c, "solution:5", load)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, int32(1), loads.Load())
}

func TestTTL(t *testing.T) {
	c := New(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	var loads atomic.Int32
	load := func(context.Context) (int, error) { return int(loads.Add(1)), nil }

	_, err := FetchAs(context.Background(), c, "tasks", load)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	v, err := FetchAs(context.Background(), c, "tasks", load)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestUpdateAs(t *testing.T) {
	c := New(0)
	assert.False(t, UpdateAs(c, "missing", func(n int) int { return n + 1 }))

	c.Set("counter", 1)
	assert.True(t, UpdateAs(c, "counter", func(n int) int { return n + 1 }))

	v, ok := GetAs[int](c, "counter")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestClear(t *testing.T) {
	c := New(0)
	c.Set("a", 1)
	c.Clear()
	_, ok := c.Get("a")
	assert.False(t, ok)
}
