package cache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLoader struct {
	mu    sync.Mutex
	calls int
	seqs  map[string]int
	err   error
}

func (l *countingLoader) load(_ context.Context, tripID, stopID string) (int, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return 0, false, l.err
	}
	v, ok := l.seqs[tripID+"/"+stopID]
	return v, ok, nil
}

type tally struct {
	mu     sync.Mutex
	hits   map[string]int
	misses int
}

func (t *tally) CacheHit(tier string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hits == nil {
		t.hits = map[string]int{}
	}
	t.hits[tier]++
}

func (t *tally) CacheMiss() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.misses++
}

func TestLocalTierMemoizes(t *testing.T) {
	l := &countingLoader{seqs: map[string]int{"T1/S1": 7}}
	m := &tally{}
	c := NewStopSequenceCache(10, l.load, WithMetrics(m))
	ctx := context.Background()

	for range 3 {
		seq, ok := c.StopSequence(ctx, "T1", "S1")
		require.True(t, ok)
		assert.Equal(t, 7, seq)
	}
	_, ok := c.StopSequence(ctx, "T1", "S2")
	assert.False(t, ok)
	_, ok = c.StopSequence(ctx, "T1", "S2")
	assert.False(t, ok)

	assert.Equal(t, 2, l.calls)
	assert.Equal(t, 2, m.misses)
	assert.Equal(t, 3, m.hits["local"])
}

func TestLoaderErrorsAreNotCached(t *testing.T) {
	l := &countingLoader{err: errors.New("connection reset")}
	c := NewStopSequenceCache(10, l.load)
	ctx := context.Background()

	_, ok := c.StopSequence(ctx, "T1", "S1")
	assert.False(t, ok)
	_, ok = c.StopSequence(ctx, "T1", "S1")
	assert.False(t, ok)
	assert.Equal(t, 2, l.calls)
}

func TestSharedTier(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	l := &countingLoader{seqs: map[string]int{"T1/S1": 12}}
	first := NewStopSequenceCache(10, l.load, WithRedis(client, 0))
	seq, ok := first.StopSequence(ctx, "T1", "S1")
	require.True(t, ok)
	assert.Equal(t, 12, seq)
	_, ok = first.StopSequence(ctx, "T9", "S1")
	require.False(t, ok)

	got, err := mr.Get(key("T1", "S1"))
	require.NoError(t, err)
	assert.Equal(t, "12", got)
	got, err = mr.Get(key("T9", "S1"))
	require.NoError(t, err)
	assert.Equal(t, notFound, got)

	// A second process shares the Redis tier and never calls its loader.
	m := &tally{}
	second := NewStopSequenceCache(10, func(context.Context, string, string) (int, bool, error) {
		t.Fatal("loader called despite shared hit")
		return 0, false, nil
	}, WithRedis(client, 0), WithMetrics(m))
	seq, ok = second.StopSequence(ctx, "T1", "S1")
	require.True(t, ok)
	assert.Equal(t, 12, seq)
	_, ok = second.StopSequence(ctx, "T9", "S1")
	assert.False(t, ok)
	assert.Equal(t, 2, m.hits["shared"])
}

func TestSharedTierOutageFallsBackToLoader(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	l := &countingLoader{seqs: map[string]int{"T1/S1": 3}}
	c := NewStopSequenceCache(10, l.load, WithRedis(client, 0))
	seq, ok := c.StopSequence(context.Background(), "T1", "S1")
	require.True(t, ok)
	assert.Equal(t, 3, seq)
	assert.Equal(t, 1, l.calls)
}
