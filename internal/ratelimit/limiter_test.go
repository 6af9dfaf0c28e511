package ratelimit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/article-binder/internal/metrics"
)

type countingFetcher struct {
	calls atomic.Int32
}

func (c *countingFetcher) Fetch(context.Context, string) ([]byte, error) {
	c.calls.Add(1)
	return []byte("ok"), nil
}

func TestLimiterWaitThrottlesSameHost(t *testing.T) {
	t.Parallel()
	metrics.Init()

	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://img.example.com/a.jpg"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://img.example.com/b.jpg"))
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	t.Parallel()
	metrics.Init()

	l := New(Config{RPS: 0.1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example.com/1.jpg"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example.com/1.jpg"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterWaitHonorsContext(t *testing.T) {
	t.Parallel()
	metrics.Init()

	l := New(Config{RPS: 0.01, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://slow.example.com/"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://slow.example.com/"))
}

func TestWrap(t *testing.T) {
	t.Parallel()
	metrics.Init()

	next := &countingFetcher{}
	require.Same(t, next, Wrap(next, New(Config{})).(*countingFetcher))
	require.Same(t, next, Wrap(next, nil).(*countingFetcher))

	wrapped := Wrap(next, New(Config{RPS: 100, Burst: 5}))
	_, ok := wrapped.(*Fetcher)
	require.True(t, ok)

	body, err := wrapped.Fetch(context.Background(), "https://example.com/x.png")
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))
	require.EqualValues(t, 1, next.calls.Load())
}

func TestHostOf(t *testing.T) {
	t.Parallel()
	require.Equal(t, "example.com", hostOf("https://EXAMPLE.com:8443/a"))
	require.Equal(t, "unknown", hostOf("::bad"))
	require.Equal(t, "unknown", hostOf("/relative/path"))
}
