package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1}, nil)
	require.Error(t, err)

	fetcher, err := NewChromedp(Config{MaxParallel: 2}, nil)
	require.NoError(t, err)
	defer fetcher.Close()
	require.Equal(t, 2, cap(fetcher.limiter))
	require.Equal(t, defaultNavigationTimeout, fetcher.cfg.NavigationTimeout)
}

func TestFetcherNavTimeout(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{}
	require.Equal(t, defaultNavigationTimeout, fetcher.navTimeout())
	fetcher.cfg.NavigationTimeout = time.Second
	require.Equal(t, time.Second, fetcher.navTimeout())
}

func TestAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{limiter: make(chan struct{}, 1)}
	require.NoError(t, fetcher.acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, fetcher.acquire(ctx))

	fetcher.release()
	require.NoError(t, fetcher.acquire(context.Background()))
}

func TestResponseMetaKeepsFirstDocumentStatus(t *testing.T) {
	t.Parallel()

	meta := &responseMeta{}
	require.Equal(t, http.StatusOK, meta.statusOrDefault())

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 500},
	})
	require.Equal(t, http.StatusOK, meta.statusOrDefault())

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 404},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200},
	})
	require.Equal(t, http.StatusNotFound, meta.statusOrDefault())
}
