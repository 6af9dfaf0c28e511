package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-binder/internal/binder"
)

func TestFetchReturnsBody(t *testing.T) {
	t.Parallel()

	var userAgent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent.Store(r.UserAgent())
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "binder-test", Timeout: time.Second}, zap.NewNop())
	body, err := f.Fetch(context.Background(), srv.URL+"/img")
	require.NoError(t, err)
	require.Equal(t, []byte{0x89, 'P', 'N', 'G'}, body)
	require.Equal(t, "binder-test", userAgent.Load())

	// The same URL can be fetched again on a later run.
	_, err = f.Fetch(context.Background(), srv.URL+"/img")
	require.NoError(t, err)
}

func TestFetchNotFoundIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	f := New(Config{Timeout: time.Second, Retries: 3, RetryBackoff: time.Millisecond}, nil)
	_, err := f.Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)

	var fe *binder.FetchError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, http.StatusNotFound, fe.StatusCode)
	require.Equal(t, int32(1), calls.Load())
}

func TestFetchRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := New(Config{Timeout: time.Second, Retries: 2, RetryBackoff: time.Millisecond}, nil)
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))
	require.Equal(t, int32(3), calls.Load())
}

func TestFetchEmptyBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := New(Config{Timeout: time.Second}, nil).Fetch(context.Background(), srv.URL)
	var fe *binder.FetchError
	require.ErrorAs(t, err, &fe)
	require.False(t, fe.Temporary())
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(Config{Timeout: 5 * time.Second}, nil).Fetch(ctx, srv.URL)
	require.Error(t, err)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil)
	var (
		body     []byte
		status   int
		fetchErr error
	)
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &body, &status, &fetchErr)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	hooks.onResponse(&colly.Response{StatusCode: http.StatusOK, Body: []byte("body")})
	require.Equal(t, "body", string(body))
	require.Equal(t, http.StatusOK, status)

	hooks.onError(&colly.Response{
		StatusCode: http.StatusBadGateway,
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/x")},
	}, errors.New("bad gateway"))
	var fe *binder.FetchError
	require.ErrorAs(t, fetchErr, &fe)
	require.Equal(t, http.StatusBadGateway, fe.StatusCode)
	require.Equal(t, "https://example.com/x", fe.URL)
}

func TestBuildCollectorAppliesConfig(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "ua", MaxBodyBytes: 1024}, nil)
	c := f.buildCollector()
	require.Equal(t, "ua", c.UserAgent)
	require.Equal(t, 1024, c.MaxBodySize)
	require.True(t, c.AllowURLRevisit)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
