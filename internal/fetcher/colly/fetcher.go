// Package collyfetcher implements binder.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-binder/internal/binder"
)

const defaultTimeout = 30 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int
	Retries      int
	RetryBackoff time.Duration
}

// Fetcher implements binder.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch downloads url, retrying transport failures and 5xx/429 responses.
// Non-success responses are returned as *binder.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	attempt := 0
	body, err := retry.DoWithData(
		func() ([]byte, error) {
			attempt++
			return f.fetchOnce(ctx, url)
		},
		retry.Context(ctx),
		retry.Attempts(uint(f.cfg.Retries)+1),
		retry.Delay(f.cfg.RetryBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTemporary),
		retry.OnRetry(func(n uint, err error) {
			f.logger.Debug("retrying fetch", zap.String("url", url), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, err
	}
	if attempt > 1 {
		f.logger.Debug("fetch succeeded after retry", zap.String("url", url), zap.Int("attempts", attempt))
	}
	return body, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	var (
		body     []byte
		status   int
		fetchErr error
	)
	collector := f.buildCollector()
	f.configureCollectorHooks(collector, &body, &status, &fetchErr)

	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, &binder.FetchError{URL: url, StatusCode: status, Err: errors.New("empty body")}
	}
	return body, nil
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	collector.MaxBodySize = f.cfg.MaxBodyBytes
	collector.SetRequestTimeout(f.cfg.Timeout)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, body *[]byte, status *int, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*status = r.StatusCode
		*body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		fe := &binder.FetchError{Err: err}
		if r != nil {
			fe.StatusCode = r.StatusCode
			if r.Request != nil && r.Request.URL != nil {
				fe.URL = r.Request.URL.String()
			}
		}
		*fetchErr = fe
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		var fe *binder.FetchError
		if errors.As(*fetchErr, &fe) {
			if fe.URL == "" {
				fe.URL = url
			}
			return fe
		}
		if err != nil {
			return &binder.FetchError{URL: url, Err: fmt.Errorf("colly visit failed: %w", err)}
		}
		return nil
	}
}

func isTemporary(err error) bool {
	var fe *binder.FetchError
	if errors.As(err, &fe) {
		return fe.Temporary()
	}
	return false
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
}
