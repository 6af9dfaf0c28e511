// Package download fetches a job's candidate images into its destination
// directory. Existing files are treated as already satisfied, which is what
// makes an interrupted job resumable at image granularity.
package download

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/article-binder/internal/binder"
	"github.com/JakeFAU/article-binder/internal/metrics"
)

// Resource outcomes used for logging and metrics.
const (
	OutcomeFetched  = "fetched"
	OutcomeExisting = "existing"
	OutcomeFailed   = "failed"
	OutcomeFiltered = "filtered"
)

// Config tunes filtering and fan-out.
type Config struct {
	// MinSize drops descriptors whose size hint is below it.
	MinSize int
	// DefaultExt names raw files whose URL carries no format hint.
	DefaultExt string
	// MaxParallel bounds in-flight fetches; zero means unbounded.
	MaxParallel int
}

// Result summarizes one Download call. Slices are ordered by ordinal.
type Result struct {
	Fetched  []binder.FetchedResource
	Existing []binder.FetchedResource
	Failed   []binder.ResourceDescriptor
	Filtered int
}

// Satisfied returns the number of descriptors now present on disk.
func (r Result) Satisfied() int {
	return len(r.Fetched) + len(r.Existing)
}

// Coordinator fans out fetches for one job and joins on all of them.
type Coordinator struct {
	fetcher binder.Fetcher
	cfg     Config
	logger  *zap.Logger
}

// New builds a Coordinator.
func New(fetcher binder.Fetcher, cfg Config, logger *zap.Logger) (*Coordinator, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.MinSize < 0 {
		return nil, fmt.Errorf("min size must be >= 0")
	}
	if cfg.DefaultExt == "" {
		cfg.DefaultExt = "jpg"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{fetcher: fetcher, cfg: cfg, logger: logger.Named("download")}, nil
}

// Download fetches every qualifying descriptor into sink. Individual failures
// are logged and dropped. The only error returned is context cancellation.
func (c *Coordinator) Download(ctx context.Context, descs []binder.ResourceDescriptor, sink binder.ResourceSink) (Result, error) {
	var (
		mu  sync.Mutex
		res Result
	)
	record := func(fn func(*Result)) {
		mu.Lock()
		defer mu.Unlock()
		fn(&res)
	}

	g := new(errgroup.Group)
	if c.cfg.MaxParallel > 0 {
		g.SetLimit(c.cfg.MaxParallel)
	}

	for _, desc := range descs {
		if desc.Size < c.cfg.MinSize || desc.URL == "" {
			c.logger.Debug("resource filtered",
				zap.Int("ordinal", desc.Ordinal),
				zap.Int("size", desc.Size),
				zap.String("url", desc.URL),
			)
			metrics.ObserveResource(desc.URL, OutcomeFiltered, 0)
			res.Filtered++
			continue
		}
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			fetched, outcome := c.fetchOne(ctx, desc, sink)
			record(func(r *Result) {
				switch outcome {
				case OutcomeFetched:
					r.Fetched = append(r.Fetched, fetched)
				case OutcomeExisting:
					r.Existing = append(r.Existing, fetched)
				default:
					r.Failed = append(r.Failed, desc)
				}
			})
			return nil
		})
	}
	_ = g.Wait()

	sortResources(res.Fetched)
	sortResources(res.Existing)
	sort.Slice(res.Failed, func(i, j int) bool { return res.Failed[i].Ordinal < res.Failed[j].Ordinal })

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("download canceled: %w", err)
	}
	return res, nil
}

func (c *Coordinator) fetchOne(ctx context.Context, desc binder.ResourceDescriptor, sink binder.ResourceSink) (binder.FetchedResource, string) {
	name := desc.FileName(c.cfg.DefaultExt)
	logger := c.logger.With(zap.Int("ordinal", desc.Ordinal), zap.String("url", desc.URL))

	for _, candidate := range []string{name, desc.PageName()} {
		ok, err := sink.Exists(ctx, candidate)
		if err != nil {
			logger.Warn("existence check failed", zap.String("file", candidate), zap.Error(err))
			metrics.ObserveResource(desc.URL, OutcomeFailed, 0)
			return binder.FetchedResource{}, OutcomeFailed
		}
		if ok {
			logger.Debug("resource already present", zap.String("file", candidate))
			metrics.ObserveResource(desc.URL, OutcomeExisting, 0)
			return binder.FetchedResource{Descriptor: desc, LocalPath: sink.Path(candidate)}, OutcomeExisting
		}
	}

	body, err := c.fetcher.Fetch(ctx, desc.URL)
	if err != nil {
		logger.Warn("resource fetch failed", zap.Error(err))
		metrics.ObserveResource(desc.URL, OutcomeFailed, 0)
		return binder.FetchedResource{}, OutcomeFailed
	}

	if _, err := sink.PutObject(ctx, name, http.DetectContentType(body), bytes.NewReader(body)); err != nil {
		logger.Warn("resource write failed", zap.String("file", name), zap.Error(err))
		metrics.ObserveResource(desc.URL, OutcomeFailed, 0)
		return binder.FetchedResource{}, OutcomeFailed
	}

	logger.Debug("resource fetched", zap.String("file", name), zap.Int("bytes", len(body)))
	metrics.ObserveResource(desc.URL, OutcomeFetched, len(body))
	return binder.FetchedResource{Descriptor: desc, LocalPath: sink.Path(name)}, OutcomeFetched
}

func sortResources(rs []binder.FetchedResource) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].Descriptor.Ordinal < rs[j].Descriptor.Ordinal })
}
