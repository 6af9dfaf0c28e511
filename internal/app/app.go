// Package app builds the long-lived services of a binder run from
// configuration and owns their shutdown.
package app

import (
	"context"
	"fmt"

	gpubsub "cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-binder/internal/binder"
	"github.com/JakeFAU/article-binder/internal/clock"
	"github.com/JakeFAU/article-binder/internal/config"
	"github.com/JakeFAU/article-binder/internal/convert"
	"github.com/JakeFAU/article-binder/internal/download"
	"github.com/JakeFAU/article-binder/internal/extractor"
	collyfetcher "github.com/JakeFAU/article-binder/internal/fetcher/colly"
	"github.com/JakeFAU/article-binder/internal/fetcher/headless"
	"github.com/JakeFAU/article-binder/internal/hash/sha256"
	"github.com/JakeFAU/article-binder/internal/headless/detector"
	"github.com/JakeFAU/article-binder/internal/id/uuid"
	"github.com/JakeFAU/article-binder/internal/jobstore/file"
	"github.com/JakeFAU/article-binder/internal/merge"
	"github.com/JakeFAU/article-binder/internal/metrics"
	"github.com/JakeFAU/article-binder/internal/publisher/pubsub"
	"github.com/JakeFAU/article-binder/internal/ratelimit"
	"github.com/JakeFAU/article-binder/internal/runner"
	"github.com/JakeFAU/article-binder/internal/storage/gcs"
	"github.com/JakeFAU/article-binder/internal/storage/postgres"
)

const completionEvent = "document.completed"

// App holds the services shared by the CLI commands.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	store   *file.Store
	runner  *runner.Runner
	closers []func()
}

// New wires every component named in cfg. Optional integrations are only
// connected when configured. On error, anything already opened is closed.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	metrics.Init()

	a.store, err = file.New(cfg.Jobs.File)
	if err != nil {
		return nil, fmt.Errorf("init job store: %w", err)
	}

	imageFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      cfg.Fetch.Timeout,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		Retries:      cfg.Fetch.Retries,
		RetryBackoff: cfg.Fetch.RetryBackoff,
	}, logger.Named("fetch"))

	var pageFetcher binder.Fetcher = imageFetcher
	if cfg.Fetch.Headless || cfg.Fetch.HeadlessAuto {
		hf, herr := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Jobs.Concurrency,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: cfg.Fetch.HeadlessTimeout,
		}, logger.Named("headless"))
		if herr != nil {
			return nil, fmt.Errorf("init headless fetcher: %w", herr)
		}
		a.closers = append(a.closers, hf.Close)
		if cfg.Fetch.Headless {
			pageFetcher = hf
			logger.Info("rendering article pages with headless chrome")
		} else {
			pageFetcher = headless.NewPromoting(imageFetcher, hf, detector.NewHeuristic(0), logger.Named("headless"))
			logger.Info("rendering script-only article pages with headless chrome")
		}
	}

	limiter := ratelimit.New(ratelimit.Config{
		RPS:   cfg.Fetch.PerHostRPS,
		Burst: cfg.Fetch.PerHostBurst,
	})
	coord, err := download.New(ratelimit.Wrap(imageFetcher, limiter), download.Config{
		MinSize:     cfg.Download.MinSize,
		DefaultExt:  cfg.Download.DefaultExt,
		MaxParallel: cfg.Fetch.MaxParallel,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init downloader: %w", err)
	}

	deps := runner.Deps{
		Store:       a.store,
		PageFetcher: pageFetcher,
		Extractor: extractor.New(extractor.Config{
			TitleSelector: cfg.Extract.TitleSelector,
			URLAttr:       cfg.Extract.URLAttr,
			SizeAttr:      cfg.Extract.SizeAttr,
			FormatParam:   cfg.Extract.FormatParam,
		}),
		Downloader: coord,
		Converter:  convert.New(logger),
		Merger:     merge.New(merge.Config{Workers: cfg.Merge.Workers}, logger),
		Hasher:     sha256.New(),
		Clock:      clock.System{},
		IDs:        uuid.New(),
	}

	if cfg.Mirror.GCSBucket != "" {
		mirror, merr := a.openMirror(ctx)
		if merr != nil {
			return nil, merr
		}
		deps.Mirror = mirror
	}
	if cfg.Notify.Topic != "" {
		pub, perr := a.openPublisher(ctx)
		if perr != nil {
			return nil, perr
		}
		deps.Publisher = pub
	}
	if cfg.Ledger.DSN != "" {
		ledger, lerr := postgres.NewDocumentStore(ctx, postgres.DocumentStoreConfig{
			DSN:   cfg.Ledger.DSN,
			Table: cfg.Ledger.Table,
		})
		if lerr != nil {
			return nil, fmt.Errorf("init ledger: %w", lerr)
		}
		a.closers = append(a.closers, ledger.Close)
		deps.Ledger = ledger
		logger.Info("recording completed documents", zap.String("table", cfg.Ledger.Table))
	}

	a.runner, err = runner.New(runner.Config{
		OutputRoot:         cfg.Output.Root,
		JobConcurrency:     cfg.Jobs.Concurrency,
		ConvertParallelism: cfg.Convert.Parallelism,
		KeepPages:          cfg.Output.KeepPages,
		Topic:              cfg.Notify.Topic,
	}, deps, logger)
	if err != nil {
		return nil, fmt.Errorf("init runner: %w", err)
	}
	return a, nil
}

func (a *App) openMirror(ctx context.Context) (*gcs.BlobStore, error) {
	client, err := gstorage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("init gcs client: %w", err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Mirror.GCSBucket, Prefix: a.cfg.Mirror.Prefix})
	if err != nil {
		return nil, fmt.Errorf("init gcs mirror: %w", err)
	}
	a.logger.Info("mirroring documents", zap.String("bucket", a.cfg.Mirror.GCSBucket))
	return store, nil
}

func (a *App) openPublisher(ctx context.Context) (*pubsub.Publisher, error) {
	client, err := gpubsub.NewClient(ctx, a.cfg.Notify.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub client: %w", err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	pub := pubsub.New(client.Topic(a.cfg.Notify.Topic), map[string]string{"event": completionEvent})
	a.closers = append(a.closers, pub.Stop)
	a.logger.Info("publishing completions", zap.String("topic", a.cfg.Notify.Topic))
	return pub, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store returns the job store.
func (a *App) Store() *file.Store {
	return a.store
}

// Runner returns the job runner.
func (a *App) Runner() *runner.Runner {
	return a.runner
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
