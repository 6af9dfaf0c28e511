// Package runner drives each job through fetch, convert and merge, and
// checkpoints finished jobs to the job store one at a time.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/article-binder/internal/binder"
	"github.com/JakeFAU/article-binder/internal/download"
	"github.com/JakeFAU/article-binder/internal/extractor"
	"github.com/JakeFAU/article-binder/internal/metrics"
	"github.com/JakeFAU/article-binder/internal/storage/local"
)

// ErrNoOutput means a job produced no page documents. The job stays pending
// but the run does not treat it as a failure.
var ErrNoOutput = errors.New("no page documents produced")

var pageName = regexp.MustCompile(`^[0-9]+\.` + binder.PageExt + `$`)

// Downloader fetches a job's resources into its directory.
type Downloader interface {
	Download(ctx context.Context, descs []binder.ResourceDescriptor, sink binder.ResourceSink) (download.Result, error)
}

// Converter turns one raster into its page document.
type Converter interface {
	Convert(ctx context.Context, rasterPath string) (binder.PageDocument, binder.ConvertOutcome, error)
}

// Merger folds ordered page documents into one output.
type Merger interface {
	Merge(ctx context.Context, pages []binder.PageDocument, outPath string) error
}

// Mirror copies a finished document to remote storage.
type Mirror interface {
	MirrorFile(ctx context.Context, localPath, name string) (string, error)
}

// Config tunes the runner.
type Config struct {
	// OutputRoot overrides the collection's root when set.
	OutputRoot string
	// JobConcurrency bounds concurrently running jobs.
	JobConcurrency int
	// ConvertParallelism bounds conversions within a job; zero means NumCPU.
	ConvertParallelism int
	// KeepPages retains per-page documents after a job completes.
	KeepPages bool
	// Topic names the completion topic passed to the publisher.
	Topic string
}

// Deps are the collaborators a Runner drives. Mirror, Publisher, Ledger and
// Hasher are optional.
type Deps struct {
	Store       binder.JobStore
	PageFetcher binder.Fetcher
	Extractor   binder.PageExtractor
	Downloader  Downloader
	Converter   Converter
	Merger      Merger
	Mirror      Mirror
	Publisher   binder.Publisher
	Ledger      binder.Ledger
	Hasher      binder.Hasher
	Clock       binder.Clock
	IDs         binder.IDGenerator
}

// Summary counts final job stages for one run.
type Summary struct {
	RunID     string
	Total     int
	Completed int
	Skipped   int
	Pending   int
	Empty     int
}

// Runner executes the job list.
type Runner struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger

	dirMu sync.Mutex
	dirs  map[string]*sync.Mutex
}

// New validates deps and builds a Runner.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Runner, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("job store is required")
	case deps.PageFetcher == nil:
		return nil, fmt.Errorf("page fetcher is required")
	case deps.Extractor == nil:
		return nil, fmt.Errorf("extractor is required")
	case deps.Downloader == nil:
		return nil, fmt.Errorf("downloader is required")
	case deps.Converter == nil:
		return nil, fmt.Errorf("converter is required")
	case deps.Merger == nil:
		return nil, fmt.Errorf("merger is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	if cfg.JobConcurrency <= 0 {
		cfg.JobConcurrency = 1
	}
	if cfg.ConvertParallelism <= 0 {
		cfg.ConvertParallelism = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:    cfg,
		deps:   deps,
		logger: logger.Named("runner"),
		dirs:   make(map[string]*sync.Mutex),
	}, nil
}

// RunAll loads the job list and runs every job. Per-job failures are logged
// and leave the job pending; the returned error only reports a run that
// could not load its jobs or was canceled.
func (r *Runner) RunAll(ctx context.Context) (Summary, error) {
	coll, err := r.deps.Store.Load(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load jobs: %w", err)
	}
	runID, err := r.deps.IDs.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("run id: %w", err)
	}
	root := coll.OutputRoot
	if strings.TrimSpace(r.cfg.OutputRoot) != "" {
		root = r.cfg.OutputRoot
	}
	logger := r.logger.With(zap.String("run_id", runID))
	logger.Info("run started", zap.Int("jobs", len(coll.Jobs)), zap.String("root", root))

	var (
		mu      sync.Mutex
		summary = Summary{RunID: runID, Total: len(coll.Jobs)}
	)
	g := new(errgroup.Group)
	g.SetLimit(r.cfg.JobConcurrency)
	for i, job := range coll.Jobs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			state, err := r.RunJob(ctx, runID, i, job, root)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case state.Stage == StageSkipped:
				summary.Skipped++
			case state.Stage == StageComplete && err == nil:
				summary.Completed++
			case errors.Is(err, ErrNoOutput):
				summary.Empty++
			default:
				summary.Pending++
			}
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("run finished",
		zap.Int("completed", summary.Completed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("pending", summary.Pending),
		zap.Int("empty", summary.Empty),
	)
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("run interrupted: %w", err)
	}
	return summary, nil
}

// RunJob drives one job to Complete, or returns it to Pending with the
// reason. index is the job's position in the persisted list.
func (r *Runner) RunJob(ctx context.Context, runID string, index int, job binder.Job, root string) (JobState, error) {
	state := Start(job)
	logger := r.logger.With(zap.String("job_url", job.SourceURL), zap.Int("job_index", index))
	if state.Stage == StageSkipped {
		logger.Debug("job skipped", zap.Bool("complete", job.IsComplete))
		return state, nil
	}

	started := r.deps.Clock.Now()
	metrics.IncActiveJobs()
	defer metrics.DecActiveJobs()

	result, err := r.process(ctx, state, job.Root(root), logger)
	final := result.state
	switch {
	case err == nil:
	case errors.Is(err, ErrNoOutput):
		logger.Warn("job produced no output", zap.String("stage", result.state.Stage.String()))
		final = result.state.Abort()
	default:
		logger.Error("job aborted", zap.String("stage", result.state.Stage.String()), zap.Error(err))
		final = result.state.Abort()
	}
	metrics.ObserveJob(final.Stage.String(), r.deps.Clock.Now().Sub(started))
	if err != nil {
		return final, err
	}

	if err := r.deps.Store.UpdateJob(ctx, index, final.Job); err != nil {
		logger.Error("checkpoint failed", zap.Error(err))
		return state.Abort(), fmt.Errorf("checkpoint job %d: %w", index, err)
	}
	logger.Info("job complete", zap.String("output", final.Job.OutputPath), zap.Int("pages", len(result.pages)))

	if !r.cfg.KeepPages {
		r.removePages(result.pages, logger)
	}
	r.afterComplete(ctx, runID, final.Job, result, logger)
	return final, nil
}

type jobResult struct {
	state     JobState
	container string
	pages     []binder.PageDocument
}

func (r *Runner) process(ctx context.Context, state JobState, root string, logger *zap.Logger) (jobResult, error) {
	res := jobResult{state: state}
	job := state.Job

	var err error
	if res.state, err = res.state.Advance(StageFetching); err != nil {
		return res, err
	}
	markup, err := r.deps.PageFetcher.Fetch(ctx, job.SourceURL)
	if err != nil {
		return res, fmt.Errorf("fetch page: %w", err)
	}
	name, descs, err := r.deps.Extractor.Extract(markup, job.Selector)
	if err != nil {
		return res, fmt.Errorf("extract: %w", err)
	}
	descs = extractor.Resolve(job.SourceURL, descs)
	res.container = name

	dir := filepath.Join(root, name)
	unlock := r.lockDir(dir)
	defer unlock()
	logger = logger.With(zap.String("container", name), zap.String("path", dir))

	sink, err := local.New(local.Config{BaseDir: dir})
	if err != nil {
		return res, fmt.Errorf("open destination: %w", err)
	}
	dl, err := r.deps.Downloader.Download(ctx, descs, sink)
	if err != nil {
		return res, err
	}
	logger.Info("fetch stage done",
		zap.Int("candidates", len(descs)),
		zap.Int("fetched", len(dl.Fetched)),
		zap.Int("existing", len(dl.Existing)),
		zap.Int("failed", len(dl.Failed)),
		zap.Int("filtered", dl.Filtered),
	)

	if res.state, err = res.state.Advance(StageConverting); err != nil {
		return res, err
	}
	if err := r.convertDir(ctx, dir, logger); err != nil {
		return res, err
	}

	if res.state, err = res.state.Advance(StageMerging); err != nil {
		return res, err
	}
	outPath := filepath.Join(dir, name+"."+binder.PageExt)
	pages, err := collectPages(dir, outPath)
	if err != nil {
		return res, err
	}
	if len(pages) == 0 {
		return res, ErrNoOutput
	}
	res.pages = pages
	if err := r.deps.Merger.Merge(ctx, pages, outPath); err != nil {
		return res, fmt.Errorf("merge: %w", err)
	}

	res.state, err = res.state.Complete(outPath)
	return res, err
}

// convertDir converts every raster currently in dir, including ones left
// behind by earlier runs. Every raster is attempted; any failure fails the
// stage, and the failed rasters stay on disk for the next run.
func (r *Runner) convertDir(ctx context.Context, dir string, logger *zap.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}
	var (
		mu     sync.Mutex
		failed []error
	)
	g := new(errgroup.Group)
	g.SetLimit(r.cfg.ConvertParallelism)
	for _, e := range entries {
		if !isRasterCandidate(e) {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		p := filepath.Join(dir, e.Name())
		g.Go(func() error {
			_, outcome, err := r.deps.Converter.Convert(ctx, p)
			if err != nil {
				logger.Warn("conversion failed", zap.String("file", e.Name()), zap.Error(err))
				mu.Lock()
				failed = append(failed, fmt.Errorf("%s: %w", e.Name(), err))
				mu.Unlock()
				return nil
			}
			logger.Debug("conversion", zap.String("file", e.Name()), zap.Stringer("outcome", outcome))
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("convert canceled: %w", err)
	}
	if len(failed) > 0 {
		return fmt.Errorf("convert %d of the rasters: %w", len(failed), errors.Join(failed...))
	}
	return nil
}

func isRasterCandidate(e os.DirEntry) bool {
	name := e.Name()
	if !e.Type().IsRegular() || strings.HasPrefix(name, ".") {
		return false
	}
	return !strings.EqualFold(filepath.Ext(name), "."+binder.PageExt)
}

// collectPages lists page documents in dir in ordinal order, ignoring the
// merged output itself.
func collectPages(dir, outPath string) ([]binder.PageDocument, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	var pages []binder.PageDocument
	for _, e := range entries {
		if !e.Type().IsRegular() || !pageName.MatchString(e.Name()) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if p == outPath {
			continue
		}
		n, ok := binder.ParseOrdinal(p)
		if !ok {
			continue
		}
		pages = append(pages, binder.PageDocument{Ordinal: n, LocalPath: p})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Ordinal < pages[j].Ordinal })
	return pages, nil
}

func (r *Runner) removePages(pages []binder.PageDocument, logger *zap.Logger) {
	for _, p := range pages {
		if err := os.Remove(p.LocalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to remove page document", zap.String("file", p.LocalPath), zap.Error(err))
		}
	}
}

// afterComplete runs the optional post-completion steps. The job is already
// checkpointed, so failures here are only logged.
func (r *Runner) afterComplete(ctx context.Context, runID string, job binder.Job, res jobResult, logger *zap.Logger) {
	rec := binder.DocumentRecord{
		RunID:       runID,
		SourceURL:   job.SourceURL,
		Container:   res.container,
		OutputPath:  job.OutputPath,
		Pages:       len(res.pages),
		CompletedAt: r.deps.Clock.Now(),
	}
	if r.deps.Hasher != nil {
		sum, err := r.deps.Hasher.HashFile(job.OutputPath)
		if err != nil {
			logger.Warn("digest failed", zap.Error(err))
		}
		rec.SHA256 = sum
	}
	if r.deps.Mirror != nil {
		name := path.Join(res.container, filepath.Base(job.OutputPath))
		uri, err := r.deps.Mirror.MirrorFile(ctx, job.OutputPath, name)
		if err != nil {
			logger.Warn("mirror upload failed", zap.Error(err))
		} else {
			rec.MirrorURI = uri
			logger.Info("document mirrored", zap.String("uri", uri))
		}
	}
	if r.deps.Ledger != nil {
		if err := r.deps.Ledger.RecordDocument(ctx, rec); err != nil {
			logger.Warn("ledger write failed", zap.Error(err))
		}
	}
	if r.deps.Publisher != nil {
		id, err := r.deps.Publisher.Publish(ctx, r.cfg.Topic, rec)
		if err != nil {
			logger.Warn("completion notify failed", zap.Error(err))
		} else {
			logger.Debug("completion published", zap.String("message_id", id))
		}
	}
}

// lockDir serializes jobs that resolve to the same destination directory.
func (r *Runner) lockDir(dir string) func() {
	r.dirMu.Lock()
	mu, ok := r.dirs[dir]
	if !ok {
		mu = &sync.Mutex{}
		r.dirs[dir] = mu
	}
	r.dirMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// JobStatus describes a persisted job for the status command.
func JobStatus(job binder.Job) string {
	switch {
	case job.IsComplete:
		return StageComplete.String()
	case strings.TrimSpace(job.SourceURL) == "":
		return StageSkipped.String()
	default:
		return StagePending.String()
	}
}
