// Package merge folds ordered page documents into one document using a
// two-level reduction: contiguous chunks are merged concurrently into
// intermediates, which are then merged in chunk order into the output.
package merge

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-binder/internal/binder"
	"github.com/JakeFAU/article-binder/internal/metrics"
	"github.com/JakeFAU/article-binder/internal/pdf"
)

const defaultWorkers = 4

// FileMerger concatenates the documents in inputs, in order, into out.
// out does not exist when MergeFiles is called.
type FileMerger interface {
	MergeFiles(inputs []string, out string) error
}

// Config tunes the reduction.
type Config struct {
	Workers int
}

// Option customizes a Reducer.
type Option func(*Reducer)

// WithFileMerger replaces the pdfcpu merger.
func WithFileMerger(m FileMerger) Option {
	return func(r *Reducer) {
		if m != nil {
			r.merger = m
		}
	}
}

// Reducer implements the merge stage.
type Reducer struct {
	merger  FileMerger
	workers int
	logger  *zap.Logger
}

// New builds a Reducer backed by pdfcpu unless overridden.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Reducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	r := &Reducer{
		merger:  PDFMerger{},
		workers: workers,
		logger:  logger.Named("merge"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Partition splits pages into at most workers contiguous chunks of
// ceil(N/workers) pages. Chunk outputs are hidden files next to outPath.
func Partition(pages []binder.PageDocument, workers int, outPath string) []binder.MergeChunk {
	n := len(pages)
	if n == 0 {
		return nil
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	size := (n + workers - 1) / workers

	dir := filepath.Dir(outPath)
	stem := strings.TrimSuffix(filepath.Base(outPath), filepath.Ext(outPath))
	chunks := make([]binder.MergeChunk, 0, workers)
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		paths := make([]string, 0, end-start)
		for _, p := range pages[start:end] {
			paths = append(paths, p.LocalPath)
		}
		idx := len(chunks)
		chunks = append(chunks, binder.MergeChunk{
			Index:      idx,
			First:      pages[start].Ordinal,
			Last:       pages[end-1].Ordinal,
			Pages:      paths,
			OutputPath: filepath.Join(dir, fmt.Sprintf(".%s.part%03d.%s", stem, idx, binder.PageExt)),
		})
	}
	return chunks
}

// Merge writes pages, which must be in strictly ascending ordinal order, to
// outPath. Input problems are reported as precondition errors before any
// work starts. Any merge failure returns *binder.MergeError and leaves
// outPath untouched. Intermediate documents are always removed.
func (r *Reducer) Merge(ctx context.Context, pages []binder.PageDocument, outPath string) error {
	if err := validate(pages); err != nil {
		return err
	}
	start := time.Now()
	chunks := Partition(pages, r.workers, outPath)
	logger := r.logger.With(zap.String("output", outPath), zap.Int("pages", len(pages)), zap.Int("chunks", len(chunks)))

	defer func() {
		for _, c := range chunks {
			removeQuietly(c.OutputPath)
		}
	}()

	if len(chunks) == 1 {
		if err := r.commit(chunks[0].Pages, outPath); err != nil {
			return err
		}
	} else {
		if err := r.mergeChunks(ctx, chunks); err != nil {
			return err
		}
		intermediates := make([]string, 0, len(chunks))
		for _, c := range chunks {
			intermediates = append(intermediates, c.OutputPath)
		}
		if err := r.commit(intermediates, outPath); err != nil {
			return err
		}
	}

	elapsed := time.Since(start)
	metrics.ObserveMerge(len(pages), elapsed)
	logger.Info("document merged", zap.Duration("elapsed", elapsed))
	return nil
}

// mergeChunks runs the leaf merges on a fixed pool fed by a channel, so a
// worker that finishes early picks up the next chunk.
func (r *Reducer) mergeChunks(ctx context.Context, chunks []binder.MergeChunk) error {
	tasks := make(chan binder.MergeChunk)
	errs := make([]error, len(chunks))

	var wg sync.WaitGroup
	for w := 0; w < min(r.workers, len(chunks)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range tasks {
				if err := ctx.Err(); err != nil {
					errs[c.Index] = err
					continue
				}
				removeQuietly(c.OutputPath)
				if err := r.merger.MergeFiles(c.Pages, c.OutputPath); err != nil {
					errs[c.Index] = err
					continue
				}
				r.logger.Debug("chunk merged",
					zap.Int("chunk", c.Index),
					zap.Int("first", c.First),
					zap.Int("last", c.Last),
				)
			}
		}()
	}
	for _, c := range chunks {
		tasks <- c
	}
	close(tasks)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return &binder.MergeError{Chunk: i, Err: err}
		}
	}
	return nil
}

// commit merges inputs into a temp file beside outPath and renames it over
// outPath only on success.
func (r *Reducer) commit(inputs []string, outPath string) error {
	dir := filepath.Dir(outPath)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(outPath)+".*.tmp")
	if err != nil {
		return &binder.MergeError{Chunk: -1, Err: fmt.Errorf("create temp output: %w", err)}
	}
	tmpName := tmp.Name()
	_ = tmp.Close()
	// The merger expects to create its output.
	removeQuietly(tmpName)
	defer removeQuietly(tmpName)

	if err := r.merger.MergeFiles(inputs, tmpName); err != nil {
		return &binder.MergeError{Chunk: -1, Err: err}
	}
	if err := os.Rename(tmpName, outPath); err != nil {
		return &binder.MergeError{Chunk: -1, Err: fmt.Errorf("commit %s: %w", outPath, err)}
	}
	return nil
}

func validate(pages []binder.PageDocument) error {
	if len(pages) == 0 {
		return binder.ErrEmptyMergeInput
	}
	for i := 1; i < len(pages); i++ {
		if pages[i].Ordinal <= pages[i-1].Ordinal {
			return fmt.Errorf("%w: ordinal %d follows %d", binder.ErrDuplicateOrdinal, pages[i].Ordinal, pages[i-1].Ordinal)
		}
	}
	return nil
}

func removeQuietly(path string) {
	_ = os.Remove(path)
}

// PDFMerger merges PDF files with pdfcpu. Each merge builds its own
// configuration because pdfcpu writes to it while running.
type PDFMerger struct{}

// MergeFiles implements FileMerger.
func (m PDFMerger) MergeFiles(inputs []string, out string) error {
	switch len(inputs) {
	case 0:
		return binder.ErrEmptyMergeInput
	case 1:
		return copyFile(inputs[0], out)
	}
	if err := api.MergeCreateFile(inputs, out, false, pdf.Configuration()); err != nil {
		return fmt.Errorf("pdfcpu merge into %s: %w", filepath.Base(out), err)
	}
	return nil
}

func copyFile(src, dst string) error {
	// #nosec G304 -- src is a page document in the job directory.
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return nil
}
