// Package batch extracts many archive entries concurrently into a Sink.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"runtime"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/meigma/zipmap/internal/sizing"
)

// Processor runs entry copies on a bounded worker pool.
type Processor struct {
	workers     int // 0 = auto, <0 = serial, >0 = fixed count
	maxInflight uint64
	logger      *slog.Logger
}

// log returns the logger, falling back to a discard logger if nil.
func (p *Processor) log() *slog.Logger {
	if p.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithWorkers sets the number of workers for parallel processing.
// Values < 0 force serial processing. Zero uses GOMAXPROCS.
func WithWorkers(n int) ProcessorOption {
	return func(p *Processor) {
		p.workers = n
	}
}

// WithMaxInflightBytes caps the sum of declared sizes being extracted at
// once. A value of 0 disables the budget.
func WithMaxInflightBytes(limit uint64) ProcessorOption {
	return func(p *Processor) {
		p.maxInflight = limit
	}
}

// WithProcessorLogger sets the logger for batch processing operations.
// If not set, logging is disabled.
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// NewProcessor creates a new batch processor.
func NewProcessor(opts ...ProcessorOption) *Processor {
	p := &Processor{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process extracts entries into sink.
//
// Directories are created first, parents before children. Files then run
// concurrently. A failing entry never stops its siblings; every failure is
// returned joined with errors.Join. Cancelling ctx stops scheduling new
// entries.
func (p *Processor) Process(ctx context.Context, entries []*Entry, sink Sink) (ProcessStats, error) {
	var (
		stats ProcessStats
		errs  []error
	)
	if len(entries) == 0 {
		return stats, nil
	}

	dirs, files := split(entries)
	for _, entry := range dirs {
		if err := sink.Mkdir(entry); err != nil {
			stats.Failed++
			errs = append(errs, &fs.PathError{Op: "mkdir", Path: entry.Path, Err: err})
			continue
		}
		stats.Dirs++
	}

	toProcess := make([]*Entry, 0, len(files))
	for _, entry := range files {
		if !sink.ShouldProcess(entry) {
			stats.Skipped++
			continue
		}
		toProcess = append(toProcess, entry)
	}
	p.log().Debug("batch processing", "dirs", len(dirs), "files", len(toProcess), "skipped", stats.Skipped)

	fileStats, err := p.processFiles(ctx, toProcess, sink)
	stats.add(fileStats)
	if err != nil {
		errs = append(errs, err)
	}
	return stats, errors.Join(errs...)
}

//nolint:gocognit // scheduling, budget and result collection share one loop
func (p *Processor) processFiles(ctx context.Context, entries []*Entry, sink Sink) (ProcessStats, error) {
	var (
		mu    sync.Mutex
		stats ProcessStats
		errs  []error
	)
	if len(entries) == 0 {
		return stats, nil
	}

	var budget *semaphore.Weighted
	var limit int64
	if p.maxInflight > 0 {
		var err error
		limit, err = sizing.ToInt64(p.maxInflight, errors.New("batch: in-flight budget overflows int64"))
		if err != nil {
			return stats, err
		}
		budget = semaphore.NewWeighted(limit)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.workerCount(len(entries)))

	for _, entry := range entries {
		if err := egCtx.Err(); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			break
		}
		weight := int64(0)
		if budget != nil {
			// An entry larger than the whole budget runs alone.
			weight = int64(sizing.Min(entry.Size, p.maxInflight)) //nolint:gosec // bounded by limit
			if err := budget.Acquire(egCtx, weight); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				break
			}
		}
		eg.Go(func() error {
			if budget != nil {
				defer budget.Release(weight)
			}
			n, err := p.processEntry(entry, sink)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.log().Debug("entry failed", "path", entry.Path, "error", err)
				stats.Failed++
				errs = append(errs, err)
				return nil
			}
			stats.Processed++
			stats.TotalBytes += n
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		errs = append(errs, err)
	}
	return stats, errors.Join(errs...)
}

// processEntry copies a single entry through a committer.
func (p *Processor) processEntry(entry *Entry, sink Sink) (uint64, error) {
	w, err := sink.Writer(entry)
	if err != nil {
		return 0, &fs.PathError{Op: "extract", Path: entry.Path, Err: err}
	}

	cw := &countingWriter{w: w}
	if err := entry.Copy(cw); err != nil {
		_ = w.Discard() //nolint:errcheck // best-effort cleanup
		return 0, err
	}
	if err := w.Commit(); err != nil {
		return 0, &fs.PathError{Op: "extract", Path: entry.Path, Err: fmt.Errorf("commit: %w", err)}
	}
	return cw.n, nil
}

// workerCount determines the number of workers to use.
func (p *Processor) workerCount(n int) int {
	if p.workers < 0 {
		return 1
	}
	workers := p.workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return max(1, min(workers, n))
}

// split separates directory entries, sorted so parents come first, from
// file entries.
func split(entries []*Entry) (dirs, files []*Entry) {
	for _, entry := range entries {
		if entry.Mode.IsDir() {
			dirs = append(dirs, entry)
		} else {
			files = append(files, entry)
		}
	}
	slices.SortFunc(dirs, func(a, b *Entry) int {
		return strings.Compare(a.Path, b.Path)
	})
	return dirs, files
}

type countingWriter struct {
	w io.Writer
	n uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += uint64(n) //nolint:gosec // n is never negative
	return n, err
}
