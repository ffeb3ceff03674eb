package zipmap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/spf13/afero"

	"github.com/meigma/zipmap/internal/batch"
)

// ExtractStats reports the outcome of ExtractTo.
type ExtractStats = batch.ProcessStats

// ExtractTo writes every entry of the archive below dir on dst.
//
// Directories are created first. Files are extracted concurrently, each to
// a temporary file renamed into place once its CRC-32 has been verified,
// so a corrupt entry never leaves partial content at its final path.
// Existing files are skipped unless CopyWithOverwrite is set.
//
// Entries that cannot be extracted (see Entry.Err) and entries whose name
// is absolute, contains ".." or "\" elements, or is otherwise not a valid
// slash-separated path are counted as failed. A failing entry never stops
// the others: ExtractTo returns all failures joined with errors.Join,
// each a *fs.PathError naming the entry.
func (a *Archive) ExtractTo(ctx context.Context, dst afero.Fs, dir string, opts ...CopyOption) (ExtractStats, error) {
	cfg := copyConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	ecfg := extractConfig{}
	for _, opt := range cfg.extract {
		opt(&ecfg)
	}
	limits := a.limits(&ecfg)

	var (
		stats   ExtractStats
		errs    []error
		entries []*batch.Entry
	)
	for e := range a.Entries() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		p, ok := extractPath(e.Name())
		if !ok {
			if p == "." {
				continue
			}
			stats.Failed++
			errs = append(errs, e.pathError("extract", fmt.Errorf("%w: unsafe entry name", fs.ErrInvalid)))
			continue
		}

		if e.IsDir() {
			entries = append(entries, &batch.Entry{
				Path:    p,
				Mode:    fs.ModeDir | e.Mode().Perm(),
				ModTime: e.Modified(),
			})
			continue
		}

		if err := e.Err(); err != nil {
			if !errors.Is(err, ErrEntryTooLarge) || limits.CheckDeclared(e.UncompressedSize()) != nil {
				stats.Failed++
				errs = append(errs, e.pathError("extract", err))
				continue
			}
		}
		entries = append(entries, &batch.Entry{
			Path:    p,
			Mode:    e.Mode().Perm(),
			ModTime: e.Modified(),
			Size:    e.UncompressedSize(),
			Copy: func(w io.Writer) error {
				return e.copyTo(ctx, w, cfg.extract)
			},
		})
	}

	sink := batch.NewFileSink(dst, dir,
		batch.WithOverwrite(cfg.overwrite),
		batch.WithPreserveMode(cfg.preserveMode),
		batch.WithPreserveTimes(cfg.preserveTimes))
	proc := batch.NewProcessor(
		batch.WithWorkers(cfg.workers),
		batch.WithMaxInflightBytes(cfg.maxInflight),
		batch.WithProcessorLogger(a.logger))

	batchStats, err := proc.Process(ctx, entries, sink)
	stats.Processed += batchStats.Processed
	stats.Dirs += batchStats.Dirs
	stats.Skipped += batchStats.Skipped
	stats.Failed += batchStats.Failed
	stats.TotalBytes += batchStats.TotalBytes
	if err != nil {
		errs = append(errs, err)
	}

	a.log().Debug("extracted archive",
		"dir", dir,
		"files", stats.Processed,
		"dirs", stats.Dirs,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"bytes", stats.TotalBytes)
	return stats, errors.Join(errs...)
}

// copyTo streams the verified content of e into w.
func (e *Entry) copyTo(ctx context.Context, w io.Writer, opts []ExtractOption) error {
	for chunk, err := range e.Extract(opts...) {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return e.pathError("extract", err)
		}
		if _, err := w.Write(chunk); err != nil {
			return e.pathError("write", err)
		}
	}
	return nil
}

// extractPath returns the relative destination path for an entry name.
// It returns "." and false for names that denote the archive root.
func extractPath(name string) (string, bool) {
	if strings.ContainsRune(name, '\\') || strings.HasPrefix(name, "/") {
		return "", false
	}
	p := NormalizePath(name)
	if p == "." {
		return p, false
	}
	return p, fs.ValidPath(p)
}
