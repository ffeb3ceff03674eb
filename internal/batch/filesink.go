package batch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// FileSink writes entries below a directory of an afero.Fs.
//
// By default, files are written to a temporary file in the same directory
// and renamed to the final path on Commit. This ensures that partially
// written files are never visible at the final path.
type FileSink struct {
	fs            afero.Fs
	destDir       string
	overwrite     bool
	preserveMode  bool
	preserveTimes bool
}

// FileSinkOption configures a FileSink.
type FileSinkOption func(*FileSink)

// WithOverwrite allows overwriting existing files.
// By default, existing files are skipped.
func WithOverwrite(overwrite bool) FileSinkOption {
	return func(s *FileSink) {
		s.overwrite = overwrite
	}
}

// WithPreserveMode preserves file permission modes from the archive.
// By default, files are created with mode 0o600 and directories 0o750.
func WithPreserveMode(preserve bool) FileSinkOption {
	return func(s *FileSink) {
		s.preserveMode = preserve
	}
}

// WithPreserveTimes preserves file modification times from the archive.
// By default, times are not preserved (files use current time).
func WithPreserveTimes(preserve bool) FileSinkOption {
	return func(s *FileSink) {
		s.preserveTimes = preserve
	}
}

// NewFileSink creates a FileSink that writes to destDir on fsys.
// Parent directories are created automatically as needed.
func NewFileSink(fsys afero.Fs, destDir string, opts ...FileSinkOption) *FileSink {
	s := &FileSink{
		fs:      fsys,
		destDir: destDir,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// destPath maps a slash-separated entry path below destDir.
func (s *FileSink) destPath(entry *Entry) (string, error) {
	if !fs.ValidPath(entry.Path) || entry.Path == "." {
		return "", fs.ErrInvalid
	}
	return filepath.Join(s.destDir, filepath.FromSlash(entry.Path)), nil
}

// ShouldProcess returns false if the file already exists and overwrite is disabled.
func (s *FileSink) ShouldProcess(entry *Entry) bool {
	if s.overwrite {
		return true
	}
	dest, err := s.destPath(entry)
	if err != nil {
		// Let Writer report the invalid path.
		return true
	}
	exists, err := afero.Exists(s.fs, dest)
	return err != nil || !exists
}

// Mkdir creates the directory for a directory entry.
func (s *FileSink) Mkdir(entry *Entry) error {
	dest, err := s.destPath(entry)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(dest, 0o750); err != nil {
		return fmt.Errorf("create directory %s: %w", dest, err)
	}
	return s.applyMetadata(dest, entry)
}

// Writer returns a Committer that writes to a temp file and renames on Commit.
func (s *FileSink) Writer(entry *Entry) (Committer, error) {
	dest, err := s.destPath(entry)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(dest)
	if err := s.fs.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}
	if info, err := s.fs.Stat(dest); err == nil && info.IsDir() {
		return nil, fmt.Errorf("%s: is a directory", dest)
	}

	tmp, err := afero.TempFile(s.fs, dir, ".zipmap-")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &fileCommitter{
		entry:    entry,
		destPath: dest,
		tempFile: tmp,
		sink:     s,
	}, nil
}

func (s *FileSink) applyMetadata(path string, entry *Entry) error {
	if s.preserveMode {
		if err := s.fs.Chmod(path, entry.Mode.Perm()); err != nil {
			return fmt.Errorf("chmod: %w", err)
		}
	}
	if s.preserveTimes && !entry.ModTime.IsZero() {
		if err := s.fs.Chtimes(path, entry.ModTime, entry.ModTime); err != nil {
			return fmt.Errorf("chtimes: %w", err)
		}
	}
	return nil
}

// fileCommitter writes to a temp file and renames on Commit.
type fileCommitter struct {
	entry    *Entry
	destPath string
	tempFile afero.File
	sink     *FileSink
}

// Write implements io.Writer.
func (c *fileCommitter) Write(p []byte) (int, error) {
	return c.tempFile.Write(p)
}

// Commit closes the temp file, applies metadata, and renames to final path.
func (c *fileCommitter) Commit() error {
	tempPath := c.tempFile.Name()
	if err := c.tempFile.Close(); err != nil {
		_ = c.sink.fs.Remove(tempPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := c.sink.applyMetadata(tempPath, c.entry); err != nil {
		_ = c.sink.fs.Remove(tempPath) //nolint:errcheck // best-effort cleanup
		return err
	}

	// Rename fails on some platforms when the destination exists.
	if c.sink.overwrite {
		if err := c.sink.fs.Remove(c.destPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			_ = c.sink.fs.Remove(tempPath) //nolint:errcheck // best-effort cleanup
			return fmt.Errorf("remove %s: %w", c.destPath, err)
		}
	}
	if err := c.sink.fs.Rename(tempPath, c.destPath); err != nil {
		_ = c.sink.fs.Remove(tempPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", c.destPath, err)
	}
	return nil
}

// Discard closes and removes the temp file.
func (c *fileCommitter) Discard() error {
	_ = c.tempFile.Close() //nolint:errcheck // we're cleaning up
	return c.sink.fs.Remove(c.tempFile.Name())
}
