package zipmap

import (
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/meigma/zipmap/internal/platform"
)

// ArchiveFile is an Archive over a memory-mapped file.
//
// Entries, names and chunks obtained from it alias the mapping and must not
// be used after Close.
type ArchiveFile struct {
	*Archive

	release   func() error
	closeOnce sync.Once
	closeErr  error
}

// OpenFile maps the file at path read-only and parses it with Open.
//
// The file descriptor is closed before OpenFile returns; the mapping stays
// valid until Close. On platforms without mmap the file is read into
// memory instead.
func OpenFile(path string, opts ...Option) (*ArchiveFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, release, err := platform.Map(f)
	if err != nil {
		return nil, &fs.PathError{Op: "mmap", Path: path, Err: err}
	}

	a, err := Open(data, opts...)
	if err != nil {
		_ = release() //nolint:errcheck // the open error is more useful
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &ArchiveFile{Archive: a, release: release}, nil
}

// Close unmaps the file. It is safe to call more than once.
func (f *ArchiveFile) Close() error {
	f.closeOnce.Do(func() {
		f.closeErr = f.release()
	})
	return f.closeErr
}
