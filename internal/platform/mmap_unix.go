//go:build unix

// Package platform maps archive files into memory.
package platform

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/meigma/zipmap/internal/sizing"
)

// Map maps the whole of f read-only. The returned release function unmaps
// it; the bytes must not be touched afterwards.
func Map(f *os.File) ([]byte, func() error, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("stat: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return nil, func() error { return nil }, nil
	}
	n, err := sizing.ToInt(uint64(size), fmt.Errorf("mmap: file of %d bytes too large", size)) //nolint:gosec // size is non-negative
	if err != nil {
		return nil, nil, err
	}
	data, err := unix.Mmap(int(f.Fd()), 0, n, unix.PROT_READ, unix.MAP_SHARED) //nolint:gosec // fd fits in int
	if err != nil {
		return nil, nil, fmt.Errorf("mmap: %w", err)
	}
	return data, func() error { return unix.Munmap(data) }, nil
}
