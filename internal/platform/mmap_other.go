//go:build !unix

// Package platform maps archive files into memory.
package platform

import (
	"fmt"
	"io"
	"os"
)

// Map reads the whole of f into memory on platforms without mmap support.
func Map(f *os.File) ([]byte, func() error, error) {
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, fmt.Errorf("read: %w", err)
	}
	return data, func() error { return nil }, nil
}
