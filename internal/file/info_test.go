package file

import (
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInfo(t *testing.T) {
	t.Parallel()

	mod := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	info := NewInfo("test.txt", 100, 0o755, mod, "sys")

	assert.Equal(t, "test.txt", info.Name())
	assert.Equal(t, int64(100), info.Size())
	assert.Equal(t, fs.FileMode(0o755), info.Mode())
	assert.Equal(t, mod, info.ModTime())
	assert.False(t, info.IsDir())
	assert.Equal(t, "sys", info.Sys())
}

func TestDirInfo(t *testing.T) {
	t.Parallel()

	info := NewDirInfo("dir")
	assert.Equal(t, "dir", info.Name())
	assert.True(t, info.IsDir())
	assert.Equal(t, fs.ModeDir|0o755, info.Mode())
	assert.Zero(t, info.Size())

	de := NewDirEntry(info)
	assert.Equal(t, "dir", de.Name())
	assert.True(t, de.IsDir())
	assert.Equal(t, fs.ModeDir, de.Type())
	got, err := de.Info()
	assert.NoError(t, err)
	assert.Same(t, info, got)
}
