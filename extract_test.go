package zipmap_test

import (
	"context"
	"io/fs"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/zipmap"
	"github.com/meigma/zipmap/internal/testutil"
)

func TestArchive_ExtractTo(t *testing.T) {
	t.Parallel()

	mod := time.Date(2022, time.March, 4, 5, 6, 8, 0, time.UTC)
	body := randomText(40_000)
	z := build(t,
		testutil.Entry{Name: "bin/", Unix: 0o755},
		testutil.Entry{Name: "bin/run", Body: []byte("#!/bin/sh\n"), Unix: 0o750, Modified: mod},
		testutil.Entry{Name: "share/doc/readme.txt", Body: body, Method: 8},
		testutil.Entry{Name: "empty.txt"},
	)
	a := openArchive(t, z.Bytes)

	mem := afero.NewMemMapFs()
	stats, err := a.ExtractTo(context.Background(), mem, "/dest",
		zipmap.CopyWithPreserveMode(true),
		zipmap.CopyWithPreserveTimes(true),
		zipmap.CopyWithWorkers(2))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Processed)
	assert.Equal(t, 1, stats.Dirs)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, uint64(10+len(body)), stats.TotalBytes)

	got, err := afero.ReadFile(mem, "/dest/share/doc/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, body, got)

	info, err := mem.Stat("/dest/bin/run")
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o750), info.Mode().Perm())
	assert.True(t, info.ModTime().Equal(mod))

	info, err = mem.Stat("/dest/empty.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())
}

func TestArchive_ExtractToRejectsUnsafeNames(t *testing.T) {
	t.Parallel()

	z := build(t,
		testutil.Entry{Name: "../escape.txt", Body: []byte("x")},
		testutil.Entry{Name: "/etc/passwd", Body: []byte("x")},
		testutil.Entry{Name: `dir\..\..\win.txt`, Body: []byte("x")},
		testutil.Entry{Name: "a/../../b.txt", Body: []byte("x")},
		testutil.Entry{Name: "safe.txt", Body: []byte("ok")},
	)
	a := openArchive(t, z.Bytes)

	mem := afero.NewMemMapFs()
	stats, err := a.ExtractTo(context.Background(), mem, "/dest")
	require.ErrorIs(t, err, fs.ErrInvalid)
	assert.Equal(t, 4, stats.Failed)
	assert.Equal(t, 1, stats.Processed)

	var pathErr *fs.PathError
	require.ErrorAs(t, err, &pathErr)

	got, err := afero.ReadFile(mem, "/dest/safe.txt")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(got))

	for _, p := range []string{"/escape.txt", "/etc/passwd", "/b.txt", "/dest/b.txt"} {
		exists, err := afero.Exists(mem, p)
		require.NoError(t, err)
		assert.False(t, exists, p)
	}
}

func TestArchive_ExtractToFailuresDoNotStopSiblings(t *testing.T) {
	t.Parallel()

	z := build(t,
		testutil.Entry{Name: "good.txt", Body: []byte("good"), Method: 8},
		testutil.Entry{Name: "corrupt.txt", Body: []byte("corrupt"), Method: 8},
		testutil.Entry{Name: "bzip.bin", Method: 12, Body: []byte("b"), Payload: []byte("BZh")},
		testutil.Entry{Name: "also-good.txt", Body: []byte("also")},
	)
	z.PutUint32(z.Central[1]+testutil.CentralCRC, 9)
	z.PutUint32(z.Local[1]+testutil.LocalCRC, 9)
	a := openArchive(t, z.Bytes)

	mem := afero.NewMemMapFs()
	stats, err := a.ExtractTo(context.Background(), mem, "/out")
	require.ErrorIs(t, err, zipmap.ErrChecksumMismatch)
	require.ErrorIs(t, err, zipmap.ErrUnsupportedFormat)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 2, stats.Failed)

	for name, want := range map[string]string{"good.txt": "good", "also-good.txt": "also"} {
		got, err := afero.ReadFile(mem, "/out/"+name)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
	// A corrupt entry never appears at its final path.
	exists, err := afero.Exists(mem, "/out/corrupt.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestArchive_ExtractToSizeCeiling(t *testing.T) {
	t.Parallel()

	z := build(t,
		testutil.Entry{Name: "big.txt", Body: randomText(2000), Method: 8},
		testutil.Entry{Name: "small.txt", Body: []byte("small")},
	)
	a := openArchive(t, z.Bytes, zipmap.WithSizeCeiling(1000))

	stats, err := a.ExtractTo(context.Background(), afero.NewMemMapFs(), "/out")
	require.ErrorIs(t, err, zipmap.ErrEntryTooLarge)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Failed)

	stats, err = a.ExtractTo(context.Background(), afero.NewMemMapFs(), "/out",
		zipmap.CopyWithExtractOptions(zipmap.ExtractWithSizeCeiling(4000)))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)
}

func TestArchive_ExtractToSkipsExisting(t *testing.T) {
	t.Parallel()

	z := build(t, testutil.Entry{Name: "a.txt", Body: []byte("new")})
	a := openArchive(t, z.Bytes)

	mem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mem, "/out/a.txt", []byte("old"), 0o600))

	stats, err := a.ExtractTo(context.Background(), mem, "/out")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)

	stats, err = a.ExtractTo(context.Background(), mem, "/out", zipmap.CopyWithOverwrite(true))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	got, err := afero.ReadFile(mem, "/out/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestArchive_ExtractToCancelled(t *testing.T) {
	t.Parallel()

	z := build(t, testutil.Entry{Name: "a.txt", Body: []byte("a")})
	a := openArchive(t, z.Bytes)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.ExtractTo(ctx, afero.NewMemMapFs(), "/out")
	require.ErrorIs(t, err, context.Canceled)
}
