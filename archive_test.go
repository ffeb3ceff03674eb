package zipmap_test

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/zipmap"
	"github.com/meigma/zipmap/internal/testutil"
)

func build(t *testing.T, entries ...testutil.Entry) *testutil.Archive {
	t.Helper()
	return testutil.Build(t, entries, "")
}

func openArchive(t *testing.T, buf []byte, opts ...zipmap.Option) *zipmap.Archive {
	t.Helper()
	a, err := zipmap.Open(buf, opts...)
	require.NoError(t, err)
	return a
}

func extractAll(t *testing.T, e *zipmap.Entry, opts ...zipmap.ExtractOption) ([]byte, error) {
	t.Helper()
	var out []byte
	for chunk, err := range e.Extract(opts...) {
		if err != nil {
			return out, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func TestOpen_SingleStoredEntry(t *testing.T) {
	t.Parallel()

	z := build(t, testutil.Entry{Name: "a.txt", Body: []byte("abcd")})
	a := openArchive(t, z.Bytes)

	require.Equal(t, 1, a.Len())
	e, ok := a.Lookup("a.txt")
	require.True(t, ok)
	assert.Equal(t, "a.txt", e.Name())
	assert.Equal(t, zipmap.Stored, e.Method())
	assert.Equal(t, uint64(4), e.CompressedSize())
	assert.Equal(t, uint64(4), e.UncompressedSize())
	assert.Equal(t, uint32(0xed82cd11), e.CRC32())
	require.NoError(t, e.Err())

	var chunks [][]byte
	for chunk, err := range e.Extract() {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	require.Len(t, chunks, 1)
	assert.Equal(t, []byte("abcd"), chunks[0])
	// Stored content is a view of the archive buffer.
	assert.Same(t, &z.Bytes[z.DataOffset(0)], &chunks[0][0])
}

func TestOpen_EntryCountMatchesDirectory(t *testing.T) {
	t.Parallel()

	var entries []testutil.Entry
	for i := range 25 {
		entries = append(entries, testutil.Entry{
			Name: fmt.Sprintf("f%02d.txt", i),
			Body: []byte(fmt.Sprintf("content %d", i)),
		})
	}
	z := testutil.Build(t, entries, "release notes")
	a := openArchive(t, z.Bytes)

	assert.Equal(t, 25, a.Len())
	assert.Equal(t, []byte("release notes"), a.Comment())

	i := 0
	for e := range a.Entries() {
		assert.Equal(t, i, e.Index())
		assert.Equal(t, entries[i].Name, e.Name())
		i++
	}
	assert.Equal(t, 25, i)
}

func TestOpen_Empty(t *testing.T) {
	t.Parallel()

	z := build(t)
	a := openArchive(t, z.Bytes)
	assert.Equal(t, 0, a.Len())
	for range a.Entries() {
		t.Fatal("unexpected entry")
	}
}

func TestOpen_Truncated(t *testing.T) {
	t.Parallel()

	z := build(t,
		testutil.Entry{Name: "a.txt", Body: []byte("abcd")},
		testutil.Entry{Name: "b.txt", Body: []byte("efgh"), Method: 8},
	)

	tests := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"shorter than record", 10},
		{"half", len(z.Bytes) / 2},
		{"missing last byte", len(z.Bytes) - 1},
		{"inside directory", z.EOCD - 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := zipmap.Open(z.Bytes[:tt.size])
			require.ErrorIs(t, err, zipmap.ErrMalformedArchive)
		})
	}
}

func TestOpen_Zip64EntryCount(t *testing.T) {
	t.Parallel()

	z := build(t, testutil.Entry{Name: "a.txt", Body: []byte("abcd")})
	z.PutUint16(z.EOCD+testutil.EOCDEntriesOnDisk, 0xffff)
	z.PutUint16(z.EOCD+testutil.EOCDTotalEntries, 0xffff)

	_, err := zipmap.Open(z.Bytes)
	require.ErrorIs(t, err, zipmap.ErrUnsupportedFormat)
}

func TestOpen_MultiDisk(t *testing.T) {
	t.Parallel()

	z := build(t, testutil.Entry{Name: "a.txt", Body: []byte("abcd")})
	z.PutUint16(z.EOCD+testutil.EOCDDiskNumber, 1)

	_, err := zipmap.Open(z.Bytes)
	require.ErrorIs(t, err, zipmap.ErrUnsupportedFormat)
}

func TestOpen_LocalOffsetOutOfBounds(t *testing.T) {
	t.Parallel()

	z := build(t, testutil.Entry{Name: "a.txt", Body: []byte("abcd")})
	z.PutUint32(z.Central[0]+testutil.CentralLocalOffset, uint32(len(z.Bytes)))

	_, err := zipmap.Open(z.Bytes)
	require.ErrorIs(t, err, zipmap.ErrMalformedArchive)
}

func TestOpen_LocalHeaderPastLastBytes(t *testing.T) {
	t.Parallel()

	z := build(t, testutil.Entry{Name: "empty.txt"})
	for _, off := range []int{len(z.Bytes), len(z.Bytes) - 29} {
		z.PutUint32(z.Central[0]+testutil.CentralLocalOffset, uint32(off)) //nolint:gosec // small test archive
		_, err := zipmap.Open(z.Bytes)
		require.ErrorIs(t, err, zipmap.ErrMalformedArchive, "offset %d", off)
	}
}

func TestOpen_Zip64LocalHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		field int
	}{
		{"compressed size", testutil.LocalCompressedSize},
		{"uncompressed size", testutil.LocalUncompressedSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			z := build(t,
				testutil.Entry{Name: "a.txt", Body: []byte("abcd")},
				testutil.Entry{Name: "b.txt", Body: []byte("efgh")},
			)
			z.PutUint32(z.Local[1]+tt.field, 0xffffffff)

			a, err := zipmap.Open(z.Bytes)
			require.ErrorIs(t, err, zipmap.ErrUnsupportedFormat)
			assert.Nil(t, a)
		})
	}
}

func TestArchive_Entry(t *testing.T) {
	t.Parallel()

	z := build(t,
		testutil.Entry{Name: "a.txt", Body: []byte("a")},
		testutil.Entry{Name: "b.txt", Body: []byte("b")},
	)
	a := openArchive(t, z.Bytes)

	e, err := a.Entry(1)
	require.NoError(t, err)
	assert.Equal(t, "b.txt", e.Name())

	_, err = a.Entry(2)
	require.Error(t, err)
	_, err = a.Entry(-1)
	require.Error(t, err)
}

func TestArchive_EntriesRestartable(t *testing.T) {
	t.Parallel()

	z := build(t,
		testutil.Entry{Name: "a.txt", Body: []byte("a")},
		testutil.Entry{Name: "b.txt", Body: []byte("b")},
		testutil.Entry{Name: "c.txt", Body: []byte("c")},
	)
	a := openArchive(t, z.Bytes)

	for e := range a.Entries() {
		assert.Equal(t, "a.txt", e.Name())
		break
	}

	var names []string
	for e := range a.Entries() {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, names)
}

func TestArchive_Lookup(t *testing.T) {
	t.Parallel()

	z := build(t,
		testutil.Entry{Name: "dir/", Body: nil},
		testutil.Entry{Name: "dir/a.txt", Body: []byte("first")},
		testutil.Entry{Name: "dir/a.txt", Body: []byte("second")},
		testutil.Entry{Name: "../evil", Body: []byte("x")},
	)
	a := openArchive(t, z.Bytes)

	tests := []struct {
		name  string
		want  int
		found bool
	}{
		{"dir", 0, true},
		{"dir/", 0, true},
		{"/dir//a.txt", 1, true},
		{"dir/b.txt", 0, false},
		{"../evil", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, ok := a.Lookup(tt.name)
			require.Equal(t, tt.found, ok)
			if ok {
				assert.Equal(t, tt.want, e.Index())
			}
		})
	}

	// Unaddressable entries are still listed.
	e, err := a.Entry(3)
	require.NoError(t, err)
	assert.Equal(t, "../evil", e.Name())
}

func TestErrors_PathError(t *testing.T) {
	t.Parallel()

	z := build(t, testutil.Entry{Name: "a.txt", Body: []byte("abcd")})
	z.PutUint32(z.Central[0]+testutil.CentralCRC, 1)
	z.PutUint32(z.Local[0]+testutil.LocalCRC, 1)
	a := openArchive(t, z.Bytes)

	e, ok := a.Lookup("a.txt")
	require.True(t, ok)
	_, err := extractAll(t, e)

	var pathErr *fs.PathError
	require.ErrorAs(t, err, &pathErr)
	assert.Equal(t, "a.txt", pathErr.Path)
	assert.True(t, errors.Is(err, zipmap.ErrChecksumMismatch))
}
