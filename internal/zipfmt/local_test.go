package zipfmt

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/zipmap/internal/byteview"
	"github.com/meigma/zipmap/internal/testutil"
)

func readLocal(t *testing.T, a *testutil.Archive, i int) (Record, Local, error) {
	t.Helper()

	root := byteview.New(a.Bytes)
	eocd, err := FindEOCD(root)
	require.NoError(t, err)
	recs, err := collect(t, a.Bytes)
	require.NoError(t, err)

	rec := recs[i]
	loc, err := ReadLocal(root, &rec, eocd.DirectoryOffset)
	return rec, loc, err
}

func TestReadLocal(t *testing.T) {
	t.Parallel()

	a := testutil.Build(t, []testutil.Entry{
		{Name: "a.txt", Body: []byte("abcd"), Extra: []byte{1, 2, 0, 0}},
	}, "")

	rec, loc, err := readLocal(t, a, 0)
	require.NoError(t, err)

	assert.Equal(t, []byte("abcd"), loc.Data.Bytes())
	assert.Equal(t, int64(a.DataOffset(0)), loc.Data.Offset())
	assert.Equal(t, int64(a.DataOffset(0)+4), loc.DataEnd())
	assert.Empty(t, loc.Compare(&rec))
	assert.Empty(t, loc.Cosmetic(&rec))

	// Data aliases the archive buffer.
	assert.Same(t, &a.Bytes[a.DataOffset(0)], &loc.Data.Bytes()[0])
}

func TestReadLocal_LocalExtraDiffers(t *testing.T) {
	t.Parallel()

	// A local extra field that the central directory does not carry shifts
	// the data start; the local lengths must be used.
	a := testutil.Build(t, []testutil.Entry{{Name: "a.txt", Body: []byte("abcd"), Extra: []byte{9, 9, 0, 0}}}, "")
	a.PutUint16(a.Central[0]+testutil.CentralExtraLen, 0)
	// Shift the name so that the central record stays self-consistent.
	copy(a.Bytes[a.Central[0]+46:], "a.txt\x00\x00\x00\x00")
	a.PutUint16(a.Central[0]+testutil.CentralCommentLen, 4)

	rec, loc, err := readLocal(t, a, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), loc.Data.Bytes())
	assert.Empty(t, loc.Compare(&rec))
	require.Len(t, loc.Cosmetic(&rec), 1)
	assert.Equal(t, "extra length", loc.Cosmetic(&rec)[0].Field)
}

func TestReadLocal_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(a *testutil.Archive)
		wantErr error
	}{
		{
			name:    "bad signature",
			mutate:  func(a *testutil.Archive) { a.Bytes[a.Local[0]+1] = 'X' },
			wantErr: ErrMalformedArchive,
		},
		{
			name: "local extra pushes data into directory",
			mutate: func(a *testutil.Archive) {
				a.PutUint16(a.Local[0]+testutil.LocalExtraLen, 8)
			},
			wantErr: ErrMalformedArchive,
		},
		{
			name: "local extra crosses archive end",
			mutate: func(a *testutil.Archive) {
				a.PutUint16(a.Local[0]+testutil.LocalExtraLen, 0xfff0)
			},
			wantErr: ErrMalformedArchive,
		},
		{
			name: "zip64 local sizes",
			mutate: func(a *testutil.Archive) {
				a.PutUint32(a.Local[0]+testutil.LocalCompressedSize, 0xffffffff)
			},
			wantErr: ErrUnsupportedFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := oneEntry(t, "")
			tt.mutate(a)
			_, _, err := readLocal(t, a, 0)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLocal_Compare(t *testing.T) {
	t.Parallel()

	a := oneEntry(t, "")
	a.PutUint32(a.Local[0]+testutil.LocalCRC, 0xdeadbeef)
	a.PutUint16(a.Local[0]+testutil.LocalMethod, 8)

	rec, loc, err := readLocal(t, a, 0)
	require.NoError(t, err)

	mismatches := loc.Compare(&rec)
	require.Len(t, mismatches, 2)
	assert.Equal(t, "method", mismatches[0].Field)
	assert.Equal(t, "crc32", mismatches[1].Field)
	assert.Contains(t, mismatches[1].String(), "0xdeadbeef")
}

func TestLocal_CompareDeferredToDescriptor(t *testing.T) {
	t.Parallel()

	a := testutil.Build(t, []testutil.Entry{
		{Name: "a.txt", Body: []byte("abcd"), DataDescriptor: true},
	}, "")

	rec, loc, err := readLocal(t, a, 0)
	require.NoError(t, err)
	assert.True(t, rec.HasDataDescriptor())
	assert.Zero(t, loc.CRC32)
	assert.Empty(t, loc.Compare(&rec))
}

func TestReadDataDescriptor(t *testing.T) {
	t.Parallel()

	for _, noSig := range []bool{false, true} {
		a := testutil.Build(t, []testutil.Entry{
			{Name: "a.txt", Body: []byte("abcd"), DataDescriptor: true, NoDescriptorSignature: noSig},
		}, "")

		rec, loc, err := readLocal(t, a, 0)
		require.NoError(t, err)

		dd, err := ReadDataDescriptor(byteview.New(a.Bytes), loc.DataEnd())
		require.NoError(t, err)
		assert.Equal(t, crc32.ChecksumIEEE([]byte("abcd")), dd.CRC32)
		assert.Equal(t, uint32(4), dd.UncompressedSize)
		assert.Empty(t, dd.Compare(&rec))
	}
}

func TestReadDataDescriptor_Truncated(t *testing.T) {
	t.Parallel()

	buf := []byte("PK\x07\x08\x01\x02\x03\x04")
	_, err := ReadDataDescriptor(byteview.New(buf), 0)
	require.ErrorIs(t, err, ErrMalformedArchive)

	_, err = ReadDataDescriptor(byteview.New(buf), 100)
	require.ErrorIs(t, err, ErrMalformedArchive)
}
