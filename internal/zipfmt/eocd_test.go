package zipfmt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/zipmap/internal/byteview"
	"github.com/meigma/zipmap/internal/testutil"
)

func oneEntry(t *testing.T, comment string) *testutil.Archive {
	t.Helper()
	return testutil.Build(t, []testutil.Entry{{Name: "a.txt", Body: []byte("abcd")}}, comment)
}

func TestFindEOCD(t *testing.T) {
	t.Parallel()

	a := oneEntry(t, "")
	rec, err := FindEOCD(byteview.New(a.Bytes))
	require.NoError(t, err)

	assert.Equal(t, int64(a.EOCD), rec.RecordOffset)
	assert.Equal(t, uint16(1), rec.TotalEntries)
	assert.Equal(t, uint32(a.Central[0]), rec.DirectoryOffset)
	assert.Equal(t, 0, rec.Comment.Len())
}

func TestFindEOCD_Comment(t *testing.T) {
	t.Parallel()

	// The comment embeds a fake EOCD signature that must be skipped.
	comment := "note PK\x05\x06 inside a comment"
	a := oneEntry(t, comment)

	rec, err := FindEOCD(byteview.New(a.Bytes))
	require.NoError(t, err)
	assert.Equal(t, int64(a.EOCD), rec.RecordOffset)
	assert.Equal(t, comment, string(rec.Comment.Bytes()))
}

func TestFindEOCD_MaxComment(t *testing.T) {
	t.Parallel()

	comment := string(bytes.Repeat([]byte("c"), maxCommentLen))
	a := oneEntry(t, comment)

	rec, err := FindEOCD(byteview.New(a.Bytes))
	require.NoError(t, err)
	assert.Equal(t, maxCommentLen, rec.Comment.Len())
}

func TestFindEOCD_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(a *testutil.Archive) []byte
		wantErr error
	}{
		{
			name:    "truncated tail",
			mutate:  func(a *testutil.Archive) []byte { return a.Bytes[:len(a.Bytes)-5] },
			wantErr: ErrMalformedArchive,
		},
		{
			name:    "too short",
			mutate:  func(*testutil.Archive) []byte { return []byte("PK\x05\x06") },
			wantErr: ErrMalformedArchive,
		},
		{
			name:    "empty",
			mutate:  func(*testutil.Archive) []byte { return nil },
			wantErr: ErrMalformedArchive,
		},
		{
			name: "comment length overshoots",
			mutate: func(a *testutil.Archive) []byte {
				a.PutUint16(a.EOCD+testutil.EOCDCommentLen, 3)
				return a.Bytes
			},
			wantErr: ErrMalformedArchive,
		},
		{
			name: "directory past record",
			mutate: func(a *testutil.Archive) []byte {
				a.PutUint32(a.EOCD+testutil.EOCDDirectorySize, 1000)
				return a.Bytes
			},
			wantErr: ErrMalformedArchive,
		},
		{
			name: "zip64 entry count",
			mutate: func(a *testutil.Archive) []byte {
				a.PutUint16(a.EOCD+testutil.EOCDTotalEntries, 0xffff)
				return a.Bytes
			},
			wantErr: ErrUnsupportedFormat,
		},
		{
			name: "zip64 directory offset",
			mutate: func(a *testutil.Archive) []byte {
				a.PutUint32(a.EOCD+testutil.EOCDDirectoryOffset, 0xffffffff)
				return a.Bytes
			},
			wantErr: ErrUnsupportedFormat,
		},
		{
			name: "multi-disk",
			mutate: func(a *testutil.Archive) []byte {
				a.PutUint16(a.EOCD+testutil.EOCDDiskNumber, 1)
				return a.Bytes
			},
			wantErr: ErrUnsupportedFormat,
		},
		{
			name: "zip64 locator",
			mutate: func(a *testutil.Archive) []byte {
				copy(a.Bytes[a.EOCD-zip64LocatorLen:], sigZip64Locator)
				return a.Bytes
			},
			wantErr: ErrUnsupportedFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			buf := tt.mutate(oneEntry(t, ""))
			_, err := FindEOCD(byteview.New(buf))
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
