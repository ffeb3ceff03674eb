package inflate

import (
	"bytes"
	"errors"
)

// ErrOverflow indicates a counter exceeded its maximum value.
var ErrOverflow = errors.New("counter overflow")

// CountingReader reads compressed bytes out of memory and counts how many
// the decoder consumed.
//
// It implements io.ByteReader so that DEFLATE decoders read from it
// directly instead of wrapping it in a read-ahead buffer, which keeps N
// equal to the bytes the decoder actually used.
type CountingReader struct {
	R *bytes.Reader
	N uint64
}

// NewCountingReader returns a CountingReader over b.
func NewCountingReader(b []byte) *CountingReader {
	return &CountingReader{R: bytes.NewReader(b)}
}

// Read implements io.Reader.
func (cr *CountingReader) Read(p []byte) (int, error) {
	n, err := cr.R.Read(p)
	if n > 0 {
		//nolint:gosec // n is guaranteed non-negative by io.Reader contract
		if cr.N > ^uint64(0)-uint64(n) {
			return n, ErrOverflow
		}
		cr.N += uint64(n) //nolint:gosec // overflow checked above
	}
	return n, err
}

// ReadByte implements io.ByteReader.
func (cr *CountingReader) ReadByte() (byte, error) {
	c, err := cr.R.ReadByte()
	if err == nil {
		cr.N++
	}
	return c, err
}
