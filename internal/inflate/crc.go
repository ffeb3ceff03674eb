package inflate

import (
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
)

// ErrChecksumMismatch is returned when the CRC-32 of the decompressed bytes
// differs from the recorded value.
var ErrChecksumMismatch = errors.New("zipmap: checksum mismatch")

// CRCVerifier accumulates the CRC-32 (IEEE) of streamed bytes and compares
// it against an expected value once the stream ends.
type CRCVerifier struct {
	want uint32
	h    hash.Hash32
}

// NewCRCVerifier returns a verifier expecting want.
func NewCRCVerifier(want uint32) *CRCVerifier {
	return &CRCVerifier{want: want, h: crc32.NewIEEE()}
}

// Write implements io.Writer. It never fails.
func (v *CRCVerifier) Write(p []byte) (int, error) {
	return v.h.Write(p)
}

// Sum returns the checksum of the bytes written so far.
func (v *CRCVerifier) Sum() uint32 {
	return v.h.Sum32()
}

// Verify reports ErrChecksumMismatch if the accumulated checksum differs
// from the expected one.
func (v *CRCVerifier) Verify() error {
	if got := v.Sum(); got != v.want {
		return fmt.Errorf("%w: got %#08x, want %#08x", ErrChecksumMismatch, got, v.want)
	}
	return nil
}
