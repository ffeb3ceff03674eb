// Package byteview provides bounds-checked, read-only windows over a shared
// byte buffer.
//
// A View aliases the buffer it was cut from. Producing a sub-view never
// allocates or copies, and a View is only valid while the underlying buffer
// (usually a read-only memory mapping) stays mapped.
package byteview

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/meigma/zipmap/internal/sizing"
)

// ErrOutOfBounds is returned when a read or slice would cross the end of a view.
var ErrOutOfBounds = errors.New("byteview: out of bounds")

// View is an immutable window over a byte buffer.
//
// The zero value is an empty view at offset 0.
type View struct {
	b   []byte
	off int64 // absolute offset of b[0] in the root buffer
}

// New returns a view covering all of buf.
func New(buf []byte) View {
	return View{b: buf}
}

// Len returns the number of bytes in the view.
func (v View) Len() int {
	return len(v.b)
}

// Offset returns the absolute offset of the view within the root buffer.
func (v View) Offset() int64 {
	return v.off
}

// Bytes returns the viewed bytes. The slice aliases the root buffer and
// must not be modified.
func (v View) Bytes() []byte {
	return v.b
}

// Slice returns the sub-view [off, off+n).
func (v View) Slice(off, n uint64) (View, error) {
	if !sizing.Within(off, n, len(v.b)) {
		return View{}, fmt.Errorf("%w: [%d, +%d) of %d bytes at offset %d",
			ErrOutOfBounds, off, n, len(v.b), v.off)
	}
	return View{
		b:   v.b[off : off+n : off+n],
		off: v.off + int64(off), //nolint:gosec // off is bounded by len(v.b)
	}, nil
}

// From returns the sub-view starting at off and running to the end of v.
func (v View) From(off uint64) (View, error) {
	if off > uint64(len(v.b)) {
		return View{}, fmt.Errorf("%w: offset %d of %d bytes at offset %d",
			ErrOutOfBounds, off, len(v.b), v.off)
	}
	return v.Slice(off, uint64(len(v.b))-off)
}

// Uint16 reads a little-endian uint16 at off.
func (v View) Uint16(off uint64) (uint16, error) {
	if !sizing.Within(off, 2, len(v.b)) {
		return 0, fmt.Errorf("%w: uint16 at %d of %d bytes", ErrOutOfBounds, off, len(v.b))
	}
	return binary.LittleEndian.Uint16(v.b[off:]), nil
}

// Uint32 reads a little-endian uint32 at off.
func (v View) Uint32(off uint64) (uint32, error) {
	if !sizing.Within(off, 4, len(v.b)) {
		return 0, fmt.Errorf("%w: uint32 at %d of %d bytes", ErrOutOfBounds, off, len(v.b))
	}
	return binary.LittleEndian.Uint32(v.b[off:]), nil
}

// HasPrefix reports whether the view starts with sig.
func (v View) HasPrefix(sig string) bool {
	return len(v.b) >= len(sig) && string(v.b[:len(sig)]) == sig
}
