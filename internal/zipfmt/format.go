// Package zipfmt parses the structural records of a ZIP archive (non-ZIP64
// subset) directly out of a byteview.View.
//
// Nothing in this package copies archive bytes: names, extra fields,
// comments and entry data are returned as views that alias the input.
package zipfmt

import (
	"errors"
	"fmt"
)

// Record signatures.
const (
	sigLocalHeader     = "PK\x03\x04"
	sigCentralHeader   = "PK\x01\x02"
	sigEndOfDirectory  = "PK\x05\x06"
	sigZip64Locator    = "PK\x06\x07"
	sigDataDescriptor  = "PK\x07\x08"
	eocdLen            = 22
	centralHeaderLen   = 46
	localHeaderLen     = 30
	dataDescriptorLen  = 12 // without the optional signature
	zip64LocatorLen    = 20
	maxCommentLen      = 0xffff
	sentinel16         = 0xffff
	sentinel32         = 0xffffffff
	extendedTimeID     = 0x5455
	extendedTimeModBit = 0x01
)

// General purpose flag bits.
const (
	FlagEncrypted      uint16 = 1 << 0
	FlagDataDescriptor uint16 = 1 << 3
	FlagUTF8           uint16 = 1 << 11
)

// Sentinel errors shared by the parser and the public API.
var (
	// ErrMalformedArchive reports a structural violation: bad magic,
	// a bounds overflow or inconsistent lengths.
	ErrMalformedArchive = errors.New("zipmap: malformed archive")

	// ErrUnsupportedFormat reports ZIP64 markers, multi-disk archives,
	// encryption or a compression method without a decompressor.
	ErrUnsupportedFormat = errors.New("zipmap: unsupported format")
)

// Method is a ZIP compression method code.
type Method uint16

// Well-known compression methods.
const (
	Stored   Method = 0
	Deflated Method = 8
	Bzip2    Method = 12
	LZMA     Method = 14
	Zstd     Method = 93
	XZ       Method = 95
)

// String returns the human-readable name of the method.
func (m Method) String() string {
	switch m {
	case Stored:
		return "stored"
	case Deflated:
		return "deflate"
	case Bzip2:
		return "bzip2"
	case LZMA:
		return "lzma"
	case Zstd:
		return "zstd"
	case XZ:
		return "xz"
	default:
		return fmt.Sprintf("method(%d)", uint16(m))
	}
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedArchive, fmt.Sprintf(format, args...))
}

func unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, fmt.Sprintf(format, args...))
}
