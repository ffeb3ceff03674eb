package zipmap

import (
	"github.com/meigma/zipmap/internal/inflate"
	"github.com/meigma/zipmap/internal/zipfmt"
)

// Sentinel errors. Errors returned by this package wrap one of these and
// can be tested with errors.Is.
var (
	// ErrMalformedArchive reports a structural violation: a bad signature,
	// a bounds overflow or inconsistent lengths.
	ErrMalformedArchive = zipfmt.ErrMalformedArchive

	// ErrUnsupportedFormat reports ZIP64 markers, multi-disk archives,
	// encrypted entries or a compression method with no decompressor.
	ErrUnsupportedFormat = zipfmt.ErrUnsupportedFormat

	// ErrEntryTooLarge is returned when an entry declares an uncompressed
	// size above the size ceiling.
	ErrEntryTooLarge = inflate.ErrEntryTooLarge

	// ErrDecompressionBomb is returned when decompression exceeds the size
	// ceiling, the declared size or the expansion-ratio limit.
	ErrDecompressionBomb = inflate.ErrDecompressionBomb

	// ErrChecksumMismatch is returned after the last chunk of an entry when
	// its CRC-32 differs from the recorded value.
	ErrChecksumMismatch = inflate.ErrChecksumMismatch
)
