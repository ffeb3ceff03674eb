package zipmap

import (
	"log/slog"

	"github.com/meigma/zipmap/internal/inflate"
	"github.com/meigma/zipmap/internal/zipfmt"
)

// Defaults for the archive limits.
const (
	// DefaultSizeCeiling is the largest uncompressed entry size accepted.
	DefaultSizeCeiling = inflate.DefaultSizeCeiling

	// DefaultMaxExpansionRatio is the largest output/input ratio tolerated
	// while decompressing.
	DefaultMaxExpansionRatio = inflate.DefaultMaxRatio

	// DefaultChunkSize is the size of the chunks produced by Extract.
	DefaultChunkSize = inflate.DefaultChunkSize
)

// Method is a ZIP compression method code.
type Method = zipfmt.Method

// Compression methods. Only Stored and Deflated can be extracted by
// default; others need WithDecompressor.
const (
	Stored   = zipfmt.Stored
	Deflated = zipfmt.Deflated
	Bzip2    = zipfmt.Bzip2
	LZMA     = zipfmt.LZMA
	Zstd     = zipfmt.Zstd
	XZ       = zipfmt.XZ
)

// Decompressor turns a compressed stream into decompressed bytes. Closing
// the returned reader releases the decoder and must not close r.
type Decompressor = inflate.Decompressor

// ZstdOption tunes the decoders created by NewZstdDecompressor.
type ZstdOption = inflate.ZstdOption

// ZstdWithConcurrency sets how many goroutines each zstd decoder may use
// (default: 1). Zero or a negative value uses GOMAXPROCS.
func ZstdWithConcurrency(n int) ZstdOption {
	return inflate.WithDecoderConcurrency(n)
}

// ZstdWithLowmem trades decoding speed for a smaller memory footprint.
func ZstdWithLowmem(enabled bool) ZstdOption {
	return inflate.WithDecoderLowmem(enabled)
}

// NewZstdDecompressor returns a pooled zstd decoder for method 93 entries.
// maxMemory caps each decoder's memory use; 0 disables the cap.
func NewZstdDecompressor(maxMemory uint64, opts ...ZstdOption) Decompressor {
	return inflate.NewZstdPool(maxMemory, opts...)
}

// Option configures an Archive.
type Option func(*Archive)

// WithSizeCeiling sets the largest uncompressed size an entry may declare
// or produce. Zero restores the default of 5 GiB.
func WithSizeCeiling(limit uint64) Option {
	return func(a *Archive) {
		a.sizeCeiling = limit
	}
}

// WithMaxExpansionRatio sets the largest tolerated ratio of decompressed to
// compressed bytes. The ratio is checked once 64 KiB have been produced.
// A negative value disables the check.
func WithMaxExpansionRatio(ratio float64) Option {
	return func(a *Archive) {
		a.maxRatio = ratio
	}
}

// WithStrictLocalHeaderCheck controls how a local header that disagrees
// with the central directory is treated (default: true).
//
// When strict, a mismatched method, CRC or size fails the entry with
// ErrMalformedArchive. Otherwise the mismatch is logged and the central
// directory values are used.
func WithStrictLocalHeaderCheck(strict bool) Option {
	return func(a *Archive) {
		a.strictLocal = strict
	}
}

// WithChunkSize sets the size of the chunks produced while decompressing.
// Stored entries are split into chunks of the same size.
func WithChunkSize(n int) Option {
	return func(a *Archive) {
		a.chunkSize = n
	}
}

// WithLogger sets the logger for archive operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// WithDecompressor registers d for entries using method m, replacing any
// existing one. Registering nil removes support for m.
func WithDecompressor(m Method, d Decompressor) Option {
	return func(a *Archive) {
		if a.decompressors == nil {
			a.decompressors = make(map[Method]Decompressor)
		}
		if d == nil {
			delete(a.decompressors, m)
			return
		}
		a.decompressors[m] = d
	}
}

// ExtractOption configures a single Extract or Open call on an Entry.
type ExtractOption func(*extractConfig)

type extractConfig struct {
	sizeCeiling uint64
}

// ExtractWithSizeCeiling overrides the archive's size ceiling for one call.
func ExtractWithSizeCeiling(limit uint64) ExtractOption {
	return func(c *extractConfig) {
		c.sizeCeiling = limit
	}
}

// CopyOption configures ExtractTo.
type CopyOption func(*copyConfig)

type copyConfig struct {
	overwrite     bool
	preserveMode  bool
	preserveTimes bool
	workers       int
	maxInflight   uint64
	extract       []ExtractOption
}

// CopyWithOverwrite allows overwriting existing files.
// By default, existing files are skipped.
func CopyWithOverwrite(overwrite bool) CopyOption {
	return func(c *copyConfig) {
		c.overwrite = overwrite
	}
}

// CopyWithPreserveMode preserves file permission modes from the archive.
func CopyWithPreserveMode(preserve bool) CopyOption {
	return func(c *copyConfig) {
		c.preserveMode = preserve
	}
}

// CopyWithPreserveTimes preserves file modification times from the archive.
func CopyWithPreserveTimes(preserve bool) CopyOption {
	return func(c *copyConfig) {
		c.preserveTimes = preserve
	}
}

// CopyWithWorkers sets the number of entries extracted concurrently.
// Values < 0 force serial extraction. Zero uses GOMAXPROCS.
func CopyWithWorkers(n int) CopyOption {
	return func(c *copyConfig) {
		c.workers = n
	}
}

// CopyWithMaxInflightBytes caps the sum of declared uncompressed sizes
// being extracted at once. Zero disables the budget.
func CopyWithMaxInflightBytes(limit uint64) CopyOption {
	return func(c *copyConfig) {
		c.maxInflight = limit
	}
}

// CopyWithExtractOptions applies opts to every entry extracted.
func CopyWithExtractOptions(opts ...ExtractOption) CopyOption {
	return func(c *copyConfig) {
		c.extract = append(c.extract, opts...)
	}
}
