package zipmap

import (
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/meigma/zipmap/internal/byteview"
	"github.com/meigma/zipmap/internal/inflate"
	"github.com/meigma/zipmap/internal/zipfmt"
)

// Interface compliance.
var (
	_ fs.FS         = (*Archive)(nil)
	_ fs.StatFS     = (*Archive)(nil)
	_ fs.ReadFileFS = (*Archive)(nil)
	_ fs.ReadDirFS  = (*Archive)(nil)
)

// Archive is a parsed ZIP archive over a caller-owned buffer.
//
// The buffer must stay valid and unmodified for as long as the Archive or
// any Entry, name or chunk obtained from it is in use. An Archive is safe
// for concurrent use.
type Archive struct {
	root    byteview.View
	eocd    zipfmt.EOCD
	dir     byteview.View
	offsets []uint32 // central directory record offsets, in directory order

	sizeCeiling   uint64
	maxRatio      float64
	strictLocal   bool
	chunkSize     int
	logger        *slog.Logger
	decompressors map[Method]Decompressor

	indexOnce sync.Once
	idx       *nameIndex
	readGroup singleflight.Group // zero value is valid
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// Open parses the archive in buf.
//
// Open locates the end of central directory record and walks the whole
// central directory, so a truncated or inconsistent directory fails here
// with ErrMalformedArchive, and ZIP64 or multi-disk archives with
// ErrUnsupportedFormat. Problems confined to one entry, such as an
// unsupported method or a size above the ceiling, do not fail Open; they
// are reported by Entry.Err and Entry.Extract.
//
// buf is never copied or modified.
func Open(buf []byte, opts ...Option) (*Archive, error) {
	a := &Archive{
		root:        byteview.New(buf),
		sizeCeiling: DefaultSizeCeiling,
		maxRatio:    DefaultMaxExpansionRatio,
		strictLocal: true,
		chunkSize:   DefaultChunkSize,
		decompressors: map[Method]Decompressor{
			Deflated: inflate.NewFlatePool(),
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.sizeCeiling == 0 {
		a.sizeCeiling = DefaultSizeCeiling
	}

	eocd, err := zipfmt.FindEOCD(a.root)
	if err != nil {
		return nil, err
	}
	dir, err := zipfmt.Directory(a.root, eocd)
	if err != nil {
		return nil, err
	}
	a.eocd = eocd
	a.dir = dir

	a.offsets = make([]uint32, 0, int(eocd.TotalEntries))
	for rec, err := range zipfmt.Records(a.root, eocd) {
		if err != nil {
			return nil, err
		}
		if err := rec.Validate(a.root); err != nil {
			return nil, err
		}
		a.offsets = append(a.offsets, rec.DirOffset)
	}

	a.log().Debug("archive opened",
		"size", len(buf),
		"entries", len(a.offsets),
		"directory_offset", eocd.DirectoryOffset,
		"comment_len", eocd.Comment.Len())
	return a, nil
}

// Len returns the number of entries, which always equals the total
// recorded in the end of central directory record.
func (a *Archive) Len() int {
	return len(a.offsets)
}

// Comment returns the archive comment. The slice aliases the archive
// buffer and must not be modified.
func (a *Archive) Comment() []byte {
	return a.eocd.Comment.Bytes()
}

// Entries returns an iterator over the entries in central directory order.
//
// The sequence is lazy and restartable: each pass decodes the directory
// records again, and stopping early is allowed.
func (a *Archive) Entries() iter.Seq[*Entry] {
	return func(yield func(*Entry) bool) {
		for i := range a.offsets {
			e, err := a.entry(i)
			if err != nil {
				// Records were validated by Open.
				a.log().Error("central directory changed after open", "index", i, "error", err)
				return
			}
			if !yield(e) {
				return
			}
		}
	}
}

// Entry returns the i-th entry in central directory order.
func (a *Archive) Entry(i int) (*Entry, error) {
	if i < 0 || i >= len(a.offsets) {
		return nil, fmt.Errorf("zipmap: entry index %d out of range [0, %d)", i, len(a.offsets))
	}
	return a.entry(i)
}

// Lookup returns the entry with the given name. Leading, trailing and
// repeated slashes are ignored; when names collide the first entry wins.
func (a *Archive) Lookup(name string) (*Entry, bool) {
	i, ok := a.index().lookup(NormalizePath(name))
	if !ok {
		return nil, false
	}
	e, err := a.entry(i)
	if err != nil {
		return nil, false
	}
	return e, true
}

func (a *Archive) entry(i int) (*Entry, error) {
	rec, err := zipfmt.RecordAt(a.dir, a.offsets[i], i)
	if err != nil {
		return nil, err
	}
	return newEntry(a, rec), nil
}

// limits returns the decompression limits for one extraction.
func (a *Archive) limits(cfg *extractConfig) inflate.Limits {
	ceiling := a.sizeCeiling
	if cfg.sizeCeiling != 0 {
		ceiling = cfg.sizeCeiling
	}
	return inflate.Limits{
		Ceiling:   ceiling,
		MaxRatio:  a.maxRatio,
		ChunkSize: a.chunkSize,
	}
}
