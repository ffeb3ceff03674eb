package zipmap

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"strings"
	"time"

	"github.com/meigma/zipmap/internal/inflate"
	"github.com/meigma/zipmap/internal/zipfmt"
)

// OS is the host system recorded as an entry's creator.
type OS = zipfmt.OS

// Entry describes one member of an archive. It is immutable and safe for
// concurrent use; every Extract or Open call starts an independent stream.
type Entry struct {
	a   *Archive
	rec zipfmt.Record
	err error
}

func newEntry(a *Archive, rec zipfmt.Record) *Entry {
	e := &Entry{a: a, rec: rec}
	e.err = e.check()
	return e
}

// check returns the per-entry problem that prevents extraction, if any.
// A declared size above the ceiling is reported before the method.
func (e *Entry) check() error {
	if err := e.a.limits(&extractConfig{}).CheckDeclared(e.UncompressedSize()); err != nil {
		return err
	}
	return e.checkMethod()
}

// checkMethod rejects encrypted entries and methods without a decompressor.
func (e *Entry) checkMethod() error {
	if e.rec.Flags&zipfmt.FlagEncrypted != 0 {
		return fmt.Errorf("%w: encrypted entry", ErrUnsupportedFormat)
	}
	if e.rec.Method != Stored {
		if _, ok := e.a.decompressors[e.rec.Method]; !ok {
			return fmt.Errorf("%w: compression method %s", ErrUnsupportedFormat, e.rec.Method)
		}
	}
	return nil
}

// Name returns the entry name as recorded in the archive.
func (e *Entry) Name() string {
	return string(e.rec.Name.Bytes())
}

// NameBytes returns the entry name without copying. The slice aliases the
// archive buffer and must not be modified.
func (e *Entry) NameBytes() []byte {
	return e.rec.Name.Bytes()
}

// Index returns the entry's position in the central directory.
func (e *Entry) Index() int {
	return e.rec.Index
}

// Method returns the compression method.
func (e *Entry) Method() Method {
	return e.rec.Method
}

// CompressedSize returns the size of the entry's data in the archive.
func (e *Entry) CompressedSize() uint64 {
	return uint64(e.rec.CompressedSize)
}

// UncompressedSize returns the declared size of the extracted content.
func (e *Entry) UncompressedSize() uint64 {
	return uint64(e.rec.UncompressedSize)
}

// CRC32 returns the CRC-32 recorded in the central directory.
func (e *Entry) CRC32() uint32 {
	return e.rec.CRC32
}

// LocalHeaderOffset returns the offset of the entry's local file header.
func (e *Entry) LocalHeaderOffset() uint64 {
	return uint64(e.rec.LocalHeaderOffset)
}

// Flags returns the general purpose bit flags.
func (e *Entry) Flags() uint16 {
	return e.rec.Flags
}

// IsEncrypted reports whether the entry is encrypted.
func (e *Entry) IsEncrypted() bool {
	return e.rec.Flags&zipfmt.FlagEncrypted != 0
}

// IsUTF8 reports whether the name and comment are flagged as UTF-8.
func (e *Entry) IsUTF8() bool {
	return e.rec.Flags&zipfmt.FlagUTF8 != 0
}

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool {
	return strings.HasSuffix(e.Name(), "/") || e.Mode().IsDir()
}

// Modified returns the modification time, from the extended timestamp
// extra field when present and otherwise from the DOS date and time
// (interpreted as UTC). It is zero if neither is set.
func (e *Entry) Modified() time.Time {
	return e.rec.Modified()
}

// Mode returns the file mode derived from the external attributes.
func (e *Entry) Mode() fs.FileMode {
	return e.rec.Mode()
}

// CreatorOS returns the host system that created the entry.
func (e *Entry) CreatorOS() OS {
	return e.rec.CreatorOS()
}

// Comment returns the entry comment. The slice aliases the archive buffer.
func (e *Entry) Comment() []byte {
	return e.rec.Comment.Bytes()
}

// Extra returns the raw central directory extra field. The slice aliases
// the archive buffer.
func (e *Entry) Extra() []byte {
	return e.rec.Extra.Bytes()
}

// Err reports why the entry cannot be extracted: ErrUnsupportedFormat for
// encrypted entries or methods without a decompressor, ErrEntryTooLarge for
// sizes above the archive's ceiling. A size above the ceiling is reported
// even when the method is also unsupported. It returns nil for extractable
// entries.
func (e *Entry) Err() error {
	return e.err
}

// CompressedData returns the entry's raw data as stored in the archive,
// without decompressing or verifying it. The slice aliases the archive
// buffer and must not be modified. The local header is validated the same
// way as for Extract.
func (e *Entry) CompressedData() ([]byte, error) {
	loc, err := e.local()
	if err != nil {
		return nil, e.pathError("compressed", err)
	}
	return loc.Data.Bytes(), nil
}

// Extract returns the entry's content as a sequence of chunks.
//
// Stored entries yield sub-slices of the archive buffer. Compressed
// entries yield slices of a buffer owned by the iteration, so every chunk
// is only valid until the next iteration step. The concatenated chunks
// never exceed the size ceiling. The CRC-32 is checked after the last
// chunk; a mismatch is yielded as a final ErrChecksumMismatch error. Any
// error ends the sequence. Breaking out early releases the decoder.
//
// Each call starts an independent stream, so Extract is idempotent and
// several extractions may run concurrently.
func (e *Entry) Extract(opts ...ExtractOption) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		s, err := e.session(opts)
		if err != nil {
			yield(nil, err)
			return
		}
		defer s.Close()

		for {
			chunk, err := s.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, e.pathError("extract", err))
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// Open returns a reader over the entry's verified content. The final Read
// reports ErrChecksumMismatch instead of io.EOF if the CRC-32 differs.
func (e *Entry) Open(opts ...ExtractOption) (io.ReadCloser, error) {
	s, err := e.session(opts)
	if err != nil {
		return nil, err
	}
	return &entryFile{entry: e, s: s}, nil
}

// ReadAll extracts the whole entry into memory.
func (e *Entry) ReadAll(opts ...ExtractOption) ([]byte, error) {
	out := make([]byte, 0, min(e.UncompressedSize(), uint64(e.a.chunkSize)*4))
	for chunk, err := range e.Extract(opts...) {
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// session validates the local header and starts a bounded decompression.
func (e *Entry) session(opts []ExtractOption) (*inflate.Session, error) {
	// A size above the archive ceiling may still fit a per-call override,
	// but the method must be extractable either way.
	if err := e.checkMethod(); err != nil {
		return nil, e.pathError("extract", err)
	}
	cfg := extractConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	limits := e.a.limits(&cfg)
	if err := limits.CheckDeclared(e.UncompressedSize()); err != nil {
		return nil, e.pathError("extract", err)
	}

	loc, err := e.local()
	if err != nil {
		return nil, e.pathError("extract", err)
	}

	wantCRC := e.rec.CRC32
	if e.rec.HasDataDescriptor() {
		dd, err := zipfmt.ReadDataDescriptor(e.a.root, loc.DataEnd())
		if err != nil {
			return nil, e.pathError("extract", err)
		}
		if err := e.crossCheck(dd.Compare(&e.rec)); err != nil {
			return nil, e.pathError("extract", err)
		}
		wantCRC = dd.CRC32
	}

	var dec Decompressor
	if e.rec.Method != Stored {
		dec = e.a.decompressors[e.rec.Method]
	}
	e.a.log().Debug("extracting entry",
		"entry", e.Name(),
		"method", e.rec.Method.String(),
		"compressed", e.rec.CompressedSize,
		"uncompressed", e.rec.UncompressedSize)

	s, err := inflate.New(loc.Data.Bytes(), dec, e.UncompressedSize(), wantCRC, limits)
	if err != nil {
		return nil, e.pathError("extract", err)
	}
	return s, nil
}

// local reads and cross-checks the entry's local header.
func (e *Entry) local() (zipfmt.Local, error) {
	loc, err := zipfmt.ReadLocal(e.a.root, &e.rec, e.a.eocd.DirectoryOffset)
	if err != nil {
		return zipfmt.Local{}, err
	}
	if err := e.crossCheck(loc.Compare(&e.rec)); err != nil {
		return zipfmt.Local{}, err
	}
	for _, m := range loc.Cosmetic(&e.rec) {
		e.a.log().Warn("suspicious local header, name or extra field differs from central directory",
			"entry", e.Name(), "mismatch", m.String())
	}
	return loc, nil
}

// crossCheck applies the strictness policy to header mismatches.
func (e *Entry) crossCheck(mismatches []zipfmt.Mismatch) error {
	if len(mismatches) == 0 {
		return nil
	}
	if e.a.strictLocal {
		return fmt.Errorf("%w: local header disagrees with central directory: %s",
			ErrMalformedArchive, mismatches[0])
	}
	for _, m := range mismatches {
		e.a.log().Warn("suspicious local header, using central directory values",
			"entry", e.Name(), "mismatch", m.String())
	}
	return nil
}

func (e *Entry) pathError(op string, err error) error {
	return &fs.PathError{Op: op, Path: e.Name(), Err: err}
}

// entryFile adapts a decompression session to fs.File.
type entryFile struct {
	entry   *Entry
	s       *inflate.Session
	pending []byte
	err     error
}

// Read implements io.Reader.
func (f *entryFile) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(f.pending) == 0 {
		if f.err != nil {
			return 0, f.err
		}
		chunk, err := f.s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				f.err = io.EOF
			} else {
				f.err = f.entry.pathError("read", err)
			}
			continue
		}
		f.pending = chunk
	}
	n := copy(p, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

// Stat implements fs.File.
func (f *entryFile) Stat() (fs.FileInfo, error) {
	return f.entry.Stat(), nil
}

// Close releases the decoder.
func (f *entryFile) Close() error {
	f.s.Close()
	f.pending = nil
	if f.err == nil {
		f.err = fs.ErrClosed
	}
	return nil
}
