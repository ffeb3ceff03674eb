package zipfmt

import (
	"iter"

	"github.com/meigma/zipmap/internal/byteview"
	"github.com/meigma/zipmap/internal/sizing"
)

// Record is one central directory file header. Its variable-length fields
// are views into the archive buffer.
type Record struct {
	// Index is the record's position in the central directory.
	Index int

	// DirOffset is the record's offset from the start of the central
	// directory.
	DirOffset uint32

	CreatorVersion    uint16
	ReaderVersion     uint16
	Flags             uint16
	Method            Method
	ModifiedTime      uint16
	ModifiedDate      uint16
	CRC32             uint32
	CompressedSize    uint32
	UncompressedSize  uint32
	DiskStart         uint16
	InternalAttrs     uint16
	ExternalAttrs     uint32
	LocalHeaderOffset uint32

	Name    byteview.View
	Extra   byteview.View
	Comment byteview.View
}

// HasDataDescriptor reports whether flag bit 3 is set.
func (r *Record) HasDataDescriptor() bool {
	return r.Flags&FlagDataDescriptor != 0
}

// Directory returns the view covering the central directory described by e.
func Directory(root byteview.View, e EOCD) (byteview.View, error) {
	dir, err := root.Slice(uint64(e.DirectoryOffset), uint64(e.DirectorySize))
	if err != nil {
		return byteview.View{}, malformed("central directory: %v", err)
	}
	return dir, nil
}

// Records walks the central directory described by e.
//
// The sequence is lazy and restartable: each call to Records starts a new
// walk. The cursor advances by each record's declared name, extra and
// comment lengths; a record that would cross the end of the directory
// region yields ErrMalformedArchive and ends the walk. So does a directory
// holding more or fewer records than e.TotalEntries.
func Records(root byteview.View, e EOCD) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		dir, err := Directory(root, e)
		if err != nil {
			yield(Record{}, err)
			return
		}

		var cursor uint64
		for i := range int(e.TotalEntries) {
			rec, n, err := parseRecord(dir, cursor, i)
			if err != nil {
				yield(Record{}, err)
				return
			}
			cursor += n
			if !yield(rec, nil) {
				return
			}
		}
		if rest := uint64(dir.Len()) - cursor; rest != 0 { //nolint:gosec // len is non-negative
			yield(Record{}, malformed("central directory: %d trailing bytes after %d records", rest, e.TotalEntries))
		}
	}
}

// RecordAt decodes the record at off within the central directory dir.
func RecordAt(dir byteview.View, off uint32, index int) (Record, error) {
	rec, _, err := parseRecord(dir, uint64(off), index)
	return rec, err
}

// parseRecord decodes the record at off and returns it with its total length.
func parseRecord(dir byteview.View, off uint64, index int) (Record, uint64, error) {
	hdr, err := dir.Slice(off, centralHeaderLen)
	if err != nil {
		return Record{}, 0, malformed("central directory record %d: header crosses directory end", index)
	}
	if !hdr.HasPrefix(sigCentralHeader) {
		return Record{}, 0, malformed("central directory record %d: bad signature %q", index, hdr.Bytes()[:4])
	}
	b := hdr.Bytes()
	rec := Record{
		Index:             index,
		DirOffset:         uint32(off), //nolint:gosec // the directory is smaller than 4 GiB
		CreatorVersion:    le.Uint16(b[4:]),
		ReaderVersion:     le.Uint16(b[6:]),
		Flags:             le.Uint16(b[8:]),
		Method:            Method(le.Uint16(b[10:])),
		ModifiedTime:      le.Uint16(b[12:]),
		ModifiedDate:      le.Uint16(b[14:]),
		CRC32:             le.Uint32(b[16:]),
		CompressedSize:    le.Uint32(b[20:]),
		UncompressedSize:  le.Uint32(b[24:]),
		DiskStart:         le.Uint16(b[34:]),
		InternalAttrs:     le.Uint16(b[36:]),
		ExternalAttrs:     le.Uint32(b[38:]),
		LocalHeaderOffset: le.Uint32(b[42:]),
	}
	nameLen := uint64(le.Uint16(b[28:]))
	extraLen := uint64(le.Uint16(b[30:]))
	commentLen := uint64(le.Uint16(b[32:]))

	cursor := off + centralHeaderLen
	if rec.Name, err = dir.Slice(cursor, nameLen); err != nil {
		return Record{}, 0, malformed("central directory record %d: name crosses directory end", index)
	}
	cursor += nameLen
	if rec.Extra, err = dir.Slice(cursor, extraLen); err != nil {
		return Record{}, 0, malformed("central directory record %d: extra field crosses directory end", index)
	}
	cursor += extraLen
	if rec.Comment, err = dir.Slice(cursor, commentLen); err != nil {
		return Record{}, 0, malformed("central directory record %d: comment crosses directory end", index)
	}
	cursor += commentLen

	return rec, cursor - off, nil
}

// Validate performs the directory-level checks on a record against the
// archive root: ZIP64 sentinels in the central record and in the fixed part
// of its local header, and the bounds of the local header and compressed
// data.
func (r *Record) Validate(root byteview.View) error {
	size := root.Len()
	if r.CompressedSize == sentinel32 || r.UncompressedSize == sentinel32 ||
		r.LocalHeaderOffset == sentinel32 || r.DiskStart == sentinel16 {
		return unsupported("entry %q: zip64 size or offset", r.Name.Bytes())
	}
	if r.DiskStart != 0 {
		return unsupported("entry %q: starts on disk %d", r.Name.Bytes(), r.DiskStart)
	}
	if !sizing.Within(uint64(r.LocalHeaderOffset), localHeaderLen, size) {
		return malformed("entry %q: local header at %d crosses archive end %d",
			r.Name.Bytes(), r.LocalHeaderOffset, size)
	}
	if !sizing.Within(uint64(r.LocalHeaderOffset), uint64(r.CompressedSize), size) {
		return malformed("entry %q: compressed data (%d bytes at %d) beyond archive end %d",
			r.Name.Bytes(), r.CompressedSize, r.LocalHeaderOffset, size)
	}

	off := uint64(r.LocalHeaderOffset)
	compressed, _ := root.Uint32(off + 18)   //nolint:errcheck // header bounds checked above
	uncompressed, _ := root.Uint32(off + 22) //nolint:errcheck // header bounds checked above
	if compressed == sentinel32 || uncompressed == sentinel32 {
		return unsupported("entry %q: zip64 local header", r.Name.Bytes())
	}
	return nil
}

// findExtra returns the payload of the first extra field block with the
// given header ID.
func findExtra(extra byteview.View, id uint16) (byteview.View, bool) {
	var off uint64
	for off+4 <= uint64(extra.Len()) { //nolint:gosec // len is non-negative
		tag, _ := extra.Uint16(off)      //nolint:errcheck // bounded by loop condition
		size, _ := extra.Uint16(off + 2) //nolint:errcheck // bounded by loop condition
		body, err := extra.Slice(off+4, uint64(size))
		if err != nil {
			return byteview.View{}, false
		}
		if tag == id {
			return body, true
		}
		off += 4 + uint64(size)
	}
	return byteview.View{}, false
}
