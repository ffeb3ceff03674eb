package zipfmt

import (
	"fmt"

	"github.com/meigma/zipmap/internal/byteview"
)

// Local is a parsed local file header together with the view of the
// entry's compressed data.
type Local struct {
	ReaderVersion    uint16
	Flags            uint16
	Method           Method
	ModifiedTime     uint16
	ModifiedDate     uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32

	Name  byteview.View
	Extra byteview.View

	// Data is the compressed payload, sized by the central directory.
	Data byteview.View
}

// ReadLocal re-reads the local header of rec and locates its data.
//
// The data starts after the local header's own name and extra field, whose
// lengths may differ from the central copies. Its length is always the
// central directory's compressed size. Data running past the end of the
// archive or into the central directory (dirOffset) is ErrMalformedArchive.
func ReadLocal(root byteview.View, rec *Record, dirOffset uint32) (Local, error) {
	hdr, err := root.Slice(uint64(rec.LocalHeaderOffset), localHeaderLen)
	if err != nil {
		return Local{}, malformed("entry %q: local header at %d crosses archive end", rec.Name.Bytes(), rec.LocalHeaderOffset)
	}
	if !hdr.HasPrefix(sigLocalHeader) {
		return Local{}, malformed("entry %q: bad local header signature %q", rec.Name.Bytes(), hdr.Bytes()[:4])
	}
	b := hdr.Bytes()
	loc := Local{
		ReaderVersion:    le.Uint16(b[4:]),
		Flags:            le.Uint16(b[6:]),
		Method:           Method(le.Uint16(b[8:])),
		ModifiedTime:     le.Uint16(b[10:]),
		ModifiedDate:     le.Uint16(b[12:]),
		CRC32:            le.Uint32(b[14:]),
		CompressedSize:   le.Uint32(b[18:]),
		UncompressedSize: le.Uint32(b[22:]),
	}
	if loc.CompressedSize == sentinel32 || loc.UncompressedSize == sentinel32 {
		return Local{}, unsupported("entry %q: zip64 local header", rec.Name.Bytes())
	}

	nameLen := uint64(le.Uint16(b[26:]))
	extraLen := uint64(le.Uint16(b[28:]))
	cursor := uint64(rec.LocalHeaderOffset) + localHeaderLen
	if loc.Name, err = root.Slice(cursor, nameLen); err != nil {
		return Local{}, malformed("entry %q: local name crosses archive end", rec.Name.Bytes())
	}
	cursor += nameLen
	if loc.Extra, err = root.Slice(cursor, extraLen); err != nil {
		return Local{}, malformed("entry %q: local extra field crosses archive end", rec.Name.Bytes())
	}
	cursor += extraLen

	if loc.Data, err = root.Slice(cursor, uint64(rec.CompressedSize)); err != nil {
		return Local{}, malformed("entry %q: data (%d bytes at %d) crosses archive end",
			rec.Name.Bytes(), rec.CompressedSize, cursor)
	}
	if end := cursor + uint64(rec.CompressedSize); end > uint64(dirOffset) {
		return Local{}, malformed("entry %q: data ends at %d inside central directory at %d",
			rec.Name.Bytes(), end, dirOffset)
	}
	return loc, nil
}

// DataEnd returns the absolute offset just past the compressed data.
func (l *Local) DataEnd() int64 {
	return l.Data.Offset() + int64(l.Data.Len())
}

// Mismatch describes a local header field that disagrees with the central
// directory.
type Mismatch struct {
	Field   string
	Local   uint64
	Central uint64
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: local %#x, central %#x", m.Field, m.Local, m.Central)
}

// Compare cross-checks the local header against rec.
//
// The method is always compared. CRC and sizes are compared only when the
// central record does not defer them to a data descriptor (flag bit 3),
// in which case a conforming writer leaves them zero in the local header.
// Name and extra field length differences are reported separately through
// Cosmetic because they never affect where data is read from.
func (l *Local) Compare(rec *Record) []Mismatch {
	var out []Mismatch
	add := func(field string, local, central uint64) {
		if local != central {
			out = append(out, Mismatch{Field: field, Local: local, Central: central})
		}
	}
	add("method", uint64(l.Method), uint64(rec.Method))
	add("data descriptor flag", uint64(l.Flags&FlagDataDescriptor), uint64(rec.Flags&FlagDataDescriptor))
	if !rec.HasDataDescriptor() {
		add("crc32", uint64(l.CRC32), uint64(rec.CRC32))
		add("compressed size", uint64(l.CompressedSize), uint64(rec.CompressedSize))
		add("uncompressed size", uint64(l.UncompressedSize), uint64(rec.UncompressedSize))
	}
	return out
}

// Cosmetic reports name and extra field length differences between the
// local and central headers.
func (l *Local) Cosmetic(rec *Record) []Mismatch {
	var out []Mismatch
	if l.Name.Len() != rec.Name.Len() || string(l.Name.Bytes()) != string(rec.Name.Bytes()) {
		out = append(out, Mismatch{Field: "name", Local: uint64(l.Name.Len()), Central: uint64(rec.Name.Len())})
	}
	if l.Extra.Len() != rec.Extra.Len() {
		out = append(out, Mismatch{Field: "extra length", Local: uint64(l.Extra.Len()), Central: uint64(rec.Extra.Len())})
	}
	return out
}

// DataDescriptor trails the compressed data of entries written with flag bit 3.
type DataDescriptor struct {
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
}

// ReadDataDescriptor parses the data descriptor that starts at off. The
// leading PK\x07\x08 signature is optional.
func ReadDataDescriptor(root byteview.View, off int64) (DataDescriptor, error) {
	if off < 0 {
		return DataDescriptor{}, malformed("data descriptor at negative offset %d", off)
	}
	v, err := root.From(uint64(off))
	if err != nil {
		return DataDescriptor{}, malformed("data descriptor at %d beyond archive end", off)
	}
	if v.HasPrefix(sigDataDescriptor) {
		v, _ = v.From(4) //nolint:errcheck // prefix guarantees 4 bytes
	}
	body, err := v.Slice(0, dataDescriptorLen)
	if err != nil {
		return DataDescriptor{}, malformed("data descriptor at %d is truncated", off)
	}
	b := body.Bytes()
	dd := DataDescriptor{
		CRC32:            le.Uint32(b[0:]),
		CompressedSize:   le.Uint32(b[4:]),
		UncompressedSize: le.Uint32(b[8:]),
	}
	if dd.CompressedSize == sentinel32 || dd.UncompressedSize == sentinel32 {
		return DataDescriptor{}, unsupported("zip64 data descriptor at %d", off)
	}
	return dd, nil
}

// Compare cross-checks descriptor sizes against rec.
func (d DataDescriptor) Compare(rec *Record) []Mismatch {
	var out []Mismatch
	if d.CompressedSize != rec.CompressedSize {
		out = append(out, Mismatch{Field: "descriptor compressed size", Local: uint64(d.CompressedSize), Central: uint64(rec.CompressedSize)})
	}
	if d.UncompressedSize != rec.UncompressedSize {
		out = append(out, Mismatch{Field: "descriptor uncompressed size", Local: uint64(d.UncompressedSize), Central: uint64(rec.UncompressedSize)})
	}
	return out
}
