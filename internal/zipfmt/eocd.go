package zipfmt

import (
	"encoding/binary"

	"github.com/meigma/zipmap/internal/byteview"
)

var le = binary.LittleEndian

// EOCD is the end-of-central-directory record.
type EOCD struct {
	DiskNumber      uint16
	DirectoryDisk   uint16
	EntriesOnDisk   uint16
	TotalEntries    uint16
	DirectorySize   uint32
	DirectoryOffset uint32
	Comment         byteview.View

	// RecordOffset is the absolute offset of the record's signature.
	RecordOffset int64
}

// FindEOCD locates the end-of-central-directory record.
//
// The record may be followed by a comment of up to 65535 bytes, so the
// signature is searched backward from len-22. A candidate is accepted only
// if its comment length reaches exactly the end of the buffer and the
// directory it describes ends before the record; a signature that happens
// to occur inside a comment or inside compressed data is skipped.
func FindEOCD(root byteview.View) (EOCD, error) {
	size := root.Len()
	if size < eocdLen {
		return EOCD{}, malformed("%d bytes is too short for an end of central directory record", size)
	}

	buf := root.Bytes()
	last := size - eocdLen
	first := max(0, last-maxCommentLen)
	for off := last; off >= first; off-- {
		if buf[off] != 'P' || string(buf[off:off+4]) != sigEndOfDirectory {
			continue
		}
		rec, ok := parseEOCD(root, off)
		if !ok {
			continue
		}
		if err := rec.check(root); err != nil {
			return EOCD{}, err
		}
		return rec, nil
	}
	return EOCD{}, malformed("end of central directory record not found")
}

// parseEOCD decodes the candidate at off and reports whether it is
// self-consistent.
func parseEOCD(root byteview.View, off int) (EOCD, bool) {
	v, err := root.From(uint64(off)) //nolint:gosec // off is non-negative
	if err != nil {
		return EOCD{}, false
	}
	b := v.Bytes()
	commentLen := int(le.Uint16(b[20:]))
	if eocdLen+commentLen != v.Len() {
		return EOCD{}, false
	}
	comment, err := v.Slice(eocdLen, uint64(commentLen)) //nolint:gosec // bounded above
	if err != nil {
		return EOCD{}, false
	}
	rec := EOCD{
		DiskNumber:      le.Uint16(b[4:]),
		DirectoryDisk:   le.Uint16(b[6:]),
		EntriesOnDisk:   le.Uint16(b[8:]),
		TotalEntries:    le.Uint16(b[10:]),
		DirectorySize:   le.Uint32(b[12:]),
		DirectoryOffset: le.Uint32(b[16:]),
		Comment:         comment,
		RecordOffset:    int64(off),
	}
	if rec.isZip64() {
		// Sentinels make the bounds below meaningless; let check reject it.
		return rec, true
	}
	end := uint64(rec.DirectoryOffset) + uint64(rec.DirectorySize)
	if end > uint64(off) { //nolint:gosec // off is non-negative
		return EOCD{}, false
	}
	return rec, true
}

func (e EOCD) isZip64() bool {
	return e.EntriesOnDisk == sentinel16 ||
		e.TotalEntries == sentinel16 ||
		e.DiskNumber == sentinel16 ||
		e.DirectoryDisk == sentinel16 ||
		e.DirectorySize == sentinel32 ||
		e.DirectoryOffset == sentinel32
}

// check rejects ZIP64 and multi-disk archives.
func (e EOCD) check(root byteview.View) error {
	if e.isZip64() {
		return unsupported("zip64 end of central directory (entries=%#x, size=%#x, offset=%#x)",
			e.TotalEntries, e.DirectorySize, e.DirectoryOffset)
	}
	if e.RecordOffset >= zip64LocatorLen {
		loc, err := root.Slice(uint64(e.RecordOffset-zip64LocatorLen), zip64LocatorLen) //nolint:gosec // checked above
		if err == nil && loc.HasPrefix(sigZip64Locator) {
			return unsupported("zip64 end of central directory locator present")
		}
	}
	if e.DiskNumber != 0 || e.DirectoryDisk != 0 || e.EntriesOnDisk != e.TotalEntries {
		return unsupported("multi-disk archive (disk %d, directory disk %d)", e.DiskNumber, e.DirectoryDisk)
	}
	return nil
}
