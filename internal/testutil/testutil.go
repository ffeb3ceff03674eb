// Package testutil builds ZIP archives byte by byte for tests, including
// archives that no well-behaved writer would produce.
package testutil

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"
	"time"

	"github.com/klauspost/compress/flate"
)

// Field offsets inside a central directory record.
const (
	CentralCreatorVersion   = 4
	CentralFlags            = 8
	CentralMethod           = 10
	CentralCRC              = 16
	CentralCompressedSize   = 20
	CentralUncompressedSize = 24
	CentralNameLen          = 28
	CentralExtraLen         = 30
	CentralCommentLen       = 32
	CentralDiskStart        = 34
	CentralExternalAttrs    = 38
	CentralLocalOffset      = 42
)

// Field offsets inside a local file header.
const (
	LocalFlags            = 6
	LocalMethod           = 8
	LocalCRC              = 14
	LocalCompressedSize   = 18
	LocalUncompressedSize = 22
	LocalNameLen          = 26
	LocalExtraLen         = 28
)

// Field offsets inside the end of central directory record.
const (
	EOCDDiskNumber      = 4
	EOCDEntriesOnDisk   = 8
	EOCDTotalEntries    = 10
	EOCDDirectorySize   = 12
	EOCDDirectoryOffset = 16
	EOCDCommentLen      = 20
)

// Entry describes one file to write.
type Entry struct {
	Name string

	// Body is the uncompressed content. CRC and sizes are derived from it.
	Body []byte

	// Method is the compression method code; 0 (stored) and 8 (deflate)
	// are compressed automatically.
	Method uint16

	// Payload, when non-nil, replaces the compressed bytes. Declared sizes
	// still come from Body and len(Payload).
	Payload []byte

	// DataDescriptor sets flag bit 3, zeroes CRC and sizes in the local
	// header and writes a data descriptor after the payload.
	DataDescriptor bool

	// NoDescriptorSignature omits the optional PK\x07\x08 signature.
	NoDescriptorSignature bool

	// Unix sets the creator OS to Unix with the given permission bits.
	Unix uint32

	Modified time.Time
	Extra    []byte
	Comment  string
}

// Archive is a built archive with the offsets of its records.
type Archive struct {
	Bytes []byte

	// Local and Central hold each entry's local header and central
	// directory record offsets.
	Local   []int
	Central []int
	EOCD    int
}

// Build writes entries followed by a central directory and an end of
// central directory record with the given comment.
func Build(t testing.TB, entries []Entry, comment string) *Archive {
	t.Helper()

	var buf bytes.Buffer
	a := &Archive{}
	type meta struct {
		crc        uint32
		compressed uint32
		size       uint32
		flags      uint16
		date, tm   uint16
	}
	metas := make([]meta, len(entries))

	for i, e := range entries {
		payload := e.Payload
		if payload == nil {
			payload = compress(t, e.Method, e.Body)
		}
		m := meta{
			crc:        crc32.ChecksumIEEE(e.Body),
			compressed: uint32(len(payload)), //nolint:gosec // test sizes are small
			size:       uint32(len(e.Body)),  //nolint:gosec // test sizes are small
		}
		m.date, m.tm = dosTime(e.Modified)
		if e.DataDescriptor {
			m.flags |= 1 << 3
		}
		metas[i] = m

		a.Local = append(a.Local, buf.Len())
		w := writer{&buf}
		w.u32(0x04034b50)
		w.u16(20)
		w.u16(m.flags)
		w.u16(e.Method)
		w.u16(m.tm)
		w.u16(m.date)
		if e.DataDescriptor {
			w.u32(0)
			w.u32(0)
			w.u32(0)
		} else {
			w.u32(m.crc)
			w.u32(m.compressed)
			w.u32(m.size)
		}
		w.u16(uint16(len(e.Name)))  //nolint:gosec // test names are short
		w.u16(uint16(len(e.Extra))) //nolint:gosec // test extras are short
		buf.WriteString(e.Name)
		buf.Write(e.Extra)
		buf.Write(payload)
		if e.DataDescriptor {
			if !e.NoDescriptorSignature {
				w.u32(0x08074b50)
			}
			w.u32(m.crc)
			w.u32(m.compressed)
			w.u32(m.size)
		}
	}

	dirStart := buf.Len()
	for i, e := range entries {
		m := metas[i]
		a.Central = append(a.Central, buf.Len())
		w := writer{&buf}
		creator := uint16(20)
		var attrs uint32
		if e.Unix != 0 {
			creator |= 3 << 8
			attrs = (0x8000 | e.Unix) << 16
		}
		w.u32(0x02014b50)
		w.u16(creator)
		w.u16(20)
		w.u16(m.flags)
		w.u16(e.Method)
		w.u16(m.tm)
		w.u16(m.date)
		w.u32(m.crc)
		w.u32(m.compressed)
		w.u32(m.size)
		w.u16(uint16(len(e.Name)))    //nolint:gosec // test names are short
		w.u16(uint16(len(e.Extra)))   //nolint:gosec // test extras are short
		w.u16(uint16(len(e.Comment))) //nolint:gosec // test comments are short
		w.u16(0)
		w.u16(0)
		w.u32(attrs)
		w.u32(uint32(a.Local[i])) //nolint:gosec // test archives are small
		buf.WriteString(e.Name)
		buf.Write(e.Extra)
		buf.WriteString(e.Comment)
	}
	dirSize := buf.Len() - dirStart

	a.EOCD = buf.Len()
	w := writer{&buf}
	w.u32(0x06054b50)
	w.u16(0)
	w.u16(0)
	w.u16(uint16(len(entries))) //nolint:gosec // test archives are small
	w.u16(uint16(len(entries))) //nolint:gosec // test archives are small
	w.u32(uint32(dirSize))      //nolint:gosec // test archives are small
	w.u32(uint32(dirStart))     //nolint:gosec // test archives are small
	w.u16(uint16(len(comment))) //nolint:gosec // test comments are short
	buf.WriteString(comment)

	a.Bytes = buf.Bytes()
	return a
}

// PutUint16 overwrites a little-endian uint16 at off.
func (a *Archive) PutUint16(off int, v uint16) {
	binary.LittleEndian.PutUint16(a.Bytes[off:], v)
}

// PutUint32 overwrites a little-endian uint32 at off.
func (a *Archive) PutUint32(off int, v uint32) {
	binary.LittleEndian.PutUint32(a.Bytes[off:], v)
}

// DataOffset returns the offset of entry i's payload, assuming the local
// name and extra field lengths were not patched.
func (a *Archive) DataOffset(i int) int {
	off := a.Local[i]
	nameLen := int(binary.LittleEndian.Uint16(a.Bytes[off+LocalNameLen:]))
	extraLen := int(binary.LittleEndian.Uint16(a.Bytes[off+LocalExtraLen:]))
	return off + 30 + nameLen + extraLen
}

// Deflate compresses data with raw DEFLATE at the best compression level.
func Deflate(t testing.TB, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		t.Fatalf("flate writer: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("flate write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("flate close: %v", err)
	}
	return buf.Bytes()
}

// Zeros returns a DEFLATE stream that expands to n zero bytes.
func Zeros(t testing.TB, n int) []byte {
	t.Helper()
	return Deflate(t, make([]byte, n))
}

func compress(t testing.TB, method uint16, body []byte) []byte {
	t.Helper()

	switch method {
	case 0:
		return body
	case 8:
		return Deflate(t, body)
	default:
		t.Fatalf("testutil: method %d needs an explicit Payload", method)
		return nil
	}
}

func dosTime(ts time.Time) (date, tm uint16) {
	if ts.IsZero() || ts.Year() < 1980 {
		return 0, 0
	}
	//nolint:gosec // calendar and clock values fit in their bit fields
	date = uint16(ts.Year()-1980)<<9 | uint16(ts.Month())<<5 | uint16(ts.Day())
	//nolint:gosec // calendar and clock values fit in their bit fields
	tm = uint16(ts.Hour())<<11 | uint16(ts.Minute())<<5 | uint16(ts.Second()/2)
	return date, tm
}

type writer struct {
	buf *bytes.Buffer
}

func (w writer) u16(v uint16) {
	_ = binary.Write(w.buf, binary.LittleEndian, v) //nolint:errcheck // bytes.Buffer writes never fail
}

func (w writer) u32(v uint32) {
	_ = binary.Write(w.buf, binary.LittleEndian, v) //nolint:errcheck // bytes.Buffer writes never fail
}
