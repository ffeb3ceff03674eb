// Package inflate streams entry data out of an archive under a size
// ceiling and an expansion-ratio guard, verifying the CRC-32 at the end.
package inflate

import (
	"errors"
	"fmt"
	"io"

	"github.com/meigma/zipmap/internal/zipfmt"
)

// Defaults applied when a Limits field is zero.
const (
	// DefaultSizeCeiling is the largest entry that will be decompressed.
	DefaultSizeCeiling uint64 = 5 << 30

	// DefaultMaxRatio is the largest tolerated output/input ratio. DEFLATE
	// cannot legitimately exceed roughly 1032:1.
	DefaultMaxRatio = 1032

	// DefaultRatioFloor is the output size below which the ratio is not
	// checked, so tiny inputs with high ratios are not rejected.
	DefaultRatioFloor uint64 = 64 << 10

	// DefaultChunkSize is the size of each emitted chunk.
	DefaultChunkSize = 32 << 10
)

var (
	// ErrEntryTooLarge is returned when an entry declares an uncompressed
	// size above the size ceiling.
	ErrEntryTooLarge = errors.New("zipmap: entry too large")

	// ErrDecompressionBomb is returned when decompression produces more
	// bytes than permitted, or expands faster than the ratio limit allows.
	ErrDecompressionBomb = errors.New("zipmap: decompression bomb")
)

// Limits bound a single decompression.
type Limits struct {
	// Ceiling is the absolute output limit in bytes.
	Ceiling uint64

	// MaxRatio is the largest output/consumed-input ratio. Negative
	// disables the ratio check.
	MaxRatio float64

	// RatioFloor is the output size at which ratio checks start.
	RatioFloor uint64

	// ChunkSize is the largest chunk returned by Next.
	ChunkSize int
}

// withDefaults fills zero fields.
func (l Limits) withDefaults() Limits {
	if l.Ceiling == 0 {
		l.Ceiling = DefaultSizeCeiling
	}
	if l.MaxRatio == 0 {
		l.MaxRatio = DefaultMaxRatio
	}
	if l.RatioFloor == 0 {
		l.RatioFloor = DefaultRatioFloor
	}
	if l.ChunkSize <= 0 {
		l.ChunkSize = DefaultChunkSize
	}
	return l
}

// CheckDeclared reports ErrEntryTooLarge if declared exceeds the ceiling.
func (l Limits) CheckDeclared(declared uint64) error {
	l = l.withDefaults()
	if declared > l.Ceiling {
		return fmt.Errorf("%w: declared %d bytes, ceiling %d", ErrEntryTooLarge, declared, l.Ceiling)
	}
	return nil
}

// Session produces the decompressed bytes of one entry chunk by chunk.
//
// Stored data is returned as sub-slices of the input without copying.
// Compressed data is decoded into a buffer owned by the session, so a chunk
// is only valid until the next call to Next.
//
// A Session is not safe for concurrent use.
type Session struct {
	data []byte
	pos  int

	dec io.ReadCloser
	in  *CountingReader
	buf []byte
	eof bool

	declared uint64
	limit    uint64
	lim      Limits
	emitted  uint64
	crc      *CRCVerifier

	err error
}

// New starts a session over the compressed bytes data.
//
// A nil dec means the data is stored and must be exactly declared bytes
// long. wantCRC is the CRC-32 the output must match.
func New(data []byte, dec Decompressor, declared uint64, wantCRC uint32, lim Limits) (*Session, error) {
	lim = lim.withDefaults()
	if err := lim.CheckDeclared(declared); err != nil {
		return nil, err
	}
	s := &Session{
		data:     data,
		declared: declared,
		limit:    min(declared, lim.Ceiling),
		lim:      lim,
		crc:      NewCRCVerifier(wantCRC),
	}
	if dec == nil {
		if uint64(len(data)) != declared {
			return nil, fmt.Errorf("%w: stored entry has %d compressed and %d uncompressed bytes",
				zipfmt.ErrMalformedArchive, len(data), declared)
		}
		return s, nil
	}

	s.in = NewCountingReader(data)
	rc, err := dec.NewReader(s.in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", zipfmt.ErrMalformedArchive, err)
	}
	s.dec = rc
	s.buf = make([]byte, lim.ChunkSize)
	return s, nil
}

// Next returns the next chunk of output. It returns io.EOF once every byte
// has been produced and the checksum matched. Any other error is final.
// The checksum is only checked after the last chunk.
func (s *Session) Next() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	var (
		chunk []byte
		err   error
	)
	if s.dec == nil {
		chunk, err = s.nextStored()
	} else {
		chunk, err = s.nextDecoded()
	}
	if err != nil {
		s.err = err
		s.Close()
		return nil, err
	}
	return chunk, nil
}

// Emitted returns the number of output bytes produced so far.
func (s *Session) Emitted() uint64 {
	return s.emitted
}

// Consumed returns the number of compressed bytes read so far.
func (s *Session) Consumed() uint64 {
	if s.in == nil {
		return uint64(s.pos) //nolint:gosec // pos is never negative
	}
	return s.in.N
}

// Close releases the decoder. It is safe to call more than once.
func (s *Session) Close() {
	if s.dec != nil {
		_ = s.dec.Close() //nolint:errcheck // pooled readers never fail to close
	}
	if s.err == nil {
		s.err = io.ErrClosedPipe
	}
}

func (s *Session) nextStored() ([]byte, error) {
	if s.pos == len(s.data) {
		return nil, s.finish()
	}
	n := min(s.lim.ChunkSize, len(s.data)-s.pos)
	chunk := s.data[s.pos : s.pos+n : s.pos+n]
	s.pos += n
	s.emitted += uint64(n) //nolint:gosec // n is positive
	_, _ = s.crc.Write(chunk) //nolint:errcheck // hash writes never fail
	return chunk, nil
}

func (s *Session) nextDecoded() ([]byte, error) {
	if s.eof {
		return nil, s.finish()
	}

	// Ask for at most one byte past the limit so an overrun is detected
	// without ever handing it to the caller.
	want := uint64(len(s.buf))
	if room := s.limit - s.emitted; room < want {
		want = room + 1
	}
	got := 0
	for uint64(got) < want { //nolint:gosec // got is never negative
		n, err := s.dec.Read(s.buf[got:want])
		got += n
		if errors.Is(err, io.EOF) {
			s.eof = true
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: corrupt compressed stream: %v", zipfmt.ErrMalformedArchive, err)
		}
	}
	if got == 0 {
		return nil, s.finish()
	}

	total := s.emitted + uint64(got) //nolint:gosec // got is positive
	if total > s.limit {
		return nil, fmt.Errorf("%w: output exceeds %d bytes", ErrDecompressionBomb, s.limit)
	}
	s.emitted = total
	if err := s.checkRatio(); err != nil {
		return nil, err
	}

	chunk := s.buf[:got]
	_, _ = s.crc.Write(chunk) //nolint:errcheck // hash writes never fail
	return chunk, nil
}

func (s *Session) checkRatio() error {
	if s.lim.MaxRatio < 0 || s.emitted < s.lim.RatioFloor {
		return nil
	}
	consumed := max(s.in.N, 1)
	if float64(s.emitted) > s.lim.MaxRatio*float64(consumed) {
		return fmt.Errorf("%w: %d bytes from %d compressed exceeds ratio %g",
			ErrDecompressionBomb, s.emitted, consumed, s.lim.MaxRatio)
	}
	return nil
}

func (s *Session) finish() error {
	if s.emitted != s.declared {
		return fmt.Errorf("%w: stream ended after %d of %d bytes",
			zipfmt.ErrMalformedArchive, s.emitted, s.declared)
	}
	if err := s.crc.Verify(); err != nil {
		return err
	}
	return io.EOF
}
