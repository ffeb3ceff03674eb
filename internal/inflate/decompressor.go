package inflate

import (
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

// Decompressor turns a compressed stream into decompressed bytes.
//
// The returned reader is pulled one chunk at a time by a Session. Closing
// it releases the decoder; it never closes r.
type Decompressor interface {
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// FlatePool manages reusable DEFLATE decoders.
type FlatePool struct {
	pool sync.Pool
}

// NewFlatePool creates a pool of raw DEFLATE decoders.
func NewFlatePool() *FlatePool {
	return &FlatePool{}
}

// NewReader returns a pooled decoder reading from r.
func (p *FlatePool) NewReader(r io.Reader) (io.ReadCloser, error) {
	if rc, ok := p.pool.Get().(io.ReadCloser); ok {
		if err := rc.(flate.Resetter).Reset(r, nil); err == nil { //nolint:errcheck,forcetypeassert // only flate readers are pooled
			return &pooledReader{ReadCloser: rc, release: p.put}, nil
		}
	}
	return &pooledReader{ReadCloser: flate.NewReader(r), release: p.put}, nil
}

func (p *FlatePool) put(rc io.ReadCloser) {
	p.pool.Put(rc)
}

// ZstdPool manages reusable zstd decoders for method 93 entries.
type ZstdPool struct {
	pool                  sync.Pool
	maxDecoderMemory      uint64
	decoderConcurrencySet bool
	decoderConcurrency    int
	decoderLowmem         bool
}

// ZstdOption configures a ZstdPool.
type ZstdOption func(*ZstdPool)

// WithDecoderConcurrency sets the decoder concurrency level (default: 1).
// Values < 0 are treated as 0 (use GOMAXPROCS).
func WithDecoderConcurrency(n int) ZstdOption {
	return func(p *ZstdPool) {
		if n < 0 {
			n = 0
		}
		p.decoderConcurrency = n
		p.decoderConcurrencySet = true
	}
}

// WithDecoderLowmem enables or disables low-memory mode for decoders.
func WithDecoderLowmem(b bool) ZstdOption {
	return func(p *ZstdPool) {
		p.decoderLowmem = b
	}
}

// NewZstdPool creates a pool of zstd decoders.
// If maxMemory is 0, no memory limit is applied to decoders.
func NewZstdPool(maxMemory uint64, opts ...ZstdOption) *ZstdPool {
	p := &ZstdPool{
		maxDecoderMemory:      maxMemory,
		decoderConcurrencySet: true,
		decoderConcurrency:    1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewReader returns a pooled zstd decoder reading from r.
func (p *ZstdPool) NewReader(r io.Reader) (io.ReadCloser, error) {
	if dec, ok := p.pool.Get().(*zstd.Decoder); ok {
		if err := dec.Reset(r); err == nil {
			return &pooledReader{ReadCloser: zstdReader{dec}, release: p.put}, nil
		}
		// Reset failed, drop this one and create new
		dec.Close()
	}
	dec, err := p.newDecoder(r)
	if err != nil {
		return nil, err
	}
	return &pooledReader{ReadCloser: zstdReader{dec}, release: p.put}, nil
}

func (p *ZstdPool) put(rc io.ReadCloser) {
	zr := rc.(zstdReader) //nolint:errcheck,forcetypeassert // only zstd readers are released here
	_ = zr.dec.Reset(nil) //nolint:errcheck // clearing state before pool return
	p.pool.Put(zr.dec)
}

// newDecoder creates a new zstd decoder with the configured memory limit.
func (p *ZstdPool) newDecoder(r io.Reader) (*zstd.Decoder, error) {
	opts := make([]zstd.DOption, 0, 3)
	if p.decoderConcurrencySet {
		opts = append(opts, zstd.WithDecoderConcurrency(p.decoderConcurrency))
	}
	opts = append(opts, zstd.WithDecoderLowmem(p.decoderLowmem))
	if p.maxDecoderMemory != 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(p.maxDecoderMemory))
	}
	return zstd.NewReader(r, opts...)
}

// zstdReader adapts *zstd.Decoder to io.ReadCloser without closing the
// decoder, so that it can return to the pool.
type zstdReader struct {
	dec *zstd.Decoder
}

func (z zstdReader) Read(p []byte) (int, error) { return z.dec.Read(p) }
func (z zstdReader) Close() error               { return nil }

// pooledReader returns its decoder to a pool exactly once.
type pooledReader struct {
	io.ReadCloser
	release func(io.ReadCloser)
}

func (r *pooledReader) Close() error {
	if r.release == nil {
		return nil
	}
	release := r.release
	r.release = nil
	release(r.ReadCloser)
	return nil
}
