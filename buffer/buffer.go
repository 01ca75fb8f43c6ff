package buffer

import (
	"context"
	"sync"

	"github.com/wippyai/typestream/errors"
	"github.com/wippyai/typestream/wire"
)

// Buffer is an immutable byte payload. It either holds its bytes in memory
// or refers to them through a Loader (bytes persisted elsewhere).
type Buffer struct {
	data   []byte
	loader Loader
	crc    uint64
}

// New wraps data, computing its CRC. The slice must not be modified afterwards.
func New(data []byte) Buffer {
	if len(data) == 0 {
		return Buffer{}
	}
	return Buffer{data: data, crc: wire.CRC64(data)}
}

// FromLoader creates a buffer whose bytes are fetched on demand.
func FromLoader(l Loader) Buffer {
	if l == nil {
		return Buffer{}
	}
	return Buffer{loader: l, crc: l.CRC()}
}

// Empty reports whether the buffer holds no data and no loader.
func (b Buffer) Empty() bool {
	return len(b.data) == 0 && b.loader == nil
}

// Data returns the in-memory bytes, nil when the buffer is loader-backed.
func (b Buffer) Data() []byte {
	return b.data
}

// Loader returns the async loader, nil for in-memory buffers.
func (b Buffer) Loader() Loader {
	return b.loader
}

// Size returns the uncompressed size.
func (b Buffer) Size() uint64 {
	if b.loader != nil && b.data == nil {
		return b.loader.Size()
	}
	return uint64(len(b.data))
}

// CRC returns the CRC-64 of the uncompressed bytes.
func (b Buffer) CRC() uint64 {
	return b.crc
}

// Equal compares by size and CRC.
func (b Buffer) Equal(o Buffer) bool {
	return b.Size() == o.Size() && b.crc == o.crc
}

// Load returns the bytes, going through the loader when needed.
func (b Buffer) Load(ctx context.Context) ([]byte, error) {
	if b.data != nil || b.loader == nil {
		return b.data, nil
	}
	return b.loader.Load(ctx)
}

// Loader produces buffer bytes on demand. Load may block; LoadAsync does not.
type Loader interface {
	Size() uint64
	CRC() uint64
	Load(ctx context.Context) ([]byte, error)
}

// Result is delivered by LoadAsync.
type Result struct {
	Err  error
	Data []byte
}

// LoadAsync runs l.Load on a new goroutine and delivers the outcome on the
// returned channel, which receives exactly one value.
func LoadAsync(ctx context.Context, l Loader) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		data, err := l.Load(ctx)
		ch <- Result{Data: data, Err: err}
	}()
	return ch
}

// Factory resolves metadata of externally persisted buffers into loaders.
// CreateLoader must return immediately; any I/O happens in Loader.Load.
type Factory interface {
	CreateLoader(ctx context.Context, meta Meta) (Loader, error)
}

// Sink persists buffer payloads outside the stream being written.
// payload is already compressed according to meta.
type Sink interface {
	StoreBuffer(ctx context.Context, meta Meta, payload []byte) error
}

// CompressedLoader decompresses an in-memory payload on first Load.
type CompressedLoader struct {
	payload []byte
	data    []byte
	err     error
	meta    Meta
	once    sync.Once
}

// NewCompressedLoader creates a loader over a payload encoded per meta.
func NewCompressedLoader(meta Meta, payload []byte) *CompressedLoader {
	return &CompressedLoader{meta: meta, payload: payload}
}

func (l *CompressedLoader) Size() uint64 { return l.meta.Size }
func (l *CompressedLoader) CRC() uint64  { return l.meta.CRC }

// Meta returns the payload metadata.
func (l *CompressedLoader) Meta() Meta { return l.meta }

// Payload returns the encoded bytes as they were stored.
func (l *CompressedLoader) Payload() []byte { return l.payload }

func (l *CompressedLoader) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.once.Do(func() {
		l.data, l.err = Unpack(l.meta, l.payload)
	})
	return l.data, l.err
}

// Unpack decompresses payload and verifies its CRC against meta.
func Unpack(meta Meta, payload []byte) ([]byte, error) {
	if uint64(len(payload)) != meta.CompressedSize {
		return nil, errors.InvalidData(errors.PhaseRead, nil, "buffer payload size does not match metadata")
	}
	data, err := Decompress(meta.Compression, payload, meta.Size)
	if err != nil {
		return nil, err
	}
	if crc := wire.CRC64(data); crc != meta.CRC {
		return nil, errors.New(errors.PhaseRead, errors.KindChecksum).
			Detail("buffer crc %016x, expected %016x", crc, meta.CRC).
			Build()
	}
	return data, nil
}

// Pack compresses b's bytes and returns the payload with matching metadata.
func Pack(kind Compression, data []byte) (Meta, []byte, error) {
	payload, used, err := CompressIfSmaller(kind, data)
	if err != nil {
		return Meta{}, nil, err
	}
	return Meta{
		Size:           uint64(len(data)),
		CRC:            wire.CRC64(data),
		CompressedSize: uint64(len(payload)),
		Compression:    used,
	}, payload, nil
}
