package buffer

import (
	"github.com/wippyai/typestream/errors"
	"github.com/wippyai/typestream/wire"
)

// Meta describes a serialized buffer payload.
type Meta struct {
	Size           uint64
	CRC            uint64
	CompressedSize uint64
	Compression    Compression
	External       bool
}

// Packed folds compressed size, codec and the external flag into one value:
// ((compressedSize << 4) | compression) << 1 | external.
func (m Meta) Packed() uint64 {
	v := (m.CompressedSize<<4 | uint64(m.Compression&maxCompression)) << 1
	if m.External {
		v |= 1
	}
	return v
}

// Unpack restores the fields folded by Packed.
func (m *Meta) Unpack(packed uint64) {
	m.External = packed&1 != 0
	packed >>= 1
	m.Compression = Compression(packed & maxCompression)
	m.CompressedSize = packed >> 4
}

// Write emits the metadata: uncompressed size, CRC, packed word.
func (m Meta) Write(w *wire.Writer) {
	w.WriteVarint(m.Size)
	w.WriteVarint(m.CRC)
	w.WriteVarint(m.Packed())
}

// ReadMeta decodes metadata written by Meta.Write.
func ReadMeta(r *wire.Reader) (Meta, error) {
	var m Meta
	var err error
	if m.Size, err = r.ReadVarint(); err != nil {
		return m, err
	}
	if m.CRC, err = r.ReadVarint(); err != nil {
		return m, err
	}
	packed, err := r.ReadVarint()
	if err != nil {
		return m, err
	}
	m.Unpack(packed)
	if !m.Compression.Valid() {
		return m, errors.InvalidData(errors.PhaseRead, nil, "unknown buffer compression "+m.Compression.String())
	}
	if m.Compression == CompressionNone && m.CompressedSize != m.Size {
		return m, errors.InvalidData(errors.PhaseRead, nil, "uncompressed buffer with mismatched sizes")
	}
	return m, nil
}
