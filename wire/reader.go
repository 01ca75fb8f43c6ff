package wire

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/typestream/errors"
)

// Reader is a bounds-checked cursor over an in-memory byte slice.
// Reads past the end fail with a buffer_overrun error and leave the cursor
// where it was.
type Reader struct {
	data  []byte
	pos   int
	phase errors.Phase
}

// NewReader creates a Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data, phase: errors.PhaseRead}
}

// Position returns the current byte position.
func (r *Reader) Position() int {
	return r.pos
}

// Len returns the total input length.
func (r *Reader) Len() int {
	return len(r.data)
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// EOF reports whether every byte has been consumed.
func (r *Reader) EOF() bool {
	return r.pos >= len(r.data)
}

// Seek moves the cursor to an absolute position.
func (r *Reader) Seek(pos int) error {
	if pos < 0 || pos > len(r.data) {
		return errors.BufferOverrun(r.phase, pos, 0, len(r.data))
	}
	r.pos = pos
	return nil
}

// PeekByte returns the next byte without consuming it.
func (r *Reader) PeekByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, errors.BufferOverrun(r.phase, r.pos, 1, len(r.data))
	}
	return r.data[r.pos], nil
}

// ReadByte reads a single byte and advances the position.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, errors.BufferOverrun(r.phase, r.pos, 1, len(r.data))
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes returns the next n bytes. The slice aliases the input.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > len(r.data)-r.pos {
		return nil, errors.BufferOverrun(r.phase, r.pos, n, len(r.data))
	}
	b := r.data[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b, nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) error {
	_, err := r.ReadBytes(n)
	return err
}

// ReadVarint reads an unsigned varint.
func (r *Reader) ReadVarint() (uint64, error) {
	v, n, err := Varint(r.data[r.pos:])
	if err != nil {
		return 0, errors.New(r.phase, errors.KindInvalidData).
			Detail("varint at position %d", r.pos).
			Cause(err).
			Build()
	}
	if n == 0 {
		return 0, errors.BufferOverrun(r.phase, r.pos, len(r.data)-r.pos+1, len(r.data))
	}
	r.pos += n
	return v, nil
}

// ReadVarint32 reads a varint that must fit in 32 bits.
func (r *Reader) ReadVarint32() (uint32, error) {
	start := r.pos
	v, err := r.ReadVarint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		r.pos = start
		return 0, errors.New(r.phase, errors.KindInvalidData).
			Detail("varint %d at position %d exceeds 32 bits", v, start).
			Build()
	}
	return uint32(v), nil
}

// ReadU32LE reads a little-endian uint32 (fixed 4 bytes).
func (r *Reader) ReadU32LE() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64LE reads a little-endian uint64 (fixed 8 bytes).
func (r *Reader) ReadU64LE() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadFloat64 reads a little-endian float64.
func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadU64LE()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadString reads a varint length followed by that many bytes.
func (r *Reader) ReadString() (string, error) {
	start := r.pos
	n, err := r.ReadVarint()
	if err != nil {
		return "", err
	}
	if n > uint64(r.Remaining()) {
		r.pos = start
		return "", errors.BufferOverrun(r.phase, r.pos, int(min(n, math.MaxInt32)), len(r.data))
	}
	b, _ := r.ReadBytes(int(n))
	return string(b), nil
}
