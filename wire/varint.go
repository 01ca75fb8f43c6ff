package wire

import (
	"bytes"
	"io"
	"math/bits"

	"github.com/wippyai/typestream/errors"
)

// Varint encoding: 7 value bits per byte, low group first, bit 7 set when
// more bytes follow. Decoding accepts any number of groups as long as the
// value fits in 64 bits.

// VarintLen returns the number of bytes AppendVarint emits for v.
func VarintLen(v uint64) int {
	if v == 0 {
		return 1
	}
	return (bits.Len64(v) + 6) / 7
}

// AppendVarint appends the encoding of v to dst.
func AppendVarint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// PutVarint encodes v into dst and returns the number of bytes written.
// dst must have room for VarintLen(v) bytes.
func PutVarint(dst []byte, v uint64) int {
	i := 0
	for v >= 0x80 {
		dst[i] = byte(v) | 0x80
		v >>= 7
		i++
	}
	dst[i] = byte(v)
	return i + 1
}

// WriteVarint writes an unsigned varint to a bytes.Buffer.
func WriteVarint(w *bytes.Buffer, v uint64) {
	for v >= 0x80 {
		w.WriteByte(byte(v) | 0x80)
		v >>= 7
	}
	w.WriteByte(byte(v))
}

// ReadVarint reads an unsigned varint from a byte reader.
func ReadVarint(r io.ByteReader) (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if err := accumulate(&result, shift, b); err != nil {
			return 0, err
		}
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

// Varint decodes a varint from the front of buf, returning the value and the
// number of bytes consumed. n == 0 means buf ended before the last group.
func Varint(buf []byte) (v uint64, n int, err error) {
	var shift uint
	for i, b := range buf {
		if err := accumulate(&v, shift, b); err != nil {
			return 0, 0, err
		}
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, nil
}

func accumulate(result *uint64, shift uint, b byte) error {
	group := uint64(b & 0x7f)
	if shift >= 64 {
		if group != 0 {
			return errOverflow
		}
		return nil
	}
	if shift > 57 && group>>(64-shift) != 0 {
		return errOverflow
	}
	*result |= group << shift
	return nil
}

var errOverflow = errors.New(errors.PhaseRead, errors.KindInvalidData).
	Detail("varint overflows 64 bits").
	Build()

// ErrOverflow is returned when a varint does not fit in 64 bits.
var ErrOverflow error = errOverflow
