package buffer

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"

	"github.com/wippyai/typestream/errors"
)

// Compression identifies the codec applied to a buffer payload.
// Values occupy 4 bits of the packed buffer metadata.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionS2
	CompressionSnappy

	maxCompression = 0x0f
)

var compressionNames = [...]string{
	CompressionNone:   "none",
	CompressionZstd:   "zstd",
	CompressionS2:     "s2",
	CompressionSnappy: "snappy",
}

func (c Compression) String() string {
	if int(c) < len(compressionNames) {
		return compressionNames[c]
	}
	return fmt.Sprintf("compression(%d)", c)
}

// Valid reports whether c is a known codec.
func (c Compression) Valid() bool {
	return int(c) < len(compressionNames)
}

// ParseCompression maps a codec name back to its value.
func ParseCompression(name string) (Compression, bool) {
	for i, n := range compressionNames {
		if n == name {
			return Compression(i), true
		}
	}
	return CompressionNone, false
}

// MaxSize bounds the uncompressed size of a single buffer. Larger sizes in
// metadata are rejected before anything is allocated.
const MaxSize uint64 = 1 << 31

// maxRatio is the largest uncompressed/compressed ratio each codec can
// produce. snappy copies at most 64 bytes per 3-byte tag, s2 repeats up to
// 1<<24 bytes per 5-byte tag and a zstd block expands to at most 128KiB.
var maxRatio = [...]uint64{
	CompressionNone:   1,
	CompressionZstd:   1 << 16,
	CompressionS2:     1 << 22,
	CompressionSnappy: 32,
}

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0), zstd.WithDecoderMaxMemory(MaxSize))
)

// Compress encodes data with the given codec.
func Compress(kind Compression, data []byte) ([]byte, error) {
	switch kind {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
	case CompressionS2:
		return s2.Encode(nil, data), nil
	case CompressionSnappy:
		return snappy.Encode(nil, data), nil
	default:
		return nil, errors.Unsupported(errors.PhaseWrite, fmt.Sprintf("compression %s", kind))
	}
}

// CheckSize rejects metadata whose uncompressed size no payload of
// compressed bytes could produce with kind.
func CheckSize(kind Compression, compressed, size uint64) error {
	if !kind.Valid() {
		return errors.Unsupported(errors.PhaseRead, fmt.Sprintf("compression %s", kind))
	}
	if size > MaxSize {
		return errors.New(errors.PhaseRead, errors.KindBufferOverrun).
			Value(size).
			Detail("buffer of %d bytes exceeds the %d byte limit", size, MaxSize).
			Build()
	}
	if compressed > MaxSize || size > (compressed+1)*maxRatio[kind] {
		return errors.InvalidData(errors.PhaseRead, nil,
			fmt.Sprintf("%d %s bytes cannot hold %d bytes", compressed, kind, size))
	}
	return nil
}

// Decompress decodes payload produced by Compress. size is the expected
// uncompressed size; a mismatch is reported as invalid data. Output is
// never sized from size alone.
func Decompress(kind Compression, payload []byte, size uint64) ([]byte, error) {
	if err := CheckSize(kind, uint64(len(payload)), size); err != nil {
		return nil, err
	}

	var out []byte
	var err error
	switch kind {
	case CompressionNone:
		out = payload
	case CompressionZstd:
		out, err = zstdDecoder.DecodeAll(payload, nil)
	case CompressionS2:
		if err = decodedLen(kind, s2.DecodedLen, payload, size); err == nil {
			out, err = s2.Decode(nil, payload)
		}
	case CompressionSnappy:
		if err = decodedLen(kind, snappy.DecodedLen, payload, size); err == nil {
			out, err = snappy.Decode(nil, payload)
		}
	}
	if err != nil {
		if _, ok := err.(*errors.Error); ok {
			return nil, err
		}
		return nil, errors.Wrap(errors.PhaseRead, errors.KindCompressionFailure, err, "decompress "+kind.String())
	}
	if uint64(len(out)) != size {
		return nil, errors.InvalidData(errors.PhaseRead, nil,
			fmt.Sprintf("decompressed %d bytes, expected %d", len(out), size))
	}
	return out, nil
}

// decodedLen compares the length recorded in a block header with size.
func decodedLen(kind Compression, fn func([]byte) (int, error), payload []byte, size uint64) error {
	n, err := fn(payload)
	if err != nil {
		return errors.Wrap(errors.PhaseRead, errors.KindCompressionFailure, err, "decompress "+kind.String())
	}
	if uint64(n) != size {
		return errors.InvalidData(errors.PhaseRead, nil,
			fmt.Sprintf("%s header declares %d bytes, expected %d", kind, n, size))
	}
	return nil
}

// CompressIfSmaller compresses data and falls back to CompressionNone when
// the codec does not save space.
func CompressIfSmaller(kind Compression, data []byte) ([]byte, Compression, error) {
	if kind == CompressionNone || len(data) == 0 {
		return data, CompressionNone, nil
	}
	packed, err := Compress(kind, data)
	if err != nil {
		return nil, CompressionNone, err
	}
	if len(packed) >= len(data) || bytes.Equal(packed, data) {
		return data, CompressionNone, nil
	}
	return packed, kind, nil
}
