package wire

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
)

const defaultWriterBufferSize = 64 << 10

// Writer is a buffered binary output that tracks its offset and keeps a
// running CRC-64 of every byte written.
type Writer struct {
	out     *bufio.Writer
	err     error
	crc     uint64
	offset  int64
	scratch [binary.MaxVarintLen64 + 1]byte
}

// NewWriter creates a Writer flushing into w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{out: bufio.NewWriterSize(w, defaultWriterBufferSize)}
}

// Offset returns the number of bytes written so far.
func (w *Writer) Offset() int64 {
	return w.offset
}

// Checksum returns the running CRC-64 of everything written so far.
func (w *Writer) Checksum() uint64 {
	return w.crc
}

// Err returns the first error reported by the underlying writer.
func (w *Writer) Err() error {
	return w.err
}

// Byte writes a single byte.
func (w *Writer) Byte(b byte) {
	w.scratch[0] = b
	w.WriteBytes(w.scratch[:1])
}

// WriteBytes writes a byte slice.
func (w *Writer) WriteBytes(data []byte) {
	if w.err != nil || len(data) == 0 {
		return
	}
	n, err := w.out.Write(data)
	w.crc = UpdateCRC64(w.crc, data[:n])
	w.offset += int64(n)
	if err != nil {
		w.err = err
	}
}

// WriteVarint writes an unsigned varint.
func (w *Writer) WriteVarint(v uint64) {
	n := PutVarint(w.scratch[:], v)
	w.WriteBytes(w.scratch[:n])
}

// WriteU32LE writes a little-endian uint32 (fixed 4 bytes).
func (w *Writer) WriteU32LE(v uint32) {
	binary.LittleEndian.PutUint32(w.scratch[:4], v)
	w.WriteBytes(w.scratch[:4])
}

// WriteU64LE writes a little-endian uint64 (fixed 8 bytes).
func (w *Writer) WriteU64LE(v uint64) {
	binary.LittleEndian.PutUint64(w.scratch[:8], v)
	w.WriteBytes(w.scratch[:8])
}

// WriteFloat64 writes a little-endian float64.
func (w *Writer) WriteFloat64(v float64) {
	w.WriteU64LE(math.Float64bits(v))
}

// WriteString writes a varint length followed by the string bytes.
func (w *Writer) WriteString(s string) {
	w.WriteVarint(uint64(len(s)))
	w.WriteBytes([]byte(s))
}

// Flush pushes buffered bytes to the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	if err := w.out.Flush(); err != nil {
		w.err = err
	}
	return w.err
}
