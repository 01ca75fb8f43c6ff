package typestream

import "io"

// ByteSink receives the bytes of a resource file as they are produced.
type ByteSink interface {
	io.Writer
}

// ByteSource provides random access to a stored resource file.
type ByteSource interface {
	io.ReaderAt
	// Size returns the total number of bytes available.
	Size() int64
}

// ReadAll returns the full contents of src.
func ReadAll(src ByteSource) ([]byte, error) {
	return io.ReadAll(io.NewSectionReader(src, 0, src.Size()))
}
