package serialize

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/wippyai/typestream/buffer"
	"github.com/wippyai/typestream/errors"
	"github.com/wippyai/typestream/opcode"
	"github.com/wippyai/typestream/rtti"
	"github.com/wippyai/typestream/wire"
)

// BufferMode selects what ReadBuffer returns for inline payloads.
type BufferMode uint8

const (
	// BufferDecompress returns the uncompressed bytes, verified against the
	// stored CRC.
	BufferDecompress BufferMode = iota
	// BufferRaw returns the payload exactly as stored. LastBufferMeta
	// describes its encoding.
	BufferRaw
	// BufferAsync returns a loader-backed buffer that decodes on first Load.
	BufferAsync
)

func (m BufferMode) String() string {
	switch m {
	case BufferDecompress:
		return "decompress"
	case BufferRaw:
		return "raw"
	case BufferAsync:
		return "async"
	}
	return fmt.Sprintf("BufferMode(%d)", m)
}

// ReaderOptions configure a Reader. Protected must match the writer.
type ReaderOptions struct {
	Protected  bool
	BufferMode BufferMode
	// Factory resolves externally stored buffers. Reading one without a
	// factory fails.
	Factory buffer.Factory
}

// DefaultReaderOptions returns options matching DefaultWriterOptions.
func DefaultReaderOptions() ReaderOptions {
	return ReaderOptions{BufferMode: BufferDecompress}
}

// Reader decodes a binarized stream. It implements rtti.OpcodeReader and
// is meant for a single goroutine.
type Reader struct {
	ctx      context.Context
	r        *wire.Reader
	refs     *ResolvedReferences
	opts     ReaderOptions
	lastMeta buffer.Meta
}

var _ rtti.OpcodeReader = (*Reader)(nil)

// NewReader creates a reader over data. ctx is handed to the buffer
// factory.
func NewReader(ctx context.Context, data []byte, refs *ResolvedReferences, opts ReaderOptions) *Reader {
	if refs == nil {
		refs = &ResolvedReferences{}
	}
	return &Reader{ctx: ctx, r: wire.NewReader(data), refs: refs, opts: opts}
}

// Position returns the read offset.
func (r *Reader) Position() int { return r.r.Position() }

// Done reports whether every byte was consumed.
func (r *Reader) Done() bool { return r.r.EOF() }

// LastBufferMeta returns the metadata of the last buffer read.
func (r *Reader) LastBufferMeta() buffer.Meta { return r.lastMeta }

// ReadValue decodes a value of t into ptr.
func (r *Reader) ReadValue(t rtti.Type, ptr unsafe.Pointer) error {
	return t.ReadBinary(r, ptr)
}

// expect consumes the tag byte of a protected stream, skipping Nop records.
func (r *Reader) expect(want opcode.Tag) error {
	if !r.opts.Protected {
		return nil
	}
	for {
		b, err := r.r.ReadByte()
		if err != nil {
			return err
		}
		got := opcode.Tag(b)
		if got == want {
			return nil
		}
		if got != opcode.Nop {
			return errors.OpcodeMismatch(errors.PhaseRead, got.String(), want.String())
		}
	}
}

func (r *Reader) EnterCompound() (uint32, error) {
	if err := r.expect(opcode.Compound); err != nil {
		return 0, err
	}
	return r.r.ReadVarint32()
}

func (r *Reader) LeaveCompound() error { return r.expect(opcode.CompoundEnd) }

func (r *Reader) EnterArray() (uint32, error) {
	if err := r.expect(opcode.Array); err != nil {
		return 0, err
	}
	return r.r.ReadVarint32()
}

func (r *Reader) LeaveArray() error { return r.expect(opcode.ArrayEnd) }

func (r *Reader) EnterSkipBlock() error { return r.expect(opcode.SkipHeader) }

func (r *Reader) LeaveSkipBlock() error { return r.expect(opcode.SkipLabel) }

func (r *Reader) index(tag opcode.Tag) (uint64, error) {
	if err := r.expect(tag); err != nil {
		return 0, err
	}
	return r.r.ReadVarint()
}

func (r *Reader) ReadProperty() (rtti.StreamProperty, error) {
	idx, err := r.index(opcode.Property)
	if err != nil {
		return rtti.StreamProperty{}, err
	}
	return resolve(r.refs.Properties, idx, "property")
}

func (r *Reader) ReadData(size int) ([]byte, error) {
	if err := r.expect(opcode.DataRaw); err != nil {
		return nil, err
	}
	if !r.opts.Protected && size != rtti.VariableSize {
		return r.r.ReadBytes(size)
	}
	n, err := r.r.ReadVarint()
	if err != nil {
		return nil, err
	}
	if size != rtti.VariableSize && n != uint64(size) {
		return nil, errors.New(errors.PhaseRead, errors.KindInvalidData).
			Detail("data record of %d bytes, expected %d", n, size).
			Build()
	}
	if n > uint64(r.r.Remaining()) {
		return nil, errors.BufferOverrun(errors.PhaseRead, r.r.Position(), int(min(n, 1<<31)), r.r.Len())
	}
	return r.r.ReadBytes(int(n))
}

func (r *Reader) ReadTypeRef() (rtti.Type, error) {
	idx, err := r.index(opcode.DataTypeRef)
	if err != nil {
		return nil, err
	}
	return resolve(r.refs.Types, idx, "type")
}

func (r *Reader) ReadName() (rtti.Name, error) {
	idx, err := r.index(opcode.DataName)
	if err != nil {
		return "", err
	}
	return resolve(r.refs.Names, idx, "name")
}

func (r *Reader) ReadPointer() (rtti.Object, error) {
	idx, err := r.index(opcode.DataObjectPointer)
	if err != nil {
		return nil, err
	}
	return resolve(r.refs.Objects, idx, "object")
}

func (r *Reader) ReadResourceRef() (rtti.ResourceRef, error) {
	idx, err := r.index(opcode.DataResourceRef)
	if err != nil {
		return rtti.ResourceRef{}, err
	}
	return resolve(r.refs.Resources, idx, "resource")
}

func (r *Reader) ReadBuffer(async bool) (buffer.Buffer, error) {
	tag := opcode.DataInlineBuffer
	if async {
		tag = opcode.DataAsyncFileBuffer
	}
	if err := r.expect(tag); err != nil {
		return buffer.Buffer{}, err
	}
	meta, err := buffer.ReadMeta(r.r)
	if err != nil {
		return buffer.Buffer{}, err
	}
	r.lastMeta = meta

	if meta.External {
		if r.opts.Factory == nil {
			return buffer.Buffer{}, errors.New(errors.PhaseRead, errors.KindMissingBinding).
				Detail("external buffer of %d bytes and no buffer factory", meta.Size).
				Build()
		}
		l, err := r.opts.Factory.CreateLoader(r.ctx, meta)
		if err != nil {
			return buffer.Buffer{}, errors.Wrap(errors.PhaseRead, errors.KindNotFound, err, "resolving external buffer")
		}
		return buffer.FromLoader(l), nil
	}

	if meta.CompressedSize > uint64(r.r.Remaining()) {
		return buffer.Buffer{}, errors.BufferOverrun(errors.PhaseRead, r.r.Position(), int(min(meta.CompressedSize, 1<<31)), r.r.Len())
	}
	if err := buffer.CheckSize(meta.Compression, meta.CompressedSize, meta.Size); err != nil {
		return buffer.Buffer{}, err
	}
	payload, err := r.r.ReadBytes(int(meta.CompressedSize))
	if err != nil {
		return buffer.Buffer{}, err
	}
	payload = append([]byte(nil), payload...)

	switch r.opts.BufferMode {
	case BufferRaw:
		return buffer.New(payload), nil
	case BufferAsync:
		return buffer.FromLoader(buffer.NewCompressedLoader(meta, payload)), nil
	default:
		data, err := buffer.Unpack(meta, payload)
		if err != nil {
			return buffer.Buffer{}, err
		}
		return buffer.New(data), nil
	}
}

// DiscardSkipBlock skips the next skip block, or the next single value when
// no skip block follows, without resolving references. It needs a
// protected stream.
func (r *Reader) DiscardSkipBlock() error {
	if !r.opts.Protected {
		return errors.SkipMismatch(errors.PhaseRead, "skip blocks cannot be discarded in an unprotected stream")
	}
	var stack []opcode.Tag
	for {
		ins, err := r.next()
		if err != nil {
			if errors.IsKind(err, errors.KindBufferOverrun) && len(stack) > 0 {
				return errors.SkipMismatch(errors.PhaseRead, fmt.Sprintf("stream ended inside %d open block(s)", len(stack)))
			}
			return err
		}
		switch ins.Tag {
		case opcode.Nop:
			continue
		case opcode.Compound, opcode.Array, opcode.SkipHeader:
			stack = append(stack, ins.Tag)
			continue
		case opcode.CompoundEnd, opcode.ArrayEnd, opcode.SkipLabel:
			if len(stack) == 0 || stack[len(stack)-1] != openerOf(ins.Tag) {
				return errors.SkipMismatch(errors.PhaseRead, "unbalanced "+ins.Tag.String()+" while skipping")
			}
			stack = stack[:len(stack)-1]
		case opcode.Property:
			// A property belongs to the value that follows it.
			continue
		}
		if len(stack) == 0 {
			return nil
		}
	}
}

func openerOf(t opcode.Tag) opcode.Tag {
	switch t {
	case opcode.CompoundEnd:
		return opcode.Compound
	case opcode.ArrayEnd:
		return opcode.Array
	case opcode.SkipLabel:
		return opcode.SkipHeader
	}
	return t
}
