package serialize

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/typestream/buffer"
	"github.com/wippyai/typestream/errors"
	"github.com/wippyai/typestream/opcode"
	"github.com/wippyai/typestream/wire"
)

// WriterOptions configure Binarize.
type WriterOptions struct {
	// Protected writes every tag byte and every DataRaw length so that
	// readers can discard skip blocks they do not understand.
	Protected bool
	// Compression is applied to buffer payloads of at least
	// CompressionThreshold bytes. Payloads that do not shrink stay raw.
	Compression          buffer.Compression
	CompressionThreshold int
	// Sink receives async buffer payloads. Without one they are written
	// inline like ordinary buffers.
	Sink buffer.Sink
}

// DefaultWriterOptions returns options for transient in-memory streams.
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{
		Compression:          buffer.CompressionNone,
		CompressionThreshold: 4 << 10,
	}
}

// Binarize encodes the records of s into w, replacing every reference with
// its index in refs. References missing from refs fail with an
// unmapped_reference error.
func Binarize(ctx context.Context, w *wire.Writer, s *opcode.Stream, refs *MappedReferences, opts WriterOptions) error {
	if s.Corrupted() {
		return s.Err()
	}
	b := binarizer{ctx: ctx, w: w, refs: refs, opts: opts}
	it := s.Iterate()
	for it.Next() {
		if err := b.record(it.Record()); err != nil {
			return err
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	return w.Err()
}

type binarizer struct {
	ctx  context.Context
	w    *wire.Writer
	refs *MappedReferences
	opts WriterOptions
}

func (b *binarizer) tag(t opcode.Tag) {
	if b.opts.Protected {
		b.w.Byte(byte(t))
	}
}

func (b *binarizer) index(idx uint32, err error) error {
	if err != nil {
		return err
	}
	b.w.WriteVarint(uint64(idx))
	return nil
}

func (b *binarizer) record(rec opcode.Record) error {
	switch rec.Tag {
	case opcode.Nop, opcode.CompoundEnd, opcode.ArrayEnd, opcode.SkipHeader, opcode.SkipLabel:
		b.tag(rec.Tag)
	case opcode.Compound, opcode.Array:
		b.tag(rec.Tag)
		b.w.WriteVarint(uint64(rec.Count))
	case opcode.Property:
		b.tag(rec.Tag)
		return b.index(b.refs.propertyIndex(rec.Property))
	case opcode.DataRaw:
		b.tag(rec.Tag)
		if b.opts.Protected || rec.Variable {
			b.w.WriteVarint(uint64(len(rec.Data)))
		}
		b.w.WriteBytes(rec.Data)
	case opcode.DataTypeRef:
		b.tag(rec.Tag)
		return b.index(b.refs.typeIndex(rec.Type))
	case opcode.DataName:
		b.tag(rec.Tag)
		return b.index(b.refs.nameIndex(rec.Name))
	case opcode.DataObjectPointer:
		b.tag(rec.Tag)
		return b.index(b.refs.objectIndex(rec.Object))
	case opcode.DataResourceRef:
		b.tag(rec.Tag)
		return b.index(b.refs.resourceIndex(rec.Resource))
	case opcode.DataInlineBuffer, opcode.DataAsyncFileBuffer:
		b.tag(rec.Tag)
		return b.buffer(rec.Buffer, rec.Tag == opcode.DataAsyncFileBuffer)
	default:
		return errors.InvalidData(errors.PhaseWrite, nil, "unknown opcode "+rec.Tag.String())
	}
	return nil
}

// buffer writes metadata followed by the payload, unless the bytes live
// elsewhere: loader-backed buffers and async buffers handed to the sink
// write metadata only.
func (b *binarizer) buffer(buf buffer.Buffer, async bool) error {
	if buf.Data() == nil && buf.Loader() != nil {
		if pl, ok := buf.Loader().(*buffer.CompressedLoader); ok {
			meta := pl.Meta()
			meta.External = false
			meta.Write(b.w)
			b.w.WriteBytes(pl.Payload())
			return nil
		}
		meta := loaderMeta(buf.Loader())
		meta.External = true
		meta.Write(b.w)
		return nil
	}

	data := buf.Data()
	kind := buffer.CompressionNone
	if len(data) >= b.opts.CompressionThreshold {
		kind = b.opts.Compression
	}
	meta, payload, err := buffer.Pack(kind, data)
	if err != nil {
		return err
	}

	if async && b.opts.Sink != nil && len(data) > 0 {
		meta.External = true
		if err := b.opts.Sink.StoreBuffer(b.ctx, meta, payload); err != nil {
			return errors.Wrap(errors.PhaseWrite, errors.KindInvalidData, err, "storing async buffer")
		}
		Logger().Debug("async buffer stored externally",
			zap.Uint64("size", meta.Size),
			zap.Uint64("crc", meta.CRC))
		meta.Write(b.w)
		return nil
	}
	meta.Write(b.w)
	b.w.WriteBytes(payload)
	return nil
}

type metaLoader interface {
	Meta() buffer.Meta
}

func loaderMeta(l buffer.Loader) buffer.Meta {
	if ml, ok := l.(metaLoader); ok {
		return ml.Meta()
	}
	return buffer.Meta{
		Size:           l.Size(),
		CRC:            l.CRC(),
		CompressedSize: l.Size(),
	}
}
