package opcode

import (
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/typestream/buffer"
	"github.com/wippyai/typestream/errors"
	"github.com/wippyai/typestream/rtti"
	"github.com/wippyai/typestream/wire"
)

// Stream is an append-only log of opcode records stored in pages.
// Reference payloads (properties, types, names, objects, resources,
// buffers) live in a side table; records hold their 1-based slot, with 0
// meaning null.
//
// A Stream is single-writer: it performs no locking.
type Stream struct {
	opts      Options
	pages     []page
	refs      []any
	records   int
	size      int
	skipDepth int
	corrupted bool
	err       error
}

var _ rtti.OpcodeWriter = (*Stream)(nil)

// NewStream creates an empty stream.
func NewStream(opts Options) *Stream {
	return &Stream{opts: opts.normalized(), refs: []any{nil}}
}

// Len returns the number of records.
func (s *Stream) Len() int { return s.records }

// Size returns the encoded size of all records in bytes.
func (s *Stream) Size() int { return s.size }

// Pages returns the number of pages held.
func (s *Stream) Pages() int { return len(s.pages) }

// Corrupted reports whether a page allocation failed. A corrupted stream
// holds no records and ignores appends.
func (s *Stream) Corrupted() bool { return s.corrupted }

// Err returns the allocation error that corrupted the stream.
func (s *Stream) Err() error { return s.err }

// Reset frees every page and clears the corrupted state.
func (s *Stream) Reset() {
	s.release()
	s.corrupted = false
	s.err = nil
}

func (s *Stream) release() {
	for _, p := range s.pages {
		s.opts.Allocator.Free(p.buf)
	}
	s.pages = nil
	s.refs = []any{nil}
	s.records = 0
	s.size = 0
	s.skipDepth = 0
}

func (s *Stream) corrupt(err error, want int) {
	s.release()
	s.corrupted = true
	s.err = errors.Wrap(errors.PhaseWrite, errors.KindOutOfMemory, err, "opcode page allocation failed")
	Logger().Error("opcode stream corrupted, dropping all records",
		zap.Int("record_size", want),
		zap.Error(err))
}

// alloc reserves size contiguous bytes, opening a new page when the current
// one has no room. It returns nil once the stream is corrupted.
func (s *Stream) alloc(size int) []byte {
	if s.corrupted {
		return nil
	}
	if n := len(s.pages); n > 0 {
		if p := &s.pages[n-1]; p.free() >= size {
			b := p.buf[p.used : p.used+size]
			p.used += size
			return b
		}
	}

	pageSize := s.opts.PageSize
	if size > pageSize {
		pageSize = max(size, s.opts.HugePageSize)
	}
	buf, err := s.opts.Allocator.Alloc(pageSize)
	if err == nil && len(buf) < size {
		err = errors.InvalidInput(errors.PhaseWrite, "allocator returned a short page")
	}
	if err != nil {
		s.corrupt(err, size)
		return nil
	}
	s.pages = append(s.pages, page{buf: buf, used: size})
	return buf[:size]
}

func (s *Stream) ref(v any) uint64 {
	if v == nil {
		return 0
	}
	s.refs = append(s.refs, v)
	return uint64(len(s.refs) - 1)
}

func (s *Stream) append(tag Tag, arg uint64, data []byte) {
	if s.corrupted {
		return
	}
	size := 1
	switch tagPayload[tag] {
	case payloadCount, payloadRef:
		size += wire.VarintLen(arg)
	case payloadBytes:
		size += wire.VarintLen(arg) + len(data)
	}
	b := s.alloc(size)
	if b == nil {
		return
	}
	b[0] = byte(tag)
	switch tagPayload[tag] {
	case payloadCount, payloadRef:
		wire.PutVarint(b[1:], arg)
	case payloadBytes:
		n := wire.PutVarint(b[1:], arg)
		copy(b[1+n:], data)
	}
	s.records++
	s.size += size
}

// Nop appends a record without meaning.
func (s *Stream) Nop() { s.append(Nop, 0, nil) }

func (s *Stream) BeginCompound(n uint32) { s.append(Compound, uint64(n), nil) }
func (s *Stream) EndCompound()           { s.append(CompoundEnd, 0, nil) }
func (s *Stream) BeginArray(n uint32)    { s.append(Array, uint64(n), nil) }
func (s *Stream) EndArray()              { s.append(ArrayEnd, 0, nil) }

func (s *Stream) BeginProperty(p *rtti.Property) {
	var v any
	if p != nil {
		v = p
	}
	s.append(Property, s.ref(v), nil)
}

func (s *Stream) BeginSkipBlock() {
	s.skipDepth++
	s.append(SkipHeader, 0, nil)
}

func (s *Stream) EndSkipBlock() {
	if s.skipDepth == 0 {
		Logger().Warn("skip label without open skip block")
	} else {
		s.skipDepth--
	}
	s.append(SkipLabel, 0, nil)
}

// WriteData appends a DataRaw record whose length the reader knows.
func (s *Stream) WriteData(data []byte) {
	s.append(DataRaw, uint64(len(data))<<1, data)
}

// WriteVarData appends a DataRaw record whose length must be encoded.
func (s *Stream) WriteVarData(data []byte) {
	s.append(DataRaw, uint64(len(data))<<1|1, data)
}

func (s *Stream) WriteTypeRef(t rtti.Type) {
	var v any
	if t != nil {
		v = t
	}
	s.append(DataTypeRef, s.ref(v), nil)
}

func (s *Stream) WriteName(n rtti.Name) {
	var v any
	if n != "" {
		v = n
	}
	s.append(DataName, s.ref(v), nil)
}

func (s *Stream) WritePointer(obj rtti.Object) {
	var v any
	if obj != nil {
		v = obj
	}
	s.append(DataObjectPointer, s.ref(v), nil)
}

func (s *Stream) WriteResourceRef(r rtti.ResourceRef) {
	var v any
	if !r.IsNull() {
		v = r
	}
	s.append(DataResourceRef, s.ref(v), nil)
}

func (s *Stream) WriteBuffer(b buffer.Buffer, async bool) {
	tag := DataInlineBuffer
	if async {
		tag = DataAsyncFileBuffer
	}
	s.append(tag, s.ref(b), nil)
}

// WriteValue appends the serialization walk of the value of t at ptr.
func (s *Stream) WriteValue(t rtti.Type, ptr unsafe.Pointer) error {
	if err := t.WriteBinary(s, ptr); err != nil {
		return err
	}
	if s.corrupted {
		return s.err
	}
	return nil
}

// OpenSkipBlocks returns the number of skip blocks begun and not ended.
func (s *Stream) OpenSkipBlocks() int { return s.skipDepth }
