package opcode

import (
	"fmt"

	"github.com/wippyai/typestream/buffer"
	"github.com/wippyai/typestream/errors"
	"github.com/wippyai/typestream/rtti"
	"github.com/wippyai/typestream/wire"
)

// Record is one decoded opcode record. Only the fields matching Tag are set.
type Record struct {
	Tag Tag
	// Size is the encoded size of the record in bytes.
	Size int

	Count    uint32
	Data     []byte
	Variable bool

	Property *rtti.Property
	Type     rtti.Type
	Name     rtti.Name
	Object   rtti.Object
	Resource rtti.ResourceRef
	Buffer   buffer.Buffer
}

func (r Record) String() string {
	switch r.Tag {
	case Compound, Array:
		return fmt.Sprintf("%s(%d)", r.Tag, r.Count)
	case Property:
		if r.Property == nil {
			return "Property(null)"
		}
		return "Property(" + r.Property.String() + ")"
	case DataRaw:
		if r.Variable {
			return fmt.Sprintf("DataRaw(var %d bytes)", len(r.Data))
		}
		return fmt.Sprintf("DataRaw(%d bytes)", len(r.Data))
	case DataTypeRef:
		if r.Type == nil {
			return "DataTypeRef(null)"
		}
		return "DataTypeRef(" + r.Type.Name() + ")"
	case DataName:
		return fmt.Sprintf("DataName(%q)", string(r.Name))
	case DataResourceRef:
		return "DataResourceRef(" + r.Resource.String() + ")"
	case DataInlineBuffer, DataAsyncFileBuffer:
		return fmt.Sprintf("%s(%d bytes)", r.Tag, r.Buffer.Size())
	}
	return r.Tag.String()
}

// Iterator walks the records of a stream in order. Appending to the stream
// while iterating is allowed; the iterator observes the new records.
type Iterator struct {
	s    *Stream
	page int
	off  int
	rec  Record
	err  error
}

// Iterate returns an iterator positioned before the first record.
func (s *Stream) Iterate() *Iterator {
	return &Iterator{s: s}
}

// Next decodes the next record. It returns false at the end of the stream
// or on a decoding error.
func (it *Iterator) Next() bool {
	if it.err != nil || it.s.corrupted {
		return false
	}
	for it.page < len(it.s.pages) && it.off >= it.s.pages[it.page].used {
		it.page++
		it.off = 0
	}
	if it.page >= len(it.s.pages) {
		return false
	}
	p := it.s.pages[it.page]
	rec, n, err := it.s.decode(p.buf[it.off:p.used])
	if err != nil {
		it.err = err
		return false
	}
	it.off += n
	it.rec = rec
	return true
}

// Record returns the record decoded by the last successful Next.
func (it *Iterator) Record() Record { return it.rec }

// Err returns the error that stopped the iteration.
func (it *Iterator) Err() error { return it.err }

// SkipBlock advances past the skip block whose SkipHeader was just
// returned by Next, leaving the iterator before the record that follows
// the matching SkipLabel.
func (it *Iterator) SkipBlock() error {
	if it.rec.Tag != SkipHeader {
		return errors.OpcodeMismatch(errors.PhaseRead, it.rec.Tag.String(), SkipHeader.String())
	}
	depth := 1
	for it.Next() {
		switch it.rec.Tag {
		case SkipHeader:
			depth++
		case SkipLabel:
			depth--
			if depth == 0 {
				return nil
			}
		}
	}
	if it.err != nil {
		return it.err
	}
	return errors.SkipMismatch(errors.PhaseRead, fmt.Sprintf("stream ended inside %d skip block(s)", depth))
}

func (s *Stream) decode(b []byte) (Record, int, error) {
	tag := Tag(b[0])
	if !tag.Valid() {
		return Record{}, 0, errors.New(errors.PhaseRead, errors.KindCorrupted).
			Detail("invalid opcode tag %d", b[0]).Build()
	}
	rec := Record{Tag: tag}
	n := 1
	if tagPayload[tag] != payloadNone {
		v, m, err := wire.Varint(b[1:])
		if err != nil {
			return Record{}, 0, err
		}
		n += m
		switch tagPayload[tag] {
		case payloadCount:
			rec.Count = uint32(v)
		case payloadRef:
			if v >= uint64(len(s.refs)) {
				return Record{}, 0, errors.OutOfBounds(errors.PhaseRead, nil, int(v), len(s.refs))
			}
			rec.setRef(s.refs[v])
		case payloadBytes:
			size := int(v >> 1)
			if n+size > len(b) {
				return Record{}, 0, errors.BufferOverrun(errors.PhaseRead, n, size, len(b))
			}
			rec.Data = b[n : n+size]
			rec.Variable = v&1 != 0
			n += size
		}
	}
	rec.Size = n
	return rec, n, nil
}

func (r *Record) setRef(v any) {
	switch r.Tag {
	case Property:
		r.Property, _ = v.(*rtti.Property)
	case DataTypeRef:
		r.Type, _ = v.(rtti.Type)
	case DataName:
		r.Name, _ = v.(rtti.Name)
	case DataObjectPointer:
		r.Object, _ = v.(rtti.Object)
	case DataResourceRef:
		r.Resource, _ = v.(rtti.ResourceRef)
	case DataInlineBuffer, DataAsyncFileBuffer:
		r.Buffer, _ = v.(buffer.Buffer)
	}
}

var opener = map[Tag]Tag{CompoundEnd: Compound, ArrayEnd: Array, SkipLabel: SkipHeader}

// Validate decodes every record and checks that structure and skip blocks
// nest properly.
func (s *Stream) Validate() error {
	var stack []Tag
	it := s.Iterate()
	for it.Next() {
		tag := it.Record().Tag
		switch tag {
		case Compound, Array, SkipHeader:
			stack = append(stack, tag)
		case CompoundEnd, ArrayEnd, SkipLabel:
			open := opener[tag]
			if len(stack) == 0 || stack[len(stack)-1] != open {
				if tag == SkipLabel || (len(stack) > 0 && stack[len(stack)-1] == SkipHeader) {
					return errors.SkipMismatch(errors.PhaseRead, "unbalanced "+tag.String())
				}
				return errors.OpcodeMismatch(errors.PhaseRead, tag.String(), "matching end")
			}
			stack = stack[:len(stack)-1]
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	if len(stack) > 0 {
		if stack[len(stack)-1] == SkipHeader {
			return errors.SkipMismatch(errors.PhaseRead, "unterminated skip block")
		}
		return errors.OpcodeMismatch(errors.PhaseRead, "end of stream", stack[len(stack)-1].String()+" end")
	}
	return nil
}
