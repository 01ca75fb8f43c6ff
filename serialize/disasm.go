package serialize

import (
	"context"
	"fmt"
	"strings"

	"github.com/wippyai/typestream/buffer"
	"github.com/wippyai/typestream/errors"
	"github.com/wippyai/typestream/opcode"
)

// Instruction is one record of a protected binary stream, decoded without
// resolving references.
type Instruction struct {
	Offset int
	Tag    opcode.Tag
	// Arg is the count of Compound and Array, the reference index of
	// Property and reference records, and the length of DataRaw.
	Arg  uint64
	Data []byte
	Meta buffer.Meta
}

func (ins Instruction) String() string {
	switch ins.Tag {
	case opcode.Compound, opcode.Array:
		return fmt.Sprintf("%06x %s %d", ins.Offset, ins.Tag, ins.Arg)
	case opcode.Property, opcode.DataTypeRef, opcode.DataName, opcode.DataObjectPointer, opcode.DataResourceRef:
		return fmt.Sprintf("%06x %s #%d", ins.Offset, ins.Tag, ins.Arg)
	case opcode.DataRaw:
		return fmt.Sprintf("%06x %s %d % x", ins.Offset, ins.Tag, ins.Arg, preview(ins.Data))
	case opcode.DataInlineBuffer, opcode.DataAsyncFileBuffer:
		where := "inline"
		if ins.Meta.External {
			where = "external"
		}
		return fmt.Sprintf("%06x %s size=%d stored=%d %s %s crc=%016x",
			ins.Offset, ins.Tag, ins.Meta.Size, ins.Meta.CompressedSize, ins.Meta.Compression, where, ins.Meta.CRC)
	}
	return fmt.Sprintf("%06x %s", ins.Offset, ins.Tag)
}

func preview(b []byte) []byte {
	if len(b) > 16 {
		return b[:16]
	}
	return b
}

// next decodes one record generically. Inline buffer payloads are skipped.
func (r *Reader) next() (Instruction, error) {
	ins := Instruction{Offset: r.r.Position()}
	b, err := r.r.ReadByte()
	if err != nil {
		return ins, err
	}
	ins.Tag = opcode.Tag(b)
	switch ins.Tag {
	case opcode.Nop, opcode.CompoundEnd, opcode.ArrayEnd, opcode.SkipHeader, opcode.SkipLabel:
	case opcode.Compound, opcode.Array,
		opcode.Property, opcode.DataTypeRef, opcode.DataName, opcode.DataObjectPointer, opcode.DataResourceRef:
		ins.Arg, err = r.r.ReadVarint()
	case opcode.DataRaw:
		if ins.Arg, err = r.r.ReadVarint(); err == nil {
			if ins.Arg > uint64(r.r.Remaining()) {
				return ins, errors.BufferOverrun(errors.PhaseRead, r.r.Position(), int(min(ins.Arg, 1<<31)), r.r.Len())
			}
			ins.Data, err = r.r.ReadBytes(int(ins.Arg))
		}
	case opcode.DataInlineBuffer, opcode.DataAsyncFileBuffer:
		if ins.Meta, err = buffer.ReadMeta(r.r); err == nil && !ins.Meta.External {
			if ins.Meta.CompressedSize > uint64(r.r.Remaining()) {
				return ins, errors.BufferOverrun(errors.PhaseRead, r.r.Position(), int(min(ins.Meta.CompressedSize, 1<<31)), r.r.Len())
			}
			err = r.r.Skip(int(ins.Meta.CompressedSize))
		}
	default:
		return ins, errors.New(errors.PhaseRead, errors.KindCorrupted).
			Detail("invalid opcode tag %d at offset %d", b, ins.Offset).
			Build()
	}
	return ins, err
}

// Disassemble lists every record of a protected binary stream.
func Disassemble(data []byte) ([]Instruction, error) {
	r := NewReader(context.Background(), data, nil, ReaderOptions{Protected: true})
	var out []Instruction
	for !r.Done() {
		ins, err := r.next()
		if err != nil {
			return out, err
		}
		out = append(out, ins)
	}
	return out, nil
}

// Listing renders instructions one per line, indented by nesting depth.
func Listing(instructions []Instruction) string {
	var b strings.Builder
	depth := 0
	for _, ins := range instructions {
		switch ins.Tag {
		case opcode.CompoundEnd, opcode.ArrayEnd, opcode.SkipLabel:
			depth = max(depth-1, 0)
		}
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(ins.String())
		b.WriteByte('\n')
		switch ins.Tag {
		case opcode.Compound, opcode.Array, opcode.SkipHeader:
			depth++
		}
	}
	return b.String()
}
