package filetables

import (
	"github.com/google/uuid"

	"github.com/wippyai/typestream/buffer"
	"github.com/wippyai/typestream/errors"
	"github.com/wippyai/typestream/rtti"
	"github.com/wippyai/typestream/wire"
)

// Write encodes the tables: buffers, exports, imports, names, properties,
// then the string blob. Every table is a varint count followed by entries.
func (t *Tables) Write(w *wire.Writer) {
	w.WriteVarint(uint64(len(t.Buffers)))
	for _, b := range t.Buffers {
		b.Meta.Write(w)
		w.WriteVarint(b.Offset)
	}
	w.WriteVarint(uint64(len(t.Exports)))
	for _, e := range t.Exports {
		w.WriteVarint(uint64(e.ClassName))
		w.WriteVarint(e.Offset)
		w.WriteVarint(e.Size)
		w.WriteU64LE(e.CRC)
	}
	w.WriteVarint(uint64(len(t.Imports)))
	for _, im := range t.Imports {
		w.WriteU64LE(im.Hash)
		w.WriteBytes(im.ID[:])
		w.WriteVarint(uint64(im.ClassName))
		w.WriteVarint(uint64(im.Path))
	}
	w.WriteVarint(uint64(len(t.Names)))
	for _, n := range t.Names {
		w.WriteU64LE(n.Hash)
		w.WriteVarint(uint64(n.String))
	}
	w.WriteVarint(uint64(len(t.Properties)))
	for _, p := range t.Properties {
		w.WriteU64LE(p.Hash)
		w.WriteVarint(uint64(p.ClassName))
		w.WriteVarint(uint64(p.Name))
		w.WriteVarint(uint64(p.TypeName))
	}
	w.WriteVarint(uint64(len(t.blob)))
	w.WriteBytes(t.blob)
}

// tableReader decodes entries and keeps the first error.
type tableReader struct {
	r   *wire.Reader
	err error
}

func (tr *tableReader) varint() uint64 {
	if tr.err != nil {
		return 0
	}
	v, err := tr.r.ReadVarint()
	tr.err = err
	return v
}

func (tr *tableReader) offset() uint32 {
	v := tr.varint()
	if v > 1<<32-1 && tr.err == nil {
		tr.err = errors.InvalidData(errors.PhaseTables, nil, "string offset exceeds 32 bits")
	}
	return uint32(v)
}

func (tr *tableReader) u64() uint64 {
	if tr.err != nil {
		return 0
	}
	v, err := tr.r.ReadU64LE()
	tr.err = err
	return v
}

// count reads a table length, rejecting lengths the remaining input cannot
// hold at minSize bytes per entry.
func (tr *tableReader) count(minSize int) int {
	n := tr.varint()
	if tr.err == nil && n > uint64(tr.r.Remaining()/minSize) {
		tr.err = errors.BufferOverrun(errors.PhaseTables, tr.r.Position(), int(min(n, 1<<31)), tr.r.Len())
		return 0
	}
	return int(n)
}

// Read decodes tables written by Write and checks every string offset.
func Read(r *wire.Reader) (*Tables, error) {
	t := New()
	tr := &tableReader{r: r}

	t.Buffers = make([]BufferEntry, tr.count(4))
	for i := range t.Buffers {
		if tr.err != nil {
			break
		}
		meta, err := buffer.ReadMeta(r)
		if err != nil {
			return nil, err
		}
		t.Buffers[i] = BufferEntry{Meta: meta, Offset: tr.varint()}
	}
	t.Exports = make([]ExportEntry, tr.count(11))
	for i := range t.Exports {
		t.Exports[i] = ExportEntry{ClassName: tr.offset(), Offset: tr.varint(), Size: tr.varint(), CRC: tr.u64()}
	}
	t.Imports = make([]ImportEntry, tr.count(26))
	for i := range t.Imports {
		im := ImportEntry{Hash: tr.u64()}
		if tr.err == nil {
			var id []byte
			id, tr.err = r.ReadBytes(len(im.ID))
			copy(im.ID[:], id)
		}
		im.ClassName, im.Path = tr.offset(), tr.offset()
		t.Imports[i] = im
	}
	t.Names = make([]NameEntry, tr.count(9))
	for i := range t.Names {
		t.Names[i] = NameEntry{Hash: tr.u64(), String: tr.offset()}
	}
	t.Properties = make([]PropertyEntry, tr.count(11))
	for i := range t.Properties {
		t.Properties[i] = PropertyEntry{Hash: tr.u64(), ClassName: tr.offset(), Name: tr.offset(), TypeName: tr.offset()}
	}
	blobLen := tr.varint()
	if tr.err != nil {
		return nil, tr.err
	}
	if blobLen == 0 || blobLen > uint64(r.Remaining()) {
		return nil, errors.InvalidData(errors.PhaseTables, []string{"strings"}, "string blob missing or truncated")
	}
	blob, _ := r.ReadBytes(int(blobLen))
	t.blob = append(t.blob[:0], blob...)
	if t.blob[0] != 0 {
		return nil, errors.InvalidData(errors.PhaseTables, []string{"strings"}, "offset 0 is not the empty string")
	}
	if err := t.reindex(); err != nil {
		return nil, err
	}
	return t, nil
}

// reindex rebuilds the lookup maps of decoded tables, validating offsets.
func (t *Tables) reindex() error {
	str := func(off uint32) (string, error) {
		s, err := t.String(off)
		if err != nil {
			return "", err
		}
		t.strings[s] = off
		return s, nil
	}
	for i, n := range t.Names {
		s, err := str(n.String)
		if err != nil {
			return err
		}
		t.names[rtti.Name(s)] = uint32(i)
	}
	for i, p := range t.Properties {
		for _, off := range []uint32{p.ClassName, p.Name, p.TypeName} {
			if _, err := str(off); err != nil {
				return err
			}
		}
		t.properties[p.Hash] = uint32(i)
	}
	for _, im := range t.Imports {
		if _, err := str(im.ClassName); err != nil {
			return err
		}
		if _, err := str(im.Path); err != nil {
			return err
		}
	}
	for _, e := range t.Exports {
		if _, err := str(e.ClassName); err != nil {
			return err
		}
	}
	return nil
}

// ImportID returns the resource ID of import idx.
func (t *Tables) ImportID(idx uint32) (uuid.UUID, error) {
	if int(idx) >= len(t.Imports) {
		return uuid.Nil, violation(errors.OutOfBounds(errors.PhaseTables, []string{"imports"}, int(idx), len(t.Imports)))
	}
	return t.Imports[idx].ID, nil
}
