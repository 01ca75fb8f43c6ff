package resfile

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/typestream"
	"github.com/wippyai/typestream/buffer"
	"github.com/wippyai/typestream/errors"
	"github.com/wippyai/typestream/filetables"
	"github.com/wippyai/typestream/rtti"
	"github.com/wippyai/typestream/serialize"
	"github.com/wippyai/typestream/wire"
)

// File is an opened resource file.
type File struct {
	Version uint64
	Flags   uint64
	Tables  *filetables.Tables
	// TypeNames lists the stored type names in reference order.
	TypeNames []string

	data []byte
}

// Open parses the container structure of a resource file and verifies its
// checksum. Exports are not decoded.
func Open(data []byte) (*File, error) {
	if len(data) < len(Magic)+8 || !bytes.Equal(data[:len(Magic)], Magic[:]) {
		return nil, errors.InvalidData(errors.PhaseLoad, nil, "not a resource file")
	}
	body := data[:len(data)-8]
	want := binary.LittleEndian.Uint64(data[len(data)-8:])
	if got := wire.CRC64(body); got != want {
		return nil, errors.New(errors.PhaseLoad, errors.KindChecksum).
			Detail("file crc %016x, expected %016x", got, want).
			Build()
	}

	r := wire.NewReader(body)
	r.Skip(len(Magic))
	f := &File{}
	var err error
	if f.Version, err = r.ReadVarint(); err != nil {
		return nil, err
	}
	if f.Version != Version {
		return nil, errors.New(errors.PhaseLoad, errors.KindUnsupported).
			Detail("resource file version %d", f.Version).
			Build()
	}
	if f.Flags, err = r.ReadVarint(); err != nil {
		return nil, err
	}
	if f.Tables, err = filetables.Read(r); err != nil {
		return nil, err
	}

	n, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(r.Remaining()) {
		return nil, errors.BufferOverrun(errors.PhaseLoad, r.Position(), int(min(n, 1<<31)), r.Len())
	}
	f.TypeNames = make([]string, n)
	for i := range f.TypeNames {
		off, err := r.ReadVarint32()
		if err != nil {
			return nil, err
		}
		if f.TypeNames[i], err = f.Tables.String(off); err != nil {
			return nil, err
		}
	}

	size, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	if size != uint64(r.Remaining()) {
		return nil, errors.InvalidData(errors.PhaseLoad, nil, "data section size does not match the file")
	}
	f.data, _ = r.ReadBytes(int(size))

	for i, e := range f.Tables.Exports {
		if _, err := f.section(e.Offset, e.Size); err != nil {
			return nil, errors.New(errors.PhaseLoad, errors.KindInvalidData).
				Path("exports", strconv.Itoa(i)).Cause(err).Build()
		}
	}
	for i, b := range f.Tables.Buffers {
		if _, err := f.section(b.Offset, b.Meta.CompressedSize); err != nil {
			return nil, err
		}
		if err := buffer.CheckSize(b.Meta.Compression, b.Meta.CompressedSize, b.Meta.Size); err != nil {
			return nil, errors.New(errors.PhaseLoad, errors.KindInvalidData).
				Path("buffers", strconv.Itoa(i)).Cause(err).Build()
		}
	}
	return f, nil
}

// OpenSource reads and opens a resource file from src.
func OpenSource(src typestream.ByteSource) (*File, error) {
	data, err := typestream.ReadAll(src)
	if err != nil {
		return nil, errors.Load("reading resource file", err)
	}
	return Open(data)
}

func (f *File) section(off, size uint64) ([]byte, error) {
	if off > uint64(len(f.data)) || size > uint64(len(f.data))-off {
		return nil, errors.BufferOverrun(errors.PhaseLoad, int(min(off, 1<<31)), int(min(size, 1<<31)), len(f.data))
	}
	return f.data[off : off+size], nil
}

// ExportPayload returns the binarized stream of export i.
func (f *File) ExportPayload(i int) ([]byte, error) {
	if i < 0 || i >= len(f.Tables.Exports) {
		return nil, errors.OutOfBounds(errors.PhaseLoad, []string{"exports"}, i, len(f.Tables.Exports))
	}
	e := f.Tables.Exports[i]
	payload, err := f.section(e.Offset, e.Size)
	if err != nil {
		return nil, err
	}
	if crc := wire.CRC64(payload); crc != e.CRC {
		return nil, errors.New(errors.PhaseLoad, errors.KindChecksum).
			Detail("export %d crc %016x, expected %016x", i, crc, e.CRC).
			Build()
	}
	return payload, nil
}

// ExportClass returns the class name of export i.
func (f *File) ExportClass(i int) string {
	s, _ := f.Tables.String(f.Tables.Exports[i].ClassName)
	return s
}

// Disassemble lists the records of export i.
func (f *File) Disassemble(i int) ([]serialize.Instruction, error) {
	payload, err := f.ExportPayload(i)
	if err != nil {
		return nil, err
	}
	return serialize.Disassemble(payload)
}

// BufferPayload returns the stored bytes of buffer i and their metadata.
func (f *File) BufferPayload(i int) (buffer.Meta, []byte, error) {
	if i < 0 || i >= len(f.Tables.Buffers) {
		return buffer.Meta{}, nil, errors.OutOfBounds(errors.PhaseLoad, []string{"buffers"}, i, len(f.Tables.Buffers))
	}
	b := f.Tables.Buffers[i]
	payload, err := f.section(b.Offset, b.Meta.CompressedSize)
	return b.Meta, payload, err
}

// CreateLoader resolves an external buffer reference to the payload stored
// in the file. It implements buffer.Factory.
func (f *File) CreateLoader(_ context.Context, meta buffer.Meta) (buffer.Loader, error) {
	for i, b := range f.Tables.Buffers {
		if b.Meta.Size != meta.Size || b.Meta.CRC != meta.CRC {
			continue
		}
		m, payload, err := f.BufferPayload(i)
		if err != nil {
			return nil, err
		}
		return buffer.NewCompressedLoader(m, payload), nil
	}
	return nil, errors.NotFound(errors.PhaseLoad, "buffer", fmt.Sprintf("size %d crc %016x", meta.Size, meta.CRC))
}

// Resolve builds the reference tables for reading exports with reg.
// Names, types, classes and properties unknown to reg resolve to nil and
// are skipped by the reading classes.
func (f *File) Resolve(reg *rtti.Registry, objects []rtti.Object) *serialize.ResolvedReferences {
	t := f.Tables
	str := func(off uint32) string {
		s, _ := t.String(off)
		return s
	}
	res := &serialize.ResolvedReferences{
		Names:      make([]rtti.Name, len(t.Names)+1),
		Types:      make([]rtti.Type, len(f.TypeNames)+1),
		Objects:    append([]rtti.Object{nil}, objects...),
		Properties: make([]rtti.StreamProperty, len(t.Properties)+1),
		Resources:  make([]rtti.ResourceRef, len(t.Imports)+1),
	}
	for i, n := range t.Names {
		res.Names[i+1] = rtti.Name(str(n.String))
	}
	for i, name := range f.TypeNames {
		if typ, err := reg.FindType(name); err == nil {
			res.Types[i+1] = typ
		} else {
			Logger().Warn("stored type unknown", zap.String("type", name))
		}
	}
	for i, p := range t.Properties {
		sp := rtti.StreamProperty{
			ClassName: str(p.ClassName),
			Name:      str(p.Name),
			TypeName:  str(p.TypeName),
		}
		if typ, err := reg.FindType(sp.TypeName); err == nil {
			sp.Type = typ
		}
		if c, err := reg.FindClass(sp.ClassName); err == nil {
			if prop := c.FindPropertyByHash(p.Hash); prop != nil && prop.Type() == sp.Type {
				sp.Property = prop
			}
		}
		res.Properties[i+1] = sp
	}
	for i, im := range t.Imports {
		ref := rtti.ResourceRef{ID: im.ID}
		if c, err := reg.FindClass(str(im.ClassName)); err == nil {
			ref.Class = c
		}
		res.Resources[i+1] = ref
	}
	return res
}

// Decode creates one object per export and reads the exports into them.
// Exports whose class reg does not know decode to nil.
func (f *File) Decode(ctx context.Context, reg *rtti.Registry, opts Options) ([]rtti.Object, error) {
	objects := make([]rtti.Object, len(f.Tables.Exports))
	classes := make([]*rtti.ClassType, len(objects))
	for i := range objects {
		name := f.ExportClass(i)
		c, err := reg.FindClass(name)
		if err != nil {
			Logger().Warn("export class unknown, skipping export",
				zap.Int("export", i),
				zap.String("class", name))
			continue
		}
		obj, err := c.Create()
		if err != nil {
			return nil, err
		}
		objects[i], classes[i] = obj, c
	}

	refs := f.Resolve(reg, objects)
	ropts := serialize.ReaderOptions{
		Protected:  f.Flags&FlagProtected != 0,
		BufferMode: opts.BufferMode,
		Factory:    f,
	}
	for i, obj := range objects {
		if obj == nil {
			continue
		}
		payload, err := f.ExportPayload(i)
		if err != nil {
			return nil, err
		}
		r := serialize.NewReader(ctx, payload, refs, ropts)
		if err := r.ReadValue(classes[i], rtti.ObjectData(obj)); err != nil {
			return nil, errors.New(errors.PhaseLoad, errors.KindInvalidData).
				Detail("export %d (%s)", i, classes[i].Name()).
				Cause(err).
				Build()
		}
	}
	return objects, nil
}

// Load opens data and decodes its exports with reg.
func Load(ctx context.Context, data []byte, reg *rtti.Registry, opts Options) ([]rtti.Object, error) {
	f, err := Open(data)
	if err != nil {
		return nil, err
	}
	return f.Decode(ctx, reg, opts)
}
