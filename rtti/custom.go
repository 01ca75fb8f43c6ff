package rtti

import (
	"reflect"
	"strings"
	"unsafe"

	"github.com/wippyai/typestream/errors"
)

// Bindings are the optional operations of a custom type. Each nil entry
// falls back to: zero-fill construct, no-op destruct, byte-wise compare and
// copy (reflection when the value holds pointers), and for serialization a
// logged warning with the value skipped.
type Bindings struct {
	Construct   func(ptr unsafe.Pointer)
	Destruct    func(ptr unsafe.Pointer)
	Compare     func(a, b unsafe.Pointer) bool
	Copy        func(dst, src unsafe.Pointer)
	Hash        func(ptr unsafe.Pointer) uint64
	WriteBinary func(w OpcodeWriter, ptr unsafe.Pointer) error
	ReadBinary  func(r OpcodeReader, ptr unsafe.Pointer) error
	WriteText   func(node TextNode, ptr unsafe.Pointer) error
	ReadText    func(node TextNode, ptr unsafe.Pointer) error
	Print       func(b *strings.Builder, ptr unsafe.Pointer)
	Parse       func(s string, ptr unsafe.Pointer) bool

	DescribeDataView func(path string, ptr unsafe.Pointer, info *DataViewInfo) error
	ReadDataView     func(path string, ptr unsafe.Pointer, dst unsafe.Pointer, dstType Type) error
	WriteDataView    func(path string, ptr unsafe.Pointer, src unsafe.Pointer, srcType Type) error
}

// CustomType is an opaque type whose behavior comes from Bindings.
type CustomType struct {
	typeBase
	b Bindings
}

// RegisterCustom registers an opaque type over goType.
func (r *Registry) RegisterCustom(name string, goType reflect.Type, b Bindings) (*CustomType, error) {
	if goType == nil {
		return nil, errors.Registration(name, "custom type needs a Go type")
	}
	t := &CustomType{b: b}
	t.typeBase = newBase(t, name, MetaCustom, goType)
	t.traits.RequiresConstructor = b.Construct != nil
	t.traits.RequiresDestructor = b.Destruct != nil
	t.traits.InitializedFromZeroMem = b.Construct == nil
	if b.Compare != nil || b.Copy != nil {
		t.traits.SimpleCopyCompare = false
	}
	if err := r.register(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Bindings returns the bound operations.
func (t *CustomType) Bindings() Bindings { return t.b }

func (t *CustomType) Construct(ptr unsafe.Pointer) {
	if t.b.Construct != nil {
		t.b.Construct(ptr)
		return
	}
	t.typeBase.Construct(ptr)
}

func (t *CustomType) Destruct(ptr unsafe.Pointer) {
	if t.b.Destruct != nil {
		t.b.Destruct(ptr)
	}
}

func (t *CustomType) Compare(a, b unsafe.Pointer) bool {
	if t.b.Compare != nil {
		return t.b.Compare(a, b)
	}
	return t.typeBase.Compare(a, b)
}

func (t *CustomType) Copy(dst, src unsafe.Pointer) {
	if t.b.Copy != nil {
		t.b.Copy(dst, src)
		return
	}
	t.typeBase.Copy(dst, src)
}

func (t *CustomType) CalcHash(ptr unsafe.Pointer) uint64 {
	if t.b.Hash != nil {
		return t.b.Hash(ptr)
	}
	return t.typeBase.CalcHash(ptr)
}

func (t *CustomType) missing(phase errors.Phase, op string) {
	t.warn(errors.MissingBinding(phase, t.name, op).Error())
}

func (t *CustomType) WriteBinary(w OpcodeWriter, ptr unsafe.Pointer) error {
	if t.b.WriteBinary == nil {
		t.missing(errors.PhaseWrite, "binary write")
		return nil
	}
	return t.b.WriteBinary(w, ptr)
}

func (t *CustomType) ReadBinary(r OpcodeReader, ptr unsafe.Pointer) error {
	if t.b.ReadBinary == nil {
		t.missing(errors.PhaseRead, "binary read")
		return nil
	}
	return t.b.ReadBinary(r, ptr)
}

func (t *CustomType) WriteText(node TextNode, ptr unsafe.Pointer) error {
	switch {
	case t.b.WriteText != nil:
		return t.b.WriteText(node, ptr)
	case t.b.Print != nil:
		return t.typeBase.WriteText(node, ptr)
	}
	t.missing(errors.PhaseWrite, "text write")
	return nil
}

func (t *CustomType) ReadText(node TextNode, ptr unsafe.Pointer) error {
	switch {
	case t.b.ReadText != nil:
		return t.b.ReadText(node, ptr)
	case t.b.Parse != nil:
		return t.typeBase.ReadText(node, ptr)
	}
	t.missing(errors.PhaseRead, "text read")
	return nil
}

func (t *CustomType) PrintToText(b *strings.Builder, ptr unsafe.Pointer) {
	if t.b.Print != nil {
		t.b.Print(b, ptr)
		return
	}
	t.typeBase.PrintToText(b, ptr)
}

func (t *CustomType) ParseFromString(s string, ptr unsafe.Pointer) bool {
	if t.b.Parse != nil {
		return t.b.Parse(s, ptr)
	}
	return false
}

func (t *CustomType) DescribeDataView(p string, ptr unsafe.Pointer, info *DataViewInfo) error {
	if t.b.DescribeDataView != nil {
		return t.b.DescribeDataView(p, ptr, info)
	}
	return t.typeBase.DescribeDataView(p, ptr, info)
}

func (t *CustomType) ReadDataView(p string, ptr unsafe.Pointer, dst unsafe.Pointer, dstType Type) error {
	if t.b.ReadDataView != nil {
		return t.b.ReadDataView(p, ptr, dst, dstType)
	}
	return t.typeBase.ReadDataView(p, ptr, dst, dstType)
}

func (t *CustomType) WriteDataView(p string, ptr unsafe.Pointer, src unsafe.Pointer, srcType Type) error {
	if t.b.WriteDataView != nil {
		return t.b.WriteDataView(p, ptr, src, srcType)
	}
	return t.typeBase.WriteDataView(p, ptr, src, srcType)
}
