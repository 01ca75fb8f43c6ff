package rtti

import (
	"encoding/binary"
	"reflect"
	"strconv"
	"strings"
	"unsafe"

	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"

	"github.com/wippyai/typestream/errors"
)

// ArrayType is a sequence of elements of one type. Comparison, copying,
// hashing, serialization, text form and data views are implemented once on
// top of the element accessors; dynamic and fixed arrays only differ in
// those accessors.
type ArrayType interface {
	Type
	ElementType() Type
	Size(ptr unsafe.Pointer) int
	Capacity(ptr unsafe.Pointer) int
	// MaxCapacity is -1 for unbounded arrays.
	MaxCapacity() int
	Resizable() bool
	Element(ptr unsafe.Pointer, i int) unsafe.Pointer
	// CreateElement appends a constructed element and returns it, or nil
	// when the array cannot grow.
	CreateElement(ptr unsafe.Pointer) unsafe.Pointer
	RemoveElement(ptr unsafe.Pointer, i int)
	Clear(ptr unsafe.Pointer)
}

type arrayAccess interface {
	Size(ptr unsafe.Pointer) int
	MaxCapacity() int
	Resizable() bool
	Element(ptr unsafe.Pointer, i int) unsafe.Pointer
	CreateElement(ptr unsafe.Pointer) unsafe.Pointer
	Clear(ptr unsafe.Pointer)
}

type arrayBase struct {
	typeBase
	elem Type
	impl arrayAccess
}

func newArrayBase(self ArrayType, name string, goType reflect.Type, elem Type) arrayBase {
	a := arrayBase{
		typeBase: newBase(self, name, MetaArray, goType),
		elem:     elem,
		impl:     self,
	}
	a.traits.Hashable = elem.Traits().Hashable
	return a
}

func (a *arrayBase) ElementType() Type { return a.elem }

func (a *arrayBase) Compare(x, y unsafe.Pointer) bool {
	n := a.impl.Size(x)
	if n != a.impl.Size(y) {
		return false
	}
	for i := 0; i < n; i++ {
		if !a.elem.Compare(a.impl.Element(x, i), a.impl.Element(y, i)) {
			return false
		}
	}
	return true
}

func (a *arrayBase) Copy(dst, src unsafe.Pointer) {
	if dst == src {
		return
	}
	n := a.impl.Size(src)
	if a.impl.Resizable() {
		a.impl.Clear(dst)
		for i := 0; i < n; i++ {
			a.elem.Copy(a.impl.CreateElement(dst), a.impl.Element(src, i))
		}
		return
	}
	for i := 0; i < n; i++ {
		a.elem.Copy(a.impl.Element(dst, i), a.impl.Element(src, i))
	}
}

func (a *arrayBase) CalcHash(ptr unsafe.Pointer) uint64 {
	h := murmur3.New64()
	var buf [8]byte
	n := a.impl.Size(ptr)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint64(buf[:], a.elem.CalcHash(a.impl.Element(ptr, i)))
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}

func (a *arrayBase) WriteBinary(w OpcodeWriter, ptr unsafe.Pointer) error {
	n := a.impl.Size(ptr)
	w.BeginArray(uint32(n))
	for i := 0; i < n; i++ {
		if err := a.elem.WriteBinary(w, a.impl.Element(ptr, i)); err != nil {
			return err
		}
	}
	w.EndArray()
	return nil
}

// slot returns the element the i-th incoming value should be read into, or
// nil when the value has no room and must be read into a scratch value.
func (a *arrayBase) slot(ptr unsafe.Pointer, i int) unsafe.Pointer {
	if a.impl.Resizable() {
		if limit := a.impl.MaxCapacity(); limit >= 0 && a.impl.Size(ptr) >= limit {
			return nil
		}
		return a.impl.CreateElement(ptr)
	}
	if i < a.impl.Size(ptr) {
		return a.impl.Element(ptr, i)
	}
	return nil
}

func (a *arrayBase) ReadBinary(r OpcodeReader, ptr unsafe.Pointer) error {
	n, err := r.EnterArray()
	if err != nil {
		return err
	}
	if a.impl.Resizable() {
		a.impl.Clear(ptr)
	}
	dropped := 0
	for i := 0; i < int(n); i++ {
		p := a.slot(ptr, i)
		if p == nil {
			tmp := New(a.elem)
			err = a.elem.ReadBinary(r, tmp)
			a.elem.Destruct(tmp)
			dropped++
		} else {
			err = a.elem.ReadBinary(r, p)
		}
		if err != nil {
			return err
		}
	}
	if dropped > 0 {
		a.warn("array elements beyond capacity discarded",
			zap.Int("stored", int(n)), zap.Int("dropped", dropped))
	}
	return r.LeaveArray()
}

func (a *arrayBase) WriteText(node TextNode, ptr unsafe.Pointer) error {
	n := a.impl.Size(ptr)
	for i := 0; i < n; i++ {
		if err := a.elem.WriteText(node.AddChild("item"), a.impl.Element(ptr, i)); err != nil {
			return err
		}
	}
	return nil
}

func (a *arrayBase) ReadText(node TextNode, ptr unsafe.Pointer) error {
	if a.impl.Resizable() {
		a.impl.Clear(ptr)
	}
	for i, item := range node.Children("item") {
		p := a.slot(ptr, i)
		if p == nil {
			a.warn("text array elements beyond capacity discarded")
			break
		}
		if err := a.elem.ReadText(item, p); err != nil {
			return err
		}
	}
	return nil
}

func quotedText(t Type) bool {
	c := t.Traits().ConvClass
	return c == ConvString || c == ConvName
}

func (a *arrayBase) PrintToText(b *strings.Builder, ptr unsafe.Pointer) {
	n := a.impl.Size(ptr)
	quote := quotedText(a.elem)
	b.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		if quote {
			b.WriteString(strconv.Quote(Print(a.elem, a.impl.Element(ptr, i))))
		} else {
			a.elem.PrintToText(b, a.impl.Element(ptr, i))
		}
	}
	b.WriteByte(']')
}

func (a *arrayBase) ParseFromString(s string, ptr unsafe.Pointer) bool {
	parts, ok := splitList(s, '[', ']')
	if !ok {
		return false
	}
	if !a.impl.Resizable() && len(parts) > a.impl.Size(ptr) {
		return false
	}
	if limit := a.impl.MaxCapacity(); limit >= 0 && len(parts) > limit {
		return false
	}
	if a.impl.Resizable() {
		a.impl.Clear(ptr)
	}
	for i, part := range parts {
		if quotedText(a.elem) && strings.HasPrefix(part, `"`) {
			unq, err := strconv.Unquote(part)
			if err != nil {
				return false
			}
			part = unq
		}
		if !a.elem.ParseFromString(part, a.slot(ptr, i)) {
			return false
		}
	}
	return true
}

// member resolves the leading index segment of p.
func (a *arrayBase) member(p string, ptr unsafe.Pointer) (unsafe.Pointer, string, error) {
	idx, rest, ok := ParseArrayIndex(p)
	if !ok {
		if _, _, isName := ParsePropertyName(p); isName {
			return nil, "", noSuchMember(p, a.name)
		}
		return nil, "", errors.MalformedPath(p, "expected [index]")
	}
	if n := a.impl.Size(ptr); idx >= n {
		return nil, "", errors.OutOfBounds(errors.PhaseConvert, []string{p}, idx, n)
	}
	return a.impl.Element(ptr, idx), rest, nil
}

func (a *arrayBase) DescribeDataView(p string, ptr unsafe.Pointer, info *DataViewInfo) error {
	if p == "" {
		info.describe(a.self)
		info.Size = a.impl.Size(ptr)
		return nil
	}
	el, rest, err := a.member(p, ptr)
	if err != nil {
		return err
	}
	return a.elem.DescribeDataView(rest, el, info)
}

func (a *arrayBase) ReadDataView(p string, ptr unsafe.Pointer, dst unsafe.Pointer, dstType Type) error {
	if p == "" {
		return a.typeBase.ReadDataView(p, ptr, dst, dstType)
	}
	el, rest, err := a.member(p, ptr)
	if err != nil {
		return err
	}
	return a.elem.ReadDataView(rest, el, dst, dstType)
}

func (a *arrayBase) WriteDataView(p string, ptr unsafe.Pointer, src unsafe.Pointer, srcType Type) error {
	if p == "" {
		return a.typeBase.WriteDataView(p, ptr, src, srcType)
	}
	el, rest, err := a.member(p, ptr)
	if err != nil {
		return err
	}
	return a.elem.WriteDataView(rest, el, src, srcType)
}

// DynamicArrayType is "array<E>", backed by a Go slice []E.
type DynamicArrayType struct {
	arrayBase
}

func newDynamicArrayType(elem Type) *DynamicArrayType {
	t := &DynamicArrayType{}
	t.arrayBase = newArrayBase(t, "array<"+elem.Name()+">", reflect.SliceOf(elem.GoType()), elem)
	t.traits.RequiresDestructor = elem.Traits().RequiresDestructor
	t.traits.SimpleCopyCompare = false
	return t
}

func (t *DynamicArrayType) Size(ptr unsafe.Pointer) int     { return t.value(ptr).Len() }
func (t *DynamicArrayType) Capacity(ptr unsafe.Pointer) int { return t.value(ptr).Cap() }
func (t *DynamicArrayType) MaxCapacity() int                { return -1 }
func (t *DynamicArrayType) Resizable() bool                 { return true }

func (t *DynamicArrayType) Element(ptr unsafe.Pointer, i int) unsafe.Pointer {
	return t.value(ptr).Index(i).Addr().UnsafePointer()
}

func (t *DynamicArrayType) CreateElement(ptr unsafe.Pointer) unsafe.Pointer {
	v := t.value(ptr)
	v.Set(reflect.Append(v, reflect.Zero(t.elem.GoType())))
	el := v.Index(v.Len() - 1).Addr().UnsafePointer()
	t.elem.Construct(el)
	return el
}

func (t *DynamicArrayType) RemoveElement(ptr unsafe.Pointer, i int) {
	v := t.value(ptr)
	n := v.Len()
	if i < 0 || i >= n {
		return
	}
	t.elem.Destruct(t.Element(ptr, i))
	reflect.Copy(v.Slice(i, n), v.Slice(i+1, n))
	v.Index(n - 1).SetZero()
	v.SetLen(n - 1)
}

func (t *DynamicArrayType) Clear(ptr unsafe.Pointer) {
	v := t.value(ptr)
	for i := 0; i < v.Len(); i++ {
		el := v.Index(i)
		t.elem.Destruct(el.Addr().UnsafePointer())
		el.SetZero()
	}
	if !v.IsNil() {
		v.SetLen(0)
	}
}

func (t *DynamicArrayType) Destruct(ptr unsafe.Pointer) {
	t.Clear(ptr)
	t.value(ptr).SetZero()
}

// FixedArrayType is "E[N]", backed by a Go array [N]E.
type FixedArrayType struct {
	arrayBase
	n int
}

func newFixedArrayType(elem Type, n int) *FixedArrayType {
	t := &FixedArrayType{n: n}
	t.arrayBase = newArrayBase(t, elem.Name()+"["+strconv.Itoa(n)+"]", reflect.ArrayOf(n, elem.GoType()), elem)
	et := elem.Traits()
	t.traits.RequiresConstructor = et.RequiresConstructor
	t.traits.RequiresDestructor = et.RequiresDestructor
	t.traits.InitializedFromZeroMem = et.InitializedFromZeroMem
	t.traits.SimpleCopyCompare = et.SimpleCopyCompare && t.traits.SimpleCopyCompare
	return t
}

func (t *FixedArrayType) Size(unsafe.Pointer) int     { return t.n }
func (t *FixedArrayType) Capacity(unsafe.Pointer) int { return t.n }
func (t *FixedArrayType) MaxCapacity() int            { return t.n }
func (t *FixedArrayType) Resizable() bool             { return false }

func (t *FixedArrayType) Element(ptr unsafe.Pointer, i int) unsafe.Pointer {
	return unsafe.Add(ptr, uintptr(i)*t.elem.Traits().Size)
}

func (t *FixedArrayType) CreateElement(unsafe.Pointer) unsafe.Pointer { return nil }

// RemoveElement resets element i to its constructed state.
func (t *FixedArrayType) RemoveElement(ptr unsafe.Pointer, i int) {
	if i < 0 || i >= t.n {
		return
	}
	el := t.Element(ptr, i)
	t.elem.Destruct(el)
	reflect.NewAt(t.elem.GoType(), el).Elem().SetZero()
	t.elem.Construct(el)
}

// Clear resets every element.
func (t *FixedArrayType) Clear(ptr unsafe.Pointer) {
	for i := 0; i < t.n; i++ {
		t.RemoveElement(ptr, i)
	}
}

func (t *FixedArrayType) Construct(ptr unsafe.Pointer) {
	t.value(ptr).SetZero()
	if t.traits.RequiresConstructor {
		for i := 0; i < t.n; i++ {
			t.elem.Construct(t.Element(ptr, i))
		}
	}
}

func (t *FixedArrayType) Destruct(ptr unsafe.Pointer) {
	if t.traits.RequiresDestructor {
		for i := 0; i < t.n; i++ {
			t.elem.Destruct(t.Element(ptr, i))
		}
	}
}

func (t *FixedArrayType) Compare(x, y unsafe.Pointer) bool {
	if t.traits.SimpleCopyCompare {
		return t.typeBase.Compare(x, y)
	}
	return t.arrayBase.Compare(x, y)
}

func (t *FixedArrayType) Copy(dst, src unsafe.Pointer) {
	if t.traits.SimpleCopyCompare {
		t.typeBase.Copy(dst, src)
		return
	}
	t.arrayBase.Copy(dst, src)
}
