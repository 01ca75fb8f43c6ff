package rtti

import (
	"fmt"
	"reflect"
	"strings"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/typestream/errors"
)

// HandleType describes a strong ("ptr<C>") or weak ("weak<C>") handle to
// objects of class C or its subclasses. Values are Strong or Weak.
type HandleType struct {
	typeBase
	class *ClassType
	weak  bool
}

func newHandleType(c *ClassType, weak bool) *HandleType {
	t := &HandleType{class: c, weak: weak}
	if weak {
		t.typeBase = newBase(t, "weak<"+c.Name()+">", MetaHandle, reflect.TypeFor[Weak]())
		t.traits.ConvClass = ConvWeakHandle
	} else {
		t.typeBase = newBase(t, "ptr<"+c.Name()+">", MetaHandle, reflect.TypeFor[Strong]())
		t.traits.ConvClass = ConvStrongHandle
		t.traits.RequiresDestructor = true
	}
	t.traits.Hashable = false
	return t
}

// PointedClass returns the class the handle is declared over.
func (t *HandleType) PointedClass() *ClassType { return t.class }

// Weak reports whether the handle is non-owning.
func (t *HandleType) Weak() bool { return t.weak }

// ReadPointedObject returns the object the handle at ptr points to. Weak
// handles to expired objects read as nil.
func (t *HandleType) ReadPointedObject(ptr unsafe.Pointer) Object {
	if t.weak {
		return (*Weak)(ptr).Get()
	}
	return (*Strong)(ptr).Get()
}

// WritePointedObject makes the handle at ptr point to obj. Strong handles
// acquire obj and release their previous object.
func (t *HandleType) WritePointedObject(ptr unsafe.Pointer, obj Object) {
	if t.weak {
		*(*Weak)(ptr) = NewWeak(obj)
		return
	}
	(*Strong)(ptr).Set(obj)
}

// IsPointingToNull is cheaper than ReadPointedObject: it does not check
// expiry for strong handles, which keep their object alive.
func (t *HandleType) IsPointingToNull(ptr unsafe.Pointer) bool {
	if t.weak {
		return (*Weak)(ptr).Expired()
	}
	return (*Strong)(ptr).IsNull()
}

func (t *HandleType) Destruct(ptr unsafe.Pointer) {
	if t.weak {
		(*Weak)(ptr).Reset()
		return
	}
	(*Strong)(ptr).Reset()
}

func (t *HandleType) Compare(a, b unsafe.Pointer) bool {
	return t.ReadPointedObject(a) == t.ReadPointedObject(b)
}

func (t *HandleType) Copy(dst, src unsafe.Pointer) {
	if dst == src {
		return
	}
	t.WritePointedObject(dst, t.ReadPointedObject(src))
}

func (t *HandleType) CalcHash(ptr unsafe.Pointer) uint64 {
	obj := t.ReadPointedObject(ptr)
	if obj == nil {
		return 0
	}
	return uint64(uintptr(ObjectData(obj)))
}

func (t *HandleType) WriteBinary(w OpcodeWriter, ptr unsafe.Pointer) error {
	w.WritePointer(t.ReadPointedObject(ptr))
	return nil
}

func (t *HandleType) ReadBinary(r OpcodeReader, ptr unsafe.Pointer) error {
	obj, err := r.ReadPointer()
	if err != nil {
		return err
	}
	if obj != nil {
		if c := ClassOf(obj); !c.IsA(t.class) {
			t.warn("pointer to incompatible class read as null", zap.Stringer("class", c))
			obj = nil
		}
	}
	t.WritePointedObject(ptr, obj)
	return nil
}

func (t *HandleType) PrintToText(b *strings.Builder, ptr unsafe.Pointer) {
	obj := t.ReadPointedObject(ptr)
	if obj == nil {
		b.WriteString("null")
		return
	}
	fmt.Fprintf(b, "%s@%p", ClassOf(obj).Name(), ObjectData(obj))
}

func (t *HandleType) ParseFromString(s string, ptr unsafe.Pointer) bool {
	if strings.TrimSpace(s) != "null" {
		return false
	}
	t.WritePointedObject(ptr, nil)
	return true
}

// DescribeDataView and friends dereference the handle for non-empty paths.
func (t *HandleType) DescribeDataView(p string, ptr unsafe.Pointer, info *DataViewInfo) error {
	if p == "" {
		info.describe(t)
		if t.IsPointingToNull(ptr) {
			info.Flags |= ViewNull
		}
		return nil
	}
	obj, err := t.deref(p, ptr)
	if err != nil {
		return err
	}
	c := ClassOf(obj)
	return c.DescribeDataView(p, ObjectData(obj), info)
}

func (t *HandleType) ReadDataView(p string, ptr unsafe.Pointer, dst unsafe.Pointer, dstType Type) error {
	if p == "" {
		return t.typeBase.ReadDataView(p, ptr, dst, dstType)
	}
	obj, err := t.deref(p, ptr)
	if err != nil {
		return err
	}
	return ClassOf(obj).ReadDataView(p, ObjectData(obj), dst, dstType)
}

func (t *HandleType) WriteDataView(p string, ptr unsafe.Pointer, src unsafe.Pointer, srcType Type) error {
	if p == "" {
		return t.typeBase.WriteDataView(p, ptr, src, srcType)
	}
	obj, err := t.deref(p, ptr)
	if err != nil {
		return err
	}
	return ClassOf(obj).WriteDataView(p, ObjectData(obj), src, srcType)
}

func (t *HandleType) deref(p string, ptr unsafe.Pointer) (Object, error) {
	obj := t.ReadPointedObject(ptr)
	if obj == nil {
		return nil, errors.NilPointer(errors.PhaseConvert, []string{p}, t.name)
	}
	if ClassOf(obj) == nil {
		return nil, errors.NotFound(errors.PhaseConvert, "class of object behind", t.name)
	}
	return obj, nil
}

// CastHandle makes the handle at dst point to the object held by src. It
// fails, leaving dst untouched, when either type is not a handle or the
// object's runtime class is not dstType's class or a subclass of it. An
// expired weak source casts to null. Strong destinations acquire through
// the normal accessors, so an expired object is never revived.
func CastHandle(src unsafe.Pointer, srcType Type, dst unsafe.Pointer, dstType Type) bool {
	sh, ok := srcType.(*HandleType)
	if !ok {
		return false
	}
	dh, ok := dstType.(*HandleType)
	if !ok {
		return false
	}
	obj := sh.ReadPointedObject(src)
	if obj != nil && !ClassOf(obj).IsA(dh.class) {
		return false
	}
	dh.WritePointedObject(dst, obj)
	return true
}
