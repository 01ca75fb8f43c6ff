package rtti

import (
	"reflect"
	"strings"
	"unsafe"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"
)

// ClassRef names a class at runtime. The zero value is null.
type ClassRef struct {
	Class *ClassType
}

// ClassRefType is "class" (any class) or "class<Base>" (Base and its
// subclasses).
type ClassRefType struct {
	typeBase
	baseClass *ClassType
}

func newClassRefType(base *ClassType) *ClassRefType {
	t := &ClassRefType{baseClass: base}
	name := "class"
	if base != nil {
		name = "class<" + base.Name() + ">"
	}
	t.typeBase = newBase(t, name, MetaSimple, reflect.TypeFor[ClassRef]())
	t.traits.ConvClass = ConvClassRef
	return t
}

// BaseClass returns the required base class, nil when any class is accepted.
func (t *ClassRefType) BaseClass() *ClassType { return t.baseClass }

// Accepts reports whether c may be stored in values of t.
func (t *ClassRefType) Accepts(c *ClassType) bool {
	return c == nil || t.baseClass == nil || c.IsA(t.baseClass)
}

func (t *ClassRefType) Compare(a, b unsafe.Pointer) bool {
	return (*ClassRef)(a).Class == (*ClassRef)(b).Class
}

func (t *ClassRefType) Copy(dst, src unsafe.Pointer) {
	*(*ClassRef)(dst) = *(*ClassRef)(src)
}

func (t *ClassRefType) CalcHash(ptr unsafe.Pointer) uint64 {
	if c := (*ClassRef)(ptr).Class; c != nil {
		return murmur3.Sum64([]byte(c.Name()))
	}
	return 0
}

func (t *ClassRefType) WriteBinary(w OpcodeWriter, ptr unsafe.Pointer) error {
	if c := (*ClassRef)(ptr).Class; c != nil {
		w.WriteTypeRef(c)
	} else {
		w.WriteTypeRef(nil)
	}
	return nil
}

func (t *ClassRefType) ReadBinary(r OpcodeReader, ptr unsafe.Pointer) error {
	v, err := r.ReadTypeRef()
	if err != nil {
		return err
	}
	ref := (*ClassRef)(ptr)
	if v == nil {
		ref.Class = nil
		return nil
	}
	c, ok := v.(*ClassType)
	if !ok || !t.Accepts(c) {
		t.warn("incompatible class reference read as null", zap.String("stored", v.Name()))
		ref.Class = nil
		return nil
	}
	ref.Class = c
	return nil
}

func (t *ClassRefType) PrintToText(b *strings.Builder, ptr unsafe.Pointer) {
	if c := (*ClassRef)(ptr).Class; c != nil {
		b.WriteString(c.Name())
		return
	}
	b.WriteString("null")
}

func (t *ClassRefType) ParseFromString(s string, ptr unsafe.Pointer) bool {
	s = strings.TrimSpace(s)
	if s == "null" || s == "" {
		(*ClassRef)(ptr).Class = nil
		return true
	}
	if t.reg == nil {
		return false
	}
	c, err := t.reg.FindClass(s)
	if err != nil || !t.Accepts(c) {
		return false
	}
	(*ClassRef)(ptr).Class = c
	return true
}

// CastClassRef copies a class reference between class ref types, failing
// without touching dst when the referenced class is not accepted by dstType.
func CastClassRef(src unsafe.Pointer, srcType Type, dst unsafe.Pointer, dstType Type) bool {
	if _, ok := srcType.(*ClassRefType); !ok {
		return false
	}
	dt, ok := dstType.(*ClassRefType)
	if !ok {
		return false
	}
	c := (*ClassRef)(src).Class
	if !dt.Accepts(c) {
		return false
	}
	(*ClassRef)(dst).Class = c
	return true
}

// ResourceRef identifies a resource stored outside the current stream by
// its id and class.
type ResourceRef struct {
	Class *ClassType
	ID    uuid.UUID
}

// IsNull reports whether the reference has no id.
func (r ResourceRef) IsNull() bool { return r.ID == uuid.Nil }

func (r ResourceRef) String() string {
	if r.IsNull() {
		return "null"
	}
	if r.Class == nil {
		return r.ID.String()
	}
	return r.Class.Name() + ":" + r.ID.String()
}

// ResourceRefType is "ref" or "ref<Class>".
type ResourceRefType struct {
	typeBase
	class *ClassType
}

func newResourceRefType(c *ClassType) *ResourceRefType {
	t := &ResourceRefType{class: c}
	name := "ref"
	if c != nil {
		name = "ref<" + c.Name() + ">"
	}
	t.typeBase = newBase(t, name, MetaSimple, reflect.TypeFor[ResourceRef]())
	t.traits.ConvClass = ConvResourceRef
	return t
}

// ResourceClass returns the declared resource class, nil for "ref".
func (t *ResourceRefType) ResourceClass() *ClassType { return t.class }

// Accepts reports whether a resource of class c may be referenced.
func (t *ResourceRefType) Accepts(c *ClassType) bool {
	return t.class == nil || c == nil || c.IsA(t.class)
}

func (t *ResourceRefType) Compare(a, b unsafe.Pointer) bool {
	return *(*ResourceRef)(a) == *(*ResourceRef)(b)
}

func (t *ResourceRefType) Copy(dst, src unsafe.Pointer) {
	*(*ResourceRef)(dst) = *(*ResourceRef)(src)
}

func (t *ResourceRefType) CalcHash(ptr unsafe.Pointer) uint64 {
	id := (*ResourceRef)(ptr).ID
	return murmur3.Sum64(id[:])
}

func (t *ResourceRefType) WriteBinary(w OpcodeWriter, ptr unsafe.Pointer) error {
	w.WriteResourceRef(*(*ResourceRef)(ptr))
	return nil
}

func (t *ResourceRefType) ReadBinary(r OpcodeReader, ptr unsafe.Pointer) error {
	ref, err := r.ReadResourceRef()
	if err != nil {
		return err
	}
	if !t.Accepts(ref.Class) {
		t.warn("resource reference of incompatible class read as null",
			zap.Stringer("resource", ref))
		ref = ResourceRef{}
	}
	*(*ResourceRef)(ptr) = ref
	return nil
}

func (t *ResourceRefType) PrintToText(b *strings.Builder, ptr unsafe.Pointer) {
	b.WriteString((*ResourceRef)(ptr).String())
}

func (t *ResourceRefType) ParseFromString(s string, ptr unsafe.Pointer) bool {
	s = strings.TrimSpace(s)
	if s == "null" || s == "" {
		*(*ResourceRef)(ptr) = ResourceRef{}
		return true
	}
	ref, ok := t.parseRef(s)
	if !ok {
		return false
	}
	if ref.Class == nil {
		ref.Class = t.class
	}
	if !t.Accepts(ref.Class) {
		return false
	}
	*(*ResourceRef)(ptr) = ref
	return true
}

// parseRef accepts "id" or "Class:id". The id may be any form uuid.Parse
// takes, including "urn:uuid:", and class names may contain ':'.
func (t *ResourceRefType) parseRef(s string) (ResourceRef, bool) {
	if id, err := uuid.Parse(s); err == nil {
		return ResourceRef{ID: id}, true
	}
	if t.reg == nil {
		return ResourceRef{}, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] != ':' {
			continue
		}
		id, err := uuid.Parse(s[i+1:])
		if err != nil {
			continue
		}
		c, err := t.reg.FindClass(s[:i])
		if err != nil {
			return ResourceRef{}, false
		}
		return ResourceRef{Class: c, ID: id}, true
	}
	return ResourceRef{}, false
}

// CastResourceRef copies a resource reference between ref types, failing
// without touching dst when the resource class is not accepted by dstType.
func CastResourceRef(src unsafe.Pointer, srcType Type, dst unsafe.Pointer, dstType Type) bool {
	if _, ok := srcType.(*ResourceRefType); !ok {
		return false
	}
	dt, ok := dstType.(*ResourceRefType)
	if !ok {
		return false
	}
	ref := *(*ResourceRef)(src)
	if !dt.Accepts(ref.Class) {
		return false
	}
	*(*ResourceRef)(dst) = ref
	return true
}
