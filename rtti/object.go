package rtti

import (
	"reflect"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Object is an instance of a registered class that handles can point to.
// Implement it by embedding ObjectBase in the class struct.
type Object interface {
	objectBase() *ObjectBase
}

// Dropper is implemented by objects that release resources when the last
// strong handle goes away.
type Dropper interface {
	Drop()
}

// ObjectBase carries the class link and the strong reference count of an
// object. The object expires when the count returns to zero; an expired
// object can no longer be acquired by new strong handles.
type ObjectBase struct {
	class   atomic.Pointer[ClassType]
	strong  atomic.Int32
	expired atomic.Bool
}

func (o *ObjectBase) objectBase() *ObjectBase { return o }

// Expired reports whether the last strong handle has been released.
func (o *ObjectBase) Expired() bool { return o.expired.Load() }

// StrongCount returns the number of live strong handles.
func (o *ObjectBase) StrongCount() int32 { return o.strong.Load() }

func (o *ObjectBase) acquire() bool {
	for {
		if o.expired.Load() {
			return false
		}
		n := o.strong.Load()
		if o.strong.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (o *ObjectBase) release(obj Object) {
	if o.strong.Add(-1) != 0 {
		return
	}
	if o.expired.CompareAndSwap(false, true) {
		if d, ok := obj.(Dropper); ok {
			d.Drop()
		}
	}
}

// DynamicObject is the instance type of classes built at runtime, whose
// field storage is a reflect.StructOf value.
type DynamicObject struct {
	ObjectBase
	data unsafe.Pointer
}

// Data returns a pointer to the field storage.
func (d *DynamicObject) Data() unsafe.Pointer { return d.data }

// ObjectData returns the pointer the object's class type operates on.
func ObjectData(obj Object) unsafe.Pointer {
	if d, ok := obj.(*DynamicObject); ok {
		return d.data
	}
	return reflect.ValueOf(obj).UnsafePointer()
}

var classIndex sync.Map // reflect.Type -> *ClassType

// ClassOf returns the runtime class of obj. Objects created through
// ClassType.Create carry it already; others are matched by Go type once and
// remembered.
func ClassOf(obj Object) *ClassType {
	if obj == nil {
		return nil
	}
	base := obj.objectBase()
	if c := base.class.Load(); c != nil {
		return c
	}
	t := reflect.TypeOf(obj)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if c, ok := classIndex.Load(t); ok {
		base.class.Store(c.(*ClassType))
		return c.(*ClassType)
	}
	return nil
}

// Strong is an owning handle. The zero value is null. Copy it through
// Clone or a handle type's Copy; a plain Go assignment does not take a
// reference.
type Strong struct {
	obj Object
}

// NewStrong acquires a strong reference to obj. It returns a null handle
// when obj is nil or already expired.
func NewStrong(obj Object) Strong {
	if obj == nil || !obj.objectBase().acquire() {
		return Strong{}
	}
	return Strong{obj: obj}
}

// Get returns the referenced object, nil for a null handle.
func (s Strong) Get() Object { return s.obj }

// IsNull reports whether the handle points to nothing.
func (s Strong) IsNull() bool { return s.obj == nil }

// Clone takes another strong reference to the same object.
func (s Strong) Clone() Strong { return NewStrong(s.obj) }

// Weak returns a non-owning handle to the same object.
func (s Strong) Weak() Weak { return Weak{obj: s.obj} }

// Reset releases the reference and nulls the handle.
func (s *Strong) Reset() {
	if s.obj != nil {
		obj := s.obj
		s.obj = nil
		obj.objectBase().release(obj)
	}
}

// Set replaces the referenced object.
func (s *Strong) Set(obj Object) {
	next := NewStrong(obj)
	s.Reset()
	*s = next
}

// Weak is an observing handle. It never extends the object's lifetime.
type Weak struct {
	obj Object
}

// NewWeak observes obj.
func NewWeak(obj Object) Weak { return Weak{obj: obj} }

// Get returns the object, or nil when null or expired.
func (w Weak) Get() Object {
	if w.obj == nil || w.obj.objectBase().Expired() {
		return nil
	}
	return w.obj
}

// Expired reports whether the handle is null or its object has expired.
func (w Weak) Expired() bool { return w.Get() == nil }

// Lock upgrades to a strong handle, null when the object has expired.
func (w Weak) Lock() Strong { return NewStrong(w.obj) }

// Reset nulls the handle.
func (w *Weak) Reset() { w.obj = nil }
