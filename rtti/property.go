package rtti

import (
	"unsafe"

	"github.com/wippyai/typestream/wire"
)

// PropertyFlags modify how a property takes part in serialization and
// data views.
type PropertyFlags uint8

const (
	// PropReadOnly rejects data view writes.
	PropReadOnly PropertyFlags = 1 << iota
	// PropTransient excludes the property from binary and text output.
	PropTransient
)

// Property binds a field of a class to a name and a type. Properties are
// created with their class and never change.
type Property struct {
	parent   *ClassType
	typ      Type
	name     string
	category string
	offset   uintptr
	hash     uint64
	rangeMin float64
	rangeMax float64
	hasRange bool
	flags    PropertyFlags
}

// PropertyHash combines the CRC-64 of the owning class name and of the
// property name. Swapping the two inputs gives a different hash.
func PropertyHash(parentName, name string) uint64 {
	h := wire.CRC64String(parentName)
	h ^= wire.CRC64String(name) + 0x9e3779b97f4a7c15 + (h << 6) + (h >> 2)
	return h
}

func (p *Property) Parent() *ClassType   { return p.parent }
func (p *Property) Type() Type           { return p.typ }
func (p *Property) Name() string         { return p.name }
func (p *Property) Category() string     { return p.category }
func (p *Property) Offset() uintptr      { return p.offset }
func (p *Property) Flags() PropertyFlags { return p.flags }
func (p *Property) Hash() uint64         { return p.hash }
func (p *Property) ReadOnly() bool       { return p.flags&PropReadOnly != 0 }
func (p *Property) Transient() bool      { return p.flags&PropTransient != 0 }

// Range returns the editor value range, ok false when none was declared.
func (p *Property) Range() (lo, hi float64, ok bool) {
	return p.rangeMin, p.rangeMax, p.hasRange
}

// Data returns a pointer to the property's value inside the class value at
// ptr.
func (p *Property) Data(ptr unsafe.Pointer) unsafe.Pointer {
	return unsafe.Add(ptr, p.offset)
}

func (p *Property) String() string {
	return p.parent.Name() + "." + p.name
}
