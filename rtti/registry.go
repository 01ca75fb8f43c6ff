package rtti

import (
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/typestream/errors"
)

// Converter coerces a value of one type into another. It returns false and
// leaves dst untouched when no conversion exists.
type Converter interface {
	Convert(src unsafe.Pointer, srcType Type, dst unsafe.Pointer, dstType Type) bool
}

var (
	defaultConverter   Converter
	defaultConverterMu sync.RWMutex
)

// SetDefaultConverter sets the converter installed into registries created
// afterwards. The convert package calls it from init.
func SetDefaultConverter(c Converter) {
	defaultConverterMu.Lock()
	defaultConverter = c
	defaultConverterMu.Unlock()
}

// Registry owns every type descriptor of a process. Registration happens
// during a single-threaded setup phase that ends with Seal; afterwards the
// registry is read-only apart from composite types (arrays, handles, refs)
// derived on demand, which are created under a lock.
type Registry struct {
	byName    map[string]Type
	byGoType  map[reflect.Type]Type
	converter Converter
	mu        sync.RWMutex
	sealed    bool
	closed    bool
}

// NewRegistry creates a registry holding the built-in simple types.
func NewRegistry() *Registry {
	r := &Registry{
		byName:   make(map[string]Type),
		byGoType: make(map[reflect.Type]Type),
	}
	defaultConverterMu.RLock()
	r.converter = defaultConverter
	defaultConverterMu.RUnlock()

	r.registerBuiltins()
	return r
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry, creating it on first use.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

func (r *Registry) registerBuiltins() {
	builtins := []Type{
		newBoolType(),
		newNumberType[int8]("int8", ConvInt8),
		newNumberType[int16]("int16", ConvInt16),
		newNumberType[int32]("int32", ConvInt32),
		newNumberType[int64]("int64", ConvInt64),
		newNumberType[uint8]("uint8", ConvUint8),
		newNumberType[uint16]("uint16", ConvUint16),
		newNumberType[uint32]("uint32", ConvUint32),
		newNumberType[uint64]("uint64", ConvUint64),
		newNumberType[float32]("float", ConvFloat32),
		newNumberType[float64]("double", ConvFloat64),
		newStringType(),
		newNameType(),
		newTypeRefType(),
		newBufferType(),
		newAsyncBufferType(),
		newClassRefType(nil),
		newResourceRefType(nil),
	}
	for _, t := range builtins {
		r.add(t, true)
	}
}

// add stores t under its name and, when indexGo is set, its Go type.
// The caller holds r.mu or owns r exclusively.
func (r *Registry) add(t Type, indexGo bool) {
	t.base().reg = r
	r.byName[t.Name()] = t
	if indexGo && t.GoType() != nil {
		if _, exists := r.byGoType[t.GoType()]; !exists {
			r.byGoType[t.GoType()] = t
		}
	}
}

func (r *Registry) checkRegister(name string) error {
	if r.closed {
		return errors.New(errors.PhaseRegister, errors.KindRegistrySealed).
			Type(name).Detail("registry is closed").Build()
	}
	if r.sealed {
		return errors.New(errors.PhaseRegister, errors.KindRegistrySealed).
			Type(name).Detail("registry is sealed").Build()
	}
	if name == "" || strings.ContainsAny(name, "<>[], ") {
		return errors.Registration(name, "invalid type name")
	}
	if _, exists := r.byName[name]; exists {
		return errors.Registration(name, "already registered")
	}
	return nil
}

// Seal ends the registration phase.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Close releases every type held by the registry. Types already handed out
// stay usable, but lookups fail afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	for _, t := range r.byName {
		if e, ok := t.(*EnumType); ok {
			e.clear()
		}
	}
	r.byName = map[string]Type{}
	r.byGoType = map[reflect.Type]Type{}
	r.closed = true
	r.sealed = true
	return nil
}

// SetConverter replaces the conversion function used by data views and by
// readers when stored and runtime types differ.
func (r *Registry) SetConverter(c Converter) {
	r.mu.Lock()
	r.converter = c
	r.mu.Unlock()
}

// Convert copies src into dst. Identical types are copied directly; other
// pairs go through the installed converter. Nil types fail without touching
// dst.
func (r *Registry) Convert(src unsafe.Pointer, srcType Type, dst unsafe.Pointer, dstType Type) bool {
	if srcType == nil || dstType == nil {
		return false
	}
	if srcType == dstType {
		dstType.Copy(dst, src)
		return true
	}
	if r == nil {
		return false
	}
	r.mu.RLock()
	c := r.converter
	r.mu.RUnlock()
	if c == nil {
		return false
	}
	return c.Convert(src, srcType, dst, dstType)
}

func (r *Registry) convertView(src unsafe.Pointer, srcType Type, dst unsafe.Pointer, dstType Type) error {
	if r.Convert(src, srcType, dst, dstType) {
		return nil
	}
	got, want := "<nil>", "<nil>"
	if srcType != nil {
		got = srcType.Name()
	}
	if dstType != nil {
		want = dstType.Name()
	}
	return errors.New(errors.PhaseConvert, errors.KindIncompatibleTypes).
		Type(got).Expected(want).Detail("no conversion").Build()
}

// Types returns every registered type sorted by name.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Type, 0, len(r.byName))
	for _, t := range r.byName {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Lookup returns the type registered under exactly name.
func (r *Registry) Lookup(name string) (Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// FindType resolves a type name, deriving composite types on demand:
// "array<T>", "T[N]", "ptr<C>", "weak<C>", "class<C>" and "ref<C>".
func (r *Registry) FindType(name string) (Type, error) {
	if t, ok := r.Lookup(name); ok {
		return t, nil
	}
	if r.isClosed() {
		return nil, errors.NotFound(errors.PhaseRegister, "type", name)
	}

	if strings.HasSuffix(name, "]") {
		open := strings.LastIndexByte(name, '[')
		if open <= 0 {
			return nil, errors.ParseFailed("type name "+strconv.Quote(name), nil)
		}
		n, err := strconv.Atoi(name[open+1 : len(name)-1])
		if err != nil {
			return nil, errors.ParseFailed("array length in "+strconv.Quote(name), err)
		}
		elem, err := r.FindType(name[:open])
		if err != nil {
			return nil, err
		}
		return r.FixedArrayOf(elem, n)
	}

	open := strings.IndexByte(name, '<')
	if open <= 0 || !strings.HasSuffix(name, ">") {
		return nil, errors.NotFound(errors.PhaseRegister, "type", name)
	}
	outer, inner := name[:open], name[open+1:len(name)-1]

	if outer == "array" {
		elem, err := r.FindType(inner)
		if err != nil {
			return nil, err
		}
		return r.ArrayOf(elem)
	}

	class, err := r.FindClass(inner)
	if err != nil {
		return nil, err
	}
	switch outer {
	case "ptr":
		return r.StrongHandleOf(class), nil
	case "weak":
		return r.WeakHandleOf(class), nil
	case "class":
		return r.ClassRefOf(class), nil
	case "ref":
		return r.ResourceRefOf(class), nil
	}
	return nil, errors.NotFound(errors.PhaseRegister, "type", name)
}

// FindClass returns the class registered under name.
func (r *Registry) FindClass(name string) (*ClassType, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseRegister, "class", name)
	}
	c, ok := t.(*ClassType)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseRegister, nil, t.Name(), "class")
	}
	return c, nil
}

// FindEnum returns the enum registered under name.
func (r *Registry) FindEnum(name string) (*EnumType, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseRegister, "enum", name)
	}
	e, ok := t.(*EnumType)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseRegister, nil, t.Name(), "enum")
	}
	return e, nil
}

// TypeFor returns the type describing values of the Go type t. Slices and
// arrays of known element types are derived on demand.
func (r *Registry) TypeFor(t reflect.Type) (Type, error) {
	r.mu.RLock()
	found, ok := r.byGoType[t]
	r.mu.RUnlock()
	if ok {
		return found, nil
	}

	switch t.Kind() {
	case reflect.Slice:
		elem, err := r.TypeFor(t.Elem())
		if err != nil {
			return nil, err
		}
		return r.ArrayOf(elem)
	case reflect.Array:
		elem, err := r.TypeFor(t.Elem())
		if err != nil {
			return nil, err
		}
		return r.FixedArrayOf(elem, t.Len())
	}
	return nil, errors.NotFound(errors.PhaseRegister, "type for Go type", t.String())
}

// derive returns the cached composite type called name, creating it with
// mk under the write lock when absent.
func (r *Registry) derive(name string, indexGo bool, mk func() Type) Type {
	r.mu.RLock()
	t, ok := r.byName[name]
	r.mu.RUnlock()
	if ok {
		return t
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.byName[name]; ok {
		return t
	}
	t = mk()
	if !r.closed {
		r.add(t, indexGo)
	} else {
		t.base().reg = r
	}
	Logger().Debug("derived type", zap.String("type", name))
	return t
}

// Fixed arrays are backed by Go arrays, so their length and footprint are
// bounded before reflect builds one.
const (
	maxFixedArrayLen   = 1 << 24
	maxFixedArrayBytes = 1 << 31
)

func checkElem(elem Type) error {
	if elem == nil {
		return errors.InvalidInput(errors.PhaseRegister, "nil array element type")
	}
	if elem.GoType() == nil {
		return errors.Registration(elem.Name(), "array element has no storage; define the class first")
	}
	return nil
}

// ArrayOf returns the dynamic array type over elem, backed by []E.
func (r *Registry) ArrayOf(elem Type) (ArrayType, error) {
	if err := checkElem(elem); err != nil {
		return nil, err
	}
	t := r.derive("array<"+elem.Name()+">", true, func() Type {
		return newDynamicArrayType(elem)
	})
	return t.(ArrayType), nil
}

// FixedArrayOf returns the fixed-size array type over elem, backed by [n]E.
// n must be positive and the array must fit in maxFixedArrayBytes.
func (r *Registry) FixedArrayOf(elem Type, n int) (ArrayType, error) {
	if err := checkElem(elem); err != nil {
		return nil, err
	}
	name := elem.Name() + "[" + strconv.Itoa(n) + "]"
	if n <= 0 || n > maxFixedArrayLen {
		return nil, errors.New(errors.PhaseRegister, errors.KindRegistration).
			Type(name).Value(n).
			Detail("fixed array length must be in 1..%d", maxFixedArrayLen).
			Build()
	}
	if size := elem.GoType().Size(); size > 0 && uint64(n) > maxFixedArrayBytes/uint64(size) {
		return nil, errors.New(errors.PhaseRegister, errors.KindRegistration).
			Type(name).Value(n).
			Detail("fixed array exceeds %d bytes", maxFixedArrayBytes).
			Build()
	}
	t := r.derive(name, true, func() Type {
		return newFixedArrayType(elem, n)
	})
	return t.(ArrayType), nil
}

// StrongHandleOf returns the "ptr<C>" handle type.
func (r *Registry) StrongHandleOf(c *ClassType) *HandleType {
	return r.derive("ptr<"+c.Name()+">", false, func() Type {
		return newHandleType(c, false)
	}).(*HandleType)
}

// WeakHandleOf returns the "weak<C>" handle type.
func (r *Registry) WeakHandleOf(c *ClassType) *HandleType {
	return r.derive("weak<"+c.Name()+">", false, func() Type {
		return newHandleType(c, true)
	}).(*HandleType)
}

// ClassRefOf returns the "class<C>" type accepting C and its subclasses.
func (r *Registry) ClassRefOf(c *ClassType) *ClassRefType {
	return r.derive("class<"+c.Name()+">", false, func() Type {
		return newClassRefType(c)
	}).(*ClassRefType)
}

// ResourceRefOf returns the "ref<C>" resource reference type.
func (r *Registry) ResourceRefOf(c *ClassType) *ResourceRefType {
	return r.derive("ref<"+c.Name()+">", false, func() Type {
		return newResourceRefType(c)
	}).(*ResourceRefType)
}

func (r *Registry) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// register adds a user type during the registration phase.
func (r *Registry) register(t Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkRegister(t.Name()); err != nil {
		return err
	}
	r.add(t, true)
	Logger().Debug("registered type",
		zap.String("type", t.Name()),
		zap.Stringer("kind", t.MetaKind()))
	return nil
}
