package rtti

import (
	"math"
	"reflect"
	"strconv"
	"strings"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/typestream/errors"
)

// EnumEntry is one named value of an enum.
type EnumEntry struct {
	Name  string
	Value int64
}

// EnumType maps names to signed 64-bit values over an integer Go type.
// Names and values are both unique. Binary streams carry the name, so
// reordering or renumbering entries keeps old data readable.
type EnumType struct {
	typeBase
	byName  map[string]int64
	byValue map[int64]string
	entries []EnumEntry
	min     int64
	max     int64
}

// RegisterEnum registers an enum over goType, which must be an integer
// kind. A nil goType stores values as int32.
func (r *Registry) RegisterEnum(name string, goType reflect.Type) (*EnumType, error) {
	if goType == nil {
		goType = reflect.TypeFor[int32]()
	}
	switch goType.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return nil, errors.Registration(name, "enum storage must be a fixed-width integer, got "+goType.String())
	}

	t := &EnumType{}
	t.typeBase = newBase(t, name, MetaEnum, goType)
	t.traits.ConvClass = ConvEnum
	t.clear()
	if err := r.register(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *EnumType) clear() {
	t.entries = nil
	t.byName = make(map[string]int64)
	t.byValue = make(map[int64]string)
	t.min, t.max = 0, 0
}

func (t *EnumType) checkMutable() error {
	if t.reg != nil && t.reg.Sealed() {
		return errors.New(errors.PhaseRegister, errors.KindRegistrySealed).
			Type(t.name).
			Detail("enum entries are fixed after the registry is sealed").
			Build()
	}
	return nil
}

// Add appends an entry. Duplicate names or values are rejected.
func (t *EnumType) Add(name string, value int64) error {
	if err := t.checkMutable(); err != nil {
		return err
	}
	if name == "" {
		return errors.InvalidInput(errors.PhaseRegister, "empty enum entry name")
	}
	if _, exists := t.byName[name]; exists {
		return errors.Duplicate(errors.PhaseRegister, "enum name", name)
	}
	if _, exists := t.byValue[value]; exists {
		return errors.Duplicate(errors.PhaseRegister, "enum value", value)
	}
	if !t.fits(value) {
		return errors.New(errors.PhaseRegister, errors.KindOutOfBounds).
			Type(t.name).
			Value(value).
			Detail("value %d does not fit %s", value, t.goType).
			Build()
	}

	t.entries = append(t.entries, EnumEntry{Name: name, Value: value})
	t.byName[name] = value
	t.byValue[value] = name
	if len(t.entries) == 1 {
		t.min, t.max = value, value
	} else {
		t.min = min(t.min, value)
		t.max = max(t.max, value)
	}
	return nil
}

// Clear removes every entry.
func (t *EnumType) Clear() error {
	if err := t.checkMutable(); err != nil {
		return err
	}
	t.clear()
	return nil
}

// Entries returns the entries in registration order.
func (t *EnumType) Entries() []EnumEntry {
	out := make([]EnumEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries.
func (t *EnumType) Len() int { return len(t.entries) }

// Min and Max return the value range of the entries, zero when empty.
func (t *EnumType) Min() int64 { return t.min }
func (t *EnumType) Max() int64 { return t.max }

// FindValue looks up the value of name.
func (t *EnumType) FindValue(name string) (int64, bool) {
	v, ok := t.byName[name]
	return v, ok
}

// FindName looks up the name of value.
func (t *EnumType) FindName(value int64) (string, bool) {
	n, ok := t.byValue[value]
	return n, ok
}

func (t *EnumType) fits(v int64) bool {
	switch t.goType.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return v >= 0 && !reflect.Zero(t.goType).OverflowUint(uint64(v))
	case reflect.Uint64:
		return v >= 0
	default:
		return !reflect.Zero(t.goType).OverflowInt(v)
	}
}

// ToNumber returns the raw value at ptr.
func (t *EnumType) ToNumber(ptr unsafe.Pointer) int64 {
	v := t.value(ptr)
	switch v.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := v.Uint()
		if u > math.MaxInt64 {
			return math.MaxInt64
		}
		return int64(u)
	default:
		return v.Int()
	}
}

// FromNumber stores n at ptr. It fails when n does not fit the storage.
func (t *EnumType) FromNumber(n int64, ptr unsafe.Pointer) bool {
	if !t.fits(n) {
		return false
	}
	v := t.value(ptr)
	switch v.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v.SetUint(uint64(n))
	default:
		v.SetInt(n)
	}
	return true
}

// ToString returns the entry name of the value at ptr, or its decimal form
// when the value has no name.
func (t *EnumType) ToString(ptr unsafe.Pointer) string {
	n := t.ToNumber(ptr)
	if name, ok := t.byValue[n]; ok {
		return name
	}
	return strconv.FormatInt(n, 10)
}

// FromString stores the value named s. Unknown names fail.
func (t *EnumType) FromString(s string, ptr unsafe.Pointer) bool {
	v, ok := t.byName[s]
	if !ok {
		return false
	}
	return t.FromNumber(v, ptr)
}

// ToStringID returns the entry name as a Name.
func (t *EnumType) ToStringID(ptr unsafe.Pointer) Name {
	return Name(t.ToString(ptr))
}

// FromStringID stores the value named n.
func (t *EnumType) FromStringID(n Name, ptr unsafe.Pointer) bool {
	return t.FromString(string(n), ptr)
}

func (t *EnumType) WriteBinary(w OpcodeWriter, ptr unsafe.Pointer) error {
	n := t.ToNumber(ptr)
	name, ok := t.byValue[n]
	if !ok {
		t.warn("enum value has no name, written as number", zap.Int64("value", n))
		name = strconv.FormatInt(n, 10)
	}
	w.WriteName(Name(name))
	return nil
}

func (t *EnumType) ReadBinary(r OpcodeReader, ptr unsafe.Pointer) error {
	name, err := r.ReadName()
	if err != nil {
		return err
	}
	if t.FromString(string(name), ptr) {
		return nil
	}
	if n, perr := strconv.ParseInt(string(name), 10, 64); perr == nil && t.FromNumber(n, ptr) {
		return nil
	}
	t.warn("unknown enum name, value left unchanged", zap.String("name", string(name)))
	return nil
}

func (t *EnumType) PrintToText(b *strings.Builder, ptr unsafe.Pointer) {
	b.WriteString(t.ToString(ptr))
}

func (t *EnumType) ParseFromString(s string, ptr unsafe.Pointer) bool {
	s = strings.TrimSpace(s)
	if t.FromString(s, ptr) {
		return true
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return false
	}
	return t.FromNumber(n, ptr)
}

func (t *EnumType) CalcHash(ptr unsafe.Pointer) uint64 {
	return uint64(t.ToNumber(ptr))
}
