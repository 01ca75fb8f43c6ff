package convert

import (
	"unsafe"

	"github.com/wippyai/typestream/rtti"
)

// Func coerces the value at src, described by srcType, into dst. It returns
// false and leaves dst untouched when the value cannot be represented.
type Func func(src unsafe.Pointer, srcType rtti.Type, dst unsafe.Pointer, dstType rtti.Type) bool

const n = rtti.NumConversionClasses

// Matrix is a dense dispatch table over pairs of conversion classes.
// It is populated before use and read-only afterwards.
type Matrix struct {
	cells [n][n]Func
}

// NewMatrix returns a matrix populated with the standard conversions.
func NewMatrix() *Matrix {
	m := &Matrix{}
	m.populate()
	return m
}

// Set installs f for the (src, dst) pair, replacing any previous cell.
func (m *Matrix) Set(src, dst rtti.ConversionClass, f Func) {
	m.cells[src][dst] = f
}

// Lookup returns the cell for (src, dst), nil when the pair has no
// conversion.
func (m *Matrix) Lookup(src, dst rtti.ConversionClass) Func {
	if src >= n || dst >= n {
		return nil
	}
	return m.cells[src][dst]
}

// Supported reports whether values of srcType can be converted to dstType.
func (m *Matrix) Supported(srcType, dstType rtti.Type) bool {
	if srcType == nil || dstType == nil {
		return false
	}
	if srcType == dstType {
		return true
	}
	return m.Lookup(srcType.Traits().ConvClass, dstType.Traits().ConvClass) != nil
}

// Convert implements rtti.Converter. Identical types are copied directly;
// missing types fail without touching dst.
func (m *Matrix) Convert(src unsafe.Pointer, srcType rtti.Type, dst unsafe.Pointer, dstType rtti.Type) bool {
	if srcType == nil || dstType == nil {
		return false
	}
	if srcType == dstType {
		dstType.Copy(dst, src)
		return true
	}
	f := m.Lookup(srcType.Traits().ConvClass, dstType.Traits().ConvClass)
	if f == nil {
		return false
	}
	return f(src, srcType, dst, dstType)
}

var (
	numericClasses = []rtti.ConversionClass{
		rtti.ConvInt8, rtti.ConvInt16, rtti.ConvInt32, rtti.ConvInt64,
		rtti.ConvUint8, rtti.ConvUint16, rtti.ConvUint32, rtti.ConvUint64,
		rtti.ConvFloat32, rtti.ConvFloat64,
	}
	handleClasses = []rtti.ConversionClass{rtti.ConvStrongHandle, rtti.ConvWeakHandle}
)

func (m *Matrix) populate() {
	scalars := append([]rtti.ConversionClass{rtti.ConvBool}, numericClasses...)
	for _, s := range scalars {
		for _, d := range scalars {
			if s != d {
				m.Set(s, d, numeric)
			}
		}
	}
	// Distinct types sharing a class, e.g. named Go integer types.
	for _, c := range scalars {
		m.Set(c, c, numeric)
	}

	// ConvNone covers arrays, classes, custom types and type refs. They only
	// convert through their text form.
	for c := rtti.ConvNone; c < n; c++ {
		if c != rtti.ConvNone && m.cells[c][rtti.ConvBool] == nil {
			m.Set(c, rtti.ConvBool, toBool)
		}
		if c != rtti.ConvString && c != rtti.ConvName {
			m.Set(c, rtti.ConvString, toString)
			m.Set(c, rtti.ConvName, toString)
			m.Set(rtti.ConvString, c, fromString)
			m.Set(rtti.ConvName, c, fromString)
		}
	}
	m.Set(rtti.ConvString, rtti.ConvName, stringToName)
	m.Set(rtti.ConvName, rtti.ConvString, nameToString)
	m.Set(rtti.ConvString, rtti.ConvString, stringToString)
	m.Set(rtti.ConvName, rtti.ConvName, nameToName)

	for _, c := range numericClasses {
		m.Set(rtti.ConvEnum, c, enumToNumber)
		m.Set(c, rtti.ConvEnum, numberToEnum)
	}
	m.Set(rtti.ConvEnum, rtti.ConvBool, enumToBool)
	m.Set(rtti.ConvBool, rtti.ConvEnum, numberToEnum)
	m.Set(rtti.ConvEnum, rtti.ConvString, enumToString)
	m.Set(rtti.ConvEnum, rtti.ConvName, enumToName)
	m.Set(rtti.ConvString, rtti.ConvEnum, stringToEnum)
	m.Set(rtti.ConvName, rtti.ConvEnum, nameToEnum)
	m.Set(rtti.ConvEnum, rtti.ConvEnum, enumToEnum)

	for _, s := range handleClasses {
		for _, d := range handleClasses {
			m.Set(s, d, rtti.CastHandle)
		}
	}
	m.Set(rtti.ConvClassRef, rtti.ConvClassRef, rtti.CastClassRef)
	m.Set(rtti.ConvResourceRef, rtti.ConvResourceRef, rtti.CastResourceRef)
}

var std = NewMatrix()

func init() {
	rtti.SetDefaultConverter(std)
}

// Default returns the matrix installed into new registries.
func Default() *Matrix { return std }

// Convert converts through the default matrix.
func Convert(src unsafe.Pointer, srcType rtti.Type, dst unsafe.Pointer, dstType rtti.Type) bool {
	return std.Convert(src, srcType, dst, dstType)
}
