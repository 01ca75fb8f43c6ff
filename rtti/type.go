package rtti

import (
	"reflect"
	"strings"
	"unsafe"
)

// MetaKind is the closed set of data shapes a Type can describe.
type MetaKind uint8

const (
	MetaSimple MetaKind = iota
	MetaArray
	MetaHandle
	MetaEnum
	MetaClass
	MetaCustom
)

var metaKindNames = [...]string{
	MetaSimple: "simple",
	MetaArray:  "array",
	MetaHandle: "handle",
	MetaEnum:   "enum",
	MetaClass:  "class",
	MetaCustom: "custom",
}

func (k MetaKind) String() string {
	if int(k) < len(metaKindNames) {
		return metaKindNames[k]
	}
	return "unknown"
}

// ConversionClass indexes the conversion matrix.
type ConversionClass uint8

const (
	ConvNone ConversionClass = iota
	ConvBool
	ConvInt8
	ConvInt16
	ConvInt32
	ConvInt64
	ConvUint8
	ConvUint16
	ConvUint32
	ConvUint64
	ConvFloat32
	ConvFloat64
	ConvString
	ConvName
	ConvEnum
	ConvStrongHandle
	ConvWeakHandle
	ConvClassRef
	ConvResourceRef

	// NumConversionClasses is the matrix dimension.
	NumConversionClasses
)

var convNames = [...]string{
	ConvNone:         "none",
	ConvBool:         "bool",
	ConvInt8:         "int8",
	ConvInt16:        "int16",
	ConvInt32:        "int32",
	ConvInt64:        "int64",
	ConvUint8:        "uint8",
	ConvUint16:       "uint16",
	ConvUint32:       "uint32",
	ConvUint64:       "uint64",
	ConvFloat32:      "float32",
	ConvFloat64:      "float64",
	ConvString:       "string",
	ConvName:         "name",
	ConvEnum:         "enum",
	ConvStrongHandle: "strong",
	ConvWeakHandle:   "weak",
	ConvClassRef:     "classref",
	ConvResourceRef:  "resref",
}

func (c ConversionClass) String() string {
	if int(c) < len(convNames) {
		return convNames[c]
	}
	return "unknown"
}

// IsNumeric reports whether c is one of the fixed integer or float kinds.
func (c ConversionClass) IsNumeric() bool {
	return c >= ConvInt8 && c <= ConvFloat64
}

// Traits carries the static facts about a type's memory shape.
type Traits struct {
	Size                   uintptr
	Align                  uintptr
	ConvClass              ConversionClass
	InitializedFromZeroMem bool
	RequiresConstructor    bool
	RequiresDestructor     bool
	SimpleCopyCompare      bool
	Hashable               bool
	Scripted               bool
}

// Type describes one shape of in-memory data and the operations on it.
// Every data pointer passed to a Type must point at a value of GoType().
type Type interface {
	Name() string
	MetaKind() MetaKind
	Traits() Traits
	GoType() reflect.Type

	Construct(ptr unsafe.Pointer)
	Destruct(ptr unsafe.Pointer)
	Compare(a, b unsafe.Pointer) bool
	Copy(dst, src unsafe.Pointer)
	CalcHash(ptr unsafe.Pointer) uint64

	WriteBinary(w OpcodeWriter, ptr unsafe.Pointer) error
	ReadBinary(r OpcodeReader, ptr unsafe.Pointer) error
	WriteText(node TextNode, ptr unsafe.Pointer) error
	ReadText(node TextNode, ptr unsafe.Pointer) error
	PrintToText(b *strings.Builder, ptr unsafe.Pointer)
	ParseFromString(s string, ptr unsafe.Pointer) bool

	DescribeDataView(path string, ptr unsafe.Pointer, info *DataViewInfo) error
	ReadDataView(path string, ptr unsafe.Pointer, dst unsafe.Pointer, dstType Type) error
	WriteDataView(path string, ptr unsafe.Pointer, src unsafe.Pointer, srcType Type) error

	base() *typeBase
}

// New allocates a constructed value of t and returns a pointer to it.
// The memory is Go-managed; call Destruct when the value is no longer used.
func New(t Type) unsafe.Pointer {
	ptr := reflect.New(t.GoType()).UnsafePointer()
	t.Construct(ptr)
	return ptr
}

// Print renders the value at ptr with t.PrintToText.
func Print(t Type, ptr unsafe.Pointer) string {
	var b strings.Builder
	t.PrintToText(&b, ptr)
	return b.String()
}

// Ptr returns the data pointer of a Go pointer value, for use with Type methods.
func Ptr[T any](v *T) unsafe.Pointer {
	return unsafe.Pointer(v)
}
