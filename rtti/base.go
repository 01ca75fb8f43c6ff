package rtti

import (
	"bytes"
	"reflect"
	"strings"
	"unsafe"

	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"

	"github.com/wippyai/typestream/errors"
)

// typeBase carries the descriptor data shared by every Type and implements
// the documented fallbacks: zero-fill construct, no-op destruct, byte-wise
// compare and copy for simple layouts, reflection otherwise.
type typeBase struct {
	goType reflect.Type
	reg    *Registry
	self   Type
	name   string
	traits Traits
	kind   MetaKind
}

func newBase(self Type, name string, kind MetaKind, goType reflect.Type) typeBase {
	return typeBase{
		self:   self,
		name:   name,
		kind:   kind,
		goType: goType,
		traits: Traits{
			Size:                   goType.Size(),
			Align:                  uintptr(goType.Align()),
			InitializedFromZeroMem: true,
			SimpleCopyCompare:      isPlainMemory(goType),
			Hashable:               true,
		},
	}
}

func (b *typeBase) base() *typeBase      { return b }
func (b *typeBase) Name() string         { return b.name }
func (b *typeBase) MetaKind() MetaKind   { return b.kind }
func (b *typeBase) Traits() Traits       { return b.traits }
func (b *typeBase) GoType() reflect.Type { return b.goType }
func (b *typeBase) String() string       { return b.name }
func (b *typeBase) Registry() *Registry  { return b.reg }
func (b *typeBase) value(ptr unsafe.Pointer) reflect.Value {
	return reflect.NewAt(b.goType, ptr).Elem()
}

func (b *typeBase) bytes(ptr unsafe.Pointer) []byte {
	return unsafe.Slice((*byte)(ptr), b.traits.Size)
}

func (b *typeBase) Construct(ptr unsafe.Pointer) {
	b.value(ptr).SetZero()
}

func (b *typeBase) Destruct(ptr unsafe.Pointer) {}

func (b *typeBase) Compare(x, y unsafe.Pointer) bool {
	if b.traits.SimpleCopyCompare {
		return bytes.Equal(b.bytes(x), b.bytes(y))
	}
	return reflect.DeepEqual(b.value(x).Interface(), b.value(y).Interface())
}

func (b *typeBase) Copy(dst, src unsafe.Pointer) {
	if b.traits.SimpleCopyCompare {
		copy(b.bytes(dst), b.bytes(src))
		return
	}
	b.value(dst).Set(b.value(src))
}

func (b *typeBase) CalcHash(ptr unsafe.Pointer) uint64 {
	if b.traits.SimpleCopyCompare {
		return murmur3.Sum64(b.bytes(ptr))
	}
	return murmur3.Sum64([]byte(Print(b.self, ptr)))
}

func (b *typeBase) WriteBinary(w OpcodeWriter, ptr unsafe.Pointer) error {
	return errors.Unsupported(errors.PhaseWrite, "binary serialization of "+b.name)
}

func (b *typeBase) ReadBinary(r OpcodeReader, ptr unsafe.Pointer) error {
	return errors.Unsupported(errors.PhaseRead, "binary serialization of "+b.name)
}

func (b *typeBase) WriteText(node TextNode, ptr unsafe.Pointer) error {
	node.SetValue(Print(b.self, ptr))
	return nil
}

func (b *typeBase) ReadText(node TextNode, ptr unsafe.Pointer) error {
	if !b.self.ParseFromString(node.Value(), ptr) {
		return errors.New(errors.PhaseParse, errors.KindInvalidData).
			Type(b.name).
			Detail("cannot parse %q", node.Value()).
			Build()
	}
	return nil
}

func (b *typeBase) PrintToText(sb *strings.Builder, ptr unsafe.Pointer) {
	sb.WriteByte('<')
	sb.WriteString(b.name)
	sb.WriteByte('>')
}

func (b *typeBase) ParseFromString(s string, ptr unsafe.Pointer) bool {
	return false
}

func (b *typeBase) DescribeDataView(path string, ptr unsafe.Pointer, info *DataViewInfo) error {
	if path != "" {
		return noSuchMember(path, b.name)
	}
	info.describe(b.self)
	return nil
}

func (b *typeBase) ReadDataView(path string, ptr unsafe.Pointer, dst unsafe.Pointer, dstType Type) error {
	if path != "" {
		return noSuchMember(path, b.name)
	}
	return b.reg.convertView(ptr, b.self, dst, dstType)
}

func (b *typeBase) WriteDataView(path string, ptr unsafe.Pointer, src unsafe.Pointer, srcType Type) error {
	if path != "" {
		return noSuchMember(path, b.name)
	}
	return b.reg.convertView(src, srcType, ptr, b.self)
}

func (b *typeBase) warn(msg string, fields ...zap.Field) {
	Logger().Warn(msg, append(fields, zap.String("type", b.name))...)
}

// isPlainMemory reports whether values of t contain no Go pointers, so they
// can be compared and copied as raw bytes.
func isPlainMemory(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	case reflect.Float32, reflect.Float64:
		// +0/-0 and NaN payloads make byte equality differ from value
		// equality; byte copy is still fine but compare must not be bytewise.
		return false
	case reflect.Array:
		return t.Len() == 0 || isPlainMemory(t.Elem())
	case reflect.Struct:
		var end uintptr
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.Offset != end || !isPlainMemory(f.Type) {
				return false // padding bytes or pointers
			}
			end = f.Offset + f.Type.Size()
		}
		return end == t.Size()
	default:
		return false
	}
}
