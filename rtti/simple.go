package rtti

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unsafe"

	"github.com/spaolacci/murmur3"

	"github.com/wippyai/typestream/buffer"
	"github.com/wippyai/typestream/errors"
)

// Name is an interned identifier. Streams carry names by index into a
// name table rather than inline.
type Name string

// AsyncBuffer is a buffer whose bytes are resolved through a loader when
// read back, instead of being materialized by the reader.
type AsyncBuffer struct {
	buffer.Buffer
}

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

// NumberType describes a fixed-width integer or float, stored little-endian
// in binary streams.
type NumberType[T number] struct {
	typeBase
}

func newNumberType[T number](name string, conv ConversionClass) *NumberType[T] {
	t := &NumberType[T]{}
	t.typeBase = newBase(t, name, MetaSimple, reflect.TypeFor[T]())
	t.traits.ConvClass = conv
	return t
}

func (t *NumberType[T]) Compare(a, b unsafe.Pointer) bool {
	return *(*T)(a) == *(*T)(b)
}

func (t *NumberType[T]) Copy(dst, src unsafe.Pointer) {
	*(*T)(dst) = *(*T)(src)
}

func (t *NumberType[T]) CalcHash(ptr unsafe.Pointer) uint64 {
	v := *(*T)(ptr)
	if v == 0 {
		v = 0 // folds -0 into +0
	}
	var buf [8]byte
	return murmur3.Sum64(putLE(buf[:t.traits.Size], unsafe.Pointer(&v)))
}

func (t *NumberType[T]) WriteBinary(w OpcodeWriter, ptr unsafe.Pointer) error {
	var buf [8]byte
	w.WriteData(putLE(buf[:t.traits.Size], ptr))
	return nil
}

func (t *NumberType[T]) ReadBinary(r OpcodeReader, ptr unsafe.Pointer) error {
	data, err := r.ReadData(int(t.traits.Size))
	if err != nil {
		return err
	}
	if len(data) != int(t.traits.Size) {
		return errors.New(errors.PhaseRead, errors.KindInvalidData).
			Type(t.name).
			Detail("got %d bytes, expected %d", len(data), t.traits.Size).
			Build()
	}
	getLE(data, ptr)
	return nil
}

func (t *NumberType[T]) PrintToText(b *strings.Builder, ptr unsafe.Pointer) {
	v := t.value(ptr)
	switch v.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b.WriteString(strconv.FormatInt(v.Int(), 10))
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		b.WriteString(strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32:
		b.WriteString(strconv.FormatFloat(v.Float(), 'g', -1, 32))
	default:
		b.WriteString(strconv.FormatFloat(v.Float(), 'g', -1, 64))
	}
}

func (t *NumberType[T]) ParseFromString(s string, ptr unsafe.Pointer) bool {
	s = strings.TrimSpace(s)
	v := t.value(ptr)
	bits := int(t.traits.Size * 8)
	switch v.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, bits)
		if err != nil {
			return false
		}
		v.SetInt(n)
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, bits)
		if err != nil {
			return false
		}
		v.SetUint(n)
	default:
		f, err := strconv.ParseFloat(s, bits)
		if err != nil {
			return false
		}
		v.SetFloat(f)
	}
	return true
}

func putLE(dst []byte, ptr unsafe.Pointer) []byte {
	switch len(dst) {
	case 1:
		dst[0] = *(*uint8)(ptr)
	case 2:
		binary.LittleEndian.PutUint16(dst, *(*uint16)(ptr))
	case 4:
		binary.LittleEndian.PutUint32(dst, *(*uint32)(ptr))
	case 8:
		binary.LittleEndian.PutUint64(dst, *(*uint64)(ptr))
	}
	return dst
}

func getLE(src []byte, ptr unsafe.Pointer) {
	switch len(src) {
	case 1:
		*(*uint8)(ptr) = src[0]
	case 2:
		*(*uint16)(ptr) = binary.LittleEndian.Uint16(src)
	case 4:
		*(*uint32)(ptr) = binary.LittleEndian.Uint32(src)
	case 8:
		*(*uint64)(ptr) = binary.LittleEndian.Uint64(src)
	}
}

// BoolType is the "bool" type, one byte in binary streams.
type BoolType struct {
	typeBase
}

func newBoolType() *BoolType {
	t := &BoolType{}
	t.typeBase = newBase(t, "bool", MetaSimple, reflect.TypeFor[bool]())
	t.traits.ConvClass = ConvBool
	return t
}

func (t *BoolType) Compare(a, b unsafe.Pointer) bool { return *(*bool)(a) == *(*bool)(b) }
func (t *BoolType) Copy(dst, src unsafe.Pointer)     { *(*bool)(dst) = *(*bool)(src) }

func (t *BoolType) CalcHash(ptr unsafe.Pointer) uint64 {
	if *(*bool)(ptr) {
		return murmur3.Sum64([]byte{1})
	}
	return murmur3.Sum64([]byte{0})
}

func (t *BoolType) WriteBinary(w OpcodeWriter, ptr unsafe.Pointer) error {
	if *(*bool)(ptr) {
		w.WriteData([]byte{1})
	} else {
		w.WriteData([]byte{0})
	}
	return nil
}

func (t *BoolType) ReadBinary(r OpcodeReader, ptr unsafe.Pointer) error {
	data, err := r.ReadData(1)
	if err != nil {
		return err
	}
	if len(data) != 1 {
		return errors.InvalidData(errors.PhaseRead, nil, "bool expects one byte")
	}
	*(*bool)(ptr) = data[0] != 0
	return nil
}

func (t *BoolType) PrintToText(b *strings.Builder, ptr unsafe.Pointer) {
	b.WriteString(strconv.FormatBool(*(*bool)(ptr)))
}

func (t *BoolType) ParseFromString(s string, ptr unsafe.Pointer) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	*(*bool)(ptr) = v
	return true
}

// StringType is the "string" type, length-prefixed in binary streams.
type StringType struct {
	typeBase
}

func newStringType() *StringType {
	t := &StringType{}
	t.typeBase = newBase(t, "string", MetaSimple, reflect.TypeFor[string]())
	t.traits.ConvClass = ConvString
	return t
}

func (t *StringType) Compare(a, b unsafe.Pointer) bool { return *(*string)(a) == *(*string)(b) }
func (t *StringType) Copy(dst, src unsafe.Pointer)     { *(*string)(dst) = *(*string)(src) }

func (t *StringType) CalcHash(ptr unsafe.Pointer) uint64 {
	return murmur3.Sum64([]byte(*(*string)(ptr)))
}

func (t *StringType) WriteBinary(w OpcodeWriter, ptr unsafe.Pointer) error {
	w.WriteVarData([]byte(*(*string)(ptr)))
	return nil
}

func (t *StringType) ReadBinary(r OpcodeReader, ptr unsafe.Pointer) error {
	data, err := r.ReadData(VariableSize)
	if err != nil {
		return err
	}
	*(*string)(ptr) = string(data)
	return nil
}

func (t *StringType) PrintToText(b *strings.Builder, ptr unsafe.Pointer) {
	b.WriteString(*(*string)(ptr))
}

func (t *StringType) ParseFromString(s string, ptr unsafe.Pointer) bool {
	*(*string)(ptr) = s
	return true
}

// NameType is the "name" type.
type NameType struct {
	typeBase
}

func newNameType() *NameType {
	t := &NameType{}
	t.typeBase = newBase(t, "name", MetaSimple, reflect.TypeFor[Name]())
	t.traits.ConvClass = ConvName
	return t
}

func (t *NameType) Compare(a, b unsafe.Pointer) bool { return *(*Name)(a) == *(*Name)(b) }
func (t *NameType) Copy(dst, src unsafe.Pointer)     { *(*Name)(dst) = *(*Name)(src) }

func (t *NameType) CalcHash(ptr unsafe.Pointer) uint64 {
	return murmur3.Sum64([]byte(*(*Name)(ptr)))
}

func (t *NameType) WriteBinary(w OpcodeWriter, ptr unsafe.Pointer) error {
	w.WriteName(*(*Name)(ptr))
	return nil
}

func (t *NameType) ReadBinary(r OpcodeReader, ptr unsafe.Pointer) error {
	n, err := r.ReadName()
	if err != nil {
		return err
	}
	*(*Name)(ptr) = n
	return nil
}

func (t *NameType) PrintToText(b *strings.Builder, ptr unsafe.Pointer) {
	b.WriteString(string(*(*Name)(ptr)))
}

func (t *NameType) ParseFromString(s string, ptr unsafe.Pointer) bool {
	*(*Name)(ptr) = Name(s)
	return true
}

// TypeRefType is the "type" type: a value holding a Type.
type TypeRefType struct {
	typeBase
}

func newTypeRefType() *TypeRefType {
	t := &TypeRefType{}
	t.typeBase = newBase(t, "type", MetaSimple, reflect.TypeFor[Type]())
	return t
}

func (t *TypeRefType) Compare(a, b unsafe.Pointer) bool { return *(*Type)(a) == *(*Type)(b) }
func (t *TypeRefType) Copy(dst, src unsafe.Pointer)     { *(*Type)(dst) = *(*Type)(src) }

func (t *TypeRefType) CalcHash(ptr unsafe.Pointer) uint64 {
	if v := *(*Type)(ptr); v != nil {
		return murmur3.Sum64([]byte(v.Name()))
	}
	return 0
}

func (t *TypeRefType) WriteBinary(w OpcodeWriter, ptr unsafe.Pointer) error {
	w.WriteTypeRef(*(*Type)(ptr))
	return nil
}

func (t *TypeRefType) ReadBinary(r OpcodeReader, ptr unsafe.Pointer) error {
	v, err := r.ReadTypeRef()
	if err != nil {
		return err
	}
	*(*Type)(ptr) = v
	return nil
}

func (t *TypeRefType) PrintToText(b *strings.Builder, ptr unsafe.Pointer) {
	if v := *(*Type)(ptr); v != nil {
		b.WriteString(v.Name())
		return
	}
	b.WriteString("null")
}

func (t *TypeRefType) ParseFromString(s string, ptr unsafe.Pointer) bool {
	if s == "null" || s == "" {
		*(*Type)(ptr) = nil
		return true
	}
	if t.reg == nil {
		return false
	}
	v, err := t.reg.FindType(s)
	if err != nil {
		return false
	}
	*(*Type)(ptr) = v
	return true
}

// BufferType is the "buffer" type. Buffers are written inline.
type BufferType struct {
	typeBase
	async bool
}

func newBufferType() *BufferType {
	t := &BufferType{}
	t.typeBase = newBase(t, "buffer", MetaSimple, reflect.TypeFor[buffer.Buffer]())
	return t
}

func newAsyncBufferType() *BufferType {
	t := &BufferType{async: true}
	t.typeBase = newBase(t, "async_buffer", MetaSimple, reflect.TypeFor[AsyncBuffer]())
	return t
}

// Async reports whether values are read back through loaders.
func (t *BufferType) Async() bool { return t.async }

// buffer works for both layouts because AsyncBuffer only embeds Buffer.
func (t *BufferType) buffer(ptr unsafe.Pointer) *buffer.Buffer {
	return (*buffer.Buffer)(ptr)
}

func (t *BufferType) Compare(a, b unsafe.Pointer) bool {
	return t.buffer(a).Equal(*t.buffer(b))
}

func (t *BufferType) Copy(dst, src unsafe.Pointer) {
	*t.buffer(dst) = *t.buffer(src)
}

func (t *BufferType) CalcHash(ptr unsafe.Pointer) uint64 {
	b := t.buffer(ptr)
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], b.Size())
	binary.LittleEndian.PutUint64(buf[8:], b.CRC())
	return murmur3.Sum64(buf[:])
}

func (t *BufferType) WriteBinary(w OpcodeWriter, ptr unsafe.Pointer) error {
	w.WriteBuffer(*t.buffer(ptr), t.async)
	return nil
}

func (t *BufferType) ReadBinary(r OpcodeReader, ptr unsafe.Pointer) error {
	b, err := r.ReadBuffer(t.async)
	if err != nil {
		return err
	}
	*t.buffer(ptr) = b
	return nil
}

func (t *BufferType) PrintToText(b *strings.Builder, ptr unsafe.Pointer) {
	buf := t.buffer(ptr)
	fmt.Fprintf(b, "buffer(%d bytes, crc %016x)", buf.Size(), buf.CRC())
}
