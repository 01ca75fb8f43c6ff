package rtti

import (
	"github.com/wippyai/typestream/buffer"
)

// VariableSize marks a ReadData call whose length is carried in the stream.
const VariableSize = -1

// OpcodeWriter receives the serialization walk of a value as a linear
// sequence of structural and data events.
type OpcodeWriter interface {
	BeginCompound(propertyCount uint32)
	EndCompound()
	BeginArray(count uint32)
	EndArray()
	BeginProperty(p *Property)
	BeginSkipBlock()
	EndSkipBlock()

	// WriteData emits bytes whose length the reading type knows statically.
	WriteData(data []byte)
	// WriteVarData emits bytes whose length must travel with them.
	WriteVarData(data []byte)
	WriteTypeRef(t Type)
	WriteName(name Name)
	WritePointer(obj Object)
	WriteResourceRef(ref ResourceRef)
	WriteBuffer(b buffer.Buffer, async bool)
}

// StreamProperty is a property reference as recorded in a stream. Type is
// nil when the stored type name is unknown to the reading registry.
type StreamProperty struct {
	Property  *Property
	Type      Type
	ClassName string
	Name      string
	TypeName  string
}

// OpcodeReader is the inverse of OpcodeWriter.
type OpcodeReader interface {
	EnterCompound() (uint32, error)
	LeaveCompound() error
	EnterArray() (uint32, error)
	LeaveArray() error
	ReadProperty() (StreamProperty, error)
	EnterSkipBlock() error
	LeaveSkipBlock() error
	// DiscardSkipBlock skips the next skip block (or single value) without
	// interpreting it.
	DiscardSkipBlock() error

	// ReadData returns size bytes, or a length-prefixed run when size is
	// VariableSize. The slice is only valid until the next read.
	ReadData(size int) ([]byte, error)
	ReadTypeRef() (Type, error)
	ReadName() (Name, error)
	ReadPointer() (Object, error)
	ReadResourceRef() (ResourceRef, error)
	ReadBuffer(async bool) (buffer.Buffer, error)
}
