package opcode

// Tag discriminates opcode records. The numbering is part of the binary
// format.
type Tag uint8

const (
	Nop Tag = iota
	Compound
	CompoundEnd
	Array
	ArrayEnd
	Property
	DataRaw
	DataTypeRef
	DataName
	DataObjectPointer
	DataResourceRef
	DataInlineBuffer
	DataAsyncFileBuffer
	SkipHeader
	SkipLabel

	numTags
)

var tagNames = [...]string{
	Nop:                 "Nop",
	Compound:            "Compound",
	CompoundEnd:         "CompoundEnd",
	Array:               "Array",
	ArrayEnd:            "ArrayEnd",
	Property:            "Property",
	DataRaw:             "DataRaw",
	DataTypeRef:         "DataTypeRef",
	DataName:            "DataName",
	DataObjectPointer:   "DataObjectPointer",
	DataResourceRef:     "DataResourceRef",
	DataInlineBuffer:    "DataInlineBuffer",
	DataAsyncFileBuffer: "DataAsyncFileBuffer",
	SkipHeader:          "SkipHeader",
	SkipLabel:           "SkipLabel",
}

func (t Tag) String() string {
	if t < numTags {
		return tagNames[t]
	}
	return "Invalid"
}

// Valid reports whether t is a known tag.
func (t Tag) Valid() bool { return t < numTags }

// payload describes what follows the tag byte of a record in a stream.
type payload uint8

const (
	payloadNone  payload = iota
	payloadCount         // varint count
	payloadRef           // varint reference slot
	payloadBytes         // varint length<<1|variable, then bytes
)

var tagPayload = [numTags]payload{
	Compound:            payloadCount,
	Array:               payloadCount,
	Property:            payloadRef,
	DataRaw:             payloadBytes,
	DataTypeRef:         payloadRef,
	DataName:            payloadRef,
	DataObjectPointer:   payloadRef,
	DataResourceRef:     payloadRef,
	DataInlineBuffer:    payloadRef,
	DataAsyncFileBuffer: payloadRef,
}

// IsData reports whether t carries a value rather than structure.
func (t Tag) IsData() bool {
	return t >= DataRaw && t <= DataAsyncFileBuffer
}
