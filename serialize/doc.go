// Package serialize turns opcode streams into compact binary and back.
//
// Writing happens in two passes. CollectReferences assigns a dense index to
// every name, type, object, property and resource a stream mentions, and
// Binarize encodes the records with those indices as varints through a
// checksumming wire.Writer. Index 0 is null in every table.
//
// A Reader implements rtti.OpcodeReader over the bytes, resolving indices
// through ResolvedReferences. Both sides must agree on the protected mode:
//
//   - Protected streams carry a tag byte per record and the length of every
//     DataRaw record. Readers can discard skip blocks they do not understand
//     and Disassemble can list them.
//   - Unprotected streams carry only what the reading types cannot infer.
//     They are smaller but must be read with the exact types that wrote them.
//
// Buffers are written as metadata (size, CRC, packed compressed size, codec
// and external flag) followed by their payload. Async buffers handed to a
// buffer.Sink and loader-backed buffers write metadata only; readers resolve
// them through a buffer.Factory without blocking.
package serialize
