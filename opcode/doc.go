// Package opcode holds the in-memory stream produced by walking a value
// with rtti.Type.WriteBinary.
//
// A Stream is a sequence of tagged records laid out in pages. A record never
// spans pages: records larger than a regular page get a dedicated huge page.
// Structural records (Compound, Array, Property, skip markers) and data
// records (raw bytes, type references, names, object pointers, resource
// references, buffers) are decoded back with an Iterator:
//
//	s := opcode.NewStream(opcode.DefaultOptions())
//	if err := s.WriteValue(typ, ptr); err != nil {
//	    return err
//	}
//	it := s.Iterate()
//	for it.Next() {
//	    fmt.Println(it.Record())
//	}
//
// When the page allocator fails the stream becomes corrupted: every page is
// released, the failure is logged once, and later appends are ignored.
package opcode
