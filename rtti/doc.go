// Package rtti describes in-memory data at runtime.
//
// A Type knows the size and traits of one shape of data and implements the
// operations on it: construct, destruct, compare, copy, hash, binary and
// text serialization, and data views (generic access to nested fields by
// path). Every operation takes an unsafe.Pointer to a value whose Go type
// is Type.GoType().
//
// # Kinds
//
// The set of type kinds is closed:
//
//	simple  - bool, int8..int64, uint8..uint64, float, double, string,
//	          name, type, buffer, async_buffer, class<C>, ref<C>
//	array   - array<E> over []E, E[N] over [N]E
//	handle  - ptr<C> over Strong, weak<C> over Weak
//	enum    - named int64 values over an integer Go type
//	class   - structs with properties and single inheritance
//	custom  - opaque types driven by Bindings
//
// # Registry
//
// Types live in a Registry. Registration happens once at startup and ends
// with Seal; afterwards the registry is safe for concurrent readers:
//
//	reg := rtti.NewRegistry()
//	color, _ := reg.RegisterEnum("Color", reflect.TypeFor[Color]())
//	_ = color.Add("Red", 0)
//	mesh, _ := reg.RegisterClass("Mesh", reflect.TypeFor[Mesh](), rtti.ClassOptions{})
//	reg.Seal()
//
// Composite type names resolve on demand through FindType:
// "array<int32>", "float[3]", "ptr<Mesh>", "weak<Mesh>", "class<Mesh>",
// "ref<Mesh>".
//
// # Data Views
//
// A data view path addresses a nested value:
//
//	.transform.position[1]
//
// Describe, ReadPath and WritePath walk it, converting between the stored
// type and the caller's type through the registry's Converter.
//
// # Serialization
//
// WriteBinary emits structural and data events into an OpcodeWriter.
// Class values write one property per skip block so that readers can
// discard properties they do not know.
package rtti
