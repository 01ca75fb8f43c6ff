// Package typestream is a runtime type reflection system paired with an
// opcode based binary serialization engine.
//
// # Architecture Overview
//
//	typestream/          ByteSink and ByteSource collaborator interfaces
//	├── rtti/            Type descriptors, registry, classes, handles, data views
//	├── convert/         Conversion matrix between conversion classes
//	├── opcode/          Paged opcode stream produced by serialization walks
//	├── serialize/       Binarizer, reader and disassembler for opcode streams
//	├── filetables/      Interned tables of binary resource files
//	├── resfile/         Resource file container: save and load object sets
//	├── bufferstore/     Backends for externally stored buffers
//	├── schema/          Type registration from YAML schemas and WIT packages
//	├── buffer/          Buffers, compression and buffer metadata
//	├── wire/            Varints, checksummed writer, bounds-checked reader
//	└── errors/          Structured error types
//
// # Quick Start
//
// Register a class, serialize a value and read it back:
//
//	type Mesh struct {
//	    rtti.ObjectBase
//	    LOD   int32      `prop:"lod"`
//	    Scale [3]float32 `prop:"scale,category=transform"`
//	}
//
//	reg := rtti.NewRegistry()
//	mesh, err := reg.RegisterClass("Mesh", reflect.TypeFor[Mesh](), rtti.ClassOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	reg.Seal()
//
//	src := Mesh{LOD: 2}
//	data, refs, err := serialize.Marshal(ctx, mesh, rtti.Ptr(&src), serialize.DefaultWriterOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	var dst Mesh
//	err = serialize.Unmarshal(ctx, data, refs, mesh, rtti.Ptr(&dst), serialize.DefaultReaderOptions())
//
// # Resource Files
//
// resfile.Save writes a set of objects into one container with interned
// names, properties, imports and buffers. resfile.Load decodes it against a
// registry; properties the registry does not know are skipped.
//
// # Conversions
//
// Importing convert installs the conversion matrix as the default converter
// of every registry created afterwards. Reading a property stored with a
// different type converts the value through it.
//
// # Logging
//
// Packages log through zap and are silent by default. Install a logger with
// the package's SetLogger function.
package typestream
