// Package schema registers runtime types described outside Go code.
//
// YAML schema files declare enums and classes with typed properties. WIT
// type definitions from the component model map onto the same registry
// types, so data described in WIT can be serialized as opcode streams.
// Classes created either way are dynamic: their storage is built with
// reflection and instances are rtti.DynamicObject values.
package schema
