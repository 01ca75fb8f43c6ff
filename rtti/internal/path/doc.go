// Package path parses data view paths such as ".transform.position[1]".
//
// Grammar: ("." identifier | "[" digits "]")*, identifier = [A-Za-z0-9_]+.
// A leading property may omit its dot. All functions are pure and never
// index outside the given string.
//
// This package is internal to rtti.
package path
