// Package filetables builds the interned tables of a binary resource file.
//
// Strings live in one blob and are referenced by offset; offset 0 is always
// the empty string. Names, properties and imports are declared once and then
// looked up by index. Exports and buffers are declared before their payload
// is written and patched with the final offset, size and CRC afterwards.
//
// Looking up something that was never added, or patching an index that does
// not exist, is a caller bug. It returns an error, or panics when built with
// the debugasserts tag.
//
// Decoded tables rebuild the name and property lookups. Import lookups need
// live class types and are only available on tables built in memory.
package filetables
