// Package resfile stores sets of objects as self-contained resource files.
//
// A file holds a header, the tables built by package filetables, the list
// of stored type names, and a data section with one protected stream per
// exported object followed by the payloads of async buffers. A CRC-64 of
// everything before it closes the file. Pointers between objects must stay
// inside the exported set; resources outside it are recorded as imports.
package resfile
