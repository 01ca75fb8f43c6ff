package filetables

import (
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/wippyai/typestream/buffer"
	"github.com/wippyai/typestream/errors"
	"github.com/wippyai/typestream/rtti"
	"github.com/wippyai/typestream/wire"
)

// NameEntry is an interned name.
type NameEntry struct {
	Hash   uint64
	String uint32
}

// PropertyEntry identifies a property by owning class, name and stored type.
type PropertyEntry struct {
	Hash      uint64
	ClassName uint32
	Name      uint32
	TypeName  uint32
}

// ImportEntry is a resource the file references but does not contain.
type ImportEntry struct {
	Hash      uint64
	ID        uuid.UUID
	ClassName uint32
	Path      uint32
}

// ExportEntry is an object stored in the file. Offset, Size and CRC are
// placeholders until PatchExport.
type ExportEntry struct {
	ClassName uint32
	Offset    uint64
	Size      uint64
	CRC       uint64
}

// BufferEntry is a buffer payload stored in the file. Offset and the stored
// size are placeholders until PatchBuffer.
type BufferEntry struct {
	Meta   buffer.Meta
	Offset uint64
}

// Tables interns the strings, names, properties, imports, exports and
// buffers of one resource file. Table indices are 0-based.
type Tables struct {
	blob    []byte
	strings map[string]uint32

	Names      []NameEntry
	Properties []PropertyEntry
	Imports    []ImportEntry
	Exports    []ExportEntry
	Buffers    []BufferEntry

	names      map[rtti.Name]uint32
	properties map[uint64]uint32
	imports    map[rtti.ResourceRef]uint32
}

// New returns empty tables whose string blob holds only the empty string.
func New() *Tables {
	return &Tables{
		blob:       []byte{0},
		strings:    map[string]uint32{"": 0},
		names:      make(map[rtti.Name]uint32),
		properties: make(map[uint64]uint32),
		imports:    make(map[rtti.ResourceRef]uint32),
	}
}

// Blob returns the string blob. Each string is stored as a varint length
// followed by its bytes; offset 0 is the empty string.
func (t *Tables) Blob() []byte { return t.blob }

// MapString interns s and returns its blob offset. Interning the same
// string again returns the same offset without growing the blob.
func (t *Tables) MapString(s string) uint32 {
	if off, ok := t.strings[s]; ok {
		return off
	}
	off := uint32(len(t.blob))
	t.blob = wire.AppendVarint(t.blob, uint64(len(s)))
	t.blob = append(t.blob, s...)
	t.strings[s] = off
	return off
}

// MapPath interns a resource path in canonical form: forward slashes,
// no duplicate separators or dot segments.
func (t *Tables) MapPath(p string) uint32 {
	return t.MapString(CleanPath(p))
}

// CleanPath returns the canonical form used by MapPath.
func CleanPath(p string) string {
	if p == "" {
		return ""
	}
	return path.Clean(strings.ReplaceAll(p, "\\", "/"))
}

// String returns the string stored at off.
func (t *Tables) String(off uint32) (string, error) {
	if int(off) >= len(t.blob) {
		return "", violation(errors.OutOfBounds(errors.PhaseTables, []string{"strings"}, int(off), len(t.blob)))
	}
	n, k, err := wire.Varint(t.blob[off:])
	if err != nil || k == 0 || n > uint64(len(t.blob)-int(off)-k) {
		return "", errors.InvalidData(errors.PhaseTables, []string{"strings"}, "bad string entry")
	}
	start := int(off) + k
	return string(t.blob[start : start+int(n)]), nil
}

// AddName appends an entry for n and makes it the one MapName returns.
// Adding the same name twice creates two entries.
func (t *Tables) AddName(n rtti.Name) uint32 {
	idx := uint32(len(t.Names))
	t.Names = append(t.Names, NameEntry{
		Hash:   wire.CRC64String(string(n)),
		String: t.MapString(string(n)),
	})
	t.names[n] = idx
	return idx
}

// MapName returns the index of a name added earlier.
func (t *Tables) MapName(n rtti.Name) (uint32, error) {
	idx, ok := t.names[n]
	if !ok {
		return 0, violation(errors.UnmappedReference(errors.PhaseTables, "name", n))
	}
	return idx, nil
}

// AddProperty appends an entry for the property className.name stored with
// type typeName.
func (t *Tables) AddProperty(className, name, typeName string) uint32 {
	hash := rtti.PropertyHash(className, name)
	idx := uint32(len(t.Properties))
	t.Properties = append(t.Properties, PropertyEntry{
		Hash:      hash,
		ClassName: t.MapString(className),
		Name:      t.MapString(name),
		TypeName:  t.MapString(typeName),
	})
	t.properties[hash] = idx
	return idx
}

// MapProperty returns the index of a property added earlier.
func (t *Tables) MapProperty(className, name string) (uint32, error) {
	idx, ok := t.properties[rtti.PropertyHash(className, name)]
	if !ok {
		return 0, violation(errors.UnmappedReference(errors.PhaseTables, "property", className+"."+name))
	}
	return idx, nil
}

// AddImport appends an entry for ref, found at path.
func (t *Tables) AddImport(ref rtti.ResourceRef, path string) uint32 {
	className := ""
	if ref.Class != nil {
		className = ref.Class.Name()
	}
	idx := uint32(len(t.Imports))
	t.Imports = append(t.Imports, ImportEntry{
		Hash:      ImportHash(className, ref.ID),
		ID:        ref.ID,
		ClassName: t.MapString(className),
		Path:      t.MapPath(path),
	})
	t.imports[ref] = idx
	return idx
}

// ImportHash is the hash stored with an import.
func ImportHash(className string, id uuid.UUID) uint64 {
	return wire.UpdateCRC64(wire.CRC64String(className), id[:])
}

// MapImport returns the index of an import added earlier.
func (t *Tables) MapImport(ref rtti.ResourceRef) (uint32, error) {
	idx, ok := t.imports[ref]
	if !ok {
		return 0, violation(errors.UnmappedReference(errors.PhaseTables, "import", ref))
	}
	return idx, nil
}

// AddExport declares an exported object of class className.
func (t *Tables) AddExport(className string) uint32 {
	t.Exports = append(t.Exports, ExportEntry{ClassName: t.MapString(className)})
	return uint32(len(t.Exports) - 1)
}

// PatchExport records where the payload of export idx was written.
func (t *Tables) PatchExport(idx uint32, offset, size, crc uint64) error {
	if int(idx) >= len(t.Exports) {
		return violation(errors.OutOfBounds(errors.PhaseTables, []string{"exports"}, int(idx), len(t.Exports)))
	}
	e := &t.Exports[idx]
	e.Offset, e.Size, e.CRC = offset, size, crc
	return nil
}

// AddBuffer declares a buffer of size uncompressed bytes with the given CRC.
func (t *Tables) AddBuffer(size, crc uint64) uint32 {
	t.Buffers = append(t.Buffers, BufferEntry{Meta: buffer.Meta{Size: size, CRC: crc}})
	return uint32(len(t.Buffers) - 1)
}

// PatchBuffer records where the payload of buffer idx was written and how
// it is encoded. The stored size may not exceed the declared size.
func (t *Tables) PatchBuffer(idx uint32, offset uint64, stored uint64, kind buffer.Compression) error {
	if int(idx) >= len(t.Buffers) {
		return violation(errors.OutOfBounds(errors.PhaseTables, []string{"buffers"}, int(idx), len(t.Buffers)))
	}
	e := &t.Buffers[idx]
	if stored > e.Meta.Size {
		return violation(errors.New(errors.PhaseTables, errors.KindInvalidInput).
			Detail("buffer %d stored in %d bytes, larger than its %d bytes", idx, stored, e.Meta.Size).
			Build())
	}
	e.Offset = offset
	e.Meta.CompressedSize = stored
	e.Meta.Compression = kind
	return nil
}
