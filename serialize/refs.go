package serialize

import (
	"github.com/wippyai/typestream/errors"
	"github.com/wippyai/typestream/opcode"
	"github.com/wippyai/typestream/rtti"
)

// MappedReferences assigns dense indices to the references a stream uses.
// Every table starts at 1; index 0 encodes null.
type MappedReferences struct {
	names      map[rtti.Name]uint32
	types      map[rtti.Type]uint32
	objects    map[rtti.Object]uint32
	properties map[*rtti.Property]uint32
	resources  map[rtti.ResourceRef]uint32

	nameList     []rtti.Name
	typeList     []rtti.Type
	objectList   []rtti.Object
	propertyList []*rtti.Property
	resourceList []rtti.ResourceRef
}

// NewMappedReferences creates empty tables.
func NewMappedReferences() *MappedReferences {
	return &MappedReferences{
		names:      make(map[rtti.Name]uint32),
		types:      make(map[rtti.Type]uint32),
		objects:    make(map[rtti.Object]uint32),
		properties: make(map[*rtti.Property]uint32),
		resources:  make(map[rtti.ResourceRef]uint32),
	}
}

func mapInto[K comparable](m map[K]uint32, list *[]K, k K) uint32 {
	if idx, ok := m[k]; ok {
		return idx
	}
	*list = append(*list, k)
	idx := uint32(len(*list))
	m[k] = idx
	return idx
}

// MapName returns the index of n, adding it when new. The empty name is null.
func (m *MappedReferences) MapName(n rtti.Name) uint32 {
	if n == "" {
		return 0
	}
	return mapInto(m.names, &m.nameList, n)
}

// MapType returns the index of t, adding it when new.
func (m *MappedReferences) MapType(t rtti.Type) uint32 {
	if t == nil {
		return 0
	}
	return mapInto(m.types, &m.typeList, t)
}

// MapObject returns the index of obj, adding it when new.
func (m *MappedReferences) MapObject(obj rtti.Object) uint32 {
	if obj == nil {
		return 0
	}
	return mapInto(m.objects, &m.objectList, obj)
}

// MapProperty returns the index of p, adding it when new. The stored type
// of a property is mapped along with it.
func (m *MappedReferences) MapProperty(p *rtti.Property) uint32 {
	if p == nil {
		return 0
	}
	m.MapType(p.Type())
	return mapInto(m.properties, &m.propertyList, p)
}

// MapResource returns the index of ref, adding it when new.
func (m *MappedReferences) MapResource(ref rtti.ResourceRef) uint32 {
	if ref.IsNull() {
		return 0
	}
	return mapInto(m.resources, &m.resourceList, ref)
}

func lookup[K comparable](m map[K]uint32, k K, what string) (uint32, error) {
	if idx, ok := m[k]; ok {
		return idx, nil
	}
	return 0, errors.UnmappedReference(errors.PhaseWrite, what, k)
}

func (m *MappedReferences) nameIndex(n rtti.Name) (uint32, error) {
	if n == "" {
		return 0, nil
	}
	return lookup(m.names, n, "name")
}

func (m *MappedReferences) typeIndex(t rtti.Type) (uint32, error) {
	if t == nil {
		return 0, nil
	}
	idx, ok := m.types[t]
	if !ok {
		return 0, errors.UnmappedReference(errors.PhaseWrite, "type", t.Name())
	}
	return idx, nil
}

func (m *MappedReferences) objectIndex(obj rtti.Object) (uint32, error) {
	if obj == nil {
		return 0, nil
	}
	return lookup(m.objects, obj, "object")
}

func (m *MappedReferences) propertyIndex(p *rtti.Property) (uint32, error) {
	if p == nil {
		return 0, nil
	}
	idx, ok := m.properties[p]
	if !ok {
		return 0, errors.UnmappedReference(errors.PhaseWrite, "property", p.String())
	}
	return idx, nil
}

func (m *MappedReferences) resourceIndex(ref rtti.ResourceRef) (uint32, error) {
	if ref.IsNull() {
		return 0, nil
	}
	return lookup(m.resources, ref, "resource")
}

// Names returns the mapped names in index order, starting at index 1.
func (m *MappedReferences) Names() []rtti.Name { return m.nameList }

// Types returns the mapped types in index order, starting at index 1.
func (m *MappedReferences) Types() []rtti.Type { return m.typeList }

// Objects returns the mapped objects in index order, starting at index 1.
func (m *MappedReferences) Objects() []rtti.Object { return m.objectList }

// Properties returns the mapped properties in index order, starting at index 1.
func (m *MappedReferences) Properties() []*rtti.Property { return m.propertyList }

// Resources returns the mapped resources in index order, starting at index 1.
func (m *MappedReferences) Resources() []rtti.ResourceRef { return m.resourceList }

// CollectReferences maps every reference recorded in s, in stream order.
func CollectReferences(s *opcode.Stream) (*MappedReferences, error) {
	m := NewMappedReferences()
	if err := m.Collect(s); err != nil {
		return nil, err
	}
	return m, nil
}

// Collect adds the references of s to m.
func (m *MappedReferences) Collect(s *opcode.Stream) error {
	if s.Corrupted() {
		return s.Err()
	}
	it := s.Iterate()
	for it.Next() {
		rec := it.Record()
		switch rec.Tag {
		case opcode.Property:
			m.MapProperty(rec.Property)
		case opcode.DataTypeRef:
			m.MapType(rec.Type)
		case opcode.DataName:
			m.MapName(rec.Name)
		case opcode.DataObjectPointer:
			m.MapObject(rec.Object)
		case opcode.DataResourceRef:
			m.MapResource(rec.Resource)
		}
	}
	return it.Err()
}

// Resolve returns the resolved tables matching m, for reading back a
// stream in the process that wrote it.
func (m *MappedReferences) Resolve() *ResolvedReferences {
	r := &ResolvedReferences{
		Names:      append([]rtti.Name{""}, m.nameList...),
		Types:      append([]rtti.Type{nil}, m.typeList...),
		Objects:    append([]rtti.Object{nil}, m.objectList...),
		Resources:  append([]rtti.ResourceRef{{}}, m.resourceList...),
		Properties: make([]rtti.StreamProperty, len(m.propertyList)+1),
	}
	for i, p := range m.propertyList {
		r.Properties[i+1] = DescribeProperty(p)
	}
	return r
}

// DescribeProperty returns the stream form of a live property.
func DescribeProperty(p *rtti.Property) rtti.StreamProperty {
	sp := rtti.StreamProperty{
		Property: p,
		Type:     p.Type(),
		Name:     p.Name(),
		TypeName: p.Type().Name(),
	}
	if c := p.Parent(); c != nil {
		sp.ClassName = c.Name()
	}
	return sp
}

// ResolvedReferences turns indices read from a stream back into references.
// Index 0 of every table is the null entry.
type ResolvedReferences struct {
	Names      []rtti.Name
	Types      []rtti.Type
	Objects    []rtti.Object
	Properties []rtti.StreamProperty
	Resources  []rtti.ResourceRef
}

func resolve[T any](table []T, idx uint64, what string) (T, error) {
	var zero T
	if idx == 0 {
		return zero, nil
	}
	if idx >= uint64(len(table)) {
		return zero, errors.UnmappedReference(errors.PhaseRead, what, idx)
	}
	return table[idx], nil
}
