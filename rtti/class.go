package rtti

import (
	"encoding/binary"
	"reflect"
	"strconv"
	"strings"
	"unsafe"

	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"

	"github.com/wippyai/typestream/errors"
)

// ClassOptions configure RegisterClass.
type ClassOptions struct {
	// Parent is the base class. Its Go struct must be embedded as the
	// first field.
	Parent *ClassType
	// Factory creates instances. Defaults to allocating the Go struct when
	// a pointer to it implements Object.
	Factory func() Object
}

// FieldDef declares one property of a class built at runtime.
type FieldDef struct {
	Type     Type
	Name     string
	Category string
	Min      float64
	Max      float64
	HasRange bool
	Flags    PropertyFlags
}

// ClassType describes a struct whose exported data is a list of
// properties. Classes form a single-inheritance tree; a subclass value
// starts with its parent's value.
type ClassType struct {
	typeBase
	parent  *ClassType
	factory func() Object
	byName  map[string]*Property
	byHash  map[uint64]*Property
	own     []*Property
	props   []*Property
	dynamic bool
	defined bool
}

var objectType = reflect.TypeFor[Object]()

// RegisterClass registers a class over the struct type goType. Fields
// tagged `prop:"name,option,..."` become properties; options are
// category=C, min=N, max=N, readonly, transient, type=T (explicit type
// name) and class=C (class of handle, class ref and resource ref fields).
// The class is registered before its fields are resolved, so fields may
// refer to the class itself.
func (r *Registry) RegisterClass(name string, goType reflect.Type, opts ClassOptions) (*ClassType, error) {
	if goType == nil || goType.Kind() != reflect.Struct {
		return nil, errors.Registration(name, "class storage must be a struct")
	}
	if p := opts.Parent; p != nil {
		if !p.defined {
			return nil, errors.Registration(name, "parent "+p.Name()+" is not defined")
		}
		if goType.NumField() == 0 || goType.Field(0).Type != p.goType || goType.Field(0).Offset != 0 {
			return nil, errors.Registration(name, "first field must embed parent "+p.Name())
		}
	}

	c := &ClassType{parent: opts.Parent, factory: opts.Factory}
	c.typeBase = newBase(c, name, MetaClass, goType)
	if c.factory == nil && reflect.PointerTo(goType).Implements(objectType) {
		c.factory = func() Object {
			return reflect.New(goType).Interface().(Object)
		}
	}
	if err := r.register(c); err != nil {
		return nil, err
	}

	fields, err := r.taggedFields(c, goType)
	if err == nil {
		err = c.define(fields)
	}
	if err != nil {
		r.unregister(c)
		return nil, err
	}
	classIndex.Store(goType, c)
	return c, nil
}

// DeclareClass registers a class whose storage is built at runtime by
// Define. Declaring every class before defining any lets definitions refer
// to each other.
func (r *Registry) DeclareClass(name string, parent *ClassType) (*ClassType, error) {
	c := &ClassType{parent: parent, dynamic: true}
	c.typeBase = typeBase{self: c, name: name, kind: MetaClass}
	c.traits.Scripted = true
	if err := r.register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Define builds the storage of a declared class from fields. The parent
// must be defined first.
func (c *ClassType) Define(fields []FieldDef) error {
	if !c.dynamic || c.defined {
		return errors.Registration(c.name, "class is already defined")
	}
	if c.reg != nil && c.reg.Sealed() {
		return errors.New(errors.PhaseRegister, errors.KindRegistrySealed).Type(c.name).Build()
	}
	if c.parent != nil && !c.parent.defined {
		return errors.Registration(c.name, "parent "+c.parent.name+" is not defined")
	}

	var sf []reflect.StructField
	first := 0
	if c.parent != nil {
		sf = append(sf, reflect.StructField{Name: "Base", Type: c.parent.goType})
		first = 1
	}
	for i, f := range fields {
		if f.Type == nil {
			return errors.Registration(c.name, "field "+f.Name+" has no type")
		}
		if f.Type.GoType() == nil {
			return errors.Registration(c.name, "field "+f.Name+" uses undefined type "+f.Type.Name())
		}
		sf = append(sf, reflect.StructField{Name: "F" + strconv.Itoa(i), Type: f.Type.GoType()})
	}
	st := reflect.StructOf(sf)

	specs := make([]fieldSpec, len(fields))
	for i, f := range fields {
		specs[i] = fieldSpec{def: f, offset: st.Field(first + i).Offset}
	}

	reg := c.reg
	c.typeBase = newBase(c, c.name, MetaClass, st)
	c.reg = reg
	c.traits.Scripted = true
	c.factory = func() Object {
		return &DynamicObject{data: reflect.New(st).UnsafePointer()}
	}
	return c.define(specs)
}

type fieldSpec struct {
	def    FieldDef
	offset uintptr
}

func (r *Registry) taggedFields(c *ClassType, goType reflect.Type) ([]fieldSpec, error) {
	var specs []fieldSpec
	for i := 0; i < goType.NumField(); i++ {
		f := goType.Field(i)
		if i == 0 && c.parent != nil {
			continue
		}
		tag, ok := f.Tag.Lookup("prop")
		if !ok || tag == "-" {
			continue
		}
		spec, err := r.parseFieldTag(c, f, tag)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (r *Registry) parseFieldTag(c *ClassType, f reflect.StructField, tag string) (fieldSpec, error) {
	parts := strings.Split(tag, ",")
	def := FieldDef{Name: strings.TrimSpace(parts[0])}
	if def.Name == "" {
		def.Name = f.Name
	}

	var typeName, className string
	for _, opt := range parts[1:] {
		key, val, _ := strings.Cut(strings.TrimSpace(opt), "=")
		switch key {
		case "readonly":
			def.Flags |= PropReadOnly
		case "transient":
			def.Flags |= PropTransient
		case "category":
			def.Category = val
		case "type":
			typeName = val
		case "class":
			className = val
		case "min", "max":
			v, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fieldSpec{}, errors.Registration(c.name, "bad "+key+" on field "+f.Name)
			}
			if key == "min" {
				def.Min = v
			} else {
				def.Max = v
			}
			def.HasRange = true
		case "":
		default:
			return fieldSpec{}, errors.Registration(c.name, "unknown option "+strconv.Quote(key)+" on field "+f.Name)
		}
	}

	var (
		t   Type
		err error
	)
	if typeName != "" {
		t, err = r.FindType(typeName)
	} else {
		t, err = r.fieldType(f.Type, className)
	}
	if err != nil {
		return fieldSpec{}, errors.New(errors.PhaseRegister, errors.KindRegistration).
			Type(c.name).
			Cause(err).
			Detail("field %s", f.Name).
			Build()
	}
	if t.GoType() != f.Type {
		return fieldSpec{}, errors.TypeMismatch(errors.PhaseRegister, []string{"." + def.Name}, f.Type.String(), t.GoType().String())
	}
	def.Type = t
	return fieldSpec{def: def, offset: f.Offset}, nil
}

var (
	strongGoType   = reflect.TypeFor[Strong]()
	weakGoType     = reflect.TypeFor[Weak]()
	classRefGoType = reflect.TypeFor[ClassRef]()
	resRefGoType   = reflect.TypeFor[ResourceRef]()
)

// fieldType resolves the type of a struct field. Handle and reference
// fields, alone or in slices and arrays, take their class from className.
func (r *Registry) fieldType(ft reflect.Type, className string) (Type, error) {
	if className == "" {
		return r.TypeFor(ft)
	}
	switch ft {
	case strongGoType, weakGoType, classRefGoType, resRefGoType:
		class, err := r.FindClass(className)
		if err != nil {
			return nil, err
		}
		switch ft {
		case strongGoType:
			return r.StrongHandleOf(class), nil
		case weakGoType:
			return r.WeakHandleOf(class), nil
		case classRefGoType:
			return r.ClassRefOf(class), nil
		default:
			return r.ResourceRefOf(class), nil
		}
	}
	switch ft.Kind() {
	case reflect.Slice:
		elem, err := r.fieldType(ft.Elem(), className)
		if err != nil {
			return nil, err
		}
		return r.ArrayOf(elem)
	case reflect.Array:
		elem, err := r.fieldType(ft.Elem(), className)
		if err != nil {
			return nil, err
		}
		return r.FixedArrayOf(elem, ft.Len())
	}
	return nil, errors.InvalidInput(errors.PhaseRegister, "class= applies to handle and reference fields, not "+ft.String())
}

func (r *Registry) unregister(t Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byName[t.Name()] == t {
		delete(r.byName, t.Name())
	}
	if t.GoType() != nil && r.byGoType[t.GoType()] == t {
		delete(r.byGoType, t.GoType())
	}
}

func (c *ClassType) define(specs []fieldSpec) error {
	c.byName = make(map[string]*Property)
	c.byHash = make(map[uint64]*Property)
	c.props = nil
	if c.parent != nil {
		c.props = append(c.props, c.parent.props...)
		for _, p := range c.parent.props {
			c.byName[p.name] = p
			c.byHash[p.hash] = p
		}
		c.traits.RequiresConstructor = c.parent.traits.RequiresConstructor
		c.traits.RequiresDestructor = c.parent.traits.RequiresDestructor
	}

	c.own = make([]*Property, 0, len(specs))
	for _, s := range specs {
		if _, dup := c.byName[s.def.Name]; dup {
			return errors.Duplicate(errors.PhaseRegister, "property", c.name+"."+s.def.Name)
		}
		p := &Property{
			parent:   c,
			typ:      s.def.Type,
			name:     s.def.Name,
			category: s.def.Category,
			offset:   s.offset,
			flags:    s.def.Flags,
			rangeMin: s.def.Min,
			rangeMax: s.def.Max,
			hasRange: s.def.HasRange,
			hash:     PropertyHash(c.name, s.def.Name),
		}
		c.own = append(c.own, p)
		c.props = append(c.props, p)
		c.byName[p.name] = p
		c.byHash[p.hash] = p

		tt := p.typ.Traits()
		c.traits.RequiresConstructor = c.traits.RequiresConstructor || tt.RequiresConstructor
		c.traits.RequiresDestructor = c.traits.RequiresDestructor || tt.RequiresDestructor
		c.traits.Hashable = c.traits.Hashable && tt.Hashable
	}
	c.traits.SimpleCopyCompare = false
	c.defined = true
	return nil
}

// Parent returns the base class, nil for roots.
func (c *ClassType) Parent() *ClassType { return c.parent }

// IsA reports whether c is base or derives from it.
func (c *ClassType) IsA(base *ClassType) bool {
	for k := c; k != nil; k = k.parent {
		if k == base {
			return true
		}
	}
	return false
}

// Properties returns all properties, inherited ones first.
func (c *ClassType) Properties() []*Property { return c.props }

// OwnProperties returns the properties declared by c itself.
func (c *ClassType) OwnProperties() []*Property { return c.own }

// FindProperty looks a property up by name.
func (c *ClassType) FindProperty(name string) *Property { return c.byName[name] }

// FindPropertyByHash looks a property up by its stable hash.
func (c *ClassType) FindPropertyByHash(h uint64) *Property { return c.byHash[h] }

// Defined reports whether the class has storage.
func (c *ClassType) Defined() bool { return c.defined }

// IsObject reports whether Create can make instances.
func (c *ClassType) IsObject() bool { return c.factory != nil }

// Create makes a constructed instance of the class.
func (c *ClassType) Create() (Object, error) {
	if c.factory == nil || !c.defined {
		return nil, errors.Unsupported(errors.PhaseRegister, "class "+c.name+" cannot be instantiated")
	}
	obj := c.factory()
	c.Construct(ObjectData(obj))
	obj.objectBase().class.Store(c)
	return obj, nil
}

func (c *ClassType) Construct(ptr unsafe.Pointer) {
	c.value(ptr).SetZero()
	if c.traits.RequiresConstructor {
		for _, p := range c.props {
			p.typ.Construct(p.Data(ptr))
		}
	}
}

func (c *ClassType) Destruct(ptr unsafe.Pointer) {
	if c.traits.RequiresDestructor {
		for _, p := range c.props {
			p.typ.Destruct(p.Data(ptr))
		}
	}
}

func (c *ClassType) Compare(a, b unsafe.Pointer) bool {
	for _, p := range c.props {
		if !p.typ.Compare(p.Data(a), p.Data(b)) {
			return false
		}
	}
	return true
}

func (c *ClassType) Copy(dst, src unsafe.Pointer) {
	if dst == src {
		return
	}
	for _, p := range c.props {
		p.typ.Copy(p.Data(dst), p.Data(src))
	}
}

func (c *ClassType) CalcHash(ptr unsafe.Pointer) uint64 {
	h := murmur3.New64()
	var buf [8]byte
	for _, p := range c.props {
		binary.LittleEndian.PutUint64(buf[:], p.typ.CalcHash(p.Data(ptr)))
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}

func (c *ClassType) serialized() []*Property {
	out := make([]*Property, 0, len(c.props))
	for _, p := range c.props {
		if !p.Transient() {
			out = append(out, p)
		}
	}
	return out
}

// WriteBinary writes a compound with one skip-block framed value per
// non-transient property.
func (c *ClassType) WriteBinary(w OpcodeWriter, ptr unsafe.Pointer) error {
	props := c.serialized()
	w.BeginCompound(uint32(len(props)))
	for _, p := range props {
		w.BeginProperty(p)
		w.BeginSkipBlock()
		if err := p.typ.WriteBinary(w, p.Data(ptr)); err != nil {
			return err
		}
		w.EndSkipBlock()
	}
	w.EndCompound()
	return nil
}

func (c *ClassType) resolve(sp StreamProperty) *Property {
	if sp.Property != nil && c.byHash[sp.Property.hash] == sp.Property {
		return sp.Property
	}
	return c.byName[sp.Name]
}

// ReadBinary matches stored properties by name. Properties this class does
// not have, or whose stored type is unknown, are skipped; stored values of
// a different type are converted.
func (c *ClassType) ReadBinary(r OpcodeReader, ptr unsafe.Pointer) error {
	n, err := r.EnterCompound()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		sp, err := r.ReadProperty()
		if err != nil {
			return err
		}
		target := c.resolve(sp)
		if target == nil || sp.Type == nil || target.Transient() {
			c.warn("skipping stored property",
				zap.String("property", sp.Name),
				zap.String("stored_type", sp.TypeName))
			if err := r.DiscardSkipBlock(); err != nil {
				return err
			}
			continue
		}

		if err := r.EnterSkipBlock(); err != nil {
			return err
		}
		field := target.Data(ptr)
		if sp.Type == target.typ {
			err = target.typ.ReadBinary(r, field)
		} else {
			tmp := New(sp.Type)
			err = sp.Type.ReadBinary(r, tmp)
			if err == nil && !c.reg.Convert(tmp, sp.Type, field, target.typ) {
				c.warn("stored property not convertible, value left unchanged",
					zap.String("property", sp.Name),
					zap.String("stored_type", sp.TypeName),
					zap.String("type", target.typ.Name()))
			}
			sp.Type.Destruct(tmp)
		}
		if err != nil {
			return err
		}
		if err := r.LeaveSkipBlock(); err != nil {
			return err
		}
	}
	return r.LeaveCompound()
}

func (c *ClassType) WriteText(node TextNode, ptr unsafe.Pointer) error {
	for _, p := range c.serialized() {
		if err := p.typ.WriteText(node.AddChild(p.name), p.Data(ptr)); err != nil {
			return err
		}
	}
	return nil
}

func (c *ClassType) ReadText(node TextNode, ptr unsafe.Pointer) error {
	for _, p := range c.serialized() {
		child, ok := node.Child(p.name)
		if !ok {
			continue
		}
		if err := p.typ.ReadText(child, p.Data(ptr)); err != nil {
			return err
		}
	}
	return nil
}

func (c *ClassType) PrintToText(b *strings.Builder, ptr unsafe.Pointer) {
	b.WriteByte('(')
	for i, p := range c.serialized() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.name)
		b.WriteByte('=')
		if quotedText(p.typ) {
			b.WriteString(strconv.Quote(Print(p.typ, p.Data(ptr))))
		} else {
			p.typ.PrintToText(b, p.Data(ptr))
		}
	}
	b.WriteByte(')')
}

func (c *ClassType) ParseFromString(s string, ptr unsafe.Pointer) bool {
	parts, ok := splitList(s, '(', ')')
	if !ok {
		return false
	}
	for _, part := range parts {
		name, val, ok := strings.Cut(part, "=")
		if !ok {
			return false
		}
		p := c.byName[strings.TrimSpace(name)]
		if p == nil {
			return false
		}
		val = strings.TrimSpace(val)
		if quotedText(p.typ) && strings.HasPrefix(val, `"`) {
			unq, err := strconv.Unquote(val)
			if err != nil {
				return false
			}
			val = unq
		}
		if !p.typ.ParseFromString(val, p.Data(ptr)) {
			return false
		}
	}
	return true
}

// member resolves the leading property segment of p.
func (c *ClassType) member(p string) (*Property, string, error) {
	name, rest, ok := ParsePropertyName(p)
	if !ok {
		if _, _, isIndex := ParseArrayIndex(p); isIndex {
			return nil, "", noSuchMember(p, c.name)
		}
		return nil, "", errors.MalformedPath(p, "expected .name")
	}
	prop := c.byName[name]
	if prop == nil {
		return nil, "", noSuchMember(p, c.name)
	}
	return prop, rest, nil
}

func (c *ClassType) DescribeDataView(p string, ptr unsafe.Pointer, info *DataViewInfo) error {
	if p == "" {
		info.describe(c)
		info.Members = info.Members[:0]
		for _, prop := range c.props {
			info.Members = append(info.Members, prop.name)
		}
		return nil
	}
	prop, rest, err := c.member(p)
	if err != nil {
		return err
	}
	info.Property = prop
	if prop.ReadOnly() {
		info.Flags |= ViewReadOnly
	}
	return prop.typ.DescribeDataView(rest, prop.Data(ptr), info)
}

func (c *ClassType) ReadDataView(p string, ptr unsafe.Pointer, dst unsafe.Pointer, dstType Type) error {
	if p == "" {
		return c.typeBase.ReadDataView(p, ptr, dst, dstType)
	}
	prop, rest, err := c.member(p)
	if err != nil {
		return err
	}
	return prop.typ.ReadDataView(rest, prop.Data(ptr), dst, dstType)
}

func (c *ClassType) WriteDataView(p string, ptr unsafe.Pointer, src unsafe.Pointer, srcType Type) error {
	if p == "" {
		return c.typeBase.WriteDataView(p, ptr, src, srcType)
	}
	prop, rest, err := c.member(p)
	if err != nil {
		return err
	}
	if prop.ReadOnly() {
		return readOnlyMember(p, prop)
	}
	return prop.typ.WriteDataView(rest, prop.Data(ptr), src, srcType)
}

// Classes returns every registered class sorted by name.
func (r *Registry) Classes() []*ClassType {
	var out []*ClassType
	for _, t := range r.Types() {
		if c, ok := t.(*ClassType); ok {
			out = append(out, c)
		}
	}
	return out
}
