package schema

import (
	"io"
	"os"
	"reflect"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/typestream/errors"
	"github.com/wippyai/typestream/rtti"
)

// Schema is the YAML description of enums and classes.
type Schema struct {
	Enums   []Enum  `yaml:"enums"`
	Classes []Class `yaml:"classes"`
}

// Enum declares an enum type. Entries without a value take the previous
// value plus one, starting at zero.
type Enum struct {
	Name    string      `yaml:"name"`
	Storage string      `yaml:"storage"`
	Entries []EnumEntry `yaml:"entries"`
}

type EnumEntry struct {
	Name  string `yaml:"name"`
	Value *int64 `yaml:"value"`
}

// Class declares a class built at runtime.
type Class struct {
	Name       string     `yaml:"name"`
	Parent     string     `yaml:"parent"`
	Properties []Property `yaml:"properties"`
}

type Property struct {
	Name      string   `yaml:"name"`
	Type      string   `yaml:"type"`
	Category  string   `yaml:"category"`
	Min       *float64 `yaml:"min"`
	Max       *float64 `yaml:"max"`
	ReadOnly  bool     `yaml:"readonly"`
	Transient bool     `yaml:"transient"`
}

var enumStorage = map[string]reflect.Type{
	"":       reflect.TypeFor[int32](),
	"int8":   reflect.TypeFor[int8](),
	"int16":  reflect.TypeFor[int16](),
	"int32":  reflect.TypeFor[int32](),
	"int64":  reflect.TypeFor[int64](),
	"uint8":  reflect.TypeFor[uint8](),
	"uint16": reflect.TypeFor[uint16](),
	"uint32": reflect.TypeFor[uint32](),
	"uint64": reflect.TypeFor[uint64](),
}

// Parse decodes a YAML schema. Unknown keys are rejected.
func Parse(r io.Reader) (*Schema, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var s Schema
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return nil, errors.ParseFailed("yaml schema", err)
	}
	return &s, nil
}

// LoadYAML parses a schema and registers its types with reg.
func LoadYAML(reg *rtti.Registry, r io.Reader) (*Schema, error) {
	s, err := Parse(r)
	if err != nil {
		return nil, err
	}
	return s, s.Apply(reg)
}

// LoadYAMLFile is LoadYAML over the file at path.
func LoadYAMLFile(reg *rtti.Registry, path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Load("opening schema "+path, err)
	}
	defer f.Close()
	return LoadYAML(reg, f)
}

// Apply registers the enums, then declares every class and defines each
// once its parent and the classes it embeds by value are defined. Parents
// must be registered already or appear earlier in the schema.
func (s *Schema) Apply(reg *rtti.Registry) error {
	for _, e := range s.Enums {
		if err := s.applyEnum(reg, e); err != nil {
			return err
		}
	}

	declared := make(map[string]*rtti.ClassType, len(s.Classes))
	for _, c := range s.Classes {
		if _, dup := declared[c.Name]; dup {
			return errors.Duplicate(errors.PhaseRegister, "class", c.Name)
		}
		var parent *rtti.ClassType
		if c.Parent != "" {
			p, ok := declared[c.Parent]
			if !ok {
				var err error
				if p, err = reg.FindClass(c.Parent); err != nil {
					return errors.NotFound(errors.PhaseRegister, "parent class", c.Parent)
				}
			}
			parent = p
		}
		ct, err := reg.DeclareClass(c.Name, parent)
		if err != nil {
			return err
		}
		declared[c.Name] = ct
	}

	pending := append([]Class(nil), s.Classes...)
	for len(pending) > 0 {
		var next []Class
		for _, c := range pending {
			if !ready(c, declared) {
				next = append(next, c)
				continue
			}
			if err := defineClass(reg, declared[c.Name], c); err != nil {
				return err
			}
		}
		if len(next) == len(pending) {
			names := make([]string, len(next))
			for i, c := range next {
				names[i] = c.Name
			}
			return errors.Registration(strings.Join(names, ", "), "cyclic value dependencies between classes")
		}
		pending = next
	}
	Logger().Debug("schema applied",
		zap.Int("enums", len(s.Enums)),
		zap.Int("classes", len(s.Classes)))
	return nil
}

func (s *Schema) applyEnum(reg *rtti.Registry, e Enum) error {
	storage, ok := enumStorage[e.Storage]
	if !ok {
		return errors.Registration(e.Name, "unknown enum storage "+e.Storage)
	}
	et, err := reg.RegisterEnum(e.Name, storage)
	if err != nil {
		return err
	}
	next := int64(0)
	for _, entry := range e.Entries {
		v := next
		if entry.Value != nil {
			v = *entry.Value
		}
		if err := et.Add(entry.Name, v); err != nil {
			return err
		}
		next = v + 1
	}
	return nil
}

// ready reports whether the parent and every by-value class of c are
// defined. Handles and references only need the class declared.
func ready(c Class, declared map[string]*rtti.ClassType) bool {
	if p, ok := declared[c.Parent]; ok && !p.Defined() {
		return false
	}
	for _, p := range c.Properties {
		if dep, ok := declared[valueElement(p.Type)]; ok && !dep.Defined() {
			return false
		}
	}
	return true
}

// valueElement strips array wrappers from a type name, leaving the type
// stored by value.
func valueElement(name string) string {
	for {
		switch {
		case strings.HasPrefix(name, "array<") && strings.HasSuffix(name, ">"):
			name = name[len("array<") : len(name)-1]
		case strings.HasSuffix(name, "]") && strings.LastIndexByte(name, '[') > 0:
			name = name[:strings.LastIndexByte(name, '[')]
		default:
			return name
		}
	}
}

func defineClass(reg *rtti.Registry, ct *rtti.ClassType, c Class) error {
	fields := make([]rtti.FieldDef, len(c.Properties))
	for i, p := range c.Properties {
		t, err := reg.FindType(p.Type)
		if err != nil {
			return errors.New(errors.PhaseRegister, errors.KindRegistration).
				Type(c.Name).
				Detail("property %s", p.Name).
				Cause(err).
				Build()
		}
		f := rtti.FieldDef{Type: t, Name: p.Name, Category: p.Category}
		if p.Min != nil || p.Max != nil {
			f.HasRange = true
			if p.Min != nil {
				f.Min = *p.Min
			}
			if p.Max != nil {
				f.Max = *p.Max
			}
		}
		if p.ReadOnly {
			f.Flags |= rtti.PropReadOnly
		}
		if p.Transient {
			f.Flags |= rtti.PropTransient
		}
		fields[i] = f
	}
	return ct.Define(fields)
}
