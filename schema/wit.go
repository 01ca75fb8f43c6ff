package schema

import (
	"fmt"
	"io"
	"reflect"

	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/typestream/errors"
	"github.com/wippyai/typestream/rtti"
)

// witImporter maps named WIT type definitions onto registry types:
// enums and flags become enums, records become classes, lists become
// arrays, options of records become strong handles and aliases resolve to
// their target.
type witImporter struct {
	reg     *rtti.Registry
	classes map[*wit.TypeDef]*rtti.ClassType
	types   map[*wit.TypeDef]rtti.Type
}

// ImportWITJSON decodes a WIT package in its JSON form and imports its
// named type definitions.
func ImportWITJSON(reg *rtti.Registry, r io.Reader) error {
	res, err := wit.DecodeJSON(r)
	if err != nil {
		return errors.ParseFailed("wit json", err)
	}
	return ImportWIT(reg, res.TypeDefs)
}

// ImportWIT registers the named definitions among defs. Anonymous
// definitions are only reachable through the named ones. Definitions of
// kinds with no registry equivalent (variants, results, tuples, resources)
// are skipped.
func ImportWIT(reg *rtti.Registry, defs []*wit.TypeDef) error {
	im := &witImporter{
		reg:     reg,
		classes: make(map[*wit.TypeDef]*rtti.ClassType),
		types:   make(map[*wit.TypeDef]rtti.Type),
	}

	for _, td := range defs {
		if td.Name == nil {
			continue
		}
		switch kind := td.Kind.(type) {
		case *wit.Enum:
			names := make([]string, len(kind.Cases))
			for i, c := range kind.Cases {
				names[i] = c.Name
			}
			if err := im.enum(td, names, false); err != nil {
				return err
			}
		case *wit.Flags:
			names := make([]string, len(kind.Flags))
			for i, f := range kind.Flags {
				names[i] = f.Name
			}
			if err := im.enum(td, names, true); err != nil {
				return err
			}
		case *wit.Record:
			c, err := reg.DeclareClass(*td.Name, nil)
			if err != nil {
				return err
			}
			im.classes[td] = c
			im.types[td] = c
		}
	}

	for _, td := range defs {
		if td.Name == nil {
			continue
		}
		if _, ok := td.Kind.(*wit.Record); ok {
			if err := im.define(td, nil); err != nil {
				return err
			}
		}
	}

	for _, td := range defs {
		if td.Name == nil {
			continue
		}
		switch td.Kind.(type) {
		case *wit.Enum, *wit.Flags, *wit.Record:
		default:
			if _, err := im.typeOf(td, nil); err != nil {
				Logger().Warn("wit type definition skipped",
					zap.String("type", *td.Name),
					zap.Error(err))
			}
		}
	}
	return nil
}

// enum registers names as an enum. Flags get one bit per name.
func (im *witImporter) enum(td *wit.TypeDef, names []string, flags bool) error {
	storage := reflect.TypeFor[int32]()
	if flags {
		storage = reflect.TypeFor[uint64]()
		if len(names) > 64 {
			return errors.Unsupported(errors.PhaseRegister, fmt.Sprintf("flags %s with %d members", *td.Name, len(names)))
		}
	}
	et, err := im.reg.RegisterEnum(*td.Name, storage)
	if err != nil {
		return err
	}
	for i, n := range names {
		v := int64(i)
		if flags {
			v = int64(uint64(1) << i)
		}
		if err := et.Add(n, v); err != nil {
			return err
		}
	}
	im.types[td] = et
	return nil
}

// define builds the storage of a record's class, first defining records it
// holds by value. stack detects records that contain themselves.
func (im *witImporter) define(td *wit.TypeDef, stack []*wit.TypeDef) error {
	c := im.classes[td]
	if c.Defined() {
		return nil
	}
	for _, s := range stack {
		if s == td {
			return errors.Registration(c.Name(), "record contains itself by value")
		}
	}
	stack = append(stack, td)

	rec := td.Kind.(*wit.Record)
	fields := make([]rtti.FieldDef, len(rec.Fields))
	for i, f := range rec.Fields {
		t, err := im.typeOf(f.Type, stack)
		if err != nil {
			return errors.New(errors.PhaseRegister, errors.KindRegistration).
				Type(c.Name()).
				Detail("field %s", f.Name).
				Cause(err).
				Build()
		}
		fields[i] = rtti.FieldDef{Type: t, Name: f.Name}
	}
	return c.Define(fields)
}

func (im *witImporter) typeOf(t wit.Type, stack []*wit.TypeDef) (rtti.Type, error) {
	switch t := t.(type) {
	case wit.Bool:
		return im.reg.FindType("bool")
	case wit.U8:
		return im.reg.FindType("uint8")
	case wit.S8:
		return im.reg.FindType("int8")
	case wit.U16:
		return im.reg.FindType("uint16")
	case wit.S16:
		return im.reg.FindType("int16")
	case wit.U32, wit.Char:
		return im.reg.FindType("uint32")
	case wit.S32:
		return im.reg.FindType("int32")
	case wit.U64:
		return im.reg.FindType("uint64")
	case wit.S64:
		return im.reg.FindType("int64")
	case wit.F32:
		return im.reg.FindType("float")
	case wit.F64:
		return im.reg.FindType("double")
	case wit.String:
		return im.reg.FindType("string")
	case *wit.TypeDef:
		return im.typeDef(t, stack)
	}
	return nil, errors.Unsupported(errors.PhaseRegister, fmt.Sprintf("wit type %T", t))
}

func (im *witImporter) typeDef(td *wit.TypeDef, stack []*wit.TypeDef) (rtti.Type, error) {
	if c, ok := im.classes[td]; ok {
		if err := im.define(td, stack); err != nil {
			return nil, err
		}
		return c, nil
	}
	if t, ok := im.types[td]; ok {
		return t, nil
	}

	var (
		t   rtti.Type
		err error
	)
	switch kind := td.Kind.(type) {
	case *wit.List:
		var elem rtti.Type
		if elem, err = im.typeOf(kind.Type, stack); err == nil {
			t, err = im.reg.ArrayOf(elem)
		}
	case *wit.Option:
		inner, ok := kind.Type.(*wit.TypeDef)
		if !ok || im.classes[inner] == nil {
			return nil, errors.Unsupported(errors.PhaseRegister, "option of a non-record type")
		}
		t = im.reg.StrongHandleOf(im.classes[inner])
	case wit.Type:
		t, err = im.typeOf(kind, stack)
	default:
		return nil, errors.Unsupported(errors.PhaseRegister, fmt.Sprintf("wit type %T", kind))
	}
	if err != nil {
		return nil, err
	}
	im.types[td] = t
	return t, nil
}
