package convert

import (
	"math"
	"unsafe"

	"github.com/wippyai/typestream/rtti"
)

// toBool stores whether the source differs from the zero value of its
// type. Handles are true when they point to a live object.
func toBool(src unsafe.Pointer, srcType rtti.Type, dst unsafe.Pointer, dstType rtti.Type) bool {
	var v bool
	switch t := srcType.(type) {
	case *rtti.HandleType:
		v = !t.IsPointingToNull(src)
	case *rtti.ClassRefType:
		v = (*rtti.ClassRef)(src).Class != nil
	case *rtti.ResourceRefType:
		v = !(*rtti.ResourceRef)(src).IsNull()
	default:
		zero := rtti.New(srcType)
		v = !srcType.Compare(src, zero)
		srcType.Destruct(zero)
	}
	*(*bool)(dst) = v
	return true
}

func toString(src unsafe.Pointer, srcType rtti.Type, dst unsafe.Pointer, dstType rtti.Type) bool {
	s := rtti.Print(srcType, src)
	if dstType.Traits().ConvClass == rtti.ConvName {
		*(*rtti.Name)(dst) = rtti.Name(s)
	} else {
		*(*string)(dst) = s
	}
	return true
}

// parseInto parses s as dstType into a scratch value and copies it to dst
// only on success.
func parseInto(s string, dst unsafe.Pointer, dstType rtti.Type) bool {
	tmp := rtti.New(dstType)
	defer dstType.Destruct(tmp)
	if !dstType.ParseFromString(s, tmp) {
		return false
	}
	dstType.Copy(dst, tmp)
	return true
}

func textOf(ptr unsafe.Pointer, t rtti.Type) string {
	if t.Traits().ConvClass == rtti.ConvName {
		return string(*(*rtti.Name)(ptr))
	}
	return *(*string)(ptr)
}

func fromString(src unsafe.Pointer, srcType rtti.Type, dst unsafe.Pointer, dstType rtti.Type) bool {
	return parseInto(textOf(src, srcType), dst, dstType)
}

func stringToName(src unsafe.Pointer, _ rtti.Type, dst unsafe.Pointer, _ rtti.Type) bool {
	*(*rtti.Name)(dst) = rtti.Name(*(*string)(src))
	return true
}

func nameToString(src unsafe.Pointer, _ rtti.Type, dst unsafe.Pointer, _ rtti.Type) bool {
	*(*string)(dst) = string(*(*rtti.Name)(src))
	return true
}

func stringToString(src unsafe.Pointer, _ rtti.Type, dst unsafe.Pointer, _ rtti.Type) bool {
	*(*string)(dst) = *(*string)(src)
	return true
}

func nameToName(src unsafe.Pointer, _ rtti.Type, dst unsafe.Pointer, _ rtti.Type) bool {
	*(*rtti.Name)(dst) = *(*rtti.Name)(src)
	return true
}

func enumOf(t rtti.Type) *rtti.EnumType {
	e, _ := t.(*rtti.EnumType)
	return e
}

func enumToNumber(src unsafe.Pointer, srcType rtti.Type, dst unsafe.Pointer, dstType rtti.Type) bool {
	e := enumOf(srcType)
	if e == nil {
		return false
	}
	return storeScalar(dstType.Traits().ConvClass, dst, scalar{i: e.ToNumber(src)})
}

func enumToBool(src unsafe.Pointer, srcType rtti.Type, dst unsafe.Pointer, _ rtti.Type) bool {
	e := enumOf(srcType)
	if e == nil {
		return false
	}
	*(*bool)(dst) = e.ToNumber(src) != 0
	return true
}

// numberToEnum stores the source number when it fits the enum's storage;
// the value need not name an entry.
func numberToEnum(src unsafe.Pointer, srcType rtti.Type, dst unsafe.Pointer, dstType rtti.Type) bool {
	e := enumOf(dstType)
	if e == nil {
		return false
	}
	s := loadScalar(srcType.Traits().ConvClass, src)
	var v int64
	switch s.kind {
	case unsigned:
		if s.u > math.MaxInt64 {
			return false
		}
		v = int64(s.u)
	case floating:
		if math.IsNaN(s.f) || s.f != math.Trunc(s.f) || s.f < math.MinInt64 || s.f >= math.MaxInt64 {
			return false
		}
		v = int64(s.f)
	default:
		v = s.i
	}
	return e.FromNumber(v, dst)
}

func enumToString(src unsafe.Pointer, srcType rtti.Type, dst unsafe.Pointer, _ rtti.Type) bool {
	e := enumOf(srcType)
	if e == nil {
		return false
	}
	*(*string)(dst) = e.ToString(src)
	return true
}

func enumToName(src unsafe.Pointer, srcType rtti.Type, dst unsafe.Pointer, _ rtti.Type) bool {
	e := enumOf(srcType)
	if e == nil {
		return false
	}
	*(*rtti.Name)(dst) = e.ToStringID(src)
	return true
}

func stringToEnum(src unsafe.Pointer, _ rtti.Type, dst unsafe.Pointer, dstType rtti.Type) bool {
	return parseInto(*(*string)(src), dst, dstType)
}

func nameToEnum(src unsafe.Pointer, _ rtti.Type, dst unsafe.Pointer, dstType rtti.Type) bool {
	e := enumOf(dstType)
	if e == nil {
		return false
	}
	return e.FromStringID(*(*rtti.Name)(src), dst)
}

// enumToEnum matches entries by name, falling back to the raw number when
// the source value has no name.
func enumToEnum(src unsafe.Pointer, srcType rtti.Type, dst unsafe.Pointer, dstType rtti.Type) bool {
	se, de := enumOf(srcType), enumOf(dstType)
	if se == nil || de == nil {
		return false
	}
	n := se.ToNumber(src)
	if name, ok := se.FindName(n); ok {
		return de.FromString(name, dst)
	}
	return de.FromNumber(n, dst)
}
