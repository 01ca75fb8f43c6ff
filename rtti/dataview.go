package rtti

import (
	"unsafe"

	"github.com/wippyai/typestream/errors"
	"github.com/wippyai/typestream/rtti/internal/path"
)

// DataViewFlags describe the value a data view path resolved to.
type DataViewFlags uint8

const (
	ViewReadOnly DataViewFlags = 1 << iota
	ViewArray
	ViewClass
	ViewHandle
	ViewNull
)

// DataViewInfo is filled by DescribeDataView.
type DataViewInfo struct {
	Type     Type
	Property *Property
	Members  []string
	Size     int
	Flags    DataViewFlags
}

func (i *DataViewInfo) describe(t Type) {
	i.Type = t
	switch t.MetaKind() {
	case MetaArray:
		i.Flags |= ViewArray
	case MetaClass:
		i.Flags |= ViewClass
	case MetaHandle:
		i.Flags |= ViewHandle
	}
}

// PathSegment is one parsed step of a data view path.
type PathSegment = path.Segment

// SplitPath parses a data view path such as ".transform.position[1]".
func SplitPath(p string) ([]PathSegment, error) {
	segs, ok := path.Split(p)
	if !ok {
		return nil, errors.MalformedPath(p, "expected .name or [index] segments")
	}
	return segs, nil
}

// ParsePropertyName consumes one property segment of a data view path.
func ParsePropertyName(p string) (name, rest string, ok bool) {
	return path.ParsePropertyName(p)
}

// ParseArrayIndex consumes one "[digits]" segment.
func ParseArrayIndex(p string) (index int, rest string, ok bool) {
	return path.ParseArrayIndex(p)
}

// ExtractParentPath splits off the last segment of p.
func ExtractParentPath(p string) (parent, child string, ok bool) {
	return path.ExtractParentPath(p)
}

func noSuchMember(p, typeName string) error {
	return errors.New(errors.PhaseParse, errors.KindUnknownProperty).
		Path(p).
		Type(typeName).
		Detail("no such member").
		Build()
}

func readOnlyMember(p string, prop *Property) error {
	return errors.New(errors.PhaseConvert, errors.KindInvalidInput).
		Path(p).
		Type(prop.Type().Name()).
		Detail("property %s is read-only", prop).
		Build()
}

// Describe resolves p inside the value of t at ptr. The whole path is
// validated before any memory is touched.
func Describe(t Type, ptr unsafe.Pointer, p string) (DataViewInfo, error) {
	var info DataViewInfo
	if _, err := SplitPath(p); err != nil {
		return info, err
	}
	err := t.DescribeDataView(p, ptr, &info)
	return info, err
}

// ReadPath copies the value at p into dst, converting it to dstType.
func ReadPath(t Type, ptr unsafe.Pointer, p string, dst unsafe.Pointer, dstType Type) error {
	if _, err := SplitPath(p); err != nil {
		return err
	}
	return t.ReadDataView(p, ptr, dst, dstType)
}

// WritePath stores src, converted from srcType, at p.
func WritePath(t Type, ptr unsafe.Pointer, p string, src unsafe.Pointer, srcType Type) error {
	if _, err := SplitPath(p); err != nil {
		return err
	}
	return t.WriteDataView(p, ptr, src, srcType)
}
