package convert

import (
	"math"
	"unsafe"

	"github.com/wippyai/typestream/rtti"
)

// scalar is a numeric value widened to one of three representations.
type scalar struct {
	i    int64
	u    uint64
	f    float64
	kind scalarKind
}

type scalarKind uint8

const (
	signed scalarKind = iota
	unsigned
	floating
)

func loadScalar(c rtti.ConversionClass, ptr unsafe.Pointer) scalar {
	switch c {
	case rtti.ConvInt8:
		return scalar{i: int64(*(*int8)(ptr))}
	case rtti.ConvInt16:
		return scalar{i: int64(*(*int16)(ptr))}
	case rtti.ConvInt32:
		return scalar{i: int64(*(*int32)(ptr))}
	case rtti.ConvInt64:
		return scalar{i: *(*int64)(ptr)}
	case rtti.ConvUint8:
		return scalar{u: uint64(*(*uint8)(ptr)), kind: unsigned}
	case rtti.ConvUint16:
		return scalar{u: uint64(*(*uint16)(ptr)), kind: unsigned}
	case rtti.ConvUint32:
		return scalar{u: uint64(*(*uint32)(ptr)), kind: unsigned}
	case rtti.ConvUint64:
		return scalar{u: *(*uint64)(ptr), kind: unsigned}
	case rtti.ConvFloat32:
		return scalar{f: float64(*(*float32)(ptr)), kind: floating}
	case rtti.ConvFloat64:
		return scalar{f: *(*float64)(ptr), kind: floating}
	case rtti.ConvBool:
		if *(*bool)(ptr) {
			return scalar{i: 1}
		}
		return scalar{}
	}
	return scalar{}
}

// isZero reports whether s equals the zero value of its source type.
func (s scalar) isZero() bool {
	switch s.kind {
	case unsigned:
		return s.u == 0
	case floating:
		return s.f == 0
	}
	return s.i == 0
}

// toInt saturates s into [lo, hi].
func (s scalar) toInt(lo, hi int64) int64 {
	switch s.kind {
	case unsigned:
		if s.u > uint64(hi) {
			return hi
		}
		return int64(s.u)
	case floating:
		switch {
		case math.IsNaN(s.f):
			return 0
		case s.f >= float64(hi):
			return hi
		case s.f <= float64(lo):
			return lo
		}
		return int64(s.f)
	}
	return min(max(s.i, lo), hi)
}

// toUint saturates s into [0, hi].
func (s scalar) toUint(hi uint64) uint64 {
	switch s.kind {
	case signed:
		if s.i < 0 {
			return 0
		}
		return min(uint64(s.i), hi)
	case floating:
		switch {
		case math.IsNaN(s.f), s.f <= 0:
			return 0
		case s.f >= float64(hi):
			return hi
		}
		return uint64(s.f)
	}
	return min(s.u, hi)
}

func (s scalar) toFloat() float64 {
	switch s.kind {
	case signed:
		return float64(s.i)
	case unsigned:
		return float64(s.u)
	}
	return s.f
}

// storeScalar writes s into the numeric or bool destination class c,
// saturating at the destination's range. Integer destinations truncate
// floats toward zero and store NaN as 0; float32 clamps finite values to
// ±MaxFloat32.
func storeScalar(c rtti.ConversionClass, ptr unsafe.Pointer, s scalar) bool {
	switch c {
	case rtti.ConvBool:
		*(*bool)(ptr) = !s.isZero()
	case rtti.ConvInt8:
		*(*int8)(ptr) = int8(s.toInt(math.MinInt8, math.MaxInt8))
	case rtti.ConvInt16:
		*(*int16)(ptr) = int16(s.toInt(math.MinInt16, math.MaxInt16))
	case rtti.ConvInt32:
		*(*int32)(ptr) = int32(s.toInt(math.MinInt32, math.MaxInt32))
	case rtti.ConvInt64:
		*(*int64)(ptr) = s.toInt(math.MinInt64, math.MaxInt64)
	case rtti.ConvUint8:
		*(*uint8)(ptr) = uint8(s.toUint(math.MaxUint8))
	case rtti.ConvUint16:
		*(*uint16)(ptr) = uint16(s.toUint(math.MaxUint16))
	case rtti.ConvUint32:
		*(*uint32)(ptr) = uint32(s.toUint(math.MaxUint32))
	case rtti.ConvUint64:
		*(*uint64)(ptr) = s.toUint(math.MaxUint64)
	case rtti.ConvFloat32:
		f := s.toFloat()
		if !math.IsInf(f, 0) && !math.IsNaN(f) {
			f = min(max(f, -math.MaxFloat32), math.MaxFloat32)
		}
		*(*float32)(ptr) = float32(f)
	case rtti.ConvFloat64:
		*(*float64)(ptr) = s.toFloat()
	default:
		return false
	}
	return true
}

func numeric(src unsafe.Pointer, srcType rtti.Type, dst unsafe.Pointer, dstType rtti.Type) bool {
	return storeScalar(dstType.Traits().ConvClass, dst, loadScalar(srcType.Traits().ConvClass, src))
}
