package rtti

import (
	"errors"
	"reflect"
	"testing"

	tserrors "github.com/wippyai/typestream/errors"
)

type testColor uint8

const (
	colorRed testColor = iota
	colorGreen
	colorBlue
)

func newColorEnum(t *testing.T, reg *Registry) *EnumType {
	t.Helper()
	e, err := reg.RegisterEnum("Color", reflect.TypeFor[testColor]())
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range []EnumEntry{{"Red", 0}, {"Green", 1}, {"Blue", 2}} {
		if err := e.Add(entry.Name, entry.Value); err != nil {
			t.Fatal(err)
		}
	}
	return e
}

func TestEnumClosure(t *testing.T) {
	reg := NewRegistry()
	e := newColorEnum(t, reg)

	for _, entry := range e.Entries() {
		v, ok := e.FindValue(entry.Name)
		if !ok || v != entry.Value {
			t.Errorf("FindValue(%q) = %d, %v", entry.Name, v, ok)
		}
		name, ok := e.FindName(entry.Value)
		if !ok || name != entry.Name {
			t.Errorf("FindName(%d) = %q, %v", entry.Value, name, ok)
		}
	}
	if e.Len() != 3 || e.Min() != 0 || e.Max() != 2 {
		t.Errorf("Len/Min/Max = %d/%d/%d", e.Len(), e.Min(), e.Max())
	}
}

func TestEnumAddErrors(t *testing.T) {
	reg := NewRegistry()
	e := newColorEnum(t, reg)

	tests := []struct {
		name  string
		entry string
		value int64
		kind  tserrors.Kind
	}{
		{"duplicate name", "Red", 9, tserrors.KindDuplicateEntry},
		{"duplicate value", "Crimson", 0, tserrors.KindDuplicateEntry},
		{"empty name", "", 5, tserrors.KindInvalidInput},
		{"overflow", "Huge", 256, tserrors.KindOutOfBounds},
		{"negative unsigned", "Neg", -1, tserrors.KindOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Add(tt.entry, tt.value)
			if !errors.Is(err, tserrors.OfKind(tt.kind)) {
				t.Errorf("Add(%q, %d) = %v, want kind %s", tt.entry, tt.value, err, tt.kind)
			}
		})
	}

	reg.Seal()
	if err := e.Add("Late", 7); !errors.Is(err, tserrors.OfKind(tserrors.KindRegistrySealed)) {
		t.Errorf("Add after Seal = %v", err)
	}
	if err := e.Clear(); err == nil {
		t.Error("Clear after Seal succeeded")
	}
}

func TestEnumStrings(t *testing.T) {
	reg := NewRegistry()
	e := newColorEnum(t, reg)

	c := colorBlue
	if got := e.ToString(Ptr(&c)); got != "Blue" {
		t.Errorf("ToString = %q", got)
	}
	c = 42
	if got := e.ToString(Ptr(&c)); got != "42" {
		t.Errorf("ToString(unnamed) = %q", got)
	}
	if !e.FromStringID("Green", Ptr(&c)) || c != colorGreen {
		t.Errorf("FromStringID(Green) -> %d", c)
	}
	if e.FromString("Purple", Ptr(&c)) || c != colorGreen {
		t.Error("FromString(unknown) changed the value")
	}
	if !e.ParseFromString("7", Ptr(&c)) || c != 7 {
		t.Errorf("ParseFromString(7) -> %d", c)
	}
	if e.ParseFromString("300", Ptr(&c)) {
		t.Error("ParseFromString accepted an out-of-range number")
	}
}

func TestEnumBinary(t *testing.T) {
	reg := NewRegistry()
	e := newColorEnum(t, reg)

	t.Run("named", func(t *testing.T) {
		src, dst := colorBlue, colorRed
		var s eventStream
		if err := e.WriteBinary(&s, Ptr(&src)); err != nil {
			t.Fatal(err)
		}
		if s.events[0].name != "Blue" {
			t.Errorf("wrote %q", s.events[0].name)
		}
		if err := e.ReadBinary(&s, Ptr(&dst)); err != nil || dst != colorBlue {
			t.Errorf("ReadBinary = %d, %v", dst, err)
		}
	})

	t.Run("unnamed value written as number", func(t *testing.T) {
		src, dst := testColor(9), colorRed
		var s eventStream
		_ = e.WriteBinary(&s, Ptr(&src))
		if s.events[0].name != "9" {
			t.Errorf("wrote %q", s.events[0].name)
		}
		if err := e.ReadBinary(&s, Ptr(&dst)); err != nil || dst != 9 {
			t.Errorf("ReadBinary = %d, %v", dst, err)
		}
	})

	t.Run("unknown name leaves value", func(t *testing.T) {
		dst := colorGreen
		s := eventStream{events: []event{{kind: evName, name: "Mauve"}}}
		if err := e.ReadBinary(&s, Ptr(&dst)); err != nil || dst != colorGreen {
			t.Errorf("ReadBinary = %d, %v", dst, err)
		}
	})
}
