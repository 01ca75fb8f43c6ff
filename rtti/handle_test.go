package rtti

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
)

type testAsset struct {
	ObjectBase
	ID      int32 `prop:"id"`
	dropped *int
}

func (a *testAsset) Drop() {
	if a.dropped != nil {
		*a.dropped++
	}
}

type testTexture struct {
	testAsset
	Width int32 `prop:"width"`
}

type testSound struct {
	ObjectBase
	Length float32 `prop:"length"`
}

type handleFixture struct {
	reg     *Registry
	asset   *ClassType
	texture *ClassType
	sound   *ClassType
}

func newHandleFixture(t *testing.T) handleFixture {
	t.Helper()
	reg := NewRegistry()
	asset, err := reg.RegisterClass("Asset", reflect.TypeFor[testAsset](), ClassOptions{})
	if err != nil {
		t.Fatal(err)
	}
	texture, err := reg.RegisterClass("Texture", reflect.TypeFor[testTexture](), ClassOptions{Parent: asset})
	if err != nil {
		t.Fatal(err)
	}
	sound, err := reg.RegisterClass("Sound", reflect.TypeFor[testSound](), ClassOptions{})
	if err != nil {
		t.Fatal(err)
	}
	return handleFixture{reg: reg, asset: asset, texture: texture, sound: sound}
}

func (f handleFixture) create(t *testing.T, c *ClassType) Object {
	t.Helper()
	obj, err := c.Create()
	if err != nil {
		t.Fatal(err)
	}
	return obj
}

func TestStrongWeakLifetime(t *testing.T) {
	f := newHandleFixture(t)
	obj := f.create(t, f.asset).(*testAsset)
	drops := 0
	obj.dropped = &drops

	s1 := NewStrong(obj)
	s2 := s1.Clone()
	w := s1.Weak()
	if obj.StrongCount() != 2 {
		t.Fatalf("StrongCount = %d", obj.StrongCount())
	}

	s1.Reset()
	if w.Expired() || drops != 0 {
		t.Fatal("object expired with a strong handle left")
	}
	s2.Reset()
	if !w.Expired() || w.Get() != nil {
		t.Error("weak handle still resolves after last release")
	}
	if drops != 1 {
		t.Errorf("Drop called %d times", drops)
	}

	revived := w.Lock()
	if !revived.IsNull() {
		t.Error("Lock revived an expired object")
	}
	if s := NewStrong(obj); !s.IsNull() {
		t.Error("NewStrong acquired an expired object")
	}
}

func TestHandleTypes(t *testing.T) {
	f := newHandleFixture(t)
	ptrAsset := f.reg.StrongHandleOf(f.asset)
	weakAsset := f.reg.WeakHandleOf(f.asset)

	if ptrAsset.Name() != "ptr<Asset>" || weakAsset.Name() != "weak<Asset>" {
		t.Errorf("names %s %s", ptrAsset.Name(), weakAsset.Name())
	}
	if !weakAsset.Weak() || ptrAsset.Weak() {
		t.Error("Weak() flags swapped")
	}
	if !ptrAsset.Traits().RequiresDestructor {
		t.Error("strong handle does not require destruction")
	}

	obj := f.create(t, f.texture)
	var a, b Strong
	ptrAsset.WritePointedObject(Ptr(&a), obj)
	ptrAsset.Copy(Ptr(&b), Ptr(&a))
	if !ptrAsset.Compare(Ptr(&a), Ptr(&b)) {
		t.Error("copied handles differ")
	}
	if obj.objectBase().StrongCount() != 2 {
		t.Errorf("StrongCount = %d after copy", obj.objectBase().StrongCount())
	}
	ptrAsset.Destruct(Ptr(&a))
	ptrAsset.Destruct(Ptr(&b))
	if !obj.objectBase().Expired() {
		t.Error("object alive after destructing both handles")
	}
	if !ptrAsset.IsPointingToNull(Ptr(&a)) {
		t.Error("destructed handle not null")
	}
}

func TestCastHandle(t *testing.T) {
	f := newHandleFixture(t)
	ptrAsset := f.reg.StrongHandleOf(f.asset)
	ptrTexture := f.reg.StrongHandleOf(f.texture)
	weakTexture := f.reg.WeakHandleOf(f.texture)
	ptrSound := f.reg.StrongHandleOf(f.sound)
	i32, _ := f.reg.Lookup("int32")

	tex := f.create(t, f.texture)
	snd := f.create(t, f.sound)

	t.Run("upcast", func(t *testing.T) {
		src, dst := NewStrong(tex), Strong{}
		defer src.Reset()
		if !CastHandle(Ptr(&src), ptrTexture, Ptr(&dst), ptrAsset) || dst.Get() != tex {
			t.Error("upcast failed")
		}
		dst.Reset()
	})

	t.Run("downcast to runtime class", func(t *testing.T) {
		src, dst := NewStrong(tex), Strong{}
		defer src.Reset()
		if !CastHandle(Ptr(&src), ptrAsset, Ptr(&dst), ptrTexture) {
			t.Error("downcast of a texture failed")
		}
		dst.Reset()
	})

	t.Run("incompatible leaves dst untouched", func(t *testing.T) {
		src := NewStrong(snd)
		defer src.Reset()
		dst := NewStrong(tex)
		defer dst.Reset()
		if CastHandle(Ptr(&src), ptrSound, Ptr(&dst), ptrTexture) {
			t.Fatal("cast to unrelated class succeeded")
		}
		if dst.Get() != tex {
			t.Error("dst changed by failed cast")
		}
	})

	t.Run("strong to weak", func(t *testing.T) {
		src := NewStrong(tex)
		defer src.Reset()
		var dst Weak
		if !CastHandle(Ptr(&src), ptrTexture, Ptr(&dst), weakTexture) || dst.Get() != tex {
			t.Error("strong to weak failed")
		}
	})

	t.Run("non-handle types", func(t *testing.T) {
		var n int32
		src := NewStrong(tex)
		defer src.Reset()
		if CastHandle(Ptr(&src), ptrTexture, Ptr(&n), i32) {
			t.Error("cast to int32 succeeded")
		}
	})
}

func TestHandleBinaryIncompatibleReadsNull(t *testing.T) {
	f := newHandleFixture(t)
	ptrTexture := f.reg.StrongHandleOf(f.texture)
	snd := f.create(t, f.sound)

	s := eventStream{events: []event{{kind: evPointer, obj: snd}}}
	dst := NewStrong(f.create(t, f.texture))
	if err := ptrTexture.ReadBinary(&s, Ptr(&dst)); err != nil {
		t.Fatal(err)
	}
	if !dst.IsNull() {
		t.Error("incompatible pointer not read as null")
	}
}

func TestHandleDataView(t *testing.T) {
	f := newHandleFixture(t)
	ptrTexture := f.reg.StrongHandleOf(f.texture)
	i32, _ := f.reg.Lookup("int32")

	var h Strong
	var out int32
	err := ReadPath(ptrTexture, Ptr(&h), ".width", Ptr(&out), i32)
	if err == nil {
		t.Fatal("read through null handle succeeded")
	}

	tex := f.create(t, f.texture).(*testTexture)
	tex.Width = 64
	h = NewStrong(tex)
	defer h.Reset()
	if err := ReadPath(ptrTexture, Ptr(&h), ".width", Ptr(&out), i32); err != nil || out != 64 {
		t.Errorf("ReadPath = %d, %v", out, err)
	}
	in := int32(128)
	if err := WritePath(ptrTexture, Ptr(&h), ".width", Ptr(&in), i32); err != nil || tex.Width != 128 {
		t.Errorf("WritePath = %d, %v", tex.Width, err)
	}

	info, err := Describe(ptrTexture, Ptr(&h), "")
	if err != nil || info.Flags&ViewHandle == 0 {
		t.Errorf("Describe = %+v, %v", info, err)
	}
}

func TestResourceRefText(t *testing.T) {
	f := newHandleFixture(t)
	clip, err := f.reg.DeclareClass("audio:Clip", nil)
	if err != nil {
		t.Fatal(err)
	}
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	anyRef, err := f.reg.FindType("ref")
	if err != nil {
		t.Fatal(err)
	}
	assetRef := f.reg.ResourceRefOf(f.asset)

	tests := []struct {
		name string
		typ  Type
		text string
		want ResourceRef
		ok   bool
	}{
		{"bare id", anyRef, id.String(), ResourceRef{ID: id}, true},
		{"urn id", anyRef, "urn:uuid:" + id.String(), ResourceRef{ID: id}, true},
		{"class and id", anyRef, "Texture:" + id.String(), ResourceRef{Class: f.texture, ID: id}, true},
		{"class and urn id", anyRef, "Texture:urn:uuid:" + id.String(), ResourceRef{Class: f.texture, ID: id}, true},
		{"class name with colon", anyRef, "audio:Clip:" + id.String(), ResourceRef{Class: clip, ID: id}, true},
		{"typed default class", assetRef, id.String(), ResourceRef{Class: f.asset, ID: id}, true},
		{"subclass accepted", assetRef, "Texture:" + id.String(), ResourceRef{Class: f.texture, ID: id}, true},
		{"null", anyRef, "null", ResourceRef{}, true},
		{"unrelated class", assetRef, "Sound:" + id.String(), ResourceRef{}, false},
		{"unknown class", anyRef, "Nope:" + id.String(), ResourceRef{}, false},
		{"bad id", anyRef, "Texture:not-a-uuid", ResourceRef{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got ResourceRef
			if ok := tt.typ.ParseFromString(tt.text, Ptr(&got)); ok != tt.ok {
				t.Fatalf("ParseFromString(%q) = %v", tt.text, ok)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	ref := ResourceRef{Class: clip, ID: id}
	var back ResourceRef
	if !anyRef.ParseFromString(Print(anyRef, Ptr(&ref)), Ptr(&back)) || back != ref {
		t.Errorf("round trip = %v", back)
	}
}
