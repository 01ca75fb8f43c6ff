package filetables

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/wippyai/typestream/buffer"
	"github.com/wippyai/typestream/errors"
	"github.com/wippyai/typestream/rtti"
	"github.com/wippyai/typestream/wire"
)

func TestMapStringDeterminism(t *testing.T) {
	tb := New()
	if off := tb.MapString(""); off != 0 {
		t.Errorf("empty string at %d", off)
	}
	first := tb.MapString("textures/stone.png")
	size := len(tb.Blob())
	second := tb.MapString("textures/stone.png")
	if first != second {
		t.Errorf("offsets %d and %d", first, second)
	}
	if len(tb.Blob()) != size {
		t.Errorf("blob grew from %d to %d", size, len(tb.Blob()))
	}
	if other := tb.MapString("textures/dirt.png"); other == first || other == 0 {
		t.Errorf("distinct string got offset %d", other)
	}
	for _, off := range []uint32{0, first} {
		if _, err := tb.String(off); err != nil {
			t.Errorf("String(%d): %v", off, err)
		}
	}
	if s, _ := tb.String(first); s != "textures/stone.png" {
		t.Errorf("String = %q", s)
	}
}

func TestCleanPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"a/b", "a/b"},
		{`meshes\rock.mesh`, "meshes/rock.mesh"},
		{"a//b/./c/../d", "a/b/d"},
	}
	for _, tt := range tests {
		if got := CleanPath(tt.in); got != tt.want {
			t.Errorf("CleanPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	tb := New()
	if tb.MapPath(`a\b`) != tb.MapString("a/b") {
		t.Error("MapPath does not share the canonical string")
	}
}

func TestNames(t *testing.T) {
	tb := New()
	a := tb.AddName("Mesh")
	b := tb.AddName("Mesh")
	if a == b || len(tb.Names) != 2 {
		t.Fatalf("duplicate AddName: %d, %d (%d entries)", a, b, len(tb.Names))
	}
	if tb.Names[a].String != tb.Names[b].String {
		t.Error("duplicate names do not share the string")
	}
	if idx, err := tb.MapName("Mesh"); err != nil || idx != b {
		t.Errorf("MapName = %d, %v", idx, err)
	}
	if tb.Names[a].Hash != wire.CRC64String("Mesh") {
		t.Error("name hash")
	}
}

func TestUnmapped(t *testing.T) {
	if DebugAsserts {
		t.Skip("lookups panic with debugasserts")
	}
	tb := New()
	tb.AddProperty("Mesh", "lod", "int32")

	tests := []struct {
		name string
		err  error
		kind errors.Kind
	}{
		{"name", second(tb.MapName("missing")), errors.KindUnmappedReference},
		{"property", second(tb.MapProperty("Mesh", "scale")), errors.KindUnmappedReference},
		{"import", second(tb.MapImport(rtti.ResourceRef{ID: uuid.New()})), errors.KindUnmappedReference},
		{"export patch", tb.PatchExport(3, 0, 0, 0), errors.KindOutOfBounds},
		{"buffer patch", tb.PatchBuffer(0, 0, 0, buffer.CompressionNone), errors.KindOutOfBounds},
		{"string", second(tb.String(999)), errors.KindOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.IsKind(tt.err, tt.kind) {
				t.Errorf("got %v, want %s", tt.err, tt.kind)
			}
		})
	}
}

func second[T any](_ T, err error) error { return err }

func TestProperties(t *testing.T) {
	tb := New()
	i := tb.AddProperty("Mesh", "lod", "int32")
	j := tb.AddProperty("Light", "lod", "float")
	if i == j {
		t.Fatal("same index")
	}
	if tb.Properties[i].Hash != rtti.PropertyHash("Mesh", "lod") {
		t.Error("property hash")
	}
	if tb.Properties[i].Name != tb.Properties[j].Name {
		t.Error("shared property name not interned once")
	}
	if idx, err := tb.MapProperty("Light", "lod"); err != nil || idx != j {
		t.Errorf("MapProperty = %d, %v", idx, err)
	}
}

func TestPatch(t *testing.T) {
	tb := New()
	e := tb.AddExport("Mesh")
	if err := tb.PatchExport(e, 128, 64, 0xfeed); err != nil {
		t.Fatal(err)
	}
	if got := tb.Exports[e]; got.Offset != 128 || got.Size != 64 || got.CRC != 0xfeed {
		t.Errorf("export %+v", got)
	}

	b := tb.AddBuffer(1000, 0xbeef)
	if err := tb.PatchBuffer(b, 512, 300, buffer.CompressionZstd); err != nil {
		t.Fatal(err)
	}
	if got := tb.Buffers[b]; got.Offset != 512 || got.Meta.CompressedSize != 300 || got.Meta.Compression != buffer.CompressionZstd {
		t.Errorf("buffer %+v", got)
	}
	if DebugAsserts {
		return
	}
	if err := tb.PatchBuffer(b, 512, 1001, buffer.CompressionNone); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("oversized patch: %v", err)
	}
}

func populated(t *testing.T) *Tables {
	t.Helper()
	reg := rtti.NewRegistry()
	type tex struct {
		rtti.ObjectBase
		Width int32 `prop:"width"`
	}
	c, err := reg.RegisterClass("Texture", reflect.TypeFor[tex](), rtti.ClassOptions{})
	if err != nil {
		t.Fatal(err)
	}
	tb := New()
	tb.AddName("albedo")
	tb.AddName("normal")
	tb.AddProperty("Texture", "width", "int32")
	ref := rtti.ResourceRef{Class: c, ID: uuid.MustParse("6f1c1a52-43d5-4b45-9d3f-3a8e61f0e4a1")}
	im := tb.AddImport(ref, "textures/stone.tex")
	if got, err := tb.MapImport(ref); err != nil || got != im {
		t.Fatalf("MapImport = %d, %v", got, err)
	}
	tb.PatchExport(tb.AddExport("Texture"), 10, 20, 30)
	tb.PatchBuffer(tb.AddBuffer(100, 7), 40, 60, buffer.CompressionS2)
	return tb
}

func TestCodecRoundTrip(t *testing.T) {
	tb := populated(t)
	var out bytes.Buffer
	w := wire.NewWriter(&out)
	tb.Write(w)
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	r := wire.NewReader(out.Bytes())
	got, err := Read(r)
	if err != nil {
		t.Fatal(err)
	}
	if !r.EOF() {
		t.Errorf("%d bytes left", r.Remaining())
	}
	if !bytes.Equal(got.Blob(), tb.Blob()) {
		t.Error("blob differs")
	}
	for name, pair := range map[string][2]any{
		"names":      {got.Names, tb.Names},
		"properties": {got.Properties, tb.Properties},
		"imports":    {got.Imports, tb.Imports},
		"exports":    {got.Exports, tb.Exports},
		"buffers":    {got.Buffers, tb.Buffers},
	} {
		if !reflect.DeepEqual(pair[0], pair[1]) {
			t.Errorf("%s: got %+v, want %+v", name, pair[0], pair[1])
		}
	}
	if idx, err := got.MapName("normal"); err != nil || idx != 1 {
		t.Errorf("decoded MapName = %d, %v", idx, err)
	}
	if idx, err := got.MapProperty("Texture", "width"); err != nil || idx != 0 {
		t.Errorf("decoded MapProperty = %d, %v", idx, err)
	}
	if id, err := got.ImportID(0); err != nil || id != tb.Imports[0].ID {
		t.Errorf("ImportID = %v, %v", id, err)
	}
	if before := len(got.Blob()); got.MapString("textures/stone.tex") >= uint32(before) {
		t.Error("decoded tables re-interned an existing string")
	}
}

func TestReadCorrupt(t *testing.T) {
	var out bytes.Buffer
	w := wire.NewWriter(&out)
	populated(t).Write(w)
	w.Flush()
	data := out.Bytes()

	t.Run("truncated", func(t *testing.T) {
		if _, err := Read(wire.NewReader(data[:len(data)-3])); err == nil {
			t.Error("truncated tables decoded")
		}
	})
	t.Run("huge count", func(t *testing.T) {
		if _, err := Read(wire.NewReader([]byte{0xff, 0xff, 0x03})); !errors.IsKind(err, errors.KindBufferOverrun) {
			t.Errorf("got %v", err)
		}
	})
}
