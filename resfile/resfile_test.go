package resfile

import (
	"bytes"
	"context"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/wippyai/typestream/buffer"
	_ "github.com/wippyai/typestream/convert"
	"github.com/wippyai/typestream/errors"
	"github.com/wippyai/typestream/rtti"
)

type texture struct {
	rtti.ObjectBase
}

type node struct {
	rtti.ObjectBase
	Label   rtti.Name        `prop:"label"`
	Data    buffer.Buffer    `prop:"data"`
	Blob    rtti.AsyncBuffer `prop:"blob"`
	Texture rtti.ResourceRef `prop:"texture,class=Texture"`
	Next    rtti.Strong      `prop:"next,class=Node"`
}

type nodeV2 struct {
	rtti.ObjectBase
	Label rtti.Name `prop:"label"`
	Count int32     `prop:"count"`
}

var textureID = uuid.MustParse("0b5c7b1e-2f7e-4c53-9a0c-6a4f0f4b8d21")

func registry(t *testing.T) (*rtti.Registry, *rtti.ClassType, *rtti.ClassType) {
	t.Helper()
	reg := rtti.NewRegistry()
	tex, err := reg.RegisterClass("Texture", reflect.TypeFor[texture](), rtti.ClassOptions{})
	if err != nil {
		t.Fatal(err)
	}
	nc, err := reg.RegisterClass("Node", reflect.TypeFor[node](), rtti.ClassOptions{})
	if err != nil {
		t.Fatal(err)
	}
	return reg, nc, tex
}

func newNode(t *testing.T, c *rtti.ClassType) *node {
	t.Helper()
	obj, err := c.Create()
	if err != nil {
		t.Fatal(err)
	}
	return obj.(*node)
}

func save(t *testing.T, objects ...rtti.Object) []byte {
	t.Helper()
	var out bytes.Buffer
	if err := Save(context.Background(), &out, objects, DefaultOptions()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return out.Bytes()
}

// scene builds two nodes: root points at leaf, and both share one async
// buffer payload.
func scene(t *testing.T, nc, tex *rtti.ClassType) (root, leaf *node, data, blob []byte) {
	t.Helper()
	data = bytes.Repeat([]byte("vertex"), 500)
	blob = bytes.Repeat([]byte{1, 2, 3, 4}, 2048)

	root, leaf = newNode(t, nc), newNode(t, nc)
	root.Label = "root"
	root.Data = buffer.New(data)
	root.Blob = rtti.AsyncBuffer{Buffer: buffer.New(blob)}
	root.Texture = rtti.ResourceRef{Class: tex, ID: textureID}
	root.Next = rtti.NewStrong(leaf)
	leaf.Label = "leaf"
	leaf.Blob = rtti.AsyncBuffer{Buffer: buffer.New(blob)}
	return root, leaf, data, blob
}

func TestRoundTrip(t *testing.T) {
	reg, nc, tex := registry(t)
	root, leaf, data, blob := scene(t, nc, tex)
	file := save(t, root, leaf)

	f, err := Open(file)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Tables.Exports) != 2 || f.ExportClass(0) != "Node" {
		t.Fatalf("exports %+v", f.Tables.Exports)
	}
	if len(f.Tables.Buffers) != 1 {
		t.Errorf("%d stored buffers, want the shared payload once", len(f.Tables.Buffers))
	}
	if len(f.Tables.Imports) != 1 || f.Tables.Imports[0].ID != textureID {
		t.Errorf("imports %+v", f.Tables.Imports)
	}

	objs, err := f.Decode(context.Background(), reg, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	gotRoot, gotLeaf := objs[0].(*node), objs[1].(*node)
	if gotRoot.Label != "root" || gotLeaf.Label != "leaf" {
		t.Errorf("labels %q, %q", gotRoot.Label, gotLeaf.Label)
	}
	if !bytes.Equal(gotRoot.Data.Data(), data) {
		t.Error("inline buffer differs")
	}
	for i, n := range []*node{gotRoot, gotLeaf} {
		got, err := n.Blob.Load(context.Background())
		if err != nil {
			t.Fatalf("node %d blob: %v", i, err)
		}
		if !bytes.Equal(got, blob) {
			t.Errorf("node %d blob differs", i)
		}
	}
	if gotRoot.Texture.ID != textureID || gotRoot.Texture.Class != tex {
		t.Errorf("texture %v", gotRoot.Texture)
	}
	if gotRoot.Next.Get() != rtti.Object(gotLeaf) {
		t.Error("pointer does not target the decoded leaf")
	}
	if !gotLeaf.Next.IsNull() {
		t.Error("leaf pointer not null")
	}
}

func TestOpenSource(t *testing.T) {
	_, nc, tex := registry(t)
	root, leaf, _, _ := scene(t, nc, tex)
	f, err := OpenSource(bytes.NewReader(save(t, root, leaf)))
	if err != nil {
		t.Fatal(err)
	}
	ins, err := f.Disassemble(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(ins) == 0 {
		t.Error("empty disassembly")
	}
	if _, err := f.Disassemble(2); !errors.IsKind(err, errors.KindOutOfBounds) {
		t.Errorf("out of range export: %v", err)
	}
}

func TestUnknownPropertiesSkipped(t *testing.T) {
	_, nc, tex := registry(t)
	root, leaf, _, _ := scene(t, nc, tex)
	file := save(t, root, leaf)

	reg2 := rtti.NewRegistry()
	c2, err := reg2.RegisterClass("Node", reflect.TypeFor[nodeV2](), rtti.ClassOptions{})
	if err != nil {
		t.Fatal(err)
	}
	objs, err := Load(context.Background(), file, reg2, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	got := objs[0].(*nodeV2)
	if got.Label != "root" || got.Count != 0 {
		t.Errorf("got %+v", got)
	}
	if rtti.ClassOf(got) != c2 {
		t.Error("decoded object has the wrong class")
	}

	reg3 := rtti.NewRegistry()
	objs, err = Load(context.Background(), file, reg3, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if objs[0] != nil || objs[1] != nil {
		t.Error("exports of unknown classes decoded")
	}
}

func TestSaveErrors(t *testing.T) {
	_, nc, tex := registry(t)
	root, leaf, _, _ := scene(t, nc, tex)

	tests := []struct {
		name    string
		objects []rtti.Object
		kind    errors.Kind
	}{
		{"pointer outside the set", []rtti.Object{root}, errors.KindUnmappedReference},
		{"repeated export", []rtti.Object{root, leaf, root}, errors.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := Save(context.Background(), &out, tt.objects, DefaultOptions())
			if !errors.IsKind(err, tt.kind) {
				t.Errorf("got %v, want %s", err, tt.kind)
			}
		})
	}
}

func TestOpenCorrupt(t *testing.T) {
	_, nc, tex := registry(t)
	root, leaf, _, _ := scene(t, nc, tex)
	file := save(t, root, leaf)

	flipped := bytes.Clone(file)
	flipped[len(flipped)/2] ^= 0x40

	tests := []struct {
		name string
		data []byte
		kind errors.Kind
	}{
		{"flipped byte", flipped, errors.KindChecksum},
		{"truncated", file[:len(file)-1], errors.KindChecksum},
		{"bad magic", append([]byte("XXXX"), file[4:]...), errors.KindInvalidData},
		{"too short", file[:6], errors.KindInvalidData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Open(tt.data); !errors.IsKind(err, tt.kind) {
				t.Errorf("got %v, want %s", err, tt.kind)
			}
		})
	}
}
