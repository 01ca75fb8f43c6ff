package serialize

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/wippyai/typestream/buffer"
	_ "github.com/wippyai/typestream/convert"
	"github.com/wippyai/typestream/errors"
	"github.com/wippyai/typestream/opcode"
	"github.com/wippyai/typestream/rtti"
	"github.com/wippyai/typestream/wire"
)

type sample struct {
	rtti.ObjectBase
	Count int32   `prop:"count"`
	Scale float64 `prop:"scale"`
}

func registerSample(t *testing.T) (*rtti.Registry, *rtti.ClassType) {
	t.Helper()
	reg := rtti.NewRegistry()
	c, err := reg.RegisterClass("Sample", reflect.TypeFor[sample](), rtti.ClassOptions{})
	if err != nil {
		t.Fatal(err)
	}
	return reg, c
}

func binarize(t *testing.T, s *opcode.Stream, refs *MappedReferences, opts WriterOptions) []byte {
	t.Helper()
	var out bytes.Buffer
	w := wire.NewWriter(&out)
	if err := Binarize(context.Background(), w, s, refs, opts); err != nil {
		t.Fatalf("Binarize: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	return out.Bytes()
}

func TestEndToEnd(t *testing.T) {
	_, c := registerSample(t)
	p1, p2 := c.FindProperty("count"), c.FindProperty("scale")

	s := opcode.NewStream(opcode.DefaultOptions())
	s.BeginCompound(2)
	s.BeginProperty(p1)
	s.WriteData([]byte{0x2A, 0, 0, 0})
	s.BeginProperty(p2)
	s.WriteData(binary.LittleEndian.AppendUint64(nil, math.Float64bits(3.5)))
	s.EndCompound()

	refs, err := CollectReferences(s)
	if err != nil {
		t.Fatal(err)
	}
	if refs.propertyIndexOrZero(p1) != 1 || refs.propertyIndexOrZero(p2) != 2 {
		t.Fatalf("property indices %d, %d", refs.propertyIndexOrZero(p1), refs.propertyIndexOrZero(p2))
	}

	for _, protected := range []bool{false, true} {
		name := "unprotected"
		if protected {
			name = "protected"
		}
		t.Run(name, func(t *testing.T) {
			data := binarize(t, s, refs, WriterOptions{Protected: protected})
			r := NewReader(context.Background(), data, refs.Resolve(), ReaderOptions{Protected: protected})

			n, err := r.EnterCompound()
			if err != nil || n != 2 {
				t.Fatalf("EnterCompound = %d, %v", n, err)
			}
			sp, err := r.ReadProperty()
			if err != nil || sp.Property != p1 || sp.ClassName != "Sample" {
				t.Fatalf("first property %+v, %v", sp, err)
			}
			raw, err := r.ReadData(4)
			if err != nil {
				t.Fatal(err)
			}
			if v := int32(binary.LittleEndian.Uint32(raw)); v != 42 {
				t.Errorf("count = %d", v)
			}
			sp, err = r.ReadProperty()
			if err != nil || sp.Name != "scale" || sp.TypeName != "double" {
				t.Fatalf("second property %+v, %v", sp, err)
			}
			raw, err = r.ReadData(8)
			if err != nil {
				t.Fatal(err)
			}
			if v := math.Float64frombits(binary.LittleEndian.Uint64(raw)); v != 3.5 {
				t.Errorf("scale = %v", v)
			}
			if err := r.LeaveCompound(); err != nil {
				t.Fatal(err)
			}
			if !r.Done() {
				t.Errorf("%d bytes left", len(data)-r.Position())
			}
		})
	}
}

// propertyIndexOrZero is a test helper over the unexported lookup.
func (m *MappedReferences) propertyIndexOrZero(p *rtti.Property) uint32 {
	idx, _ := m.propertyIndex(p)
	return idx
}

func TestProtectedIsLarger(t *testing.T) {
	_, c := registerSample(t)
	v := sample{Count: 1, Scale: 2}
	plain, _, err := Marshal(context.Background(), c, rtti.Ptr(&v), WriterOptions{})
	if err != nil {
		t.Fatal(err)
	}
	prot, _, err := Marshal(context.Background(), c, rtti.Ptr(&v), WriterOptions{Protected: true})
	if err != nil {
		t.Fatal(err)
	}
	// count, two property indices, 4 + 8 data bytes
	if len(plain) != 1+2+4+8 {
		t.Errorf("unprotected size %d", len(plain))
	}
	if len(prot) <= len(plain) {
		t.Errorf("protected %d bytes, unprotected %d", len(prot), len(plain))
	}
}

func TestClassRoundTrip(t *testing.T) {
	_, c := registerSample(t)
	for _, protected := range []bool{false, true} {
		src := sample{Count: -7, Scale: 0.25}
		data, refs, err := Marshal(context.Background(), c, rtti.Ptr(&src), WriterOptions{Protected: protected})
		if err != nil {
			t.Fatal(err)
		}
		var dst sample
		if err := Unmarshal(context.Background(), data, refs, c, rtti.Ptr(&dst), ReaderOptions{Protected: protected}); err != nil {
			t.Fatalf("protected=%v: %v", protected, err)
		}
		if dst.Count != src.Count || dst.Scale != src.Scale {
			t.Errorf("protected=%v: got %+v", protected, dst)
		}
	}
}

type sampleV2 struct {
	rtti.ObjectBase
	Count float32 `prop:"count"`
	Extra string  `prop:"extra"`
}

func TestReadWithChangedClass(t *testing.T) {
	_, c := registerSample(t)
	src := sample{Count: 300, Scale: 9}
	data, refs, err := Marshal(context.Background(), c, rtti.Ptr(&src), WriterOptions{Protected: true})
	if err != nil {
		t.Fatal(err)
	}

	reg2 := rtti.NewRegistry()
	c2, err := reg2.RegisterClass("Sample", reflect.TypeFor[sampleV2](), rtti.ClassOptions{})
	if err != nil {
		t.Fatal(err)
	}
	dst := sampleV2{Extra: "kept"}
	if err := Unmarshal(context.Background(), data, refs, c2, rtti.Ptr(&dst), ReaderOptions{Protected: true}); err != nil {
		t.Fatal(err)
	}
	if dst.Count != 300 {
		t.Errorf("converted count = %v", dst.Count)
	}
	if dst.Extra != "kept" {
		t.Errorf("extra = %q", dst.Extra)
	}

	t.Run("unprotected cannot skip", func(t *testing.T) {
		data, refs, err := Marshal(context.Background(), c, rtti.Ptr(&src), WriterOptions{})
		if err != nil {
			t.Fatal(err)
		}
		err = Unmarshal(context.Background(), data, refs, c2, rtti.Ptr(&dst), ReaderOptions{})
		if !errors.IsKind(err, errors.KindSkipMismatch) {
			t.Errorf("got %v", err)
		}
	})
}

func skipStream() *opcode.Stream {
	s := opcode.NewStream(opcode.DefaultOptions())
	s.BeginSkipBlock()
	s.BeginProperty(nil)
	s.WriteData([]byte{1, 2})
	s.BeginSkipBlock()
	s.BeginProperty(nil)
	s.WriteVarData([]byte("xyz"))
	s.EndSkipBlock()
	s.EndSkipBlock()
	return s
}

func TestDiscardSkipBlock(t *testing.T) {
	s := skipStream()
	s.WriteName("after")
	refs, _ := CollectReferences(s)
	data := binarize(t, s, refs, WriterOptions{Protected: true})

	r := NewReader(context.Background(), data, refs.Resolve(), ReaderOptions{Protected: true})
	if err := r.DiscardSkipBlock(); err != nil {
		t.Fatal(err)
	}
	name, err := r.ReadName()
	if err != nil || name != "after" {
		t.Errorf("after skip: %q, %v", name, err)
	}
	if !r.Done() {
		t.Error("bytes left")
	}
}

func TestDiscardSkipBlockErrors(t *testing.T) {
	t.Run("unprotected", func(t *testing.T) {
		s := skipStream()
		data := binarize(t, s, NewMappedReferences(), WriterOptions{})
		r := NewReader(context.Background(), data, nil, ReaderOptions{})
		if err := r.DiscardSkipBlock(); !errors.IsKind(err, errors.KindSkipMismatch) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("truncated", func(t *testing.T) {
		s := skipStream()
		data := binarize(t, s, NewMappedReferences(), WriterOptions{Protected: true})
		r := NewReader(context.Background(), data[:len(data)-1], nil, ReaderOptions{Protected: true})
		if err := r.DiscardSkipBlock(); !errors.IsKind(err, errors.KindSkipMismatch) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("single value", func(t *testing.T) {
		s := opcode.NewStream(opcode.DefaultOptions())
		s.BeginArray(2)
		s.WriteData([]byte{1})
		s.WriteData([]byte{2})
		s.EndArray()
		s.WriteData([]byte{3})
		data := binarize(t, s, NewMappedReferences(), WriterOptions{Protected: true})
		r := NewReader(context.Background(), data, nil, ReaderOptions{Protected: true})
		if err := r.DiscardSkipBlock(); err != nil {
			t.Fatal(err)
		}
		if b, err := r.ReadData(1); err != nil || b[0] != 3 {
			t.Errorf("got %v, %v", b, err)
		}
	})
}

func TestUnmappedReferences(t *testing.T) {
	_, c := registerSample(t)
	s := opcode.NewStream(opcode.DefaultOptions())
	s.BeginProperty(c.FindProperty("count"))

	var out bytes.Buffer
	err := Binarize(context.Background(), wire.NewWriter(&out), s, NewMappedReferences(), WriterOptions{})
	if !errors.IsKind(err, errors.KindUnmappedReference) {
		t.Errorf("Binarize: %v", err)
	}

	r := NewReader(context.Background(), []byte{5}, &ResolvedReferences{Names: []rtti.Name{"", "a"}}, ReaderOptions{})
	if _, err := r.ReadName(); !errors.IsKind(err, errors.KindUnmappedReference) {
		t.Errorf("ReadName: %v", err)
	}
	r = NewReader(context.Background(), []byte{0}, nil, ReaderOptions{})
	if typ, err := r.ReadTypeRef(); err != nil || typ != nil {
		t.Errorf("null type ref: %v, %v", typ, err)
	}
}

func TestOpcodeMismatch(t *testing.T) {
	s := opcode.NewStream(opcode.DefaultOptions())
	s.Nop()
	s.BeginArray(0)
	s.EndArray()
	data := binarize(t, s, NewMappedReferences(), WriterOptions{Protected: true})

	r := NewReader(context.Background(), data, nil, ReaderOptions{Protected: true})
	if _, err := r.EnterCompound(); !errors.IsKind(err, errors.KindOpcodeMismatch) {
		t.Errorf("got %v", err)
	}
	r = NewReader(context.Background(), data, nil, ReaderOptions{Protected: true})
	if n, err := r.EnterArray(); err != nil || n != 0 {
		t.Errorf("EnterArray after Nop: %d, %v", n, err)
	}
}

func TestBufferModes(t *testing.T) {
	payload := []byte(strings.Repeat("typestream ", 200))
	s := opcode.NewStream(opcode.DefaultOptions())
	s.WriteBuffer(buffer.New(payload), false)
	opts := WriterOptions{Protected: true, Compression: buffer.CompressionZstd}
	data := binarize(t, s, NewMappedReferences(), opts)
	if len(data) >= len(payload) {
		t.Fatalf("payload not compressed: %d bytes", len(data))
	}

	t.Run("decompress", func(t *testing.T) {
		r := NewReader(context.Background(), data, nil, ReaderOptions{Protected: true})
		b, err := r.ReadBuffer(false)
		if err != nil || !bytes.Equal(b.Data(), payload) {
			t.Fatalf("got %d bytes, %v", len(b.Data()), err)
		}
	})
	t.Run("raw", func(t *testing.T) {
		r := NewReader(context.Background(), data, nil, ReaderOptions{Protected: true, BufferMode: BufferRaw})
		b, err := r.ReadBuffer(false)
		if err != nil {
			t.Fatal(err)
		}
		meta := r.LastBufferMeta()
		if meta.Compression != buffer.CompressionZstd || uint64(len(b.Data())) != meta.CompressedSize {
			t.Errorf("meta %+v, %d bytes", meta, len(b.Data()))
		}
		plain, err := buffer.Unpack(meta, b.Data())
		if err != nil || !bytes.Equal(plain, payload) {
			t.Errorf("raw payload does not unpack: %v", err)
		}
	})
	t.Run("async", func(t *testing.T) {
		r := NewReader(context.Background(), data, nil, ReaderOptions{Protected: true, BufferMode: BufferAsync})
		b, err := r.ReadBuffer(false)
		if err != nil {
			t.Fatal(err)
		}
		if b.Data() != nil || b.Size() != uint64(len(payload)) {
			t.Fatalf("async buffer resolved eagerly")
		}
		res := <-buffer.LoadAsync(context.Background(), b.Loader())
		if res.Err != nil || !bytes.Equal(res.Data, payload) {
			t.Errorf("load: %v", res.Err)
		}

		// A loader-backed buffer is written back inline.
		s2 := opcode.NewStream(opcode.DefaultOptions())
		s2.WriteBuffer(b, false)
		again := binarize(t, s2, NewMappedReferences(), opts)
		if !bytes.Equal(again, data) {
			t.Error("re-encoded buffer differs")
		}
	})
	t.Run("threshold", func(t *testing.T) {
		opts := opts
		opts.CompressionThreshold = len(payload) + 1
		raw := binarize(t, s, NewMappedReferences(), opts)
		if len(raw) <= len(payload) {
			t.Errorf("small payload compressed")
		}
	})
}

type memStore struct {
	blobs map[uint64][]byte
}

func (m *memStore) StoreBuffer(_ context.Context, meta buffer.Meta, payload []byte) error {
	m.blobs[meta.CRC] = payload
	return nil
}

func (m *memStore) CreateLoader(_ context.Context, meta buffer.Meta) (buffer.Loader, error) {
	p, ok := m.blobs[meta.CRC]
	if !ok {
		return nil, errors.NotFound(errors.PhaseStore, "buffer", "missing")
	}
	return buffer.NewCompressedLoader(meta, p), nil
}

func TestExternalBuffers(t *testing.T) {
	reg := rtti.NewRegistry()
	typ, err := reg.FindType("async_buffer")
	if err != nil {
		t.Fatal(err)
	}
	store := &memStore{blobs: map[uint64][]byte{}}
	src := rtti.AsyncBuffer{Buffer: buffer.New([]byte("external payload"))}

	data, refs, err := Marshal(context.Background(), typ, rtti.Ptr(&src), WriterOptions{Protected: true, Sink: store})
	if err != nil {
		t.Fatal(err)
	}
	if len(store.blobs) != 1 {
		t.Fatalf("sink holds %d blobs", len(store.blobs))
	}
	if len(data) > 16 {
		t.Errorf("external buffer wrote %d bytes inline", len(data))
	}

	var dst rtti.AsyncBuffer
	if err := Unmarshal(context.Background(), data, refs, typ, rtti.Ptr(&dst), ReaderOptions{Protected: true}); !errors.IsKind(err, errors.KindMissingBinding) {
		t.Errorf("read without factory: %v", err)
	}
	if err := Unmarshal(context.Background(), data, refs, typ, rtti.Ptr(&dst), ReaderOptions{Protected: true, Factory: store}); err != nil {
		t.Fatal(err)
	}
	got, err := dst.Load(context.Background())
	if err != nil || string(got) != "external payload" {
		t.Errorf("loaded %q, %v", got, err)
	}
}

func TestDisassemble(t *testing.T) {
	_, c := registerSample(t)
	v := sample{Count: 1, Scale: 2}
	data, _, err := Marshal(context.Background(), c, rtti.Ptr(&v), WriterOptions{Protected: true})
	if err != nil {
		t.Fatal(err)
	}
	ins, err := Disassemble(data)
	if err != nil {
		t.Fatal(err)
	}
	want := []opcode.Tag{
		opcode.Compound,
		opcode.Property, opcode.SkipHeader, opcode.DataRaw, opcode.SkipLabel,
		opcode.Property, opcode.SkipHeader, opcode.DataRaw, opcode.SkipLabel,
		opcode.CompoundEnd,
	}
	if len(ins) != len(want) {
		t.Fatalf("got %d instructions:\n%s", len(ins), Listing(ins))
	}
	for i, tag := range want {
		if ins[i].Tag != tag {
			t.Errorf("instruction %d = %s, want %s", i, ins[i].Tag, tag)
		}
	}
	if ins[0].Arg != 2 || ins[3].Arg != 4 || ins[5].Arg != 2 {
		t.Errorf("args: %d %d %d", ins[0].Arg, ins[3].Arg, ins[5].Arg)
	}
	if !strings.Contains(Listing(ins), "    ") {
		t.Error("listing not indented")
	}

	if _, err := Disassemble([]byte{0xff}); !errors.IsKind(err, errors.KindCorrupted) {
		t.Errorf("bad tag: %v", err)
	}
}

func TestReadBufferRejectsCraftedMeta(t *testing.T) {
	tests := []struct {
		name    string
		meta    buffer.Meta
		payload []byte
		kind    errors.Kind
	}{
		{"size beyond limit", buffer.Meta{Size: 1 << 62, CompressedSize: 4, Compression: buffer.CompressionS2}, []byte{1, 2, 3, 4}, errors.KindBufferOverrun},
		{"size beyond ratio", buffer.Meta{Size: 1 << 24, CompressedSize: 4, Compression: buffer.CompressionZstd}, []byte{1, 2, 3, 4}, errors.KindInvalidData},
		{"truncated payload", buffer.Meta{Size: 100, CompressedSize: 100, Compression: buffer.CompressionNone}, []byte{1, 2, 3, 4}, errors.KindBufferOverrun},
		{"s2 header disagrees", buffer.Meta{Size: 64, CompressedSize: 4, Compression: buffer.CompressionS2}, []byte{3, 8, 'a', 'b'}, errors.KindInvalidData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			w := wire.NewWriter(&out)
			w.Byte(byte(opcode.DataInlineBuffer))
			tt.meta.Write(w)
			w.WriteBytes(tt.payload)
			if err := w.Flush(); err != nil {
				t.Fatal(err)
			}

			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("panicked: %v", r)
				}
			}()
			r := NewReader(context.Background(), out.Bytes(), nil, ReaderOptions{Protected: true})
			if _, err := r.ReadBuffer(false); !errors.IsKind(err, tt.kind) {
				t.Errorf("got %v, want %s", err, tt.kind)
			}
		})
	}
}
