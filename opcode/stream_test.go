package opcode

import (
	"bytes"
	"errors"
	"testing"

	"github.com/wippyai/typestream/buffer"
	tserrors "github.com/wippyai/typestream/errors"
	"github.com/wippyai/typestream/rtti"
)

type countingAllocator struct {
	limit int
	sizes []int
	freed int
}

func (a *countingAllocator) Alloc(size int) ([]byte, error) {
	if a.limit >= 0 && len(a.sizes) >= a.limit {
		return nil, errors.New("out of pages")
	}
	a.sizes = append(a.sizes, size)
	return make([]byte, size), nil
}

func (a *countingAllocator) Free([]byte) { a.freed++ }

func collect(t *testing.T, s *Stream) []Record {
	t.Helper()
	var out []Record
	it := s.Iterate()
	for it.Next() {
		out = append(out, it.Record())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	return out
}

func TestOptionsNormalized(t *testing.T) {
	o := Options{PageSize: 10, HugePageSize: 20}.normalized()
	if o.PageSize != MinPageSize || o.HugePageSize != MinHugePageSize {
		t.Errorf("got %d/%d", o.PageSize, o.HugePageSize)
	}
	if o.Allocator == nil {
		t.Error("nil allocator not defaulted")
	}
}

func TestRecordsRoundTrip(t *testing.T) {
	reg := rtti.NewRegistry()
	i32, _ := reg.FindType("int32")

	s := NewStream(DefaultOptions())
	s.BeginCompound(2)
	s.BeginProperty(nil)
	s.WriteData([]byte{42, 0, 0, 0})
	s.BeginArray(3)
	s.WriteVarData([]byte("abc"))
	s.EndArray()
	s.WriteTypeRef(i32)
	s.WriteTypeRef(nil)
	s.WriteName("Mesh")
	s.WriteName("")
	s.WriteResourceRef(rtti.ResourceRef{})
	s.WriteBuffer(buffer.New([]byte("payload")), true)
	s.EndCompound()

	recs := collect(t, s)
	if len(recs) != s.Len() || len(recs) != 12 {
		t.Fatalf("got %d records, Len %d", len(recs), s.Len())
	}
	size := 0
	for _, r := range recs {
		size += r.Size
	}
	if size != s.Size() {
		t.Errorf("record sizes sum to %d, Size %d", size, s.Size())
	}

	checks := []struct {
		name string
		ok   bool
	}{
		{"compound count", recs[0].Tag == Compound && recs[0].Count == 2},
		{"null property", recs[1].Tag == Property && recs[1].Property == nil},
		{"fixed data", recs[2].Tag == DataRaw && !recs[2].Variable && bytes.Equal(recs[2].Data, []byte{42, 0, 0, 0})},
		{"array count", recs[3].Count == 3},
		{"variable data", recs[4].Variable && string(recs[4].Data) == "abc"},
		{"array end", recs[5].Tag == ArrayEnd},
		{"type ref", recs[6].Type == i32},
		{"null type ref", recs[7].Tag == DataTypeRef && recs[7].Type == nil},
		{"name", recs[8].Name == "Mesh"},
		{"empty name", recs[9].Tag == DataName && recs[9].Name == ""},
		{"null resource", recs[10].Resource.IsNull()},
		{"async buffer", recs[11].Tag == DataAsyncFileBuffer && string(recs[11].Buffer.Data()) == "payload"},
	}
	for _, c := range checks {
		if !c.ok {
			t.Errorf("%s: mismatch", c.name)
		}
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestPageRollover(t *testing.T) {
	alloc := &countingAllocator{limit: -1}
	s := NewStream(Options{Allocator: alloc})

	chunk := make([]byte, 1000)
	for range 100 {
		s.WriteData(chunk)
	}
	if s.Pages() < 2 {
		t.Fatalf("expected several pages, got %d", s.Pages())
	}
	for _, size := range alloc.sizes {
		if size != MinPageSize {
			t.Errorf("regular page of %d bytes", size)
		}
	}
	if got := len(collect(t, s)); got != 100 {
		t.Errorf("iterated %d records", got)
	}

	huge := make([]byte, MinPageSize+1)
	huge[len(huge)-1] = 7
	s.WriteData(huge)
	if last := alloc.sizes[len(alloc.sizes)-1]; last != MinHugePageSize {
		t.Errorf("huge page of %d bytes", last)
	}
	big := make([]byte, MinHugePageSize+10)
	s.WriteVarData(big)
	if last := alloc.sizes[len(alloc.sizes)-1]; last < len(big) {
		t.Errorf("oversized record got a %d byte page", last)
	}

	recs := collect(t, s)
	if len(recs) != 102 {
		t.Fatalf("iterated %d records", len(recs))
	}
	if d := recs[100].Data; len(d) != len(huge) || d[len(d)-1] != 7 {
		t.Error("huge record corrupted")
	}

	pages := s.Pages()
	s.Reset()
	if alloc.freed != pages || s.Len() != 0 || s.Size() != 0 {
		t.Errorf("Reset: freed %d of %d, len %d", alloc.freed, pages, s.Len())
	}
}

func TestAllocatorFailureCorrupts(t *testing.T) {
	alloc := &countingAllocator{limit: 1}
	s := NewStream(Options{Allocator: alloc})
	s.BeginCompound(1)
	s.WriteData([]byte{1})
	if s.Corrupted() || s.Len() != 2 {
		t.Fatalf("corrupted early: len %d", s.Len())
	}

	s.WriteData(make([]byte, MinPageSize))
	if !s.Corrupted() {
		t.Fatal("allocation failure not reported")
	}
	if !errors.Is(s.Err(), tserrors.OfKind(tserrors.KindOutOfMemory)) {
		t.Errorf("Err = %v", s.Err())
	}
	if s.Len() != 0 || s.Pages() != 0 || alloc.freed != 1 {
		t.Errorf("pages not released: len %d pages %d freed %d", s.Len(), s.Pages(), alloc.freed)
	}

	s.EndCompound()
	s.WriteName("ignored")
	if s.Len() != 0 || len(collect(t, s)) != 0 {
		t.Error("append after corruption recorded")
	}

	reg := rtti.NewRegistry()
	i32, _ := reg.FindType("int32")
	v := int32(3)
	if err := s.WriteValue(i32, rtti.Ptr(&v)); err == nil {
		t.Error("WriteValue on corrupted stream succeeded")
	}

	alloc.limit = -1
	s.Reset()
	s.Nop()
	if s.Corrupted() || s.Len() != 1 {
		t.Error("Reset did not recover the stream")
	}
}

func TestSkipBlock(t *testing.T) {
	s := NewStream(DefaultOptions())
	s.BeginSkipBlock()
	s.BeginProperty(nil)
	s.WriteData([]byte{1})
	s.BeginSkipBlock()
	s.BeginProperty(nil)
	s.WriteData([]byte{2})
	s.EndSkipBlock()
	s.EndSkipBlock()
	s.WriteName("after")

	if s.OpenSkipBlocks() != 0 {
		t.Errorf("open skip blocks: %d", s.OpenSkipBlocks())
	}
	it := s.Iterate()
	if !it.Next() {
		t.Fatal("empty stream")
	}
	if err := it.SkipBlock(); err != nil {
		t.Fatalf("SkipBlock: %v", err)
	}
	if !it.Next() || it.Record().Name != "after" {
		t.Errorf("cursor after skip at %v", it.Record())
	}
	if it.Next() {
		t.Error("records past the end")
	}
}

func TestSkipBlockMismatch(t *testing.T) {
	t.Run("not at header", func(t *testing.T) {
		s := NewStream(DefaultOptions())
		s.Nop()
		it := s.Iterate()
		it.Next()
		if err := it.SkipBlock(); !errors.Is(err, tserrors.OfKind(tserrors.KindOpcodeMismatch)) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("unterminated", func(t *testing.T) {
		s := NewStream(DefaultOptions())
		s.BeginSkipBlock()
		s.BeginSkipBlock()
		s.WriteData([]byte{1})
		s.EndSkipBlock()
		it := s.Iterate()
		it.Next()
		if err := it.SkipBlock(); !errors.Is(err, tserrors.OfKind(tserrors.KindSkipMismatch)) {
			t.Errorf("got %v", err)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		build func(s *Stream)
		kind  tserrors.Kind
	}{
		{"balanced", func(s *Stream) {
			s.BeginCompound(1)
			s.BeginSkipBlock()
			s.BeginArray(0)
			s.EndArray()
			s.EndSkipBlock()
			s.EndCompound()
		}, ""},
		{"stray label", func(s *Stream) {
			s.EndSkipBlock()
		}, tserrors.KindSkipMismatch},
		{"array closed inside skip", func(s *Stream) {
			s.BeginArray(1)
			s.BeginSkipBlock()
			s.EndArray()
		}, tserrors.KindSkipMismatch},
		{"open skip", func(s *Stream) {
			s.BeginSkipBlock()
		}, tserrors.KindSkipMismatch},
		{"wrong end", func(s *Stream) {
			s.BeginCompound(0)
			s.EndArray()
		}, tserrors.KindOpcodeMismatch},
		{"open compound", func(s *Stream) {
			s.BeginCompound(0)
		}, tserrors.KindOpcodeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStream(DefaultOptions())
			tt.build(s)
			err := s.Validate()
			if tt.kind == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tserrors.OfKind(tt.kind)) {
				t.Errorf("got %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestWriteValue(t *testing.T) {
	reg := rtti.NewRegistry()
	arr, err := reg.FindType("array<int32>")
	if err != nil {
		t.Fatal(err)
	}
	v := []int32{1, 2, 3}
	s := NewStream(DefaultOptions())
	if err := s.WriteValue(arr, rtti.Ptr(&v)); err != nil {
		t.Fatal(err)
	}
	recs := collect(t, s)
	if len(recs) != 5 || recs[0].Tag != Array || recs[0].Count != 3 || recs[4].Tag != ArrayEnd {
		t.Fatalf("unexpected records %v", recs)
	}
	if recs[2].Data[0] != 2 {
		t.Errorf("second element %v", recs[2].Data)
	}
}

func TestTagString(t *testing.T) {
	if DataAsyncFileBuffer.String() != "DataAsyncFileBuffer" || Tag(200).String() != "Invalid" {
		t.Error("tag names")
	}
	if !DataRaw.IsData() || Property.IsData() || SkipLabel.IsData() {
		t.Error("IsData")
	}
}
