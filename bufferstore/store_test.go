package bufferstore

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/wippyai/typestream/buffer"
	"github.com/wippyai/typestream/errors"
	"github.com/wippyai/typestream/rtti"
	"github.com/wippyai/typestream/serialize"
)

// fakeS3 keeps objects in a map keyed by bucket and key.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	dir, err := NewDir(filepath.Join(t.TempDir(), "buffers"))
	if err != nil {
		t.Fatal(err)
	}
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "buffers.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"dir":    dir,
		"sqlite": db,
		"s3":     NewS3(&fakeS3{}, S3Options{Bucket: "assets", Prefix: "buffers"}),
	}
}

func TestStoreAndLoad(t *testing.T) {
	ctx := context.Background()
	data := bytes.Repeat([]byte("terrain height "), 400)
	meta, payload, err := buffer.Pack(buffer.CompressionZstd, data)
	if err != nil {
		t.Fatal(err)
	}
	missing, _, _ := buffer.Pack(buffer.CompressionNone, []byte("never stored"))

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.StoreBuffer(ctx, meta, payload); err != nil {
				t.Fatal(err)
			}
			if err := s.StoreBuffer(ctx, meta, payload); err != nil {
				t.Fatalf("second store: %v", err)
			}
			l, err := s.CreateLoader(ctx, meta)
			if err != nil {
				t.Fatal(err)
			}
			if l.Size() != uint64(len(data)) || l.CRC() != meta.CRC {
				t.Errorf("loader size %d crc %x", l.Size(), l.CRC())
			}
			res := <-buffer.LoadAsync(ctx, l)
			if res.Err != nil {
				t.Fatal(res.Err)
			}
			if !bytes.Equal(res.Data, data) {
				t.Error("loaded bytes differ")
			}

			l, err = s.CreateLoader(ctx, missing)
			if err != nil {
				t.Fatalf("CreateLoader must not hit the backend: %v", err)
			}
			if _, err := l.Load(ctx); !errors.IsKind(err, errors.KindNotFound) {
				t.Errorf("missing buffer: %v", err)
			}
		})
	}
}

func TestDeduplicates(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	for _, s := range []string{"a", "b", "a"} {
		meta, payload, _ := buffer.Pack(buffer.CompressionNone, []byte(s))
		if err := mem.StoreBuffer(ctx, meta, payload); err != nil {
			t.Fatal(err)
		}
	}
	if mem.Len() != 2 {
		t.Errorf("%d stored buffers", mem.Len())
	}

	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "dedup.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	meta, payload, _ := buffer.Pack(buffer.CompressionS2, bytes.Repeat([]byte{7}, 1000))
	for range 3 {
		if err := db.StoreBuffer(ctx, meta, payload); err != nil {
			t.Fatal(err)
		}
	}
	if n, err := db.Count(ctx); err != nil || n != 1 {
		t.Errorf("Count = %d, %v", n, err)
	}
}

func TestCorruptObject(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	meta, payload, _ := buffer.Pack(buffer.CompressionNone, []byte("payload"))
	if err := mem.StoreBuffer(ctx, meta, payload); err != nil {
		t.Fatal(err)
	}
	key := Key(meta)
	mem.objects[key] = mem.objects[key][:len(mem.objects[key])-2]

	l, _ := mem.CreateLoader(ctx, meta)
	if _, err := l.Load(ctx); !errors.IsKind(err, errors.KindCorrupted) {
		t.Errorf("got %v", err)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		location string
		want     reflect.Type
		kind     errors.Kind
	}{
		{"mem:", reflect.TypeFor[*Memory](), ""},
		{"dir:" + filepath.Join(t.TempDir(), "d"), reflect.TypeFor[*Dir](), ""},
		{"sqlite:" + filepath.Join(t.TempDir(), "s.db"), reflect.TypeFor[*SQLite](), ""},
		{"ftp://host", nil, errors.KindUnsupported},
		{"plain", nil, errors.KindInvalidInput},
		{"dir:", nil, errors.KindInvalidInput},
		{"s3://", nil, errors.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			s, err := Open(ctx, tt.location)
			if tt.want == nil {
				if !errors.IsKind(err, tt.kind) {
					t.Errorf("got %v, want %s", err, tt.kind)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			defer s.Close()
			if reflect.TypeOf(s) != tt.want {
				t.Errorf("got %T", s)
			}
		})
	}
}

type mesh struct {
	rtti.ObjectBase
	Vertices rtti.AsyncBuffer `prop:"vertices"`
}

func TestSerializeThroughStore(t *testing.T) {
	ctx := context.Background()
	reg := rtti.NewRegistry()
	c, err := reg.RegisterClass("Mesh", reflect.TypeFor[mesh](), rtti.ClassOptions{})
	if err != nil {
		t.Fatal(err)
	}
	verts := bytes.Repeat([]byte{0, 0, 128, 63}, 3000)
	src := mesh{Vertices: rtti.AsyncBuffer{Buffer: buffer.New(verts)}}

	store := NewMemory()
	wopts := serialize.DefaultWriterOptions()
	wopts.Sink = store
	data, refs, err := serialize.Marshal(ctx, c, rtti.Ptr(&src), wopts)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) >= len(verts) || store.Len() != 1 {
		t.Fatalf("stream %d bytes, %d stored buffers", len(data), store.Len())
	}

	var dst mesh
	ropts := serialize.DefaultReaderOptions()
	ropts.Factory = store
	if err := serialize.Unmarshal(ctx, data, refs, c, rtti.Ptr(&dst), ropts); err != nil {
		t.Fatal(err)
	}
	got, err := dst.Vertices.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, verts) {
		t.Error("vertices differ")
	}
}
