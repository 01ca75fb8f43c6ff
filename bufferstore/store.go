package bufferstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/typestream/buffer"
	"github.com/wippyai/typestream/errors"
	"github.com/wippyai/typestream/wire"
)

// Store persists buffer payloads and hands out loaders for them.
type Store interface {
	buffer.Sink
	buffer.Factory
	io.Closer
}

// Key names the stored object of a buffer: its CRC and uncompressed size.
func Key(meta buffer.Meta) string {
	return fmt.Sprintf("%016x-%d", meta.CRC, meta.Size)
}

// encodeObject frames a payload with its metadata so a backend can store
// both as one blob.
func encodeObject(meta buffer.Meta, payload []byte) ([]byte, error) {
	var out bytes.Buffer
	w := wire.NewWriter(&out)
	meta.External = false
	meta.Write(w)
	w.WriteBytes(payload)
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func decodeObject(data []byte) (buffer.Meta, []byte, error) {
	r := wire.NewReader(data)
	meta, err := buffer.ReadMeta(r)
	if err != nil {
		return meta, nil, err
	}
	if uint64(r.Remaining()) != meta.CompressedSize {
		return meta, nil, errors.InvalidData(errors.PhaseStore, nil, "stored buffer truncated")
	}
	payload, _ := r.ReadBytes(r.Remaining())
	return meta, payload, nil
}

// fetchFunc returns the framed object stored under key.
type fetchFunc func(ctx context.Context, key string) ([]byte, error)

// lazyLoader defers the backend read to the first Load. A failed Load may
// be retried; a successful one is cached.
type lazyLoader struct {
	meta  buffer.Meta
	fetch fetchFunc

	mu   sync.Mutex
	data []byte
}

func newLazyLoader(meta buffer.Meta, fetch fetchFunc) *lazyLoader {
	return &lazyLoader{meta: meta, fetch: fetch}
}

func (l *lazyLoader) Size() uint64 { return l.meta.Size }
func (l *lazyLoader) CRC() uint64  { return l.meta.CRC }

func (l *lazyLoader) Load(ctx context.Context) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.data != nil {
		return l.data, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := Key(l.meta)
	obj, err := l.fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	meta, payload, err := decodeObject(obj)
	if err != nil {
		return nil, errors.New(errors.PhaseStore, errors.KindCorrupted).
			Detail("buffer %s", key).
			Cause(err).
			Build()
	}
	if meta.Size != l.meta.Size || meta.CRC != l.meta.CRC {
		return nil, errors.New(errors.PhaseStore, errors.KindChecksum).
			Detail("buffer %s holds %s", key, Key(meta)).
			Build()
	}
	data, err := buffer.Unpack(meta, payload)
	if err != nil {
		return nil, err
	}
	Logger().Debug("buffer loaded",
		zap.String("key", key),
		zap.Stringer("compression", meta.Compression))
	l.data = data
	return data, nil
}

// Open creates a store from a location:
//
//	mem:                      in-process map
//	dir:PATH                  one file per buffer under PATH
//	sqlite:PATH               SQLite database file
//	s3://BUCKET/PREFIX        S3 objects, configured from the environment
func Open(ctx context.Context, location string) (Store, error) {
	scheme, rest, ok := strings.Cut(location, ":")
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseStore, "buffer store location needs a scheme: "+location)
	}
	switch scheme {
	case "mem":
		return NewMemory(), nil
	case "dir":
		return NewDir(rest)
	case "sqlite":
		return OpenSQLite(ctx, rest)
	case "s3":
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(rest, "//"), "/")
		if bucket == "" {
			return nil, errors.InvalidInput(errors.PhaseStore, "s3 location without bucket: "+location)
		}
		return OpenS3(ctx, S3Options{Bucket: bucket, Prefix: prefix})
	}
	return nil, errors.Unsupported(errors.PhaseStore, "buffer store scheme "+scheme)
}
