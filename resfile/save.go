package resfile

import (
	"bytes"
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/typestream"
	"github.com/wippyai/typestream/buffer"
	"github.com/wippyai/typestream/errors"
	"github.com/wippyai/typestream/filetables"
	"github.com/wippyai/typestream/opcode"
	"github.com/wippyai/typestream/rtti"
	"github.com/wippyai/typestream/serialize"
	"github.com/wippyai/typestream/wire"
)

// Magic opens every resource file.
var Magic = [4]byte{'T', 'S', 'R', 'F'}

// Version is the container format version written by Save.
const Version = 1

// Header flags.
const (
	FlagProtected = 1 << iota
)

// Options configure Save and Load.
type Options struct {
	// Compression is applied to buffer payloads of at least
	// CompressionThreshold bytes.
	Compression          buffer.Compression
	CompressionThreshold int
	// ImportPath returns the path recorded for an imported resource.
	ImportPath func(ref rtti.ResourceRef) string
	// BufferMode selects how Load returns inline buffers.
	BufferMode serialize.BufferMode
	// Stream configures the opcode streams built while saving.
	Stream opcode.Options
}

// DefaultOptions returns zstd compression for buffers of 1KiB and more.
func DefaultOptions() Options {
	return Options{
		Compression:          buffer.CompressionZstd,
		CompressionThreshold: 1 << 10,
		BufferMode:           serialize.BufferDecompress,
		Stream:               opcode.DefaultOptions(),
	}
}

// bufferSection collects async buffer payloads while exports are written
// and lays them out after the exports.
type bufferSection struct {
	tables   *filetables.Tables
	pending  []pendingBuffer
	declared map[[2]uint64]bool
}

type pendingBuffer struct {
	payload []byte
	index   uint32
	kind    buffer.Compression
}

func (b *bufferSection) StoreBuffer(_ context.Context, meta buffer.Meta, payload []byte) error {
	key := [2]uint64{meta.Size, meta.CRC}
	if b.declared[key] {
		return nil
	}
	b.declared[key] = true
	b.pending = append(b.pending, pendingBuffer{
		payload: payload,
		index:   b.tables.AddBuffer(meta.Size, meta.CRC),
		kind:    meta.Compression,
	})
	return nil
}

// Save writes objects as the exports of one resource file. Object pointers
// inside the objects must refer to objects in the set.
func Save(ctx context.Context, sink typestream.ByteSink, objects []rtti.Object, opts Options) error {
	refs := serialize.NewMappedReferences()
	for _, obj := range objects {
		refs.MapObject(obj)
	}
	if len(refs.Objects()) != len(objects) {
		return errors.InvalidInput(errors.PhaseWrite, "null or repeated object in export set")
	}

	streams := make([]*opcode.Stream, len(objects))
	defer func() {
		for _, s := range streams {
			if s != nil {
				s.Reset()
			}
		}
	}()
	classes := make([]*rtti.ClassType, len(objects))
	for i, obj := range objects {
		c := rtti.ClassOf(obj)
		if c == nil {
			return errors.NotFound(errors.PhaseWrite, "class of export", "")
		}
		s := opcode.NewStream(opts.Stream)
		streams[i], classes[i] = s, c
		if err := s.WriteValue(c, rtti.ObjectData(obj)); err != nil {
			return err
		}
		if err := refs.Collect(s); err != nil {
			return err
		}
	}
	if n := len(refs.Objects()); n != len(objects) {
		return errors.UnmappedReference(errors.PhaseWrite, "object", refs.Objects()[len(objects)])
	}

	tables := filetables.New()
	for _, n := range refs.Names() {
		tables.AddName(n)
	}
	for _, p := range refs.Properties() {
		sp := serialize.DescribeProperty(p)
		tables.AddProperty(sp.ClassName, sp.Name, sp.TypeName)
	}
	for _, r := range refs.Resources() {
		path := ""
		if opts.ImportPath != nil {
			path = opts.ImportPath(r)
		}
		tables.AddImport(r, path)
	}
	types := make([]uint32, len(refs.Types()))
	for i, t := range refs.Types() {
		types[i] = tables.MapString(t.Name())
	}

	bufs := &bufferSection{tables: tables, declared: make(map[[2]uint64]bool)}
	wopts := serialize.WriterOptions{
		Protected:            true,
		Compression:          opts.Compression,
		CompressionThreshold: opts.CompressionThreshold,
		Sink:                 bufs,
	}
	var data bytes.Buffer
	for i, s := range streams {
		idx := tables.AddExport(classes[i].Name())
		start := data.Len()
		w := wire.NewWriter(&data)
		if err := serialize.Binarize(ctx, w, s, refs, wopts); err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return err
		}
		payload := data.Bytes()[start:]
		if err := tables.PatchExport(idx, uint64(start), uint64(len(payload)), wire.CRC64(payload)); err != nil {
			return err
		}
	}
	for _, p := range bufs.pending {
		off := data.Len()
		data.Write(p.payload)
		if err := tables.PatchBuffer(p.index, uint64(off), uint64(len(p.payload)), p.kind); err != nil {
			return err
		}
	}

	w := wire.NewWriter(sink)
	w.WriteBytes(Magic[:])
	w.WriteVarint(Version)
	w.WriteVarint(FlagProtected)
	tables.Write(w)
	w.WriteVarint(uint64(len(types)))
	for _, off := range types {
		w.WriteVarint(uint64(off))
	}
	w.WriteVarint(uint64(data.Len()))
	w.WriteBytes(data.Bytes())
	w.WriteU64LE(w.Checksum())
	if err := w.Flush(); err != nil {
		return err
	}

	Logger().Debug("resource file saved",
		zap.Int("exports", len(objects)),
		zap.Int("buffers", len(bufs.pending)),
		zap.Int("names", len(tables.Names)),
		zap.Int("properties", len(tables.Properties)),
		zap.Int64("size", w.Offset()))
	return nil
}
