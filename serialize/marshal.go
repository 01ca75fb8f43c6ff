package serialize

import (
	"bytes"
	"context"
	"unsafe"

	"github.com/wippyai/typestream/opcode"
	"github.com/wippyai/typestream/rtti"
	"github.com/wippyai/typestream/wire"
)

// Marshal walks the value of t at ptr and binarizes it. The returned tables
// read the bytes back in the same process.
func Marshal(ctx context.Context, t rtti.Type, ptr unsafe.Pointer, opts WriterOptions) ([]byte, *ResolvedReferences, error) {
	s := opcode.NewStream(opcode.DefaultOptions())
	defer s.Reset()
	if err := s.WriteValue(t, ptr); err != nil {
		return nil, nil, err
	}
	refs, err := CollectReferences(s)
	if err != nil {
		return nil, nil, err
	}

	var out bytes.Buffer
	w := wire.NewWriter(&out)
	if err := Binarize(ctx, w, s, refs, opts); err != nil {
		return nil, nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, nil, err
	}
	return out.Bytes(), refs.Resolve(), nil
}

// Unmarshal reads a value of t into ptr from data produced by Marshal.
func Unmarshal(ctx context.Context, data []byte, refs *ResolvedReferences, t rtti.Type, ptr unsafe.Pointer, opts ReaderOptions) error {
	return NewReader(ctx, data, refs, opts).ReadValue(t, ptr)
}
