package opcode

import "sync"

// Allocator provides the memory of stream pages.
type Allocator interface {
	// Alloc returns a zeroed slice of exactly size bytes.
	Alloc(size int) ([]byte, error)
	// Free returns a page obtained from Alloc. The page is not used again.
	Free(page []byte)
}

type page struct {
	buf  []byte
	used int
}

func (p *page) free() int { return len(p.buf) - p.used }

// Regular pages are pooled; huge pages go straight back to the GC.
var pagePool = sync.Pool{
	New: func() any {
		buf := make([]byte, MinPageSize)
		return &buf
	},
}

type heapAllocator struct{}

// HeapAllocator returns the default allocator. Pages of MinPageSize are
// recycled through a pool.
func HeapAllocator() Allocator { return heapAllocator{} }

func (heapAllocator) Alloc(size int) ([]byte, error) {
	if size == MinPageSize {
		buf := *pagePool.Get().(*[]byte)
		clear(buf)
		return buf, nil
	}
	return make([]byte, size), nil
}

func (heapAllocator) Free(p []byte) {
	if cap(p) != MinPageSize {
		return
	}
	p = p[:MinPageSize]
	pagePool.Put(&p)
}
