package opcode

const (
	// MinPageSize is the smallest regular page.
	MinPageSize = 64 << 10
	// MinHugePageSize is the smallest page allocated for a record that does
	// not fit a regular page.
	MinHugePageSize = 2 << 20
)

// Options configure a Stream.
type Options struct {
	// PageSize is the size of regular pages. Values below MinPageSize are
	// raised to it.
	PageSize int
	// HugePageSize is the minimum size of pages holding oversized records.
	// Values below MinHugePageSize are raised to it.
	HugePageSize int
	// Allocator provides page memory. Nil uses the pooled heap allocator.
	Allocator Allocator
}

// DefaultOptions returns the default stream options.
func DefaultOptions() Options {
	return Options{
		PageSize:     MinPageSize,
		HugePageSize: MinHugePageSize,
	}
}

func (o Options) normalized() Options {
	o.PageSize = max(o.PageSize, MinPageSize)
	o.HugePageSize = max(o.HugePageSize, MinHugePageSize)
	if o.Allocator == nil {
		o.Allocator = HeapAllocator()
	}
	return o
}
