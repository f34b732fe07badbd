package sync

import (
	"github.com/pkg/tftp/internal/pragma"
)

// SlicePool is a set of temporary slices that may be individually saved and retrieved.
// It is intended to mirror [sync.Pool], except it has been specifically designed
// to recycle datagram buffers between the receive loop and the sessions consuming them.
//
// Any slice stored in the SlicePool will be held onto indefinitely,
// and slices are returned for reuse in a round-robin order.
//
// A SlicePool is safe for use by multiple goroutines simultaneously.
//
// Unlike the standard library Pool, it is suitable to act as a free list of short-lived slices,
// since the free list is maintained as a channel, and thus has fairly low overhead.
type SlicePool[S []T, T any] struct {
	noCopy pragma.DoNotCopy

	metrics

	ch     chan S
	length int
}

// NewSlicePool returns a [SlicePool] set to hold onto depth number of items,
// and hand out new slices of length elements when it is empty.
// Slices with a capacity other than length are never retained.
//
// It will panic if given a negative depth, the same as making a negative-buffer channel.
// It will also panic if given a zero or negative length.
func NewSlicePool[S []T, T any](depth, length int) *SlicePool[S, T] {
	if length <= 0 {
		panic("tftp: bufPool: new buffer creation length must be greater than zero")
	}

	return &SlicePool[S, T]{
		ch:     make(chan S, depth),
		length: length,
	}
}

// Get retrieves a slice from the pool, sets the length to the capacity, and then returns it to the caller.
// If the pool is empty, it allocates a new slice of the pool's length.
//
// A nil SlicePool is treated as an empty pool,
// that is, it returns only nil slices.
func (p *SlicePool[S, T]) Get() S {
	if p == nil {
		return nil
	}

	select {
	case b := <-p.ch:
		p.hit()
		return b[:cap(b)] // re-extend to the full length.

	default:
		p.miss()
		return make(S, p.length)
	}
}

// Put adds the slice to the pool, if there is capacity in the pool,
// and if the capacity of the slice matches the pool's length.
//
// A nil SlicePool is treated as a pool with no capacity.
func (p *SlicePool[S, T]) Put(b S) {
	if p == nil {
		// functional default: no reuse
		return
	}

	if cap(b) != p.length {
		// Foreign or resliced buffers would hand out short reads.
		return
	}

	select {
	case p.ch <- b:
	default:
	}
}

// Len returns the number of slices currently held by the pool.
func (p *SlicePool[S, T]) Len() int {
	if p == nil {
		return 0
	}

	return len(p.ch)
}
