package racstream

import (
	"sync"
	"sync/atomic"
)

// SharedBuffer is a reference-counted, fixed-content byte buffer. A
// ChunkReader hands out the same SharedBuffer to every LogicalCursor
// reading from the same decompressed chunk; Retain/Release let clones
// share it without copying, and the backing slice returns to its pool
// only once the last owner releases it.
type SharedBuffer struct {
	data  []byte
	refs  atomic.Int32
	pool  *SharedBufferPool
	start int64 // logical start of the chunk this buffer holds
}

// Bytes returns the buffer's content. The returned slice is only valid
// while the caller holds a reference (i.e. between Retain/Acquire and
// the matching Release).
func (b *SharedBuffer) Bytes() []byte { return b.data }

// LogicalStart returns the logical position of the first byte in Bytes().
func (b *SharedBuffer) LogicalStart() int64 { return b.start }

// Retain increments the reference count and returns b, for callers that
// hand the same buffer to more than one owner (e.g. cloning a cursor
// mid-chunk). The caller must already hold a live reference; Retain
// never revives a buffer whose count has reached zero.
func (b *SharedBuffer) Retain() *SharedBuffer {
	b.refs.Add(1)
	return b
}

// tryRetain increments the reference count only if it is currently
// non-zero, returning false if it observed zero. It exists for callers
// that don't already hold a reference of their own - a weak-pointer
// cache lookup, say - where the struct may still be reachable (and so
// weak.Pointer.Value returns non-nil) even though its last real owner
// already released it and its backing slice went back to the pool. A
// plain Retain on such a buffer would revive a slice some other Acquire
// may already be writing into; tryRetain's CAS loop only succeeds while
// some other owner is still holding the count above zero.
func (b *SharedBuffer) tryRetain() bool {
	for {
		old := b.refs.Load()
		if old <= 0 {
			return false
		}
		if b.refs.CompareAndSwap(old, old+1) {
			return true
		}
	}
}

// Release decrements the reference count; once it reaches zero the
// backing slice is returned to the pool it was acquired from and must
// not be touched again.
func (b *SharedBuffer) Release() {
	if b.refs.Add(-1) == 0 {
		b.pool.put(b.data)
	}
}

// SharedBufferPool hands out SharedBuffers backed by pooled byte slices,
// bucketed by capacity class to keep a pool of compressed 64KB chunks
// from being starved by a pool of 4MB ones. Capacity classes are powers
// of two; a request is rounded up to the next class.
type SharedBufferPool struct {
	classes sync.Map // int (capacity class) -> *sync.Pool
}

// NewSharedBufferPool returns an empty pool. The zero value is also
// ready to use.
func NewSharedBufferPool() *SharedBufferPool {
	return &SharedBufferPool{}
}

// Acquire returns a SharedBuffer of exactly size bytes with one
// reference held, backed by a slice drawn from the matching capacity
// class (or freshly allocated if the class is empty).
func (p *SharedBufferPool) Acquire(size int, logicalStart int64) *SharedBuffer {
	class := classFor(size)
	raw := p.classPool(class).Get().([]byte)
	buf := &SharedBuffer{data: raw[:size], pool: p, start: logicalStart}
	buf.refs.Store(1)
	return buf
}

func (p *SharedBufferPool) put(data []byte) {
	class := classFor(cap(data))
	p.classPool(class).Put(data[:0:cap(data)]) //nolint:staticcheck // reset length, keep capacity
}

func (p *SharedBufferPool) classPool(class int) *sync.Pool {
	if v, ok := p.classes.Load(class); ok {
		return v.(*sync.Pool)
	}
	newPool := &sync.Pool{
		New: func() any {
			return make([]byte, class)
		},
	}
	v, _ := p.classes.LoadOrStore(class, newPool)
	return v.(*sync.Pool)
}

// classFor rounds size up to the next power-of-two capacity class, with
// a floor of 4KB so tiny chunks don't each mint their own class.
func classFor(size int) int {
	const floor = 4096
	if size <= floor {
		return floor
	}
	class := floor
	for class < size {
		class <<= 1
	}
	return class
}
