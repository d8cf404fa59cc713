// Package buf implements the pooled, size-classed byte buffer and the
// primitive/varint codec the rest of the engine serializes records with
// (spec.md §4.1, component C1). The pool is process-wide lock-free storage
// organized the way internal/cache/resource_pool.go organizes a
// ResourceManager per resource type, generalized from "one manager keyed by
// ResourceType, guarded by a mutex" to "one lock-free free-list per size
// class", since the hot serialization path here cannot afford a mutex per
// allocation.
package buf

import (
	"fmt"
	"math/bits"
	"sync/atomic"
)

// NumClasses is the number of size classes the pool maintains. Class i holds
// buffers of exactly 1<<i bytes.
const NumClasses = 32

// Debug enables double-recycle detection. Production builds should leave it
// false; tests that want to assert pool-balance invariants (spec.md §8) set
// it true so a double recycle fails loudly; with it false the second
// recycle of a buffer is a silent no-op.
var Debug = false

// class is one lock-free Treiber stack of free buffers of a fixed size.
type class struct {
	size    int
	created atomic.Int64
	pooled  atomic.Pointer[node]
}

type node struct {
	buf  []byte
	next *node
}

func (c *class) push(b []byte) {
	n := &node{buf: b}
	for {
		head := c.pooled.Load()
		n.next = head
		if c.pooled.CompareAndSwap(head, n) {
			return
		}
	}
}

func (c *class) pop() []byte {
	for {
		head := c.pooled.Load()
		if head == nil {
			return nil
		}
		if c.pooled.CompareAndSwap(head, head.next) {
			return head.buf
		}
	}
}

// poolCount walks the lock-free stack and counts entries. Only used by
// tests checking the pool-balance property (spec.md §8); not on any hot
// path.
func (c *class) poolCount() int64 {
	var n int64
	for cur := c.pooled.Load(); cur != nil; cur = cur.next {
		n++
	}
	return n
}

// Pool is the process-wide size-classed buffer pool described in spec.md
// §4.1 and §9 ("global mutable pool... process-wide state with explicit
// init and test-hook teardown").
type Pool struct {
	classes  [NumClasses]class
	minSize  int
	maxSize  int
}

// NewPool constructs a pool whose classes span [minSize, maxSize]. Buffers
// outside that range are allocated on demand but never returned to a free
// list (spec.md §4.1: "buffers outside [minSize,maxSize] are not pooled").
func NewPool(minSize, maxSize int) *Pool {
	p := &Pool{minSize: minSize, maxSize: maxSize}
	for i := range p.classes {
		p.classes[i].size = 1 << uint(i)
	}
	return p
}

// DefaultPool is a ready-to-use pool spanning the full class range; most
// callers that don't need a bespoke range should use this one.
var DefaultPool = NewPool(1, 1<<30)

func classIndex(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

// AllocateAtLeast returns a buffer whose capacity is >= n, rounded up to the
// pool's size-class boundary. The returned ByteBuf has refcount 1 and no
// parent.
func (p *Pool) AllocateAtLeast(n int) *ByteBuf {
	idx := classIndex(n)
	if idx >= NumClasses {
		panic(fmt.Sprintf("buf: requested size %d exceeds largest size class", n))
	}
	c := &p.classes[idx]
	raw := c.pop()
	if raw == nil {
		raw = make([]byte, c.size)
		c.created.Add(1)
	}
	bb := &ByteBuf{
		array:     raw,
		limit:     len(raw),
		pool:      p,
		class:     idx,
		refcount:  new(atomic.Int32),
		recycled:  new(atomic.Bool),
	}
	bb.refcount.Store(1)
	return bb
}

// Recycle returns buf to its size class once its refcount drops to zero.
// Buffers whose class falls outside [minSize,maxSize] are simply dropped
// for the GC to reclaim (§4.1). Recycle is safe to call from any goroutine.
func (p *Pool) Recycle(buf *ByteBuf) {
	if buf == nil {
		return
	}
	if buf.parent != nil {
		if !buf.recycled.CompareAndSwap(false, true) {
			if Debug {
				panic("buf: double recycle of slice")
			}
			return
		}
		buf.parent.pool.Recycle(buf.parent)
		return
	}

	remaining := buf.refcount.Add(-1)
	if remaining > 0 {
		return
	}
	if remaining < 0 {
		if Debug {
			panic("buf: double recycle")
		}
		return
	}

	size := len(buf.array)
	if size < p.minSize || size > p.maxSize {
		return
	}
	p.classes[buf.class].push(buf.array)
}

// ReallocateAtLeast returns buf unchanged if it already fits n bytes in its
// own size class; otherwise it allocates a larger buffer from the pool,
// copies the filled [0:writePos) region, and recycles buf.
func (p *Pool) ReallocateAtLeast(buf *ByteBuf, n int) *ByteBuf {
	if len(buf.array) >= n {
		return buf
	}
	next := p.AllocateAtLeast(n)
	copy(next.array, buf.array[:buf.writePos])
	next.writePos = buf.writePos
	p.Recycle(buf)
	return next
}

// Stats reports, per size class, how many buffers of that class have ever
// been created and how many currently sit in the free list. Used by the
// pool-balance test property in spec.md §8.
type Stats struct {
	Size    int
	Created int64
	Pooled  int64
}

func (p *Pool) Stats() [NumClasses]Stats {
	var out [NumClasses]Stats
	for i := range p.classes {
		out[i] = Stats{
			Size:    p.classes[i].size,
			Created: p.classes[i].created.Load(),
			Pooled:  p.classes[i].poolCount(),
		}
	}
	return out
}

// Balanced reports whether created == pooled for every class, i.e. every
// buffer ever allocated has since been recycled back. This is the single
// strongest correctness signal named in spec.md §5.
func (p *Pool) Balanced() bool {
	for _, s := range p.Stats() {
		if s.Created != s.Pooled {
			return false
		}
	}
	return true
}

// Clear drops every pooled buffer. Test-hook teardown per spec.md §9.
func (p *Pool) Clear() {
	for i := range p.classes {
		p.classes[i].pooled.Store(nil)
		p.classes[i].created.Store(0)
	}
}
