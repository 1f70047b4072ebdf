// Package bufpool keeps a small, bounded set of large byte buffers for
// reuse across payload reads.
//
// Unlike sync.Pool, held buffers are not reclaimed under memory pressure,
// so the pool is capped at a fixed number of buffers.
package bufpool

import "sync"

// Threshold is the payload size above which buffers are drawn from a pool.
const Threshold = 1 << 20

// DefaultCapacity is the number of buffers a pool holds by default.
const DefaultCapacity = 10

// Pool is a capacity-bounded free list of byte buffers. It is safe for
// concurrent use.
type Pool struct {
	mu       sync.Mutex
	free     [][]byte
	capacity int
}

// New returns a pool that holds at most capacity buffers. A capacity below
// one uses DefaultCapacity.
func New(capacity int) *Pool {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Pool{capacity: capacity}
}

// Get returns a buffer of length n. A held buffer is reused when its
// capacity is at least n and no more than 2n, so a small request never
// pins a much larger buffer.
func (p *Pool) Get(n int) []byte {
	p.mu.Lock()
	for i, b := range p.free {
		if c := cap(b); c >= n && c <= 2*n {
			last := len(p.free) - 1
			p.free[i] = p.free[last]
			p.free[last] = nil
			p.free = p.free[:last]
			p.mu.Unlock()
			return b[:n]
		}
	}
	p.mu.Unlock()
	return make([]byte, n)
}

// Put offers b back to the pool. It is dropped if the pool is full or b
// has no capacity.
func (p *Pool) Put(b []byte) {
	if cap(b) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) < p.capacity {
		p.free = append(p.free, b[:0])
	}
}

// Len returns the number of buffers currently held.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Capacity returns the maximum number of held buffers.
func (p *Pool) Capacity() int {
	return p.capacity
}

// Reset drops every held buffer.
func (p *Pool) Reset() {
	p.mu.Lock()
	p.free = nil
	p.mu.Unlock()
}
