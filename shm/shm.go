// Package shm models the optional shared-memory allocation path as a
// runtime capability interface rather than a compile-time build tag,
// per the design note on SHM optionality: the core logic never
// branches on a platform feature flag, it asks a Provider whether it
// can serve a given size.
package shm

import "github.com/codebot/rmw-zenoh/bufpool"

// Buffer is the allocation handle a Provider hands back. It is
// deliberately minimal: callers only need the bytes and a way to
// give them back.
type Buffer struct {
	Data []byte
}

// Provider decides, for a given serialized size, whether it can serve
// the allocation from shared memory.
type Provider interface {
	// Allocate returns a buffer and true if size is served from shared
	// memory, or a zero Buffer and false if the caller should fall
	// back to the ordinary buffer pool.
	Allocate(size int) (Buffer, bool)
	// Release returns a buffer previously obtained from Allocate.
	Release(Buffer)
}

// NoopProvider never serves an allocation. It is the default when SHM
// is disabled, matching the open question's resolution that SHM is
// disabled unless config explicitly enables it.
type NoopProvider struct{}

// Allocate always reports false.
func (NoopProvider) Allocate(size int) (Buffer, bool) { return Buffer{}, false }

// Release is a no-op; NoopProvider never hands out buffers.
func (NoopProvider) Release(Buffer) {}

// PooledProvider layers shared-memory-like allocation atop an ordinary
// bufpool.Pool, gated by a message-size threshold: samples at or above
// the threshold are served (pretending to be shared memory for the
// purposes of this core, since no privileged SHM transport is
// available outside the fabric adapter); smaller ones fall through to
// the caller's regular buffer pool path.
type PooledProvider struct {
	pool      *bufpool.Pool
	threshold int
}

// NewPooledProvider returns a Provider that serves allocations whose
// size is >= threshold from pool.
func NewPooledProvider(pool *bufpool.Pool, threshold int) *PooledProvider {
	return &PooledProvider{pool: pool, threshold: threshold}
}

// Allocate serves size from the underlying pool when size >= threshold
// and the pool has room; otherwise it declines.
func (p *PooledProvider) Allocate(size int) (Buffer, bool) {
	if size < p.threshold {
		return Buffer{}, false
	}
	buf := p.pool.Allocate(size)
	if buf == nil {
		return Buffer{}, false
	}
	return Buffer{Data: buf.Data}, true
}

// Release returns b's backing array to the pool.
func (p *PooledProvider) Release(b Buffer) {
	if b.Data == nil {
		return
	}
	p.pool.Release(&bufpool.Buffer{Data: b.Data})
}
