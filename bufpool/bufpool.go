// Package bufpool implements the bounded, thread-safe pool of reusable
// byte buffers that backs message serialization. It mirrors the
// generic buffer package's overflow-accounting approach, specialized to
// a single LIFO free list bounded by total byte capacity rather than
// item count.
package bufpool

import (
	"os"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultMaxPoolBytes is used when RMW_ZENOH_BUFFER_POOL_MAX_SIZE_BYTES
// is unset or unparseable.
const DefaultMaxPoolBytes = 16 * 1024 * 1024

const envMaxPoolBytes = "RMW_ZENOH_BUFFER_POOL_MAX_SIZE_BYTES"

// Buffer is a reusable byte buffer handed out by the pool. Its contents
// are unspecified on allocation; callers must not assume zeroing.
type Buffer struct {
	Data []byte
}

// Cap returns the buffer's backing capacity.
func (b *Buffer) Cap() int {
	return cap(b.Data)
}

// Pool is a bounded LIFO pool of *Buffer. A single mutex serializes
// Allocate and Release; each critical section does at most one list
// operation plus, on a cache miss, one heap allocation or in-place
// grow.
type Pool struct {
	mu          sync.Mutex
	free        []*Buffer
	maxBytes    int64
	outstanding int64 // bytes currently allocated/pooled, counted against maxBytes

	metrics *Metrics
}

// Metrics holds the Prometheus gauges exposing pool utilization.
type Metrics struct {
	outstandingBytes prometheus.Gauge
	pooledBytes      prometheus.Gauge
	allocations      prometheus.Counter
	reuses           prometheus.Counter
	exhausted        prometheus.Counter
}

// NewMetrics registers the pool's gauges/counters against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		outstandingBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rmw_zenoh_bufpool_outstanding_bytes",
			Help: "Bytes currently allocated or pooled against the buffer pool cap.",
		}),
		pooledBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rmw_zenoh_bufpool_pooled_bytes",
			Help: "Bytes sitting idle in the free list.",
		}),
		allocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rmw_zenoh_bufpool_allocations_total",
			Help: "Buffers heap-allocated due to an empty or undersized free list.",
		}),
		reuses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rmw_zenoh_bufpool_reuses_total",
			Help: "Buffers served directly from the free list without growing.",
		}),
		exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rmw_zenoh_bufpool_exhausted_total",
			Help: "Allocate calls that returned nil because the cap was exceeded.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.outstandingBytes, m.pooledBytes, m.allocations, m.reuses, m.exhausted)
	}
	return m
}

// New creates a pool bounded by maxBytes. A non-positive maxBytes means
// every Allocate call fails.
func New(maxBytes int64, metrics *Metrics) *Pool {
	return &Pool{maxBytes: maxBytes, metrics: metrics}
}

// NewFromEnv reads RMW_ZENOH_BUFFER_POOL_MAX_SIZE_BYTES, falling back to
// DefaultMaxPoolBytes.
func NewFromEnv(metrics *Metrics) *Pool {
	return New(maxPoolBytesFromEnv(), metrics)
}

func maxPoolBytesFromEnv() int64 {
	v := os.Getenv(envMaxPoolBytes)
	if v == "" {
		return DefaultMaxPoolBytes
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return DefaultMaxPoolBytes
	}
	return n
}

// Allocate returns a buffer with capacity >= size, or nil if doing so
// would exceed the pool's byte cap. Contents are unspecified.
func (p *Pool) Allocate(size int) *Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.maxBytes <= 0 {
		p.recordExhausted()
		return nil
	}

	if len(p.free) == 0 {
		if p.outstanding+int64(size) > p.maxBytes {
			p.recordExhausted()
			return nil
		}
		p.outstanding += int64(size)
		p.recordAllocation()
		p.recordGauges()
		return &Buffer{Data: make([]byte, size)}
	}

	buf := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]

	if buf.Cap() < size {
		delta := int64(size - buf.Cap())
		if p.outstanding+delta > p.maxBytes {
			// Grow failed: put the buffer back and report exhaustion.
			p.free = append(p.free, buf)
			p.recordExhausted()
			return nil
		}
		p.outstanding += delta
		grown := make([]byte, size)
		buf.Data = grown
	} else {
		buf.Data = buf.Data[:size]
	}

	p.recordReuse()
	p.recordGauges()
	return buf
}

// Release returns buf to the pool's free list. It is never freed here;
// buffers are reclaimed only when the pool itself is garbage collected.
func (p *Pool) Release(buf *Buffer) {
	if buf == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, buf)
	p.recordGauges()
}

// Outstanding returns the total bytes currently counted against the
// cap (both checked-out and pooled).
func (p *Pool) Outstanding() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}

func (p *Pool) recordAllocation() {
	if p.metrics != nil {
		p.metrics.allocations.Inc()
	}
}

func (p *Pool) recordReuse() {
	if p.metrics != nil {
		p.metrics.reuses.Inc()
	}
}

func (p *Pool) recordExhausted() {
	if p.metrics != nil {
		p.metrics.exhausted.Inc()
	}
}

func (p *Pool) recordGauges() {
	if p.metrics == nil {
		return
	}
	var pooled int64
	for _, b := range p.free {
		pooled += int64(b.Cap())
	}
	p.metrics.outstandingBytes.Set(float64(p.outstanding))
	p.metrics.pooledBytes.Set(float64(pooled))
}
