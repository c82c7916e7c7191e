// Package zctx implements the top-level Context: the bootstrap
// sequence that opens a fabric session, seeds and keeps a graph.Cache
// current off the liveliness keyspace, and owns every node declared
// against it. It is the root from which the rest of the core's object
// graph is reachable.
package zctx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/codebot/rmw-zenoh/bufpool"
	"github.com/codebot/rmw-zenoh/config"
	"github.com/codebot/rmw-zenoh/errors"
	"github.com/codebot/rmw-zenoh/fabric"
	natsfabric "github.com/codebot/rmw-zenoh/fabric/nats"
	"github.com/codebot/rmw-zenoh/graph"
	"github.com/codebot/rmw-zenoh/guard"
	"github.com/codebot/rmw-zenoh/metric"
	"github.com/codebot/rmw-zenoh/node"
	"github.com/codebot/rmw-zenoh/pkg/retry"
	"github.com/codebot/rmw-zenoh/pkg/worker"
	"github.com/codebot/rmw-zenoh/shm"
)

// seedGraphCache applies every seed key expression to cache. Seed
// entries describe independent peers with no ordering relationship
// between them (unlike the live put/del stream, which must stay
// ordered per entity), so decoding fans out across a bounded worker
// pool rather than running serially. Falls back to a plain loop if
// the pool cannot start.
func seedGraphCache(ctx context.Context, cache *graph.Cache, seed []string) {
	if len(seed) == 0 {
		return
	}

	workers := len(seed)
	if workers > 4 {
		workers = 4
	}
	pool := worker.NewPool(workers, len(seed), func(_ context.Context, keyExpr string) error {
		cache.ParsePut(keyExpr)
		return nil
	})

	if err := pool.Start(ctx); err != nil {
		for _, keyExpr := range seed {
			cache.ParsePut(keyExpr)
		}
		return
	}
	for _, keyExpr := range seed {
		if err := pool.Submit(keyExpr); err != nil {
			cache.ParsePut(keyExpr)
		}
	}
	pool.Stop(5 * time.Second)
}

// registry maps an opaque handle to the Context it identifies,
// letting fabric callback goroutines that only carry a handle "upgrade"
// to an owning reference without risking a use-after-free race against
// Shutdown. A callback that loses the race to Shutdown's deletion
// finds either no entry or one with alive == false, and returns
// without touching freed state.
var (
	registry   sync.Map // uint64 -> *weakEntry
	nextHandle atomic.Uint64
)

type weakEntry struct {
	alive atomic.Bool
	ctx   *Context
}

// Lookup upgrades handle to its Context if the context is still alive.
func Lookup(handle uint64) (*Context, bool) {
	v, ok := registry.Load(handle)
	if !ok {
		return nil, false
	}
	entry := v.(*weakEntry)
	if !entry.alive.Load() {
		return nil, false
	}
	return entry.ctx, true
}

// Context is the root object of one rmw session: the fabric
// connection, the graph cache it keeps current, and the nodes declared
// against it.
type Context struct {
	handle  uint64
	log     *slog.Logger
	zid     string
	session fabric.Session
	cache   *graph.Cache
	shm     shm.Provider
	bufPool *bufpool.Pool

	// Metrics exposes the context's Prometheus registry. The context
	// keeps the graph-node gauge current as the liveliness watch runs and
	// the buffer-pool usage gauge current; the event and queue-drop
	// counters are registered but not updated by the context.
	Metrics *metric.MetricsRegistry

	// GraphChanged is triggered every time a liveliness put or delete
	// is applied to cache, letting a wait-set observe graph mutations
	// alongside event and queue sources.
	GraphChanged *guard.Condition

	livelinessCloser io.Closer
	stopWatch        chan struct{}
	watchDone        chan struct{}

	idSeq atomic.Int64

	mu     sync.Mutex
	nodes  map[string]*node.Node
	closed bool
}

// Open connects to cfg.FabricURL and returns a fully bootstrapped
// Context, per construction steps 1-6: open session, optionally poll
// router reachability, seed the graph cache, start the live liveliness
// watch, and optionally construct an SHM provider. log may be nil, in
// which case slog.Default() is used.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Context, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Context", "Open", "validate config")
	}

	session, err := natsfabric.Open(ctx, cfg.FabricURL, log)
	if err != nil {
		return nil, errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrSessionOpenFailed, err), "Context", "Open", "open fabric session")
	}

	c, err := OpenWithSession(ctx, session, cfg, log)
	if err != nil {
		session.Close(ctx)
		return nil, err
	}
	return c, nil
}

// OpenWithSession runs the same bootstrap sequence as Open against an
// already-open session, letting callers (tests, alternate fabrics)
// supply their own fabric.Session rather than going through
// fabric/nats.
func OpenWithSession(ctx context.Context, session fabric.Session, cfg *config.Config, log *slog.Logger) (*Context, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Context", "OpenWithSession", "validate config")
	}

	if cfg.RouterCheckAttempts > 0 {
		// spec.md §4.12 step 2 and §5 specify a flat 100ms poll cadence
		// with a blocking bound of router_check_attempts * 100ms, not
		// retry.DefaultConfig's exponential backoff — a growing
		// interval would blow past that bound once attempts exceeds
		// 2-3, so every backoff knob is pinned flat here.
		retryCfg := retry.Config{
			MaxAttempts:  cfg.RouterCheckAttempts,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     100 * time.Millisecond,
			Multiplier:   1.0,
			AddJitter:    false,
		}
		err := retry.Do(ctx, retryCfg, func() error {
			if session.RouterReachable(ctx) {
				return nil
			}
			return errors.ErrRouterUnreachable
		})
		if err != nil {
			return nil, errors.WrapTransient(errors.ErrRouterUnreachable, "Context", "OpenWithSession", "poll router reachability")
		}
	}

	zid := uuid.New().String()

	cache := graph.New(log)

	seed, live, closer, err := session.LivelinessSubscribe(ctx, graph.Prefix)
	if err != nil {
		return nil, errors.WrapTransient(err, "Context", "OpenWithSession", "subscribe to liveliness keyspace")
	}
	seedGraphCache(ctx, cache, seed)

	// The buffer pool backs every publisher's per-sample allocation
	// (§4.9 steps 1-2) regardless of whether SHM is enabled; SHM, when
	// enabled, is only tried first and the pool remains the fallback.
	bufPool := bufpool.New(cfg.BufferPoolMaxBytes, nil)

	var shmProvider shm.Provider = shm.NoopProvider{}
	if cfg.SHM.Enabled {
		if cfg.SHM.Threshold < 0 {
			closer.Close()
			return nil, errors.WrapInvalid(errors.ErrSHMInitFailed, "Context", "OpenWithSession", "construct shm provider")
		}
		shmProvider = shm.NewPooledProvider(bufPool, cfg.SHM.Threshold)
	}

	c := &Context{
		log:          log,
		zid:          zid,
		session:      session,
		cache:        cache,
		shm:          shmProvider,
		bufPool:      bufPool,
		Metrics:      metric.NewMetricsRegistry(),
		GraphChanged: guard.New(),

		livelinessCloser: closer,
		stopWatch:        make(chan struct{}),
		watchDone:        make(chan struct{}),

		nodes: make(map[string]*node.Node),
	}

	c.Metrics.CoreMetrics().RecordGraphNodes(len(cache.Nodes()))
	c.Metrics.CoreMetrics().RecordBufferPoolUsage(bufPool.Outstanding())

	c.handle = nextHandle.Add(1)
	entry := &weakEntry{ctx: c}
	entry.alive.Store(true)
	registry.Store(c.handle, entry)

	go c.watchLiveliness(live)

	return c, nil
}

func (c *Context) watchLiveliness(live <-chan fabric.LivelinessEvent) {
	defer close(c.watchDone)
	for {
		select {
		case ev, ok := <-live:
			if !ok {
				return
			}
			if ev.Put {
				c.cache.ParsePut(ev.KeyExpr)
			} else {
				c.cache.ParseDel(ev.KeyExpr)
			}
			c.Metrics.CoreMetrics().RecordGraphNodes(len(c.cache.Nodes()))
			c.Metrics.CoreMetrics().RecordBufferPoolUsage(c.bufPool.Outstanding())
			c.GraphChanged.Trigger()
		case <-c.stopWatch:
			return
		}
	}
}

// Handle returns the opaque registry handle a fabric callback thread
// carries to look this Context back up via Lookup.
func (c *Context) Handle() uint64 {
	return c.handle
}

// ZID returns the session's own graph identity.
func (c *Context) ZID() string {
	return c.zid
}

// Cache returns the context's graph cache.
func (c *Context) Cache() *graph.Cache {
	return c.cache
}

// Session returns the underlying fabric session.
func (c *Context) Session() fabric.Session {
	return c.session
}

// SHM returns the context's shared-memory provider, a no-op one if
// SHM was not enabled at construction.
func (c *Context) SHM() shm.Provider {
	return c.shm
}

// NextEntityID returns a process-unique, monotonically increasing id
// suitable for EntityDescriptor.ID. Every node and entity created
// through this context draws from the same sequence, matching the
// original's single per-context entity-id counter.
func (c *Context) NextEntityID() string {
	return "e" + itoa(c.idSeq.Add(1))
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// CreateNode declares a node named id under info and adds it to the
// context's node registry.
func (c *Context) CreateNode(ctx context.Context, id string, info graph.NodeInfo) (*node.Node, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.ErrShuttingDown
	}
	if _, exists := c.nodes[id]; exists {
		c.mu.Unlock()
		return nil, errors.ErrDuplicateEntity
	}
	c.mu.Unlock()

	desc := graph.EntityDescriptor{
		ZID:      c.zid,
		NID:      uuid.New().String(),
		ID:       id,
		Kind:     graph.NodeKind,
		NodeInfo: info,
	}

	n, err := node.New(ctx, c.session, c.cache, desc, c.shm, c.bufPool, c.NextEntityID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		n.Shutdown(ctx)
		return nil, errors.ErrShuttingDown
	}
	c.nodes[id] = n
	c.mu.Unlock()

	return n, nil
}

// RemoveNode shuts down and forgets the node registered under id, if
// any.
func (c *Context) RemoveNode(ctx context.Context, id string) error {
	c.mu.Lock()
	n, ok := c.nodes[id]
	delete(c.nodes, id)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return n.Shutdown(ctx)
}

// Shutdown tears the context down: every owned node, then the
// liveliness watch, then the fabric session. Idempotent. The node
// registry lock is released before nodes are shut down and before the
// session is dropped, so a liveliness callback that re-enters the
// cache while a node is closing never deadlocks against this call.
func (c *Context) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	nodes := c.nodes
	c.nodes = nil
	c.mu.Unlock()

	var errs []error
	for _, n := range nodes {
		if err := n.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	close(c.stopWatch)
	if err := c.livelinessCloser.Close(); err != nil {
		errs = append(errs, err)
	}
	<-c.watchDone

	if entry, ok := registry.Load(c.handle); ok {
		entry.(*weakEntry).alive.Store(false)
	}
	registry.Delete(c.handle)

	if err := c.session.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
