// Package testfabric provides an in-memory fabric.Session, modeled on
// the teacher's testutil.MockNATSClient, so entity/node/zctx tests
// exercise real pub/sub, request/reply, liveliness, and publication
// cache semantics without a running broker.
package testfabric

import (
	"context"
	"io"
	"sync"

	"github.com/codebot/rmw-zenoh/errors"
	"github.com/codebot/rmw-zenoh/fabric"
)

// Session is a thread-safe in-memory fabric.Session fake.
type Session struct {
	mu sync.Mutex

	subs      map[string][]*subEntry
	queryable map[string]fabric.QueryHandler
	kv        map[string][]byte
	watchers  []*liveWatcher
	caches    map[string][]cachedMsg
	closed    bool
}

type cachedMsg struct {
	data, attachment []byte
}

type subEntry struct {
	handler fabric.Handler
}

type liveWatcher struct {
	prefix string
	ch     chan fabric.LivelinessEvent
}

// New returns an empty Session.
func New() *Session {
	return &Session{
		subs:      make(map[string][]*subEntry),
		queryable: make(map[string]fabric.QueryHandler),
		kv:        make(map[string][]byte),
		caches:    make(map[string][]cachedMsg),
	}
}

func (s *Session) DeclarePublisher(_ context.Context, keyExpr string) (fabric.Publisher, error) {
	return &fakePublisher{s: s, subject: keyExpr}, nil
}

func (s *Session) DeclareSubscriber(_ context.Context, keyExpr string, handler fabric.Handler) (fabric.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.ErrShuttingDown
	}
	entry := &subEntry{handler: handler}
	s.subs[keyExpr] = append(s.subs[keyExpr], entry)
	return &fakeSubscriber{s: s, subject: keyExpr, entry: entry}, nil
}

func (s *Session) DeclareQueryable(_ context.Context, keyExpr string, handler fabric.QueryHandler) (fabric.Queryable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.ErrShuttingDown
	}
	s.queryable[keyExpr] = handler
	return &fakeQueryable{s: s, subject: keyExpr}, nil
}

func (s *Session) Query(ctx context.Context, keyExpr string, payload, attachment []byte) ([]byte, []byte, error) {
	s.mu.Lock()
	handler, ok := s.queryable[keyExpr]
	s.mu.Unlock()
	if !ok {
		return nil, nil, errors.WrapTransient(errors.ErrRouterUnreachable, "testfabric", "Query", "no queryable for "+keyExpr)
	}

	replyCh := make(chan fabric.Message, 1)
	q := fabric.NewQuery(payload, attachment, func(data, replyAttachment []byte) error {
		replyCh <- fabric.Message{Data: data, Attachment: replyAttachment}
		return nil
	})
	go handler(q)

	select {
	case reply := <-replyCh:
		return reply.Data, reply.Attachment, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

func (s *Session) DeclareLivelinessToken(_ context.Context, keyExpr string) (fabric.LivelinessToken, error) {
	s.mu.Lock()
	s.kv[keyExpr] = nil
	watchers := append([]*liveWatcher(nil), s.watchers...)
	s.mu.Unlock()

	notify(watchers, fabric.LivelinessEvent{KeyExpr: keyExpr, Put: true})
	return &fakeToken{s: s, key: keyExpr}, nil
}

func (s *Session) LivelinessSubscribe(_ context.Context, prefix string) ([]string, <-chan fabric.LivelinessEvent, io.Closer, error) {
	s.mu.Lock()
	seed := make([]string, 0, len(s.kv))
	for k := range s.kv {
		if hasPrefix(k, prefix) {
			seed = append(seed, k)
		}
	}
	w := &liveWatcher{prefix: prefix, ch: make(chan fabric.LivelinessEvent, 64)}
	s.watchers = append(s.watchers, w)
	s.mu.Unlock()

	return seed, w.ch, &fakeWatchCloser{s: s, w: w}, nil
}

func (s *Session) DeclarePublicationCache(_ context.Context, keyExpr string, depth int) (fabric.PublicationCache, error) {
	if depth <= 0 {
		depth = 1
	}
	return &fakePubCache{s: s, subject: keyExpr, depth: depth}, nil
}

func (s *Session) RouterReachable(_ context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *Session) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, w := range s.watchers {
		close(w.ch)
	}
	s.watchers = nil
	return nil
}

func notify(watchers []*liveWatcher, ev fabric.LivelinessEvent) {
	for _, w := range watchers {
		if hasPrefix(ev.KeyExpr, w.prefix) {
			select {
			case w.ch <- ev:
			default:
			}
		}
	}
}

func hasPrefix(key, prefix string) bool {
	if prefix == "" {
		return true
	}
	if len(key) < len(prefix) {
		return false
	}
	return key[:len(prefix)] == prefix
}

type fakePublisher struct {
	s       *Session
	subject string
}

func (p *fakePublisher) Publish(_ context.Context, data, attachment []byte) error {
	p.s.mu.Lock()
	entries := append([]*subEntry(nil), p.s.subs[p.subject]...)
	p.s.mu.Unlock()

	data = append([]byte(nil), data...)
	for _, e := range entries {
		e.handler(fabric.Message{Data: data, Attachment: attachment})
	}
	return nil
}

func (p *fakePublisher) Undeclare(_ context.Context) error { return nil }

type fakeSubscriber struct {
	s       *Session
	subject string
	entry   *subEntry
}

func (sub *fakeSubscriber) Undeclare(_ context.Context) error {
	sub.s.mu.Lock()
	defer sub.s.mu.Unlock()
	entries := sub.s.subs[sub.subject]
	for i, e := range entries {
		if e == sub.entry {
			sub.s.subs[sub.subject] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	return nil
}

type fakeQueryable struct {
	s       *Session
	subject string
}

func (q *fakeQueryable) Undeclare(_ context.Context) error {
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	delete(q.s.queryable, q.subject)
	return nil
}

type fakeToken struct {
	s   *Session
	key string
}

func (t *fakeToken) Undeclare(_ context.Context) error {
	t.s.mu.Lock()
	delete(t.s.kv, t.key)
	watchers := append([]*liveWatcher(nil), t.s.watchers...)
	t.s.mu.Unlock()

	notify(watchers, fabric.LivelinessEvent{KeyExpr: t.key, Put: false})
	return nil
}

type fakeWatchCloser struct {
	s *Session
	w *liveWatcher
}

func (c *fakeWatchCloser) Close() error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	for i, w := range c.s.watchers {
		if w == c.w {
			c.s.watchers = append(c.s.watchers[:i], c.s.watchers[i+1:]...)
			break
		}
	}
	return nil
}

type fakePubCache struct {
	s       *Session
	subject string
	depth   int
}

func (c *fakePubCache) Push(_ context.Context, data, attachment []byte) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	msgs := append(c.s.caches[c.subject], cachedMsg{data: append([]byte(nil), data...), attachment: attachment})
	if len(msgs) > c.depth {
		msgs = msgs[len(msgs)-c.depth:]
	}
	c.s.caches[c.subject] = msgs
	return nil
}

func (c *fakePubCache) Close(_ context.Context) error { return nil }

// History returns the retained messages for subject, most recent
// last, for test assertions against a publisher's TransientLocal
// cache.
func (s *Session) History(subject string) []fabric.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]fabric.Message, len(s.caches[subject]))
	for i, m := range s.caches[subject] {
		out[i] = fabric.Message{Data: m.data, Attachment: m.attachment}
	}
	return out
}
