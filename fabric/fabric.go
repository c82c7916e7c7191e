// Package fabric defines the capability surface a key-expression
// messaging fabric must satisfy for the core to run against it: plain
// pub/sub, request/reply, liveliness tokens with seed-query-then-watch
// semantics, and an optional transient-local publication cache. The
// core depends only on these interfaces; fabric/nats supplies the one
// concrete adapter this repository ships.
package fabric

import (
	"context"
	"io"
)

// Message is one received pub/sub payload together with its wire
// attachment, both carried as opaque bytes — decoding is the caller's
// job (see package attachment).
type Message struct {
	Data       []byte
	Attachment []byte
}

// Handler is invoked for each message delivered to a subscriber.
type Handler func(Message)

// Query is one inbound request delivered to a queryable. Reply sends
// the response; a queryable that never calls Reply leaves the
// requester to time out on its own context.
type Query struct {
	Payload    []byte
	Attachment []byte

	replyFn func(data, attachment []byte) error
}

// NewQuery constructs a Query around a reply callback. Exported so
// fabric adapters outside this module's tree can build one.
func NewQuery(payload, attachment []byte, replyFn func(data, attachment []byte) error) *Query {
	return &Query{Payload: payload, Attachment: attachment, replyFn: replyFn}
}

// Reply sends data/attachment back to the requester.
func (q *Query) Reply(data, attachment []byte) error {
	return q.replyFn(data, attachment)
}

// QueryHandler is invoked for each inbound request on a queryable.
type QueryHandler func(*Query)

// Publisher is a declared publication point on one key expression.
type Publisher interface {
	Publish(ctx context.Context, data, attachment []byte) error
	Undeclare(ctx context.Context) error
}

// Subscriber is a declared subscription; Undeclare stops delivery.
type Subscriber interface {
	Undeclare(ctx context.Context) error
}

// Queryable is a declared request handler; Undeclare stops serving.
type Queryable interface {
	Undeclare(ctx context.Context) error
}

// LivelinessToken is a declared presence marker. Undeclaring it
// removes the corresponding key from the liveliness keyspace, waking
// any peer watching a matching prefix.
type LivelinessToken interface {
	Undeclare(ctx context.Context) error
}

// LivelinessEvent is one put or delete observed on the liveliness
// keyspace: Put is true for a put and false for a delete.
type LivelinessEvent struct {
	KeyExpr string
	Put     bool
}

// PublicationCache retains the last Depth publications on a key
// expression so a late-joining subscriber with TransientLocal
// durability can recover history it missed.
type PublicationCache interface {
	Push(ctx context.Context, data, attachment []byte) error
	Close(ctx context.Context) error
}

// Session is the fabric capability surface a Context opens once and
// shares across every Node and entity it owns.
type Session interface {
	DeclarePublisher(ctx context.Context, keyExpr string) (Publisher, error)
	DeclareSubscriber(ctx context.Context, keyExpr string, handler Handler) (Subscriber, error)
	DeclareQueryable(ctx context.Context, keyExpr string, handler QueryHandler) (Queryable, error)

	// Query sends one request and waits for the first reply, or
	// ctx's deadline, whichever comes first.
	Query(ctx context.Context, keyExpr string, payload, attachment []byte) (data, replyAttachment []byte, err error)

	DeclareLivelinessToken(ctx context.Context, keyExpr string) (LivelinessToken, error)

	// LivelinessSubscribe seeds the caller with every currently-live
	// key matching prefix, then delivers a LivelinessEvent for every
	// subsequent put/delete on that prefix until the returned closer
	// is closed.
	LivelinessSubscribe(ctx context.Context, prefix string) (seed []string, live <-chan LivelinessEvent, closer io.Closer, err error)

	DeclarePublicationCache(ctx context.Context, keyExpr string, depth int) (PublicationCache, error)

	// RouterReachable reports whether the fabric's backing broker
	// currently answers, used by the context-bootstrap retry loop.
	RouterReachable(ctx context.Context) bool

	Close(ctx context.Context) error
}
