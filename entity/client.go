package entity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codebot/rmw-zenoh/attachment"
	"github.com/codebot/rmw-zenoh/errors"
	"github.com/codebot/rmw-zenoh/events"
	"github.com/codebot/rmw-zenoh/fabric"
	"github.com/codebot/rmw-zenoh/graph"
	"github.com/codebot/rmw-zenoh/guard"
)

// Reply is one decoded service response, matched back to the request
// that produced it by Attachment.SequenceNumber.
type Reply struct {
	Payload    []byte
	Attachment attachment.Attachment
}

// Client is the rmw-level service client: it assigns each outgoing
// request a sequence number, fires it on the fabric, and maps the
// reply attachment's sequence number back to the pending call.
// Send/Take mirror rmw_send_request/rmw_take_response's non-blocking
// pair; Call is the context-cancellable convenience wrapper this
// implementation adds in place of the original's fixed wait-set
// timeout.
type Client struct {
	desc    graph.EntityDescriptor
	gid     [16]byte
	cache   *graph.Cache
	events  *events.Manager
	session fabric.Session
	subject string

	token fabric.LivelinessToken

	seq           atomic.Int64
	mu            sync.Mutex
	pending       map[int64]chan Reply
	responseReady *guard.Condition
}

// NewClient registers desc with cache and declares a liveliness token
// under its key expression; it does not declare anything on the
// fabric itself since queries are sent ad hoc via session.Query. The
// client's gid is derived deterministically from desc's (zid, id).
func NewClient(ctx context.Context, session fabric.Session, cache *graph.Cache, mgr *events.Manager, desc graph.EntityDescriptor, subject string) (*Client, error) {
	token, err := session.DeclareLivelinessToken(ctx, graph.Encode(desc))
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "NewClient", "declare liveliness token")
	}

	c := &Client{
		desc:          desc,
		gid:           deriveGID(desc.ZID, desc.ID),
		cache:         cache,
		events:        mgr,
		session:       session,
		subject:       subject,
		token:         token,
		pending:       make(map[int64]chan Reply),
		responseReady: guard.New(),
	}
	cache.RegisterLocal(desc, c)
	return c, nil
}

// Send dispatches request and returns the sequence number assigned to
// it without waiting for a reply; the request runs on its own
// goroutine bound to ctx, so cancelling ctx after Send abandons the
// in-flight query. Take(seqNum) polls for the eventual reply.
func (c *Client) Send(ctx context.Context, request []byte) (int64, error) {
	seq := c.seq.Add(1)
	att := attachment.Attachment{
		SequenceNumber:  seq,
		SourceTimestamp: time.Now().UnixNano(),
		SourceGID:       c.gid,
	}

	replyCh := make(chan Reply, 1)
	c.mu.Lock()
	c.pending[seq] = replyCh
	c.mu.Unlock()

	go c.run(ctx, seq, request, att, replyCh)

	return seq, nil
}

func (c *Client) run(ctx context.Context, seq int64, request []byte, att attachment.Attachment, replyCh chan Reply) {
	data, replyAttachment, err := c.session.Query(ctx, c.subject, request, attachment.Encode(att))
	if err != nil {
		c.events.UpdateStatus(events.MessageLost, 1)
		close(replyCh)
		return
	}

	replyAtt, err := attachment.Decode(replyAttachment)
	if err != nil {
		replyAtt = attachment.Attachment{SequenceNumber: seq}
	}

	replyCh <- Reply{Payload: data, Attachment: replyAtt}
	c.responseReady.Trigger()
}

// Take non-blockingly checks whether the reply for seqNum has arrived.
// It returns false both when seqNum is unknown and when the matching
// request failed outright; a successful reply is removed from the
// pending set once taken.
func (c *Client) Take(seqNum int64) (Reply, bool) {
	c.mu.Lock()
	ch, ok := c.pending[seqNum]
	c.mu.Unlock()
	if !ok {
		return Reply{}, false
	}

	select {
	case reply, ok := <-ch:
		c.mu.Lock()
		delete(c.pending, seqNum)
		c.mu.Unlock()
		return reply, ok
	default:
		return Reply{}, false
	}
}

// Call sends request and blocks until a reply arrives or ctx is done,
// the idiomatic replacement for the original's fixed per-request
// timeout.
func (c *Client) Call(ctx context.Context, request []byte) (Reply, error) {
	seq, err := c.Send(ctx, request)
	if err != nil {
		return Reply{}, err
	}

	c.mu.Lock()
	ch := c.pending[seq]
	c.mu.Unlock()

	select {
	case reply, ok := <-ch:
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		if !ok {
			return Reply{}, errors.WrapTransient(errors.ErrConnectionLost, "Client", "Call", "request failed")
		}
		return reply, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return Reply{}, ctx.Err()
	}
}

// ResponseReady returns the guard condition a wait-set should attach
// to for "this client has at least one reply ready" notifications.
func (c *Client) ResponseReady() *guard.Condition {
	return c.responseReady
}

// OnMatch implements graph.MatchObserver.
func (c *Client) OnMatch(event graph.MatchEvent, countChange int, _ graph.EntityDescriptor) {
	c.events.UpdateStatus(translateMatchEvent(c.desc.Kind, event), countChange)
}

// Descriptor returns the client's graph identity.
func (c *Client) Descriptor() graph.EntityDescriptor {
	return c.desc
}

// Events returns the client's event manager, for wait-set attachment.
func (c *Client) Events() *events.Manager {
	return c.events
}

// Close undeclares the liveliness token, unregisters from the graph
// cache, and abandons any pending requests.
func (c *Client) Close(ctx context.Context) error {
	c.cache.UnregisterLocal(c.desc.ZID, c.desc.ID)

	c.mu.Lock()
	c.pending = make(map[int64]chan Reply)
	c.mu.Unlock()

	return c.token.Undeclare(ctx)
}
