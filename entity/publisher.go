package entity

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/codebot/rmw-zenoh/attachment"
	"github.com/codebot/rmw-zenoh/bufpool"
	"github.com/codebot/rmw-zenoh/errors"
	"github.com/codebot/rmw-zenoh/events"
	"github.com/codebot/rmw-zenoh/fabric"
	"github.com/codebot/rmw-zenoh/graph"
	"github.com/codebot/rmw-zenoh/shm"
)

// Publisher is the rmw-level publisher: a fabric publication point
// plus a liveliness token, registered against the shared graph cache
// for QoS-compatibility matching.
type Publisher struct {
	desc    graph.EntityDescriptor
	gid     [16]byte
	cache   *graph.Cache
	events  *events.Manager
	session fabric.Session

	shm  shm.Provider
	pool *bufpool.Pool

	fabPub   fabric.Publisher
	token    fabric.LivelinessToken
	pubCache fabric.PublicationCache

	seq atomic.Int64
}

// NewPublisher declares subject on session, registers desc with
// cache, and — when desc's QoS durability is TransientLocal — opens a
// publication cache retaining QoS history-depth messages. provider
// and pool back Publish's per-sample buffer allocation: provider is
// tried first (it may decline below its size threshold or when SHM is
// disabled), pool is the fallback. The publisher's gid is derived
// deterministically from desc's (zid, id).
func NewPublisher(ctx context.Context, session fabric.Session, cache *graph.Cache, mgr *events.Manager, desc graph.EntityDescriptor, subject string, provider shm.Provider, pool *bufpool.Pool) (*Publisher, error) {
	fabPub, err := session.DeclarePublisher(ctx, subject)
	if err != nil {
		return nil, errors.WrapTransient(err, "Publisher", "NewPublisher", "declare fabric publisher")
	}

	token, err := session.DeclareLivelinessToken(ctx, graph.Encode(desc))
	if err != nil {
		fabPub.Undeclare(ctx)
		return nil, errors.WrapTransient(err, "Publisher", "NewPublisher", "declare liveliness token")
	}

	p := &Publisher{
		desc:    desc,
		gid:     deriveGID(desc.ZID, desc.ID),
		cache:   cache,
		events:  mgr,
		session: session,
		shm:     provider,
		pool:    pool,
		fabPub:  fabPub,
		token:   token,
	}

	if desc.TopicInfo != nil && desc.TopicInfo.QoS.Durability == graph.DurabilityTransientLocal {
		cacheHandle, err := session.DeclarePublicationCache(ctx, subject, historyDepth(desc.TopicInfo.QoS))
		if err != nil {
			token.Undeclare(ctx)
			fabPub.Undeclare(ctx)
			return nil, errors.WrapTransient(err, "Publisher", "NewPublisher", "declare publication cache")
		}
		p.pubCache = cacheHandle
	}

	cache.RegisterLocal(desc, p)
	return p, nil
}

// Publish sends payload with a freshly assigned sequence number,
// mirroring it into the publication cache when TransientLocal.
//
// It follows the per-sample buffer path: allocate from the SHM
// provider when it accepts payload's size, otherwise fall back to the
// ordinary buffer pool; serialize (copy) payload into the allocated
// buffer; publish it; release the buffer back to whichever of the two
// served it.
func (p *Publisher) Publish(ctx context.Context, payload []byte) error {
	buf, fromSHM, err := p.allocate(len(payload))
	if err != nil {
		return err
	}
	copy(buf, payload)
	defer p.release(buf, fromSHM)

	seq := p.seq.Add(1)
	att := attachment.Attachment{
		SequenceNumber:  seq,
		SourceTimestamp: time.Now().UnixNano(),
		SourceGID:       p.gid,
	}
	raw := attachment.Encode(att)

	if err := p.fabPub.Publish(ctx, buf, raw); err != nil {
		return errors.WrapTransient(err, "Publisher", "Publish", "fabric publish")
	}
	if p.pubCache != nil {
		if err := p.pubCache.Push(ctx, buf, raw); err != nil {
			return errors.WrapTransient(err, "Publisher", "Publish", "publication cache push")
		}
	}
	return nil
}

// allocate returns a buffer of exactly size bytes, served by the SHM
// provider when it accepts the size, otherwise by the ordinary buffer
// pool. fromSHM tells release which one to return the buffer to.
func (p *Publisher) allocate(size int) (buf []byte, fromSHM bool, err error) {
	if shmBuf, ok := p.shm.Allocate(size); ok {
		return shmBuf.Data[:size], true, nil
	}
	pooled := p.pool.Allocate(size)
	if pooled == nil {
		return nil, false, errors.WrapTransient(errors.ErrResourceExhausted, "Publisher", "Publish", "allocate from buffer pool")
	}
	return pooled.Data[:size], false, nil
}

func (p *Publisher) release(buf []byte, fromSHM bool) {
	if fromSHM {
		p.shm.Release(shm.Buffer{Data: buf})
		return
	}
	p.pool.Release(&bufpool.Buffer{Data: buf})
}

// OnMatch implements graph.MatchObserver.
func (p *Publisher) OnMatch(event graph.MatchEvent, countChange int, _ graph.EntityDescriptor) {
	p.events.UpdateStatus(translateMatchEvent(p.desc.Kind, event), countChange)
}

// Descriptor returns the publisher's graph identity.
func (p *Publisher) Descriptor() graph.EntityDescriptor {
	return p.desc
}

// Events returns the publisher's event manager, for wait-set attachment.
func (p *Publisher) Events() *events.Manager {
	return p.events
}

// Close undeclares the liveliness token, publication cache, and
// fabric publisher, and unregisters from the graph cache.
func (p *Publisher) Close(ctx context.Context) error {
	p.cache.UnregisterLocal(p.desc.ZID, p.desc.ID)

	var errs []error
	if p.pubCache != nil {
		if err := p.pubCache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.token.Undeclare(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := p.fabPub.Undeclare(ctx); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
