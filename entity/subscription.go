package entity

import (
	"context"

	"github.com/codebot/rmw-zenoh/attachment"
	"github.com/codebot/rmw-zenoh/errors"
	"github.com/codebot/rmw-zenoh/events"
	"github.com/codebot/rmw-zenoh/fabric"
	"github.com/codebot/rmw-zenoh/graph"
	"github.com/codebot/rmw-zenoh/guard"
	"github.com/codebot/rmw-zenoh/msgqueue"
	"github.com/codebot/rmw-zenoh/payload"
)

// Subscription is the rmw-level subscription: a fabric subscriber
// feeding a bounded msgqueue.Queue, plus a liveliness token and graph
// registration for QoS matching. dataAvailable is the subscription's
// own data-callback guard, distinct from its QoS match events, woken
// on every successfully queued message so an executor's wait-set
// knows to call Take.
type Subscription struct {
	desc          graph.EntityDescriptor
	cache         *graph.Cache
	events        *events.Manager
	queue         *msgqueue.Queue
	dataAvailable *guard.Condition

	fabSub fabric.Subscriber
	token  fabric.LivelinessToken
}

// NewSubscription subscribes to subject on session, buffering inbound
// messages in a queue bounded to desc's QoS history depth, triggering
// events.MessageLost on overflow.
func NewSubscription(ctx context.Context, session fabric.Session, cache *graph.Cache, mgr *events.Manager, desc graph.EntityDescriptor, subject string) (*Subscription, error) {
	depth := 1
	if desc.TopicInfo != nil {
		depth = historyDepth(desc.TopicInfo.QoS)
	}

	queue, err := msgqueue.New(depth, mgr)
	if err != nil {
		return nil, errors.WrapFatal(err, "Subscription", "NewSubscription", "create message queue")
	}

	s := &Subscription{desc: desc, cache: cache, events: mgr, queue: queue, dataAvailable: guard.New()}

	fabSub, err := session.DeclareSubscriber(ctx, subject, s.onMessage)
	if err != nil {
		return nil, errors.WrapTransient(err, "Subscription", "NewSubscription", "declare fabric subscriber")
	}
	s.fabSub = fabSub

	token, err := session.DeclareLivelinessToken(ctx, graph.Encode(desc))
	if err != nil {
		fabSub.Undeclare(ctx)
		return nil, errors.WrapTransient(err, "Subscription", "NewSubscription", "declare liveliness token")
	}
	s.token = token

	cache.RegisterLocal(desc, s)
	return s, nil
}

func (s *Subscription) onMessage(msg fabric.Message) {
	att, err := attachment.Decode(msg.Attachment)
	if err != nil {
		s.events.UpdateStatus(events.MessageLost, 1)
		return
	}
	s.queue.Push(msgqueue.Message{
		Payload:    payload.FromCoalesced(msg.Data),
		Attachment: att,
	})
	s.dataAvailable.Trigger()
}

// Take pops the oldest unread message, if any, matching the
// original's non-blocking rmw_take semantics.
func (s *Subscription) Take() (msgqueue.Message, bool) {
	return s.queue.Pop()
}

// DataAvailable returns the guard condition a wait-set should attach
// to for "this subscription has a message ready" notifications.
func (s *Subscription) DataAvailable() *guard.Condition {
	return s.dataAvailable
}

// OnMatch implements graph.MatchObserver.
func (s *Subscription) OnMatch(event graph.MatchEvent, countChange int, _ graph.EntityDescriptor) {
	s.events.UpdateStatus(translateMatchEvent(s.desc.Kind, event), countChange)
}

// Descriptor returns the subscription's graph identity.
func (s *Subscription) Descriptor() graph.EntityDescriptor {
	return s.desc
}

// Events returns the subscription's event manager, for wait-set attachment.
func (s *Subscription) Events() *events.Manager {
	return s.events
}

// Close undeclares the liveliness token and fabric subscriber,
// unregisters from the graph cache, and discards any queued messages.
func (s *Subscription) Close(ctx context.Context) error {
	s.cache.UnregisterLocal(s.desc.ZID, s.desc.ID)

	var errs []error
	if err := s.token.Undeclare(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.fabSub.Undeclare(ctx); err != nil {
		errs = append(errs, err)
	}
	s.queue.Close()

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
