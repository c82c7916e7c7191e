package entity

import (
	"context"
	"time"

	"github.com/codebot/rmw-zenoh/attachment"
	"github.com/codebot/rmw-zenoh/errors"
	"github.com/codebot/rmw-zenoh/events"
	"github.com/codebot/rmw-zenoh/fabric"
	"github.com/codebot/rmw-zenoh/graph"
)

// Request is the decoded form of one incoming fabric query: a client's
// request payload, its attachment, and a Reply closure that sends the
// response back stamped with the request's own sequence number.
type Request struct {
	Payload    []byte
	Attachment attachment.Attachment

	reply func([]byte) error
}

// Reply sends response back to the requesting client.
func (r *Request) Reply(response []byte) error {
	return r.reply(response)
}

// Handler processes one Request.
type Handler func(*Request)

// Service is the rmw-level service server: a fabric queryable plus a
// liveliness token, registered against the shared graph cache for
// QoS-compatibility matching with clients.
type Service struct {
	desc   graph.EntityDescriptor
	gid    [16]byte
	cache  *graph.Cache
	events *events.Manager

	fabQueryable fabric.Queryable
	token        fabric.LivelinessToken
}

// NewService declares a queryable on subject that decodes each
// incoming query's attachment, invokes handler, and encodes the
// response with a matching sequence number and this service's gid,
// derived deterministically from desc's (zid, id).
func NewService(ctx context.Context, session fabric.Session, cache *graph.Cache, mgr *events.Manager, desc graph.EntityDescriptor, subject string, handler Handler) (*Service, error) {
	s := &Service{desc: desc, gid: deriveGID(desc.ZID, desc.ID), cache: cache, events: mgr}

	fabQueryable, err := session.DeclareQueryable(ctx, subject, s.onQuery(handler))
	if err != nil {
		return nil, errors.WrapTransient(err, "Service", "NewService", "declare fabric queryable")
	}
	s.fabQueryable = fabQueryable

	token, err := session.DeclareLivelinessToken(ctx, graph.Encode(desc))
	if err != nil {
		fabQueryable.Undeclare(ctx)
		return nil, errors.WrapTransient(err, "Service", "NewService", "declare liveliness token")
	}
	s.token = token

	cache.RegisterLocal(desc, s)
	return s, nil
}

func (s *Service) onQuery(handler Handler) fabric.QueryHandler {
	return func(query *fabric.Query) {
		reqAtt, err := attachment.Decode(query.Attachment)
		if err != nil {
			s.events.UpdateStatus(events.MessageLost, 1)
			return
		}

		req := &Request{
			Payload:    query.Payload,
			Attachment: reqAtt,
			reply: func(response []byte) error {
				replyAtt := attachment.Attachment{
					SequenceNumber:  reqAtt.SequenceNumber,
					SourceTimestamp: time.Now().UnixNano(),
					SourceGID:       s.gid,
				}
				return query.Reply(response, attachment.Encode(replyAtt))
			},
		}
		handler(req)
	}
}

// OnMatch implements graph.MatchObserver.
func (s *Service) OnMatch(event graph.MatchEvent, countChange int, _ graph.EntityDescriptor) {
	s.events.UpdateStatus(translateMatchEvent(s.desc.Kind, event), countChange)
}

// Descriptor returns the service's graph identity.
func (s *Service) Descriptor() graph.EntityDescriptor {
	return s.desc
}

// Events returns the service's event manager, for wait-set attachment.
func (s *Service) Events() *events.Manager {
	return s.events
}

// Close undeclares the liveliness token and fabric queryable, and
// unregisters from the graph cache.
func (s *Service) Close(ctx context.Context) error {
	s.cache.UnregisterLocal(s.desc.ZID, s.desc.ID)

	var errs []error
	if err := s.token.Undeclare(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.fabQueryable.Undeclare(ctx); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
