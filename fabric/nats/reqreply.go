package nats

import (
	"context"

	natsgo "github.com/nats-io/nats.go"

	"github.com/codebot/rmw-zenoh/errors"
	"github.com/codebot/rmw-zenoh/fabric"
)

type queryable struct {
	sub *natsgo.Subscription
}

func (q *queryable) Undeclare(_ context.Context) error {
	if err := q.sub.Unsubscribe(); err != nil {
		return errors.Wrap(err, "queryable", "Undeclare", "unsubscribe")
	}
	return nil
}

// DeclareQueryable serves requests on keyExpr via a NATS queue
// subscription named after the subject, so multiple service instances
// on the same key expression load-balance requests exactly once each,
// mirroring the original's single-server-replies-once service model.
func (s *Session) DeclareQueryable(_ context.Context, keyExpr string, handler fabric.QueryHandler) (fabric.Queryable, error) {
	sub, err := s.conn.QueueSubscribe(keyExpr, keyExpr, func(msg *natsgo.Msg) {
		if msg.Reply == "" {
			s.log.Warn("queryable received request with no reply subject", "subject", keyExpr)
			return
		}
		data, attachment, err := decodeEnvelope(msg.Data)
		if err != nil {
			s.log.Warn("dropping malformed query envelope", "subject", keyExpr, "error", err)
			return
		}
		q := fabric.NewQuery(data, attachment, func(replyData, replyAttachment []byte) error {
			return s.conn.Publish(msg.Reply, encodeEnvelope(replyData, replyAttachment))
		})
		handler(q)
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "Session", "DeclareQueryable", keyExpr)
	}
	return &queryable{sub: sub}, nil
}

// Query sends one request on keyExpr and waits for the first reply or
// ctx's deadline.
func (s *Session) Query(ctx context.Context, keyExpr string, payload, attachment []byte) ([]byte, []byte, error) {
	reply, err := s.conn.RequestWithContext(ctx, keyExpr, encodeEnvelope(payload, attachment))
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, errors.WrapTransient(ctx.Err(), "Session", "Query", keyExpr)
		}
		return nil, nil, errors.WrapTransient(err, "Session", "Query", keyExpr)
	}
	data, replyAttachment, err := decodeEnvelope(reply.Data)
	if err != nil {
		return nil, nil, err
	}
	return data, replyAttachment, nil
}
