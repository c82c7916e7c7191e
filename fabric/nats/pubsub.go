package nats

import (
	"context"

	natsgo "github.com/nats-io/nats.go"

	"github.com/codebot/rmw-zenoh/errors"
	"github.com/codebot/rmw-zenoh/fabric"
)

type publisher struct {
	conn    *natsgo.Conn
	subject string
}

func (p *publisher) Publish(_ context.Context, data, attachment []byte) error {
	if err := p.conn.Publish(p.subject, encodeEnvelope(data, attachment)); err != nil {
		return errors.WrapTransient(err, "publisher", "Publish", p.subject)
	}
	return nil
}

func (p *publisher) Undeclare(_ context.Context) error {
	return nil
}

type subscriber struct {
	sub *natsgo.Subscription
}

func (s *subscriber) Undeclare(_ context.Context) error {
	if err := s.sub.Unsubscribe(); err != nil {
		return errors.Wrap(err, "subscriber", "Undeclare", "unsubscribe")
	}
	return nil
}

// DeclarePublisher returns a Publisher bound to keyExpr, used as-is as
// the NATS subject (callers pass an already-sanitized subject, see
// SubjectForTopic).
func (s *Session) DeclarePublisher(_ context.Context, keyExpr string) (fabric.Publisher, error) {
	return &publisher{conn: s.conn, subject: keyExpr}, nil
}

// DeclareSubscriber subscribes to keyExpr, invoking handler for each
// inbound message.
func (s *Session) DeclareSubscriber(_ context.Context, keyExpr string, handler fabric.Handler) (fabric.Subscriber, error) {
	sub, err := s.conn.Subscribe(keyExpr, func(msg *natsgo.Msg) {
		data, attachment, err := decodeEnvelope(msg.Data)
		if err != nil {
			s.log.Warn("dropping malformed envelope", "subject", keyExpr, "error", err)
			return
		}
		handler(fabric.Message{Data: data, Attachment: attachment})
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "Session", "DeclareSubscriber", keyExpr)
	}
	return &subscriber{sub: sub}, nil
}
