package nats

import (
	"context"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/codebot/rmw-zenoh/errors"
	"github.com/codebot/rmw-zenoh/fabric"
)

type pubCache struct {
	js      jetstream.JetStream
	subject string
}

// DeclarePublicationCache creates (or reuses) a JetStream stream
// retaining the last depth messages on keyExpr, backing a
// TransientLocal publisher's history for late-joining subscribers.
func (s *Session) DeclarePublicationCache(ctx context.Context, keyExpr string, depth int) (fabric.PublicationCache, error) {
	if depth <= 0 {
		depth = 1
	}

	streamName := streamNameForSubject(keyExpr)

	s.mu.Lock()
	stream, cached := s.streams[streamName]
	s.mu.Unlock()

	if !cached {
		var err error
		stream, err = s.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:      streamName,
			Subjects:  []string{keyExpr},
			Retention: jetstream.LimitsPolicy,
			MaxMsgsPerSubject: int64(depth),
		})
		if err != nil {
			return nil, errors.WrapTransient(err, "Session", "DeclarePublicationCache", keyExpr)
		}
		s.mu.Lock()
		s.streams[streamName] = stream
		s.mu.Unlock()
	}

	return &pubCache{js: s.js, subject: keyExpr}, nil
}

func (c *pubCache) Push(ctx context.Context, data, attachment []byte) error {
	if _, err := c.js.Publish(ctx, c.subject, encodeEnvelope(data, attachment)); err != nil {
		return errors.WrapTransient(err, "pubCache", "Push", c.subject)
	}
	return nil
}

// Close is a no-op: the backing stream outlives any single publisher
// so a late-joining TransientLocal subscriber can still recover
// history published before the stream's creator undeclared.
func (c *pubCache) Close(_ context.Context) error {
	return nil
}

func streamNameForSubject(subject string) string {
	replaced := strings.ReplaceAll(subject, ".", "_")
	return "RMW_PUBCACHE_" + replaced
}
