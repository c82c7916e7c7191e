// Package nats adapts github.com/nats-io/nats.go (core pub/sub and
// JetStream) to the fabric.Session capability surface: NATS subjects
// stand in for key-expression pub/sub, a JetStream KV bucket stands in
// for the liveliness keyspace's seed-query-then-watch semantics, and a
// JetStream stream backs each durable publication cache. Connection
// handling follows the teacher's natsclient.Client: a slog logger
// threaded through every handler rather than a bespoke circuit
// breaker, since the core's own pkg/retry already governs the
// router-reachability bootstrap loop (see zctx).
package nats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/codebot/rmw-zenoh/errors"
)

const livelinessBucket = "rmw_zenoh_liveliness"

// Session is the NATS-backed fabric.Session implementation.
type Session struct {
	log  *slog.Logger
	conn *natsgo.Conn
	js   jetstream.JetStream
	kv   jetstream.KeyValue

	mu      sync.Mutex
	streams map[string]jetstream.Stream
}

// Open connects to the NATS server at url and initializes JetStream
// plus the shared liveliness KV bucket. log may be nil, in which case
// slog.Default() is used.
func Open(ctx context.Context, url string, log *slog.Logger) (*Session, error) {
	if log == nil {
		log = slog.Default()
	}

	s := &Session{log: log, streams: make(map[string]jetstream.Stream)}

	conn, err := natsgo.Connect(url,
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
		natsgo.Timeout(5*time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			s.log.Warn("fabric disconnected", "error", err)
		}),
		natsgo.ReconnectHandler(func(_ *natsgo.Conn) {
			s.log.Info("fabric reconnected")
		}),
		natsgo.ErrorHandler(func(_ *natsgo.Conn, _ *natsgo.Subscription, err error) {
			s.log.Error("fabric error", "error", err)
		}),
	)
	if err != nil {
		return nil, errors.WrapTransient(err, "Session", "Open", "connect to fabric router")
	}
	s.conn = conn

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, errors.WrapFatal(err, "Session", "Open", "initialize jetstream context")
	}
	s.js = js

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: livelinessBucket,
	})
	if err != nil {
		conn.Close()
		return nil, errors.WrapFatal(err, "Session", "Open", "create liveliness bucket")
	}
	s.kv = kv

	return s, nil
}

// RouterReachable reports whether the connection currently answers a
// round trip, used by the context-bootstrap retry loop.
func (s *Session) RouterReachable(_ context.Context) bool {
	if s.conn == nil || !s.conn.IsConnected() {
		return false
	}
	_, err := s.conn.RTT()
	return err == nil
}

// Close drains and closes the underlying connection.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	s.streams = nil
	s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- s.conn.Drain() }()

	select {
	case err := <-done:
		s.conn.Close()
		if err != nil {
			return errors.Wrap(err, "Session", "Close", "drain connection")
		}
		return nil
	case <-ctx.Done():
		s.conn.Close()
		return errors.Wrap(ctx.Err(), "Session", "Close", "context cancelled during drain")
	}
}
