package nats

import (
	"context"
	"io"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/codebot/rmw-zenoh/errors"
	"github.com/codebot/rmw-zenoh/fabric"
)

type livelinessToken struct {
	kv  jetstream.KeyValue
	key string
}

func (t *livelinessToken) Undeclare(ctx context.Context) error {
	if err := t.kv.Delete(ctx, t.key); err != nil {
		return errors.WrapTransient(err, "livelinessToken", "Undeclare", t.key)
	}
	return nil
}

// DeclareLivelinessToken puts an empty marker under keyExpr's
// KV-translated key. Peers watching a matching prefix observe the put
// as a liveliness announcement; Undeclare's delete is the
// corresponding withdrawal.
func (s *Session) DeclareLivelinessToken(ctx context.Context, keyExpr string) (fabric.LivelinessToken, error) {
	key := keyExprToKVKey(keyExpr)
	if _, err := s.kv.Put(ctx, key, nil); err != nil {
		return nil, errors.WrapTransient(err, "Session", "DeclareLivelinessToken", keyExpr)
	}
	return &livelinessToken{kv: s.kv, key: key}, nil
}

type watchCloser struct {
	watcher jetstream.KeyWatcher
}

func (w *watchCloser) Close() error {
	return w.watcher.Stop()
}

// LivelinessSubscribe seeds the caller with every key currently live
// under prefix, then streams subsequent put/delete events. The seed
// phase relies on JetStream KV Watch's initial replay (one entry per
// key, terminated by a nil marker); everything after that nil is a
// live update.
func (s *Session) LivelinessSubscribe(ctx context.Context, prefix string) ([]string, <-chan fabric.LivelinessEvent, io.Closer, error) {
	pattern := keyExprToKVKey(prefix) + ".>"

	watcher, err := s.kv.Watch(ctx, pattern)
	if err != nil {
		return nil, nil, nil, errors.WrapTransient(err, "Session", "LivelinessSubscribe", prefix)
	}

	var seed []string
	updates := watcher.Updates()

seedLoop:
	for {
		select {
		case entry, ok := <-updates:
			if !ok {
				break seedLoop
			}
			if entry == nil {
				// nil marks the end of the initial replay.
				break seedLoop
			}
			if entry.Operation() == jetstream.KeyValuePut {
				seed = append(seed, kvKeyToKeyExpr(entry.Key()))
			}
		case <-ctx.Done():
			watcher.Stop()
			return nil, nil, nil, errors.WrapTransient(ctx.Err(), "Session", "LivelinessSubscribe", "seed phase cancelled")
		}
	}

	live := make(chan fabric.LivelinessEvent, 64)
	go func() {
		defer close(live)
		for entry := range updates {
			if entry == nil {
				continue
			}
			ev := fabric.LivelinessEvent{
				KeyExpr: kvKeyToKeyExpr(entry.Key()),
				Put:     entry.Operation() == jetstream.KeyValuePut,
			}
			select {
			case live <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return seed, live, &watchCloser{watcher: watcher}, nil
}
