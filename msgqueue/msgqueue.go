// Package msgqueue implements a subscription's per-instance history
// queue: a bounded FIFO of received messages, each paired with its
// wire attachment, that drops the oldest entry on overflow and reports
// the drop through the entity's events manager.
package msgqueue

import (
	"github.com/codebot/rmw-zenoh/attachment"
	"github.com/codebot/rmw-zenoh/events"
	"github.com/codebot/rmw-zenoh/payload"
	"github.com/codebot/rmw-zenoh/pkg/buffer"
)

// Message pairs a received payload with the attachment that arrived
// alongside it on the wire.
type Message struct {
	Payload    payload.View
	Attachment attachment.Attachment
}

// Queue is a bounded history buffer for one subscription. It wraps a
// generic circular buffer, translating overflow into a
// events.MessageLost status update rather than a silent counter.
type Queue struct {
	buf    buffer.Buffer[Message]
	events *events.Manager
}

// New returns a Queue with the given history depth (>=1). mgr receives
// a MessageLost update each time an unread message is evicted to make
// room for a new one; mgr may be nil if the caller does not care to
// track loss.
func New(depth int, mgr *events.Manager) (*Queue, error) {
	if depth <= 0 {
		depth = 1
	}

	q := &Queue{events: mgr}
	buf, err := buffer.NewCircularBuffer[Message](
		depth,
		buffer.WithOverflowPolicy[Message](buffer.DropOldest),
		buffer.WithDropCallback[Message](q.onDrop),
	)
	if err != nil {
		return nil, err
	}
	q.buf = buf
	return q, nil
}

func (q *Queue) onDrop(_ Message) {
	if q.events != nil {
		q.events.UpdateStatus(events.MessageLost, 1)
	}
}

// Push enqueues a received message, evicting the oldest unread message
// if the queue is already at its history depth.
func (q *Queue) Push(msg Message) {
	// DropOldest never returns an error for a non-closed buffer; a
	// closed queue silently discards, matching a torn-down subscription.
	_ = q.buf.Write(msg)
}

// Pop dequeues the oldest unread message, if any.
func (q *Queue) Pop() (Message, bool) {
	return q.buf.Read()
}

// PopBatch dequeues up to max unread messages in arrival order.
func (q *Queue) PopBatch(max int) []Message {
	return q.buf.ReadBatch(max)
}

// Len reports the number of unread messages currently queued.
func (q *Queue) Len() int {
	return q.buf.Size()
}

// Depth reports the configured history depth.
func (q *Queue) Depth() int {
	return q.buf.Capacity()
}

// Empty reports whether the queue currently has no unread messages.
func (q *Queue) Empty() bool {
	return q.buf.IsEmpty()
}

// Close releases the queue's buffer. Messages still queued are
// discarded without raising further MessageLost events.
func (q *Queue) Close() error {
	return q.buf.Close()
}
