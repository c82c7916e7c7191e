// Package guard implements a one-shot wake-up latch for wait-set
// integration: a boolean state plus a condition variable, triggered
// from any thread and waited on by a wait-set.
package guard

import (
	"sync"

	"github.com/codebot/rmw-zenoh/events"
)

// Condition is a boolean latch. Trigger sets it true and notifies any
// attached wait-set. Attach/Detach mirror the events manager's
// attachment protocol so a wait-set can treat guard conditions and
// event slots uniformly.
type Condition struct {
	mu       sync.Mutex
	state    bool
	attached events.Signaler
}

// New returns an untriggered Condition.
func New() *Condition {
	return &Condition{}
}

// Trigger sets the latch and wakes any attached wait-set. Idempotent:
// triggering an already-triggered condition is a no-op beyond the
// wake-up call.
func (c *Condition) Trigger() {
	c.mu.Lock()
	c.state = true
	attached := c.attached
	c.mu.Unlock()

	if attached != nil {
		attached.Signal()
	}
}

// TriggerAndRead atomically triggers the latch and returns whether it
// was already set before this call.
func (c *Condition) TriggerAndRead() (wasSet bool) {
	c.mu.Lock()
	wasSet = c.state
	c.state = true
	attached := c.attached
	c.mu.Unlock()

	if attached != nil {
		attached.Signal()
	}
	return wasSet
}

// Read reports the latch's current state without clearing it.
func (c *Condition) Read() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reset clears the latch.
func (c *Condition) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = false
}

// Attach records ws as interested in this condition. If the condition
// is already set, Attach returns true immediately without recording
// ws, mirroring events.Manager.Attach.
func (c *Condition) Attach(ws events.Signaler) (ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state {
		return true
	}
	c.attached = ws
	return false
}

// Detach clears the attached wait-set record and reports whether the
// condition is still untriggered.
func (c *Condition) Detach() (stillEmpty bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached = nil
	return !c.state
}
