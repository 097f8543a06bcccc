package account

import (
	"sync"
	"time"

	"github.com/mjproxy/core/internal/task"
)

// correlationIndex tracks the three keys spec.md §4.1 correlates
// gateway events against: nonce (client-assigned at dispatch time),
// interaction_metadata_id (assigned by Discord on INTERACTION_CREATE)
// and message_id (assigned by Discord on MESSAGE_CREATE). It is owned
// by a single Runtime and only ever touched from that Runtime's
// goroutines, but guarded by a mutex anyway since HandleEvent may be
// called from the gateway client's own goroutine.
type correlationIndex struct {
	mu sync.Mutex

	byNonce         map[string]*entry
	byInteractionID map[string]*entry
	byMessageID     map[string]*entry
}

type entry struct {
	machine  *task.Machine
	deadline time.Time
}

func newCorrelationIndex() *correlationIndex {
	return &correlationIndex{
		byNonce:         make(map[string]*entry),
		byInteractionID: make(map[string]*entry),
		byMessageID:     make(map[string]*entry),
	}
}

func (c *correlationIndex) register(nonce string, m *task.Machine, timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byNonce[nonce] = &entry{machine: m, deadline: time.Now().Add(timeout)}
}

func (c *correlationIndex) forget(nonce string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.byNonce[nonce]; ok {
		delete(c.byInteractionID, e.machine.Task().InteractionMetadataID)
		for _, mid := range e.machine.Task().MessageIDs {
			delete(c.byMessageID, mid)
		}
		delete(c.byNonce, nonce)
	}
}

// resolve applies one correlation step and returns the matched
// machine, or nil if this event doesn't match anything currently
// tracked (spec.md §4.1 order (i)-(vi)).
func (c *correlationIndex) resolve(ev Event) *task.Machine {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case EventInteractionCreate:
		e, ok := c.byNonce[ev.Nonce]
		if !ok {
			return nil
		}
		if ev.InteractionMetadataID != "" {
			c.byInteractionID[ev.InteractionMetadataID] = e
		}
		return e.machine

	case EventInteractionSuccess:
		e, ok := c.byNonce[ev.Nonce]
		if !ok {
			e, ok = c.byInteractionID[ev.InteractionMetadataID]
			if !ok {
				return nil
			}
		}
		return e.machine

	case EventMessageCreate:
		e, ok := c.byInteractionID[ev.InteractionMetadataID]
		if !ok {
			return nil
		}
		c.byMessageID[ev.MessageID] = e
		return e.machine

	case EventMessageUpdate, EventMessageDelete:
		e, ok := c.byMessageID[ev.MessageID]
		if !ok {
			return nil
		}
		return e.machine
	}
	return nil
}

// expired returns machines whose dispatch deadline has passed. The
// Runtime does not call it: SweepTimeouts checks each task's own
// start_time instead of this index.
func (c *correlationIndex) expired(now time.Time) []*task.Machine {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*task.Machine
	for _, e := range c.byNonce {
		if now.After(e.deadline) {
			out = append(out, e.machine)
		}
	}
	return out
}
