// internal/room/connection.go
package room

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Message is a server-to-client frame other than a snapshot push:
// command acknowledgements, pongs and protocol errors.
type Message struct {
	Type    string          `json:"type"`
	ID      json.RawMessage `json:"id,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    interface{}     `json:"data,omitempty"`
}

// Connection is one live transport subscribed to at most one room.
//
// Acks travel through OutChan in order. Snapshots are coalesced: only the newest
// pending snapshot is kept, so a slow reader never stalls a room broadcast and
// never ends up on a stale view.
type Connection struct {
	ID      string
	OutChan chan Message

	identity string // set by the room on attach, guarded by the room lock

	mu     sync.Mutex
	latest *Snapshot
	notify chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// NewConnection creates a connection whose OutChan holds buffer messages.
func NewConnection(buffer int) *Connection {
	if buffer <= 0 {
		buffer = 1
	}
	return &Connection{
		ID:      uuid.NewString(),
		OutChan: make(chan Message, buffer),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Write pushes a message onto OutChan without blocking. Logs if the message was dropped.
func (c *Connection) Write(msg Message) bool {
	select {
	case c.OutChan <- msg:
		return true
	default:
		logrus.WithFields(logrus.Fields{"conn": c.ID, "type": msg.Type}).Warn("OutChan full, dropped message")
		return false
	}
}

// Send queues msg, waiting for buffer space until ctx is done.
func (c *Connection) Send(ctx context.Context, msg Message) error {
	select {
	case c.OutChan <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PushSnapshot replaces the pending snapshot unless a newer one of the same room
// is already queued.
func (c *Connection) PushSnapshot(s *Snapshot) {
	c.mu.Lock()
	if c.latest == nil || c.latest.Code != s.Code || c.latest.Version < s.Version {
		c.latest = s
	}
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// SnapshotReady fires whenever a snapshot is waiting in TakeSnapshot.
func (c *Connection) SnapshotReady() <-chan struct{} {
	return c.notify
}

// TakeSnapshot returns and clears the pending snapshot, or nil.
func (c *Connection) TakeSnapshot() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.latest
	c.latest = nil
	return s
}

// Close signals that the room this connection was subscribed to is gone.
// The transport watches Done and ends the session. Safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once Close has been called.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}
