// Package notify keeps the transient, auto-dismissing notifications shown to
// the user.
package notify

import (
	"sync"
	"time"
)

const (
	// Placement is where the UI draws notifications.
	Placement = "top-center"
	// DefaultTTL is how long a notification stays before auto-dismiss.
	DefaultTTL = 5 * time.Second
)

// Level is the notification severity.
type Level string

const (
	LevelError Level = "error"
	LevelInfo  Level = "info"
)

// Notification is one user-visible message.
type Notification struct {
	ID        uint64    `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	Placement string    `json:"placement"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Notifier is the write side used by components that surface failures.
type Notifier interface {
	Error(msg string) Notification
}

// Center stores active notifications and dismisses them after a TTL.
type Center struct {
	ttl time.Duration

	mu     sync.Mutex
	nextID uint64
	items  []Notification
	timers map[uint64]*time.Timer
}

// NewCenter creates a center. A non-positive ttl uses DefaultTTL.
func NewCenter(ttl time.Duration) *Center {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Center{
		ttl:    ttl,
		timers: make(map[uint64]*time.Timer),
	}
}

// Error pushes an error notification.
func (c *Center) Error(msg string) Notification {
	return c.push(LevelError, msg)
}

// Info pushes an informational notification.
func (c *Center) Info(msg string) Notification {
	return c.push(LevelInfo, msg)
}

func (c *Center) push(level Level, msg string) Notification {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	n := Notification{
		ID:        c.nextID,
		Level:     level,
		Message:   msg,
		Placement: Placement,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}
	c.items = append(c.items, n)
	id := n.ID
	c.timers[id] = time.AfterFunc(c.ttl, func() { c.Dismiss(id) })
	return n
}

// Dismiss removes a notification (click or expiry). Reports whether it was active.
func (c *Center) Dismiss(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
	for i, n := range c.items {
		if n.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

// Active returns live notifications, oldest first.
func (c *Center) Active() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, len(c.items))
	copy(out, c.items)
	return out
}

// Close stops pending timers and drops every notification.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	c.items = nil
}
