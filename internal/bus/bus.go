// Package bus is the process-local mutation event bus. Mutating services
// publish one event after each successful commit; the cache invalidator
// subscribes synchronously so a purge completes before the mutation API
// returns, and the audit recorder subscribes through a buffered channel that
// never blocks the publisher.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/platformbuilds/warden-core/internal/monitoring"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// EventType names the mutated entity class.
type EventType string

const (
	EventUserRoleChanged       EventType = "user_role.changed"
	EventRolePermissionChanged EventType = "role_permission.changed"
	EventRoleChanged           EventType = "role.changed"
	EventUserChanged           EventType = "user.changed"
	EventPolicyChanged         EventType = "policy.changed"
	EventOrgChanged            EventType = "org.changed"
)

// Event describes one committed mutation. Principals carries every alias of
// the affected user (external id and bearer subject) for targeted purges; an
// empty slice means the invalidation is tenant-wide.
type Event struct {
	Type       EventType
	TenantID   string
	Principals []string
	EntityID   string
	Action     string
	At         time.Time
}

// TenantWide reports whether the event invalidates the whole tenant rather
// than specific principals.
func (e Event) TenantWide() bool { return len(e.Principals) == 0 }

// Handler processes one event. Synchronous handlers run on the publisher's
// goroutine and must be fast; async handlers run on their own worker.
type Handler func(ctx context.Context, event Event)

type asyncSubscriber struct {
	name string
	ch   chan Event
}

// Bus delivers events at-most-once within the process. Subscriptions are
// registered at startup, before any publish.
type Bus struct {
	mu       sync.RWMutex
	syncSubs []Handler
	async    []*asyncSubscriber
	wg       sync.WaitGroup
	closed   bool
	logger   logger.Logger
}

func New(log logger.Logger) *Bus {
	return &Bus{logger: log}
}

// Subscribe registers a synchronous handler. Publish does not return until
// the handler does; this is what gives mutations read-after-write semantics
// with respect to the decision caches.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.syncSubs = append(b.syncSubs, h)
}

// SubscribeAsync registers a handler behind a buffered channel drained by a
// dedicated worker. When the buffer is full the event is dropped and counted;
// the publisher is never blocked.
func (b *Bus) SubscribeAsync(name string, buffer int, h Handler) {
	if buffer < 1 {
		buffer = 1
	}
	sub := &asyncSubscriber{name: name, ch: make(chan Event, buffer)}

	b.mu.Lock()
	b.async = append(b.async, sub)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for event := range sub.ch {
			h(context.Background(), event)
		}
	}()
}

// Publish delivers the event to every subscriber. Synchronous subscribers run
// inline in registration order; async subscribers receive a non-blocking send.
func (b *Bus) Publish(ctx context.Context, event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	b.mu.RLock()
	syncSubs := b.syncSubs
	async := b.async
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return
	}

	for _, h := range syncSubs {
		h(ctx, event)
	}

	for _, sub := range async {
		select {
		case sub.ch <- event:
		default:
			monitoring.RecordBusEventDropped()
			b.logger.Warn("event bus subscriber saturated; event dropped",
				"subscriber", sub.name, "eventType", string(event.Type), "tenant", event.TenantID)
		}
	}
}

// Close stops accepting events and waits for async workers to drain their
// buffers.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	async := b.async
	b.mu.Unlock()

	for _, sub := range async {
		close(sub.ch)
	}
	b.wg.Wait()
}
