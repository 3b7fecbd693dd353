// Package messaging fans store events out to in-process subscribers such as
// the Redis KPI cache.
package messaging

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schoolhub/schoolhub/internal/domain/shared"
	"github.com/schoolhub/schoolhub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEventBusClosed is returned when operations are attempted on a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrQueueFull is returned by an async bus whose queue has no room.
	ErrQueueFull = errors.New("event queue is full")
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// Config configures InMemoryEventBus.
type Config struct {
	// AsyncMode hands events to a single delivery goroutine so Publish never
	// waits on a handler. Delivery order still matches publish order.
	AsyncMode bool

	// QueueSize bounds pending events in async mode.
	QueueSize int

	Logger *logger.Logger
}

func DefaultConfig() Config {
	return Config{AsyncMode: true, QueueSize: 256}
}

// InMemoryEventBus delivers events to handlers registered per event type
// and to catch-all handlers. Handler errors and panics are logged, never
// returned to the publisher.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	closed      bool

	queue chan shared.Event
	done  chan struct{}
	log   *logger.Logger

	published atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func NewInMemoryEventBus(cfg Config) *InMemoryEventBus {
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	b := &InMemoryEventBus{
		handlers: make(map[shared.EventType][]shared.EventHandler),
		log:      cfg.Logger.Named("eventbus"),
	}
	if cfg.AsyncMode {
		b.queue = make(chan shared.Event, cfg.QueueSize)
		b.done = make(chan struct{})
		go b.run()
	}
	return b
}

// Subscribe registers a handler for one event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.log.Debug("subscribed handler", logger.String("event_type", string(eventType)))
	return nil
}

// SubscribeAll registers a handler for every event.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Publish delivers event now (sync mode) or queues it (async mode).
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	b.published.Add(1)

	if b.queue == nil {
		b.mu.RUnlock()
		b.deliver(event)
		return nil
	}

	// the read lock keeps Close from closing the queue under this send
	defer b.mu.RUnlock()
	select {
	case b.queue <- event:
		return nil
	default:
		b.dropped.Add(1)
		return fmt.Errorf("%w: %s", ErrQueueFull, event.EventType())
	}
}

func (b *InMemoryEventBus) run() {
	defer close(b.done)
	for event := range b.queue {
		b.deliver(event)
	}
}

func (b *InMemoryEventBus) deliver(event shared.Event) {
	b.mu.RLock()
	handlers := make([]shared.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		start := time.Now()
		if err := safeCall(handler, event); err != nil {
			b.failed.Add(1)
			b.log.Error("handler error",
				logger.String("event_type", string(event.EventType())),
				logger.Latency(time.Since(start)),
				logger.Err(err),
			)
			continue
		}
		b.succeeded.Add(1)
	}
}

func safeCall(handler shared.EventHandler, event shared.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return handler(event)
}

// Close stops accepting events and, in async mode, waits for the queue to
// drain.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.queue != nil {
		close(b.queue)
	}
	b.mu.Unlock()

	if b.done != nil {
		<-b.done
	}
	b.log.Info("event bus closed")
	return nil
}

// Stats is a point-in-time view of the bus counters.
type Stats struct {
	Published int64 `json:"published"`
	Succeeded int64 `json:"handler_succeeded"`
	Failed    int64 `json:"handler_failed"`
	Dropped   int64 `json:"dropped"`
}

func (b *InMemoryEventBus) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Succeeded: b.succeeded.Load(),
		Failed:    b.failed.Load(),
		Dropped:   b.dropped.Load(),
	}
}
