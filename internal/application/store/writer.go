package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schoolhub/schoolhub/internal/domain/shared"
	"github.com/schoolhub/schoolhub/pkg/circuitbreaker"
	"github.com/schoolhub/schoolhub/pkg/logger"
	"github.com/schoolhub/schoolhub/pkg/retry"
)

// writeOp is one durable write. An op with a nil fn is a flush barrier.
type writeOp struct {
	collection string
	operation  string
	entityID   string
	fn         func(ctx context.Context) error
	done       chan struct{}
}

// WriteStats counts outcomes of the write-behind queue.
type WriteStats struct {
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

// writer drains persistence calls on a single goroutine, in the order the
// store issued them. A failed write is logged and forgotten; the in-memory
// state it mirrors is never rolled back.
type writer struct {
	queue   chan writeOp
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	timeout time.Duration
	log     *logger.Logger

	mu      sync.RWMutex
	closed  bool
	stopped chan struct{}

	succeeded atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

func newWriter(cfg options, log *logger.Logger) *writer {
	w := &writer{
		queue:   make(chan writeOp, cfg.queueSize),
		retrier: cfg.retrier,
		breaker: cfg.breaker,
		timeout: cfg.writeTimeout,
		log:     log,
		stopped: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *writer) run() {
	defer close(w.stopped)
	for op := range w.queue {
		if op.fn == nil {
			close(op.done)
			continue
		}
		w.execute(op)
	}
}

func (w *writer) execute(op writeOp) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	start := time.Now()
	err := w.breaker.Execute(ctx, func(ctx context.Context) error {
		return w.retrier.Do(ctx, op.fn)
	})
	if err != nil {
		w.failed.Add(1)
		w.log.Error("persistence write failed; in-memory state kept",
			logger.Collection(op.collection),
			logger.Operation(op.operation),
			logger.EntityID(op.entityID),
			logger.Latency(time.Since(start)),
			logger.Err(err),
		)
		return
	}
	w.succeeded.Add(1)
	w.log.Debug("persistence write ok",
		logger.Collection(op.collection),
		logger.Operation(op.operation),
		logger.EntityID(op.entityID),
		logger.Latency(time.Since(start)),
	)
}

// enqueue hands op to the worker. It blocks only while the queue is full;
// if ctx ends first or the writer is closed, the write is dropped and logged.
func (w *writer) enqueue(ctx context.Context, op writeOp) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		w.drop(op, shared.ErrServiceUnavailable)
		return
	}

	select {
	case w.queue <- op:
	case <-ctx.Done():
		w.drop(op, ctx.Err())
	}
}

func (w *writer) drop(op writeOp, reason error) {
	w.dropped.Add(1)
	w.log.Error("persistence write dropped",
		logger.Collection(op.collection),
		logger.Operation(op.operation),
		logger.EntityID(op.entityID),
		logger.Err(reason),
	)
}

// flush waits until every write enqueued before the call has been attempted.
func (w *writer) flush(ctx context.Context) error {
	barrier := writeOp{done: make(chan struct{})}

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return nil
	}
	select {
	case w.queue <- barrier:
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}
	w.mu.RUnlock()

	select {
	case <-barrier.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting writes and waits for the queue to drain.
func (w *writer) close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	select {
	case <-w.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *writer) stats() WriteStats {
	return WriteStats{
		Succeeded: w.succeeded.Load(),
		Failed:    w.failed.Load(),
		Dropped:   w.dropped.Load(),
	}
}
