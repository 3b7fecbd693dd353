package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/schoolhub/schoolhub/internal/domain/calendar"
	"github.com/schoolhub/schoolhub/internal/domain/finance"
	"github.com/schoolhub/schoolhub/internal/domain/persistence"
	"github.com/schoolhub/schoolhub/internal/domain/shared"
	"github.com/schoolhub/schoolhub/internal/domain/staff"
	"github.com/schoolhub/schoolhub/internal/domain/student"
)

// fakeCollection is an in-memory Deletable with failure injection.
type fakeCollection[T any] struct {
	name string
	idOf func(T) string
	log  *opLog

	mu        sync.Mutex
	items     []T
	loadErr   error
	insertErr error
	updateErr error
	deleteErr error

	// gate, when set, blocks the next LoadAll until closed. entered is
	// closed once that LoadAll has taken its snapshot.
	gate    chan struct{}
	entered chan struct{}
}

func newFakeCollection[T any](name string, idOf func(T) string, log *opLog) *fakeCollection[T] {
	return &fakeCollection[T]{name: name, idOf: idOf, log: log}
}

func (c *fakeCollection[T]) LoadAll(ctx context.Context) ([]T, error) {
	c.mu.Lock()
	if c.loadErr != nil {
		err := c.loadErr
		c.mu.Unlock()
		return nil, err
	}
	out := append([]T(nil), c.items...)
	gate, entered := c.gate, c.entered
	c.gate, c.entered = nil, nil
	c.mu.Unlock()

	if gate != nil {
		close(entered)
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, nil
}

func (c *fakeCollection[T]) Insert(_ context.Context, item T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log.add(c.name, "insert", c.idOf(item))
	if c.insertErr != nil {
		return c.insertErr
	}
	for _, existing := range c.items {
		if c.idOf(existing) == c.idOf(item) {
			return shared.AlreadyExists(c.name, "Insert", c.idOf(item))
		}
	}
	c.items = append(c.items, item)
	return nil
}

func (c *fakeCollection[T]) Update(_ context.Context, item T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log.add(c.name, "update", c.idOf(item))
	if c.updateErr != nil {
		return c.updateErr
	}
	for i, existing := range c.items {
		if c.idOf(existing) == c.idOf(item) {
			c.items[i] = item
			return nil
		}
	}
	return shared.NotFound(c.name, "Update", c.idOf(item))
}

func (c *fakeCollection[T]) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log.add(c.name, "delete", id)
	if c.deleteErr != nil {
		return c.deleteErr
	}
	for i, existing := range c.items {
		if c.idOf(existing) == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return nil
		}
	}
	return shared.NotFound(c.name, "Delete", id)
}

func (c *fakeCollection[T]) seed(items ...T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, items...)
}

func (c *fakeCollection[T]) snapshot() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.items...)
}

func (c *fakeCollection[T]) setLoadErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadErr = err
}

func (c *fakeCollection[T]) setInsertErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertErr = err
}

// block makes the next LoadAll wait for release.
func (c *fakeCollection[T]) block() (entered <-chan struct{}, release func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gate = make(chan struct{})
	c.entered = make(chan struct{})
	gate := c.gate
	return c.entered, func() { close(gate) }
}

type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (l *opLog) add(collection, op, id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, fmt.Sprintf("%s.%s:%s", collection, op, id))
}

func (l *opLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...)
}

type fakeBackend struct {
	log          *opLog
	students     *fakeCollection[student.Student]
	transactions *fakeCollection[finance.Transaction]
	events       *fakeCollection[calendar.Event]
	employees    *fakeCollection[staff.Employee]
}

func newFakeBackend() *fakeBackend {
	log := &opLog{}
	return &fakeBackend{
		log:          log,
		students:     newFakeCollection(persistence.CollectionStudents, studentID, log),
		transactions: newFakeCollection(persistence.CollectionTransactions, func(t finance.Transaction) string { return t.ID }, log),
		events:       newFakeCollection(persistence.CollectionEvents, eventID, log),
		employees:    newFakeCollection(persistence.CollectionEmployees, employeeID, log),
	}
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Students() persistence.Collection[student.Student] { return b.students }

func (b *fakeBackend) Transactions() persistence.Collection[finance.Transaction] {
	return b.transactions
}

func (b *fakeBackend) Events() persistence.Deletable[calendar.Event] { return b.events }

func (b *fakeBackend) Employees() persistence.Collection[staff.Employee] { return b.employees }

func (b *fakeBackend) Close() error { return nil }

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}
