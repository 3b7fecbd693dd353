// Package store is the canonical in-memory copy of students, transactions,
// calendar events and employees.
//
// Mutations update memory synchronously, recompute the dashboard KPIs when
// students or transactions changed, and queue the matching durable write.
// Writes are optimistic: a failed write is logged, never rolled back and
// never returned to the caller. Refresh reloads everything from the backend.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/schoolhub/schoolhub/internal/domain/billing"
	"github.com/schoolhub/schoolhub/internal/domain/calendar"
	"github.com/schoolhub/schoolhub/internal/domain/dashboard"
	"github.com/schoolhub/schoolhub/internal/domain/finance"
	"github.com/schoolhub/schoolhub/internal/domain/persistence"
	"github.com/schoolhub/schoolhub/internal/domain/shared"
	"github.com/schoolhub/schoolhub/internal/domain/staff"
	"github.com/schoolhub/schoolhub/internal/domain/student"
	"github.com/schoolhub/schoolhub/pkg/logger"
)

// Store owns the four collections. The zero value is not usable; build one
// with New and release it with Close.
type Store struct {
	backend    persistence.Backend
	classifier *billing.Classifier
	publisher  shared.Publisher
	writes     *writer
	log        *logger.Logger
	newID      func() string

	mu           sync.RWMutex
	students     []student.Student     // newest first
	transactions []finance.Transaction // newest first
	events       []calendar.Event      // insertion order
	employees    []staff.Employee      // newest first
	kpis         dashboard.KPIs
	loading      bool
	generation   uint64

	// dueIndex is the period index cached statuses were derived under;
	// restated holds ids whose status changed and is not yet persisted.
	dueIndex int
	restated []string
}

// Snapshot is a consistent copy of the whole store.
type Snapshot struct {
	Students     []student.Student     `json:"students"`
	Transactions []finance.Transaction `json:"transactions"`
	Events       []calendar.Event      `json:"events"`
	Employees    []staff.Employee      `json:"employees"`
	KPIs         dashboard.KPIs        `json:"kpis"`
	Loading      bool                  `json:"loading"`
}

// New builds an empty store in the loading state and starts its write
// worker. Call Refresh to load the collections.
func New(backend persistence.Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, shared.NewDomainError("store", "New", shared.ErrInvalidInput, "backend is required")
	}

	cfg := defaultOptions(backend.Name())
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.classifier == nil {
		cfg.classifier = billing.NewClassifier(billing.DefaultCalendar(), nil)
	}

	log := cfg.log.Named("store").With(logger.Backend(backend.Name()))

	s := &Store{
		backend:    backend,
		classifier: cfg.classifier,
		publisher:  cfg.publisher,
		writes:     newWriter(cfg, log),
		log:        log,
		newID:      cfg.newID,
		loading:    true,
		dueIndex:   cfg.classifier.DueIndex(),
	}
	s.kpis = dashboard.Compute(nil, nil, s.classifier.Classify)
	return s, nil
}

// mustBeReady panics on a nil or zero-value Store: that is a wiring bug,
// not a data condition.
func (s *Store) mustBeReady() {
	if s == nil || s.backend == nil || s.writes == nil {
		panic(shared.ErrStoreNotInitialized)
	}
}

// Flush blocks until every write queued so far has been attempted.
func (s *Store) Flush(ctx context.Context) error {
	s.mustBeReady()
	return s.writes.flush(ctx)
}

// Close drains pending writes and stops the worker. The backend is owned by
// the caller and stays open.
func (s *Store) Close(ctx context.Context) error {
	s.mustBeReady()
	return s.writes.close(ctx)
}

// WriteStats reports the write queue's outcome counters.
func (s *Store) WriteStats() WriteStats {
	s.mustBeReady()
	return s.writes.stats()
}

// Loading is true until the first load attempt of all four collections has
// finished, and again while a Refresh is running.
func (s *Store) Loading() bool {
	s.mustBeReady()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Store) KPIs() dashboard.KPIs {
	s.mustBeReady()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kpis
}

func (s *Store) Students() []student.Student {
	s.mustBeReady()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneStudents(s.students)
}

func (s *Store) Transactions() []finance.Transaction {
	s.mustBeReady()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTransactions(s.transactions)
}

func (s *Store) Events() []calendar.Event {
	s.mustBeReady()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]calendar.Event(nil), s.events...)
}

func (s *Store) Employees() []staff.Employee {
	s.mustBeReady()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEmployees(s.employees)
}

// Snapshot copies every collection and the KPIs under one read lock.
func (s *Store) Snapshot() Snapshot {
	s.mustBeReady()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Students:     cloneStudents(s.students),
		Transactions: cloneTransactions(s.transactions),
		Events:       append([]calendar.Event(nil), s.events...),
		Employees:    cloneEmployees(s.employees),
		KPIs:         s.kpis,
		Loading:      s.loading,
	}
}

func (s *Store) Student(id string) (student.Student, bool) {
	s.mustBeReady()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.students, id, studentID); i >= 0 {
		return s.students[i].Clone(), true
	}
	return student.Student{}, false
}

func (s *Store) Event(id string) (calendar.Event, bool) {
	s.mustBeReady()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.events, id, eventID); i >= 0 {
		return s.events[i], true
	}
	return calendar.Event{}, false
}

func (s *Store) Employee(id string) (staff.Employee, bool) {
	s.mustBeReady()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.employees, id, employeeID); i >= 0 {
		return s.employees[i].Clone(), true
	}
	return staff.Employee{}, false
}

// TransactionsForStudent returns the student's transactions, newest first.
func (s *Store) TransactionsForStudent(id string) []finance.Transaction {
	s.mustBeReady()
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []finance.Transaction
	for _, t := range s.transactions {
		if t.StudentID == id {
			out = append(out, t.Clone())
		}
	}
	return out
}

// recomputeLocked refreshes the KPIs; mu must be held for writing. Cached
// statuses are restated first so the student list and the delinquency rate
// agree after a billing period rolls over.
func (s *Store) recomputeLocked() dashboard.KPIs {
	s.restateLocked()
	s.kpis = dashboard.Compute(s.students, s.transactions, s.classifier.Classify)
	return s.kpis
}

// publish runs outside the lock. Bus failures are diagnostics only.
func (s *Store) publish(events ...shared.Event) {
	if s.publisher == nil {
		return
	}
	for _, e := range events {
		if err := s.publisher.Publish(e); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("event publish failed",
				logger.String("event_type", string(e.EventType())),
				logger.Err(err),
			)
		}
	}
}

func kpiEvent(k dashboard.KPIs) shared.Event {
	return shared.KPIsRecomputed{
		BaseEvent: shared.NewBaseEvent(shared.EventKPIsRecomputed, "dashboard"),
		Payload:   k,
	}
}

func changed(t shared.EventType, collection, id string) shared.Event {
	return shared.EntityChanged{
		BaseEvent:  shared.NewBaseEvent(t, id),
		Collection: collection,
	}
}

func studentID(s student.Student) string { return s.ID }
func eventID(e calendar.Event) string    { return e.ID }
func employeeID(e staff.Employee) string { return e.ID }

func transactionID(t finance.Transaction) string { return t.ID }

func indexOf[T any](items []T, id string, idOf func(T) string) int {
	for i := range items {
		if idOf(items[i]) == id {
			return i
		}
	}
	return -1
}

func cloneStudents(in []student.Student) []student.Student {
	out := make([]student.Student, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

func cloneTransactions(in []finance.Transaction) []finance.Transaction {
	out := make([]finance.Transaction, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

func cloneEmployees(in []staff.Employee) []staff.Employee {
	out := make([]staff.Employee, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
