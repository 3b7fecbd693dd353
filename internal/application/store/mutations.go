package store

import (
	"context"

	"github.com/schoolhub/schoolhub/internal/domain/calendar"
	"github.com/schoolhub/schoolhub/internal/domain/finance"
	"github.com/schoolhub/schoolhub/internal/domain/persistence"
	"github.com/schoolhub/schoolhub/internal/domain/shared"
	"github.com/schoolhub/schoolhub/internal/domain/staff"
	"github.com/schoolhub/schoolhub/internal/domain/student"
	"github.com/schoolhub/schoolhub/pkg/logger"
)

// Mutations never return persistence errors. Memory is updated before the
// durable write is queued; the write outcome only shows up in logs and
// WriteStats. An entity without an id gets one from the id generator.
//
// Adds are replace-or-append: adding an entity whose id is already loaded
// replaces it in place and is persisted as an update, so every id is held
// at most once.

// AddStudent prepends s. Its financial status is derived from PaidMonths;
// whatever the caller set is ignored.
func (s *Store) AddStudent(ctx context.Context, st student.Student) student.Student {
	s.mustBeReady()
	st = st.Clone()
	if st.ID == "" {
		st.ID = s.newID()
	}

	s.mu.Lock()
	if replaced, ok := s.updateStudentLocked(st); ok {
		kpis := s.recomputeLocked()
		s.mu.Unlock()

		s.log.Debug("add of loaded student replaces it", logger.StudentID(st.ID))
		s.persistStudentUpdate(ctx, replaced)
		s.persistRestated(ctx)
		s.publish(changed(shared.EventStudentUpdated, persistence.CollectionStudents, replaced.ID), kpiEvent(kpis))
		return replaced
	}
	st = s.normalizeStudentLocked(st)
	s.students = prepend(s.students, st)
	kpis := s.recomputeLocked()
	s.mu.Unlock()

	s.persist(ctx, persistence.CollectionStudents, "insert", st.ID, func(ctx context.Context) error {
		return s.backend.Students().Insert(ctx, st)
	})
	s.persistRestated(ctx)
	s.publish(changed(shared.EventStudentAdded, persistence.CollectionStudents, st.ID), kpiEvent(kpis))
	return st.Clone()
}

// UpdateStudent replaces the student with st.ID in place. It reports false,
// and changes nothing, when no such student is loaded.
func (s *Store) UpdateStudent(ctx context.Context, st student.Student) bool {
	s.mustBeReady()
	st = st.Clone()

	s.mu.Lock()
	updated, ok := s.updateStudentLocked(st)
	if !ok {
		s.mu.Unlock()
		s.log.Warn("update of unknown student ignored", logger.StudentID(st.ID))
		return false
	}
	kpis := s.recomputeLocked()
	s.mu.Unlock()

	s.persistStudentUpdate(ctx, updated)
	s.persistRestated(ctx)
	s.publish(changed(shared.EventStudentUpdated, persistence.CollectionStudents, updated.ID), kpiEvent(kpis))
	return true
}

// AddTransaction prepends t and, for a tuition payment, merges its periods
// into the referenced student. A missing student is not an error.
func (s *Store) AddTransaction(ctx context.Context, t finance.Transaction) finance.Transaction {
	s.mustBeReady()
	t = t.Clone()
	if t.ID == "" {
		t.ID = s.newID()
	}

	s.mu.Lock()
	replaced := false
	if i := indexOf(s.transactions, t.ID, transactionID); i >= 0 {
		s.transactions[i] = t
		replaced = true
	} else {
		s.transactions = prepend(s.transactions, t)
	}
	reconciled, applied := s.reconcileLocked(t)
	kpis := s.recomputeLocked()
	s.mu.Unlock()

	kind := shared.EventTransactionAdded
	if replaced {
		kind = shared.EventTransactionUpdated
		s.log.Debug("add of loaded transaction replaces it", logger.TransactionID(t.ID))
		s.persist(ctx, persistence.CollectionTransactions, "update", t.ID, func(ctx context.Context) error {
			return s.backend.Transactions().Update(ctx, t)
		})
	} else {
		s.persist(ctx, persistence.CollectionTransactions, "insert", t.ID, func(ctx context.Context) error {
			return s.backend.Transactions().Insert(ctx, t)
		})
	}

	events := []shared.Event{changed(kind, persistence.CollectionTransactions, t.ID)}
	if applied {
		s.persistStudentUpdate(ctx, reconciled)
		events = append(events,
			shared.PaymentApplied{
				BaseEvent:     shared.NewBaseEvent(shared.EventPaymentApplied, reconciled.ID),
				TransactionID: t.ID,
				Periods:       append([]string(nil), reconciled.PaidMonths...),
				Status:        string(reconciled.FinancialStatus),
			},
			changed(shared.EventStudentUpdated, persistence.CollectionStudents, reconciled.ID),
		)
	}
	s.persistRestated(ctx)
	events = append(events, kpiEvent(kpis))
	s.publish(events...)
	return t.Clone()
}

// AddEvent appends e; calendar events keep insertion order. An event whose
// id is already loaded keeps its position.
func (s *Store) AddEvent(ctx context.Context, e calendar.Event) calendar.Event {
	s.mustBeReady()
	if e.ID == "" {
		e.ID = s.newID()
	}

	s.mu.Lock()
	if i := indexOf(s.events, e.ID, eventID); i >= 0 {
		s.events[i] = e
		s.mu.Unlock()

		s.log.Debug("add of loaded event replaces it", logger.EntityID(e.ID))
		s.persistEventUpdate(ctx, e)
		s.publish(changed(shared.EventCalendarEventUpdated, persistence.CollectionEvents, e.ID))
		return e
	}
	s.events = append(s.events, e)
	s.mu.Unlock()

	s.persist(ctx, persistence.CollectionEvents, "insert", e.ID, func(ctx context.Context) error {
		return s.backend.Events().Insert(ctx, e)
	})
	s.publish(changed(shared.EventCalendarEventAdded, persistence.CollectionEvents, e.ID))
	return e
}

func (s *Store) UpdateEvent(ctx context.Context, e calendar.Event) bool {
	s.mustBeReady()

	s.mu.Lock()
	i := indexOf(s.events, e.ID, eventID)
	if i < 0 {
		s.mu.Unlock()
		s.log.Warn("update of unknown event ignored", logger.EntityID(e.ID))
		return false
	}
	s.events[i] = e
	s.mu.Unlock()

	s.persistEventUpdate(ctx, e)
	s.publish(changed(shared.EventCalendarEventUpdated, persistence.CollectionEvents, e.ID))
	return true
}

// DeleteEvent removes the event with id. Events are the only entity that
// can be deleted.
func (s *Store) DeleteEvent(ctx context.Context, id string) bool {
	s.mustBeReady()

	s.mu.Lock()
	i := indexOf(s.events, id, eventID)
	if i < 0 {
		s.mu.Unlock()
		s.log.Warn("delete of unknown event ignored", logger.EntityID(id))
		return false
	}
	s.events = append(s.events[:i:i], s.events[i+1:]...)
	s.mu.Unlock()

	s.persist(ctx, persistence.CollectionEvents, "delete", id, func(ctx context.Context) error {
		return s.backend.Events().Delete(ctx, id)
	})
	s.publish(changed(shared.EventCalendarEventDeleted, persistence.CollectionEvents, id))
	return true
}

func (s *Store) AddEmployee(ctx context.Context, e staff.Employee) staff.Employee {
	s.mustBeReady()
	e = e.Clone()
	if e.ID == "" {
		e.ID = s.newID()
	}

	s.mu.Lock()
	if i := indexOf(s.employees, e.ID, employeeID); i >= 0 {
		s.employees[i] = e
		s.mu.Unlock()

		s.log.Debug("add of loaded employee replaces it", logger.EntityID(e.ID))
		s.persistEmployeeUpdate(ctx, e)
		s.publish(changed(shared.EventEmployeeUpdated, persistence.CollectionEmployees, e.ID))
		return e.Clone()
	}
	s.employees = prepend(s.employees, e)
	s.mu.Unlock()

	s.persist(ctx, persistence.CollectionEmployees, "insert", e.ID, func(ctx context.Context) error {
		return s.backend.Employees().Insert(ctx, e)
	})
	s.publish(changed(shared.EventEmployeeAdded, persistence.CollectionEmployees, e.ID))
	return e.Clone()
}

func (s *Store) UpdateEmployee(ctx context.Context, e staff.Employee) bool {
	s.mustBeReady()
	e = e.Clone()

	s.mu.Lock()
	i := indexOf(s.employees, e.ID, employeeID)
	if i < 0 {
		s.mu.Unlock()
		s.log.Warn("update of unknown employee ignored", logger.EntityID(e.ID))
		return false
	}
	s.employees[i] = e
	s.mu.Unlock()

	s.persistEmployeeUpdate(ctx, e)
	s.publish(changed(shared.EventEmployeeUpdated, persistence.CollectionEmployees, e.ID))
	return true
}

func (s *Store) persistStudentUpdate(ctx context.Context, st student.Student) {
	s.persist(ctx, persistence.CollectionStudents, "update", st.ID, func(ctx context.Context) error {
		return s.backend.Students().Update(ctx, st)
	})
}

func (s *Store) persistEventUpdate(ctx context.Context, e calendar.Event) {
	s.persist(ctx, persistence.CollectionEvents, "update", e.ID, func(ctx context.Context) error {
		return s.backend.Events().Update(ctx, e)
	})
}

func (s *Store) persistEmployeeUpdate(ctx context.Context, e staff.Employee) {
	s.persist(ctx, persistence.CollectionEmployees, "update", e.ID, func(ctx context.Context) error {
		return s.backend.Employees().Update(ctx, e)
	})
}

// persist queues fn behind every write issued before it.
func (s *Store) persist(ctx context.Context, collection, operation, id string, fn func(ctx context.Context) error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.writes.enqueue(ctx, writeOp{
		collection: collection,
		operation:  operation,
		entityID:   id,
		fn:         fn,
	})
}

func prepend[T any](items []T, item T) []T {
	out := make([]T, 0, len(items)+1)
	out = append(out, item)
	return append(out, items...)
}
