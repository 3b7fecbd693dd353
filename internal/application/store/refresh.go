package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/schoolhub/schoolhub/internal/domain/calendar"
	"github.com/schoolhub/schoolhub/internal/domain/finance"
	"github.com/schoolhub/schoolhub/internal/domain/persistence"
	"github.com/schoolhub/schoolhub/internal/domain/shared"
	"github.com/schoolhub/schoolhub/internal/domain/staff"
	"github.com/schoolhub/schoolhub/internal/domain/student"
	"github.com/schoolhub/schoolhub/pkg/logger"
)

// Refresh discards memory and reloads all four collections from the backend.
//
// Pending writes are flushed first so the reload sees them. A collection
// that fails to load is logged and comes back empty; the others still load.
// Loading reports true until this call finishes. Statuses are re-derived
// from PaidMonths and any that differ from the stored ones are written back.
//
// A Refresh started later supersedes this one: its results are dropped.
// If ctx ends during the load the previous state is kept and ctx.Err() is
// returned; that is the only error Refresh returns.
func (s *Store) Refresh(ctx context.Context) error {
	s.mustBeReady()

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.loading = true
	s.mu.Unlock()

	if err := s.writes.flush(ctx); err != nil {
		return s.abandon(ctx, gen, err)
	}

	start := time.Now()
	var (
		wg           sync.WaitGroup
		students     []student.Student
		transactions []finance.Transaction
		events       []calendar.Event
		employees    []staff.Employee
	)
	wg.Add(4)
	go func() {
		defer wg.Done()
		students = loadCollection[student.Student](ctx, s, persistence.CollectionStudents, s.backend.Students())
	}()
	go func() {
		defer wg.Done()
		transactions = loadCollection[finance.Transaction](ctx, s, persistence.CollectionTransactions, s.backend.Transactions())
	}()
	go func() {
		defer wg.Done()
		events = loadCollection[calendar.Event](ctx, s, persistence.CollectionEvents, s.backend.Events())
	}()
	go func() {
		defer wg.Done()
		employees = loadCollection[staff.Employee](ctx, s, persistence.CollectionEmployees, s.backend.Employees())
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return s.abandon(ctx, gen, err)
	}

	// backends return oldest first
	slices.Reverse(students)
	slices.Reverse(transactions)
	slices.Reverse(employees)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.log.Info("refresh superseded; results discarded")
		return nil
	}
	// rows whose stored status is stale are rewritten below
	s.students = students
	s.restated = nil
	s.dueIndex = s.classifier.DueIndex()
	for i := range s.students {
		s.restateStudentLocked(i, s.normalizeStudentLocked(s.students[i]))
	}
	s.transactions = transactions
	s.events = events
	s.employees = employees
	s.loading = false
	kpis := s.recomputeLocked()
	s.mu.Unlock()

	s.log.Info("store refreshed",
		logger.Int("students", len(students)),
		logger.Int("transactions", len(transactions)),
		logger.Int("events", len(events)),
		logger.Int("employees", len(employees)),
		logger.Latency(time.Since(start)),
	)
	s.publish(shared.BaseEvent{
		Type:      shared.EventStoreRefreshed,
		Timestamp: time.Now().UTC(),
		Aggregate: "store",
	}, kpiEvent(kpis))
	s.persistRestated(ctx)
	return nil
}

// Load is the first Refresh, run once at startup.
func (s *Store) Load(ctx context.Context) error {
	return s.Refresh(ctx)
}

// abandon keeps the previous collections. The loading flag is cleared only
// if no newer refresh has taken over.
func (s *Store) abandon(ctx context.Context, gen uint64, err error) error {
	s.mu.Lock()
	if gen == s.generation {
		s.loading = false
	}
	s.mu.Unlock()
	s.log.Warn("refresh abandoned; previous state kept", logger.Err(err))
	return err
}

func loadCollection[T any](ctx context.Context, s *Store, name string, c persistence.Collection[T]) []T {
	var items []T
	err := s.writes.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		items, err = c.LoadAll(ctx)
		return err
	})
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("collection load failed; treating as empty",
				logger.Collection(name),
				logger.Err(err),
			)
		}
		return nil
	}
	s.log.Debug("collection loaded", logger.Collection(name), logger.Count(len(items)))
	return items
}
