// Package badger is the local persistent backend: an embedded badger
// key-value store holding each entity as a JSON document.
package badger

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/schoolhub/schoolhub/internal/domain/calendar"
	"github.com/schoolhub/schoolhub/internal/domain/finance"
	"github.com/schoolhub/schoolhub/internal/domain/persistence"
	"github.com/schoolhub/schoolhub/internal/domain/staff"
	"github.com/schoolhub/schoolhub/internal/domain/student"
	"github.com/schoolhub/schoolhub/pkg/logger"
)

// BackendName identifies this backend in logs and health output.
const BackendName = "badger"

var _ persistence.Backend = (*Backend)(nil)

// Config selects where the database lives. InMemory ignores Dir.
type Config struct {
	Dir      string
	InMemory bool
}

type Backend struct {
	db           *badger.DB
	students     *collection[student.Student]
	transactions *collection[finance.Transaction]
	events       *collection[calendar.Event]
	employees    *collection[staff.Employee]
}

// Open opens (or creates) the database and its four collections.
func Open(cfg Config, log *logger.Logger) (*Backend, error) {
	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(newLogAdapter(log.Named(BackendName)))

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %q: %w", cfg.Dir, err)
	}

	b, err := newBackend(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func newBackend(db *badger.DB) (*Backend, error) {
	b := &Backend{db: db}
	var err error

	if b.students, err = newCollection(db, persistence.CollectionStudents,
		func(s student.Student) string { return s.ID }, nil); err != nil {
		return nil, err
	}
	if b.transactions, err = newCollection(db, persistence.CollectionTransactions,
		func(t finance.Transaction) string { return t.ID },
		func(t finance.Transaction) finance.Transaction {
			t.Date = t.Date.UTC()
			return t
		}); err != nil {
		return nil, err
	}
	if b.events, err = newCollection(db, persistence.CollectionEvents,
		func(e calendar.Event) string { return e.ID },
		func(e calendar.Event) calendar.Event {
			e.Start, e.End = e.Start.UTC(), e.End.UTC()
			return e
		}); err != nil {
		return nil, err
	}
	if b.employees, err = newCollection(db, persistence.CollectionEmployees,
		func(e staff.Employee) string { return e.ID },
		func(e staff.Employee) staff.Employee {
			e.AdmissionDate = e.AdmissionDate.UTC()
			return e
		}); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backend) Name() string { return BackendName }

func (b *Backend) Students() persistence.Collection[student.Student] { return b.students }

func (b *Backend) Transactions() persistence.Collection[finance.Transaction] {
	return b.transactions
}

func (b *Backend) Events() persistence.Deletable[calendar.Event] { return b.events }

func (b *Backend) Employees() persistence.Collection[staff.Employee] { return b.employees }

// Close releases the id sequences and closes the database.
func (b *Backend) Close() error {
	var errs []error
	for _, release := range []func() error{
		b.students.release,
		b.transactions.release,
		b.events.release,
		b.employees.release,
	} {
		if err := release(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := b.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// logAdapter routes badger's internal logging through the service logger.
type logAdapter struct {
	log *logger.Logger
}

func newLogAdapter(log *logger.Logger) badger.Logger {
	return logAdapter{log: log}
}

func (a logAdapter) Errorf(format string, args ...any)   { a.log.Errorf(trim(format), args...) }
func (a logAdapter) Warningf(format string, args ...any) { a.log.Warnf(trim(format), args...) }
func (a logAdapter) Infof(format string, args ...any)    { a.log.Infof(trim(format), args...) }
func (a logAdapter) Debugf(format string, args ...any)   { a.log.Debugf(trim(format), args...) }

// badger terminates most messages with a newline.
func trim(format string) string {
	if n := len(format); n > 0 && format[n-1] == '\n' {
		return format[:n-1]
	}
	return format
}
