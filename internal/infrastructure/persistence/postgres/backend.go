package postgres

import (
	"context"

	"github.com/schoolhub/schoolhub/internal/domain/calendar"
	"github.com/schoolhub/schoolhub/internal/domain/finance"
	"github.com/schoolhub/schoolhub/internal/domain/persistence"
	"github.com/schoolhub/schoolhub/internal/domain/staff"
	"github.com/schoolhub/schoolhub/internal/domain/student"
	"github.com/schoolhub/schoolhub/pkg/logger"
)

// BackendName identifies this backend in logs and health output.
const BackendName = "postgres"

var _ persistence.Backend = (*Backend)(nil)

// Backend bundles the four repositories over one pool.
type Backend struct {
	conn         *Connection
	students     *StudentRepository
	transactions *TransactionRepository
	events       *EventRepository
	employees    *EmployeeRepository
}

// Open connects, applies pending migrations and returns the backend.
func Open(ctx context.Context, cfg Config, log *logger.Logger) (*Backend, error) {
	log = log.Named(BackendName)

	conn, err := NewConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ran, err := NewMigrator(conn).Migrate(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}
	log.Info("postgres ready", logger.Int("migrations_applied", ran))

	return NewBackend(conn, log), nil
}

// NewBackend wraps an open connection. Migrations are the caller's concern.
func NewBackend(conn *Connection, log *logger.Logger) *Backend {
	return &Backend{
		conn:         conn,
		students:     NewStudentRepository(conn),
		transactions: NewTransactionRepository(conn, log),
		events:       NewEventRepository(conn),
		employees:    NewEmployeeRepository(conn),
	}
}

func (b *Backend) Name() string { return BackendName }

func (b *Backend) Students() persistence.Collection[student.Student] { return b.students }

func (b *Backend) Transactions() persistence.Collection[finance.Transaction] {
	return b.transactions
}

func (b *Backend) Events() persistence.Deletable[calendar.Event] { return b.events }

func (b *Backend) Employees() persistence.Collection[staff.Employee] { return b.employees }

// Health reports pool status for the health endpoint.
func (b *Backend) Health(ctx context.Context) HealthStatus {
	return b.conn.Health(ctx)
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.conn.Ping(ctx)
}

func (b *Backend) Close() error {
	b.conn.Close()
	return nil
}
