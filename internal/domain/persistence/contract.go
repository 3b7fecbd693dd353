// Package persistence defines what the store needs from a backing store.
// The local (badger) and remote (postgres) backends both implement Backend;
// the store never sees which one it talks to.
package persistence

import (
	"context"

	"github.com/schoolhub/schoolhub/internal/domain/calendar"
	"github.com/schoolhub/schoolhub/internal/domain/finance"
	"github.com/schoolhub/schoolhub/internal/domain/staff"
	"github.com/schoolhub/schoolhub/internal/domain/student"
)

// Collection names, also used as log field values and storage namespaces.
const (
	CollectionStudents     = "students"
	CollectionTransactions = "transactions"
	CollectionEvents       = "events"
	CollectionEmployees    = "employees"
)

// Collection is the durable side of one entity collection.
//
// LoadAll returns entities oldest-first. Insert fails with
// shared.ErrAlreadyExists on a duplicate id; Update fails with
// shared.ErrNotFound when the id is unknown to the backend.
type Collection[T any] interface {
	LoadAll(ctx context.Context) ([]T, error)
	Insert(ctx context.Context, entity T) error
	Update(ctx context.Context, entity T) error
}

// Deletable is a Collection that also supports removal by id.
type Deletable[T any] interface {
	Collection[T]
	Delete(ctx context.Context, id string) error
}

// Backend bundles the four collections behind one lifecycle.
type Backend interface {
	Name() string
	Students() Collection[student.Student]
	Transactions() Collection[finance.Transaction]
	Events() Deletable[calendar.Event]
	Employees() Collection[staff.Employee]
	Close() error
}
