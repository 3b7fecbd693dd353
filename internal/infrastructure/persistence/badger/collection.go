package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/schoolhub/schoolhub/internal/domain/shared"
)

// document is what one key holds: the entity as JSON plus its insertion
// sequence, which LoadAll sorts by.
type document struct {
	Seq    uint64          `json:"seq"`
	Entity json.RawMessage `json:"entity"`
}

// collection stores one entity type under the "<name>/" key prefix.
type collection[T any] struct {
	db   *badger.DB
	name string
	seq  *badger.Sequence
	idOf func(T) string

	// normalize runs before every write, e.g. to pin instants to UTC.
	normalize func(T) T
}

func newCollection[T any](db *badger.DB, name string, idOf func(T) string, normalize func(T) T) (*collection[T], error) {
	seq, err := db.GetSequence([]byte(name+"#seq"), 64)
	if err != nil {
		return nil, fmt.Errorf("badger: sequence for %s: %w", name, err)
	}
	if normalize == nil {
		normalize = func(v T) T { return v }
	}
	return &collection[T]{db: db, name: name, seq: seq, idOf: idOf, normalize: normalize}, nil
}

func (c *collection[T]) prefix() []byte {
	return []byte(c.name + "/")
}

func (c *collection[T]) key(id string) []byte {
	return []byte(c.name + "/" + id)
}

// LoadAll returns every entity oldest first.
func (c *collection[T]) LoadAll(ctx context.Context) ([]T, error) {
	type loaded struct {
		seq    uint64
		entity T
	}
	var items []loaded

	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := c.prefix()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var doc document
				if err := json.Unmarshal(val, &doc); err != nil {
					return err
				}
				var entity T
				if err := json.Unmarshal(doc.Entity, &entity); err != nil {
					return err
				}
				items = append(items, loaded{seq: doc.Seq, entity: entity})
				return nil
			})
			if err != nil {
				return fmt.Errorf("%w: %s: %v", shared.ErrInvalidFormat, item.Key(), err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: load %s: %w", c.name, err)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].seq < items[j].seq })
	out := make([]T, len(items))
	for i := range items {
		out[i] = items[i].entity
	}
	return out, nil
}

func (c *collection[T]) Insert(ctx context.Context, entity T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entity = c.normalize(entity)
	id := c.idOf(entity)

	seq, err := c.seq.Next()
	if err != nil {
		return fmt.Errorf("badger: next sequence for %s: %w", c.name, err)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(c.key(id))
		switch {
		case err == nil:
			return shared.AlreadyExists(c.name, "Insert", id)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return c.put(txn, id, seq, entity)
	})
}

// Update keeps the entity's original sequence so its position survives.
func (c *collection[T]) Update(ctx context.Context, entity T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entity = c.normalize(entity)
	id := c.idOf(entity)

	return c.db.Update(func(txn *badger.Txn) error {
		seq, err := c.currentSeq(txn, id)
		if err != nil {
			return err
		}
		return c.put(txn, id, seq, entity)
	})
}

func (c *collection[T]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(c.key(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return shared.NotFound(c.name, "Delete", id)
			}
			return err
		}
		return txn.Delete(c.key(id))
	})
}

func (c *collection[T]) currentSeq(txn *badger.Txn, id string) (uint64, error) {
	item, err := txn.Get(c.key(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, shared.NotFound(c.name, "Update", id)
		}
		return 0, err
	}

	var doc document
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &doc)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %s/%s: %v", shared.ErrInvalidFormat, c.name, id, err)
	}
	return doc.Seq, nil
}

func (c *collection[T]) put(txn *badger.Txn, id string, seq uint64, entity T) error {
	raw, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("badger: marshal %s/%s: %w", c.name, id, err)
	}
	val, err := json.Marshal(document{Seq: seq, Entity: raw})
	if err != nil {
		return fmt.Errorf("badger: marshal %s/%s: %w", c.name, id, err)
	}
	return txn.Set(c.key(id), val)
}

func (c *collection[T]) release() error {
	return c.seq.Release()
}
