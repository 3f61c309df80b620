package cursor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore implements Store using BadgerDB.
//
// Key format: cursor/{groupID}/{topic}/{partition}
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a Badger database in dir.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %s: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// NewInMemoryBadgerStore opens a Badger database that keeps everything in memory.
func NewInMemoryBadgerStore() (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func cursorPrefix(groupID, topic string) string {
	return fmt.Sprintf("cursor/%s/%s/", groupID, topic)
}

func cursorKey(c Cursor) []byte {
	return []byte(fmt.Sprintf("%s%d", cursorPrefix(c.GroupID, c.Topic), c.Partition))
}

func (s *BadgerStore) Load(ctx context.Context, groupID string, topic string) ([]Cursor, error) {
	var cursors []Cursor

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(cursorPrefix(groupID, topic))
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var c Cursor
				if err := json.Unmarshal(val, &c); err != nil {
					return err
				}
				cursors = append(cursors, c)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load cursors: %w", err)
	}

	return cursors, nil
}

func (s *BadgerStore) Save(ctx context.Context, c Cursor) error {
	if err := c.validate(); err != nil {
		return err
	}

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal cursor: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		key := cursorKey(c)

		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			var existing Cursor
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &existing)
			}); err != nil {
				return err
			}
			if existing.Offset >= c.Offset {
				return nil
			}
		}

		return txn.Set(key, data)
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
