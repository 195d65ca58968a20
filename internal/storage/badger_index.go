// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// badgerIndex keeps photo records durable across restarts.
// Keys: "photo:<name>", values JSON-encoded Records.
type badgerIndex struct {
	db *badger.DB
}

func openBadgerIndex(path string) (*badgerIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("badger index path is empty")
	}
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger index: %w", err)
	}
	return &badgerIndex{db: db}, nil
}

func (b *badgerIndex) Close() error { return b.db.Close() }

func (b *badgerIndex) Put(ctx context.Context, rec Record) error {
	key := []byte("photo:" + rec.Name)
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, buf)
	})
}

func (b *badgerIndex) Get(ctx context.Context, name string) (Record, bool, error) {
	key := []byte("photo:" + name)
	var out Record
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return out, true, nil
}

func (b *badgerIndex) List(ctx context.Context) ([]Record, error) {
	prefix := []byte("photo:")
	var list []Record
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				continue
			}
			list = append(list, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortRecords(list)
	return list, nil
}

var _ Index = (*badgerIndex)(nil)
