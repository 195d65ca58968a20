// SPDX-License-Identifier: MIT

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Record describes one saved photo.
type Record struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Bytes     int       `json:"bytes"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Profile   string    `json:"profile"`
	Quality   int       `json:"quality"`
	CreatedAt time.Time `json:"createdAt"`
}

// Index stores photo metadata keyed by file name.
type Index interface {
	Put(ctx context.Context, rec Record) error
	// Get returns the record for name. ok is false when no record
	// exists; that is not an error.
	Get(ctx context.Context, name string) (Record, bool, error)
	// List returns all records, newest first.
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// OpenIndex creates an Index for the configured backend. An empty
// backend selects the in-memory index.
func OpenIndex(backend, path string) (Index, error) {
	switch backend {
	case "", "memory":
		return NewMemoryIndex(), nil
	case "badger":
		return openBadgerIndex(path)
	default:
		return nil, fmt.Errorf("unknown index backend: %s", backend)
	}
}

type memoryIndex struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryIndex returns a non-durable Index for tests and local runs.
func NewMemoryIndex() Index {
	return &memoryIndex{records: make(map[string]Record)}
}

func (m *memoryIndex) Put(ctx context.Context, rec Record) error {
	m.mu.Lock()
	m.records[rec.Name] = rec
	m.mu.Unlock()
	return nil
}

func (m *memoryIndex) Get(ctx context.Context, name string) (Record, bool, error) {
	m.mu.RLock()
	rec, ok := m.records[name]
	m.mu.RUnlock()
	return rec, ok, nil
}

func (m *memoryIndex) List(ctx context.Context) ([]Record, error) {
	m.mu.RLock()
	list := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		list = append(list, rec)
	}
	m.mu.RUnlock()
	sortRecords(list)
	return list, nil
}

func (m *memoryIndex) Close() error { return nil }

func sortRecords(list []Record) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].Name < list[j].Name
	})
}

var _ Index = (*memoryIndex)(nil)
