package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seenimoa/chainpulse/pkg/models"
)

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Record
	seq     int64
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]Record), now: time.Now}
}

// Save implements Store.
func (m *MemoryStore) Save(ctx context.Context, symbol string, snap models.RawSnapshot) (Record, error) {
	sym, err := canonical(symbol)
	if err != nil {
		return Record{}, err
	}
	now := m.now()
	snap, err = prepare(snap, now)
	if err != nil {
		return Record{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records[sym] {
		if r.Snapshot.Timestamp == snap.Timestamp {
			return Record{}, fmt.Errorf("%w: %s %s", ErrDuplicateSnapshot, sym, snap.Timestamp)
		}
	}
	m.seq++
	rec := Record{ID: snap.ID, Symbol: sym, Seq: m.seq, CreatedAt: now, Snapshot: snap}
	m.records[sym] = append(m.records[sym], rec)
	return rec, nil
}

// Append adds snaps to symbol's collection exactly as given, in order.
// Unlike Save it accepts empty snapshots and repeated timestamps, so a
// collection loaded from a file matches the file one-to-one.
func (m *MemoryStore) Append(ctx context.Context, symbol string, snaps ...models.RawSnapshot) ([]Record, error) {
	sym, err := canonical(symbol)
	if err != nil {
		return nil, err
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(snaps))
	for _, snap := range snaps {
		snap.ID = uuid.NewString()
		m.seq++
		rec := Record{ID: snap.ID, Symbol: sym, Seq: m.seq, CreatedAt: now, Snapshot: snap}
		m.records[sym] = append(m.records[sym], rec)
		out = append(out, rec)
	}
	return out, nil
}

// List implements Store.
func (m *MemoryStore) List(ctx context.Context, symbol string, opts ListOptions) ([]Record, error) {
	sym, err := canonical(symbol)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	recs := m.records[sym]
	if opts.Limit > 0 && len(recs) > opts.Limit {
		recs = recs[len(recs)-opts.Limit:]
	}
	out := make([]Record, len(recs))
	copy(out, recs)
	m.mu.RUnlock()

	if opts.Desc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// Latest implements Store.
func (m *MemoryStore) Latest(ctx context.Context, symbol string) (Record, error) {
	sym, err := canonical(symbol)
	if err != nil {
		return Record{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.records[sym]
	if len(recs) == 0 {
		return Record{}, fmt.Errorf("%w: no snapshots for %s", ErrNotFound, sym)
	}
	return recs[len(recs)-1], nil
}

// Count implements Store.
func (m *MemoryStore) Count(ctx context.Context, symbol string) (int, error) {
	sym, err := canonical(symbol)
	if err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records[sym]), nil
}

// Clear implements Store.
func (m *MemoryStore) Clear(ctx context.Context, symbol string) (int, error) {
	sym, err := canonical(symbol)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.records[sym])
	delete(m.records, sym)
	return n, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
