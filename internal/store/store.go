// Package store persists raw option-chain snapshots per symbol.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seenimoa/chainpulse/pkg/models"
	"github.com/seenimoa/chainpulse/pkg/utils"
)

// Sentinel errors returned by every Store implementation.
var (
	ErrUnknownSymbol     = errors.New("unknown symbol")
	ErrDuplicateSnapshot = errors.New("snapshot already stored for this timestamp")
	ErrNotFound          = errors.New("not found")
	ErrEmptySnapshot     = errors.New("snapshot has no rows")
)

// Record is a stored snapshot. Seq orders records of one symbol by arrival.
type Record struct {
	ID        string             `json:"id"`
	Symbol    string             `json:"symbol"`
	Seq       int64              `json:"seq"`
	CreatedAt time.Time          `json:"created_at"`
	Snapshot  models.RawSnapshot `json:"snapshot"`
}

// ListOptions narrows a List call. Limit keeps the newest N records (0 means
// all); results are oldest first unless Desc is set.
type ListOptions struct {
	Limit int
	Desc  bool
}

// Store is the snapshot persistence contract.
type Store interface {
	// Save stores snap under symbol and returns the stored record. A snapshot
	// without a timestamp is stamped with the current IST wall clock.
	Save(ctx context.Context, symbol string, snap models.RawSnapshot) (Record, error)
	List(ctx context.Context, symbol string, opts ListOptions) ([]Record, error)
	Latest(ctx context.Context, symbol string) (Record, error)
	Count(ctx context.Context, symbol string) (int, error)
	// Clear removes every snapshot of symbol and returns how many were removed.
	Clear(ctx context.Context, symbol string) (int, error)
	Close() error
}

// Open returns the store selected by driver ("memory" or "sqlite").
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(path)
	}
	return nil, fmt.Errorf("unknown store driver %q", driver)
}

// canonical validates and normalizes a symbol.
func canonical(symbol string) (string, error) {
	s, ok := utils.NormalizeSymbol(symbol)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSymbol, symbol)
	}
	return s, nil
}

// prepare validates snap and fills in the id and timestamp.
func prepare(snap models.RawSnapshot, now time.Time) (models.RawSnapshot, error) {
	if len(snap.Rows) == 0 {
		return snap, ErrEmptySnapshot
	}
	if snap.Timestamp == "" {
		snap.Timestamp = utils.SnapshotTimestamp(now)
	}
	snap.ID = uuid.NewString()
	return snap, nil
}

// Snapshots extracts the raw snapshots from records, keeping order.
func Snapshots(recs []Record) []models.RawSnapshot {
	out := make([]models.RawSnapshot, len(recs))
	for i, r := range recs {
		out[i] = r.Snapshot
	}
	return out
}
