package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/seenimoa/chainpulse/pkg/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- One row per scraped option-chain capture
	CREATE TABLE IF NOT EXISTS snapshots (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		symbol TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		strike_rows TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE(symbol, timestamp)
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_symbol_seq ON snapshots(symbol, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, symbol string, snap models.RawSnapshot) (Record, error) {
	sym, err := canonical(symbol)
	if err != nil {
		return Record{}, err
	}
	now := s.now().UTC()
	snap, err = prepare(snap, now)
	if err != nil {
		return Record{}, err
	}
	rows, err := json.Marshal(snap.Rows)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode rows: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, symbol, timestamp, strike_rows, created_at) VALUES (?, ?, ?, ?, ?)`,
		snap.ID, sym, snap.Timestamp, string(rows), now)
	if err != nil {
		if isUniqueViolation(err) {
			return Record{}, fmt.Errorf("%w: %s %s", ErrDuplicateSnapshot, sym, snap.Timestamp)
		}
		return Record{}, fmt.Errorf("failed to insert snapshot: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return Record{}, fmt.Errorf("failed to read snapshot seq: %w", err)
	}
	return Record{ID: snap.ID, Symbol: sym, Seq: seq, CreatedAt: now, Snapshot: snap}, nil
}

const selectColumns = `SELECT seq, id, symbol, timestamp, strike_rows, created_at FROM snapshots`

func scanRecord(sc interface{ Scan(...any) error }) (Record, error) {
	var (
		rec  Record
		rows string
	)
	if err := sc.Scan(&rec.Seq, &rec.ID, &rec.Symbol, &rec.Snapshot.Timestamp, &rows, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal([]byte(rows), &rec.Snapshot.Rows); err != nil {
		return Record{}, fmt.Errorf("failed to decode rows of %s: %w", rec.ID, err)
	}
	rec.Snapshot.ID = rec.ID
	return rec, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, symbol string, opts ListOptions) ([]Record, error) {
	sym, err := canonical(symbol)
	if err != nil {
		return nil, err
	}
	limit := -1
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+` WHERE symbol = ? ORDER BY seq DESC LIMIT ?`, sym, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !opts.Desc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if out == nil {
		out = []Record{}
	}
	return out, nil
}

// Latest implements Store.
func (s *SQLiteStore) Latest(ctx context.Context, symbol string) (Record, error) {
	sym, err := canonical(symbol)
	if err != nil {
		return Record{}, err
	}
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE symbol = ? ORDER BY seq DESC LIMIT 1`, sym)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: no snapshots for %s", ErrNotFound, sym)
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to read latest snapshot: %w", err)
	}
	return rec, nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context, symbol string) (int, error) {
	sym, err := canonical(symbol)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots WHERE symbol = ?`, sym).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return n, nil
}

// Clear implements Store.
func (s *SQLiteStore) Clear(ctx context.Context, symbol string) (int, error) {
	sym, err := canonical(symbol)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE symbol = ?`, sym)
	if err != nil {
		return 0, fmt.Errorf("failed to clear snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
