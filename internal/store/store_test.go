package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/chainpulse/pkg/models"
)

func raw(ts string, strikes ...string) models.RawSnapshot {
	s := models.RawSnapshot{Timestamp: ts}
	for _, k := range strikes {
		s.Rows = append(s.Rows, models.RawStrikeRow{
			StrikePrice: models.T(k),
			CallOI:      models.T("1,000"),
			PutOI:       models.T("2,000"),
			PutVol:      models.Text{},
		})
	}
	return s
}

// backends returns a fresh instance of every Store implementation.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	lite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "chain.db"))
	require.NoError(t, err)
	t.Cleanup(func() { lite.Close() })
	return map[string]Store{"memory": NewMemoryStore(), "sqlite": lite}
}

func TestStoreSaveAndList(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			first, err := st.Save(ctx, "nifty_50", raw("9:15:00 AM", "24500", "24600"))
			require.NoError(t, err)
			assert.NotEmpty(t, first.ID)
			assert.Equal(t, "nifty_50", first.Symbol)
			assert.Equal(t, first.ID, first.Snapshot.ID)

			_, err = st.Save(ctx, "NIFTY 50", raw("9:16:00 AM", "24500"))
			require.NoError(t, err, "aliases resolve to the canonical symbol")
			_, err = st.Save(ctx, "nifty_50", raw("9:17:00 AM", "24500"))
			require.NoError(t, err)

			recs, err := st.List(ctx, "nifty_50", ListOptions{})
			require.NoError(t, err)
			require.Len(t, recs, 3)
			assert.Equal(t, "9:15:00 AM", recs[0].Snapshot.Timestamp)
			assert.Equal(t, "9:17:00 AM", recs[2].Snapshot.Timestamp)
			assert.Less(t, recs[0].Seq, recs[1].Seq)

			row := recs[0].Snapshot.Rows[0]
			assert.Equal(t, models.T("24500"), row.StrikePrice)
			assert.Equal(t, models.T("1,000"), row.CallOI)
			assert.False(t, row.PutVol.Valid, "missing fields stay missing")

			limited, err := st.List(ctx, "nifty_50", ListOptions{Limit: 2})
			require.NoError(t, err)
			require.Len(t, limited, 2)
			assert.Equal(t, "9:16:00 AM", limited[0].Snapshot.Timestamp, "limit keeps the newest records")

			desc, err := st.List(ctx, "nifty_50", ListOptions{Desc: true})
			require.NoError(t, err)
			assert.Equal(t, "9:17:00 AM", desc[0].Snapshot.Timestamp)

			other, err := st.List(ctx, "bank_nifty", ListOptions{})
			require.NoError(t, err)
			assert.Empty(t, other)
		})
	}
}

func TestStoreErrors(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := st.Save(ctx, "sensex", raw("9:15:00 AM", "100"))
			assert.True(t, errors.Is(err, ErrUnknownSymbol), "got %v", err)

			_, err = st.Save(ctx, "fin_nifty", models.RawSnapshot{Timestamp: "9:15:00 AM"})
			assert.True(t, errors.Is(err, ErrEmptySnapshot), "got %v", err)

			_, err = st.Save(ctx, "fin_nifty", raw("9:15:00 AM", "100"))
			require.NoError(t, err)
			_, err = st.Save(ctx, "fin_nifty", raw("9:15:00 AM", "200"))
			assert.True(t, errors.Is(err, ErrDuplicateSnapshot), "got %v", err)

			_, err = st.Latest(ctx, "bank_nifty")
			assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

			_, err = st.List(ctx, "bogus", ListOptions{})
			assert.True(t, errors.Is(err, ErrUnknownSymbol), "got %v", err)
		})
	}
}

func TestStoreLatestCountClear(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, ts := range []string{"9:15:00 AM", "9:16:00 AM"} {
				_, err := st.Save(ctx, "bank_nifty", raw(ts, "52000"))
				require.NoError(t, err)
			}

			latest, err := st.Latest(ctx, "bank_nifty")
			require.NoError(t, err)
			assert.Equal(t, "9:16:00 AM", latest.Snapshot.Timestamp)

			n, err := st.Count(ctx, "nifty_bank")
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			removed, err := st.Clear(ctx, "bank_nifty")
			require.NoError(t, err)
			assert.Equal(t, 2, removed)

			n, err = st.Count(ctx, "bank_nifty")
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestStoreStampsMissingTimestamp(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	st.now = func() time.Time { return time.Date(2026, 2, 18, 3, 46, 20, 0, time.UTC) }

	rec, err := st.Save(ctx, "nifty_50", raw("", "24500"))
	require.NoError(t, err)
	assert.Equal(t, "9:16:20 AM", rec.Snapshot.Timestamp)
}

func TestMemoryAppendKeepsEverySnapshot(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	recs, err := st.Append(ctx, "NIFTY", raw("9:15:00 AM", "100"), raw("9:15:00 AM", "100"), raw("9:20:00 AM"))
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.NotEqual(t, recs[0].ID, recs[1].ID)

	got, err := st.List(ctx, "nifty_50", ListOptions{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "9:15:00 AM", got[1].Snapshot.Timestamp)
	assert.Empty(t, got[2].Snapshot.Rows)

	_, err = st.Append(ctx, "sensex", raw("9:15:00 AM", "100"))
	assert.True(t, errors.Is(err, ErrUnknownSymbol))
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chain.db")

	st, err := NewSQLiteStore(path)
	require.NoError(t, err)
	_, err = st.Save(ctx, "midcap_nifty_50", raw("9:15:00 AM", "12000"))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer st.Close()
	n, err := st.Count(ctx, "midcap_nifty_50")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpen(t *testing.T) {
	st, err := Open("memory", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, st)

	_, err = Open("mongo", "")
	assert.Error(t, err)
}

func TestSnapshots(t *testing.T) {
	recs := []Record{{Snapshot: raw("a", "1")}, {Snapshot: raw("b", "1")}}
	got := Snapshots(recs)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[1].Timestamp)
}
