package storage

import (
	"context"
	"testing"
	"time"

	"frontdesk/internal/adapters/http/perf"

	"github.com/stretchr/testify/require"
)

func openTimedTestDB(t *testing.T) *TimedDB {
	t.Helper()
	db, err := OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec("CREATE TABLE test (id TEXT PRIMARY KEY, val TEXT)")
	require.NoError(t, err)
	return NewTimedDB(db, perf.NewCollector(), 0)
}

func TestTimedDB_RecordsEachStatement(t *testing.T) {
	tdb := openTimedTestDB(t)
	ctx := context.Background()

	_, err := tdb.ExecContext(ctx, "INSERT INTO test (id, val) VALUES (?, ?)", "1", "hello")
	require.NoError(t, err)

	rows, err := tdb.QueryContext(ctx, "SELECT id, val FROM test")
	require.NoError(t, err)
	count := 0
	for rows.Next() {
		count++
	}
	require.NoError(t, rows.Close())
	require.Equal(t, 1, count)

	var val string
	require.NoError(t, tdb.QueryRowContext(ctx, "SELECT val FROM test WHERE id = ?", "1").Scan(&val))
	require.Equal(t, "hello", val)

	tx, err := tdb.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	require.EqualValues(t, 4, tdb.collector.TotalRecorded())
}

func TestTimedDB_NilCollector(t *testing.T) {
	db, err := OpenDB(":memory:")
	require.NoError(t, err)
	defer db.Close()

	tdb := NewTimedDB(db, nil, time.Nanosecond)
	_, err = tdb.ExecContext(context.Background(), "SELECT 1")
	require.NoError(t, err)
	require.NoError(t, tdb.PingContext(context.Background()))
	require.Same(t, db, tdb.RawDB())
}

func TestNewTimedDB_DefaultThreshold(t *testing.T) {
	tdb := NewTimedDB(nil, nil, 0)
	require.Equal(t, DefaultSlowQuery, tdb.slow)
}
