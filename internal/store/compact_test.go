package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compactionDay() (firstTS, dayStart, nextDay time.Time) {
	dayStart = time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	return dayStart.Add(15 * time.Minute), dayStart, dayStart.AddDate(0, 0, 1)
}

func TestCompactStocksKeepsFirstSnapshot(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	firstTS, dayStart, nextDay := compactionDay()
	require.NoError(t, CompactStocks(context.Background(), conn, firstTS, dayStart, nextDay))

	create := conn.indexOf("CREATE TABLE stocks_new (LIKE stocks INCLUDING ALL)")
	fill := conn.indexOf("INSERT INTO stocks_new ")
	swap := conn.indexOf("ALTER TABLE stocks_20260826 RENAME TO stocks_old")
	require.NotEqual(t, -1, create)
	require.NotEqual(t, -1, fill)
	require.NotEqual(t, -1, swap)
	assert.Less(t, create, fill)
	assert.Less(t, fill, swap)

	assert.Contains(t, conn.statements()[fill], "WHERE timestamp = $1")
}

func TestCompactMovementsAggregates(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	firstTS, dayStart, nextDay := compactionDay()
	require.NoError(t, CompactMovements(context.Background(), conn, Orders, firstTS, dayStart, nextDay))

	fill := conn.indexOf("INSERT INTO orders_new ")
	require.NotEqual(t, -1, fill)
	sql := conn.statements()[fill]
	assert.Contains(t, sql, "SELECT MIN(timestamp), MAX(timestamp_to), size_id, warehouse_id, SUM(quantity)")
	assert.Contains(t, sql, "GROUP BY size_id, warehouse_id")
}

func TestSwapPartitionOrder(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	_, dayStart, nextDay := compactionDay()
	require.NoError(t, swapPartition(context.Background(), conn, Refills, dayStart, nextDay))

	stmts := conn.statements()
	require.Len(t, stmts, 4)
	assert.Contains(t, stmts[0], "ALTER TABLE refills_20260826 RENAME TO refills_old")
	assert.Contains(t, stmts[1], "ALTER TABLE refills_new RENAME TO refills_20260826")
	assert.Contains(t, stmts[2], "DROP TABLE refills_old")
	assert.Contains(t, stmts[3], "ATTACH PARTITION refills_20260826")
}

func TestPurgeDropsStalePartitions(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	conn.queryFn = func(sql string, fn func(Row) error, _ ...any) error {
		require.Contains(t, sql, "FROM partitions WHERE timestamp < $1")
		for _, name := range []string{"stocks_20260726", "orders_20260726"} {
			if err := fn(scanRow{name}); err != nil {
				return err
			}
		}
		return nil
	}

	edge := time.Date(2026, 7, 28, 0, 0, 0, 0, time.UTC)
	require.NoError(t, Purge(context.Background(), conn, edge))

	assert.NotEqual(t, -1, conn.indexOf("DROP TABLE IF EXISTS stocks_tmp"))
	assert.NotEqual(t, -1, conn.indexOf("DROP TABLE IF EXISTS stocks_old"))
	assert.NotEqual(t, -1, conn.indexOf("DROP TABLE IF EXISTS stocks_new"))
	assert.NotEqual(t, -1, conn.indexOf("DELETE FROM products WHERE last_timestamp < $1"))
	assert.NotEqual(t, -1, conn.indexOf("DROP TABLE IF EXISTS stocks_20260726"))
	assert.NotEqual(t, -1, conn.indexOf("DROP TABLE IF EXISTS orders_20260726"))
	assert.NotEqual(t, -1, conn.indexOf("DELETE FROM partitions WHERE timestamp < $1"))

	// History tables never get row-level deletes.
	assert.Equal(t, -1, conn.indexOf("DELETE FROM stocks WHERE"))
}

// scanRow feeds canned values to a Row scan.
type scanRow struct {
	name string
}

func (r scanRow) Scan(dest ...any) error {
	*(dest[0].(*string)) = r.name
	return nil
}
