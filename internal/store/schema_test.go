package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureTablesCreatesEverything(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	require.NoError(t, EnsureTables(context.Background(), conn))

	assert.NotEqual(t, -1, conn.indexOf("CREATE TABLE IF NOT EXISTS products ("))
	assert.NotEqual(t, -1, conn.indexOf("CREATE TABLE IF NOT EXISTS stocks ("))
	assert.NotEqual(t, -1, conn.indexOf("CREATE TABLE IF NOT EXISTS partitions ("))

	// History tables are range-partitioned, dictionaries are not.
	stocks := conn.statements()[conn.indexOf("CREATE TABLE IF NOT EXISTS stocks (")]
	assert.Contains(t, stocks, "PARTITION BY RANGE (timestamp)")
	products := conn.statements()[conn.indexOf("CREATE TABLE IF NOT EXISTS products (")]
	assert.NotContains(t, products, "PARTITION BY")

	assert.NotEqual(t, -1, conn.indexOf("CREATE INDEX IF NOT EXISTS products_last_timestamp_idx ON products (last_timestamp)"))
	assert.NotEqual(t, -1, conn.indexOf("CREATE INDEX IF NOT EXISTS stocks_warehouse_id_idx ON stocks (warehouse_id)"))
}
