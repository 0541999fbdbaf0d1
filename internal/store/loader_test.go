package store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchflow/harvester/internal/checkpoint"
)

// fakeConn records every statement in arrival order and the payload of every
// copy. Queries answer through queryFn when set.
type fakeConn struct {
	mu      sync.Mutex
	execs   []string
	copies  map[string]string
	queryFn func(sql string, fn func(Row) error, args ...any) error
}

func newFakeConn() *fakeConn {
	return &fakeConn{copies: make(map[string]string)}
}

func (c *fakeConn) Exec(_ context.Context, sql string, _ ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs = append(c.execs, sql)
	return nil
}

func (c *fakeConn) ExecAll(ctx context.Context, sqls ...string) error {
	for _, sql := range sqls {
		if err := c.Exec(ctx, sql); err != nil {
			return err
		}
	}
	return nil
}

func (c *fakeConn) Query(_ context.Context, sql string, fn func(Row) error, args ...any) error {
	if c.queryFn == nil {
		return nil
	}
	return c.queryFn(sql, fn, args...)
}

func (c *fakeConn) CopyFrom(_ context.Context, table string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.copies[table] = string(data)
	return nil
}

func (c *fakeConn) statements() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.execs...)
}

// indexOf returns the position of the first statement containing needle, or
// -1 when none does.
func (c *fakeConn) indexOf(needle string) int {
	for i, sql := range c.statements() {
		if strings.Contains(sql, needle) {
			return i
		}
	}
	return -1
}

func testLoader(t *testing.T, conn Conn) (*Loader, *checkpoint.Store, string) {
	t.Helper()
	dir := t.TempDir()
	flags, err := checkpoint.Open(filepath.Join(dir, "checkpoints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = flags.Close() })
	return NewLoader(conn, flags, dir, time.UTC), flags, dir
}

func TestImportTableCopiesAndMerges(t *testing.T) {
	conn := newFakeConn()
	loader, _, dir := testLoader(t, conn)

	content := "2026-08-27 09:00:00.000000+00\t7\tAcme\thttps://images.example.com/brands/7.jpg\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, Brands.File), []byte(content), 0o600))

	taskTS := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	require.NoError(t, loader.ImportTable(context.Background(), Brands, taskTS, nil))

	assert.Equal(t, content, conn.copies["brands_tmp"])

	drop := conn.indexOf("DROP TABLE IF EXISTS brands_tmp")
	create := conn.indexOf("CREATE TABLE brands_tmp")
	merge := conn.indexOf("INSERT INTO brands ")
	cleanup := conn.indexOf("DROP TABLE brands_tmp")
	require.NotEqual(t, -1, drop)
	require.NotEqual(t, -1, create)
	require.NotEqual(t, -1, merge)
	require.NotEqual(t, -1, cleanup)
	assert.Less(t, drop, create)
	assert.Less(t, create, merge)
	assert.Less(t, merge, cleanup)
}

func TestImportTableSkipsWhenFlagged(t *testing.T) {
	conn := newFakeConn()
	loader, _, _ := testLoader(t, conn)

	taskTS := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()
	require.NoError(t, loader.ImportTable(ctx, Brands, taskTS, nil))

	before := len(conn.statements())
	require.NoError(t, loader.ImportTable(ctx, Brands, taskTS, nil))
	assert.Len(t, conn.statements(), before)

	// A different task timestamp imports again.
	require.NoError(t, loader.ImportTable(ctx, Brands, taskTS.Add(3*time.Hour), nil))
	assert.Greater(t, len(conn.statements()), before)
}

func TestImportTableMissingFileStillMerges(t *testing.T) {
	conn := newFakeConn()
	loader, _, _ := testLoader(t, conn)

	taskTS := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	require.NoError(t, loader.ImportTable(context.Background(), Sellers, taskTS, nil))

	assert.Empty(t, conn.copies)
	assert.NotEqual(t, -1, conn.indexOf("INSERT INTO sellers "))
}

func TestImportTableEnsuresDailyPartition(t *testing.T) {
	conn := newFakeConn()
	loader, _, _ := testLoader(t, conn)

	taskTS := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	require.NoError(t, loader.ImportTable(context.Background(), Stocks, taskTS, nil))

	partition := conn.indexOf("CREATE TABLE IF NOT EXISTS stocks_20260827 PARTITION OF stocks")
	merge := conn.indexOf("INSERT INTO stocks ")
	require.NotEqual(t, -1, partition)
	require.NotEqual(t, -1, merge)
	assert.Less(t, partition, merge)
	assert.NotEqual(t, -1, conn.indexOf("INSERT INTO partitions "))
}

func TestImportTableAnchorsPartitionOnFrom(t *testing.T) {
	conn := newFakeConn()
	loader, _, _ := testLoader(t, conn)

	taskTS := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	from := time.Date(2026, 8, 27, 21, 0, 0, 0, time.UTC)
	require.NoError(t, loader.ImportTable(context.Background(), Orders, taskTS, &from))

	assert.NotEqual(t, -1, conn.indexOf("CREATE TABLE IF NOT EXISTS orders_20260827 PARTITION OF orders"))
	assert.Equal(t, -1, conn.indexOf("orders_20260828"))
}

func TestImportAllWaitsForDependencies(t *testing.T) {
	conn := newFakeConn()
	loader, _, _ := testLoader(t, conn)

	taskTS := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	tables := []Table{Categories, Queries, Catalogs}
	require.NoError(t, loader.ImportAll(context.Background(), tables, taskTS, nil))

	catalogs := conn.indexOf("INSERT INTO catalogs ")
	categories := conn.indexOf("INSERT INTO categories ")
	queries := conn.indexOf("INSERT INTO queries ")
	require.NotEqual(t, -1, catalogs)
	require.NotEqual(t, -1, categories)
	require.NotEqual(t, -1, queries)
	assert.Less(t, catalogs, categories)
	assert.Less(t, catalogs, queries)
}

func TestImportAllIgnoresDependenciesOutsideSet(t *testing.T) {
	conn := newFakeConn()
	loader, _, _ := testLoader(t, conn)

	// Stocks depends on products, which is not in the incremental set; the
	// import must not deadlock waiting for it.
	taskTS := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	done := make(chan error, 1)
	go func() {
		done <- loader.ImportAll(context.Background(), IncrementalTables, taskTS, nil)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("import did not finish")
	}

	sizes := conn.indexOf("INSERT INTO sizes ")
	stocks := conn.indexOf("INSERT INTO stocks ")
	require.NotEqual(t, -1, sizes)
	require.NotEqual(t, -1, stocks)
	assert.Less(t, sizes, stocks)
}
