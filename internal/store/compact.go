package store

import (
	"context"
	"fmt"
	"time"

	"github.com/merchflow/harvester/internal/logger"
)

// CompactStocks rebuilds the stocks partition for the day starting at
// dayStart, keeping only the day's earliest snapshot. firstTS is the
// timestamp of that snapshot.
func CompactStocks(ctx context.Context, c Conn, firstTS, dayStart, nextDay time.Time) error {
	scratch := Stocks.Name + "_new"
	if err := c.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s;", scratch)); err != nil {
		return err
	}
	if err := c.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (LIKE %s INCLUDING ALL);", scratch, Stocks.Name)); err != nil {
		return err
	}
	err := c.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s (timestamp, size_id, warehouse_id, quantity) "+
			"SELECT timestamp, size_id, warehouse_id, quantity FROM %s WHERE timestamp = $1;",
		scratch, Stocks.Name), firstTS)
	if err != nil {
		return err
	}
	if err := swapPartition(ctx, c, Stocks, dayStart, nextDay); err != nil {
		return err
	}
	logger.Info(ctx, "Compacted partition", "table", Stocks.Name, "day", dayStart)
	return nil
}

// CompactMovements rebuilds a movement table's partition for the day
// starting at dayStart, collapsing the day's rows into one aggregate per
// (size, warehouse) spanning [firstTS, nextDay).
func CompactMovements(ctx context.Context, c Conn, t Table, firstTS, dayStart, nextDay time.Time) error {
	scratch := t.Name + "_new"
	if err := c.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s;", scratch)); err != nil {
		return err
	}
	if err := c.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (LIKE %s INCLUDING ALL);", scratch, t.Name)); err != nil {
		return err
	}
	err := c.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s (timestamp, timestamp_to, size_id, warehouse_id, quantity) "+
			"SELECT MIN(timestamp), MAX(timestamp_to), size_id, warehouse_id, SUM(quantity) "+
			"FROM %s WHERE timestamp >= $1 AND timestamp < $2 GROUP BY size_id, warehouse_id;",
		scratch, t.Name), firstTS, nextDay)
	if err != nil {
		return err
	}
	if err := swapPartition(ctx, c, t, dayStart, nextDay); err != nil {
		return err
	}
	logger.Info(ctx, "Compacted partition", "table", t.Name, "day", dayStart)
	return nil
}

// swapPartition replaces the table's partition for [dayStart, nextDay) with
// the freshly built <table>_new inside a single transaction, so readers see
// either the old or the compacted partition, never neither.
func swapPartition(ctx context.Context, c Conn, t Table, dayStart, nextDay time.Time) error {
	part := t.Name + PartitionSuffix(dayStart)
	return c.ExecAll(ctx,
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s_old;", part, t.Name),
		fmt.Sprintf("ALTER TABLE %s_new RENAME TO %s;", t.Name, part),
		fmt.Sprintf("DROP TABLE %s_old;", t.Name),
		fmt.Sprintf("ALTER TABLE %s ATTACH PARTITION %s FOR VALUES FROM ('%s') TO ('%s');",
			t.Name, part, dayStart.Format(sqlTimeLayout), nextDay.Format(sqlTimeLayout)),
	)
}

// Purge drops leftover scratch tables, deletes dictionary rows last seen
// before edge and drops partitions older than edge along with their ledger
// entries.
func Purge(ctx context.Context, c Conn, edge time.Time) error {
	for _, t := range Tables {
		for _, suffix := range []string{"_tmp", "_old", "_new"} {
			if err := c.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s%s;", t.Name, suffix)); err != nil {
				return err
			}
		}
		if t.Kind == Dictionary {
			if err := c.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE last_timestamp < $1;", t.Name), edge); err != nil {
				return err
			}
		}
	}

	var stale []string
	err := c.Query(ctx, "SELECT table_name FROM partitions WHERE timestamp < $1;", func(row Row) error {
		var name string
		if err := row.Scan(&name); err != nil {
			return err
		}
		stale = append(stale, name)
		return nil
	}, edge)
	if err != nil {
		return err
	}
	for _, name := range stale {
		if err := c.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s;", name)); err != nil {
			return err
		}
	}
	if err := c.Exec(ctx, "DELETE FROM partitions WHERE timestamp < $1;", edge); err != nil {
		return err
	}
	logger.Info(ctx, "Purged old entries and partitions", "edge", edge)
	return nil
}
