package store

import (
	"context"
	"fmt"
	"time"
)

// EnsureTables creates every destination table, its indexes and the
// partitions ledger. All statements are idempotent.
func EnsureTables(ctx context.Context, c Conn) error {
	for _, t := range Tables {
		var create string
		switch t.Kind {
		case Dictionary:
			create = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", t.Name, t.Schema)
		case History:
			create = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s) PARTITION BY RANGE (timestamp);", t.Name, t.Schema)
		}
		if err := c.Exec(ctx, create); err != nil {
			return err
		}
		for _, column := range t.IndexColumns {
			idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_%s_idx ON %s (%s);", t.Name, column, t.Name, column)
			if err := c.Exec(ctx, idx); err != nil {
				return err
			}
		}
	}
	return c.Exec(ctx, "CREATE TABLE IF NOT EXISTS partitions ("+
		"id SMALLSERIAL, "+
		"timestamp TIMESTAMPTZ NOT NULL, "+
		"table_name TEXT NOT NULL, "+
		"PRIMARY KEY (id), "+
		"UNIQUE (table_name));")
}

// ensurePartition records the daily partition of a history table in the
// ledger and creates it for the [dayStart, nextDay) range.
func ensurePartition(ctx context.Context, c Conn, t Table, dayStart, nextDay time.Time) error {
	part := t.Name + PartitionSuffix(dayStart)
	err := c.Exec(ctx,
		"INSERT INTO partitions (timestamp, table_name) VALUES ($1, $2) ON CONFLICT (table_name) DO NOTHING;",
		dayStart, part,
	)
	if err != nil {
		return err
	}
	return c.Exec(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s');",
		part, t.Name, dayStart.Format(sqlTimeLayout), nextDay.Format(sqlTimeLayout),
	))
}

// sqlTimeLayout renders partition bounds inline in DDL, which cannot take
// bind parameters.
const sqlTimeLayout = "2006-01-02 15:04:05.999999-07"
