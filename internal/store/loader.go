package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/merchflow/harvester/internal/checkpoint"
	"github.com/merchflow/harvester/internal/logger"
)

// DayStart returns midnight of t's day in loc, shifted by shiftDays.
func DayStart(t time.Time, loc *time.Location, shiftDays int) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day()+shiftDays, 0, 0, 0, 0, loc)
}

// Loader bulk-loads output files into staging tables and merges them into
// the final tables. Each table import is guarded by a per-cycle checkpoint
// flag, so a restarted cycle skips tables already merged.
type Loader struct {
	conn      Conn
	flags     *checkpoint.Store
	outputDir string
	loc       *time.Location
}

// NewLoader creates a loader reading output files from outputDir.
func NewLoader(conn Conn, flags *checkpoint.Store, outputDir string, loc *time.Location) *Loader {
	return &Loader{conn: conn, flags: flags, outputDir: outputDir, loc: loc}
}

// ImportTable loads one table's output file into a fresh staging table,
// ensures the daily partition for history tables and merges staging into the
// final table. For movement tables from anchors the partition day; it is nil
// for snapshot tables, which anchor on taskTS.
func (l *Loader) ImportTable(ctx context.Context, t Table, taskTS time.Time, from *time.Time) error {
	flag := checkpoint.Stamp(taskTS) + "_imp_table_" + t.Name
	done, err := l.flags.Has(checkpoint.Temporary, flag)
	if err != nil {
		return err
	}
	if done {
		logger.Info(ctx, "Table already imported", "table", t.Name)
		return nil
	}

	staging := t.StagingName()
	if err := l.conn.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s;", staging)); err != nil {
		return err
	}
	if err := l.conn.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (%s);", staging, t.StagingSchema)); err != nil {
		return err
	}

	if err := l.copyOutputFile(ctx, t, staging); err != nil {
		return err
	}

	if t.Kind == History {
		anchor := taskTS
		if from != nil {
			anchor = *from
		}
		dayStart := DayStart(anchor, l.loc, 0)
		nextDay := DayStart(anchor, l.loc, 1)
		if err := ensurePartition(ctx, l.conn, t, dayStart, nextDay); err != nil {
			return err
		}
	}

	logger.Info(ctx, "Started merging", "table", t.Name)
	if err := l.conn.Exec(ctx, t.Merge()); err != nil {
		return err
	}
	logger.Info(ctx, "Finished merging", "table", t.Name)

	if err := l.conn.Exec(ctx, fmt.Sprintf("DROP TABLE %s;", staging)); err != nil {
		return err
	}
	return l.flags.Set(checkpoint.Temporary, flag)
}

// copyOutputFile streams the table's output file into staging. A missing
// file means nothing was collected for the table this cycle; staging stays
// empty and the merge is a no-op.
func (l *Loader) copyOutputFile(ctx context.Context, t Table, staging string) error {
	path := filepath.Join(l.outputDir, t.File)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		logger.Info(ctx, "No output file, skipping copy", "table", t.Name, "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open output file %s: %w", path, err)
	}
	defer f.Close()

	logger.Info(ctx, "Started copying", "table", t.Name)
	if err := l.conn.CopyFrom(ctx, staging, f); err != nil {
		return err
	}
	logger.Info(ctx, "Finished copying", "table", t.Name)
	return nil
}

// ImportAll imports the given tables concurrently, delaying each table until
// the tables it joins against have merged. Dependencies outside the set are
// assumed to be already in place.
func (l *Loader) ImportAll(ctx context.Context, tables []Table, taskTS time.Time, from *time.Time) error {
	merged := make(map[string]chan struct{}, len(tables))
	for _, t := range tables {
		merged[t.Name] = make(chan struct{})
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, t := range tables {
		t := t
		g.Go(func() error {
			for _, dep := range t.DependsOn {
				ch, ok := merged[dep]
				if !ok {
					continue
				}
				select {
				case <-ch:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if err := l.ImportTable(ctx, t, taskTS, from); err != nil {
				return err
			}
			close(merged[t.Name])
			return nil
		})
	}
	return g.Wait()
}
