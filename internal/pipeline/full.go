package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/merchflow/harvester/internal/checkpoint"
	"github.com/merchflow/harvester/internal/crawl"
	"github.com/merchflow/harvester/internal/logger"
	"github.com/merchflow/harvester/internal/store"
)

// lastSnapshotBefore finds the newest stock snapshot timestamp before edge.
func (p *Pipeline) lastSnapshotBefore(ctx context.Context, edge time.Time) (time.Time, bool, error) {
	return store.QueryTime(ctx, p.conn,
		"SELECT timestamp FROM stocks WHERE timestamp < $1 ORDER BY timestamp DESC LIMIT 1;", edge)
}

// runFull executes the once-a-day full harvest: warehouses, the category
// tree, every catalog page, the database import, movement derivation,
// partition compaction and retention cleanup.
func (p *Pipeline) runFull(ctx context.Context, session *crawl.Session, taskTS, dayTS time.Time) error {
	err := p.stage(ctx, "fc_warehouses_done", "All warehouses already processed", func() error {
		warehouses, err := session.Warehouses()
		if err != nil {
			return err
		}
		return p.processWarehouses(ctx, warehouses, taskTS)
	})
	if err != nil {
		return err
	}

	err = p.stage(ctx, "fc_categories_done", "All categories already processed", func() error {
		categories, err := session.Categories(ctx)
		if err != nil {
			return err
		}
		return p.processCategories(ctx, session, categories, taskTS)
	})
	if err != nil {
		return err
	}

	err = p.stage(ctx, "fc_catalogs_done", "All catalogs already processed", func() error {
		catalogs, err := p.loadStoredCatalogs(ctx)
		if err != nil {
			return err
		}
		return p.processCatalogs(ctx, session, catalogs, taskTS)
	})
	if err != nil {
		return err
	}

	err = p.stage(ctx, "fc_tables_done", "All tables and indices already created", func() error {
		return store.EnsureTables(ctx, p.conn)
	})
	if err != nil {
		return err
	}

	err = p.stage(ctx, "fc_imports_done", "Everything already imported into database", func() error {
		return p.loader.ImportAll(ctx, store.FullHarvestTables, taskTS, nil)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "Searching stocks older than day anchor", "day", dayTS)
	lastTS, found, err := p.lastSnapshotBefore(ctx, dayTS)
	if err != nil {
		return err
	}
	if found {
		err = p.stage(ctx, "fc_ordersrefills_done", "Orders and refills already calculated", func() error {
			logger.Info(ctx, "Last snapshot found", "timestamp", lastTS)
			return p.deriveMovements(ctx, taskTS, lastTS)
		})
		if err != nil {
			return err
		}
		err = p.stage(ctx, "fc_minify_done", "Yesterday already compacted", func() error {
			return p.compactPreviousDay(ctx, lastTS)
		})
		if err != nil {
			return err
		}
		err = p.stage(ctx, "fc_cleanup_done", "Cleanup of old entries already done", func() error {
			edge := p.clock.DayStart(dayTS, -p.cfg.Harvest.RetentionDays)
			return store.Purge(ctx, p.conn, edge)
		})
		if err != nil {
			return err
		}
	} else {
		logger.Info(ctx, "No last snapshot found, skipping movements, compaction and cleanup")
	}

	if err := p.flags.Set(checkpoint.Temporary, "fc_finish"); err != nil {
		return err
	}
	logger.Info(ctx, "Done with full harvest for today!")
	return nil
}

// compactPreviousDay compacts the most recent fully elapsed day: its stocks
// keep only the earliest snapshot, its orders and refills collapse into one
// aggregate per (size, warehouse).
func (p *Pipeline) compactPreviousDay(ctx context.Context, lastTS time.Time) error {
	lastDayStart := p.clock.DayStart(lastTS, 0)
	prevTS, found, err := p.lastSnapshotBefore(ctx, lastDayStart)
	if err != nil {
		return err
	}
	if !found {
		logger.Info(ctx, "No earlier snapshot found, no compaction needed")
		return nil
	}

	dayStart := p.clock.DayStart(prevTS, 0)
	nextDay := p.clock.DayStart(prevTS, 1)
	logger.Info(ctx, "Compacting day", "day", dayStart)
	firstTS, found, err := store.QueryTime(ctx, p.conn,
		"SELECT timestamp FROM stocks WHERE timestamp >= $1 ORDER BY timestamp ASC LIMIT 1;", dayStart)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no stock snapshot found within day starting %s", dayStart)
	}

	err = p.stage(ctx, "fc_minify_stocks", "Stocks already compacted", func() error {
		return store.CompactStocks(ctx, p.conn, firstTS, dayStart, nextDay)
	})
	if err != nil {
		return err
	}
	err = p.stage(ctx, "fc_minify_orders", "Orders already compacted", func() error {
		return store.CompactMovements(ctx, p.conn, store.Orders, firstTS, dayStart, nextDay)
	})
	if err != nil {
		return err
	}
	return p.stage(ctx, "fc_minify_refills", "Refills already compacted", func() error {
		return store.CompactMovements(ctx, p.conn, store.Refills, firstTS, dayStart, nextDay)
	})
}

// loadStoredCatalogs reads back the catalogs file written during category
// processing. Catalog identities arrive there from many sources, so the
// set is deduplicated.
func (p *Pipeline) loadStoredCatalogs(ctx context.Context) ([]crawl.CatalogKey, error) {
	path := filepath.Join(p.cfg.Paths.OutputDir, store.Catalogs.File)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalogs file %s: %w", path, err)
	}
	defer f.Close()

	var catalogs []crawl.CatalogKey
	seen := make(map[crawl.CatalogKey]struct{})
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 3 {
			continue
		}
		key := crawl.CatalogKey{Shard: fields[1], Query: fields[2]}
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			catalogs = append(catalogs, key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read catalogs file %s: %w", path, err)
	}
	logger.Info(ctx, "Loaded previously stored catalogs", "count", len(catalogs))
	return catalogs, nil
}
