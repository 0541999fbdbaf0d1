package pipeline

import (
	"context"
	"time"

	"github.com/merchflow/harvester/internal/checkpoint"
	"github.com/merchflow/harvester/internal/crawl"
	"github.com/merchflow/harvester/internal/logger"
	"github.com/merchflow/harvester/internal/store"
)

// runIncremental executes the between-points iteration: it re-crawls stock
// levels for every product seen today, imports them and derives the
// movements since the previous snapshot.
func (p *Pipeline) runIncremental(ctx context.Context, session *crawl.Session, taskTS, dayTS time.Time) error {
	stamp := checkpoint.Stamp(taskTS)

	done, err := p.flags.Has(checkpoint.Temporary, stamp+"_finish")
	if err != nil {
		return err
	}
	if done {
		logger.Info(ctx, "Iteration for current point already done, skipping")
		return nil
	}

	err = p.stage(ctx, stamp+"_warehouses_done", "All warehouses already done", func() error {
		warehouses, err := session.Warehouses()
		if err != nil {
			return err
		}
		return p.processWarehouses(ctx, warehouses, taskTS)
	})
	if err != nil {
		return err
	}

	err = p.stage(ctx, stamp+"_sku_batches_done", "All sku batches already done", func() error {
		return p.sweepStocks(ctx, session, taskTS, dayTS)
	})
	if err != nil {
		return err
	}

	err = p.stage(ctx, stamp+"_imports_done", "Everything already imported into database", func() error {
		return p.loader.ImportAll(ctx, store.IncrementalTables, taskTS, nil)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "Searching stocks older than task", "task", taskTS)
	lastTS, found, err := p.lastSnapshotBefore(ctx, taskTS)
	if err != nil {
		return err
	}
	if !found {
		logger.Info(ctx, "No last snapshot found, skipping movements")
		return nil
	}
	return p.stage(ctx, stamp+"_ordersrefills_done", "Orders and refills already calculated", func() error {
		logger.Info(ctx, "Last snapshot found", "timestamp", lastTS)
		return p.deriveMovements(ctx, taskTS, lastTS)
	})
}

// sweepStocks streams the SKUs of every product seen since dayTS and
// re-crawls their stock levels in page-sized batches. In-flight batches are
// capped: once their combined SKU count reaches the query batch size, the
// stream pauses until all of them have been written.
func (p *Pipeline) sweepStocks(ctx context.Context, session *crawl.Session, taskTS, dayTS time.Time) error {
	perBatch := p.cfg.Harvest.ProductsPerPage
	var (
		skus    []int
		futures []chan error
	)

	launch := func(batch []int) {
		done := make(chan error, 1)
		go func() {
			data, err := session.StocksBySKU(ctx, batch)
			if err != nil {
				done <- err
				return
			}
			done <- p.writer.Submit(crawl.StocksBatch(p.cfg.Paths.OutputDir, data, taskTS)).Wait()
		}()
		futures = append(futures, done)
	}

	await := func() error {
		for _, done := range futures {
			if err := <-done; err != nil {
				return err
			}
		}
		futures = futures[:0]
		return nil
	}

	err := p.conn.Query(ctx,
		"SELECT sku FROM products WHERE last_timestamp >= $1 ORDER BY id ASC;",
		func(row store.Row) error {
			var sku int
			if err := row.Scan(&sku); err != nil {
				return err
			}
			skus = append(skus, sku)
			if len(skus) == perBatch {
				logger.Debug(ctx, "Scheduling batch because it reached the limit")
				launch(skus)
				skus = nil
			}
			if len(futures)*perBatch >= p.cfg.Harvest.QueryBatchSize {
				logger.Info(ctx, "Awaiting batch executions before continuing")
				return await()
			}
			return nil
		}, dayTS)
	if err != nil {
		return err
	}

	if len(skus) > 0 {
		logger.Info(ctx, "Scheduling leftovers from last batch")
		launch(skus)
	}
	return await()
}
