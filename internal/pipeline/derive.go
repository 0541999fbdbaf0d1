package pipeline

import (
	"context"
	"time"

	"github.com/merchflow/harvester/internal/crawl"
	"github.com/merchflow/harvester/internal/logger"
	"github.com/merchflow/harvester/internal/store"
)

// movementSQL diffs the current snapshot against the previous one per
// (size, warehouse). The current side is a LEFT JOIN: a pair absent from
// the current snapshot yields a NULL diff, which is skipped rather than
// treated as a sale of the full quantity.
const movementSQL = "SELECT products.sku AS product_sku, " +
	"sizes.name AS size_name, " +
	"warehouses.ext_id AS warehouse_ext_id, " +
	"s2.quantity - s1.quantity AS diff " +
	"FROM stocks s1 " +
	"LEFT JOIN sizes ON sizes.id = s1.size_id " +
	"LEFT JOIN warehouses ON warehouses.id = s1.warehouse_id " +
	"LEFT JOIN products ON products.id = sizes.product_id " +
	"LEFT JOIN stocks s2 ON s2.size_id = s1.size_id AND s2.warehouse_id = s1.warehouse_id AND s2.timestamp = $1 " +
	"WHERE s1.timestamp = $2;"

// deriveMovements computes orders and refills between the previous snapshot
// at fromTS and the current one at taskTS, writes them to the output files
// and imports both tables. Movement rows span [fromTS, taskTS) and land in
// fromTS's daily partition.
func (p *Pipeline) deriveMovements(ctx context.Context, taskTS, fromTS time.Time) error {
	if err := p.processMovements(ctx, taskTS, fromTS); err != nil {
		return err
	}
	return p.loader.ImportAll(ctx, []store.Table{store.Orders, store.Refills}, taskTS, &fromTS)
}

func (p *Pipeline) processMovements(ctx context.Context, taskTS, fromTS time.Time) error {
	var (
		orders  []crawl.Movement
		refills []crawl.Movement
		count   int
	)

	flush := func() error {
		batch := crawl.MovementsBatch(p.cfg.Paths.OutputDir, orders, refills, fromTS, taskTS)
		if err := p.writer.Submit(batch).Wait(); err != nil {
			return err
		}
		orders = orders[:0]
		refills = refills[:0]
		count = 0
		return nil
	}

	err := p.conn.Query(ctx, movementSQL, func(row store.Row) error {
		var (
			sku      int
			sizeName string
			extID    int
			diff     *int
		)
		if err := row.Scan(&sku, &sizeName, &extID, &diff); err != nil {
			return err
		}
		// A NULL diff means the pair vanished from the current snapshot;
		// there is no quantity to attribute either way.
		if diff != nil {
			m := crawl.Movement{SKU: sku, SizeName: sizeName, WarehouseExtID: extID}
			switch {
			case *diff < 0:
				m.Quantity = -*diff
				orders = append(orders, m)
			case *diff > 0:
				m.Quantity = *diff
				refills = append(refills, m)
			}
		}
		count++
		if count == p.cfg.Harvest.QueryBatchSize {
			logger.Info(ctx, "Storing movement batch because it reached the limit")
			return flush()
		}
		return nil
	}, taskTS, fromTS)
	if err != nil {
		return err
	}

	if len(orders) > 0 || len(refills) > 0 {
		logger.Info(ctx, "Storing leftovers from last movement batch")
		return flush()
	}
	return nil
}
