package pipeline

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/merchflow/harvester/internal/checkpoint"
	"github.com/merchflow/harvester/internal/crawl"
	"github.com/merchflow/harvester/internal/logger"
)

// runCycle executes one harvest cycle end to end. Every piece of work is
// guarded by a checkpoint flag, so a cycle interrupted anywhere resumes
// exactly where it stopped.
func (p *Pipeline) runCycle(ctx context.Context) error {
	if err := os.MkdirAll(p.cfg.Paths.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := p.resolveDay(ctx); err != nil {
		return err
	}

	unfinished, err := p.flags.Has(checkpoint.Temporary, unfinishedTaskKey)
	if err != nil {
		return err
	}
	if !unfinished {
		logger.Info(ctx, "No unfinished task left, cleaning up")
		if err := p.cleanupOutputDir(ctx); err != nil {
			return err
		}
		if err := p.flags.Set(checkpoint.Temporary, unfinishedTaskKey); err != nil {
			return err
		}
		if err := p.flags.SetTime(checkpoint.Temporary, taskTimestampKey, p.clock.PointStart(p.clock.Now())); err != nil {
			return err
		}
	}

	dayTS, _, err := p.flags.GetTime(checkpoint.Permanent, dayTimestampKey)
	if err != nil {
		return err
	}
	taskTS, _, err := p.flags.GetTime(checkpoint.Temporary, taskTimestampKey)
	if err != nil {
		return err
	}

	session := crawl.NewSession(p.fetcher, p.cfg.Remote, p.cfg.Harvest, p.cfg.Paths.WarehousesFile)

	fullDone, err := p.flags.Has(checkpoint.Temporary, "fc_finish")
	if err != nil {
		return err
	}
	if !fullDone {
		logger.Info(ctx, "Full harvest not done, running it now")
		if err := p.runFull(ctx, session, taskTS, dayTS); err != nil {
			return err
		}
	} else {
		logger.Info(ctx, "Full harvest is done, trying to run iteration", "task", taskTS)
		if err := p.runIncremental(ctx, session, taskTS, dayTS); err != nil {
			return err
		}
	}

	// Mark the point the cycle actually finished in, so an overlong run
	// does not trigger a redundant iteration for the point it ran into.
	endTS := p.clock.PointStart(p.clock.Now())
	if err := p.flags.Set(checkpoint.Temporary, checkpoint.Stamp(endTS)+"_finish"); err != nil {
		return err
	}
	if err := p.flags.Remove(checkpoint.Temporary, unfinishedTaskKey); err != nil {
		return err
	}
	if err := p.writer.CloseHandles(); err != nil {
		return err
	}
	return p.cleanupOutputDir(ctx)
}

// resolveDay anchors the cycle to the current day. When the day changes,
// every per-cycle flag is wiped and the new day start recorded.
func (p *Pipeline) resolveDay(ctx context.Context) error {
	current := p.clock.DayStart(p.clock.Now(), 0)
	last, ok, err := p.flags.GetTime(checkpoint.Permanent, dayTimestampKey)
	if err != nil {
		return err
	}
	if ok && last.Equal(current) {
		logger.Info(ctx, "Day anchor unchanged", "day", current)
		return nil
	}
	if err := p.flags.Clear(checkpoint.Temporary); err != nil {
		return err
	}
	if err := p.flags.SetTime(checkpoint.Permanent, dayTimestampKey, current); err != nil {
		return err
	}
	logger.Info(ctx, "Changed day anchor", "day", current)
	return nil
}

// processWarehouses writes one record per warehouse, each guarded by its
// own flag so a resumed cycle skips warehouses already persisted.
func (p *Pipeline) processWarehouses(ctx context.Context, warehouses []crawl.Warehouse, taskTS time.Time) error {
	logger.Info(ctx, "Processing warehouses, please wait...")
	stamp := checkpoint.Stamp(taskTS)
	for _, warehouse := range warehouses {
		flag := stamp + "_proc_warehouse_" + strconv.Itoa(warehouse.ExtID)
		done, err := p.flags.Has(checkpoint.Temporary, flag)
		if err != nil {
			return err
		}
		if done {
			continue
		}
		if err := p.writer.Submit(crawl.WarehouseBatch(p.cfg.Paths.OutputDir, warehouse, taskTS)).Wait(); err != nil {
			return err
		}
		if err := p.flags.Set(checkpoint.Temporary, flag); err != nil {
			return err
		}
	}
	logger.Info(ctx, "Done processing warehouses")
	return nil
}

// progress logs collection progress every tenth completion and at the end.
type progress struct {
	total     atomic.Int64
	processed atomic.Int64
}

func (pr *progress) step(ctx context.Context, what string) {
	done := pr.processed.Add(1)
	total := pr.total.Load()
	if done%10 == 0 || done == total {
		logger.Infof(ctx, "%s %d / %d (%.2f%%)", what, done, total, float64(done)/float64(total)*100)
	}
}

// processCategories collects every category concurrently: its related
// queries, the catalogs all those sources resolve to, and the sources
// themselves. Each category is guarded by its own flag.
func (p *Pipeline) processCategories(ctx context.Context, session *crawl.Session, categories []crawl.Source, taskTS time.Time) error {
	logger.Info(ctx, "Processing categories, please wait...")
	stamp := checkpoint.Stamp(taskTS)
	var pr progress

	g, ctx := errgroup.WithContext(ctx)
	for _, category := range categories {
		category := category
		flag := stamp + "_proc_category_" + category.Text
		done, err := p.flags.Has(checkpoint.Temporary, flag)
		if err != nil {
			return err
		}
		if done {
			continue
		}
		pr.total.Add(1)
		g.Go(func() error {
			collected, err := p.collectCategory(ctx, session, category)
			if err != nil {
				return err
			}
			if err := p.writer.Submit(crawl.CategoryBatch(p.cfg.Paths.OutputDir, collected, taskTS)).Wait(); err != nil {
				return err
			}
			if err := p.flags.Set(checkpoint.Temporary, flag); err != nil {
				return err
			}
			pr.step(ctx, "Category")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info(ctx, "Done processing categories")
	return nil
}

// collectCategory resolves the catalog identity of a category and each of
// its related queries.
func (p *Pipeline) collectCategory(ctx context.Context, session *crawl.Session, category crawl.Source) (crawl.CollectedCategory, error) {
	queries, err := session.Queries(ctx, category)
	if err != nil {
		return crawl.CollectedCategory{}, err
	}

	sources := append(queries, category)
	g, ctx := errgroup.WithContext(ctx)
	for i := range sources {
		i := i
		g.Go(func() error {
			key, err := session.CatalogIdentity(ctx, sources[i].Text)
			if err != nil {
				return err
			}
			sources[i].Catalog = key
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return crawl.CollectedCategory{}, err
	}

	var collected crawl.CollectedCategory
	seen := make(map[crawl.CatalogKey]struct{}, len(sources))
	for _, src := range sources {
		if _, ok := seen[src.Catalog]; !ok {
			seen[src.Catalog] = struct{}{}
			collected.Catalogs = append(collected.Catalogs, src.Catalog)
		}
		if src.Category {
			collected.Categories = append(collected.Categories, src)
		} else {
			collected.Queries = append(collected.Queries, src)
		}
	}
	return collected, nil
}

// processCatalogs sweeps all catalogs page by page: page 1 of every catalog
// completes before page 2 of any starts, so early places are persisted
// first. Each (catalog, page) is guarded by its own flag.
func (p *Pipeline) processCatalogs(ctx context.Context, session *crawl.Session, catalogs []crawl.CatalogKey, taskTS time.Time) error {
	logger.Info(ctx, "Processing catalogs, please wait...")
	stamp := checkpoint.Stamp(taskTS)

	for page := 1; page <= p.cfg.Harvest.PagesPerCatalog; page++ {
		var pr progress
		g, gctx := errgroup.WithContext(ctx)
		for _, catalog := range catalogs {
			catalog := catalog
			flag := stamp + "_proc_catalog_" + catalog.Shard + "_" + catalog.Query + "_" + strconv.Itoa(page)
			done, err := p.flags.Has(checkpoint.Temporary, flag)
			if err != nil {
				return err
			}
			if done {
				continue
			}
			pr.total.Add(1)
			g.Go(func() error {
				collected, err := p.collectPage(gctx, session, catalog, page)
				if err != nil {
					return err
				}
				if err := p.writer.Submit(crawl.PageBatch(p.cfg.Paths.OutputDir, collected, taskTS)).Wait(); err != nil {
					return err
				}
				if err := p.flags.Set(checkpoint.Temporary, flag); err != nil {
					return err
				}
				pr.step(gctx, fmt.Sprintf("Catalog page %d / %d:", page, p.cfg.Harvest.PagesPerCatalog))
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	logger.Info(ctx, "Done processing catalogs")
	return nil
}

// collectPage assembles one catalog page: the listed products, their
// sellers and the stock snapshots of every product on the page. Seller ids
// are attached to products here, before the page is encoded.
func (p *Pipeline) collectPage(ctx context.Context, session *crawl.Session, catalog crawl.CatalogKey, page int) (crawl.CollectedPage, error) {
	data, err := session.CatalogPage(ctx, catalog, page)
	if err != nil {
		return crawl.CollectedPage{}, err
	}
	collected := crawl.CollectedPage{PageData: data}
	if data.Empty() {
		return collected, nil
	}

	sellers := make([]*crawl.Seller, len(data.Products))
	g, gctx := errgroup.WithContext(ctx)
	for i := range data.Products {
		i := i
		g.Go(func() error {
			seller, err := session.Seller(gctx, data.Products[i].SKU)
			if err != nil {
				return err
			}
			sellers[i] = seller
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return crawl.CollectedPage{}, err
	}

	skus := make([]int, len(data.Products))
	seen := make(map[int]struct{})
	for i, seller := range sellers {
		skus[i] = data.Products[i].SKU
		if seller == nil {
			continue
		}
		collected.Products[i].SellerExtID = seller.ExtID
		if _, ok := seen[seller.ExtID]; !ok {
			seen[seller.ExtID] = struct{}{}
			collected.Sellers = append(collected.Sellers, *seller)
		}
	}

	stocks, err := session.StocksBySKU(ctx, skus)
	if err != nil {
		return crawl.CollectedPage{}, err
	}
	collected.Stocks = stocks
	return collected, nil
}
