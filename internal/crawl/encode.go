package crawl

import (
	"path/filepath"
	"time"

	"github.com/merchflow/harvester/internal/output"
	"github.com/merchflow/harvester/internal/store"
)

// WarehouseBatch encodes one warehouse record.
func WarehouseBatch(dir string, w Warehouse, ts time.Time) output.Batch {
	return output.Batch{
		filepath.Join(dir, store.Warehouses.File): appendWarehouse(nil, w, ts),
	}
}

// CategoryBatch encodes everything collected for one category: the resolved
// catalogs plus the category and query sources.
func CategoryBatch(dir string, collected CollectedCategory, ts time.Time) output.Batch {
	var catalogs, categories, queries []byte
	for _, key := range collected.Catalogs {
		catalogs = output.AppendLine(catalogs, output.Time(ts), key.Shard, key.Query)
	}
	for _, src := range collected.Categories {
		categories = appendSource(categories, src, ts)
	}
	for _, src := range collected.Queries {
		queries = appendSource(queries, src, ts)
	}
	return output.Batch{
		filepath.Join(dir, store.Catalogs.File):   catalogs,
		filepath.Join(dir, store.Categories.File): categories,
		filepath.Join(dir, store.Queries.File):    queries,
	}
}

// PageBatch encodes everything collected for one catalog page.
func PageBatch(dir string, collected CollectedPage, ts time.Time) output.Batch {
	var brands, products, details, positions, sellers []byte
	for _, b := range collected.Brands {
		brands = output.AppendLine(brands, output.Time(ts), output.Int(b.ExtID), b.Name, b.ImageURL)
	}
	for _, p := range collected.Products {
		products = output.AppendLine(products,
			output.Time(ts), output.Int(p.SKU), p.Name, p.ImageURL,
			output.Int(p.BrandExtID), output.NullableInt(p.SellerExtID))
	}
	for _, d := range collected.Details {
		details = output.AppendLine(details,
			output.Time(ts), output.Int(d.SKU), output.Int(d.Price),
			output.Int(d.SalePrice), output.Int(d.Feedbacks), output.Int(d.Rating))
	}
	for _, p := range collected.Positions {
		positions = output.AppendLine(positions,
			output.Time(ts), output.Int(p.SKU), p.Catalog.Shard, p.Catalog.Query, output.Int(p.Place))
	}
	for _, s := range collected.Sellers {
		sellers = output.AppendLine(sellers,
			output.Time(ts), output.Int(s.ExtID), s.Name, s.ImageURL,
			output.NullableString(s.TaxNumber), output.NullableString(s.RegNumber),
			output.NullableString(s.RegNumberAlt), output.NullableString(s.Address))
	}

	batch := StocksBatch(dir, collected.Stocks, ts)
	batch[filepath.Join(dir, store.Brands.File)] = brands
	batch[filepath.Join(dir, store.Products.File)] = products
	batch[filepath.Join(dir, store.ProductDetails.File)] = details
	batch[filepath.Join(dir, store.Positions.File)] = positions
	batch[filepath.Join(dir, store.Sellers.File)] = sellers
	return batch
}

// StocksBatch encodes one stock lookup result.
func StocksBatch(dir string, data StockData, ts time.Time) output.Batch {
	var sizes, warehouses, stocks []byte
	for _, s := range data.Sizes {
		sizes = output.AppendLine(sizes, output.Time(ts), output.Int(s.SKU), s.Name, s.AltName)
	}
	for _, w := range data.Warehouses {
		warehouses = appendWarehouse(warehouses, w, ts)
	}
	for _, s := range data.Stocks {
		stocks = output.AppendLine(stocks,
			output.Time(ts), output.Int(s.SKU), s.SizeName,
			output.Int(s.WarehouseExtID), output.Int(s.Quantity))
	}
	return output.Batch{
		filepath.Join(dir, store.Sizes.File):      sizes,
		filepath.Join(dir, store.Warehouses.File): warehouses,
		filepath.Join(dir, store.Stocks.File):     stocks,
	}
}

// MovementsBatch encodes derived orders and refills spanning [ts, tsTo).
func MovementsBatch(dir string, orders, refills []Movement, ts, tsTo time.Time) output.Batch {
	var ordersOut, refillsOut []byte
	for _, m := range orders {
		ordersOut = appendMovement(ordersOut, m, ts, tsTo)
	}
	for _, m := range refills {
		refillsOut = appendMovement(refillsOut, m, ts, tsTo)
	}
	return output.Batch{
		filepath.Join(dir, store.Orders.File):  ordersOut,
		filepath.Join(dir, store.Refills.File): refillsOut,
	}
}

func appendSource(dst []byte, src Source, ts time.Time) []byte {
	return output.AppendLine(dst, output.Time(ts), src.Text, src.Catalog.Shard, src.Catalog.Query)
}

func appendWarehouse(dst []byte, w Warehouse, ts time.Time) []byte {
	return output.AppendLine(dst, output.Time(ts), output.Int(w.ExtID), output.NullableString(w.Name))
}

func appendMovement(dst []byte, m Movement, ts, tsTo time.Time) []byte {
	return output.AppendLine(dst,
		output.Time(ts), output.Time(tsTo), output.Int(m.SKU), m.SizeName,
		output.Int(m.WarehouseExtID), output.Int(m.Quantity))
}
