package store

import (
	"strings"
	"time"
)

// Kind classifies how a table accumulates data.
type Kind int

const (
	// Dictionary tables hold the latest known row per natural key.
	Dictionary Kind = iota
	// History tables append snapshot rows and are range-partitioned by day.
	History
)

// Table describes one destination table: its output file, staging and final
// schemas, the merge statement that folds staging rows into the final table
// and the tables whose merge must complete first.
type Table struct {
	Name string
	Kind Kind
	// File is the output file name under the output directory.
	File string
	// StagingSchema is the loosely typed column list of the staging table.
	StagingSchema string
	// Schema is the column list of the final table.
	Schema string
	// MergeSQL folds staging rows into the final table. %table% expands to
	// the table name.
	MergeSQL string
	// IndexColumns get a secondary index each on the final table.
	IndexColumns []string
	// DependsOn names tables whose merge must finish before this one runs,
	// because MergeSQL joins against their final form.
	DependsOn []string
}

// StagingName returns the name of the table's staging table.
func (t Table) StagingName() string {
	return t.Name + "_tmp"
}

// Merge renders MergeSQL with the table name substituted.
func (t Table) Merge() string {
	return strings.ReplaceAll(t.MergeSQL, "%table%", t.Name)
}

// PartitionSuffix names the daily partition holding rows of the day starting
// at dayStart, e.g. "_20260827".
func PartitionSuffix(dayStart time.Time) string {
	return "_" + dayStart.Format("20060102")
}

var (
	// Catalogs is the dictionary of discovered catalog identities.
	Catalogs = Table{
		Name: "catalogs",
		Kind: Dictionary,
		File: "catalogs.txt",
		StagingSchema: "timestamp TIMESTAMPTZ, " +
			"shard TEXT, " +
			"query TEXT",
		Schema: "id BIGSERIAL, " +
			"last_timestamp TIMESTAMPTZ NOT NULL, " +
			"shard TEXT NOT NULL, " +
			"query TEXT NOT NULL, " +
			"PRIMARY KEY (id), " +
			"UNIQUE (shard, query)",
		MergeSQL: "INSERT INTO %table% (last_timestamp, shard, query) " +
			"SELECT DISTINCT ON (shard, query) * FROM %table%_tmp " +
			"ON CONFLICT (shard, query) DO UPDATE SET " +
			"last_timestamp = EXCLUDED.last_timestamp;",
		IndexColumns: []string{"last_timestamp"},
	}

	Categories = Table{
		Name: "categories",
		Kind: Dictionary,
		File: "categories.txt",
		StagingSchema: "timestamp TIMESTAMPTZ, " +
			"text TEXT, " +
			"catalog_shard TEXT, " +
			"catalog_query TEXT",
		Schema: "id BIGSERIAL, " +
			"last_timestamp TIMESTAMPTZ NOT NULL, " +
			"text TEXT NOT NULL, " +
			"catalog_id BIGINT NOT NULL, " +
			"PRIMARY KEY (id), " +
			"UNIQUE (text)",
		MergeSQL: "INSERT INTO %table% (last_timestamp, text, catalog_id) " +
			"SELECT DISTINCT ON (text) timestamp, text, catalogs.id AS catalog_id FROM %table%_tmp " +
			"LEFT JOIN catalogs ON catalogs.shard = catalog_shard AND catalogs.query = catalog_query " +
			"ON CONFLICT (text) DO UPDATE SET " +
			"last_timestamp = EXCLUDED.last_timestamp, " +
			"catalog_id = EXCLUDED.catalog_id;",
		IndexColumns: []string{"last_timestamp", "catalog_id"},
		DependsOn:    []string{"catalogs"},
	}

	Queries = Table{
		Name: "queries",
		Kind: Dictionary,
		File: "queries.txt",
		StagingSchema: "timestamp TIMESTAMPTZ, " +
			"text TEXT, " +
			"catalog_shard TEXT, " +
			"catalog_query TEXT",
		Schema: "id BIGSERIAL, " +
			"last_timestamp TIMESTAMPTZ NOT NULL, " +
			"text TEXT NOT NULL, " +
			"catalog_id BIGINT NOT NULL, " +
			"PRIMARY KEY (id), " +
			"UNIQUE (text)",
		MergeSQL: "INSERT INTO %table% (last_timestamp, text, catalog_id) " +
			"SELECT DISTINCT ON (text) timestamp, text, catalogs.id AS catalog_id FROM %table%_tmp " +
			"LEFT JOIN catalogs ON catalogs.shard = catalog_shard AND catalogs.query = catalog_query " +
			"ON CONFLICT (text) DO UPDATE SET " +
			"last_timestamp = EXCLUDED.last_timestamp, " +
			"catalog_id = EXCLUDED.catalog_id;",
		IndexColumns: []string{"last_timestamp", "catalog_id"},
		DependsOn:    []string{"catalogs"},
	}

	Brands = Table{
		Name: "brands",
		Kind: Dictionary,
		File: "brands.txt",
		StagingSchema: "timestamp TIMESTAMPTZ, " +
			"ext_id INTEGER, " +
			"name TEXT, " +
			"image_url TEXT",
		Schema: "id BIGSERIAL, " +
			"last_timestamp TIMESTAMPTZ NOT NULL, " +
			"ext_id INTEGER NOT NULL, " +
			"name TEXT NOT NULL, " +
			"image_url TEXT NOT NULL, " +
			"PRIMARY KEY (id), " +
			"UNIQUE (ext_id)",
		MergeSQL: "INSERT INTO %table% (last_timestamp, ext_id, name, image_url) " +
			"SELECT DISTINCT ON (ext_id) * FROM %table%_tmp " +
			"ON CONFLICT (ext_id) DO UPDATE SET " +
			"last_timestamp = EXCLUDED.last_timestamp, " +
			"name = EXCLUDED.name, " +
			"image_url = EXCLUDED.image_url;",
		IndexColumns: []string{"last_timestamp", "name"},
	}

	Sellers = Table{
		Name: "sellers",
		Kind: Dictionary,
		File: "sellers.txt",
		StagingSchema: "timestamp TIMESTAMPTZ, " +
			"ext_id INTEGER, " +
			"name TEXT, " +
			"image_url TEXT, " +
			"tax_number TEXT, " +
			"reg_number TEXT, " +
			"reg_number_alt TEXT, " +
			"address TEXT",
		Schema: "id BIGSERIAL, " +
			"last_timestamp TIMESTAMPTZ NOT NULL, " +
			"ext_id INTEGER NOT NULL, " +
			"name TEXT NOT NULL, " +
			"image_url TEXT NOT NULL, " +
			"tax_number TEXT, " +
			"reg_number TEXT, " +
			"reg_number_alt TEXT, " +
			"address TEXT, " +
			"PRIMARY KEY (id), " +
			"UNIQUE (ext_id)",
		MergeSQL: "INSERT INTO %table% (last_timestamp, ext_id, name, image_url, tax_number, reg_number, reg_number_alt, address) " +
			"SELECT DISTINCT ON (ext_id) * FROM %table%_tmp " +
			"ON CONFLICT (ext_id) DO UPDATE SET " +
			"last_timestamp = EXCLUDED.last_timestamp, " +
			"name = EXCLUDED.name, " +
			"image_url = EXCLUDED.image_url, " +
			"tax_number = EXCLUDED.tax_number, " +
			"reg_number = EXCLUDED.reg_number, " +
			"reg_number_alt = EXCLUDED.reg_number_alt, " +
			"address = EXCLUDED.address;",
		IndexColumns: []string{"last_timestamp", "name"},
	}

	Products = Table{
		Name: "products",
		Kind: Dictionary,
		File: "products.txt",
		StagingSchema: "timestamp TIMESTAMPTZ, " +
			"sku INTEGER, " +
			"name TEXT, " +
			"image_url TEXT, " +
			"brand_ext_id INTEGER, " +
			"seller_ext_id INTEGER",
		Schema: "id BIGSERIAL, " +
			"last_timestamp TIMESTAMPTZ NOT NULL, " +
			"sku INTEGER NOT NULL, " +
			"name TEXT NOT NULL, " +
			"image_url TEXT NOT NULL, " +
			"brand_id BIGINT NOT NULL, " +
			"seller_id BIGINT, " +
			"PRIMARY KEY (id), " +
			"UNIQUE (sku)",
		MergeSQL: "INSERT INTO %table% (last_timestamp, sku, name, image_url, brand_id, seller_id) " +
			"SELECT DISTINCT ON (sku) timestamp, sku, %table%_tmp.name, %table%_tmp.image_url, brands.id AS brand_id, sellers.id AS seller_id FROM %table%_tmp " +
			"LEFT JOIN brands ON brands.ext_id = brand_ext_id " +
			"LEFT JOIN sellers ON sellers.ext_id = seller_ext_id " +
			"ON CONFLICT (sku) DO UPDATE SET " +
			"last_timestamp = EXCLUDED.last_timestamp, " +
			"name = EXCLUDED.name, " +
			"image_url = EXCLUDED.image_url, " +
			"brand_id = EXCLUDED.brand_id, " +
			"seller_id = EXCLUDED.seller_id;",
		IndexColumns: []string{"last_timestamp", "brand_id", "seller_id"},
		DependsOn:    []string{"brands", "sellers"},
	}

	ProductDetails = Table{
		Name: "product_details",
		Kind: History,
		File: "product_details.txt",
		StagingSchema: "timestamp TIMESTAMPTZ, " +
			"product_sku INTEGER, " +
			"price INTEGER, " +
			"sale_price INTEGER, " +
			"feedbacks INTEGER, " +
			"rating SMALLINT",
		Schema: "id BIGSERIAL, " +
			"timestamp TIMESTAMPTZ NOT NULL, " +
			"product_id BIGINT NOT NULL, " +
			"price INTEGER NOT NULL, " +
			"sale_price INTEGER NOT NULL, " +
			"feedbacks INTEGER NOT NULL, " +
			"rating SMALLINT NOT NULL, " +
			"PRIMARY KEY (id, timestamp), " +
			"UNIQUE (product_id, timestamp)",
		MergeSQL: "INSERT INTO %table% (timestamp, product_id, price, sale_price, feedbacks, rating) " +
			"SELECT DISTINCT ON (product_sku, timestamp) timestamp, products.id AS product_id, price, sale_price, feedbacks, rating FROM %table%_tmp " +
			"LEFT JOIN products ON products.sku = product_sku " +
			"ON CONFLICT (product_id, timestamp) DO UPDATE SET " +
			"price = EXCLUDED.price, " +
			"sale_price = EXCLUDED.sale_price, " +
			"feedbacks = EXCLUDED.feedbacks, " +
			"rating = EXCLUDED.rating;",
		IndexColumns: []string{"timestamp"},
		DependsOn:    []string{"products"},
	}

	Positions = Table{
		Name: "positions",
		Kind: History,
		File: "positions.txt",
		StagingSchema: "timestamp TIMESTAMPTZ, " +
			"product_sku INTEGER, " +
			"catalog_shard TEXT, " +
			"catalog_query TEXT, " +
			"place SMALLINT",
		Schema: "id BIGSERIAL, " +
			"timestamp TIMESTAMPTZ NOT NULL, " +
			"product_id BIGINT NOT NULL, " +
			"catalog_id BIGINT NOT NULL, " +
			"place SMALLINT NOT NULL, " +
			"PRIMARY KEY (id, timestamp), " +
			"UNIQUE (product_id, catalog_id, timestamp)",
		MergeSQL: "INSERT INTO %table% (timestamp, product_id, catalog_id, place) " +
			"SELECT DISTINCT ON (product_sku, catalog_shard, catalog_query, timestamp) timestamp, products.id AS product_id, catalogs.id AS catalog_id, place FROM %table%_tmp " +
			"LEFT JOIN products ON products.sku = product_sku " +
			"LEFT JOIN catalogs ON catalogs.shard = catalog_shard AND catalogs.query = catalog_query " +
			"ON CONFLICT (product_id, catalog_id, timestamp) DO UPDATE SET " +
			"place = EXCLUDED.place;",
		IndexColumns: []string{"timestamp", "catalog_id"},
		DependsOn:    []string{"catalogs", "products"},
	}

	Sizes = Table{
		Name: "sizes",
		Kind: Dictionary,
		File: "sizes.txt",
		StagingSchema: "timestamp TIMESTAMPTZ, " +
			"product_sku INTEGER, " +
			"name TEXT, " +
			"alt_name TEXT",
		Schema: "id BIGSERIAL, " +
			"last_timestamp TIMESTAMPTZ NOT NULL, " +
			"product_id INTEGER NOT NULL, " +
			"name TEXT NOT NULL, " +
			"alt_name TEXT NOT NULL, " +
			"PRIMARY KEY (id), " +
			"UNIQUE (product_id, name)",
		MergeSQL: "INSERT INTO %table% (last_timestamp, product_id, name, alt_name) " +
			"SELECT DISTINCT ON (product_sku, name) timestamp, products.id AS product_id, %table%_tmp.name, alt_name FROM %table%_tmp " +
			"LEFT JOIN products ON products.sku = product_sku " +
			"ON CONFLICT (product_id, name) DO UPDATE SET " +
			"last_timestamp = EXCLUDED.last_timestamp, " +
			"alt_name = EXCLUDED.alt_name;",
		IndexColumns: []string{"last_timestamp"},
		DependsOn:    []string{"products"},
	}

	Warehouses = Table{
		Name: "warehouses",
		Kind: Dictionary,
		File: "warehouses.txt",
		StagingSchema: "timestamp TIMESTAMPTZ, " +
			"ext_id INTEGER, " +
			"name TEXT",
		Schema: "id BIGSERIAL, " +
			"last_timestamp TIMESTAMPTZ NOT NULL, " +
			"ext_id INTEGER NOT NULL, " +
			"name TEXT, " +
			"PRIMARY KEY (id), " +
			"UNIQUE (ext_id)",
		MergeSQL: "INSERT INTO %table% (last_timestamp, ext_id, name) " +
			"SELECT DISTINCT ON (ext_id) * FROM %table%_tmp " +
			"ORDER BY ext_id, name " +
			"ON CONFLICT (ext_id) DO UPDATE SET " +
			"last_timestamp = EXCLUDED.last_timestamp, " +
			"name = EXCLUDED.name;",
		IndexColumns: []string{"last_timestamp"},
	}

	Stocks = Table{
		Name: "stocks",
		Kind: History,
		File: "stocks.txt",
		StagingSchema: "timestamp TIMESTAMPTZ, " +
			"product_sku INTEGER, " +
			"size_name TEXT, " +
			"warehouse_ext_id INTEGER, " +
			"quantity INTEGER",
		Schema: "id BIGSERIAL, " +
			"timestamp TIMESTAMPTZ NOT NULL, " +
			"size_id BIGINT NOT NULL, " +
			"warehouse_id BIGINT NOT NULL, " +
			"quantity INTEGER NOT NULL, " +
			"PRIMARY KEY (id, timestamp), " +
			"UNIQUE (size_id, warehouse_id, timestamp)",
		MergeSQL: "INSERT INTO %table% (timestamp, size_id, warehouse_id, quantity) " +
			"SELECT DISTINCT ON (product_sku, size_name, warehouse_ext_id, timestamp) timestamp, sizes.id AS size_id, warehouses.id AS warehouse_id, quantity FROM %table%_tmp " +
			"LEFT JOIN products ON products.sku = product_sku " +
			"LEFT JOIN sizes ON sizes.product_id = products.id AND sizes.name = size_name " +
			"LEFT JOIN warehouses ON warehouses.ext_id = warehouse_ext_id " +
			"ON CONFLICT (size_id, warehouse_id, timestamp) DO UPDATE SET " +
			"quantity = EXCLUDED.quantity;",
		IndexColumns: []string{"timestamp", "warehouse_id"},
		DependsOn:    []string{"products", "sizes", "warehouses"},
	}

	Orders = Table{
		Name: "orders",
		Kind: History,
		File: "orders.txt",
		StagingSchema: "timestamp TIMESTAMPTZ, " +
			"timestamp_to TIMESTAMPTZ, " +
			"product_sku INTEGER, " +
			"size_name TEXT, " +
			"warehouse_ext_id INTEGER, " +
			"quantity INTEGER",
		Schema: "id BIGSERIAL, " +
			"timestamp TIMESTAMPTZ NOT NULL, " +
			"timestamp_to TIMESTAMPTZ NOT NULL, " +
			"size_id BIGINT NOT NULL, " +
			"warehouse_id BIGINT NOT NULL, " +
			"quantity INTEGER NOT NULL, " +
			"PRIMARY KEY (id, timestamp), " +
			"UNIQUE (size_id, warehouse_id, timestamp)",
		MergeSQL: "INSERT INTO %table% (timestamp, timestamp_to, size_id, warehouse_id, quantity) " +
			"SELECT DISTINCT ON (product_sku, size_name, warehouse_ext_id, timestamp) timestamp, timestamp_to, sizes.id AS size_id, warehouses.id AS warehouse_id, quantity FROM %table%_tmp " +
			"LEFT JOIN products ON products.sku = product_sku " +
			"LEFT JOIN sizes ON sizes.product_id = products.id AND sizes.name = size_name " +
			"LEFT JOIN warehouses ON warehouses.ext_id = warehouse_ext_id " +
			"ON CONFLICT (size_id, warehouse_id, timestamp) DO UPDATE SET " +
			"timestamp_to = EXCLUDED.timestamp_to, " +
			"quantity = EXCLUDED.quantity;",
		IndexColumns: []string{"timestamp", "warehouse_id"},
		DependsOn:    []string{"products", "sizes", "warehouses"},
	}

	Refills = Table{
		Name: "refills",
		Kind: History,
		File: "refills.txt",
		StagingSchema: "timestamp TIMESTAMPTZ, " +
			"timestamp_to TIMESTAMPTZ, " +
			"product_sku INTEGER, " +
			"size_name TEXT, " +
			"warehouse_ext_id INTEGER, " +
			"quantity INTEGER",
		Schema: "id BIGSERIAL, " +
			"timestamp TIMESTAMPTZ NOT NULL, " +
			"timestamp_to TIMESTAMPTZ NOT NULL, " +
			"size_id BIGINT NOT NULL, " +
			"warehouse_id BIGINT NOT NULL, " +
			"quantity INTEGER NOT NULL, " +
			"PRIMARY KEY (id, timestamp), " +
			"UNIQUE (size_id, warehouse_id, timestamp)",
		MergeSQL: "INSERT INTO %table% (timestamp, timestamp_to, size_id, warehouse_id, quantity) " +
			"SELECT DISTINCT ON (product_sku, size_name, warehouse_ext_id, timestamp) timestamp, timestamp_to, sizes.id AS size_id, warehouses.id AS warehouse_id, quantity FROM %table%_tmp " +
			"LEFT JOIN products ON products.sku = product_sku " +
			"LEFT JOIN sizes ON sizes.product_id = products.id AND sizes.name = size_name " +
			"LEFT JOIN warehouses ON warehouses.ext_id = warehouse_ext_id " +
			"ON CONFLICT (size_id, warehouse_id, timestamp) DO UPDATE SET " +
			"timestamp_to = EXCLUDED.timestamp_to, " +
			"quantity = EXCLUDED.quantity;",
		IndexColumns: []string{"timestamp", "warehouse_id"},
		DependsOn:    []string{"products", "sizes", "warehouses"},
	}
)

// Tables lists every destination table.
var Tables = []Table{
	Catalogs, Categories, Queries, Brands, Sellers, Products,
	ProductDetails, Positions, Sizes, Warehouses, Stocks, Orders, Refills,
}

// FullHarvestTables is the import set of a full harvest. Orders and refills
// are derived later from stock snapshots and imported separately.
var FullHarvestTables = []Table{
	Catalogs, Categories, Queries, Brands, Sellers, Products,
	ProductDetails, Positions, Sizes, Warehouses, Stocks,
}

// IncrementalTables is the import set of an incremental pass.
var IncrementalTables = []Table{Sizes, Warehouses, Stocks}
