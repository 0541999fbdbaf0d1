// Package config loads and validates the application configuration.
package config

import (
	"fmt"
	"time"
)

// Config is the fully resolved application configuration.
type Config struct {
	Debug     bool
	Quiet     bool
	LogFormat string

	// Timezone is the IANA name the harvest clock points are computed in.
	Timezone string
	Location *time.Location

	Database Database
	Fetch    Fetch
	Paths    Paths
	Harvest  Harvest
	Remote   Remote
}

// Database configures the relational store connection.
type Database struct {
	DSN      string
	MaxConns int32
}

// Fetch configures the outbound request scheduler.
type Fetch struct {
	// Workers is the global cap on concurrent in-flight requests.
	Workers int
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration
	// Timeout bounds a single request attempt.
	Timeout time.Duration
}

// Paths configures local filesystem locations.
type Paths struct {
	// OutputDir receives the per-table delimited output files.
	OutputDir string
	// CheckpointDB is the sqlite file backing the checkpoint store.
	CheckpointDB string
	// WarehousesFile is the local warehouse reference dataset.
	WarehousesFile string
}

// Harvest holds the crawl and ingest tuning knobs.
type Harvest struct {
	// PagesPerCatalog caps how many listing pages are visited per catalog.
	PagesPerCatalog int
	// ProductsPerPage is the page size of catalog listings and the stock
	// crawl batch size.
	ProductsPerPage int
	// PositionPlaceCap drops position records ranked beyond this place.
	PositionPlaceCap int
	// QueryBatchSize bounds rows held in memory while streaming the store.
	QueryBatchSize int
	// RetentionDays is the history window; older partitions and dictionary
	// rows are purged.
	RetentionDays int
}

// Remote holds the endpoint templates of the harvested marketplace. The
// defaults are placeholders; deployments supply the real endpoints.
type Remote struct {
	CategoriesURL      string
	CatalogURL         string
	CategoryPageURL    string
	QueryPageURL       string
	CategoryQueriesURL string
	SimilarQueriesURL  string
	SellerURL          string
	StocksURL          string
	ProductImageURL    string
	BrandImageURL      string
	SellerImageURL     string
}

func (c *Config) validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Fetch.Workers <= 0 {
		return fmt.Errorf("fetch.workers must be positive, got %d", c.Fetch.Workers)
	}
	if c.Harvest.ProductsPerPage <= 0 {
		return fmt.Errorf("harvest.productsPerPage must be positive, got %d", c.Harvest.ProductsPerPage)
	}
	if c.Harvest.QueryBatchSize < c.Harvest.ProductsPerPage {
		return fmt.Errorf("harvest.queryBatchSize must be at least harvest.productsPerPage")
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	c.Location = loc
	return nil
}
