// Package crawl implements the remote-facing side of the pipeline: URL
// construction, response parsing and the run-scoped session that turns
// scheduled fetches into typed entities.
package crawl

// CatalogKey identifies a catalog by its search shard and query string.
type CatalogKey struct {
	Shard string
	Query string
}

// Source is a text source that resolves to a catalog: either a category
// from the category tree or a search query.
type Source struct {
	Text string
	// URL is the category's path on the site. Empty for query sources.
	URL string
	// Category distinguishes tree categories from search queries.
	Category bool
	// Catalog is the resolved catalog identity, filled in during
	// collection.
	Catalog CatalogKey
}

// Brand is a product brand.
type Brand struct {
	ExtID    int
	Name     string
	ImageURL string
}

// Product is a catalog product. SellerExtID is zero until a seller lookup
// succeeds; it is filled in once during page assembly and read-only after.
type Product struct {
	SKU         int
	Name        string
	ImageURL    string
	BrandExtID  int
	SellerExtID int
}

// ProductDetail is a product's per-cycle snapshot of price and rating data.
type ProductDetail struct {
	SKU       int
	Price     int
	SalePrice int
	Feedbacks int
	Rating    int
}

// Position records where a product ranked within a catalog.
type Position struct {
	SKU     int
	Catalog CatalogKey
	Place   int
}

// Seller is a marketplace seller. The registry fields are optional.
type Seller struct {
	ExtID        int
	Name         string
	ImageURL     string
	TaxNumber    string
	RegNumber    string
	RegNumberAlt string
	Address      string
}

// Size is one size variant of a product. Name is the canonical size name
// used as the natural key; AltName is the display name.
type Size struct {
	SKU     int
	Name    string
	AltName string
}

// Warehouse is a fulfillment warehouse. Name is empty when the warehouse
// was only ever seen through stock records.
type Warehouse struct {
	ExtID int
	Name  string
}

// Stock is a quantity snapshot of one size in one warehouse.
type Stock struct {
	SKU            int
	SizeName       string
	WarehouseExtID int
	Quantity       int
}

// Movement is a derived stock movement: an order (quantity sold) or a
// refill (quantity restocked) between two snapshots.
type Movement struct {
	SKU            int
	SizeName       string
	WarehouseExtID int
	Quantity       int
}

// PageData is the typed content of one catalog page.
type PageData struct {
	Brands    []Brand
	Products  []Product
	Details   []ProductDetail
	Positions []Position
}

// Empty reports whether the page carried no products.
func (p PageData) Empty() bool {
	return len(p.Brands) == 0 && len(p.Products) == 0 &&
		len(p.Details) == 0 && len(p.Positions) == 0
}

// StockData is the typed content of one stocks lookup.
type StockData struct {
	Sizes      []Size
	Warehouses []Warehouse
	Stocks     []Stock
}

// CollectedCategory is everything gathered for one category: the catalogs
// resolved from the category and its related queries, plus the sources
// themselves.
type CollectedCategory struct {
	Catalogs   []CatalogKey
	Categories []Source
	Queries    []Source
}

// CollectedPage is a catalog page plus the sellers and stock data gathered
// for its products.
type CollectedPage struct {
	PageData
	Sellers []Seller
	Stocks  StockData
}
