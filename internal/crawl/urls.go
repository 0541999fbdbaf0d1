package crawl

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/merchflow/harvester/internal/config"
)

// categoryURLPrefix marks category tree nodes that resolve to real catalogs.
const categoryURLPrefix = "/catalog"

// categorySeparator joins nested category names into one path-like text.
const categorySeparator = "/"

// URLs builds request URLs from the configured endpoint templates.
type URLs struct {
	remote config.Remote
}

// NewURLs creates a URL builder over the given endpoint templates.
func NewURLs(remote config.Remote) URLs {
	return URLs{remote: remote}
}

// Categories returns the category tree endpoint.
func (u URLs) Categories() string {
	return u.remote.CategoriesURL
}

// Catalog returns the catalog identity lookup for a source text.
func (u URLs) Catalog(text string) string {
	return strings.ReplaceAll(u.remote.CatalogURL, "%query%", url.QueryEscape(text))
}

// CatalogPage returns one listing page of a catalog. Query-backed shards
// use the search listing endpoint, category shards the catalog one.
func (u URLs) CatalogPage(key CatalogKey, page int) string {
	template := u.remote.CategoryPageURL
	if strings.HasPrefix(key.Shard, "presets/") ||
		strings.HasPrefix(key.Shard, "brands/") ||
		strings.HasPrefix(key.Shard, "merger") {
		template = u.remote.QueryPageURL
	}
	r := strings.NewReplacer(
		"%shard%", key.Shard,
		"%query%", key.Query,
		"%page%", strconv.Itoa(page),
	)
	return r.Replace(template)
}

// Queries returns the related-queries lookup for a source.
func (u URLs) Queries(src Source) string {
	if src.Category {
		return strings.ReplaceAll(u.remote.CategoryQueriesURL, "%url%", src.URL)
	}
	return strings.ReplaceAll(u.remote.SimilarQueriesURL, "%query%", url.QueryEscape(src.Text))
}

// Seller returns the seller info lookup for a product.
func (u URLs) Seller(sku int) string {
	return expandSKU(u.remote.SellerURL, sku)
}

// Stocks returns the stock lookup for a batch of SKUs.
func (u URLs) Stocks(skus []int) string {
	parts := make([]string, len(skus))
	for i, sku := range skus {
		parts[i] = strconv.Itoa(sku)
	}
	return strings.ReplaceAll(u.remote.StocksURL, "%skus%", strings.Join(parts, ";"))
}

// ProductImage returns the main image URL of a product.
func (u URLs) ProductImage(sku int) string {
	return expandSKU(u.remote.ProductImageURL, sku)
}

// BrandImage returns the logo URL of a brand.
func (u URLs) BrandImage(id int) string {
	return strings.ReplaceAll(u.remote.BrandImageURL, "%id%", strconv.Itoa(id))
}

// SellerImage returns the logo URL of a seller.
func (u URLs) SellerImage(id int) string {
	return strings.ReplaceAll(u.remote.SellerImageURL, "%id%", strconv.Itoa(id))
}

// expandSKU fills the basket/vol/part/sku placeholders of per-SKU asset
// endpoints, which shard storage hosts by SKU range.
func expandSKU(template string, sku int) string {
	r := strings.NewReplacer(
		"%basket%", basketFromSKU(sku),
		"%vol%", strconv.Itoa(sku/100000),
		"%part%", strconv.Itoa(sku/1000),
		"%sku%", strconv.Itoa(sku),
	)
	return r.Replace(template)
}

// basketBounds maps SKU ranges to storage host numbers. SKUs beyond the last
// bound live on the next host up.
var basketBounds = []int{
	14400000, 28800000, 43200000, 72000000, 100800000,
	106200000, 111600000, 117000000, 131400000, 160200000,
}

func basketFromSKU(sku int) string {
	for i, bound := range basketBounds {
		if sku < bound {
			return fmt02(i + 1)
		}
	}
	return fmt02(len(basketBounds) + 1)
}

func fmt02(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
