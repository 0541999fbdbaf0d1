package crawl

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type categoryNode struct {
	Name    string         `json:"name"`
	Childs  []categoryNode `json:"childs"`
	URL     string         `json:"url"`
	Shard   string         `json:"shard"`
	Query   string         `json:"query"`
	Landing *bool          `json:"landing"`
}

// parseCategories flattens the category tree into sources. Only leaf-like
// nodes that point at a real catalog path, carry a shard and are not landing
// pages become sources; nested names are joined into one path-like text.
func parseCategories(body []byte) ([]Source, error) {
	var nodes []categoryNode
	if err := json.Unmarshal(body, &nodes); err != nil {
		return nil, fmt.Errorf("unable to parse category tree: %w", err)
	}
	return traverseCategoryTree(nodes, ""), nil
}

func traverseCategoryTree(nodes []categoryNode, prefix string) []Source {
	var sources []Source
	for _, node := range nodes {
		if len(node.Childs) > 0 {
			sources = append(sources, traverseCategoryTree(node.Childs, prefix+node.Name+categorySeparator)...)
		}
		if strings.HasPrefix(node.URL, categoryURLPrefix) && node.Shard != "" && node.Landing == nil {
			sources = append(sources, Source{
				Text:     prefix + node.Name,
				URL:      node.URL,
				Category: true,
			})
		}
	}
	return sources
}

// parseCatalogIdentity extracts the catalog key a source resolves to.
func parseCatalogIdentity(body []byte) (CatalogKey, error) {
	var payload struct {
		Query    string `json:"query"`
		ShardKey string `json:"shardKey"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return CatalogKey{}, fmt.Errorf("unable to parse catalog identity: %w", err)
	}
	return CatalogKey{Shard: payload.ShardKey, Query: payload.Query}, nil
}

// parseQueries extracts related query texts. Category sources get a bare
// array, query sources an object wrapping it. Empty and purely numeric
// texts are noise and dropped.
func parseQueries(body []byte, category bool) ([]string, error) {
	var texts []string
	if category {
		if err := json.Unmarshal(body, &texts); err != nil {
			return nil, fmt.Errorf("unable to parse related queries: %w", err)
		}
	} else {
		var payload struct {
			Query []string `json:"query"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("unable to parse related queries: %w", err)
		}
		texts = payload.Query
	}

	queries := texts[:0]
	for _, text := range texts {
		if text == "" {
			continue
		}
		if _, err := strconv.Atoi(text); err == nil {
			continue
		}
		queries = append(queries, text)
	}
	return queries, nil
}

type listedProduct struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Brand     string `json:"brand"`
	BrandID   int    `json:"brandId"`
	Price     int    `json:"priceU"`
	SalePrice int    `json:"salePriceU"`
	Rating    int    `json:"rating"`
	Feedbacks int    `json:"feedbacks"`
}

// parseCatalogPage turns one listing page into brands, products, details
// and positions. Places are absolute across pages and capped: products
// ranked beyond placeCap are skipped entirely.
func parseCatalogPage(body []byte, catalog CatalogKey, page, productsPerPage, placeCap int, urls URLs) (PageData, error) {
	var payload struct {
		Data struct {
			Products []listedProduct `json:"products"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return PageData{}, fmt.Errorf("unable to parse catalog page: %w", err)
	}

	var data PageData
	for i, p := range payload.Data.Products {
		place := (page-1)*productsPerPage + i + 1
		if place > placeCap {
			continue
		}
		data.Brands = append(data.Brands, Brand{
			ExtID:    p.BrandID,
			Name:     p.Brand,
			ImageURL: urls.BrandImage(p.BrandID),
		})
		data.Products = append(data.Products, Product{
			SKU:        p.ID,
			Name:       p.Name,
			ImageURL:   urls.ProductImage(p.ID),
			BrandExtID: p.BrandID,
		})
		data.Details = append(data.Details, ProductDetail{
			SKU:       p.ID,
			Price:     p.Price / 100,
			SalePrice: p.SalePrice / 100,
			Feedbacks: p.Feedbacks,
			Rating:    p.Rating,
		})
		data.Positions = append(data.Positions, Position{
			SKU:     p.ID,
			Catalog: catalog,
			Place:   place,
		})
	}
	return data, nil
}

// parseSeller extracts a seller from a seller info response. The trademark
// is preferred over the legal supplier name. A response without a usable
// name yields nil.
func parseSeller(body []byte, urls URLs) (*Seller, error) {
	var payload struct {
		SupplierID   int    `json:"supplierId"`
		SupplierName string `json:"supplierName"`
		Trademark    string `json:"trademark"`
		TaxNumber    string `json:"taxNumber"`
		RegNumber    string `json:"regNumber"`
		RegNumberAlt string `json:"regNumberAlt"`
		LegalAddress string `json:"legalAddress"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("unable to parse seller: %w", err)
	}
	name := payload.Trademark
	if name == "" {
		name = payload.SupplierName
	}
	if name == "" {
		return nil, nil
	}
	return &Seller{
		ExtID:        payload.SupplierID,
		Name:         name,
		ImageURL:     urls.SellerImage(payload.SupplierID),
		TaxNumber:    payload.TaxNumber,
		RegNumber:    payload.RegNumber,
		RegNumberAlt: payload.RegNumberAlt,
		Address:      payload.LegalAddress,
	}, nil
}

// parseStocks turns a stock lookup response into sizes, the warehouses they
// were seen in and the quantity snapshots. Warehouses are deduplicated;
// their names are unknown on this endpoint.
func parseStocks(body []byte) (StockData, error) {
	var payload struct {
		Data struct {
			Products []struct {
				ID    int `json:"id"`
				Sizes []struct {
					Name     string `json:"name"`
					OrigName string `json:"origName"`
					Stocks   []struct {
						Warehouse int `json:"wh"`
						Quantity  int `json:"qty"`
					} `json:"stocks"`
				} `json:"sizes"`
			} `json:"products"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return StockData{}, fmt.Errorf("unable to parse stocks: %w", err)
	}

	var data StockData
	seenWarehouses := make(map[int]struct{})
	for _, p := range payload.Data.Products {
		for _, size := range p.Sizes {
			data.Sizes = append(data.Sizes, Size{
				SKU:     p.ID,
				Name:    size.OrigName,
				AltName: size.Name,
			})
			for _, stock := range size.Stocks {
				if _, ok := seenWarehouses[stock.Warehouse]; !ok {
					seenWarehouses[stock.Warehouse] = struct{}{}
					data.Warehouses = append(data.Warehouses, Warehouse{ExtID: stock.Warehouse})
				}
				data.Stocks = append(data.Stocks, Stock{
					SKU:            p.ID,
					SizeName:       size.OrigName,
					WarehouseExtID: stock.Warehouse,
					Quantity:       stock.Quantity,
				})
			}
		}
	}
	return data, nil
}

// parseWarehouses reads the local warehouse reference dataset.
func parseWarehouses(body []byte) ([]Warehouse, error) {
	var payload struct {
		Result struct {
			Resp struct {
				Data []struct {
					OrigID    int    `json:"origid"`
					Warehouse string `json:"warehouse"`
				} `json:"data"`
			} `json:"resp"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("unable to parse warehouses: %w", err)
	}

	warehouses := make([]Warehouse, 0, len(payload.Result.Resp.Data))
	for _, entry := range payload.Result.Resp.Data {
		name := entry.Warehouse
		if strings.Contains(name, "Ð") {
			name = repairWarehouseName(name)
		}
		warehouses = append(warehouses, Warehouse{ExtID: entry.OrigID, Name: name})
	}
	return warehouses, nil
}

// repairWarehouseName fixes names whose UTF-8 bytes were decoded as
// Latin-1 upstream: each rune is narrowed back to its original byte and
// the byte string reinterpreted as UTF-8.
func repairWarehouseName(s string) string {
	raw := make([]byte, 0, len(s))
	for _, r := range s {
		raw = append(raw, byte(r))
	}
	return string(raw)
}
