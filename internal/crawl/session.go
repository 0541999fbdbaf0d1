package crawl

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/merchflow/harvester/internal/config"
	"github.com/merchflow/harvester/internal/fetch"
)

// Session turns scheduled fetches into typed entities for one harvest run.
// It also tracks, per catalog, the first page observed empty this run:
// later pages of that catalog are answered empty without touching the
// remote, since listings never resume after an empty page.
type Session struct {
	fetcher        *fetch.Scheduler
	urls           URLs
	harvest        config.Harvest
	warehousesFile string

	// emptyPages maps CatalogKey to the lowest empty page seen. A missing
	// key means no empty page is known yet.
	emptyPages sync.Map
}

// NewSession creates a session over the given scheduler and endpoints.
func NewSession(fetcher *fetch.Scheduler, remote config.Remote, harvest config.Harvest, warehousesFile string) *Session {
	return &Session{
		fetcher:        fetcher,
		urls:           NewURLs(remote),
		harvest:        harvest,
		warehousesFile: warehousesFile,
	}
}

func (s *Session) get(ctx context.Context, url string, codes ...int) (fetch.Response, error) {
	future := s.fetcher.Submit(fetch.DefaultPriority, fetch.Request{URL: url, AllowedCodes: codes})
	return future.Wait(ctx)
}

// Categories fetches the category tree and flattens it into sources.
func (s *Session) Categories(ctx context.Context) ([]Source, error) {
	resp, err := s.get(ctx, s.urls.Categories())
	if err != nil {
		return nil, err
	}
	return parseCategories(resp.Body)
}

// CatalogIdentity resolves the catalog a source text maps to.
func (s *Session) CatalogIdentity(ctx context.Context, text string) (CatalogKey, error) {
	url := s.urls.Catalog(text)
	resp, err := s.get(ctx, url)
	if err != nil {
		return CatalogKey{}, err
	}
	key, err := parseCatalogIdentity(resp.Body)
	if err != nil {
		return CatalogKey{}, fmt.Errorf("%w (url: %s)", err, url)
	}
	return key, nil
}

// Queries fetches the related queries of a source.
func (s *Session) Queries(ctx context.Context, src Source) ([]Source, error) {
	url := s.urls.Queries(src)
	resp, err := s.get(ctx, url)
	if err != nil {
		return nil, err
	}
	texts, err := parseQueries(resp.Body, src.Category)
	if err != nil {
		return nil, fmt.Errorf("%w (url: %s)", err, url)
	}
	queries := make([]Source, 0, len(texts))
	for _, text := range texts {
		queries = append(queries, Source{Text: text})
	}
	return queries, nil
}

// CatalogPage fetches one listing page of a catalog. Pages beyond a known
// empty page return empty data without a remote call. The endpoint answers
// out-of-range pages with 400 or 404; both count as an empty page.
func (s *Session) CatalogPage(ctx context.Context, key CatalogKey, page int) (PageData, error) {
	if s.beyondEmptyPage(key, page) {
		return PageData{}, nil
	}

	url := s.urls.CatalogPage(key, page)
	resp, err := s.get(ctx, url, http.StatusOK, http.StatusBadRequest, http.StatusNotFound)
	if err != nil {
		return PageData{}, err
	}

	var data PageData
	if resp.Code == http.StatusOK && len(resp.Body) > 0 {
		data, err = parseCatalogPage(resp.Body, key, page, s.harvest.ProductsPerPage, s.harvest.PositionPlaceCap, s.urls)
		if err != nil {
			return PageData{}, fmt.Errorf("%w (url: %s)", err, url)
		}
	}
	if data.Empty() {
		s.markEmptyPage(key, page)
	}
	return data, nil
}

// Seller fetches the seller of a product. Products without seller info
// answer 404; that and responses without a usable name yield nil.
func (s *Session) Seller(ctx context.Context, sku int) (*Seller, error) {
	url := s.urls.Seller(sku)
	resp, err := s.get(ctx, url, http.StatusOK, http.StatusNotFound)
	if err != nil {
		return nil, err
	}
	if resp.Code != http.StatusOK {
		return nil, nil
	}
	seller, err := parseSeller(resp.Body, s.urls)
	if err != nil {
		return nil, fmt.Errorf("%w (url: %s)", err, url)
	}
	return seller, nil
}

// StocksBySKU fetches stock snapshots for a batch of SKUs.
func (s *Session) StocksBySKU(ctx context.Context, skus []int) (StockData, error) {
	url := s.urls.Stocks(skus)
	resp, err := s.get(ctx, url)
	if err != nil {
		return StockData{}, err
	}
	data, err := parseStocks(resp.Body)
	if err != nil {
		return StockData{}, fmt.Errorf("%w (url: %s)", err, url)
	}
	return data, nil
}

// Warehouses reads the local warehouse reference dataset.
func (s *Session) Warehouses() ([]Warehouse, error) {
	body, err := os.ReadFile(s.warehousesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read warehouses file: %w", err)
	}
	return parseWarehouses(body)
}

// markEmptyPage records page as empty for the catalog, keeping the minimum
// across concurrent observers.
func (s *Session) markEmptyPage(key CatalogKey, page int) {
	for {
		current, loaded := s.emptyPages.LoadOrStore(key, page)
		if !loaded || page >= current.(int) {
			return
		}
		if s.emptyPages.CompareAndSwap(key, current, page) {
			return
		}
	}
}

// beyondEmptyPage reports whether page lies past a known empty page.
func (s *Session) beyondEmptyPage(key CatalogKey, page int) bool {
	current, ok := s.emptyPages.Load(key)
	return ok && page > current.(int)
}
