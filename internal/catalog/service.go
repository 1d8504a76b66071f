// Package catalog lists products by category and keeps the last listing of
// each category in the durable store for offline browsing.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/kvstore"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/storefrontapi"
)

// Source is the slice of the remote API the catalog reads.
type Source interface {
	ListProducts(ctx context.Context, category string) ([]storefrontapi.Product, error)
}

// Listing is one category's products. Stale is set when the remote API was
// unreachable and the cached copy from FetchedAt was served instead.
type Listing struct {
	Category  enums.ProductCategory   `json:"category"`
	Products  []storefrontapi.Product `json:"products"`
	Stale     bool                    `json:"stale"`
	FetchedAt time.Time               `json:"fetchedAt"`
}

type cachedListing struct {
	FetchedAt time.Time               `json:"fetchedAt"`
	Products  []storefrontapi.Product `json:"products"`
}

// Service serves catalog listings.
type Service struct {
	api  Source
	kv   kvstore.Store
	logg *logger.Logger
	now  func() time.Time
}

// NewService builds the catalog service.
func NewService(api Source, kv kvstore.Store, logg *logger.Logger) (*Service, error) {
	if api == nil {
		return nil, fmt.Errorf("catalog source required")
	}
	if kv == nil {
		return nil, fmt.Errorf("durable store required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{api: api, kv: kv, logg: logg, now: time.Now}, nil
}

// List fetches category from the remote API and refreshes the cached copy.
// When the fetch fails the cached copy is returned marked stale; without one
// the fetch error is returned as DEPENDENCY_ERROR.
func (s *Service) List(ctx context.Context, category string) (Listing, error) {
	parsed, err := enums.ParseProductCategory(category)
	if err != nil {
		return Listing{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown category").
			WithDetails(map[string]any{"category": category})
	}
	ctx = s.logg.WithField(ctx, "category", parsed.String())
	key := kvstore.CatalogKey(parsed.String())

	products, fetchErr := s.api.ListProducts(ctx, parsed.String())
	if fetchErr == nil {
		if products == nil {
			products = []storefrontapi.Product{}
		}
		listing := Listing{Category: parsed, Products: products, FetchedAt: s.now().UTC()}
		s.store(ctx, key, listing)
		return listing, nil
	}

	cached, ok := s.cached(ctx, key)
	if !ok {
		if pkgerrors.HasCode(fetchErr, pkgerrors.CodeDependency) {
			return Listing{}, fetchErr
		}
		return Listing{}, pkgerrors.Wrap(pkgerrors.CodeDependency, fetchErr, "catalog unavailable")
	}
	s.logg.WarnErr(ctx, "catalog fetch failed, serving cached listing", fetchErr)
	return Listing{Category: parsed, Products: cached.Products, Stale: true, FetchedAt: cached.FetchedAt}, nil
}

func (s *Service) store(ctx context.Context, key string, listing Listing) {
	encoded, err := json.Marshal(cachedListing{FetchedAt: listing.FetchedAt, Products: listing.Products})
	if err == nil {
		err = s.kv.Set(ctx, key, string(encoded))
	}
	if err != nil {
		s.logg.WarnErr(ctx, "caching catalog listing failed", err)
	}
}

func (s *Service) cached(ctx context.Context, key string) (cachedListing, bool) {
	var listing cachedListing
	raw, found, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logg.WarnErr(ctx, "reading cached catalog failed", err)
		return listing, false
	}
	if !found {
		return listing, false
	}
	if err := json.Unmarshal([]byte(raw), &listing); err != nil {
		s.logg.WarnErr(ctx, "cached catalog is unreadable", err)
		return listing, false
	}
	return listing, true
}

// Search filters products whose name contains query, ignoring case. An empty
// query returns every product.
func Search(products []storefrontapi.Product, query string) []storefrontapi.Product {
	query = strings.ToLower(strings.TrimSpace(query))
	matches := make([]storefrontapi.Product, 0, len(products))
	for _, product := range products {
		if query == "" || strings.Contains(strings.ToLower(product.Name), query) {
			matches = append(matches, product)
		}
	}
	return matches
}
