package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/pkg/logger"
)

type CatalogService interface {
	List(ctx context.Context, category string) (catalog.Listing, error)
}

// CatalogList serves one category, filtered by the optional q name query.
func CatalogList(svc CatalogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listing, err := svc.List(r.Context(), chi.URLParam(r, "category"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listing.Products = catalog.Search(listing.Products, validators.SanitizeString(r.URL.Query().Get("q"), 100))
		responses.WriteSuccess(w, listing)
	}
}
