package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/storefrontapi"
)

type stubCatalog struct {
	listing  catalog.Listing
	err      error
	category string
}

func (s *stubCatalog) List(ctx context.Context, category string) (catalog.Listing, error) {
	s.category = category
	return s.listing, s.err
}

func newCatalogRouter(svc CatalogService) http.Handler {
	r := chi.NewRouter()
	r.Get("/catalog/{category}", CatalogList(svc, nil))
	return r
}

func TestCatalogListFiltersByQuery(t *testing.T) {
	svc := &stubCatalog{listing: catalog.Listing{
		Category: enums.ProductCategoryDrinks,
		Products: []storefrontapi.Product{{ID: "p1", Name: "Orange Juice"}, {ID: "p2", Name: "Cola"}},
		Stale:    true,
	}}
	resp := serve(t, newCatalogRouter(svc), http.MethodGet, "/catalog/drinks?q=juice", "")
	if svc.category != "drinks" {
		t.Fatalf("expected category from path, got %q", svc.category)
	}

	var got catalog.Listing
	decodeData(t, decodeEnvelope(t, resp), &got)
	if len(got.Products) != 1 || got.Products[0].ID != "p1" {
		t.Fatalf("unexpected products %+v", got.Products)
	}
	if !got.Stale {
		t.Fatalf("expected stale flag to be carried")
	}
}

func TestCatalogListErrors(t *testing.T) {
	svc := &stubCatalog{err: pkgerrors.New(pkgerrors.CodeValidation, "unknown category")}
	if resp := serve(t, newCatalogRouter(svc), http.MethodGet, "/catalog/toys", ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	svc.err = pkgerrors.New(pkgerrors.CodeDependency, "offline")
	if resp := serve(t, newCatalogRouter(svc), http.MethodGet, "/catalog/snacks", ""); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}
