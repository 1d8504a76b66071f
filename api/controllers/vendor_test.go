package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/storefrontapi"
)

type stubVendor struct {
	status    string
	completed string
	err       error
}

func (s *stubVendor) List(ctx context.Context, status string) ([]storefrontapi.Order, error) {
	s.status = status
	if s.err != nil {
		return nil, s.err
	}
	return []storefrontapi.Order{{ID: "o1", Status: status}}, nil
}

func (s *stubVendor) Complete(ctx context.Context, orderID string) error {
	s.completed = orderID
	return s.err
}

func newVendorRouter(svc VendorService) http.Handler {
	r := chi.NewRouter()
	r.Get("/vendor/orders", VendorOrders(svc, nil))
	r.Post("/vendor/orders/{orderID}/complete", VendorCompleteOrder(svc, nil))
	return r
}

func TestVendorOrdersDefaultsToPending(t *testing.T) {
	svc := &stubVendor{}
	resp := serve(t, newVendorRouter(svc), http.MethodGet, "/vendor/orders", "")
	if resp.Code != http.StatusOK || svc.status != "Pending" {
		t.Fatalf("expected pending listing, got %d %q", resp.Code, svc.status)
	}

	serve(t, newVendorRouter(svc), http.MethodGet, "/vendor/orders?status=completed", "")
	if svc.status != "completed" {
		t.Fatalf("expected query status to be passed, got %q", svc.status)
	}
}

func TestVendorCompleteOrder(t *testing.T) {
	svc := &stubVendor{}
	resp := serve(t, newVendorRouter(svc), http.MethodPost, "/vendor/orders/o9/complete", "")
	if resp.Code != http.StatusOK || svc.completed != "o9" {
		t.Fatalf("expected o9 completed, got %d %q", resp.Code, svc.completed)
	}

	svc.err = pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	if resp := serve(t, newVendorRouter(svc), http.MethodPost, "/vendor/orders/o10/complete", ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}
