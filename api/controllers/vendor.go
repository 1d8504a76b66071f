package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/storefrontapi"
)

type VendorService interface {
	List(ctx context.Context, status string) ([]storefrontapi.Order, error)
	Complete(ctx context.Context, orderID string) error
}

// VendorOrders lists the vendor's orders in ?status, pending by default.
func VendorOrders(svc VendorService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")
		if status == "" {
			status = enums.OrderStatusPending.String()
		}
		list, err := svc.List(r.Context(), status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func VendorCompleteOrder(svc VendorService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := chi.URLParam(r, "orderID")
		if err := svc.Complete(r.Context(), orderID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"orderId": orderID, "status": enums.OrderStatusCompleted.String()})
	}
}
