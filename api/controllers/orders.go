package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/storefrontapi"
)

// OrdersService places the active user's cart and lists their orders.
type OrdersService interface {
	PlaceOrder(ctx context.Context) (*orders.Result, error)
	History(ctx context.Context) ([]storefrontapi.Order, error)
}

// OrdersPlace submits the active cart. The request carries no body; every
// input comes from the session.
func OrdersPlace(svc OrdersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.PlaceOrder(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessWithNotices(w, http.StatusCreated, result, cartNotices(result.Notices))
	}
}

func OrdersHistory(svc OrdersService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.History(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
