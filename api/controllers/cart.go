package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/api/responses"
	"github.com/angelmondragon/storefront/api/validators"
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/storefrontapi"
	"github.com/angelmondragon/storefront/pkg/types"
)

// CartService is the active-cart surface.
type CartService interface {
	ActiveCart(ctx context.Context) cart.Outcome
	AddLine(ctx context.Context, in cart.LineInput) (cart.Outcome, error)
	SetQuantity(ctx context.Context, productID string, quantity int) cart.Outcome
	RemoveLine(ctx context.Context, productID string) cart.Outcome
}

type addLineRequest struct {
	ProductID string          `json:"productId" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	ImageRef  string          `json:"imageRef"`
	Quantity  int             `json:"quantity" validate:"gte=1"`
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type cartLineResponse struct {
	ProductID string               `json:"productId"`
	Name      string               `json:"name"`
	UnitPrice storefrontapi.Amount `json:"unitPrice"`
	Quantity  int                  `json:"quantity"`
	Subtotal  storefrontapi.Amount `json:"subtotal"`
	ImageRef  string               `json:"imageRef,omitempty"`
}

type addedResponse struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type cartResponse struct {
	Scope     string               `json:"scope"`
	Lines     []cartLineResponse   `json:"lines"`
	ItemCount int                  `json:"itemCount"`
	Total     storefrontapi.Amount `json:"total"`
	Added     *addedResponse       `json:"added,omitempty"`
}

func newCartResponse(out cart.Outcome) cartResponse {
	resp := cartResponse{
		Scope:     out.Cart.Scope.String(),
		Lines:     make([]cartLineResponse, 0, len(out.Cart.Lines)),
		ItemCount: out.Cart.ItemCount(),
		Total:     storefrontapi.NewAmount(out.Cart.Total()),
	}
	for _, line := range out.Cart.Lines {
		resp.Lines = append(resp.Lines, cartLineResponse{
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: storefrontapi.NewAmount(line.UnitPrice),
			Quantity:  line.Quantity,
			Subtotal:  storefrontapi.NewAmount(line.Subtotal()),
			ImageRef:  line.ImageRef,
		})
	}
	if out.Added != nil {
		resp.Added = &addedResponse{Name: out.Added.Name, Quantity: out.Added.Quantity}
	}
	return resp
}

func cartNotices(notices []cart.Notice) []types.Notice {
	if len(notices) == 0 {
		return nil
	}
	out := make([]types.Notice, 0, len(notices))
	for _, n := range notices {
		out = append(out, types.Notice(n))
	}
	return out
}

func writeCart(w http.ResponseWriter, status int, out cart.Outcome) {
	responses.WriteSuccessWithNotices(w, status, newCartResponse(out), cartNotices(out.Notices))
}

func CartGet(svc CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeCart(w, http.StatusOK, svc.ActiveCart(r.Context()))
	}
}

func CartAddLine(svc CartService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload addLineRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := svc.AddLine(r.Context(), cart.LineInput{
			ProductID: payload.ProductID,
			Name:      validators.SanitizeString(payload.Name, 200),
			UnitPrice: payload.UnitPrice,
			ImageRef:  validators.SanitizeString(payload.ImageRef, 2048),
			Quantity:  payload.Quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, http.StatusCreated, out)
	}
}

// CartSetQuantity overwrites a line quantity; zero or less removes the line.
func CartSetQuantity(svc CartService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload setQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCart(w, http.StatusOK, svc.SetQuantity(r.Context(), chi.URLParam(r, "productID"), payload.Quantity))
	}
}

func CartRemoveLine(svc CartService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeCart(w, http.StatusOK, svc.RemoveLine(r.Context(), chi.URLParam(r, "productID")))
	}
}
