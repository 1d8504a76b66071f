// Package orders submits the active user's cart as an order and lists the
// user's past orders.
package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/geo"
	"github.com/angelmondragon/storefront/internal/identity"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/storefrontapi"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const outcomeCreated = "created"

// IdentitySource exposes the current identity and lets the service report a
// rejected credential.
type IdentitySource interface {
	Current() identity.Identity
	Reject(ctx context.Context, cause error)
}

// CartSource is the slice of the cart store the service reads and clears.
type CartSource interface {
	Snapshot(ctx context.Context, scope cart.Scope) cart.Outcome
	Clear(ctx context.Context, scope cart.Scope) cart.Outcome
}

// API is the slice of the remote API used for orders.
type API interface {
	PlaceOrder(ctx context.Context, idempotencyKey string, order storefrontapi.NewOrder) (*storefrontapi.PlacedOrder, error)
	ListUserOrders(ctx context.Context, userID string) ([]storefrontapi.Order, error)
}

// Deps wires the service.
type Deps struct {
	VendorID string
	Identity IdentitySource
	Carts    CartSource
	API      API
	Locator  geo.Locator
	Metrics  *metrics.OrderMetrics
	Logger   *logger.Logger
}

// Service places and lists orders.
type Service struct {
	vendorID string
	identity IdentitySource
	carts    CartSource
	api      API
	locator  geo.Locator
	metrics  *metrics.OrderMetrics
	logg     *logger.Logger
	validate *validator.Validate
	newKey   func() string
	now      func() time.Time
}

// Result describes a placed order.
type Result struct {
	OrderID        string                 `json:"orderId,omitempty"`
	Message        string                 `json:"message,omitempty"`
	IdempotencyKey string                 `json:"idempotencyKey"`
	Order          storefrontapi.NewOrder `json:"order"`
	Notices        []cart.Notice          `json:"-"`
}

// NewService validates deps and builds the service.
func NewService(deps Deps) (*Service, error) {
	switch {
	case strings.TrimSpace(deps.VendorID) == "":
		return nil, fmt.Errorf("vendor id required")
	case deps.Identity == nil:
		return nil, fmt.Errorf("identity source required")
	case deps.Carts == nil:
		return nil, fmt.Errorf("cart source required")
	case deps.API == nil:
		return nil, fmt.Errorf("order api required")
	case deps.Locator == nil:
		return nil, fmt.Errorf("locator required")
	}
	logg := deps.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		vendorID: strings.TrimSpace(deps.VendorID),
		identity: deps.Identity,
		carts:    deps.Carts,
		api:      deps.API,
		locator:  deps.Locator,
		metrics:  deps.Metrics,
		logg:     logg,
		validate: validator.New(),
		newKey:   func() string { return uuid.NewString() },
		now:      time.Now,
	}, nil
}

// PlaceOrder submits the signed-in user's cart. Preconditions are checked in
// order: authenticated, non-empty cart, phone and address on the profile,
// current position. The cart is snapshotted once at the empty-cart check and
// the order is built from that snapshot only; mutations made while the POST
// is in flight are not part of the order. After a 201 the user cart is
// cleared. On every failure the cart is left untouched.
func (s *Service) PlaceOrder(ctx context.Context) (*Result, error) {
	s.metrics.IncAttempt()

	result, err := s.placeOrder(ctx)
	if err != nil {
		s.metrics.IncOutcome(string(pkgerrors.CodeOf(err)))
		return nil, err
	}
	s.metrics.IncOutcome(outcomeCreated)
	return result, nil
}

func (s *Service) placeOrder(ctx context.Context) (*Result, error) {
	current := s.identity.Current()
	if !current.IsAuthenticated() || strings.TrimSpace(current.UserID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotAuthenticated, "sign in to place an order")
	}
	ctx = s.logg.WithUserID(ctx, current.UserID)

	scope := cart.UserScope(current.UserID)
	snapshot := s.carts.Snapshot(ctx, scope)
	if snapshot.Cart.Empty() {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}

	if missing := missingProfileFields(current.Profile); len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeIncompleteProfile, "profile is missing order details").
			WithDetails(map[string]any{"missing": missing})
	}

	position, err := s.locator.CurrentPosition(ctx)
	if err == nil {
		err = position.Check()
	}
	if err != nil {
		s.logg.WarnErr(ctx, "reading position for order failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeLocationUnavailable, err, "location unavailable").
			WithDetails(map[string]any{"reason": locationReason(err)})
	}

	order := s.buildOrder(current, snapshot.Cart, position)
	if err := s.validate.Struct(order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "order payload is invalid")
	}

	key := s.newKey()
	ctx = s.logg.WithFields(ctx, map[string]any{
		"idempotency_key": key,
		"lines":           len(order.CartItems),
		"grand_total":     order.GrandTotal.String(),
	})

	started := s.now()
	placed, err := s.api.PlaceOrder(ctx, key, order)
	s.metrics.ObserveSubmit(s.now().Sub(started))
	if err != nil {
		s.logg.Error(ctx, "order submission failed", err)
		return nil, err
	}

	cleared := s.carts.Clear(ctx, scope)
	s.logg.Info(ctx, "order placed")

	result := &Result{
		IdempotencyKey: key,
		Order:          order,
		Notices:        append(snapshot.Notices, cleared.Notices...),
	}
	if placed != nil {
		result.OrderID = placed.ID
		result.Message = placed.Message
	}
	return result, nil
}

func (s *Service) buildOrder(current identity.Identity, snapshot cart.Cart, position geo.Coordinates) storefrontapi.NewOrder {
	items := make([]storefrontapi.OrderItem, 0, len(snapshot.Lines))
	for _, line := range snapshot.Lines {
		items = append(items, storefrontapi.OrderItem{
			ID:       line.ProductID,
			Name:     line.Name,
			Price:    storefrontapi.NewAmount(line.UnitPrice),
			Quantity: line.Quantity,
			Image:    line.ImageRef,
		})
	}
	return storefrontapi.NewOrder{
		UserID:   current.UserID,
		UserName: current.Profile.Name,
		VendorID: s.vendorID,
		Name:     current.Profile.Name,
		Phone:    strings.TrimSpace(current.Profile.Phone),
		Address:  strings.TrimSpace(current.Profile.Address),
		UserLocation: storefrontapi.Location{
			Latitude:  position.Latitude,
			Longitude: position.Longitude,
		},
		CartItems:  items,
		GrandTotal: storefrontapi.NewAmount(snapshot.Total()),
		Status:     storefrontapi.OrderStatusPending,
	}
}

// History lists the signed-in user's orders, newest first.
func (s *Service) History(ctx context.Context) ([]storefrontapi.Order, error) {
	current := s.identity.Current()
	if !current.IsAuthenticated() || strings.TrimSpace(current.UserID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotAuthenticated, "sign in to view orders")
	}

	orders, err := s.api.ListUserOrders(ctx, current.UserID)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeAuthRejected) {
			s.identity.Reject(ctx, err)
		}
		return nil, err
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func missingProfileFields(profile storefrontapi.Profile) []string {
	var missing []string
	if strings.TrimSpace(profile.Phone) == "" {
		missing = append(missing, "phone")
	}
	if strings.TrimSpace(profile.Address) == "" {
		missing = append(missing, "address")
	}
	return missing
}

func locationReason(err error) string {
	switch {
	case errors.Is(err, geo.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, geo.ErrInvalidReading):
		return "invalid_reading"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unavailable"
	}
}
