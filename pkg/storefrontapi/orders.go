package storefrontapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/sony/gobreaker/v2"
)

// OrderStatusPending is the status every new order is submitted with.
const OrderStatusPending = "Pending"

// PlaceOrder posts order. Only a 201 answer counts as success. Any other
// answer yields ORDER_REJECTED carrying the server's reason; a request that
// got no answer (transport failure, timeout, open breaker) yields NETWORK_ERROR.
// The order is never retried here.
func (c *Client) PlaceOrder(ctx context.Context, idempotencyKey string, order NewOrder) (*PlacedOrder, error) {
	raw, err := c.do(ctx, request{
		method:         http.MethodPost,
		path:           "orders/add-order",
		body:           order,
		idempotencyKey: idempotencyKey,
	})
	if err != nil {
		message := "order request failed"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			message = "order service unavailable"
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeNetwork, err, message)
	}

	if raw.status != http.StatusCreated {
		reason := serverReason(raw.body)
		if reason == "" {
			reason = http.StatusText(raw.status)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeOrderRejected, fmt.Errorf("status %d: %s", raw.status, reason), "order was rejected").
			WithDetails(map[string]any{"status": raw.status, "reason": reason})
	}

	placed := &PlacedOrder{}
	if len(raw.body) > 0 {
		// The acknowledgment body is informational; a 201 is authoritative.
		_ = json.Unmarshal(raw.body, placed)
	}
	return placed, nil
}

// ListUserOrders returns every order placed by userID.
func (c *Client) ListUserOrders(ctx context.Context, userID string) ([]Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	var orders []Order
	if err := c.getJSON(ctx, fmt.Sprintf("orders/user/%s", url.PathEscape(userID)), "user orders", &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ListVendorOrders returns every order addressed to vendorID.
func (c *Client) ListVendorOrders(ctx context.Context, vendorID string) ([]Order, error) {
	vendorID = strings.TrimSpace(vendorID)
	if vendorID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	var orders []Order
	if err := c.getJSON(ctx, fmt.Sprintf("orders/vendor/%s", url.PathEscape(vendorID)), "vendor orders", &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// CompleteOrder marks orderID as completed.
func (c *Client) CompleteOrder(ctx context.Context, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	raw, err := c.do(ctx, request{
		method: http.MethodPut,
		path:   fmt.Sprintf("orders/complete-order/%s", url.PathEscape(orderID)),
	})
	if err != nil {
		return transportError(err, "complete order")
	}
	if raw.status < 200 || raw.status > 299 {
		return statusError(raw, "complete order")
	}
	return nil
}
