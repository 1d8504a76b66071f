package storefrontapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

// UpdateVendorLocation reports the vendor's current position.
func (c *Client) UpdateVendorLocation(ctx context.Context, vendorID string, loc Location) error {
	vendorID = strings.TrimSpace(vendorID)
	if vendorID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	raw, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "vendors/update-location",
		body: map[string]any{
			"vendorId":  vendorID,
			"latitude":  loc.Latitude,
			"longitude": loc.Longitude,
		},
	})
	if err != nil {
		return transportError(err, "vendor location update")
	}
	if raw.status < 200 || raw.status > 299 {
		return statusError(raw, "vendor location update")
	}
	return nil
}

// GetVendorLocation returns the last reported position of vendorID.
func (c *Client) GetVendorLocation(ctx context.Context, vendorID string) (*Location, error) {
	vendorID = strings.TrimSpace(vendorID)
	if vendorID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	var loc Location
	if err := c.getJSON(ctx, fmt.Sprintf("vendors/vendor-location/%s", url.PathEscape(vendorID)), "vendor location", &loc); err != nil {
		return nil, err
	}
	if loc.Latitude == 0 && loc.Longitude == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor location not reported yet")
	}
	return &loc, nil
}
