package storefrontapi

import (
	"context"
	"net/url"
	"strings"

	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

// ListProducts returns the catalog of category (groceries, drinks or snacks).
// Relative image paths are resolved against the API origin.
func (c *Client) ListProducts(ctx context.Context, category string) ([]Product, error) {
	parsed, err := enums.ParseProductCategory(category)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown category")
	}

	var products []Product
	if err := c.getJSON(ctx, parsed.String(), "catalog", &products); err != nil {
		return nil, err
	}
	for i := range products {
		products[i].Image = c.ResolveImage(products[i].Image)
	}
	return products, nil
}

// ResolveImage turns a server-relative image path into an absolute URL.
func (c *Client) ResolveImage(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	origin := c.baseURL
	if parsed, err := url.Parse(c.baseURL); err == nil && parsed.Host != "" {
		origin = parsed.Scheme + "://" + parsed.Host
	}
	return origin + "/" + strings.TrimLeft(ref, "/")
}
