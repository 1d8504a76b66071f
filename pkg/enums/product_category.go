package enums

import (
	"fmt"
	"strings"
)

// ProductCategory names a catalog listing endpoint.
type ProductCategory string

const (
	ProductCategoryGroceries ProductCategory = "groceries"
	ProductCategoryDrinks    ProductCategory = "drinks"
	ProductCategorySnacks    ProductCategory = "snacks"
)

var validProductCategories = []ProductCategory{
	ProductCategoryGroceries,
	ProductCategoryDrinks,
	ProductCategorySnacks,
}

// String implements fmt.Stringer.
func (c ProductCategory) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ProductCategory.
func (c ProductCategory) IsValid() bool {
	for _, candidate := range validProductCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseProductCategory converts raw input into a ProductCategory.
func ParseProductCategory(value string) (ProductCategory, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validProductCategories {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product category %q", value)
}
