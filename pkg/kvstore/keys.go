package kvstore

import "strings"

// Persisted keys. Carts and preferences are partitioned per identity so that
// switching users never overwrites another user's slot.
const (
	GuestCartKey  = "guest_cart"
	CredentialKey = "authToken"
	UserIDKey     = "userId"
	ProfileKey    = "userData"

	cartPrefix        = "cart_"
	preferencesPrefix = "preferences_"
	catalogPrefix     = "catalog_"
)

// CartKey returns the slot holding userID's cart.
func CartKey(userID string) string {
	return cartPrefix + strings.TrimSpace(userID)
}

// PreferencesKey returns the slot holding userID's preferences.
func PreferencesKey(userID string) string {
	return preferencesPrefix + strings.TrimSpace(userID)
}

// CatalogKey returns the slot caching the last product listing for category.
func CatalogKey(category string) string {
	return catalogPrefix + strings.ToLower(strings.TrimSpace(category))
}

// SensitiveKeys lists the slots sealed at rest when a seal key is configured.
func SensitiveKeys() []string {
	return []string{CredentialKey, ProfileKey}
}
