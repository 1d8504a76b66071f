// Package session assembles the storefront core for one device session. A
// Session is built once at startup and handed to whatever surface drives it.
package session

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/internal/geo"
	"github.com/angelmondragon/storefront/internal/identity"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/internal/preferences"
	"github.com/angelmondragon/storefront/internal/vendor"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/kvstore"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/storefrontapi"
	"github.com/prometheus/client_golang/prometheus"
)

// Deps wires a Session.
type Deps struct {
	Config   *config.Config
	Store    kvstore.Store
	API      *storefrontapi.Client
	Locator  geo.Locator
	Registry prometheus.Registerer
	Logger   *logger.Logger
}

// Session owns every component of the storefront core.
type Session struct {
	Identity    *identity.Resolver
	Cart        *cart.Store
	Preferences *preferences.Store
	Orders      *orders.Service
	Catalog     *catalog.Service
	Vendor      *vendor.Service
	Reporter    *vendor.LocationReporter

	logg *logger.Logger
}

// New builds a session. The identity stays unresolved until Start.
func New(deps Deps) (*Session, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("durable store required")
	}
	if deps.API == nil {
		return nil, fmt.Errorf("api client required")
	}
	logg := deps.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	locator := deps.Locator
	if locator == nil {
		locator = geo.StaticLocator{
			Position: geo.Coordinates{
				Latitude:  deps.Config.Location.Latitude,
				Longitude: deps.Config.Location.Longitude,
			},
			Denied: deps.Config.Location.Denied,
		}
	}
	locator = geo.WithTimeout(locator, deps.Config.Location.Timeout)

	storageMetrics := metrics.NewStorageMetrics(deps.Registry)

	carts, err := cart.NewStore(deps.Store, logg, storageMetrics)
	if err != nil {
		return nil, fmt.Errorf("cart store: %w", err)
	}
	prefs, err := preferences.NewStore(deps.Store, logg, storageMetrics, preferences.Defaults())
	if err != nil {
		return nil, fmt.Errorf("preferences store: %w", err)
	}

	s := &Session{Cart: carts, Preferences: prefs, logg: logg}

	s.Identity, err = identity.NewResolver(deps.Store, deps.API, logg, identity.ListenerFunc(s.identityChanged))
	if err != nil {
		return nil, fmt.Errorf("identity resolver: %w", err)
	}
	s.Orders, err = orders.NewService(orders.Deps{
		VendorID: deps.Config.API.VendorID,
		Identity: s.Identity,
		Carts:    carts,
		API:      deps.API,
		Locator:  locator,
		Metrics:  metrics.NewOrderMetrics(deps.Registry),
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("order service: %w", err)
	}
	s.Catalog, err = catalog.NewService(deps.API, deps.Store, logg)
	if err != nil {
		return nil, fmt.Errorf("catalog service: %w", err)
	}
	s.Vendor, err = vendor.NewService(deps.Config.API.VendorID, deps.API, logg)
	if err != nil {
		return nil, fmt.Errorf("vendor service: %w", err)
	}
	s.Reporter, err = vendor.NewLocationReporter(vendor.ReporterParams{
		Logger:   logg,
		VendorID: deps.Config.API.VendorID,
		Locator:  locator,
		Sink:     deps.API,
		Metrics:  metrics.NewJobMetrics(deps.Registry),
		Interval: deps.Config.Vendor.ReportInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("location reporter: %w", err)
	}
	return s, nil
}

// Start runs the offline phase of identity resolution. Refresh should
// follow once the network is worth trying.
func (s *Session) Start(ctx context.Context) (identity.Identity, error) {
	return s.Identity.Bootstrap(ctx)
}

// Refresh runs the online phase of identity resolution. A failure other than
// a rejected credential is logged and the cached identity is kept.
func (s *Session) Refresh(ctx context.Context) identity.Identity {
	current, err := s.Identity.Refresh(ctx)
	if err != nil {
		s.logg.WarnErr(ctx, "identity refresh did not complete", err)
	}
	return current
}

// identityChanged moves the cart and preferences to the scope of the new
// identity. It runs under the resolver's transition lock, so scope switches
// are applied in the order the transitions happened.
func (s *Session) identityChanged(ctx context.Context, t identity.Transition) {
	switch t.State {
	case enums.IdentityStateAuthenticated:
		if _, err := s.Cart.UseUser(ctx, t.UserID, t.Merge); err != nil {
			s.logg.WarnErr(s.logg.WithUserID(ctx, t.UserID), "switching cart to user failed", err)
		}
		s.Preferences.UseUser(ctx, t.UserID)
	default:
		s.Cart.UseGuest(ctx)
		s.Preferences.UseGuest(ctx)
	}
}
