package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront/api/controllers"
	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/internal/session"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/logger"
)

// NewRouter exposes a session to the local UI shell. store may be nil when
// the durable store has no backend to ping. gatherer may be nil to skip /metrics.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	sess *session.Session,
	store controllers.Pinger,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, store))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Get("/", controllers.SessionGet(sess.Identity))
			r.Post("/login", controllers.SessionLogin(sess.Identity, logg))
			r.Post("/logout", controllers.SessionLogout(sess.Identity, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartGet(sess.Cart))
			r.Post("/lines", controllers.CartAddLine(sess.Cart, logg))
			r.Put("/lines/{productID}", controllers.CartSetQuantity(sess.Cart, logg))
			r.Delete("/lines/{productID}", controllers.CartRemoveLine(sess.Cart))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.OrdersPlace(sess.Orders, logg))
			r.Get("/", controllers.OrdersHistory(sess.Orders, logg))
		})

		r.Route("/preferences", func(r chi.Router) {
			r.Get("/", controllers.PreferencesGet(sess.Preferences))
			r.Patch("/", controllers.PreferencesUpdate(sess.Preferences, logg))
		})

		r.Get("/catalog/{category}", controllers.CatalogList(sess.Catalog, logg))

		r.Route("/vendor", func(r chi.Router) {
			r.Get("/orders", controllers.VendorOrders(sess.Vendor, logg))
			r.Post("/orders/{orderID}/complete", controllers.VendorCompleteOrder(sess.Vendor, logg))
		})
	})

	return r
}
