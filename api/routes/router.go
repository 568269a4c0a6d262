package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/codfulfillment-backend/api/controllers"
	directorycontrollers "github.com/angelmondragon/codfulfillment-backend/api/controllers/directory"
	financecontrollers "github.com/angelmondragon/codfulfillment-backend/api/controllers/finance"
	inventorycontrollers "github.com/angelmondragon/codfulfillment-backend/api/controllers/inventory"
	ordercontrollers "github.com/angelmondragon/codfulfillment-backend/api/controllers/orders"
	"github.com/angelmondragon/codfulfillment-backend/api/middleware"
	"github.com/angelmondragon/codfulfillment-backend/internal/engine"
	"github.com/angelmondragon/codfulfillment-backend/pkg/config"
	"github.com/angelmondragon/codfulfillment-backend/pkg/enums"
	"github.com/angelmondragon/codfulfillment-backend/pkg/logger"
)

// Deps carries what the router needs beyond the engine. Redis and Gatherer
// are optional.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Engine   *engine.Engine
	DB       controllers.Pinger
	Redis    controllers.Pinger
	Gatherer prometheus.Gatherer
}

func NewRouter(d Deps) http.Handler {
	cfg, logg, eng := d.Config, d.Logger, d.Engine

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	pingers := map[string]controllers.Pinger{"db": d.DB}
	if d.Redis != nil {
		pingers["redis"] = d.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, pingers))
	})

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	managers := middleware.RequireRole(logg, enums.UserRoleAdmin, enums.UserRoleManager)
	admins := middleware.RequireRole(logg, enums.UserRoleAdmin)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Actor(eng.Access, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(eng.Orders, logg))
			r.Get("/", ordercontrollers.List(eng.Orders, logg))
			r.With(managers).Post("/import", ordercontrollers.Import(eng.Importer, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(eng.Orders, logg))
			r.Patch("/{orderId}/status", ordercontrollers.Transition(eng.Orders, logg))
			r.Put("/{orderId}/items", ordercontrollers.ReplaceItems(eng.Orders, logg))
			r.Delete("/{orderId}", ordercontrollers.Delete(eng.Orders, logg))
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Post("/allocate", inventorycontrollers.Allocate(eng.Inventory, eng.Access, logg))
			r.Post("/transfer", inventorycontrollers.Transfer(eng.Inventory, eng.Access, logg))
			r.Post("/return", inventorycontrollers.Return(eng.Inventory, eng.Access, logg))
			r.Post("/adjust", inventorycontrollers.Adjust(eng.Inventory, eng.Access, logg))
			r.Get("/transfers", inventorycontrollers.Transfers(eng.Inventory, eng.Access, logg))
			r.Get("/agents/{agentId}", inventorycontrollers.AgentStock(eng.Inventory, eng.Access, logg))
		})

		r.Route("/finance", func(r chi.Router) {
			r.Post("/orders/sync", financecontrollers.BatchSync(eng.Finance, eng.Access, logg))
			r.Post("/orders/{orderId}/sync", financecontrollers.SyncOrder(eng.Finance, eng.Access, logg))
			r.Get("/orders/{orderId}/transactions", financecontrollers.Transactions(eng.Finance, eng.Access, logg))
		})

		r.Route("/users", func(r chi.Router) {
			r.With(admins).Post("/", directorycontrollers.CreateUser(eng.Users, logg))
			r.Get("/agents", directorycontrollers.ListAgents(eng.Users, logg))
			r.Get("/{userId}", directorycontrollers.GetUser(eng.Users, logg))
			r.With(managers).Patch("/{userId}/availability", directorycontrollers.SetAvailability(eng.Users, logg))
			r.With(admins).Patch("/{userId}/commission", directorycontrollers.UpdateCommission(eng.Users, logg))
		})

		r.Route("/products", func(r chi.Router) {
			r.With(managers).Post("/", directorycontrollers.CreateProduct(eng.Products, logg))
			r.Get("/{productId}", directorycontrollers.GetProduct(eng.Products, logg))
		})
	})

	return r
}
