package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/marketplace-orders/api/controllers"
	ordercontrollers "github.com/angelmondragon/marketplace-orders/api/controllers/orders"
	returncontrollers "github.com/angelmondragon/marketplace-orders/api/controllers/returns"
	settlementcontrollers "github.com/angelmondragon/marketplace-orders/api/controllers/settlements"
	"github.com/angelmondragon/marketplace-orders/api/middleware"
	"github.com/angelmondragon/marketplace-orders/internal/ledger"
	"github.com/angelmondragon/marketplace-orders/internal/notifications"
	"github.com/angelmondragon/marketplace-orders/internal/orders"
	"github.com/angelmondragon/marketplace-orders/internal/returns"
	"github.com/angelmondragon/marketplace-orders/internal/settlements"
	"github.com/angelmondragon/marketplace-orders/pkg/config"
	"github.com/angelmondragon/marketplace-orders/pkg/db"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
	"github.com/angelmondragon/marketplace-orders/pkg/redis"
)

// Services are the domain services exposed over HTTP.
type Services struct {
	Orders        orders.Service
	Returns       returns.Service
	Settlements   settlements.Service
	Notifications notifications.Service
	Ledger        ledger.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	svcs Services,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins),
	)

	// A nil *redis.Client must not become a non-nil interface.
	var idempotencyStore redis.IdempotencyStore
	readiness := map[string]redis.Pinger{"postgres": dbP}
	if redisClient != nil {
		idempotencyStore = redisClient
		readiness["redis"] = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	user := middleware.RequireRole(logg, enums.ActorRoleUser)
	seller := middleware.RequireRole(logg, enums.ActorRoleSeller)
	admin := middleware.RequireRole(logg, enums.ActorRoleAdmin)
	staff := middleware.RequireRole(logg, enums.ActorRoleSeller, enums.ActorRoleAdmin)
	// Inline so the full route pattern is resolved when the key rules run.
	idem := middleware.Idempotency(idempotencyStore, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/orders", func(r chi.Router) {
			r.With(user, idem).Post("/", ordercontrollers.Create(svcs.Orders, logg))
			r.Get("/", ordercontrollers.List(svcs.Orders, logg))
			r.Get("/stats", ordercontrollers.Stats(svcs.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(svcs.Orders, logg))
			r.With(idem).Patch("/{orderId}/status", ordercontrollers.UpdateStatus(svcs.Orders, logg))
			r.With(idem).Patch("/{orderId}/items/{itemId}/status", ordercontrollers.UpdateItemStatus(svcs.Orders, logg))
			r.With(idem).Post("/{orderId}/cancel", ordercontrollers.Cancel(svcs.Orders, logg))
			r.Post("/{orderId}/invoice", ordercontrollers.Invoice(svcs.Orders, logg))
		})

		r.With(user).Post("/coupons/validate", ordercontrollers.ValidateCoupon(svcs.Orders, logg))

		r.Route("/returns", func(r chi.Router) {
			r.With(user, idem).Post("/", returncontrollers.Create(svcs.Returns, logg))
			r.Get("/", returncontrollers.List(svcs.Returns, logg))
			r.Get("/{returnId}", returncontrollers.Detail(svcs.Returns, logg))
			r.With(user).Post("/{returnId}/video", returncontrollers.UploadVideo(svcs.Returns, logg))
			r.With(seller).Post("/{returnId}/video-review", returncontrollers.ReviewVideo(svcs.Returns, logg))
			r.With(staff, idem).Patch("/{returnId}/status", returncontrollers.UpdateStatus(svcs.Returns, logg))
			r.With(seller, idem).Post("/{returnId}/complaint", returncontrollers.FileComplaint(svcs.Returns, logg))
			r.With(admin).Post("/{returnId}/complaint/resolve", returncontrollers.ResolveComplaint(svcs.Returns, logg))
		})

		r.Route("/settlements", func(r chi.Router) {
			r.Use(staff)
			r.Get("/", settlementcontrollers.List(svcs.Settlements, logg))
			r.Get("/{settlementId}", settlementcontrollers.Detail(svcs.Settlements, logg))
		})

		r.With(seller).Get("/ledger", controllers.SellerLedger(svcs.Ledger, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(svcs.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(svcs.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(svcs.Notifications, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(admin)
			r.With(idem).Patch("/settlements/{settlementId}/status", settlementcontrollers.UpdateStatus(svcs.Settlements, logg))
		})
	})

	return r
}
