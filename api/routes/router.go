package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tmakori/sokohub-backend/api/controllers"
	checkoutcontrollers "github.com/tmakori/sokohub-backend/api/controllers/checkout"
	notificationcontrollers "github.com/tmakori/sokohub-backend/api/controllers/notifications"
	ordercontrollers "github.com/tmakori/sokohub-backend/api/controllers/orders"
	paymentcontrollers "github.com/tmakori/sokohub-backend/api/controllers/payments"
	shipmentcontrollers "github.com/tmakori/sokohub-backend/api/controllers/shipments"
	webhookcontrollers "github.com/tmakori/sokohub-backend/api/controllers/webhooks"
	"github.com/tmakori/sokohub-backend/api/middleware"
	"github.com/tmakori/sokohub-backend/internal/checkout"
	"github.com/tmakori/sokohub-backend/internal/notifications"
	"github.com/tmakori/sokohub-backend/internal/orders"
	"github.com/tmakori/sokohub-backend/internal/payments"
	"github.com/tmakori/sokohub-backend/internal/shipments"
	"github.com/tmakori/sokohub-backend/pkg/config"
	"github.com/tmakori/sokohub-backend/pkg/db"
	"github.com/tmakori/sokohub-backend/pkg/enums"
	"github.com/tmakori/sokohub-backend/pkg/logger"
	"github.com/tmakori/sokohub-backend/pkg/metrics"
	"github.com/tmakori/sokohub-backend/pkg/paystack"
	"github.com/tmakori/sokohub-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	ordersSvc orders.Service,
	checkoutSvc checkout.Service,
	paymentsSvc payments.Service,
	shipmentsSvc shipments.Service,
	notificationsSvc notifications.Service,
	paystackClient *paystack.Client,
	webhookMetrics *metrics.WebhookMetrics,
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
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/paystack", webhookcontrollers.Paystack(paymentsSvc, paystackClient, webhookMetrics, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Post("/v1/checkout", checkoutcontrollers.Execute(checkoutSvc, logg))

		r.Route("/v1/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(ordersSvc, logg))
			r.Get("/", ordercontrollers.List(ordersSvc, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(ordersSvc, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(ordersSvc, logg))
			r.Get("/{orderId}/shipments", shipmentcontrollers.ListForOrder(shipmentsSvc, ordersSvc, logg))
		})

		r.Route("/v1/payments", func(r chi.Router) {
			r.Post("/", paymentcontrollers.Create(paymentsSvc, logg))
			r.Get("/{paymentId}", paymentcontrollers.Detail(paymentsSvc, logg))
			r.With(middleware.RequireRole(string(enums.UserRoleAdmin), logg)).
				Post("/{paymentId}/refund", paymentcontrollers.Refund(paymentsSvc, logg))
		})

		r.Route("/v1/shipments", func(r chi.Router) {
			r.With(middleware.RequireRole(string(enums.UserRoleVendor), logg)).
				Patch("/{shipmentId}", shipmentcontrollers.UpdateStatus(shipmentsSvc, logg))
		})

		r.Route("/v1/notifications", func(r chi.Router) {
			r.Get("/", notificationcontrollers.List(notificationsSvc, logg))
			r.Get("/unread-count", notificationcontrollers.UnreadCount(notificationsSvc, logg))
			r.Post("/{notificationId}/read", notificationcontrollers.MarkRead(notificationsSvc, logg))
			r.Post("/read-all", notificationcontrollers.MarkAllRead(notificationsSvc, logg))
		})
	})

	return r
}
