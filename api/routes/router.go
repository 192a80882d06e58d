package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dhanwira/lokapasar-backend/api/controllers"
	"github.com/dhanwira/lokapasar-backend/api/middleware"
	"github.com/dhanwira/lokapasar-backend/internal/orders"
	"github.com/dhanwira/lokapasar-backend/internal/payments"
	"github.com/dhanwira/lokapasar-backend/internal/shops"
	"github.com/dhanwira/lokapasar-backend/internal/vouchers"
	"github.com/dhanwira/lokapasar-backend/pkg/config"
	"github.com/dhanwira/lokapasar-backend/pkg/logger"
	"github.com/dhanwira/lokapasar-backend/pkg/metrics"
	"github.com/dhanwira/lokapasar-backend/pkg/redis"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	Redis       *redis.Client
	HTTPMetrics *metrics.HTTPMetrics

	// Readiness probes, keyed by dependency name. Nil entries are skipped.
	Pingers map[string]controllers.Pinger

	Orders   orders.Service
	Vouchers vouchers.Service
	Shops    shops.Service
	Payments payments.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)
	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics.Middleware())
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})

	if deps.HTTPMetrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.HTTPMetrics.Handler())
	}

	// Gateway-facing routes are unauthenticated; the capture callback carries
	// the payer back from the gateway, the webhook is server-to-server.
	r.Route("/payments", func(r chi.Router) {
		if deps.Redis != nil {
			policy := middleware.NewRateLimitPolicy("payments", time.Minute, 120)
			r.Use(middleware.RateLimit(policy, deps.Redis, logg))
		}
		r.Get("/capture", controllers.PaymentCapture(deps.Payments, logg))
		r.Post("/webhook", controllers.PaymentWebhook(deps.Payments, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if deps.Redis != nil {
			r.Use(middleware.Idempotency(deps.Redis, logg))
		}

		r.Route("/v1/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(deps.Orders, logg))
			r.Get("/", controllers.ListOrders(deps.Orders, logg))
			r.Get("/{orderId}", controllers.OrderDetail(deps.Orders, logg))
			r.Get("/{orderId}/history", controllers.OrderHistory(deps.Orders, logg))
			r.Post("/{orderId}/payment", controllers.RetryOrderPayment(deps.Orders, logg))
			r.Patch("/{orderId}/status", controllers.UpdateOrderStatus(deps.Orders, logg))
			r.Patch("/{orderId}/cancel", controllers.CancelOrder(deps.Orders, logg))
		})

		r.Route("/v1/vouchers", func(r chi.Router) {
			r.Post("/", controllers.CreateVoucher(deps.Vouchers, logg))
			r.Get("/mine", controllers.MyVouchers(deps.Vouchers, logg))
			r.Post("/{voucherId}/claim", controllers.ClaimVoucher(deps.Vouchers, logg))
		})

		r.Post("/v1/shops", controllers.RegisterShop(deps.Shops, logg))
	})

	return r
}
