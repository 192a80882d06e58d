package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/dhanwira/lokapasar-backend/api/controllers"
	"github.com/dhanwira/lokapasar-backend/api/routes"
	"github.com/dhanwira/lokapasar-backend/internal/address"
	"github.com/dhanwira/lokapasar-backend/internal/cart"
	"github.com/dhanwira/lokapasar-backend/internal/inventory"
	"github.com/dhanwira/lokapasar-backend/internal/orders"
	"github.com/dhanwira/lokapasar-backend/internal/payments"
	"github.com/dhanwira/lokapasar-backend/internal/products"
	"github.com/dhanwira/lokapasar-backend/internal/shops"
	"github.com/dhanwira/lokapasar-backend/internal/vouchers"
	"github.com/dhanwira/lokapasar-backend/pkg/config"
	"github.com/dhanwira/lokapasar-backend/pkg/db"
	"github.com/dhanwira/lokapasar-backend/pkg/logger"
	"github.com/dhanwira/lokapasar-backend/pkg/metrics"
	"github.com/dhanwira/lokapasar-backend/pkg/migrate"
	"github.com/dhanwira/lokapasar-backend/pkg/paypal"
	"github.com/dhanwira/lokapasar-backend/pkg/redis"
	"gorm.io/gorm"

	"github.com/google/uuid"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	paypalClient, err := paypal.NewClient(context.Background(), cfg.PayPal, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap paypal client", err)
		os.Exit(1)
	}

	handler, err := buildHandler(cfg, logg, dbClient, redisClient, paypalClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		logg.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	shutdownErr := server.Shutdown(shutdownCtx)
	shutdownErr = multierr.Append(shutdownErr, redisClient.Close())
	shutdownErr = multierr.Append(shutdownErr, dbClient.Close())
	if shutdownErr != nil {
		logg.Error(ctx, "shutdown finished with errors", shutdownErr)
		os.Exit(1)
	}
	logg.Info(ctx, "shutdown complete")
}

// discountAdapter narrows the voucher service to the evaluator slice the
// order builder consumes.
type discountAdapter struct {
	svc vouchers.Service
}

func (a discountAdapter) Evaluate(ctx context.Context, tx *gorm.DB, input orders.DiscountInput) (int64, uuid.UUID, error) {
	eval, err := a.svc.Evaluate(ctx, tx, vouchers.EvaluateInput{
		UserID:    input.UserID,
		VoucherID: input.VoucherID,
		ShopID:    input.ShopID,
		Subtotal:  input.Subtotal,
	})
	if err != nil {
		return 0, uuid.Nil, err
	}
	return eval.Discount, eval.ClaimID, nil
}

func (a discountAdapter) ConsumeRedemption(ctx context.Context, tx *gorm.DB, claimID, orderID uuid.UUID) error {
	return a.svc.ConsumeRedemption(ctx, tx, claimID, orderID)
}

// The payment reconciler and the order/shop services call each other at
// settlement time. The func adapters below break the construction cycle.
type orderMarkerFunc func(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error

func (f orderMarkerFunc) MarkPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	return f(ctx, tx, orderID)
}

type shopApproverFunc func(ctx context.Context, tx *gorm.DB, shopID uuid.UUID) (bool, error)

func (f shopApproverFunc) Approve(ctx context.Context, tx *gorm.DB, shopID uuid.UUID) (bool, error) {
	return f(ctx, tx, shopID)
}

func buildHandler(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	paypalClient *paypal.Client,
) (http.Handler, error) {
	gdb := dbClient.DB()

	voucherSvc, err := vouchers.NewService(vouchers.NewRepository(gdb), dbClient)
	if err != nil {
		return nil, err
	}

	orderRepo := orders.NewRepository(gdb)
	shopRepo := shops.NewRepository(gdb)

	var orderSvc orders.Service
	var shopSvc shops.Service
	paymentSvc, err := payments.NewService(
		payments.NewRepository(gdb),
		dbClient,
		paypalClient,
		orderMarkerFunc(func(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
			return orderSvc.MarkPaid(ctx, tx, orderID)
		}),
		shopApproverFunc(func(ctx context.Context, tx *gorm.DB, shopID uuid.UUID) (bool, error) {
			return shopSvc.Approve(ctx, tx, shopID)
		}),
		redisClient,
		cfg.Webhook.IdempotencyTTL,
	)
	if err != nil {
		return nil, err
	}

	orderSvc, err = orders.NewService(
		orderRepo,
		dbClient,
		inventory.NewLedger(),
		discountAdapter{svc: voucherSvc},
		shopRepo,
		products.NewRepository(gdb),
		address.NewRepository(gdb),
		cart.NewRepository(gdb),
		paymentSvc,
	)
	if err != nil {
		return nil, err
	}

	shopSvc, err = shops.NewService(shopRepo, paymentSvc, cfg.App.ShopRegistrationFee)
	if err != nil {
		return nil, err
	}

	return routes.NewRouter(routes.Deps{
		Config:      cfg,
		Logger:      logg,
		Redis:       redisClient,
		HTTPMetrics: metrics.NewHTTPMetrics(),
		Pingers: map[string]controllers.Pinger{
			"postgres": dbClient,
			"redis":    redisClient,
		},
		Orders:   orderSvc,
		Vouchers: voucherSvc,
		Shops:    shopSvc,
		Payments: paymentSvc,
	}), nil
}
