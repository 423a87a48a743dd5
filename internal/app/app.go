// Package app wires the order service together: storage, broker, gateway,
// HTTP server, background consumers, and graceful shutdown.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/pizza-orders/internal/broker"
	"github.com/xenking/pizza-orders/internal/domain/order"
	"github.com/xenking/pizza-orders/internal/events"
	"github.com/xenking/pizza-orders/internal/gateway"
	"github.com/xenking/pizza-orders/internal/handler"
	"github.com/xenking/pizza-orders/internal/repository"
	"github.com/xenking/pizza-orders/internal/updater"
	"github.com/xenking/pizza-orders/pkg/health"
	"github.com/xenking/pizza-orders/pkg/httpmiddleware"
)

// Durable consumer names binding this service to the catalog stream.
const (
	productConsumer = "order-api-products"
	toppingConsumer = "order-api-toppings"
)

// Run creates all dependencies, starts the HTTP server and background
// workers, and handles graceful shutdown. It is the single wiring point for
// the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Event broker.
	nc, err := broker.Connect(cfg.NATS.URL, "order-api", lg.Named("broker"))
	if err != nil {
		return errors.Wrap(err, "connect broker")
	}
	defer nc.Close()

	if err := nc.EnsureStream(ctx, "ORDERS",
		[]string{events.TopicOrderEvents + ".>"}, cfg.NATS.OrderStreamMaxAge); err != nil {
		return errors.Wrap(err, "ensure order stream")
	}
	if err := nc.EnsureStream(ctx, updater.StreamCatalog,
		[]string{updater.SubjectPrefix}, 0); err != nil {
		return errors.Wrap(err, "ensure catalog stream")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddReadinessCheck("nats", time.Second, nc.Ping)
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc-pause", time.Second, health.GCMaxPauseCheck(10*time.Second))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	priceCache := repository.NewPriceCacheRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	customerRepo := repository.NewCustomerRepository(pool)
	orderRepo := repository.NewOrderRepository(pool, cfg.Idempotency.Retention)
	apikeyRepo := repository.NewAPIKeyRepository(pool)

	if err := couponRepo.WarmFilter(ctx); err != nil {
		return errors.Wrap(err, "warm coupon filter")
	}

	// Domain services.
	stripeGateway := gateway.NewStripe(gateway.Config{
		SecretKey:  cfg.Stripe.SecretKey,
		SuccessURL: cfg.Stripe.SuccessURL,
		CancelURL:  cfg.Stripe.CancelURL,
		Currency:   cfg.Stripe.Currency,
	})
	orderService := order.NewService(
		priceCache,
		couponRepo,
		customerRepo,
		orderRepo,
		orderRepo,
		stripeGateway,
		nc,
	)

	// Catalog cache updater: one durable consumer per item kind, so product
	// and topping streams redeliver independently.
	cacheUpdater := updater.New(priceCache, lg.Named("updater"))
	if err := nc.Consume(ctx, updater.StreamCatalog, productConsumer,
		updater.SubjectProducts, cacheUpdater.HandleProduct); err != nil {
		return errors.Wrap(err, "consume product events")
	}
	if err := nc.Consume(ctx, updater.StreamCatalog, toppingConsumer,
		updater.SubjectToppings, cacheUpdater.HandleTopping); err != nil {
		return errors.Wrap(err, "consume topping events")
	}

	// HTTP handlers and routes.
	h := handler.NewHandler(orderService, couponRepo)
	staff := handler.StaffAuth(apikeyRepo, []byte(cfg.APIKeyPepper))

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.HandleFunc("POST /api/orders", h.CreateOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("GET /api/orders", h.ListOrders)
	mux.Handle("PATCH /api/orders/{id}/status", staff(http.HandlerFunc(h.UpdateOrderStatus)))
	mux.HandleFunc("POST /api/payments/webhook", h.Webhook)
	mux.HandleFunc("POST /api/coupons/verify", h.VerifyCoupon)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "Idempotency-Key", "X-Api-Key"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("order-api"),
			httpmiddleware.LogRequests(),
		),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	// Idempotency record reaper: keys become reusable after the retention
	// window even though Lookup already ignores stale records.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.Idempotency.ReapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				cutoff := time.Now().Add(-cfg.Idempotency.Retention)
				n, err := orderRepo.DeleteExpired(ctx, cutoff)
				if err != nil {
					lg.Warn("Reaping idempotency records failed", zap.Error(err))
					continue
				}
				if n > 0 {
					lg.Debug("Reaped idempotency records", zap.Int64("count", n))
				}
			}
		}
	})

	// Graceful shutdown: flip readiness, drain, then stop the server.
	g.Go(func() error {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	return g.Wait()
}
