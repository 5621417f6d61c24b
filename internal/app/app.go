// Package app wires the API server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/eshop/internal/domain/auth"
	"github.com/xenking/eshop/internal/domain/cart"
	"github.com/xenking/eshop/internal/domain/coupon"
	"github.com/xenking/eshop/internal/domain/order"
	"github.com/xenking/eshop/internal/domain/review"
	"github.com/xenking/eshop/internal/domain/user"
	"github.com/xenking/eshop/internal/events/kafka"
	"github.com/xenking/eshop/internal/handler"
	"github.com/xenking/eshop/internal/mail"
	"github.com/xenking/eshop/internal/payment/stripe"
	"github.com/xenking/eshop/internal/storage/postgres"
	"github.com/xenking/eshop/pkg/health"
	"github.com/xenking/eshop/pkg/httpmiddleware"
)

const serviceName = "eshop-api"

// Run creates all dependencies, serves HTTP until ctx is done and shuts
// down gracefully.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr), zap.String("env", cfg.Env))

	srv, err := newServer(ctx, cfg, m, lg)
	if err != nil {
		return err
	}
	defer srv.close()

	srv.health.Start(ctx, 10*time.Second)
	srv.health.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           srv.handler,
	}

	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		srv.health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		srv.health.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

type server struct {
	handler http.Handler
	health  *health.Health
	close   func()
}

// newServer connects to every backing service and assembles the middleware
// chain around the probes and the API router.
func newServer(ctx context.Context, cfg *Config, t httpmiddleware.Telemetry, lg *zap.Logger) (_ *server, rerr error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	closers := []func(){pool.Close}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	defer func() {
		if rerr != nil {
			closeAll()
		}
	}()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return nil, errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	publisher, closePublisher, err := newPublisher(ctx, cfg.Kafka, lg)
	if err != nil {
		return nil, err
	}
	closers = append(closers, closePublisher)

	sender, err := newSender(cfg.SMTP, lg)
	if err != nil {
		return nil, err
	}

	payments, err := stripe.New(stripe.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Currency:      cfg.Stripe.Currency,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create stripe client")
	}
	if cfg.Stripe.SecretKey == "" || cfg.Stripe.WebhookSecret == "" {
		lg.Warn("Stripe is not fully configured, card checkout will fail")
	}

	h, err := newHandler(cfg, pool, t, payments, publisher, sender, lg)
	if err != nil {
		return nil, err
	}

	engine := h.Engine()
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", engine)
	mux.Handle("/webhook-checkout", engine)

	return &server{
		handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", stripe.SignatureHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument(serviceName, t),
			httpmiddleware.LogRequests(),
		),
		health: healthSvc,
		close:  closeAll,
	}, nil
}

// newHandler builds repositories and domain services on top of pool.
func newHandler(
	cfg *Config,
	pool *pgxpool.Pool,
	t httpmiddleware.Telemetry,
	payments *stripe.Client,
	publisher order.Publisher,
	sender mail.Sender,
	lg *zap.Logger,
) (*handler.Handler, error) {
	var (
		categories    = postgres.NewCategoryTable(pool)
		subcategories = postgres.NewSubcategoryTable(pool)
		brands        = postgres.NewBrandTable(pool)
		products      = postgres.NewProductRepository(pool)
		coupons       = postgres.NewCouponRepository(pool)
		users         = postgres.NewUserRepository(pool)
		carts         = postgres.NewCartRepository(pool)
		reviews       = postgres.NewReviewRepository(pool)
		orders        = postgres.NewOrderRepository(pool)
	)

	orderService, err := order.NewService(orders, orders, products, users, payments, publisher, order.Options{
		TracerProvider: t.TracerProvider(),
		MeterProvider:  t.MeterProvider(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}

	tokens := auth.NewTokens(cfg.JWT.Secret, cfg.JWT.TTL)
	return handler.New(
		handler.Config{
			Development:  cfg.Development(),
			PublicURL:    cfg.PublicURL,
			ImageBaseURL: cfg.ImageBaseURL,
		},
		handler.Stores{
			Categories:    categories,
			Subcategories: subcategories,
			Brands:        brands,
			Products:      products,
			Coupons:       coupons,
			Users:         users,
			Reviews:       reviews,
			Orders:        orders,
		},
		handler.Services{
			Auth:     auth.NewService(users, tokens, sender),
			Users:    user.NewService(users, products),
			Carts:    cart.NewService(carts, products, coupon.NewRepoValidator(coupons)),
			Reviews:  review.NewService(reviews),
			Orders:   orderService,
			Webhooks: payments,
		},
		lg,
	), nil
}

// newPublisher connects to Kafka when brokers are configured. Without brokers
// order events are dropped. An unreachable cluster does not block startup.
func newPublisher(ctx context.Context, cfg KafkaConfig, lg *zap.Logger) (order.Publisher, func(), error) {
	if len(cfg.Brokers) == 0 {
		lg.Info("Kafka is not configured, order events are disabled")
		return kafka.Nop{}, func() {}, nil
	}
	p, err := kafka.New(kafka.Config{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  cfg.Timeout,
	}, lg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create kafka publisher")
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := p.Ping(pingCtx); err != nil {
		lg.Warn("Kafka is unreachable, order events may be lost", zap.Error(err))
	}
	return p, p.Close, nil
}

// newSender delivers mail over SMTP when configured and logs it otherwise.
func newSender(cfg SMTPConfig, lg *zap.Logger) (mail.Sender, error) {
	mc := mail.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	}
	if !mc.Enabled() {
		lg.Info("SMTP is not configured, mail is only logged")
		return mail.Log{}, nil
	}
	s, err := mail.NewSMTP(mc)
	if err != nil {
		return nil, errors.Wrap(err, "create smtp sender")
	}
	return s, nil
}
