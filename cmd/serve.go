package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	authclient "github.com/vibast-solutions/lib-go-auth/client"
	authmiddleware "github.com/vibast-solutions/lib-go-auth/middleware"
	authlibservice "github.com/vibast-solutions/lib-go-auth/service"
	"github.com/vibast-solutions/ms-go-checkout/app/controller"
	checkoutgrpc "github.com/vibast-solutions/ms-go-checkout/app/grpc"
	"github.com/vibast-solutions/ms-go-checkout/app/migrations"
	"github.com/vibast-solutions/ms-go-checkout/app/notifier"
	"github.com/vibast-solutions/ms-go-checkout/app/provider"
	"github.com/vibast-solutions/ms-go-checkout/app/repository"
	"github.com/vibast-solutions/ms-go-checkout/app/service"
	"github.com/vibast-solutions/ms-go-checkout/app/telemetry"
	"github.com/vibast-solutions/ms-go-checkout/app/types"
	"github.com/vibast-solutions/ms-go-checkout/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  "Start both HTTP (Echo) and gRPC servers for the checkout service.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, checkoutService, cleanup := mustCreateCheckoutService()
	defer cleanup()

	checkoutController := controller.NewCheckoutController(checkoutService)
	grpcCheckoutServer := checkoutgrpc.NewServer(checkoutService)

	authGRPCClient, err := authclient.NewGRPCClientFromAddr(context.Background(), cfg.InternalEndpoints.AuthGRPCAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize auth gRPC client")
	}
	defer authGRPCClient.Close()

	internalAuthService := authlibservice.NewInternalAuthService(authGRPCClient)
	echoInternalAuthMiddleware := authmiddleware.NewEchoInternalAuthMiddleware(internalAuthService)
	grpcInternalAuthMiddleware := authmiddleware.NewGRPCInternalAuthMiddleware(internalAuthService)

	e := setupHTTPServer(checkoutController, echoInternalAuthMiddleware, cfg.App.ServiceName)
	grpcSrv, lis := setupGRPCServer(cfg, grpcCheckoutServer, grpcInternalAuthMiddleware, cfg.App.ServiceName)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	go func() {
		logrus.WithField("addr", lis.Addr().String()).Info("Starting gRPC server")
		if err := grpcSrv.Serve(lis); err != nil {
			logrus.WithError(err).Fatal("gRPC server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}
	grpcSrv.GracefulStop()

	logrus.Info("Server stopped")
}

func setupHTTPServer(
	checkoutController *controller.CheckoutController,
	internalAuthMiddleware *authmiddleware.EchoInternalAuthMiddleware,
	appServiceName string,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			if v.RequestID != "" {
				fields["request_id"] = v.RequestID
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.GET("/health", checkoutController.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Gateways authenticate with their own tokens and never send a request id.
	webhooks := e.Group("/webhooks/gateways")
	webhooks.POST("/:gateway", checkoutController.HandleGatewayCallback)

	checkout := e.Group("/checkout", requireRequestID(), internalAuthMiddleware.RequireInternalAccess(appServiceName))
	checkout.POST("/resolve", checkoutController.ResolveProduct)
	checkout.POST("/resume", checkoutController.ResumeOrCreate)
	checkout.POST("/orders", checkoutController.StartCheckout)
	checkout.GET("/orders/:id", checkoutController.GetCheckout)
	checkout.POST("/orders/:id/charge", checkoutController.GenerateCharge)
	checkout.POST("/orders/:id/cancel", checkoutController.CancelCheckout)
	checkout.POST("/orders/:id/expire-pix", checkoutController.ExpirePix)
	checkout.GET("/orders/:id/events", checkoutController.WatchCheckout)

	return e
}

func requireRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "x-request-id header is required"})
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(ctx)
		}
	}
}

func setupGRPCServer(
	cfg *config.Config,
	checkoutServer *checkoutgrpc.Server,
	internalAuthMiddleware *authmiddleware.GRPCInternalAuthMiddleware,
	appServiceName string,
) (*grpc.Server, net.Listener) {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	grpcSrv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			checkoutgrpc.RecoveryInterceptor(),
			checkoutgrpc.RequestIDInterceptor(),
			checkoutgrpc.LoggingInterceptor(),
			internalAuthMiddleware.UnaryRequireInternalAccess(appServiceName),
		),
	)
	checkoutgrpc.RegisterCheckoutServiceServer(grpcSrv, checkoutServer)

	return grpcSrv, lis
}

func mustOpenDatabase(cfg *config.Config) *sql.DB {
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}
	return db
}

func mustLoadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}
	return cfg
}

func newProviderRegistry(cfg *config.Config) *provider.Registry {
	registry := provider.NewRegistry()
	registry.Register(provider.NewAsaasProvider(provider.AsaasConfig{
		APIKey:       cfg.Asaas.APIKey,
		BaseURL:      cfg.Asaas.BaseURL,
		WebhookToken: cfg.Asaas.WebhookToken,
		HTTPTimeout:  cfg.Asaas.HTTPTimeout,
	}), cfg.Asaas.Weight)

	if cfg.EvoPay.Enabled {
		registry.Register(provider.NewEvoPayProvider(provider.EvoPayConfig{
			APIKey:      cfg.EvoPay.APIKey,
			BaseURL:     cfg.EvoPay.BaseURL,
			CallbackURL: cfg.EvoPay.CallbackURL,
			HTTPTimeout: cfg.EvoPay.HTTPTimeout,
		}), cfg.EvoPay.Weight)
	}

	if cfg.PixUp.Enabled {
		registry.Register(provider.NewPixUpProvider(provider.PixUpConfig{
			ProxyURL:     cfg.PixUp.ProxyURL,
			ProxySecret:  cfg.PixUp.ProxySecret,
			ClientID:     cfg.PixUp.ClientID,
			ClientSecret: cfg.PixUp.ClientSecret,
			WebhookToken: cfg.PixUp.WebhookToken,
			HTTPTimeout:  cfg.PixUp.HTTPTimeout,
		}), cfg.PixUp.Weight)
	}
	return registry
}

// newGatewayAlerter returns nil when alert emails are off, leaving the
// service on its log-only alerter.
func newGatewayAlerter(cfg *config.Config) service.GatewayAlerter {
	if !cfg.Alerts.Enabled || cfg.Alerts.ResendAPIKey == "" {
		return nil
	}
	return notifier.NewResendNotifier(notifier.ResendConfig{
		APIKey:      cfg.Alerts.ResendAPIKey,
		BaseURL:     cfg.Alerts.BaseURL,
		FromEmail:   cfg.Alerts.FromEmail,
		FromName:    cfg.Alerts.FromName,
		AdminEmails: cfg.Alerts.AdminEmails,
		HTTPTimeout: cfg.Alerts.HTTPTimeout,
	})
}

func mustCreateCheckoutService() (*config.Config, *service.CheckoutService, func()) {
	cfg := mustLoadConfig()

	shutdownTracing, err := telemetry.Setup(context.Background(), cfg.App.ServiceName, cfg.Telemetry)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to configure tracing")
	}

	db := mustOpenDatabase(cfg)
	if cfg.MySQL.MigrateOnStart {
		if err := migrations.Up(db); err != nil {
			_ = db.Close()
			logrus.WithError(err).Fatal("Failed to apply migrations")
		}
	}

	settingsStore := service.NewSettingsStore(repository.NewSettingsRepository(db))
	if err := settingsStore.Refresh(context.Background()); err != nil {
		logrus.WithError(err).Warn("Failed to load system settings, using defaults")
	}
	settingsCtx, stopSettings := context.WithCancel(context.Background())
	go settingsStore.Run(settingsCtx, cfg.Checkout.SettingsRefreshInterval)

	catalogRepo := repository.NewCatalogRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	atomicRepo := repository.NewAtomicRepository(db)

	checkoutService := service.NewCheckoutService(service.CheckoutDeps{
		Orders:        repository.NewOrderRepository(db),
		Payments:      repository.NewPaymentRepository(db),
		Events:        repository.NewOrderEventRepository(db),
		Attempts:      repository.NewGatewayAttemptRepository(db),
		Callbacks:     repository.NewGatewayCallbackRepository(db),
		Atomic:        atomicRepo,
		Inventory:     atomicRepo,
		Subscriptions: subscriptionRepo,
		Resolver:      service.NewProductResolver(catalogRepo, subscriptionRepo, cfg.Checkout.PriceToleranceCents),
		Providers:     newProviderRegistry(cfg),
		Settings:      settingsStore,
		Broker:        service.NewBroker(),
		Alerter:       newGatewayAlerter(cfg),
		Config:        cfg.Checkout,
	})

	cleanup := func() {
		stopSettings()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logrus.WithError(err).Warn("Failed to flush traces")
		}
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, checkoutService, cleanup
}
