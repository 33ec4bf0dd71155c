package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kevin07696/checkout-aggregator/internal/adapters/cashfree"
	"github.com/kevin07696/checkout-aggregator/internal/adapters/email"
	"github.com/kevin07696/checkout-aggregator/internal/adapters/logging"
	"github.com/kevin07696/checkout-aggregator/internal/adapters/mongoarchive"
	"github.com/kevin07696/checkout-aggregator/internal/adapters/paypal"
	"github.com/kevin07696/checkout-aggregator/internal/adapters/phonepe"
	"github.com/kevin07696/checkout-aggregator/internal/adapters/postgres"
	"github.com/kevin07696/checkout-aggregator/internal/config"
	"github.com/kevin07696/checkout-aggregator/internal/domain/ports"
	checkoutHandler "github.com/kevin07696/checkout-aggregator/internal/handlers/checkout"
	checkoutService "github.com/kevin07696/checkout-aggregator/internal/services/checkout"
	"github.com/kevin07696/checkout-aggregator/internal/services/dispatch"
	pkghttp "github.com/kevin07696/checkout-aggregator/pkg/http"
	"github.com/kevin07696/checkout-aggregator/pkg/observability"
	"github.com/kevin07696/checkout-aggregator/pkg/shutdown"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	zapLogger := initLogger(cfg.Logger)
	defer zapLogger.Sync()
	logger := logging.NewZapLogger(zapLogger)

	zapLogger.Info("Starting checkout aggregator",
		zap.String("version", "0.1.0"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Components register in startup order and shut down in reverse
	shutdownMgr := shutdown.NewManager(zapLogger, 30*time.Second)

	// Database connection pool
	dbPool, err := initDatabase(ctx, cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to initialize database", zap.Error(err))
	}
	shutdownMgr.RegisterNoErr("postgres", dbPool.Close)

	zapLogger.Info("Database connection established",
		zap.String("database", cfg.Database.Database),
	)

	// Mongo holds the archive of completed payments
	mongoClient, err := initMongo(ctx, cfg.Mongo)
	if err != nil {
		zapLogger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	shutdownMgr.Register("mongo", mongoClient.Disconnect)

	// Secret manager resolves provider credentials
	secretManager := initSecretManager(ctx, cfg.Secrets, zapLogger)

	// Provider gateways
	gateways, err := initGateways(ctx, cfg, secretManager, logger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize provider gateways", zap.Error(err))
	}

	// Side effects: admin email plus archive record, dispatched off the
	// request path on first SUCCESS
	notifier := email.NewNotifier(email.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		AdminTo:  cfg.SMTP.AdminTo,
	}, logger)
	archiver := mongoarchive.NewArchiver(mongoClient.Database(cfg.Mongo.Database), logger)
	dispatcher := dispatch.NewDispatcher(notifier, archiver, logger, 30*time.Second)
	// In-flight side effects finish before the stores close underneath them
	shutdownMgr.RegisterNoErr("dispatcher", dispatcher.Wait)

	store := postgres.NewTransactionRepository(dbPool)
	service := checkoutService.NewService(store, dispatcher, logger, gateways...)

	// HTTP surface
	router := mux.NewRouter()
	handler := checkoutHandler.NewHandler(service, logger)
	handler.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Metrics and health endpoints on a separate port
	healthChecker := observability.NewHealthChecker(dbPool, mongoClient)
	metricsServer := observability.StartMetricsServer(
		fmt.Sprintf("%d", cfg.Server.MetricsPort), healthChecker, zapLogger)
	shutdownMgr.RegisterHTTPServer("metrics_server", metricsServer)

	go func() {
		zapLogger.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()
	shutdownMgr.RegisterHTTPServer("http_server", httpServer)

	shutdownMgr.WaitForShutdown()
}

func initLogger(cfg config.LoggerConfig) *zap.Logger {
	var zapCfg zap.Config
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func initMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// initGateways resolves credentials through the secret manager and builds
// one adapter per enabled provider. A provider with no merchant credentials
// configured is skipped rather than treated as fatal.
func initGateways(ctx context.Context, cfg *config.Config, secrets ports.SecretManager, logger ports.Logger) ([]ports.ProviderGateway, error) {
	var gateways []ports.ProviderGateway

	if cfg.PhonePe.MerchantID != "" {
		saltKey, err := secrets.GetSecret(ctx, cfg.PhonePe.SaltKeyRef)
		if err != nil {
			return nil, fmt.Errorf("resolve PhonePe salt key: %w", err)
		}
		gateways = append(gateways, phonepe.NewAdapter(phonepe.Config{
			BaseURL:     cfg.PhonePe.BaseURL,
			MerchantID:  cfg.PhonePe.MerchantID,
			SaltKey:     saltKey,
			SaltIndex:   cfg.PhonePe.SaltIndex,
			RedirectURL: cfg.PhonePe.RedirectURL,
			CallbackURL: cfg.PhonePe.CallbackURL,
		}, httpClientFor(cfg.PhonePe.Timeout), logger))
	}

	if cfg.PayPal.ClientID != "" {
		clientSecret, err := secrets.GetSecret(ctx, cfg.PayPal.ClientSecretRef)
		if err != nil {
			return nil, fmt.Errorf("resolve PayPal client secret: %w", err)
		}
		gateways = append(gateways, paypal.NewAdapter(paypal.Config{
			BaseURL:      cfg.PayPal.BaseURL,
			ClientID:     cfg.PayPal.ClientID,
			ClientSecret: clientSecret,
			Currency:     cfg.PayPal.Currency,
			ReturnURL:    cfg.PayPal.ReturnURL,
			CancelURL:    cfg.PayPal.CancelURL,
		}, httpClientFor(cfg.PayPal.Timeout), logger))
	}

	if cfg.Cashfree.ClientID != "" {
		secret, err := secrets.GetSecret(ctx, cfg.Cashfree.ClientSecretRef)
		if err != nil {
			return nil, fmt.Errorf("resolve Cashfree client secret: %w", err)
		}
		gateways = append(gateways, cashfree.NewAdapter(cashfree.Config{
			BaseURL:    cfg.Cashfree.BaseURL,
			ClientID:   cfg.Cashfree.ClientID,
			Secret:     secret,
			APIVersion: cfg.Cashfree.APIVersion,
			ReturnURL:  cfg.Cashfree.ReturnURL,
			NotifyURL:  cfg.Cashfree.NotifyURL,
		}, httpClientFor(cfg.Cashfree.Timeout), logger))
	}

	if len(gateways) == 0 {
		return nil, fmt.Errorf("no payment provider configured")
	}
	return gateways, nil
}

// httpClientFor builds a pooled client tuned for a single provider host
func httpClientFor(timeoutSecs int) *http.Client {
	if timeoutSecs <= 0 {
		timeoutSecs = 30
	}
	return pkghttp.NewHTTPClient(pkghttp.GatewayClientConfig(), time.Duration(timeoutSecs)*time.Second)
}
