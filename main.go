package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Amund211/assetcache/internal/adapters/assetstore"
	"github.com/Amund211/assetcache/internal/adapters/database"
	"github.com/Amund211/assetcache/internal/adapters/memoryprobe"
	"github.com/Amund211/assetcache/internal/app"
	"github.com/Amund211/assetcache/internal/cache"
	"github.com/Amund211/assetcache/internal/config"
	"github.com/Amund211/assetcache/internal/logging"
	"github.com/Amund211/assetcache/internal/ports"
	"github.com/Amund211/assetcache/internal/ratelimiting"
	"github.com/Amund211/assetcache/internal/reporting"
	"github.com/Amund211/assetcache/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	_ "golang.org/x/crypto/x509roots/fallback"
)

const serviceName = "assetcache"

func newAssetStore(ctx context.Context, conf config.Config, logger *slog.Logger) (assetstore.AssetStore, func(), error) {
	switch conf.StoreKind() {
	case config.StoreMemory:
		return assetstore.NewMemory(logger), func() {}, nil
	case config.StoreFilesystem:
		return assetstore.NewOSFilesystem(conf.AssetDir(), logger), func() {}, nil
	case config.StorePostgres:
		db, err := database.NewPostgresDatabase(conf.DBConnectionString())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		err = database.NewDatabaseMigrator(db, logger.With("component", "migrator")).Migrate(ctx, conf.DBSchema())
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}

		return assetstore.NewPostgres(db, conf.DBSchema(), logger), func() { db.Close() }, nil
	case config.StoreMinio:
		client, err := assetstore.NewMinioClient(assetstore.MinioOptions{
			Endpoint:  conf.MinioEndpoint(),
			AccessKey: conf.MinioAccessKey(),
			SecretKey: conf.MinioSecretKey(),
			UseSSL:    conf.MinioUseSSL(),
		})
		if err != nil {
			return nil, nil, err
		}

		store := assetstore.NewMinio(client, conf.MinioBucket(), logger)
		err = store.EnsureBucket(ctx)
		if err != nil {
			return nil, nil, err
		}

		return store, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown asset store %s", config.ErrInvalidValue, conf.StoreKind())
	}
}

func main() {
	instanceID := uuid.New().String()
	logger := slog.New(logging.NewTracingLogHandler(slog.NewJSONHandler(os.Stdout, nil))).With("instanceID", instanceID)
	slog.SetDefault(logger)

	fail := func(msg string, args ...any) {
		logger.Error(msg, args...)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conf, err := config.ConfigFromEnv()
	if err != nil {
		fail("Failed to load config", "error", err.Error())
	}
	logger.Info("Loaded config", "config", conf.NonSensitiveString())

	if conf.TelemetryEnabled() {
		shutdownOTel, err := telemetry.SetupOTelSDK(ctx, serviceName)
		if err != nil {
			fail("Failed to set up OpenTelemetry", "error", err.Error())
		}
		defer func() {
			err := shutdownOTel(context.Background())
			if err != nil {
				logger.Error("Failed to shut down OpenTelemetry", "error", err.Error())
			}
		}()
		logger.Info("Initialized OpenTelemetry")
	}

	sentryMiddleware, flush, err := reporting.NewSentryMiddlewareOrMock(conf)
	if err != nil {
		fail("Failed to initialize Sentry", "error", err.Error())
	}
	defer flush()
	logger.Info("Initialized Sentry middleware")

	store, closeStore, err := newAssetStore(ctx, conf, logger)
	if err != nil {
		fail("Failed to initialize asset store", "error", err.Error(), "store", string(conf.StoreKind()))
	}
	defer closeStore()
	logger.Info("Initialized asset store", "store", string(conf.StoreKind()))

	resourceCache, err := cache.New(cache.Config{
		Store:               store,
		Probe:               memoryprobe.NewRuntime(),
		Logger:              logger,
		MemoryCheckInterval: conf.MemoryCheckInterval(),
		UnusedThreshold:     conf.UnusedThreshold(),
		MemoryThresholdMB:   conf.MemoryThresholdMB(),
		MaxConcurrentLoads:  conf.MaxConcurrentLoads(),
	})
	if err != nil {
		fail("Failed to initialize resource cache", "error", err.Error())
	}

	acquireAsset := app.BuildAcquireAsset(resourceCache)
	releaseAsset := app.BuildReleaseAsset(resourceCache)
	getStatus := app.BuildGetStatus(resourceCache)
	getKeyStatus := app.BuildGetKeyStatus(resourceCache)

	acquireRateLimitMiddleware, stopAcquireLimiter := ports.NewClientRateLimitMiddleware(ratelimiting.RefillPerSecond(50), ratelimiting.BurstSize(500))
	defer stopAcquireLimiter()
	releaseRateLimitMiddleware, stopReleaseLimiter := ports.NewClientRateLimitMiddleware(ratelimiting.RefillPerSecond(50), ratelimiting.BurstSize(500))
	defer stopReleaseLimiter()

	mux := http.NewServeMux()
	mux.HandleFunc(
		"POST /v1/acquire/{key...}",
		ports.MakeAcquireHandler(acquireAsset, logger.With("port", "acquire"), sentryMiddleware, acquireRateLimitMiddleware),
	)
	mux.HandleFunc(
		"POST /v1/release/{key...}",
		ports.MakeReleaseHandler(releaseAsset, logger.With("port", "release"), sentryMiddleware, releaseRateLimitMiddleware),
	)
	mux.HandleFunc(
		"GET /v1/status",
		ports.MakeStatusHandler(getStatus, logger.With("port", "status"), sentryMiddleware),
	)
	mux.HandleFunc(
		"GET /v1/status/{key...}",
		ports.MakeKeyStatusHandler(getKeyStatus, logger.With("port", "keystatus"), sentryMiddleware),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", conf.Port()),
		Handler:           otelhttp.NewHandler(mux, serviceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	resourceCache.Start(groupCtx)

	group.Go(func() error {
		logger.Info("Init complete", "port", conf.Port())
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		resourceCache.LogStatus(shutdownCtx)
		resourceCache.Shutdown(shutdownCtx)
		if err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return nil
	})

	err = group.Wait()
	if err != nil {
		logger.Error("Exiting with error", "error", err.Error())
		stop()
		flush()
		os.Exit(1)
	}
	logger.Info("Server shutdown")
}
