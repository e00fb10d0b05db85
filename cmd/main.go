package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"marketplace-service/internal/api"
	"marketplace-service/internal/cache"
	"marketplace-service/internal/catalog"
	"marketplace-service/internal/config"
	"marketplace-service/internal/fields"
	"marketplace-service/internal/logging"
	"marketplace-service/internal/metrics"
	"marketplace-service/internal/objectstore"
	"marketplace-service/internal/store"
)

const serviceName = "MarketplaceService"

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info(".env file not found, relying on system environment")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Error loading configuration", "err", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel)
	logger.Info("Starting service", "app_env", cfg.AppEnv, "log_level", cfg.LogLevel)

	// --- Database Connection ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN())
	if err != nil {
		logger.Error("Failed to initialize database connection", "err", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		logger.Error("Failed to ping database", "err", err)
		os.Exit(1)
	}
	logger.Info("Database connection established")
	dbStore := store.NewPostgresStore(db)

	// --- Field definition cache (optional) ---
	var defCache fields.DefinitionCache
	var redisCache *cache.Cache
	if cfg.Redis.Addr != "" {
		redisCache = cache.New(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}), cfg.Redis.Prefix, cfg.Redis.TTL)
		if err := redisCache.Ping(pingCtx); err != nil {
			logger.Warn("Redis unavailable, field definitions are read from the database only", "err", err)
		}
		defCache = cache.NewFieldDefinitions(redisCache)
	} else {
		logger.Info("REDIS_ADDR not set, field definition cache disabled")
	}

	// --- Object storage ---
	objects, err := objectstore.Connect(pingCtx, objectstore.Config{
		URL:             cfg.NATS.URL,
		TempBucket:      cfg.NATS.TempBucket,
		PublicBucket:    cfg.NATS.PublicBucket,
		TempURLPrefix:   cfg.NATS.TempURLPrefix,
		PublicURLPrefix: cfg.NATS.PublicURLPrefix,
	})
	if err != nil {
		logger.Error("Failed to connect to object storage", "err", err)
		os.Exit(1)
	}

	// --- Domain services ---
	appMetrics := metrics.New()
	if redisCache != nil {
		appMetrics.RegisterCache(redisCache)
	}
	registry := fields.NewDefaultRegistry(db, fields.PhotoOptions{
		Storage:         appMetrics.InstrumentStorage(objects),
		TempURLPrefix:   cfg.NATS.TempURLPrefix,
		PublicURLPrefix: cfg.NATS.PublicURLPrefix,
		Limiter:         rate.NewLimiter(rate.Limit(cfg.NATS.MovesPerSecond), 1),
	})
	definitions := fields.NewDefinitionService(dbStore, registry, defCache)
	products := catalog.NewService(dbStore, dbStore, definitions, registry, catalog.Options{
		FilterWorkers:    cfg.Listing.FilterWorkers,
		HydrationWorkers: cfg.Listing.HydrationWorkers,
	})
	limits := api.ListingLimits{DefaultLimit: cfg.Listing.DefaultLimit, MaxLimit: cfg.Listing.MaxLimit}

	// --- Initialize API Handlers ---
	httpAPIHandler := api.NewHTTPHandler(products, definitions, registry, objects,
		api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.AdminRole),
		api.Options{
			Listing:        limits,
			MaxUploadBytes: cfg.HttpServer.MaxUploadMB << 20,
			Metrics:        appMetrics,
		})
	grpcAPIHandler := api.NewGRPCHandler(products, limits)

	// --- Setup & Start HTTP Server ---
	httpRouter := chi.NewRouter()
	setupBaseMiddleware(httpRouter, appMetrics)
	registerHealthCheck(httpRouter, db, redisCache)
	httpRouter.Handle("/metrics", appMetrics.Handler())
	httpAPIHandler.RegisterRoutes(httpRouter)

	httpServer := &http.Server{
		Addr:         ":" + cfg.HttpServer.Port,
		Handler:      httpRouter,
		ReadTimeout:  cfg.HttpServer.TimeoutRead,
		WriteTimeout: cfg.HttpServer.TimeoutWrite,
		IdleTimeout:  cfg.HttpServer.TimeoutIdle,
	}

	go func() {
		logger.Info("HTTP server listening", "port", cfg.HttpServer.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server ListenAndServe error", "err", err)
			os.Exit(1)
		}
		logger.Info("HTTP server has stopped")
	}()

	// --- Setup & Start gRPC Server ---
	grpcServer := setupGRPCServer(grpcAPIHandler)
	grpcListener, err := net.Listen("tcp", ":"+cfg.GrpcServer.Port)
	if err != nil {
		logger.Error("Failed to listen for gRPC", "port", cfg.GrpcServer.Port, "err", err)
		os.Exit(1)
	}

	go func() {
		logger.Info("gRPC server listening", "port", cfg.GrpcServer.Port)
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("gRPC server Serve error", "err", err)
			os.Exit(1)
		}
		logger.Info("gRPC server has stopped")
	}()

	// --- Graceful Shutdown ---
	shutdownComplete := make(chan struct{})
	go waitForShutdown(httpServer, grpcServer, func() {
		objects.Close()
		if redisCache != nil {
			if err := redisCache.Close(); err != nil {
				slog.Warn("Error closing Redis client", "err", err)
			}
		}
		if err := dbStore.Close(); err != nil {
			slog.Warn("Error closing database connection", "err", err)
		}
	}, shutdownComplete)

	<-shutdownComplete
	logger.Info("Service shutdown sequence finished")
}

func setupBaseMiddleware(router *chi.Mux, m *metrics.Metrics) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(m.Middleware)
	router.Use(middleware.Timeout(60 * time.Second))
}

func registerHealthCheck(router *chi.Mux, db *sql.DB, redisCache *cache.Cache) {
	router.Get("/api/v1/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		dbStatus := "healthy"
		if err := db.PingContext(ctx); err != nil {
			dbStatus = "unhealthy"
			slog.WarnContext(ctx, "Health check DB ping failed", "err", err)
		}
		cacheStatus := "disabled"
		if redisCache != nil {
			cacheStatus = "healthy"
			if err := redisCache.Ping(ctx); err != nil {
				cacheStatus = "unhealthy"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":      "healthy",
			"serviceName": serviceName,
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"database":    dbStatus,
			"cache":       cacheStatus,
		})
	})
}

func setupGRPCServer(grpcAPIHandler *api.GRPCHandler) *grpc.Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(api.LoggingInterceptor))

	api.RegisterProductListingServer(s, grpcAPIHandler)
	grpc_health_v1.RegisterHealthServer(s, health.NewServer())
	reflection.Register(s)
	slog.Info("gRPC services registered", "service", api.ProductListingServiceDesc.ServiceName)

	return s
}

func waitForShutdown(httpServer *http.Server, grpcServer *grpc.Server, closeResources func(), shutdownComplete chan struct{}) {
	defer close(shutdownComplete)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	receivedSignal := <-sigChan
	slog.Info("Received signal, starting graceful shutdown", "signal", receivedSignal.String())

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	stoppedGrpc := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedGrpc)
	}()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server graceful shutdown failed", "err", err)
	} else {
		slog.Info("HTTP server gracefully shut down")
	}

	select {
	case <-stoppedGrpc:
		slog.Info("gRPC server gracefully shut down")
	case <-shutdownCtx.Done():
		slog.Warn("gRPC server graceful shutdown timed out, forcing stop", "err", shutdownCtx.Err())
		grpcServer.Stop()
	}

	closeResources()
	slog.Info("Graceful shutdown sequence completed")
}
