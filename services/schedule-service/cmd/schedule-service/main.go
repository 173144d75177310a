package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/thatsmartsite/schedule/libs/auth"
	"github.com/thatsmartsite/schedule/libs/config"
	"github.com/thatsmartsite/schedule/libs/db"
	"github.com/thatsmartsite/schedule/libs/httpx"
	"github.com/thatsmartsite/schedule/libs/kafkax"
	otelx "github.com/thatsmartsite/schedule/libs/otel"
	"github.com/thatsmartsite/schedule/libs/runtime"
	"github.com/thatsmartsite/schedule/services/schedule-service/internal/handlers"
	"github.com/thatsmartsite/schedule/services/schedule-service/internal/outbox"
	"github.com/thatsmartsite/schedule/services/schedule-service/internal/storage"
	"github.com/thatsmartsite/schedule/services/schedule-service/internal/tenant"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "schedule-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	repo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	tenantProvider, err := tenant.NewProvider(config.String("TENANT_GRPC_ADDR", ""))
	if err != nil {
		logger.Error("tenant provider init failed; using local defaults", "err", err)
		tenantProvider = nil
	}

	jwtSecret := config.String("JWT_SECRET", "dev-secret")
	var jwksClient *auth.JWKSClient
	if jwksURL := config.String("JWKS_URL", ""); jwksURL != "" {
		jwksTTL, err := strconv.Atoi(config.String("JWKS_CACHE_SECONDS", "300"))
		if err != nil || jwksTTL <= 0 {
			jwksTTL = 300
		}
		jwksClient = auth.NewJWKSClient(jwksURL, time.Duration(jwksTTL)*time.Second)
	}
	scheduleHandler := handlers.NewScheduleHandler(repo, outboxRepo, logger, tenantProvider, jwtSecret, jwksClient)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	scheduleHandler.Register(mux)

	limitPerMinute := 120
	if v, err := strconv.Atoi(config.String("RATE_LIMIT_PER_MINUTE", "120")); err == nil && v > 0 {
		limitPerMinute = v
	}
	var rateLimitMW httpx.Middleware
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
		})
		defer func() { _ = rdb.Close() }()
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "schedule"))
		rateLimitMW = rl.Middleware(logger, true)
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,PUT,PATCH,DELETE,OPTIONS")),
			AllowedHeaders: parseList(config.String("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id")),
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "schedule")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func parseList(raw string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
