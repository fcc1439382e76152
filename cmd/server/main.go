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

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aryan0dhankhar/mesledger/internal/handler"
	"github.com/aryan0dhankhar/mesledger/internal/infrastructure/idgen"
	"github.com/aryan0dhankhar/mesledger/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/mesledger/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/mesledger/internal/observability/metrics"
	"github.com/aryan0dhankhar/mesledger/internal/observability/tracing"
	"github.com/aryan0dhankhar/mesledger/internal/repository"
	"github.com/aryan0dhankhar/mesledger/internal/security"
	"github.com/aryan0dhankhar/mesledger/internal/security/audit"
	"github.com/aryan0dhankhar/mesledger/internal/security/auth"
	"github.com/aryan0dhankhar/mesledger/internal/security/middleware"
	"github.com/aryan0dhankhar/mesledger/internal/security/ratelimit"
	"github.com/aryan0dhankhar/mesledger/internal/service"
	"github.com/aryan0dhankhar/mesledger/internal/worker"
	"github.com/aryan0dhankhar/mesledger/pkg/config"
)

const maxBodyBytes = 1 << 20

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger and tracing
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting MES ledger server",
		slog.String("environment", cfg.Environment),
		slog.String("store", cfg.StoreDriver),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, log, "mesledger", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ids, err := idgen.New(cfg.SnowflakeNode)
	if err != nil {
		log.Error("invalid snowflake node", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 3. Open the document store
	store, closeStore, err := repository.Open(ctx, cfg, ids, log)
	if err != nil {
		log.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Redis is optional; without it codes are serialized in process.
	var (
		locker service.CodeLocker
		pinger handler.Pinger
	)
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Warn("redis unavailable, using local code locks", slog.String("error", err.Error()))
		} else {
			defer redisClient.Close()
			locker, pinger = redisClient, redisClient
		}
	}

	// 5. Initialize repositories and services
	users := repository.NewUserRepository(store, log)
	if res, err := service.Bootstrap(ctx, users, log); err != nil {
		log.Error("failed to seed default accounts", slog.String("error", err.Error()))
	} else if len(res.Created) > 0 {
		log.Warn("default accounts created, change their passwords", slog.Any("usernames", res.Created))
	}

	authz := security.NewAuthorizationService(log)
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, "mesledger", cfg.TokenTTL)
	auditLogger := audit.NewLogger(log)
	codes := service.NewCodeGenerator(store, locker, cfg.CodeLockTTL, log)

	// 6. Initialize handlers
	handlers := &handler.Handlers{
		Auth:      handler.NewAuthHandler(service.NewAuthService(users, tokenManager, authz, log), log),
		Records:   handler.NewRecordsHandler(service.NewRecordService(store, codes, authz, log), log),
		Issuances: handler.NewIssuanceHandler(service.NewIssuanceService(store, codes, authz, auditLogger, log), log),
		Stats:     handler.NewStatsHandler(service.NewStatsService(store, authz, log), cfg.CORSAllowedOrigins, cfg.DashboardInterval, log),
		Health:    handler.NewHealthHandler(store, pinger, log),
	}

	// 7. Setup HTTP routes
	mux := http.NewServeMux()
	handlers.Register(mux, authz)
	mux.Handle("GET /metrics", promhttp.Handler())

	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerMinute, time.Minute)

	// Chain middleware: request ID -> CORS -> JWT -> rate limit -> audit -> timeout -> body checks -> metrics
	var root http.Handler = metrics.HTTPMetricsMiddleware(mux)
	root = middleware.LimitBody(maxBodyBytes)(root)
	root = middleware.ValidateJSONContentType(log)(root)
	root = middleware.Timeout(cfg.RequestTimeout)(root)
	root = middleware.AuditMiddleware(auditLogger)(root)
	root = middleware.RateLimitMiddleware(rateLimiter, log)(root)
	root = middleware.JWTMiddleware(tokenManager, log)(root)
	root = withCORS(root, cfg.CORSAllowedOrigins)
	root = withRequestID(root, log)
	root = otelhttp.NewHandler(root, "http.server")

	// 8. Start the stock worker in background
	go worker.NewStockWorker(store, log, cfg.StockScanInterval).Start(ctx)

	// 9. Start HTTP server. WriteTimeout stays zero so the live dashboard
	// websocket is not cut; handlers are bounded by middleware.Timeout.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("auth", "jwt"),
		slog.Int("rate_limit", cfg.RateLimitPerMinute),
		slog.Bool("redis", locker != nil),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.String("error", err.Error()))
			sigChan <- syscall.SIGTERM
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}
	cancel() // Stop stock worker
	rateLimiter.Stop()
	if err := closeStore(shutdownCtx); err != nil {
		log.Error("failed to close store", slog.String("error", err.Error()))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("failed to flush traces", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

// withRequestID attaches a request ID to the context and response headers for traceability
func withRequestID(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(audit.WithRequestID(r.Context(), reqID)))

		log.Info("request completed",
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

// withCORS honors the configured origins and answers preflight requests.
func withCORS(next http.Handler, allowed []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if originAllowed(allowed, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if len(allowed) > 0 {
			w.Header().Set("Access-Control-Allow-Origin", allowed[0])
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Content-Disposition")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
