package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"

	"github.com/rovergate/rovergate/internal/access"
	"github.com/rovergate/rovergate/internal/api"
	"github.com/rovergate/rovergate/internal/config"
	"github.com/rovergate/rovergate/internal/fleet"
	"github.com/rovergate/rovergate/internal/idempotency"
	"github.com/rovergate/rovergate/internal/lease"
	"github.com/rovergate/rovergate/internal/metrics"
	"github.com/rovergate/rovergate/internal/payment"
	"github.com/rovergate/rovergate/internal/rover"
	"github.com/rovergate/rovergate/internal/wallet"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	robots, closeRobots, err := newRobotStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("robot catalog init failed", "error", err)
		os.Exit(1)
	}
	defer closeRobots()

	leases := lease.New(cfg.SessionDuration, lease.WithOnExpire(func(expired lease.Lease) {
		metrics.SessionsExpired.Inc()
		logger.Info("session expired", "wallet", wallet.Mask(expired.Holder), "rover", expired.Resource)
	}))

	rovers := rover.NewHTTPClient(cfg.RobotTimeout)
	accessSvc := access.NewService(leases, logger)

	opts := api.Options{
		Idempotency:     newIdempotencyStore(cfg, logger),
		Logger:          logger,
		SessionPrice:    cfg.SessionPrice,
		PaymentEnabled:  cfg.PaymentEnabled,
		PaymentNetwork:  cfg.PaymentNetwork,
		PaymentAddress:  cfg.PaymentAddress,
		CORSOrigins:     cfg.CORSOrigins,
		FrameInterval:   cfg.CameraFrameInterval,
		RateLimitPerMin: cfg.RateLimitPerMin,
		IdempotencyTTL:  cfg.IdempotencyTTL,
		IdempotencyLock: cfg.IdempotencyLockTTL,
	}
	if cfg.EthRPCURL != "" {
		opts.Resolver = wallet.NewResolver(cfg.EthRPCURL, cfg.RobotTimeout, logger)
	}
	if cfg.PaymentEnabled {
		opts.Verifier = payment.NewFacilitatorVerifier(cfg.FacilitatorURL, cfg.RobotTimeout, logger)
		logger.Info("payments enabled", "network", cfg.PaymentNetwork, "price", cfg.SessionPrice)
	}

	server := api.NewServer(accessSvc, rovers, robots, opts)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      server.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("rovergate listening", "addr", cfg.HTTPAddr, "session_duration", cfg.SessionDuration)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownHTTP(httpServer, logger)
}

func newLogger(cfg config.Config) *slog.Logger {
	level := parseLogLevel(cfg.LogLevel)
	var handler slog.Handler
	if cfg.LogJSON {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
		})
	}
	return slog.New(handler)
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newRobotStore picks the catalog backend: Postgres when POSTGRES_DSN is set,
// in-memory otherwise.
func newRobotStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (fleet.Store, func(), error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		logger.Info("robot catalog in memory; set POSTGRES_DSN to persist")
		return fleet.NewInMemoryStore(), func() {}, nil
	}

	store, err := fleet.NewPostgresStore(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("robot catalog backed by postgres")
	return store, store.Close, nil
}

// newIdempotencyStore picks the purchase replay backend: Redis when
// REDIS_ADDR is set so replays survive restarts and replicas, in-memory
// otherwise.
func newIdempotencyStore(cfg config.Config, logger *slog.Logger) idempotency.Store {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return idempotency.NewInMemoryStore()
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	logger.Info("idempotency store backed by redis", "addr", cfg.RedisAddr)
	return idempotency.NewRedisStore(client, "")
}

func shutdownHTTP(server *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
