package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/iliyamo/auth-session-service/internal/config"
	"github.com/iliyamo/auth-session-service/internal/database"
	"github.com/iliyamo/auth-session-service/internal/handler"
	"github.com/iliyamo/auth-session-service/internal/logger"
	"github.com/iliyamo/auth-session-service/internal/metrics"
	"github.com/iliyamo/auth-session-service/internal/middleware"
	"github.com/iliyamo/auth-session-service/internal/queue"
	"github.com/iliyamo/auth-session-service/internal/ratelimit"
	"github.com/iliyamo/auth-session-service/internal/repository"
	"github.com/iliyamo/auth-session-service/internal/router"
	"github.com/iliyamo/auth-session-service/internal/service"
	"github.com/iliyamo/auth-session-service/internal/store"
)

const purgeInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Must("info", "dev").Fatal("load config", zap.Error(err))
	}
	log := logger.Must(cfg.LogLevel, cfg.Env)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		log.Fatal("connect database", zap.Error(err))
	}
	defer db.Close()
	if cfg.DB.Migrate {
		if err := database.Migrate(db); err != nil {
			log.Fatal("run migrations", zap.Error(err))
		}
	}

	rdb, err := config.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("connect redis", zap.Error(err))
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	timeout := cfg.RateLimit.StoreTimeout
	counters := store.NewCounter(rdb, cfg.RateLimit.Prefix, timeout)
	cooldowns := store.NewCounter(rdb, "cooldown", timeout)
	codes := store.NewCodeStore(rdb, "code", cfg.Redis.Timeout)
	resets := store.NewResetStore(rdb, "reset", cfg.Redis.Timeout)

	var notifier service.CodeNotifier = queue.NewLogNotifier(log)
	if cfg.AMQP.Enabled() {
		notifier = queue.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Queue, log)
		if cfg.AMQP.ConsumerEnabled {
			consumer := queue.NewConsumer(cfg.AMQP.URL, cfg.AMQP.Queue, cfg.AMQP.MailLogDir, log)
			go func() {
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("code consumer stopped", zap.Error(err))
				}
			}()
		}
	}

	users := repository.NewUserRepo(db)
	tokenSvc := service.NewTokenService(cfg.Auth, repository.NewTokenRepo(db), users, log, m, time.Now)
	codeSvc := service.NewCodeService(codes, cooldowns, cfg.Codes, log, m, time.Now)
	resetAuth := service.NewResetAuthorizer(resets, cfg.Auth.ResetAuthTTL, time.Now)
	authSvc := service.NewAuthService(users, tokenSvc, codeSvc, resetAuth, notifier, cfg.Auth.BcryptCost, log)

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(counters, cfg.RateLimit, log, ratelimit.WithMetrics(m))
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(log)
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log))

	router.RegisterRoutes(e, router.Deps{
		Auth:    handler.NewAuthHandler(authSvc, handler.NewCookies(cfg.Auth), cfg.RequestTimeout),
		Authn:   authSvc,
		Limiter: limiter,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	})

	go purgeExpired(ctx, tokenSvc, log)

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}

// purgeExpired removes long-dead refresh records until ctx is cancelled.
func purgeExpired(ctx context.Context, tokens *service.TokenService, log *zap.Logger) {
	t := time.NewTicker(purgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := tokens.PurgeExpired(ctx)
			if err != nil {
				log.Warn("purge expired refresh tokens", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("purged expired refresh tokens", zap.Int64("count", n))
			}
		}
	}
}
