package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/lms/pkg/apperr"
	pkgconfig "github.com/Skotchmaster/lms/pkg/config"
	"github.com/Skotchmaster/lms/pkg/cookies"
	"github.com/Skotchmaster/lms/pkg/db"
	"github.com/Skotchmaster/lms/pkg/events"
	"github.com/Skotchmaster/lms/pkg/logging"
	"github.com/Skotchmaster/lms/pkg/metrics"
	authmw "github.com/Skotchmaster/lms/pkg/middleware/auth"
	loggingmw "github.com/Skotchmaster/lms/pkg/middleware/logging"
	"github.com/Skotchmaster/lms/pkg/revocation"
	"github.com/Skotchmaster/lms/pkg/tokens"
	"github.com/Skotchmaster/lms/services/auth/internal/config"
	"github.com/Skotchmaster/lms/services/auth/internal/httpserver"
	"github.com/Skotchmaster/lms/services/auth/internal/identity"
	"github.com/Skotchmaster/lms/services/auth/internal/repo"
	"github.com/Skotchmaster/lms/services/auth/internal/service"
)

func main() {
	pkgconfig.LoadEnvFiles(".env", "services/auth/.env")
	cfg := config.Load()
	pkgconfig.MustValid("auth", cfg.Validate())

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	gdb, err := db.Open(initCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	defer db.Close(gdb)

	var (
		denylist revocation.Denylist = revocation.NewMemoryDenylist()
		resets   identity.ResetStore = identity.NewMemoryResetStore()
		rdb      *redis.Client
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		denylist = revocation.NewRedisDenylist(rdb)
		resets = identity.NewRedisResetStore(rdb)
	} else {
		logger.Warn("redis_disabled", "reason", "REDIS_ADDR not set, revocations are process-local")
	}

	publisher := events.FromBrokers(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer publisher.Close()

	gormRepo := &repo.GormRepo{DB: gdb}
	provider := &identity.Local{
		Repo: gormRepo,
		Issuer: &tokens.Issuer{
			AccessSecret:  cfg.JWTAccessSecret,
			RefreshSecret: cfg.JWTRefreshSecret,
			AccessTTL:     cfg.AccessTTL,
			RefreshTTL:    cfg.RefreshTTL,
			Name:          "lms-auth",
		},
		Denylist: denylist,
		Resets:   resets,
		Events:   publisher,
		ResetURL: cfg.ResetPageURL,
		Cost:     cfg.BcryptCost,
	}
	svc := &service.AuthService{Provider: provider, Profiles: gormRepo, Events: publisher}

	if cfg.SeedDemoUsers {
		seedCtx := logging.IntoContext(context.Background(), logger)
		if err := svc.SeedDemoUsers(seedCtx, service.DemoAccounts); err != nil {
			logger.Error("seed_failed", "error", err)
		}
	}

	m := metrics.New("auth")

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = apperr.Handler
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	e.Use(middleware.Recover())
	e.Use(loggingmw.RequestLogger(logger))
	e.Use(m.Middleware)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowCredentials: true,
	}))

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler: &httpserver.AuthHTTP{Svc: svc, Cookies: cookies.Policy{Production: cfg.Production()}},
		Authn:       authmw.NewAuthenticator(provider, authmw.GormProfiles{DB: gdb}),
		Metrics:     m,
		Ready: func() error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := sqlDB.PingContext(ctx); err != nil {
				return err
			}
			if rdb != nil {
				return rdb.Ping(ctx).Err()
			}
			return nil
		},
	})

	go func() {
		logger.Info("server_starting", "addr", cfg.Addr())
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("echo start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo_shutdown_failed", "error", err)
	}
}
