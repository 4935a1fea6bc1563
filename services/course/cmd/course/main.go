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
	"github.com/Skotchmaster/lms/pkg/db"
	"github.com/Skotchmaster/lms/pkg/events"
	"github.com/Skotchmaster/lms/pkg/logging"
	"github.com/Skotchmaster/lms/pkg/metrics"
	authmw "github.com/Skotchmaster/lms/pkg/middleware/auth"
	loggingmw "github.com/Skotchmaster/lms/pkg/middleware/logging"
	"github.com/Skotchmaster/lms/pkg/revocation"
	"github.com/Skotchmaster/lms/pkg/tokens"
	"github.com/Skotchmaster/lms/services/course/internal/config"
	"github.com/Skotchmaster/lms/services/course/internal/httpserver"
	"github.com/Skotchmaster/lms/services/course/internal/repo"
	"github.com/Skotchmaster/lms/services/course/internal/search"
	"github.com/Skotchmaster/lms/services/course/internal/service"
	"github.com/Skotchmaster/lms/services/course/internal/stats"
)

func main() {
	pkgconfig.LoadEnvFiles(".env", "services/course/.env")
	cfg := config.Load()
	pkgconfig.MustValid("course", cfg.Validate())

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	gdb, err := db.Open(initCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	defer db.Close(gdb)

	courseRepo := &repo.GormRepo{DB: gdb}

	var index search.Index = search.DB{Repo: courseRepo}
	if cfg.ESURL != "" {
		es, err := search.NewElastic(initCtx, search.ElasticConfig{
			URL:      cfg.ESURL,
			Username: cfg.ESUser,
			Password: cfg.ESPassword,
			Index:    cfg.ESIndex,
		})
		if err != nil {
			logger.Warn("elasticsearch_unavailable", "fallback", "database", "error", err)
		} else {
			if err := es.EnsureIndex(initCtx); err != nil {
				logger.Warn("elasticsearch_index_failed", "error", err)
			}
			index = es
		}
	}

	var denylist revocation.Denylist
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		denylist = revocation.NewRedisDenylist(rdb)
	} else {
		logger.Warn("redis_disabled", "reason", "REDIS_ADDR not set, logged-out tokens stay valid here until expiry")
	}

	publisher := events.FromBrokers(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer publisher.Close()

	reconciler := &stats.Reconciler{DB: gdb, Search: index, Logger: logger}
	scheduler, err := reconciler.Schedule(cfg.StatsSchedule)
	if err != nil {
		log.Fatalf("stats reconciler: %v", err)
	}
	go func() {
		n, err := reconciler.RunOnce(context.Background())
		if err != nil {
			logger.Error("stats_reconcile_failed", "error", err)
			return
		}
		logger.Info("stats_reconciled", "repaired", n, "at", "startup")
	}()

	svc := &service.CourseService{
		Repo:     courseRepo,
		Counters: &stats.Counters{DB: gdb},
		Search:   index,
		Events:   publisher,
	}

	resolver := &authmw.JWTResolver{
		Issuer: &tokens.Issuer{
			AccessSecret:  cfg.JWTAccessSecret,
			RefreshSecret: cfg.JWTRefreshSecret,
			AccessTTL:     cfg.AccessTTL,
			RefreshTTL:    cfg.RefreshTTL,
			Name:          "lms-auth",
		},
		Denylist: denylist,
	}

	m := metrics.New("course")

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
		CourseHandler: &httpserver.CourseHTTP{Svc: svc},
		Authn:         authmw.NewAuthenticator(resolver, authmw.GormProfiles{DB: gdb}),
		Metrics:       m,
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
	<-scheduler.Stop().Done()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo_shutdown_failed", "error", err)
	}
}
