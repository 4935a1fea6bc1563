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

	"github.com/Skotchmaster/lms/gateway/internal/config"
	"github.com/Skotchmaster/lms/gateway/internal/httpserver"
	"github.com/Skotchmaster/lms/gateway/internal/middleware"
	"github.com/Skotchmaster/lms/pkg/apperr"
	pkgconfig "github.com/Skotchmaster/lms/pkg/config"
	"github.com/Skotchmaster/lms/pkg/logging"
	"github.com/Skotchmaster/lms/pkg/metrics"
)

func main() {
	pkgconfig.LoadEnvFiles(".env", "gateway/.env")
	cfg := config.Load()
	pkgconfig.MustValid("gateway", cfg.Validate())

	logger := logging.New(cfg.LogLevel).With("service", "gateway")
	m := metrics.New("gateway")
	counter := middleware.NewRequestCounter(m.Registry)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = apperr.Handler
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 35 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	e.Use(middleware.Common(logger, m, counter, cfg.CORSOrigin)...)

	if err := httpserver.Register(e, &httpserver.Deps{
		AuthURL:   cfg.AuthURL,
		CourseURL: cfg.CourseURL,
		Metrics:   m,
	}); err != nil {
		log.Fatal(err)
	}

	go func() {
		logger.Info("server_starting", "addr", cfg.Addr())
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}
