package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/Skotchmaster/lms/internal/migrate"
	"github.com/Skotchmaster/lms/pkg/config"
	"github.com/Skotchmaster/lms/pkg/logging"
)

func main() {
	dir := flag.String("dir", "migrations", "directory holding one sub-directory of .sql files per service")
	service := flag.String("service", "", "apply only this service's migrations")
	flag.Parse()

	config.LoadEnvFiles(".env")
	logger := logging.New(config.EnvDefault("LOG_LEVEL", "info")).With("service", "migrate")
	dsn := config.MustNonEmpty(os.Getenv("DATABASE_URL"), "DATABASE_URL")

	os.Exit(run(logger, dsn, *dir, *service))
}

func run(logger *slog.Logger, dsn, dir, service string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("db_open_failed", "error", err)
		return 1
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		logger.Error("db_ping_failed", "error", err)
		return 1
	}

	r := &migrate.Runner{DB: db, FS: os.DirFS(dir), Logger: logger}
	rep, err := r.Run(ctx, service)
	if err != nil {
		logger.Error("migrate_failed", "applied", len(rep.Applied), "error", err)
		return 1
	}
	logger.Info("migrate_done", "applied", len(rep.Applied), "skipped", rep.Skipped)
	return 0
}
