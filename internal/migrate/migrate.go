// Package migrate applies the per-service SQL files under migrations/. Each file
// runs in its own transaction together with its history row, so a file is
// either fully applied and recorded or not at all.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
)

const historyDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
    service    TEXT        NOT NULL,
    filename   TEXT        NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (service, filename)
)`

type Runner struct {
	DB     *sql.DB
	FS     fs.FS
	Logger *slog.Logger
}

// FileError names the migration that failed.
type FileError struct {
	Service string
	File    string
	Err     error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("migration %s/%s: %v", e.Service, e.File, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

type Report struct {
	Applied []string
	Skipped int
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Services lists the service directories in name order. A non-empty only
// restricts the result to that service.
func (r *Runner) Services(only string) ([]string, error) {
	entries, err := fs.ReadDir(r.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if only != "" && e.Name() != only {
			continue
		}
		out = append(out, e.Name())
	}
	if only != "" && len(out) == 0 {
		return nil, fmt.Errorf("no migrations for service %q", only)
	}
	sort.Strings(out)
	return out, nil
}

func (r *Runner) files(service string) ([]string, error) {
	entries, err := fs.ReadDir(r.FS, service)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *Runner) applied(ctx context.Context, service string) (map[string]bool, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT filename FROM schema_migrations WHERE service = $1`, service)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

// Run applies every pending file and stops at the first failure.
func (r *Runner) Run(ctx context.Context, only string) (Report, error) {
	var rep Report

	if _, err := r.DB.ExecContext(ctx, historyDDL); err != nil {
		return rep, fmt.Errorf("create schema_migrations: %w", err)
	}

	services, err := r.Services(only)
	if err != nil {
		return rep, err
	}

	for _, svc := range services {
		files, err := r.files(svc)
		if err != nil {
			return rep, fmt.Errorf("list %s migrations: %w", svc, err)
		}
		done, err := r.applied(ctx, svc)
		if err != nil {
			return rep, fmt.Errorf("read %s history: %w", svc, err)
		}

		for _, name := range files {
			if done[name] {
				rep.Skipped++
				continue
			}
			if err := r.apply(ctx, svc, name); err != nil {
				r.logger().Error("migration_failed", "service", svc, "file", name, "error", err)
				return rep, &FileError{Service: svc, File: name, Err: err}
			}
			r.logger().Info("migration_applied", "service", svc, "file", name)
			rep.Applied = append(rep.Applied, svc+"/"+name)
		}
	}
	return rep, nil
}

func (r *Runner) apply(ctx context.Context, service, name string) error {
	body, err := fs.ReadFile(r.FS, path.Join(service, name))
	if err != nil {
		return err
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (service, filename) VALUES ($1, $2)`, service, name,
	); err != nil {
		return err
	}
	return tx.Commit()
}
