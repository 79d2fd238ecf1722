// Package main is the entry point for the runledger server binary.
// Subcommands are dispatched by a switch on os.Args so the whole CLI surface
// is readable in one place:
//
//	server [serve]                          run the HTTP API (default)
//	server migrate up|down                  apply or roll back schema migrations
//	server migrate force <version>          clear a dirty migration state
//	server version                          print the build version
//	server create-org <name>                provision an organization
//	server create-project <org-id> <name>   provision a project
//	server issue-token <project-id>         issue a project token
//
// Configuration comes from CONFIG_PATH (or the default search path) and RL_*
// environment variables.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/runledger/runledger/internal/api"
	"github.com/runledger/runledger/internal/config"
	"github.com/runledger/runledger/internal/db"
	"github.com/runledger/runledger/internal/safego"
	"github.com/runledger/runledger/internal/telemetry"
)

const usage = `usage: server <command>

commands:
  serve                                 run the HTTP API (default)
  migrate up|down                       apply or roll back schema migrations
  migrate force <version>               clear a dirty migration state
  version                               print the build version
  create-org <name>                     provision an organization
  create-project <org-id> <name>        provision a project
  issue-token <project-id>              issue a project token`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	command := "serve"
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	if command == "version" {
		fmt.Printf("runledger %s\n", api.Version)
		return nil
	}
	if command == "help" || command == "-h" || command == "--help" {
		fmt.Println(usage)
		return nil
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		return migrateCommand(cfg, args)
	case "create-org":
		if len(args) != 1 {
			return errors.New("usage: server create-org <name>")
		}
		return provision(cfg, func(ctx context.Context, svc *api.Services) (any, error) {
			return svc.Tenants.CreateOrganization(ctx, args[0])
		})
	case "create-project":
		if len(args) != 2 {
			return errors.New("usage: server create-project <org-id> <name>")
		}
		return provision(cfg, func(ctx context.Context, svc *api.Services) (any, error) {
			return svc.Tenants.CreateProject(ctx, args[0], args[1])
		})
	case "issue-token":
		if len(args) != 1 {
			return errors.New("usage: server issue-token <project-id>")
		}
		return provision(cfg, func(ctx context.Context, svc *api.Services) (any, error) {
			return svc.Tokens.IssueToken(ctx, args[0])
		})
	default:
		return fmt.Errorf("unknown command: %s\n%s", command, usage)
	}
}

func connect(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	return db.Connect(ctx, cfg.Database.GetDSN(), db.PoolOptions{
		MaxOpen:     cfg.Database.MaxConnections,
		MaxIdle:     cfg.Database.MinIdleConnections,
		MaxLifetime: cfg.Database.ConnMaxLifetime,
	})
}

func serve(cfg *config.Config) error {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"name", cfg.Database.Name,
		"user", cfg.Database.User,
		"ssl_mode", cfg.Database.SSLMode)

	database, err := connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	telemetry.StartDBStatsCollector(ctx, database, 15*time.Second)

	if cfg.Server.AutoMigrate {
		slog.Info("running database migrations")
		if err := db.RunMigrations(database, "up"); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	if version, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to read migration version", "error", err)
	} else {
		slog.Info("database schema", "version", version, "dirty", dirty)
	}

	var metricsServer *http.Server
	if cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		safego.Go("metrics-server", func() {
			slog.Info("starting Prometheus metrics server", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "error", err)
			}
		})
	}

	router, bg, err := api.NewRouter(cfg, database)
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}
	server := &http.Server{
		Addr:              cfg.Server.GetAddress(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	safego.Go("http-server", func() {
		slog.Info("starting server", "addr", server.Addr, "version", api.Version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	})

	select {
	case err := <-serveErr:
		if err != nil {
			bg.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown", "error", err)
		}
	}
	bg.Shutdown()

	slog.Info("server stopped gracefully")
	return nil
}

func migrateCommand(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: server migrate <up|down|force <version>>")
	}

	database, err := connect(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch args[0] {
	case "force":
		if len(args) != 2 {
			return errors.New("usage: server migrate force <version>")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		if err := db.ForceMigrationVersion(database, version); err != nil {
			return err
		}
	default:
		slog.Info("running migrations", "direction", args[0])
		if err := db.RunMigrations(database, args[0]); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return err
	}
	slog.Info("migration completed", "version", version, "dirty", dirty)
	return nil
}

// provision runs one provisioning call against the database and prints its
// result as JSON on stdout.
func provision(cfg *config.Config, call func(ctx context.Context, svc *api.Services) (any, error)) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	database, err := connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	result, err := call(ctx, api.NewServices(cfg, database))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
