// Package main provides the edition server entry point. It serves the
// single-edition token registry, the frontend config/ABI endpoints, health
// probes and Prometheus metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tokenizart/edition/pkg/authz"
	"github.com/tokenizart/edition/pkg/cache"
	"github.com/tokenizart/edition/pkg/edition"
	"github.com/tokenizart/edition/pkg/ha"
	"github.com/tokenizart/edition/pkg/server"
)

const defaultSQLiteDSN = "edition.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

func main() {
	var (
		listenAddr   string
		configPath   string
		databaseType string
		databaseDSN  string
	)

	flag.StringVar(&listenAddr, "listen", envOrDefault("EDITION_LISTEN", ":8080"), "Address to listen on")
	flag.StringVar(&configPath, "config", envOrDefault("EDITION_CONFIG", "/config/edition.yaml"), "Path to edition config")
	flag.StringVar(&databaseType, "db-type", envOrDefault("DATABASE_TYPE", "sqlite"), "Database type (sqlite, postgres or mysql)")
	flag.StringVar(&databaseDSN, "db-dsn", os.Getenv("DATABASE_DSN"), "Database connection string")
	flag.Parse()

	// Initialize glog for backwards compatibility
	_ = flag.Set("logtostderr", "true")

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	editionCfg, err := edition.LoadEditionConfig(configPath)
	if err != nil {
		glog.Fatalf("Failed to load edition config: %v", err)
	}
	variant, err := editionCfg.ResolveVariant()
	if err != nil {
		glog.Fatalf("Invalid edition config: %v", err)
	}

	logger.Info("starting edition server",
		"listen", listenAddr,
		"config", configPath,
		"variant", variant.Name(),
		"dbType", databaseType,
	)

	gormDB, err := setupDatabase(databaseType, databaseDSN)
	if err != nil {
		glog.Fatalf("Failed to connect to database: %v", err)
	}

	store := edition.NewStore(gormDB)
	locker, err := ha.NewMigrationLocker(gormDB, ha.ConfigFromEnv())
	if err != nil {
		glog.Fatalf("Failed to set up migration lock: %v", err)
	}
	if err := locker.WithLock(ctx, store.AutoMigrate); err != nil {
		glog.Fatalf("Failed to migrate database: %v", err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	reg, err := edition.Open(ctx, store, variant,
		edition.WithLogger(logger),
		edition.WithMetrics(edition.NewMetrics(promReg)),
	)
	if err != nil {
		glog.Fatalf("Failed to open registry: %v", err)
	}

	authenticator, err := authz.NewAuthenticator(authz.ConfigFromEnv(), logger)
	if err != nil {
		glog.Fatalf("Failed to configure authentication: %v", err)
	}

	cacheCfg := cache.ConfigFromEnv()
	srv := server.New(reg, gormDB, server.ConfigFromEnv(),
		server.WithAuthenticator(authenticator),
		server.WithCache(cache.NewManager(cacheCfg, cache.NewStats(promReg))),
		server.WithGatherer(promReg),
		server.WithEditionConfig(editionCfg),
		server.WithLogger(logger),
	)

	info, err := reg.Info(ctx)
	if err != nil {
		glog.Fatalf("Failed to read registry state: %v", err)
	}
	logger.Info("edition server ready",
		"listen", listenAddr,
		"deployed", info.Deployed,
		"exists", info.Exists,
		"cache", cacheCfg.Enabled,
	)

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		_ = sqlDB.Close()
	}

	logger.Info("edition server stopped")
}

func setupDatabase(dbType, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dbType {
	case "sqlite", "":
		if dsn == "" {
			dsn = defaultSQLiteDSN
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		if dsn == "" {
			return nil, fmt.Errorf("database DSN is required for postgres (use -db-dsn flag or DATABASE_DSN environment variable)")
		}
		dialector = postgres.Open(dsn)
	case "mysql":
		if dsn == "" {
			return nil, fmt.Errorf("database DSN is required for mysql (use -db-dsn flag or DATABASE_DSN environment variable)")
		}
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown database type %q (expected sqlite, postgres or mysql)", dbType)
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dbType, err)
	}
	return gormDB, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
