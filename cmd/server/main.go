// Package main runs the rental marketplace API server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	app "github.com/IslandManSwevo/island-rides-api/internal/app"
	"github.com/IslandManSwevo/island-rides-api/internal/app/httpapi"
	"github.com/IslandManSwevo/island-rides-api/internal/app/storage/postgres"
	"github.com/IslandManSwevo/island-rides-api/internal/config"
	"github.com/IslandManSwevo/island-rides-api/internal/platform/migrations"
	"github.com/IslandManSwevo/island-rides-api/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (environment is used when empty)")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	}).WithField("component", "server")

	stores, db, err := openStores(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("storage init failed")
	}
	if db != nil {
		defer db.Close()
	}

	application, err := app.New(cfg, stores, log)
	if err != nil {
		log.WithError(err).Fatal("application init failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Fatal("application start failed")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      httpapi.New(application, log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("API server listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown error")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application stop error")
	}

	log.Info("server stopped")
}

// openStores selects the storage backend. The returned *sql.DB is non-nil
// only for the postgres driver and must be closed by the caller.
func openStores(cfg *config.Config, log *logger.Logger) (app.Stores, *sql.DB, error) {
	switch cfg.Database.Driver {
	case "", "memory":
		log.Warn("using in-memory storage; data is lost on restart")
		return app.Stores{}, nil, nil

	case "postgres":
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return app.Stores{}, nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return app.Stores{}, nil, fmt.Errorf("ping postgres: %w", err)
		}
		if err := migrations.Apply(pingCtx, db); err != nil {
			db.Close()
			return app.Stores{}, nil, fmt.Errorf("apply migrations: %w", err)
		}

		store := postgres.New(db)
		return app.Stores{
			Users:         store,
			Vehicles:      store,
			Bookings:      store,
			Chat:          store,
			Notifications: store,
		}, db, nil

	default:
		return app.Stores{}, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}
