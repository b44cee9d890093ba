package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/hackforge/hackauth"
	"github.com/hackforge/hackauth/account"
	"github.com/hackforge/hackauth/account/memstore"
	"github.com/hackforge/hackauth/account/postgres"
	"github.com/hackforge/hackauth/httpapi"
	otelexport "github.com/hackforge/hackauth/metrics/export/otel"
)

func openDatabase(ctx context.Context, cfg serverConfig) (*sql.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.DBOpTimeout)
	defer cancel()
	return postgres.Open(ctx, cfg.DatabaseURL)
}

func serve(parent context.Context, cfg serverConfig, migrate bool) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, err := cfg.Redis.Options()
	if err != nil {
		return err
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	var (
		accounts account.Store
		sink     hackauth.AuditSink = hackauth.NewLogrusSink(logger)
		db       *sql.DB
	)
	if cfg.DatabaseURL != "" {
		db, err = openDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				return err
			}
		}
		accounts = postgres.NewStore(db, postgres.WithOpTimeout(cfg.DBOpTimeout))
		sink = hackauth.MultiSink{sink, postgres.NewAuditSink(db, logger)}
	} else {
		logger.Warn("DATABASE_URL not set; accounts are kept in memory")
		accounts = memstore.New()
	}

	engine, err := hackauth.New().
		WithConfig(cfg.Config).
		WithRedis(rdb).
		WithAccountStore(accounts).
		WithAuditSink(sink).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	exporter, err := otelexport.NewExporter(otel.Meter("github.com/hackforge/hackauth"), engine)
	if err != nil {
		return err
	}
	defer exporter.Close()

	api := httpapi.New(engine, httpapi.Config{
		APIPrefix:   cfg.APIPrefix,
		FrontendURL: cfg.FrontendURL,
		Production:  cfg.Production,
		Health: func(ctx context.Context) error {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return err
			}
			if db != nil {
				ctx, cancel := context.WithTimeout(ctx, cfg.DBOpTimeout)
				defer cancel()
				return db.PingContext(ctx)
			}
			return nil
		},
	}, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.HTTPTimeout,
		WriteTimeout:      cfg.HTTPTimeout,
		IdleTimeout:       2 * cfg.HTTPTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":      cfg.HTTPAddr,
			"prefix":    cfg.APIPrefix,
			"providers": engine.OAuthProviders(),
			"version":   version,
		}).Info("hackauthd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
