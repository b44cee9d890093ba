package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"

	"github.com/hackforge/hackauth"
)

// serverConfig is the engine configuration plus the process-level settings
// of the binary.
type serverConfig struct {
	hackauth.Config

	FrontendURL     string        `env:"FRONTEND_URL"`
	APIPrefix       string        `env:"API_PREFIX" envDefault:"/api"`
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	Production      bool          `env:"PRODUCTION"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	DBOpTimeout     time.Duration `env:"DB_OP_TIMEOUT" envDefault:"5s"`
	HTTPTimeout     time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

func loadServerConfig() (serverConfig, error) {
	cfg := serverConfig{Config: hackauth.DefaultConfig()}
	if err := env.Parse(&cfg); err != nil {
		return serverConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c serverConfig) validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if c.DBOpTimeout <= 0 {
		return errors.New("DB_OP_TIMEOUT must be > 0")
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("HTTP_TIMEOUT must be > 0")
	}
	if c.Production && c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required in production")
	}
	if c.Production && !strings.HasPrefix(c.FrontendURL, "https://") && c.FrontendURL != "" {
		return errors.New("FRONTEND_URL must use https in production")
	}
	return nil
}

func newLogger(level, format string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "json", "":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("LOG_FORMAT %q is not supported", format)
	}
	return logger, nil
}
