package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	APIURL        string        `env:"IMMUN_API_URL" envDefault:"http://localhost:5000"`
	StateDir      string        `env:"IMMUN_STATE_DIR"`
	Locale        string        `env:"IMMUN_LOCALE" envDefault:"en-US"`
	HTTPTimeout   time.Duration `env:"IMMUN_HTTP_TIMEOUT" envDefault:"0s"`
	DashboardAddr string        `env:"IMMUN_DASHBOARD_ADDR" envDefault:"127.0.0.1:8090"`
	LogLevel      string        `env:"IMMUN_LOG_LEVEL" envDefault:"info"`
	LogFormat     string        `env:"IMMUN_LOG_FORMAT" envDefault:"text"`
}

// Load reads the environment. StateDir falls back to ~/.immun.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve state dir: %w", err)
		}
		cfg.StateDir = filepath.Join(home, ".immun")
	}
	return cfg, nil
}

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
