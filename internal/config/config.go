// Package config reads the daemon configuration from the environment, after
// loading an optional .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/hyperboria-dev/cjdns/internal/database"
	"github.com/hyperboria-dev/cjdns/internal/level"
	"github.com/hyperboria-dev/cjdns/internal/logging"
	"github.com/hyperboria-dev/cjdns/internal/logstream"
	"github.com/hyperboria-dev/cjdns/internal/redis"
)

const DefaultAdminAddr = "127.0.0.1:11234"

type Config struct {
	AdminAddr     string
	AdminPassword string

	Log              logstream.Config
	Levels           *level.Table
	MaxSubscriptions int
	FileNameCount    int

	// Redis is nil when REDIS_HOST is unset.
	Redis *redis.Config
	// Database is nil when DB_HOST is unset.
	Database *database.Config
}

// Load reads files (default ".env") if present and then the environment.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	e := env{getenv: getenv}
	cfg := &Config{
		AdminAddr:     e.str("ADMIN_ADDR", DefaultAdminAddr),
		AdminPassword: getenv("ADMIN_PASSWORD"),
		Log: logstream.Config{
			FilePath:   getenv("LOG_FILE"),
			MaxSizeMB:  e.int("LOG_MAX_SIZE_MB", 100),
			MaxBackups: e.int("LOG_MAX_BACKUPS", 5),
			Compress:   e.bool("LOG_COMPRESS", false),
			Stderr:     true,
		},
		MaxSubscriptions: e.int("MAX_SUBSCRIPTIONS", logging.DefaultMaxSubscriptions),
		FileNameCount:    e.int("FILENAME_COUNT", logging.DefaultFileNameCount),
	}

	lvl := level.Info
	if name := getenv("LOG_LEVEL"); name != "" {
		if lvl = level.DefaultTable().Parse(name); lvl == level.Invalid {
			e.errs = append(e.errs, fmt.Sprintf("LOG_LEVEL: unknown level %q", name))
		}
	}
	cfg.Log.Level = lvl.Slog()

	cfg.Levels = level.DefaultTable()
	if names := getenv("LOG_LEVELS"); names != "" {
		t, err := level.NewTable(strings.Split(names, ","))
		if err != nil {
			e.errs = append(e.errs, "LOG_LEVELS: "+err.Error())
		} else {
			cfg.Levels = t
		}
	}

	if host := getenv("REDIS_HOST"); host != "" {
		cfg.Redis = &redis.Config{
			Host:     host,
			Port:     e.str("REDIS_PORT", "6379"),
			Password: getenv("REDIS_PASSWORD"),
			DB:       e.int("REDIS_DB", 0),
		}
	}
	if host := getenv("DB_HOST"); host != "" {
		cfg.Database = &database.Config{
			Host:     host,
			Port:     e.str("DB_PORT", "5432"),
			User:     getenv("DB_USER"),
			Password: getenv("DB_PASSWORD"),
			Name:     getenv("DB_NAME"),
		}
	}

	if cfg.MaxSubscriptions < 1 {
		e.errs = append(e.errs, "MAX_SUBSCRIPTIONS must be at least 1")
	}
	if cfg.FileNameCount < 1 {
		e.errs = append(e.errs, "FILENAME_COUNT must be at least 1")
	}
	if len(e.errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(e.errs, "; "))
	}
	return cfg, nil
}

// LogValue keeps secrets out of logs.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("admin_addr", c.AdminAddr),
		slog.Bool("admin_auth", c.AdminPassword != ""),
		slog.String("log_file", c.Log.FilePath),
		slog.Any("levels", c.Levels.Names()),
		slog.Int("max_subscriptions", c.MaxSubscriptions),
		slog.Int("filename_count", c.FileNameCount),
		slog.Bool("redis", c.Redis != nil),
		slog.Bool("database", c.Database != nil),
	)
}

type env struct {
	getenv func(string) string
	errs   []string
}

func (e *env) str(key, def string) string {
	if v := e.getenv(key); v != "" {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (e *env) bool(key string, def bool) bool {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}
