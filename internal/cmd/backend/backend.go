// Package backend parses backend command flags and starts the command runtime.
package backend

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/louisbranch/matchwarden/internal/platform/cmd"
	"github.com/louisbranch/matchwarden/internal/platform/config"
	server "github.com/louisbranch/matchwarden/internal/services/backend/app"
)

// Config holds backend command configuration.
type Config struct {
	Port             int           `env:"MATCHWARDEN_BACKEND_PORT" envDefault:"8090"`
	Addr             string        `env:"MATCHWARDEN_BACKEND_ADDR"`
	InternalAddr     string        `env:"MATCHWARDEN_BACKEND_INTERNAL_ADDR" envDefault:"127.0.0.1:8091"`
	DBPath           string        `env:"MATCHWARDEN_BACKEND_DB_PATH" envDefault:"data/backend.db"`
	SharedSecret     string        `env:"MATCHWARDEN_SHARED_SECRET"`
	PlayerTokenKey   string        `env:"MATCHWARDEN_PLAYER_TOKEN_KEY"`
	PlayerTokenTTL   time.Duration `env:"MATCHWARDEN_PLAYER_TOKEN_TTL" envDefault:"24h"`
	MinClientVersion int64         `env:"MATCHWARDEN_MIN_CLIENT_VERSION" envDefault:"0"`
	ConfigVersion    int64         `env:"MATCHWARDEN_CONFIG_VERSION" envDefault:"0"`
	LockTimeout      time.Duration `env:"MATCHWARDEN_LOCK_TIMEOUT" envDefault:"5s"`
	LockBackend      string        `env:"MATCHWARDEN_LOCK_BACKEND" envDefault:"memory"`
	RedisAddr        string        `env:"MATCHWARDEN_REDIS_ADDR"`
	LockTTL          time.Duration `env:"MATCHWARDEN_LOCK_TTL" envDefault:"30s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The public gRPC port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The public gRPC listen address (overrides -port)")
	fs.StringVar(&cfg.InternalAddr, "internal-addr", cfg.InternalAddr, "The trusted loopback gRPC listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the backend SQLite database")
	fs.Int64Var(&cfg.MinClientVersion, "min-client-version", cfg.MinClientVersion, "Minimum accepted client version")
	fs.Int64Var(&cfg.ConfigVersion, "config-version", cfg.ConfigVersion, "Current server config version")
	fs.StringVar(&cfg.LockBackend, "lock-backend", cfg.LockBackend, "Player lock backend (memory or redis)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if err := config.RequireNonEmpty(
		"MATCHWARDEN_SHARED_SECRET", cfg.SharedSecret,
		"MATCHWARDEN_PLAYER_TOKEN_KEY", cfg.PlayerTokenKey,
	); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ServerConfig maps command configuration onto the backend runtime.
func (cfg Config) ServerConfig() server.Config {
	publicAddr := cfg.Addr
	if publicAddr == "" {
		publicAddr = fmt.Sprintf(":%d", cfg.Port)
	}
	return server.Config{
		PublicAddr:       publicAddr,
		TrustedAddr:      cfg.InternalAddr,
		DBPath:           cfg.DBPath,
		SharedSecret:     cfg.SharedSecret,
		PlayerTokenKey:   cfg.PlayerTokenKey,
		PlayerTokenTTL:   cfg.PlayerTokenTTL,
		MinClientVersion: cfg.MinClientVersion,
		ConfigVersion:    cfg.ConfigVersion,
		LockTimeout:      cfg.LockTimeout,
		LockBackend:      cfg.LockBackend,
		RedisAddr:        cfg.RedisAddr,
		LockTTL:          cfg.LockTTL,
	}
}

// Run starts the backend command service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceBackend, func(ctx context.Context) error {
		return server.Run(ctx, cfg.ServerConfig())
	})
}
