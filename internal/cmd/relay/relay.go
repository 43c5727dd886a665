// Package relay parses relay command flags and launches the match relay.
package relay

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/louisbranch/matchwarden/internal/platform/cmd"
	"github.com/louisbranch/matchwarden/internal/platform/config"
	"github.com/louisbranch/matchwarden/internal/platform/retry"
	server "github.com/louisbranch/matchwarden/internal/services/relay/app"
)

// Config holds relay command configuration.
type Config struct {
	Addr              string        `env:"MATCHWARDEN_RELAY_ADDR" envDefault:":8095"`
	BackendAddr       string        `env:"MATCHWARDEN_BACKEND_INTERNAL_ADDR" envDefault:"127.0.0.1:8091"`
	SharedSecret      string        `env:"MATCHWARDEN_SHARED_SECRET"`
	PlayerTokenKey    string        `env:"MATCHWARDEN_PLAYER_TOKEN_KEY"`
	ConsensusFraction float64       `env:"MATCHWARDEN_CONSENSUS_FRACTION" envDefault:"0.8"`
	ConsensusTimeout  time.Duration `env:"MATCHWARDEN_CONSENSUS_TIMEOUT" envDefault:"20s"`
	MatchTimeout      time.Duration `env:"MATCHWARDEN_MATCH_TIMEOUT" envDefault:"30m"`
	MinParticipants   int           `env:"MATCHWARDEN_MIN_PARTICIPANTS" envDefault:"2"`
	AllowTestMode     bool          `env:"MATCHWARDEN_ALLOW_TEST_MODE" envDefault:"false"`
	LoadoutCutoff     time.Duration `env:"MATCHWARDEN_LOADOUT_CUTOFF" envDefault:"30s"`
	MaxAttempts       int           `env:"MATCHWARDEN_RETRY_MAX_ATTEMPTS" envDefault:"4"`
	RetryBackoff      time.Duration `env:"MATCHWARDEN_RETRY_BACKOFF" envDefault:"200ms"`
	RetryMaxDelay     time.Duration `env:"MATCHWARDEN_RETRY_MAX_DELAY" envDefault:"2s"`
	GRPCDialTimeout   time.Duration `env:"MATCHWARDEN_RELAY_DIAL_TIMEOUT" envDefault:"2s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The relay HTTP listen address")
	fs.StringVar(&cfg.BackendAddr, "backend-addr", cfg.BackendAddr, "The backend trusted gRPC address")
	fs.Float64Var(&cfg.ConsensusFraction, "consensus-fraction", cfg.ConsensusFraction, "Default fraction of participants that must agree")
	fs.DurationVar(&cfg.ConsensusTimeout, "consensus-timeout", cfg.ConsensusTimeout, "How long to wait for result submissions")
	fs.DurationVar(&cfg.MatchTimeout, "match-timeout", cfg.MatchTimeout, "Matches still open after this are finalized and retired")
	fs.IntVar(&cfg.MinParticipants, "min-participants", cfg.MinParticipants, "Smallest match the create endpoint accepts")
	fs.BoolVar(&cfg.AllowTestMode, "allow-test-mode", cfg.AllowTestMode, "Accept test-mode matches and fixed minimums")
	fs.DurationVar(&cfg.LoadoutCutoff, "loadout-cutoff", cfg.LoadoutCutoff, "Loadout decisions after this are discarded")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Maximum backend call attempts")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Base retry backoff delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "Maximum retry delay")
	fs.DurationVar(&cfg.GRPCDialTimeout, "dial-timeout", cfg.GRPCDialTimeout, "Backend dial timeout")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if err := config.RequireNonEmpty("MATCHWARDEN_SHARED_SECRET", cfg.SharedSecret); err != nil {
		return Config{}, err
	}
	if err := config.RequireNonEmpty("MATCHWARDEN_PLAYER_TOKEN_KEY", cfg.PlayerTokenKey); err != nil {
		return Config{}, err
	}
	if cfg.MatchTimeout <= 0 {
		return Config{}, fmt.Errorf("match timeout must be positive, got %v", cfg.MatchTimeout)
	}
	if cfg.ConsensusFraction <= 0 || cfg.ConsensusFraction > 1 {
		return Config{}, fmt.Errorf("consensus fraction must be in (0, 1], got %v", cfg.ConsensusFraction)
	}
	return cfg, nil
}

// ServerConfig maps command configuration onto the relay runtime.
func (cfg Config) ServerConfig() server.Config {
	return server.Config{
		Addr:              cfg.Addr,
		BackendAddr:       cfg.BackendAddr,
		SharedSecret:      cfg.SharedSecret,
		PlayerTokenKey:    cfg.PlayerTokenKey,
		ConsensusFraction: cfg.ConsensusFraction,
		ConsensusTimeout:  cfg.ConsensusTimeout,
		MatchTimeout:      cfg.MatchTimeout,
		MinParticipants:   cfg.MinParticipants,
		AllowTestMode:     cfg.AllowTestMode,
		LoadoutCutoff:     cfg.LoadoutCutoff,
		Retry: retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			Backoff:     cfg.RetryBackoff,
			MaxDelay:    cfg.RetryMaxDelay,
		},
		DialTimeout: cfg.GRPCDialTimeout,
	}
}

// Run starts the relay runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceRelay, func(ctx context.Context) error {
		return server.Run(ctx, cfg.ServerConfig())
	})
}
