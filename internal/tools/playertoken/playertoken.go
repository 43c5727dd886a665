// Package playertoken generates player token signing keys and issues tokens
// for local testing against the backend public listener.
package playertoken

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/matchwarden/internal/platform/cmd"
	"github.com/louisbranch/matchwarden/internal/services/backend/auth"
)

// Config holds configuration for key generation and token issuance.
type Config struct {
	Key      string        `env:"MATCHWARDEN_PLAYER_TOKEN_KEY"`
	TTL      time.Duration `env:"MATCHWARDEN_PLAYER_TOKEN_TTL" envDefault:"24h"`
	PlayerID string
	GenKey   bool
	Bytes    int
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{Bytes: 32}
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.PlayerID, "player", cfg.PlayerID, "player id to issue a token for")
	fs.DurationVar(&cfg.TTL, "ttl", cfg.TTL, "token lifetime")
	fs.BoolVar(&cfg.GenKey, "gen-key", cfg.GenKey, "generate a signing key instead of a token")
	fs.IntVar(&cfg.Bytes, "bytes", cfg.Bytes, "number of random key bytes for -gen-key")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run writes either a fresh signing key or a signed player token to out.
func Run(cfg Config, out io.Writer, reader io.Reader, now func() time.Time) error {
	if out == nil {
		return errors.New("output is required")
	}
	if cfg.GenKey {
		return writeKey(cfg.Bytes, out, reader)
	}
	playerID := strings.TrimSpace(cfg.PlayerID)
	if playerID == "" {
		return errors.New("player id is required")
	}
	token, err := auth.IssuePlayerToken(auth.PlayerTokenConfig{
		Key: []byte(cfg.Key),
		TTL: cfg.TTL,
		Now: now,
	}, playerID)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func writeKey(size int, out io.Writer, reader io.Reader) error {
	if size <= 0 {
		return errors.New("bytes must be greater than zero")
	}
	if reader == nil {
		reader = rand.Reader
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return fmt.Errorf("generate random bytes: %w", err)
	}
	_, err := fmt.Fprintf(out, "MATCHWARDEN_PLAYER_TOKEN_KEY=%s\n", hex.EncodeToString(buf))
	return err
}
