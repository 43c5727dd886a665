package relay

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfig_ParsesDefaultsAndFlags(t *testing.T) {
	t.Setenv("MATCHWARDEN_SHARED_SECRET", "secret")
	t.Setenv("MATCHWARDEN_PLAYER_TOKEN_KEY", "0123456789abcdef")
	t.Setenv("MATCHWARDEN_CONSENSUS_TIMEOUT", "45s")
	fs := flag.NewFlagSet("relay", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-max-attempts", "2", "-backend-addr", "127.0.0.1:9191"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Addr != ":8095" {
		t.Fatalf("addr = %q, want :8095", cfg.Addr)
	}
	if cfg.ConsensusFraction != 0.8 {
		t.Fatalf("consensus fraction = %v, want 0.8", cfg.ConsensusFraction)
	}
	if cfg.ConsensusTimeout != 45*time.Second {
		t.Fatalf("consensus timeout = %v, want 45s", cfg.ConsensusTimeout)
	}
	if cfg.MatchTimeout != 30*time.Minute || cfg.MinParticipants != 2 || cfg.AllowTestMode {
		t.Fatalf("unexpected match policy config: %+v", cfg)
	}

	serverCfg := cfg.ServerConfig()
	if serverCfg.BackendAddr != "127.0.0.1:9191" {
		t.Fatalf("backend addr = %q", serverCfg.BackendAddr)
	}
	if serverCfg.PlayerTokenKey != "0123456789abcdef" || serverCfg.MatchTimeout != 30*time.Minute || serverCfg.MinParticipants != 2 {
		t.Fatalf("unexpected server config: %+v", serverCfg)
	}
	if serverCfg.Retry.MaxAttempts != 2 || serverCfg.Retry.Backoff != 200*time.Millisecond || serverCfg.Retry.MaxDelay != 2*time.Second {
		t.Fatalf("unexpected retry policy: %+v", serverCfg.Retry)
	}
}

func TestParseConfig_RequiresSecret(t *testing.T) {
	t.Setenv("MATCHWARDEN_SHARED_SECRET", "")
	fs := flag.NewFlagSet("relay", flag.ContinueOnError)
	if _, err := ParseConfig(fs, nil); err == nil {
		t.Fatal("expected missing shared secret error")
	}
}

func TestParseConfig_RequiresPlayerTokenKey(t *testing.T) {
	t.Setenv("MATCHWARDEN_SHARED_SECRET", "secret")
	t.Setenv("MATCHWARDEN_PLAYER_TOKEN_KEY", "")
	fs := flag.NewFlagSet("relay", flag.ContinueOnError)
	if _, err := ParseConfig(fs, nil); err == nil {
		t.Fatal("expected missing player token key error")
	}
}

func TestParseConfig_MatchTimeoutAndTestMode(t *testing.T) {
	t.Setenv("MATCHWARDEN_SHARED_SECRET", "secret")
	t.Setenv("MATCHWARDEN_PLAYER_TOKEN_KEY", "0123456789abcdef")
	t.Setenv("MATCHWARDEN_MATCH_TIMEOUT", "5m")
	fs := flag.NewFlagSet("relay", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-allow-test-mode"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.MatchTimeout != 5*time.Minute || !cfg.AllowTestMode {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	fs = flag.NewFlagSet("relay", flag.ContinueOnError)
	if _, err := ParseConfig(fs, []string{"-match-timeout", "0s"}); err == nil {
		t.Fatal("expected non-positive match timeout error")
	}
}

func TestParseConfig_RejectsFraction(t *testing.T) {
	t.Setenv("MATCHWARDEN_SHARED_SECRET", "secret")
	t.Setenv("MATCHWARDEN_PLAYER_TOKEN_KEY", "0123456789abcdef")
	for _, value := range []string{"0", "1.5", "-0.2"} {
		fs := flag.NewFlagSet("relay", flag.ContinueOnError)
		if _, err := ParseConfig(fs, []string{"-consensus-fraction", value}); err == nil {
			t.Fatalf("expected error for fraction %s", value)
		}
	}
}
