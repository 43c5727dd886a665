// Package auth issues and verifies player identity tokens for the public listener.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/matchwarden/internal/platform/errors"
	"github.com/louisbranch/matchwarden/internal/platform/id"
)

// DefaultIssuer is the token issuer used when none is configured.
const DefaultIssuer = "matchwarden"

const minKeyLength = 16

// PlayerTokenConfig defines how player tokens are signed and verified.
type PlayerTokenConfig struct {
	Issuer string
	Key    []byte
	TTL    time.Duration
	Now    func() time.Time
}

// PlayerClaims captures validated player token claims.
type PlayerClaims struct {
	PlayerID  string
	Issuer    string
	ExpiresAt time.Time
	IssuedAt  time.Time
	TokenID   string
}

// ValidateKey reports whether key is long enough to sign player tokens.
func ValidateKey(key []byte) error {
	if len(key) < minKeyLength {
		return fmt.Errorf("player token key must be at least %d bytes", minKeyLength)
	}
	return nil
}

func (cfg PlayerTokenConfig) normalize() (PlayerTokenConfig, error) {
	if err := ValidateKey(cfg.Key); err != nil {
		return PlayerTokenConfig{}, err
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return cfg, nil
}

// IssuePlayerToken signs an HS256 token whose subject is playerID.
func IssuePlayerToken(cfg PlayerTokenConfig, playerID string) (string, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return "", err
	}
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return "", errors.New("player id is required")
	}
	if cfg.TTL <= 0 {
		return "", errors.New("player token ttl must be positive")
	}
	tokenID, err := id.NewID()
	if err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}
	now := cfg.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    cfg.Issuer,
		Subject:   playerID,
		ID:        tokenID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Key)
	if err != nil {
		return "", fmt.Errorf("sign player token: %w", err)
	}
	return signed, nil
}

// VerifyPlayerToken checks signature, issuer and expiry. Every failure is a
// PERMISSION_DENIED domain error.
func VerifyPlayerToken(cfg PlayerTokenConfig, token string) (PlayerClaims, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return PlayerClaims{}, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return PlayerClaims{}, apperrors.New(apperrors.CodePermissionDenied, "player token is required")
	}

	var parsed jwt.RegisteredClaims
	_, err = jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return cfg.Key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return PlayerClaims{}, mapJWTError(err)
	}

	if parsed.Issuer != cfg.Issuer {
		return PlayerClaims{}, apperrors.WithMetadata(apperrors.CodePermissionDenied, "player token issuer mismatch",
			map[string]string{"Field": "issuer"})
	}
	if strings.TrimSpace(parsed.Subject) == "" {
		return PlayerClaims{}, apperrors.New(apperrors.CodePermissionDenied, "player token subject is required")
	}
	if parsed.ExpiresAt == nil {
		return PlayerClaims{}, apperrors.New(apperrors.CodePermissionDenied, "player token exp is required")
	}
	now := cfg.Now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return PlayerClaims{}, apperrors.New(apperrors.CodePermissionDenied, "player token is expired")
	}

	claims := PlayerClaims{
		PlayerID:  parsed.Subject,
		Issuer:    parsed.Issuer,
		ExpiresAt: exp,
		TokenID:   parsed.ID,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return apperrors.New(apperrors.CodePermissionDenied, "player token signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodePermissionDenied, "player token alg is invalid")
	}
	return apperrors.Wrap(apperrors.CodePermissionDenied, "player token is malformed", err)
}
