package server

import (
	"errors"

	"github.com/louisbranch/matchwarden/internal/services/backend/auth"
)

// playerTokens verifies join tokens with the key the backend signs them with.
type playerTokens struct {
	cfg auth.PlayerTokenConfig
}

func (p playerTokens) VerifyPlayerToken(token, playerID string) error {
	claims, err := auth.VerifyPlayerToken(p.cfg, token)
	if err != nil {
		return err
	}
	if claims.PlayerID != playerID {
		return errors.New("player token was issued to another player")
	}
	return nil
}
