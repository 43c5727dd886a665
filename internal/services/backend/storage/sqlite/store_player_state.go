package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/matchwarden/internal/services/backend/domain/playerstate"
)

// GetPlayerState loads metadata and every model key for playerID.
func (s *Store) GetPlayerState(ctx context.Context, playerID string) (playerstate.State, error) {
	if err := s.ready(ctx); err != nil {
		return playerstate.State{}, err
	}
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return playerstate.State{}, fmt.Errorf("player id is required")
	}

	state := playerstate.New(playerID)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT last_command_timestamp, config_version_seen_by_client
FROM player_meta
WHERE player_id = ?
`, playerID).Scan(&state.LastCommandTimestamp, &state.ConfigVersionSeenByClient)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return playerstate.State{}, fmt.Errorf("get player meta: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT model_key, value
FROM player_entries
WHERE player_id = ?
`, playerID)
	if err != nil {
		return playerstate.State{}, fmt.Errorf("list player entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return playerstate.State{}, fmt.Errorf("scan player entry: %w", err)
		}
		state.Entries[key] = value
	}
	if err := rows.Err(); err != nil {
		return playerstate.State{}, fmt.Errorf("iterate player entries: %w", err)
	}
	return state, nil
}

// UpdatePlayerState writes the delta's keys and metadata in one transaction.
func (s *Store) UpdatePlayerState(ctx context.Context, playerID string, delta playerstate.Delta) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return fmt.Errorf("player id is required")
	}
	if delta.Empty() {
		return nil
	}
	updatedAt := toMillis(s.now())

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin player update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO player_meta (player_id, last_command_timestamp, config_version_seen_by_client, updated_at)
VALUES (?, 0, 0, ?)
ON CONFLICT(player_id) DO UPDATE SET updated_at = excluded.updated_at
`, playerID, updatedAt); err != nil {
		return fmt.Errorf("upsert player meta: %w", err)
	}
	if delta.LastCommandTimestamp != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE player_meta SET last_command_timestamp = ? WHERE player_id = ?`,
			*delta.LastCommandTimestamp, playerID,
		); err != nil {
			return fmt.Errorf("update last command timestamp: %w", err)
		}
	}
	if delta.ConfigVersionSeenByClient != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE player_meta SET config_version_seen_by_client = ? WHERE player_id = ?`,
			*delta.ConfigVersionSeenByClient, playerID,
		); err != nil {
			return fmt.Errorf("update config version: %w", err)
		}
	}
	for key, value := range delta.Changed {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO player_entries (player_id, model_key, value, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(player_id, model_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`, playerID, key, value, updatedAt); err != nil {
			return fmt.Errorf("upsert player entry %s: %w", key, err)
		}
	}
	for _, key := range delta.Deleted {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM player_entries WHERE player_id = ? AND model_key = ?`,
			playerID, key,
		); err != nil {
			return fmt.Errorf("delete player entry %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit player update: %w", err)
	}
	return nil
}
