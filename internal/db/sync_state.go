package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/vdavid/threadsync/internal/models"
)

// GetSyncState returns the account's cursor, or nil if it was never synced.
func (s *PostgresStore) GetSyncState(ctx context.Context, accountID string) (*models.SyncState, error) {
	var (
		state   models.SyncState
		lastUID int64
	)
	err := s.q.QueryRow(ctx, `
		SELECT account_id, last_uid, last_sync_at
		FROM sync_states
		WHERE account_id = $1
	`, accountID).Scan(&state.AccountID, &lastUID, &state.LastSyncAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}
	state.LastUID = uint32(lastUID)
	return &state, nil
}

// SaveSyncState inserts or replaces the account's cursor.
func (s *PostgresStore) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO sync_states (account_id, last_uid, last_sync_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO UPDATE SET
			last_uid = EXCLUDED.last_uid,
			last_sync_at = EXCLUDED.last_sync_at
	`, state.AccountID, int64(state.LastUID), state.LastSyncAt)
	if err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}
	return nil
}

// DeleteSyncState forgets the account's cursor so the next sync starts over.
func (s *PostgresStore) DeleteSyncState(ctx context.Context, accountID string) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM sync_states WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("failed to delete sync state: %w", err)
	}
	return nil
}
