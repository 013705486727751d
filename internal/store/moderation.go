package store

import (
	"context"
	"fmt"
)

// Banlist returns the IDs of every banned user.
func (s *Store) Banlist(ctx context.Context) ([]string, error) {
	const query = `SELECT user_id FROM banlist`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: banlist: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: banlist scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: banlist: %w", err)
	}
	return ids, nil
}

// AddBan adds a user to the banlist. Banning an already-banned user is not an
// error.
func (s *Store) AddBan(ctx context.Context, userID string) error {
	const query = `INSERT INTO banlist (user_id) VALUES ($1)`
	if _, err := s.db.Exec(ctx, query, userID); err != nil {
		if isDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("store: add ban %q: %w", userID, err)
	}
	return nil
}

// RemoveBan removes a user from the banlist. Removing a missing user is not
// an error.
func (s *Store) RemoveBan(ctx context.Context, userID string) error {
	const query = `DELETE FROM banlist WHERE user_id = $1`
	if _, err := s.db.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("store: remove ban %q: %w", userID, err)
	}
	return nil
}

// InsertGuildCount records the current guild count and prunes samples older
// than one day.
func (s *Store) InsertGuildCount(ctx context.Context, count int) error {
	const insert = `INSERT INTO server_stats (guild_count) VALUES ($1)`
	if _, err := s.db.Exec(ctx, insert, count); err != nil {
		return fmt.Errorf("store: insert guild count: %w", err)
	}
	const prune = `DELETE FROM server_stats WHERE timestamp < (now() - INTERVAL '1 day')`
	if _, err := s.db.Exec(ctx, prune); err != nil {
		return fmt.Errorf("store: prune server stats: %w", err)
	}
	return nil
}
