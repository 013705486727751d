package store

import (
	"context"
	"fmt"
)

// Entry is a single dictionary substitution rule.
type Entry struct {
	Key   string
	Value string
}

// GuildEntry is a guild dictionary rule together with its author.
type GuildEntry struct {
	Entry
	AuthorID string
}

// GlobalDictionary returns every rule of the global dictionary.
func (s *Store) GlobalDictionary(ctx context.Context) ([]Entry, error) {
	const query = `SELECT key, value FROM global_dictionary`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: global dictionary: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, fmt.Errorf("store: global dictionary scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: global dictionary: %w", err)
	}
	return entries, nil
}

// UpsertGlobalEntry creates or replaces a global dictionary rule.
func (s *Store) UpsertGlobalEntry(ctx context.Context, key, value string) error {
	const query = `
		INSERT INTO global_dictionary (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
	if _, err := s.db.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("store: upsert global entry %q: %w", key, err)
	}
	return nil
}

// RemoveGlobalEntry deletes a global rule. Removing a missing key is not an
// error.
func (s *Store) RemoveGlobalEntry(ctx context.Context, key string) error {
	const query = `DELETE FROM global_dictionary WHERE key = $1`
	if _, err := s.db.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("store: remove global entry %q: %w", key, err)
	}
	return nil
}

// GuildDictionary returns every rule registered for a guild.
func (s *Store) GuildDictionary(ctx context.Context, guildID string) ([]Entry, error) {
	const query = `SELECT key, value FROM guild_dictionary WHERE guild_id = $1`
	rows, err := s.db.Query(ctx, query, guildID)
	if err != nil {
		return nil, fmt.Errorf("store: guild dictionary %q: %w", guildID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, fmt.Errorf("store: guild dictionary scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: guild dictionary %q: %w", guildID, err)
	}
	return entries, nil
}

// GuildDictionaryEntry returns a single guild rule, or (nil, nil) if the key
// is not registered.
func (s *Store) GuildDictionaryEntry(ctx context.Context, guildID, key string) (*GuildEntry, error) {
	const query = `SELECT value, author_id FROM guild_dictionary WHERE guild_id = $1 AND key = $2`
	e := GuildEntry{Entry: Entry{Key: key}}
	err := s.db.QueryRow(ctx, query, guildID, key).Scan(&e.Value, &e.AuthorID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: guild entry %q/%q: %w", guildID, key, err)
	}
	return &e, nil
}

// UpsertGuildEntry creates or replaces a guild rule, recording its author.
func (s *Store) UpsertGuildEntry(ctx context.Context, guildID, key, value, authorID string) error {
	const query = `
		INSERT INTO guild_dictionary (guild_id, key, value, author_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guild_id, key) DO UPDATE SET
			value = EXCLUDED.value,
			author_id = EXCLUDED.author_id`
	if _, err := s.db.Exec(ctx, query, guildID, key, value, authorID); err != nil {
		return fmt.Errorf("store: upsert guild entry %q/%q: %w", guildID, key, err)
	}
	return nil
}

// RemoveGuildEntry deletes a guild rule. Removing a missing key is not an
// error.
func (s *Store) RemoveGuildEntry(ctx context.Context, guildID, key string) error {
	const query = `DELETE FROM guild_dictionary WHERE guild_id = $1 AND key = $2`
	if _, err := s.db.Exec(ctx, query, guildID, key); err != nil {
		return fmt.Errorf("store: remove guild entry %q/%q: %w", guildID, key, err)
	}
	return nil
}

// UserDictionary returns every personal rule registered by a user.
func (s *Store) UserDictionary(ctx context.Context, userID string) ([]Entry, error) {
	const query = `SELECT key, value FROM user_dictionary WHERE user_id = $1`
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("store: user dictionary %q: %w", userID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, fmt.Errorf("store: user dictionary scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: user dictionary %q: %w", userID, err)
	}
	return entries, nil
}

// UpsertUserEntry creates or replaces a personal rule.
func (s *Store) UpsertUserEntry(ctx context.Context, userID, key, value string) error {
	const query = `
		INSERT INTO user_dictionary (user_id, key, value) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, key) DO UPDATE SET value = EXCLUDED.value`
	if _, err := s.db.Exec(ctx, query, userID, key, value); err != nil {
		return fmt.Errorf("store: upsert user entry %q/%q: %w", userID, key, err)
	}
	return nil
}

// RemoveUserEntry deletes a personal rule. Removing a missing key is not an
// error.
func (s *Store) RemoveUserEntry(ctx context.Context, userID, key string) error {
	const query = `DELETE FROM user_dictionary WHERE user_id = $1 AND key = $2`
	if _, err := s.db.Exec(ctx, query, userID, key); err != nil {
		return fmt.Errorf("store: remove user entry %q/%q: %w", userID, key, err)
	}
	return nil
}
