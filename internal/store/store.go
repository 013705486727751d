// Package store persists guild and user state for the TTS relay in
// PostgreSQL: dictionaries, bans, voice-session state, voice preferences,
// per-guild speed, auto-join rules, and guild-count statistics.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for all relay tables. Execute it via [Store.Migrate]
// or apply it manually during deployment. Discord snowflake IDs are stored as
// TEXT throughout.
const Schema = `
CREATE TABLE IF NOT EXISTS guild_dictionary (
    guild_id  TEXT NOT NULL,
    key       TEXT NOT NULL,
    value     TEXT NOT NULL,
    author_id TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (guild_id, key)
);
CREATE TABLE IF NOT EXISTS global_dictionary (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS user_dictionary (
    user_id TEXT NOT NULL,
    key     TEXT NOT NULL,
    value   TEXT NOT NULL,
    PRIMARY KEY (user_id, key)
);
CREATE TABLE IF NOT EXISTS banlist (
    user_id TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS vc_state (
    guild_id       TEXT PRIMARY KEY,
    channel_id     TEXT NOT NULL,
    tts_channel_id TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS user_voice (
    user_id    TEXT PRIMARY KEY,
    speaker_id TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS server_voice_speed (
    guild_id TEXT PRIMARY KEY,
    speed    DOUBLE PRECISION NOT NULL
);
CREATE TABLE IF NOT EXISTS server_stats (
    id          SERIAL PRIMARY KEY,
    timestamp   TIMESTAMPTZ NOT NULL DEFAULT now(),
    guild_count INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS autojoin_config (
    guild_id       TEXT PRIMARY KEY,
    vc_channel_id  TEXT NOT NULL,
    tts_channel_id TEXT NOT NULL
);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store provides typed access to the relay tables.
type Store struct {
	db DB
}

// New creates a [Store] over the given connection or pool. The caller is
// responsible for calling [Store.Migrate] before issuing queries.
func New(db DB) *Store {
	return &Store{db: db}
}

// Migrate executes the [Schema] DDL and runs the user_voice.speaker_id
// integer-to-text migration needed by databases created before speaker IDs
// became strings.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return s.migrateSpeakerIDColumn(ctx)
}

func (s *Store) migrateSpeakerIDColumn(ctx context.Context) error {
	const probe = `
		SELECT data_type FROM information_schema.columns
		WHERE table_name = 'user_voice' AND column_name = 'speaker_id'`

	var dataType string
	err := s.db.QueryRow(ctx, probe).Scan(&dataType)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: probe user_voice.speaker_id type: %w", err)
	}
	switch dataType {
	case "integer", "bigint", "smallint":
	default:
		return nil
	}

	// Add a temp column, copy, drop the original, rename.
	steps := []string{
		`ALTER TABLE user_voice ADD COLUMN speaker_id_text TEXT`,
		`UPDATE user_voice SET speaker_id_text = speaker_id::text`,
		`ALTER TABLE user_voice DROP COLUMN speaker_id`,
		`ALTER TABLE user_voice RENAME COLUMN speaker_id_text TO speaker_id`,
	}
	for _, stmt := range steps {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate user_voice.speaker_id: %w", err)
		}
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
