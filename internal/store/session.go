package store

import (
	"context"
	"fmt"
)

// VCState records which voice channel the relay occupies in a guild and which
// text channel feeds it. One row per connected guild; rows survive restarts
// so sessions can be recovered.
type VCState struct {
	GuildID      string
	ChannelID    string
	TTSChannelID string
}

// VCStates returns the persisted state of every connected guild.
func (s *Store) VCStates(ctx context.Context) ([]VCState, error) {
	const query = `SELECT guild_id, channel_id, tts_channel_id FROM vc_state`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: vc states: %w", err)
	}
	defer rows.Close()

	var states []VCState
	for rows.Next() {
		var st VCState
		if err := rows.Scan(&st.GuildID, &st.ChannelID, &st.TTSChannelID); err != nil {
			return nil, fmt.Errorf("store: vc states scan: %w", err)
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: vc states: %w", err)
	}
	return states, nil
}

// VCState returns the persisted state for one guild, or (nil, nil) if the
// guild has no session on record.
func (s *Store) VCState(ctx context.Context, guildID string) (*VCState, error) {
	const query = `SELECT channel_id, tts_channel_id FROM vc_state WHERE guild_id = $1`
	st := VCState{GuildID: guildID}
	err := s.db.QueryRow(ctx, query, guildID).Scan(&st.ChannelID, &st.TTSChannelID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: vc state %q: %w", guildID, err)
	}
	return &st, nil
}

// UpsertVCState creates or replaces the persisted session state of a guild.
func (s *Store) UpsertVCState(ctx context.Context, st VCState) error {
	const query = `
		INSERT INTO vc_state (guild_id, channel_id, tts_channel_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id) DO UPDATE SET
			channel_id = EXCLUDED.channel_id,
			tts_channel_id = EXCLUDED.tts_channel_id`
	if _, err := s.db.Exec(ctx, query, st.GuildID, st.ChannelID, st.TTSChannelID); err != nil {
		return fmt.Errorf("store: upsert vc state %q: %w", st.GuildID, err)
	}
	return nil
}

// DeleteVCState removes a guild's persisted session state. Deleting a missing
// row is not an error.
func (s *Store) DeleteVCState(ctx context.Context, guildID string) error {
	const query = `DELETE FROM vc_state WHERE guild_id = $1`
	if _, err := s.db.Exec(ctx, query, guildID); err != nil {
		return fmt.Errorf("store: delete vc state %q: %w", guildID, err)
	}
	return nil
}

// UserSpeakerID returns a user's stored speaker preference, or "" if the user
// has none.
func (s *Store) UserSpeakerID(ctx context.Context, userID string) (string, error) {
	const query = `SELECT speaker_id FROM user_voice WHERE user_id = $1`
	var speakerID string
	err := s.db.QueryRow(ctx, query, userID).Scan(&speakerID)
	if err != nil {
		if isNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("store: user speaker %q: %w", userID, err)
	}
	return speakerID, nil
}

// SetUserSpeakerID stores a user's speaker preference, replacing any previous
// choice.
func (s *Store) SetUserSpeakerID(ctx context.Context, userID, speakerID string) error {
	const query = `
		INSERT INTO user_voice (user_id, speaker_id) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET speaker_id = EXCLUDED.speaker_id`
	if _, err := s.db.Exec(ctx, query, userID, speakerID); err != nil {
		return fmt.Errorf("store: set user speaker %q: %w", userID, err)
	}
	return nil
}

// VoiceSpeed returns a guild's synthesis speed scale. The second return is
// false when the guild has no override.
func (s *Store) VoiceSpeed(ctx context.Context, guildID string) (float64, bool, error) {
	const query = `SELECT speed FROM server_voice_speed WHERE guild_id = $1`
	var speed float64
	err := s.db.QueryRow(ctx, query, guildID).Scan(&speed)
	if err != nil {
		if isNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("store: voice speed %q: %w", guildID, err)
	}
	return speed, true, nil
}

// SetVoiceSpeed stores a guild's synthesis speed scale.
func (s *Store) SetVoiceSpeed(ctx context.Context, guildID string, speed float64) error {
	const query = `
		INSERT INTO server_voice_speed (guild_id, speed) VALUES ($1, $2)
		ON CONFLICT (guild_id) DO UPDATE SET speed = EXCLUDED.speed`
	if _, err := s.db.Exec(ctx, query, guildID, speed); err != nil {
		return fmt.Errorf("store: set voice speed %q: %w", guildID, err)
	}
	return nil
}

// DeleteVoiceSpeed removes a guild's speed override, reverting it to the
// default.
func (s *Store) DeleteVoiceSpeed(ctx context.Context, guildID string) error {
	const query = `DELETE FROM server_voice_speed WHERE guild_id = $1`
	if _, err := s.db.Exec(ctx, query, guildID); err != nil {
		return fmt.Errorf("store: delete voice speed %q: %w", guildID, err)
	}
	return nil
}

// AutojoinRule maps a watched voice channel to the text channel that will
// feed the session started when a member joins it.
type AutojoinRule struct {
	GuildID      string
	VCChannelID  string
	TTSChannelID string
}

// AutojoinRules returns every configured auto-join rule.
func (s *Store) AutojoinRules(ctx context.Context) ([]AutojoinRule, error) {
	const query = `SELECT guild_id, vc_channel_id, tts_channel_id FROM autojoin_config`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: autojoin rules: %w", err)
	}
	defer rows.Close()

	var rules []AutojoinRule
	for rows.Next() {
		var r AutojoinRule
		if err := rows.Scan(&r.GuildID, &r.VCChannelID, &r.TTSChannelID); err != nil {
			return nil, fmt.Errorf("store: autojoin rules scan: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: autojoin rules: %w", err)
	}
	return rules, nil
}

// AutojoinRule returns the rule for one guild, or (nil, nil) if none is
// configured.
func (s *Store) AutojoinRule(ctx context.Context, guildID string) (*AutojoinRule, error) {
	const query = `SELECT vc_channel_id, tts_channel_id FROM autojoin_config WHERE guild_id = $1`
	r := AutojoinRule{GuildID: guildID}
	err := s.db.QueryRow(ctx, query, guildID).Scan(&r.VCChannelID, &r.TTSChannelID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: autojoin rule %q: %w", guildID, err)
	}
	return &r, nil
}

// SetAutojoinRule creates or replaces a guild's auto-join rule.
func (s *Store) SetAutojoinRule(ctx context.Context, r AutojoinRule) error {
	const query = `
		INSERT INTO autojoin_config (guild_id, vc_channel_id, tts_channel_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id) DO UPDATE SET
			vc_channel_id = EXCLUDED.vc_channel_id,
			tts_channel_id = EXCLUDED.tts_channel_id`
	if _, err := s.db.Exec(ctx, query, r.GuildID, r.VCChannelID, r.TTSChannelID); err != nil {
		return fmt.Errorf("store: set autojoin rule %q: %w", r.GuildID, err)
	}
	return nil
}

// DeleteAutojoinRule removes a guild's auto-join rule. Deleting a missing
// rule is not an error.
func (s *Store) DeleteAutojoinRule(ctx context.Context, guildID string) error {
	const query = `DELETE FROM autojoin_config WHERE guild_id = $1`
	if _, err := s.db.Exec(ctx, query, guildID); err != nil {
		return fmt.Errorf("store: delete autojoin rule %q: %w", guildID, err)
	}
	return nil
}
