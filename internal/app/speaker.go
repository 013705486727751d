package app

import (
	"context"
	"strconv"
)

// UserSpeakerFor resolves the speaker a user is spoken with. Inside the
// configured high-load window every user gets the override speaker;
// otherwise the stored preference applies, falling back to the default.
// Preferences are cached until [SessionManager.InvalidateUserVoice].
func (sm *SessionManager) UserSpeakerFor(ctx context.Context, userID string) int {
	if w, ok := sm.tts.HighLoadWindow(); ok && w.Contains(sm.now().In(sm.tts.Location())) {
		return sm.tts.HighLoadSpeakerID
	}
	if userID == "" {
		return sm.tts.DefaultSpeakerID
	}

	sm.speakerMu.Lock()
	cached, ok := sm.speakerCache[userID]
	sm.speakerMu.Unlock()
	if !ok {
		stored, err := sm.storage.UserSpeakerID(ctx, userID)
		if err != nil {
			sm.log.Warn("speaker preference lookup failed", "user_id", userID, "error", err)
			return sm.tts.DefaultSpeakerID
		}
		cached = stored
		sm.speakerMu.Lock()
		sm.speakerCache[userID] = stored
		sm.speakerMu.Unlock()
	}

	if id, err := strconv.Atoi(cached); err == nil && id >= 0 {
		return id
	}
	return sm.tts.DefaultSpeakerID
}

// DefaultSpeaker returns the configured default speaker, used for system
// announcements.
func (sm *SessionManager) DefaultSpeaker() int {
	return sm.tts.DefaultSpeakerID
}

// InvalidateUserVoice drops a user's cached preference after an external
// edit; the next lookup re-reads storage.
func (sm *SessionManager) InvalidateUserVoice(userID string) {
	sm.speakerMu.Lock()
	delete(sm.speakerCache, userID)
	sm.speakerMu.Unlock()
}

// LoadBans populates the in-memory ban set from storage.
func (sm *SessionManager) LoadBans(ctx context.Context) error {
	ids, err := sm.storage.Banlist(ctx)
	if err != nil {
		return err
	}
	sm.banMu.Lock()
	sm.bans = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		sm.bans[id] = struct{}{}
	}
	sm.banMu.Unlock()
	return nil
}

// IsBanned reports whether a user is excluded from the relay.
func (sm *SessionManager) IsBanned(userID string) bool {
	sm.banMu.RLock()
	defer sm.banMu.RUnlock()
	_, ok := sm.bans[userID]
	return ok
}

// Ban persists and applies a ban.
func (sm *SessionManager) Ban(ctx context.Context, userID string) error {
	if err := sm.storage.AddBan(ctx, userID); err != nil {
		return err
	}
	sm.banMu.Lock()
	sm.bans[userID] = struct{}{}
	sm.banMu.Unlock()
	return nil
}

// Unban lifts a ban.
func (sm *SessionManager) Unban(ctx context.Context, userID string) error {
	if err := sm.storage.RemoveBan(ctx, userID); err != nil {
		return err
	}
	sm.banMu.Lock()
	delete(sm.bans, userID)
	sm.banMu.Unlock()
	return nil
}
