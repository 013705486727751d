package app

import (
	"context"
	"os"
	"time"

	"github.com/swiftlybot/yomiage/internal/normalize"
	"github.com/swiftlybot/yomiage/internal/tts"
)

const (
	// idleSleep is how long the worker dozes when its queue is empty.
	idleSleep = 100 * time.Millisecond
)

// runWorker is the playback loop of one guild session. Exactly one runs per
// session; it alone pops the guild's queue, so utterances play in enqueue
// order. Errors in one iteration never terminate the loop.
func (sm *SessionManager) runWorker(ctx context.Context, gs *GuildSession) {
	defer close(gs.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, ok := sm.queues.TryDequeue(gs.GuildID)
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(idleSleep):
			}
			continue
		}

		// A session replaced under our feet means this worker is dying;
		// drop the item rather than speak into a stale handle.
		if current := sm.Session(gs.GuildID); current == nil || current.handle != gs.handle {
			continue
		}

		// Announcements normalize too; their empty AuthorID skips the
		// user dictionary tier.
		text := sm.norm.Normalize(ctx, item.Text, normalize.Context{
			GuildID: gs.GuildID,
			UserID:  item.AuthorID,
			ResolveUser: func(id string) (string, bool) {
				name := sm.roster.DisplayName(gs.GuildID, id)
				return name, name != ""
			},
			ResolveRole: func(id string) (string, bool) {
				return sm.roster.RoleName(gs.GuildID, id)
			},
		})
		if text == "" {
			continue
		}

		speed := 1.0
		if s, ok, err := sm.storage.VoiceSpeed(ctx, gs.GuildID); err != nil {
			sm.log.Warn("voice speed lookup failed", "guild_id", gs.GuildID, "error", err)
		} else if ok {
			speed = s
		}

		path, err := sm.synth.SynthesizeToFile(ctx, text, item.SpeakerID, speed, tts.TempWAVName("queue"))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			sm.log.Warn("synthesis failed, dropping item", "guild_id", gs.GuildID, "error", err)
			sm.countError()
			continue
		}

		if err := gs.handle.Play(ctx, path); err != nil {
			if ctx.Err() == nil {
				sm.log.Warn("playback failed", "guild_id", gs.GuildID, "error", err)
				sm.countError()
			}
		} else {
			sm.countTTS()
		}
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			sm.log.Debug("temp file cleanup failed", "path", path, "error", rmErr)
		}
	}
}

func (sm *SessionManager) countTTS() {
	if sm.metrics != nil {
		sm.metrics.CountTTS()
	}
}

func (sm *SessionManager) countError() {
	if sm.metrics != nil {
		sm.metrics.CountError()
	}
}
