package app

import (
	"context"
	"fmt"

	"github.com/swiftlybot/yomiage/internal/queue"
)

// VoiceStateEvent is a guild member's voice movement as seen by the gateway.
// ChannelID is the channel after the change ("" when the member left voice
// entirely); BeforeChannelID is the channel before it.
type VoiceStateEvent struct {
	GuildID         string
	UserID          string
	ChannelID       string
	BeforeChannelID string

	// IsBot reports whether the moving member is a bot account.
	IsBot bool

	// IsSelf reports whether the moving member is the relay itself.
	IsSelf bool
}

// OnVoiceStateUpdate routes one voice movement: the relay's own drops
// trigger reconnect-or-teardown, member arrivals trigger auto-join and a
// join announcement, and departures trigger a leave announcement or the
// bot-alone auto-leave.
func (sm *SessionManager) OnVoiceStateUpdate(ctx context.Context, ev VoiceStateEvent) {
	if ev.IsSelf {
		sm.onSelfVoiceUpdate(ctx, ev)
		return
	}
	if ev.IsBot {
		return
	}

	gs := sm.Session(ev.GuildID)

	// Arrival into a watched channel can start a session.
	if gs == nil {
		if ev.ChannelID != "" && ev.ChannelID != ev.BeforeChannelID {
			sm.AutoJoinOnMember(ctx, ev.GuildID, ev.ChannelID)
		}
		return
	}

	entered := ev.ChannelID == gs.ChannelID && ev.BeforeChannelID != gs.ChannelID
	departed := ev.BeforeChannelID == gs.ChannelID && ev.ChannelID != gs.ChannelID

	switch {
	case entered:
		sm.announce(ctx, gs.GuildID, fmt.Sprintf("%sが参加しました。", sm.displayName(ev)))
	case departed:
		if sm.roster.NonBotMembers(gs.GuildID, gs.ChannelID) == 0 {
			sm.log.Info("voice channel empty, leaving", "guild_id", gs.GuildID)
			sm.teardown(ctx, gs.GuildID, true)
			return
		}
		sm.announce(ctx, gs.GuildID, fmt.Sprintf("%sが退出しました。", sm.displayName(ev)))
	}
}

// onSelfVoiceUpdate reacts to the relay's own state changing underneath it.
// A drop while a session is registered was not initiated by us, so try one
// reconnect from persisted state.
func (sm *SessionManager) onSelfVoiceUpdate(ctx context.Context, ev VoiceStateEvent) {
	if ev.ChannelID != "" {
		return
	}
	if sm.Session(ev.GuildID) == nil {
		return
	}
	sm.log.Warn("dropped from voice channel unexpectedly", "guild_id", ev.GuildID)
	sm.ReconnectOnDrop(ctx, ev.GuildID)
}

// announce queues a system announcement spoken with the default speaker.
func (sm *SessionManager) announce(ctx context.Context, guildID, text string) {
	sm.queues.Enqueue(guildID, queue.Item{Text: text, SpeakerID: sm.UserSpeakerFor(ctx, "")})
}

func (sm *SessionManager) displayName(ev VoiceStateEvent) string {
	if name := sm.roster.DisplayName(ev.GuildID, ev.UserID); name != "" {
		return name
	}
	return ev.UserID
}
