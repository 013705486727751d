package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/swiftlybot/yomiage/internal/app"
)

// VoiceRouter forwards voice movements to the session manager.
type VoiceRouter struct {
	sm     *app.SessionManager
	selfID func() string
}

// NewVoiceRouter creates a router. selfID is evaluated per event so the
// gateway handshake can finish after registration.
func NewVoiceRouter(sm *app.SessionManager, selfID func() string) *VoiceRouter {
	return &VoiceRouter{sm: sm, selfID: selfID}
}

// HandleVoiceStateUpdate adapts a gateway voice-state event onto the
// session manager.
func (r *VoiceRouter) HandleVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	ev := app.VoiceStateEvent{
		GuildID:   v.GuildID,
		UserID:    v.UserID,
		ChannelID: v.ChannelID,
		IsSelf:    v.UserID == r.selfID(),
	}
	if v.BeforeUpdate != nil {
		ev.BeforeChannelID = v.BeforeUpdate.ChannelID
	}
	if member, err := s.State.Member(v.GuildID, v.UserID); err == nil && member.User != nil {
		ev.IsBot = member.User.Bot
	}
	r.sm.OnVoiceStateUpdate(context.Background(), ev)
}
