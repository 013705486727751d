package discord

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// NonBotMembers counts human members currently in a voice channel,
// answered from gateway state without an API round trip.
func (b *Bot) NonBotMembers(guildID, channelID string) int {
	s := b.Session()
	guild, err := s.State.Guild(guildID)
	if err != nil {
		return 0
	}
	count := 0
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != channelID {
			continue
		}
		member, err := s.State.Member(guildID, vs.UserID)
		if err != nil || member.User == nil || member.User.Bot {
			continue
		}
		count++
	}
	return count
}

// DisplayName resolves a member's display name, preferring the guild
// nickname. Returns "" when the member is unknown.
func (b *Bot) DisplayName(guildID, userID string) string {
	s := b.Session()
	member, err := s.State.Member(guildID, userID)
	if err != nil {
		member, err = s.GuildMember(guildID, userID)
		if err != nil {
			return ""
		}
	}
	if member.Nick != "" {
		return member.Nick
	}
	if member.User == nil {
		return ""
	}
	if member.User.GlobalName != "" {
		return member.User.GlobalName
	}
	return member.User.Username
}

// RoleName resolves a guild role's name.
func (b *Bot) RoleName(guildID, roleID string) (string, bool) {
	role, err := b.Session().State.Role(guildID, roleID)
	if err != nil || role == nil {
		return "", false
	}
	return role.Name, true
}

// Notify posts an embed notification to a text channel.
func (b *Bot) Notify(channelID, title, description string) error {
	_, err := b.Session().ChannelMessageSendEmbed(channelID, &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       0x5865f2,
	})
	if err != nil {
		slog.Warn("discord: notification failed", "channel_id", channelID, "error", err)
	}
	return err
}
