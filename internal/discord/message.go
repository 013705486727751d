package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/swiftlybot/yomiage/internal/app"
	"github.com/swiftlybot/yomiage/internal/queue"
)

// skipTrigger empties the guild queue and aborts playback instead of
// being read out.
const skipTrigger = "s"

// SessionControl is the slice of the session manager the relay needs.
type SessionControl interface {
	Session(guildID string) *app.GuildSession
	StopPlayback(guildID string)
	UserSpeakerFor(ctx context.Context, userID string) int
	IsBanned(userID string) bool
}

// IncomingMessage is a text-channel message reduced to what routing
// needs.
type IncomingMessage struct {
	GuildID    string
	ChannelID  string
	MessageID  string
	AuthorID   string
	AuthorBot  bool
	Content    string
	ImageCount int
}

// MessageRelay turns bound-channel chat into queue items.
type MessageRelay struct {
	log    *slog.Logger
	sm     SessionControl
	queues *queue.Manager

	// React acknowledges a skip request on the triggering message.
	React func(channelID, messageID string) error
}

// NewMessageRelay creates a relay. React may be nil when no
// acknowledgement is wanted.
func NewMessageRelay(log *slog.Logger, sm SessionControl, queues *queue.Manager, react func(channelID, messageID string) error) *MessageRelay {
	if log == nil {
		log = slog.Default()
	}
	return &MessageRelay{log: log, sm: sm, queues: queues, React: react}
}

// HandleMessageCreate adapts a gateway message event onto the relay.
func (r *MessageRelay) HandleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	images := 0
	for _, a := range m.Attachments {
		if strings.HasPrefix(a.ContentType, "image/") {
			images++
		}
	}
	r.Handle(context.Background(), IncomingMessage{
		GuildID:    m.GuildID,
		ChannelID:  m.ChannelID,
		MessageID:  m.ID,
		AuthorID:   m.Author.ID,
		AuthorBot:  m.Author.Bot,
		Content:    m.Content,
		ImageCount: images,
	})
}

// Handle routes one message. Bots, direct messages, banned users, and
// channels other than the session's bound text channel are ignored. The
// skip trigger clears the queue and stops playback without ever being
// queued itself; everything else is enqueued with the author's speaker.
func (r *MessageRelay) Handle(ctx context.Context, msg IncomingMessage) {
	if msg.AuthorBot || msg.GuildID == "" {
		return
	}
	if r.sm.IsBanned(msg.AuthorID) {
		return
	}
	gs := r.sm.Session(msg.GuildID)
	if gs == nil || gs.TTSChannelID != msg.ChannelID {
		return
	}

	if strings.TrimSpace(msg.Content) == skipTrigger {
		dropped := r.queues.Clear(msg.GuildID)
		r.sm.StopPlayback(msg.GuildID)
		r.log.Info("skip requested", "guild_id", msg.GuildID, "dropped", dropped)
		if r.React != nil {
			if err := r.React(msg.ChannelID, msg.MessageID); err != nil {
				r.log.Debug("skip acknowledgement failed", "error", err)
			}
		}
		return
	}

	text := effectiveText(msg.Content, msg.ImageCount)
	if text == "" {
		return
	}
	r.queues.Enqueue(msg.GuildID, queue.Item{
		Text:      text,
		AuthorID:  msg.AuthorID,
		SpeakerID: r.sm.UserSpeakerFor(ctx, msg.AuthorID),
	})
}

// effectiveText folds image attachments into the spoken text: images
// without text become "N枚の画像", images with text are appended to it.
func effectiveText(content string, images int) string {
	content = strings.TrimSpace(content)
	switch {
	case images == 0:
		return content
	case content == "":
		return fmt.Sprintf("%d枚の画像", images)
	default:
		return fmt.Sprintf("%s、%d枚の画像", content, images)
	}
}
