// Package discord is the gateway layer of the relay. It owns the
// discordgo.Session lifecycle, translates gateway events into the
// session manager's domain types, relays text-channel messages into the
// guild queues, and serves the minimal slash command surface.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Config holds the gateway configuration.
type Config struct {
	// Token is the raw bot token, without the "Bot " prefix.
	Token string

	// ShardID and ShardCount configure gateway sharding. ShardCount of 0
	// or 1 disables sharding.
	ShardID    int
	ShardCount int

	// AdminID is the user allowed to run moderation commands. Empty
	// disables them.
	AdminID string
}

// Bot owns the Discord gateway connection.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	router    *CommandRouter
	adminID   string
	commands  []*discordgo.ApplicationCommand
	closeOnce sync.Once
}

// New creates a Bot and connects to the gateway. Message content is
// needed to read out chat, voice states to follow members.
func New(_ context.Context, cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent
	if cfg.ShardCount > 1 {
		session.Identify.Shard = &[2]int{cfg.ShardID, cfg.ShardCount}
	}
	session.StateEnabled = true

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}

	b := &Bot{
		session: session,
		router:  NewCommandRouter(),
		adminID: cfg.AdminID,
	}
	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})
	return b, nil
}

// Session returns the underlying discordgo session for subsystems that
// need direct API access.
func (b *Bot) Session() *discordgo.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// SelfID returns the bot's own user ID.
func (b *Bot) SelfID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.session.State == nil || b.session.State.User == nil {
		return ""
	}
	return b.session.State.User.ID
}

// GuildCount reports how many guilds this shard sees.
func (b *Bot) GuildCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.session.State == nil {
		return 0
	}
	return len(b.session.State.Guilds)
}

// Latency returns the current gateway heartbeat latency.
func (b *Bot) Latency() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session.HeartbeatLatency()
}

// IsAdmin reports whether the user may run moderation commands.
func (b *Bot) IsAdmin(userID string) bool {
	return b.adminID != "" && userID == b.adminID
}

// Run registers the slash commands globally and blocks until ctx is
// cancelled.
func (b *Bot) Run(ctx context.Context) error {
	appID := b.SelfID()
	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, "", cmds)
		if err != nil {
			return fmt.Errorf("discord: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("discord commands registered", "count", len(registered))
	}

	<-ctx.Done()
	return ctx.Err()
}

// Close disconnects from the gateway.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if err := b.session.Close(); err != nil {
			closeErr = fmt.Errorf("discord: close session: %w", err)
		}
		slog.Info("discord bot closed")
	})
	return closeErr
}
