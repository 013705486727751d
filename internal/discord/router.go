package discord

import (
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// HandlerFunc is the signature for slash command handlers.
type HandlerFunc func(s *discordgo.Session, i *discordgo.InteractionCreate)

// commandEntry stores a command definition along with its handler.
type commandEntry struct {
	command *discordgo.ApplicationCommand
	handler HandlerFunc
}

// CommandRouter dispatches slash command interactions to registered
// handlers, keyed "command" or "command/subcommand".
type CommandRouter struct {
	mu       sync.RWMutex
	commands map[string]commandEntry
}

// NewCommandRouter creates an empty router.
func NewCommandRouter() *CommandRouter {
	return &CommandRouter{commands: make(map[string]commandEntry)}
}

// RegisterCommand registers a handler. Only top-level commands carry a
// definition; subcommand handlers register under "parent/sub" with a
// nil cmd.
func (r *CommandRouter) RegisterCommand(key string, cmd *discordgo.ApplicationCommand, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[key] = commandEntry{command: cmd, handler: handler}
}

// ApplicationCommands returns the deduplicated top-level command
// definitions for registration with the Discord API.
func (r *CommandRouter) ApplicationCommands() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var cmds []*discordgo.ApplicationCommand
	for _, entry := range r.commands {
		if entry.command != nil && !seen[entry.command.Name] {
			seen[entry.command.Name] = true
			cmds = append(cmds, entry.command)
		}
	}
	return cmds
}

// Handle dispatches an interaction to the matching handler.
func (r *CommandRouter) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	key := interactionKey(i.ApplicationCommandData())

	r.mu.RLock()
	entry, ok := r.commands[key]
	r.mu.RUnlock()

	if !ok {
		slog.Warn("discord: unknown command", "key", key)
		RespondEphemeral(s, i, "不明なコマンドです。")
		return
	}
	entry.handler(s, i)
}

// interactionKey builds a router key from an interaction.
func interactionKey(data discordgo.ApplicationCommandInteractionData) string {
	key := data.Name
	if len(data.Options) > 0 && data.Options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		key += "/" + data.Options[0].Name
	}
	return key
}
