package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

// presenceInterval is how often the gateway presence is refreshed.
const presenceInterval = 10 * time.Second

// RunPresence keeps the gateway activity line current until ctx is
// cancelled. sessions is read each tick.
func (b *Bot) RunPresence(ctx context.Context, sessions func() int) error {
	ticker := time.NewTicker(presenceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.updatePresence(sessions())
		}
	}
}

func (b *Bot) updatePresence(sessions int) {
	status := fmt.Sprintf("/join | %dサーバー | %dVC | %dms",
		b.GuildCount(), sessions, b.Latency().Milliseconds())
	err := b.Session().UpdateStatusComplex(discordgo.UpdateStatusData{
		Activities: []*discordgo.Activity{{
			Name: status,
			Type: discordgo.ActivityTypeGame,
		}},
		Status: string(discordgo.StatusOnline),
	})
	if err != nil {
		slog.Debug("discord: presence update failed", "error", err)
	}
}
