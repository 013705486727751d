package app

import (
	"context"
	"log/slog"
	"time"
)

// GuildCountStore persists guild-count samples.
type GuildCountStore interface {
	InsertGuildCount(ctx context.Context, count int) error
}

// StatsRecorder samples the guild count into storage each minute. The store
// prunes samples older than a day on every insert. Debug runs record
// nothing.
type StatsRecorder struct {
	log      *slog.Logger
	store    GuildCountStore
	guilds   func() int
	debug    bool
	interval time.Duration
}

// NewStatsRecorder creates a recorder. guilds is read each tick.
func NewStatsRecorder(log *slog.Logger, store GuildCountStore, guilds func() int, debug bool) *StatsRecorder {
	if log == nil {
		log = slog.Default()
	}
	return &StatsRecorder{
		log:      log,
		store:    store,
		guilds:   guilds,
		debug:    debug,
		interval: time.Minute,
	}
}

// Run records until ctx is cancelled. It blocks and always returns nil so it
// can run directly under an errgroup.
func (r *StatsRecorder) Run(ctx context.Context) error {
	if r.debug {
		r.log.Info("guild-count recording disabled in debug mode")
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.store.InsertGuildCount(ctx, r.guilds()); err != nil {
				r.log.Warn("guild count insert failed", "error", err)
			}
		}
	}
}
