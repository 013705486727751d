package tts

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Janitor removes leftover WAV files from [TmpDir]. Playback normally
// deletes its own file; the janitor mops up after crashes and skipped items.
type Janitor struct {
	log      *slog.Logger
	interval time.Duration
	minAge   time.Duration
}

// NewJanitor creates a janitor sweeping on the given interval (default one
// hour). Files younger than ten minutes are left alone since they may still
// be queued for playback.
func NewJanitor(log *slog.Logger, interval time.Duration) *Janitor {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{log: log, interval: interval, minAge: 10 * time.Minute}
}

// Run sweeps until ctx is cancelled. It blocks and always returns nil so it
// can run directly under an errgroup.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep removes stale WAV files once.
func (j *Janitor) Sweep() {
	matches, err := filepath.Glob(filepath.Join(TmpDir, "*.wav"))
	if err != nil {
		j.log.Warn("tmp sweep glob failed", "error", err)
		return
	}
	cutoff := time.Now().Add(-j.minAge)
	removed := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err == nil {
			removed++
		}
	}
	if removed > 0 {
		j.log.Info("removed stale synthesis files", "count", removed)
	}
}
