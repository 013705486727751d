// Package dictionary caches the three substitution tiers (global, per-guild,
// per-user) in memory so the playback path never waits on the database.
package dictionary

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/swiftlybot/yomiage/internal/store"
)

// Scope names one of the three dictionary tiers.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeGuild  Scope = "guild"
	ScopeUser   Scope = "user"
)

// Snapshot is the set of entries a single normalization pass works from.
// Substitution applies Global first, then Guild, then User.
type Snapshot struct {
	Global []store.Entry
	Guild  []store.Entry
	User   []store.Entry
}

// Storage is the subset of [store.Store] the cache reads from.
type Storage interface {
	GlobalDictionary(ctx context.Context) ([]store.Entry, error)
	GuildDictionary(ctx context.Context, guildID string) ([]store.Entry, error)
	UserDictionary(ctx context.Context, userID string) ([]store.Entry, error)
}

// CacheConfig carries the dependencies for [NewCache].
type CacheConfig struct {
	Storage Storage
	Logger  *slog.Logger

	// RefreshInterval is how often the global tier is re-read. Defaults to
	// 10 seconds.
	RefreshInterval time.Duration
}

// Cache holds the three tiers under one lock. The global tier is refreshed on
// a ticker; guild and user tiers load lazily on first use and are dropped on
// [Cache.Invalidate]. Storage failures keep whatever was cached before.
type Cache struct {
	storage         Storage
	log             *slog.Logger
	refreshInterval time.Duration

	mu     sync.Mutex
	global []store.Entry
	guilds map[string][]store.Entry
	users  map[string][]store.Entry
}

// NewCache creates an empty cache. Call [Cache.Start] to begin the global
// refresh loop.
func NewCache(cfg CacheConfig) *Cache {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Cache{
		storage:         cfg.Storage,
		log:             log,
		refreshInterval: interval,
		guilds:          make(map[string][]store.Entry),
		users:           make(map[string][]store.Entry),
	}
}

// Start loads the global tier and then refreshes it periodically until ctx is
// cancelled. It blocks and always returns nil after cancellation so it can
// run directly under an errgroup.
func (c *Cache) Start(ctx context.Context) error {
	c.refreshGlobal(ctx)
	ticker := time.NewTicker(c.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.refreshGlobal(ctx)
		}
	}
}

func (c *Cache) refreshGlobal(ctx context.Context) {
	entries, err := c.storage.GlobalDictionary(ctx)
	if err != nil {
		c.log.Warn("global dictionary refresh failed, serving cached entries", "error", err)
		return
	}
	c.mu.Lock()
	c.global = entries
	c.mu.Unlock()
}

// Snapshot returns the entries for one normalization pass. Guild and user
// tiers not yet cached are fetched from storage; a fetch failure yields an
// empty tier for this pass and is retried on the next.
func (c *Cache) Snapshot(ctx context.Context, guildID, userID string) Snapshot {
	var snap Snapshot

	c.mu.Lock()
	snap.Global = c.global
	guild, guildOK := c.guilds[guildID]
	user, userOK := c.users[userID]
	c.mu.Unlock()

	if guildID != "" {
		if !guildOK {
			guild = c.loadTier(ctx, ScopeGuild, guildID)
		}
		snap.Guild = guild
	}
	if userID != "" {
		if !userOK {
			user = c.loadTier(ctx, ScopeUser, userID)
		}
		snap.User = user
	}
	return snap
}

// loadTier fetches one guild or user tier and caches it. The fetch runs
// outside the lock; a concurrent load of the same key wins by whoever stores
// last, which is harmless since both read the same table.
func (c *Cache) loadTier(ctx context.Context, scope Scope, key string) []store.Entry {
	var (
		entries []store.Entry
		err     error
	)
	switch scope {
	case ScopeGuild:
		entries, err = c.storage.GuildDictionary(ctx, key)
	case ScopeUser:
		entries, err = c.storage.UserDictionary(ctx, key)
	}
	if err != nil {
		c.log.Warn("dictionary tier load failed", "scope", scope, "key", key, "error", err)
		return nil
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	c.mu.Lock()
	switch scope {
	case ScopeGuild:
		c.guilds[key] = entries
	case ScopeUser:
		c.users[key] = entries
	}
	c.mu.Unlock()
	return entries
}

// Invalidate drops cached entries after an external edit. For the guild and
// user tiers key is the guild or user ID and the tier reloads lazily on the
// next snapshot; for the global tier key is ignored and the tier is re-read
// immediately.
func (c *Cache) Invalidate(ctx context.Context, scope Scope, key string) {
	switch scope {
	case ScopeGlobal:
		c.refreshGlobal(ctx)
	case ScopeGuild:
		c.mu.Lock()
		delete(c.guilds, key)
		c.mu.Unlock()
	case ScopeUser:
		c.mu.Lock()
		delete(c.users, key)
		c.mu.Unlock()
	}
}
