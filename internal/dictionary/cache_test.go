package dictionary

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/swiftlybot/yomiage/internal/store"
)

// mockStorage implements Storage and records calls.
type mockStorage struct {
	mu          sync.Mutex
	global      []store.Entry
	guilds      map[string][]store.Entry
	users       map[string][]store.Entry
	globalErr   error
	guildCalls  int
	userCalls   int
	globalCalls int
}

func (m *mockStorage) GlobalDictionary(context.Context) ([]store.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globalCalls++
	if m.globalErr != nil {
		return nil, m.globalErr
	}
	return m.global, nil
}

func (m *mockStorage) GuildDictionary(_ context.Context, guildID string) ([]store.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guildCalls++
	return m.guilds[guildID], nil
}

func (m *mockStorage) UserDictionary(_ context.Context, userID string) ([]store.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userCalls++
	return m.users[userID], nil
}

func newTestCache(s *mockStorage) *Cache {
	return NewCache(CacheConfig{Storage: s})
}

func TestSnapshotLazyLoadsAndCaches(t *testing.T) {
	t.Parallel()

	s := &mockStorage{
		guilds: map[string][]store.Entry{"g1": {{Key: "cat", Value: "ねこ"}}},
		users:  map[string][]store.Entry{"u1": {{Key: "ねこ", Value: "CAT"}}},
	}
	c := newTestCache(s)
	ctx := context.Background()

	snap := c.Snapshot(ctx, "g1", "u1")
	if len(snap.Guild) != 1 || snap.Guild[0].Key != "cat" {
		t.Errorf("snap.Guild = %+v", snap.Guild)
	}
	if len(snap.User) != 1 || snap.User[0].Key != "ねこ" {
		t.Errorf("snap.User = %+v", snap.User)
	}

	// Second snapshot must be served from cache.
	c.Snapshot(ctx, "g1", "u1")
	if s.guildCalls != 1 {
		t.Errorf("guild storage calls = %d, want 1", s.guildCalls)
	}
	if s.userCalls != 1 {
		t.Errorf("user storage calls = %d, want 1", s.userCalls)
	}
}

func TestSnapshotSkipsAbsentScopes(t *testing.T) {
	t.Parallel()

	s := &mockStorage{}
	c := newTestCache(s)

	snap := c.Snapshot(context.Background(), "", "")
	if snap.Guild != nil || snap.User != nil {
		t.Errorf("Snapshot with no IDs loaded tiers: %+v", snap)
	}
	if s.guildCalls != 0 || s.userCalls != 0 {
		t.Errorf("storage calls = (%d, %d), want none", s.guildCalls, s.userCalls)
	}
}

func TestInvalidateGuildForcesReload(t *testing.T) {
	t.Parallel()

	s := &mockStorage{guilds: map[string][]store.Entry{"g1": {{Key: "a", Value: "b"}}}}
	c := newTestCache(s)
	ctx := context.Background()

	c.Snapshot(ctx, "g1", "")
	s.mu.Lock()
	s.guilds["g1"] = []store.Entry{{Key: "a", Value: "c"}}
	s.mu.Unlock()

	// Still cached.
	if snap := c.Snapshot(ctx, "g1", ""); snap.Guild[0].Value != "b" {
		t.Fatalf("pre-invalidate Guild = %+v, want cached value", snap.Guild)
	}

	c.Invalidate(ctx, ScopeGuild, "g1")
	if snap := c.Snapshot(ctx, "g1", ""); snap.Guild[0].Value != "c" {
		t.Errorf("post-invalidate Guild = %+v, want reloaded value", snap.Guild)
	}
}

func TestInvalidateGlobalRefreshesImmediately(t *testing.T) {
	t.Parallel()

	s := &mockStorage{global: []store.Entry{{Key: "x", Value: "y"}}}
	c := newTestCache(s)
	ctx := context.Background()

	c.Invalidate(ctx, ScopeGlobal, "")
	snap := c.Snapshot(ctx, "", "")
	if len(snap.Global) != 1 || snap.Global[0].Key != "x" {
		t.Errorf("Global after invalidate = %+v", snap.Global)
	}
}

func TestGlobalRefreshFailureKeepsCachedEntries(t *testing.T) {
	t.Parallel()

	s := &mockStorage{global: []store.Entry{{Key: "x", Value: "y"}}}
	c := newTestCache(s)
	ctx := context.Background()

	c.Invalidate(ctx, ScopeGlobal, "")

	s.mu.Lock()
	s.globalErr = errors.New("db down")
	s.mu.Unlock()
	c.Invalidate(ctx, ScopeGlobal, "")

	snap := c.Snapshot(ctx, "", "")
	if len(snap.Global) != 1 {
		t.Errorf("Global after failed refresh = %+v, want stale entries kept", snap.Global)
	}
}
