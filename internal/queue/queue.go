// Package queue holds the per-guild FIFO of pending utterances. Each guild
// has an independent queue consumed by exactly one playback worker, so
// ordering is guaranteed within a guild and unspecified across guilds.
package queue

import (
	"log/slog"
	"sync"
)

// DefaultSoftCap is the per-guild backlog limit. Enqueueing beyond it drops
// the oldest pending item rather than blocking the event path.
const DefaultSoftCap = 512

// Item is one pending utterance. AuthorID is empty for system announcements.
type Item struct {
	Text      string
	AuthorID  string
	SpeakerID int
}

// Manager owns every guild queue.
type Manager struct {
	log     *slog.Logger
	softCap int

	mu     sync.Mutex
	queues map[string][]Item
}

// NewManager creates an empty queue manager. softCap <= 0 selects
// [DefaultSoftCap].
func NewManager(log *slog.Logger, softCap int) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if softCap <= 0 {
		softCap = DefaultSoftCap
	}
	return &Manager{
		log:     log,
		softCap: softCap,
		queues:  make(map[string][]Item),
	}
}

// Enqueue appends an item to a guild's queue. When the queue is at the soft
// cap the oldest pending item is dropped with a warning so recent messages
// keep flowing.
func (m *Manager) Enqueue(guildID string, item Item) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queues[guildID]
	if len(q) >= m.softCap {
		dropped := q[0]
		q = q[1:]
		m.log.Warn("queue at capacity, dropping oldest item",
			"guild_id", guildID, "dropped_author", dropped.AuthorID, "backlog", len(q))
	}
	m.queues[guildID] = append(q, item)
}

// TryDequeue pops the oldest item of a guild's queue. The second return is
// false when the queue is empty.
func (m *Manager) TryDequeue(guildID string) (Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queues[guildID]
	if len(q) == 0 {
		return Item{}, false
	}
	item := q[0]
	q = q[1:]
	if len(q) == 0 {
		delete(m.queues, guildID)
	} else {
		m.queues[guildID] = q
	}
	return item, true
}

// Clear discards every pending item of a guild and reports how many were
// dropped.
func (m *Manager) Clear(guildID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.queues[guildID])
	delete(m.queues, guildID)
	return n
}

// Len reports the backlog of a guild's queue.
func (m *Manager) Len(guildID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[guildID])
}

// Drop removes a guild's queue entirely. Used on session teardown.
func (m *Manager) Drop(guildID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.queues, guildID)
}
