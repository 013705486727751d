// Package app owns the per-guild voice sessions: connecting and leaving,
// recovery after drops and restarts, the playback workers consuming the
// guild queues, and the speaker-preference resolution feeding them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/swiftlybot/yomiage/internal/config"
	"github.com/swiftlybot/yomiage/internal/normalize"
	"github.com/swiftlybot/yomiage/internal/observe"
	"github.com/swiftlybot/yomiage/internal/queue"
	"github.com/swiftlybot/yomiage/internal/store"
	"github.com/swiftlybot/yomiage/internal/voice"
)

// connectAttempts is how many times the connect helper tries one channel
// before giving up. Backoff doubles from one second between attempts.
const connectAttempts = 3

// Storage is the persistence surface the manager needs.
type Storage interface {
	VCStates(ctx context.Context) ([]store.VCState, error)
	VCState(ctx context.Context, guildID string) (*store.VCState, error)
	UpsertVCState(ctx context.Context, st store.VCState) error
	DeleteVCState(ctx context.Context, guildID string) error
	UserSpeakerID(ctx context.Context, userID string) (string, error)
	VoiceSpeed(ctx context.Context, guildID string) (float64, bool, error)
	AutojoinRule(ctx context.Context, guildID string) (*store.AutojoinRule, error)
	Banlist(ctx context.Context) ([]string, error)
	AddBan(ctx context.Context, userID string) error
	RemoveBan(ctx context.Context, userID string) error
}

// Synthesizer produces WAV files for the workers.
type Synthesizer interface {
	SynthesizeToFile(ctx context.Context, text string, speakerID int, speed float64, name string) (string, error)
}

// TextNormalizer rewrites raw text for speech.
type TextNormalizer interface {
	Normalize(ctx context.Context, text string, nctx normalize.Context) string
}

// Roster answers membership and naming questions against the gateway state.
type Roster interface {
	// NonBotMembers counts human members currently in a voice channel.
	NonBotMembers(guildID, channelID string) int

	// DisplayName resolves a member's display name; "" on miss.
	DisplayName(guildID, userID string) string

	// RoleName resolves a role name.
	RoleName(guildID, roleID string) (string, bool)
}

// Notifier posts rich notifications to text channels.
type Notifier interface {
	Notify(channelID, title, description string) error
}

// GuildSession is one live voice occupation plus its worker.
type GuildSession struct {
	GuildID      string
	ChannelID    string
	TTSChannelID string

	handle voice.Handle
	cancel context.CancelFunc
	done   chan struct{}
}

// ManagerConfig holds all dependencies for a [SessionManager].
type ManagerConfig struct {
	Platform   voice.Platform
	Storage    Storage
	Queues     *queue.Manager
	Synth      Synthesizer
	Normalizer TextNormalizer
	Roster     Roster
	Notifier   Notifier
	Metrics    *observe.Metrics
	Logger     *slog.Logger

	TTS            config.TTSConfig
	ConnectTimeout time.Duration

	// Debug suppresses vc_state writes so test runs do not disturb restore
	// data.
	Debug bool

	// Reconnect gates startup recovery.
	Reconnect bool

	// Now is the clock used for the high-load window. Defaults to time.Now.
	Now func() time.Time
}

// SessionManager manages every guild's voice session. All exported methods
// are safe for concurrent use.
type SessionManager struct {
	platform voice.Platform
	storage  Storage
	queues   *queue.Manager
	synth    Synthesizer
	norm     TextNormalizer
	roster   Roster
	notifier Notifier
	metrics  *observe.Metrics
	log      *slog.Logger

	tts            config.TTSConfig
	connectTimeout time.Duration
	debug          bool
	reconnect      bool
	now            func() time.Time
	backoffBase    time.Duration

	mu           sync.Mutex
	sessions     map[string]*GuildSession
	connectLocks map[string]*sync.Mutex

	speakerMu    sync.Mutex
	speakerCache map[string]string

	banMu sync.RWMutex
	bans  map[string]struct{}
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg ManagerConfig) *SessionManager {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &SessionManager{
		platform:       cfg.Platform,
		storage:        cfg.Storage,
		queues:         cfg.Queues,
		synth:          cfg.Synth,
		norm:           cfg.Normalizer,
		roster:         cfg.Roster,
		notifier:       cfg.Notifier,
		metrics:        cfg.Metrics,
		log:            log,
		tts:            cfg.TTS,
		connectTimeout: timeout,
		debug:          cfg.Debug,
		reconnect:      cfg.Reconnect,
		now:            now,
		backoffBase:    time.Second,
		sessions:       make(map[string]*GuildSession),
		connectLocks:   make(map[string]*sync.Mutex),
		speakerCache:   make(map[string]string),
		bans:           make(map[string]struct{}),
	}
}

// Session returns a snapshot of the guild's session, or nil.
func (sm *SessionManager) Session(guildID string) *GuildSession {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	gs := sm.sessions[guildID]
	if gs == nil {
		return nil
	}
	snap := *gs
	return &snap
}

// SessionCount reports how many guilds currently have a live session.
func (sm *SessionManager) SessionCount() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// connectLock returns the per-guild mutex serializing connects.
func (sm *SessionManager) connectLock(guildID string) *sync.Mutex {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	l, ok := sm.connectLocks[guildID]
	if !ok {
		l = &sync.Mutex{}
		sm.connectLocks[guildID] = l
	}
	return l
}

// connectVoice is the single choke point for voice-handle lifecycle. It
// serializes connects per guild, reuses a same-channel handle, disconnects a
// different-channel one, and retries transient failures with 1s/2s/4s
// backoff. A 4006 close aborts immediately without touching any existing
// handle.
func (sm *SessionManager) connectVoice(ctx context.Context, guildID, channelID string) (voice.Handle, error) {
	lock := sm.connectLock(guildID)
	lock.Lock()
	defer lock.Unlock()

	sm.mu.Lock()
	existing := sm.sessions[guildID]
	sm.mu.Unlock()
	if existing != nil && existing.handle != nil {
		if existing.ChannelID == channelID {
			return existing.handle, nil
		}
		if err := existing.handle.Disconnect(); err != nil {
			sm.log.Warn("disconnect before channel move failed", "guild_id", guildID, "error", err)
		}
	}

	backoff := sm.backoffBase
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		joinCtx, cancel := context.WithTimeout(ctx, sm.connectTimeout)
		handle, err := sm.platform.Join(joinCtx, guildID, channelID)
		cancel()
		if err == nil {
			return handle, nil
		}
		if errors.Is(err, voice.ErrConnectClosed) {
			// Retrying a 4006 only feeds a reconnect storm. Leave
			// everything as-is and let the next event re-request.
			return nil, err
		}
		lastErr = err
		sm.log.Warn("voice connect attempt failed",
			"guild_id", guildID, "channel_id", channelID, "attempt", attempt, "error", err)
		if attempt < connectAttempts {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("app: connect voice: %w", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("app: connect voice channel %q: %w", channelID, lastErr)
}

// Join connects the guild's session to a voice channel and binds a TTS text
// channel. An existing session is torn down first. On success the playback
// worker starts and a connect announcement is queued with the requester's
// speaker.
func (sm *SessionManager) Join(ctx context.Context, guildID, voiceChannelID, ttsChannelID, requesterID string) error {
	if existing := sm.Session(guildID); existing != nil {
		sm.teardown(ctx, guildID, true)
	}

	handle, err := sm.connectVoice(ctx, guildID, voiceChannelID)
	if err != nil {
		return err
	}

	sm.startSession(handle, guildID, voiceChannelID, ttsChannelID)
	sm.persistState(ctx, store.VCState{GuildID: guildID, ChannelID: voiceChannelID, TTSChannelID: ttsChannelID})

	sm.queues.Enqueue(guildID, queue.Item{
		Text:      "接続しました。",
		SpeakerID: sm.UserSpeakerFor(ctx, requesterID),
	})
	sm.log.Info("joined voice channel",
		"guild_id", guildID, "channel_id", voiceChannelID, "tts_channel_id", ttsChannelID)
	return nil
}

// startSession registers the session and launches its worker.
func (sm *SessionManager) startSession(handle voice.Handle, guildID, voiceChannelID, ttsChannelID string) {
	workerCtx, cancel := context.WithCancel(context.Background())
	gs := &GuildSession{
		GuildID:      guildID,
		ChannelID:    voiceChannelID,
		TTSChannelID: ttsChannelID,
		handle:       handle,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	sm.mu.Lock()
	sm.sessions[guildID] = gs
	sm.mu.Unlock()
	go sm.runWorker(workerCtx, gs)
}

func (sm *SessionManager) persistState(ctx context.Context, st store.VCState) {
	if sm.debug {
		return
	}
	if err := sm.storage.UpsertVCState(ctx, st); err != nil {
		sm.log.Warn("persist voice state failed", "guild_id", st.GuildID, "error", err)
	}
}

// Leave disconnects the guild's session and forgets its persisted state.
func (sm *SessionManager) Leave(ctx context.Context, guildID string) error {
	if sm.Session(guildID) == nil {
		return fmt.Errorf("app: no session for guild %q", guildID)
	}
	sm.teardown(ctx, guildID, true)
	sm.log.Info("left voice channel", "guild_id", guildID)
	return nil
}

// teardown cancels the worker, drops the queue, disconnects the handle, and
// optionally deletes the persisted state.
func (sm *SessionManager) teardown(ctx context.Context, guildID string, deleteState bool) {
	sm.mu.Lock()
	gs := sm.sessions[guildID]
	delete(sm.sessions, guildID)
	sm.mu.Unlock()

	if gs != nil {
		gs.cancel()
		if gs.handle != nil {
			gs.handle.Stop()
			if err := gs.handle.Disconnect(); err != nil {
				sm.log.Warn("voice disconnect failed", "guild_id", guildID, "error", err)
			}
		}
		<-gs.done
	}
	sm.queues.Drop(guildID)

	if deleteState && !sm.debug {
		if err := sm.storage.DeleteVCState(ctx, guildID); err != nil {
			sm.log.Warn("delete voice state failed", "guild_id", guildID, "error", err)
		}
	}
}

// StopPlayback aborts the current utterance of a guild, if any.
func (sm *SessionManager) StopPlayback(guildID string) {
	sm.mu.Lock()
	gs := sm.sessions[guildID]
	sm.mu.Unlock()
	if gs != nil && gs.handle != nil {
		gs.handle.Stop()
	}
}

// ReconnectOnDrop re-reads the persisted state after the gateway dropped the
// bot and attempts one reconnect through the connect helper. If no state is
// persisted or the connect fails, the session is torn down instead.
func (sm *SessionManager) ReconnectOnDrop(ctx context.Context, guildID string) {
	st, err := sm.storage.VCState(ctx, guildID)
	if err != nil {
		sm.log.Warn("read voice state for reconnect failed", "guild_id", guildID, "error", err)
	}
	if st == nil {
		sm.teardown(ctx, guildID, true)
		return
	}

	sm.teardown(ctx, guildID, false)
	handle, err := sm.connectVoice(ctx, guildID, st.ChannelID)
	if err != nil {
		sm.log.Warn("reconnect after drop failed", "guild_id", guildID, "error", err)
		if !sm.debug {
			if derr := sm.storage.DeleteVCState(ctx, guildID); derr != nil {
				sm.log.Warn("delete voice state failed", "guild_id", guildID, "error", derr)
			}
		}
		return
	}
	sm.startSession(handle, guildID, st.ChannelID, st.TTSChannelID)
	sm.log.Info("reconnected after gateway drop", "guild_id", guildID, "channel_id", st.ChannelID)
}

// AutoJoinOnMember connects a session when a member arrives in a watched
// channel. No-op when the guild has no matching rule or already has a
// session.
func (sm *SessionManager) AutoJoinOnMember(ctx context.Context, guildID, channelID string) {
	if sm.Session(guildID) != nil {
		return
	}
	rule, err := sm.storage.AutojoinRule(ctx, guildID)
	if err != nil {
		sm.log.Warn("autojoin rule lookup failed", "guild_id", guildID, "error", err)
		return
	}
	if rule == nil || rule.VCChannelID != channelID {
		return
	}

	handle, err := sm.connectVoice(ctx, guildID, rule.VCChannelID)
	if err != nil {
		sm.log.Warn("autojoin connect failed", "guild_id", guildID, "error", err)
		return
	}
	sm.startSession(handle, guildID, rule.VCChannelID, rule.TTSChannelID)
	sm.persistState(ctx, store.VCState{GuildID: guildID, ChannelID: rule.VCChannelID, TTSChannelID: rule.TTSChannelID})

	if sm.notifier != nil {
		if err := sm.notifier.Notify(rule.TTSChannelID, "自動参加", "ボイスチャンネルに自動参加しました。このチャンネルのメッセージを読み上げます。"); err != nil {
			sm.log.Warn("autojoin notification failed", "guild_id", guildID, "error", err)
		}
	}
	sm.log.Info("auto-joined voice channel", "guild_id", guildID, "channel_id", rule.VCChannelID)
}

// StartupRecover reconnects the sessions persisted by a previous run. Guilds
// whose channel holds no human members are skipped. Disabled entirely when
// reconnect is off or debug is on.
func (sm *SessionManager) StartupRecover(ctx context.Context) {
	if !sm.reconnect || sm.debug {
		sm.log.Info("startup recovery disabled")
		return
	}
	states, err := sm.storage.VCStates(ctx)
	if err != nil {
		sm.log.Error("read persisted voice states failed", "error", err)
		return
	}
	for _, st := range states {
		if sm.roster.NonBotMembers(st.GuildID, st.ChannelID) == 0 {
			sm.log.Info("skipping recovery of empty channel", "guild_id", st.GuildID, "channel_id", st.ChannelID)
			continue
		}
		handle, err := sm.connectVoice(ctx, st.GuildID, st.ChannelID)
		if err != nil {
			sm.log.Warn("startup recovery connect failed", "guild_id", st.GuildID, "error", err)
			continue
		}
		sm.startSession(handle, st.GuildID, st.ChannelID, st.TTSChannelID)
		sm.log.Info("recovered voice session", "guild_id", st.GuildID, "channel_id", st.ChannelID)
	}
}

// Sync reconciles persisted state with live sessions: rows for disconnected
// guilds are deleted and missing rows for connected guilds are inserted.
func (sm *SessionManager) Sync(ctx context.Context) {
	if sm.debug {
		return
	}
	states, err := sm.storage.VCStates(ctx)
	if err != nil {
		sm.log.Warn("sync: read persisted voice states failed", "error", err)
		return
	}

	sm.mu.Lock()
	live := make(map[string]*GuildSession, len(sm.sessions))
	for id, gs := range sm.sessions {
		snap := *gs
		live[id] = &snap
	}
	sm.mu.Unlock()

	persisted := make(map[string]bool, len(states))
	for _, st := range states {
		persisted[st.GuildID] = true
		if live[st.GuildID] == nil {
			if err := sm.storage.DeleteVCState(ctx, st.GuildID); err != nil {
				sm.log.Warn("sync: delete stale state failed", "guild_id", st.GuildID, "error", err)
			}
		}
	}
	for id, gs := range live {
		if persisted[id] {
			continue
		}
		err := sm.storage.UpsertVCState(ctx, store.VCState{
			GuildID: id, ChannelID: gs.ChannelID, TTSChannelID: gs.TTSChannelID,
		})
		if err != nil {
			sm.log.Warn("sync: insert missing state failed", "guild_id", id, "error", err)
		}
	}
}

// RunSync reconciles on a ticker until ctx is cancelled.
func (sm *SessionManager) RunSync(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sm.Sync(ctx)
		}
	}
}

// Shutdown tears down every live session without deleting persisted state,
// so the next start can recover them.
func (sm *SessionManager) Shutdown(ctx context.Context) {
	sm.mu.Lock()
	ids := make([]string, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	sm.mu.Unlock()
	for _, id := range ids {
		sm.teardown(ctx, id, false)
	}
}
