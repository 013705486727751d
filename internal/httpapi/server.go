// Package httpapi is the relay's control plane. It serves dictionary
// reads and cache-invalidation webhooks for the companion dashboard,
// voice samples, the guild count, health probes, and Prometheus
// metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/swiftlybot/yomiage/internal/dictionary"
	"github.com/swiftlybot/yomiage/internal/store"
	"github.com/swiftlybot/yomiage/internal/tts"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// DictionaryReader serves the user tier to the dashboard.
type DictionaryReader interface {
	UserDictionary(ctx context.Context, userID string) ([]store.Entry, error)
}

// Invalidator drops cached dictionary tiers.
type Invalidator interface {
	Invalidate(ctx context.Context, scope dictionary.Scope, key string)
}

// Synthesizer produces voice samples.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, speakerID int, speed float64) (*tts.Result, error)
}

// VoicePrefs exposes speaker-preference cache control.
type VoicePrefs interface {
	InvalidateUserVoice(userID string)
}

// Config wires a [Server].
type Config struct {
	Logger     *slog.Logger
	Dictionary DictionaryReader
	Cache      Invalidator
	Synth      Synthesizer
	Voices     VoicePrefs

	// Guilds reports the current guild count; Ready gates /servers and
	// /readyz until the gateway handshake finished.
	Guilds func() int
	Ready  func() bool

	// PingDB probes the database for readiness.
	PingDB func(ctx context.Context) error
}

// Server is the control-plane HTTP handler.
type Server struct {
	log *slog.Logger
	cfg Config
	mux *http.ServeMux

	sampleMu sync.Mutex
	samples  map[int][]byte
}

// New creates a Server and registers its routes.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		log:     cfg.Logger,
		cfg:     cfg,
		mux:     http.NewServeMux(),
		samples: make(map[int][]byte),
	}
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /servers", s.handleServers)
	s.mux.HandleFunc("GET /user-dictionary/{userId}", s.handleUserDictionary)
	s.mux.HandleFunc("POST /user-dictionary/notify", s.handleUserDictionaryNotify)
	s.mux.HandleFunc("POST /guild-dictionary/notify", s.handleGuildDictionaryNotify)
	s.mux.HandleFunc("POST /user-voice/notify", s.handleUserVoiceNotify)
	s.mux.HandleFunc("GET /voice-sample/{speakerId}", s.handleVoiceSample)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("control plane listening", "addr", addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("httpapi: serve: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpapi: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	status := http.StatusOK

	if s.cfg.Ready != nil && !s.cfg.Ready() {
		checks["gateway"] = "fail: handshake not finished"
		status = http.StatusServiceUnavailable
	} else {
		checks["gateway"] = "ok"
	}
	if s.cfg.PingDB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := s.cfg.PingDB(ctx)
		cancel()
		if err != nil {
			checks["database"] = "fail: " + err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	body := map[string]any{"status": "ok", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "fail"
	}
	writeJSON(w, status, body)
}

func (s *Server) handleServers(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.Ready != nil && !s.cfg.Ready() {
		writeError(w, http.StatusServiceUnavailable, "gateway not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": s.cfg.Guilds()})
}

func (s *Server) handleUserDictionary(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	entries, err := s.cfg.Dictionary.UserDictionary(r.Context(), userID)
	if err != nil {
		s.log.Warn("user dictionary read failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "dictionary read failed")
		return
	}
	type entry struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	out := make([]entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, entry{Key: e.Key, Value: e.Value})
	}
	writeJSON(w, http.StatusOK, map[string]any{"dictionary": out})
}

// notifyBody is shared by the dashboard's invalidation webhooks.
type notifyBody struct {
	UserID  string `json:"user_id"`
	GuildID string `json:"guild_id"`
}

func (s *Server) handleUserDictionaryNotify(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeNotify(w, r)
	if !ok {
		return
	}
	if body.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	s.cfg.Cache.Invalidate(r.Context(), dictionary.ScopeUser, body.UserID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGuildDictionaryNotify(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeNotify(w, r)
	if !ok {
		return
	}
	if body.GuildID == "" {
		writeError(w, http.StatusBadRequest, "guild_id is required")
		return
	}
	s.cfg.Cache.Invalidate(r.Context(), dictionary.ScopeGuild, body.GuildID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUserVoiceNotify(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeNotify(w, r)
	if !ok {
		return
	}
	if body.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	s.cfg.Voices.InvalidateUserVoice(body.UserID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleVoiceSample synthesizes a short self-introduction for one
// catalogue voice. Samples are cached for the process lifetime since
// the text never changes.
func (s *Server) handleVoiceSample(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("speakerId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid speaker id")
		return
	}
	sp, ok := tts.CatalogueSpeaker(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown speaker")
		return
	}

	s.sampleMu.Lock()
	wav, cached := s.samples[id]
	s.sampleMu.Unlock()
	if !cached {
		res, err := s.cfg.Synth.Synthesize(r.Context(), fmt.Sprintf("こんにちは、%sです。よろしくお願いします。", sp.Name), id, 0)
		if err != nil {
			s.log.Warn("voice sample synthesis failed", "speaker_id", id, "error", err)
			writeError(w, http.StatusBadGateway, "synthesis failed")
			return
		}
		wav = res.WAV
		s.sampleMu.Lock()
		s.samples[id] = wav
		s.sampleMu.Unlock()
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(wav)))
	if _, err := w.Write(wav); err != nil {
		s.log.Debug("voice sample write failed", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeNotify(w http.ResponseWriter, r *http.Request) (notifyBody, bool) {
	var body notifyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return notifyBody{}, false
	}
	return body, true
}
