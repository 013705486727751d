// Package config provides the configuration schema, loader, and environment
// overrides for the yomiage TTS relay.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file via [Load] and then overlaid with environment variables via
// [ApplyEnv].
type Config struct {
	Discord  DiscordConfig  `yaml:"discord"`
	TTS      TTSConfig      `yaml:"tts"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Voice    VoiceConfig    `yaml:"voice"`
}

// DiscordConfig holds gateway settings.
type DiscordConfig struct {
	// Token is the Discord bot token.
	Token string `yaml:"token"`

	// ShardCount is the number of gateway shards. Used only to bucket metrics.
	ShardCount int `yaml:"shard_count"`

	// AdminID is the user ID allowed to run administrative commands.
	AdminID string `yaml:"admin_id"`
}

// TTSConfig holds synthesis-engine settings.
type TTSConfig struct {
	// EngineURLs lists the base URLs of the available TTS engines.
	// The client picks one at random per call and fails over to the rest.
	EngineURLs []string `yaml:"engine_urls"`

	// DefaultSpeakerID is used when a user has no stored voice preference.
	DefaultSpeakerID int `yaml:"default_speaker_id"`

	// HighLoadTime is an optional daily window "HH:MM-HH:MM" (local time in
	// Timezone, wrap-around across midnight allowed) during which every user
	// is spoken with HighLoadSpeakerID regardless of preference.
	HighLoadTime string `yaml:"high_load_time"`

	// HighLoadSpeakerID is the override speaker applied inside HighLoadTime.
	HighLoadSpeakerID int `yaml:"high_load_speaker_id"`

	// Timezone used to evaluate HighLoadTime. Defaults to Asia/Tokyo.
	Timezone string `yaml:"timezone"`

	// MaxLength is the normalizer's truncation cap in runes.
	MaxLength int `yaml:"max_length"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSL      bool   `yaml:"ssl"`
}

// DSN returns a pgx-compatible connection string with a 1–10 connection pool.
func (d DatabaseConfig) DSN() string {
	ssl := "disable"
	if d.SSL {
		ssl = "require"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_min_conns=1&pool_max_conns=10",
		d.User, d.Password, d.Host, d.Port, d.Name, ssl,
	)
}

// ServerConfig holds the control-plane HTTP server and logging settings.
type ServerConfig struct {
	// HTTPPort is the TCP port for the control-plane HTTP server.
	HTTPPort int `yaml:"http_port"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// Debug suppresses writes to persistence tables used for metrics and
	// state restore.
	Debug bool `yaml:"debug"`
}

// VoiceConfig holds voice-session behaviour knobs.
type VoiceConfig struct {
	// ConnectTimeout is the voice connect timeout in seconds. Default 60.
	ConnectTimeout int `yaml:"connect_timeout"`

	// Reconnect enables startup recovery of persisted voice sessions.
	Reconnect bool `yaml:"reconnect"`
}

// ConnectTimeoutDuration returns the connect timeout as a [time.Duration].
func (v VoiceConfig) ConnectTimeoutDuration() time.Duration {
	secs := v.ConnectTimeout
	if secs <= 0 {
		secs = 60
	}
	return time.Duration(secs) * time.Second
}

// Window is a daily time-of-day window, possibly wrapping across midnight.
type Window struct {
	start, end int // minutes since midnight
}

// ParseWindow parses a "HH:MM-HH:MM" window specification.
func ParseWindow(s string) (Window, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return Window{}, fmt.Errorf("config: window %q must be HH:MM-HH:MM", s)
	}
	start, err := parseClock(parts[0])
	if err != nil {
		return Window{}, err
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return Window{}, err
	}
	return Window{start: start, end: end}, nil
}

func parseClock(s string) (int, error) {
	hm := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(hm) != 2 {
		return 0, fmt.Errorf("config: clock %q must be HH:MM", s)
	}
	h, err := strconv.Atoi(hm[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("config: clock %q has invalid hour", s)
	}
	m, err := strconv.Atoi(hm[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("config: clock %q has invalid minute", s)
	}
	return h*60 + m, nil
}

// Contains reports whether the time-of-day of t falls inside the window.
// A window whose end precedes its start wraps across midnight
// (e.g. 22:00-03:00 contains 23:00 and 02:59 but not 21:59).
func (w Window) Contains(t time.Time) bool {
	now := t.Hour()*60 + t.Minute()
	if w.start <= w.end {
		return w.start <= now && now < w.end
	}
	return now >= w.start || now < w.end
}

// HighLoadWindow returns the parsed high-load window and whether one is
// configured. An unparsable window is treated as absent.
func (t TTSConfig) HighLoadWindow() (Window, bool) {
	if t.HighLoadTime == "" {
		return Window{}, false
	}
	w, err := ParseWindow(t.HighLoadTime)
	if err != nil {
		return Window{}, false
	}
	return w, true
}

// Location returns the timezone used for the high-load window.
func (t TTSConfig) Location() *time.Location {
	name := t.Timezone
	if name == "" {
		name = "Asia/Tokyo"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
