package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config]. A missing file is not an
// error; the config is then built from the environment alone.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return FromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides,
// fills defaults, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a validated [Config] from environment variables alone.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	ApplyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays cfg with the operational environment variables. Empty or
// unset variables leave the corresponding field untouched.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		cfg.Discord.Token = v
	}
	if v := os.Getenv("SHARD_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Discord.ShardCount = n
		}
	}
	if v := os.Getenv("ADMIN_ID"); v != "" {
		cfg.Discord.AdminID = v
	}
	if v := os.Getenv("TTS_ENGINE_URL"); v != "" {
		cfg.TTS.EngineURLs = SplitEngineURLs(v)
	}
	if v := os.Getenv("HIGH_LOAD_TIME"); v != "" {
		cfg.TTS.HighLoadTime = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = n
		}
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_SSL"); v != "" {
		cfg.Database.SSL = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.HTTPPort = n
		}
	}
	if v := os.Getenv("DEBUG"); v != "" {
		cfg.Server.Debug = v == "1"
	}
	if v := os.Getenv("VOICE_CONNECT_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Voice.ConnectTimeout = n
		}
	}
	if v := os.Getenv("RECONNECT"); v != "" {
		cfg.Voice.Reconnect = !strings.EqualFold(v, "false")
	}
}

// SplitEngineURLs splits a comma-separated engine URL list, trimming
// whitespace and dropping empty elements.
func SplitEngineURLs(s string) []string {
	var urls []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			urls = append(urls, strings.TrimRight(part, "/"))
		}
	}
	return urls
}

// EngineURLSource returns a function reporting the current synthesis engine
// list. It re-reads TTS_ENGINE_URL on every call so operators can rotate
// engines without a restart; when the variable is unset or empty the startup
// list is returned instead.
func EngineURLSource(startup []string) func() []string {
	return func() []string {
		if v := os.Getenv("TTS_ENGINE_URL"); v != "" {
			if urls := SplitEngineURLs(v); len(urls) > 0 {
				return urls
			}
		}
		return startup
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Discord.ShardCount <= 0 {
		cfg.Discord.ShardCount = 1
	}
	if cfg.TTS.DefaultSpeakerID == 0 {
		cfg.TTS.DefaultSpeakerID = 1
	}
	if cfg.TTS.HighLoadSpeakerID == 0 {
		cfg.TTS.HighLoadSpeakerID = 3
	}
	if cfg.TTS.MaxLength <= 0 {
		cfg.TTS.MaxLength = 70
	}
	if cfg.Database.Port <= 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Server.HTTPPort <= 0 {
		cfg.Server.HTTPPort = 47722
	}
	if cfg.Voice.ConnectTimeout <= 0 {
		cfg.Voice.ConnectTimeout = 60
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token (or DISCORD_TOKEN) is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if len(cfg.TTS.EngineURLs) == 0 {
		errs = append(errs, errors.New("tts.engine_urls (or TTS_ENGINE_URL) must list at least one engine"))
	}
	for i, u := range cfg.TTS.EngineURLs {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			errs = append(errs, fmt.Errorf("tts.engine_urls[%d] %q must be an http(s) URL", i, u))
		}
	}
	if cfg.TTS.HighLoadTime != "" {
		if _, err := ParseWindow(cfg.TTS.HighLoadTime); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.Database.Host == "" {
		errs = append(errs, errors.New("database.host (or DB_HOST) is required"))
	}

	return errors.Join(errs...)
}
