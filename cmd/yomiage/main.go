// Command yomiage is the Discord TTS relay server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/swiftlybot/yomiage/internal/app"
	"github.com/swiftlybot/yomiage/internal/config"
	"github.com/swiftlybot/yomiage/internal/dictionary"
	discordbot "github.com/swiftlybot/yomiage/internal/discord"
	"github.com/swiftlybot/yomiage/internal/httpapi"
	"github.com/swiftlybot/yomiage/internal/normalize"
	"github.com/swiftlybot/yomiage/internal/observe"
	"github.com/swiftlybot/yomiage/internal/queue"
	"github.com/swiftlybot/yomiage/internal/store"
	"github.com/swiftlybot/yomiage/internal/tts"
	"github.com/swiftlybot/yomiage/internal/voice"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "yomiage: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)
	slog.Info("yomiage starting",
		"config", *configPath,
		"engines", len(cfg.TTS.EngineURLs),
		"debug", cfg.Server.Debug,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Database ──────────────────────────────────────────────────────────────
	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		slog.Error("database pool creation failed", "error", err)
		return 1
	}
	defer pool.Close()

	st := store.New(pool)
	if err := st.Migrate(ctx); err != nil {
		slog.Error("database migration failed", "error", err)
		return 1
	}
	slog.Info("database ready", "host", cfg.Database.Host, "name", cfg.Database.Name)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("metrics provider init failed", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown failed", "error", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("metrics registration failed", "error", err)
		return 1
	}

	// ── Synthesis ─────────────────────────────────────────────────────────────
	synth := tts.NewClient(tts.Config{
		Engines:    config.EngineURLSource(cfg.TTS.EngineURLs),
		Logger:     logger.With("component", "tts"),
		RecordRate: metrics.RecordGenerationRate,
	})

	// ── Text pipeline ─────────────────────────────────────────────────────────
	dict := dictionary.NewCache(dictionary.CacheConfig{
		Storage: st,
		Logger:  logger.With("component", "dictionary"),
	})
	norm := normalize.New(dict, cfg.TTS.MaxLength)
	queues := queue.NewManager(logger.With("component", "queue"), 0)

	// ── Discord gateway ───────────────────────────────────────────────────────
	bot, err := discordbot.New(ctx, discordbot.Config{
		Token:      cfg.Discord.Token,
		ShardCount: cfg.Discord.ShardCount,
		AdminID:    cfg.Discord.AdminID,
	})
	if err != nil {
		slog.Error("discord connect failed", "error", err)
		return 1
	}
	defer func() {
		if err := bot.Close(); err != nil {
			slog.Warn("discord close failed", "error", err)
		}
	}()

	// ── Session manager ───────────────────────────────────────────────────────
	sessions := app.NewSessionManager(app.ManagerConfig{
		Platform:       voice.NewDiscordPlatform(bot.Session()),
		Storage:        st,
		Queues:         queues,
		Synth:          synth,
		Normalizer:     norm,
		Roster:         bot,
		Notifier:       bot,
		Metrics:        metrics,
		Logger:         logger.With("component", "session"),
		TTS:            cfg.TTS,
		ConnectTimeout: cfg.Voice.ConnectTimeoutDuration(),
		Debug:          cfg.Server.Debug,
		Reconnect:      cfg.Voice.Reconnect,
	})
	if err := sessions.LoadBans(ctx); err != nil {
		slog.Warn("ban list load failed", "error", err)
	}

	// ── Gateway event wiring ──────────────────────────────────────────────────
	relay := discordbot.NewMessageRelay(logger.With("component", "relay"), sessions, queues,
		func(channelID, messageID string) error {
			return bot.Session().MessageReactionAdd(channelID, messageID, "✅")
		})
	bot.Session().AddHandler(relay.HandleMessageCreate)

	voiceRouter := discordbot.NewVoiceRouter(sessions, bot.SelfID)
	bot.Session().AddHandler(voiceRouter.HandleVoiceStateUpdate)

	discordbot.RegisterCommands(discordbot.CommandDeps{
		Bot:      bot,
		Sessions: sessions,
		Store:    st,
		Dict:     dict,
	})

	sessions.StartupRecover(ctx)

	// ── Control plane ─────────────────────────────────────────────────────────
	api := httpapi.New(httpapi.Config{
		Logger:     logger.With("component", "httpapi"),
		Dictionary: st,
		Cache:      dict,
		Synth:      synth,
		Voices:     sessions,
		Guilds:     bot.GuildCount,
		Ready:      func() bool { return bot.SelfID() != "" },
		PingDB:     pool.Ping,
	})

	// ── Background loops ──────────────────────────────────────────────────────
	sampler := observe.NewSampler(observe.SamplerConfig{
		Metrics:       metrics,
		VoiceSessions: sessions.SessionCount,
		Guilds:        bot.GuildCount,
		Latency:       bot.Latency,
		ShardID:       0,
	})
	janitor := tts.NewJanitor(logger.With("component", "janitor"), 0)
	stats := app.NewStatsRecorder(logger.With("component", "stats"), st, bot.GuildCount, cfg.Server.Debug)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.Run(gctx) })
	g.Go(func() error { return api.Run(gctx, fmt.Sprintf(":%d", cfg.Server.HTTPPort)) })
	g.Go(func() error { return dict.Start(gctx) })
	g.Go(func() error { return sessions.RunSync(gctx, 0) })
	g.Go(func() error { return sampler.Run(gctx) })
	g.Go(func() error { return janitor.Run(gctx) })
	g.Go(func() error { return stats.Run(gctx) })
	g.Go(func() error { return bot.RunPresence(gctx, sessions.SessionCount) })

	slog.Info("yomiage ready", "http_port", cfg.Server.HTTPPort)

	err = g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	sessions.Shutdown(shutdownCtx)

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "error", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// newLogger builds the process logger at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
