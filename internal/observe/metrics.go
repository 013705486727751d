package observe

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all relay metrics.
const meterName = "github.com/swiftlybot/yomiage"

// Metrics holds the relay's metric instruments plus the per-minute activity
// counters behind them. All methods are safe for concurrent use.
type Metrics struct {
	// VoiceSessions is the number of voice channels currently occupied.
	VoiceSessions metric.Int64Gauge

	// Guilds is the number of guilds the relay is a member of.
	Guilds metric.Int64Gauge

	// LatencyMS is the gateway heartbeat latency in milliseconds.
	LatencyMS metric.Float64Gauge

	// TTSPerMinute is the number of utterances played in the last minute.
	TTSPerMinute metric.Int64Gauge

	// ErrorsPerMinute is the number of pipeline errors in the last minute.
	ErrorsPerMinute metric.Int64Gauge

	// GenerationRate is processing seconds spent per minute of synthesized
	// audio, as published by the TTS client.
	GenerationRate metric.Float64Gauge

	ttsCount   atomic.Int64
	errorCount atomic.Int64
}

// NewMetrics creates a fully initialised [Metrics] using the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.VoiceSessions, err = m.Int64Gauge("yomiage.voice.sessions",
		metric.WithDescription("Number of voice channels currently occupied."),
	); err != nil {
		return nil, err
	}
	if met.Guilds, err = m.Int64Gauge("yomiage.guilds",
		metric.WithDescription("Number of guilds the relay is a member of."),
	); err != nil {
		return nil, err
	}
	if met.LatencyMS, err = m.Float64Gauge("yomiage.gateway.latency",
		metric.WithDescription("Gateway heartbeat latency."),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if met.TTSPerMinute, err = m.Int64Gauge("yomiage.tts.per_minute",
		metric.WithDescription("Utterances played in the last minute."),
	); err != nil {
		return nil, err
	}
	if met.ErrorsPerMinute, err = m.Int64Gauge("yomiage.errors.per_minute",
		metric.WithDescription("Pipeline errors in the last minute."),
	); err != nil {
		return nil, err
	}
	if met.GenerationRate, err = m.Float64Gauge("yomiage.tts.seconds_per_minute",
		metric.WithDescription("Processing seconds spent per minute of synthesized audio."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// CountTTS records one played utterance. The sampler publishes and resets
// the count each minute.
func (m *Metrics) CountTTS() { m.ttsCount.Add(1) }

// CountError records one pipeline error.
func (m *Metrics) CountError() { m.errorCount.Add(1) }

// RecordGenerationRate publishes the TTS client's seconds-per-minute figure.
func (m *Metrics) RecordGenerationRate(secondsPerMinute float64) {
	m.GenerationRate.Record(context.Background(), secondsPerMinute)
}

// SamplerConfig carries the dependencies for [NewSampler]. The snapshot
// functions are read each tick.
type SamplerConfig struct {
	Metrics *Metrics

	VoiceSessions func() int
	Guilds        func() int
	Latency       func() time.Duration

	// ShardID tags every published sample.
	ShardID int

	// Interval defaults to one minute.
	Interval time.Duration
}

// Sampler publishes gateway statistics on a fixed interval and resets the
// per-minute activity counters after each publish.
type Sampler struct {
	cfg   SamplerConfig
	shard attribute.Set
}

// NewSampler creates a sampler. All snapshot functions must be non-nil.
func NewSampler(cfg SamplerConfig) *Sampler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Sampler{
		cfg:   cfg,
		shard: attribute.NewSet(attribute.Int("shard", cfg.ShardID)),
	}
}

// Run samples until ctx is cancelled. It blocks and always returns nil so it
// can run directly under an errgroup.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sample(ctx)
		}
	}
}

// Sample publishes one round of gauges and resets the activity counters.
func (s *Sampler) Sample(ctx context.Context) {
	m := s.cfg.Metrics
	opt := metric.WithAttributeSet(s.shard)

	m.VoiceSessions.Record(ctx, int64(s.cfg.VoiceSessions()), opt)
	m.Guilds.Record(ctx, int64(s.cfg.Guilds()), opt)
	m.LatencyMS.Record(ctx, float64(s.cfg.Latency())/float64(time.Millisecond), opt)
	m.TTSPerMinute.Record(ctx, m.ttsCount.Swap(0), opt)
	m.ErrorsPerMinute.Record(ctx, m.errorCount.Swap(0), opt)
}
