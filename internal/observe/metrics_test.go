package observe

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func gaugeValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			g, ok := m.Data.(metricdata.Gauge[int64])
			if !ok || len(g.DataPoints) == 0 {
				t.Fatalf("metric %q has no int64 gauge points: %#v", name, m.Data)
			}
			return g.DataPoints[len(g.DataPoints)-1].Value
		}
	}
	t.Fatalf("metric %q not found", name)
	return 0
}

func TestSamplerPublishesAndResetsCounters(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	met, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	met.CountTTS()
	met.CountTTS()
	met.CountTTS()
	met.CountError()

	s := NewSampler(SamplerConfig{
		Metrics:       met,
		VoiceSessions: func() int { return 2 },
		Guilds:        func() int { return 5 },
		Latency:       func() time.Duration { return 42 * time.Millisecond },
	})
	ctx := context.Background()
	s.Sample(ctx)

	if got := gaugeValue(t, reader, "yomiage.tts.per_minute"); got != 3 {
		t.Errorf("tts.per_minute = %d, want 3", got)
	}
	if got := gaugeValue(t, reader, "yomiage.errors.per_minute"); got != 1 {
		t.Errorf("errors.per_minute = %d, want 1", got)
	}
	if got := gaugeValue(t, reader, "yomiage.voice.sessions"); got != 2 {
		t.Errorf("voice.sessions = %d, want 2", got)
	}
	if got := gaugeValue(t, reader, "yomiage.guilds"); got != 5 {
		t.Errorf("guilds = %d, want 5", got)
	}

	// The next sample sees reset counters.
	s.Sample(ctx)
	if got := gaugeValue(t, reader, "yomiage.tts.per_minute"); got != 0 {
		t.Errorf("tts.per_minute after reset = %d, want 0", got)
	}
}
