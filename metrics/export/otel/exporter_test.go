package otel

import (
	"context"
	"sync"
	"testing"
	"time"

	goSession "github.com/MrEthical07/goSession"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot goSession.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goSession.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goSession.MetricsSnapshot{
		Counters:   make(map[goSession.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[goSession.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

type stateSource struct {
	fakeSource
	pending []goSession.PendingOperation
	info    goSession.SessionInfo
	infoErr error
}

func (s *stateSource) PendingOperations(context.Context) ([]goSession.PendingOperation, error) {
	return s.pending, nil
}

func (s *stateSource) SessionInfo(context.Context) (goSession.SessionInfo, error) {
	return s.info, s.infoErr
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("gosession-test")

	src := &fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters: map[goSession.MetricID]uint64{
				goSession.MetricLoginSuccess: 3,
			},
			Histograms: map[goSession.MetricID][]uint64{
				goSession.MetricRequestLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("expected collected metrics, got none")
	}
}

func TestExporterRejectsNilSource(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("gosession-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("gosession-test")

	src := &fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters: map[goSession.MetricID]uint64{
				goSession.MetricLoginSuccess: 1,
			},
			Histograms: map[goSession.MetricID][]uint64{
				goSession.MetricRequestLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[goSession.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}

func TestExporterObservesCounterValues(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	src := &fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters:   map[goSession.MetricID]uint64{goSession.MetricIdempotencyKeyRetained: 4},
			Histograms: map[goSession.MetricID][]uint64{},
		},
	}
	exp, err := NewOTelExporterFromSource(provider.Meter("gosession-test"), src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "gosession_idempotency_key_retained_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) != 1 {
				t.Fatalf("unexpected data %T", m.Data)
			}
			if sum.DataPoints[0].Value != 4 {
				t.Fatalf("observed %d, want 4", sum.DataPoints[0].Value)
			}
			return
		}
	}
	t.Fatal("retained-key counter not collected")
}

func TestNewOTelExporterRejectsNilClient(t *testing.T) {
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	if _, err := NewOTelExporter(provider.Meter("gosession-test"), nil); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterLabelsHistogramBuckets(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	src := &fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters: map[goSession.MetricID]uint64{},
			Histograms: map[goSession.MetricID][]uint64{
				goSession.MetricRequestLatency: {2, 0, 1, 0, 0, 0, 0, 0},
			},
		},
	}
	exp, err := NewOTelExporterFromSource(provider.Meter("gosession-test"), src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	m, ok := collect(t, reader)["gosession_request_latency_seconds_bucket"]
	if !ok {
		t.Fatal("bucket gauge not collected")
	}
	gauge, ok := m.Data.(metricdata.Gauge[int64])
	if !ok {
		t.Fatalf("unexpected data %T", m.Data)
	}
	if len(gauge.DataPoints) != 8 {
		t.Fatalf("got %d bucket points, want 8", len(gauge.DataPoints))
	}
	byBound := make(map[string]int64, len(gauge.DataPoints))
	for _, dp := range gauge.DataPoints {
		le, ok := dp.Attributes.Value("le")
		if !ok {
			t.Fatal("bucket point without le attribute")
		}
		byBound[le.AsString()] = dp.Value
	}
	if byBound["0.005"] != 2 || byBound["0.025"] != 3 || byBound["+Inf"] != 3 {
		t.Fatalf("unexpected cumulative buckets %v", byBound)
	}
}

func TestExporterObservesSessionState(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	src := &stateSource{
		fakeSource: fakeSource{snapshot: goSession.MetricsSnapshot{
			Counters:   map[goSession.MetricID]uint64{},
			Histograms: map[goSession.MetricID][]uint64{},
		}},
		pending: []goSession.PendingOperation{
			{Scope: "transfer", Fingerprint: `{"a":1}`, IdempotencyKey: "k1"},
			{Scope: "transfer", Fingerprint: `{"a":2}`, IdempotencyKey: "k2"},
			{Scope: "account", Fingerprint: `{"b":1}`, IdempotencyKey: "k3"},
		},
		info: goSession.SessionInfo{
			UserID:    "u1",
			ExpiresAt: time.Now().Add(90 * time.Second),
			Remaining: 90 * time.Second,
		},
	}
	exp, err := NewOTelExporterFromSource(provider.Meter("gosession-test"), src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	metrics := collect(t, reader)

	pending, ok := metrics["gosession_pending_operations"].Data.(metricdata.Gauge[int64])
	if !ok {
		t.Fatal("pending operations gauge not collected")
	}
	perScope := make(map[string]int64)
	for _, dp := range pending.DataPoints {
		scope, _ := dp.Attributes.Value("scope")
		perScope[scope.AsString()] = dp.Value
	}
	if perScope["transfer"] != 2 || perScope["account"] != 1 {
		t.Fatalf("unexpected pending counts %v", perScope)
	}

	remaining, ok := metrics["gosession_session_remaining_seconds"].Data.(metricdata.Gauge[float64])
	if !ok || len(remaining.DataPoints) != 1 {
		t.Fatal("session remaining gauge not collected")
	}
	if remaining.DataPoints[0].Value != 90 {
		t.Fatalf("remaining = %v, want 90", remaining.DataPoints[0].Value)
	}
}

func TestExporterSkipsRemainingWithoutSession(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	src := &stateSource{
		fakeSource: fakeSource{snapshot: goSession.MetricsSnapshot{
			Counters:   map[goSession.MetricID]uint64{},
			Histograms: map[goSession.MetricID][]uint64{},
		}},
		infoErr: goSession.ErrNoSession,
	}
	exp, err := NewOTelExporterFromSource(provider.Meter("gosession-test"), src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer exp.Close()

	if m, ok := collect(t, reader)["gosession_session_remaining_seconds"]; ok {
		if g, isGauge := m.Data.(metricdata.Gauge[float64]); isGauge && len(g.DataPoints) > 0 {
			t.Fatalf("expected no remaining-time point, got %v", g.DataPoints)
		}
	}
}
