package otel

import (
	"context"
	"errors"
	"fmt"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// MetricsSource is what the exporter observes. *goSession.Client satisfies it.
type MetricsSource interface {
	MetricsSnapshot() goSession.MetricsSnapshot
	AuditDropped() uint64
}

// StateSource is optionally implemented by a MetricsSource to expose live
// session state. *goSession.Client satisfies it.
type StateSource interface {
	PendingOperations(ctx context.Context) ([]goSession.PendingOperation, error)
	SessionInfo(ctx context.Context) (goSession.SessionInfo, error)
}

type observedCounter struct {
	id         goSession.MetricID
	instrument metric.Int64ObservableCounter
}

type observedHistogram struct {
	id      goSession.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// OTelExporter publishes session metrics as observable instruments. Values are
// read from the source on every collection.
type OTelExporter struct {
	source       MetricsSource
	registration metric.Registration
	counters     []observedCounter
	histograms   []observedHistogram
	auditDropped metric.Int64ObservableCounter

	state     StateSource
	pending   metric.Int64ObservableGauge
	remaining metric.Float64ObservableGauge
}

var bucketAttrs = func() []metric.ObserveOption {
	out := make([]metric.ObserveOption, len(internaldefs.HistogramBounds))
	for i, le := range internaldefs.HistogramBounds {
		out[i] = metric.WithAttributes(attribute.String("le", le))
	}
	return out
}()

// NewOTelExporter registers instruments on meter that observe client.
func NewOTelExporter(meter metric.Meter, client *goSession.Client) (*OTelExporter, error) {
	if client == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, client)
}

func NewOTelExporterFromSource(meter metric.Meter, source MetricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &OTelExporter{
		source:     source,
		counters:   make([]observedCounter, 0, len(internaldefs.CounterDefs)),
		histograms: make([]observedHistogram, 0, len(internaldefs.HistogramDefs)),
	}

	observables := make([]metric.Observable, 0, len(internaldefs.CounterDefs)+len(internaldefs.HistogramDefs)*2+3)

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		h := observedHistogram{id: def.ID}
		bucketName := def.Name + "_bucket"
		buckets, err := meter.Int64ObservableGauge(bucketName, metric.WithDescription("Cumulative histogram bucket count, one series per le bound."))
		if err != nil {
			return nil, fmt.Errorf("create histogram bucket gauge %s: %w", bucketName, err)
		}
		h.buckets = buckets
		observables = append(observables, buckets)
		countName := def.Name + "_count"
		countIns, err := meter.Int64ObservableGauge(countName, metric.WithDescription("Histogram total sample count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram count gauge %s: %w", countName, err)
		}
		h.count = countIns
		observables = append(observables, countIns)
		exporter.histograms = append(exporter.histograms, h)
	}

	auditDropped, err := meter.Int64ObservableCounter(
		"gosession_audit_dropped_total",
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	if state, ok := source.(StateSource); ok {
		exporter.state = state
		exporter.pending, err = meter.Int64ObservableGauge(
			"gosession_pending_operations",
			metric.WithDescription("Retained idempotency keys whose mutation outcome is unknown."),
		)
		if err != nil {
			return nil, fmt.Errorf("create pending operations gauge: %w", err)
		}
		exporter.remaining, err = meter.Float64ObservableGauge(
			"gosession_session_remaining_seconds",
			metric.WithDescription("Seconds until the stored access token expires."),
			metric.WithUnit("s"),
		)
		if err != nil {
			return nil, fmt.Errorf("create session remaining gauge: %w", err)
		}
		observables = append(observables, exporter.pending, exporter.remaining)
	}

	registration, err := meter.RegisterCallback(func(ctx context.Context, observer metric.Observer) error {
		snapshot := exporter.source.MetricsSnapshot()
		for _, c := range exporter.counters {
			observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
		}
		for _, h := range exporter.histograms {
			nonCumulative := internaldefs.NormalizeBuckets(snapshot.Histograms[h.id])
			cumulative := internaldefs.CumulativeBuckets(nonCumulative)
			for i := 0; i < len(cumulative) && i < len(bucketAttrs); i++ {
				observer.ObserveInt64(h.buckets, int64(cumulative[i]), bucketAttrs[i])
			}
			observer.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
		}
		observer.ObserveInt64(exporter.auditDropped, int64(exporter.source.AuditDropped()))
		exporter.observeState(ctx, observer)
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}

// observeState reports pending keys per scope and the session countdown.
// Store errors skip the affected instrument for this collection; a missing
// session reports no remaining-time point.
func (e *OTelExporter) observeState(ctx context.Context, observer metric.Observer) {
	if e.state == nil {
		return
	}
	if ops, err := e.state.PendingOperations(ctx); err == nil {
		perScope := make(map[string]int64, 2)
		for _, op := range ops {
			perScope[op.Scope]++
		}
		for scope, n := range perScope {
			observer.ObserveInt64(e.pending, n, metric.WithAttributes(attribute.String("scope", scope)))
		}
	}
	info, err := e.state.SessionInfo(ctx)
	if err != nil || info.ExpiresAt.IsZero() {
		return
	}
	observer.ObserveFloat64(e.remaining, info.Remaining.Seconds())
}
