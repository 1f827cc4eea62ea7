package goSession

import (
	internalmetrics "github.com/MrEthical07/goSession/internal/metrics"
)

// MetricID identifies a counter or histogram in the in-process metrics system.
type MetricID = internalmetrics.MetricID

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot = internalmetrics.Snapshot

const (
	// MetricLoginSuccess counts successful logins.
	MetricLoginSuccess = internalmetrics.MetricLoginSuccess
	// MetricLoginFailure counts rejected or failed logins.
	MetricLoginFailure = internalmetrics.MetricLoginFailure
	// MetricRefreshSuccess counts refreshes that produced a new access token.
	MetricRefreshSuccess = internalmetrics.MetricRefreshSuccess
	// MetricRefreshFailure counts refreshes that ended the session.
	MetricRefreshFailure = internalmetrics.MetricRefreshFailure
	// MetricRefreshShared counts refresh callers served by another caller's exchange.
	MetricRefreshShared = internalmetrics.MetricRefreshShared
	// MetricRefreshReused counts refreshes skipped because a newer token was stored.
	MetricRefreshReused = internalmetrics.MetricRefreshReused
	// MetricRequestReplayed counts requests replayed after a refresh.
	MetricRequestReplayed = internalmetrics.MetricRequestReplayed
	// MetricForcedLogout counts sessions ended by a failed refresh.
	MetricForcedLogout = internalmetrics.MetricForcedLogout
	// MetricLogout counts user logouts.
	MetricLogout = internalmetrics.MetricLogout
	// MetricSessionExpired counts sessions ended by the session clock.
	MetricSessionExpired = internalmetrics.MetricSessionExpired
	// MetricIdempotencyKeyIssued counts newly generated keys.
	MetricIdempotencyKeyIssued = internalmetrics.MetricIdempotencyKeyIssued
	// MetricIdempotencyKeyReused counts resubmissions that reused a stored key.
	MetricIdempotencyKeyReused = internalmetrics.MetricIdempotencyKeyReused
	// MetricIdempotencyKeyCleared counts keys removed after a definite outcome.
	MetricIdempotencyKeyCleared = internalmetrics.MetricIdempotencyKeyCleared
	// MetricIdempotencyKeyRetained counts keys kept after an ambiguous outcome.
	MetricIdempotencyKeyRetained = internalmetrics.MetricIdempotencyKeyRetained
	// MetricRequestLatency is the pipeline latency histogram.
	MetricRequestLatency = internalmetrics.MetricRequestLatency
	// MetricIDCount is the number of defined metric IDs.
	MetricIDCount = internalmetrics.MetricIDCount
)

// MetricsSnapshot returns the current counters. Disabled metrics yield empty maps.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

func (c *Client) metricInc(id MetricID) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Inc(id)
}
