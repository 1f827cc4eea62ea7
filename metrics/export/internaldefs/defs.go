package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef names one session counter for exporters.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef names one latency histogram for exporters.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in rendering order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricLoginSuccess, Name: "gosession_login_success_total", Help: "Successful logins."},
	{ID: goSession.MetricLoginFailure, Name: "gosession_login_failure_total", Help: "Failed logins."},
	{ID: goSession.MetricRefreshSuccess, Name: "gosession_refresh_success_total", Help: "Access tokens obtained from the refresh endpoint."},
	{ID: goSession.MetricRefreshFailure, Name: "gosession_refresh_failure_total", Help: "Refresh attempts that failed."},
	{ID: goSession.MetricRefreshShared, Name: "gosession_refresh_shared_total", Help: "Refreshes whose exchange was shared with concurrent requests."},
	{ID: goSession.MetricRefreshReused, Name: "gosession_refresh_reused_total", Help: "Auth failures answered with an access token stored by an earlier refresh."},
	{ID: goSession.MetricRequestReplayed, Name: "gosession_request_replayed_total", Help: "Requests replayed after a refresh."},
	{ID: goSession.MetricForcedLogout, Name: "gosession_forced_logout_total", Help: "Sessions ended because a refresh failed."},
	{ID: goSession.MetricLogout, Name: "gosession_logout_total", Help: "User-initiated logouts."},
	{ID: goSession.MetricSessionExpired, Name: "gosession_session_expired_total", Help: "Sessions ended by the expiry countdown."},
	{ID: goSession.MetricIdempotencyKeyIssued, Name: "gosession_idempotency_key_issued_total", Help: "New idempotency keys generated."},
	{ID: goSession.MetricIdempotencyKeyReused, Name: "gosession_idempotency_key_reused_total", Help: "Resubmissions that reused a retained key."},
	{ID: goSession.MetricIdempotencyKeyCleared, Name: "gosession_idempotency_key_cleared_total", Help: "Keys cleared after a definite outcome."},
	{ID: goSession.MetricIdempotencyKeyRetained, Name: "gosession_idempotency_key_retained_total", Help: "Keys retained after an unknown outcome."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricRequestLatency, Name: "gosession_request_latency_seconds", Help: "Session pipeline request latency."},
}

// HistogramBounds are the upper bounds of the fixed latency buckets, in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into the running totals exporters
// publish.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
