package internaldefs

import (
	"strconv"

	"github.com/MrEthical07/authtokens"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   authtokens.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   authtokens.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authtokens.MetricIssue, Name: "authtokens_issue_total", Help: "Issued token triples."},
	{ID: authtokens.MetricIssueFailure, Name: "authtokens_issue_failure_total", Help: "Failed issue operations."},
	{ID: authtokens.MetricRefreshSuccess, Name: "authtokens_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: authtokens.MetricRefreshFailure, Name: "authtokens_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: authtokens.MetricRefreshMismatch, Name: "authtokens_refresh_mismatch_total", Help: "Refreshes rejected for a stale refresh value or CSRF token."},
	{ID: authtokens.MetricRefreshNotFound, Name: "authtokens_refresh_not_found_total", Help: "Refreshes without a live session."},
	{ID: authtokens.MetricRefreshRateLimited, Name: "authtokens_refresh_rate_limited_total", Help: "Refreshes rejected by the throttle."},
	{ID: authtokens.MetricAccessInvalid, Name: "authtokens_access_invalid_total", Help: "Rejected access tokens."},
	{ID: authtokens.MetricRevoke, Name: "authtokens_revoke_total", Help: "Session revocations."},
	{ID: authtokens.MetricStorageError, Name: "authtokens_storage_error_total", Help: "Storage backend failures."},
}

var HistogramDefs = []HistogramDef{
	{ID: authtokens.MetricRefreshLatency, Name: "authtokens_refresh_latency_seconds", Help: "Refresh latency histogram."},
}

// AuditDroppedName is the counter of audit events lost to backpressure.
const AuditDroppedName = "authtokens_audit_dropped_total"

const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// BucketCount matches the engine histogram layout; the last bucket is +Inf.
const BucketCount = 8

// HistogramBounds are the finite upper bounds in seconds.
var HistogramBounds = [BucketCount - 1]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// BucketLabel is the "le" value of bucket i, "+Inf" for the last one.
func BucketLabel(i int) string {
	if i < 0 || i >= len(HistogramBounds) {
		return "+Inf"
	}
	return strconv.FormatFloat(HistogramBounds[i], 'g', -1, 64)
}

// NormalizeBuckets pads or truncates raw to [BucketCount] entries.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
