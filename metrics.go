package typeshield

import "sync/atomic"

// MetricID identifies one in-process counter.
type MetricID uint16

const (
	// MetricBridgeRequest counts accepted inbound webhook deliveries.
	MetricBridgeRequest MetricID = iota
	// MetricBridgeRejected counts webhook requests failing authorization or validation.
	MetricBridgeRejected
	// MetricBridgeTest counts short-circuited vendor test messages.
	MetricBridgeTest
	// MetricFallbackSMS counts deliveries that bypassed the biometric gate.
	MetricFallbackSMS
	// MetricSMSSent counts successful gateway sends.
	MetricSMSSent
	// MetricSMSFailed counts gateway send failures.
	MetricSMSFailed
	// MetricChallengeRendered counts successful challenge page renders.
	MetricChallengeRendered
	// MetricVerifySuccess counts successful verifications and enrollments.
	MetricVerifySuccess
	// MetricVerifyFailure counts rejected verifications.
	MetricVerifyFailure
	// MetricPostureRetry counts posture failures answered with "try again".
	MetricPostureRetry
	// MetricGlobalLockout counts global lockouts triggered.
	MetricGlobalLockout
	// MetricChallengeLockout counts per-challenge lockouts triggered.
	MetricChallengeLockout
	// MetricResetScheduled counts scheduled resets armed.
	MetricResetScheduled
	// MetricResetExecuted counts resets carried out, lazy or immediate.
	MetricResetExecuted
	// MetricAccountDisabled counts irreversible account disables.
	MetricAccountDisabled

	metricCount
)

// Metrics is a fixed block of atomic counters. The zero-cost Inc path
// keeps it safe to call on every request.
type Metrics struct {
	counters [metricCount]atomic.Uint64
}

// NewMetrics allocates a counter block.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Inc adds one to a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot copies the counters. Values are individually atomic, not a
// consistent cut across the block.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricCount)}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
