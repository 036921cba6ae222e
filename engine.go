package typeshield

import (
	"context"
	"time"

	"github.com/typeshield/typeshield/store"
)

// Engine orchestrates the challenge lifecycle: webhook intake, token
// issuance, SMS delivery, the biometric verify flow, and the lockout and
// reset policy around it. All state lives in the store; the engine holds
// no in-process locks and relies on the adapter's atomic increments for
// every contended counter.
type Engine struct {
	config    Config
	db        *store.DB
	biometric BiometricProvider
	sms       SMSGateway
	texts     *TextPool
	audit     *auditDispatcher
	metrics   *Metrics
}

// Init checks connectivity and provisions indexes and TTLs on the
// backend. Call once before serving traffic.
func (e *Engine) Init(ctx context.Context) error {
	if e == nil || e.db == nil {
		return ErrEngineNotReady
	}
	return e.db.Init(ctx)
}

// Close flushes the audit queue and releases the backend.
func (e *Engine) Close(ctx context.Context) error {
	if e == nil {
		return nil
	}
	if e.audit != nil {
		e.audit.Close()
	}
	if e.db != nil {
		return e.db.Close(ctx)
	}
	return nil
}

// Texts exposes the sentence pool for reloading.
func (e *Engine) Texts() *TextPool {
	return e.texts
}

// AuditDropped reports audit events discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emit(ctx context.Context, event AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	e.audit.Emit(ctx, event)
}

func (e *Engine) auditError(ctx context.Context, action, userID string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	e.emit(ctx, AuditEvent{Action: action, UserID: userID, Success: false, Error: msg})
}
