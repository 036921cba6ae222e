package typeshield

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher decouples the request path from the audit sink: events
// are queued onto a bounded channel and delivered by a single worker, so
// a slow sink never holds an OTP reveal hostage.
type auditDispatcher struct {
	sink       AuditSink
	events     chan AuditEvent
	quit       chan struct{}
	stopped    chan struct{}
	dropOnFull bool
	dropped    atomic.Uint64
	closing    atomic.Bool
	stopOnce   sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:       sink,
		events:     make(chan AuditEvent, buffer),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
		dropOnFull: cfg.DropIfFull,
	}
	go d.pump()
	return d
}

// pump is the worker loop. On shutdown it flushes whatever is still
// queued, so Close never loses accepted events.
func (d *auditDispatcher) pump() {
	defer close(d.stopped)
	for {
		select {
		case <-d.quit:
			d.flush()
			return
		case event := <-d.events:
			d.sink.Emit(context.Background(), event)
		}
	}
}

func (d *auditDispatcher) flush() {
	for {
		select {
		case event := <-d.events:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

// Emit queues an event. With DropIfFull set, a saturated buffer counts a
// drop instead of blocking the request path; otherwise the caller waits
// for space, its context, or shutdown, whichever comes first.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.closing.Load() {
		return
	}

	if d.dropOnFull {
		select {
		case d.events <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.events <- event:
	case <-ctx.Done():
	case <-d.quit:
	}
}

// Close stops accepting events, drains the queue and waits for the
// worker to exit. Safe to call more than once.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.closing.Store(true)
		close(d.quit)
		<-d.stopped
	})
}

// Dropped reports how many events were discarded under backpressure.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
