package typeshield

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/typeshield/typeshield/store"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{
		gate: make(chan struct{}),
	}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func buildAuditTestEngine(t *testing.T, mutate func(*Config), sink AuditSink) (*Engine, *fakeSMS) {
	t.Helper()

	cfg := defaultConfig()
	cfg.Service.BaseURL = "https://challenge.example.com"
	cfg.Service.HashSalt = "unit-salt"
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 32
	if mutate != nil {
		mutate(&cfg)
	}

	sms := &fakeSMS{}
	engine, err := New().
		WithConfig(cfg).
		WithAdapter(store.NewMemoryAdapter()).
		WithBiometric(&fakeBiometric{}).
		WithSMS(sms).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() {
		_ = engine.Close(context.Background())
	})
	return engine, sms
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	e, _ := buildAuditTestEngine(t, func(cfg *Config) {
		cfg.Audit.Enabled = false
	}, sink)

	deliverChallenge(t, e, okBridge())
	time.Sleep(30 * time.Millisecond)

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

func TestAuditSinkReceivesEventWithFields(t *testing.T) {
	sink := NewChannelSink(16)
	e, _ := buildAuditTestEngine(t, nil, sink)

	deliverChallenge(t, e, okBridge())

	select {
	case ev := <-sink.Events():
		if ev.Action == "" {
			t.Fatal("expected action to be populated")
		}
		if ev.Timestamp.IsZero() {
			t.Fatal("expected timestamp to be populated")
		}
		if strings.Contains(ev.Error, testOTP) {
			t.Fatal("OTP leaked in audit error field")
		}
		for _, v := range ev.Metadata {
			if strings.Contains(v, testOTP) {
				t.Fatal("OTP leaked in audit metadata")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected audit event to be received")
	}
}

func TestAuditBufferFullDropIfFullTrueDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
	}, sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{Action: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{Action: "e2"})

	start := time.Now()
	dispatcher.Emit(context.Background(), AuditEvent{Action: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if dispatcher.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestAuditBufferFullDropIfFullFalseBlocksUntilSpace(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: false,
	}, sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{Action: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{Action: "e2"})

	done := make(chan struct{})
	go func() {
		dispatcher.Emit(context.Background(), AuditEvent{Action: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestAuditJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		Action:    "sms_sent",
		UserID:    "u1",
		CID:       "abc123",
		Success:   true,
	}
	sink.Emit(context.Background(), event)

	if !buf.Contains("sms_sent") {
		t.Fatal("expected JSON log line to contain action")
	}
	if !buf.Contains("\"user_id\":\"u1\"") {
		t.Fatal("expected JSON log line to contain user id")
	}
}

func TestAuditStoreSinkPersistsLogRecord(t *testing.T) {
	db := store.Open(store.NewMemoryAdapter(), "unit-salt")
	if err := db.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	sink := NewStoreSink(db.Logs)
	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now().UTC(),
		Action:    "verify_failed",
		UserID:    "u1",
		Error:     "verification rejected",
	})

	// The memory adapter assigns the generated uuid as the record id, so
	// scan via DeleteAll to confirm exactly one record landed.
	n, err := db.Logs.DeleteAll(context.Background())
	if err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 persisted log record, got %d", n)
	}
}

func TestAuditDispatcherCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 4,
		DropIfFull: true,
	}, &countingSink{})

	dispatcher.Emit(context.Background(), AuditEvent{Action: "e1"})
	dispatcher.Close()
	dispatcher.Close()
	dispatcher.Emit(context.Background(), AuditEvent{Action: "e2"})
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	sink := NewChannelSink(32)
	e, _ := buildAuditTestEngine(t, nil, sink)

	cid := deliverChallenge(t, e, okBridge())
	view, err := e.Challenge(context.Background(), cid)
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	result, err := e.Verify(context.Background(), VerifyRequest{CID: cid, Pattern: testPattern, TextID: view.TextID})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.OTP != testOTP {
		t.Fatalf("expected OTP %q, got %q", testOTP, result.OTP)
	}

	events := make([]AuditEvent, 0, 8)
	timeout := time.After(2 * time.Second)
collectLoop:
	for len(events) < 8 {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
		case <-timeout:
			break collectLoop
		}
	}

	if len(events) == 0 {
		t.Fatal("expected at least one audit event")
	}

	for _, ev := range events {
		if strings.Contains(ev.Error, testOTP) {
			t.Fatal("OTP leaked in audit error field")
		}
		for k, v := range ev.Metadata {
			if strings.Contains(k, testOTP) || strings.Contains(v, testOTP) {
				t.Fatal("OTP leaked in audit metadata")
			}
		}
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) Contains(v string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Contains(string(b.buf), v)
}
