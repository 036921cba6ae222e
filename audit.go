package typeshield

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/typeshield/typeshield/store"
)

// AuditEvent is one domain event emitted by the engine: webhook intake,
// SMS sends, verification outcomes, lockouts, resets, disables.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Action    string            `json:"action"`
	UserID    string            `json:"user_id,omitempty"`
	CID       string            `json:"cid,omitempty"`
	BridgeID  string            `json:"bridge_id,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives events from the dispatcher. Implementations must be
// safe for concurrent use.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

// Emit implements AuditSink.
func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a buffered channel, useful in tests and
// for custom consumers.
type ChannelSink struct {
	events chan AuditEvent
}

// NewChannelSink builds a sink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

// Emit implements AuditSink.
func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events exposes the consumer side of the channel.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON line per event.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink wraps a writer.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Emit implements AuditSink.
func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// StoreSink persists events as log records with a 30-day TTL, giving the
// service a queryable history in the same backend as its state.
type StoreSink struct {
	logs *store.Collection
}

// NewStoreSink builds a sink over the logs collection.
func NewStoreSink(logs *store.Collection) *StoreSink {
	return &StoreSink{logs: logs}
}

// Emit implements AuditSink. Write failures are dropped: audit must
// never take down the flow it observes.
func (s *StoreSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.logs == nil {
		return
	}
	logType := "info"
	if event.Error != "" {
		logType = "error"
	}
	doc := store.Document{
		"id":      uuid.NewString(),
		"type":    logType,
		"action":  event.Action,
		"userId":  event.UserID,
		"error":   event.Error,
		"message": auditMessage(event),
	}
	_, _ = s.logs.InsertOne(ctx, doc)
}

func auditMessage(event AuditEvent) string {
	if len(event.Metadata) == 0 && event.CID == "" && event.BridgeID == "" {
		return ""
	}
	payload := map[string]any{}
	if event.CID != "" {
		payload["cid"] = event.CID
	}
	if event.BridgeID != "" {
		payload["bridgeId"] = event.BridgeID
	}
	for k, v := range event.Metadata {
		payload[k] = v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(data)
}
