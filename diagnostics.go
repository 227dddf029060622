package authsync

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

const (
	diagIdentityFailure = "identity_failure_event"
	diagFlowFailure     = "flow_failure"
	diagBootstrap       = "bootstrap_anonymous"
	diagResolveFailure  = "session_resolve_failure"
	diagSignOutFailure  = "sign_out_provider_failure"
)

// DiagnosticEvent describes one failure observed by the engine. It never
// carries passwords, codes or tokens.
type DiagnosticEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Op        string            `json:"op,omitempty"`
	Username  string            `json:"username,omitempty"`
	Kind      string            `json:"kind,omitempty"`
	Class     string            `json:"class,omitempty"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// DiagnosticsSink receives diagnostic events from the dispatcher goroutine.
type DiagnosticsSink interface {
	Emit(ctx context.Context, event DiagnosticEvent)
}

type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, DiagnosticEvent) {}

// ChannelSink forwards events to a buffered channel.
type ChannelSink struct {
	events chan DiagnosticEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan DiagnosticEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event DiagnosticEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan DiagnosticEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event DiagnosticEvent) {
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
