// Package queue carries scan-completed events between processes over AMQP or
// NATS.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/CTIDashboard/go-api/cti"
	"github.com/google/uuid"
)

// EventScanCompleted is the only event type published today.
const EventScanCompleted = "scan_completed"

// ScanEvent announces a new history entry.
type ScanEvent struct {
	ID        string           `json:"id"`
	Type      string           `json:"type"`
	Source    string           `json:"source,omitempty"`
	Entry     cti.HistoryEntry `json:"entry"`
	Timestamp time.Time        `json:"timestamp"`
}

// NewScanEvent wraps entry in a fresh event.
func NewScanEvent(source string, entry cti.HistoryEntry) ScanEvent {
	return ScanEvent{
		ID:        uuid.NewString(),
		Type:      EventScanCompleted,
		Source:    source,
		Entry:     entry,
		Timestamp: time.Now().UTC(),
	}
}

// Encode serializes the event.
func (e ScanEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a message body. Messages of other types and messages without
// an entry input are rejected.
func Decode(body []byte) (ScanEvent, error) {
	var e ScanEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return ScanEvent{}, fmt.Errorf("decode scan event: %w", err)
	}
	if e.Type != EventScanCompleted {
		return ScanEvent{}, fmt.Errorf("unexpected event type %q", e.Type)
	}
	if e.Entry.Input == "" {
		return ScanEvent{}, fmt.Errorf("scan event %s has no entry input", e.ID)
	}
	return e, nil
}

// Publisher sends scan events to a broker.
type Publisher interface {
	Publish(ctx context.Context, event ScanEvent) error
	Close() error
}

// EventHandler processes one decoded event.
type EventHandler func(ScanEvent)

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, ScanEvent) error { return nil }

func (Nop) Close() error { return nil }
