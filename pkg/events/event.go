package events

import (
	"context"
	"time"
)

const (
	ConversationCreated  = "conversation.created"
	ConversationRetitled = "conversation.retitled"
	ConversationDeleted  = "conversation.deleted"
	IngestionCompleted   = "ingestion.completed"
	IngestionFailed      = "ingestion.failed"
	IngestionCancelled   = "ingestion.cancelled"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the subject suffix for this event (e.g., "ingestion.completed").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close()
}

// BaseEvent is the only Event implementation; constructors fill it in.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

func New(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{Type: eventType, Data: data, OccurredAt: time.Now()}
}

// NoopPublisher drops every event. Used when NATS is not configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event Event) error { return nil }
func (NoopPublisher) Close()                                          {}

// RecordingPublisher keeps published events in memory; tests assert on it.
type RecordingPublisher struct {
	events chan Event
}

func NewRecordingPublisher(capacity int) *RecordingPublisher {
	return &RecordingPublisher{events: make(chan Event, capacity)}
}

func (p *RecordingPublisher) Publish(ctx context.Context, event Event) error {
	select {
	case p.events <- event:
	default:
	}
	return nil
}

func (p *RecordingPublisher) Close() {}

// Drain returns every event recorded so far.
func (p *RecordingPublisher) Drain() []Event {
	var out []Event
	for {
		select {
		case e := <-p.events:
			out = append(out, e)
		default:
			return out
		}
	}
}
