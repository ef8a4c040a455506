package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventWorkerStatus EventType = "worker.status"
	EventJobProgress  EventType = "worker.progress"
	EventJobCompleted EventType = "worker.job_completed"
	EventQueueChanged EventType = "worker.queue_changed"
	EventConfigSaved  EventType = "config.saved"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// Subscription identifies a registered handler so it can be removed.
type Subscription interface {
	// Unsubscribe removes the handler from its topic. Safe to call twice.
	Unsubscribe()
}

// EventService manages the pub/sub event bus. Topics replace raw callback
// sets so unsubscription and delivery semantics are explicit.
type EventService interface {
	// Subscribe registers a handler for an event type
	Subscribe(eventType EventType, handler EventHandler) (Subscription, error)

	// Publish sends an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes an event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
