// Package bus provides the lifecycle event bus: an in-memory implementation
// for the common single-process deployment and a NATS implementation for
// operators that want supervisor notifications on their existing subjects.
//
// The bus is informational. Agent state lives in the store and the in-memory
// index; nothing in the core depends on a notification being delivered.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Lifecycle subjects published by the process manager.
const (
	SubjectAgentSpawned   = "agent.spawned"
	SubjectAgentCompleted = "agent.completed"
	SubjectAgentFailed    = "agent.failed"
	SubjectAgentStopped   = "agent.stopped"
)

// Notification is a message on the event bus.
type Notification struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// NewNotification creates a notification with a fresh id and UTC timestamp.
func NewNotification(eventType, source string, data map[string]any) *Notification {
	return &Notification{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// Handler processes one notification.
type Handler func(ctx context.Context, n *Notification) error

// Subscription represents an active subscription.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// EventBus is the publish/subscribe surface used by the manager and the
// entrypoint.
type EventBus interface {
	// Publish sends a notification to a subject.
	Publish(ctx context.Context, subject string, n *Notification) error

	// Subscribe creates a subscription to a subject pattern. Patterns use
	// NATS semantics: "*" matches one token, ">" matches the rest.
	Subscribe(subject string, handler Handler) (Subscription, error)

	// Close closes the bus.
	Close()

	// IsConnected returns connection status.
	IsConnected() bool
}
