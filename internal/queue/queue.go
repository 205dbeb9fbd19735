package queue

import (
	"context"
	"strings"
)

// Publisher publishes event envelopes to the events exchange.
type Publisher interface {
	Publish(ctx context.Context, env EventEnvelope) error
	Close() error
}

const (
	// EventsExchange is the topic exchange receiving every event; the routing
	// key is the event name, e.g. warmup.schedule_activated.
	EventsExchange = "sendqueue.events"
	// AuditQueue keeps a durable copy of all events for downstream consumers.
	AuditQueue = "sendqueue.events.audit"
)

var auditBindings = []string{"queue.#", "warmup.#"}

// RoutingKey returns the topic routing key for an event name.
func RoutingKey(eventName string) string {
	return strings.ToLower(strings.TrimSpace(eventName))
}

// DLQName returns the dead-letter queue name for a queue, e.g. dlq.sendqueue.events.audit.
func DLQName(queue string) string {
	return "dlq." + queue
}

// AuditBindings returns the routing patterns bound to the audit queue.
func AuditBindings() []string {
	return append([]string(nil), auditBindings...)
}
