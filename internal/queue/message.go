package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/sendqueue/internal/events"
	"github.com/kursadbilgin/sendqueue/internal/observability"
)

// EventEnvelope is the broker payload wrapping one event.
type EventEnvelope struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	OccurredAt time.Time       `json:"occurredAt"`
	RunID      string          `json:"runId,omitempty"`
	Runner     string          `json:"runner,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// NewEnvelope wraps event, tagging it with the runner tick carried by ctx.
func NewEnvelope(ctx context.Context, event events.Event, id string, now time.Time) (EventEnvelope, error) {
	if event == nil {
		return EventEnvelope{}, fmt.Errorf("event is required")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return EventEnvelope{}, fmt.Errorf("failed to marshal event %q: %w", event.Name(), err)
	}

	run, _ := observability.RunFromContext(ctx)
	env := EventEnvelope{
		ID:         id,
		Name:       event.Name(),
		OccurredAt: now.UTC(),
		RunID:      run.ID,
		Runner:     run.Runner,
		Payload:    payload,
	}
	return env, env.Validate()
}

func (e EventEnvelope) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("event id is required")
	}
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("event name is required")
	}
	if len(e.Payload) == 0 {
		return fmt.Errorf("event payload is required")
	}
	return nil
}
