package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/sendqueue/internal/events"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const defaultPublishTimeout = 5 * time.Second

type RabbitMQPublisher struct {
	client *RabbitMQ
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, env EventEnvelope) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if err := env.Validate(); err != nil {
		return fmt.Errorf("invalid event envelope: %w", err)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	publishing := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     env.OccurredAt,
		MessageId:     env.ID,
		CorrelationId: env.RunID,
		Type:          env.Name,
		Body:          body,
	}
	if env.Runner != "" {
		publishing.Headers = amqp.Table{"runner": env.Runner}
	}

	routingKey := RoutingKey(env.Name)
	if err := ch.PublishWithContext(ctx, EventsExchange, routingKey, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish event %q: %w", routingKey, err)
	}

	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

var _ events.Sink = (*EventSink)(nil)

// EventSink forwards events to a Publisher. Publish failures are logged and
// never reach the emitter.
type EventSink struct {
	publisher Publisher
	logger    *zap.Logger
	timeout   time.Duration
	now       func() time.Time
	newID     func() string
}

func NewEventSink(publisher Publisher, logger *zap.Logger) *EventSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventSink{
		publisher: publisher,
		logger:    logger,
		timeout:   defaultPublishTimeout,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (s *EventSink) Emit(ctx context.Context, event events.Event) {
	if s == nil || s.publisher == nil || event == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	env, err := NewEnvelope(ctx, event, s.newID(), s.now())
	if err != nil {
		s.logger.Warn("failed to build event envelope", zap.String("event", event.Name()), zap.Error(err))
		return
	}

	// Outlive the caller's cancellation so events of a finished run still ship.
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.publisher.Publish(publishCtx, env); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("event", env.Name),
			zap.String("eventId", env.ID),
			zap.Error(err),
		)
	}
}
