package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/sendqueue/internal/events"
	"github.com/kursadbilgin/sendqueue/internal/observability"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRoutingKey(t *testing.T) {
	if got := RoutingKey(" Warmup.Schedule_Activated "); got != "warmup.schedule_activated" {
		t.Fatalf("RoutingKey = %s, want warmup.schedule_activated", got)
	}
	if got := DLQName(AuditQueue); got != "dlq.sendqueue.events.audit" {
		t.Fatalf("DLQName = %s, want dlq.sendqueue.events.audit", got)
	}
}

func TestAuditBindingsCoverEveryEvent(t *testing.T) {
	names := []string{
		events.NameQueuePopulated,
		events.NameQueueDropped,
		events.NameGiveupsRequeued,
		events.NameSubscribersFiltered,
		events.NameWarmupQuotaRecomputed,
		events.NameWarmupScheduleCompleted,
		events.NameWarmupScheduleActivated,
		events.NameWarmupPlanCompleted,
	}

	for _, name := range names {
		matched := false
		for _, pattern := range AuditBindings() {
			prefix := pattern[:len(pattern)-1]
			if len(name) > len(prefix) && name[:len(prefix)] == prefix {
				matched = true
			}
		}
		if !matched {
			t.Fatalf("event %q is not bound to the audit queue", name)
		}
	}
}

func TestNewEnvelope(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("TRT", 3*3600))
	ctx := observability.WithRun(context.Background(), "queue", "run-1")

	env, err := NewEnvelope(ctx, events.GiveupsRequeued{CampaignID: 42, Count: 3}, "evt-1", now)
	if err != nil {
		t.Fatalf("NewEnvelope() unexpected error: %v", err)
	}
	if env.Name != events.NameGiveupsRequeued {
		t.Fatalf("Name = %s, want %s", env.Name, events.NameGiveupsRequeued)
	}
	if env.RunID != "run-1" || env.Runner != "queue" {
		t.Fatalf("run = %s/%s, want queue/run-1", env.Runner, env.RunID)
	}
	if env.OccurredAt.Location() != time.UTC {
		t.Fatal("OccurredAt should be UTC")
	}

	var payload map[string]any
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if payload["campaignId"] != float64(42) || payload["count"] != float64(3) {
		t.Fatalf("payload = %v, want campaignId 42 and count 3", payload)
	}

	if _, err := NewEnvelope(ctx, events.QueueDropped{CampaignID: 1}, "", now); err == nil {
		t.Fatal("expected error for empty event id")
	}
	if _, err := NewEnvelope(ctx, nil, "evt-2", now); err == nil {
		t.Fatal("expected error for nil event")
	}
}

type fakePublisher struct {
	publishFn func(ctx context.Context, env EventEnvelope) error
}

func (f *fakePublisher) Publish(ctx context.Context, env EventEnvelope) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, env)
	}
	return nil
}

func (f *fakePublisher) Close() error {
	return nil
}

func TestEventSinkPublishesEnvelope(t *testing.T) {
	var got []EventEnvelope
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, env EventEnvelope) error {
			if _, ok := ctx.Deadline(); !ok {
				t.Fatal("publish context should carry a timeout")
			}
			got = append(got, env)
			return nil
		},
	}

	sink := NewEventSink(publisher, zap.NewNop())
	sink.newID = func() string { return "evt-1" }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink.Emit(ctx, events.WarmupPlanCompleted{PlanID: 3, ServerID: 7})

	if len(got) != 1 {
		t.Fatalf("published = %d, want 1 even after caller cancellation", len(got))
	}
	if got[0].ID != "evt-1" || got[0].Name != events.NameWarmupPlanCompleted {
		t.Fatalf("envelope = %+v, want evt-1 warmup.plan_completed", got[0])
	}
}

func TestEventSinkLogsPublishFailure(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, env EventEnvelope) error {
			return errors.New("channel closed")
		},
	}

	sink := NewEventSink(publisher, zap.New(core))
	sink.Emit(context.Background(), events.QueueDropped{CampaignID: 9})

	entries := recorded.FilterMessage("failed to publish event").All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].ContextMap()["event"] != events.NameQueueDropped {
		t.Fatalf("event field = %v, want %s", entries[0].ContextMap()["event"], events.NameQueueDropped)
	}
}

func TestRabbitMQPublisherRejectsUninitialized(t *testing.T) {
	var publisher *RabbitMQPublisher
	if err := publisher.Publish(context.Background(), EventEnvelope{}); err == nil {
		t.Fatal("expected error for nil publisher")
	}
	if err := publisher.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestNewRabbitMQRequiresURL(t *testing.T) {
	if _, err := NewRabbitMQ(" "); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestEventsTopology(t *testing.T) {
	topo := eventsTopology()

	kinds := map[string]string{}
	for _, ex := range topo.exchanges {
		kinds[ex.name] = ex.kind
	}
	if kinds[EventsExchange] != "topic" || kinds[dlxExchangeName] != "direct" {
		t.Fatalf("exchanges = %v, want topic events and direct dlx", kinds)
	}

	var audit *queueDecl
	for i := range topo.queues {
		if topo.queues[i].name == AuditQueue {
			audit = &topo.queues[i]
		}
	}
	if audit == nil {
		t.Fatalf("queues = %+v, want %s declared", topo.queues, AuditQueue)
	}
	if audit.args["x-dead-letter-exchange"] != dlxExchangeName {
		t.Fatalf("audit dead letter exchange = %v, want %s", audit.args["x-dead-letter-exchange"], dlxExchangeName)
	}

	bound := map[string]bool{}
	for _, b := range topo.bindings {
		bound[b.exchange+"|"+b.key+"|"+b.queue] = true
	}
	if !bound[dlxExchangeName+"|"+AuditQueue+"|"+DLQName(AuditQueue)] {
		t.Fatal("dlq is not bound to the dlx")
	}
	for _, pattern := range AuditBindings() {
		if !bound[EventsExchange+"|"+pattern+"|"+AuditQueue] {
			t.Fatalf("audit queue missing binding %q", pattern)
		}
	}
}
