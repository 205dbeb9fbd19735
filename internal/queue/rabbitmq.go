package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	dlxExchangeName  = "sendqueue.dlx"
	connectionName   = "sendqueue-worker"
	connectTimeout   = 15 * time.Second
	heartbeat        = 10 * time.Second
	reconnectBackoff = time.Second
	maxBackoff       = 30 * time.Second
	// Unconsumed audit events are capped so a missing consumer cannot fill the broker.
	auditMaxLength = 100000
)

type exchangeDecl struct {
	name string
	kind string
}

type queueDecl struct {
	name string
	args amqp.Table
}

type bindingDecl struct {
	queue    string
	key      string
	exchange string
}

type topology struct {
	exchanges []exchangeDecl
	queues    []queueDecl
	bindings  []bindingDecl
}

// eventsTopology is the events exchange, the audit queue bound to every
// event family, and the dead letter path behind it.
func eventsTopology() topology {
	dlq := DLQName(AuditQueue)

	t := topology{
		exchanges: []exchangeDecl{
			{name: EventsExchange, kind: amqp.ExchangeTopic},
			{name: dlxExchangeName, kind: amqp.ExchangeDirect},
		},
		queues: []queueDecl{
			{name: dlq},
			{name: AuditQueue, args: amqp.Table{
				"x-dead-letter-exchange":    dlxExchangeName,
				"x-dead-letter-routing-key": AuditQueue,
				"x-max-length":              int64(auditMaxLength),
				"x-overflow":                "reject-publish-dlx",
			}},
		},
		bindings: []bindingDecl{
			{queue: dlq, key: AuditQueue, exchange: dlxExchangeName},
		},
	}
	for _, pattern := range auditBindings {
		t.bindings = append(t.bindings, bindingDecl{queue: AuditQueue, key: pattern, exchange: EventsExchange})
	}
	return t
}

func (t topology) declare(ch *amqp.Channel) error {
	for _, ex := range t.exchanges {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %q: %w", ex.name, err)
		}
	}
	for _, q := range t.queues {
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", q.name, err)
		}
	}
	for _, b := range t.bindings {
		if err := ch.QueueBind(b.queue, b.key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %q to %q with %q: %w", b.queue, b.exchange, b.key, err)
		}
	}
	return nil
}

// RabbitMQ manages the broker connection and declares the events topology
// once per connection.
type RabbitMQ struct {
	url      string
	topology topology

	mu          sync.RWMutex
	reconnectMu sync.Mutex
	conn        *amqp.Connection
	declared    atomic.Bool
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	r := &RabbitMQ{url: url, topology: eventsTopology()}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := r.reconnectWithBackoff(ctx); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}

	return conn.Close()
}

// Check reports whether the broker is reachable, for readiness probes.
func (r *RabbitMQ) Check(ctx context.Context) error {
	ch, err := r.channel(ctx)
	if err != nil {
		return err
	}
	return ch.Close()
}

func (r *RabbitMQ) current() *amqp.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.conn == nil || r.conn.IsClosed() {
		return nil
	}
	return r.conn
}

func (r *RabbitMQ) channel(ctx context.Context) (*amqp.Channel, error) {
	conn := r.current()
	if conn == nil {
		if err := r.reconnectWithBackoff(ctx); err != nil {
			return nil, err
		}
		conn = r.current()
	}
	if conn == nil {
		return nil, fmt.Errorf("rabbitmq connection is closed")
	}

	ch, err := conn.Channel()
	if err != nil {
		// The connection may have died between the check and the call.
		if errReconnect := r.reconnectWithBackoff(ctx); errReconnect != nil {
			return nil, errReconnect
		}
		if conn = r.current(); conn == nil {
			return nil, fmt.Errorf("rabbitmq connection is closed")
		}
		if ch, err = conn.Channel(); err != nil {
			return nil, fmt.Errorf("failed to create rabbitmq channel after reconnect: %w", err)
		}
	}

	if !r.declared.Load() {
		if err := r.topology.declare(ch); err != nil {
			_ = ch.Close()
			return nil, err
		}
		r.declared.Store(true)
	}

	return ch, nil
}

func (r *RabbitMQ) dial() (*amqp.Connection, error) {
	return amqp.DialConfig(r.url, amqp.Config{
		Heartbeat:  heartbeat,
		Properties: amqp.Table{"connection_name": connectionName},
	})
}

func (r *RabbitMQ) reconnectWithBackoff(ctx context.Context) error {
	r.reconnectMu.Lock()
	defer r.reconnectMu.Unlock()

	if r.current() != nil {
		return nil
	}

	wait := reconnectBackoff
	for {
		newConn, err := r.dial()
		if err == nil {
			r.mu.Lock()
			oldConn := r.conn
			r.conn = newConn
			r.mu.Unlock()
			// A restarted broker may have lost non-durable state, so declare again.
			r.declared.Store(false)

			if oldConn != nil && !oldConn.IsClosed() {
				_ = oldConn.Close()
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("rabbitmq reconnect canceled after %v: %w", err, ctx.Err())
		case <-time.After(wait):
		}

		wait *= 2
		if wait > maxBackoff {
			wait = maxBackoff
		}
	}
}
