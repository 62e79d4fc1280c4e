// ABOUTME: Publisher interface with AMQP, no-op and in-memory implementations
// ABOUTME: The AMQP publisher declares a durable topic exchange and sends persistent JSON

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends an event to the bus.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data any) error
	Close() error
}

// AMQPPublisher publishes envelopes to a RabbitMQ topic exchange, using the
// event type as routing key.
type AMQPPublisher struct {
	conn     *amqp.Connection
	exchange string
	logger   *slog.Logger
}

var _ Publisher = (*AMQPPublisher)(nil)

// NewAMQPPublisher dials url and declares exchange as a durable topic
// exchange. Pass nil logger for default.
func NewAMQPPublisher(url, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening amqp channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{
		conn:     conn,
		exchange: exchange,
		logger:   logger.With("component", "events"),
	}, nil
}

// Publish implements Publisher.
func (p *AMQPPublisher) Publish(ctx context.Context, eventType string, data any) error {
	env := NewEnvelope(eventType, data)
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", eventType, err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("opening amqp channel: %w", err)
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx, p.exchange, eventType, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.Meta.ID,
		Timestamp:    env.Meta.Time,
		AppId:        Producer,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publishing %s: %w", eventType, err)
	}

	p.logger.Debug("published", "type", eventType, "id", env.Meta.ID, "exchange", p.exchange)
	return nil
}

// Close closes the connection.
func (p *AMQPPublisher) Close() error {
	return p.conn.Close()
}

// Noop discards every event. Used when no bus is configured.
type Noop struct{}

var _ Publisher = Noop{}

func (Noop) Publish(context.Context, string, any) error { return nil }
func (Noop) Close() error                               { return nil }

// Memory keeps published envelopes in memory for tests.
type Memory struct {
	mu        sync.Mutex
	envelopes []Envelope
	// Err, when set, is returned from Publish and nothing is recorded.
	Err error
}

var _ Publisher = (*Memory)(nil)

// NewMemory creates an empty in-memory publisher.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish implements Publisher.
func (m *Memory) Publish(ctx context.Context, eventType string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.envelopes = append(m.envelopes, NewEnvelope(eventType, data))
	return nil
}

// Close implements Publisher.
func (m *Memory) Close() error { return nil }

// Published returns envelopes of the given type, oldest first.
func (m *Memory) Published(eventType string) []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Envelope
	for _, e := range m.envelopes {
		if e.Meta.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// publishTimeout bounds how long a best-effort publish may take.
const publishTimeout = 5 * time.Second

// PublishBestEffort publishes data and logs instead of returning errors.
// The context is detached from the caller's cancellation so a closing
// socket does not abort an event for a message that was already stored.
func PublishBestEffort(ctx context.Context, p Publisher, logger *slog.Logger, eventType string, data any) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := p.Publish(ctx, eventType, data); err != nil {
		logger.Warn("failed to publish event", "type", eventType, "error", err)
	}
}
