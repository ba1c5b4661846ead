package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Producer publishes events to a durable topic exchange, routed by event type.
type Producer struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	log      *zap.Logger
}

func sanitizeURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

func NewProducer(amqpURL, exchange string, log *zap.Logger) (*Producer, error) {
	cleanURL, err := sanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	p := &Producer{conn: conn, exchange: exchange, log: log}
	if err := p.openChannel(); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *Producer) openChannel() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.channel = ch
	return nil
}

// Publish sends the event once, reopening the channel for a single retry if
// the first attempt fails.
func (p *Producer) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", e.Type, err)
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    e.ID,
		Timestamp:    e.OccurredAt,
		Type:         e.Type,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, e.Type, false, false, msg)
	if err == nil {
		return nil
	}
	p.log.Warn("publish failed; reopening channel", zap.String("routing_key", e.Type), zap.Error(err))
	if chErr := p.openChannel(); chErr != nil {
		return errors.Join(err, chErr)
	}
	return p.channel.PublishWithContext(ctx, p.exchange, e.Type, false, false, msg)
}

func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// LogPublisher stands in for the producer when RabbitMQ is not configured or
// unreachable at startup. Events are logged and dropped.
type LogPublisher struct {
	Log *zap.Logger
}

func (p LogPublisher) Publish(_ context.Context, e Event) error {
	p.Log.Info("event publish skipped",
		zap.String("component", "events"),
		zap.String("mode", "fallback"),
		zap.String("type", e.Type),
		zap.String("id", e.ID),
	)
	return nil
}

func (LogPublisher) Close() {}

// Connect returns a RabbitMQ producer, or a LogPublisher when amqpURL is
// empty or the broker cannot be reached.
func Connect(amqpURL, exchange string, log *zap.Logger) Publisher {
	if strings.TrimSpace(amqpURL) == "" {
		log.Warn("RABBITMQ_URL not set; events will only be logged")
		return LogPublisher{Log: log}
	}
	p, err := NewProducer(amqpURL, exchange, log)
	if err != nil {
		log.Warn("rabbitmq unavailable; events will only be logged", zap.Error(err))
		return LogPublisher{Log: log}
	}
	return p
}
