package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"coupon-payments/internal/domain/ports/adapter"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

var (
	_ adapter.EventPublisher = (*EventProducer)(nil)
	_ adapter.EventPublisher = (*NoopPublisher)(nil)
)

// EventProducer publishes terminal intent events to a durable topic exchange.
type EventProducer struct {
	exchange string
	log      *zerolog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewEventProducer dials the broker and declares the exchange once.
func NewEventProducer(rawURL, exchange string, logger *zerolog.Logger) (*EventProducer, error) {
	clean, err := sanitizeAMQPURL(rawURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp.DialConfig(clean, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq exchange declare: %w", err)
	}
	l := logger.With().Str("component", "rabbitmq_producer").Logger()
	return &EventProducer{exchange: exchange, log: &l, conn: conn, channel: ch}, nil
}

// RoutingKey is payment.intent.<status>, lowercased.
func RoutingKey(ev adapter.IntentEvent) string {
	return "payment.intent." + strings.ToLower(string(ev.Status))
}

func (p *EventProducer) PublishIntentEvent(ctx context.Context, ev adapter.IntentEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.IntentID + ":" + string(ev.Status),
		Timestamp:    time.Now(),
		Body:         body,
	}
	key := RoutingKey(ev)

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx, p.exchange, key, false, false, msg)
	if err == nil {
		return nil
	}
	// one retry on a fresh channel
	p.log.Warn().Err(err).Str("routing_key", key).Msg("publish failed; reopening channel")
	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return fmt.Errorf("rabbitmq reopen channel: %w", errors.Join(err, chErr))
	}
	p.channel = ch
	return p.channel.PublishWithContext(ctx, p.exchange, key, false, false, msg)
}

func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// NoopPublisher only logs; used when no broker is configured.
type NoopPublisher struct {
	Log *zerolog.Logger
}

func (n NoopPublisher) PublishIntentEvent(ctx context.Context, ev adapter.IntentEvent) error {
	if n.Log != nil {
		n.Log.Debug().Str("intent_id", ev.IntentID).Str("routing_key", RoutingKey(ev)).Msg("publish skipped")
	}
	return nil
}

func sanitizeAMQPURL(raw string) (string, error) {
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
