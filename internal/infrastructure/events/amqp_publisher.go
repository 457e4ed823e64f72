// Package events publishes generation outcomes on a RabbitMQ topic exchange.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"codegen/internal/domain/entity"
	"codegen/internal/domain/repository"
	"codegen/internal/infrastructure/metrics"
)

const (
	Exchange     = "codegen.events"
	ExchangeType = "topic"

	connectAttempts = 5
)

var ErrPublisherClosed = errors.New("event publisher is closed")

// AMQPPublisher wraps one AMQP connection and channel. A lost connection is
// re-dialed once on the next publish.
type AMQPPublisher struct {
	url    string
	logger zerolog.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

var _ repository.EventPublisher = (*AMQPPublisher)(nil)

// NewAMQPPublisher connects to RabbitMQ and declares the exchange.
func NewAMQPPublisher(ctx context.Context, amqpURL string, logger zerolog.Logger) (*AMQPPublisher, error) {
	p := &AMQPPublisher{url: amqpURL, logger: logger.With().Str("component", "events").Logger()}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connect(ctx, connectAttempts); err != nil {
		return nil, err
	}
	return p, nil
}

// connect dials and declares the exchange. Callers hold p.mu.
func (p *AMQPPublisher) connect(ctx context.Context, attempts int) error {
	var (
		conn *amqp.Connection
		err  error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err = amqp.Dial(p.url)
		if err == nil || attempt == attempts {
			break
		}
		p.logger.Warn().Err(err).Int("attempt", attempt).Msg("RabbitMQ connection failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	if err != nil {
		return fmt.Errorf("rabbitmq connect after %d attempts: %w", attempts, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		Exchange,
		ExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange %s: %w", Exchange, err)
	}

	p.conn, p.ch = conn, ch
	go p.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))
	return nil
}

// watch logs an unexpected connection loss. The channel is closed without a
// value on a graceful Close.
func (p *AMQPPublisher) watch(closes <-chan *amqp.Error) {
	if amqpErr, ok := <-closes; ok && amqpErr != nil {
		metrics.IncError("events", "connection_lost")
		p.logger.Warn().Err(amqpErr).Msg("RabbitMQ connection lost, re-dialing on next publish")
	}
}

// channel returns an open channel, re-dialing once if the old one is gone.
func (p *AMQPPublisher) channel(ctx context.Context) (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPublisherClosed
	}
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	p.release()
	if err := p.connect(ctx, 1); err != nil {
		metrics.IncError("events", "reconnect")
		return nil, fmt.Errorf("reconnect: %w", err)
	}
	p.logger.Info().Msg("RabbitMQ connection re-established")
	return p.ch, nil
}

func (p *AMQPPublisher) PublishGeneration(ctx context.Context, g *entity.Generation) error {
	key := RoutingKeyFor(g)
	body, err := Wrap(key, PayloadFor(g))
	if err != nil {
		metrics.IncError("events", "marshal")
		return fmt.Errorf("wrap %s: %w", key, err)
	}

	ch, err := p.channel(ctx)
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}

	err = ch.PublishWithContext(ctx,
		Exchange,
		key,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		metrics.IncError("events", "publish")
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// release closes the current channel and connection. Callers hold p.mu.
func (p *AMQPPublisher) release() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.release()
}
