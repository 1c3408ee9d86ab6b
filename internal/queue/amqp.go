package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

// AMQPConfig configures the RabbitMQ broker.
type AMQPConfig struct {
	URL string
	// Prefix namespaces exchanges and queues; defaults to "promoreel".
	Prefix string
	// Prefetch is the per-consumer unacked window; defaults to 1.
	Prefetch int
}

// AMQPBroker runs the queue on RabbitMQ. Each kind gets a durable queue bound
// to a delayed-message exchange (retries and scheduled jobs) and a sibling
// "<queue>.dlq" queue behind a dead-letter exchange. The delayed exchange
// needs the rabbitmq_delayed_message_exchange plugin.
type AMQPBroker struct {
	cfg    AMQPConfig
	logger zerolog.Logger

	mu        sync.Mutex
	conn      *amqp.Connection
	pub       *amqp.Channel
	declared  map[string]bool
	consumers []*amqp.Channel
	closed    bool
}

func NewAMQPBroker(cfg AMQPConfig, logger zerolog.Logger) *AMQPBroker {
	if cfg.Prefix == "" {
		cfg.Prefix = "promoreel"
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	return &AMQPBroker{cfg: cfg, logger: logger.With().Str("component", "amqp").Logger(), declared: map[string]bool{}}
}

func (b *AMQPBroker) delayedExchange() string { return b.cfg.Prefix + ".delayed" }
func (b *AMQPBroker) deadExchange() string    { return b.cfg.Prefix + ".dlx" }

// QueueName is the durable queue consumed for kind.
func (b *AMQPBroker) QueueName(kind string) string { return b.cfg.Prefix + "." + kind }

// DeadQueueName holds jobs of kind that exhausted their retries.
func (b *AMQPBroker) DeadQueueName(kind string) string { return b.QueueName(kind) + ".dlq" }

func (b *AMQPBroker) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connectLocked()
}

// connectLocked dials when there is no live connection. A watcher clears
// the connection when the server or network drops it, so the next call
// dials again.
func (b *AMQPBroker) connectLocked() error {
	if b.closed {
		return ErrBrokerClosed
	}
	if b.conn != nil {
		return nil
	}
	conn, err := amqp.Dial(b.cfg.URL)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(b.delayedExchange(), "x-delayed-message", true, false, false, false,
		amqp.Table{"x-delayed-type": "direct"}); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare delayed exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(b.deadExchange(), "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare dead-letter exchange: %w", err)
	}
	b.conn = conn
	b.pub = ch
	go b.watch(conn, conn.NotifyClose(make(chan *amqp.Error, 1)))
	return nil
}

func (b *AMQPBroker) watch(conn *amqp.Connection, closes <-chan *amqp.Error) {
	reason := <-closes
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.conn != conn {
		return
	}
	ev := b.logger.Warn()
	if reason != nil {
		ev = ev.Int("code", reason.Code).Str("reason", reason.Reason)
	}
	ev.Msg("amqp: connection lost, next use redials")
	b.conn, b.pub, b.consumers = nil, nil, nil
	b.declared = map[string]bool{}
}

// declareLocked declares the queue pair for kind on ch once per process.
func (b *AMQPBroker) declareLocked(ch *amqp.Channel, kind string) error {
	if b.declared[kind] {
		return nil
	}
	queue := b.QueueName(kind)
	dlq := b.DeadQueueName(kind)
	if _, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    b.deadExchange(),
		"x-dead-letter-routing-key": dlq,
	}); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, queue, b.delayedExchange(), false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", queue, err)
	}
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", dlq, err)
	}
	if err := ch.QueueBind(dlq, dlq, b.deadExchange(), false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", dlq, err)
	}
	b.declared[kind] = true
	return nil
}

func (b *AMQPBroker) Publish(ctx context.Context, job Job, delay time.Duration) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.connectLocked(); err != nil {
		return err
	}
	if err := b.declareLocked(b.pub, job.Kind); err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Type:         job.Kind,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	exchange := ""
	if delay > 0 {
		exchange = b.delayedExchange()
		msg.Headers = amqp.Table{"x-delay": delay.Milliseconds()}
	}
	return b.pub.Publish(exchange, b.QueueName(job.Kind), false, false, msg)
}

func (b *AMQPBroker) Consume(ctx context.Context, kind string) (<-chan Delivery, error) {
	b.mu.Lock()
	if err := b.connectLocked(); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	ch, err := b.conn.Channel()
	if err != nil {
		b.mu.Unlock()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.Qos(b.cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		b.mu.Unlock()
		return nil, fmt.Errorf("amqp qos: %w", err)
	}
	if err := b.declareLocked(ch, kind); err != nil {
		ch.Close()
		b.mu.Unlock()
		return nil, err
	}
	b.consumers = append(b.consumers, ch)
	b.mu.Unlock()

	msgs, err := ch.Consume(b.QueueName(kind), "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("amqp consume %s: %w", kind, err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var job Job
				if err := json.Unmarshal(m.Body, &job); err != nil {
					b.logger.Error().Err(err).Str("message_id", m.MessageId).Msg("amqp: undecodable job, dead-lettering")
					_ = m.Nack(false, false)
					continue
				}
				d := NewDelivery(job,
					func() error { return m.Ack(false) },
					func(requeue bool) error { return m.Nack(false, requeue) },
				)
				select {
				case out <- d:
				case <-ctx.Done():
					_ = m.Nack(false, true)
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *AMQPBroker) DeadLetter(ctx context.Context, job Job, reason string) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.connectLocked(); err != nil {
		return err
	}
	if err := b.declareLocked(b.pub, job.Kind); err != nil {
		return err
	}
	return b.pub.Publish(b.deadExchange(), b.DeadQueueName(job.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Type:         job.Kind,
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{"x-reason": reason},
		Body:         body,
	})
}

func (b *AMQPBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	var errs []error
	for _, ch := range b.consumers {
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if b.pub != nil {
		if err := b.pub.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if b.conn != nil {
		if err := b.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Broker = (*AMQPBroker)(nil)
