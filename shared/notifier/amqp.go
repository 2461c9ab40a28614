package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// QueueName is the durable queue notifications are published to.
const QueueName = "storefront.notifications"

// Connection wraps a RabbitMQ connection and channel with the notification queue declared.
type Connection struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.RWMutex
	closed  bool
}

// NewConnection dials RabbitMQ and declares the notification queue.
func NewConnection(logger *zerolog.Logger, rawURL string) (*Connection, error) {
	conn, err := amqp.Dial(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		QueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare notification queue: %w", err)
	}

	logger.Info().Str("url", sanitizeURL(rawURL)).Msg("connected to RabbitMQ")

	return &Connection{conn: conn, channel: channel}, nil
}

// Channel returns the underlying channel.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// IsConnected reports whether the connection is open.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed && c.conn != nil && !c.conn.IsClosed()
}

// Close closes the channel and the connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.channel.Close(); err != nil {
		c.conn.Close()
		return err
	}
	return c.conn.Close()
}

// Publisher is a Dispatcher that publishes notifications to RabbitMQ.
type Publisher struct {
	conn *Connection
}

// NewPublisher creates a new Publisher.
func NewPublisher(conn *Connection) *Publisher {
	return &Publisher{conn: conn}
}

// Dispatch publishes msg as a persistent JSON message.
func (p *Publisher) Dispatch(ctx context.Context, msg Message) error {
	if !p.conn.IsConnected() {
		return ErrDispatcherClosed
	}

	msg.prepare()

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	return p.conn.Channel().PublishWithContext(
		ctx,
		"",        // exchange
		QueueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID.String(),
			Timestamp:    msg.CreatedAt,
			Body:         body,
		},
	)
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Workers         int
	Prefetch        int
	DeliveryTimeout time.Duration
	Retry           RetryConfig
}

// Consumer delivers notifications read from RabbitMQ.
type Consumer struct {
	conn       *Connection
	logger     *zerolog.Logger
	deliverer  *deliverer
	workers    int
	prefetch   int
	timeout    time.Duration
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewConsumer creates a new Consumer.
func NewConsumer(logger *zerolog.Logger, conn *Connection, sender Sender, cfg ConsumerConfig) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 2 * time.Minute
	}

	return &Consumer{
		conn:      conn,
		logger:    logger,
		deliverer: newDeliverer(logger, sender, cfg.Retry),
		workers:   cfg.Workers,
		prefetch:  cfg.Prefetch,
		timeout:   cfg.DeliveryTimeout,
	}
}

// Start begins consuming messages.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	ch := c.conn.Channel()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		QueueName,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info().Int("workers", c.workers).Int("prefetch", c.prefetch).Msg("starting notification consumer")

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, msgs)
	}

	return nil
}

// Stop cancels the workers and waits for them to exit.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
}

func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-msgs:
			if !ok {
				c.logger.Debug().Int("worker_id", id).Msg("notification channel closed")
				return
			}
			c.process(ctx, d)
		}
	}
}

func (c *Consumer) process(ctx context.Context, d amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.Error().Err(err).Str("message_id", d.MessageId).Msg("failed to unmarshal notification")
		_ = d.Reject(false)
		return
	}

	deliverCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.deliverer.deliver(deliverCtx, msg); err != nil {
		_ = d.Nack(false, false)
		return
	}

	_ = d.Ack(false)
}

func sanitizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url"
	}
	return u.Redacted()
}
