package rabbitmq

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/viper"
	"github.com/streadway/amqp"
)

// Client represents a RabbitMQ client. Operations redial a dead connection or
// channel transparently, so a broker restart costs one failed attempt, not a
// permanently broken client.
type Client struct {
	url string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// Channel returns the underlying AMQP channel.
func (r *Client) Channel() *amqp.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.channel
}

// Connection returns the underlying AMQP connection.
func (r *Client) Connection() *amqp.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.conn
}

// Close closes the channel and connection for graceful shutdown.
func (r *Client) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel != nil {
		if err := r.channel.Close(); err != nil && err != amqp.ErrClosed {
			return err
		}
	}
	if r.conn != nil && !r.conn.IsClosed() {
		return r.conn.Close()
	}

	return nil
}

// MustNewClient creates a new RabbitMQ client.
func MustNewClient() *Client {
	host := viper.GetString("rabbitmq.host")
	if host == "" {
		host = "rabbitmq"
	}

	client := &Client{
		url: fmt.Sprintf(
			"amqp://%s:%s@%s:5672/",
			os.Getenv("RABBITMQ_DEFAULT_USER"),
			os.Getenv("RABBITMQ_DEFAULT_PASS"),
			host,
		),
	}

	if err := client.dial(); err != nil {
		panic(fmt.Sprintf("Failed to connect to RabbitMQ: %v", err))
	}

	slog.Info("RabbitMQ connected")

	return client
}

// dial establishes a fresh connection and channel. Caller holds r.mu (or is
// the constructor).
func (r *Client) dial() error {
	conn, err := amqp.Dial(r.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()

		return fmt.Errorf("failed to open a channel: %w", err)
	}

	r.conn = conn
	r.channel = channel

	return nil
}

// reconnect drops the stale transport, redials and re-declares the broadcast
// exchange. Caller holds r.mu.
func (r *Client) reconnect() error {
	if r.conn != nil && !r.conn.IsClosed() {
		_ = r.conn.Close()
	}

	if err := r.dial(); err != nil {
		return err
	}

	slog.Info("RabbitMQ reconnected")

	return r.declareBroadcast()
}

func broadcastExchange() string {
	exchange := viper.GetString("rabbitmq.broadcast_exchange")
	if exchange == "" {
		exchange = "orders.broadcast"
	}

	return exchange
}

// DeclareBroadcast declares the fanout exchange carrying relay envelopes.
func (r *Client) DeclareBroadcast() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.declareBroadcast()
}

func (r *Client) declareBroadcast() error {
	return r.channel.ExchangeDeclare(
		broadcastExchange(),
		"fanout",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
}

// PublishBroadcast publishes a relay envelope to the fanout exchange,
// fire-and-forget. No confirms are requested; missed subscribers catch up on
// their next resync. A publish that fails on a dead transport is retried once
// after a redial.
func (r *Client) PublishBroadcast(body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.publish(body)
	if err == nil {
		return nil
	}
	slog.Warn("Broadcast publish failed, redialing", "error", err)

	if err := r.reconnect(); err != nil {
		return fmt.Errorf("failed to reconnect to RabbitMQ: %w", err)
	}

	return r.publish(body)
}

func (r *Client) publish(body []byte) error {
	return r.channel.Publish(
		broadcastExchange(),
		"", // fanout ignores the routing key
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

// SubscribeBroadcast binds a fresh exclusive auto-delete queue to the fanout
// exchange and starts consuming on it. The queue disappears with the
// connection, so disconnected subscribers accumulate nothing. A dead transport
// is redialed and the subscription retried once; the caller's retry loop
// covers a broker that stays down.
func (r *Client) SubscribeBroadcast(consumerTag string) (<-chan amqp.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deliveries, err := r.subscribe(consumerTag)
	if err == nil {
		return deliveries, nil
	}
	slog.Warn("Broadcast subscribe failed, redialing", "error", err)

	if err := r.reconnect(); err != nil {
		return nil, fmt.Errorf("failed to reconnect to RabbitMQ: %w", err)
	}

	return r.subscribe(consumerTag)
}

func (r *Client) subscribe(consumerTag string) (<-chan amqp.Delivery, error) {
	if err := r.declareBroadcast(); err != nil {
		return nil, fmt.Errorf("failed to declare broadcast exchange: %w", err)
	}

	queue, err := r.channel.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare subscriber queue: %w", err)
	}

	if err := r.channel.QueueBind(queue.Name, "", broadcastExchange(), false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind subscriber queue: %w", err)
	}

	deliveries, err := r.channel.Consume(
		queue.Name,
		consumerTag,
		true,  // auto-ack: delivery is best-effort, resync re-establishes truth
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	return deliveries, nil
}

// CancelConsumer stops the consumer with the given tag.
func (r *Client) CancelConsumer(consumerTag string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.channel.Cancel(consumerTag, false)
}
