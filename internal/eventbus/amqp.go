package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"

	"github.com/memento-graph/memento/internal/graphmodel"
)

// AMQPBackend is the alternate durable queue backend behind the same
// push/pop/depth shape RedisBackend implements, one durable queue per
// partition. Grounded on queue/rabbit.go's RabbitMQService (dial, open
// channel, declare durable queue, marshal-then-publish) and
// queue/amqp_interface.go's connection/channel split, collapsed here to the
// concrete streadway/amqp types since this backend owns its own lifecycle
// rather than being injected for testing the way the teacher's service is.
type AMQPBackend struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	prefix  string
}

// AMQPConfig configures the AMQP-backed queue.
type AMQPConfig struct {
	URL    string
	Prefix string
}

// NewAMQPBackend dials the broker, opens a channel, and declares one durable
// queue per partition up front.
func NewAMQPBackend(cfg AMQPConfig, partitionCount int) (*AMQPBackend, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "memento.eventbus."
	}
	b := &AMQPBackend{conn: conn, channel: ch, prefix: prefix}

	for i := 0; i < partitionCount; i++ {
		if _, err := ch.QueueDeclare(b.queueName(i), true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("declare queue for partition %d: %w", i, err)
		}
	}
	return b, nil
}

func (b *AMQPBackend) queueName(partition int) string {
	return fmt.Sprintf("%spartition-%d", b.prefix, partition)
}

// Close tears down the channel and connection.
func (b *AMQPBackend) Close() error {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// Push publishes a change event to a partition's durable queue via the
// default exchange, routing on queue name exactly as RabbitMQService does.
func (b *AMQPBackend) Push(ctx context.Context, partition int, e graphmodel.ChangeEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	err = b.channel.Publish(
		"",                    // default exchange
		b.queueName(partition), // routing key == queue name
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

// Pop consumes a single message from a partition's queue, waiting up to
// timeout. It opens a short-lived auto-ack consumer per call; callers doing
// sustained draining should prefer a long-lived Consume loop instead.
func (b *AMQPBackend) Pop(ctx context.Context, partition int, timeout time.Duration) (*graphmodel.ChangeEvent, error) {
	consumerTag := fmt.Sprintf("memento-pop-%d-%d", partition, time.Now().UnixNano())
	deliveries, err := b.channel.Consume(b.queueName(partition), consumerTag, true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer b.channel.Cancel(consumerTag, false)

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case d, ok := <-deliveries:
		if !ok {
			return nil, nil
		}
		var e graphmodel.ChangeEvent
		if err := json.Unmarshal(d.Body, &e); err != nil {
			return nil, fmt.Errorf("unmarshal change event: %w", err)
		}
		return &e, nil
	case <-opCtx.Done():
		return nil, nil
	}
}

// Depth inspects the partition's queue and returns its current message count.
func (b *AMQPBackend) Depth(_ context.Context, partition int) (int64, error) {
	q, err := b.channel.QueueInspect(b.queueName(partition))
	if err != nil {
		return 0, fmt.Errorf("inspect partition %d: %w", partition, err)
	}
	return int64(q.Messages), nil
}
