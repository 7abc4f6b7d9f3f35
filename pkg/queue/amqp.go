package queue

import (
	"context"
	"fmt"
	"time"

	"PostcardAgent/pkg/logger"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// AMQPQueue RabbitMQ 持久队列，prefetch 为 1
type AMQPQueue struct {
	name       string
	conn       *amqp.Connection
	ch         *amqp.Channel
	deliveries <-chan amqp.Delivery
}

// DialAMQP 连接 RabbitMQ 并声明持久队列
func DialAMQP(url, name string) (*AMQPQueue, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{Heartbeat: 600 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		name,  // 队列名称
		true,  // 持久化
		false, // 自动删除
		false, // 排他性
		false, // 不等待
		nil,   // 参数
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	logger.Info("connected to RabbitMQ", zap.String("queue", name))
	return &AMQPQueue{name: name, conn: conn, ch: ch}, nil
}

// Receive 阻塞等待下一条消息
func (q *AMQPQueue) Receive(ctx context.Context) (*Delivery, error) {
	if q.deliveries == nil {
		msgs, err := q.ch.Consume(q.name, "", false, false, false, false, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to consume: %w", err)
		}
		q.deliveries = msgs
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d, ok := <-q.deliveries:
		if !ok {
			return nil, ErrClosed
		}
		return NewDelivery(d.Body, func() error { return d.Ack(false) }), nil
	}
}

// Publish 发布持久化消息
func (q *AMQPQueue) Publish(ctx context.Context, body []byte) error {
	err := q.ch.Publish("", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (q *AMQPQueue) Close() error {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil && !q.conn.IsClosed() {
		return q.conn.Close()
	}
	return nil
}
