package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrClosed 队列连接已关闭
var ErrClosed = errors.New("queue closed")

// Delivery 一条待处理消息，处理完成后必须 Ack 一次
type Delivery struct {
	Body []byte

	ack    func() error
	once   sync.Once
	ackErr error
}

// NewDelivery 构造消息，ack 为空时 Ack 为空操作
func NewDelivery(body []byte, ack func() error) *Delivery {
	return &Delivery{Body: body, ack: ack}
}

// Ack 确认消息，只会真正执行一次，重复调用返回第一次的结果
func (d *Delivery) Ack() error {
	d.once.Do(func() {
		if d.ack != nil {
			d.ackErr = d.ack()
		}
	})
	return d.ackErr
}

// Consumer 阻塞式逐条消费
type Consumer interface {
	Receive(ctx context.Context) (*Delivery, error)
	Close() error
}

// Publisher 发布消息
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// Queue 同时具备消费和发布能力
type Queue interface {
	Consumer
	Publisher
}

// Options 队列连接参数
type Options struct {
	Driver        string
	AMQPURL       string
	Name          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open 按驱动建立队列连接
func Open(opts Options) (Queue, error) {
	switch strings.ToLower(opts.Driver) {
	case "", "amqp", "rabbitmq":
		return DialAMQP(opts.AMQPURL, opts.Name)
	case "redis":
		return NewRedisQueue(opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.Name)
	case "memory":
		return NewMemoryQueue(64), nil
	default:
		return nil, fmt.Errorf("unsupported queue driver: %s", opts.Driver)
	}
}
